package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridstat/gridstat/cache"
	"github.com/gridstat/gridstat/config"
	"github.com/gridstat/gridstat/importer"
	"github.com/gridstat/gridstat/logging"
	"github.com/gridstat/gridstat/migration"
	"github.com/gridstat/gridstat/models"
	"github.com/gridstat/gridstat/portal"
)

var (
	importPayload string
	importWatch   bool
	importNoCache bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import hourly readings into the statistics store",
	Long: `Fetch the latest hourly consumption payload and append every reading
newer than the last stored point, as both an energy (kWh) series and a
derived cost series at the configured price per kWh.

A pending statistics repair is run first; if it fails, the failure is
logged and the import proceeds, so the one-time migration never blocks
ongoing data collection.

With --watch the import repeats on import.interval and the configuration
file is watched for changes, so tariff updates apply without a restart.

Examples:
  gridstat import --payload export.json
  gridstat import --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return err
		}
		pod, err := requirePOD(cfg)
		if err != nil {
			return err
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		log := logging.GetLogger()
		ctx := context.Background()

		// Run any pending repair first, but never let it stop collection
		repairer, err := buildRepairer(cfg)
		if err != nil {
			return err
		}
		backupDir := cfg.Repair.BackupDir
		runner := migration.NewRunner(s, repairer, backupDir, models.SchemaVersionRepaired)
		if outcome, err := runner.Run(ctx, pod); err != nil {
			log.Errorf("Pending statistics repair failed (state: %s), continuing with import: %v",
				outcome.State, err)
		}

		var payloadCache *cache.PayloadCache
		if cfg.Cache.Enabled && !importNoCache {
			payloadCache, err = cache.Open(cfg.Cache.Path)
			if err != nil {
				log.Warnf("Payload cache unavailable, fetching directly: %v", err)
			} else {
				defer payloadCache.Close()
			}
		}

		fetcher, err := buildFetcher(cfg)
		if err != nil {
			return err
		}

		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		buildImporter := func(cfg *config.Config) *importer.Importer {
			return importer.New(s, fetcher, payloadCache, importer.Options{
				POD:         pod,
				PricePerKWH: cfg.Source.PricePerKWH,
				Location:    loc,
				Lookback:    cfg.Import.Lookback,
			})
		}

		if !importWatch {
			summary, err := buildImporter(cfg).Run(ctx)
			if err != nil {
				return err
			}
			printImportSummary(summary)
			return nil
		}

		return watchLoop(ctx, cfg, buildImporter)
	},
}

func init() {
	importCmd.Flags().StringVar(&importPayload, "payload", "", "path to a saved portal payload file")
	importCmd.Flags().BoolVarP(&importWatch, "watch", "w", false, "keep importing on import.interval")
	importCmd.Flags().BoolVar(&importNoCache, "no-cache", false, "bypass the payload cache")

	if err := viper.BindPFlag("source.payload_path", importCmd.Flags().Lookup("payload")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind payload flag: %v\n", err)
	}

	rootCmd.AddCommand(importCmd)
}

func buildFetcher(cfg *config.Config) (portal.Fetcher, error) {
	path := cfg.Source.PayloadPath
	if importPayload != "" {
		path = importPayload
	}
	if path == "" {
		return nil, fmt.Errorf("no payload source configured: pass --payload or set source.payload_path")
	}
	return &portal.FileFetcher{Path: path}, nil
}

func printImportSummary(summary importer.Summary) {
	if summary.Imported == 0 {
		fmt.Printf("No new readings (%d parsed, %d already stored).\n", summary.Parsed, summary.Skipped)
		return
	}
	fmt.Printf("Imported %d new readings (%d parsed, %d already stored).\n",
		summary.Imported, summary.Parsed, summary.Skipped)
}

// watchLoop reruns the import on the configured interval until interrupted,
// reloading the configuration file on change.
func watchLoop(ctx context.Context, cfg *config.Config, buildImporter func(*config.Config) *importer.Importer) error {
	log := logging.GetLogger()

	var mu sync.Mutex
	current := cfg

	if path := viper.ConfigFileUsed(); path != "" {
		watcher, err := config.NewWatcher(path, func(updated *config.Config) {
			mu.Lock()
			current = updated
			mu.Unlock()
		})
		if err != nil {
			log.Warnf("Config watching disabled: %v", err)
		} else if err := watcher.Start(); err != nil {
			log.Warnf("Config watching disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		mu.Lock()
		active := current
		mu.Unlock()

		summary, err := buildImporter(active).Run(ctx)
		if err != nil {
			log.Errorf("Import failed, retrying on next interval: %v", err)
		} else {
			printImportSummary(summary)
		}

		interval := active.Import.Interval
		if interval <= 0 {
			interval = 24 * time.Hour
		}

		select {
		case <-time.After(interval):
		case sig := <-sigCh:
			log.Infof("Received %s, stopping import loop", sig)
			return nil
		}
	}
}
