package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridstat/gridstat/calculations"
	"github.com/gridstat/gridstat/config"
	"github.com/gridstat/gridstat/logging"
	"github.com/gridstat/gridstat/models"
	"github.com/gridstat/gridstat/store"
)

var (
	cfgFile  string
	logLevel string
	flagPOD  string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "gridstat",
	Short: "Utility consumption statistics tool",
	Long: `gridstat maintains a local statistics database of hourly utility-meter
consumption (energy and derived cost), imports new readings from provider
portal payloads, and repairs historical cumulative series corrupted by
month-boundary resets.

Typical flow:
  gridstat import --payload export.json    # import new hourly readings
  gridstat detect                          # inspect month boundaries
  gridstat migrate                         # one-time repair of corrupted history
  gridstat verify                          # confirm no anomalous boundary remains`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gridstat.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagPOD, "pod", "", "metering point identifier (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("app.log_level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("source.pod", rootCmd.PersistentFlags().Lookup("pod")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind pod flag: %v\n", err)
	}
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gridstat")
	}

	viper.SetEnvPrefix("GRIDSTAT")
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// loadConfiguration builds the validated configuration and initializes logging
func loadConfiguration() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.InitLogger(cfg.App.LogLevel, cfg.App.LogFile)
	return cfg, nil
}

func requirePOD(cfg *config.Config) (string, error) {
	if cfg.Source.POD == "" {
		return "", fmt.Errorf("no metering point configured: set source.pod or pass --pod")
	}
	return cfg.Source.POD, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statistics store: %w", err)
	}
	return s, nil
}

func buildRepairer(cfg *config.Config) (*calculations.Repairer, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return calculations.NewRepairer(cfg.Repair.JumpThreshold, loc), nil
}

// statisticIDs returns the energy and cost statistic ids for a metering point
func statisticIDs(pod string) (string, string) {
	return models.StatisticID(pod, models.MetricEnergy), models.StatisticID(pod, models.MetricCost)
}

func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
