package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridstat/gridstat/migration"
	"github.com/gridstat/gridstat/models"
	"github.com/gridstat/gridstat/output"
)

var (
	migrateDryRun    bool
	migrateBackupDir string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Repair corrupted historical statistics",
	Long: `Run the one-time repair of historical cumulative statistics.

Early importer versions reset the running total at month boundaries instead
of continuing it, leaving spurious jumps in the stored series. This command
snapshots the original data to a backup artifact, rewrites both the
consumption and cost series into continuous sequences, and records the new
schema version so the repair never runs twice.

With --dry-run the store is not touched; the detected boundary jumps are
printed instead.`,
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

		repairer, err := buildRepairer(cfg)
		if err != nil {
			return err
		}

		ctx := context.Background()

		if migrateDryRun {
			return printJumpReports(ctx, s, repairer, pod, "table")
		}

		backupDir := cfg.Repair.BackupDir
		if migrateBackupDir != "" {
			backupDir = migrateBackupDir
		}

		runner := migration.NewRunner(s, repairer, backupDir, models.SchemaVersionRepaired)
		outcome, err := runner.Run(ctx, pod)
		if err != nil {
			if outcome != nil && outcome.BackupPath != "" {
				fmt.Printf("Repair failed after backup; original data preserved at %s\n", outcome.BackupPath)
			}
			return fmt.Errorf("migration failed (state: %s): %w", outcome.State, err)
		}

		if outcome.Skipped {
			fmt.Println("Statistics already repaired, nothing to do.")
			return nil
		}

		anomalies := 0
		for _, jump := range outcome.Jumps {
			if jump.Anomalous {
				anomalies++
			}
		}
		fmt.Printf("Repair complete: %d anomalous boundaries fixed, %d consumption and %d cost points rewritten.\n",
			anomalies, outcome.ConsumptionPoints, outcome.CostPoints)
		if outcome.BackupPath != "" {
			fmt.Printf("Original data backed up at: %s\n", outcome.BackupPath)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "detect jumps without modifying the store")
	migrateCmd.Flags().StringVar(&migrateBackupDir, "backup-dir", "", "override the backup directory")

	rootCmd.AddCommand(migrateCmd)
}

// printJumpReports renders the boundary inspection for both series of a
// metering point. Shared by migrate --dry-run, detect, and verify.
func printJumpReports(ctx context.Context, s storeReader, repairer jumpDetector, pod, format string) error {
	energyID, costID := statisticIDs(pod)

	var reports []output.JumpReport
	for _, id := range []string{energyID, costID} {
		series, err := readSeriesLenient(ctx, s, id)
		if err != nil {
			return err
		}
		if len(series) == 0 {
			continue
		}
		reports = append(reports, output.JumpReport{
			StatisticID: id,
			Threshold:   repairer.Threshold(),
			Jumps:       repairer.DetectJumps(series),
		})
	}

	if len(reports) == 0 {
		fmt.Printf("No statistics stored for %s yet.\n", pod)
		return nil
	}

	rendered, err := output.Format(format, reports)
	if err != nil {
		return err
	}
	fmt.Print(rendered)
	return nil
}
