package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridstat/gridstat/backup"
	"github.com/gridstat/gridstat/models"
)

var (
	restoreApply        bool
	restoreResetVersion bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Validate or restore a pre-repair backup artifact",
	Long: `Inspect a backup artifact created by 'gridstat migrate' and, with
--apply, write its original statistics back to the store.

Without --apply only the artifact is validated and summarized. Combine
--apply with --reset-version to move the schema version back so the repair
can run again later.

Examples:
  gridstat restore ~/.gridstat/backups/gridstat_backup_it001e12345678_v1.json
  gridstat restore --apply --reset-version gridstat_backup_it001e12345678_v1.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return err
		}

		artifact, err := backup.Load(args[0])
		if err != nil {
			return fmt.Errorf("backup validation failed: %w", err)
		}

		fmt.Printf("Backup valid.\n")
		fmt.Printf("  Metering point: %s\n", artifact.Source)
		fmt.Printf("  Created:        %s\n", formatTimestamp(artifact.CreatedAt))
		fmt.Printf("  Consumption:    %d records (%s)\n", len(artifact.Consumption), artifact.ConsumptionID)
		if artifact.CostID != "" {
			fmt.Printf("  Cost:           %d records (%s)\n", len(artifact.Cost), artifact.CostID)
		}

		if !restoreApply {
			fmt.Println("Dry run only; pass --apply to overwrite current statistics with this backup.")
			return nil
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		result, err := backup.Restore(ctx, s, artifact)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d consumption and %d cost points.\n",
			result.ConsumptionPoints, result.CostPoints)

		if restoreResetVersion {
			if err := s.SetSourceVersion(ctx, artifact.Source, artifact.Version); err != nil {
				return err
			}
			fmt.Printf("Schema version for %s reset to %d; the repair will run again.\n",
				artifact.Source, artifact.Version)
		} else if artifact.Version < models.SchemaVersionRepaired {
			fmt.Println("Note: schema version left as-is; pass --reset-version to allow the repair to re-run.")
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreApply, "apply", false, "write the backup back to the store")
	restoreCmd.Flags().BoolVar(&restoreResetVersion, "reset-version", false, "reset the schema version so the repair can re-run")

	rootCmd.AddCommand(restoreCmd)
}
