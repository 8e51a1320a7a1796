package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridstat/gridstat/calculations"
	"github.com/gridstat/gridstat/logging"
	"github.com/gridstat/gridstat/models"
)

var verifyOutput string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Confirm stored statistics are continuous",
	Long: `Read-only check that no month-boundary jump in the stored series
exceeds the anomaly threshold. Exits non-zero when a repair is still
needed, so it can gate automation after a migration.

Intra-month hourly deltas above repair.max_hourly_delta are logged as
warnings but do not fail the check; that band is a plausibility heuristic,
not an invariant.`,
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
		if err := printJumpReports(ctx, s, repairer, pod, verifyOutput); err != nil {
			return err
		}

		energyID, costID := statisticIDs(pod)
		anomalies := 0
		for _, id := range []string{energyID, costID} {
			series, err := readSeriesLenient(ctx, s, id)
			if err != nil {
				return err
			}
			anomalies += len(repairer.AnomalousJumps(series))

			if id == energyID && cfg.Repair.MaxHourlyDelta > 0 {
				warnImplausibleDeltas(series, repairer.DetectJumps(series), cfg.Repair.MaxHourlyDelta, id)
			}
		}

		if anomalies > 0 {
			return fmt.Errorf("verification failed: %d anomalous boundaries remain, run 'gridstat migrate'", anomalies)
		}
		fmt.Println("Verification passed: no anomalous month boundaries.")
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyOutput, "output", "o", "table", "output format (table, json, csv)")

	rootCmd.AddCommand(verifyCmd)
}

// warnImplausibleDeltas logs consecutive same-month deltas outside the
// expected consumption band
func warnImplausibleDeltas(series models.Series, jumps []calculations.BoundaryJump, maxDelta float64, statisticID string) {
	log := logging.GetLogger()
	boundaries := make(map[int64]bool)
	for _, jump := range jumps {
		boundaries[jump.At.Unix()] = true
	}

	for i := 1; i < len(series); i++ {
		if boundaries[series[i].Timestamp.Unix()] {
			continue
		}
		delta := series[i].Sum - series[i-1].Sum
		if delta > maxDelta || delta < 0 {
			log.Warnf("Implausible hourly delta %.2f at %s in %s",
				delta, formatTimestamp(series[i].Timestamp), statisticID)
		}
	}
}
