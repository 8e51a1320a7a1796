package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var detectOutput string

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Inspect month-boundary jumps without writing",
	Long: `List every month-boundary jump in the stored consumption and cost
series, flagging those above the anomaly threshold. Pure inspection; the
store is never modified.

Examples:
  gridstat detect
  gridstat detect --output json
  gridstat detect --output csv > boundaries.csv`,
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

		return printJumpReports(context.Background(), s, repairer, pod, detectOutput)
	},
}

func init() {
	detectCmd.Flags().StringVarP(&detectOutput, "output", "o", "table", "output format (table, json, csv)")

	rootCmd.AddCommand(detectCmd)
}
