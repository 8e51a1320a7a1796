package output

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gridstat/gridstat/calculations"
)

// JumpReport holds the month-boundary inspection result for one statistic
type JumpReport struct {
	StatisticID string                      `json:"statistic_id"`
	Threshold   float64                     `json:"threshold"`
	Jumps       []calculations.BoundaryJump `json:"jumps"`
}

// Anomalies counts the boundaries exceeding the threshold
func (r *JumpReport) Anomalies() int {
	n := 0
	for _, j := range r.Jumps {
		if j.Anomalous {
			n++
		}
	}
	return n
}

// FormatTable renders the report as an aligned text table
func FormatTable(reports []JumpReport) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "STATISTIC\tPERIOD\tAT\tPREV\tFIRST\tJUMP\tANOMALOUS")
	for _, report := range reports {
		for _, j := range report.Jumps {
			flag := ""
			if j.Anomalous {
				flag = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%+.2f\t%s\n",
				report.StatisticID, j.Period, j.At.Format(time.RFC3339),
				j.PrevLast, j.FirstSum, j.Jump, flag)
		}
	}
	w.Flush()

	for _, report := range reports {
		fmt.Fprintf(&sb, "%s: %d boundaries, %d anomalous (threshold %.0f)\n",
			report.StatisticID, len(report.Jumps), report.Anomalies(), report.Threshold)
	}
	return sb.String()
}

// FormatJSON renders the report as indented JSON
func FormatJSON(reports []JumpReport) (string, error) {
	data, err := sonic.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// FormatCSV renders the report as CSV rows
func FormatCSV(reports []JumpReport) string {
	var sb strings.Builder
	sb.WriteString("statistic_id,period,at,prev_last,first_sum,jump,anomalous\n")
	for _, report := range reports {
		for _, j := range report.Jumps {
			fmt.Fprintf(&sb, "%s,%s,%s,%.4f,%.4f,%.4f,%t\n",
				report.StatisticID, j.Period, j.At.Format(time.RFC3339),
				j.PrevLast, j.FirstSum, j.Jump, j.Anomalous)
		}
	}
	return sb.String()
}

// Format dispatches on the requested output format
func Format(format string, reports []JumpReport) (string, error) {
	switch strings.ToLower(format) {
	case "", "table":
		return FormatTable(reports), nil
	case "json":
		return FormatJSON(reports)
	case "csv":
		return FormatCSV(reports), nil
	default:
		return "", fmt.Errorf("unknown output format: %s", format)
	}
}
