package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MetricKind identifies which measured quantity a series carries
type MetricKind string

const (
	MetricEnergy MetricKind = "energy" // cumulative consumption in kWh
	MetricCost   MetricKind = "cost"   // cumulative cost in currency units
)

// Reading is a single sample of a monotonically-intended running total
type Reading struct {
	Timestamp time.Time `json:"start"`
	Sum       float64   `json:"sum"`
}

// Series is a sequence of readings for one metric, ordered by timestamp ascending
type Series []Reading

// HourlyReading is one parsed hour of portal data: the hour's own
// consumption plus the running total accumulated across the fetched window
type HourlyReading struct {
	Timestamp  time.Time `json:"timestamp"`
	Delta      float64   `json:"kwh"`
	Cumulative float64   `json:"cumulative_kwh"`
}

// MonthKey identifies one calendar-month period of a series
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf returns the period key for a timestamp in the given timezone
func MonthOf(t time.Time, loc *time.Location) MonthKey {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return MonthKey{Year: local.Year(), Month: local.Month()}
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Before reports whether k is chronologically earlier than other
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Timestamps returns the timestamp sequence of the series
func (s Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s))
	for i, r := range s {
		out[i] = r.Timestamp
	}
	return out
}

// Clone returns a deep copy of the series
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Last returns the final reading of the series and whether one exists
func (s Series) Last() (Reading, bool) {
	if len(s) == 0 {
		return Reading{}, false
	}
	return s[len(s)-1], true
}

// ValidateOrdering verifies that timestamps are strictly increasing.
// A series that fails this check must not be repaired or written.
func (s Series) ValidateOrdering() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("series not strictly ordered: reading %d (%s) does not follow reading %d (%s)",
				i, s[i].Timestamp.Format(time.RFC3339), i-1, s[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// SortByTimestamp sorts the series in place by timestamp ascending
func (s Series) SortByTimestamp() {
	sort.Slice(s, func(i, j int) bool {
		return s[i].Timestamp.Before(s[j].Timestamp)
	})
}

// ObjectID derives the store object identifier for a metering point and metric.
// Point identifiers like "IT001E12345678" become "gridstat_it001e12345678_consumption".
func ObjectID(pod string, kind MetricKind) string {
	normalized := strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToLower(pod))
	switch kind {
	case MetricCost:
		return fmt.Sprintf("gridstat_%s_kw_cost", normalized)
	default:
		return fmt.Sprintf("gridstat_%s_consumption", normalized)
	}
}

// StatisticID derives the fully-qualified statistic identifier ("sensor:<object_id>")
func StatisticID(pod string, kind MetricKind) string {
	return fmt.Sprintf("sensor:%s", ObjectID(pod, kind))
}
