package calculations

import (
	"testing"
	"time"

	"github.com/gridstat/gridstat/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(t *testing.T, value string, sum float64) models.Reading {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	require.NoError(t, err)
	return models.Reading{Timestamp: ts, Sum: sum}
}

func TestRepair_AnomalousMonthBoundary(t *testing.T) {
	// Known corruption shape: the running total was reset at the month
	// boundary, producing a spurious spike of 4900.
	series := models.Series{
		reading(t, "2025-01-31 23:00", 100),
		reading(t, "2025-02-01 00:00", 5000),
		reading(t, "2025-02-01 01:00", 5015),
	}

	r := NewRepairer(1000, time.UTC)

	jumps := r.DetectJumps(series)
	require.Len(t, jumps, 1)
	assert.Equal(t, models.MonthKey{Year: 2025, Month: time.February}, jumps[0].Period)
	assert.InDelta(t, 4900, jumps[0].Jump, 1e-9)
	assert.True(t, jumps[0].Anomalous)

	corrected := r.Repair(series)
	require.Len(t, corrected, 3)
	assert.InDelta(t, 100, corrected[0].Sum, 1e-9)
	assert.InDelta(t, 100, corrected[1].Sum, 1e-9)
	assert.InDelta(t, 115, corrected[2].Sum, 1e-9)
}

func TestRepair_CleanBoundaryIsNoOp(t *testing.T) {
	series := models.Series{
		reading(t, "2025-01-31 23:00", 100),
		reading(t, "2025-02-01 00:00", 102),
	}

	r := NewRepairer(1000, time.UTC)

	jumps := r.DetectJumps(series)
	require.Len(t, jumps, 1)
	assert.False(t, jumps[0].Anomalous)
	assert.Empty(t, r.AnomalousJumps(series))

	assert.Equal(t, series, r.Repair(series))
}

func TestRepair_EmptyAndSingle(t *testing.T) {
	r := NewRepairer(1000, time.UTC)

	assert.Empty(t, r.Repair(nil))
	assert.Empty(t, r.DetectJumps(nil))

	single := models.Series{reading(t, "2025-03-10 12:00", 42)}
	assert.Equal(t, single, r.Repair(single))
	assert.Empty(t, r.DetectJumps(single))
}

func TestRepair_OffsetCarriesAcrossLaterMonths(t *testing.T) {
	// One corrupted reset in February; March continues from February's
	// corrupted baseline, so the same offset must keep applying.
	series := models.Series{
		reading(t, "2025-01-31 22:00", 4990),
		reading(t, "2025-01-31 23:00", 5000),
		reading(t, "2025-02-01 00:00", 10),  // reset: drop of 4990
		reading(t, "2025-02-28 23:00", 400),
		reading(t, "2025-03-01 00:00", 405), // clean boundary on corrupted baseline
		reading(t, "2025-03-01 01:00", 412),
	}

	r := NewRepairer(1000, time.UTC)
	corrected := r.Repair(series)

	require.Len(t, corrected, len(series))
	assert.InDelta(t, 5000, corrected[1].Sum, 1e-9)
	assert.InDelta(t, 5000, corrected[2].Sum, 1e-9) // boundary jump cancelled
	assert.InDelta(t, 5390, corrected[3].Sum, 1e-9)
	assert.InDelta(t, 5395, corrected[4].Sum, 1e-9) // clean jump preserved
	assert.InDelta(t, 5402, corrected[5].Sum, 1e-9)

	// Post-repair the series is non-decreasing throughout
	for i := 1; i < len(corrected); i++ {
		assert.GreaterOrEqual(t, corrected[i].Sum, corrected[i-1].Sum)
	}
}

func TestRepair_ConsecutiveAnomalies(t *testing.T) {
	series := models.Series{
		reading(t, "2025-01-31 23:00", 5000),
		reading(t, "2025-02-01 00:00", 100),  // reset down
		reading(t, "2025-02-28 23:00", 400),
		reading(t, "2025-03-01 00:00", 5500), // spike back up
		reading(t, "2025-03-01 01:00", 5510),
	}

	r := NewRepairer(1000, time.UTC)
	corrected := r.Repair(series)

	assert.InDelta(t, 5000, corrected[1].Sum, 1e-9)
	assert.InDelta(t, 5300, corrected[2].Sum, 1e-9)
	assert.InDelta(t, 5300, corrected[3].Sum, 1e-9)
	assert.InDelta(t, 5310, corrected[4].Sum, 1e-9)

	// No residual anomalous boundary after repair
	assert.Empty(t, r.AnomalousJumps(corrected))
}

func TestRepair_DeltaInvariance(t *testing.T) {
	series := models.Series{
		reading(t, "2025-01-31 21:00", 80),
		reading(t, "2025-01-31 22:00", 91),
		reading(t, "2025-01-31 23:00", 100),
		reading(t, "2025-02-01 00:00", 5000),
		reading(t, "2025-02-01 01:00", 5015),
		reading(t, "2025-02-01 02:00", 5027),
	}

	r := NewRepairer(1000, time.UTC)
	corrected := r.Repair(series)
	require.Len(t, corrected, len(series))

	loc := time.UTC
	for i := 1; i < len(series); i++ {
		if models.MonthOf(series[i].Timestamp, loc) != models.MonthOf(series[i-1].Timestamp, loc) {
			continue
		}
		originalDelta := series[i].Sum - series[i-1].Sum
		correctedDelta := corrected[i].Sum - corrected[i-1].Sum
		assert.InDelta(t, originalDelta, correctedDelta, 1e-9,
			"intra-month delta changed at index %d", i)
	}
}

func TestRepair_TimestampAndLengthPreserved(t *testing.T) {
	series := models.Series{
		reading(t, "2025-01-31 23:00", 100),
		reading(t, "2025-02-01 00:00", 5000),
		reading(t, "2025-02-01 01:00", 5015),
	}

	corrected := NewRepairer(1000, time.UTC).Repair(series)

	require.Len(t, corrected, len(series))
	assert.Equal(t, series.Timestamps(), corrected.Timestamps())
}

func TestRepair_IdempotentOnRepairedSeries(t *testing.T) {
	series := models.Series{
		reading(t, "2025-01-31 23:00", 100),
		reading(t, "2025-02-01 00:00", 5000),
		reading(t, "2025-02-01 01:00", 5015),
	}

	r := NewRepairer(1000, time.UTC)
	once := r.Repair(series)
	twice := r.Repair(once)

	assert.Equal(t, once, twice)
}

func TestRepair_NegativeSpikeThresholdIsAbsolute(t *testing.T) {
	series := models.Series{
		reading(t, "2025-01-31 23:00", 3000),
		reading(t, "2025-02-01 00:00", 5),
	}

	r := NewRepairer(1000, time.UTC)
	jumps := r.DetectJumps(series)
	require.Len(t, jumps, 1)
	assert.InDelta(t, -2995, jumps[0].Jump, 1e-9)
	assert.True(t, jumps[0].Anomalous)

	corrected := r.Repair(series)
	assert.InDelta(t, 3000, corrected[1].Sum, 1e-9)
}

func TestGroupByMonth(t *testing.T) {
	series := models.Series{
		reading(t, "2025-01-31 23:00", 1),
		reading(t, "2025-02-01 00:00", 2),
		reading(t, "2025-02-15 00:00", 3),
		reading(t, "2025-04-01 00:00", 4), // gap months produce no empty groups
	}

	groups := GroupByMonth(series, time.UTC)
	require.Len(t, groups, 3)
	assert.Equal(t, models.MonthKey{Year: 2025, Month: time.January}, groups[0].Key)
	assert.Len(t, groups[1].Readings, 2)
	assert.Equal(t, models.MonthKey{Year: 2025, Month: time.April}, groups[2].Key)
}

func TestNewRepairer_Defaults(t *testing.T) {
	r := NewRepairer(0, nil)
	assert.Equal(t, models.DefaultJumpThreshold, r.Threshold())
}
