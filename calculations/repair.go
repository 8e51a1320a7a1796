package calculations

import (
	"math"
	"time"

	"github.com/gridstat/gridstat/models"
)

// BoundaryJump describes the transition into one calendar-month period
type BoundaryJump struct {
	Period    models.MonthKey `json:"period"`    // the month being entered
	At        time.Time       `json:"at"`        // timestamp of the month's first reading
	PrevLast  float64         `json:"prev_last"` // last raw sum of the previous month
	FirstSum  float64         `json:"first_sum"` // first raw sum of this month
	Jump      float64         `json:"jump"`      // FirstSum - PrevLast
	Anomalous bool            `json:"anomalous"` // |Jump| exceeds the threshold
}

// Repairer rewrites cumulative series whose running total was reset at
// month boundaries instead of continuing. The threshold separates real
// consumption steps from corrupted resets.
type Repairer struct {
	threshold float64
	location  *time.Location
}

// NewRepairer creates a repairer with the given anomaly threshold and the
// timezone used to assign readings to calendar months.
func NewRepairer(threshold float64, loc *time.Location) *Repairer {
	if threshold <= 0 {
		threshold = models.DefaultJumpThreshold
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Repairer{threshold: threshold, location: loc}
}

// DetectJumps computes every month-boundary transition of an ordered series
// and flags the anomalous ones. Pure inspection, no side effects.
func (r *Repairer) DetectJumps(series models.Series) []BoundaryJump {
	groups := GroupByMonth(series, r.location)

	var jumps []BoundaryJump
	for i := 1; i < len(groups); i++ {
		prevLast := groups[i-1].Readings[len(groups[i-1].Readings)-1]
		first := groups[i].Readings[0]
		jump := first.Sum - prevLast.Sum

		jumps = append(jumps, BoundaryJump{
			Period:    groups[i].Key,
			At:        first.Timestamp,
			PrevLast:  prevLast.Sum,
			FirstSum:  first.Sum,
			Jump:      jump,
			Anomalous: math.Abs(jump) > r.threshold,
		})
	}
	return jumps
}

// AnomalousJumps returns only the boundaries whose jump exceeds the threshold
func (r *Repairer) AnomalousJumps(series models.Series) []BoundaryJump {
	var out []BoundaryJump
	for _, j := range r.DetectJumps(series) {
		if j.Anomalous {
			out = append(out, j)
		}
	}
	return out
}

// Repair rewrites the series into a single continuous cumulative sequence.
//
// The walk keeps a running offset, initially zero. At each month boundary
// the raw jump is inspected: a jump within the threshold is real
// consumption and leaves the offset untouched, while an anomalous jump is
// a corrupted reset, and the offset absorbs it so that the corrected month
// opens exactly where the corrected previous month closed. Every reading
// then gets the current offset added, which leaves all intra-month deltas
// identical to the raw data.
//
// The result has the same length and timestamps as the input; only sums
// change. An empty series repairs to an empty series. A series with no
// anomalous boundaries comes back unchanged.
func (r *Repairer) Repair(series models.Series) models.Series {
	corrected := make(models.Series, 0, len(series))
	if len(series) == 0 {
		return corrected
	}

	groups := GroupByMonth(series, r.location)
	offset := 0.0

	for i, group := range groups {
		if i > 0 {
			prev := groups[i-1].Readings
			rawJump := group.Readings[0].Sum - prev[len(prev)-1].Sum
			if math.Abs(rawJump) > r.threshold {
				// Cancel the corrupted jump entirely: the corrected
				// month starts at the previous corrected value.
				offset -= rawJump
			}
		}
		for _, reading := range group.Readings {
			corrected = append(corrected, models.Reading{
				Timestamp: reading.Timestamp,
				Sum:       reading.Sum + offset,
			})
		}
	}
	return corrected
}

// Threshold returns the configured anomaly threshold
func (r *Repairer) Threshold() float64 {
	return r.threshold
}
