package calculations

import (
	"time"

	"github.com/gridstat/gridstat/models"
)

// MonthGroup is one calendar-month slice of a series
type MonthGroup struct {
	Key      models.MonthKey
	Readings models.Series
}

// GroupByMonth partitions an ordered series into consecutive calendar-month
// groups in the given timezone. The input must already be sorted by
// timestamp; groups come out in chronological order.
func GroupByMonth(series models.Series, loc *time.Location) []MonthGroup {
	if loc == nil {
		loc = time.UTC
	}

	var groups []MonthGroup
	for _, reading := range series {
		key := models.MonthOf(reading.Timestamp, loc)
		if n := len(groups); n > 0 && groups[n-1].Key == key {
			groups[n-1].Readings = append(groups[n-1].Readings, reading)
			continue
		}
		groups = append(groups, MonthGroup{
			Key:      key,
			Readings: models.Series{reading},
		})
	}
	return groups
}
