// Package portal is the boundary to the utility provider. How readings are
// obtained (portal login, session handling) stays behind the Fetcher
// interface; this package only understands the provider's aggregation
// payload format.
package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gridstat/gridstat/models"
)

// ErrNoHourlyData is returned when a payload carries no hourly aggregation
var ErrNoHourlyData = errors.New("no hourly consumption data found in payload")

// hourlyReferenceID selects the hourly aggregation among those the portal returns
const hourlyReferenceID = "hourlyConsumption"

// payloadDateFormat is the provider's day encoding (DDMMYYYY)
const payloadDateFormat = "02012006"

// Payload mirrors the provider's consumption response
type Payload struct {
	Data struct {
		AggregationResult struct {
			Aggregations []Aggregation `json:"aggregations"`
		} `json:"aggregationResult"`
	} `json:"data"`
}

// Aggregation is one aggregation block of the response
type Aggregation struct {
	ReferenceID string      `json:"referenceID"`
	Results     []DayResult `json:"results"`
}

// DayResult holds one day of hourly bins
type DayResult struct {
	Date      string `json:"date"`
	BinValues []Bin  `json:"binValues"`
}

// Bin is a single hourly value, named "h1" through "h24"
type Bin struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Fetcher obtains a raw consumption payload for a date range. The concrete
// implementation owns authentication and transport.
type Fetcher interface {
	FetchConsumption(ctx context.Context, from, to time.Time) ([]byte, error)
}

// FileFetcher serves a payload previously saved to disk, for imports
// without portal access and for tests.
type FileFetcher struct {
	Path string
}

// FetchConsumption reads the saved payload file; the date range is ignored
func (f *FileFetcher) FetchConsumption(ctx context.Context, from, to time.Time) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload file: %w", err)
	}
	return data, nil
}

// ParseHourly extracts the hourly readings from a raw payload, ordered by
// timestamp, with a running cumulative total carried across days. The
// location fixes which wall clock the provider's day/hour labels refer to.
func ParseHourly(raw []byte, loc *time.Location) ([]models.HourlyReading, error) {
	if loc == nil {
		loc = time.UTC
	}

	var payload Payload
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse consumption payload: %w", err)
	}

	var hourly *Aggregation
	for i := range payload.Data.AggregationResult.Aggregations {
		if payload.Data.AggregationResult.Aggregations[i].ReferenceID == hourlyReferenceID {
			hourly = &payload.Data.AggregationResult.Aggregations[i]
			break
		}
	}
	if hourly == nil {
		return nil, ErrNoHourlyData
	}

	days := make([]DayResult, len(hourly.Results))
	copy(days, hourly.Results)

	type parsedDay struct {
		date time.Time
		bins []Bin
	}
	parsed := make([]parsedDay, 0, len(days))
	for _, day := range days {
		date, err := time.ParseInLocation(payloadDateFormat, day.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid day %q in payload: %w", day.Date, err)
		}
		parsed = append(parsed, parsedDay{date: date, bins: day.BinValues})
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].date.Before(parsed[j].date) })

	var readings []models.HourlyReading
	runningTotal := 0.0

	for _, day := range parsed {
		bins := make([]Bin, len(day.bins))
		copy(bins, day.bins)

		hours := make([]int, len(bins))
		for i, bin := range bins {
			hour, err := parseBinHour(bin.Name)
			if err != nil {
				return nil, err
			}
			hours[i] = hour
		}
		sort.Sort(&binsByHour{bins: bins, hours: hours})

		for i, bin := range bins {
			runningTotal += bin.Value
			readings = append(readings, models.HourlyReading{
				Timestamp:  day.date.Add(time.Duration(hours[i]) * time.Hour),
				Delta:      bin.Value,
				Cumulative: runningTotal,
			})
		}
	}

	return readings, nil
}

// parseBinHour maps a bin name like "h1" to the zero-based hour of day
func parseBinHour(name string) (int, error) {
	if len(name) < 2 || name[0] != 'h' {
		return 0, fmt.Errorf("invalid bin name %q in payload", name)
	}
	n := 0
	for _, c := range name[1:] {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid bin name %q in payload", name)
		}
		n = n*10 + int(c-'0')
	}
	if n < 1 || n > 24 {
		return 0, fmt.Errorf("bin %q outside h1..h24 range", name)
	}
	return n - 1, nil
}

type binsByHour struct {
	bins  []Bin
	hours []int
}

func (b *binsByHour) Len() int           { return len(b.bins) }
func (b *binsByHour) Less(i, j int) bool { return b.hours[i] < b.hours[j] }
func (b *binsByHour) Swap(i, j int) {
	b.bins[i], b.bins[j] = b.bins[j], b.bins[i]
	b.hours[i], b.hours[j] = b.hours[j], b.hours[i]
}
