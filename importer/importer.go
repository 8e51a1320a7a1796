// Package importer pulls hourly consumption from the portal boundary and
// appends it to the statistics store as two cumulative series: energy in
// kWh and the derived cost at the configured unit price.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/gridstat/gridstat/cache"
	"github.com/gridstat/gridstat/logging"
	"github.com/gridstat/gridstat/models"
	"github.com/gridstat/gridstat/portal"
	"github.com/gridstat/gridstat/store"
)

// Options configures an importer
type Options struct {
	POD         string
	PricePerKWH float64
	Location    *time.Location
	Lookback    time.Duration // how far back each fetch reaches
}

// Summary reports one import run
type Summary struct {
	Parsed   int
	Imported int
	Skipped  int
	CacheHit bool
	From     time.Time
	To       time.Time
}

// Importer drives incremental imports for one metering point
type Importer struct {
	store   *store.Store
	fetcher portal.Fetcher
	cache   *cache.PayloadCache
	opts    Options
	now     func() time.Time
}

// New creates an importer. The cache may be nil, in which case every run
// fetches from the portal.
func New(s *store.Store, fetcher portal.Fetcher, payloadCache *cache.PayloadCache, opts Options) *Importer {
	if opts.PricePerKWH <= 0 {
		opts.PricePerKWH = models.DefaultPricePerKWH
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 30 * 24 * time.Hour
	}
	return &Importer{
		store:   s,
		fetcher: fetcher,
		cache:   payloadCache,
		opts:    opts,
		now:     time.Now,
	}
}

// Run fetches the latest payload and imports every reading newer than the
// last stored point. Already-stored timestamps are never rewritten here;
// only the repair migration overwrites history.
func (i *Importer) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	log := logging.GetLogger()

	now := i.now()
	summary.From = now.Add(-i.opts.Lookback)
	summary.To = now

	raw, cacheHit, err := i.fetchPayload(ctx, summary.From, now)
	if err != nil {
		return summary, err
	}
	summary.CacheHit = cacheHit

	readings, err := portal.ParseHourly(raw, i.opts.Location)
	if err != nil {
		return summary, err
	}
	summary.Parsed = len(readings)
	if len(readings) == 0 {
		log.Warnf("No hourly readings in payload for %s", i.opts.POD)
		return summary, nil
	}

	energyID := models.StatisticID(i.opts.POD, models.MetricEnergy)
	costID := models.StatisticID(i.opts.POD, models.MetricCost)

	if err := i.ensureMetadata(ctx, energyID, costID); err != nil {
		return summary, err
	}

	lastEnergy, haveEnergy, err := i.store.LastPoint(ctx, energyID)
	if err != nil {
		return summary, err
	}
	lastCost, haveCost, err := i.store.LastPoint(ctx, costID)
	if err != nil {
		return summary, err
	}

	// Anchor the running totals at the last stored sums so the imported
	// window continues the meter-lifetime series instead of restarting it.
	energySum := 0.0
	if haveEnergy {
		energySum = lastEnergy.Sum
	}
	costSum := 0.0
	if haveCost {
		costSum = lastCost.Sum
	}

	var energyPoints, costPoints models.Series
	for _, reading := range readings {
		if haveEnergy && !reading.Timestamp.After(lastEnergy.Timestamp) {
			summary.Skipped++
			continue
		}
		energySum += reading.Delta
		costSum += reading.Delta * i.opts.PricePerKWH

		energyPoints = append(energyPoints, models.Reading{
			Timestamp: reading.Timestamp, Sum: energySum,
		})
		costPoints = append(costPoints, models.Reading{
			Timestamp: reading.Timestamp, Sum: costSum,
		})
	}

	if len(energyPoints) == 0 {
		log.Infof("No new readings for %s (last saved: %s)",
			energyID, lastEnergy.Timestamp.Format(time.RFC3339))
		return summary, nil
	}

	if _, err := i.store.UpsertPoints(ctx, energyID, energyPoints); err != nil {
		return summary, fmt.Errorf("failed to save consumption statistics: %w", err)
	}
	if _, err := i.store.UpsertPoints(ctx, costID, costPoints); err != nil {
		return summary, fmt.Errorf("failed to save cost statistics: %w", err)
	}
	summary.Imported = len(energyPoints)

	log.Infof("Imported %d new points for %s (%d already stored)",
		summary.Imported, energyID, summary.Skipped)
	return summary, nil
}

func (i *Importer) fetchPayload(ctx context.Context, from, to time.Time) ([]byte, bool, error) {
	var key string
	if i.cache != nil {
		key = cache.Key(i.opts.POD, to.In(i.opts.Location))
		if payload, ok, err := i.cache.Get(key); err != nil {
			logging.GetLogger().Warnf("Payload cache read failed: %v", err)
		} else if ok {
			return payload, true, nil
		}
	}

	raw, err := i.fetcher.FetchConsumption(ctx, from, to)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch consumption data: %w", err)
	}

	if i.cache != nil {
		if err := i.cache.Set(key, raw, cache.DefaultTTL); err != nil {
			logging.GetLogger().Warnf("Payload cache write failed: %v", err)
		}
	}
	return raw, false, nil
}

func (i *Importer) ensureMetadata(ctx context.Context, energyID, costID string) error {
	_, err := i.store.EnsureMetadata(ctx, store.Metadata{
		StatisticID: energyID,
		Source:      i.opts.POD,
		Name:        fmt.Sprintf("Grid %s Consumption", i.opts.POD),
		Unit:        "kWh",
		HasSum:      true,
	})
	if err != nil {
		return err
	}
	_, err = i.store.EnsureMetadata(ctx, store.Metadata{
		StatisticID: costID,
		Source:      i.opts.POD,
		Name:        fmt.Sprintf("Grid %s Cost", i.opts.POD),
		Unit:        "EUR",
		HasSum:      true,
	})
	return err
}
