package cmd

import (
	"context"
	"errors"

	"github.com/gridstat/gridstat/calculations"
	"github.com/gridstat/gridstat/models"
	"github.com/gridstat/gridstat/store"
)

// storeReader is the slice of the store the inspection commands need
type storeReader interface {
	ReadAll(ctx context.Context, statisticID string) (models.Series, error)
}

// jumpDetector is the slice of the repairer the inspection commands need
type jumpDetector interface {
	DetectJumps(series models.Series) []calculations.BoundaryJump
	Threshold() float64
}

// readSeriesLenient loads a statistic, treating "never created" as empty
func readSeriesLenient(ctx context.Context, s storeReader, statisticID string) (models.Series, error) {
	series, err := s.ReadAll(ctx, statisticID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownStatistic) {
			return nil, nil
		}
		return nil, err
	}
	return series, nil
}
