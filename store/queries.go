package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gridstat/gridstat/models"
)

// ErrUnknownStatistic is returned when no metadata row exists for a statistic id
var ErrUnknownStatistic = errors.New("unknown statistic id")

// Metadata describes one stored statistic
type Metadata struct {
	StatisticID string
	Source      string
	Name        string
	Unit        string
	HasSum      bool
}

// PointError reports one point that failed to persist during an upsert
type PointError struct {
	Timestamp time.Time
	Err       error
}

// UpsertResult summarizes a batch upsert, including per-point failures
type UpsertResult struct {
	Written int
	Failed  []PointError
}

// EnsureMetadata creates the metadata row for a statistic if missing and
// returns its id.
func (s *Store) EnsureMetadata(ctx context.Context, meta Metadata) (int64, error) {
	hasSum := 0
	if meta.HasSum {
		hasSum = 1
	}

	_, err := s.ExecContext(ctx,
		`INSERT INTO statistics_meta (statistic_id, source, name, unit_of_measurement, has_sum)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(statistic_id) DO NOTHING`,
		meta.StatisticID, meta.Source, meta.Name, meta.Unit, hasSum)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure metadata for %s: %w", meta.StatisticID, err)
	}

	var id int64
	err = s.QueryRowContext(ctx,
		`SELECT id FROM statistics_meta WHERE statistic_id = ?`, meta.StatisticID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to look up metadata for %s: %w", meta.StatisticID, err)
	}
	return id, nil
}

func (s *Store) metadataID(ctx context.Context, statisticID string) (int64, error) {
	var id int64
	err := s.QueryRowContext(ctx,
		`SELECT id FROM statistics_meta WHERE statistic_id = ?`, statisticID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStatistic, statisticID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up metadata for %s: %w", statisticID, err)
	}
	return id, nil
}

// ReadAll returns every stored point for a statistic, ordered by timestamp
func (s *Store) ReadAll(ctx context.Context, statisticID string) (models.Series, error) {
	id, err := s.metadataID(ctx, statisticID)
	if err != nil {
		return nil, err
	}

	rows, err := s.QueryContext(ctx,
		`SELECT start, sum FROM statistics WHERE metadata_id = ? ORDER BY start ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read statistics for %s: %w", statisticID, err)
	}
	defer rows.Close()

	var series models.Series
	for rows.Next() {
		var start int64
		var sum float64
		if err := rows.Scan(&start, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan statistics row: %w", err)
		}
		series = append(series, models.Reading{
			Timestamp: time.Unix(start, 0).UTC(),
			Sum:       sum,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statistics for %s: %w", statisticID, err)
	}
	return series, nil
}

// LastPoint returns the most recent stored point for a statistic. The
// boolean is false when no points exist yet.
func (s *Store) LastPoint(ctx context.Context, statisticID string) (models.Reading, bool, error) {
	id, err := s.metadataID(ctx, statisticID)
	if err != nil {
		if errors.Is(err, ErrUnknownStatistic) {
			return models.Reading{}, false, nil
		}
		return models.Reading{}, false, err
	}

	var start int64
	var sum float64
	err = s.QueryRowContext(ctx,
		`SELECT start, sum FROM statistics WHERE metadata_id = ? ORDER BY start DESC LIMIT 1`, id).
		Scan(&start, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reading{}, false, nil
	}
	if err != nil {
		return models.Reading{}, false, fmt.Errorf("failed to read last point for %s: %w", statisticID, err)
	}
	return models.Reading{Timestamp: time.Unix(start, 0).UTC(), Sum: sum}, true, nil
}

// UpsertPoints writes points for a statistic, overwriting any existing sum
// at the same timestamp. Failures are collected per point so callers can
// report exactly which records did not land.
func (s *Store) UpsertPoints(ctx context.Context, statisticID string, series models.Series) (UpsertResult, error) {
	var result UpsertResult

	id, err := s.metadataID(ctx, statisticID)
	if err != nil {
		return result, err
	}

	stmt, err := s.PrepareContext(ctx,
		`INSERT INTO statistics (metadata_id, start, sum) VALUES (?, ?, ?)
		 ON CONFLICT(metadata_id, start) DO UPDATE SET sum = excluded.sum`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare upsert for %s: %w", statisticID, err)
	}
	defer stmt.Close()

	for _, point := range series {
		if _, err := stmt.ExecContext(ctx, id, point.Timestamp.UTC().Unix(), point.Sum); err != nil {
			result.Failed = append(result.Failed, PointError{Timestamp: point.Timestamp, Err: err})
			continue
		}
		result.Written++
	}

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("upsert for %s wrote %d of %d points",
			statisticID, result.Written, len(series))
	}
	return result, nil
}

// SourceVersion returns the stored schema version for a metering point,
// defaulting to the initial version when none has been recorded.
func (s *Store) SourceVersion(ctx context.Context, source string) (int, error) {
	var version int
	err := s.QueryRowContext(ctx,
		`SELECT version FROM source_versions WHERE source = ?`, source).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SchemaVersionInitial, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version for %s: %w", source, err)
	}
	return version, nil
}

// SetSourceVersion records the schema version for a metering point
func (s *Store) SetSourceVersion(ctx context.Context, source string, version int) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO source_versions (source, version) VALUES (?, ?)
		 ON CONFLICT(source) DO UPDATE SET version = excluded.version`,
		source, version)
	if err != nil {
		return fmt.Errorf("failed to set schema version for %s: %w", source, err)
	}
	return nil
}
