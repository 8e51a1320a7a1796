// Package migration runs the one-time, version-gated repair of historical
// cumulative statistics. Early importer versions reset the running total at
// month boundaries instead of continuing it; this rewrites the stored
// series into one continuous sequence, after snapshotting the originals.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gridstat/gridstat/backup"
	"github.com/gridstat/gridstat/calculations"
	"github.com/gridstat/gridstat/logging"
	"github.com/gridstat/gridstat/models"
	"github.com/gridstat/gridstat/store"
)

// State tracks how far a migration run progressed
type State int

const (
	StateNotMigrated State = iota
	StateBackedUp
	StateCorrected
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateNotMigrated:
		return "not-migrated"
	case StateBackedUp:
		return "backed-up"
	case StateCorrected:
		return "corrected"
	case StateCommitted:
		return "committed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome summarizes a migration run
type Outcome struct {
	State             State
	Skipped           bool // already at or past the target version
	BackupPath        string
	Jumps             []calculations.BoundaryJump
	ConsumptionPoints int
	CostPoints        int
	FailedPoints      []store.PointError
}

// Runner drives the repair for one metering point
type Runner struct {
	store         *store.Store
	repairer      *calculations.Repairer
	backupDir     string
	targetVersion int
	now           func() time.Time
}

// NewRunner creates a migration runner. The repair is applied when the
// metering point's stored schema version is below targetVersion.
func NewRunner(s *store.Store, repairer *calculations.Repairer, backupDir string, targetVersion int) *Runner {
	return &Runner{
		store:         s,
		repairer:      repairer,
		backupDir:     backupDir,
		targetVersion: targetVersion,
		now:           time.Now,
	}
}

// Run executes the migration for a metering point. It is idempotent: once
// the stored schema version reaches the target, later calls skip the whole
// repair. Any failure before commit leaves the version marker untouched so
// the migration stays pending for the next invocation.
func (r *Runner) Run(ctx context.Context, pod string) (*Outcome, error) {
	outcome := &Outcome{State: StateNotMigrated}
	log := logging.GetLogger()

	version, err := r.store.SourceVersion(ctx, pod)
	if err != nil {
		return outcome, err
	}
	if version >= r.targetVersion {
		log.Debugf("Statistics for %s already at schema version %d, skipping repair", pod, version)
		outcome.State = StateCommitted
		outcome.Skipped = true
		return outcome, nil
	}

	log.Infof("Starting statistics repair for %s (schema version %d -> %d)", pod, version, r.targetVersion)

	consumptionID := models.StatisticID(pod, models.MetricEnergy)
	costID := models.StatisticID(pod, models.MetricCost)

	consumption, err := r.readSeries(ctx, consumptionID)
	if err != nil {
		return outcome, err
	}
	cost, err := r.readSeries(ctx, costID)
	if err != nil {
		return outcome, err
	}

	if len(consumption) == 0 {
		// Nothing stored yet: no repair needed, but the version still
		// advances so the check is never repeated.
		log.Infof("No historical statistics found for %s, marking schema version %d", pod, r.targetVersion)
		if err := r.store.SetSourceVersion(ctx, pod, r.targetVersion); err != nil {
			return outcome, err
		}
		outcome.State = StateCommitted
		return outcome, nil
	}

	outcome.Jumps = r.repairer.DetectJumps(consumption)
	for _, jump := range outcome.Jumps {
		if jump.Anomalous {
			log.Infof("Found anomalous jump entering %s: %.2f -> %.2f (jump %.2f)",
				jump.Period, jump.PrevLast, jump.FirstSum, jump.Jump)
		}
	}

	artifact := &backup.Artifact{
		Version:       version,
		CreatedAt:     r.now().UTC(),
		Source:        pod,
		ConsumptionID: consumptionID,
		Consumption:   consumption,
	}
	if len(cost) > 0 {
		artifact.CostID = costID
		artifact.Cost = cost
	}

	backupPath, err := backup.Write(r.backupDir, artifact)
	if err != nil {
		return outcome, fmt.Errorf("backup must exist before any rewrite, aborting: %w", err)
	}
	outcome.State = StateBackedUp
	outcome.BackupPath = backupPath
	log.Infof("Backed up %d original statistics to %s", len(consumption), backupPath)

	// The two series are repaired independently, each from its own deltas
	// and with its own offset, over the same month boundaries.
	correctedConsumption := r.repairer.Repair(consumption)
	correctedCost := r.repairer.Repair(cost)
	outcome.State = StateCorrected

	result, err := r.store.UpsertPoints(ctx, consumptionID, correctedConsumption)
	outcome.ConsumptionPoints = result.Written
	outcome.FailedPoints = append(outcome.FailedPoints, result.Failed...)
	if err != nil {
		return outcome, fmt.Errorf("repair write failed, restore from %s if needed: %w", backupPath, err)
	}

	if len(correctedCost) > 0 {
		result, err = r.store.UpsertPoints(ctx, costID, correctedCost)
		outcome.CostPoints = result.Written
		outcome.FailedPoints = append(outcome.FailedPoints, result.Failed...)
		if err != nil {
			return outcome, fmt.Errorf("cost repair write failed, restore from %s if needed: %w", backupPath, err)
		}
	}

	if err := r.store.SetSourceVersion(ctx, pod, r.targetVersion); err != nil {
		return outcome, fmt.Errorf("repair written but version marker not advanced: %w", err)
	}
	outcome.State = StateCommitted

	log.Infof("Statistics repair for %s complete: %d consumption and %d cost points rewritten",
		pod, outcome.ConsumptionPoints, outcome.CostPoints)
	return outcome, nil
}

// readSeries loads a statistic, treating "never created" as empty. A series
// with disordered timestamps aborts the migration before anything is written.
func (r *Runner) readSeries(ctx context.Context, statisticID string) (models.Series, error) {
	series, err := r.store.ReadAll(ctx, statisticID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownStatistic) {
			return nil, nil
		}
		return nil, err
	}
	if err := series.ValidateOrdering(); err != nil {
		return nil, fmt.Errorf("refusing to repair %s: %w", statisticID, err)
	}
	return series, nil
}
