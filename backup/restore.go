package backup

import (
	"context"
	"fmt"

	"github.com/gridstat/gridstat/store"
)

// RestoreResult reports how many points each series restored
type RestoreResult struct {
	ConsumptionPoints int
	CostPoints        int
}

// Restore writes the artifact's original statistics back to the store,
// overwriting whatever a repair (or a failed repair) left behind. The
// caller is expected to reset the source's schema version afterwards if
// the repair should run again.
func Restore(ctx context.Context, s *store.Store, artifact *Artifact) (RestoreResult, error) {
	var result RestoreResult

	if err := artifact.Validate(); err != nil {
		return result, err
	}

	consumption, err := s.UpsertPoints(ctx, artifact.ConsumptionID, artifact.Consumption)
	if err != nil {
		return result, fmt.Errorf("failed to restore consumption statistics: %w", err)
	}
	result.ConsumptionPoints = consumption.Written

	if artifact.CostID != "" && len(artifact.Cost) > 0 {
		cost, err := s.UpsertPoints(ctx, artifact.CostID, artifact.Cost)
		if err != nil {
			return result, fmt.Errorf("failed to restore cost statistics: %w", err)
		}
		result.CostPoints = cost.Written
	}

	return result, nil
}
