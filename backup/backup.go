// Package backup creates and restores snapshot artifacts of stored
// statistics. An artifact is written before any destructive rewrite and is
// self-describing, so it can be inspected and restored offline without any
// other runtime state.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gridstat/gridstat/models"
)

// ErrInvalidArtifact is returned when a backup file is missing required fields
var ErrInvalidArtifact = errors.New("invalid backup artifact")

// Artifact is the on-disk snapshot of a metering point's statistics taken
// before a repair rewrote them.
type Artifact struct {
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"backup_timestamp"`
	Source        string        `json:"pod"`
	ConsumptionID string        `json:"statistic_id_consumption"`
	CostID        string        `json:"statistic_id_cost,omitempty"`
	Consumption   models.Series `json:"original_statistics"`
	Cost          models.Series `json:"original_cost_statistics,omitempty"`
}

// Filename derives the deterministic artifact name for a metering point
// and schema version, e.g. "gridstat_backup_it001e12345678_v1.json".
func Filename(source string, version int) string {
	normalized := strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToLower(source))
	return fmt.Sprintf("gridstat_backup_%s_v%d.json", normalized, version)
}

// Validate checks that the artifact carries every field a restore needs
func (a *Artifact) Validate() error {
	var missing []string
	if a.Version == 0 {
		missing = append(missing, "version")
	}
	if a.CreatedAt.IsZero() {
		missing = append(missing, "backup_timestamp")
	}
	if a.Source == "" {
		missing = append(missing, "pod")
	}
	if a.ConsumptionID == "" {
		missing = append(missing, "statistic_id_consumption")
	}
	if len(a.Consumption) == 0 {
		missing = append(missing, "original_statistics")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidArtifact, strings.Join(missing, ", "))
	}
	if len(a.Cost) > 0 && a.CostID == "" {
		return fmt.Errorf("%w: cost statistics present without statistic_id_cost", ErrInvalidArtifact)
	}
	return nil
}

// Write persists the artifact under dir and returns the full path. The
// write is durable before it returns: content goes to a temporary file,
// is fsynced, and is renamed into place.
func Write(dir string, artifact *Artifact) (string, error) {
	if err := artifact.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	data, err := sonic.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup artifact: %w", err)
	}

	path := filepath.Join(dir, Filename(artifact.Source, artifact.Version))

	tmp, err := os.CreateTemp(dir, ".gridstat_backup_*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary backup file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write backup artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync backup artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close backup artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to finalize backup artifact: %w", err)
	}

	return path, nil
}

// Load reads and validates an artifact from disk
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup artifact: %w", err)
	}

	var artifact Artifact
	if err := sonic.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse backup artifact %s: %w", path, err)
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &artifact, nil
}
