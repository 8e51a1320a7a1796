package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridstat/gridstat/models"
	"github.com/gridstat/gridstat/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArtifact() *Artifact {
	base := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	return &Artifact{
		Version:       models.SchemaVersionInitial,
		CreatedAt:     time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
		Source:        "IT001E12345678",
		ConsumptionID: models.StatisticID("IT001E12345678", models.MetricEnergy),
		CostID:        models.StatisticID("IT001E12345678", models.MetricCost),
		Consumption: models.Series{
			{Timestamp: base, Sum: 100},
			{Timestamp: base.Add(time.Hour), Sum: 5000},
		},
		Cost: models.Series{
			{Timestamp: base, Sum: 33},
			{Timestamp: base.Add(time.Hour), Sum: 1650},
		},
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "gridstat_backup_it001e12345678_v1.json",
		Filename("IT001E12345678", 1))
	assert.Equal(t, "gridstat_backup_it001e_1234_v2.json",
		Filename("IT001e-1234", 2))
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	artifact := testArtifact()

	path, err := Write(dir, artifact)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gridstat_backup_it001e12345678_v1.json"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, artifact.Source, loaded.Source)
	assert.Equal(t, artifact.ConsumptionID, loaded.ConsumptionID)
	require.Len(t, loaded.Consumption, 2)
	assert.Equal(t, artifact.Consumption[1].Sum, loaded.Consumption[1].Sum)
	assert.True(t, artifact.Consumption[0].Timestamp.Equal(loaded.Consumption[0].Timestamp))
	require.Len(t, loaded.Cost, 2)
}

func TestWrite_NoStrayTempFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := Write(dir, testArtifact())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gridstat_backup_it001e12345678_v1.json", entries[0].Name())
}

func TestWrite_RejectsInvalidArtifact(t *testing.T) {
	dir := t.TempDir()

	artifact := testArtifact()
	artifact.Source = ""

	_, err := Write(dir, artifact)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Artifact)
		valid  bool
	}{
		{"complete", func(a *Artifact) {}, true},
		{"missing version", func(a *Artifact) { a.Version = 0 }, false},
		{"missing timestamp", func(a *Artifact) { a.CreatedAt = time.Time{} }, false},
		{"missing source", func(a *Artifact) { a.Source = "" }, false},
		{"missing consumption id", func(a *Artifact) { a.ConsumptionID = "" }, false},
		{"empty consumption", func(a *Artifact) { a.Consumption = nil }, false},
		{"cost without cost id", func(a *Artifact) { a.CostID = "" }, false},
		{"no cost series at all", func(a *Artifact) { a.CostID = ""; a.Cost = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifact := testArtifact()
			tt.mutate(artifact)

			err := artifact.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidArtifact)
			}
		})
	}
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "statistics.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	artifact := testArtifact()

	_, err = s.EnsureMetadata(ctx, store.Metadata{
		StatisticID: artifact.ConsumptionID, Source: artifact.Source,
		Name: "Consumption", Unit: "kWh", HasSum: true,
	})
	require.NoError(t, err)
	_, err = s.EnsureMetadata(ctx, store.Metadata{
		StatisticID: artifact.CostID, Source: artifact.Source,
		Name: "Cost", Unit: "EUR", HasSum: true,
	})
	require.NoError(t, err)

	// Simulate a repair having rewritten the stored values
	_, err = s.UpsertPoints(ctx, artifact.ConsumptionID, models.Series{
		{Timestamp: artifact.Consumption[1].Timestamp, Sum: 100},
	})
	require.NoError(t, err)

	result, err := Restore(ctx, s, artifact)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ConsumptionPoints)
	assert.Equal(t, 2, result.CostPoints)

	stored, err := s.ReadAll(ctx, artifact.ConsumptionID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 5000.0, stored[1].Sum)
}
