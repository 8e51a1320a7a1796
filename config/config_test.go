package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 1000.0, cfg.Repair.JumpThreshold)
	assert.Equal(t, 0.33, cfg.Source.PricePerKWH)
	assert.Equal(t, 24*time.Hour, cfg.Import.Interval)
	assert.True(t, cfg.Cache.Enabled)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.NotEmpty(t, cfg.Repair.BackupDir)
}

func TestFromViper_ConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridstat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  pod: IT001E12345678
  price_per_kwh: 0.25
repair:
  jump_threshold: 500
app:
  timezone: UTC
`), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "IT001E12345678", cfg.Source.POD)
	assert.Equal(t, 0.25, cfg.Source.PricePerKWH)
	assert.Equal(t, 500.0, cfg.Repair.JumpThreshold)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := FromViper(v)
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	cfg.Source.PricePerKWH = -1
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Repair.JumpThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Import.Interval = time.Second
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.App.Timezone = "Not/AZone"
	assert.Error(t, cfg.Validate())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridstat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  pod: FIRST\n"), 0o644))

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Equal(t, "FIRST", w.Current().Source.POD)

	// Rewrite the file after the debounce window
	time.Sleep(600 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("source:\n  pod: SECOND\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "SECOND", cfg.Source.POD)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}

	assert.Equal(t, "SECOND", w.Current().Source.POD)
}

func TestWatcher_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Equal(t, 1000.0, w.Current().Repair.JumpThreshold)
}
