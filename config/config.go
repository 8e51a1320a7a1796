package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/gridstat/gridstat/models"
)

// Config represents the complete application configuration
type Config struct {
	App    AppConfig    `yaml:"app" json:"app"`
	Source SourceConfig `yaml:"source" json:"source"`
	Store  StoreConfig  `yaml:"store" json:"store"`
	Repair RepairConfig `yaml:"repair" json:"repair"`
	Import ImportConfig `yaml:"import" json:"import"`
	Cache  CacheConfig  `yaml:"cache" json:"cache"`
}

// AppConfig contains general application settings
type AppConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
	Timezone string `yaml:"timezone" json:"timezone"`
}

// SourceConfig identifies the metering point and its tariff
type SourceConfig struct {
	POD         string  `yaml:"pod" json:"pod"`
	PricePerKWH float64 `yaml:"price_per_kwh" json:"price_per_kwh"`
	PayloadPath string  `yaml:"payload_path" json:"payload_path"`
}

// StoreConfig locates the local statistics database
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// RepairConfig tunes the cumulative-series repair
type RepairConfig struct {
	JumpThreshold  float64 `yaml:"jump_threshold" json:"jump_threshold"`
	MaxHourlyDelta float64 `yaml:"max_hourly_delta" json:"max_hourly_delta"`
	BackupDir      string  `yaml:"backup_dir" json:"backup_dir"`
}

// ImportConfig controls the incremental import loop
type ImportConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Lookback time.Duration `yaml:"lookback" json:"lookback"`
}

// CacheConfig controls the payload cache
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// SetDefaults registers every default value on a viper instance
func SetDefaults(v *viper.Viper) {
	dataDir := defaultDataDir()

	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.timezone", "Local")

	v.SetDefault("source.pod", "")
	v.SetDefault("source.price_per_kwh", models.DefaultPricePerKWH)
	v.SetDefault("source.payload_path", "")

	v.SetDefault("store.path", filepath.Join(dataDir, "statistics.db"))

	v.SetDefault("repair.jump_threshold", models.DefaultJumpThreshold)
	v.SetDefault("repair.max_hourly_delta", models.DefaultMaxHourlyDelta)
	v.SetDefault("repair.backup_dir", filepath.Join(dataDir, "backups"))

	v.SetDefault("import.interval", 24*time.Hour)
	v.SetDefault("import.lookback", 30*24*time.Hour)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(dataDir, "cache"))
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gridstat"
	}
	return filepath.Join(home, ".gridstat")
}

// FromViper builds a Config from the viper state
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			LogLevel: v.GetString("app.log_level"),
			LogFile:  v.GetString("app.log_file"),
			Timezone: v.GetString("app.timezone"),
		},
		Source: SourceConfig{
			POD:         v.GetString("source.pod"),
			PricePerKWH: v.GetFloat64("source.price_per_kwh"),
			PayloadPath: v.GetString("source.payload_path"),
		},
		Store: StoreConfig{
			Path: v.GetString("store.path"),
		},
		Repair: RepairConfig{
			JumpThreshold:  v.GetFloat64("repair.jump_threshold"),
			MaxHourlyDelta: v.GetFloat64("repair.max_hourly_delta"),
			BackupDir:      v.GetString("repair.backup_dir"),
		},
		Import: ImportConfig{
			Interval: v.GetDuration("import.interval"),
			Lookback: v.GetDuration("import.lookback"),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool("cache.enabled"),
			Path:    v.GetString("cache.path"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Source.PricePerKWH < 0 {
		return fmt.Errorf("source.price_per_kwh must not be negative: %f", c.Source.PricePerKWH)
	}
	if c.Repair.JumpThreshold <= 0 {
		return fmt.Errorf("repair.jump_threshold must be positive: %f", c.Repair.JumpThreshold)
	}
	if c.Import.Interval < time.Minute && c.Import.Interval != 0 {
		return fmt.Errorf("import.interval too small: %s (minimum: 1m)", c.Import.Interval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}
