package models

// Schema versions for a metering point's stored statistics. Version 1 data
// may carry the month-boundary reset bug; version 2 data has been repaired.
const (
	SchemaVersionInitial  = 1
	SchemaVersionRepaired = 2
)

const (
	// DefaultJumpThreshold is the boundary jump magnitude (kWh or EUR)
	// above which a month transition is treated as a corrupted reset.
	// Empirical, not a guaranteed bound; override via repair.jump_threshold.
	DefaultJumpThreshold = 1000.0

	// DefaultMaxHourlyDelta bounds what verify reports as plausible
	// single-hour consumption. Also empirical.
	DefaultMaxHourlyDelta = 30.0

	// DefaultPricePerKWH is the fallback unit price for the derived cost series
	DefaultPricePerKWH = 0.33
)
