package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gridline-data/lap.report/internal/units"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig holds the tunable parameters for telemetry loading, path
// reconstruction and lap analysis. Fields are pointers so a partial JSON file
// only overrides what it names; the Get* methods supply defaults for the
// rest.
type AnalysisConfig struct {
	// Loader params
	SpeedUnit       *string           `json:"speed_unit,omitempty"`       // unit of the CSV speed column
	AccelUnit       *string           `json:"accel_unit,omitempty"`       // "g" or "ms2"
	ColumnOverrides map[string]string `json:"column_overrides,omitempty"` // channel -> header substring

	// Reconstruction params
	SpeedFloorMPS *float64 `json:"speed_floor_mps,omitempty"` // below this, yaw rate is zeroed

	// Lap validity params
	LapMinDistanceMeters *float64 `json:"lap_min_distance_meters,omitempty"`
	LapMaxDistanceMeters *float64 `json:"lap_max_distance_meters,omitempty"`
	LapMinDuration       *string  `json:"lap_min_duration,omitempty"` // duration string like "60s"
	LapMaxDuration       *string  `json:"lap_max_duration,omitempty"`

	// Delta analysis params
	DeltaGridStepMeters *float64 `json:"delta_grid_step_meters,omitempty"`

	// Cache params
	CacheDir *string `json:"cache_dir,omitempty"`
}

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *AnalysisConfig) Validate() error {
	if c.SpeedUnit != nil && !units.IsValidSpeedUnit(*c.SpeedUnit) {
		return fmt.Errorf("speed_unit must be one of %v, got %q", units.ValidSpeedUnits, *c.SpeedUnit)
	}

	if c.AccelUnit != nil && *c.AccelUnit != "g" && *c.AccelUnit != "ms2" {
		return fmt.Errorf("accel_unit must be \"g\" or \"ms2\", got %q", *c.AccelUnit)
	}

	if c.SpeedFloorMPS != nil && *c.SpeedFloorMPS < 0 {
		return fmt.Errorf("speed_floor_mps must be non-negative, got %f", *c.SpeedFloorMPS)
	}

	if c.LapMinDuration != nil && *c.LapMinDuration != "" {
		if _, err := time.ParseDuration(*c.LapMinDuration); err != nil {
			return fmt.Errorf("invalid lap_min_duration '%s': %w", *c.LapMinDuration, err)
		}
	}
	if c.LapMaxDuration != nil && *c.LapMaxDuration != "" {
		if _, err := time.ParseDuration(*c.LapMaxDuration); err != nil {
			return fmt.Errorf("invalid lap_max_duration '%s': %w", *c.LapMaxDuration, err)
		}
	}

	if c.DeltaGridStepMeters != nil && *c.DeltaGridStepMeters <= 0 {
		return fmt.Errorf("delta_grid_step_meters must be positive, got %f", *c.DeltaGridStepMeters)
	}

	return nil
}

// GetSpeedUnit returns the speed_unit value or the default.
func (c *AnalysisConfig) GetSpeedUnit() string {
	if c.SpeedUnit == nil || *c.SpeedUnit == "" {
		return units.KPH // data loggers in this series report km/h
	}
	return *c.SpeedUnit
}

// GetAccelUnit returns the accel_unit value or the default.
func (c *AnalysisConfig) GetAccelUnit() string {
	if c.AccelUnit == nil || *c.AccelUnit == "" {
		return "g"
	}
	return *c.AccelUnit
}

// GetSpeedFloorMPS returns the speed_floor_mps value or the default.
func (c *AnalysisConfig) GetSpeedFloorMPS() float64 {
	if c.SpeedFloorMPS == nil {
		return 0.1
	}
	return *c.SpeedFloorMPS
}

// GetLapMinDistanceMeters returns the lap_min_distance_meters value or the default.
func (c *AnalysisConfig) GetLapMinDistanceMeters() float64 {
	if c.LapMinDistanceMeters == nil {
		return 4000 // VIR full course is ~5.2km
	}
	return *c.LapMinDistanceMeters
}

// GetLapMaxDistanceMeters returns the lap_max_distance_meters value or the default.
func (c *AnalysisConfig) GetLapMaxDistanceMeters() float64 {
	if c.LapMaxDistanceMeters == nil {
		return 7000
	}
	return *c.LapMaxDistanceMeters
}

// GetLapMinDuration parses and returns the lap_min_duration as a time.Duration.
func (c *AnalysisConfig) GetLapMinDuration() time.Duration {
	if c.LapMinDuration == nil || *c.LapMinDuration == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(*c.LapMinDuration)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetLapMaxDuration parses and returns the lap_max_duration as a time.Duration.
func (c *AnalysisConfig) GetLapMaxDuration() time.Duration {
	if c.LapMaxDuration == nil || *c.LapMaxDuration == "" {
		return 180 * time.Second
	}
	d, err := time.ParseDuration(*c.LapMaxDuration)
	if err != nil {
		return 180 * time.Second
	}
	return d
}

// GetDeltaGridStepMeters returns the delta_grid_step_meters value or the default.
func (c *AnalysisConfig) GetDeltaGridStepMeters() float64 {
	if c.DeltaGridStepMeters == nil {
		return 10
	}
	return *c.DeltaGridStepMeters
}

// GetCacheDir returns the cache_dir value or the default.
func (c *AnalysisConfig) GetCacheDir() string {
	if c.CacheDir == nil || *c.CacheDir == "" {
		return "cache"
	}
	return *c.CacheDir
}
