package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/balloon.report/internal/association"
	"github.com/banshee-data/balloon.report/internal/nowcast"
	"github.com/banshee-data/balloon.report/internal/wind"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tracking.defaults.json"

// TuningConfig represents the root configuration for tracking parameters.
// Every field is optional; the Get* accessors supply the defaults.
type TuningConfig struct {
	// Association gates and scoring
	MaxDistanceKm      *float64 `json:"max_distance_km,omitempty"`
	MaxAltitudeDeltaKm *float64 `json:"max_altitude_delta_km,omitempty"`
	AltitudeWeight     *float64 `json:"altitude_weight,omitempty"`
	ConfidenceNormKm   *float64 `json:"confidence_norm_km,omitempty"`
	AssignmentSolver   *string  `json:"assignment_solver,omitempty"` // "greedy" or "hungarian"

	// Assembly
	BridgeGaps *bool `json:"bridge_gaps,omitempty"`

	// Wind correlation
	WindStaleness      *string  `json:"wind_staleness,omitempty"` // duration string like "1h"
	DirectionChangeDeg *float64 `json:"direction_change_deg,omitempty"`
	SpeedChangeKmh     *float64 `json:"speed_change_kmh,omitempty"`
	WindCacheTTL       *string  `json:"wind_cache_ttl,omitempty"` // duration string like "30m"

	// Nowcast policy
	WindConfidence      *float64 `json:"wind_confidence,omitempty"`
	CalmConfidence      *float64 `json:"calm_confidence,omitempty"`
	CalmBelowKmh        *float64 `json:"calm_below_kmh,omitempty"`
	StormConfidence     *float64 `json:"storm_confidence,omitempty"`
	StormAboveKmh       *float64 `json:"storm_above_kmh,omitempty"`
	WindUncertainty     *float64 `json:"wind_uncertainty_fraction,omitempty"`
	VelocityConfidence  *float64 `json:"velocity_confidence,omitempty"`
	VelocityUncertainty *float64 `json:"velocity_uncertainty_fraction,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	positive := map[string]*float64{
		"max_distance_km":    c.MaxDistanceKm,
		"confidence_norm_km": c.ConfidenceNormKm,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	nonNegative := map[string]*float64{
		"max_altitude_delta_km":         c.MaxAltitudeDeltaKm,
		"altitude_weight":               c.AltitudeWeight,
		"direction_change_deg":          c.DirectionChangeDeg,
		"speed_change_kmh":              c.SpeedChangeKmh,
		"calm_below_kmh":                c.CalmBelowKmh,
		"storm_above_kmh":               c.StormAboveKmh,
		"wind_uncertainty_fraction":     c.WindUncertainty,
		"velocity_uncertainty_fraction": c.VelocityUncertainty,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	unit := map[string]*float64{
		"wind_confidence":     c.WindConfidence,
		"calm_confidence":     c.CalmConfidence,
		"storm_confidence":    c.StormConfidence,
		"velocity_confidence": c.VelocityConfidence,
	}
	for name, v := range unit {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.DirectionChangeDeg != nil && *c.DirectionChangeDeg > 180 {
		return fmt.Errorf("direction_change_deg must be at most 180, got %f", *c.DirectionChangeDeg)
	}

	if c.AssignmentSolver != nil {
		switch *c.AssignmentSolver {
		case association.SolverGreedy, association.SolverHungarian:
		default:
			return fmt.Errorf("assignment_solver must be %q or %q, got %q",
				association.SolverGreedy, association.SolverHungarian, *c.AssignmentSolver)
		}
	}

	durations := map[string]*string{
		"wind_staleness": c.WindStaleness,
		"wind_cache_ttl": c.WindCacheTTL,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	return nil
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetMaxDistanceKm returns the max_distance_km value or the default.
func (c *TuningConfig) GetMaxDistanceKm() float64 {
	return getFloat(c.MaxDistanceKm, association.DefaultMaxDistanceKm)
}

// GetMaxAltitudeDeltaKm returns the max_altitude_delta_km value or the default.
func (c *TuningConfig) GetMaxAltitudeDeltaKm() float64 {
	return getFloat(c.MaxAltitudeDeltaKm, association.DefaultMaxAltitudeDeltaKm)
}

// GetAltitudeWeight returns the altitude_weight value or the default.
func (c *TuningConfig) GetAltitudeWeight() float64 {
	return getFloat(c.AltitudeWeight, association.DefaultAltitudeWeight)
}

// GetConfidenceNormKm returns the confidence_norm_km value or the default.
func (c *TuningConfig) GetConfidenceNormKm() float64 {
	return getFloat(c.ConfidenceNormKm, association.DefaultConfidenceNormKm)
}

// GetAssignmentSolver returns the assignment_solver value or the default.
func (c *TuningConfig) GetAssignmentSolver() string {
	if c.AssignmentSolver == nil || *c.AssignmentSolver == "" {
		return association.SolverGreedy
	}
	return *c.AssignmentSolver
}

// GetBridgeGaps returns the bridge_gaps value or the default.
func (c *TuningConfig) GetBridgeGaps() bool {
	if c.BridgeGaps == nil {
		return false // default: a missing hour ends live tracks
	}
	return *c.BridgeGaps
}

// GetWindStaleness parses and returns WindStaleness as a time.Duration.
func (c *TuningConfig) GetWindStaleness() time.Duration {
	return getDuration(c.WindStaleness, wind.DefaultStaleness)
}

// GetWindCacheTTL parses and returns WindCacheTTL as a time.Duration.
func (c *TuningConfig) GetWindCacheTTL() time.Duration {
	return getDuration(c.WindCacheTTL, wind.DefaultCacheTTL)
}

// Engine builds an association engine from the configuration.
func (c *TuningConfig) Engine() *association.Engine {
	return &association.Engine{
		MaxDistanceKm:      c.GetMaxDistanceKm(),
		MaxAltitudeDeltaKm: c.GetMaxAltitudeDeltaKm(),
		AltitudeWeight:     c.GetAltitudeWeight(),
		ConfidenceNormKm:   c.GetConfidenceNormKm(),
		Solver:             c.GetAssignmentSolver(),
	}
}

// Correlator builds a wind correlator from the configuration.
func (c *TuningConfig) Correlator() *wind.Correlator {
	return &wind.Correlator{
		Staleness:          c.GetWindStaleness(),
		DirectionChangeDeg: getFloat(c.DirectionChangeDeg, wind.DefaultDirectionChangeDeg),
		SpeedChangeKmh:     getFloat(c.SpeedChangeKmh, wind.DefaultSpeedChangeKmh),
	}
}

// Predictor builds a nowcast predictor from the configuration.
func (c *TuningConfig) Predictor() *nowcast.Predictor {
	p := nowcast.NewPredictor()
	p.WindConfidence = getFloat(c.WindConfidence, p.WindConfidence)
	p.CalmConfidence = getFloat(c.CalmConfidence, p.CalmConfidence)
	p.CalmBelowKmh = getFloat(c.CalmBelowKmh, p.CalmBelowKmh)
	p.StormConfidence = getFloat(c.StormConfidence, p.StormConfidence)
	p.StormAboveKmh = getFloat(c.StormAboveKmh, p.StormAboveKmh)
	p.WindUncertainty = getFloat(c.WindUncertainty, p.WindUncertainty)
	p.VelocityConfidence = getFloat(c.VelocityConfidence, p.VelocityConfidence)
	p.VelocityUncertainty = getFloat(c.VelocityUncertainty, p.VelocityUncertainty)
	return p
}
