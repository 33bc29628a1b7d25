// Package config holds the capture-guidance tuning configuration.
//
// All fields are pointers so a partial JSON file only overrides the values
// it names; the Get* accessors fall back to the built-in defaults for any
// field left nil. The same schema is accepted by the monitor endpoint for
// runtime updates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig is the root tuning document.
type TuningConfig struct {
	// Quality analyzer params
	AnalysisRateHz       *float64 `json:"analysis_rate_hz,omitempty"`
	QualityROIFraction   *float64 `json:"quality_roi_fraction,omitempty"`
	QualityROIMinPx      *int     `json:"quality_roi_min_px,omitempty"`
	LaplacianStride      *int     `json:"laplacian_stride,omitempty"`
	BlurVarianceMin      *float64 `json:"blur_variance_min,omitempty"`
	ClipHighThreshold    *int     `json:"clip_high_threshold,omitempty"`
	ClipLowThreshold     *int     `json:"clip_low_threshold,omitempty"`
	OverexposedFraction  *float64 `json:"overexposed_fraction,omitempty"`
	UnderexposedFraction *float64 `json:"underexposed_fraction,omitempty"`
	SpecularMaxClusters  *int     `json:"specular_max_clusters,omitempty"`
	SpecularMaxCluster   *int     `json:"specular_max_cluster_size,omitempty"`

	// Marker detection params
	MarkerROIFraction  *float64 `json:"marker_roi_fraction,omitempty"`
	MarkerROIMinPx     *int     `json:"marker_roi_min_px,omitempty"`
	DownsampleStep     *int     `json:"downsample_step,omitempty"`
	EdgeMarginFraction *float64 `json:"edge_margin_fraction,omitempty"`
	MarkerDictionary   *string  `json:"marker_dictionary,omitempty"`

	// Capture guidance params
	MinDistanceCm       *float64 `json:"min_distance_cm,omitempty"`
	MaxDistanceCm       *float64 `json:"max_distance_cm,omitempty"`
	GoodCapturesTarget  *int     `json:"good_captures_target,omitempty"`
	GridFilledTarget    *int     `json:"grid_filled_target,omitempty"`
	PerIdentityTarget   *int     `json:"per_identity_target,omitempty"`
	StableIdentityCount *int     `json:"stable_identity_count,omitempty"`
	RequireCrossArch    *bool    `json:"require_cross_arch,omitempty"`
	CrossArchSpreadFrac *float64 `json:"cross_arch_spread_fraction,omitempty"`
	CrossArchTarget     *int     `json:"cross_arch_target,omitempty"`
	CrossArchHighTarget *int     `json:"cross_arch_high_target,omitempty"`
	CrossArchLowTarget  *int     `json:"cross_arch_low_target,omitempty"`
	AnchorBinTarget     *int     `json:"anchor_bin_target,omitempty"`
	SweepMidTarget      *int     `json:"sweep_mid_target,omitempty"`
	SweepEdgeTarget     *int     `json:"sweep_edge_target,omitempty"`

	// Calibration session params
	CalGoodCapturesTarget *int `json:"cal_good_captures_target,omitempty"`
	CalGridFilledTarget   *int `json:"cal_grid_filled_target,omitempty"`
}

// Built-in defaults. These are the values the Get* accessors return when the
// corresponding field was not set by a loaded config.
const (
	defaultAnalysisRateHz       = 12.0
	defaultQualityROIFraction   = 0.40
	defaultQualityROIMinPx      = 64
	defaultLaplacianStride      = 2
	defaultBlurVarianceMin      = 150.0
	defaultClipHighThreshold    = 245
	defaultClipLowThreshold     = 10
	defaultOverexposedFraction  = 0.02
	defaultUnderexposedFraction = 0.05
	defaultSpecularMaxClusters  = 5
	defaultSpecularMaxCluster   = 100

	defaultMarkerROIFraction  = 0.60
	defaultMarkerROIMinPx     = 160
	defaultDownsampleStep     = 2
	defaultEdgeMarginFraction = 0.10
	defaultMarkerDictionary   = "4X4_50"

	defaultMinDistanceCm       = 20.0
	defaultMaxDistanceCm       = 30.0
	defaultGoodCapturesTarget  = 60
	defaultGridFilledTarget    = 7
	defaultPerIdentityTarget   = 10
	defaultStableIdentityCount = 4
	defaultRequireCrossArch    = true
	defaultCrossArchSpreadFrac = 0.65
	defaultCrossArchTarget     = 6
	defaultCrossArchHighTarget = 2
	defaultCrossArchLowTarget  = 2
	defaultAnchorBinTarget     = 2
	defaultSweepMidTarget      = 5
	defaultSweepEdgeTarget     = 3

	defaultCalGoodCapturesTarget = 25
	defaultCalGridFilledTarget   = 8
)

// EmptyTuningConfig returns a TuningConfig with all fields unset, so every
// accessor yields its built-in default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make the pipeline misbehave.
func (c *TuningConfig) Validate() error {
	if c.AnalysisRateHz != nil && *c.AnalysisRateHz <= 0 {
		return fmt.Errorf("analysis_rate_hz must be positive, got %f", *c.AnalysisRateHz)
	}
	if c.QualityROIFraction != nil && (*c.QualityROIFraction <= 0 || *c.QualityROIFraction > 1) {
		return fmt.Errorf("quality_roi_fraction must be in (0, 1], got %f", *c.QualityROIFraction)
	}
	if c.MarkerROIFraction != nil && (*c.MarkerROIFraction <= 0 || *c.MarkerROIFraction > 1) {
		return fmt.Errorf("marker_roi_fraction must be in (0, 1], got %f", *c.MarkerROIFraction)
	}
	if c.LaplacianStride != nil && *c.LaplacianStride < 1 {
		return fmt.Errorf("laplacian_stride must be >= 1, got %d", *c.LaplacianStride)
	}
	if c.DownsampleStep != nil && *c.DownsampleStep < 1 {
		return fmt.Errorf("downsample_step must be >= 1, got %d", *c.DownsampleStep)
	}
	if c.ClipHighThreshold != nil && (*c.ClipHighThreshold < 0 || *c.ClipHighThreshold > 255) {
		return fmt.Errorf("clip_high_threshold must be in [0, 255], got %d", *c.ClipHighThreshold)
	}
	if c.ClipLowThreshold != nil && (*c.ClipLowThreshold < 0 || *c.ClipLowThreshold > 255) {
		return fmt.Errorf("clip_low_threshold must be in [0, 255], got %d", *c.ClipLowThreshold)
	}
	if c.EdgeMarginFraction != nil && (*c.EdgeMarginFraction < 0 || *c.EdgeMarginFraction >= 0.5) {
		return fmt.Errorf("edge_margin_fraction must be in [0, 0.5), got %f", *c.EdgeMarginFraction)
	}
	if c.MinDistanceCm != nil && c.MaxDistanceCm != nil && *c.MinDistanceCm > *c.MaxDistanceCm {
		return fmt.Errorf("min_distance_cm %f exceeds max_distance_cm %f", *c.MinDistanceCm, *c.MaxDistanceCm)
	}
	if c.GridFilledTarget != nil && (*c.GridFilledTarget < 0 || *c.GridFilledTarget > 9) {
		return fmt.Errorf("grid_filled_target must be in [0, 9], got %d", *c.GridFilledTarget)
	}
	if c.CalGridFilledTarget != nil && (*c.CalGridFilledTarget < 0 || *c.CalGridFilledTarget > 9) {
		return fmt.Errorf("cal_grid_filled_target must be in [0, 9], got %d", *c.CalGridFilledTarget)
	}
	if c.CrossArchSpreadFrac != nil && (*c.CrossArchSpreadFrac <= 0 || *c.CrossArchSpreadFrac > 1) {
		return fmt.Errorf("cross_arch_spread_fraction must be in (0, 1], got %f", *c.CrossArchSpreadFrac)
	}
	if c.StableIdentityCount != nil && *c.StableIdentityCount < 1 {
		return fmt.Errorf("stable_identity_count must be >= 1, got %d", *c.StableIdentityCount)
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func getInt(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func getBool(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func getString(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func (c *TuningConfig) GetAnalysisRateHz() float64 {
	return getFloat(c.AnalysisRateHz, defaultAnalysisRateHz)
}

func (c *TuningConfig) GetQualityROIFraction() float64 {
	return getFloat(c.QualityROIFraction, defaultQualityROIFraction)
}

func (c *TuningConfig) GetQualityROIMinPx() int {
	return getInt(c.QualityROIMinPx, defaultQualityROIMinPx)
}

func (c *TuningConfig) GetLaplacianStride() int {
	return getInt(c.LaplacianStride, defaultLaplacianStride)
}

func (c *TuningConfig) GetBlurVarianceMin() float64 {
	return getFloat(c.BlurVarianceMin, defaultBlurVarianceMin)
}

func (c *TuningConfig) GetClipHighThreshold() int {
	return getInt(c.ClipHighThreshold, defaultClipHighThreshold)
}

func (c *TuningConfig) GetClipLowThreshold() int {
	return getInt(c.ClipLowThreshold, defaultClipLowThreshold)
}

func (c *TuningConfig) GetOverexposedFraction() float64 {
	return getFloat(c.OverexposedFraction, defaultOverexposedFraction)
}

func (c *TuningConfig) GetUnderexposedFraction() float64 {
	return getFloat(c.UnderexposedFraction, defaultUnderexposedFraction)
}

func (c *TuningConfig) GetSpecularMaxClusters() int {
	return getInt(c.SpecularMaxClusters, defaultSpecularMaxClusters)
}

func (c *TuningConfig) GetSpecularMaxClusterSize() int {
	return getInt(c.SpecularMaxCluster, defaultSpecularMaxCluster)
}

func (c *TuningConfig) GetMarkerROIFraction() float64 {
	return getFloat(c.MarkerROIFraction, defaultMarkerROIFraction)
}

func (c *TuningConfig) GetMarkerROIMinPx() int {
	return getInt(c.MarkerROIMinPx, defaultMarkerROIMinPx)
}

func (c *TuningConfig) GetDownsampleStep() int {
	return getInt(c.DownsampleStep, defaultDownsampleStep)
}

func (c *TuningConfig) GetEdgeMarginFraction() float64 {
	return getFloat(c.EdgeMarginFraction, defaultEdgeMarginFraction)
}

func (c *TuningConfig) GetMarkerDictionary() string {
	return getString(c.MarkerDictionary, defaultMarkerDictionary)
}

func (c *TuningConfig) GetMinDistanceCm() float64 {
	return getFloat(c.MinDistanceCm, defaultMinDistanceCm)
}

func (c *TuningConfig) GetMaxDistanceCm() float64 {
	return getFloat(c.MaxDistanceCm, defaultMaxDistanceCm)
}

func (c *TuningConfig) GetGoodCapturesTarget() int {
	return getInt(c.GoodCapturesTarget, defaultGoodCapturesTarget)
}

func (c *TuningConfig) GetGridFilledTarget() int {
	return getInt(c.GridFilledTarget, defaultGridFilledTarget)
}

func (c *TuningConfig) GetPerIdentityTarget() int {
	return getInt(c.PerIdentityTarget, defaultPerIdentityTarget)
}

func (c *TuningConfig) GetStableIdentityCount() int {
	return getInt(c.StableIdentityCount, defaultStableIdentityCount)
}

func (c *TuningConfig) GetRequireCrossArch() bool {
	return getBool(c.RequireCrossArch, defaultRequireCrossArch)
}

func (c *TuningConfig) GetCrossArchSpreadFraction() float64 {
	return getFloat(c.CrossArchSpreadFrac, defaultCrossArchSpreadFrac)
}

func (c *TuningConfig) GetCrossArchTarget() int {
	return getInt(c.CrossArchTarget, defaultCrossArchTarget)
}

func (c *TuningConfig) GetCrossArchHighTarget() int {
	return getInt(c.CrossArchHighTarget, defaultCrossArchHighTarget)
}

func (c *TuningConfig) GetCrossArchLowTarget() int {
	return getInt(c.CrossArchLowTarget, defaultCrossArchLowTarget)
}

func (c *TuningConfig) GetAnchorBinTarget() int {
	return getInt(c.AnchorBinTarget, defaultAnchorBinTarget)
}

func (c *TuningConfig) GetSweepMidTarget() int {
	return getInt(c.SweepMidTarget, defaultSweepMidTarget)
}

func (c *TuningConfig) GetSweepEdgeTarget() int {
	return getInt(c.SweepEdgeTarget, defaultSweepEdgeTarget)
}

func (c *TuningConfig) GetCalGoodCapturesTarget() int {
	return getInt(c.CalGoodCapturesTarget, defaultCalGoodCapturesTarget)
}

func (c *TuningConfig) GetCalGridFilledTarget() int {
	return getInt(c.CalGridFilledTarget, defaultCalGridFilledTarget)
}
