package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetAnalysisRateHz(); got != 12.0 {
		t.Errorf("GetAnalysisRateHz = %f, want 12.0", got)
	}
	if got := cfg.GetBlurVarianceMin(); got != 150.0 {
		t.Errorf("GetBlurVarianceMin = %f, want 150.0", got)
	}
	if got := cfg.GetClipHighThreshold(); got != 245 {
		t.Errorf("GetClipHighThreshold = %d, want 245", got)
	}
	if got := cfg.GetClipLowThreshold(); got != 10 {
		t.Errorf("GetClipLowThreshold = %d, want 10", got)
	}
	if got := cfg.GetMinDistanceCm(); got != 20.0 {
		t.Errorf("GetMinDistanceCm = %f, want 20.0", got)
	}
	if got := cfg.GetMaxDistanceCm(); got != 30.0 {
		t.Errorf("GetMaxDistanceCm = %f, want 30.0", got)
	}
	if got := cfg.GetGoodCapturesTarget(); got != 60 {
		t.Errorf("GetGoodCapturesTarget = %d, want 60", got)
	}
	if got := cfg.GetGridFilledTarget(); got != 7 {
		t.Errorf("GetGridFilledTarget = %d, want 7", got)
	}
	if got := cfg.GetPerIdentityTarget(); got != 10 {
		t.Errorf("GetPerIdentityTarget = %d, want 10", got)
	}
	if got := cfg.GetCrossArchSpreadFraction(); got != 0.65 {
		t.Errorf("GetCrossArchSpreadFraction = %f, want 0.65", got)
	}
	if got := cfg.GetCalGoodCapturesTarget(); got != 25 {
		t.Errorf("GetCalGoodCapturesTarget = %d, want 25", got)
	}
	if got := cfg.GetCalGridFilledTarget(); got != 8 {
		t.Errorf("GetCalGridFilledTarget = %d, want 8", got)
	}
	if got := cfg.GetMarkerDictionary(); got != "4X4_50" {
		t.Errorf("GetMarkerDictionary = %q, want 4X4_50", got)
	}
	if !cfg.GetRequireCrossArch() {
		t.Error("GetRequireCrossArch = false, want true")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config must pass Validate(): %v", err)
	}
}

func TestLoadTuningConfig_Partial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	body := `{"blur_variance_min": 200.0, "good_captures_target": 40}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	// Overridden fields take the file's values.
	if got := cfg.GetBlurVarianceMin(); got != 200.0 {
		t.Errorf("GetBlurVarianceMin = %f, want 200.0", got)
	}
	if got := cfg.GetGoodCapturesTarget(); got != 40 {
		t.Errorf("GetGoodCapturesTarget = %d, want 40", got)
	}
	// Untouched fields fall back to defaults.
	if got := cfg.GetGridFilledTarget(); got != 7 {
		t.Errorf("GetGridFilledTarget = %d, want 7", got)
	}
}

func TestLoadTuningConfig_BadExtension(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Error("expected error for non-json extension")
	}
}

func TestValidate_Rejects(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	tests := []struct {
		name string
		mut  func(*TuningConfig)
	}{
		{"zero rate", func(c *TuningConfig) { c.AnalysisRateHz = f(0) }},
		{"roi fraction above 1", func(c *TuningConfig) { c.QualityROIFraction = f(1.5) }},
		{"stride zero", func(c *TuningConfig) { c.LaplacianStride = n(0) }},
		{"step zero", func(c *TuningConfig) { c.DownsampleStep = n(0) }},
		{"clip high out of range", func(c *TuningConfig) { c.ClipHighThreshold = n(300) }},
		{"margin half", func(c *TuningConfig) { c.EdgeMarginFraction = f(0.5) }},
		{"inverted distance range", func(c *TuningConfig) { c.MinDistanceCm = f(30); c.MaxDistanceCm = f(20) }},
		{"grid target above 9", func(c *TuningConfig) { c.GridFilledTarget = n(10) }},
		{"spread fraction zero", func(c *TuningConfig) { c.CrossArchSpreadFrac = f(0) }},
		{"stable identity count zero", func(c *TuningConfig) { c.StableIdentityCount = n(0) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := EmptyTuningConfig()
			tc.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
