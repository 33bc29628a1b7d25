// Package quality scores individual camera frames for photogrammetric
// usefulness: blur (sampled Laplacian variance), exposure clipping, and
// specular-highlight clustering, plus a best-effort subject distance
// estimate derived from the camera's focus signal.
package quality

import (
	"sync/atomic"

	"gonum.org/v1/gonum/stat"

	"github.com/scanforge/captureguide/internal/config"
	"github.com/scanforge/captureguide/internal/frame"
)

// Status is the per-frame quality verdict.
type Status string

const (
	StatusOK       Status = "ok"
	StatusBlur     Status = "blur"
	StatusOver     Status = "overexposed"
	StatusUnder    Status = "underexposed"
	StatusSpecular Status = "specular"
	StatusUnknown  Status = "unknown"
)

// Result holds the quality metrics for one analyzed frame.
type Result struct {
	UnixNanos      int64   `json:"unix_nanos"`
	Status         Status  `json:"status"`
	BlurScore      float64 `json:"blur_score"` // Laplacian population variance; lower = blurrier
	OverFraction   float64 `json:"over_fraction"`
	UnderFraction  float64 `json:"under_fraction"`
	ClusterCount   int     `json:"cluster_count"`
	LargestCluster int     `json:"largest_cluster"`
	DistanceCm     float64 `json:"distance_cm,omitempty"`
	DistanceKnown  bool    `json:"distance_known"`
}

// FocusDioptersFunc supplies the camera's focus distance in diopters.
// It returns false when the signal is unavailable this frame.
type FocusDioptersFunc func() (float64, bool)

// Analyzer computes quality metrics over a centered region of interest.
// It is driven by a single processing goroutine; the published latest
// result may be read concurrently from other goroutines.
type Analyzer struct {
	cfg   *config.TuningConfig
	focus FocusDioptersFunc

	minIntervalNanos int64
	lastNanos        int64

	// Reused across frames to avoid per-frame allocation at sensor rate.
	samples []float64
	over    map[gridCoord]struct{}

	latest atomic.Pointer[Result]
}

// NewAnalyzer builds an analyzer from tuning config. focus may be nil when
// no focus-distance signal exists.
func NewAnalyzer(cfg *config.TuningConfig, focus FocusDioptersFunc) *Analyzer {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Analyzer{
		cfg:              cfg,
		focus:            focus,
		minIntervalNanos: int64(1e9 / cfg.GetAnalysisRateHz()),
		over:             make(map[gridCoord]struct{}),
	}
}

// Latest returns the most recently published result, or nil before the
// first analyzed frame. Safe for concurrent use.
func (a *Analyzer) Latest() *Result {
	return a.latest.Load()
}

// Analyze scores one frame. The boolean is false when the frame was skipped:
// unsupported layout, invalid geometry, or arrival inside the throttle
// interval. Skipping is a drop, not a queue — the analyzer never falls more
// than one interval behind.
func (a *Analyzer) Analyze(f *frame.RawFrame) (*Result, bool) {
	if f == nil || !f.IsTightLuma() || f.Validate() != nil {
		return nil, false
	}
	if a.lastNanos != 0 && f.UnixNanos-a.lastNanos < a.minIntervalNanos {
		return nil, false
	}
	a.lastNanos = f.UnixNanos

	res := a.analyzeROI(f)
	res.UnixNanos = f.UnixNanos

	if a.focus != nil {
		if diopters, ok := a.focus(); ok && diopters > 0 {
			res.DistanceCm = 100.0 / diopters
			res.DistanceKnown = true
		}
	}

	res.Status = a.classify(res)
	a.latest.Store(res)
	return res, true
}

func (a *Analyzer) analyzeROI(f *frame.RawFrame) *Result {
	res := &Result{}

	x0, y0, roiW, roiH := centeredROI(f.Width, f.Height, a.cfg.GetQualityROIFraction(), a.cfg.GetQualityROIMinPx())
	stride := a.cfg.GetLaplacianStride()
	x1, y1 := x0+roiW, y0+roiH

	// Blur: 4-neighbour Laplacian over the ROI interior, sampled.
	a.samples = a.samples[:0]
	for y := y0 + stride; y < y1-stride; y += stride {
		for x := x0 + stride; x < x1-stride; x += stride {
			c := int(f.At(x, y))
			lap := int(f.At(x, y-1)) + int(f.At(x, y+1)) + int(f.At(x-1, y)) + int(f.At(x+1, y)) - 4*c
			a.samples = append(a.samples, float64(lap))
		}
	}
	if len(a.samples) > 0 {
		res.BlurScore = stat.PopVariance(a.samples, nil)
	}

	// Exposure: clipped-pixel fractions over the same ROI, sampled. The
	// over-threshold coordinates are kept in sample-grid space for the
	// connected-component pass.
	high := byte(a.cfg.GetClipHighThreshold())
	low := byte(a.cfg.GetClipLowThreshold())
	clear(a.over)
	var sampled, overCount, underCount int
	for y := y0; y < y1; y += stride {
		for x := x0; x < x1; x += stride {
			v := f.At(x, y)
			sampled++
			if v >= high {
				overCount++
				a.over[gridCoord{x: (x - x0) / stride, y: (y - y0) / stride}] = struct{}{}
			} else if v <= low {
				underCount++
			}
		}
	}
	if sampled > 0 {
		res.OverFraction = float64(overCount) / float64(sampled)
		res.UnderFraction = float64(underCount) / float64(sampled)
	}
	res.ClusterCount, res.LargestCluster = clusterStats(a.over)
	return res
}

// classify applies the verdict priority: blur, then over-exposure (downgraded
// to specular when the clipped pixels form few small clusters), then
// under-exposure, else ok.
func (a *Analyzer) classify(res *Result) Status {
	if len(a.samples) == 0 {
		return StatusUnknown
	}
	if res.BlurScore < a.cfg.GetBlurVarianceMin() {
		return StatusBlur
	}
	if res.OverFraction > a.cfg.GetOverexposedFraction() {
		if res.ClusterCount <= a.cfg.GetSpecularMaxClusters() &&
			res.LargestCluster <= a.cfg.GetSpecularMaxClusterSize() {
			return StatusSpecular
		}
		return StatusOver
	}
	if res.UnderFraction > a.cfg.GetUnderexposedFraction() {
		return StatusUnder
	}
	return StatusOK
}

// centeredROI computes a centered sub-rectangle covering the given fraction
// of each dimension, at least minPx per side, clamped to the frame.
func centeredROI(width, height int, fraction float64, minPx int) (x0, y0, w, h int) {
	w = int(float64(width) * fraction)
	if w < minPx {
		w = minPx
	}
	if w > width {
		w = width
	}
	h = int(float64(height) * fraction)
	if h < minPx {
		h = minPx
	}
	if h > height {
		h = height
	}
	return (width - w) / 2, (height - h) / 2, w, h
}
