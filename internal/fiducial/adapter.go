package fiducial

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/scanforge/captureguide/internal/config"
	"github.com/scanforge/captureguide/internal/frame"
	"github.com/scanforge/captureguide/internal/geom"
)

// SessionSummary aggregates marker visibility over one capture session.
type SessionSummary struct {
	FramesProcessed          int           `json:"frames_processed"`
	FramesAllRequiredVisible int           `json:"frames_all_required_visible"`
	VisibilityTally          map[int64]int `json:"visibility_tally"`
}

// Adapter runs fiducial detection over a downsampled centre ROI and keeps
// session-wide visibility counters. Process is called from a single
// processing goroutine; SetMode, SetRequiredIdentities, Reset, Latest and
// Summary may be called concurrently from control threads.
type Adapter struct {
	cfg *config.TuningConfig
	det Detector

	mu               sync.Mutex
	mode             Mode
	required         []int64
	framesProcessed  int
	framesAllVisible int
	tally            map[int64]int

	work []byte // reused downsample buffer, owned by the processing goroutine

	latest atomic.Pointer[MarkerStatus]
}

// NewAdapter builds an adapter around the given detector capability. A nil
// detector gets the disabled variant.
func NewAdapter(cfg *config.TuningConfig, det Detector) *Adapter {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if det == nil {
		det = NewDisabledDetector()
	}
	return &Adapter{
		cfg:   cfg,
		det:   det,
		mode:  ModeOff,
		tally: make(map[int64]int),
	}
}

// SetMode switches the detection mode for subsequent frames.
func (a *Adapter) SetMode(mode Mode) {
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()
}

// SetRequiredIdentities replaces the required-identity set. The list is
// de-duplicated and sorted so missing-identity ordering is reproducible.
// Prior session counters are reset: statistics gathered against a different
// requirement set are not comparable.
func (a *Adapter) SetRequiredIdentities(ids []int64) {
	a.mu.Lock()
	a.required = normalizeRequired(ids)
	a.resetLocked()
	a.mu.Unlock()
}

// Reset clears the session counters. The next Process call observes the
// reset; no partially reset state is ever visible.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.resetLocked()
	a.mu.Unlock()
}

func (a *Adapter) resetLocked() {
	a.framesProcessed = 0
	a.framesAllVisible = 0
	a.tally = make(map[int64]int)
}

// Latest returns the most recently published status, or nil before the
// first processed frame. Safe for concurrent use.
func (a *Adapter) Latest() *MarkerStatus {
	return a.latest.Load()
}

// Summary returns a copy of the session visibility counters.
func (a *Adapter) Summary() SessionSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	tally := make(map[int64]int, len(a.tally))
	for id, n := range a.tally {
		tally[id] = n
	}
	return SessionSummary{
		FramesProcessed:          a.framesProcessed,
		FramesAllRequiredVisible: a.framesAllVisible,
		VisibilityTally:          tally,
	}
}

// Dictionary reports the detector's marker dictionary identifier.
func (a *Adapter) Dictionary() string {
	return a.det.Dictionary()
}

// Close releases the detector backend.
func (a *Adapter) Close() error {
	return a.det.Close()
}

// Process runs detection on one frame and publishes the resulting status.
// In ModeOff it publishes a lightweight alive status without detection work.
// Unsupported pixel layouts yield a status carrying an explicit message;
// detector failures are treated as zero detections. Process never panics
// past its boundary.
func (a *Adapter) Process(f *frame.RawFrame) *MarkerStatus {
	if f == nil {
		return nil
	}
	a.mu.Lock()
	mode := a.mode
	required := a.required
	a.mu.Unlock()

	status := &MarkerStatus{
		UnixNanos:   f.UnixNanos,
		Mode:        mode,
		FrameWidth:  f.Width,
		FrameHeight: f.Height,
		RequiredIDs: required,
	}

	if mode == ModeOff {
		status.Guidance = "Marker detection off"
		status.Display = "detection off"
		a.latest.Store(status)
		return status
	}

	if !f.IsTightLuma() || f.Validate() != nil {
		status.Err = "unsupported pixel layout: expected tightly packed single-channel luma"
		status.Guidance = "Camera format not supported for marker detection"
		a.latest.Store(status)
		return status
	}

	detections := a.detect(f)
	status.Detections = detections
	status.MissingIDs = missingFrom(required, detections)
	status.AllRequiredVisible = len(required) > 0 && len(status.MissingIDs) == 0
	status.FramingOK = a.framingOK(detections, f.Width, f.Height)
	status.Guidance, status.Display = buildGuidanceText(len(detections), required, status.MissingIDs, status.FramingOK)

	a.recordSession(status, required)
	a.latest.Store(status)
	return status
}

// detect extracts the ROI, downsamples it into the working buffer, runs the
// detector, and remaps results into full-frame coordinates.
func (a *Adapter) detect(f *frame.RawFrame) []TagDetection {
	x0, y0, roiW, roiH := centeredROI(f.Width, f.Height, a.cfg.GetMarkerROIFraction(), a.cfg.GetMarkerROIMinPx())
	step := a.cfg.GetDownsampleStep()

	redW := (roiW + step - 1) / step
	redH := (roiH + step - 1) / step
	if need := redW * redH; cap(a.work) < need {
		a.work = make([]byte, need)
	}
	a.work = a.work[:redW*redH]

	i := 0
	for ry := 0; ry < redH; ry++ {
		srcY := y0 + ry*step
		for rx := 0; rx < redW; rx++ {
			a.work[i] = f.At(x0+rx*step, srcY)
			i++
		}
	}

	reduced, err := a.det.Detect(a.work, redW, redH)
	if err != nil || len(reduced) == 0 {
		// Transient detection failure: zero detections this frame.
		return nil
	}

	roiArea := float64(roiW) * float64(roiH)
	out := make([]TagDetection, 0, len(reduced))
	for _, d := range reduced {
		remapped := TagDetection{
			ID: d.ID,
			Center: geom.Point{
				X: float64(x0) + d.Center.X*float64(step),
				Y: float64(y0) + d.Center.Y*float64(step),
			},
		}
		if len(d.Corners) > 0 {
			remapped.Corners = make([]geom.Point, len(d.Corners))
			for j, c := range d.Corners {
				remapped.Corners[j] = geom.Point{
					X: float64(x0) + c.X*float64(step),
					Y: float64(y0) + c.Y*float64(step),
				}
			}
			remapped.Quality = clamp01(shoelaceArea(remapped.Corners) / roiArea)
		}
		out = append(out, remapped)
	}
	return out
}

// framingOK reports whether every detection sits inside the configured edge
// margin. Corners are checked when present, otherwise the centre.
func (a *Adapter) framingOK(detections []TagDetection, width, height int) bool {
	mx := a.cfg.GetEdgeMarginFraction() * float64(width)
	my := a.cfg.GetEdgeMarginFraction() * float64(height)
	inside := func(p geom.Point) bool {
		return p.X >= mx && p.X <= float64(width)-mx &&
			p.Y >= my && p.Y <= float64(height)-my
	}
	for _, d := range detections {
		if len(d.Corners) > 0 {
			for _, c := range d.Corners {
				if !inside(c) {
					return false
				}
			}
		} else if !inside(d.Center) {
			return false
		}
	}
	return true
}

func (a *Adapter) recordSession(status *MarkerStatus, required []int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.framesProcessed++
	if len(required) > 0 && len(status.MissingIDs) == 0 {
		a.framesAllVisible++
	}
	seen := make(map[int64]struct{}, len(status.Detections))
	for _, d := range status.Detections {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		a.tally[d.ID]++
	}
}

// shoelaceArea computes the absolute area of an ordered polygon.
func shoelaceArea(pts []geom.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// centeredROI computes a centred sub-rectangle covering the given fraction
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
