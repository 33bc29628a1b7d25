package guidance

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/scanforge/captureguide/internal/config"
	"github.com/scanforge/captureguide/internal/geom"
)

// CalibrationTracker is the single-phase session variant used for camera
// calibration captures: no phases and no identity tracking, only grid
// occupancy and a good-capture count.
type CalibrationTracker struct {
	mu           sync.Mutex
	cfg          *config.TuningConfig
	sessionID    string
	grid         [9]int
	goodCaptures int
}

// NewCalibrationTracker builds a calibration tracker with a fresh session
// identity.
func NewCalibrationTracker(cfg *config.TuningConfig) *CalibrationTracker {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &CalibrationTracker{cfg: cfg, sessionID: uuid.NewString()}
}

// SessionID returns the current session identifier.
func (t *CalibrationTracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// ResetForNewSession discards all counters and assigns a new session
// identity.
func (t *CalibrationTracker) ResetForNewSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = uuid.NewString()
	t.grid = [9]int{}
	t.goodCaptures = 0
}

// OnCaptureSaved records one committed calibration capture. Gate: quality
// ok, detections present, distance in range, framing ok. A gate failure is
// a strict no-op returning false.
func (t *CalibrationTracker) OnCaptureSaved(m *MarkerSnapshot, q *QualitySnapshot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !goodCaptureGate(t.cfg, m, q) {
		return false
	}

	t.goodCaptures++
	centers := detectionCenters(m.Detections)
	mean, _ := geom.MeanCenter(centers)
	norm := geom.Normalize(mean, m.FrameWidth, m.FrameHeight)
	t.grid[geom.GridCell(norm.X, norm.Y)]++
	return true
}

func (t *CalibrationTracker) filledCells() int {
	filled := 0
	for _, n := range t.grid {
		if n > 0 {
			filled++
		}
	}
	return filled
}

// Enough reports the sufficiency verdict with ordered reasons.
func (t *CalibrationTracker) Enough() (bool, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enoughLocked()
}

func (t *CalibrationTracker) enoughLocked() (bool, []string) {
	var reasons []string
	if target := t.cfg.GetCalGoodCapturesTarget(); t.goodCaptures < target {
		reasons = append(reasons, fmt.Sprintf("good captures: %d of %d", t.goodCaptures, target))
	}
	if target := t.cfg.GetCalGridFilledTarget(); t.filledCells() < target {
		reasons = append(reasons, fmt.Sprintf("grid coverage: %d of %d cells filled", t.filledCells(), target))
	}
	return len(reasons) == 0, reasons
}

// LiveGuidance renders operator text for the live frame, in priority order:
// marker presence, framing, distance, first empty grid cell, then progress.
func (t *CalibrationTracker) LiveGuidance(m *MarkerSnapshot, q *QualitySnapshot) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m == nil || len(m.Detections) == 0 {
		return "No markers visible - aim at the calibration board"
	}
	if !m.FramingOK {
		return "Board too close to the edge - reframe"
	}
	if q != nil && q.DistanceKnown {
		if q.DistanceCm < t.cfg.GetMinDistanceCm() {
			return fmt.Sprintf("Too close - move back to %.0f-%.0f cm", t.cfg.GetMinDistanceCm(), t.cfg.GetMaxDistanceCm())
		}
		if q.DistanceCm > t.cfg.GetMaxDistanceCm() {
			return fmt.Sprintf("Too far - move in to %.0f-%.0f cm", t.cfg.GetMinDistanceCm(), t.cfg.GetMaxDistanceCm())
		}
	}
	for cell, n := range t.grid {
		if n == 0 {
			return "Move the board to the " + geom.CellName(cell) + " of the view"
		}
	}
	if enough, _ := t.enoughLocked(); enough {
		return "Calibration coverage complete - you can finish"
	}
	return "Keep going - capture more views"
}

// BuildSummary assembles the calibration-session record for persistence by
// the caller.
func (t *CalibrationTracker) BuildSummary() *CalibrationSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	enough, reasons := t.enoughLocked()
	if reasons == nil {
		reasons = []string{}
	}
	grid := make(map[string]int, 9)
	for i, n := range t.grid {
		grid[strconv.Itoa(i)] = n
	}
	return &CalibrationSummary{
		Version:       ManifestVersion,
		SessionID:     t.sessionID,
		MinDistanceCm: t.cfg.GetMinDistanceCm(),
		MaxDistanceCm: t.cfg.GetMaxDistanceCm(),
		GoodCaptures:  t.goodCaptures,
		Targets: Targets{
			GoodCaptures:    t.cfg.GetCalGoodCapturesTarget(),
			GridCellsFilled: t.cfg.GetCalGridFilledTarget(),
		},
		GridCounts:         grid,
		GridCellsFilled:    t.filledCells(),
		Enough:             enough,
		ReasonsIfNotEnough: reasons,
	}
}
