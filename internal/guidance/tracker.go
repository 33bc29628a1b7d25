package guidance

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/scanforge/captureguide/internal/config"
	"github.com/scanforge/captureguide/internal/fiducial"
	"github.com/scanforge/captureguide/internal/geom"
	"github.com/scanforge/captureguide/internal/quality"
)

// CaptureTracker is the multi-phase capture-session state machine. All
// methods serialize on one mutex, so a capture's counter update is atomic
// with respect to any concurrent live-guidance or summary read. Independent
// trackers never contend.
type CaptureTracker struct {
	mu        sync.Mutex
	cfg       *config.TuningConfig
	sessionID string
	required  []int64
	c         sessionCounters
}

// NewCaptureTracker builds a tracker with a fresh session identity.
func NewCaptureTracker(cfg *config.TuningConfig) *CaptureTracker {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &CaptureTracker{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		c:         newSessionCounters(),
	}
}

// SessionID returns the current session identifier.
func (t *CaptureTracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// ResetForNewSession discards all counters and assigns a new session
// identity. The required-identity configuration survives the reset.
func (t *CaptureTracker) ResetForNewSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = uuid.NewString()
	t.c = newSessionCounters()
}

// OnRequiredIdentitiesChanged replaces the required-identity set and resets
// all counters: statistics gathered against a different requirement set are
// not comparable. The list is de-duplicated and sorted, matching the
// adapter's normalization, so the tracked-identity set never carries
// duplicates.
func (t *CaptureTracker) OnRequiredIdentitiesChanged(ids []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.required = dedupeSorted(ids)
	t.c = newSessionCounters()
}

// dedupeSorted returns the distinct identities in ascending order.
func dedupeSorted(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CurrentPhase derives the phase from the session counters.
func (t *CaptureTracker) CurrentPhase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c.currentPhase(t.cfg)
}

// OnCaptureSaved records one operator-committed capture. It is the sole
// mutator of session statistics. When the good-capture gate fails the call
// is a strict no-op and returns false: a forced capture of a bad frame never
// pollutes the counters.
func (t *CaptureTracker) OnCaptureSaved(m *MarkerSnapshot, q *QualitySnapshot, sum fiducial.SessionSummary) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !goodCaptureGate(t.cfg, m, q) {
		return false
	}

	t.c.goodCaptures++

	centers := detectionCenters(m.Detections)
	mean, _ := geom.MeanCenter(centers)
	norm := geom.Normalize(mean, m.FrameWidth, m.FrameHeight)
	cell := geom.GridCell(norm.X, norm.Y)
	lat := geom.LateralBinOf(norm.X)
	h := geom.HeightBinOf(norm.Y)

	t.c.grid[cell]++
	t.c.bins[int(lat)][int(h)]++

	if isCrossArch(t.cfg, centers, m.FrameWidth) {
		t.c.crossTotal++
		switch h {
		case geom.HeightHigh:
			t.c.crossHigh++
		case geom.HeightLow:
			t.c.crossLow++
		}
	}

	t.updateIdentityCounts(m, sum)
	return true
}

// updateIdentityCounts locks the tracked-identity set when possible and
// increments per-identity capture counts. Tracked identities absent from
// this capture get an explicit zero entry so summaries are deterministic.
func (t *CaptureTracker) updateIdentityCounts(m *MarkerSnapshot, sum fiducial.SessionSummary) {
	if !t.c.stableLocked {
		required := t.required
		if len(required) == 0 {
			required = m.RequiredIDs
		}
		n := t.cfg.GetStableIdentityCount()
		switch {
		case len(required) > 0:
			t.c.stableIDs = dedupeSorted(required)
			t.c.stableLocked = true
		case len(sum.VisibilityTally) >= n:
			t.c.stableIDs = geom.ChooseStableIdentities(sum.VisibilityTally, n)
			t.c.stableLocked = true
		}
	}
	if !t.c.stableLocked {
		return
	}

	present := make(map[int64]struct{}, len(m.Detections))
	for _, d := range m.Detections {
		present[d.ID] = struct{}{}
	}
	for _, id := range t.c.stableIDs {
		_, ok := present[id]
		t.c.trackIdentity(id, ok)
	}
}

// goodCaptureGate is the shared accept/reject predicate for committed
// captures: quality ok, subject distance within range, framing ok, and at
// least one detection.
func goodCaptureGate(cfg *config.TuningConfig, m *MarkerSnapshot, q *QualitySnapshot) bool {
	if m == nil || q == nil {
		return false
	}
	if q.Status != quality.StatusOK {
		return false
	}
	if !q.DistanceKnown || q.DistanceCm < cfg.GetMinDistanceCm() || q.DistanceCm > cfg.GetMaxDistanceCm() {
		return false
	}
	if !m.FramingOK {
		return false
	}
	if len(m.Detections) == 0 {
		return false
	}
	return true
}

// Enough reports the deterministic sufficiency verdict and the ordered list
// of unmet conditions. Reads nothing but counters; never mutates.
func (t *CaptureTracker) Enough() (bool, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enoughLocked()
}

func (t *CaptureTracker) enoughLocked() (bool, []string) {
	var reasons []string

	if target := t.cfg.GetGoodCapturesTarget(); t.c.goodCaptures < target {
		reasons = append(reasons, fmt.Sprintf("good captures: %d of %d", t.c.goodCaptures, target))
	}
	if target := t.cfg.GetGridFilledTarget(); t.c.filledCells() < target {
		reasons = append(reasons, fmt.Sprintf("grid coverage: %d of %d cells filled", t.c.filledCells(), target))
	}
	if t.cfg.GetRequireCrossArch() && !t.c.crossArchComplete(t.cfg) {
		reasons = append(reasons, fmt.Sprintf("cross-arch views: %d of %d (high %d of %d, low %d of %d)",
			t.c.crossTotal, t.cfg.GetCrossArchTarget(),
			t.c.crossHigh, t.cfg.GetCrossArchHighTarget(),
			t.c.crossLow, t.cfg.GetCrossArchLowTarget()))
	}
	perID := t.cfg.GetPerIdentityTarget()
	for _, id := range t.c.perIdentityOrder {
		if n := t.c.perIdentity[id]; n < perID {
			reasons = append(reasons, fmt.Sprintf("marker %d: %d of %d captures", id, n, perID))
		}
	}

	return len(reasons) == 0, reasons
}

// LiveGuidance renders operator-facing text for the current live frame
// without mutating any counter. The same phase/bin logic as OnCaptureSaved
// runs against the transient snapshot, whether or not the frame is ever
// captured.
func (t *CaptureTracker) LiveGuidance(m *MarkerSnapshot, q *QualitySnapshot) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m == nil || len(m.Detections) == 0 {
		return "No markers visible - aim at the marked area"
	}
	if !m.FramingOK {
		return "Markers too close to the edge - reframe"
	}
	if q != nil && q.DistanceKnown {
		if q.DistanceCm < t.cfg.GetMinDistanceCm() {
			return fmt.Sprintf("Too close - move back to %.0f-%.0f cm", t.cfg.GetMinDistanceCm(), t.cfg.GetMaxDistanceCm())
		}
		if q.DistanceCm > t.cfg.GetMaxDistanceCm() {
			return fmt.Sprintf("Too far - move in to %.0f-%.0f cm", t.cfg.GetMinDistanceCm(), t.cfg.GetMaxDistanceCm())
		}
	}
	if q != nil && q.Status != quality.StatusOK {
		switch q.Status {
		case quality.StatusBlur:
			return "Hold steady - image is blurred"
		case quality.StatusOver:
			return "Too bright - reduce lighting or exposure"
		case quality.StatusSpecular:
			return "Glare on the subject - change the angle slightly"
		case quality.StatusUnder:
			return "Too dark - add light"
		default:
			return "Image quality unknown - keep adjusting"
		}
	}

	switch t.c.currentPhase(t.cfg) {
	case PhaseAnchor:
		return "Anchor views: capture center, left and right at mid height, plus one high and one low"
	case PhaseLeftSweep:
		return "Sweep the left side: mid, high and low angles"
	case PhaseRightSweep:
		return "Sweep the right side: mid, high and low angles"
	case PhaseCrossArch:
		return "Capture wide views that show both sides at once"
	default:
		if enough, reasons := t.enoughLocked(); !enough {
			return "Cleanup: " + reasons[0]
		}
		return "Coverage complete - you can finish the session"
	}
}

// BuildManifestSummary assembles the end-of-session record for persistence
// by the caller. Integer counters round-trip through JSON without loss.
func (t *CaptureTracker) BuildManifestSummary() *ManifestSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	enough, reasons := t.enoughLocked()
	if reasons == nil {
		reasons = []string{}
	}

	grid := make(map[string]int, 9)
	for i, n := range t.c.grid {
		grid[strconv.Itoa(i)] = n
	}
	perID := make(map[string]int, len(t.c.perIdentityOrder))
	for _, id := range t.c.perIdentityOrder {
		perID[strconv.FormatInt(id, 10)] = t.c.perIdentity[id]
	}
	tracked := t.c.stableIDs
	if tracked == nil {
		tracked = []int64{}
	}

	return &ManifestSummary{
		Version:            ManifestVersion,
		SessionID:          t.sessionID,
		TrackedIDs:         append([]int64(nil), tracked...),
		MinDistanceCm:      t.cfg.GetMinDistanceCm(),
		MaxDistanceCm:      t.cfg.GetMaxDistanceCm(),
		EdgeMarginFraction: t.cfg.GetEdgeMarginFraction(),
		GoodCaptures:       t.c.goodCaptures,
		Targets: Targets{
			GoodCaptures:        t.cfg.GetGoodCapturesTarget(),
			GridCellsFilled:     t.cfg.GetGridFilledTarget(),
			PerIdentityCaptures: t.cfg.GetPerIdentityTarget(),
		},
		GridCounts:      grid,
		GridCellsFilled: t.c.filledCells(),
		PerIdentityCounts: perID,
		Phases: PhaseBreakdown{
			Current: string(t.c.currentPhase(t.cfg)),
			Anchor: AnchorProgress{
				CenterMid: t.c.bin(geom.LateralCenter, geom.HeightMid),
				LeftMid:   t.c.bin(geom.LateralLeft, geom.HeightMid),
				RightMid:  t.c.bin(geom.LateralRight, geom.HeightMid),
				High:      t.c.highHits(),
				Low:       t.c.lowHits(),
				Complete:  t.c.anchorComplete(t.cfg),
			},
			LeftSweep: SweepProgress{
				Mid:      t.c.bin(geom.LateralLeft, geom.HeightMid),
				High:     t.c.bin(geom.LateralLeft, geom.HeightHigh),
				Low:      t.c.bin(geom.LateralLeft, geom.HeightLow),
				Complete: t.c.sweepComplete(t.cfg, geom.LateralLeft),
			},
			RightSweep: SweepProgress{
				Mid:      t.c.bin(geom.LateralRight, geom.HeightMid),
				High:     t.c.bin(geom.LateralRight, geom.HeightHigh),
				Low:      t.c.bin(geom.LateralRight, geom.HeightLow),
				Complete: t.c.sweepComplete(t.cfg, geom.LateralRight),
			},
			CrossArch: CrossArchProgress{
				Total:    t.c.crossTotal,
				High:     t.c.crossHigh,
				Low:      t.c.crossLow,
				Complete: t.c.crossArchComplete(t.cfg),
			},
		},
		Enough:             enough,
		ReasonsIfNotEnough: reasons,
	}
}
