package guidance

import (
	"sort"

	"github.com/scanforge/captureguide/internal/geom"
)

// SidecarDetection is one detection in a capture sidecar, with both pixel
// and normalized coordinates.
type SidecarDetection struct {
	ID      int64        `json:"id"`
	X       float64      `json:"x"`
	Y       float64      `json:"y"`
	NX      float64      `json:"nx"`
	NY      float64      `json:"ny"`
	Corners []geom.Point `json:"corners,omitempty"`
	Quality float64      `json:"quality"`
}

// CaptureSidecar is the per-capture record a caller persists next to each
// saved photograph.
type CaptureSidecar struct {
	Mode        string             `json:"mode"`
	Dictionary  string             `json:"dictionary"`
	FrameWidth  int                `json:"frameWidth"`
	FrameHeight int                `json:"frameHeight"`
	RequiredIDs []int64            `json:"requiredIds"`
	TrackedIDs  []int64            `json:"trackedIds"`
	MissingIDs  []int64            `json:"missingIds"`
	DetectedIDs []int64            `json:"detectedIds"` // ascending
	FramingOK   bool               `json:"framingOk"`
	DistanceOK  bool               `json:"distanceOk"`
	Phase       string             `json:"phase"`
	GridCell    int                `json:"gridCell"`
	LateralBin  string             `json:"lateralBin"`
	HeightBin   string             `json:"heightBin"`
	CrossArch   bool               `json:"crossArch"`
	Detections  []SidecarDetection `json:"detections"`
}

// BuildCaptureSidecar assembles the sidecar record for one capture snapshot.
// Read-only with respect to session counters; the detection list is ordered
// deterministically by (id, x, y).
func (t *CaptureTracker) BuildCaptureSidecar(m *MarkerSnapshot, q *QualitySnapshot, dictionary string) *CaptureSidecar {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m == nil {
		return nil
	}

	sc := &CaptureSidecar{
		Mode:        string(m.Mode),
		Dictionary:  dictionary,
		FrameWidth:  m.FrameWidth,
		FrameHeight: m.FrameHeight,
		RequiredIDs: emptyIfNil(m.RequiredIDs),
		TrackedIDs:  emptyIfNil(t.c.stableIDs),
		MissingIDs:  emptyIfNil(m.MissingIDs),
		FramingOK:   m.FramingOK,
		Phase:       string(t.c.currentPhase(t.cfg)),
	}

	if q != nil && q.DistanceKnown {
		sc.DistanceOK = q.DistanceCm >= t.cfg.GetMinDistanceCm() && q.DistanceCm <= t.cfg.GetMaxDistanceCm()
	}

	centers := detectionCenters(m.Detections)
	if mean, ok := geom.MeanCenter(centers); ok {
		norm := geom.Normalize(mean, m.FrameWidth, m.FrameHeight)
		sc.GridCell = geom.GridCell(norm.X, norm.Y)
		sc.LateralBin = geom.LateralBinOf(norm.X).String()
		sc.HeightBin = geom.HeightBinOf(norm.Y).String()
	}
	sc.CrossArch = isCrossArch(t.cfg, centers, m.FrameWidth)

	ids := make([]int64, 0, len(m.Detections))
	seen := make(map[int64]struct{}, len(m.Detections))
	dets := make([]SidecarDetection, 0, len(m.Detections))
	for _, d := range m.Detections {
		if _, ok := seen[d.ID]; !ok {
			seen[d.ID] = struct{}{}
			ids = append(ids, d.ID)
		}
		norm := geom.Normalize(d.Center, m.FrameWidth, m.FrameHeight)
		dets = append(dets, SidecarDetection{
			ID:      d.ID,
			X:       d.Center.X,
			Y:       d.Center.Y,
			NX:      norm.X,
			NY:      norm.Y,
			Corners: append([]geom.Point(nil), d.Corners...),
			Quality: d.Quality,
		})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sort.Slice(dets, func(i, j int) bool {
		if dets[i].ID != dets[j].ID {
			return dets[i].ID < dets[j].ID
		}
		if dets[i].X != dets[j].X {
			return dets[i].X < dets[j].X
		}
		return dets[i].Y < dets[j].Y
	})
	sc.DetectedIDs = ids
	sc.Detections = dets
	return sc
}

func emptyIfNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return append([]int64(nil), ids...)
}
