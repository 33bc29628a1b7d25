// Package guidance implements the capture-session state machines: the
// multi-phase capture tracker and the single-phase calibration tracker.
// Both aggregate statistics only over frames the operator actually commits;
// live analysis results never mutate session state.
package guidance

import (
	"github.com/scanforge/captureguide/internal/fiducial"
	"github.com/scanforge/captureguide/internal/geom"
	"github.com/scanforge/captureguide/internal/quality"
)

// MarkerSnapshot is a fully owned copy of a MarkerStatus, frozen at capture
// time so tracker updates never race with the next frame's in-flight status.
type MarkerSnapshot struct {
	UnixNanos          int64
	Mode               fiducial.Mode
	FrameWidth         int
	FrameHeight        int
	Detections         []fiducial.TagDetection
	RequiredIDs        []int64
	MissingIDs         []int64
	AllRequiredVisible bool
	FramingOK          bool
}

// SnapshotMarkerStatus deep-copies a live status into an owned snapshot.
func SnapshotMarkerStatus(s *fiducial.MarkerStatus) *MarkerSnapshot {
	if s == nil {
		return nil
	}
	snap := &MarkerSnapshot{
		UnixNanos:          s.UnixNanos,
		Mode:               s.Mode,
		FrameWidth:         s.FrameWidth,
		FrameHeight:        s.FrameHeight,
		AllRequiredVisible: s.AllRequiredVisible,
		FramingOK:          s.FramingOK,
	}
	if len(s.Detections) > 0 {
		snap.Detections = make([]fiducial.TagDetection, len(s.Detections))
		for i, d := range s.Detections {
			copied := d
			if len(d.Corners) > 0 {
				copied.Corners = make([]geom.Point, len(d.Corners))
				copy(copied.Corners, d.Corners)
			}
			snap.Detections[i] = copied
		}
	}
	if len(s.RequiredIDs) > 0 {
		snap.RequiredIDs = append([]int64(nil), s.RequiredIDs...)
	}
	if len(s.MissingIDs) > 0 {
		snap.MissingIDs = append([]int64(nil), s.MissingIDs...)
	}
	return snap
}

// QualitySnapshot is the frozen quality verdict for a committed capture.
type QualitySnapshot struct {
	UnixNanos     int64
	Status        quality.Status
	BlurScore     float64
	DistanceCm    float64
	DistanceKnown bool
}

// SnapshotQualityResult copies a live result into an owned snapshot.
func SnapshotQualityResult(r *quality.Result) *QualitySnapshot {
	if r == nil {
		return nil
	}
	return &QualitySnapshot{
		UnixNanos:     r.UnixNanos,
		Status:        r.Status,
		BlurScore:     r.BlurScore,
		DistanceCm:    r.DistanceCm,
		DistanceKnown: r.DistanceKnown,
	}
}

// detectionCenters extracts the detection centres in pixel space.
func detectionCenters(dets []fiducial.TagDetection) []geom.Point {
	if len(dets) == 0 {
		return nil
	}
	centers := make([]geom.Point, len(dets))
	for i, d := range dets {
		centers[i] = d.Center
	}
	return centers
}
