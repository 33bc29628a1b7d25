// Package fiducial detects printed marker tags in camera frames and tracks
// per-session marker visibility. Detection runs on a downsampled centre
// region of interest; results are remapped to full-frame pixel coordinates
// before publication.
package fiducial

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/scanforge/captureguide/internal/geom"
)

// Mode controls how marker detection participates in capture gating.
type Mode string

const (
	// ModeOff disables detection work; Process still publishes a
	// lightweight status so callers can observe the pipeline is alive.
	ModeOff Mode = "off"
	// ModeWarn runs detection and reports problems without blocking capture.
	ModeWarn Mode = "warn"
	// ModeBlock runs detection and the caller is expected to block the
	// capture action while requirements are unmet.
	ModeBlock Mode = "block"
)

// TagDetection is one decoded fiducial in full-frame pixel space.
type TagDetection struct {
	ID      int64        `json:"id"`
	Center  geom.Point   `json:"center"`
	Corners []geom.Point `json:"corners,omitempty"` // ordered, >= 4 when present
	Quality float64      `json:"quality"`           // polygon area / ROI area, in [0,1]
}

// MarkerStatus is the per-frame detection outcome. A new status replaces the
// previous one wholesale via an atomic swap, so concurrent readers never see
// a partially updated value.
type MarkerStatus struct {
	UnixNanos          int64          `json:"unix_nanos"`
	Mode               Mode           `json:"mode"`
	FrameWidth         int            `json:"frame_width"`
	FrameHeight        int            `json:"frame_height"`
	Detections         []TagDetection `json:"detections,omitempty"`
	RequiredIDs        []int64        `json:"required_ids,omitempty"`
	MissingIDs         []int64        `json:"missing_ids,omitempty"`
	AllRequiredVisible bool           `json:"all_required_visible"`
	FramingOK          bool           `json:"framing_ok"`
	Guidance           string         `json:"guidance"`
	Display            string         `json:"display"`
	Err                string         `json:"error,omitempty"`
}

// buildGuidanceText produces the operator guidance and display strings.
// It is a pure function of its four inputs so identical detection outcomes
// always render identically.
func buildGuidanceText(total int, required, missing []int64, framingOK bool) (guidance, display string) {
	if len(required) > 0 {
		display = fmt.Sprintf("%d/%d markers", len(required)-len(missing), len(required))
	} else {
		display = fmt.Sprintf("%d markers", total)
	}

	switch {
	case total == 0:
		guidance = "No markers visible - aim at the marked area"
	case len(missing) > 0:
		guidance = "Missing markers: " + formatIDs(missing)
	case !framingOK:
		guidance = "Markers too close to the edge - reframe"
	default:
		guidance = "Markers OK"
	}
	return guidance, display
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

// normalizeRequired de-duplicates and sorts a required-identity list so the
// missing-identity ordering is reproducible.
func normalizeRequired(ids []int64) []int64 {
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

// missingFrom returns the required identities absent from the detections,
// preserving the (normalized) required-list order.
func missingFrom(required []int64, detections []TagDetection) []int64 {
	if len(required) == 0 {
		return nil
	}
	present := make(map[int64]struct{}, len(detections))
	for _, d := range detections {
		present[d.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range required {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
