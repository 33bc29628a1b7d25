package fiducial

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/scanforge/captureguide/internal/config"
	"github.com/scanforge/captureguide/internal/frame"
	"github.com/scanforge/captureguide/internal/geom"
)

// scriptedDetector returns a fixed script of detections in reduced-buffer
// coordinates, one entry per Detect call (the last entry repeats).
type scriptedDetector struct {
	script [][]TagDetection
	errs   []error
	calls  int
}

func (s *scriptedDetector) Detect(luma []byte, width, height int) ([]TagDetection, error) {
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	if i < 0 {
		return nil, nil
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.script[i], err
}

func (s *scriptedDetector) Dictionary() string { return "scripted" }
func (s *scriptedDetector) Close() error       { return nil }

func lumaFrame(w, h int, nanos int64) *frame.RawFrame {
	buf := make([]byte, w*h)
	for i := range buf {
		buf[i] = 128
	}
	return &frame.RawFrame{Width: w, Height: h, RowStride: w, PixelStride: 1, Luma: buf, UnixNanos: nanos}
}

func TestProcessOffMode(t *testing.T) {
	a := NewAdapter(nil, NewDisabledDetector())

	status := a.Process(lumaFrame(640, 480, 1e9))
	if status == nil {
		t.Fatal("Process returned nil status")
	}
	if status.Mode != ModeOff {
		t.Errorf("mode = %s, want off", status.Mode)
	}
	if status.Guidance != "Marker detection off" {
		t.Errorf("guidance = %q", status.Guidance)
	}
	if got := a.Latest(); got != status {
		t.Error("Latest must return the published status")
	}
	if sum := a.Summary(); sum.FramesProcessed != 0 {
		t.Errorf("off-mode frames must not count toward the session, got %d", sum.FramesProcessed)
	}
}

func TestProcessRemapsCoordinates(t *testing.T) {
	// 640x480 with the default 60% ROI: origin (128, 96), size 384x288,
	// downsample step 2. Reduced (50, 40) maps to (128+100, 96+80).
	det := &scriptedDetector{script: [][]TagDetection{{
		{
			ID:     7,
			Center: geom.Point{X: 50, Y: 40},
			Corners: []geom.Point{
				{X: 40, Y: 30}, {X: 60, Y: 30}, {X: 60, Y: 50}, {X: 40, Y: 50},
			},
		},
	}}}
	a := NewAdapter(nil, det)
	a.SetMode(ModeBlock)

	status := a.Process(lumaFrame(640, 480, 1e9))
	if len(status.Detections) != 1 {
		t.Fatalf("got %d detections, want 1", len(status.Detections))
	}
	d := status.Detections[0]
	if d.Center.X != 228 || d.Center.Y != 176 {
		t.Errorf("center = (%f, %f), want (228, 176)", d.Center.X, d.Center.Y)
	}
	wantCorners := []geom.Point{
		{X: 208, Y: 156}, {X: 248, Y: 156}, {X: 248, Y: 196}, {X: 208, Y: 196},
	}
	if diff := cmp.Diff(wantCorners, d.Corners); diff != "" {
		t.Errorf("corners mismatch (-want +got):\n%s", diff)
	}

	// Quality proxy: 40x40 px polygon over a 384x288 ROI.
	wantQuality := 1600.0 / (384.0 * 288.0)
	if math.Abs(d.Quality-wantQuality) > 1e-9 {
		t.Errorf("quality = %f, want %f", d.Quality, wantQuality)
	}
	if !status.FramingOK {
		t.Error("detection well inside the frame must pass framing")
	}
}

func TestProcessMissingRequired(t *testing.T) {
	det := &scriptedDetector{script: [][]TagDetection{{
		{ID: 5, Center: geom.Point{X: 50, Y: 40}},
	}}}
	a := NewAdapter(nil, det)
	a.SetMode(ModeWarn)
	a.SetRequiredIdentities([]int64{7, 3, 5, 3}) // duplicates collapse, order sorts

	status := a.Process(lumaFrame(640, 480, 1e9))
	if diff := cmp.Diff([]int64{3, 5, 7}, status.RequiredIDs); diff != "" {
		t.Errorf("required ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{3, 7}, status.MissingIDs); diff != "" {
		t.Errorf("missing ids (-want +got):\n%s", diff)
	}
	if status.AllRequiredVisible {
		t.Error("AllRequiredVisible must be false with missing ids")
	}
	if status.Guidance != "Missing markers: 3, 7" {
		t.Errorf("guidance = %q", status.Guidance)
	}
	if status.Display != "1/3 markers" {
		t.Errorf("display = %q", status.Display)
	}
}

func TestProcessFramingViolation(t *testing.T) {
	// Full-frame ROI so reduced coordinates can reach the frame edge.
	frac := 1.0
	cfg := &config.TuningConfig{MarkerROIFraction: &frac}

	det := &scriptedDetector{script: [][]TagDetection{{
		{ID: 1, Center: geom.Point{X: 5, Y: 100}}, // maps to x=10, inside the 64px margin
	}}}
	a := NewAdapter(cfg, det)
	a.SetMode(ModeBlock)

	status := a.Process(lumaFrame(640, 480, 1e9))
	if status.FramingOK {
		t.Error("detection at the frame edge must fail framing")
	}
	if status.Guidance != "Markers too close to the edge - reframe" {
		t.Errorf("guidance = %q", status.Guidance)
	}
}

func TestProcessSessionCounters(t *testing.T) {
	det := &scriptedDetector{script: [][]TagDetection{
		{{ID: 1, Center: geom.Point{X: 50, Y: 40}}, {ID: 2, Center: geom.Point{X: 60, Y: 40}}},
		{{ID: 1, Center: geom.Point{X: 50, Y: 40}}},
		{{ID: 1, Center: geom.Point{X: 50, Y: 40}}, {ID: 1, Center: geom.Point{X: 70, Y: 40}}},
	}}
	a := NewAdapter(nil, det)
	a.SetMode(ModeWarn)
	a.SetRequiredIdentities([]int64{1})

	for i := int64(0); i < 3; i++ {
		a.Process(lumaFrame(640, 480, 1e9+i))
	}

	sum := a.Summary()
	if sum.FramesProcessed != 3 {
		t.Errorf("frames processed = %d, want 3", sum.FramesProcessed)
	}
	if sum.FramesAllRequiredVisible != 3 {
		t.Errorf("all-required-visible frames = %d, want 3", sum.FramesAllRequiredVisible)
	}
	// Duplicate ids within one frame count once.
	want := map[int64]int{1: 3, 2: 1}
	if diff := cmp.Diff(want, sum.VisibilityTally); diff != "" {
		t.Errorf("tally (-want +got):\n%s", diff)
	}

	a.Reset()
	sum = a.Summary()
	if sum.FramesProcessed != 0 || len(sum.VisibilityTally) != 0 {
		t.Errorf("Reset must clear counters, got %+v", sum)
	}
}

func TestSetRequiredIdentitiesResetsCounters(t *testing.T) {
	det := &scriptedDetector{script: [][]TagDetection{
		{{ID: 1, Center: geom.Point{X: 50, Y: 40}}},
	}}
	a := NewAdapter(nil, det)
	a.SetMode(ModeWarn)
	a.Process(lumaFrame(640, 480, 1e9))

	if sum := a.Summary(); sum.FramesProcessed != 1 {
		t.Fatalf("frames processed = %d, want 1", sum.FramesProcessed)
	}

	// Changing the requirement set invalidates prior statistics.
	a.SetRequiredIdentities([]int64{1, 2})
	if sum := a.Summary(); sum.FramesProcessed != 0 || len(sum.VisibilityTally) != 0 {
		t.Errorf("required-identity change must reset counters, got %+v", sum)
	}
}

func TestProcessUnsupportedLayout(t *testing.T) {
	a := NewAdapter(nil, NewDisabledDetector())
	a.SetMode(ModeWarn)

	f := lumaFrame(640, 480, 1e9)
	f.PixelStride = 2
	status := a.Process(f)
	if status.Err == "" {
		t.Error("unsupported layout must set an explicit error message")
	}
	if len(status.Detections) != 0 {
		t.Error("unsupported layout must not carry detections")
	}
}

func TestProcessDetectorFailureMeansZeroDetections(t *testing.T) {
	a := NewAdapter(nil, NewDisabledDetector())
	a.SetMode(ModeBlock)

	status := a.Process(lumaFrame(640, 480, 1e9))
	if status.Err != "" {
		t.Errorf("detector failure must not surface as a status error, got %q", status.Err)
	}
	if len(status.Detections) != 0 {
		t.Error("detector failure must yield zero detections")
	}
	if status.Guidance != "No markers visible - aim at the marked area" {
		t.Errorf("guidance = %q", status.Guidance)
	}
	if sum := a.Summary(); sum.FramesProcessed != 1 {
		t.Errorf("failed detection still counts as a processed frame, got %d", sum.FramesProcessed)
	}
}

func TestBuildGuidanceTextDeterministic(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		required  []int64
		missing   []int64
		framingOK bool
		guidance  string
		display   string
	}{
		{"nothing visible", 0, nil, nil, true, "No markers visible - aim at the marked area", "0 markers"},
		{"missing required", 2, []int64{1, 2, 3}, []int64{3}, true, "Missing markers: 3", "2/3 markers"},
		{"bad framing", 3, nil, nil, false, "Markers too close to the edge - reframe", "3 markers"},
		{"all good", 4, []int64{1, 2}, nil, true, "Markers OK", "2/2 markers"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g1, d1 := buildGuidanceText(tc.total, tc.required, tc.missing, tc.framingOK)
			g2, d2 := buildGuidanceText(tc.total, tc.required, tc.missing, tc.framingOK)
			if g1 != tc.guidance || d1 != tc.display {
				t.Errorf("got (%q, %q), want (%q, %q)", g1, d1, tc.guidance, tc.display)
			}
			if g1 != g2 || d1 != d2 {
				t.Error("guidance text must be reproducible from its inputs")
			}
		})
	}
}
