package quality

import (
	"math/rand"
	"testing"

	"github.com/scanforge/captureguide/internal/frame"
)

const (
	testW = 320
	testH = 240
)

// uniformFrame fills every pixel with the same luma value.
func uniformFrame(value byte, nanos int64) *frame.RawFrame {
	buf := make([]byte, testW*testH)
	for i := range buf {
		buf[i] = value
	}
	return &frame.RawFrame{
		Width: testW, Height: testH,
		RowStride: testW, PixelStride: 1,
		Luma: buf, UnixNanos: nanos,
	}
}

// texturedFrame fills the frame with deterministic mid-range noise so the
// Laplacian variance is comfortably above the blur threshold without any
// clipped pixels (values stay inside [100, 160)).
func texturedFrame(nanos int64) *frame.RawFrame {
	rng := rand.New(rand.NewSource(42))
	buf := make([]byte, testW*testH)
	for i := range buf {
		buf[i] = byte(100 + rng.Intn(60))
	}
	return &frame.RawFrame{
		Width: testW, Height: testH,
		RowStride: testW, PixelStride: 1,
		Luma: buf, UnixNanos: nanos,
	}
}

// paintBlock overwrites a rectangle with the given value.
func paintBlock(f *frame.RawFrame, x0, y0, w, h int, value byte) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			f.Luma[y*f.RowStride+x] = value
		}
	}
}

func analyzeOne(t *testing.T, f *frame.RawFrame) *Result {
	t.Helper()
	a := NewAnalyzer(nil, nil)
	res, ok := a.Analyze(f)
	if !ok {
		t.Fatal("Analyze skipped a valid frame")
	}
	return res
}

func TestAnalyzeBlur(t *testing.T) {
	// A featureless frame has zero Laplacian variance, far below the
	// default threshold of 150.
	res := analyzeOne(t, uniformFrame(128, 1e9))
	if res.Status != StatusBlur {
		t.Errorf("status = %s, want %s", res.Status, StatusBlur)
	}
	if res.BlurScore != 0 {
		t.Errorf("blur score = %f, want 0", res.BlurScore)
	}
}

func TestAnalyzeOK(t *testing.T) {
	res := analyzeOne(t, texturedFrame(1e9))
	if res.Status != StatusOK {
		t.Errorf("status = %s (blur %.1f over %.4f under %.4f), want %s",
			res.Status, res.BlurScore, res.OverFraction, res.UnderFraction, StatusOK)
	}
	if res.BlurScore < 150 {
		t.Errorf("textured frame blur score = %f, expected well above 150", res.BlurScore)
	}
}

func TestAnalyzeSpecularVersusOver(t *testing.T) {
	// The default 40% ROI of a 320x240 frame is [96,224)x[72,168).
	// Two small 255-value blocks inside it clip ~2.6% of sampled pixels
	// while forming two components of ~40 samples each: specular, not
	// over-exposed.
	f := texturedFrame(1e9)
	paintBlock(f, 100, 80, 16, 10, 255)
	paintBlock(f, 180, 120, 16, 10, 255)

	res := analyzeOne(t, f)
	if res.Status != StatusSpecular {
		t.Errorf("status = %s (over %.4f clusters %d largest %d), want %s",
			res.Status, res.OverFraction, res.ClusterCount, res.LargestCluster, StatusSpecular)
	}
	if res.OverFraction <= 0.02 {
		t.Errorf("over fraction = %f, expected above the 0.02 threshold", res.OverFraction)
	}
	if res.ClusterCount != 2 {
		t.Errorf("cluster count = %d, want 2", res.ClusterCount)
	}

	// One large blown-out region with the same kind of fraction is
	// over-exposed: its single component exceeds the size tolerance.
	f = texturedFrame(2e9)
	paintBlock(f, 120, 90, 40, 30, 255)

	res = analyzeOne(t, f)
	if res.Status != StatusOver {
		t.Errorf("status = %s (clusters %d largest %d), want %s",
			res.Status, res.ClusterCount, res.LargestCluster, StatusOver)
	}
	if res.ClusterCount != 1 {
		t.Errorf("cluster count = %d, want 1", res.ClusterCount)
	}
	if res.LargestCluster <= 100 {
		t.Errorf("largest cluster = %d, expected above the 100 tolerance", res.LargestCluster)
	}
}

func TestAnalyzeUnder(t *testing.T) {
	f := texturedFrame(1e9)
	paintBlock(f, 110, 90, 30, 30, 0)

	res := analyzeOne(t, f)
	if res.Status != StatusUnder {
		t.Errorf("status = %s (under %.4f), want %s", res.Status, res.UnderFraction, StatusUnder)
	}
	if res.UnderFraction <= 0.05 {
		t.Errorf("under fraction = %f, expected above the 0.05 threshold", res.UnderFraction)
	}
}

func TestAnalyzeThrottle(t *testing.T) {
	a := NewAnalyzer(nil, nil)

	const ms = int64(1e6)
	if _, ok := a.Analyze(texturedFrame(1000 * ms)); !ok {
		t.Fatal("first frame must be analyzed")
	}
	// 10ms later: inside the 12Hz interval (~83ms), dropped.
	if _, ok := a.Analyze(texturedFrame(1010 * ms)); ok {
		t.Error("frame inside the throttle interval must be dropped")
	}
	// 100ms after the first: past the interval, analyzed.
	if _, ok := a.Analyze(texturedFrame(1100 * ms)); !ok {
		t.Error("frame past the throttle interval must be analyzed")
	}
}

func TestAnalyzeRejectsUnsupportedLayout(t *testing.T) {
	a := NewAnalyzer(nil, nil)

	f := texturedFrame(1e9)
	f.PixelStride = 2
	if _, ok := a.Analyze(f); ok {
		t.Error("multi-byte pixel stride must be rejected")
	}
	if a.Latest() != nil {
		t.Error("rejected frame must not publish a result")
	}

	if _, ok := a.Analyze(nil); ok {
		t.Error("nil frame must be rejected")
	}

	short := texturedFrame(1e9)
	short.Luma = short.Luma[:10]
	if _, ok := a.Analyze(short); ok {
		t.Error("undersized buffer must be rejected")
	}
}

func TestAnalyzeDistanceEstimate(t *testing.T) {
	focus := func() (float64, bool) { return 5.0, true }
	a := NewAnalyzer(nil, focus)

	res, ok := a.Analyze(texturedFrame(1e9))
	if !ok {
		t.Fatal("Analyze skipped a valid frame")
	}
	if !res.DistanceKnown {
		t.Fatal("distance must be known when diopters are available")
	}
	if res.DistanceCm != 20.0 {
		t.Errorf("distance = %f cm, want 20.0 (100/5 diopters)", res.DistanceCm)
	}

	// Zero or missing diopters leave the estimate unavailable.
	a = NewAnalyzer(nil, func() (float64, bool) { return 0, true })
	res, _ = a.Analyze(texturedFrame(1e9))
	if res.DistanceKnown {
		t.Error("zero diopters must not produce a distance")
	}
}

func TestAnalyzePublishesLatest(t *testing.T) {
	a := NewAnalyzer(nil, nil)
	if a.Latest() != nil {
		t.Fatal("Latest must be nil before any frame")
	}
	res, _ := a.Analyze(texturedFrame(1e9))
	if got := a.Latest(); got != res {
		t.Error("Latest must return the published result")
	}
}

func TestAnalyzeUnknownOnDegenerateROI(t *testing.T) {
	// A 4x4 frame leaves no Laplacian interior to sample.
	buf := make([]byte, 16)
	f := &frame.RawFrame{Width: 4, Height: 4, RowStride: 4, PixelStride: 1, Luma: buf, UnixNanos: 1e9}

	res, ok := NewAnalyzer(nil, nil).Analyze(f)
	if !ok {
		t.Fatal("degenerate frame should still produce a result")
	}
	if res.Status != StatusUnknown {
		t.Errorf("status = %s, want %s", res.Status, StatusUnknown)
	}
}
