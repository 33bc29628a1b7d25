package pipeline

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scanforge/captureguide/internal/frame"
	"github.com/scanforge/captureguide/internal/quality"
)

func texturedFrame(nanos int64) *frame.RawFrame {
	const w, h = 320, 240
	rng := rand.New(rand.NewSource(42))
	luma := make([]byte, w*h)
	for i := range luma {
		luma[i] = byte(100 + rng.Intn(60))
	}
	return &frame.RawFrame{
		Width: w, Height: h,
		RowStride: w, PixelStride: 1,
		Luma:      luma,
		UnixNanos: nanos,
	}
}

func TestOfferReplacesWaitingFrame(t *testing.T) {
	p := New(nil, nil, nil)

	first := texturedFrame(1)
	second := texturedFrame(2)
	p.Offer(first)
	p.Offer(second)

	select {
	case f := <-p.slot:
		if f != second {
			t.Error("mailbox held the stale frame")
		}
	default:
		t.Fatal("mailbox empty after two offers")
	}

	stats := p.Stats()
	if stats.Offered != 2 || stats.Replaced != 1 {
		t.Errorf("stats = %+v, want offered 2 replaced 1", stats)
	}
}

func TestOfferNilIsNoop(t *testing.T) {
	p := New(nil, nil, nil)
	p.Offer(nil)
	if stats := p.Stats(); stats.Offered != 0 {
		t.Errorf("nil offer counted: %+v", stats)
	}
}

func TestRunProcessesOfferedFrames(t *testing.T) {
	focus := func() (float64, bool) { return 4.0, true } // 25 cm
	p := New(nil, nil, focus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Offer(texturedFrame(time.Now().UnixNano()))

	require.Eventually(t, func() bool {
		return p.Analyzer().Latest() != nil && p.Adapter().Latest() != nil
	}, 2*time.Second, 5*time.Millisecond, "worker never published analysis results")

	res := p.Analyzer().Latest()
	require.Equal(t, quality.StatusOK, res.Status)
	require.True(t, res.DistanceKnown)
	require.InDelta(t, 25.0, res.DistanceCm, 0.01)

	if p.Stats().Processed == 0 {
		t.Error("processed counter never advanced")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestCommitCaptureWithoutDetectionsIsRejected(t *testing.T) {
	focus := func() (float64, bool) { return 4.0, true }
	p := New(nil, nil, focus)

	// Analyze a frame directly so a quality snapshot exists; the disabled
	// detector never yields detections, so the gate must reject.
	f := texturedFrame(time.Now().UnixNano())
	p.Adapter().Process(f)
	p.Analyzer().Analyze(f)

	sc, good := p.CommitCapture()
	if good {
		t.Error("capture with zero detections must not qualify")
	}
	if sc == nil {
		t.Error("rejected capture should still yield a sidecar")
	}
	if sum := p.Tracker().BuildManifestSummary(); sum.GoodCaptures != 0 {
		t.Errorf("rejected capture mutated counters: %+v", sum)
	}
}

func TestResetSessionChangesIdentity(t *testing.T) {
	p := New(nil, nil, nil)
	before := p.Tracker().SessionID()
	p.ResetSession()
	if p.Tracker().SessionID() == before {
		t.Error("reset must assign a new session id")
	}
}
