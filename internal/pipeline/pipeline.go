// Package pipeline wires the per-frame analyzers to a live frame source.
// Frames are handed off through a one-slot keep-latest mailbox: when
// analysis is slower than the camera, old frames are replaced, never
// queued, so the worker always sees the freshest frame.
package pipeline

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/scanforge/captureguide/internal/config"
	"github.com/scanforge/captureguide/internal/fiducial"
	"github.com/scanforge/captureguide/internal/frame"
	"github.com/scanforge/captureguide/internal/guidance"
	"github.com/scanforge/captureguide/internal/quality"
)

// Stats is a snapshot of pipeline throughput counters.
type Stats struct {
	Offered   uint64 `json:"offered"`
	Replaced  uint64 `json:"replaced"`
	Processed uint64 `json:"processed"`
}

// Pipeline owns the quality analyzer, the marker adapter and the capture
// tracker, and drives them from a single worker goroutine. Offer is safe to
// call from any goroutine; everything else reads published snapshots.
type Pipeline struct {
	analyzer *quality.Analyzer
	adapter  *fiducial.Adapter
	tracker  *guidance.CaptureTracker

	slot chan *frame.RawFrame

	offered   atomic.Uint64
	replaced  atomic.Uint64
	processed atomic.Uint64
}

// New assembles a pipeline. A nil detector disables marker detection; a nil
// focus function leaves subject distance unknown.
func New(cfg *config.TuningConfig, det fiducial.Detector, focus quality.FocusDioptersFunc) *Pipeline {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Pipeline{
		analyzer: quality.NewAnalyzer(cfg, focus),
		adapter:  fiducial.NewAdapter(cfg, det),
		tracker:  guidance.NewCaptureTracker(cfg),
		slot:     make(chan *frame.RawFrame, 1),
	}
}

// Analyzer exposes the quality analyzer for status reads.
func (p *Pipeline) Analyzer() *quality.Analyzer { return p.analyzer }

// Adapter exposes the marker adapter for mode and identity control.
func (p *Pipeline) Adapter() *fiducial.Adapter { return p.adapter }

// Tracker exposes the capture-session tracker.
func (p *Pipeline) Tracker() *guidance.CaptureTracker { return p.tracker }

// Offer hands a frame to the worker, replacing any frame still waiting in
// the mailbox. Never blocks. The pipeline takes ownership of the frame; the
// caller must not reuse its buffer.
func (p *Pipeline) Offer(f *frame.RawFrame) {
	if f == nil {
		return
	}
	p.offered.Add(1)
	for {
		select {
		case p.slot <- f:
			return
		default:
		}
		select {
		case <-p.slot:
			p.replaced.Add(1)
		default:
		}
	}
}

// Run drains the mailbox until the context is cancelled, feeding each frame
// through marker detection and quality analysis. Blocks; run it on its own
// goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	log.Printf("pipeline: worker started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("pipeline: worker stopped: %v", ctx.Err())
			return
		case f := <-p.slot:
			p.adapter.Process(f)
			p.analyzer.Analyze(f)
			p.processed.Add(1)
		}
	}
}

// Stats reports throughput counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Offered:   p.offered.Load(),
		Replaced:  p.replaced.Load(),
		Processed: p.processed.Load(),
	}
}

// LiveGuidance renders operator text from the latest published analysis
// snapshots.
func (p *Pipeline) LiveGuidance() string {
	m := guidance.SnapshotMarkerStatus(p.adapter.Latest())
	q := guidance.SnapshotQualityResult(p.analyzer.Latest())
	return p.tracker.LiveGuidance(m, q)
}

// CommitCapture records an operator-committed capture against the latest
// published snapshots. Returns the per-capture sidecar and whether the
// capture passed the good-capture gate; a rejected capture still yields a
// sidecar so the caller can persist what was seen.
func (p *Pipeline) CommitCapture() (*guidance.CaptureSidecar, bool) {
	m := guidance.SnapshotMarkerStatus(p.adapter.Latest())
	q := guidance.SnapshotQualityResult(p.analyzer.Latest())
	good := p.tracker.OnCaptureSaved(m, q, p.adapter.Summary())
	return p.tracker.BuildCaptureSidecar(m, q, p.adapter.Dictionary()), good
}

// ResetSession clears per-session state in the adapter and tracker.
func (p *Pipeline) ResetSession() {
	p.adapter.Reset()
	p.tracker.ResetForNewSession()
}

// SetRequiredIdentities pushes a new required-marker set to both the
// adapter and the tracker, resetting session statistics in each.
func (p *Pipeline) SetRequiredIdentities(ids []int64) {
	p.adapter.SetRequiredIdentities(ids)
	p.tracker.OnRequiredIdentitiesChanged(ids)
}

// Close releases detector resources.
func (p *Pipeline) Close() error {
	return p.adapter.Close()
}
