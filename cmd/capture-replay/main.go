// capture-replay drives the analysis pipeline with synthetic camera frames,
// or raw luma dumps from a directory, and prints the guidance an operator
// would see. Useful for exercising the session state machines and the
// monitor API without a camera.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/scanforge/captureguide/internal/config"
	"github.com/scanforge/captureguide/internal/fiducial"
	"github.com/scanforge/captureguide/internal/frame"
	"github.com/scanforge/captureguide/internal/guidance"
	"github.com/scanforge/captureguide/internal/monitor"
	"github.com/scanforge/captureguide/internal/pipeline"
)

func parseCSVInt64Slice(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid marker id '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseMode(s string) (fiducial.Mode, error) {
	switch m := fiducial.Mode(s); m {
	case fiducial.ModeOff, fiducial.ModeWarn, fiducial.ModeBlock:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode '%s': want off, warn or block", s)
	}
}

// synthFrame generates a textured luma frame. Every defectEvery-th frame is
// flat grey so the blur classifier has something to reject.
func synthFrame(rng *rand.Rand, width, height, index, defectEvery int) *frame.RawFrame {
	luma := make([]byte, width*height)
	if defectEvery > 0 && index%defectEvery == 0 {
		for i := range luma {
			luma[i] = 128
		}
	} else {
		for i := range luma {
			luma[i] = byte(100 + rng.Intn(60))
		}
	}
	return &frame.RawFrame{
		Width: width, Height: height,
		RowStride: width, PixelStride: 1,
		Luma:      luma,
		UnixNanos: time.Now().UnixNano(),
	}
}

// loadDumpFrames reads raw luma dumps (width*height bytes each) from a
// directory, in name order.
func loadDumpFrames(dir string, width, height int) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	want := width * height
	var dumps [][]byte
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if len(data) != want {
			return nil, fmt.Errorf("%s: %d bytes, want %d (%dx%d luma)", e.Name(), len(data), want, width, height)
		}
		dumps = append(dumps, data)
	}
	if len(dumps) == 0 {
		return nil, fmt.Errorf("no dump files in %s", dir)
	}
	return dumps, nil
}

func main() {
	var (
		configPath   = flag.String("config", "", "path to tuning config JSON (optional)")
		frames       = flag.Int("frames", 120, "number of synthetic frames to replay (0 = run until interrupted)")
		rateHz       = flag.Float64("rate", 30, "synthetic frame rate in Hz")
		width        = flag.Int("width", 1280, "frame width in pixels")
		height       = flag.Int("height", 720, "frame height in pixels")
		listen       = flag.String("listen", "", "serve the monitor API on this address (e.g. :8080)")
		manifestPath = flag.String("manifest", "", "write the session manifest JSON here on exit")
		requiredCSV  = flag.String("required", "", "comma-separated required marker ids")
		mode         = flag.String("mode", "warn", "marker detection mode: off, warn or block")
		captureEvery = flag.Int("capture-every", 10, "commit a capture every N frames (0 = never)")
		defectEvery  = flag.Int("defect-every", 7, "make every N-th frame flat grey (0 = never)")
		diopters     = flag.Float64("diopters", 4.0, "simulated focus distance in diopters (0 = unknown)")
		seed         = flag.Int64("seed", 1, "random seed for the synthetic texture")
		dumpDir      = flag.String("dump-dir", "", "replay raw luma dumps from this directory instead of synthesizing")
		calibration  = flag.Bool("calibration", false, "run a calibration session instead of a capture session")
	)
	flag.Parse()

	var cfg *config.TuningConfig
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}

	det, err := fiducial.NewArucoDetector(cfg.GetMarkerDictionary())
	if err != nil {
		log.Printf("marker detector unavailable, running without detections: %v", err)
		det = fiducial.NewDisabledDetector()
	}

	var focus func() (float64, bool)
	if *diopters > 0 {
		d := *diopters
		focus = func() (float64, bool) { return d, true }
	}

	p := pipeline.New(cfg, det, focus)
	defer p.Close()

	detMode, err := parseMode(*mode)
	if err != nil {
		log.Fatalf("parse mode: %v", err)
	}
	p.Adapter().SetMode(detMode)
	required, err := parseCSVInt64Slice(*requiredCSV)
	if err != nil {
		log.Fatalf("parse required ids: %v", err)
	}
	if len(required) > 0 {
		p.SetRequiredIdentities(required)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go p.Run(ctx)

	if *listen != "" {
		srv := &http.Server{Addr: *listen, Handler: monitor.NewServer(p).Router()}
		go func() {
			log.Printf("monitor API listening on %s", *listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("monitor API: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	var dumps [][]byte
	if *dumpDir != "" {
		loaded, err := loadDumpFrames(*dumpDir, *width, *height)
		if err != nil {
			log.Fatalf("load dumps: %v", err)
		}
		dumps = loaded
		log.Printf("replaying %d luma dumps from %s", len(dumps), *dumpDir)
	}

	var cal *guidance.CalibrationTracker
	if *calibration {
		cal = guidance.NewCalibrationTracker(cfg)
	}

	commit := func(i int) {
		var good bool
		if cal != nil {
			m := guidance.SnapshotMarkerStatus(p.Adapter().Latest())
			q := guidance.SnapshotQualityResult(p.Analyzer().Latest())
			good = cal.OnCaptureSaved(m, q)
		} else {
			_, good = p.CommitCapture()
		}
		if good {
			log.Printf("capture %d committed", i)
		} else {
			log.Printf("capture %d rejected by the good-capture gate", i)
		}
	}

	sessionID := p.Tracker().SessionID()
	if cal != nil {
		sessionID = cal.SessionID()
	}

	rng := rand.New(rand.NewSource(*seed))
	interval := time.Duration(float64(time.Second) / *rateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("replaying %d frames at %.1f Hz (session %s)", *frames, *rateHz, sessionID)

	lastGuidance := ""
	for i := 0; *frames == 0 || i < *frames; i++ {
		select {
		case <-ctx.Done():
			log.Printf("interrupted after %d frames", i)
			goto done
		case <-ticker.C:
		}

		if dumps != nil {
			p.Offer(&frame.RawFrame{
				Width: *width, Height: *height,
				RowStride: *width, PixelStride: 1,
				Luma:      dumps[i%len(dumps)],
				UnixNanos: time.Now().UnixNano(),
			})
		} else {
			p.Offer(synthFrame(rng, *width, *height, i, *defectEvery))
		}

		if g := liveGuidance(p, cal); g != lastGuidance {
			log.Printf("guidance: %s", g)
			lastGuidance = g
		}

		if *captureEvery > 0 && i > 0 && i%*captureEvery == 0 {
			commit(i)
		}
	}

done:
	stats := p.Stats()
	var summary any
	if cal != nil {
		sum := cal.BuildSummary()
		summary = sum
		log.Printf("done: offered %d, replaced %d, processed %d; good captures %d, enough=%v",
			stats.Offered, stats.Replaced, stats.Processed, sum.GoodCaptures, sum.Enough)
		for _, r := range sum.ReasonsIfNotEnough {
			log.Printf("  missing: %s", r)
		}
	} else {
		sum := p.Tracker().BuildManifestSummary()
		summary = sum
		log.Printf("done: offered %d, replaced %d, processed %d; good captures %d, enough=%v",
			stats.Offered, stats.Replaced, stats.Processed, sum.GoodCaptures, sum.Enough)
		for _, r := range sum.ReasonsIfNotEnough {
			log.Printf("  missing: %s", r)
		}
	}

	if *manifestPath != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			log.Fatalf("encode manifest: %v", err)
		}
		if err := os.WriteFile(*manifestPath, data, 0o644); err != nil {
			log.Fatalf("write manifest: %v", err)
		}
		log.Printf("manifest written to %s", *manifestPath)
	}
}

func liveGuidance(p *pipeline.Pipeline, cal *guidance.CalibrationTracker) string {
	if cal == nil {
		return p.LiveGuidance()
	}
	m := guidance.SnapshotMarkerStatus(p.Adapter().Latest())
	q := guidance.SnapshotQualityResult(p.Analyzer().Latest())
	return cal.LiveGuidance(m, q)
}
