package guidance

import (
	"github.com/scanforge/captureguide/internal/config"
	"github.com/scanforge/captureguide/internal/geom"
)

// Phase is a stage of the multi-phase capture protocol. The current phase is
// never stored: it is re-derived from the session counters on every read, so
// it can only advance while counters only increase.
type Phase string

const (
	PhaseAnchor     Phase = "anchor"
	PhaseLeftSweep  Phase = "left_sweep"
	PhaseRightSweep Phase = "right_sweep"
	PhaseCrossArch  Phase = "cross_arch"
	PhaseCleanup    Phase = "cleanup"
)

// sessionCounters is the aggregate session state owned by one tracker.
// All counts only ever increase within a session; the whole struct is
// replaced on reset.
type sessionCounters struct {
	grid [9]int

	// bins[lateral][height] counts good captures whose mean detection
	// centre landed in that lateral/height combination.
	bins [3][3]int

	crossTotal int
	crossHigh  int
	crossLow   int

	goodCaptures int

	// Per-identity capture counts in tracked-identity order.
	perIdentity      map[int64]int
	perIdentityOrder []int64

	stableLocked bool
	stableIDs    []int64
}

func newSessionCounters() sessionCounters {
	return sessionCounters{perIdentity: make(map[int64]int)}
}

func (c *sessionCounters) bin(lat geom.LateralBin, h geom.HeightBin) int {
	return c.bins[int(lat)][int(h)]
}

func (c *sessionCounters) highHits() int {
	return c.bins[0][int(geom.HeightHigh)] + c.bins[1][int(geom.HeightHigh)] + c.bins[2][int(geom.HeightHigh)]
}

func (c *sessionCounters) lowHits() int {
	return c.bins[0][int(geom.HeightLow)] + c.bins[1][int(geom.HeightLow)] + c.bins[2][int(geom.HeightLow)]
}

func (c *sessionCounters) filledCells() int {
	filled := 0
	for _, n := range c.grid {
		if n > 0 {
			filled++
		}
	}
	return filled
}

// trackIdentity ensures an entry exists (in insertion order) and optionally
// increments it.
func (c *sessionCounters) trackIdentity(id int64, present bool) {
	if _, ok := c.perIdentity[id]; !ok {
		c.perIdentity[id] = 0
		c.perIdentityOrder = append(c.perIdentityOrder, id)
	}
	if present {
		c.perIdentity[id]++
	}
}

// Phase completion predicates. Thresholds come from config, not law.

func (c *sessionCounters) anchorComplete(cfg *config.TuningConfig) bool {
	n := cfg.GetAnchorBinTarget()
	return c.bin(geom.LateralCenter, geom.HeightMid) >= n &&
		c.bin(geom.LateralLeft, geom.HeightMid) >= n &&
		c.bin(geom.LateralRight, geom.HeightMid) >= n &&
		c.highHits() >= n &&
		c.lowHits() >= n
}

func (c *sessionCounters) sweepComplete(cfg *config.TuningConfig, side geom.LateralBin) bool {
	return c.bin(side, geom.HeightMid) >= cfg.GetSweepMidTarget() &&
		c.bin(side, geom.HeightHigh) >= cfg.GetSweepEdgeTarget() &&
		c.bin(side, geom.HeightLow) >= cfg.GetSweepEdgeTarget()
}

func (c *sessionCounters) crossArchComplete(cfg *config.TuningConfig) bool {
	return c.crossTotal >= cfg.GetCrossArchTarget() &&
		c.crossHigh >= cfg.GetCrossArchHighTarget() &&
		c.crossLow >= cfg.GetCrossArchLowTarget()
}

// currentPhase returns the first incomplete phase in protocol order, or
// cleanup when everything is complete.
func (c *sessionCounters) currentPhase(cfg *config.TuningConfig) Phase {
	switch {
	case !c.anchorComplete(cfg):
		return PhaseAnchor
	case !c.sweepComplete(cfg, geom.LateralLeft):
		return PhaseLeftSweep
	case !c.sweepComplete(cfg, geom.LateralRight):
		return PhaseRightSweep
	case !c.crossArchComplete(cfg):
		return PhaseCrossArch
	default:
		return PhaseCleanup
	}
}

// isCrossArch reports whether a capture's detections qualify as a
// wide-baseline both-sides view: horizontal spread above the configured
// fraction of frame width with simultaneous left- and right-third presence.
func isCrossArch(cfg *config.TuningConfig, centers []geom.Point, frameWidth int) bool {
	if frameWidth <= 0 || len(centers) < 2 {
		return false
	}
	w := float64(frameWidth)
	return geom.SpreadX(centers) > cfg.GetCrossArchSpreadFraction()*w &&
		geom.HasBilateralPresence(centers, w)
}
