package guidance

// ManifestVersion identifies the summary schema consumed by downstream
// tooling. Field names and the "0".."8" row-major grid keys are a stable
// contract; do not rename or reorder.
const ManifestVersion = 1

// Targets carries the per-metric sufficiency targets in effect.
type Targets struct {
	GoodCaptures        int `json:"goodCaptures"`
	GridCellsFilled     int `json:"gridCellsFilled"`
	PerIdentityCaptures int `json:"perIdentityCaptures,omitempty"`
}

// AnchorProgress is the anchor phase breakdown.
type AnchorProgress struct {
	CenterMid int  `json:"centerMid"`
	LeftMid   int  `json:"leftMid"`
	RightMid  int  `json:"rightMid"`
	High      int  `json:"high"`
	Low       int  `json:"low"`
	Complete  bool `json:"complete"`
}

// SweepProgress is a left- or right-sweep phase breakdown.
type SweepProgress struct {
	Mid      int  `json:"mid"`
	High     int  `json:"high"`
	Low      int  `json:"low"`
	Complete bool `json:"complete"`
}

// CrossArchProgress is the cross-arch phase breakdown.
type CrossArchProgress struct {
	Total    int  `json:"total"`
	High     int  `json:"high"`
	Low      int  `json:"low"`
	Complete bool `json:"complete"`
}

// PhaseBreakdown groups the per-phase progress sub-objects.
type PhaseBreakdown struct {
	Current    string            `json:"current"`
	Anchor     AnchorProgress    `json:"anchor"`
	LeftSweep  SweepProgress     `json:"leftSweep"`
	RightSweep SweepProgress     `json:"rightSweep"`
	CrossArch  CrossArchProgress `json:"crossArch"`
}

// ManifestSummary is the end-of-session record a caller persists alongside
// the captured images.
type ManifestSummary struct {
	Version            int            `json:"version"`
	SessionID          string         `json:"sessionId"`
	TrackedIDs         []int64        `json:"trackedIds"`
	MinDistanceCm      float64        `json:"minDistanceCm"`
	MaxDistanceCm      float64        `json:"maxDistanceCm"`
	EdgeMarginFraction float64        `json:"edgeMarginFraction"`
	GoodCaptures       int            `json:"goodCaptures"`
	Targets            Targets        `json:"targets"`
	GridCounts         map[string]int `json:"gridCounts"`
	GridCellsFilled    int            `json:"gridCellsFilled"`
	PerIdentityCounts  map[string]int `json:"perIdentityCounts"`
	Phases             PhaseBreakdown `json:"phases"`
	Enough             bool           `json:"enough"`
	ReasonsIfNotEnough []string       `json:"reasonsIfNotEnough"`
}

// CalibrationSummary is the calibration-session counterpart. It shares the
// grid contract with ManifestSummary but carries no phase or identity state.
type CalibrationSummary struct {
	Version            int            `json:"version"`
	SessionID          string         `json:"sessionId"`
	MinDistanceCm      float64        `json:"minDistanceCm"`
	MaxDistanceCm      float64        `json:"maxDistanceCm"`
	GoodCaptures       int            `json:"goodCaptures"`
	Targets            Targets        `json:"targets"`
	GridCounts         map[string]int `json:"gridCounts"`
	GridCellsFilled    int            `json:"gridCellsFilled"`
	Enough             bool           `json:"enough"`
	ReasonsIfNotEnough []string       `json:"reasonsIfNotEnough"`
}
