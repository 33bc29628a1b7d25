// Package geom provides the pure spatial classification helpers used by the
// capture guidance trackers: 3x3 grid binning, lateral/height bins,
// detection spread, and stable-identity selection. Nothing here holds state.
package geom

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Point is a position in either pixel or normalized coordinate space.
type Point struct {
	X float64
	Y float64
}

// LateralBin classifies a horizontal position into thirds of the frame.
type LateralBin int

const (
	LateralLeft LateralBin = iota
	LateralCenter
	LateralRight
)

func (b LateralBin) String() string {
	switch b {
	case LateralLeft:
		return "left"
	case LateralCenter:
		return "center"
	case LateralRight:
		return "right"
	}
	return "unknown"
}

// HeightBin classifies a vertical position into thirds of the frame.
// Image y grows downward, so the top third is "high".
type HeightBin int

const (
	HeightHigh HeightBin = iota
	HeightMid
	HeightLow
)

func (b HeightBin) String() string {
	switch b {
	case HeightHigh:
		return "high"
	case HeightMid:
		return "mid"
	case HeightLow:
		return "low"
	}
	return "unknown"
}

// boundaryTolerance snaps values this close below a third boundary into the
// upper bin, so 0.333333 classifies with 1/3 and 0.666666 with 2/3 despite
// falling a hair short in floating point.
const boundaryTolerance = 1e-6

// thirdBin maps a normalized value in [0,1] to 0, 1 or 2 using half-open
// thirds [0,1/3), [1/3,2/3), [2/3,1].
func thirdBin(v float64) int {
	switch {
	case v >= 2.0/3.0-boundaryTolerance:
		return 2
	case v >= 1.0/3.0-boundaryTolerance:
		return 1
	default:
		return 0
	}
}

// GridCell maps a normalized point to one of 9 cells in row-major order:
// cell = row*3 + column, row from ny, column from nx. (0,0) is cell 0,
// (0.5,0.5) is cell 4, (0.99,0.99) is cell 8.
func GridCell(nx, ny float64) int {
	return thirdBin(clamp01(ny))*3 + thirdBin(clamp01(nx))
}

// CellRowCol splits a 0..8 grid cell back into (row, column).
func CellRowCol(cell int) (row, col int) {
	return cell / 3, cell % 3
}

// CellName renders a grid cell as operator-facing text, e.g. "top left".
func CellName(cell int) string {
	rows := [3]string{"top", "middle", "bottom"}
	cols := [3]string{"left", "center", "right"}
	row, col := CellRowCol(cell)
	if row < 0 || row > 2 || col < 0 || col > 2 {
		return fmt.Sprintf("cell %d", cell)
	}
	return rows[row] + " " + cols[col]
}

// LateralBinOf classifies a normalized x position.
func LateralBinOf(nx float64) LateralBin {
	return LateralBin(thirdBin(clamp01(nx)))
}

// HeightBinOf classifies a normalized y position.
func HeightBinOf(ny float64) HeightBin {
	return HeightBin(thirdBin(clamp01(ny)))
}

// Normalize maps a pixel position into [0,1]x[0,1] for the given frame size.
func Normalize(p Point, width, height int) Point {
	if width <= 0 || height <= 0 {
		return Point{}
	}
	return Point{
		X: clamp01(p.X / float64(width)),
		Y: clamp01(p.Y / float64(height)),
	}
}

// MeanCenter returns the arithmetic mean of the points, or false when empty.
func MeanCenter(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return Point{X: sx / n, Y: sy / n}, true
}

// SpreadX returns the horizontal extent (max x - min x) of the points.
func SpreadX(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	xs := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
	}
	return floats.Max(xs) - floats.Min(xs)
}

// HasBilateralPresence reports whether the points occupy both the left and
// right thirds of a frame of the given width simultaneously.
func HasBilateralPresence(points []Point, width float64) bool {
	if width <= 0 {
		return false
	}
	var left, right bool
	for _, p := range points {
		switch LateralBinOf(p.X / width) {
		case LateralLeft:
			left = true
		case LateralRight:
			right = true
		}
	}
	return left && right
}

// ChooseStableIdentities picks the n most frequently seen identities from a
// visibility tally, ordered by descending count then ascending identity.
// Returns exactly min(n, distinct) identities; repeated calls with the same
// tally yield the same slice.
func ChooseStableIdentities(tally map[int64]int, n int) []int64 {
	if n <= 0 || len(tally) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(tally))
	for id := range tally {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if tally[ids[i]] != tally[ids[j]] {
			return tally[ids[i]] > tally[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
