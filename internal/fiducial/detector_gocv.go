//go:build gocv
// +build gocv

package fiducial

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/scanforge/captureguide/internal/geom"
)

// arucoDetector decodes ArUco markers with OpenCV via gocv.
type arucoDetector struct {
	dictName string
	det      gocv.ArucoDetector
}

// NewArucoDetector builds an ArUco-backed Detector for the named predefined
// dictionary (e.g. "4X4_50").
func NewArucoDetector(dictName string) (Detector, error) {
	code, err := arucoDictByName(dictName)
	if err != nil {
		return nil, err
	}
	dict := gocv.GetPredefinedDictionary(code)
	params := gocv.NewArucoDetectorParameters()
	return &arucoDetector{
		dictName: dictName,
		det:      gocv.NewArucoDetectorWithParams(dict, params),
	}, nil
}

func arucoDictByName(name string) (gocv.ArucoDictionaryCode, error) {
	switch name {
	case "4X4_50":
		return gocv.ArucoDict4x4_50, nil
	case "4X4_100":
		return gocv.ArucoDict4x4_100, nil
	case "5X5_50":
		return gocv.ArucoDict5x5_50, nil
	case "6X6_250":
		return gocv.ArucoDict6x6_250, nil
	case "ORIGINAL":
		return gocv.ArucoDictArucoOriginal, nil
	}
	return 0, fmt.Errorf("fiducial: unknown marker dictionary %q", name)
}

func (d *arucoDetector) Detect(luma []byte, width, height int) ([]TagDetection, error) {
	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, luma)
	if err != nil {
		return nil, fmt.Errorf("fiducial: wrap luma buffer: %w", err)
	}
	defer mat.Close()

	corners, ids, _ := d.det.DetectMarkers(mat)
	if len(ids) == 0 {
		return nil, nil
	}

	out := make([]TagDetection, 0, len(ids))
	for i, id := range ids {
		det := TagDetection{ID: int64(id)}
		if i < len(corners) {
			quad := corners[i]
			pts := make([]geom.Point, len(quad))
			var sx, sy float64
			for j, p := range quad {
				pts[j] = geom.Point{X: float64(p.X), Y: float64(p.Y)}
				sx += float64(p.X)
				sy += float64(p.Y)
			}
			det.Corners = pts
			if len(quad) > 0 {
				det.Center = geom.Point{X: sx / float64(len(quad)), Y: sy / float64(len(quad))}
			}
		}
		out = append(out, det)
	}
	return out, nil
}

func (d *arucoDetector) Dictionary() string { return d.dictName }

func (d *arucoDetector) Close() error { return d.det.Close() }
