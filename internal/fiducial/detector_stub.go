//go:build !gocv
// +build !gocv

package fiducial

// NewArucoDetector returns the disabled variant when the build does not
// include the gocv backend. Detection errors degrade to zero detections at
// the adapter, so the pipeline keeps running without OpenCV.
func NewArucoDetector(dictName string) (Detector, error) {
	return disabledDetector{}, nil
}
