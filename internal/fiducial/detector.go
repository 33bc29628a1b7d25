package fiducial

import "errors"

// ErrDetectorUnavailable is returned by the disabled detector variant. The
// adapter treats any detector error as zero detections for that frame.
var ErrDetectorUnavailable = errors.New("fiducial: detector unavailable in this build")

// Detector is the fiducial detection capability. Implementations receive a
// tightly packed single-channel luma buffer (the adapter's downsampled ROI)
// and return detections in that buffer's coordinate space.
type Detector interface {
	Detect(luma []byte, width, height int) ([]TagDetection, error)
	Dictionary() string
	Close() error
}

// disabledDetector is the no-op capability variant used when no detection
// backend is compiled in or when the caller explicitly wants none.
type disabledDetector struct{}

// NewDisabledDetector returns a Detector that never detects anything.
func NewDisabledDetector() Detector {
	return disabledDetector{}
}

func (disabledDetector) Detect(luma []byte, width, height int) ([]TagDetection, error) {
	return nil, ErrDetectorUnavailable
}

func (disabledDetector) Dictionary() string { return "none" }

func (disabledDetector) Close() error { return nil }
