// Package frame defines the raw luma frame view handed to the analyzers.
//
// A RawFrame is an immutable view over buffer memory owned by the frame
// source. It must not be retained past a single analysis call: the source
// is free to reuse the backing buffer for the next frame.
package frame

import "fmt"

// RawFrame describes one single-channel (luma) camera frame.
type RawFrame struct {
	Width       int
	Height      int
	RowStride   int   // bytes per row in Luma
	PixelStride int   // bytes per pixel; only 1 is analyzable
	Luma        []byte
	UnixNanos   int64 // monotonic capture timestamp
}

// Validate checks that the buffer geometry is internally consistent.
func (f *RawFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if f.RowStride < f.Width*f.PixelStride {
		return fmt.Errorf("row stride %d too small for width %d", f.RowStride, f.Width)
	}
	if need := (f.Height-1)*f.RowStride + f.Width*f.PixelStride; len(f.Luma) < need {
		return fmt.Errorf("luma buffer %d bytes, need %d", len(f.Luma), need)
	}
	return nil
}

// IsTightLuma reports whether the buffer is plain one-byte-per-pixel luma,
// the only layout the analyzers accept.
func (f *RawFrame) IsTightLuma() bool {
	return f.PixelStride == 1
}

// At returns the luma value at (x, y). No bounds checking beyond the slice's.
func (f *RawFrame) At(x, y int) byte {
	return f.Luma[y*f.RowStride+x*f.PixelStride]
}
