package frame

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		f       RawFrame
		wantErr bool
	}{
		{"tight luma", RawFrame{Width: 4, Height: 3, RowStride: 4, PixelStride: 1, Luma: make([]byte, 12)}, false},
		{"padded rows", RawFrame{Width: 4, Height: 3, RowStride: 8, PixelStride: 1, Luma: make([]byte, 24)}, false},
		{"zero width", RawFrame{Width: 0, Height: 3, RowStride: 4, PixelStride: 1, Luma: make([]byte, 12)}, true},
		{"stride too small", RawFrame{Width: 4, Height: 3, RowStride: 3, PixelStride: 1, Luma: make([]byte, 12)}, true},
		{"short buffer", RawFrame{Width: 4, Height: 3, RowStride: 4, PixelStride: 1, Luma: make([]byte, 11)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAtRespectsStrides(t *testing.T) {
	luma := make([]byte, 24)
	luma[8+2] = 42 // row 1, col 2 with row stride 8
	f := RawFrame{Width: 4, Height: 3, RowStride: 8, PixelStride: 1, Luma: luma}
	if got := f.At(2, 1); got != 42 {
		t.Errorf("At(2,1) = %d, want 42", got)
	}
}

func TestIsTightLuma(t *testing.T) {
	tight := RawFrame{PixelStride: 1}
	if !tight.IsTightLuma() {
		t.Error("pixel stride 1 must be tight")
	}
	packed := RawFrame{PixelStride: 4}
	if packed.IsTightLuma() {
		t.Error("pixel stride 4 must not be tight")
	}
}
