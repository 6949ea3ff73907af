package color

import (
	"math"
	"testing"

	"github.com/gogpu/gputypes"
)

// TestUnorm8 tests clamping and rounding.
func TestUnorm8(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{-1, 0},
		{0, 0},
		{0.5, 128},
		{1, 255},
		{2, 255},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := Unorm8(tt.in); got != tt.want {
			t.Errorf("Unorm8(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// TestSRGBRoundTrip tests that decode inverts encode.
func TestSRGBRoundTrip(t *testing.T) {
	for i := 0; i <= 100; i++ {
		l := float64(i) / 100
		if got := DecodeSRGB(EncodeSRGB(l)); math.Abs(got-l) > 1e-9 {
			t.Errorf("DecodeSRGB(EncodeSRGB(%v)) = %v", l, got)
		}
	}
}

// TestSRGB8 tests the table against the exact transfer function.
func TestSRGB8(t *testing.T) {
	if SRGB8(0.5) != 188 {
		t.Errorf("SRGB8(0.5) = %d, want 188", SRGB8(0.5))
	}
	for i := 0; i <= 1000; i++ {
		l := float64(i) / 1000
		exact := int(Unorm8(EncodeSRGB(l)))
		if got := int(SRGB8(l)); got < exact-1 || got > exact+1 {
			t.Errorf("SRGB8(%v) = %d, exact %d", l, got, exact)
		}
	}
	if SRGB8(-0.5) != 0 || SRGB8(1.5) != 255 {
		t.Error("SRGB8 should clamp to [0, 255]")
	}
}

// TestEncoder tests that only sRGB formats encode color channels.
func TestEncoder(t *testing.T) {
	tests := []struct {
		format gputypes.TextureFormat
		wantR  uint8
	}{
		{gputypes.TextureFormatBGRA8Unorm, 128},
		{gputypes.TextureFormatRGBA8Unorm, 128},
		{gputypes.TextureFormatBGRA8UnormSrgb, 188},
		{gputypes.TextureFormatRGBA8UnormSrgb, 188},
	}
	for _, tt := range tests {
		c := For(tt.format).RGBA(0.5, 0, 1, 0.5)
		if c.R != tt.wantR || c.G != 0 || c.B != 255 || c.A != 128 {
			t.Errorf("For(%v).RGBA = %+v, want R %d G 0 B 255 A 128", tt.format, c, tt.wantR)
		}
	}
}
