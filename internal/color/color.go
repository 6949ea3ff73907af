// Package color encodes shader output into 8-bit render target texels.
//
// Shaders and clear values produce linear colors. UNORM targets store them
// as is; sRGB targets apply the sRGB transfer function to the color
// channels on write. Alpha is always linear.
package color

import (
	stdcolor "image/color"
	"math"

	"github.com/gogpu/gputypes"
)

// lutBits is the precision of the linear to sRGB table.
const lutBits = 12

// toSRGB maps a linear value quantized to lutBits onto its sRGB byte.
var toSRGB [1 << lutBits]uint8

func init() {
	last := float64(len(toSRGB) - 1)
	for i := range toSRGB {
		toSRGB[i] = Unorm8(EncodeSRGB(float64(i) / last))
	}
}

// EncodeSRGB applies the sRGB transfer function to a linear value in
// [0, 1].
func EncodeSRGB(l float64) float64 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*math.Pow(l, 1/2.4) - 0.055
}

// DecodeSRGB is the inverse of EncodeSRGB.
func DecodeSRGB(s float64) float64 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

// Unorm8 converts v to an 8-bit UNORM value, clamping to [0, 1] and
// rounding to nearest.
func Unorm8(v float64) uint8 {
	switch {
	case !(v > 0):
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// SRGB8 converts a linear value to an 8-bit sRGB value.
func SRGB8(v float64) uint8 {
	switch {
	case !(v > 0):
		return 0
	case v >= 1:
		return 255
	default:
		return toSRGB[int(v*float64(len(toSRGB)-1)+0.5)]
	}
}

// IsSRGB reports whether writes to format are sRGB encoded.
func IsSRGB(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatBGRA8UnormSrgb, gputypes.TextureFormatRGBA8UnormSrgb:
		return true
	}
	return false
}

// Encoder writes linear colors into texels of one format.
type Encoder struct {
	srgb bool
}

// For returns the encoder of format.
func For(format gputypes.TextureFormat) Encoder {
	return Encoder{srgb: IsSRGB(format)}
}

// RGBA encodes a linear color.
func (e Encoder) RGBA(r, g, b, a float64) stdcolor.RGBA {
	if e.srgb {
		return stdcolor.RGBA{R: SRGB8(r), G: SRGB8(g), B: SRGB8(b), A: Unorm8(a)}
	}
	return stdcolor.RGBA{R: Unorm8(r), G: Unorm8(g), B: Unorm8(b), A: Unorm8(a)}
}
