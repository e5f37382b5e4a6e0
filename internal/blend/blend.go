// Package blend provides the colour maths shared by the CPU fragment stages.
//
// Colours are straight (non-premultiplied) float32 RGBA in [0, 1], the same
// representation a WGSL fragment shader works with after sampling an
// rgba8unorm texture. Conversion to and from 8-bit pixels rounds to nearest.
package blend

import "image/color"

// Color is a straight-alpha colour with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// Transparent is fully transparent black.
var Transparent = Color{}

// FromNRGBA converts an 8-bit straight-alpha pixel.
func FromNRGBA(c color.NRGBA) Color {
	return Color{
		R: float32(c.R) / 255,
		G: float32(c.G) / 255,
		B: float32(c.B) / 255,
		A: float32(c.A) / 255,
	}
}

// NRGBA converts c to an 8-bit straight-alpha pixel, clamping out-of-range
// components.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{
		R: unorm8(c.R),
		G: unorm8(c.G),
		B: unorm8(c.B),
		A: unorm8(c.A),
	}
}

// Mix linearly interpolates the colour channels from a to b by t and keeps
// alpha from a. This is WGSL mix(a.rgb, b.rgb, t) with a.a preserved.
func Mix(a, b Color, t float32) Color {
	t = Clamp01(t)
	return Color{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
		A: a.A,
	}
}

// Lerp interpolates all four channels from a to b by t.
func Lerp(a, b Color, t float32) Color {
	return Color{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
		A: a.A + (b.A-a.A)*t,
	}
}

// SourceOver composites src over dst using straight-alpha Porter-Duff.
func SourceOver(src, dst Color) Color {
	invSrcA := 1 - src.A
	outA := src.A + dst.A*invSrcA
	if outA == 0 {
		return Transparent
	}
	return Color{
		R: (src.R*src.A + dst.R*dst.A*invSrcA) / outA,
		G: (src.G*src.A + dst.G*dst.A*invSrcA) / outA,
		B: (src.B*src.A + dst.B*dst.A*invSrcA) / outA,
		A: outA,
	}
}

// Clamp01 clamps x to [0, 1].
func Clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// unorm8 converts a [0, 1] float to a byte, rounding to nearest.
func unorm8(x float32) byte {
	return byte(Clamp01(x)*255 + 0.5)
}
