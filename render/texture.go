// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// toNRGBA returns img as a tightly packed *image.NRGBA anchored at the
// origin. Images that already have that shape are copied so the caller
// owns the result.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok && src.Stride == 4*b.Dx() && b.Min == (image.Point{}) {
		copy(dst.Pix, src.Pix)
		return dst
	}
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// clearNRGBA fills img with c.
func clearNRGBA(img *image.NRGBA, c color.NRGBA) {
	if len(img.Pix) == 0 {
		return
	}
	img.Pix[0], img.Pix[1], img.Pix[2], img.Pix[3] = c.R, c.G, c.B, c.A
	// Double the filled prefix until the buffer is covered.
	for filled := 4; filled < len(img.Pix); filled *= 2 {
		copy(img.Pix[filled:], img.Pix[:filled])
	}
}

// sampleBilinear samples img at normalized coordinates (u, v) with linear
// filtering and clamp-to-edge addressing, matching a WebGPU sampler with
// FilterModeLinear and AddressModeClampToEdge.
func sampleBilinear(img *image.NRGBA, u, v float32) RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return RGBA{}
	}

	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5
	x0 := floor(x)
	y0 := floor(y)
	fx := x - float32(x0)
	fy := y - float32(y0)

	c00 := texel(img, x0, y0)
	c10 := texel(img, x0+1, y0)
	c01 := texel(img, x0, y0+1)
	c11 := texel(img, x0+1, y0+1)

	lerp := func(a, b, t float32) float32 { return a + (b-a)*t }
	return RGBA{
		R: lerp(lerp(c00.R, c10.R, fx), lerp(c01.R, c11.R, fx), fy),
		G: lerp(lerp(c00.G, c10.G, fx), lerp(c01.G, c11.G, fx), fy),
		B: lerp(lerp(c00.B, c10.B, fx), lerp(c01.B, c11.B, fx), fy),
		A: lerp(lerp(c00.A, c10.A, fx), lerp(c01.A, c11.A, fx), fy),
	}
}

// texel reads one texel with clamp-to-edge addressing.
func texel(img *image.NRGBA, x, y int) RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	x = clampInt(x, 0, w-1)
	y = clampInt(y, 0, h-1)
	i := y*img.Stride + x*4
	p := img.Pix[i : i+4 : i+4]
	return RGBA{
		R: float32(p[0]) / 255,
		G: float32(p[1]) / 255,
		B: float32(p[2]) / 255,
		A: float32(p[3]) / 255,
	}
}

func floor(x float32) int {
	i := int(x)
	if float32(i) > x {
		i--
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
