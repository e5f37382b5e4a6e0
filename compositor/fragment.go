// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"github.com/gogpu/opchain/internal/blend"
	"github.com/gogpu/opchain/render"
)

// Uniform layout shared by composite.wgsl and compositeFragment.
const (
	uMixture = iota
	uMode
	uHasRegion
	_
	uRegionX0
	uRegionY0
	uRegionX1
	uRegionY1
	uSourceU0
	uSourceV0
	uSourceU1
	uSourceV1

	uniformCount
)

// uniformSize is the uniform buffer size in bytes.
const uniformSize = uniformCount * 4

// compositeFragment is the CPU counterpart of fs_main in composite.wgsl.
// Texture 0 is the base, texture 1 the source.
func compositeFragment(in *render.FragmentInput) render.RGBA {
	u := in.Uniforms
	base := in.Samples[0]
	src := in.Samples[1]

	if u[uHasRegion] > 0.5 {
		x, y := in.Position[0], in.Position[1]
		if x < u[uRegionX0] || y < u[uRegionY0] || x > u[uRegionX1] || y > u[uRegionY1] {
			return base
		}
		lx := (x - u[uRegionX0]) / max(u[uRegionX1]-u[uRegionX0], 1e-6)
		ly := (y - u[uRegionY0]) / max(u[uRegionY1]-u[uRegionY0], 1e-6)
		su := u[uSourceU0] + (u[uSourceU1]-u[uSourceU0])*lx
		sv := u[uSourceV0] + (u[uSourceV1]-u[uSourceV0])*ly
		src = in.Sample(1, su, sv)
	}

	mixture := u[uMixture]
	if u[uMode] > 0.5 {
		keyed := blend.Mix(src, base, base.A)
		out := blend.Mix(base, keyed, mixture)
		out.A = 1
		return out
	}
	return blend.Mix(base, src, src.A*mixture)
}
