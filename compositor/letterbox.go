// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

// fullQuad samples the whole texture.
var fullQuad = [8]float32{0, 0, 1, 0, 0, 1, 1, 1}

// TextureCoordinates returns the letterbox-fit texture coordinates that crop
// a w x h input to the aspect ratio of targetW x targetH, centred.
//
// The four (u, v) pairs are ordered top-left, top-right, bottom-left,
// bottom-right to match the triangle strip of render.QuadVertices.
// When the target is wider than the input the crop is vertical, otherwise
// horizontal. Non-positive dimensions yield the full-frame quad.
//
// TextureCoordinates is pure, so results can be cached by its arguments.
func TextureCoordinates(w, h, targetW, targetH int) [8]float32 {
	if w <= 0 || h <= 0 || targetW <= 0 || targetH <= 0 {
		return fullQuad
	}
	targetRatio := float64(targetW) / float64(targetH)
	curRatio := float64(w) / float64(h)
	fw, fh := float64(w), float64(h)

	if targetRatio > curRatio {
		r := float32((fh - fw*targetRatio) / (2 * fh))
		return [8]float32{0, r, 1, r, 0, 1 - r, 1, 1 - r}
	}
	r := float32((fw - fh*targetRatio) / (2 * fw))
	return [8]float32{r, 0, 1 - r, 0, r, 1, 1 - r, 1}
}
