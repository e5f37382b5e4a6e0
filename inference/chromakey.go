package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/opchain/render"
)

// ErrNoReadback is returned when a CPU model is built on a context that
// cannot read textures back.
var ErrNoReadback = errors.New("inference: rendering context cannot read textures back")

// ChromaKey is a CPU segmentation model. Pixels close to the key colour
// become transparent, everything else stays opaque, so the output can be
// fed to a compositor in replace-background mode.
//
// Distance is measured in RGB space normalized to [0, 1]. Pixels within
// Threshold get alpha 0, pixels beyond Threshold+Softness alpha 1, with a
// smooth ramp in between.
type ChromaKey struct {
	Key       color.NRGBA
	Threshold float64
	Softness  float64

	ctx    render.Context
	reader render.ImageReader
}

// NewChromaKey creates a chroma-key model on ctx, which must implement
// render.ImageReader.
func NewChromaKey(ctx render.Context, key color.NRGBA) (*ChromaKey, error) {
	reader, ok := ctx.(render.ImageReader)
	if !ok {
		return nil, ErrNoReadback
	}
	return &ChromaKey{
		Key:       key,
		Threshold: 0.25,
		Softness:  0.1,
		ctx:       ctx,
		reader:    reader,
	}, nil
}

// Predict returns a copy of in with the mask written into alpha.
func (k *ChromaKey) Predict(ctx context.Context, in render.Texture) (render.Texture, error) {
	src, err := k.reader.ReadImage(in)
	if err != nil {
		return nil, fmt.Errorf("inference: read input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := image.NewNRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	for i := 0; i < len(out.Pix); i += 4 {
		a := k.alpha(out.Pix[i], out.Pix[i+1], out.Pix[i+2])
		out.Pix[i+3] = uint8(float64(out.Pix[i+3])*a + 0.5)
	}
	tex, err := k.ctx.NewTextureFromImage("chromakey", out)
	if err != nil {
		return nil, fmt.Errorf("inference: upload mask: %w", err)
	}
	return tex, nil
}

// alpha returns the foreground weight of an RGB pixel.
func (k *ChromaKey) alpha(r, g, b uint8) float64 {
	dr := float64(int(r)-int(k.Key.R)) / 255
	dg := float64(int(g)-int(k.Key.G)) / 255
	db := float64(int(b)-int(k.Key.B)) / 255
	d := math.Sqrt(dr*dr+dg*dg+db*db) / math.Sqrt(3)

	switch {
	case d <= k.Threshold:
		return 0
	case k.Softness <= 0 || d >= k.Threshold+k.Softness:
		return 1
	}
	t := (d - k.Threshold) / k.Softness
	return t * t * (3 - 2*t)
}

var _ Model = (*ChromaKey)(nil)
