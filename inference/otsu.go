//go:build gocv

package inference

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/gogpu/opchain/render"
)

// Otsu is a segmentation model built on OpenCV: it thresholds the luma of
// the input with Otsu's method and writes the binary mask into alpha.
// Bright regions are foreground unless Invert is set.
type Otsu struct {
	Invert bool

	ctx    render.Context
	reader render.ImageReader
}

// NewOtsu creates an Otsu model on ctx, which must implement
// render.ImageReader.
func NewOtsu(ctx render.Context) (*Otsu, error) {
	reader, ok := ctx.(render.ImageReader)
	if !ok {
		return nil, ErrNoReadback
	}
	return &Otsu{ctx: ctx, reader: reader}, nil
}

// Predict returns a copy of in with the Otsu mask written into alpha.
func (o *Otsu) Predict(ctx context.Context, in render.Texture) (render.Texture, error) {
	src, err := o.reader.ReadImage(in)
	if err != nil {
		return nil, fmt.Errorf("inference: read input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rgba, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return nil, fmt.Errorf("inference: convert input: %w", err)
	}
	defer func() { _ = rgba.Close() }()

	gray := gocv.NewMat()
	defer func() { _ = gray.Close() }()
	if err := gocv.CvtColor(rgba, &gray, gocv.ColorRGBAToGray); err != nil {
		return nil, fmt.Errorf("inference: grayscale: %w", err)
	}

	mask := gocv.NewMat()
	defer func() { _ = mask.Close() }()
	typ := gocv.ThresholdBinary
	if o.Invert {
		typ = gocv.ThresholdBinaryInv
	}
	gocv.Threshold(gray, &mask, 0, 255, typ|gocv.ThresholdOtsu)

	out := image.NewNRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	bytes := mask.ToBytes()
	w := src.Rect.Dx()
	for y := 0; y < src.Rect.Dy(); y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			row[x*4+3] = bytes[y*w+x]
		}
	}
	tex, err := o.ctx.NewTextureFromImage("otsu", out)
	if err != nil {
		return nil, fmt.Errorf("inference: upload mask: %w", err)
	}
	return tex, nil
}

var _ Model = (*Otsu)(nil)
