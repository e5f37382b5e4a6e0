//go:build gocv

package inference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/opchain/render"
)

func TestOtsuRequiresReadback(t *testing.T) {
	if _, err := NewOtsu(nil); !errors.Is(err, ErrNoReadback) {
		t.Errorf("NewOtsu(nil) = %v, want ErrNoReadback", err)
	}
}

func TestOtsuMask(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			c := color.NRGBA{R: 10, G: 10, B: 10, A: 255}
			if x >= 4 {
				c = color.NRGBA{R: 240, G: 240, B: 240, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	in, err := ctx.NewTextureFromImage("split", img)
	if err != nil {
		t.Fatalf("NewTextureFromImage: %v", err)
	}
	defer in.Destroy()

	tests := []struct {
		name        string
		invert      bool
		dark, light uint8
	}{
		{"bright foreground", false, 0, 255},
		{"inverted", true, 255, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := NewOtsu(ctx)
			m.Invert = tt.invert
			out, err := m.Predict(context.Background(), in)
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			defer out.Destroy()
			mask, _ := ctx.ReadImage(out)
			if a := mask.NRGBAAt(1, 1).A; a != tt.dark {
				t.Errorf("dark alpha = %d, want %d", a, tt.dark)
			}
			if a := mask.NRGBAAt(6, 2).A; a != tt.light {
				t.Errorf("light alpha = %d, want %d", a, tt.light)
			}
			if got := mask.NRGBAAt(6, 2); got.R != 240 {
				t.Errorf("colour changed: %v", got)
			}
		})
	}
}
