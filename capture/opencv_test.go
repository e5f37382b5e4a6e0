//go:build gocv

package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/opchain/render"
)

func TestReadImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.png")
	img := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	img.SetNRGBA(2, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	still, err := ReadImageFile(path)
	if err != nil {
		t.Fatalf("ReadImageFile: %v", err)
	}
	got, err := still.NextImage(context.Background())
	if err != nil {
		t.Fatalf("NextImage: %v", err)
	}
	if got.Bounds().Dx() != 6 || got.Bounds().Dy() != 4 {
		t.Errorf("size = %v, want 6x4", got.Bounds())
	}
	r, g, b, _ := got.At(2, 1).RGBA()
	if r>>8 != 200 || g>>8 != 100 || b>>8 != 50 {
		t.Errorf("pixel = %d %d %d, want 200 100 50", r>>8, g>>8, b>>8)
	}

	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()
	src, _ := NewSource(ctx, still)
	log := &frameLog{}
	src.Targets().Add(log)
	if err := src.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(log.frames) != 1 || log.frames[0].Width() != 6 {
		t.Errorf("frames = %v", log.frames)
	}
}

func TestReadImageFileMissing(t *testing.T) {
	if _, err := ReadImageFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("ReadImageFile should fail for a missing file")
	}
}

func TestOpenOpenCVClosed(t *testing.T) {
	o := &OpenCV{}
	if _, err := o.NextImage(context.Background()); err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("NextImage on closed source = %v", err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
