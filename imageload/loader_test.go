package imageload

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/opchain/render"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 64, A: 255})
		}
	}
	return img
}

func writeImage(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()

	switch filepath.Ext(name) {
	case ".png":
		err = png.Encode(f, img)
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tiff":
		err = tiff.Encode(f, img, nil)
	default:
		_, err = f.Write([]byte("not an image"))
	}
	if err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return path
}

func TestDecodeFormats(t *testing.T) {
	l := New()
	for _, name := range []string{"bg.png", "bg.bmp", "bg.tiff"} {
		t.Run(name, func(t *testing.T) {
			path := writeImage(t, name, gradient(12, 7))
			img, err := l.Decode(path)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if img.Rect.Dx() != 12 || img.Rect.Dy() != 7 {
				t.Errorf("size = %v, want 12x7", img.Rect)
			}
			if got := img.NRGBAAt(0, 0); got.B != 64 || got.A != 255 {
				t.Errorf("pixel (0,0) = %v", got)
			}
		})
	}
}

func TestDecodeCaches(t *testing.T) {
	l := New()
	path := writeImage(t, "bg.png", gradient(4, 4))

	a, err := l.Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b, err := l.Decode(filepath.Join(filepath.Dir(path), ".", "bg.png"))
	if err != nil {
		t.Fatalf("second Decode: %v", err)
	}
	if a != b {
		t.Error("second Decode of the same path should hit the cache")
	}
	if s := l.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss", s)
	}

	if !l.Forget(path) {
		t.Error("Forget should report the cached path")
	}
	c, err := l.Decode(path)
	if err != nil {
		t.Fatalf("Decode after Forget: %v", err)
	}
	if c == a {
		t.Error("Decode after Forget should decode again")
	}
	l.Purge()
	if s := l.Stats(); s.Len != 0 {
		t.Errorf("Len after Purge = %d", s.Len)
	}
}

func TestCacheEviction(t *testing.T) {
	l := New(WithCacheSize(1))
	p1 := writeImage(t, "a.png", gradient(2, 2))
	p2 := writeImage(t, "b.png", gradient(3, 3))

	for _, p := range []string{p1, p2, p1} {
		if _, err := l.Decode(p); err != nil {
			t.Fatalf("Decode(%s): %v", p, err)
		}
	}
	if s := l.Stats(); s.Misses != 3 || s.Evictions != 2 {
		t.Errorf("Stats() = %+v, want 3 misses, 2 evictions", s)
	}
}

func TestDecodeErrors(t *testing.T) {
	l := New()

	if _, err := l.Decode(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("missing file should fail")
	}
	garbage := writeImage(t, "bg.txt", nil)
	if _, err := l.Decode(garbage); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("garbage = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := l.Decode(garbage); err == nil {
		t.Error("failed decodes must not be cached")
	}
	if _, err := l.DecodeBytes(nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("DecodeBytes(nil) = %v, want ErrEmptyData", err)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"no cap", 40, 20, 0, 40, 20},
		{"under cap", 40, 20, 64, 40, 20},
		{"landscape", 400, 200, 100, 100, 50},
		{"portrait", 90, 300, 30, 9, 30},
		{"thin", 1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(gradient(tt.w, tt.h), tt.max)
			if got.Rect.Dx() != tt.wantW || got.Rect.Dy() != tt.wantH {
				t.Errorf("Fit(%dx%d, %d) = %v, want %dx%d", tt.w, tt.h, tt.max, got.Rect, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestFitRebasesOrigin(t *testing.T) {
	src := gradient(8, 8).SubImage(image.Rect(2, 2, 6, 6))
	got := Fit(src, 0)
	if got.Rect != image.Rect(0, 0, 4, 4) {
		t.Fatalf("Rect = %v, want origin-anchored 4x4", got.Rect)
	}
	want := src.(*image.NRGBA).NRGBAAt(2, 2)
	if c := got.NRGBAAt(0, 0); c != want {
		t.Errorf("pixel (0,0) = %v, want %v", c, want)
	}
}

func TestLoad(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	l := New(WithMaxSize(8))
	path := writeImage(t, "bg.png", gradient(32, 16))

	tex, err := l.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tex.Width() != 8 || tex.Height() != 4 {
		t.Errorf("texture = %dx%d, want 8x4", tex.Width(), tex.Height())
	}
	tex.Destroy()

	if _, err := l.Load(nil, path); !errors.Is(err, ErrNilContext) {
		t.Errorf("Load(nil) = %v, want ErrNilContext", err)
	}
	if _, err := l.Load(ctx, filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Load of a missing file should fail")
	}
	if n := ctx.LiveTextures(); n != 0 {
		t.Errorf("LiveTextures() = %d, want 0", n)
	}
}
