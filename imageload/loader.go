// Package imageload decodes still images from disk and uploads them as
// textures, for use as compositor backgrounds.
//
// Supported formats: PNG, JPEG, GIF (first frame), BMP, TIFF and WebP.
// Decoded images are kept in a bounded LRU cache keyed by the cleaned path,
// so switching between a few backgrounds does not decode them again.
package imageload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/gogpu/opchain"
	"github.com/gogpu/opchain/internal/texcache"
	"github.com/gogpu/opchain/render"
)

// Loader errors.
var (
	// ErrUnsupportedFormat is returned when the data is not a known image format.
	ErrUnsupportedFormat = errors.New("imageload: unsupported format")

	// ErrEmptyData is returned when the image data is empty.
	ErrEmptyData = errors.New("imageload: empty data")

	// ErrNilContext is returned by Load without a rendering context.
	ErrNilContext = errors.New("imageload: nil rendering context")
)

// DefaultCacheSize is the number of decoded images a Loader keeps.
const DefaultCacheSize = 8

// Loader decodes, caps and caches images. It is safe for concurrent use.
type Loader struct {
	maxSize int
	cache   *texcache.Cache[string, *image.NRGBA]
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxSize caps the longer image side at px pixels. Larger images are
// scaled down preserving the aspect ratio. Zero disables the cap.
func WithMaxSize(px int) Option {
	return func(l *Loader) {
		l.maxSize = max(px, 0)
	}
}

// WithCacheSize sets the number of decoded images kept.
func WithCacheSize(n int) Option {
	return func(l *Loader) {
		l.cache = texcache.New[string, *image.NRGBA](n, evicted)
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{cache: texcache.New[string, *image.NRGBA](DefaultCacheSize, evicted)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func evicted(path string, _ *image.NRGBA) {
	opchain.Logger().Debug("imageload: evicted", "path", path)
}

// Decode returns the decoded image at path, from the cache when possible.
// The returned image is shared and must not be modified.
func (l *Loader) Decode(path string) (*image.NRGBA, error) {
	key := filepath.Clean(path)
	return l.cache.GetOrCreate(key, func() (*image.NRGBA, error) {
		f, err := os.Open(key)
		if err != nil {
			return nil, fmt.Errorf("imageload: open file: %w", err)
		}
		defer func() { _ = f.Close() }()

		img, err := l.decode(f)
		if err != nil {
			return nil, fmt.Errorf("%w (%s)", err, key)
		}
		opchain.Logger().Debug("imageload: decoded", "path", key,
			"width", img.Rect.Dx(), "height", img.Rect.Dy())
		return img, nil
	})
}

// DecodeBytes decodes an in-memory image. The result is not cached.
func (l *Loader) DecodeBytes(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return l.decode(bytes.NewReader(data))
}

// Load decodes the image at path and uploads it to ctx. The caller owns
// the returned texture. On failure no texture is created.
func (l *Loader) Load(ctx render.Context, path string) (render.Texture, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	img, err := l.Decode(path)
	if err != nil {
		return nil, err
	}
	tex, err := ctx.NewTextureFromImage(filepath.Base(path), img)
	if err != nil {
		return nil, fmt.Errorf("imageload: upload: %w", err)
	}
	return tex, nil
}

// Forget drops path from the cache.
func (l *Loader) Forget(path string) bool {
	return l.cache.Remove(filepath.Clean(path))
}

// Purge drops every cached image.
func (l *Loader) Purge() {
	l.cache.Purge()
}

// Stats returns cache statistics.
func (l *Loader) Stats() texcache.Stats {
	return l.cache.Stats()
}

func (l *Loader) decode(r io.Reader) (*image.NRGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("imageload: decode: %w", err)
	}
	return Fit(img, l.maxSize), nil
}

// Fit converts img to an origin-anchored NRGBA image whose longer side is
// at most maxSize (0 means unlimited). Downscaling uses Catmull-Rom.
func Fit(img image.Image, maxSize int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			h = max(1, h*maxSize/w)
			w = maxSize
		} else {
			w = max(1, w*maxSize/h)
			h = maxSize
		}
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(dst, dst.Rect, img, b, xdraw.Src, nil)
		return dst
	}
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Rect, img, b.Min, xdraw.Src)
	return dst
}
