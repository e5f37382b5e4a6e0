package capture

import (
	"context"
	"image"
	"image/color"
	"io"
	"math"
	"sync"
	"time"

	"github.com/gogpu/opchain"
)

// Pattern is a synthetic Provider drawing a figure on a backdrop: a disc of
// the Figure colour moves horizontally across a uniform Backdrop colour.
// It stands in for a camera in demos and tests, and its backdrop can be
// keyed out by inference.ChromaKey.
type Pattern struct {
	Width, Height int
	Backdrop      color.NRGBA
	Figure        color.NRGBA

	// Limit ends the stream with io.EOF after Limit images; 0 is unlimited.
	Limit int

	mu sync.Mutex
	n  int
}

// NewPattern returns a green-screen pattern of the given size.
func NewPattern(w, h int) *Pattern {
	return &Pattern{
		Width:    w,
		Height:   h,
		Backdrop: color.NRGBA{G: 255, A: 255},
		Figure:   color.NRGBA{R: 220, G: 180, B: 150, A: 255},
	}
}

// NextImage draws the next image.
func (p *Pattern) NextImage(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	n := p.n
	if p.Limit > 0 && n >= p.Limit {
		p.mu.Unlock()
		return nil, io.EOF
	}
	p.n++
	p.mu.Unlock()

	w, h := p.Width, p.Height
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	radius := min(w, h) / 4
	cx := radius + (n*4)%max(1, w-2*radius)
	cy := h / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := p.Backdrop
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius {
				c = p.Figure
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img, nil
}

// Tone is a synthetic AudioProvider generating a sine wave.
type Tone struct {
	Frequency  float64
	SampleRate int
	Channels   int
	Amplitude  int16

	mu    sync.Mutex
	phase float64
}

// NewTone returns a 440 Hz mono tone at 48 kHz.
func NewTone() *Tone {
	return &Tone{Frequency: 440, SampleRate: 48000, Channels: 1, Amplitude: 8000}
}

// ReadAudio returns d worth of samples, continuing the wave from the
// previous call.
func (t *Tone) ReadAudio(ctx context.Context, d time.Duration) (opchain.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return opchain.AudioBuffer{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	frames := int(d * time.Duration(t.SampleRate) / time.Second)
	channels := max(t.Channels, 1)
	samples := make([]int16, frames*channels)
	step := 2 * math.Pi * t.Frequency / float64(t.SampleRate)
	for i := 0; i < frames; i++ {
		v := int16(float64(t.Amplitude) * math.Sin(t.phase))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
		t.phase = math.Mod(t.phase+step, 2*math.Pi)
	}
	return opchain.AudioBuffer{Samples: samples, SampleRate: t.SampleRate, Channels: channels}, nil
}

var (
	_ Provider      = (*Pattern)(nil)
	_ AudioProvider = (*Tone)(nil)
)
