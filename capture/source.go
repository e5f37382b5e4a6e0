// Package capture provides the producer end of a chain: a Source that pulls
// images from a Provider at a fixed frame rate, uploads them and emits them
// as frames.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync/atomic"
	"time"

	"github.com/gogpu/opchain"
	"github.com/gogpu/opchain/render"
)

// DefaultKey is the key of frames emitted by a Source.
const DefaultKey = "camera"

// DefaultFrameRate is the capture rate used unless WithFrameRate is given.
const DefaultFrameRate = 30

// Source errors.
var (
	// ErrNilContext is returned by NewSource without a rendering context.
	ErrNilContext = errors.New("capture: nil rendering context")

	// ErrNilProvider is returned by NewSource without a provider.
	ErrNilProvider = errors.New("capture: nil provider")

	// ErrAudio wraps audio read failures returned by Step. The video frame
	// of that step has already been emitted.
	ErrAudio = errors.New("capture: audio")
)

// Provider produces video images. Returning io.EOF ends the stream.
type Provider interface {
	NextImage(ctx context.Context) (image.Image, error)
}

// AudioProvider produces the audio captured alongside video. ReadAudio
// returns the samples covering d of playback.
type AudioProvider interface {
	ReadAudio(ctx context.Context, d time.Duration) (opchain.AudioBuffer, error)
}

// Option configures a Source.
type Option func(*Source)

// WithKey sets the key of emitted frames.
func WithKey(key string) Option {
	return func(s *Source) {
		if key != "" {
			s.key = key
		}
	}
}

// WithFrameRate sets the capture rate in frames per second.
func WithFrameRate(fps int) Option {
	return func(s *Source) {
		if fps > 0 {
			s.interval = time.Second / time.Duration(fps)
		}
	}
}

// WithAudio captures audio from a on every frame tick.
func WithAudio(a AudioProvider) Option {
	return func(s *Source) {
		s.audio = a
	}
}

// Source is a frame producer. It is a chain Source for video and an
// AudioSource for audio.
type Source struct {
	ctx      render.Context
	provider Provider
	audio    AudioProvider
	key      string
	interval time.Duration

	targets      opchain.Targets
	audioTargets opchain.AudioTargets

	frames       atomic.Int64
	dropped      atomic.Int64
	audioDropped atomic.Int64
	elapsed time.Duration // source clock; advanced by Step
}

// NewSource creates a source uploading images from p through ctx.
func NewSource(ctx render.Context, p Provider, opts ...Option) (*Source, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if p == nil {
		return nil, ErrNilProvider
	}
	s := &Source{
		ctx:      ctx,
		provider: p,
		key:      DefaultKey,
		interval: time.Second / DefaultFrameRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Targets returns the video targets.
func (s *Source) Targets() *opchain.Targets {
	return &s.targets
}

// AudioTargets returns the audio targets.
func (s *Source) AudioTargets() *opchain.AudioTargets {
	return &s.audioTargets
}

// Key returns the key of emitted frames.
func (s *Source) Key() string {
	return s.key
}

// Frames returns the number of frames emitted.
func (s *Source) Frames() int64 {
	return s.frames.Load()
}

// Dropped returns the number of ticks during Run that emitted no frame.
func (s *Source) Dropped() int64 {
	return s.dropped.Load()
}

// AudioDropped returns the number of audio reads that failed during Run.
func (s *Source) AudioDropped() int64 {
	return s.audioDropped.Load()
}

// Run captures until ctx is cancelled or the provider reports io.EOF, in
// which case it returns nil. Ticks missed while the chain is busy are
// skipped. Run must not be called concurrently with itself or Step.
func (s *Source) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	opchain.Logger().Info("capture: started", "key", s.key, "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			opchain.Logger().Info("capture: stopped", "key", s.key, "frames", s.Frames())
			return nil
		case <-ticker.C:
			if err := s.Step(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					opchain.Logger().Info("capture: end of stream", "key", s.key, "frames", s.Frames())
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, ErrAudio) {
					s.audioDropped.Add(1)
					opchain.Logger().Warn("capture: audio dropped", "key", s.key, "err", err)
					continue
				}
				s.dropped.Add(1)
				opchain.Logger().Warn("capture: frame dropped", "key", s.key, "err", err)
			}
		}
	}
}

// Step captures and emits one frame, then the audio covering the frame
// interval. The frame timestamp is the source clock, which advances by the
// frame interval on every call.
func (s *Source) Step(ctx context.Context) error {
	img, err := s.provider.NextImage(ctx)
	if err != nil {
		return err
	}
	tex, err := s.ctx.NewTextureFromImage(s.key, img)
	if err != nil {
		return fmt.Errorf("capture: upload: %w", err)
	}
	ts := s.elapsed
	s.elapsed += s.interval

	s.frames.Add(1)
	opchain.Emit(&s.targets, opchain.NewFrame(tex, ts, s.key))

	if s.audio == nil {
		return nil
	}
	buf, err := s.audio.ReadAudio(ctx, s.interval)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudio, err)
	}
	buf.Timestamp = ts
	opchain.EmitAudio(&s.audioTargets, buf)
	return nil
}

var (
	_ opchain.Source      = (*Source)(nil)
	_ opchain.AudioSource = (*Source)(nil)
)
