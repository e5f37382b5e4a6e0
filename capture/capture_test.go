package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/gogpu/opchain"
	"github.com/gogpu/opchain/render"
)

type frameLog struct {
	frames []opchain.Frame
	audio  []opchain.AudioBuffer
}

func (l *frameLog) Receive(f opchain.Frame) {
	l.frames = append(l.frames, f)
	f.Release()
}

func (l *frameLog) ReceiveAudio(b opchain.AudioBuffer) {
	l.audio = append(l.audio, b)
}

// failing is a provider that always fails.
type failing struct{ err error }

func (f failing) NextImage(context.Context) (image.Image, error) { return nil, f.err }

func (f failing) ReadAudio(context.Context, time.Duration) (opchain.AudioBuffer, error) {
	return opchain.AudioBuffer{}, f.err
}

func TestNewSourceErrors(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	if _, err := NewSource(nil, NewPattern(4, 4)); !errors.Is(err, ErrNilContext) {
		t.Errorf("nil context = %v", err)
	}
	if _, err := NewSource(ctx, nil); !errors.Is(err, ErrNilProvider) {
		t.Errorf("nil provider = %v", err)
	}
}

func TestStepEmitsFramesAndAudio(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	src, err := NewSource(ctx, NewPattern(16, 8), WithFrameRate(25), WithKey("cam0"), WithAudio(NewTone()))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	log := &frameLog{}
	src.Targets().Add(log)
	src.AudioTargets().Add(log)

	for i := 0; i < 3; i++ {
		if err := src.Step(context.Background()); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}

	if len(log.frames) != 3 || src.Frames() != 3 {
		t.Fatalf("frames = %d (counter %d), want 3", len(log.frames), src.Frames())
	}
	for i, f := range log.frames {
		if want := time.Duration(i) * 40 * time.Millisecond; f.Timestamp() != want {
			t.Errorf("frame %d ts = %v, want %v", i, f.Timestamp(), want)
		}
		if f.Key() != "cam0" || f.Width() != 16 || f.Height() != 8 {
			t.Errorf("frame %d = %q %dx%d", i, f.Key(), f.Width(), f.Height())
		}
	}
	if len(log.audio) != 3 {
		t.Fatalf("audio buffers = %d, want 3", len(log.audio))
	}
	if d := log.audio[1].Duration(); d != 40*time.Millisecond {
		t.Errorf("audio duration = %v, want 40ms", d)
	}
	if log.audio[2].Timestamp != 80*time.Millisecond {
		t.Errorf("audio ts = %v, want 80ms", log.audio[2].Timestamp)
	}
	if n := ctx.LiveTextures(); n != 0 {
		t.Errorf("LiveTextures() = %d, want 0", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	src, _ := NewSource(ctx, NewPattern(4, 4), WithFrameRate(1000))
	got := make(chan struct{}, 1)
	src.Targets().Add(opchain.NewFuncNode(func(f opchain.Frame) {
		f.Release()
		select {
		case got <- struct{}{}:
		default:
		}
	}))

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(runCtx) }()

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no frame emitted")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunEndsAtEOF(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	p := NewPattern(4, 4)
	p.Limit = 3
	src, _ := NewSource(ctx, p, WithFrameRate(1000))
	log := &frameLog{}
	src.Targets().Add(log)

	if err := src.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if len(log.frames) != 3 {
		t.Errorf("frames = %d, want 3", len(log.frames))
	}
}

func TestRunCountsDrops(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	src, _ := NewSource(ctx, failing{err: errors.New("sensor busy")}, WithFrameRate(1000))
	runCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := src.Run(runCtx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if src.Dropped() == 0 {
		t.Error("failed ticks should be counted as dropped")
	}
	if src.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", src.Frames())
	}
}

func TestRunCountsAudioFailuresSeparately(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	p := NewPattern(4, 4)
	p.Limit = 3
	errMic := errors.New("microphone unplugged")
	src, _ := NewSource(ctx, p, WithFrameRate(1000), WithAudio(failing{err: errMic}))
	log := &frameLog{}
	src.Targets().Add(log)

	if err := src.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if len(log.frames) != 3 || src.Frames() != 3 {
		t.Errorf("frames = %d (counter %d), want 3", len(log.frames), src.Frames())
	}
	if src.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0: every frame was emitted", src.Dropped())
	}
	if src.AudioDropped() != 3 {
		t.Errorf("AudioDropped() = %d, want 3", src.AudioDropped())
	}

	if err := src.Step(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Step past limit = %v, want io.EOF", err)
	}
}

func TestStepAudioError(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	errMic := errors.New("microphone unplugged")
	src, _ := NewSource(ctx, NewPattern(4, 4), WithAudio(failing{err: errMic}))
	log := &frameLog{}
	src.Targets().Add(log)

	err := src.Step(context.Background())
	if !errors.Is(err, ErrAudio) || !errors.Is(err, errMic) {
		t.Errorf("Step = %v, want ErrAudio wrapping the provider error", err)
	}
	if len(log.frames) != 1 {
		t.Errorf("frames = %d, want 1", len(log.frames))
	}
}

func TestPattern(t *testing.T) {
	p := NewPattern(40, 20)
	img, err := p.NextImage(context.Background())
	if err != nil {
		t.Fatalf("NextImage: %v", err)
	}
	n := img.(*image.NRGBA)
	if got := n.NRGBAAt(0, 0); got != p.Backdrop {
		t.Errorf("corner = %v, want backdrop", got)
	}
	// First figure is centred at (radius, h/2).
	if got := n.NRGBAAt(5, 10); got != p.Figure {
		t.Errorf("centre = %v, want figure", got)
	}

	p.Limit = 1
	if _, err := p.NextImage(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("NextImage past limit = %v, want io.EOF", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPattern(4, 4).NextImage(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled = %v", err)
	}
}

func TestTone(t *testing.T) {
	tone := &Tone{Frequency: 1000, SampleRate: 8000, Channels: 2, Amplitude: 1000}
	buf, err := tone.ReadAudio(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadAudio: %v", err)
	}
	if buf.Frames() != 80 || len(buf.Samples) != 160 {
		t.Fatalf("frames %d, samples %d; want 80, 160", buf.Frames(), len(buf.Samples))
	}
	if buf.Samples[0] != 0 || buf.Samples[0] != buf.Samples[1] {
		t.Errorf("first frame = %v", buf.Samples[:2])
	}
	// Quarter period at 1 kHz / 8 kHz is sample 2: the peak.
	if buf.Samples[4] < 999 {
		t.Errorf("peak = %d, want 1000", buf.Samples[4])
	}
}
