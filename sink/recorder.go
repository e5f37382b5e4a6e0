// Package sink provides the terminal nodes of a chain: a preview that keeps
// the latest frame and a recorder that writes video and audio through an
// Encoder.
package sink

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/opchain"
	"github.com/gogpu/opchain/metrics"
	"github.com/gogpu/opchain/render"
)

// Recorder errors.
var (
	// ErrNilReader is returned when NewRecorder has no image reader.
	ErrNilReader = errors.New("sink: nil image reader")

	// ErrNilEncoder is returned when NewRecorder has no encoder.
	ErrNilEncoder = errors.New("sink: nil encoder")

	// ErrAlreadyStarted is returned by StartRecording on a recorder that
	// has already been started.
	ErrAlreadyStarted = errors.New("sink: recording already started")

	// ErrNotRecording is passed to the FinishRecording completion when no
	// recording is in progress.
	ErrNotRecording = errors.New("sink: not recording")
)

// RecorderState is the lifecycle state of a Recorder.
type RecorderState int

const (
	// StateIdle is the state before StartRecording.
	StateIdle RecorderState = iota
	// StateRecording is the state between StartRecording and FinishRecording.
	StateRecording
	// StateFinished is the state after FinishRecording. A finished recorder
	// cannot be restarted.
	StateFinished
)

// String returns the state name.
func (s RecorderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithVideoSize scales recorded frames to w x h. The default keeps the
// frame size.
func WithVideoSize(w, h int) RecorderOption {
	return func(r *Recorder) {
		if w > 0 && h > 0 {
			r.size = image.Pt(w, h)
		}
	}
}

// WithAudio enables audio recording.
func WithAudio(enabled bool) RecorderOption {
	return func(r *Recorder) {
		r.recordAudio = enabled
	}
}

// WithRecorderMetrics records written frames and audio samples in c.
func WithRecorderMetrics(c *metrics.Collector) RecorderOption {
	return func(r *Recorder) {
		r.metrics = c
	}
}

// Recorder is a terminal node that writes the frames it receives, and
// optionally audio, to an Encoder.
//
// Frames and audio are dropped until StartRecording. FinishRecording stops
// accepting input and finalizes the encoder in the background.
//
//	rec, _ := sink.NewRecorder(ctx, enc, sink.WithVideoSize(480, 480), sink.WithAudio(true))
//	_ = chain.Connect(preview, rec)
//	_ = chain.ConnectAudio(camera, rec)
//	_ = rec.StartRecording()
//	...
//	rec.FinishRecording(func(err error) { ... })
type Recorder struct {
	reader      render.ImageReader
	enc         Encoder
	size        image.Point
	recordAudio bool
	metrics     *metrics.Collector

	mu      sync.Mutex
	state   RecorderState
	session uuid.UUID
	startTS time.Duration
	started bool // first frame seen
	frames  int
	samples int
	errs    []error
	done    chan struct{}
}

// NewRecorder creates a recorder reading frames back through reader.
func NewRecorder(reader render.ImageReader, enc Encoder, opts ...RecorderOption) (*Recorder, error) {
	if reader == nil {
		return nil, ErrNilReader
	}
	if enc == nil {
		return nil, ErrNilEncoder
	}
	r := &Recorder{reader: reader, enc: enc, done: make(chan struct{})}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// StartRecording starts a session and returns nil, or ErrAlreadyStarted.
func (r *Recorder) StartRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return fmt.Errorf("%w (%s)", ErrAlreadyStarted, r.state)
	}
	r.state = StateRecording
	r.session = uuid.New()
	r.metrics.SessionStarted()
	opchain.Logger().Info("sink: recording started", "session", r.session,
		"size", r.size, "audio", r.recordAudio)
	return nil
}

// Session returns the session ID, or uuid.Nil before StartRecording.
func (r *Recorder) Session() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// State returns the lifecycle state.
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Frames returns the number of frames written.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Receive writes f when recording and releases it.
func (r *Recorder) Receive(f opchain.Frame) {
	defer f.Release()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording || !f.IsValid() {
		return
	}

	img, err := r.reader.ReadImage(f.Texture())
	if err != nil {
		r.fail("read frame", f.Timestamp(), err)
		return
	}
	if !r.started {
		r.started = true
		r.startTS = f.Timestamp()
	}
	if err := r.enc.WriteVideo(r.scale(img), f.Timestamp()-r.startTS); err != nil {
		r.fail("write frame", f.Timestamp(), err)
		return
	}
	r.frames++
	r.metrics.RecordFrame()
}

// ReceiveAudio writes b when recording with audio enabled.
func (r *Recorder) ReceiveAudio(b opchain.AudioBuffer) {
	if !r.recordAudio {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return
	}
	if err := r.enc.WriteAudio(b); err != nil {
		r.fail("write audio", b.Timestamp, err)
		return
	}
	r.samples += len(b.Samples)
	r.metrics.RecordAudio(len(b.Samples))
}

// FinishRecording stops the session and closes the encoder on a new
// goroutine. completion, if non-nil, is called once with the first write
// error joined with the close error, or nil. Calling FinishRecording on a
// recorder that is not recording completes with ErrNotRecording.
func (r *Recorder) FinishRecording(completion func(error)) {
	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		if completion != nil {
			go completion(fmt.Errorf("%w (%s)", ErrNotRecording, state))
		}
		return
	}
	r.state = StateFinished
	session, frames, samples := r.session, r.frames, r.samples
	errs := r.errs
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		err := errors.Join(append(errs, r.enc.Close())...)
		r.metrics.SessionFinished()
		opchain.Logger().Info("sink: recording finished", "session", session,
			"frames", frames, "samples", samples, "err", err)
		if completion != nil {
			completion(err)
		}
	}()
}

// Close finishes an active recording and waits until the encoder is
// closed. Closing an idle recorder is a no-op.
func (r *Recorder) Close() error {
	errc := make(chan error, 1)
	r.FinishRecording(func(err error) { errc <- err })
	err := <-errc
	if errors.Is(err, ErrNotRecording) {
		if r.State() == StateFinished {
			<-r.done
		}
		return nil
	}
	return err
}

// Done is closed once a finished recording's encoder has been closed.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// scale resizes img to the configured video size. Caller holds r.mu.
func (r *Recorder) scale(img *image.NRGBA) *image.NRGBA {
	if r.size == (image.Point{}) || img.Rect.Size() == r.size {
		return img
	}
	dst := image.NewNRGBA(image.Rectangle{Max: r.size})
	xdraw.ApproxBiLinear.Scale(dst, dst.Rect, img, img.Rect, xdraw.Src, nil)
	return dst
}

// fail records a per-frame error. Only the first error is kept. Caller
// holds r.mu.
func (r *Recorder) fail(op string, ts time.Duration, err error) {
	opchain.Logger().Warn("sink: recorder dropped input", "op", op,
		"session", r.session, "ts", ts, "err", err)
	if len(r.errs) == 0 {
		r.errs = append(r.errs, fmt.Errorf("sink: %s: %w", op, err))
	}
}

var (
	_ opchain.Node      = (*Recorder)(nil)
	_ opchain.AudioNode = (*Recorder)(nil)
)
