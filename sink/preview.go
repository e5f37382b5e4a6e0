package sink

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/opchain"
	"github.com/gogpu/opchain/render"
)

// ErrNoFrame is returned by Preview.Snapshot before the first frame.
var ErrNoFrame = errors.New("sink: no frame received")

// Preview is the on-screen end of a chain. It keeps the most recent frame
// for the host to present and forwards every frame to its own targets, so a
// recorder can be attached behind it.
//
// The callback, if any, runs synchronously on the producer goroutine. It
// borrows the frame: it must not release it, and must Retain it to keep it
// beyond the call.
type Preview struct {
	onFrame func(opchain.Frame)
	targets opchain.Targets
	frames  atomic.Int64

	mu     sync.Mutex
	latest opchain.Frame
	closed bool
}

// NewPreview creates a preview calling onFrame for every frame. onFrame
// may be nil.
func NewPreview(onFrame func(opchain.Frame)) *Preview {
	return &Preview{onFrame: onFrame}
}

// Targets returns the downstream targets.
func (p *Preview) Targets() *opchain.Targets {
	return &p.targets
}

// Receive stores f as the latest frame, calls the callback and forwards f.
func (p *Preview) Receive(f opchain.Frame) {
	p.frames.Add(1)

	p.mu.Lock()
	old := p.latest
	if p.closed {
		old = opchain.Frame{}
	} else {
		p.latest = f.Retain()
	}
	p.mu.Unlock()
	old.Release()

	if p.onFrame != nil {
		p.onFrame(f)
	}
	opchain.Emit(&p.targets, f)
}

// Frames returns the number of frames received.
func (p *Preview) Frames() int64 {
	return p.frames.Load()
}

// Latest returns the most recent frame with an extra reference, which the
// caller must release. It returns an invalid frame before the first one.
func (p *Preview) Latest() opchain.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.latest.IsValid() {
		return opchain.Frame{}
	}
	return p.latest.Retain()
}

// Snapshot reads the latest frame back through r.
func (p *Preview) Snapshot(r render.ImageReader) (*image.NRGBA, error) {
	f := p.Latest()
	defer f.Release()
	if !f.IsValid() {
		return nil, ErrNoFrame
	}
	return r.ReadImage(f.Texture())
}

// Close releases the latest frame. Frames received afterwards are still
// forwarded but not kept.
func (p *Preview) Close() error {
	p.mu.Lock()
	old := p.latest
	p.latest = opchain.Frame{}
	p.closed = true
	p.mu.Unlock()
	old.Release()
	return nil
}

var (
	_ opchain.Node   = (*Preview)(nil)
	_ opchain.Source = (*Preview)(nil)
)
