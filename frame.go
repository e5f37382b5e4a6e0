package opchain

import (
	"sync/atomic"
	"time"

	"github.com/gogpu/opchain/render"
)

// Frame is an immutable video frame: a texture, the source-clock timestamp
// and the key of the logical stream it belongs to (for example "camera" or
// "mask").
//
// Frames are small values passed by copy. Copies share one reference-counted
// texture handle. A producer creates a frame holding one reference; every
// Receive call hands exactly one reference to the receiver, which must either
// forward it (Emit) or Release it. The texture is destroyed when the last
// reference is released.
//
// The texture of a frame is never written after creation. Nodes that resize
// or blend allocate a new texture and create a new frame.
//
// Two frames are equal (==) if they share the handle, timestamp and key.
type Frame struct {
	h   *frameHandle
	ts  time.Duration
	key string
}

// frameHandle is the shared, reference-counted texture owner.
type frameHandle struct {
	tex  render.Texture
	refs atomic.Int32
}

// NewFrame wraps tex in a frame holding one reference.
// A nil texture yields an invalid frame that still carries ts and key.
func NewFrame(tex render.Texture, ts time.Duration, key string) Frame {
	f := Frame{ts: ts, key: key}
	if tex != nil {
		f.h = &frameHandle{tex: tex}
		f.h.refs.Store(1)
	}
	return f
}

// IsValid reports whether the frame carries a live texture handle.
func (f Frame) IsValid() bool {
	return f.h != nil && f.h.refs.Load() > 0
}

// Texture returns the frame texture, or nil for an invalid frame.
func (f Frame) Texture() render.Texture {
	if f.h == nil {
		return nil
	}
	return f.h.tex
}

// Timestamp returns the source-clock timestamp.
func (f Frame) Timestamp() time.Duration { return f.ts }

// Key returns the logical stream key.
func (f Frame) Key() string { return f.key }

// Width returns the texture width, or 0 for an invalid frame.
func (f Frame) Width() int {
	if f.h == nil {
		return 0
	}
	return f.h.tex.Width()
}

// Height returns the texture height, or 0 for an invalid frame.
func (f Frame) Height() int {
	if f.h == nil {
		return 0
	}
	return f.h.tex.Height()
}

// Refs returns the current reference count.
func (f Frame) Refs() int32 {
	if f.h == nil {
		return 0
	}
	return f.h.refs.Load()
}

// SameTexture reports whether f and other share one texture handle.
func (f Frame) SameTexture(other Frame) bool {
	return f.h != nil && f.h == other.h
}

// Retain adds one reference and returns f, so a node can keep a frame
// beyond the Receive call that delivered it.
func (f Frame) Retain() Frame {
	f.retain(1)
	return f
}

func (f Frame) retain(n int32) {
	if f.h == nil || n <= 0 {
		return
	}
	f.h.refs.Add(n)
}

// Release drops one reference. The texture is destroyed on the last release.
// Releasing an invalid frame is a no-op; releasing more often than retained
// is logged and ignored.
func (f Frame) Release() {
	if f.h == nil {
		return
	}
	for {
		n := f.h.refs.Load()
		if n <= 0 {
			Logger().Warn("opchain: frame released too often", "key", f.key, "ts", f.ts)
			return
		}
		if f.h.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				f.h.tex.Destroy()
			}
			return
		}
	}
}
