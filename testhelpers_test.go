package opchain

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// fakeTexture counts Destroy calls.
type fakeTexture struct {
	w, h      int
	destroyed atomic.Int32
}

func newFakeTexture(w, h int) *fakeTexture { return &fakeTexture{w: w, h: h} }

func (t *fakeTexture) Width() int                     { return t.w }
func (t *fakeTexture) Height() int                    { return t.h }
func (t *fakeTexture) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }
func (t *fakeTexture) Destroy()                       { t.destroyed.Add(1) }
func (t *fakeTexture) Destroyed() bool                { return t.destroyed.Load() > 0 }

// recorder is a terminal node that stores what it receives.
type recorder struct {
	name  string
	log   *[]string
	mu    sync.Mutex
	got   []Frame
	keep  bool
	audio []AudioBuffer
}

func (r *recorder) Receive(f Frame) {
	r.mu.Lock()
	r.got = append(r.got, f)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
	r.mu.Unlock()
	if !r.keep {
		f.Release()
	}
}

func (r *recorder) ReceiveAudio(b AudioBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, b)
}

func (r *recorder) frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.got...)
}

// relayNode is an audio and video relay used to build graphs.
type relayNode struct {
	Relay
	audio  AudioTargets
	closed int
	err    error
}

func (n *relayNode) AudioTargets() *AudioTargets { return &n.audio }
func (n *relayNode) ReceiveAudio(b AudioBuffer) { EmitAudio(&n.audio, b) }
func (n *relayNode) Close() error {
	n.closed++
	return n.err
}
