package opchain

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/opchain/render"
)

func TestChainContext(t *testing.T) {
	ctx := render.NewSoftwareContext()
	defer ctx.Destroy()

	c := NewChain(ctx)
	if c.Context() != ctx {
		t.Error("Context() should return the context the chain was built with")
	}
}

func TestChainConnectAndDisconnect(t *testing.T) {
	c := NewChain(nil)
	src := &relayNode{}
	sink := &recorder{name: "sink"}

	if err := c.Connect(src, sink); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Connect(src, sink); err != nil {
		t.Fatalf("duplicate Connect: %v", err)
	}
	if src.Targets().Len() != 1 {
		t.Errorf("targets = %d, want 1", src.Targets().Len())
	}

	src.Receive(NewFrame(newFakeTexture(1, 1), 0, "camera"))
	if len(sink.frames()) != 1 {
		t.Fatal("connected sink did not receive the frame")
	}

	c.Disconnect(src, sink)
	c.Disconnect(src, sink)
	src.Receive(NewFrame(newFakeTexture(1, 1), 1, "camera"))
	if len(sink.frames()) != 1 {
		t.Error("disconnected sink still receives frames")
	}
}

func TestChainRejectsCycles(t *testing.T) {
	c := NewChain(nil)
	a, b, d := &relayNode{}, &relayNode{}, &relayNode{}

	if err := c.Link(a, b, d); err != nil {
		t.Fatalf("Link: %v", err)
	}

	tests := []struct {
		name     string
		from, to *relayNode
	}{
		{"self loop", a, a},
		{"back edge", b, a},
		{"long back edge", d, a},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Connect(tt.from, tt.to); !errors.Is(err, ErrCycle) {
				t.Errorf("Connect() = %v, want ErrCycle", err)
			}
		})
	}

	// Fan-in without a cycle is fine.
	if err := c.Connect(a, d); err != nil {
		t.Errorf("fan-in edge rejected: %v", err)
	}
}

func TestChainLinkNeedsSources(t *testing.T) {
	c := NewChain(nil)
	sink := &recorder{name: "sink"}
	if err := c.Link(sink, &relayNode{}); !errors.Is(err, ErrNotSource) {
		t.Errorf("Link(sink, ...) = %v, want ErrNotSource", err)
	}
	if err := c.Link(); err != nil {
		t.Errorf("empty Link = %v", err)
	}
	if err := c.Link(&relayNode{}); err != nil {
		t.Errorf("single-node Link = %v", err)
	}
}

func TestChainNilNodes(t *testing.T) {
	c := NewChain(nil)
	if err := c.Connect(nil, &recorder{}); !errors.Is(err, ErrNilNode) {
		t.Errorf("Connect(nil, _) = %v", err)
	}
	if err := c.Connect(&relayNode{}, nil); !errors.Is(err, ErrNilNode) {
		t.Errorf("Connect(_, nil) = %v", err)
	}
	if err := c.ConnectAudio(nil, &recorder{}); !errors.Is(err, ErrNilNode) {
		t.Errorf("ConnectAudio(nil, _) = %v", err)
	}
	c.Disconnect(nil, nil)
	c.DisconnectAudio(nil, nil)
}

func TestChainReplace(t *testing.T) {
	c := NewChain(nil)
	src := &relayNode{}
	first := &recorder{name: "first"}
	old := &recorder{name: "old"}
	last := &recorder{name: "last"}
	_ = c.Connect(src, first)
	_ = c.Connect(src, old)
	_ = c.Connect(src, last)

	repl := &recorder{name: "repl"}
	ok, err := c.Replace(src, old, repl)
	if err != nil || !ok {
		t.Fatalf("Replace = %v, %v", ok, err)
	}
	got := src.Targets().Snapshot()
	if len(got) != 3 || got[1] != Node(repl) {
		t.Errorf("targets after Replace = %v", got)
	}

	ok, err = c.Replace(src, old, repl)
	if err != nil || ok {
		t.Errorf("Replace of absent target = %v, %v; want false, nil", ok, err)
	}

	if _, err := c.Replace(src, repl, src); !errors.Is(err, ErrCycle) {
		t.Errorf("Replace creating a cycle = %v, want ErrCycle", err)
	}
}

func TestChainAudio(t *testing.T) {
	c := NewChain(nil)
	src := &relayNode{}
	mid := &relayNode{}
	sink := &recorder{name: "sink"}

	if err := c.ConnectAudio(src, mid); err != nil {
		t.Fatal(err)
	}
	if err := c.ConnectAudio(mid, sink); err != nil {
		t.Fatal(err)
	}
	if err := c.ConnectAudio(mid, src); !errors.Is(err, ErrCycle) {
		t.Errorf("audio back edge = %v, want ErrCycle", err)
	}

	buf := AudioBuffer{Samples: []int16{1, 2, 3, 4}, SampleRate: 48000, Channels: 2, Timestamp: time.Second}
	src.ReceiveAudio(buf)
	if len(sink.audio) != 1 || sink.audio[0].Timestamp != time.Second {
		t.Fatalf("sink audio = %+v", sink.audio)
	}

	c.DisconnectAudio(mid, sink)
	c.DisconnectAudio(mid, sink)
	src.ReceiveAudio(buf)
	if len(sink.audio) != 1 {
		t.Error("disconnected audio sink still receives buffers")
	}
}

func TestChainClose(t *testing.T) {
	c := NewChain(nil)
	a := &relayNode{}
	b := &relayNode{err: errors.New("boom")}
	sink := &recorder{}
	if err := c.Link(a, b, sink); err != nil {
		t.Fatal(err)
	}
	if err := c.ConnectAudio(a, b); err != nil {
		t.Fatal(err)
	}

	err := c.Close()
	if err == nil || !errors.Is(err, b.err) {
		t.Errorf("Close() = %v, want wrapped node error", err)
	}
	if a.closed != 1 || b.closed != 1 {
		t.Errorf("closed counts a=%d b=%d, want 1 each", a.closed, b.closed)
	}

	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if a.closed != 1 {
		t.Error("second Close closed nodes again")
	}
	if err := c.Connect(a, sink); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
}
