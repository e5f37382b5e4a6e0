// Package inference wraps segmentation models as chain nodes.
//
// A [Model] turns an input texture into an output texture, typically the
// input with a person mask written into its alpha channel. [Node] runs the
// model for every frame and forwards the result; when the model fails the
// input is forwarded unchanged so the chain never stalls.
package inference

import (
	"context"
	"errors"
	"time"

	"github.com/gogpu/opchain"
	"github.com/gogpu/opchain/metrics"
	"github.com/gogpu/opchain/render"
)

// ErrNilModel is returned by New without a model.
var ErrNilModel = errors.New("inference: nil model")

// Model is an opaque inference step. Predict must not modify in and
// returns a new texture owned by the caller.
type Model interface {
	Predict(ctx context.Context, in render.Texture) (render.Texture, error)
}

// ModelFunc adapts a function to a Model.
type ModelFunc func(ctx context.Context, in render.Texture) (render.Texture, error)

// Predict calls f.
func (f ModelFunc) Predict(ctx context.Context, in render.Texture) (render.Texture, error) {
	return f(ctx, in)
}

// Option configures a Node.
type Option func(*Node)

// WithName sets the node name used in logs and metrics.
func WithName(name string) Option {
	return func(n *Node) {
		if name != "" {
			n.name = name
		}
	}
}

// WithOutputKey sets the key of model outputs. By default the output keeps
// the input key, so a compositor keyed on the camera receives the masked
// frames as its base stream.
func WithOutputKey(key string) Option {
	return func(n *Node) {
		n.outputKey = key
	}
}

// WithTimeout bounds every Predict call.
func WithTimeout(d time.Duration) Option {
	return func(n *Node) {
		n.timeout = d
	}
}

// WithMetrics records outcomes and model latency in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(n *Node) {
		n.metrics = c
	}
}

// Node runs a Model on every frame.
type Node struct {
	model     Model
	name      string
	outputKey string
	timeout   time.Duration
	metrics   *metrics.Collector
	targets   opchain.Targets
}

// New creates a node running m.
func New(m Model, opts ...Option) (*Node, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	n := &Node{model: m, name: "inference"}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Targets returns the downstream targets.
func (n *Node) Targets() *opchain.Targets {
	return &n.targets
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.name
}

// Receive runs the model on f and forwards the output, or f itself when
// the model fails.
func (n *Node) Receive(f opchain.Frame) {
	out, err := n.predict(f)
	if err != nil {
		opchain.Logger().Warn("inference: model failed, forwarding input",
			"name", n.name, "ts", f.Timestamp(), "err", err)
		n.metrics.Frame(n.name, metrics.OutcomeForwarded)
		opchain.Emit(&n.targets, f)
		return
	}

	key := f.Key()
	if n.outputKey != "" {
		key = n.outputKey
	}
	next := opchain.NewFrame(out, f.Timestamp(), key)
	f.Release()
	opchain.Emit(&n.targets, next)
}

func (n *Node) predict(f opchain.Frame) (render.Texture, error) {
	if !f.IsValid() {
		return nil, errors.New("invalid frame")
	}
	ctx := context.Background()
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := n.model.Predict(ctx, f.Texture())
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("model returned no texture")
	}
	n.metrics.ObserveRender(n.name, time.Since(start))
	n.metrics.Frame(n.name, metrics.OutcomeInferred)
	return out, nil
}

var (
	_ opchain.Node   = (*Node)(nil)
	_ opchain.Source = (*Node)(nil)
)
