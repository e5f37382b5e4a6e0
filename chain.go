package opchain

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gogpu/opchain/render"
)

// Chain wires nodes into a directed acyclic graph and owns the rendering
// context handle that every node is built with.
//
// The context is owned by the host; Chain.Close closes the wired nodes but
// does not destroy the context.
//
// Example:
//
//	chain := opchain.NewChain(ctx)
//	defer chain.Close()
//
//	comp, err := compositor.New(chain.Context(), "camera")
//	if err != nil {
//	    return err
//	}
//	if err := chain.Link(camera, model, comp, preview); err != nil {
//	    return err
//	}
//	if err := chain.ConnectAudio(camera, recorder); err != nil {
//	    return err
//	}
type Chain struct {
	ctx render.Context

	mu     sync.Mutex
	nodes  []any
	seen   map[any]struct{}
	closed bool
}

// NewChain creates a chain around a rendering context.
func NewChain(ctx render.Context) *Chain {
	return &Chain{ctx: ctx, seen: make(map[any]struct{})}
}

// Context returns the rendering context nodes of this chain draw with.
func (c *Chain) Context() render.Context {
	return c.ctx
}

// Connect adds an edge from → to: every frame from emits reaches to.
// Connecting an existing edge is a no-op. An edge that would close a cycle
// is rejected with ErrCycle.
func (c *Chain) Connect(from Source, to Node) error {
	if from == nil || to == nil {
		return ErrNilNode
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if reaches(to, from) {
		return fmt.Errorf("%w: %T --> %T", ErrCycle, from, to)
	}
	from.Targets().Add(to)
	c.track(from, to)
	return nil
}

// ConnectAudio adds an audio edge from → to.
func (c *Chain) ConnectAudio(from AudioSource, to AudioNode) error {
	if from == nil || to == nil {
		return ErrNilNode
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if reachesAudio(to, from) {
		return fmt.Errorf("%w: %T ==> %T", ErrCycle, from, to)
	}
	from.AudioTargets().Add(to)
	c.track(from, to)
	return nil
}

// Link connects nodes consecutively: nodes[0] --> nodes[1] --> ... Every
// node but the last must be a Source.
func (c *Chain) Link(nodes ...Node) error {
	for i := 0; i+1 < len(nodes); i++ {
		from, ok := nodes[i].(Source)
		if !ok {
			return fmt.Errorf("%w: %T at position %d", ErrNotSource, nodes[i], i)
		}
		if err := c.Connect(from, nodes[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect removes the edge from → to. Removing an absent edge is a no-op.
func (c *Chain) Disconnect(from Source, to Node) {
	if from == nil || to == nil {
		return
	}
	from.Targets().Remove(to)
}

// DisconnectAudio removes the audio edge from → to. Removing an absent edge
// is a no-op.
func (c *Chain) DisconnectAudio(from AudioSource, to AudioNode) {
	if from == nil || to == nil {
		return
	}
	from.AudioTargets().Remove(to)
}

// Replace swaps the target old of from for replacement, keeping its
// position among from's targets. It reports false if old was not a target.
func (c *Chain) Replace(from Source, old, replacement Node) (bool, error) {
	if from == nil || old == nil || replacement == nil {
		return false, ErrNilNode
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if reaches(replacement, from) {
		return false, fmt.Errorf("%w: %T --> %T", ErrCycle, from, replacement)
	}
	if !from.Targets().Replace(old, replacement) {
		return false, nil
	}
	c.track(replacement)
	return true, nil
}

// Close closes every wired node that implements io.Closer, in the order the
// nodes were first wired. Close is idempotent.
func (c *Chain) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	nodes := c.nodes
	c.nodes, c.seen = nil, nil
	c.mu.Unlock()

	var errs []error
	for _, n := range nodes {
		if cl, ok := n.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %T: %w", n, err))
			}
		}
	}
	Logger().Info("opchain: chain closed", "nodes", len(nodes), "errors", len(errs))
	return errors.Join(errs...)
}

// track records nodes for Close. Callers hold c.mu.
func (c *Chain) track(nodes ...any) {
	for _, n := range nodes {
		if _, ok := c.seen[n]; ok {
			continue
		}
		c.seen[n] = struct{}{}
		c.nodes = append(c.nodes, n)
	}
}

// reaches reports whether target is reachable from start along video edges,
// including start == target.
func reaches(start Node, target Source) bool {
	visited := make(map[any]struct{})
	stack := []any{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == any(target) {
			return true
		}
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}
		if s, ok := n.(Source); ok {
			for _, t := range s.Targets().Snapshot() {
				stack = append(stack, t)
			}
		}
	}
	return false
}

// reachesAudio is reaches for audio edges.
func reachesAudio(start AudioNode, target AudioSource) bool {
	visited := make(map[any]struct{})
	stack := []any{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == any(target) {
			return true
		}
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}
		if s, ok := n.(AudioSource); ok {
			for _, t := range s.AudioTargets().Snapshot() {
				stack = append(stack, t)
			}
		}
	}
	return false
}
