package opchain

// Node is a processing node: the unit of work in a chain.
//
// Receive takes ownership of one reference of f. A node that handles several
// logical inputs dispatches on f.Key(). Receive runs synchronously on the
// producer's goroutine; GPU work it submits may complete later, but the order
// of submissions from one node is preserved.
type Node interface {
	Receive(f Frame)
}

// Source is implemented by nodes that emit frames to downstream targets.
type Source interface {
	Targets() *Targets
}

// FuncNode adapts a function to a Node. It is always used by pointer so
// that nodes stay comparable inside target containers.
type FuncNode struct {
	fn func(Frame)
}

// NewFuncNode returns a terminal node that calls fn for every frame.
// fn owns the frame reference and must release it.
func NewFuncNode(fn func(Frame)) *FuncNode {
	return &FuncNode{fn: fn}
}

// Receive calls the wrapped function.
func (n *FuncNode) Receive(f Frame) {
	n.fn(f)
}

// Relay is a node that forwards every frame unchanged. It is useful as a
// named junction where several branches fan out.
type Relay struct {
	targets Targets
}

// NewRelay creates an empty relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Receive forwards f to every target.
func (r *Relay) Receive(f Frame) {
	Emit(&r.targets, f)
}

// Targets returns the downstream targets.
func (r *Relay) Targets() *Targets {
	return &r.targets
}

var (
	_ Node   = (*FuncNode)(nil)
	_ Node   = (*Relay)(nil)
	_ Source = (*Relay)(nil)
)
