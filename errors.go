package opchain

import "errors"

// Chain wiring errors.
var (
	// ErrCycle is returned when an edge would make the chain cyclic.
	ErrCycle = errors.New("opchain: edge would create a cycle")

	// ErrNilNode is returned when a nil node is wired.
	ErrNilNode = errors.New("opchain: nil node")

	// ErrNotSource is returned by Link when an inner node cannot emit.
	ErrNotSource = errors.New("opchain: node does not emit frames")

	// ErrClosed is returned when a closed chain is modified.
	ErrClosed = errors.New("opchain: chain closed")
)
