package opchain

import (
	"slices"
	"sync"
)

// TargetContainer is an ordered set of downstream targets.
//
// Iteration order is insertion order; it determines the order in which
// targets receive a frame. Adding a target twice is a no-op, and removing an
// absent target is a no-op. The zero value is ready to use and safe for
// concurrent use.
type TargetContainer[T comparable] struct {
	mu    sync.RWMutex
	items []T
}

// Targets holds the video targets of a Source.
type Targets = TargetContainer[Node]

// Add appends t. It reports whether t was added.
func (c *TargetContainer[T]) Add(t T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.items, t) {
		return false
	}
	c.items = append(c.items, t)
	return true
}

// Remove deletes t. It reports whether t was present.
func (c *TargetContainer[T]) Remove(t T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(c.items, t)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	return true
}

// Replace swaps old for replacement at the same position. It reports whether
// old was present. If replacement is already registered, old is removed.
func (c *TargetContainer[T]) Replace(old, replacement T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(c.items, old)
	if i < 0 {
		return false
	}
	if old != replacement && slices.Contains(c.items, replacement) {
		c.items = slices.Delete(c.items, i, i+1)
		return true
	}
	c.items[i] = replacement
	return true
}

// Contains reports whether t is registered.
func (c *TargetContainer[T]) Contains(t T) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.items, t)
}

// Len returns the number of targets.
func (c *TargetContainer[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Snapshot returns a copy of the targets in registration order.
func (c *TargetContainer[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Emit delivers f to every target in registration order.
//
// The caller hands over one reference of f. Emit adds one reference for
// every target beyond the first, so each target receives exactly one. With
// no targets the frame is released. Emit iterates over a snapshot, so
// targets may rewire the chain from inside Receive.
func Emit(targets *Targets, f Frame) {
	nodes := targets.Snapshot()
	if len(nodes) == 0 {
		f.Release()
		return
	}
	f.retain(int32(len(nodes) - 1)) //nolint:gosec // target counts are small
	for _, n := range nodes {
		n.Receive(f)
	}
}
