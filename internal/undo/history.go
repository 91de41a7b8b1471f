// Package undo provides a bounded two-stack snapshot history. It is
// agnostic to what it snapshots: the presentation graph goes in whole and
// comes back whole, and the caller restores popped snapshots verbatim
// without re-derivation.
package undo

// DefaultLimit caps history depth when the caller passes 0.
const DefaultLimit = 100

// History holds past and future snapshots of type T.
// Not safe for concurrent use; the owning session serializes access.
type History[T any] struct {
	limit int
	clone func(T) T
	equal func(a, b T) bool
	past  []T
	next  []T
}

// New creates a History. clone guards stored snapshots against later
// mutation by the caller; equal suppresses pushes that would duplicate the
// top of the stack.
func New[T any](limit int, clone func(T) T, equal func(a, b T) bool) *History[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History[T]{limit: limit, clone: clone, equal: equal}
}

// Push records a snapshot and clears the redo stack. Snapshots equal to
// the current top are dropped; debouncing on a quiescence window is the
// caller's concern, dedup is this engine's. Reports whether the snapshot
// was recorded.
func (h *History[T]) Push(snapshot T) bool {
	if n := len(h.past); n > 0 && h.equal(h.past[n-1], snapshot) {
		return false
	}

	h.past = append(h.past, h.clone(snapshot))
	h.next = h.next[:0]

	if len(h.past) > h.limit {
		overflow := len(h.past) - h.limit
		h.past = append(h.past[:0:0], h.past[overflow:]...)
	}
	return true
}

// Undo steps back one snapshot and returns the state to restore, or false
// when there is nothing earlier to return to.
func (h *History[T]) Undo() (T, bool) {
	var zero T
	if len(h.past) < 2 {
		return zero, false
	}

	top := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.next = append(h.next, top)

	return h.clone(h.past[len(h.past)-1]), true
}

// Redo re-applies the most recently undone snapshot, or returns false when
// the redo stack is empty.
func (h *History[T]) Redo() (T, bool) {
	var zero T
	if len(h.next) == 0 {
		return zero, false
	}

	top := h.next[len(h.next)-1]
	h.next = h.next[:len(h.next)-1]
	h.past = append(h.past, top)

	return h.clone(top), true
}

// CanUndo reports whether Undo would succeed.
func (h *History[T]) CanUndo() bool {
	return len(h.past) >= 2
}

// CanRedo reports whether Redo would succeed.
func (h *History[T]) CanRedo() bool {
	return len(h.next) > 0
}

// Depth returns the number of recorded past snapshots.
func (h *History[T]) Depth() int {
	return len(h.past)
}
