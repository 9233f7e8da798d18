// Package history provides a generic bounded undo/redo stack for editing
// sessions.
//
// A History wraps an arbitrary present value with past and future stacks.
// It is purely in-memory and session-scoped: it is neither persisted nor
// synced, and sits above the durable store rather than inside it.
package history

// DefaultCap is the default bound on the past stack.
const DefaultCap = 50

// History tracks a present value with bounded undo and redo stacks.
// The zero value is not usable; construct with New.
type History[T any] struct {
	past    []T
	present T
	future  []T
	cap     int
}

// New creates a history around an initial present value.
// A cap <= 0 falls back to DefaultCap.
func New[T any](initial T, cap int) *History[T] {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &History[T]{present: initial, cap: cap}
}

// Present returns the current value.
func (h *History[T]) Present() T {
	return h.present
}

// Set records the current present on the past stack (dropping the oldest
// entry when the cap is exceeded), replaces the present with v, and
// clears the redo stack.
func (h *History[T]) Set(v T) {
	h.past = append(h.past, h.present)
	if len(h.past) > h.cap {
		h.past = h.past[len(h.past)-h.cap:]
	}
	h.present = v
	h.future = nil
}

// Undo steps back one entry. It reports false, without changing state,
// when there is nothing to undo.
func (h *History[T]) Undo() bool {
	if len(h.past) == 0 {
		return false
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]T{h.present}, h.future...)
	h.present = prev
	return true
}

// Redo steps forward one entry. It reports false, without changing state,
// when there is nothing to redo.
func (h *History[T]) Redo() bool {
	if len(h.future) == 0 {
		return false
	}
	next := h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, h.present)
	if len(h.past) > h.cap {
		h.past = h.past[len(h.past)-h.cap:]
	}
	h.present = next
	return true
}

// CanUndo reports whether Undo would change state.
func (h *History[T]) CanUndo() bool {
	return len(h.past) > 0
}

// CanRedo reports whether Redo would change state.
func (h *History[T]) CanRedo() bool {
	return len(h.future) > 0
}

// PastLen returns the current depth of the undo stack.
func (h *History[T]) PastLen() int {
	return len(h.past)
}

// FutureLen returns the current depth of the redo stack.
func (h *History[T]) FutureLen() int {
	return len(h.future)
}
