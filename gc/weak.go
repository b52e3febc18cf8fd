package gc

// ---------------------------------------------------------------------------
// Weak: A reference that doesn't keep its target alive
// ---------------------------------------------------------------------------

type weakSlot struct {
	target    Traceable
	finalizer func()
}

// Weak is a handle that resolves to its target until the target is swept.
// It is used for back-pointers, such as a display object referring to the
// script object that wraps it.
type Weak[T Traceable] struct {
	slot *weakSlot
}

// NewWeak creates a weak reference to target and registers it with h.
func NewWeak[T Traceable](h *Heap, target T) Weak[T] {
	slot := &weakSlot{target: target}
	if target.GCHeader().dead {
		slot.target = nil
	} else {
		h.weaks = append(h.weaks, slot)
	}
	return Weak[T]{slot: slot}
}

// Get returns the target, or the zero value and false once it has been
// collected.
func (w Weak[T]) Get() (T, bool) {
	var zero T
	if w.slot == nil || w.slot.target == nil {
		return zero, false
	}
	return w.slot.target.(T), true
}

// Alive reports whether the target has not been collected.
func (w Weak[T]) Alive() bool {
	return w.slot != nil && w.slot.target != nil
}

// SetFinalizer sets a callback run once when the target is collected.
func (w Weak[T]) SetFinalizer(fn func()) {
	if w.slot != nil {
		w.slot.finalizer = fn
	}
}

// processWeak clears slots whose targets were not reached this cycle and
// runs their finalizers. Cleared slots are dropped from the registry.
func (h *Heap) processWeak() int {
	cleared := 0
	var finalize []func()

	kept := h.weaks[:0]
	for _, slot := range h.weaks {
		if slot.target == nil {
			continue
		}
		if slot.target.GCHeader().color == white {
			slot.target = nil
			cleared++
			if slot.finalizer != nil {
				finalize = append(finalize, slot.finalizer)
				slot.finalizer = nil
			}
			continue
		}
		kept = append(kept, slot)
	}
	for i := len(kept); i < len(h.weaks); i++ {
		h.weaks[i] = nil
	}
	h.weaks = kept

	// Finalizers run after the registry is consistent.
	for _, fn := range finalize {
		fn()
	}
	return cleared
}
