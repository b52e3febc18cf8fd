// Package gc implements the traced object arena shared by both script VMs.
//
// Objects are ordinary Go values that embed a Header and implement Trace.
// The Heap tracks every allocated object and decides liveness by tracing
// from registered root sources. Unreachable objects are swept: removed from
// the registry and flagged dead, and weak references to them are cleared.
package gc

import (
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("avmcore.gc")

// ---------------------------------------------------------------------------
// Header and Traceable
// ---------------------------------------------------------------------------

type color uint8

const (
	white color = iota // not yet reached this cycle
	gray               // reached, children not yet traced
	black              // reached and traced
)

// Header is embedded in every heap object.
type Header struct {
	color color
	dead  bool
}

// GCHeader returns the header itself so embedding types satisfy Traceable.
func (h *Header) GCHeader() *Header {
	return h
}

// Dead reports whether the object was swept by a collection.
func (h *Header) Dead() bool {
	return h.dead
}

// Traceable is implemented by every object allocated on a Heap.
type Traceable interface {
	GCHeader() *Header
	Trace(t *Tracer)
}

// RootSource contributes roots at the start and end of each cycle.
type RootSource interface {
	TraceRoots(t *Tracer)
}

// RootFunc adapts a function to RootSource.
type RootFunc func(t *Tracer)

// TraceRoots calls f.
func (f RootFunc) TraceRoots(t *Tracer) {
	f(t)
}

type rootEntry struct {
	src RootSource
}

// ---------------------------------------------------------------------------
// Tracer
// ---------------------------------------------------------------------------

// Tracer is handed to Trace implementations to report outgoing edges.
type Tracer struct {
	heap *Heap
}

// Mark records obj as reachable. obj must not be a nil pointer wrapped in
// a non-nil interface; Trace implementations check their fields first.
func (t *Tracer) Mark(obj Traceable) {
	if obj == nil {
		return
	}
	hdr := obj.GCHeader()
	if hdr.dead || hdr.color != white {
		return
	}
	hdr.color = gray
	t.heap.gray = append(t.heap.gray, obj)
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

type phase uint8

const (
	phaseIdle phase = iota
	phaseMarking
)

// DefaultThreshold is the allocation debt that schedules a collection.
const DefaultThreshold = 4096

// Heap is the object arena. It is not safe for concurrent use; the player
// drives it from a single goroutine.
type Heap struct {
	objects []Traceable
	roots   []*rootEntry
	weaks   []*weakSlot
	gray    []Traceable
	young   []Traceable
	tracer  Tracer

	phase     phase
	debt      int
	threshold int

	cycleStart time.Time
	stats      Stats
}

// NewHeap creates a heap that schedules a cycle every threshold
// allocations. A non-positive threshold uses DefaultThreshold.
func NewHeap(threshold int) *Heap {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	h := &Heap{threshold: threshold}
	h.tracer.heap = h
	return h
}

// AddRoot registers a root source and returns a function that removes it.
func (h *Heap) AddRoot(r RootSource) (remove func()) {
	entry := &rootEntry{src: r}
	h.roots = append(h.roots, entry)
	return func() {
		for i, existing := range h.roots {
			if existing == entry {
				h.roots = append(h.roots[:i], h.roots[i+1:]...)
				return
			}
		}
	}
}

// Alloc registers obj with the heap and returns it.
//
// Allocation never collects or marks: objects held only in Go locals would
// otherwise be lost. It only accrues debt; Safepoint runs the collection
// once the debt passes the threshold.
//
// Callers may fill an object allocated while a cycle is marking without
// barriers; FinishCycle traces it again before sweeping.
func Alloc[T Traceable](h *Heap, obj T) T {
	hdr := obj.GCHeader()
	hdr.dead = false
	if h.phase == phaseMarking {
		hdr.color = gray
		h.gray = append(h.gray, obj)
		h.young = append(h.young, obj)
	} else {
		hdr.color = white
	}
	h.objects = append(h.objects, obj)
	h.stats.Allocated++
	h.debt++
	return obj
}

// Barrier must be called after storing a heap pointer into parent. While a
// cycle is marking, an already traced parent is re-grayed so the new edge
// is seen before the sweep.
func (h *Heap) Barrier(parent Traceable) {
	if h.phase != phaseMarking || parent == nil {
		return
	}
	hdr := parent.GCHeader()
	if hdr.color == black {
		hdr.color = gray
		h.gray = append(h.gray, parent)
		h.stats.BarrierHits++
	}
}

// Marking reports whether a cycle is in progress.
func (h *Heap) Marking() bool {
	return h.phase == phaseMarking
}

// StartCycle begins a mark phase by graying every root. It is a no-op if a
// cycle is already running.
func (h *Heap) StartCycle() {
	if h.phase == phaseMarking {
		return
	}
	h.phase = phaseMarking
	h.cycleStart = time.Now()
	for _, r := range h.roots {
		r.src.TraceRoots(&h.tracer)
	}
}

// Step traces up to budget gray objects. It returns true when the gray
// worklist is empty.
func (h *Heap) Step(budget int) bool {
	if h.phase != phaseMarking {
		return true
	}
	for budget > 0 && len(h.gray) > 0 {
		n := len(h.gray) - 1
		obj := h.gray[n]
		h.gray[n] = nil
		h.gray = h.gray[:n]

		hdr := obj.GCHeader()
		if hdr.color == black {
			continue
		}
		hdr.color = black
		obj.Trace(&h.tracer)
		budget--
	}
	return len(h.gray) == 0
}

// FinishCycle rescans the roots, drains the worklist, clears weak
// references to unreached objects and sweeps. Callers must be at a point
// where every live object is reachable from a root.
func (h *Heap) FinishCycle() Stats {
	if h.phase != phaseMarking {
		h.StartCycle()
	}
	// Roots such as operand stacks are not barriered; rescan them.
	for _, r := range h.roots {
		r.src.TraceRoots(&h.tracer)
	}
	// Neither are objects allocated during the cycle.
	for i, obj := range h.young {
		if hdr := obj.GCHeader(); hdr.color == black {
			hdr.color = gray
			h.gray = append(h.gray, obj)
		}
		h.young[i] = nil
	}
	h.young = h.young[:0]
	for !h.Step(1 << 30) {
	}

	cleared := h.processWeak()

	live := h.objects[:0]
	swept := 0
	for _, obj := range h.objects {
		hdr := obj.GCHeader()
		if hdr.color == white {
			hdr.dead = true
			swept++
			continue
		}
		hdr.color = white
		live = append(live, obj)
	}
	for i := len(live); i < len(h.objects); i++ {
		h.objects[i] = nil
	}
	h.objects = live

	h.phase = phaseIdle
	h.debt = 0

	h.stats.Cycles++
	h.stats.Live = len(live)
	h.stats.LastSwept = swept
	h.stats.TotalSwept += swept
	h.stats.WeakCleared += cleared
	h.stats.LastPause = time.Since(h.cycleStart)
	h.stats.Timestamp = time.Now()

	log.Debugf("cycle %d: live=%d swept=%d weak=%d pause=%s",
		h.stats.Cycles, h.stats.Live, swept, cleared, h.stats.LastPause)
	return h.stats
}

// Collect runs a full collection to completion.
func (h *Heap) Collect() Stats {
	h.StartCycle()
	return h.FinishCycle()
}

// Safepoint finishes a pending cycle, or runs a full one if enough has been
// allocated since the last. The player calls it between frames, when no
// activation holds heap pointers in Go locals.
func (h *Heap) Safepoint() bool {
	if h.phase == phaseMarking || h.debt >= h.threshold {
		h.FinishCycle()
		return true
	}
	return false
}

// Len returns the number of registered objects.
func (h *Heap) Len() int {
	return len(h.objects)
}

// Stats returns a copy of the collector statistics.
func (h *Heap) Stats() Stats {
	s := h.stats
	s.Live = len(h.objects)
	return s
}
