package gc

import "testing"

type node struct {
	Header
	name  string
	edges []*node
}

func (n *node) Trace(t *Tracer) {
	for _, e := range n.edges {
		if e != nil {
			t.Mark(e)
		}
	}
}

func newNode(h *Heap, name string) *node {
	return Alloc(h, &node{name: name})
}

func link(h *Heap, from, to *node) {
	from.edges = append(from.edges, to)
	h.Barrier(from)
}

type rootSet struct {
	nodes []*node
}

func (r *rootSet) TraceRoots(t *Tracer) {
	for _, n := range r.nodes {
		t.Mark(n)
	}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

func TestCollectSweepsUnreachable(t *testing.T) {
	h := NewHeap(1 << 20)
	roots := &rootSet{}
	h.AddRoot(roots)

	a := newNode(h, "a")
	b := newNode(h, "b")
	garbage := newNode(h, "garbage")
	link(h, a, b)
	roots.nodes = append(roots.nodes, a)

	stats := h.Collect()

	if stats.LastSwept != 1 {
		t.Errorf("LastSwept = %d, want 1", stats.LastSwept)
	}
	if !garbage.Dead() {
		t.Error("unreachable node should be dead")
	}
	if a.Dead() || b.Dead() {
		t.Error("reachable nodes should survive")
	}
	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2", h.Len())
	}
}

func TestCollectHandlesCycles(t *testing.T) {
	h := NewHeap(1 << 20)
	roots := &rootSet{}
	h.AddRoot(roots)

	a := newNode(h, "a")
	b := newNode(h, "b")
	link(h, a, b)
	link(h, b, a)

	roots.nodes = []*node{a}
	h.Collect()
	if a.Dead() || b.Dead() {
		t.Fatal("rooted cycle should survive")
	}

	roots.nodes = nil
	h.Collect()
	if !a.Dead() || !b.Dead() {
		t.Fatal("unrooted cycle should be collected")
	}
}

func TestRemoveRoot(t *testing.T) {
	h := NewHeap(1 << 20)
	n := newNode(h, "n")
	remove := h.AddRoot(RootFunc(func(t *Tracer) { t.Mark(n) }))

	h.Collect()
	if n.Dead() {
		t.Fatal("rooted node collected")
	}

	remove()
	h.Collect()
	if !n.Dead() {
		t.Fatal("node should be collected after its root is removed")
	}
}

// ---------------------------------------------------------------------------
// Incremental marking and the write barrier
// ---------------------------------------------------------------------------

func TestBarrierKeepsEdgeStoredIntoBlackObject(t *testing.T) {
	h := NewHeap(1 << 20)
	roots := &rootSet{}
	h.AddRoot(roots)

	parent := newNode(h, "parent")
	roots.nodes = []*node{parent}

	h.StartCycle()
	if !h.Step(10) {
		t.Fatal("expected the worklist to drain")
	}
	if parent.GCHeader().color != black {
		t.Fatal("parent should be black after stepping")
	}

	// Allocated during marking, so it starts gray; drain it, then make an
	// older white object reachable only through the black parent.
	late := newNode(h, "late")
	h.Step(10)
	orphan := &node{name: "orphan"}
	orphan.Header.color = white
	h.objects = append(h.objects, orphan)
	link(h, late, orphan)
	link(h, parent, late)

	h.FinishCycle()
	if orphan.Dead() {
		t.Error("object stored through a barrier must survive the cycle")
	}
	if late.Dead() {
		t.Error("object allocated during marking must survive the cycle")
	}
	if h.Stats().BarrierHits == 0 {
		t.Error("expected the barrier to re-gray a black parent")
	}
}

func TestMissingBarrierLosesEdge(t *testing.T) {
	h := NewHeap(1 << 20)
	roots := &rootSet{}
	h.AddRoot(roots)

	parent := newNode(h, "parent")
	child := newNode(h, "child")
	roots.nodes = []*node{parent}

	h.StartCycle()
	h.Step(10)
	// Store without the barrier: the collector cannot see it.
	parent.edges = append(parent.edges, child)
	h.FinishCycle()

	if !child.Dead() {
		t.Error("expected an unbarriered store into a black object to be missed")
	}
}

func TestObjectFilledAfterAllocationDuringMarking(t *testing.T) {
	h := NewHeap(1 << 20)
	roots := &rootSet{}
	h.AddRoot(roots)

	elem := newNode(h, "elem")
	weak := NewWeak(h, elem)

	h.StartCycle()
	// An array built while marking: allocated, traced by a step before it
	// has any fields, then filled without a barrier.
	arr := newNode(h, "arr")
	h.Step(10)
	if arr.GCHeader().color != black {
		t.Fatal("new object should be black after stepping")
	}
	arr.edges = append(arr.edges, elem)
	roots.nodes = []*node{arr}
	h.FinishCycle()

	if elem.Dead() || !weak.Alive() {
		t.Error("element stored into an object allocated during marking was swept")
	}
	if arr.Dead() {
		t.Error("object allocated during marking was swept")
	}

	// The next cycle treats it like any other object.
	roots.nodes = nil
	h.Collect()
	if !arr.Dead() || !elem.Dead() {
		t.Error("unrooted objects should be collected by the following cycle")
	}
}

func TestAllocationDebtCollectsAtSafepoint(t *testing.T) {
	h := NewHeap(4)
	for i := 0; i < 4; i++ {
		newNode(h, "x")
	}
	if h.Marking() {
		t.Fatal("allocation must not start marking")
	}
	if h.Len() != 4 {
		t.Fatalf("Len = %d before the safepoint, want 4", h.Len())
	}
	if !h.Safepoint() {
		t.Fatal("safepoint should collect once the debt passes the threshold")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0 (nothing rooted)", h.Len())
	}
	if h.Marking() {
		t.Error("the safepoint collection should run to completion")
	}
	if h.Safepoint() {
		t.Error("safepoint with no debt should not collect")
	}
}

// ---------------------------------------------------------------------------
// Weak references
// ---------------------------------------------------------------------------

func TestWeakClearedAfterCollection(t *testing.T) {
	h := NewHeap(1 << 20)
	roots := &rootSet{}
	h.AddRoot(roots)

	target := newNode(h, "target")
	roots.nodes = []*node{target}
	w := NewWeak(h, target)

	finalized := 0
	w.SetFinalizer(func() { finalized++ })

	h.Collect()
	got, ok := w.Get()
	if !ok || got != target {
		t.Fatal("weak ref should resolve while target is rooted")
	}

	roots.nodes = nil
	h.Collect()
	if _, ok := w.Get(); ok {
		t.Error("weak ref should be cleared after target is collected")
	}
	if w.Alive() {
		t.Error("Alive should be false")
	}
	if finalized != 1 {
		t.Errorf("finalizer ran %d times, want 1", finalized)
	}

	h.Collect()
	if finalized != 1 {
		t.Errorf("finalizer ran again on a later cycle")
	}
}

func TestWeakDoesNotKeepAlive(t *testing.T) {
	h := NewHeap(1 << 20)
	holder := newNode(h, "holder")
	h.AddRoot(RootFunc(func(t *Tracer) { t.Mark(holder) }))

	target := newNode(h, "target")
	w := NewWeak(h, target)
	h.Collect()

	if !target.Dead() || w.Alive() {
		t.Error("weak reference must not extend lifetime")
	}
	if h.Stats().WeakCleared != 1 {
		t.Errorf("WeakCleared = %d, want 1", h.Stats().WeakCleared)
	}
}
