package avm1

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chazu/avmcore/gc"
)

func TestPropertyAttributes(t *testing.T) {
	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	obj := h.vm.NewObject()

	obj.Define("x", Number(1), ReadOnly|DontDelete)
	for i := 0; i < 3; i++ {
		if err := obj.Set(act, "x", Number(2)); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if v, _ := obj.Get(act, "x"); v.AsNumber() != 1 {
			t.Fatalf("ReadOnly property changed to %v", v)
		}
		if obj.Delete(act, "x") {
			t.Fatal("DontDelete property was deleted")
		}
	}

	obj.SetAttributes(act, nil, 0, ReadOnly|DontDelete)
	if err := obj.Set(act, "x", Number(3)); err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.Get(act, "x"); v.AsNumber() != 3 {
		t.Errorf("x = %v after clearing ReadOnly, want 3", v)
	}
	if !obj.Delete(act, "x") {
		t.Error("delete after clearing DontDelete failed")
	}
	if obj.HasOwnProperty(act, "x") {
		t.Error("x still present after delete")
	}
}

func TestCaseSensitivityByVersion(t *testing.T) {
	for _, tt := range []struct {
		version uint8
		found   bool
	}{
		{6, true},
		{7, false},
	} {
		h := newHarness(t, tt.version)
		act := h.vm.RootActivation()
		obj := h.vm.NewObject()
		obj.Define("Foo", Number(1), 0)
		if got := obj.HasProperty(act, "foo"); got != tt.found {
			t.Errorf("SWF %d: HasProperty(foo) = %v, want %v", tt.version, got, tt.found)
		}
	}
}

func TestKeysOrderAndShadowing(t *testing.T) {
	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	proto := h.vm.NewObject()
	proto.Define("inherited", Number(1), 0)
	proto.Define("shadowed", Number(1), 0)
	obj := h.vm.newObjectWithProto(ObjectValue(proto))
	obj.Define("a", Number(1), 0)
	obj.Define("shadowed", Number(2), 0)
	obj.Define("hidden", Number(3), DontEnum)
	obj.Define("b", Number(4), 0)

	keys := obj.Keys(act)
	want := []string{"inherited", "a", "shadowed", "b"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys = %v, want %v", keys, want)
		}
	}
}

func TestArrayLength(t *testing.T) {
	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	arr := h.vm.NewArray(nil)

	if err := arr.Set(act, "5", String("x")); err != nil {
		t.Fatal(err)
	}
	if n := arr.Length(act); n != 6 {
		t.Fatalf("length after arr[5] = %d, want 6", n)
	}
	if err := arr.Set(act, "0", Number(0)); err != nil {
		t.Fatal(err)
	}
	if err := arr.Set(act, "length", Number(2)); err != nil {
		t.Fatal(err)
	}
	if n := arr.Length(act); n != 2 {
		t.Fatalf("length = %d, want 2", n)
	}
	if arr.HasOwnProperty(act, "5") {
		t.Error("element 5 survived truncation")
	}
	if v, _ := arr.Element(act, 0); v.AsNumber() != 0 || v.Kind() != KindNumber {
		t.Errorf("arr[0] = %v, want 0", v)
	}
	if err := arr.Set(act, "name", String("n")); err != nil {
		t.Fatal(err)
	}
	if n := arr.Length(act); n != 2 {
		t.Errorf("non-index write changed length to %d", n)
	}
}

func TestArrayAllocatedDuringMarkingKeepsElements(t *testing.T) {
	h := newHarness(t, 8)
	heap := h.vm.Heap()
	x := h.vm.NewObject()
	w := gc.NewWeak(heap, x)

	heap.StartCycle()
	arr := h.vm.NewArray([]Value{ObjectValue(x)})
	heap.Step(1 << 20)
	remove := heap.AddRoot(gc.RootFunc(func(t *gc.Tracer) { t.Mark(arr) }))
	defer remove()
	heap.FinishCycle()

	if x.Dead() || !w.Alive() {
		t.Fatal("element of an array allocated during marking was swept")
	}
	if v, _ := arr.Element(h.vm.RootActivation(), 0); v.AsObject() != x {
		t.Errorf("arr[0] = %v", v)
	}
}

func TestWatch(t *testing.T) {
	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	obj := h.vm.NewObject()
	obj.Define("x", Number(1), 0)

	var calls [][]Value
	cb := h.vm.NewFunction("cb", func(act *Activation, this *Object, args []Value) (Value, error) {
		calls = append(calls, args)
		return Number(args[2].AsNumber() * 10), nil
	})
	if !obj.Watch(act, "x", cb, String("data")) {
		t.Fatal("Watch returned false")
	}
	if err := obj.Set(act, "x", Number(5)); err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.Get(act, "x"); v.AsNumber() != 50 {
		t.Errorf("x = %v, want 50", v)
	}
	if len(calls) != 1 {
		t.Fatalf("watcher called %d times", len(calls))
	}
	args := calls[0]
	if args[0].AsString() != "x" || args[1].AsNumber() != 1 || args[2].AsNumber() != 5 || args[3].AsString() != "data" {
		t.Errorf("watcher args = %v", args)
	}

	if !obj.Unwatch(act, "x") {
		t.Fatal("Unwatch returned false")
	}
	if err := obj.Set(act, "x", Number(7)); err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.Get(act, "x"); v.AsNumber() != 7 {
		t.Errorf("x = %v after unwatch, want 7", v)
	}
}

func TestWatcherDoesNotReenter(t *testing.T) {
	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	obj := h.vm.NewObject()
	depth := 0
	cb := h.vm.NewFunction("cb", func(act *Activation, this *Object, args []Value) (Value, error) {
		depth++
		if err := this.Set(act, "x", Number(99)); err != nil {
			return Undefined, err
		}
		return args[2], nil
	})
	obj.Watch(act, "x", cb, Undefined)
	if err := obj.Set(act, "x", Number(1)); err != nil {
		t.Fatal(err)
	}
	if depth != 1 {
		t.Errorf("watcher ran %d times, want 1", depth)
	}
	if v, _ := obj.Get(act, "x"); v.AsNumber() != 1 {
		t.Errorf("x = %v, want 1", v)
	}
}

func TestAddProperty(t *testing.T) {
	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	proto := h.vm.NewObject()
	obj := h.vm.newObjectWithProto(ObjectValue(proto))

	var stored Value
	var receiver *Object
	getter := h.vm.NewFunction("get", func(_ *Activation, this *Object, _ []Value) (Value, error) {
		receiver = this
		return Number(42), nil
	})
	setter := h.vm.NewFunction("set", func(_ *Activation, this *Object, args []Value) (Value, error) {
		stored = args[0]
		return Undefined, nil
	})
	if !proto.AddProperty(act, "v", getter, setter, 0) {
		t.Fatal("AddProperty failed")
	}
	if v, _ := obj.Get(act, "v"); v.AsNumber() != 42 {
		t.Errorf("v = %v, want 42", v)
	}
	if receiver != obj {
		t.Error("getter did not receive the original object as this")
	}
	if err := obj.Set(act, "v", String("new")); err != nil {
		t.Fatal(err)
	}
	if stored.AsString() != "new" {
		t.Errorf("setter got %v", stored)
	}
	if obj.HasOwnProperty(act, "v") {
		t.Error("assignment through inherited setter created an own property")
	}

	if proto.AddProperty(act, "w", nil, nil, 0) {
		t.Error("AddProperty without a getter should fail")
	}
}

func TestInstanceOfWithInterfaces(t *testing.T) {
	h := newHarness(t, 7)
	act := h.vm.RootActivation()

	iface := h.vm.newFunctionObject(&Function{name: "I"})
	ctor := h.vm.newFunctionObject(&Function{name: "C"})
	protoV, _ := ctor.Get(act, "prototype")
	protoV.o.SetInterfaces([]*Object{iface})
	obj, err := h.vm.Construct(ctor, nil)
	if err != nil {
		t.Fatal(err)
	}
	ifaceProto, _ := iface.Get(act, "prototype")
	ok, err := obj.IsInstanceOf(act, iface, ifaceProto.o)
	if err != nil || !ok {
		t.Errorf("instanceof interface = %v, %v", ok, err)
	}

	other := h.vm.NewObject()
	if ok, _ := other.IsInstanceOf(act, iface, ifaceProto.o); ok {
		t.Error("unrelated object matched")
	}
}

func TestPrototypeCyclesTerminate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("lookups on a prototype ring terminate", prop.ForAll(
		func(n int) bool {
			h := newHarness(t, 8)
			act := h.vm.RootActivation()
			ring := make([]*Object, n)
			for i := range ring {
				ring[i] = h.vm.NewObject()
			}
			for i := range ring {
				ring[i].SetProto(ObjectValue(ring[(i+1)%n]))
			}
			ring[n-1].Define("deep", Number(1), 0)

			v, err := ring[0].Get(act, "missing")
			if err != nil || !v.IsUndefined() {
				return false
			}
			if ring[0].HasProperty(act, "missing") {
				return false
			}
			if v, _ := ring[0].Get(act, "deep"); v.AsNumber() != 1 {
				return false
			}
			other := h.vm.NewObject()
			ok, err := ring[0].IsInstanceOf(act, other, other)
			_ = ring[0].Keys(act)
			return err == nil && !ok
		},
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}

func TestPropertyMapCompaction(t *testing.T) {
	var m propertyMap
	for i := 0; i < 100; i++ {
		m.insert(itoa(i), Number(float64(i)), 0)
	}
	for i := 0; i < 90; i++ {
		m.remove(m.get(itoa(i), true))
	}
	if m.len() != 10 {
		t.Fatalf("len = %d, want 10", m.len())
	}
	var names []string
	m.each(func(p *Property) { names = append(names, p.Name()) })
	if len(names) != 10 || names[0] != "90" || names[9] != "99" {
		t.Errorf("order after compaction = %v", names)
	}
	if p := m.get("95", true); p == nil || p.Value().AsNumber() != 95 {
		t.Error("lookup after compaction failed")
	}
}
