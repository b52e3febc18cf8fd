package avm1

import (
	"math"
	"testing"

	"github.com/chazu/avmcore/backend"
)

// call invokes a method by name and fails the test on error.
func (h *harness) call(recv Value, name string, args ...Value) Value {
	h.t.Helper()
	act := h.vm.RootActivation()
	v, err := act.ToObject(recv).CallMethod(act, name, args)
	if err != nil {
		h.t.Fatalf("%s: %v", name, err)
	}
	return v
}

func (h *harness) str(v Value) string {
	h.t.Helper()
	s, err := h.vm.RootActivation().ToString(v)
	if err != nil {
		h.t.Fatal(err)
	}
	return s
}

func (h *harness) global(name string) Value {
	h.t.Helper()
	v, err := h.vm.Global().Get(h.vm.RootActivation(), name)
	if err != nil {
		h.t.Fatal(err)
	}
	return v
}

func numbers(ns ...float64) []Value {
	vs := make([]Value, len(ns))
	for i, n := range ns {
		vs[i] = Number(n)
	}
	return vs
}

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

func TestArrayMethods(t *testing.T) {
	h := newHarness(t, 8)
	arr := ObjectValue(h.vm.NewArray(numbers(3, 1, 2)))

	if n := h.call(arr, "push", Number(4)); n.AsNumber() != 4 {
		t.Errorf("push returned %v", n)
	}
	if v := h.call(arr, "pop"); v.AsNumber() != 4 {
		t.Errorf("pop returned %v", v)
	}
	h.call(arr, "sort")
	if s := h.str(arr); s != "1,2,3" {
		t.Errorf("sorted = %q", s)
	}
	h.call(arr, "reverse")
	if s := h.str(h.call(arr, "join", String("-"))); s != "3-2-1" {
		t.Errorf("join = %q", s)
	}
	if s := h.str(h.call(arr, "slice", Number(-2))); s != "2,1" {
		t.Errorf("slice(-2) = %q", s)
	}
	removed := h.call(arr, "splice", Number(1), Number(1), String("x"), String("y"))
	if s := h.str(removed); s != "2" {
		t.Errorf("splice removed %q", s)
	}
	if s := h.str(arr); s != "3,x,y,1" {
		t.Errorf("after splice = %q", s)
	}
	if v := h.call(arr, "shift"); v.AsNumber() != 3 {
		t.Errorf("shift = %v", v)
	}
	if n := h.call(arr, "unshift", Number(0)); n.AsNumber() != 4 {
		t.Errorf("unshift = %v", n)
	}
	joined := h.call(arr, "concat", ObjectValue(h.vm.NewArray(numbers(9))), Number(8))
	if s := h.str(joined); s != "0,x,y,1,9,8" {
		t.Errorf("concat = %q", s)
	}
	if s := h.str(arr); s != "0,x,y,1" {
		t.Errorf("concat modified the receiver: %q", s)
	}
}

func TestArraySort(t *testing.T) {
	h := newHarness(t, 8)
	arr := ObjectValue(h.vm.NewArray(numbers(10, 9, 1)))
	h.call(arr, "sort")
	if s := h.str(arr); s != "1,10,9" {
		t.Errorf("string sort = %q", s)
	}
	h.call(arr, "sort", Number(sortNumeric))
	if s := h.str(arr); s != "1,9,10" {
		t.Errorf("numeric sort = %q", s)
	}
	h.call(arr, "sort", Number(sortNumeric|sortDescending))
	if s := h.str(arr); s != "10,9,1" {
		t.Errorf("descending sort = %q", s)
	}

	cmp := h.vm.NewFunction("cmp", func(act *Activation, _ *Object, args []Value) (Value, error) {
		return Number(args[0].AsNumber() - args[1].AsNumber()), nil
	})
	h.call(arr, "sort", ObjectValue(cmp))
	if s := h.str(arr); s != "1,9,10" {
		t.Errorf("comparator sort = %q", s)
	}

	words := ObjectValue(h.vm.NewArray([]Value{String("b"), String("a"), String("C")}))
	h.call(words, "sort")
	if s := h.str(words); s != "C,a,b" {
		t.Errorf("default sort = %q", s)
	}
	h.call(words, "sort", Number(sortCaseInsensitive))
	if s := h.str(words); s != "a,b,C" {
		t.Errorf("case-insensitive sort = %q", s)
	}

	indexed := h.call(words, "sort", Number(sortReturnIndexedArray|sortDescending))
	if s := h.str(indexed); s != "1,0,2" {
		t.Errorf("indexed sort = %q", s)
	}
}

func TestArrayConstructor(t *testing.T) {
	h := newHarness(t, 8)
	ctor := h.global("Array").AsObject()

	arr, err := h.vm.Construct(ctor, []Value{Number(3)})
	if err != nil {
		t.Fatal(err)
	}
	act := h.vm.RootActivation()
	if !arr.IsArray() || arr.Length(act) != 3 {
		t.Errorf("new Array(3): array=%v length=%d", arr.IsArray(), arr.Length(act))
	}
	arr, _ = h.vm.Construct(ctor, numbers(1, 2))
	if s := h.str(ObjectValue(arr)); s != "1,2" {
		t.Errorf("new Array(1, 2) = %q", s)
	}
	v, err := h.vm.Call(ctor, Undefined, []Value{String("a")})
	if err != nil || v.AsObject() == nil || !v.AsObject().IsArray() {
		t.Errorf("Array(\"a\") = %v, %v", v, err)
	}
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

func TestStringMethods(t *testing.T) {
	h := newHarness(t, 8)
	s := String("Hello")
	tests := []struct {
		method string
		args   []Value
		want   Value
	}{
		{"charAt", numbers(1), String("e")},
		{"charAt", numbers(10), String("")},
		{"charCodeAt", numbers(0), Number(72)},
		{"indexOf", []Value{String("l")}, Number(2)},
		{"indexOf", []Value{String("l"), Number(3)}, Number(3)},
		{"indexOf", []Value{String("z")}, Number(-1)},
		{"lastIndexOf", []Value{String("l")}, Number(3)},
		{"lastIndexOf", []Value{String("l"), Number(2)}, Number(2)},
		{"slice", numbers(-3), String("llo")},
		{"slice", numbers(1, -1), String("ell")},
		{"substr", numbers(1, 3), String("ell")},
		{"substr", numbers(-2), String("lo")},
		{"substring", numbers(3, 1), String("el")},
		{"toUpperCase", nil, String("HELLO")},
		{"toLowerCase", nil, String("hello")},
		{"concat", []Value{String(" "), Number(1)}, String("Hello 1")},
		{"toString", nil, String("Hello")},
	}
	for _, tt := range tests {
		got := h.call(s, tt.method, tt.args...)
		if !StrictEquals(got, tt.want) {
			t.Errorf("%s(%v) = %v, want %v", tt.method, tt.args, got, tt.want)
		}
	}
	if n := h.call(String("ñu"), "charCodeAt", Number(0)); n.AsNumber() != 0xf1 {
		t.Errorf("charCodeAt counts characters: got %v", n)
	}
}

func TestStringSplit(t *testing.T) {
	h := newHarness(t, 8)
	if s := h.str(h.call(String("a,b,c"), "split", String(","))); s != "a,b,c" {
		t.Errorf("split = %q", s)
	}
	parts := h.call(String("a,b,c"), "split", String(","), Number(2)).AsObject()
	if n := parts.Length(h.vm.RootActivation()); n != 2 {
		t.Errorf("split limit length = %d", n)
	}
	chars := h.call(String("abc"), "split", String("")).AsObject()
	if n := chars.Length(h.vm.RootActivation()); n != 3 {
		t.Errorf("split(\"\") length = %d", n)
	}
	whole := h.call(String("abc"), "split").AsObject()
	if n := whole.Length(h.vm.RootActivation()); n != 1 {
		t.Errorf("split() length = %d", n)
	}
}

func TestStringStatics(t *testing.T) {
	h := newHarness(t, 8)
	if s := h.call(h.global("String"), "fromCharCode", Number(72), Number(105)); s.AsString() != "Hi" {
		t.Errorf("fromCharCode = %v", s)
	}
	boxed, err := h.vm.Construct(h.global("String").AsObject(), []Value{String("abc")})
	if err != nil {
		t.Fatal(err)
	}
	if l, _ := boxed.Get(h.vm.RootActivation(), "length"); l.AsNumber() != 3 {
		t.Errorf("new String(\"abc\").length = %v", l)
	}
	if s := h.str(ObjectValue(boxed)); s != "abc" {
		t.Errorf("new String(\"abc\") = %q", s)
	}
}

// ---------------------------------------------------------------------------
// Number, Boolean, Math
// ---------------------------------------------------------------------------

func TestNumberAndBoolean(t *testing.T) {
	h := newHarness(t, 8)
	if s := h.call(Number(255), "toString", Number(16)); s.AsString() != "ff" {
		t.Errorf("(255).toString(16) = %v", s)
	}
	if s := h.call(Number(0.5), "toString"); s.AsString() != "0.5" {
		t.Errorf("(0.5).toString() = %v", s)
	}
	v, err := h.vm.Call(h.global("Number").AsObject(), Undefined, []Value{String("12")})
	if err != nil || v.AsNumber() != 12 {
		t.Errorf("Number(\"12\") = %v, %v", v, err)
	}
	numberCtor := h.global("Number").AsObject()
	if max, _ := numberCtor.Get(h.vm.RootActivation(), "MAX_VALUE"); max.AsNumber() != math.MaxFloat64 {
		t.Errorf("Number.MAX_VALUE = %v", max)
	}
	if s := h.call(Bool(true), "toString"); s.AsString() != "true" {
		t.Errorf("true.toString() = %v", s)
	}
	v, _ = h.vm.Call(h.global("Boolean").AsObject(), Undefined, []Value{String("x")})
	if !v.AsBool() || v.Kind() != KindBool {
		t.Errorf("Boolean(\"x\") = %v", v)
	}
}

func TestMath(t *testing.T) {
	h := newHarness(t, 8)
	m := h.global("Math")
	tests := []struct {
		method string
		args   []Value
		want   float64
	}{
		{"round", numbers(-2.5), -2},
		{"round", numbers(2.5), 3},
		{"floor", numbers(-1.5), -2},
		{"abs", numbers(-3), 3},
		{"pow", numbers(2, 10), 1024},
		{"max", numbers(1, 5), 5},
		{"max", nil, math.Inf(-1)},
		{"min", nil, math.Inf(1)},
		{"sqrt", numbers(16), 4},
	}
	for _, tt := range tests {
		if got := h.call(m, tt.method, tt.args...); got.AsNumber() != tt.want {
			t.Errorf("Math.%s(%v) = %v, want %v", tt.method, tt.args, got, tt.want)
		}
	}
	if got := h.call(m, "max", Number(1), Number(math.NaN())); !math.IsNaN(got.AsNumber()) {
		t.Errorf("Math.max(1, NaN) = %v", got)
	}
	for i := 0; i < 20; i++ {
		if r := h.call(m, "random").AsNumber(); r < 0 || r >= 1 {
			t.Fatalf("Math.random() = %v", r)
		}
	}
	pi, _ := m.AsObject().Get(h.vm.RootActivation(), "PI")
	if pi.AsNumber() != math.Pi {
		t.Errorf("Math.PI = %v", pi)
	}
}

// ---------------------------------------------------------------------------
// Global functions
// ---------------------------------------------------------------------------

func TestGlobalFunctions(t *testing.T) {
	h := newHarness(t, 8)
	g := ObjectValue(h.vm.Global())
	tests := []struct {
		fn   string
		args []Value
		want float64
	}{
		{"parseInt", []Value{String("0x1F")}, 31},
		{"parseInt", []Value{String("017")}, 15},
		{"parseInt", []Value{String("019")}, 19},
		{"parseInt", []Value{String("12px")}, 12},
		{"parseInt", []Value{String("z"), Number(36)}, 35},
		{"parseInt", []Value{String("ff"), Number(16)}, 255},
		{"parseFloat", []Value{String("3.5abc")}, 3.5},
		{"parseFloat", []Value{String("  -2e2")}, -200},
	}
	for _, tt := range tests {
		if got := h.call(g, tt.fn, tt.args...); got.AsNumber() != tt.want {
			t.Errorf("%s(%v) = %v, want %v", tt.fn, tt.args, got, tt.want)
		}
	}
	if got := h.call(g, "parseInt", String("1"), Number(40)); !math.IsNaN(got.AsNumber()) {
		t.Errorf("parseInt with radix 40 = %v", got)
	}
	if got := h.call(g, "isNaN", String("abc")); !got.AsBool() {
		t.Error("isNaN(\"abc\") is false")
	}
	if got := h.call(g, "isFinite", Number(math.Inf(1))); got.AsBool() {
		t.Error("isFinite(Infinity) is true")
	}
}

func TestEscape(t *testing.T) {
	h := newHarness(t, 8)
	g := ObjectValue(h.vm.Global())
	if got := h.call(g, "escape", String("a b&c")); got.AsString() != "a%20b%26c" {
		t.Errorf("escape = %v", got)
	}
	if got := h.call(g, "escape", String("é")); got.AsString() != "%C3%A9" {
		t.Errorf("escape(é) = %v", got)
	}
	if got := h.call(g, "unescape", String("%E4%BD%A0%zz")); got.AsString() != "你%zz" {
		t.Errorf("unescape = %v", got)
	}
	for _, s := range []string{"", "plain", "100% sure?", "日本"} {
		esc := h.call(g, "escape", String(s))
		if back := h.call(g, "unescape", esc); back.AsString() != s {
			t.Errorf("unescape(escape(%q)) = %q", s, back.AsString())
		}
	}
}

func TestASSetPropFlags(t *testing.T) {
	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	obj := h.vm.NewObject()
	obj.Define("a", Number(1), 0)
	obj.Define("b", Number(2), 0)
	obj.Define("c", Number(3), 0)
	g := ObjectValue(h.vm.Global())

	h.call(g, "ASSetPropFlags", ObjectValue(obj), String("a,b"), Number(1))
	if keys := obj.Keys(act); len(keys) != 1 || keys[0] != "c" {
		t.Errorf("keys after hiding a,b = %v", keys)
	}
	h.call(g, "ASSetPropFlags", ObjectValue(obj), String("a,b"), Number(0), Number(1))
	if keys := obj.Keys(act); len(keys) != 3 {
		t.Errorf("keys after unhiding a,b = %v", keys)
	}
	h.call(g, "ASSetPropFlags", ObjectValue(obj), Null, Number(4))
	if err := obj.Set(act, "c", Number(30)); err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.Get(act, "c"); v.AsNumber() != 3 {
		t.Errorf("c = %v, want read-only 3", v)
	}
	names := ObjectValue(h.vm.NewArray([]Value{String("c")}))
	h.call(g, "ASSetPropFlags", ObjectValue(obj), names, Number(0), Number(4))
	obj.Set(act, "c", Number(30))
	if v, _ := obj.Get(act, "c"); v.AsNumber() != 30 {
		t.Errorf("c = %v after clearing read-only", v)
	}
}

// ---------------------------------------------------------------------------
// Object, Function, Error
// ---------------------------------------------------------------------------

func TestObjectPrototypeMethods(t *testing.T) {
	h := newHarness(t, 8)
	proto := h.vm.NewObject()
	obj := h.vm.newObjectWithProto(ObjectValue(proto))
	obj.Define("own", Number(1), 0)
	obj.Define("hidden", Number(1), DontEnum)
	ov := ObjectValue(obj)

	if !h.call(ov, "hasOwnProperty", String("own")).AsBool() {
		t.Error("hasOwnProperty(own) is false")
	}
	if h.call(ov, "hasOwnProperty", String("toString")).AsBool() {
		t.Error("hasOwnProperty(toString) is true")
	}
	if h.call(ov, "isPropertyEnumerable", String("hidden")).AsBool() {
		t.Error("hidden property is enumerable")
	}
	if !h.call(ObjectValue(proto), "isPrototypeOf", ov).AsBool() {
		t.Error("isPrototypeOf is false")
	}
	if s := h.call(ov, "toString"); s.AsString() != "[object Object]" {
		t.Errorf("toString = %v", s)
	}
	if v := h.call(ov, "valueOf"); v.AsObject() != obj {
		t.Error("valueOf did not return the object")
	}
}

func TestFunctionCallAndApply(t *testing.T) {
	h := newHarness(t, 8)
	act := h.vm.RootActivation()
	fn := h.vm.NewFunction("f", func(act *Activation, this *Object, args []Value) (Value, error) {
		base, _ := this.Get(act, "base")
		sum := base.AsNumber()
		for _, a := range args {
			sum += a.AsNumber()
		}
		return Number(sum), nil
	})
	recv := h.vm.NewObject()
	recv.Define("base", Number(100), 0)

	if v := h.call(ObjectValue(fn), "call", ObjectValue(recv), Number(1), Number(2)); v.AsNumber() != 103 {
		t.Errorf("call = %v", v)
	}
	args := h.vm.NewArray(numbers(5, 6))
	if v := h.call(ObjectValue(fn), "apply", ObjectValue(recv), ObjectValue(args)); v.AsNumber() != 111 {
		t.Errorf("apply = %v", v)
	}
	h.vm.Global().Define("base", Number(1000), 0)
	if v := h.call(ObjectValue(fn), "call", Null); v.AsNumber() != 1000 {
		t.Errorf("call(null) did not use _global: %v", v)
	}
	_ = act
}

func TestErrorObjects(t *testing.T) {
	h := newHarness(t, 8)
	ctor := h.global("Error").AsObject()
	e, err := h.vm.Construct(ctor, []Value{String("bad")})
	if err != nil {
		t.Fatal(err)
	}
	if s := h.str(ObjectValue(e)); s != "bad" {
		t.Errorf("error toString = %q", s)
	}
	plain, _ := h.vm.Construct(ctor, nil)
	if s := h.str(ObjectValue(plain)); s != "Error" {
		t.Errorf("default message = %q", s)
	}
	called, err := h.vm.Call(ctor, Undefined, []Value{String("x")})
	if err != nil || called.AsObject() == nil || called.AsObject().Class() != "Error" {
		t.Errorf("Error(\"x\") = %v, %v", called, err)
	}

	te := &ThrownError{Value: ObjectValue(h.vm.NewError("oops"))}
	if te.Error() == "" {
		t.Error("empty ThrownError message")
	}
}

// ---------------------------------------------------------------------------
// SharedObject
// ---------------------------------------------------------------------------

func TestSharedObjectPersistence(t *testing.T) {
	storage := backend.NewMemoryStorage()
	opts := Options{Version: 8, Backends: backend.Backends{Storage: storage}}

	h := newHarnessWith(t, opts)
	act := h.vm.RootActivation()
	so := h.call(h.global("SharedObject"), "getLocal", String("save"))
	if so.AsObject() == nil {
		t.Fatal("getLocal returned no object")
	}
	if again := h.call(h.global("SharedObject"), "getLocal", String("save")); again.AsObject() != so.AsObject() {
		t.Error("getLocal did not cache the object")
	}
	dataV, _ := so.AsObject().Get(act, "data")
	data := dataV.AsObject()
	data.Set(act, "score", Number(10))
	data.Set(act, "name", String("ann"))
	data.Set(act, "list", ObjectValue(h.vm.NewArray(numbers(1, 2))))
	data.Set(act, "self", dataV)
	data.Set(act, "fn", ObjectValue(h.vm.NewFunction("f", nil)))
	if ok := h.call(so, "flush"); !ok.AsBool() {
		t.Fatal("flush failed")
	}

	h2 := newHarnessWith(t, opts)
	act2 := h2.vm.RootActivation()
	so2 := h2.call(h2.global("SharedObject"), "getLocal", String("save"))
	data2V, _ := so2.AsObject().Get(act2, "data")
	data2 := data2V.AsObject()
	if v, _ := data2.Get(act2, "score"); v.AsNumber() != 10 {
		t.Errorf("score = %v", v)
	}
	if v, _ := data2.Get(act2, "name"); v.AsString() != "ann" {
		t.Errorf("name = %v", v)
	}
	if v, _ := data2.Get(act2, "list"); h2.str(v) != "1,2" {
		t.Errorf("list = %v", v)
	}
	if data2.HasOwnProperty(act2, "fn") {
		t.Error("functions should not persist")
	}
	if v, _ := data2.Get(act2, "self"); !v.IsUndefined() {
		t.Errorf("cyclic reference stored as %v", v)
	}

	h2.call(so2, "clear")
	if _, err := storage.Get("save"); err == nil {
		t.Error("clear left the data in storage")
	}
}

// ---------------------------------------------------------------------------
// XMLSocket
// ---------------------------------------------------------------------------

type fakeSocket struct {
	id     string
	sent   []string
	closed bool
}

func (s *fakeSocket) ID() string { return s.id }
func (s *fakeSocket) Send(b []byte) error {
	s.sent = append(s.sent, string(b))
	return nil
}
func (s *fakeSocket) Close() error {
	s.closed = true
	return nil
}

type fakeNavigator struct {
	backend.NullNavigator
	sock *fakeSocket
	host string
	port int
}

func (n *fakeNavigator) ConnectSocket(host string, port int, _ backend.SocketSink) (backend.Socket, error) {
	n.host, n.port = host, port
	return n.sock, nil
}

type nopSink struct{}

func (nopSink) SocketConnected(string, bool) {}
func (nopSink) SocketData(string, []byte)    {}
func (nopSink) SocketClosed(string)          {}

func TestXMLSocket(t *testing.T) {
	nav := &fakeNavigator{sock: &fakeSocket{id: "s1"}}
	h := newHarnessWith(t, Options{
		Version:  8,
		Backends: backend.Backends{Navigator: nav},
		Sockets:  nopSink{},
	})
	act := h.vm.RootActivation()
	sock, err := h.vm.Construct(h.global("XMLSocket").AsObject(), nil)
	if err != nil {
		t.Fatal(err)
	}

	var events []string
	sock.DefineMethod("onConnect", func(_ *Activation, _ *Object, args []Value) (Value, error) {
		events = append(events, "connect:"+h.str(args[0]))
		return Undefined, nil
	}, h.vm.protos.function)
	sock.DefineMethod("onData", func(_ *Activation, _ *Object, args []Value) (Value, error) {
		events = append(events, "data:"+args[0].AsString())
		return Undefined, nil
	}, h.vm.protos.function)
	sock.DefineMethod("onClose", func(*Activation, *Object, []Value) (Value, error) {
		events = append(events, "close")
		return Undefined, nil
	}, h.vm.protos.function)

	if ok := h.call(ObjectValue(sock), "connect", Null, Number(9000)); !ok.AsBool() {
		t.Fatal("connect returned false")
	}
	if nav.host != "localhost" || nav.port != 9000 {
		t.Errorf("connected to %s:%d", nav.host, nav.port)
	}
	h.call(ObjectValue(sock), "send", String("<hello/>"))
	if len(nav.sock.sent) != 1 || nav.sock.sent[0] != "<hello/>" {
		t.Errorf("sent = %q", nav.sock.sent)
	}

	if err := h.vm.DeliverSocketConnected("s1", true); err != nil {
		t.Fatal(err)
	}
	if err := h.vm.DeliverSocketData("s1", []byte("<msg/>")); err != nil {
		t.Fatal(err)
	}
	if err := h.vm.DeliverSocketClosed("s1"); err != nil {
		t.Fatal(err)
	}
	if err := h.vm.DeliverSocketData("s1", []byte("late")); err != nil {
		t.Fatal(err)
	}
	want := []string{"connect:true", "data:<msg/>", "close"}
	if len(events) != len(want) {
		t.Fatalf("events = %q, want %q", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %q, want %q", events, want)
		}
	}
	_ = act
}

func TestXMLSocketWithoutNetwork(t *testing.T) {
	h := newHarnessWith(t, Options{Version: 8, Sockets: nopSink{}})
	sock, err := h.vm.Construct(h.global("XMLSocket").AsObject(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok := h.call(ObjectValue(sock), "connect", String("example.com"), Number(1)); ok.AsBool() {
		t.Error("connect succeeded with the null navigator")
	}
}
