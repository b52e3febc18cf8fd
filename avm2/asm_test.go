package avm2

import (
	"testing"
)

// asm assembles method bodies for tests. Branches and exception ranges
// refer to labels resolved when the body is built.
type asm struct {
	abc    *ABC
	buf    []byte
	labels map[string]int
	fixups []fixup
	excs   []excSpec
}

type fixup struct {
	at, base int
	label    string
}

type excSpec struct {
	from, to, target string
	typ              string
	varName          string
}

func newAsm(abc *ABC) *asm {
	return &asm{abc: abc, labels: make(map[string]int)}
}

func (b *asm) u30(v int) {
	u := uint32(v)
	for {
		c := byte(u & 0x7f)
		u >>= 7
		if u != 0 {
			b.buf = append(b.buf, c|0x80)
			continue
		}
		b.buf = append(b.buf, c)
		return
	}
}

func (b *asm) s24(v int) {
	b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16))
}

func (b *asm) op(ops ...byte) *asm {
	b.buf = append(b.buf, ops...)
	return b
}

// ins emits op followed by u30 operands.
func (b *asm) ins(op byte, operands ...int) *asm {
	b.buf = append(b.buf, op)
	for _, v := range operands {
		b.u30(v)
	}
	return b
}

func (b *asm) raw(bs ...byte) *asm {
	b.buf = append(b.buf, bs...)
	return b
}

func (b *asm) name(local string) int { return b.abc.PublicName(local) }

func (b *asm) pushByte(v int8) *asm { return b.raw(OpPushByte, byte(v)) }
func (b *asm) pushString(s string) *asm {
	return b.ins(OpPushString, b.abc.AddString(s))
}
func (b *asm) pushInt(v int32) *asm      { return b.ins(OpPushInt, b.abc.AddInt(v)) }
func (b *asm) pushDouble(f float64) *asm { return b.ins(OpPushDouble, b.abc.AddDouble(f)) }

func (b *asm) getLex(local string) *asm     { return b.ins(OpGetLex, b.name(local)) }
func (b *asm) findStrict(local string) *asm { return b.ins(OpFindPropStrict, b.name(local)) }
func (b *asm) getProp(local string) *asm    { return b.ins(OpGetProperty, b.name(local)) }
func (b *asm) setProp(local string) *asm    { return b.ins(OpSetProperty, b.name(local)) }
func (b *asm) initProp(local string) *asm   { return b.ins(OpInitProperty, b.name(local)) }

func (b *asm) callProp(local string, argc int) *asm {
	return b.ins(OpCallProperty, b.name(local), argc)
}

func (b *asm) callPropVoid(local string, argc int) *asm {
	return b.ins(OpCallPropVoid, b.name(local), argc)
}

func (b *asm) constructProp(local string, argc int) *asm {
	return b.ins(OpConstructProp, b.name(local), argc)
}

// trace emits trace(<top of stack>).
func (b *asm) trace() *asm {
	b.findStrict("trace").op(OpSwap)
	return b.callPropVoid("trace", 1)
}

func (b *asm) traceString(s string) *asm {
	return b.findStrict("trace").pushString(s).callPropVoid("trace", 1)
}

func (b *asm) label(name string) *asm {
	b.labels[name] = len(b.buf)
	return b
}

// branch emits a branch whose s24 offset is relative to the end of the
// instruction.
func (b *asm) branch(op byte, label string) *asm {
	b.buf = append(b.buf, op)
	b.fixups = append(b.fixups, fixup{at: len(b.buf), base: len(b.buf) + 3, label: label})
	b.s24(0)
	return b
}

// lookupSwitch emits a switch whose offsets are relative to the start of
// the instruction.
func (b *asm) lookupSwitch(def string, cases ...string) *asm {
	start := len(b.buf)
	b.buf = append(b.buf, OpLookupSwitch)
	target := func(label string) {
		b.fixups = append(b.fixups, fixup{at: len(b.buf), base: start, label: label})
		b.s24(0)
	}
	target(def)
	b.u30(len(cases) - 1)
	for _, c := range cases {
		target(c)
	}
	return b
}

// lateName adds a public multiname whose local name is popped at run time.
func (b *asm) lateName() int {
	return b.abc.AddMultiname(&Multiname{Kind: MNMultinameL, NS: NamespaceSet{b.abc.Public()}, index: -1})
}

// catch registers an exception handler over [from, to). An empty typ
// catches everything.
func (b *asm) catch(from, to, target, typ string) *asm {
	b.excs = append(b.excs, excSpec{from: from, to: to, target: target, typ: typ})
	return b
}

func (b *asm) catchVar(from, to, target, typ, varName string) *asm {
	b.excs = append(b.excs, excSpec{from: from, to: to, target: target, typ: typ, varName: varName})
	return b
}

func (b *asm) pos(label string) int {
	p, ok := b.labels[label]
	if !ok {
		panic("asm: undefined label " + label)
	}
	return p
}

func (b *asm) bytes() []byte {
	out := append([]byte(nil), b.buf...)
	for _, f := range b.fixups {
		off := b.pos(f.label) - f.base
		out[f.at], out[f.at+1], out[f.at+2] = byte(off), byte(off>>8), byte(off>>16)
	}
	return out
}

func (b *asm) body(locals int) *MethodBody {
	body := &MethodBody{MaxStack: 16, NumLocals: locals, MaxScopeDepth: 8, Code: b.bytes()}
	for _, e := range b.excs {
		ex := Exception{From: b.pos(e.from), To: b.pos(e.to), Target: b.pos(e.target)}
		if e.typ != "" {
			ex.Type = b.abc.Multinames[b.name(e.typ)]
		}
		if e.varName != "" {
			ex.VarName = b.abc.Multinames[b.name(e.varName)]
		}
		body.Exceptions = append(body.Exceptions, ex)
	}
	return body
}

// method builds an untyped method with params parameters and registers it
// in the pool.
func (b *asm) method(name string, params int) *Method {
	m := &Method{Name: name, Params: make([]Param, params), Body: b.body(params + 4)}
	b.abc.AddMethod(m)
	return m
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	t      *testing.T
	vm     *VM
	abc    *ABC
	traces []string
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, Options{})
}

func newHarnessWith(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{t: t}
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	opts.TraceHook = func(s string) { h.traces = append(h.traces, s) }
	h.vm = New(opts)
	t.Cleanup(h.vm.Close)
	h.abc = h.vm.NewABC()
	return h
}

func (h *harness) code() *asm { return newAsm(h.abc) }

// exec runs b as a script function and returns its result.
func (h *harness) exec(b *asm) (Value, error) {
	return h.vm.CallFunction(b.method("test", 0), nil)
}

// eval runs b, failing the test on any error.
func (h *harness) eval(b *asm) Value {
	h.t.Helper()
	v, err := h.exec(b)
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	return v
}

func (h *harness) call(recv Value, name string, args ...Value) Value {
	h.t.Helper()
	v, err := h.vm.CallMethod(recv, name, args)
	if err != nil {
		h.t.Fatalf("%s: %v", name, err)
	}
	return v
}

func (h *harness) expectTraces(want ...string) {
	h.t.Helper()
	if len(h.traces) != len(want) {
		h.t.Fatalf("traces = %q, want %q", h.traces, want)
	}
	for i := range want {
		if h.traces[i] != want[i] {
			h.t.Fatalf("traces = %q, want %q", h.traces, want)
		}
	}
}

// thrown returns the value carried by a script exception, failing the
// test for any other error.
func thrown(t *testing.T, err error) Value {
	t.Helper()
	te, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("err = %v (%T), want a script exception", err, err)
	}
	return te.Value
}

// errorCode returns the errorID of a thrown built-in error.
func errorCode(t *testing.T, err error) (string, int) {
	t.Helper()
	v := thrown(t, err)
	if v.o == nil || !v.o.IsError() {
		t.Fatalf("thrown %v, want an Error", v)
	}
	return v.o.class.Name.LocalName(), int(v.o.slotNamed("errorID").n)
}
