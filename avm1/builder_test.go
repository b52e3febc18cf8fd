package avm1

import (
	"encoding/binary"
	"math"
	"testing"
)

// asm assembles action bytecode for tests.
type asm struct {
	buf []byte
}

type reg uint8

type undef struct{}

type constant uint16

func code() *asm { return &asm{} }

func (b *asm) op(ops ...byte) *asm {
	for _, o := range ops {
		if o >= 0x80 {
			panic("op: long action without body")
		}
		b.buf = append(b.buf, o)
	}
	return b
}

func (b *asm) action(op byte, body []byte) *asm {
	b.buf = append(b.buf, op)
	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(len(body)))
	b.buf = append(b.buf, body...)
	return b
}

func (b *asm) raw(bs []byte) *asm {
	b.buf = append(b.buf, bs...)
	return b
}

func cstr(s string) []byte { return append([]byte(s), 0) }

func (b *asm) push(vals ...any) *asm {
	var body []byte
	for _, v := range vals {
		switch v := v.(type) {
		case string:
			body = append(body, pushString)
			body = append(body, cstr(v)...)
		case int:
			body = append(body, pushInt)
			body = binary.LittleEndian.AppendUint32(body, uint32(int32(v)))
		case float64:
			bits := math.Float64bits(v)
			body = append(body, pushDouble)
			body = binary.LittleEndian.AppendUint32(body, uint32(bits>>32))
			body = binary.LittleEndian.AppendUint32(body, uint32(bits))
		case bool:
			body = append(body, pushBool)
			if v {
				body = append(body, 1)
			} else {
				body = append(body, 0)
			}
		case nil:
			body = append(body, pushNull)
		case undef:
			body = append(body, pushUndefined)
		case reg:
			body = append(body, pushRegister, byte(v))
		case constant:
			if v < 256 {
				body = append(body, pushConstant8, byte(v))
			} else {
				body = append(body, pushConstant16)
				body = binary.LittleEndian.AppendUint16(body, uint16(v))
			}
		default:
			panic("push: unsupported operand")
		}
	}
	return b.action(ActionPush, body)
}

func (b *asm) pool(names ...string) *asm {
	body := binary.LittleEndian.AppendUint16(nil, uint16(len(names)))
	for _, n := range names {
		body = append(body, cstr(n)...)
	}
	return b.action(ActionConstantPool, body)
}

func (b *asm) store(r uint8) *asm { return b.action(ActionStoreRegister, []byte{r}) }

func (b *asm) jump(off int) *asm {
	return b.action(ActionJump, binary.LittleEndian.AppendUint16(nil, uint16(int16(off))))
}

func (b *asm) ifTrue(off int) *asm {
	return b.action(ActionIf, binary.LittleEndian.AppendUint16(nil, uint16(int16(off))))
}

// setVar emits name = value for a pushed name and value.
func (b *asm) setVar(name string, v any) *asm {
	return b.push(name, v).op(ActionSetVariable)
}

func (b *asm) getVar(name string) *asm {
	return b.push(name).op(ActionGetVariable)
}

func (b *asm) trace() *asm { return b.op(ActionTrace) }

// function emits DefineFunction followed by its body.
func (b *asm) function(name string, params []string, body *asm) *asm {
	head := cstr(name)
	head = binary.LittleEndian.AppendUint16(head, uint16(len(params)))
	for _, p := range params {
		head = append(head, cstr(p)...)
	}
	head = binary.LittleEndian.AppendUint16(head, uint16(len(body.buf)))
	return b.action(ActionDefineFunction, head).raw(body.buf)
}

// function2 emits DefineFunction2 followed by its body.
func (b *asm) function2(name string, regs uint8, flags FunctionFlags, params []Param, body *asm) *asm {
	head := cstr(name)
	head = binary.LittleEndian.AppendUint16(head, uint16(len(params)))
	head = append(head, regs)
	head = binary.LittleEndian.AppendUint16(head, uint16(flags))
	for _, p := range params {
		head = append(head, p.Register)
		head = append(head, cstr(p.Name)...)
	}
	head = binary.LittleEndian.AppendUint16(head, uint16(len(body.buf)))
	return b.action(ActionDefineFunction2, head).raw(body.buf)
}

// with emits a With block over the object on the stack.
func (b *asm) with(body *asm) *asm {
	return b.action(ActionWith, binary.LittleEndian.AppendUint16(nil, uint16(len(body.buf)))).raw(body.buf)
}

// try emits a Try action. A nil catch or finally block is omitted; the
// catch binds catchName, or register catchReg when catchName is empty.
func (b *asm) try(catchName string, catchReg uint8, tryBody, catchBody, finallyBody *asm) *asm {
	var flags byte
	sizes := [3]int{len(tryBody.buf), 0, 0}
	if catchBody != nil {
		flags |= tryHasCatch
		sizes[1] = len(catchBody.buf)
	}
	if finallyBody != nil {
		flags |= tryHasFinally
		sizes[2] = len(finallyBody.buf)
	}
	if catchName == "" {
		flags |= tryCatchRegister
	}
	head := []byte{flags}
	for _, s := range sizes {
		head = binary.LittleEndian.AppendUint16(head, uint16(s))
	}
	if catchName == "" {
		head = append(head, catchReg)
	} else {
		head = append(head, cstr(catchName)...)
	}
	b.action(ActionTry, head).raw(tryBody.buf)
	if catchBody != nil {
		b.raw(catchBody.buf)
	}
	if finallyBody != nil {
		b.raw(finallyBody.buf)
	}
	return b
}

func (b *asm) bytes() []byte { return b.buf }

func (b *asm) len() int { return len(b.buf) }

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	t      *testing.T
	vm     *VM
	traces []string
}

func newHarness(t *testing.T, version uint8) *harness {
	return newHarnessWith(t, Options{Version: version})
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
	return h
}

// run executes code on _root and fails the test on a Go error.
func (h *harness) run(b *asm) Outcome {
	h.t.Helper()
	out, err := h.vm.RunActions(b.bytes(), nil)
	if err != nil {
		h.t.Fatalf("RunActions: %v", err)
	}
	return out
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

// eval runs code that leaves one value on the stack and returns it by way
// of the variable "result".
func (h *harness) eval(b *asm) Value {
	h.t.Helper()
	prog := code().push("result").raw(b.bytes()).op(ActionSetVariable)
	h.run(prog)
	v, err := h.vm.GetVariable("result")
	if err != nil {
		h.t.Fatalf("GetVariable(result): %v", err)
	}
	return v
}
