package avm2

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/chazu/avmcore/limits"
)

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func TestOperators(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *asm)
		want  Value
	}{
		{"add ints", func(b *asm) { b.pushByte(2).pushByte(3).op(OpAdd) }, Int(5)},
		{"add string", func(b *asm) { b.pushString("a").pushByte(1).op(OpAdd) }, String("a1")},
		{"subtract", func(b *asm) { b.pushByte(10).pushByte(3).op(OpSubtract) }, Int(7)},
		{"divide", func(b *asm) { b.pushByte(1).pushByte(4).op(OpDivide) }, Number(0.25)},
		{"modulo", func(b *asm) { b.pushByte(7).pushByte(3).op(OpModulo) }, Int(1)},
		{"add_i wraps", func(b *asm) { b.pushInt(math.MaxInt32).pushByte(1).op(OpAddI) }, Int(math.MinInt32)},
		{"urshift", func(b *asm) { b.pushByte(-1).pushByte(28).op(OpURShift) }, Uint(15)},
		{"lshift wraps", func(b *asm) { b.pushByte(1).pushByte(31).op(OpLShift) }, Int(math.MinInt32)},
		{"bitnot", func(b *asm) { b.pushByte(0).op(OpBitNot) }, Int(-1)},
		{"negate_i", func(b *asm) { b.pushByte(5).op(OpNegateI) }, Int(-5)},
		{"pushshort", func(b *asm) { b.ins(OpPushShort, 1000) }, Int(1000)},
		{"pushdouble", func(b *asm) { b.pushDouble(1.5) }, Number(1.5)},
		{"typeof number", func(b *asm) { b.pushByte(1).op(OpTypeOf) }, String("number")},
		{"loose equals", func(b *asm) { b.pushByte(1).pushString("1").op(OpEquals) }, Bool(true)},
		{"strict equals", func(b *asm) { b.pushByte(1).pushString("1").op(OpStrictEquals) }, Bool(false)},
		{"null equals undefined", func(b *asm) { b.op(OpPushNull, OpPushUndefined, OpEquals) }, Bool(true)},
		{"string less", func(b *asm) { b.pushString("a").pushString("b").op(OpLessThan) }, Bool(true)},
		{"NaN less", func(b *asm) { b.op(OpPushNaN).pushByte(1).op(OpLessThan) }, Bool(false)},
		{"NaN greater equals", func(b *asm) { b.op(OpPushNaN).pushByte(1).op(OpGreaterEquals) }, Bool(false)},
		{"convert_s", func(b *asm) { b.pushDouble(1.5).op(OpConvertS) }, String("1.5")},
		{"coerce_s null", func(b *asm) { b.op(OpPushNull, OpCoerceS) }, Null},
		{"convert_i garbage", func(b *asm) { b.pushString("12abc").op(OpConvertI) }, Int(0)},
		{"convert_u negative", func(b *asm) { b.pushByte(-1).op(OpConvertU) }, Uint(math.MaxUint32)},
		{"not", func(b *asm) { b.pushByte(0).op(OpNot) }, Bool(true)},
		{"swap", func(b *asm) { b.pushByte(1).pushByte(2).op(OpSwap, OpSubtract) }, Int(1)},
		{"increment string", func(b *asm) { b.pushString("4").op(OpIncrement) }, Int(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := h.code()
			tt.build(b)
			b.op(OpReturnValue)
			got := h.eval(b)
			if !StrictEquals(got, tt.want) || got.Kind() != tt.want.Kind() {
				t.Errorf("got %v (%v), want %v (%v)", got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestLoop(t *testing.T) {
	h := newHarness(t)
	b := h.code().
		pushByte(0).op(OpSetLocal1).
		pushByte(1).op(OpSetLocal2).
		label("loop").
		op(OpGetLocal2).pushByte(5).branch(OpIfGT, "done").
		op(OpGetLocal1, OpGetLocal2, OpAdd, OpSetLocal1).
		ins(OpIncLocalI, 2).
		branch(OpJump, "loop").
		label("done").
		op(OpGetLocal1, OpReturnValue)
	if got := h.eval(b); got.n != 15 {
		t.Fatalf("sum = %v, want 15", got)
	}
}

func TestLookupSwitch(t *testing.T) {
	for _, tt := range []struct {
		index int8
		want  string
	}{
		{0, "zero"},
		{1, "one"},
		{5, "default"},
		{-1, "default"},
	} {
		h := newHarness(t)
		b := h.code().
			pushByte(tt.index).
			lookupSwitch("def", "c0", "c1").
			label("c0").pushString("zero").op(OpReturnValue).
			label("c1").pushString("one").op(OpReturnValue).
			label("def").pushString("default").op(OpReturnValue)
		if got := h.eval(b); got.AsString() != tt.want {
			t.Errorf("switch(%d) = %v, want %s", tt.index, got, tt.want)
		}
	}
}

func TestUndefinedComparisonTakesNegatedBranch(t *testing.T) {
	h := newHarness(t)
	negated := h.code().
		op(OpPushNaN).pushByte(1).branch(OpIfNLT, "yes").
		op(OpPushFalse, OpReturnValue).
		label("yes").op(OpPushTrue, OpReturnValue)
	if got := h.eval(negated); !got.AsBool() {
		t.Error("ifnlt with NaN not taken")
	}
	plain := h.code().
		op(OpPushNaN).pushByte(1).branch(OpIfLT, "yes").
		op(OpPushFalse, OpReturnValue).
		label("yes").op(OpPushTrue, OpReturnValue)
	if got := h.eval(plain); got.AsBool() {
		t.Error("iflt with NaN taken")
	}
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

func TestThrowCaughtByUntypedHandler(t *testing.T) {
	h := newHarness(t)
	b := h.code().
		label("from").pushString("boom").op(OpThrow).
		label("to").label("handler").op(OpReturnValue).
		catch("from", "to", "handler", "")
	if got := h.eval(b); got.AsString() != "boom" {
		t.Fatalf("caught %v, want boom", got)
	}
}

func TestTypedHandlersAreScannedInOrder(t *testing.T) {
	h := newHarness(t)
	b := h.code().
		label("from").
		findStrict("RangeError").pushString("r").constructProp("RangeError", 1).op(OpThrow).
		label("to").
		label("typeHandler").pushString("type").op(OpReturnValue).
		label("anyHandler").getProp("message").op(OpReturnValue).
		catch("from", "to", "typeHandler", "TypeError").
		catch("from", "to", "anyHandler", "")
	if got := h.eval(b); got.AsString() != "r" {
		t.Fatalf("caught %v, want the RangeError message", got)
	}
}

func TestRuntimeErrorIsCatchable(t *testing.T) {
	h := newHarness(t)
	b := h.code().
		label("from").op(OpPushNull).getProp("x").op(OpReturnValue).
		label("to").
		label("handler").getProp("errorID").op(OpReturnValue).
		catch("from", "to", "handler", "TypeError")
	if got := h.eval(b); got.n != 1009 {
		t.Fatalf("errorID = %v, want 1009", got)
	}
}

func TestUncaughtRuntimeError(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec(h.code().op(OpPushUndefined).getProp("x").op(OpReturnValue))
	if name, code := errorCode(t, err); name != "TypeError" || code != 1010 {
		t.Fatalf("got %s #%d, want TypeError #1010", name, code)
	}
}

func TestNestedHandlersResumeAtOuterCatch(t *testing.T) {
	h := newHarness(t)
	inner := h.code().
		label("from").
		findStrict("Error").pushString("deep").constructProp("Error", 1).op(OpThrow).
		label("to").
		label("handler").pushString("inner").op(OpReturnValue).
		catch("from", "to", "handler", "TypeError")
	innerIndex := len(h.abc.Methods)
	inner.method("inner", 0)

	outer := h.code().
		label("from").op(OpGetLocal0).ins(OpCallStatic, innerIndex, 0).op(OpReturnValue).
		label("to").
		label("handler").getProp("message").op(OpReturnValue).
		catch("from", "to", "handler", "")
	if got := h.eval(outer); got.AsString() != "deep" {
		t.Fatalf("outer caught %v, want deep", got)
	}
}

func TestNestedRangesInOneMethod(t *testing.T) {
	h := newHarness(t)
	b := h.code().
		label("outerFrom").
		traceString("start").
		label("innerFrom").
		findStrict("Error").pushString("x").constructProp("Error", 1).op(OpThrow).
		label("innerTo").
		label("outerTo").
		label("innerHandler").pushString("inner").op(OpReturnValue).
		label("outerHandler").pushString("outer").op(OpReturnValue).
		catch("innerFrom", "innerTo", "innerHandler", "ReferenceError").
		catch("outerFrom", "outerTo", "outerHandler", "Error")
	if got := h.eval(b); got.AsString() != "outer" {
		t.Fatalf("got %v, want outer", got)
	}
	h.expectTraces("start")
}

func TestCatchScopeHoldsException(t *testing.T) {
	h := newHarness(t)
	b := h.code().
		label("from").
		findStrict("Error").pushString("held").constructProp("Error", 1).op(OpThrow).
		label("to").
		label("handler").
		ins(OpNewCatch, 0).op(OpDup, OpPushScope, OpSwap).ins(OpSetSlot, 1).
		raw(OpGetScopeObject, 0).ins(OpGetSlot, 1).
		getProp("message").op(OpReturnValue).
		catchVar("from", "to", "handler", "Error", "e")
	if got := h.eval(b); got.AsString() != "held" {
		t.Fatalf("catch variable message = %v, want held", got)
	}
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

func TestVerifierRejections(t *testing.T) {
	tests := []struct {
		name string
		body MethodBody
		code int
	}{
		{"empty body", MethodBody{NumLocals: 1}, 1043},
		{"illegal opcode", MethodBody{NumLocals: 1, Code: []byte{0xFF, OpReturnVoid}}, 1011},
		{"branch into operand", MethodBody{NumLocals: 1, Code: []byte{OpJump, 1, 0, 0, OpPushByte, 5, OpReturnVoid}}, 1021},
		{"branch out of code", MethodBody{NumLocals: 1, Code: []byte{OpJump, 100, 0, 0, OpReturnVoid}}, 1021},
		{"bad register", MethodBody{NumLocals: 2, Code: []byte{OpGetLocal, 9, OpReturnValue}}, 1025},
		{"bad short register", MethodBody{NumLocals: 2, Code: []byte{OpGetLocal3, OpReturnValue}}, 1025},
		{"falls off the end", MethodBody{NumLocals: 1, Code: []byte{OpNop}}, 1020},
		{"bad constant", MethodBody{NumLocals: 1, Code: []byte{OpPushString, 99, OpReturnValue}}, 1032},
		{"bad exception range", MethodBody{NumLocals: 1, Code: []byte{OpReturnVoid},
			Exceptions: []Exception{{From: 0, To: 5, Target: 0}}}, 1054},
		{"exception target off boundary", MethodBody{NumLocals: 1, Code: []byte{OpPushByte, 1, OpReturnValue},
			Exceptions: []Exception{{From: 0, To: 2, Target: 1}}}, 1054},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			body := tt.body
			m := &Method{Name: tt.name, Body: &body}
			h.abc.AddMethod(m)
			err := m.Verify()
			var ve *VerifyError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want VerifyError", err)
			}
			if ve.Code != tt.code {
				t.Fatalf("code = %d, want %d (%v)", ve.Code, tt.code, err)
			}
			if again := m.Verify(); again != err {
				t.Error("verification result not cached")
			}
		})
	}
}

func TestVerificationPrecedesExecution(t *testing.T) {
	h := newHarness(t)
	b := h.code().traceString("ran").raw(0xFF).op(OpReturnVoid)
	_, err := h.exec(b)
	var ve *VerifyError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want VerifyError", err)
	}
	h.expectTraces()
}

func TestStackUnderflowAbortsOnlyTheMethod(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec(h.code().traceString("before").op(OpPop, OpReturnVoid))
	var ve *VerifyError
	if !errors.As(err, &ve) || ve.Code != 1024 {
		t.Fatalf("err = %v, want VerifyError #1024", err)
	}
	h.eval(h.code().traceString("after").op(OpReturnVoid))
	h.expectTraces("before", "after")
}

// ---------------------------------------------------------------------------
// Limits
// ---------------------------------------------------------------------------

func TestExecutionLimit(t *testing.T) {
	clock := time.Unix(0, 0)
	l := limits.New(100, time.Millisecond)
	l.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	h := newHarnessWith(t, Options{Limit: l})

	l.Start(context.Background())
	_, err := h.exec(h.code().label("top").branch(OpJump, "top"))
	if !errors.Is(err, limits.ErrExecutionLimit) {
		t.Fatalf("err = %v, want ErrExecutionLimit", err)
	}

	l.Start(context.Background())
	h.eval(h.code().traceString("next frame").op(OpReturnVoid))
	h.expectTraces("next frame")
}

func TestCallDepthLimit(t *testing.T) {
	h := newHarnessWith(t, Options{MaxCallDepth: 16})
	self := len(h.abc.Methods)
	m := h.code().op(OpGetLocal0).ins(OpCallStatic, self, 0).op(OpReturnValue).method("recurse", 0)
	_, err := h.vm.CallFunction(m, nil)
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v, want ErrStackOverflow", err)
	}
	if n := len(h.vm.activations); n != 0 {
		t.Errorf("%d activations left on the stack", n)
	}
}

// ---------------------------------------------------------------------------
// Objects and arrays
// ---------------------------------------------------------------------------

func TestNewObject(t *testing.T) {
	h := newHarness(t)
	b := h.code().
		pushString("a").pushByte(1).pushString("b").pushByte(2).ins(OpNewObject, 2).
		getProp("b").op(OpReturnValue)
	if got := h.eval(b); got.n != 2 {
		t.Fatalf("o.b = %v, want 2", got)
	}
}

func TestArrayGrowsOnIndexedWrite(t *testing.T) {
	h := newHarness(t)
	b := h.code()
	late := b.lateName()
	b.ins(OpNewArray, 0).op(OpDup, OpSetLocal1).
		pushByte(5).pushString("x").ins(OpSetProperty, late).
		op(OpGetLocal1).getProp("length").op(OpReturnValue)
	if got := h.eval(b); got.n != 6 {
		t.Fatalf("length = %v, want 6", got)
	}
}

func TestForInVisitsEnumerableNames(t *testing.T) {
	h := newHarness(t)
	b := h.code().
		pushString("a").pushByte(1).pushString("b").pushByte(2).ins(OpNewObject, 2).op(OpSetLocal1).
		pushByte(0).op(OpSetLocal2).
		pushString("").op(OpSetLocal3).
		label("loop").
		ins(OpHasNext2, 1, 2).branch(OpIfFalse, "done").
		op(OpGetLocal3, OpGetLocal1, OpGetLocal2, OpNextName, OpAdd, OpSetLocal3).
		branch(OpJump, "loop").
		label("done").
		op(OpGetLocal3, OpReturnValue)
	if got := h.eval(b); got.AsString() != "ab" {
		t.Fatalf("names = %q, want ab", got.AsString())
	}
}

func TestTypeOperators(t *testing.T) {
	h := newHarness(t)
	b := h.code()
	intName := b.name("int")
	numName := b.name("Number")
	b.pushByte(5).ins(OpIsType, intName).op(OpReturnValue)
	if got := h.eval(b); !got.AsBool() {
		t.Error("5 is int = false")
	}
	b = h.code().pushString("x").ins(OpAsType, numName).op(OpReturnValue)
	if got := h.eval(b); !got.IsNull() {
		t.Errorf(`"x" as Number = %v, want null`, got)
	}
	b = h.code().
		findStrict("TypeError").ins(OpConstructProp, h.abc.PublicName("TypeError"), 0).
		getLex("Error").op(OpInstanceOf, OpReturnValue)
	if got := h.eval(b); !got.AsBool() {
		t.Error("TypeError instanceof Error = false")
	}
	_, err := h.exec(h.code().pushByte(1).pushByte(2).op(OpInstanceOf, OpReturnValue))
	if _, code := errorCode(t, err); code != 1040 {
		t.Errorf("instanceof number: code %d, want 1040", code)
	}
}

func TestTypedParametersAreCoerced(t *testing.T) {
	h := newHarness(t)
	m := h.code().op(OpGetLocal1, OpReturnValue).method("f", 1)
	m.Params[0].Type = h.abc.Multinames[h.abc.PublicName("int")]
	got, err := h.vm.CallFunction(m, []Value{String("42")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != KindInt || got.n != 42 {
		t.Fatalf("f(\"42\") = %v (%v), want int 42", got, got.Kind())
	}
	_, err = h.vm.CallFunction(m, []Value{Int(1), Int(2)})
	if name, code := errorCode(t, err); name != "ArgumentError" || code != 1063 {
		t.Fatalf("got %s #%d, want ArgumentError #1063", name, code)
	}
}

func TestRestParameters(t *testing.T) {
	h := newHarness(t)
	m := h.code().op(OpGetLocal2).getProp("length").op(OpReturnValue).method("f", 1)
	m.Flags = NeedRest
	got, err := h.vm.CallFunction(m, []Value{Int(1), Int(2), Int(3)})
	if err != nil {
		t.Fatal(err)
	}
	if got.n != 2 {
		t.Fatalf("rest length = %v, want 2", got)
	}
}

func TestClosureCapturesActivation(t *testing.T) {
	h := newHarness(t)
	innerIndex := len(h.abc.Methods)
	h.code().getLex("x").op(OpReturnValue).method("inner", 0)

	outer := h.code().
		op(OpNewActivation, OpDup, OpSetLocal1, OpPushScope).
		op(OpGetLocal1).pushByte(7).ins(OpSetSlot, 1).
		ins(OpNewFunction, innerIndex).op(OpGetLocal0).ins(OpCall, 0).
		op(OpReturnValue).
		method("outer", 0)
	outer.Body.Traits = []Trait{SlotTrait(h.vm.publicName("x"), nil)}
	got, err := h.vm.CallFunction(outer, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.n != 7 {
		t.Fatalf("inner() = %v, want 7", got)
	}
}

func TestUndefinedVariable(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec(h.code().getLex("nowhere").op(OpReturnValue))
	if name, code := errorCode(t, err); name != "ReferenceError" || code != 1065 {
		t.Fatalf("got %s #%d, want ReferenceError #1065", name, code)
	}
}
