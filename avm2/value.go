// Package avm2 implements the ActionScript 3 virtual machine: namespaces
// and multinames, classes linked into vtables, sealed and dynamic objects,
// a bytecode verifier and the interpreter.
//
// Methods run inside an *Activation. The VM holds the class registry and
// the global object; there is no package-level state.
package avm2

import (
	"fmt"
	"math"

	"github.com/chazu/avmcore/coerce"
	"github.com/chazu/avmcore/gc"
)

// ---------------------------------------------------------------------------
// Value
// ---------------------------------------------------------------------------

// Kind identifies the type of a Value. int, uint and Number are distinct
// kinds but all report "number" from typeof.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindUint
	KindNumber
	KindString
	KindObject

	numKinds = int(KindObject) + 1
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "Boolean"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindObject:
		return "Object"
	}
	return "invalid"
}

// Value is an AVM2 value. The zero Value is undefined.
type Value struct {
	kind Kind
	n    float64 // numbers and booleans
	s    string
	o    *Object
}

var (
	Undefined = Value{}
	Null      = Value{kind: KindNull}
)

func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

func Int(i int32) Value      { return Value{kind: KindInt, n: float64(i)} }
func Uint(u uint32) Value    { return Value{kind: KindUint, n: float64(u)} }
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }

// ObjectValue wraps o. A nil object is null.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{kind: KindObject, o: o}
}

// numberValue picks the narrowest numeric kind that holds f exactly, the
// way arithmetic results are pushed.
func numberValue(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 && !(f == 0 && math.Signbit(f)) {
		return Int(int32(f))
	}
	return Number(f)
}

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsNullish() bool   { return v.kind <= KindNull }
func (v Value) IsNumeric() bool   { return v.kind >= KindInt && v.kind <= KindNumber }
func (v Value) AsBool() bool      { return v.n != 0 }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsString() string  { return v.s }
func (v Value) AsObject() *Object { return v.o }

// String renders v for logs without running script code.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.n != 0 {
			return "true"
		}
		return "false"
	case KindInt, KindUint, KindNumber:
		return coerce.FormatNumber(v.n)
	case KindString:
		return v.s
	case KindObject:
		return fmt.Sprintf("[object %s]", v.o.ClassName())
	}
	return "?"
}

func markValue(t *gc.Tracer, v Value) {
	if v.o != nil {
		t.Mark(v.o)
	}
}

// StrictEquals implements ===. Numeric kinds compare by value.
func StrictEquals(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return a.n == b.n
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	}
	return a.o == b.o
}
