// Package avm1 implements the ActionScript 1/2 virtual machine: values,
// prototype-chained objects, scope chains and the action interpreter.
//
// All interpreter state is reached through an *Activation, which carries the
// owning *VM. Nothing is global, so a VM may be re-entered from getters,
// setters and watchers.
package avm1

import (
	"github.com/chazu/avmcore/coerce"
)

// ---------------------------------------------------------------------------
// Value: Tagged script value
// ---------------------------------------------------------------------------

// Kind identifies the type of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
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
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	}
	return "invalid"
}

// Value is an AVM1 value. The zero Value is undefined.
type Value struct {
	kind Kind
	n    float64 // number, or 0/1 for booleans
	s    string
	o    *Object
}

// Undefined is the undefined value.
var Undefined = Value{}

// Null is the null value.
var Null = Value{kind: KindNull}

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

// Number returns a numeric value.
func Number(f float64) Value {
	return Value{kind: KindNumber, n: f}
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, s: s}
}

// ObjectValue wraps an object. A nil object yields undefined.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Undefined
	}
	return Value{kind: KindObject, o: o}
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }

// IsPrimitive reports whether v is not an object.
func (v Value) IsPrimitive() bool { return v.kind != KindObject }

// AsBool returns the boolean payload; only meaningful for KindBool.
func (v Value) AsBool() bool { return v.n != 0 }

// AsNumber returns the numeric payload; only meaningful for KindNumber.
func (v Value) AsNumber() float64 { return v.n }

// AsString returns the string payload; only meaningful for KindString.
func (v Value) AsString() string { return v.s }

// AsObject returns the object payload, or nil.
func (v Value) AsObject() *Object { return v.o }

// fromBool pushes booleans the way the given SWF version expects: SWF 4
// has no boolean type and uses 1 and 0.
func fromBool(b bool, version uint8) Value {
	if version < 5 {
		if b {
			return Number(1)
		}
		return Number(0)
	}
	return Bool(b)
}

// String formats the value for diagnostics without running script code.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindNumber:
		return coerce.FormatAVM1(v.n)
	case KindString:
		return v.s
	}
	if v.o.fn != nil {
		return "[type Function]"
	}
	return "[object " + v.o.className() + "]"
}

// StrictEquals implements ===: same type and same value, objects by
// identity. NaN is not equal to itself.
func StrictEquals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool, KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	}
	return a.o == b.o
}

// sameValue is used for watcher and array bookkeeping where NaN must match
// itself.
func sameValue(a, b Value) bool {
	if a.kind == KindNumber && b.kind == KindNumber && a.n != a.n && b.n != b.n {
		return true
	}
	return StrictEquals(a, b)
}
