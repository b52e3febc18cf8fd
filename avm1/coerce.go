package avm1

import (
	"math"

	"github.com/chazu/avmcore/coerce"
)

func toInt32(f float64) int32 { return coerce.ToInt32(f) }

// ---------------------------------------------------------------------------
// Number
// ---------------------------------------------------------------------------

// stringToNumber converts a string as Number() would for the given
// version: SWF 6+ understands hex and octal integers, SWF 5+ requires the
// whole string to be numeric, older versions read a numeric prefix and
// treat garbage as 0.
func stringToNumber(s string, version uint8) float64 {
	if version >= 6 {
		switch coerce.GuessRadix(s) {
		case 16:
			body, neg := s, false
			if body != "" && (body[0] == '-' || body[0] == '+') {
				neg = body[0] == '-'
				body = body[1:]
			}
			n, ok := coerce.ParseWrappingInt(body[2:], 16)
			if !ok {
				return math.NaN()
			}
			if neg {
				n = -n
			}
			return float64(n)
		case 8:
			if n, ok := coerce.ParseWrappingInt(s, 8); ok {
				return float64(n)
			}
			return math.NaN()
		}
	}
	strict := version >= 5
	f := coerce.ParseFloat(s, strict)
	if !strict && math.IsNaN(f) {
		return 0
	}
	return f
}

// primitiveAsNumber converts without calling valueOf.
func primitiveAsNumber(v Value, version uint8) float64 {
	switch v.kind {
	case KindUndefined, KindNull:
		if version < 7 {
			return 0
		}
		return math.NaN()
	case KindBool, KindNumber:
		return v.n
	case KindString:
		return stringToNumber(v.s, version)
	}
	if version < 5 {
		return 0
	}
	return math.NaN()
}

// ToNumber converts v to a number, calling valueOf on objects.
func (act *Activation) ToNumber(v Value) (float64, error) {
	if v.kind == KindObject {
		if act.version < 5 {
			return 0, nil
		}
		prim, err := act.toPrimitiveNum(v)
		if err != nil {
			return 0, err
		}
		if prim.kind == KindObject {
			return math.NaN(), nil
		}
		v = prim
	}
	return primitiveAsNumber(v, act.version), nil
}

func (act *Activation) toPrimitiveNum(v Value) (Value, error) {
	if v.kind != KindObject {
		return v, nil
	}
	return v.o.CallMethod(act, "valueOf", nil)
}

// ToPrimitive calls valueOf on objects. An object whose valueOf is missing
// or returns undefined converts to itself.
func (act *Activation) ToPrimitive(v Value) (Value, error) {
	if v.kind != KindObject {
		return v, nil
	}
	if !v.o.HasProperty(act, "valueOf") {
		return v, nil
	}
	prim, err := v.o.CallMethod(act, "valueOf", nil)
	if err != nil {
		return Undefined, err
	}
	if prim.IsUndefined() {
		return v, nil
	}
	return prim, nil
}

func (act *Activation) toInt32(v Value) (int32, error) {
	n, err := act.ToNumber(v)
	return coerce.ToInt32(n), err
}

func (act *Activation) toUint32(v Value) (uint32, error) {
	n, err := act.ToNumber(v)
	return coerce.ToUint32(n), err
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

// ToString converts v to a string, calling toString on objects.
func (act *Activation) ToString(v Value) (string, error) {
	switch v.kind {
	case KindUndefined:
		if act.version < 7 {
			return "", nil
		}
		return "undefined", nil
	case KindNull:
		return "null", nil
	case KindBool:
		if act.version < 5 {
			if v.AsBool() {
				return "1", nil
			}
			return "0", nil
		}
		if v.AsBool() {
			return "true", nil
		}
		return "false", nil
	case KindNumber:
		return coerce.FormatAVM1(v.n), nil
	case KindString:
		return v.s, nil
	}
	r, err := v.o.CallMethod(act, "toString", nil)
	if err != nil {
		return "", err
	}
	if r.kind == KindString {
		return r.s, nil
	}
	if v.o.fn != nil {
		return "[type Function]", nil
	}
	return "[type Object]", nil
}

// ---------------------------------------------------------------------------
// Boolean and typeof
// ---------------------------------------------------------------------------

// ToBool converts v to a boolean. Strings are true when non-empty from
// SWF 7; earlier versions parse them as numbers.
func (act *Activation) ToBool(v Value) bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBool:
		return v.AsBool()
	case KindNumber:
		return !math.IsNaN(v.n) && v.n != 0
	case KindString:
		if act.version >= 7 {
			return v.s != ""
		}
		n := stringToNumber(v.s, act.version)
		return !math.IsNaN(n) && n != 0
	}
	return true
}

// TypeOf returns the typeof string for v.
func TypeOf(v Value) string {
	switch v.kind {
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
	}
	if v.o.fn != nil {
		return "function"
	}
	return "object"
}

// ToObject boxes primitives. Undefined and null become a fresh plain
// object.
func (act *Activation) ToObject(v Value) *Object {
	vm := act.vm
	switch v.kind {
	case KindObject:
		return v.o
	case KindBool:
		return vm.newBoxed("Boolean", v, vm.protos.boolean)
	case KindNumber:
		return vm.newBoxed("Number", v, vm.protos.number)
	case KindString:
		return vm.newBoxed("String", v, vm.protos.string)
	}
	return vm.NewObject()
}

// ---------------------------------------------------------------------------
// Abstract equality
// ---------------------------------------------------------------------------

type eqFunc func(act *Activation, a, b Value) (bool, error)

// eqTable is indexed [kind(a)][kind(b)] after SWF 5 valueOf preconversion.
var eqTable [numKinds][numKinds]eqFunc

func init() {
	for i := 0; i < numKinds; i++ {
		for j := 0; j < numKinds; j++ {
			eqTable[i][j] = eqFalse
		}
	}
	U, N, B, D, S, O := KindUndefined, KindNull, KindBool, KindNumber, KindString, KindObject

	eqTable[U][U] = eqTrue
	eqTable[U][N] = eqTrue
	eqTable[N][U] = eqTrue
	eqTable[N][N] = eqTrue

	eqTable[B][B] = eqSameNumber
	eqTable[D][D] = eqSameNumber
	eqTable[S][S] = eqSameString
	eqTable[O][O] = eqSameObject

	for _, k := range []Kind{U, N, B, D, S, O} {
		eqTable[B][k] = eqBoolLeft
		eqTable[k][B] = eqBoolRight
	}
	eqTable[B][B] = eqSameNumber

	eqTable[D][S] = eqNumberString
	eqTable[S][D] = eqStringNumber

	for _, k := range []Kind{U, N, D, S} {
		eqTable[O][k] = eqObjectLeft
		eqTable[k][O] = eqObjectRight
	}
}

func eqTrue(*Activation, Value, Value) (bool, error)  { return true, nil }
func eqFalse(*Activation, Value, Value) (bool, error) { return false, nil }

func eqSameNumber(_ *Activation, a, b Value) (bool, error) { return a.n == b.n, nil }
func eqSameString(_ *Activation, a, b Value) (bool, error) { return a.s == b.s, nil }
func eqSameObject(_ *Activation, a, b Value) (bool, error) { return a.o == b.o, nil }

func eqBoolLeft(act *Activation, a, b Value) (bool, error) {
	return act.abstractEq(Number(a.n), b)
}

func eqBoolRight(act *Activation, a, b Value) (bool, error) {
	return act.abstractEq(a, Number(b.n))
}

func eqNumberString(act *Activation, a, b Value) (bool, error) {
	return a.n == primitiveAsNumber(b, act.version), nil
}

func eqStringNumber(act *Activation, a, b Value) (bool, error) {
	return primitiveAsNumber(a, act.version) == b.n, nil
}

func eqObjectLeft(act *Activation, a, b Value) (bool, error) {
	prim, err := act.toPrimitiveNum(a)
	if err != nil || prim.kind == KindObject {
		return false, err
	}
	return act.abstractEq(prim, b)
}

func eqObjectRight(act *Activation, a, b Value) (bool, error) {
	prim, err := act.toPrimitiveNum(b)
	if err != nil || prim.kind == KindObject {
		return false, err
	}
	return act.abstractEq(a, prim)
}

// AbstractEq implements the SWF 5+ == operator (Equals2). SWF 5 converts
// both operands with valueOf first.
func (act *Activation) AbstractEq(a, b Value) (bool, error) {
	if act.version <= 5 {
		var err error
		if a, err = act.toPrimitiveNum(a); err != nil {
			return false, err
		}
		if b, err = act.toPrimitiveNum(b); err != nil {
			return false, err
		}
	}
	return act.abstractEq(a, b)
}

func (act *Activation) abstractEq(a, b Value) (bool, error) {
	return eqTable[a.kind][b.kind](act, a, b)
}

// ---------------------------------------------------------------------------
// Relational comparison
// ---------------------------------------------------------------------------

// AbstractLt implements a < b (Less2). The result is undefined when either
// side converts to NaN.
func (act *Activation) AbstractLt(a, b Value) (Value, error) {
	pa, err := act.toPrimitiveNum(a)
	if err != nil {
		return Undefined, err
	}
	pb, err := act.toPrimitiveNum(b)
	if err != nil {
		return Undefined, err
	}
	if pa.kind == KindObject || pb.kind == KindObject {
		return Bool(false), nil
	}
	if pa.kind == KindString && pb.kind == KindString {
		return Bool(coerce.CompareUTF16(pa.s, pb.s) < 0), nil
	}
	x := primitiveAsNumber(pa, act.version)
	y := primitiveAsNumber(pb, act.version)
	if math.IsNaN(x) || math.IsNaN(y) {
		return Undefined, nil
	}
	return Bool(x < y), nil
}
