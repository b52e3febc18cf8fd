package avm2

import (
	"math"

	"github.com/chazu/avmcore/coerce"
)

// ---------------------------------------------------------------------------
// Primitive conversion
// ---------------------------------------------------------------------------

type hint uint8

const (
	hintNumber hint = iota
	hintString
)

// toPrimitive converts objects with valueOf and toString. Primitives are
// returned unchanged.
func (vm *VM) toPrimitive(act *Activation, v Value, h hint) (Value, error) {
	if v.kind != KindObject {
		return v, nil
	}
	order := [2]string{"valueOf", "toString"}
	if h == hintString {
		order = [2]string{"toString", "valueOf"}
	}
	for _, name := range order {
		fn, err := vm.getProperty(act, v, vm.PublicName(name))
		if err != nil {
			return Undefined, err
		}
		if fn.o == nil || !fn.o.IsCallable() {
			continue
		}
		r, err := vm.callValue(act, fn, v, nil)
		if err != nil {
			return Undefined, err
		}
		if r.kind != KindObject {
			return r, nil
		}
	}
	return Undefined, vm.typeError(1050, "Cannot convert %s to primitive.", v.o.ClassName())
}

func primitiveNumber(v Value) float64 {
	switch v.kind {
	case KindUndefined:
		return math.NaN()
	case KindNull:
		return 0
	case KindBool, KindInt, KindUint, KindNumber:
		return v.n
	case KindString:
		return coerce.ParseNumber(v.s)
	}
	return math.NaN()
}

func primitiveString(v Value) string {
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
	}
	return ""
}

// ToNumber is the ECMAScript ToNumber conversion.
func (vm *VM) ToNumber(act *Activation, v Value) (float64, error) {
	p, err := vm.toPrimitive(act, v, hintNumber)
	if err != nil {
		return math.NaN(), err
	}
	return primitiveNumber(p), nil
}

// ToString is the ECMAScript ToString conversion.
func (vm *VM) ToString(act *Activation, v Value) (string, error) {
	p, err := vm.toPrimitive(act, v, hintString)
	if err != nil {
		return "", err
	}
	return primitiveString(p), nil
}

// ToBoolean never calls script code.
func ToBoolean(v Value) bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBool:
		return v.n != 0
	case KindInt, KindUint, KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	}
	return true
}

func (vm *VM) toInt32(act *Activation, v Value) (int32, error) {
	if v.kind == KindInt {
		return int32(v.n), nil
	}
	f, err := vm.ToNumber(act, v)
	return coerce.ToInt32(f), err
}

func (vm *VM) toUint32(act *Activation, v Value) (uint32, error) {
	if v.kind == KindUint {
		return uint32(v.n), nil
	}
	f, err := vm.ToNumber(act, v)
	return coerce.ToUint32(f), err
}

// typeOf implements the typeof operator.
func typeOf(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "object"
	case KindBool:
		return "boolean"
	case KindInt, KindUint, KindNumber:
		return "number"
	case KindString:
		return "string"
	}
	if _, ok := v.o.native.(*Closure); ok {
		return "function"
	}
	return "object"
}

// ---------------------------------------------------------------------------
// Equality and comparison
// ---------------------------------------------------------------------------

type eqFunc func(vm *VM, act *Activation, a, b Value) (bool, error)

// eqTable is indexed [kind(a)][kind(b)]. The numeric kinds share one row.
var eqTable [numKinds][numKinds]eqFunc

func init() {
	for i := range eqTable {
		for j := range eqTable[i] {
			eqTable[i][j] = eqFalse
		}
	}
	U, N, B, S, O := KindUndefined, KindNull, KindBool, KindString, KindObject
	numeric := []Kind{KindInt, KindUint, KindNumber}

	eqTable[U][U] = eqTrue
	eqTable[U][N] = eqTrue
	eqTable[N][U] = eqTrue
	eqTable[N][N] = eqTrue
	eqTable[B][B] = eqSameNumber
	eqTable[S][S] = eqSameString
	eqTable[O][O] = eqSameObject

	for _, x := range numeric {
		for _, y := range numeric {
			eqTable[x][y] = eqSameNumber
		}
		eqTable[x][S] = eqToNumbers
		eqTable[S][x] = eqToNumbers
		eqTable[x][B] = eqToNumbers
		eqTable[B][x] = eqToNumbers
		eqTable[O][x] = eqObjectLeft
		eqTable[x][O] = eqObjectRight
	}
	eqTable[B][S] = eqToNumbers
	eqTable[S][B] = eqToNumbers
	eqTable[O][S] = eqObjectLeft
	eqTable[S][O] = eqObjectRight
	eqTable[O][B] = eqObjectLeft
	eqTable[B][O] = eqObjectRight
}

func eqTrue(*VM, *Activation, Value, Value) (bool, error)  { return true, nil }
func eqFalse(*VM, *Activation, Value, Value) (bool, error) { return false, nil }

func eqSameNumber(_ *VM, _ *Activation, a, b Value) (bool, error) { return a.n == b.n, nil }
func eqSameString(_ *VM, _ *Activation, a, b Value) (bool, error) { return a.s == b.s, nil }
func eqSameObject(_ *VM, _ *Activation, a, b Value) (bool, error) { return a.o == b.o, nil }

func eqToNumbers(_ *VM, _ *Activation, a, b Value) (bool, error) {
	return primitiveNumber(a) == primitiveNumber(b), nil
}

func eqObjectLeft(vm *VM, act *Activation, a, b Value) (bool, error) {
	p, err := vm.toPrimitive(act, a, hintNumber)
	if err != nil {
		return false, err
	}
	return vm.LooseEquals(act, p, b)
}

func eqObjectRight(vm *VM, act *Activation, a, b Value) (bool, error) {
	p, err := vm.toPrimitive(act, b, hintNumber)
	if err != nil {
		return false, err
	}
	return vm.LooseEquals(act, a, p)
}

// LooseEquals implements the == operator.
func (vm *VM) LooseEquals(act *Activation, a, b Value) (bool, error) {
	return eqTable[a.kind][b.kind](vm, act, a, b)
}

// lessThan is the abstract relational comparison. undef is true when
// either side converts to NaN.
func (vm *VM) lessThan(act *Activation, a, b Value) (lt, undef bool, err error) {
	if a, err = vm.toPrimitive(act, a, hintNumber); err != nil {
		return false, false, err
	}
	if b, err = vm.toPrimitive(act, b, hintNumber); err != nil {
		return false, false, err
	}
	if a.kind == KindString && b.kind == KindString {
		return coerce.CompareUTF16(a.s, b.s) < 0, false, nil
	}
	x, y := primitiveNumber(a), primitiveNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		return false, true, nil
	}
	return x < y, false, nil
}

// add implements the add operator: concatenation when either primitive
// is a string, numeric addition otherwise.
func (vm *VM) add(act *Activation, a, b Value) (Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		return numberValue(a.n + b.n), nil
	}
	pa, err := vm.toPrimitive(act, a, hintNumber)
	if err != nil {
		return Undefined, err
	}
	pb, err := vm.toPrimitive(act, b, hintNumber)
	if err != nil {
		return Undefined, err
	}
	if pa.kind == KindString || pb.kind == KindString {
		return String(primitiveString(pa) + primitiveString(pb)), nil
	}
	return numberValue(primitiveNumber(pa) + primitiveNumber(pb)), nil
}

// ---------------------------------------------------------------------------
// Type coercion
// ---------------------------------------------------------------------------

// classOf returns the class of v, boxing primitives to their built-in
// class. Nullish values have none.
func (vm *VM) classOf(v Value) *Class {
	b := &vm.builtins
	switch v.kind {
	case KindBool:
		return b.boolean
	case KindInt:
		return b.intc
	case KindUint:
		return b.uintc
	case KindNumber:
		if f := v.n; f == math.Trunc(f) && !math.IsInf(f, 0) {
			if f >= math.MinInt32 && f <= math.MaxInt32 && !(f == 0 && math.Signbit(f)) {
				return b.intc
			}
		}
		return b.number
	case KindString:
		return b.str
	case KindObject:
		if _, ok := v.o.native.(*Class); ok {
			return b.class
		}
		return v.o.class
	}
	return nil
}

// isType reports whether v is an instance of c, treating the numeric
// classes by value range.
func (vm *VM) isType(v Value, c *Class) bool {
	if v.IsNullish() {
		return false
	}
	b := &vm.builtins
	if c == b.object {
		return true
	}
	if v.IsNumeric() {
		f := v.n
		integral := f == math.Trunc(f) && !math.IsInf(f, 0) && !math.IsNaN(f)
		switch c {
		case b.number:
			return true
		case b.intc:
			return integral && f >= math.MinInt32 && f <= math.MaxInt32
		case b.uintc:
			return integral && f >= 0 && f <= math.MaxUint32
		}
		return false
	}
	cls := vm.classOf(v)
	return cls != nil && cls.IsSubclassOf(c)
}

// coerceTo converts v to the type named by typ, as done for typed
// parameters, slots and the coerce instruction.
func (vm *VM) coerceTo(act *Activation, v Value, typ *Multiname) (Value, error) {
	if typ == nil || typ.Local == nil {
		return v, nil
	}
	if typ.NS.containsPublic() || len(typ.NS) == 0 {
		switch typ.Local.String() {
		case "*":
			return v, nil
		case "void":
			return Undefined, nil
		}
	}
	c, err := vm.findClass(typ)
	if err != nil {
		return Undefined, err
	}
	if c == nil {
		return Undefined, vm.throwError(KindVerifyError, 1014, "Class %s could not be found.", typ)
	}
	return vm.coerceToClass(act, v, c)
}

// coerceToClass converts primitives to the built-in value classes and
// checks everything else, letting null through.
func (vm *VM) coerceToClass(act *Activation, v Value, c *Class) (Value, error) {
	b := &vm.builtins
	switch c {
	case b.intc:
		i, err := vm.toInt32(act, v)
		return Int(i), err
	case b.uintc:
		u, err := vm.toUint32(act, v)
		return Uint(u), err
	case b.number:
		f, err := vm.ToNumber(act, v)
		return Number(f), err
	case b.boolean:
		return Bool(ToBoolean(v)), nil
	case b.str:
		if v.IsNullish() {
			return Null, nil
		}
		s, err := vm.ToString(act, v)
		return String(s), err
	case b.object:
		if v.IsUndefined() {
			return Null, nil
		}
		return v, nil
	}
	if v.IsNullish() {
		return Null, nil
	}
	if vm.isType(v, c) {
		return v, nil
	}
	return Undefined, vm.typeError(1034, "Type Coercion failed: cannot convert %s to %s.", describe(v), c.Name)
}

// String returns "[object ClassName]".
func (o *Object) String() string { return "[object " + o.ClassName() + "]" }

// describe names a value for coercion errors.
func describe(v Value) string {
	if v.kind == KindString {
		return `"` + v.s + `"`
	}
	return v.String()
}

// instanceOf walks v's prototype chain looking for the prototype of
// typ, which must be a class or function object.
func (vm *VM) instanceOf(act *Activation, v, typ Value) (bool, error) {
	if typ.o == nil {
		return false, vm.typeError(1040, "The right-hand side of instanceof must be a class or function.")
	}
	var proto *Object
	switch n := typ.o.native.(type) {
	case *Class:
		proto = n.prototype
	case *Closure:
		p, err := typ.o.GetProperty(act, vm.PublicName("prototype"))
		if err != nil {
			return false, err
		}
		proto = p.o
	default:
		return false, vm.typeError(1040, "The right-hand side of instanceof must be a class or function.")
	}
	if proto == nil || v.IsNullish() {
		return false, nil
	}
	var start *Object
	if v.o != nil {
		start = v.o.proto
	} else if c := vm.classOf(v); c != nil {
		start = c.prototype
	}
	depth := 0
	for p := start; p != nil && depth < maxProtoDepth; p, depth = p.proto, depth+1 {
		if p == proto {
			return true, nil
		}
	}
	return false, nil
}
