package avm2

import (
	"math"
	"math/big"
	"strings"

	"github.com/chazu/avmcore/coerce"
)

func (vm *VM) installNumbers() {
	b := &vm.builtins
	conv := func(fn func(act *Activation, v Value) (Value, error), zero Value) NativeMethod {
		return func(act *Activation, _ Value, args []Value) (Value, error) {
			if len(args) == 0 {
				return zero, nil
			}
			return fn(act, args[0])
		}
	}
	primitive := func(name string, call NativeMethod, statics ...Trait) *Class {
		c := vm.nativeClass(name, b.object, false)
		c.Final = true
		c.primitive = true
		c.call = call
		c.ClassTraits = statics
		return vm.mustDefine(c)
	}

	b.number = primitive("Number", conv(func(act *Activation, v Value) (Value, error) {
		f, err := act.vm.ToNumber(act, v)
		return Number(f), err
	}, Number(0)),
		vm.constTrait("MAX_VALUE", Number(math.MaxFloat64)),
		vm.constTrait("MIN_VALUE", Number(5e-324)),
		vm.constTrait("NaN", Number(math.NaN())),
		vm.constTrait("NEGATIVE_INFINITY", Number(math.Inf(-1))),
		vm.constTrait("POSITIVE_INFINITY", Number(math.Inf(1))),
	)
	b.intc = primitive("int", conv(func(act *Activation, v Value) (Value, error) {
		i, err := act.vm.toInt32(act, v)
		return Int(i), err
	}, Int(0)),
		vm.constTrait("MAX_VALUE", Int(math.MaxInt32)),
		vm.constTrait("MIN_VALUE", Int(math.MinInt32)),
	)
	b.uintc = primitive("uint", conv(func(act *Activation, v Value) (Value, error) {
		u, err := act.vm.toUint32(act, v)
		return Uint(u), err
	}, Uint(0)),
		vm.constTrait("MAX_VALUE", Uint(math.MaxUint32)),
		vm.constTrait("MIN_VALUE", Uint(0)),
	)
	b.boolean = primitive("Boolean", conv(func(_ *Activation, v Value) (Value, error) {
		return Bool(ToBoolean(v)), nil
	}, Bool(false)))

	for _, c := range []*Class{b.number, b.intc, b.uintc} {
		vm.installNumberPrototype(c.prototype)
	}
	vm.method(b.boolean.prototype, "toString", func(_ *Activation, this Value, _ []Value) (Value, error) {
		return String(primitiveString(Bool(ToBoolean(this)))), nil
	})
	vm.method(b.boolean.prototype, "valueOf", func(_ *Activation, this Value, _ []Value) (Value, error) {
		return Bool(ToBoolean(this)), nil
	})
}

func (vm *VM) installNumberPrototype(p *Object) {
	vm.method(p, "toString", func(act *Activation, this Value, args []Value) (Value, error) {
		radix := 10
		if v := arg(args, 0); !v.IsUndefined() {
			r, err := act.vm.toInt32(act, v)
			if err != nil {
				return Undefined, err
			}
			if r < 2 || r > 36 {
				return Undefined, act.vm.throwError(KindRangeError, 1003, "The radix argument must be between 2 and 36; got %d.", r)
			}
			radix = int(r)
		}
		return String(coerce.FormatRadix(primitiveNumber(this), radix, coerce.FormatNumber)), nil
	})
	vm.method(p, "toFixed", func(act *Activation, this Value, args []Value) (Value, error) {
		d, err := act.vm.toInt32(act, arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		if d < 0 || d > 20 {
			return Undefined, act.vm.throwError(KindRangeError, 1002, "Number.toFixed has a range of 0 to 20. %d is out of range.", d)
		}
		return String(toFixed(primitiveNumber(this), int(d))), nil
	})
	vm.method(p, "valueOf", func(_ *Activation, this Value, _ []Value) (Value, error) {
		return numberValue(primitiveNumber(this)), nil
	})
}

// toFixed formats f with digits fraction digits, rounding the exact binary
// value half away from zero.
func toFixed(f float64, digits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1e21 {
		return coerce.FormatNumber(f)
	}
	neg := f < 0
	exact := new(big.Float).SetFloat64(math.Abs(f)).Text('f', 1100)
	intPart, frac, _ := strings.Cut(exact, ".")
	frac += strings.Repeat("0", digits+1)
	kept := []byte(intPart + frac[:digits])
	if frac[digits] >= '5' {
		i := len(kept) - 1
		for ; i >= 0; i-- {
			if kept[i] < '9' {
				kept[i]++
				break
			}
			kept[i] = '0'
		}
		if i < 0 {
			kept = append([]byte{'1'}, kept...)
		}
	}
	n := len(kept) - digits
	out := string(kept[:n])
	if digits > 0 {
		out += "." + string(kept[n:])
	}
	if neg && strings.Trim(out, "0.") != "" {
		out = "-" + out
	}
	return out
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

func (vm *VM) installMath() {
	c := vm.nativeClass("Math", vm.builtins.object, false)
	c.Final = true
	c.noNew = true
	c.call = func(act *Activation, _ Value, _ []Value) (Value, error) {
		return Undefined, act.vm.typeError(1075, "Math is not a function.")
	}
	for name, v := range map[string]float64{
		"PI":      math.Pi,
		"E":       math.E,
		"LN2":     math.Ln2,
		"LN10":    math.Ln10,
		"LOG2E":   math.Log2E,
		"LOG10E":  math.Log10E,
		"SQRT2":   math.Sqrt2,
		"SQRT1_2": math.Sqrt2 / 2,
	} {
		c.ClassTraits = append(c.ClassTraits, vm.constTrait(name, Number(v)))
	}
	unary := map[string]func(float64) float64{
		"abs":   math.Abs,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"round": coerce.RoundHalfUp,
		"sqrt":  math.Sqrt,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"asin":  math.Asin,
		"acos":  math.Acos,
		"atan":  math.Atan,
		"exp":   math.Exp,
		"log":   math.Log,
	}
	for name, fn := range unary {
		c.ClassTraits = append(c.ClassTraits, vm.methodTrait(name, func(act *Activation, _ Value, args []Value) (Value, error) {
			f, err := act.vm.ToNumber(act, arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			return numberValue(fn(f)), nil
		}))
	}
	binary := map[string]func(float64, float64) float64{
		"pow":   math.Pow,
		"atan2": math.Atan2,
	}
	for name, fn := range binary {
		c.ClassTraits = append(c.ClassTraits, vm.methodTrait(name, func(act *Activation, _ Value, args []Value) (Value, error) {
			x, err := act.vm.ToNumber(act, arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			y, err := act.vm.ToNumber(act, arg(args, 1))
			if err != nil {
				return Undefined, err
			}
			return numberValue(fn(x, y)), nil
		}))
	}
	extremum := func(name string, init float64, better func(a, b float64) bool) Trait {
		return vm.methodTrait(name, func(act *Activation, _ Value, args []Value) (Value, error) {
			r := init
			for _, a := range args {
				f, err := act.vm.ToNumber(act, a)
				if err != nil {
					return Undefined, err
				}
				if math.IsNaN(f) {
					return Number(math.NaN()), nil
				}
				if better(f, r) {
					r = f
				}
			}
			return numberValue(r), nil
		})
	}
	c.ClassTraits = append(c.ClassTraits,
		extremum("max", math.Inf(-1), func(a, b float64) bool { return a > b }),
		extremum("min", math.Inf(1), func(a, b float64) bool { return a < b }),
		vm.methodTrait("random", func(act *Activation, _ Value, _ []Value) (Value, error) {
			return Number(act.vm.rand.Float64()), nil
		}),
	)
	vm.builtins.math = vm.mustDefine(c)
}
