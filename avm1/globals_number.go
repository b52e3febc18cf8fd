package avm1

import (
	"math"

	"github.com/chazu/avmcore/coerce"
)

func (vm *VM) installNumber() {
	proto := vm.NewObject()
	vm.protos.number = proto

	ctor := vm.newConstructor("Number", proto, func(act *Activation, _ *Object, args []Value) (Value, error) {
		if len(args) == 0 {
			return Number(0), nil
		}
		n, err := act.ToNumber(args[0])
		return Number(n), err
	}, func(act *Activation, this *Object, args []Value) (Value, error) {
		n := 0.0
		if len(args) > 0 {
			var err error
			if n, err = act.ToNumber(args[0]); err != nil {
				return Undefined, err
			}
		}
		this.class = "Number"
		this.primitive = Number(n)
		return ObjectValue(this), nil
	})
	const constant = DontEnum | DontDelete | ReadOnly
	ctor.Define("MAX_VALUE", Number(math.MaxFloat64), constant)
	ctor.Define("MIN_VALUE", Number(5e-324), constant)
	ctor.Define("NaN", Number(math.NaN()), constant)
	ctor.Define("NEGATIVE_INFINITY", Number(math.Inf(-1)), constant)
	ctor.Define("POSITIVE_INFINITY", Number(math.Inf(1)), constant)

	vm.method(proto, "toString", func(act *Activation, this *Object, args []Value) (Value, error) {
		if this.primitive.kind != KindNumber {
			return Undefined, nil
		}
		radix := 10
		if v := arg(args, 0); !v.IsUndefined() {
			r, err := act.toInt32(v)
			if err != nil {
				return Undefined, err
			}
			if r >= 2 && r <= 36 {
				radix = int(r)
			}
		}
		return String(coerce.FormatRadix(this.primitive.n, radix, coerce.FormatAVM1)), nil
	})
	vm.method(proto, "valueOf", func(_ *Activation, this *Object, _ []Value) (Value, error) {
		if this.primitive.kind != KindNumber {
			return Undefined, nil
		}
		return this.primitive, nil
	})
}

func (vm *VM) installBoolean() {
	proto := vm.NewObject()
	vm.protos.boolean = proto

	vm.newConstructor("Boolean", proto, func(act *Activation, _ *Object, args []Value) (Value, error) {
		if len(args) == 0 {
			return Undefined, nil
		}
		return Bool(act.ToBool(args[0])), nil
	}, func(act *Activation, this *Object, args []Value) (Value, error) {
		this.class = "Boolean"
		this.primitive = Bool(len(args) > 0 && act.ToBool(args[0]))
		return ObjectValue(this), nil
	})

	vm.method(proto, "toString", func(_ *Activation, this *Object, _ []Value) (Value, error) {
		if this.primitive.kind != KindBool {
			return Undefined, nil
		}
		if this.primitive.AsBool() {
			return String("true"), nil
		}
		return String("false"), nil
	})
	vm.method(proto, "valueOf", func(_ *Activation, this *Object, _ []Value) (Value, error) {
		if this.primitive.kind != KindBool {
			return Undefined, nil
		}
		return this.primitive, nil
	})
}

func (vm *VM) installMath() {
	m := vm.NewObject()
	m.class = "Math"
	vm.global.Define("Math", ObjectValue(m), DontEnum)

	const constant = DontEnum | DontDelete | ReadOnly
	for name, v := range map[string]float64{
		"E":       math.E,
		"LN10":    math.Ln10,
		"LN2":     math.Ln2,
		"LOG10E":  math.Log10E,
		"LOG2E":   math.Log2E,
		"PI":      math.Pi,
		"SQRT1_2": math.Sqrt2 / 2,
		"SQRT2":   math.Sqrt2,
	} {
		m.Define(name, Number(v), constant)
	}

	unary := map[string]func(float64) float64{
		"abs":   math.Abs,
		"acos":  math.Acos,
		"asin":  math.Asin,
		"atan":  math.Atan,
		"ceil":  math.Ceil,
		"cos":   math.Cos,
		"exp":   math.Exp,
		"floor": math.Floor,
		"log":   math.Log,
		"round": coerce.RoundHalfUp,
		"sin":   math.Sin,
		"sqrt":  math.Sqrt,
		"tan":   math.Tan,
	}
	for name, f := range unary {
		f := f
		vm.method(m, name, func(act *Activation, _ *Object, args []Value) (Value, error) {
			if len(args) == 0 {
				return Number(math.NaN()), nil
			}
			n, err := act.ToNumber(args[0])
			return Number(f(n)), err
		})
	}

	binary := map[string]func(a, b float64) float64{
		"atan2": math.Atan2,
		"pow":   math.Pow,
		"max":   mathMax,
		"min":   mathMin,
	}
	empty := map[string]float64{"max": math.Inf(-1), "min": math.Inf(1)}
	for name, f := range binary {
		f := f
		def, hasDef := empty[name]
		vm.method(m, name, func(act *Activation, _ *Object, args []Value) (Value, error) {
			if len(args) == 0 && hasDef {
				return Number(def), nil
			}
			a, err := act.ToNumber(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			b, err := act.ToNumber(arg(args, 1))
			if err != nil {
				return Undefined, err
			}
			return Number(f(a, b)), nil
		})
	}

	vm.method(m, "random", func(act *Activation, _ *Object, _ []Value) (Value, error) {
		return Number(act.vm.rand.Float64()), nil
	})
}

// mathMax and mathMin propagate NaN, unlike a plain comparison.
func mathMax(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	return math.Max(a, b)
}

func mathMin(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	return math.Min(a, b)
}
