package avm1

import (
	"math"
	"strings"
	"unicode/utf8"
)

// stringLength is the script-visible length of s, counted in characters.
func stringLength(s string) int { return utf8.RuneCountInString(s) }

func (vm *VM) installString() {
	proto := vm.NewObject()
	vm.protos.string = proto

	ctor := vm.newConstructor("String", proto, func(act *Activation, _ *Object, args []Value) (Value, error) {
		if len(args) == 0 {
			return String(""), nil
		}
		s, err := act.ToString(args[0])
		return String(s), err
	}, func(act *Activation, this *Object, args []Value) (Value, error) {
		s := ""
		if len(args) > 0 {
			var err error
			if s, err = act.ToString(args[0]); err != nil {
				return Undefined, err
			}
		}
		this.class = "String"
		this.primitive = String(s)
		this.props.insert("length", Number(float64(stringLength(s))), DontEnum|DontDelete|ReadOnly)
		return ObjectValue(this), nil
	})

	vm.method(ctor, "fromCharCode", func(act *Activation, _ *Object, args []Value) (Value, error) {
		var b strings.Builder
		for _, a := range args {
			n, err := act.ToNumber(a)
			if err != nil {
				return Undefined, err
			}
			c := toInt32(n) & 0xffff
			if c == 0 {
				break
			}
			b.WriteRune(rune(c))
		}
		return String(b.String()), nil
	})

	unbox := func(_ *Activation, this *Object, _ []Value) (Value, error) {
		if this.primitive.kind == KindString {
			return this.primitive, nil
		}
		return Undefined, nil
	}
	vm.method(proto, "toString", unbox)
	vm.method(proto, "valueOf", unbox)

	vm.stringMethod(proto, "charAt", func(act *Activation, s []rune, args []Value) (Value, error) {
		i, err := act.ToNumber(arg(args, 0))
		if err != nil || i < 0 || i >= float64(len(s)) || math.IsNaN(i) {
			return String(""), err
		}
		return String(string(s[int(i)])), nil
	})
	vm.stringMethod(proto, "charCodeAt", func(act *Activation, s []rune, args []Value) (Value, error) {
		i, err := act.ToNumber(arg(args, 0))
		if err != nil || i < 0 || i >= float64(len(s)) || math.IsNaN(i) {
			return Number(math.NaN()), err
		}
		return Number(float64(s[int(i)])), nil
	})
	vm.stringMethod(proto, "concat", func(act *Activation, s []rune, args []Value) (Value, error) {
		var b strings.Builder
		b.WriteString(string(s))
		for _, a := range args {
			t, err := act.ToString(a)
			if err != nil {
				return Undefined, err
			}
			b.WriteString(t)
		}
		return String(b.String()), nil
	})
	vm.stringMethod(proto, "indexOf", func(act *Activation, s []rune, args []Value) (Value, error) {
		needle, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		start := 0
		if v := arg(args, 1); !v.IsUndefined() {
			n, err := act.ToNumber(v)
			if err != nil {
				return Undefined, err
			}
			start = clampInt(int(toInt32(n)), 0, len(s))
		}
		return Number(float64(runeIndex(s, []rune(needle), start))), nil
	})
	vm.stringMethod(proto, "lastIndexOf", func(act *Activation, s []rune, args []Value) (Value, error) {
		needle, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		start := len(s)
		if v := arg(args, 1); !v.IsUndefined() {
			n, err := act.ToNumber(v)
			if err != nil {
				return Undefined, err
			}
			if n < 0 {
				return Number(-1), nil
			}
			start = clampInt(int(toInt32(n)), 0, len(s))
		}
		return Number(float64(runeLastIndex(s, []rune(needle), start))), nil
	})
	vm.stringMethod(proto, "slice", func(act *Activation, s []rune, args []Value) (Value, error) {
		start, err := relativeIndex(act, arg(args, 0), len(s), 0)
		if err != nil {
			return Undefined, err
		}
		end, err := relativeIndex(act, arg(args, 1), len(s), len(s))
		if err != nil || end <= start {
			return String(""), err
		}
		return String(string(s[start:end])), nil
	})
	vm.stringMethod(proto, "substr", func(act *Activation, s []rune, args []Value) (Value, error) {
		start, err := relativeIndex(act, arg(args, 0), len(s), 0)
		if err != nil {
			return Undefined, err
		}
		count := len(s) - start
		if v := arg(args, 1); !v.IsUndefined() {
			n, err := act.ToNumber(v)
			if err != nil {
				return Undefined, err
			}
			count = clampInt(int(toInt32(n)), 0, len(s)-start)
		}
		return String(string(s[start : start+count])), nil
	})
	vm.stringMethod(proto, "substring", func(act *Activation, s []rune, args []Value) (Value, error) {
		bound := func(v Value, def int) (int, error) {
			if v.IsUndefined() {
				return def, nil
			}
			n, err := act.ToNumber(v)
			return clampInt(int(toInt32(n)), 0, len(s)), err
		}
		start, err := bound(arg(args, 0), 0)
		if err != nil {
			return Undefined, err
		}
		end, err := bound(arg(args, 1), len(s))
		if err != nil {
			return Undefined, err
		}
		if end < start {
			start, end = end, start
		}
		return String(string(s[start:end])), nil
	})
	vm.stringMethod(proto, "split", func(act *Activation, s []rune, args []Value) (Value, error) {
		limit := math.MaxInt32
		if v := arg(args, 1); !v.IsUndefined() {
			n, err := act.ToNumber(v)
			if err != nil {
				return Undefined, err
			}
			limit = int(toInt32(n))
			if limit < 0 {
				limit = 0
			}
		}
		var parts []string
		delim := arg(args, 0)
		switch {
		case delim.IsUndefined():
			parts = []string{string(s)}
		default:
			d, err := act.ToString(delim)
			if err != nil {
				return Undefined, err
			}
			if d == "" {
				for _, r := range s {
					parts = append(parts, string(r))
				}
			} else {
				parts = strings.Split(string(s), d)
			}
		}
		if len(parts) > limit {
			parts = parts[:limit]
		}
		vs := make([]Value, len(parts))
		for i, p := range parts {
			vs[i] = String(p)
		}
		return ObjectValue(act.vm.NewArray(vs)), nil
	})
	vm.stringMethod(proto, "toUpperCase", func(_ *Activation, s []rune, _ []Value) (Value, error) {
		return String(strings.ToUpper(string(s))), nil
	})
	vm.stringMethod(proto, "toLowerCase", func(_ *Activation, s []rune, _ []Value) (Value, error) {
		return String(strings.ToLower(string(s))), nil
	})
}

// stringMethod installs a String.prototype method operating on the
// receiver's characters. Non-string receivers are converted first.
func (vm *VM) stringMethod(proto *Object, name string, fn func(act *Activation, s []rune, args []Value) (Value, error)) {
	vm.method(proto, name, func(act *Activation, this *Object, args []Value) (Value, error) {
		s := this.primitive.s
		if this.primitive.kind != KindString {
			var err error
			if s, err = act.ToString(ObjectValue(this)); err != nil {
				return Undefined, err
			}
		}
		return fn(act, []rune(s), args)
	})
}

func runeIndex(s, needle []rune, start int) int {
	for i := start; i+len(needle) <= len(s); i++ {
		if runesEqual(s[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func runeLastIndex(s, needle []rune, start int) int {
	if start+len(needle) > len(s) {
		start = len(s) - len(needle)
	}
	for i := start; i >= 0; i-- {
		if runesEqual(s[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
