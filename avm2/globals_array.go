package avm2

import (
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/chazu/avmcore/coerce"
)

// Array.sort option bits.
const (
	sortCaseInsensitive = 1 << iota
	sortDescending
	sortUniqueSort
	sortReturnIndexedArray
	sortNumeric
)

func (vm *VM) installArray() {
	c := vm.nativeClass("Array", vm.builtins.object, true)
	c.alloc = func(o *Object) { o.native = &arrayData{} }
	c.InstanceTraits = []Trait{
		vm.getterTrait("length", func(_ *Activation, this Value, _ []Value) (Value, error) {
			return Uint(this.o.array().length), nil
		}),
		vm.setterTrait("length", func(act *Activation, this Value, args []Value) (Value, error) {
			n, err := act.vm.ToNumber(act, arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			if n < 0 || n != math.Trunc(n) || n > math.MaxUint32 {
				return Undefined, act.vm.throwError(KindRangeError, 1005, "Array index is not a positive integer (%s).", coerce.FormatNumber(n))
			}
			this.o.array().setLength(uint32(n))
			return Undefined, nil
		}),
	}
	c.InstanceInit = initWith("Array", func(act *Activation, this *Object, args []Value) error {
		a := this.array()
		if len(args) == 1 && args[0].IsNumeric() {
			n := args[0].n
			if n < 0 || n != math.Trunc(n) || n > math.MaxUint32 {
				return act.vm.throwError(KindRangeError, 1005, "Array index is not a positive integer (%s).", coerce.FormatNumber(n))
			}
			a.setLength(uint32(n))
			return nil
		}
		a.replace(slices.Clone(args))
		this.barrier()
		return nil
	})
	c.call = func(act *Activation, _ Value, args []Value) (Value, error) {
		return act.vm.construct(act, c, args)
	}
	for name, v := range map[string]int{
		"CASEINSENSITIVE":    sortCaseInsensitive,
		"DESCENDING":         sortDescending,
		"UNIQUESORT":         sortUniqueSort,
		"RETURNINDEXEDARRAY": sortReturnIndexedArray,
		"NUMERIC":            sortNumeric,
	} {
		c.ClassTraits = append(c.ClassTraits, vm.constTrait(name, Uint(uint32(v))))
	}
	vm.builtins.array = vm.mustDefine(c)

	p := c.prototype
	vm.method(p, "push", func(act *Activation, this Value, args []Value) (Value, error) {
		a := thisArray(this)
		if a == nil {
			return Undefined, nil
		}
		for _, v := range args {
			a.push(v)
		}
		this.o.barrier()
		return Uint(a.length), nil
	})
	vm.method(p, "pop", func(_ *Activation, this Value, _ []Value) (Value, error) {
		a := thisArray(this)
		if a == nil || a.length == 0 {
			return Undefined, nil
		}
		v := a.get(a.size() - 1)
		a.setLength(a.length - 1)
		return v, nil
	})
	vm.method(p, "shift", func(act *Activation, this Value, _ []Value) (Value, error) {
		a := thisArray(this)
		if a == nil || a.length == 0 {
			return Undefined, nil
		}
		vs, err := act.vm.arrayValues(a)
		if err != nil {
			return Undefined, err
		}
		a.replace(vs[1:])
		return vs[0], nil
	})
	vm.method(p, "unshift", func(act *Activation, this Value, args []Value) (Value, error) {
		a := thisArray(this)
		if a == nil {
			return Undefined, nil
		}
		vs, err := act.vm.arrayValues(a)
		if err != nil {
			return Undefined, err
		}
		a.replace(append(slices.Clone(args), vs...))
		this.o.barrier()
		return Uint(a.length), nil
	})
	join := func(act *Activation, this Value, args []Value) (Value, error) {
		a := thisArray(this)
		if a == nil {
			return String(""), nil
		}
		sep := ","
		if s := arg(args, 0); !s.IsUndefined() {
			var err error
			if sep, err = act.vm.ToString(act, s); err != nil {
				return Undefined, err
			}
		}
		vs, err := act.vm.arrayValues(a)
		if err != nil {
			return Undefined, err
		}
		parts := make([]string, len(vs))
		for i, v := range vs {
			if v.IsNullish() {
				continue
			}
			s, err := act.vm.ToString(act, v)
			if err != nil {
				return Undefined, err
			}
			parts[i] = s
		}
		return String(strings.Join(parts, sep)), nil
	}
	vm.method(p, "join", join)
	vm.method(p, "toString", func(act *Activation, this Value, _ []Value) (Value, error) {
		return join(act, this, nil)
	})
	vm.method(p, "slice", func(act *Activation, this Value, args []Value) (Value, error) {
		a := thisArray(this)
		if a == nil {
			return ObjectValue(act.vm.NewArray(nil)), nil
		}
		n := a.size()
		start, err := relativeIndex(act, arg(args, 0), n, 0)
		if err != nil {
			return Undefined, err
		}
		end, err := relativeIndex(act, arg(args, 1), n, n)
		if err != nil {
			return Undefined, err
		}
		vs, ok := a.slice(start, end)
		if !ok {
			return Undefined, act.vm.outOfMemory()
		}
		return ObjectValue(act.vm.NewArray(vs)), nil
	})
	vm.method(p, "splice", func(act *Activation, this Value, args []Value) (Value, error) {
		a := thisArray(this)
		if a == nil || len(args) == 0 {
			return ObjectValue(act.vm.NewArray(nil)), nil
		}
		vs, err := act.vm.arrayValues(a)
		if err != nil {
			return Undefined, err
		}
		n := len(vs)
		start, err := relativeIndex(act, args[0], n, 0)
		if err != nil {
			return Undefined, err
		}
		count := n - start
		if len(args) > 1 {
			f, err := act.vm.ToNumber(act, args[1])
			if err != nil {
				return Undefined, err
			}
			count = clampInt(coerce.ToInteger(f), 0, float64(n-start))
		}
		removed := slices.Clone(vs[start : start+count])
		var insert []Value
		if len(args) > 2 {
			insert = args[2:]
		}
		a.replace(slices.Concat(vs[:start], insert, vs[start+count:]))
		this.o.barrier()
		return ObjectValue(act.vm.NewArray(removed)), nil
	})
	vm.method(p, "concat", func(act *Activation, this Value, args []Value) (Value, error) {
		var out []Value
		if a := thisArray(this); a != nil {
			vs, err := act.vm.arrayValues(a)
			if err != nil {
				return Undefined, err
			}
			out = append(out, vs...)
		}
		for _, v := range args {
			if v.o != nil && v.o.array() != nil {
				vs, err := act.vm.arrayValues(v.o.array())
				if err != nil {
					return Undefined, err
				}
				out = append(out, vs...)
				continue
			}
			out = append(out, v)
		}
		if len(out) > maxArrayLength {
			return Undefined, act.vm.outOfMemory()
		}
		return ObjectValue(act.vm.NewArray(out)), nil
	})
	vm.method(p, "reverse", func(act *Activation, this Value, _ []Value) (Value, error) {
		if a := thisArray(this); a != nil {
			vs, err := act.vm.arrayValues(a)
			if err != nil {
				return Undefined, err
			}
			slices.Reverse(vs)
			a.replace(vs)
		}
		return this, nil
	})
	vm.method(p, "indexOf", func(act *Activation, this Value, args []Value) (Value, error) {
		a := thisArray(this)
		if a == nil {
			return Int(-1), nil
		}
		vs, err := act.vm.arrayValues(a)
		if err != nil {
			return Undefined, err
		}
		from, err := relativeIndex(act, arg(args, 1), len(vs), 0)
		if err != nil {
			return Undefined, err
		}
		for i := from; i < len(vs); i++ {
			if StrictEquals(vs[i], arg(args, 0)) {
				return Int(int32(i)), nil
			}
		}
		return Int(-1), nil
	})
	vm.method(p, "lastIndexOf", func(act *Activation, this Value, args []Value) (Value, error) {
		a := thisArray(this)
		if a == nil {
			return Int(-1), nil
		}
		vs, err := act.vm.arrayValues(a)
		if err != nil {
			return Undefined, err
		}
		for i := len(vs) - 1; i >= 0; i-- {
			if StrictEquals(vs[i], arg(args, 0)) {
				return Int(int32(i)), nil
			}
		}
		return Int(-1), nil
	})
	vm.method(p, "sort", arraySort)
}

func thisArray(this Value) *arrayData {
	if this.o == nil {
		return nil
	}
	return this.o.array()
}

func clampInt(f, lo, hi float64) int {
	return int(math.Max(lo, math.Min(hi, f)))
}

// relativeIndex converts a start/end argument: negative values count from
// the end and the result is clamped to [0, n].
func relativeIndex(act *Activation, v Value, n, def int) (int, error) {
	if v.IsUndefined() {
		return def, nil
	}
	f, err := act.vm.ToNumber(act, v)
	if err != nil {
		return 0, err
	}
	f = coerce.ToInteger(f)
	if f < 0 {
		f += float64(n)
	}
	return clampInt(f, 0, float64(n)), nil
}

// arraySort implements sort([compareFunction], [options]). Undefined
// values sort after everything else.
func arraySort(act *Activation, this Value, args []Value) (Value, error) {
	a := thisArray(this)
	if a == nil {
		return this, nil
	}
	elems, err := act.vm.arrayValues(a)
	if err != nil {
		return Undefined, err
	}
	var compare Value
	opts := 0
	for _, v := range args {
		switch {
		case v.o != nil && v.o.IsCallable():
			compare = v
		case v.IsNumeric():
			opts = int(coerce.ToInt32(v.n))
		}
	}

	var sortErr error
	less := func(x, y Value) bool {
		if sortErr != nil {
			return false
		}
		if x.IsUndefined() || y.IsUndefined() {
			return y.IsUndefined() && !x.IsUndefined()
		}
		var c float64
		if compare.o != nil {
			r, err := act.vm.callValue(act, compare, Null, []Value{x, y})
			if err != nil {
				sortErr = err
				return false
			}
			if c, err = act.vm.ToNumber(act, r); err != nil {
				sortErr = err
				return false
			}
		} else {
			c, sortErr = compareDefault(act, x, y, opts)
		}
		if opts&sortDescending != 0 {
			c = -c
		}
		return c < 0
	}

	indices := make([]int, len(elems))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return less(elems[indices[i]], elems[indices[j]])
	})
	if sortErr != nil {
		return Undefined, sortErr
	}
	if opts&sortUniqueSort != 0 {
		for i := 1; i < len(indices); i++ {
			x, y := elems[indices[i-1]], elems[indices[i]]
			if !less(x, y) && !less(y, x) {
				return Int(0), sortErr
			}
		}
	}
	if opts&sortReturnIndexedArray != 0 {
		out := make([]Value, len(indices))
		for i, idx := range indices {
			out[i] = Int(int32(idx))
		}
		return ObjectValue(act.vm.NewArray(out)), nil
	}
	sorted := make([]Value, len(indices))
	for i, idx := range indices {
		sorted[i] = elems[idx]
	}
	a.replace(sorted)
	return this, nil
}

func compareDefault(act *Activation, x, y Value, opts int) (float64, error) {
	if opts&sortNumeric != 0 && x.IsNumeric() && y.IsNumeric() {
		switch {
		case x.n < y.n:
			return -1, nil
		case x.n > y.n:
			return 1, nil
		}
		return 0, nil
	}
	xs, err := act.vm.ToString(act, x)
	if err != nil {
		return 0, err
	}
	ys, err := act.vm.ToString(act, y)
	if err != nil {
		return 0, err
	}
	if opts&sortCaseInsensitive != 0 {
		xs, ys = strings.ToLower(xs), strings.ToLower(ys)
	}
	return float64(coerce.CompareUTF16(xs, ys)), nil
}
