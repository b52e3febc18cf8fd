package avm1

import (
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
	proto := vm.NewObject()
	vm.protos.array = proto

	ctor := vm.newConstructor("Array", proto, func(act *Activation, _ *Object, args []Value) (Value, error) {
		return ObjectValue(act.vm.NewArray(arrayArgs(act, args))), nil
	}, func(act *Activation, this *Object, args []Value) (Value, error) {
		this.class = "Array"
		this.array = true
		this.props.insert("length", Number(0), DontEnum|DontDelete)
		this.replaceElements(act, arrayArgs(act, args))
		return ObjectValue(this), nil
	})
	for name, bit := range map[string]int{
		"CASEINSENSITIVE":    sortCaseInsensitive,
		"DESCENDING":         sortDescending,
		"UNIQUESORT":         sortUniqueSort,
		"RETURNINDEXEDARRAY": sortReturnIndexedArray,
		"NUMERIC":            sortNumeric,
	} {
		ctor.Define(name, Number(float64(bit)), DontEnum|DontDelete|ReadOnly)
	}

	vm.method(proto, "push", func(act *Activation, this *Object, args []Value) (Value, error) {
		elems, err := this.Elements(act)
		if err != nil {
			return Undefined, err
		}
		elems = append(elems, args...)
		this.replaceElements(act, elems)
		return Number(float64(len(elems))), nil
	})
	vm.method(proto, "pop", func(act *Activation, this *Object, _ []Value) (Value, error) {
		elems, err := this.Elements(act)
		if err != nil || len(elems) == 0 {
			return Undefined, err
		}
		last := elems[len(elems)-1]
		this.replaceElements(act, elems[:len(elems)-1])
		return last, nil
	})
	vm.method(proto, "shift", func(act *Activation, this *Object, _ []Value) (Value, error) {
		elems, err := this.Elements(act)
		if err != nil || len(elems) == 0 {
			return Undefined, err
		}
		this.replaceElements(act, elems[1:])
		return elems[0], nil
	})
	vm.method(proto, "unshift", func(act *Activation, this *Object, args []Value) (Value, error) {
		elems, err := this.Elements(act)
		if err != nil {
			return Undefined, err
		}
		elems = append(append([]Value(nil), args...), elems...)
		this.replaceElements(act, elems)
		return Number(float64(len(elems))), nil
	})
	vm.method(proto, "join", func(act *Activation, this *Object, args []Value) (Value, error) {
		sep := ","
		if v := arg(args, 0); !v.IsUndefined() {
			var err error
			if sep, err = act.ToString(v); err != nil {
				return Undefined, err
			}
		}
		s, err := joinElements(act, this, sep)
		return String(s), err
	})
	vm.method(proto, "toString", func(act *Activation, this *Object, _ []Value) (Value, error) {
		s, err := joinElements(act, this, ",")
		return String(s), err
	})
	vm.method(proto, "reverse", func(act *Activation, this *Object, _ []Value) (Value, error) {
		elems, err := this.Elements(act)
		if err != nil {
			return Undefined, err
		}
		for i, j := 0, len(elems)-1; i < j; i, j = i+1, j-1 {
			elems[i], elems[j] = elems[j], elems[i]
		}
		this.replaceElements(act, elems)
		return ObjectValue(this), nil
	})
	vm.method(proto, "concat", func(act *Activation, this *Object, args []Value) (Value, error) {
		elems, err := this.Elements(act)
		if err != nil {
			return Undefined, err
		}
		for _, a := range args {
			if a.o != nil && a.o.array {
				more, err := a.o.Elements(act)
				if err != nil {
					return Undefined, err
				}
				elems = append(elems, more...)
				continue
			}
			elems = append(elems, a)
		}
		return ObjectValue(act.vm.NewArray(elems)), nil
	})
	vm.method(proto, "slice", func(act *Activation, this *Object, args []Value) (Value, error) {
		elems, err := this.Elements(act)
		if err != nil {
			return Undefined, err
		}
		start, err := relativeIndex(act, arg(args, 0), len(elems), 0)
		if err != nil {
			return Undefined, err
		}
		end, err := relativeIndex(act, arg(args, 1), len(elems), len(elems))
		if err != nil {
			return Undefined, err
		}
		if end < start {
			end = start
		}
		return ObjectValue(act.vm.NewArray(append([]Value(nil), elems[start:end]...))), nil
	})
	vm.method(proto, "splice", func(act *Activation, this *Object, args []Value) (Value, error) {
		if len(args) == 0 {
			return Undefined, nil
		}
		elems, err := this.Elements(act)
		if err != nil {
			return Undefined, err
		}
		start, err := relativeIndex(act, args[0], len(elems), 0)
		if err != nil {
			return Undefined, err
		}
		count := len(elems) - start
		if len(args) > 1 {
			n, err := act.ToNumber(args[1])
			if err != nil {
				return Undefined, err
			}
			count = clampInt(int(toInt32(n)), 0, len(elems)-start)
		}
		var inserted []Value
		if len(args) > 2 {
			inserted = args[2:]
		}
		removed := append([]Value(nil), elems[start:start+count]...)
		out := make([]Value, 0, len(elems)-count+len(inserted))
		out = append(out, elems[:start]...)
		out = append(out, inserted...)
		out = append(out, elems[start+count:]...)
		this.replaceElements(act, out)
		return ObjectValue(act.vm.NewArray(removed)), nil
	})
	vm.method(proto, "sort", arraySort)
}

// arrayArgs interprets constructor arguments: a single number is a length,
// anything else is the element list.
func arrayArgs(act *Activation, args []Value) []Value {
	if len(args) == 1 && args[0].kind == KindNumber {
		n := int(toInt32(args[0].n))
		if n < 0 {
			n = 0
		}
		return make([]Value, n)
	}
	return append([]Value(nil), args...)
}

func joinElements(act *Activation, o *Object, sep string) (string, error) {
	elems, err := o.Elements(act)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		if parts[i], err = act.ToString(e); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, sep), nil
}

// relativeIndex converts a slice/splice bound; negative values count from
// the end. Undefined yields def.
func relativeIndex(act *Activation, v Value, length, def int) (int, error) {
	if v.IsUndefined() {
		return def, nil
	}
	n, err := act.ToNumber(v)
	if err != nil {
		return 0, err
	}
	i := int(toInt32(n))
	if i < 0 {
		i += length
	}
	return clampInt(i, 0, length), nil
}

func clampInt(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

// arraySort implements sort([compareFunction], [options]). Undefined
// values sort after everything else.
func arraySort(act *Activation, this *Object, args []Value) (Value, error) {
	elems, err := this.Elements(act)
	if err != nil {
		return Undefined, err
	}
	var compare *Object
	opts := 0
	for _, a := range args {
		switch {
		case a.o != nil && a.o.fn != nil:
			compare = a.o
		case a.kind == KindNumber:
			opts = int(toInt32(a.n))
		}
	}

	var sortErr error
	less := func(a, b Value) bool {
		if sortErr != nil {
			return false
		}
		if a.kind == KindUndefined || b.kind == KindUndefined {
			return b.kind == KindUndefined && a.kind != KindUndefined
		}
		var c float64
		if compare != nil {
			r, err := compare.Call(act, Undefined, []Value{a, b})
			if err != nil {
				sortErr = err
				return false
			}
			if c, err = act.ToNumber(r); err != nil {
				sortErr = err
				return false
			}
		} else {
			c, sortErr = compareDefault(act, a, b, opts)
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
			a, b := elems[indices[i-1]], elems[indices[i]]
			if !less(a, b) && !less(b, a) {
				return Number(0), sortErr
			}
		}
	}
	if opts&sortReturnIndexedArray != 0 {
		out := make([]Value, len(indices))
		for i, idx := range indices {
			out[i] = Number(float64(idx))
		}
		return ObjectValue(act.vm.NewArray(out)), nil
	}
	sorted := make([]Value, len(indices))
	for i, idx := range indices {
		sorted[i] = elems[idx]
	}
	this.replaceElements(act, sorted)
	return ObjectValue(this), nil
}

func compareDefault(act *Activation, a, b Value, opts int) (float64, error) {
	if opts&sortNumeric != 0 && a.kind == KindNumber && b.kind == KindNumber {
		switch {
		case a.n < b.n:
			return -1, nil
		case a.n > b.n:
			return 1, nil
		}
		return 0, nil
	}
	as, err := act.ToString(a)
	if err != nil {
		return 0, err
	}
	bs, err := act.ToString(b)
	if err != nil {
		return 0, err
	}
	if opts&sortCaseInsensitive != 0 {
		as, bs = strings.ToLower(as), strings.ToLower(bs)
	}
	return float64(coerce.CompareUTF16(as, bs)), nil
}
