package avm2

import (
	"slices"

	"github.com/chazu/avmcore/gc"
)

const (
	// maxDenseGap is the furthest past the dense part a store may land
	// before the array switches to sparse storage.
	maxDenseGap = 1024

	// maxArrayCopy bounds how many unstored elements an operation may
	// materialize. Past it the operation raises Error #1000.
	maxArrayCopy = 1 << 22

	maxArrayLength = 1<<32 - 1
)

// arrayData is the storage of an Array instance. Elements live in a dense
// slice until a store lands far past its end; from then on they live in a
// map. length is kept separately, so `length = n` and `new Array(n)` never
// allocate elements.
type arrayData struct {
	dense  []Value
	sparse map[uint32]Value
	keys   []uint32 // sorted sparse keys, nil when stale
	length uint32
}

func (a *arrayData) size() int { return int(a.length) }

func (a *arrayData) get(i int) Value {
	if a.sparse != nil {
		if v, ok := a.sparse[uint32(i)]; ok {
			return v
		}
		return Undefined
	}
	if i < 0 || i >= len(a.dense) {
		return Undefined
	}
	return a.dense[i]
}

// has reports whether element i is stored. Holes left by `length = n` are
// not.
func (a *arrayData) has(i int) bool {
	if a.sparse != nil {
		_, ok := a.sparse[uint32(i)]
		return ok
	}
	return i >= 0 && i < len(a.dense)
}

func (a *arrayData) set(i int, v Value) {
	switch {
	case a.sparse != nil:
		a.sparse[uint32(i)] = v
		a.keys = nil
	case i < len(a.dense):
		a.dense[i] = v
	case i-len(a.dense) <= maxDenseGap:
		for len(a.dense) < i {
			a.dense = append(a.dense, Undefined)
		}
		a.dense = append(a.dense, v)
	default:
		a.toSparse()
		a.sparse[uint32(i)] = v
	}
	if uint32(i) >= a.length {
		a.length = uint32(i) + 1
	}
}

func (a *arrayData) push(v Value) {
	if a.length < maxArrayLength {
		a.set(int(a.length), v)
	}
}

func (a *arrayData) delete(i int) {
	if a.sparse != nil {
		delete(a.sparse, uint32(i))
		a.keys = nil
		return
	}
	if i >= 0 && i < len(a.dense) {
		a.dense[i] = Undefined
	}
}

func (a *arrayData) setLength(n uint32) {
	if a.sparse != nil {
		for k := range a.sparse {
			if k >= n {
				delete(a.sparse, k)
			}
		}
		a.keys = nil
	} else if uint64(n) < uint64(len(a.dense)) {
		clear(a.dense[n:])
		a.dense = a.dense[:n]
	}
	a.length = n
}

func (a *arrayData) toSparse() {
	a.sparse = make(map[uint32]Value, len(a.dense))
	for i, v := range a.dense {
		a.sparse[uint32(i)] = v
	}
	a.dense = nil
	a.keys = nil
}

// replace makes vs the whole array, taking ownership of it.
func (a *arrayData) replace(vs []Value) {
	a.dense = vs
	a.sparse = nil
	a.keys = nil
	a.length = uint32(len(vs))
}

// slice returns a copy of elements [start, end), or false when that would
// materialize more than maxArrayCopy elements the array does not store.
func (a *arrayData) slice(start, end int) ([]Value, bool) {
	if end <= start {
		return nil, true
	}
	if a.sparse == nil && end <= len(a.dense) {
		return slices.Clone(a.dense[start:end]), true
	}
	if end-start > maxArrayCopy {
		return nil, false
	}
	out := make([]Value, end-start)
	if a.sparse == nil {
		copy(out, a.dense[min(start, len(a.dense)):])
		for i := max(len(a.dense), start) - start; i < len(out); i++ {
			out[i] = Undefined
		}
		return out, true
	}
	for i := range out {
		out[i] = Undefined
	}
	for k, v := range a.sparse {
		if int(k) >= start && int(k) < end {
			out[int(k)-start] = v
		}
	}
	return out, true
}

func (a *arrayData) values() ([]Value, bool) { return a.slice(0, a.size()) }

// count is the number of stored elements, which enumeration visits.
func (a *arrayData) count() int {
	if a.sparse != nil {
		return len(a.sparse)
	}
	return len(a.dense)
}

// at returns the index of the p-th stored element in ascending order.
func (a *arrayData) at(p int) int {
	if a.sparse == nil {
		return p
	}
	if a.keys == nil {
		a.keys = make([]uint32, 0, len(a.sparse))
		for k := range a.sparse {
			a.keys = append(a.keys, k)
		}
		slices.Sort(a.keys)
	}
	return int(a.keys[p])
}

func (a *arrayData) trace(t *gc.Tracer) {
	for _, v := range a.dense {
		markValue(t, v)
	}
	for _, v := range a.sparse {
		markValue(t, v)
	}
}

// arrayValues materializes a for an operation that needs every element.
func (vm *VM) arrayValues(a *arrayData) ([]Value, error) {
	vs, ok := a.values()
	if !ok {
		return nil, vm.outOfMemory()
	}
	return vs, nil
}

func (vm *VM) outOfMemory() error {
	return vm.throwError(KindError, 1000, "The system is out of memory.")
}
