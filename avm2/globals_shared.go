package avm2

import (
	"maps"
	"slices"

	"github.com/chazu/avmcore/backend"
)

// flashNet is the package holding SharedObject.
const flashNet = "flash.net"

// packageName is a QName in the given package namespace.
func (vm *VM) packageName(pkg, local string) QName {
	return QName{NS: NewNamespace(NSPackage, vm.atoms.Intern(pkg)), Local: vm.atoms.Intern(local)}
}

func (vm *VM) installSharedObject() {
	c := NewClass(vm.packageName(flashNet, "SharedObject"), vm.builtins.object)
	c.Sealed = true
	c.InstanceTraits = []Trait{
		SlotTrait(vm.publicName("data"), nil),
		vm.methodTrait("flush", func(act *Activation, this Value, _ []Value) (Value, error) {
			so := this.o
			name, ok := so.native.(string)
			if !ok {
				return Bool(false), nil
			}
			fields := map[string]backend.SharedValue{}
			if data := so.slotNamed("data"); data.o != nil {
				fields = toSharedFields(data.o, map[*Object]bool{})
			}
			if err := act.vm.shared.Flush(name, fields); err != nil {
				log.Warningf("SharedObject %q flush failed: %s", name, err)
				return Bool(false), nil
			}
			return Bool(true), nil
		}),
		vm.methodTrait("clear", func(act *Activation, this Value, _ []Value) (Value, error) {
			so := this.o
			name, ok := so.native.(string)
			if !ok {
				return Undefined, nil
			}
			if err := act.vm.shared.Clear(name); err != nil {
				log.Warningf("SharedObject %q clear failed: %s", name, err)
			}
			so.setSlotNamed("data", ObjectValue(act.vm.NewObject()))
			return Undefined, nil
		}),
		vm.getterTrait("size", func(_ *Activation, this Value, _ []Value) (Value, error) {
			data := this.o.slotNamed("data")
			if data.o == nil {
				return Uint(0), nil
			}
			b, err := backend.MarshalShared(toSharedFields(data.o, map[*Object]bool{}))
			if err != nil {
				return Uint(0), nil
			}
			return Uint(uint32(len(b))), nil
		}),
	}
	c.ClassTraits = []Trait{
		vm.methodTrait("getLocal", func(act *Activation, _ Value, args []Value) (Value, error) {
			name, err := act.vm.ToString(act, arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			if name == "" {
				return Undefined, act.vm.throwError(KindArgumentError, 2004, "One of the parameters is invalid.")
			}
			so, err := act.vm.sharedObject(name)
			if err != nil {
				log.Warningf("SharedObject.getLocal(%q): %s", name, err)
				return Null, nil
			}
			return ObjectValue(so), nil
		}),
	}
	vm.builtins.sharedObject = vm.mustDefine(c)
}

// sharedObject returns the cached SharedObject for name, loading its data
// from storage the first time.
func (vm *VM) sharedObject(name string) (*Object, error) {
	if so, ok := vm.sharedCache[name]; ok {
		return so, nil
	}
	fields, err := vm.shared.Load(name)
	if err != nil {
		return nil, err
	}
	so := vm.allocInstance(vm.builtins.sharedObject)
	so.native = name
	data := vm.NewObject()
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		data.SetDynamic(k, vm.fromShared(fields[k]))
	}
	so.setSlotNamed("data", ObjectValue(data))
	vm.sharedCache[name] = so
	return so, nil
}

// toSharedFields converts the enumerable dynamic properties of o. Callables
// are skipped and an object already on the path is stored as undefined.
func toSharedFields(o *Object, path map[*Object]bool) map[string]backend.SharedValue {
	path[o] = true
	defer delete(path, o)
	fields := make(map[string]backend.SharedValue)
	for _, k := range o.DynamicKeys() {
		v, _ := o.dynamic.get(k)
		if v.o != nil && v.o.IsCallable() {
			continue
		}
		fields[k] = toShared(v, path)
	}
	return fields
}

func toShared(v Value, path map[*Object]bool) backend.SharedValue {
	switch v.kind {
	case KindUndefined:
		return backend.SharedValue{Kind: backend.SharedUndefined}
	case KindNull:
		return backend.SharedValue{Kind: backend.SharedNull}
	case KindBool:
		return backend.SharedValue{Kind: backend.SharedBool, Bool: v.AsBool()}
	case KindInt, KindUint, KindNumber:
		return backend.SharedValue{Kind: backend.SharedNumber, Number: v.n}
	case KindString:
		return backend.SharedValue{Kind: backend.SharedString, String: v.s}
	}
	if path[v.o] {
		return backend.SharedValue{Kind: backend.SharedUndefined}
	}
	if a := v.o.array(); a != nil {
		path[v.o] = true
		defer delete(path, v.o)
		elems, _ := a.values()
		items := make([]backend.SharedValue, len(elems))
		for i, e := range elems {
			items[i] = toShared(e, path)
		}
		return backend.SharedValue{Kind: backend.SharedArray, Items: items}
	}
	return backend.SharedValue{Kind: backend.SharedObject, Fields: toSharedFields(v.o, path)}
}

func (vm *VM) fromShared(sv backend.SharedValue) Value {
	switch sv.Kind {
	case backend.SharedNull:
		return Null
	case backend.SharedBool:
		return Bool(sv.Bool)
	case backend.SharedNumber:
		return numberValue(sv.Number)
	case backend.SharedString:
		return String(sv.String)
	case backend.SharedArray:
		vs := make([]Value, len(sv.Items))
		for i, item := range sv.Items {
			vs[i] = vm.fromShared(item)
		}
		return ObjectValue(vm.NewArray(vs))
	case backend.SharedObject:
		o := vm.NewObject()
		for _, k := range slices.Sorted(maps.Keys(sv.Fields)) {
			o.SetDynamic(k, vm.fromShared(sv.Fields[k]))
		}
		return ObjectValue(o)
	}
	return Undefined
}
