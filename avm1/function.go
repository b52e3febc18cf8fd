package avm1

import "github.com/chazu/avmcore/gc"

// NativeFunc implements a built-in function. this is never nil: primitive
// receivers are boxed before the call.
type NativeFunc func(act *Activation, this *Object, args []Value) (Value, error)

// FunctionFlags are the DefineFunction2 preload and suppress bits.
type FunctionFlags uint16

const (
	PreloadThis FunctionFlags = 1 << iota
	SuppressThis
	PreloadArguments
	SuppressArguments
	PreloadSuper
	SuppressSuper
	PreloadRoot
	PreloadParent
	PreloadGlobal
)

// Param is a declared parameter. Register 0 means the parameter is a local
// variable; otherwise it is stored in that register.
type Param struct {
	Name     string
	Register uint8
}

// Function is the executable part of a function object: either a native
// Go function or a bytecode body with its defining scope.
type Function struct {
	name string

	native    NativeFunc
	construct NativeFunc

	code          []byte
	version       uint8
	params        []Param
	registerCount uint8
	flags         FunctionFlags
	v2            bool
	scope         *Scope
	pool          []string
	target        *Object
}

// Name returns the declared function name, which may be empty.
func (f *Function) Name() string { return f.name }

// IsNative reports whether f is implemented in Go.
func (f *Function) IsNative() bool { return f.native != nil }

func (f *Function) trace(t *gc.Tracer) {
	f.scope.trace(t)
	if f.target != nil {
		t.Mark(f.target)
	}
}

// exec runs the function. depth is how far up this's prototype chain the
// function was found, which positions the super object.
func (f *Function) exec(act *Activation, name string, this Value, depth int, args []Value, callee *Object) (Value, error) {
	vm := act.vm
	if f.native != nil {
		return f.native(act, act.ToObject(this), args)
	}
	if vm.callDepth >= vm.maxCallDepth {
		return Undefined, ErrStackOverflow
	}

	thisObj := this.o
	if thisObj == nil {
		thisObj = vm.global
	}
	target := act.target
	if f.target != nil && f.version >= 6 {
		target = f.target
	}

	parent := f.scope
	if f.version < 6 || parent == nil {
		parent = NewScope(ScopeTarget, target, vm.globalScope)
	}
	locals := vm.alloc(&Object{vm: vm})
	scope := NewScope(ScopeLocal, locals, parent)

	frame := vm.newActivation(f.code, f.version, scope, ObjectValue(thisObj), target)
	frame.name = name
	frame.pool = f.pool
	frame.callee = callee
	frame.caller = act.callee
	if f.v2 && f.registerCount > 0 {
		frame.registers = make([]Value, f.registerCount)
	}
	if f.flags&(PreloadThis|SuppressThis) == PreloadThis|SuppressThis {
		frame.this = act.this
	}

	if err := f.preload(act, frame, thisObj, depth, args, callee); err != nil {
		return Undefined, err
	}
	for i, p := range f.params {
		v := Undefined
		if i < len(args) {
			v = args[i]
		}
		if p.Register != 0 {
			if err := frame.setRegister(int(p.Register), v); err != nil {
				return Undefined, err
			}
			continue
		}
		locals.Define(p.Name, v, 0)
	}

	vm.callDepth++
	defer func() { vm.callDepth-- }()
	return frame.run()
}

func (f *Function) preload(act *Activation, frame *Activation, this *Object, depth int, args []Value, callee *Object) error {
	vm := act.vm
	r := 1
	load := func(v Value) error {
		err := frame.setRegister(r, v)
		r++
		return err
	}

	if f.flags&PreloadThis != 0 {
		if err := load(ObjectValue(this)); err != nil {
			return err
		}
	}

	if f.flags&(PreloadArguments|SuppressArguments) != SuppressArguments {
		arguments := vm.NewArray(args)
		arguments.Define("callee", ObjectValue(callee), DontEnum)
		caller := Null
		if act.callee != nil {
			caller = ObjectValue(act.callee)
		}
		arguments.Define("caller", caller, DontEnum)
		if f.flags&PreloadArguments != 0 {
			if err := load(ObjectValue(arguments)); err != nil {
				return err
			}
		} else {
			frame.scope.forceDefine("arguments", ObjectValue(arguments))
		}
	}

	if f.flags&(PreloadSuper|SuppressSuper) != SuppressSuper {
		super := vm.alloc(&Object{vm: vm, class: "super", super: &superInfo{this: this, depth: depth}})
		if f.flags&PreloadSuper != 0 {
			if err := load(ObjectValue(super)); err != nil {
				return err
			}
		} else {
			frame.scope.forceDefine("super", ObjectValue(super))
		}
	}

	if f.flags&PreloadRoot != 0 {
		if err := load(ObjectValue(vm.root)); err != nil {
			return err
		}
	}
	if f.flags&PreloadParent != 0 {
		if err := load(vm.display.Parent(frame.target)); err != nil {
			return err
		}
	}
	if f.flags&PreloadGlobal != 0 {
		if err := load(ObjectValue(vm.global)); err != nil {
			return err
		}
	}
	return nil
}
