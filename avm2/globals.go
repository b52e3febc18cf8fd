package avm2

import (
	"math"
	"strings"

	"github.com/chazu/avmcore/coerce"
)

// ---------------------------------------------------------------------------
// Native class helpers
// ---------------------------------------------------------------------------

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

func (vm *VM) nativeClass(name string, super *Class, dynamic bool) *Class {
	c := NewClass(vm.publicName(name), super)
	c.Sealed = !dynamic
	return c
}

func (vm *VM) methodTrait(name string, fn NativeMethod) Trait {
	return MethodTrait(vm.publicName(name), NewNativeMethod(name, fn))
}

func (vm *VM) getterTrait(name string, fn NativeMethod) Trait {
	return GetterTrait(vm.publicName(name), NewNativeMethod("get "+name, fn))
}

func (vm *VM) setterTrait(name string, fn NativeMethod) Trait {
	return SetterTrait(vm.publicName(name), NewNativeMethod("set "+name, fn))
}

func (vm *VM) constTrait(name string, v Value) Trait {
	return ConstTrait(vm.publicName(name), nil, v)
}

// method installs a hidden native function on a prototype.
func (vm *VM) method(proto *Object, name string, fn NativeMethod) {
	proto.setHidden(name, ObjectValue(vm.NewFunction(name, fn)))
}

// mustDefine defines a built-in class. Built-in definitions are static,
// so failure is a programming error.
func (vm *VM) mustDefine(c *Class) *Class {
	if err := vm.DefineClass(c); err != nil {
		panic("avm2: defining " + c.Name.String() + ": " + err.Error())
	}
	return c
}

// initWith wraps a native instance initializer so that it runs after the
// superclass initializers.
func initWith(name string, fn func(act *Activation, this *Object, args []Value) error) *Method {
	return NewNativeMethod(name, func(act *Activation, this Value, args []Value) (Value, error) {
		if err := act.SuperInit(nil); err != nil {
			return Undefined, err
		}
		return Undefined, fn(act, this.o, args)
	})
}

// ---------------------------------------------------------------------------
// Bootstrap
// ---------------------------------------------------------------------------

func (vm *VM) installGlobals() {
	b := &vm.builtins
	b.object = vm.nativeClass("Object", nil, true)
	b.object.call = func(act *Activation, _ Value, args []Value) (Value, error) {
		if v := arg(args, 0); !v.IsNullish() {
			return v, nil
		}
		return ObjectValue(act.vm.NewObject()), nil
	}
	b.class = vm.nativeClass("Class", b.object, false)
	b.class.noNew = true
	b.function = vm.nativeClass("Function", b.object, true)
	b.function.InstanceTraits = []Trait{
		vm.getterTrait("length", func(_ *Activation, this Value, _ []Value) (Value, error) {
			if cl, ok := this.o.native.(*Closure); ok {
				return Int(int32(len(cl.method.Params))), nil
			}
			return Int(0), nil
		}),
	}
	b.global = vm.nativeClass("global", b.object, true)
	for _, c := range []*Class{b.object, b.class, b.function, b.global} {
		if err := c.Link(); err != nil {
			panic("avm2: linking " + c.Name.String() + ": " + err.Error())
		}
	}

	vm.global = vm.alloc(&Object{class: b.global, vt: b.global.vt, dynamic: newDynamicMap()})
	vm.globalScope = &ScopeChain{entries: []scopeEntry{{obj: vm.global}}}

	root := vm.rootActivation()
	for _, c := range []*Class{b.object, b.class, b.function} {
		c.scope = vm.globalScope
		obj, err := vm.createClassObject(root, c)
		if err != nil {
			panic("avm2: " + err.Error())
		}
		vm.register(c)
		if err := vm.defineGlobal(c.Name, ObjectValue(obj)); err != nil {
			panic("avm2: " + err.Error())
		}
	}
	b.object.object.proto = b.class.prototype
	vm.global.proto = b.object.prototype

	vm.installObjectPrototype()
	vm.installFunctionPrototype()
	vm.installErrors()
	vm.installArray()
	vm.installString()
	vm.installNumbers()
	vm.installMath()
	vm.installRegExp()
	vm.installSharedObject()
	vm.installGlobalFunctions()
}

func (vm *VM) installObjectPrototype() {
	p := vm.builtins.object.prototype
	vm.method(p, "hasOwnProperty", func(act *Activation, this Value, args []Value) (Value, error) {
		name, err := act.vm.ToString(act, arg(args, 0))
		if err != nil || this.o == nil {
			return Bool(false), err
		}
		return Bool(this.o.hasOwn(name)), nil
	})
	vm.method(p, "propertyIsEnumerable", func(act *Activation, this Value, args []Value) (Value, error) {
		name, err := act.vm.ToString(act, arg(args, 0))
		if err != nil || this.o == nil {
			return Bool(false), err
		}
		o := this.o
		if a := o.array(); a != nil {
			if i, ok := arrayIndex(name); ok {
				return Bool(a.has(i)), nil
			}
		}
		return Bool(o.dynamic != nil && o.dynamic.enumerable(name)), nil
	})
	vm.method(p, "setPropertyIsEnumerable", func(act *Activation, this Value, args []Value) (Value, error) {
		name, err := act.vm.ToString(act, arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		if this.o != nil && this.o.dynamic != nil {
			this.o.dynamic.setEnumerable(name, ToBoolean(arg(args, 1)))
		}
		return Undefined, nil
	})
	vm.method(p, "isPrototypeOf", func(_ *Activation, this Value, args []Value) (Value, error) {
		v := arg(args, 0)
		if this.o == nil || v.o == nil {
			return Bool(false), nil
		}
		depth := 0
		for q := v.o.proto; q != nil && depth < maxProtoDepth; q, depth = q.proto, depth+1 {
			if q == this.o {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	})
	vm.method(p, "toString", func(act *Activation, this Value, _ []Value) (Value, error) {
		if this.o == nil {
			return String("[object " + act.vm.classOf(this).Name.LocalName() + "]"), nil
		}
		if c, ok := this.o.AsClass(); ok {
			return String("[class " + c.Name.LocalName() + "]"), nil
		}
		return String(this.o.String()), nil
	})
	vm.method(p, "toLocaleString", func(act *Activation, this Value, _ []Value) (Value, error) {
		return act.vm.callProperty(act, this, act.vm.PublicName("toString"), nil, this)
	})
	vm.method(p, "valueOf", func(_ *Activation, this Value, _ []Value) (Value, error) {
		return this, nil
	})
}

func (vm *VM) installFunctionPrototype() {
	p := vm.builtins.function.prototype
	vm.method(p, "call", func(act *Activation, this Value, args []Value) (Value, error) {
		var rest []Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return act.vm.callValue(act, this, arg(args, 0), rest)
	})
	vm.method(p, "apply", func(act *Activation, this Value, args []Value) (Value, error) {
		var list []Value
		if a := arg(args, 1); a.o != nil && a.o.array() != nil {
			var err error
			if list, err = act.vm.arrayValues(a.o.array()); err != nil {
				return Undefined, err
			}
		} else if !a.IsNullish() {
			return Undefined, act.vm.typeError(1116, "second argument to Function.prototype.apply must be an array.")
		}
		return act.vm.callValue(act, this, arg(args, 0), list)
	})
	vm.method(p, "toString", func(*Activation, Value, []Value) (Value, error) {
		return String("function Function() {}"), nil
	})
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var errorClassNames = [...]string{
	KindError:          "Error",
	KindTypeError:      "TypeError",
	KindReferenceError: "ReferenceError",
	KindRangeError:     "RangeError",
	KindArgumentError:  "ArgumentError",
	KindVerifyError:    "VerifyError",
}

func (vm *VM) installErrors() {
	b := &vm.builtins
	base := vm.nativeClass("Error", b.object, true)
	base.isError = true
	base.InstanceTraits = []Trait{
		SlotTraitWithDefault(vm.publicName("message"), nil, String("")),
		SlotTraitWithDefault(vm.publicName("name"), nil, String("Error")),
		SlotTraitWithDefault(vm.publicName("errorID"), nil, Int(0)),
		vm.methodTrait("getStackTrace", func(*Activation, Value, []Value) (Value, error) {
			return Null, nil
		}),
	}
	base.InstanceInit = initWith("Error", func(act *Activation, this *Object, args []Value) error {
		this.setSlotNamed("name", String(this.class.Name.LocalName()))
		if m := arg(args, 0); !m.IsUndefined() {
			s, err := act.vm.ToString(act, m)
			if err != nil {
				return err
			}
			this.setSlotNamed("message", String(s))
		}
		if id := arg(args, 1); !id.IsUndefined() {
			i, err := act.vm.toInt32(act, id)
			if err != nil {
				return err
			}
			this.setSlotNamed("errorID", Int(i))
		}
		return nil
	})
	b.errors[KindError] = base
	construct := func(c *Class) NativeMethod {
		return func(act *Activation, _ Value, args []Value) (Value, error) {
			return act.vm.construct(act, c, args)
		}
	}
	base.call = construct(base)
	vm.mustDefine(base)
	vm.method(base.prototype, "toString", func(_ *Activation, this Value, _ []Value) (Value, error) {
		if this.o == nil || !this.o.IsError() {
			return String("Error"), nil
		}
		return String(this.o.errorString()), nil
	})

	for kind := KindTypeError; kind <= KindVerifyError; kind++ {
		c := vm.nativeClass(errorClassNames[kind], base, true)
		c.isError = true
		c.InstanceInit = NewNativeMethod(errorClassNames[kind], func(act *Activation, _ Value, args []Value) (Value, error) {
			return Undefined, act.SuperInit(args)
		})
		c.call = construct(c)
		b.errors[kind] = vm.mustDefine(c)
	}
}

// ---------------------------------------------------------------------------
// Global functions
// ---------------------------------------------------------------------------

func (vm *VM) installGlobalFunctions() {
	for _, c := range []struct {
		name string
		v    Value
	}{
		{"NaN", Number(math.NaN())},
		{"Infinity", Number(math.Inf(1))},
		{"undefined", Undefined},
	} {
		if err := vm.defineGlobal(vm.publicName(c.name), c.v); err != nil {
			panic("avm2: " + err.Error())
		}
	}
	fns := map[string]NativeMethod{
		"trace": func(act *Activation, _ Value, args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				s, err := act.vm.ToString(act, a)
				if err != nil {
					return Undefined, err
				}
				parts[i] = s
			}
			line := strings.Join(parts, " ")
			traceLog.Infof("%s", line)
			if act.vm.traceHook != nil {
				act.vm.traceHook(line)
			}
			return Undefined, nil
		},
		"isNaN": func(act *Activation, _ Value, args []Value) (Value, error) {
			f, err := act.vm.ToNumber(act, arg(args, 0))
			return Bool(math.IsNaN(f)), err
		},
		"isFinite": func(act *Activation, _ Value, args []Value) (Value, error) {
			f, err := act.vm.ToNumber(act, arg(args, 0))
			return Bool(!math.IsNaN(f) && !math.IsInf(f, 0)), err
		},
		"parseInt": func(act *Activation, _ Value, args []Value) (Value, error) {
			s, err := act.vm.ToString(act, arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			radix := 0
			if r := arg(args, 1); !r.IsUndefined() {
				i, err := act.vm.toInt32(act, r)
				if err != nil {
					return Undefined, err
				}
				radix = int(i)
			}
			if radix != 0 && (radix < 2 || radix > 36) {
				return Number(math.NaN()), nil
			}
			return numberValue(coerce.ParseInt(s, radix)), nil
		},
		"parseFloat": func(act *Activation, _ Value, args []Value) (Value, error) {
			s, err := act.vm.ToString(act, arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			t := strings.TrimLeftFunc(s, coerce.IsWhitespace)
			for _, inf := range []string{"Infinity", "+Infinity"} {
				if strings.HasPrefix(t, inf) {
					return Number(math.Inf(1)), nil
				}
			}
			if strings.HasPrefix(t, "-Infinity") {
				return Number(math.Inf(-1)), nil
			}
			return numberValue(coerce.ParseFloat(s, false)), nil
		},
	}
	for name, fn := range fns {
		if err := vm.DefineFunction(name, fn); err != nil {
			panic("avm2: " + err.Error())
		}
	}
}
