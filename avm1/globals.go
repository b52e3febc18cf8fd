package avm1

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/chazu/avmcore/coerce"
)

// arg returns args[i] or undefined.
func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// installGlobals builds the prototypes, constructors and global functions.
// Object.prototype and Function.prototype are created first because every
// other function object links to them.
func (vm *VM) installGlobals() {
	vm.protos.object = vm.alloc(&Object{})
	vm.protos.function = vm.newObjectWithProto(ObjectValue(vm.protos.object))

	vm.global = vm.NewObject()
	vm.global.class = "global"
	vm.globalScope = NewScope(ScopeGlobal, vm.global, nil)
	vm.root = vm.NewObject()
	vm.root.class = "MovieClip"

	vm.installObject()
	vm.installFunction()
	vm.installArray()
	vm.installString()
	vm.installNumber()
	vm.installBoolean()
	vm.installMath()
	vm.installError()
	vm.installGlobalFunctions()
	vm.installSharedObject()
	vm.installXMLSocket()
}

// newConstructor registers a global constructor. call handles plain calls
// and construct handles `new`; construct may be nil for constructors that
// simply initialise this.
func (vm *VM) newConstructor(name string, proto *Object, call, construct NativeFunc) *Object {
	ctor := vm.newNative(name, call, vm.protos.function)
	ctor.fn.construct = construct
	ctor.Define("prototype", ObjectValue(proto), DontEnum|DontDelete)
	proto.Define("constructor", ObjectValue(ctor), DontEnum)
	vm.global.Define(name, ObjectValue(ctor), DontEnum)
	return ctor
}

func (vm *VM) method(obj *Object, name string, fn NativeFunc) {
	obj.DefineMethod(name, fn, vm.protos.function)
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

func (vm *VM) installObject() {
	proto := vm.protos.object
	toObject := func(act *Activation, _ *Object, args []Value) (Value, error) {
		v := arg(args, 0)
		if v.kind == KindUndefined || v.kind == KindNull {
			return ObjectValue(act.vm.NewObject()), nil
		}
		return ObjectValue(act.ToObject(v)), nil
	}
	ctor := vm.newConstructor("Object", proto, toObject, func(act *Activation, this *Object, args []Value) (Value, error) {
		if v := arg(args, 0); v.kind == KindObject {
			return v, nil
		}
		return ObjectValue(this), nil
	})

	vm.method(ctor, "registerClass", func(act *Activation, _ *Object, args []Value) (Value, error) {
		name, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		log.Debugf("Object.registerClass(%q): no symbol library attached", name)
		return Bool(false), nil
	})

	vm.method(proto, "addProperty", func(act *Activation, this *Object, args []Value) (Value, error) {
		name, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Bool(this.AddProperty(act, name, arg(args, 1).o, arg(args, 2).o, 0)), nil
	})
	vm.method(proto, "hasOwnProperty", func(act *Activation, this *Object, args []Value) (Value, error) {
		name, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Bool(this.HasOwnProperty(act, name)), nil
	})
	vm.method(proto, "isPropertyEnumerable", func(act *Activation, this *Object, args []Value) (Value, error) {
		name, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Bool(this.IsPropertyEnumerable(act, name)), nil
	})
	vm.method(proto, "isPrototypeOf", func(act *Activation, this *Object, args []Value) (Value, error) {
		other := arg(args, 0).o
		if other == nil {
			return Bool(false), nil
		}
		p := other.Proto().o
		for depth := 0; p != nil && depth < maxProtoDepth; depth++ {
			if p == this {
				return Bool(true), nil
			}
			p = p.Proto().o
		}
		return Bool(false), nil
	})
	objectToString := func(act *Activation, this *Object, _ []Value) (Value, error) {
		if this.fn != nil {
			return String("[type Function]"), nil
		}
		return String("[object Object]"), nil
	}
	vm.method(proto, "toString", objectToString)
	vm.method(proto, "toLocaleString", objectToString)
	vm.method(proto, "valueOf", func(_ *Activation, this *Object, _ []Value) (Value, error) {
		return ObjectValue(this), nil
	})
	vm.method(proto, "watch", func(act *Activation, this *Object, args []Value) (Value, error) {
		name, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Bool(this.Watch(act, name, arg(args, 1).o, arg(args, 2))), nil
	})
	vm.method(proto, "unwatch", func(act *Activation, this *Object, args []Value) (Value, error) {
		name, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Bool(this.Unwatch(act, name)), nil
	})
}

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

func (vm *VM) installFunction() {
	proto := vm.protos.function
	proto.class = "Function"
	vm.newConstructor("Function", proto, func(_ *Activation, this *Object, _ []Value) (Value, error) {
		return ObjectValue(this), nil
	}, nil)

	vm.method(proto, "call", func(act *Activation, this *Object, args []Value) (Value, error) {
		var rest []Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return this.exec(act, "[call]", act.callReceiver(arg(args, 0)), 0, rest)
	})
	vm.method(proto, "apply", func(act *Activation, this *Object, args []Value) (Value, error) {
		var list []Value
		if arr := arg(args, 1).o; arr != nil {
			var err error
			if list, err = arr.Elements(act); err != nil {
				return Undefined, err
			}
		}
		return this.exec(act, "[apply]", act.callReceiver(arg(args, 0)), 0, list)
	})
}

// callReceiver maps the this argument of call and apply: objects are used
// as is, undefined and null mean the global object, primitives are boxed.
func (act *Activation) callReceiver(v Value) Value {
	switch v.kind {
	case KindObject:
		return v
	case KindUndefined, KindNull:
		return ObjectValue(act.vm.global)
	}
	return ObjectValue(act.ToObject(v))
}

// ---------------------------------------------------------------------------
// Error
// ---------------------------------------------------------------------------

func (vm *VM) installError() {
	proto := vm.NewObject()
	proto.class = "Error"
	vm.protos.error = proto
	proto.Define("name", String("Error"), DontEnum)
	proto.Define("message", String("Error"), DontEnum)

	initError := func(_ *Activation, this *Object, args []Value) (Value, error) {
		this.class = "Error"
		if msg := arg(args, 0); !msg.IsUndefined() {
			this.Define("message", msg, 0)
		}
		return ObjectValue(this), nil
	}
	var ctor *Object
	ctor = vm.newConstructor("Error", proto, func(act *Activation, _ *Object, args []Value) (Value, error) {
		return act.construct(ctor, args)
	}, initError)

	vm.method(proto, "toString", func(act *Activation, this *Object, _ []Value) (Value, error) {
		msg, err := this.Get(act, "message")
		if err != nil {
			return Undefined, err
		}
		s, err := act.ToString(msg)
		return String(s), err
	})
}

// NewError creates an Error object with the given message.
func (vm *VM) NewError(message string) *Object {
	e := vm.newObjectWithProto(ObjectValue(vm.protos.error))
	e.class = "Error"
	e.Define("message", String(message), 0)
	return e
}

// ---------------------------------------------------------------------------
// Global functions
// ---------------------------------------------------------------------------

func (vm *VM) installGlobalFunctions() {
	g := vm.global
	g.Define("NaN", Number(math.NaN()), DontEnum|DontDelete|ReadOnly)
	g.Define("Infinity", Number(math.Inf(1)), DontEnum|DontDelete|ReadOnly)

	vm.method(g, "parseInt", func(act *Activation, _ *Object, args []Value) (Value, error) {
		s, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		radix := 0
		if rv := arg(args, 1); !rv.IsUndefined() {
			r, err := act.toInt32(rv)
			if err != nil {
				return Undefined, err
			}
			if r < 2 || r > 36 {
				return Number(math.NaN()), nil
			}
			radix = int(r)
		} else if coerce.GuessRadix(coerce.TrimSpace(s)) == 8 {
			radix = 8
		}
		return Number(coerce.ParseInt(s, radix)), nil
	})
	vm.method(g, "parseFloat", func(act *Activation, _ *Object, args []Value) (Value, error) {
		s, err := act.ToString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return Number(coerce.ParseFloat(s, false)), nil
	})
	vm.method(g, "isNaN", func(act *Activation, _ *Object, args []Value) (Value, error) {
		n, err := act.ToNumber(arg(args, 0))
		return Bool(math.IsNaN(n)), err
	})
	vm.method(g, "isFinite", func(act *Activation, _ *Object, args []Value) (Value, error) {
		n, err := act.ToNumber(arg(args, 0))
		return Bool(!math.IsNaN(n) && !math.IsInf(n, 0)), err
	})
	vm.method(g, "escape", func(act *Activation, _ *Object, args []Value) (Value, error) {
		s, err := act.ToString(arg(args, 0))
		return String(escape(s)), err
	})
	vm.method(g, "unescape", func(act *Activation, _ *Object, args []Value) (Value, error) {
		s, err := act.ToString(arg(args, 0))
		return String(unescape(s)), err
	})
	vm.method(g, "ASSetPropFlags", assetPropFlags)
}

// assetPropFlags implements ASSetPropFlags(object, names, set, clear).
// names is null for every property, a comma separated string or an array.
func assetPropFlags(act *Activation, _ *Object, args []Value) (Value, error) {
	obj := arg(args, 0).o
	if obj == nil {
		return Undefined, nil
	}
	set, err := act.toInt32(arg(args, 2))
	if err != nil {
		return Undefined, err
	}
	clear, err := act.toInt32(arg(args, 3))
	if err != nil {
		return Undefined, err
	}
	setAttrs, clearAttrs := attributesFromFlags(set), attributesFromFlags(clear)

	names := arg(args, 1)
	switch {
	case names.kind == KindNull:
		obj.SetAttributes(act, nil, setAttrs, clearAttrs)
	case names.kind == KindObject:
		elems, err := names.o.Elements(act)
		if err != nil {
			return Undefined, err
		}
		for _, e := range elems {
			name, err := act.ToString(e)
			if err != nil {
				return Undefined, err
			}
			obj.SetAttributes(act, &name, setAttrs, clearAttrs)
		}
	case names.kind == KindString:
		for _, name := range strings.Split(names.s, ",") {
			name := name
			obj.SetAttributes(act, &name, setAttrs, clearAttrs)
		}
	}
	return Undefined, nil
}

func escape(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

func unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			out = append(out, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		out = append(out, s[i])
	}
	if utf8.Valid(out) {
		return string(out)
	}
	runes := make([]rune, len(out))
	for i, c := range out {
		runes[i] = rune(c)
	}
	return string(runes)
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}
