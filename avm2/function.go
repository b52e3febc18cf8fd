package avm2

import "github.com/chazu/avmcore/gc"

// ---------------------------------------------------------------------------
// Scope chains
// ---------------------------------------------------------------------------

type scopeEntry struct {
	obj  *Object
	with bool
}

// ScopeChain is the captured outer scope of a closure or class: a frozen
// copy of the creator's scope stack linked to the creator's own outer
// chain.
type ScopeChain struct {
	parent  *ScopeChain
	entries []scopeEntry
}

// extend captures entries in front of s.
func (s *ScopeChain) extend(entries []scopeEntry) *ScopeChain {
	if len(entries) == 0 {
		return s
	}
	return &ScopeChain{parent: s, entries: append([]scopeEntry(nil), entries...)}
}

func (s *ScopeChain) trace(t *gc.Tracer) {
	for ; s != nil; s = s.parent {
		for _, e := range s.entries {
			t.Mark(e.obj)
		}
	}
}

// outermost returns the bottom entry of the chain, normally the global
// object.
func (s *ScopeChain) outermost() *Object {
	var last *Object
	for ; s != nil; s = s.parent {
		if len(s.entries) > 0 {
			last = s.entries[0].obj
		}
	}
	return last
}

// find searches the chain innermost first.
func (s *ScopeChain) find(mn *Multiname) (*Object, error) {
	for ; s != nil; s = s.parent {
		for i := len(s.entries) - 1; i >= 0; i-- {
			ok, err := s.entries[i].obj.HasProperty(mn)
			if err != nil {
				return nil, err
			}
			if ok {
				return s.entries[i].obj, nil
			}
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

// Closure is the native payload of a Function object: a method bound to
// its captured scope and, for method closures, to a receiver.
type Closure struct {
	method *Method
	scope  *ScopeChain
	class  *Class
	this   Value
	bound  bool
}

func (c *Closure) trace(t *gc.Tracer) {
	c.scope.trace(t)
	markValue(t, c.this)
}

// Method returns the closure's method.
func (c *Closure) Method() *Method { return c.method }

// newFunction wraps cl in a Function object with its own prototype.
func (vm *VM) newFunction(cl *Closure) *Object {
	fn := vm.alloc(&Object{class: vm.builtins.function, vt: vm.builtins.function.vt, proto: vm.builtins.function.prototype, native: cl})
	fn.slots = make([]Value, len(fn.vt.slots))
	fn.dynamic = newDynamicMap()
	if !cl.bound && cl.method.Native == nil {
		proto := vm.NewObject()
		proto.setHidden("constructor", ObjectValue(fn))
		fn.setHidden("prototype", ObjectValue(proto))
	}
	return fn
}

// NewFunction wraps a native Go function as a Function object.
func (vm *VM) NewFunction(name string, fn NativeMethod) *Object {
	return vm.newFunction(&Closure{method: NewNativeMethod(name, fn), scope: vm.globalScope})
}

// boundMethod returns the method closure for disp on o. Reading the same
// method twice yields the same Function object.
func (vm *VM) boundMethod(o *Object, disp int) *Object {
	if fn, ok := o.bound[disp]; ok {
		return fn
	}
	e := o.vt.disp[disp]
	fn := vm.newFunction(&Closure{method: e.method, scope: e.owner.scope, class: e.owner, this: ObjectValue(o), bound: true})
	if o.bound == nil {
		o.bound = make(map[int]*Object)
	}
	o.bound[disp] = fn
	o.barrier()
	return fn
}

// callValue calls fn, which must be a Function or Class object.
func (vm *VM) callValue(act *Activation, fn Value, this Value, args []Value) (Value, error) {
	if fn.o == nil {
		return Undefined, vm.typeError(1006, "value is not a function.")
	}
	switch n := fn.o.native.(type) {
	case *Closure:
		if n.bound {
			this = n.this
		} else if this.IsNullish() {
			this = ObjectValue(vm.global)
		}
		return vm.callMethod(act, n.method, n.class, n.scope, this, args)
	case *Class:
		return vm.callClass(act, n, args)
	}
	return Undefined, vm.typeError(1006, "value is not a function.")
}

// callClass handles Class(value): a native conversion for built-ins and
// a checked cast for everything else.
func (vm *VM) callClass(act *Activation, c *Class, args []Value) (Value, error) {
	if c.call != nil {
		return vm.callMethod(act, &Method{Name: c.Name.LocalName(), Native: c.call}, c, c.scope, ObjectValue(c.object), args)
	}
	if len(args) != 1 {
		return Undefined, vm.throwError(KindArgumentError, 1063, "Argument count mismatch on %s. Expected 1, got %d.", c.Name, len(args))
	}
	return vm.coerceToClass(act, args[0], c)
}
