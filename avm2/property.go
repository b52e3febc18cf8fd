package avm2

// Property access on arbitrary values. Primitives resolve against the
// traits and prototype of their built-in class.

func (vm *VM) getProperty(act *Activation, recv Value, mn *Multiname) (Value, error) {
	switch {
	case recv.IsNullish():
		return Undefined, vm.nullReference(recv)
	case recv.o != nil:
		if c, ok := recv.o.native.(*Class); ok && mn.Local != nil && mn.NS.containsPublic() && mn.Local.String() == "prototype" {
			return ObjectValue(c.prototype), nil
		}
		return recv.o.GetProperty(act, mn)
	}
	c := vm.classOf(recv)
	b, ok, err := c.vt.lookup(mn)
	if err != nil {
		return Undefined, vm.ambiguous(mn, c.Name.LocalName())
	}
	if ok {
		switch b.kind {
		case bindMethod:
			e := c.vt.disp[b.disp]
			return ObjectValue(vm.newFunction(&Closure{method: e.method, scope: e.owner.scope, class: e.owner, this: recv, bound: true})), nil
		case bindAccessor:
			if b.get >= 0 {
				e := c.vt.disp[b.get]
				return vm.callMethod(act, e.method, e.owner, e.owner.scope, recv, nil)
			}
		}
		return Undefined, nil
	}
	if mn.Local != nil && mn.NS.containsPublic() && c.prototype != nil {
		if v, ok := protoLookup(c.prototype, mn.Local.String()); ok {
			return v, nil
		}
	}
	return Undefined, vm.referenceError(1069, "Property %s not found on %s and there is no default value.", mn, c.Name.LocalName())
}

// protoLookup searches p and its prototype chain for a dynamic property.
func protoLookup(p *Object, name string) (Value, bool) {
	for depth := 0; p != nil && depth < maxProtoDepth; p, depth = p.proto, depth+1 {
		if p.dynamic != nil {
			if v, ok := p.dynamic.get(name); ok {
				return v, true
			}
		}
	}
	return Undefined, false
}

func (vm *VM) setProperty(act *Activation, recv Value, mn *Multiname, v Value) error {
	switch {
	case recv.IsNullish():
		return vm.nullReference(recv)
	case recv.o != nil:
		return recv.o.SetProperty(act, mn, v)
	}
	return vm.referenceError(1056, "Cannot create property %s on %s.", mn, vm.classOf(recv).Name.LocalName())
}

func (vm *VM) hasProperty(recv Value, mn *Multiname) (bool, error) {
	switch {
	case recv.IsNullish():
		return false, vm.nullReference(recv)
	case recv.o != nil:
		return recv.o.HasProperty(mn)
	}
	c := vm.classOf(recv)
	if _, ok, err := c.vt.lookup(mn); ok || err != nil {
		return ok, err
	}
	if mn.Local != nil && c.prototype != nil {
		_, ok := protoLookup(c.prototype, mn.Local.String())
		return ok, nil
	}
	return false, nil
}

// callProperty calls the property mn of recv with the given receiver.
// Methods are dispatched directly without creating a method closure.
func (vm *VM) callProperty(act *Activation, recv Value, mn *Multiname, args []Value, this Value) (Value, error) {
	if recv.IsNullish() {
		return Undefined, vm.nullReference(recv)
	}
	if o := recv.o; o != nil {
		b, ok, err := o.lookupTrait(mn)
		if err != nil {
			return Undefined, err
		}
		if ok {
			return o.callBinding(act, b, mn, this, args)
		}
	} else {
		c := vm.classOf(recv)
		if b, ok, _ := c.vt.lookup(mn); ok && b.kind == bindMethod {
			e := c.vt.disp[b.disp]
			return vm.callMethod(act, e.method, e.owner, e.owner.scope, recv, args)
		}
	}
	fn, err := vm.getProperty(act, recv, mn)
	if err != nil {
		return Undefined, err
	}
	if fn.o == nil || !fn.o.IsCallable() {
		return Undefined, vm.typeError(1006, "%s is not a function.", mn.LocalName())
	}
	return vm.callValue(act, fn, this, args)
}

// constructValue implements new on a class or function object.
func (vm *VM) constructValue(act *Activation, ctor Value, args []Value) (Value, error) {
	if ctor.o != nil {
		switch n := ctor.o.native.(type) {
		case *Class:
			return vm.construct(act, n, args)
		case *Closure:
			if !n.bound && n.method.Native == nil {
				o := vm.NewObject()
				if p, ok := ctor.o.dynamic.get("prototype"); ok && p.o != nil {
					o.proto = p.o
				}
				r, err := vm.callMethod(act, n.method, n.class, n.scope, ObjectValue(o), args)
				if err != nil {
					return Undefined, err
				}
				if r.o != nil {
					return r, nil
				}
				return ObjectValue(o), nil
			}
		}
	}
	return Undefined, vm.typeError(1007, "Instantiation attempted on a non-constructor.")
}
