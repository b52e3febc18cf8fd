package avm2

import (
	"strconv"

	"github.com/chazu/avmcore/gc"
	"github.com/chazu/avmcore/intern"
)

// maxProtoDepth bounds prototype walks.
const maxProtoDepth = 256

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Object is an AVM2 instance: fixed slots laid out by its class's vtable,
// a dynamic property map when the class is not sealed, a prototype link
// and an optional native payload.
type Object struct {
	gc.Header

	vm      *VM
	class   *Class
	vt      *VTable
	slots   []Value
	dynamic *dynamicMap
	proto   *Object
	native  any
	bound   map[int]*Object
}

// Trace marks everything o references.
func (o *Object) Trace(t *gc.Tracer) {
	if o.proto != nil {
		t.Mark(o.proto)
	}
	for _, v := range o.slots {
		markValue(t, v)
	}
	if o.dynamic != nil {
		for _, v := range o.dynamic.vals {
			markValue(t, v)
		}
	}
	for _, b := range o.bound {
		t.Mark(b)
	}
	switch n := o.native.(type) {
	case *arrayData:
		n.trace(t)
	case *Closure:
		n.trace(t)
	case *Class:
		if n.prototype != nil {
			t.Mark(n.prototype)
		}
	}
}

func (o *Object) barrier() { o.vm.heap.Barrier(o) }

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

// ClassName is the name used in error messages. Class objects append "$".
func (o *Object) ClassName() string {
	if c, ok := o.native.(*Class); ok {
		return c.Name.LocalName() + "$"
	}
	if o.class == nil {
		return "Object"
	}
	return o.class.Name.LocalName()
}

// Proto returns the prototype link.
func (o *Object) Proto() *Object { return o.proto }

// IsDynamic reports whether o accepts new properties.
func (o *Object) IsDynamic() bool { return o.dynamic != nil }

// IsCallable reports whether o is a function or class object.
func (o *Object) IsCallable() bool {
	switch o.native.(type) {
	case *Closure, *Class:
		return true
	}
	return false
}

// AsClass returns the class a class object represents.
func (o *Object) AsClass() (*Class, bool) {
	c, ok := o.native.(*Class)
	return c, ok
}

// IsError reports whether o is an Error instance.
func (o *Object) IsError() bool {
	for c := o.class; c != nil; c = c.Super {
		if c.isError {
			return true
		}
	}
	return false
}

func (o *Object) array() *arrayData {
	a, _ := o.native.(*arrayData)
	return a
}

// Elements returns a copy of an Array's elements. It returns nil for
// non-arrays and for sparse arrays too long to copy.
func (o *Object) Elements() []Value {
	if a := o.array(); a != nil {
		vs, _ := a.values()
		return vs
	}
	return nil
}

// Slot returns the slot with 1-based id.
func (o *Object) Slot(id int) (Value, bool) {
	if id < 1 || id > len(o.slots) {
		return Undefined, false
	}
	return o.slots[id-1], true
}

func (o *Object) setSlot(i int, v Value) {
	o.slots[i] = v
	o.barrier()
}

// slotNamed reads a slot by local name in the public namespace, ignoring
// accessors. Used for built-in classes whose layout is fixed.
func (o *Object) slotNamed(name string) Value {
	if i := o.vt.slotByName(o.vm.publicName(name)); i >= 0 && i < len(o.slots) {
		return o.slots[i]
	}
	return Undefined
}

func (o *Object) setSlotNamed(name string, v Value) {
	if i := o.vt.slotByName(o.vm.publicName(name)); i >= 0 && i < len(o.slots) {
		o.setSlot(i, v)
	}
}

// errorString formats an Error as "Name: message".
func (o *Object) errorString() string {
	name := o.slotNamed("name")
	msg := o.slotNamed("message")
	s := name.String()
	if m := msg.String(); m != "" && !msg.IsNullish() {
		s += ": " + m
	}
	return s
}

// ---------------------------------------------------------------------------
// Dynamic properties
// ---------------------------------------------------------------------------

// protoGet looks a public name up along the prototype chain.
func (o *Object) protoGet(name string) (Value, bool) {
	depth := 0
	for p := o.proto; p != nil && depth < maxProtoDepth; p, depth = p.proto, depth+1 {
		if p.dynamic != nil {
			if v, ok := p.dynamic.get(name); ok {
				return v, true
			}
		}
	}
	return Undefined, false
}

// SetDynamic stores a public dynamic property, ignoring sealed classes.
func (o *Object) SetDynamic(name string, v Value) {
	if o.dynamic == nil {
		return
	}
	o.dynamic.set(name, v)
	o.barrier()
}

func (o *Object) setHidden(name string, v Value) {
	if o.dynamic == nil {
		o.dynamic = newDynamicMap()
	}
	o.dynamic.setHidden(name, v)
	o.barrier()
}

// DynamicKeys returns the enumerable dynamic property names in order.
func (o *Object) DynamicKeys() []string {
	if o.dynamic == nil {
		return nil
	}
	return o.dynamic.snapshot()
}

// ---------------------------------------------------------------------------
// Property access
// ---------------------------------------------------------------------------

func (o *Object) lookupTrait(mn *Multiname) (binding, bool, error) {
	b, ok, err := o.vt.lookup(mn)
	if err != nil {
		return binding{}, false, o.vm.ambiguous(mn, o.ClassName())
	}
	return b, ok, nil
}

// GetProperty reads mn. Sealed objects without a matching trait raise
// ReferenceError #1069; dynamic objects yield undefined.
func (o *Object) GetProperty(act *Activation, mn *Multiname) (Value, error) {
	if idx, ok := mn.Index(); ok {
		if a := o.array(); a != nil {
			return a.get(idx), nil
		}
	}
	public := mn.NS.containsPublic() && mn.Local != nil
	if public && o.dynamic != nil {
		if v, ok := o.dynamic.get(mn.Local.String()); ok {
			return v, nil
		}
	}
	b, ok, err := o.lookupTrait(mn)
	if err != nil {
		return Undefined, err
	}
	if ok {
		return o.readBinding(act, b, mn)
	}
	if public {
		if v, ok := o.protoGet(mn.Local.String()); ok {
			return v, nil
		}
	}
	if o.dynamic != nil {
		return Undefined, nil
	}
	return Undefined, o.vm.referenceError(1069, "Property %s not found on %s and there is no default value.", mn, o.ClassName())
}

// SetProperty writes mn. Writing an unknown name on a sealed object
// raises ReferenceError #1056.
func (o *Object) SetProperty(act *Activation, mn *Multiname, v Value) error {
	return o.setProperty(act, mn, v, false)
}

// InitProperty is SetProperty that may also initialize constants.
func (o *Object) InitProperty(act *Activation, mn *Multiname, v Value) error {
	return o.setProperty(act, mn, v, true)
}

func (o *Object) setProperty(act *Activation, mn *Multiname, v Value, init bool) error {
	if idx, ok := mn.Index(); ok {
		if a := o.array(); a != nil {
			a.set(idx, v)
			o.barrier()
			return nil
		}
	}
	b, ok, err := o.lookupTrait(mn)
	if err != nil {
		return err
	}
	if ok {
		return o.writeBinding(act, b, mn, v, init)
	}
	if o.dynamic != nil && mn.NS.containsPublic() && mn.Local != nil {
		o.dynamic.set(mn.Local.String(), v)
		o.barrier()
		return nil
	}
	return o.vm.referenceError(1056, "Cannot create property %s on %s.", mn, o.ClassName())
}

// DeleteProperty removes a dynamic property. Traits cannot be deleted.
func (o *Object) DeleteProperty(act *Activation, mn *Multiname) (bool, error) {
	if idx, ok := mn.Index(); ok {
		if a := o.array(); a != nil {
			a.delete(idx)
			return true, nil
		}
	}
	if o.dynamic != nil && mn.NS.containsPublic() && mn.Local != nil {
		if o.dynamic.remove(mn.Local.String()) {
			return true, nil
		}
	}
	_, ok, err := o.lookupTrait(mn)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// HasProperty reports whether mn resolves on o or its prototype chain.
func (o *Object) HasProperty(mn *Multiname) (bool, error) {
	if idx, ok := mn.Index(); ok {
		if a := o.array(); a != nil && a.has(idx) {
			return true, nil
		}
	}
	public := mn.NS.containsPublic() && mn.Local != nil
	if public && o.dynamic != nil && o.dynamic.has(mn.Local.String()) {
		return true, nil
	}
	_, ok, err := o.lookupTrait(mn)
	if err != nil || ok {
		return ok, err
	}
	if public {
		_, ok := o.protoGet(mn.Local.String())
		return ok, nil
	}
	return false, nil
}

// hasOwn reports whether name is an own public property.
func (o *Object) hasOwn(name string) bool {
	if a := o.array(); a != nil {
		if idx, ok := arrayIndex(name); ok {
			return a.has(idx)
		}
	}
	if o.dynamic != nil && o.dynamic.has(name) {
		return true
	}
	_, ok, _ := o.vt.lookup(NewQNameRef(o.vm.public, intern.New(name)))
	return ok
}

func (o *Object) readBinding(act *Activation, b binding, mn *Multiname) (Value, error) {
	switch b.kind {
	case bindSlot, bindConst:
		return o.slots[b.slot], nil
	case bindMethod:
		return ObjectValue(o.vm.boundMethod(o, b.disp)), nil
	case bindAccessor:
		if b.get < 0 {
			return Undefined, o.vm.referenceError(1077, "Illegal read of write-only property %s on %s.", mn, o.ClassName())
		}
		e := o.vt.disp[b.get]
		return o.vm.callMethod(act, e.method, e.owner, e.owner.scope, ObjectValue(o), nil)
	}
	return Undefined, nil
}

func (o *Object) writeBinding(act *Activation, b binding, mn *Multiname, v Value, init bool) error {
	switch b.kind {
	case bindConst:
		if !init {
			return o.vm.referenceError(1074, "Illegal write to read-only property %s on %s.", mn, o.ClassName())
		}
		fallthrough
	case bindSlot:
		cv, err := o.vm.coerceTo(act, v, o.vt.slots[b.slot].typ)
		if err != nil {
			return err
		}
		o.setSlot(b.slot, cv)
		return nil
	case bindMethod:
		return o.vm.referenceError(1037, "Cannot assign to a method %s on %s.", mn, o.ClassName())
	case bindAccessor:
		if b.set < 0 {
			return o.vm.referenceError(1074, "Illegal write to read-only property %s on %s.", mn, o.ClassName())
		}
		e := o.vt.disp[b.set]
		_, err := o.vm.callMethod(act, e.method, e.owner, e.owner.scope, ObjectValue(o), []Value{v})
		return err
	}
	return nil
}

// callBinding invokes a resolved trait as a method call. Methods always
// receive o; function-valued properties receive this.
func (o *Object) callBinding(act *Activation, b binding, mn *Multiname, this Value, args []Value) (Value, error) {
	if b.kind == bindMethod {
		e := o.vt.disp[b.disp]
		return o.vm.callMethod(act, e.method, e.owner, e.owner.scope, ObjectValue(o), args)
	}
	fn, err := o.readBinding(act, b, mn)
	if err != nil {
		return Undefined, err
	}
	return o.vm.callValue(act, fn, this, args)
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

// nextIndex returns the enumeration index after cur: array elements
// first, then enumerable dynamic properties. Index 0 means "done".
func (o *Object) nextIndex(cur int) int {
	n := 0
	if a := o.array(); a != nil {
		n = a.count()
		if cur < n {
			return cur + 1
		}
	}
	if o.dynamic != nil {
		if p, ok := o.dynamic.next(cur - n); ok {
			return p + n + 1
		}
	}
	return 0
}

func (o *Object) nameAt(idx int) Value {
	n := 0
	if a := o.array(); a != nil {
		n = a.count()
		if idx-1 < n {
			return String(strconv.Itoa(a.at(idx - 1)))
		}
	}
	if o.dynamic != nil {
		if i := idx - 1 - n; i >= 0 && i < len(o.dynamic.keys) && !o.dynamic.dead[i] {
			return String(o.dynamic.keys[i])
		}
	}
	return Undefined
}

func (o *Object) valueAt(idx int) Value {
	n := 0
	if a := o.array(); a != nil {
		n = a.count()
		if idx-1 < n {
			return a.get(a.at(idx - 1))
		}
	}
	if o.dynamic != nil {
		if i := idx - 1 - n; i >= 0 && i < len(o.dynamic.vals) && !o.dynamic.dead[i] {
			return o.dynamic.vals[i]
		}
	}
	return Undefined
}
