package avm1

import (
	"strconv"

	"github.com/chazu/avmcore/gc"
)

// maxProtoDepth bounds every prototype walk. Deeper chains and cycles read
// as "not found".
const maxProtoDepth = 255

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Object is an AVM1 script object: an ordered property map whose
// "__proto__" entry links it to its prototype. Functions, arrays and boxed
// primitives are objects with the matching native part set.
type Object struct {
	gc.Header
	vm *VM

	class      string
	props      propertyMap
	watchers   []*watcher
	interfaces []*Object

	fn        *Function
	array     bool
	primitive Value
	super     *superInfo

	// native is host state for built-in classes (sockets, shared objects).
	native any
}

type watcher struct {
	name     string
	callback *Object
	userData Value
	running  bool
}

type superInfo struct {
	this  *Object
	depth int
}

// nativeTracer is implemented by native payloads that hold script values.
type nativeTracer interface {
	trace(t *gc.Tracer)
}

// Trace implements gc.Traceable.
func (o *Object) Trace(t *gc.Tracer) {
	o.props.each(func(p *Property) {
		markValue(t, p.value)
		if p.getter != nil {
			t.Mark(p.getter)
		}
		if p.setter != nil {
			t.Mark(p.setter)
		}
	})
	for _, w := range o.watchers {
		t.Mark(w.callback)
		markValue(t, w.userData)
	}
	for _, i := range o.interfaces {
		t.Mark(i)
	}
	if o.fn != nil {
		o.fn.trace(t)
	}
	if o.super != nil {
		t.Mark(o.super.this)
	}
	if nt, ok := o.native.(nativeTracer); ok {
		nt.trace(t)
	}
}

func markValue(t *gc.Tracer, v Value) {
	if v.o != nil {
		t.Mark(v.o)
	}
}

func (o *Object) barrier() {
	o.vm.heap.Barrier(o)
}

func (o *Object) className() string {
	if o.class == "" {
		return "Object"
	}
	return o.class
}

// Class returns the built-in class name the object was created as.
func (o *Object) Class() string { return o.className() }

// IsFunction reports whether the object can be called.
func (o *Object) IsFunction() bool { return o.fn != nil }

// IsArray reports whether the object couples "length" to its indices.
func (o *Object) IsArray() bool { return o.array }

// Primitive returns the boxed value of a Boolean, Number or String object.
func (o *Object) Primitive() (Value, bool) {
	return o.primitive, !o.primitive.IsUndefined()
}

// ---------------------------------------------------------------------------
// Prototype link
// ---------------------------------------------------------------------------

// Proto returns the value of the "__proto__" property.
func (o *Object) Proto() Value {
	if o.super != nil {
		base := o.super.baseProto()
		if base == nil {
			return Undefined
		}
		return base.Proto()
	}
	if p := o.props.get("__proto__", true); p != nil {
		return p.value
	}
	return Undefined
}

// SetProto rewrites the "__proto__" property.
func (o *Object) SetProto(proto Value) {
	if p := o.props.get("__proto__", true); p != nil {
		p.value = proto
	} else {
		o.props.insert("__proto__", proto, DontEnum|DontDelete)
	}
	o.barrier()
}

func (s *superInfo) baseProto() *Object {
	proto := s.this
	for i := 0; i < s.depth && proto != nil; i++ {
		proto = proto.Proto().o
	}
	return proto
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// Get reads name through the prototype chain. Getters installed with
// addProperty run with this bound to o.
func (o *Object) Get(act *Activation, name string) (Value, error) {
	if o.super != nil {
		base := o.super.baseProto()
		if base == nil {
			return Undefined, nil
		}
		start := base.Proto().o
		if start == nil {
			return Undefined, nil
		}
		v, _, _, err := start.search(act, name, o.super.this)
		return v, err
	}
	v, _, _, err := o.search(act, name, o)
	return v, err
}

// search walks from o up the chain looking for name. It returns the value,
// the depth at which it was found and whether it was found at all.
func (o *Object) search(act *Activation, name string, receiver *Object) (Value, int, bool, error) {
	cs := act.caseSensitive()
	cur := o
	for depth := 0; depth < maxProtoDepth; depth++ {
		if p := cur.props.get(name, cs); p != nil {
			if p.getter != nil {
				v, err := p.getter.exec(act, "[Getter]", ObjectValue(receiver), 0, nil)
				return v, depth, true, err
			}
			return p.value, depth, true, nil
		}
		next := cur.Proto()
		if next.kind != KindObject {
			break
		}
		cur = next.o
	}
	return Undefined, 0, false, nil
}

// GetLocal returns the own stored value of name, ignoring getters.
func (o *Object) GetLocal(act *Activation, name string) (Value, bool) {
	p := o.props.get(name, act.caseSensitive())
	if p == nil || p.getter != nil {
		return Undefined, false
	}
	return p.value, true
}

// HasOwnProperty reports whether name is an own property.
func (o *Object) HasOwnProperty(act *Activation, name string) bool {
	if o.super != nil {
		return false
	}
	return o.props.get(name, act.caseSensitive()) != nil
}

// HasProperty reports whether name exists anywhere on the chain.
func (o *Object) HasProperty(act *Activation, name string) bool {
	cur := o
	for depth := 0; depth < maxProtoDepth && cur != nil; depth++ {
		if cur.HasOwnProperty(act, name) {
			return true
		}
		cur = cur.Proto().o
	}
	return false
}

// IsPropertyEnumerable reports whether name is an own enumerable property.
func (o *Object) IsPropertyEnumerable(act *Activation, name string) bool {
	p := o.props.get(name, act.caseSensitive())
	return p != nil && p.Enumerable()
}

// Property returns the own property record for name, or nil.
func (o *Object) Property(act *Activation, name string) *Property {
	return o.props.get(name, act.caseSensitive())
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Set assigns name. Watchers run first and may replace the value. When o
// has no own property, the chain is searched for an addProperty setter,
// which takes the assignment instead. Writes to ReadOnly properties are
// ignored.
func (o *Object) Set(act *Activation, name string, v Value) error {
	if name == "" || o.super != nil {
		return nil
	}
	v, werr := o.callWatcher(act, name, v)
	if werr != nil {
		return werr
	}

	if !o.HasOwnProperty(act, name) {
		cs := act.caseSensitive()
		proto := o.Proto().o
		for depth := 0; proto != nil && depth < maxProtoDepth; depth++ {
			if p := proto.props.get(name, cs); p != nil && p.getter != nil {
				if p.setter != nil {
					_, err := p.setter.exec(act, "[Setter]", ObjectValue(o), 0, []Value{v})
					return err
				}
				return nil
			}
			proto = proto.Proto().o
		}
	}
	return o.setLocal(act, name, v)
}

func (o *Object) setLocal(act *Activation, name string, v Value) error {
	cs := act.caseSensitive()
	if o.array {
		if idx, ok := parseArrayIndex(name); ok {
			if idx >= o.length(act) {
				o.setLength(act, idx+1)
			}
		} else if (cs && name == "length") || (!cs && foldName(name) == "length") {
			n, err := act.ToNumber(v)
			if err != nil {
				return err
			}
			o.truncate(act, int(toInt32(n)))
		}
	}

	p := o.props.get(name, cs)
	if p == nil {
		o.props.insert(name, v, 0)
		o.barrier()
		return nil
	}
	if p.getter != nil {
		if p.setter != nil {
			_, err := p.setter.exec(act, "[Setter]", ObjectValue(o), 0, []Value{v})
			return err
		}
		return nil
	}
	if p.Writable() {
		p.value = v
		o.barrier()
	}
	return nil
}

func (o *Object) callWatcher(act *Activation, name string, v Value) (Value, error) {
	cs := act.caseSensitive()
	var w *watcher
	for _, candidate := range o.watchers {
		if candidate.name == name || (!cs && foldName(candidate.name) == foldName(name)) {
			w = candidate
			break
		}
	}
	if w == nil || w.running || w.callback.fn == nil {
		return v, nil
	}
	old, _ := o.GetLocal(act, name)
	w.running = true
	defer func() { w.running = false }()
	return w.callback.exec(act, "[Watcher]", ObjectValue(o), 0,
		[]Value{String(name), old, v, w.userData})
}

// Define inserts or replaces an own value property with exact-case name
// and the given attributes. It bypasses watchers and setters.
func (o *Object) Define(name string, v Value, attrs Attribute) {
	o.props.insert(name, v, attrs)
	o.barrier()
}

// DefineMethod installs a native function as a DontEnum property.
func (o *Object) DefineMethod(name string, fn NativeFunc, fnProto *Object) *Object {
	f := o.vm.newNative(name, fn, fnProto)
	o.Define(name, ObjectValue(f), DontEnum)
	return f
}

// AddProperty installs a virtual property backed by getter and an
// optional setter. It returns false when getter is not callable.
func (o *Object) AddProperty(act *Activation, name string, getter, setter *Object, attrs Attribute) bool {
	if name == "" || getter == nil || getter.fn == nil {
		return false
	}
	if setter != nil && setter.fn == nil {
		setter = nil
	}
	p := o.props.get(name, act.caseSensitive())
	if p == nil {
		p = o.props.insert(name, Undefined, attrs)
	}
	p.value = Undefined
	p.getter, p.setter = getter, setter
	o.barrier()
	return true
}

// Delete removes an own property. It returns false when the property is
// missing or DontDelete.
func (o *Object) Delete(act *Activation, name string) bool {
	p := o.props.get(name, act.caseSensitive())
	if p == nil || !p.Deletable() {
		return false
	}
	o.props.remove(p)
	return true
}

// SetAttributes clears then sets attribute bits on the named property, or
// on every own property when name is nil.
func (o *Object) SetAttributes(act *Activation, name *string, set, clear Attribute) {
	apply := func(p *Property) { p.attrs = (p.attrs &^ clear) | set }
	if name == nil {
		o.props.each(apply)
		return
	}
	if p := o.props.get(*name, act.caseSensitive()); p != nil {
		apply(p)
	}
}

// Watch registers a watcher for name, replacing an existing one.
func (o *Object) Watch(act *Activation, name string, callback *Object, userData Value) bool {
	if callback == nil || callback.fn == nil {
		return false
	}
	cs := act.caseSensitive()
	for _, w := range o.watchers {
		if w.name == name || (!cs && foldName(w.name) == foldName(name)) {
			w.callback, w.userData = callback, userData
			o.barrier()
			return true
		}
	}
	o.watchers = append(o.watchers, &watcher{name: name, callback: callback, userData: userData})
	o.barrier()
	return true
}

// Unwatch removes the watcher for name.
func (o *Object) Unwatch(act *Activation, name string) bool {
	cs := act.caseSensitive()
	for i, w := range o.watchers {
		if w.name == name || (!cs && foldName(w.name) == foldName(name)) {
			o.watchers = append(o.watchers[:i], o.watchers[i+1:]...)
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

// Keys lists enumerable names: inherited ones first (skipping names o
// defines itself), then o's own in insertion order.
func (o *Object) Keys(act *Activation) []string {
	return o.keys(act, 0)
}

func (o *Object) keys(act *Activation, depth int) []string {
	if o.super != nil || depth >= maxProtoDepth {
		return nil
	}
	var out []string
	if proto := o.Proto().o; proto != nil {
		cs := act.caseSensitive()
		for _, k := range proto.keys(act, depth+1) {
			if o.props.get(k, cs) == nil {
				out = append(out, k)
			}
		}
	}
	o.props.each(func(p *Property) {
		if p.Enumerable() {
			out = append(out, p.name)
		}
	})
	return out
}

// ---------------------------------------------------------------------------
// instanceof
// ---------------------------------------------------------------------------

// IsInstanceOf walks o's prototype chain looking for prototype. From SWF 7
// on, interfaces registered with implements also match.
func (o *Object) IsInstanceOf(act *Activation, constructor, prototype *Object) (bool, error) {
	var stack []*Object
	if p := o.Proto().o; p != nil {
		stack = append(stack, p)
	}
	seen := make(map[*Object]bool)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if cur == prototype {
			return true, nil
		}
		if p := cur.Proto().o; p != nil {
			stack = append(stack, p)
		}
		if act.Version() >= 7 {
			for _, iface := range cur.interfaces {
				if iface == constructor {
					return true, nil
				}
				pv, err := iface.Get(act, "prototype")
				if err != nil {
					return false, err
				}
				if pv.o != nil {
					stack = append(stack, pv.o)
				}
			}
		}
	}
	return false, nil
}

// SetInterfaces records the interfaces a constructor's prototype
// implements.
func (o *Object) SetInterfaces(ifaces []*Object) {
	o.interfaces = ifaces
	o.barrier()
}

// ---------------------------------------------------------------------------
// Calling
// ---------------------------------------------------------------------------

// Call invokes o as a function. Non-functions return undefined.
func (o *Object) Call(act *Activation, this Value, args []Value) (Value, error) {
	if o.super != nil {
		return o.callSuperConstructor(act, args)
	}
	return o.exec(act, "[Anonymous]", this, 0, args)
}

func (o *Object) exec(act *Activation, name string, this Value, depth int, args []Value) (Value, error) {
	if o.fn == nil {
		return Undefined, nil
	}
	return o.fn.exec(act, name, this, depth, args, o)
}

// CallMethod looks up name on o's chain and calls it with this bound to o.
func (o *Object) CallMethod(act *Activation, name string, args []Value) (Value, error) {
	if o.super != nil {
		return o.callSuperMethod(act, name, args)
	}
	method, depth, found, err := o.search(act, name, o)
	if err != nil || !found || method.o == nil {
		return Undefined, err
	}
	if depth < 1 {
		depth = 1
	}
	return method.o.exec(act, name, ObjectValue(o), depth, args)
}

func (o *Object) callSuperMethod(act *Activation, name string, args []Value) (Value, error) {
	base := o.super.baseProto()
	if base == nil {
		return Undefined, nil
	}
	start := base.Proto().o
	if start == nil {
		return Undefined, nil
	}
	method, depth, found, err := start.search(act, name, o.super.this)
	if err != nil || !found || method.o == nil {
		return Undefined, err
	}
	return method.o.exec(act, name, ObjectValue(o.super.this), o.super.depth+depth+1, args)
}

func (o *Object) callSuperConstructor(act *Activation, args []Value) (Value, error) {
	base := o.super.baseProto()
	if base == nil {
		return Undefined, nil
	}
	ctor, err := base.Get(act, "__constructor__")
	if err != nil || ctor.o == nil {
		return Undefined, err
	}
	return ctor.o.exec(act, "[Super]", ObjectValue(o.super.this), o.super.depth+1, args)
}

// ---------------------------------------------------------------------------
// Array support
// ---------------------------------------------------------------------------

// parseArrayIndex accepts canonical non-negative decimal integers that fit
// in an int32.
func parseArrayIndex(name string) (int, bool) {
	if name == "" || len(name) > 10 || (len(name) > 1 && name[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(name, 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

func (o *Object) length(act *Activation) int {
	p := o.props.get("length", true)
	if p == nil {
		return 0
	}
	n, err := act.ToNumber(p.value)
	if err != nil {
		return 0
	}
	return int(toInt32(n))
}

// setLength stores a new length without deleting elements.
func (o *Object) setLength(act *Activation, n int) {
	if p := o.props.get("length", true); p != nil {
		p.value = Number(float64(n))
		return
	}
	o.props.insert("length", Number(float64(n)), DontEnum|DontDelete)
}

// truncate deletes indexed elements at or above n. The length property
// itself is written by the caller.
func (o *Object) truncate(act *Activation, n int) {
	if n < 0 {
		n = 0
	}
	if n >= o.length(act) {
		return
	}
	var doomed []*Property
	o.props.each(func(p *Property) {
		if idx, ok := parseArrayIndex(p.name); ok && idx >= n {
			doomed = append(doomed, p)
		}
	})
	for _, p := range doomed {
		o.props.remove(p)
	}
}

// Length returns an array's length property as an int.
func (o *Object) Length(act *Activation) int { return o.length(act) }

// Element reads index i of an array-like object.
func (o *Object) Element(act *Activation, i int) (Value, error) {
	return o.Get(act, strconv.Itoa(i))
}

// SetElement writes index i of an array-like object, growing length.
func (o *Object) SetElement(act *Activation, i int, v Value) error {
	return o.Set(act, strconv.Itoa(i), v)
}

// Elements snapshots an array's elements 0..length-1.
func (o *Object) Elements(act *Activation) ([]Value, error) {
	n := o.length(act)
	out := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		v, err := o.Element(act, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// replaceElements rewrites an array in place with vs.
func (o *Object) replaceElements(act *Activation, vs []Value) {
	o.truncate(act, 0)
	for i, v := range vs {
		o.props.insert(strconv.Itoa(i), v, 0)
	}
	o.setLength(act, len(vs))
	o.barrier()
}
