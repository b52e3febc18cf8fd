package avm2

import (
	"math/rand"
	"slices"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/avmcore/backend"
	"github.com/chazu/avmcore/gc"
	"github.com/chazu/avmcore/intern"
	"github.com/chazu/avmcore/limits"
)

var (
	log      = commonlog.GetLogger("avmcore.avm2")
	traceLog = commonlog.GetLogger("avmcore.trace")
)

// DefaultMaxCallDepth bounds nested method calls.
const DefaultMaxCallDepth = 256

// Options configures a VM. Zero values select defaults.
type Options struct {
	Heap         *gc.Heap
	Atoms        *intern.Table
	Limit        *limits.Limit
	Backends     backend.Backends
	MaxCallDepth int
	Seed         int64

	// DisableInlineCache forces full multiname resolution at every
	// property site.
	DisableInlineCache bool

	// TraceHook, when set, also receives every trace() line.
	TraceHook func(string)
}

type builtins struct {
	object, class, function, array     *Class
	str, number, intc, uintc, boolean  *Class
	global, math, regexp, sharedObject *Class
	errors                             [KindVerifyError + 1]*Class
}

// VM is one AVM2 instance: the class registry, the global object and the
// activation stack. It is driven from a single goroutine.
type VM struct {
	heap     *gc.Heap
	atoms    *intern.Table
	limit    *limits.Limit
	backends backend.Backends
	shared   *backend.SharedObjects
	rand     *rand.Rand

	traceHook func(string)
	noIC      bool

	maxCallDepth int
	activations  []*Activation

	public      *Namespace
	builtins    builtins
	classes     map[string][]*Class
	global      *Object
	globalScope *ScopeChain
	sharedCache map[string]*Object
	bodies      map[*verifiedBody]struct{}

	removeRoot func()
}

// New creates a VM with the built-in classes defined.
func New(opts Options) *VM {
	if opts.Heap == nil {
		opts.Heap = gc.NewHeap(0)
	}
	if opts.Atoms == nil {
		opts.Atoms = intern.NewTable()
	}
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultMaxCallDepth
	}
	null := backend.Null()
	if opts.Backends.Storage == nil {
		opts.Backends.Storage = null.Storage
	}
	if opts.Backends.Navigator == nil {
		opts.Backends.Navigator = null.Navigator
	}
	if opts.Backends.UI == nil {
		opts.Backends.UI = null.UI
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	vm := &VM{
		heap:         opts.Heap,
		atoms:        opts.Atoms,
		limit:        opts.Limit,
		backends:     opts.Backends,
		shared:       backend.NewSharedObjects(opts.Backends.Storage),
		rand:         rand.New(rand.NewSource(seed)),
		traceHook:    opts.TraceHook,
		noIC:         opts.DisableInlineCache,
		maxCallDepth: opts.MaxCallDepth,
		classes:      make(map[string][]*Class),
		sharedCache:  make(map[string]*Object),
		bodies:       make(map[*verifiedBody]struct{}),
	}
	vm.public = NewNamespace(NSPackage, vm.atoms.Intern(""))
	vm.removeRoot = vm.heap.AddRoot(gc.RootFunc(vm.traceRoots))
	vm.installGlobals()
	return vm
}

// Close unregisters the VM's roots from the heap.
func (vm *VM) Close() {
	if vm.removeRoot != nil {
		vm.removeRoot()
		vm.removeRoot = nil
	}
}

func (vm *VM) traceRoots(t *gc.Tracer) {
	if vm.global != nil {
		t.Mark(vm.global)
	}
	for _, cs := range vm.classes {
		for _, c := range cs {
			if c.object != nil {
				t.Mark(c.object)
			}
			if c.prototype != nil {
				t.Mark(c.prototype)
			}
		}
	}
	for _, a := range vm.activations {
		a.trace(t)
	}
	for _, so := range vm.sharedCache {
		t.Mark(so)
	}
}

func (vm *VM) Heap() *gc.Heap           { return vm.heap }
func (vm *VM) Atoms() *intern.Table     { return vm.atoms }
func (vm *VM) Global() *Object          { return vm.global }
func (vm *VM) Public() *Namespace       { return vm.public }
func (vm *VM) SetLimit(l *limits.Limit) { vm.limit = l }

// publicName is the public QName for local.
func (vm *VM) publicName(local string) QName {
	return QName{NS: vm.public, Local: vm.atoms.Intern(local)}
}

// PublicName returns a public multiname for local. Canonical array
// indices address array elements, as the same name computed at run time
// would.
func (vm *VM) PublicName(local string) *Multiname {
	m := NewQNameRef(vm.public, vm.atoms.Intern(local))
	if i, ok := arrayIndex(local); ok {
		m.index = i
	}
	return m
}

// NewABC creates a constant pool sharing the VM's interner.
func (vm *VM) NewABC() *ABC { return NewABC(vm.atoms) }

// InlineCacheStats sums the inline caches of every verified method.
func (vm *VM) InlineCacheStats() ICStats {
	var s ICStats
	for b := range vm.bodies {
		b.caches.addTo(&s)
	}
	return s
}

func (vm *VM) trackBody(b *verifiedBody) {
	if _, ok := vm.bodies[b]; !ok {
		vm.bodies[b] = struct{}{}
	}
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func (vm *VM) alloc(o *Object) *Object {
	o.vm = vm
	return gc.Alloc(vm.heap, o)
}

// allocInstance creates the bare storage for an instance of c. The first
// native allocator found walking up from c prepares the payload.
func (vm *VM) allocInstance(c *Class) *Object {
	o := vm.alloc(&Object{class: c, vt: c.vt, proto: c.prototype})
	o.slots = make([]Value, len(c.vt.slots))
	if c.dynamic() {
		o.dynamic = newDynamicMap()
	}
	for cur := c; cur != nil; cur = cur.Super {
		if cur.alloc != nil {
			cur.alloc(o)
			break
		}
	}
	return o
}

// NewObject allocates a plain dynamic Object.
func (vm *VM) NewObject() *Object {
	return vm.allocInstance(vm.builtins.object)
}

// NewArray allocates an Array holding vs.
func (vm *VM) NewArray(vs []Value) *Object {
	o := vm.allocInstance(vm.builtins.array)
	o.array().replace(slices.Clone(vs))
	o.barrier()
	return o
}

// NewError allocates an error of the given kind.
func (vm *VM) NewError(kind ErrorKind, message string, code int) *Object {
	o := vm.allocInstance(vm.builtins.errors[kind])
	for c := o.class; c != nil; c = c.Super {
		if c.isError {
			vm.applySlotDefaults(c, o)
		}
	}
	o.setSlotNamed("name", String(o.class.Name.LocalName()))
	o.setSlotNamed("message", String(message))
	o.setSlotNamed("errorID", Int(int32(code)))
	return o
}

// ---------------------------------------------------------------------------
// Class registry
// ---------------------------------------------------------------------------

func (vm *VM) register(c *Class) {
	k := c.Name.LocalName()
	vm.classes[k] = append(vm.classes[k], c)
}

// findClass resolves a type name.
func (vm *VM) findClass(mn *Multiname) (*Class, error) {
	if mn.Local == nil {
		return nil, nil
	}
	var found *Class
	for _, c := range vm.classes[mn.Local.String()] {
		if !mn.Matches(c.Name) {
			continue
		}
		if found != nil && found != c {
			return nil, vm.ambiguous(mn, "global")
		}
		found = c
	}
	return found, nil
}

// ClassByName returns a registered public class.
func (vm *VM) ClassByName(local string) *Class {
	c, _ := vm.findClass(vm.PublicName(local))
	return c
}

// DefineClass links c, creates its class object, runs its class
// initializer and publishes it on the global object. The superclass is
// defined first if needed.
func (vm *VM) DefineClass(c *Class) error {
	if c.object != nil {
		return nil
	}
	if c.Super != nil && c.Super.object == nil {
		if err := vm.DefineClass(c.Super); err != nil {
			return err
		}
	}
	if c.scope == nil {
		c.scope = vm.globalScope
	}
	if err := c.Link(); err != nil {
		return err
	}
	obj, err := vm.createClassObject(vm.rootActivation(), c)
	if err != nil {
		return err
	}
	vm.register(c)
	return vm.defineGlobal(c.Name, ObjectValue(obj))
}

// createClassObject builds the prototype and class object of a linked
// class and runs its class initializer.
func (vm *VM) createClassObject(act *Activation, c *Class) (*Object, error) {
	var protoParent *Object
	if c.Super != nil {
		protoParent = c.Super.prototype
	}
	proto := vm.alloc(&Object{class: vm.builtins.object, dynamic: newDynamicMap(), proto: protoParent})
	if vm.builtins.object != nil && vm.builtins.object.vt != nil {
		proto.vt = vm.builtins.object.vt
	} else {
		proto.vt = c.vt
	}
	proto.slots = make([]Value, len(proto.vt.slots))
	c.prototype = proto

	var classProto *Object
	if cc := vm.builtins.class; cc != nil {
		classProto = cc.prototype
	}
	obj := vm.alloc(&Object{class: vm.builtins.class, vt: c.staticVT, proto: classProto, native: c})
	obj.slots = make([]Value, len(c.staticVT.slots))
	for i, s := range c.staticVT.slots {
		obj.slots[i] = s.def
		if s.class != nil {
			if s.class.object == nil {
				if s.class.scope == nil {
					s.class.scope = c.scope
				}
				if err := s.class.Link(); err != nil {
					return nil, err
				}
				if _, err := vm.createClassObject(act, s.class); err != nil {
					return nil, err
				}
				vm.register(s.class)
			}
			obj.slots[i] = ObjectValue(s.class.object)
		}
	}
	c.object = obj
	c.scope = c.scope.extend([]scopeEntry{{obj: obj}})
	proto.setHidden("constructor", ObjectValue(obj))

	if c.ClassInit != nil {
		if _, err := vm.callMethod(act, c.ClassInit, c, c.scope, ObjectValue(obj), nil); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// defineGlobal adds a constant to the global object.
func (vm *VM) defineGlobal(name QName, v Value) error {
	g := vm.global
	if i := g.vt.slotByName(name); i >= 0 {
		g.setSlot(i, v)
		return nil
	}
	if err := g.vt.addTrait(Trait{Name: name, Kind: TraitConst, Default: v, HasDefault: true}, g.class); err != nil {
		return err
	}
	g.slots = append(g.slots, v)
	g.barrier()
	return nil
}

// DefineFunction publishes a native function on the global object.
func (vm *VM) DefineFunction(name string, fn NativeMethod) error {
	return vm.defineGlobal(vm.publicName(name), ObjectValue(vm.NewFunction(name, fn)))
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// Construct runs `new c(args...)` from host code.
func (vm *VM) Construct(c *Class, args []Value) (*Object, error) {
	v, err := vm.construct(vm.rootActivation(), c, args)
	return v.o, err
}

func (vm *VM) construct(act *Activation, c *Class, args []Value) (Value, error) {
	if c.primitive {
		return vm.callClass(act, c, args)
	}
	if c.noNew {
		return Undefined, vm.typeError(1076, "%s is not a constructor.", c.Name.LocalName())
	}
	if c.Interface {
		return Undefined, vm.typeError(1007, "Instantiation attempted on a non-constructor.")
	}
	if c.object == nil {
		if err := vm.DefineClass(c); err != nil {
			return Undefined, err
		}
	}
	o := vm.allocInstance(c)
	if err := vm.initialize(act, c, o, args); err != nil {
		return Undefined, err
	}
	return ObjectValue(o), nil
}

// initialize runs the initializer chain for level c. The root level
// applies its slot defaults first; every derived level must reach its
// superclass through constructsuper or SuperInit, after which that
// level's own slot defaults are applied.
func (vm *VM) initialize(act *Activation, c *Class, o *Object, args []Value) error {
	if c.Super == nil {
		vm.applySlotDefaults(c, o)
		if c.InstanceInit == nil {
			return nil
		}
		_, err := vm.callMethod(act, c.InstanceInit, c, c.scope, ObjectValue(o), args)
		return err
	}
	if c.InstanceInit == nil {
		if err := vm.initialize(act, c.Super, o, nil); err != nil {
			return err
		}
		vm.applySlotDefaults(c, o)
		return nil
	}
	return vm.callInit(act, c, o, args)
}

func (vm *VM) applySlotDefaults(c *Class, o *Object) {
	for _, i := range c.ownSlots() {
		o.slots[i] = c.vt.slots[i].def
	}
	o.barrier()
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// rootActivation is the caller context for host entry points.
func (vm *VM) rootActivation() *Activation {
	return &Activation{vm: vm, outer: vm.globalScope, this: ObjectValue(vm.global)}
}

// Call invokes fn from host code.
func (vm *VM) Call(fn *Object, this Value, args []Value) (Value, error) {
	return vm.callValue(vm.rootActivation(), ObjectValue(fn), this, args)
}

// CallMethod calls a public method or function property of recv.
func (vm *VM) CallMethod(recv Value, name string, args []Value) (Value, error) {
	return vm.callProperty(vm.rootActivation(), recv, vm.PublicName(name), args, recv)
}

// GetProperty reads a public property of recv from host code.
func (vm *VM) GetProperty(recv Value, name string) (Value, error) {
	return vm.getProperty(vm.rootActivation(), recv, vm.PublicName(name))
}

// SetProperty writes a public property of recv from host code.
func (vm *VM) SetProperty(recv Value, name string, v Value) error {
	return vm.setProperty(vm.rootActivation(), recv, vm.PublicName(name), v)
}

// CallFunction runs m as a script-level function with the global object
// as receiver.
func (vm *VM) CallFunction(m *Method, args []Value) (Value, error) {
	return vm.callMethod(vm.rootActivation(), m, nil, vm.globalScope, ObjectValue(vm.global), args)
}

func (vm *VM) enter(a *Activation) error {
	if len(vm.activations) >= vm.maxCallDepth {
		return ErrStackOverflow
	}
	vm.activations = append(vm.activations, a)
	return nil
}

func (vm *VM) leave() {
	n := len(vm.activations) - 1
	vm.activations[n] = nil
	vm.activations = vm.activations[:n]
}

// callMethod runs m with the given receiver. cls is the class that
// declared m and scope its captured outer scope.
func (vm *VM) callMethod(caller *Activation, m *Method, cls *Class, scope *ScopeChain, this Value, args []Value) (Value, error) {
	a := &Activation{vm: vm, method: m, class: cls, outer: scope, this: this, abc: m.abc}
	if err := vm.enter(a); err != nil {
		return Undefined, err
	}
	defer vm.leave()
	if m.Native != nil {
		return m.Native(a, this, args)
	}
	if err := a.prepare(args); err != nil {
		return Undefined, err
	}
	return a.run()
}

// callInit runs level c's instance initializer and checks that it called
// its super initializer.
func (vm *VM) callInit(caller *Activation, c *Class, o *Object, args []Value) error {
	m := c.InstanceInit
	a := &Activation{vm: vm, method: m, class: c, outer: c.scope, this: ObjectValue(o), abc: m.abc, initClass: c}
	if err := vm.enter(a); err != nil {
		return err
	}
	defer vm.leave()
	var err error
	if m.Native != nil {
		_, err = m.Native(a, a.this, args)
	} else if err = a.prepare(args); err == nil {
		_, err = a.run()
	}
	if err != nil {
		return err
	}
	if !a.superCalled {
		return ErrSuperNotCalled
	}
	return nil
}
