package avm1

import (
	"math/rand"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/text/encoding"

	"github.com/chazu/avmcore/backend"
	"github.com/chazu/avmcore/gc"
	"github.com/chazu/avmcore/limits"
)

var (
	log      = commonlog.GetLogger("avmcore.avm1")
	traceLog = commonlog.GetLogger("avmcore.trace")
)

// DefaultMaxCallDepth matches the legacy player's recursion limit.
const DefaultMaxCallDepth = 256

// ---------------------------------------------------------------------------
// Outcome
// ---------------------------------------------------------------------------

// State is the status of an execution unit after it stops running.
type State int

const (
	StateRunning State = iota
	StateReturned
	StateThrown
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateReturned:
		return "returned"
	case StateThrown:
		return "thrown"
	case StateSuspended:
		return "suspended"
	}
	return "unknown"
}

// Outcome reports how an execution unit stopped.
type Outcome struct {
	State State
	Value Value
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// Options configures a VM. Zero values select defaults.
type Options struct {
	Version        uint8
	Heap           *gc.Heap
	Limit          *limits.Limit
	Backends       backend.Backends
	Display        DisplayHost
	Sockets        backend.SocketSink
	MaxCallDepth   int
	Seed           int64
	LegacyCodepage string
	Now            func() time.Time

	// TraceHook, when set, also receives every trace() line.
	TraceHook func(string)
}

type prototypes struct {
	object       *Object
	function     *Object
	array        *Object
	string       *Object
	number       *Object
	boolean      *Object
	error        *Object
	sharedObject *Object
	xmlSocket    *Object
}

// VM is one AVM1 instance: its globals, prototypes, global registers and
// the stack of running activations. It is driven from a single goroutine.
type VM struct {
	heap     *gc.Heap
	version  uint8
	limit    *limits.Limit
	backends backend.Backends
	shared   *backend.SharedObjects
	display  DisplayHost
	sink     backend.SocketSink
	legacy   *encoding.Decoder
	rand     *rand.Rand
	now      func() time.Time
	start    time.Time

	traceHook func(string)

	maxCallDepth int
	callDepth    int

	global      *Object
	globalScope *Scope
	root        *Object
	protos      prototypes
	registers   [4]Value
	pool        []string

	activations   []*Activation
	continuations []*Continuation
	sockets       map[string]*Object
	sharedCache   map[string]*Object

	removeRoot func()
}

// New creates a VM with the built-in globals installed.
func New(opts Options) *VM {
	if opts.Version == 0 {
		opts.Version = 8
	}
	if opts.Heap == nil {
		opts.Heap = gc.NewHeap(0)
	}
	if opts.Display == nil {
		opts.Display = NoDisplay{}
	}
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultMaxCallDepth
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	nullBackends := backend.Null()
	if opts.Backends.Audio == nil {
		opts.Backends.Audio = nullBackends.Audio
	}
	if opts.Backends.Navigator == nil {
		opts.Backends.Navigator = nullBackends.Navigator
	}
	if opts.Backends.Storage == nil {
		opts.Backends.Storage = nullBackends.Storage
	}
	if opts.Backends.UI == nil {
		opts.Backends.UI = nullBackends.UI
	}
	if opts.Backends.Render == nil {
		opts.Backends.Render = nullBackends.Render
	}
	seed := opts.Seed
	if seed == 0 {
		seed = opts.Now().UnixNano()
	}

	vm := &VM{
		heap:         opts.Heap,
		version:      opts.Version,
		limit:        opts.Limit,
		backends:     opts.Backends,
		shared:       backend.NewSharedObjects(opts.Backends.Storage),
		display:      opts.Display,
		sink:         opts.Sockets,
		legacy:       LegacyDecoder(opts.LegacyCodepage),
		rand:         rand.New(rand.NewSource(seed)),
		now:          opts.Now,
		maxCallDepth: opts.MaxCallDepth,
		traceHook:    opts.TraceHook,
		sockets:      make(map[string]*Object),
		sharedCache:  make(map[string]*Object),
	}
	vm.start = vm.now()
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
	t.Mark(vm.global)
	t.Mark(vm.root)
	for _, p := range []*Object{
		vm.protos.object, vm.protos.function, vm.protos.array, vm.protos.string,
		vm.protos.number, vm.protos.boolean, vm.protos.error,
		vm.protos.sharedObject, vm.protos.xmlSocket,
	} {
		if p != nil {
			t.Mark(p)
		}
	}
	for _, r := range vm.registers {
		markValue(t, r)
	}
	for _, a := range vm.activations {
		a.trace(t)
	}
	for _, c := range vm.continuations {
		c.act.trace(t)
	}
	for _, s := range vm.sockets {
		t.Mark(s)
	}
	for _, so := range vm.sharedCache {
		t.Mark(so)
	}
}

// Heap returns the heap the VM allocates on.
func (vm *VM) Heap() *gc.Heap { return vm.heap }

// Version returns the SWF version the VM was created for.
func (vm *VM) Version() uint8 { return vm.version }

// Global returns the _global object.
func (vm *VM) Global() *Object { return vm.global }

// Root returns the _root timeline object.
func (vm *VM) Root() *Object { return vm.root }

// SetLimit replaces the execution limit checked on every action.
func (vm *VM) SetLimit(l *limits.Limit) { vm.limit = l }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func (vm *VM) alloc(o *Object) *Object {
	o.vm = vm
	return gc.Alloc(vm.heap, o)
}

// NewObject allocates a plain object inheriting Object.prototype.
func (vm *VM) NewObject() *Object {
	return vm.newObjectWithProto(ObjectValue(vm.protos.object))
}

func (vm *VM) newObjectWithProto(proto Value) *Object {
	o := vm.alloc(&Object{})
	if proto.kind == KindObject {
		o.props.insert("__proto__", proto, DontEnum|DontDelete)
	}
	return o
}

// NewArray allocates an array holding vs.
func (vm *VM) NewArray(vs []Value) *Object {
	return vm.newArrayWithProto(ObjectValue(vm.protos.array), vs)
}

func (vm *VM) newArrayWithProto(proto Value, vs []Value) *Object {
	o := vm.newObjectWithProto(proto)
	o.class = "Array"
	o.array = true
	o.props.insert("length", Number(float64(len(vs))), DontEnum|DontDelete)
	for i, v := range vs {
		o.props.insert(itoa(i), v, 0)
	}
	o.barrier()
	return o
}

func (vm *VM) newBoxed(class string, v Value, proto *Object) *Object {
	o := vm.newObjectWithProto(ObjectValue(proto))
	o.class = class
	o.primitive = v
	if v.kind == KindString {
		o.props.insert("length", Number(float64(stringLength(v.s))), DontEnum|DontDelete|ReadOnly)
	}
	return o
}

func (vm *VM) newNative(name string, fn NativeFunc, fnProto *Object) *Object {
	o := vm.newObjectWithProto(ObjectValue(fnProto))
	o.class = "Function"
	o.fn = &Function{name: name, native: fn}
	return o
}

// NewFunction wraps a native Go function as a script function object.
func (vm *VM) NewFunction(name string, fn NativeFunc) *Object {
	return vm.newNative(name, fn, vm.protos.function)
}

// newFunctionObject wraps f with a fresh prototype object whose
// constructor points back at the function.
func (vm *VM) newFunctionObject(f *Function) *Object {
	fnObj := vm.newObjectWithProto(ObjectValue(vm.protos.function))
	fnObj.class = "Function"
	fnObj.fn = f
	proto := vm.NewObject()
	proto.Define("constructor", ObjectValue(fnObj), DontEnum)
	fnObj.Define("prototype", ObjectValue(proto), DontEnum|DontDelete)
	return fnObj
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// RootActivation returns an activation over the global scope with this and
// the target bound to _root. Hosts use it to call into script objects.
func (vm *VM) RootActivation() *Activation {
	scope := NewScope(ScopeTarget, vm.root, vm.globalScope)
	return vm.newActivation(nil, vm.version, scope, ObjectValue(vm.root), vm.root)
}

// RunActions executes a frame script or event handler against target
// (_root when nil). An uncaught Throw yields StateThrown together with the
// *ThrownError. A WaitForFrame on a frame that is still streaming yields
// StateSuspended; the continuation is queued and resumed by ResumePending.
func (vm *VM) RunActions(code []byte, target *Object) (Outcome, error) {
	if target == nil {
		target = vm.root
	}
	scope := NewScope(ScopeTarget, target, vm.globalScope)
	act := vm.newActivation(code, vm.version, scope, ObjectValue(target), target)
	act.top = true
	act.pool = vm.pool
	return vm.runTop(act, 0)
}

func (vm *VM) runTop(act *Activation, pc int) (Outcome, error) {
	v, suspendAt, err := act.runFrom(pc)
	switch {
	case err != nil:
		if te, ok := err.(*ThrownError); ok {
			return Outcome{State: StateThrown, Value: te.Value}, err
		}
		return Outcome{State: StateRunning}, err
	case suspendAt >= 0:
		vm.continuations = append(vm.continuations, &Continuation{act: act, pc: suspendAt})
		return Outcome{State: StateSuspended}, nil
	}
	return Outcome{State: StateReturned, Value: v}, nil
}

// Call invokes fn with the given receiver from host code.
func (vm *VM) Call(fn *Object, this Value, args []Value) (Value, error) {
	return fn.Call(vm.RootActivation(), this, args)
}

// Construct runs `new ctor(args...)` from host code.
func (vm *VM) Construct(ctor *Object, args []Value) (*Object, error) {
	v, err := vm.RootActivation().construct(ctor, args)
	return v.o, err
}

// GetVariable resolves a variable path from the root timeline.
func (vm *VM) GetVariable(path string) (Value, error) {
	return vm.RootActivation().getVariable(path)
}

// SetVariable assigns a variable path from the root timeline.
func (vm *VM) SetVariable(path string, v Value) error {
	return vm.RootActivation().setVariable(path, v)
}

// ---------------------------------------------------------------------------
// Continuations
// ---------------------------------------------------------------------------

// Continuation is a suspended top-level execution unit.
type Continuation struct {
	act *Activation
	pc  int
}

// Resume continues the unit from its suspension point. It may suspend
// again, in which case a new continuation is queued.
func (c *Continuation) Resume() (Outcome, error) {
	return c.act.vm.runTop(c.act, c.pc)
}

// Pending returns the number of queued continuations.
func (vm *VM) Pending() int { return len(vm.continuations) }

// ResumePending resumes every queued continuation once, in order. Errors
// abandon only the failing unit; the first is returned.
func (vm *VM) ResumePending() error {
	queued := vm.continuations
	vm.continuations = nil
	var first error
	for _, c := range queued {
		if _, err := c.Resume(); err != nil {
			log.Errorf("resumed script failed: %s", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// elapsedMillis is what GetTime reports.
func (vm *VM) elapsedMillis() float64 {
	return float64(vm.now().Sub(vm.start).Milliseconds())
}
