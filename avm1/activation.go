package avm1

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/avmcore/gc"
)

// ---------------------------------------------------------------------------
// Activation: Execution state for one code body
// ---------------------------------------------------------------------------

// Activation is the execution record of a frame script, event handler or
// function call: operand stack, registers, scope chain, constant pool and
// the receiver. Natives receive the caller's activation and may re-enter
// the interpreter through it.
type Activation struct {
	vm      *VM
	name    string
	version uint8
	code    []byte
	pool    []string

	scope     *Scope
	this      Value
	callee    *Object
	caller    *Object
	target    *Object
	registers []Value
	stack     []Value

	// top marks a frame-level unit, the only kind that may suspend.
	top bool
}

func (vm *VM) newActivation(code []byte, version uint8, scope *Scope, this Value, target *Object) *Activation {
	return &Activation{
		vm:      vm,
		name:    "[Frame]",
		version: version,
		code:    code,
		scope:   scope,
		this:    this,
		target:  target,
	}
}

// VM returns the owning VM.
func (a *Activation) VM() *VM { return a.vm }

// Version returns the SWF version the running code was compiled for.
func (a *Activation) Version() uint8 { return a.version }

// This returns the receiver.
func (a *Activation) This() Value { return a.this }

// Scope returns the innermost scope.
func (a *Activation) Scope() *Scope { return a.scope }

// Target returns the timeline object the code runs against.
func (a *Activation) Target() *Object { return a.targetOrRoot() }

func (a *Activation) caseSensitive() bool { return a.version >= 7 }

func (a *Activation) targetOrRoot() *Object {
	if a.target != nil {
		return a.target
	}
	return a.vm.root
}

func (a *Activation) describe() string {
	return fmt.Sprintf("%s (swf %d)", a.name, a.version)
}

func (a *Activation) trace(t *gc.Tracer) {
	for _, v := range a.stack {
		markValue(t, v)
	}
	for _, v := range a.registers {
		markValue(t, v)
	}
	markValue(t, a.this)
	if a.callee != nil {
		t.Mark(a.callee)
	}
	if a.caller != nil {
		t.Mark(a.caller)
	}
	if a.target != nil {
		t.Mark(a.target)
	}
	a.scope.trace(t)
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (a *Activation) push(v Value) {
	a.stack = append(a.stack, v)
}

// pop panics with stackUnderflow on an empty stack; runFrom converts the
// panic to ErrStackUnderflow.
func (a *Activation) pop() Value {
	n := len(a.stack)
	if n == 0 {
		panic(stackUnderflow{})
	}
	v := a.stack[n-1]
	a.stack[n-1] = Value{}
	a.stack = a.stack[:n-1]
	return v
}

func (a *Activation) peek() Value {
	if len(a.stack) == 0 {
		panic(stackUnderflow{})
	}
	return a.stack[len(a.stack)-1]
}

// popArgs pops a count and then that many arguments, first argument on
// top. Counts larger than the stack are clamped.
func (a *Activation) popArgs() ([]Value, error) {
	n, err := a.ToNumber(a.pop())
	if err != nil {
		return nil, err
	}
	count := int(toInt32(n))
	if count < 0 {
		count = 0
	}
	if count > len(a.stack) {
		count = len(a.stack)
	}
	args := make([]Value, count)
	for i := range args {
		args[i] = a.pop()
	}
	return args, nil
}

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

func (a *Activation) registerSlice() []Value {
	if a.registers != nil {
		return a.registers
	}
	return a.vm.registers[:]
}

func (a *Activation) register(i int) (Value, error) {
	regs := a.registerSlice()
	if i < 0 || i >= len(regs) {
		return Undefined, fmt.Errorf("%w: r%d of %d", ErrBadRegister, i, len(regs))
	}
	return regs[i], nil
}

func (a *Activation) setRegister(i int, v Value) error {
	regs := a.registerSlice()
	if i < 0 || i >= len(regs) {
		return fmt.Errorf("%w: r%d of %d", ErrBadRegister, i, len(regs))
	}
	regs[i] = v
	return nil
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

func (a *Activation) run() (Value, error) {
	v, _, err := a.runFrom(0)
	return v, err
}

// runFrom executes the code body from pc. suspendAt is the offset to resume
// from when a top-level unit suspends, or -1.
func (a *Activation) runFrom(pc int) (v Value, suspendAt int, err error) {
	vm := a.vm
	vm.activations = append(vm.activations, a)
	defer func() {
		vm.activations = vm.activations[:len(vm.activations)-1]
		if r := recover(); r != nil {
			if _, ok := r.(stackUnderflow); !ok {
				panic(r)
			}
			v, suspendAt, err = Undefined, -1, fmt.Errorf("%w in %s", ErrStackUnderflow, a.describe())
		}
	}()

	ctl, err := a.runBlock(pc, 0, len(a.code))
	if err != nil {
		return Undefined, -1, err
	}
	switch ctl.kind {
	case ctlReturn:
		return ctl.value, -1, nil
	case ctlJump:
		return Undefined, -1, fmt.Errorf("%w: %d in %s", ErrBadJump, ctl.target, a.describe())
	case ctlSuspend:
		return Undefined, ctl.target, nil
	}
	return Undefined, -1, nil
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// resolve looks a plain name up: keywords first, then the scope chain.
func (a *Activation) resolve(name string) (Value, error) {
	switch a.keyword(name) {
	case "this":
		return a.this, nil
	case "_global":
		if a.version >= 6 {
			return ObjectValue(a.vm.global), nil
		}
	case "_root", "_level0":
		return ObjectValue(a.vm.root), nil
	case "_parent":
		return a.vm.display.Parent(a.targetOrRoot()), nil
	}
	v, _, _, err := a.scope.resolve(a, name)
	return v, err
}

func (a *Activation) keyword(name string) string {
	if a.caseSensitive() {
		return name
	}
	return foldName(name)
}

// getVariable implements GetVariable path syntax: "name", "a.b.c",
// "/clip:var" and "clip/child".
func (a *Activation) getVariable(path string) (Value, error) {
	if i := strings.LastIndexAny(path, ":."); i >= 0 {
		obj, err := a.resolveTargetPath(path[:i])
		if err != nil || obj == nil {
			return Undefined, err
		}
		return obj.Get(a, path[i+1:])
	}
	if strings.Contains(path, "/") {
		obj, err := a.resolveTargetPath(path)
		if err != nil || obj == nil {
			return Undefined, err
		}
		return ObjectValue(obj), nil
	}
	return a.resolve(path)
}

// setVariable implements SetVariable path syntax.
func (a *Activation) setVariable(path string, v Value) error {
	if path == "" {
		return nil
	}
	if i := strings.LastIndexAny(path, ":."); i >= 0 {
		obj, err := a.resolveTargetPath(path[:i])
		if err != nil || obj == nil {
			return err
		}
		return obj.Set(a, path[i+1:], v)
	}
	return a.scope.set(a, path, v)
}

// resolveTargetPath follows a slash or dot path to an object. The first
// relative segment is looked up on the scope chain, later ones as
// properties. It returns nil when any segment is not an object.
func (a *Activation) resolveTargetPath(path string) (*Object, error) {
	cur := a.targetOrRoot()
	if path == "" {
		return cur, nil
	}
	first := true
	if path[0] == '/' {
		cur = a.vm.root
		path = path[1:]
		first = false
	}
	segments := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '.' || r == ':'
	})
	for _, seg := range segments {
		var next Value
		var err error
		switch a.keyword(seg) {
		case "..", "_parent":
			next = a.vm.display.Parent(cur)
		case "_root", "_level0":
			next = ObjectValue(a.vm.root)
		case "this":
			next = a.this
		case "_global":
			next = ObjectValue(a.vm.global)
		default:
			if first {
				next, err = a.resolve(seg)
			} else {
				next, err = cur.Get(a, seg)
			}
		}
		if err != nil {
			return nil, err
		}
		if next.o == nil {
			return nil, nil
		}
		cur = next.o
		first = false
	}
	return cur, nil
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// construct implements `new ctor(args...)`: a fresh object inheriting
// ctor.prototype is passed as this; natives with a construct hook may
// return a different object.
func (a *Activation) construct(ctor *Object, args []Value) (Value, error) {
	if ctor == nil || ctor.fn == nil {
		return Undefined, nil
	}
	proto, err := ctor.Get(a, "prototype")
	if err != nil {
		return Undefined, err
	}
	this := a.vm.newObjectWithProto(proto)
	this.Define("__constructor__", ObjectValue(ctor), DontEnum)
	if a.version < 7 {
		this.Define("constructor", ObjectValue(ctor), DontEnum)
	}

	if hook := ctor.fn.construct; hook != nil {
		r, err := hook(a, this, args)
		if err != nil {
			return Undefined, err
		}
		if r.o != nil && r.o != this {
			r.o.Define("__constructor__", ObjectValue(ctor), DontEnum)
			if a.version < 7 {
				r.o.Define("constructor", ObjectValue(ctor), DontEnum)
			}
			return r, nil
		}
		return ObjectValue(this), nil
	}
	if _, err := ctor.exec(a, "[Constructor]", ObjectValue(this), 1, args); err != nil {
		return Undefined, err
	}
	return ObjectValue(this), nil
}

func itoa(i int) string { return strconv.Itoa(i) }
