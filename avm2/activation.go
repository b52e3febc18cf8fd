package avm2

import (
	"errors"

	"github.com/chazu/avmcore/gc"
)

// Activation is one method invocation: its registers, operand stack and
// local scope stack. Natives receive their own activation so they can
// call back into the VM.
type Activation struct {
	vm     *VM
	method *Method
	class  *Class
	outer  *ScopeChain
	abc    *ABC
	this   Value

	body   *verifiedBody
	locals []Value
	stack  []Value
	scope  []scopeEntry
	pc     int

	// initClass is set while running an instance initializer.
	initClass   *Class
	superCalled bool
}

func (a *Activation) VM() *VM         { return a.vm }
func (a *Activation) This() Value     { return a.this }
func (a *Activation) Method() *Method { return a.method }

func (a *Activation) trace(t *gc.Tracer) {
	markValue(t, a.this)
	for _, v := range a.locals {
		markValue(t, v)
	}
	for _, v := range a.stack {
		markValue(t, v)
	}
	for _, e := range a.scope {
		t.Mark(e.obj)
	}
	a.outer.trace(t)
}

// SuperInit runs the superclass initializer chain for the object under
// construction and then applies this level's slot defaults. A second call
// does nothing.
func (a *Activation) SuperInit(args []Value) error {
	if a.initClass == nil {
		return verifyErrorf(1035, "Illegal super expression found in method %s.", a.method)
	}
	if a.superCalled {
		return nil
	}
	c, o := a.initClass, a.this.o
	if c.Super != nil {
		if err := a.vm.initialize(a, c.Super, o, args); err != nil {
			return err
		}
	}
	a.vm.applySlotDefaults(c, o)
	a.superCalled = true
	return nil
}

// checkThis rejects use of the object under construction before its
// super initializer ran.
func (a *Activation) checkThis(v Value) error {
	if a.initClass != nil && !a.superCalled && v.o != nil && v.o == a.this.o && a.initClass.Super != nil {
		return ErrSuperNotCalled
	}
	return nil
}

// prepare verifies the body and fills the registers: this, the declared
// parameters coerced to their types, then the rest array or arguments.
func (a *Activation) prepare(args []Value) error {
	m := a.method
	body, err := m.verifiedBody()
	if err != nil {
		return err
	}
	a.vm.trackBody(body)

	required := m.requiredParams()
	variadic := m.Flags&(NeedRest|NeedArguments) != 0
	if len(args) < required || (!variadic && len(args) > len(m.Params)) {
		return a.vm.throwError(KindArgumentError, 1063, "Argument count mismatch on %s. Expected %d, got %d.", m, required, len(args))
	}

	n := m.Body.NumLocals
	if need := len(m.Params) + 2; n < need {
		n = need
	}
	a.locals = make([]Value, n)
	a.locals[0] = a.this
	for i, p := range m.Params {
		v := p.Default
		if i < len(args) {
			v = args[i]
		}
		cv, err := a.vm.coerceTo(a, v, p.Type)
		if err != nil {
			return err
		}
		a.locals[1+i] = cv
	}
	extra := 1 + len(m.Params)
	switch {
	case m.Flags&NeedRest != 0:
		var rest []Value
		if len(args) > len(m.Params) {
			rest = args[len(m.Params):]
		}
		a.locals[extra] = ObjectValue(a.vm.NewArray(rest))
	case m.Flags&NeedArguments != 0:
		a.locals[extra] = ObjectValue(a.vm.NewArray(args))
	}
	a.body = body
	a.stack = make([]Value, 0, m.Body.MaxStack)
	a.scope = make([]scopeEntry, 0, m.Body.MaxScopeDepth)
	return nil
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (a *Activation) push(v Value) { a.stack = append(a.stack, v) }

func (a *Activation) pop() Value {
	n := len(a.stack) - 1
	if n < 0 {
		panic(stackUnderflow{})
	}
	v := a.stack[n]
	a.stack[n] = Value{}
	a.stack = a.stack[:n]
	return v
}

func (a *Activation) peek() Value {
	if len(a.stack) == 0 {
		panic(stackUnderflow{})
	}
	return a.stack[len(a.stack)-1]
}

// popN pops n values and returns them in push order.
func (a *Activation) popN(n int) []Value {
	if n > len(a.stack) {
		panic(stackUnderflow{})
	}
	start := len(a.stack) - n
	out := append([]Value(nil), a.stack[start:]...)
	clear(a.stack[start:])
	a.stack = a.stack[:start]
	return out
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

// handle looks for an exception handler covering the instruction at pos.
// On a match the stacks are reset, the exception value is pushed and
// execution resumes at the handler.
func (a *Activation) handle(pos int, err error) bool {
	var te *ThrownError
	if !errors.As(err, &te) {
		return false
	}
	for i := range a.body.handlers {
		h := &a.body.handlers[i]
		if pos < h.from || pos >= h.to {
			continue
		}
		if !a.catches(h, te.Value) {
			continue
		}
		a.stack = a.stack[:0]
		a.scope = a.scope[:0]
		a.push(te.Value)
		a.pc = h.target
		log.Debugf("%s: caught %s at %d", a.method, te.Value, pos)
		return true
	}
	return false
}

func (a *Activation) catches(h *handler, v Value) bool {
	if h.typ == nil || h.typ.Local == nil || h.typ.Local.String() == "*" {
		return true
	}
	if h.catchClass == nil {
		c, err := a.vm.findClass(h.typ)
		if err != nil || c == nil {
			return false
		}
		h.catchClass = c
	}
	return a.vm.isType(v, h.catchClass)
}
