package avm1

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/chazu/avmcore/backend"
	"github.com/chazu/avmcore/coerce"
)

// ---------------------------------------------------------------------------
// Block control
// ---------------------------------------------------------------------------

type ctlKind uint8

const (
	ctlNext    ctlKind = iota // continue at target
	ctlDone                   // block finished normally
	ctlReturn                 // Return with value
	ctlJump                   // branch to target, possibly outside the block
	ctlSuspend                // top-level unit waits at target
)

type control struct {
	kind   ctlKind
	value  Value
	target int
}

// runBlock executes the actions of a.code[start:end] beginning at pc.
// Branches that leave the block are handed back to the caller, which
// either owns the target or passes it further out.
func (a *Activation) runBlock(pc, start, end int) (control, error) {
	outermost := start == 0 && end == len(a.code)
	for pc < end {
		if a.vm.limit != nil {
			if err := a.vm.limit.Tick(); err != nil {
				return control{}, err
			}
		}
		ac, err := a.readAction(pc)
		if err != nil {
			return control{}, err
		}
		if ac.op == ActionEnd {
			break
		}
		ctl, err := a.step(ac, outermost)
		if err != nil {
			return control{}, err
		}
		switch ctl.kind {
		case ctlNext:
			pc = ctl.target
		case ctlJump:
			if ctl.target < start || ctl.target > end {
				return ctl, nil
			}
			pc = ctl.target
		default:
			return ctl, nil
		}
	}
	return control{kind: ctlDone}, nil
}

// step executes one action.
func (a *Activation) step(ac action, outermost bool) (control, error) {
	next := control{kind: ctlNext, target: ac.next}
	vm := a.vm

	switch ac.op {
	// Arithmetic
	case ActionAdd:
		return next, a.binaryNumber(func(x, y float64) float64 { return x + y })
	case ActionSubtract:
		return next, a.binaryNumber(func(x, y float64) float64 { return x - y })
	case ActionMultiply:
		return next, a.binaryNumber(func(x, y float64) float64 { return x * y })
	case ActionDivide:
		y, x, err := a.pop2Numbers()
		if err != nil {
			return next, err
		}
		if y == 0 && a.version < 5 {
			a.push(String("#ERROR#"))
		} else {
			a.push(Number(x / y))
		}
	case ActionModulo:
		return next, a.binaryNumber(math.Mod)
	case ActionIncrement, ActionDecrement:
		n, err := a.ToNumber(a.pop())
		if err != nil {
			return next, err
		}
		if ac.op == ActionIncrement {
			a.push(Number(n + 1))
		} else {
			a.push(Number(n - 1))
		}
	case ActionAdd2:
		return next, a.add2()

	// Comparison
	case ActionEquals:
		y, x, err := a.pop2Numbers()
		if err != nil {
			return next, err
		}
		a.push(fromBool(x == y, a.version))
	case ActionLess:
		y, x, err := a.pop2Numbers()
		if err != nil {
			return next, err
		}
		a.push(fromBool(x < y, a.version))
	case ActionEquals2:
		y, x := a.pop(), a.pop()
		eq, err := a.AbstractEq(x, y)
		if err != nil {
			return next, err
		}
		a.push(fromBool(eq, a.version))
	case ActionStrictEquals:
		y, x := a.pop(), a.pop()
		a.push(Bool(StrictEquals(x, y)))
	case ActionLess2:
		y, x := a.pop(), a.pop()
		r, err := a.AbstractLt(x, y)
		if err != nil {
			return next, err
		}
		a.push(r)
	case ActionGreater:
		y, x := a.pop(), a.pop()
		r, err := a.AbstractLt(y, x)
		if err != nil {
			return next, err
		}
		a.push(r)

	// Logic
	case ActionAnd:
		y, x := a.pop(), a.pop()
		a.push(fromBool(a.ToBool(x) && a.ToBool(y), a.version))
	case ActionOr:
		y, x := a.pop(), a.pop()
		a.push(fromBool(a.ToBool(x) || a.ToBool(y), a.version))
	case ActionNot:
		a.push(fromBool(!a.ToBool(a.pop()), a.version))

	// Bitwise
	case ActionBitAnd, ActionBitOr, ActionBitXor, ActionBitLShift, ActionBitRShift, ActionBitURShift:
		return next, a.bitwise(ac.op)

	// Strings
	case ActionStringAdd:
		y, x, err := a.pop2Strings()
		if err != nil {
			return next, err
		}
		a.push(String(x + y))
	case ActionStringEquals:
		y, x, err := a.pop2Strings()
		if err != nil {
			return next, err
		}
		a.push(fromBool(x == y, a.version))
	case ActionStringLess:
		y, x, err := a.pop2Strings()
		if err != nil {
			return next, err
		}
		a.push(fromBool(coerce.CompareUTF16(x, y) < 0, a.version))
	case ActionStringGreater:
		y, x, err := a.pop2Strings()
		if err != nil {
			return next, err
		}
		a.push(fromBool(coerce.CompareUTF16(x, y) > 0, a.version))
	case ActionStringLength, ActionMBStringLen:
		s, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		if ac.op == ActionStringLength {
			a.push(Number(float64(len(s))))
		} else {
			a.push(Number(float64(utf8.RuneCountInString(s))))
		}
	case ActionStringExtract, ActionMBStringExt:
		return next, a.stringExtract(ac.op == ActionMBStringExt)
	case ActionCharToAscii:
		s, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		if s == "" {
			a.push(Number(0))
		} else {
			a.push(Number(float64(s[0])))
		}
	case ActionMBCharToAscii:
		s, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		r, _ := utf8.DecodeRuneInString(s)
		if s == "" {
			r = 0
		}
		a.push(Number(float64(r)))
	case ActionAsciiToChar:
		n, err := a.ToNumber(a.pop())
		if err != nil {
			return next, err
		}
		a.push(String(string(rune(clampByte(n)))))
	case ActionMBAsciiToChar:
		n, err := a.ToNumber(a.pop())
		if err != nil {
			return next, err
		}
		r := rune(coerce.ToUint32(n))
		if !utf8.ValidRune(r) {
			r = utf8.RuneError
		}
		a.push(String(string(r)))

	// Conversion
	case ActionToInteger:
		n, err := a.ToNumber(a.pop())
		if err != nil {
			return next, err
		}
		a.push(Number(math.Trunc(n)))
	case ActionToNumber:
		n, err := a.ToNumber(a.pop())
		if err != nil {
			return next, err
		}
		a.push(Number(n))
	case ActionToString:
		s, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		a.push(String(s))
	case ActionTypeOf:
		a.push(String(TypeOf(a.pop())))

	// Stack
	case ActionPop:
		a.pop()
	case ActionPushDuplicate:
		a.push(a.peek())
	case ActionStackSwap:
		y, x := a.pop(), a.pop()
		a.push(y)
		a.push(x)
	case ActionPush:
		return next, a.actionPush(ac)
	case ActionStoreRegister:
		r := a.reader(ac.body)
		idx, err := r.u8()
		if err != nil {
			return next, err
		}
		return next, a.setRegister(int(idx), a.peek())
	case ActionConstantPool:
		return next, a.actionConstantPool(ac)

	// Variables and members
	case ActionGetVariable:
		name, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		v, err := a.getVariable(name)
		if err != nil {
			return next, err
		}
		a.push(v)
	case ActionSetVariable:
		v := a.pop()
		name, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		return next, a.setVariable(name, v)
	case ActionDefineLocal:
		v := a.pop()
		name, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		return next, a.scope.define(a, name, v)
	case ActionDefineLocal2:
		name, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		if locals := a.innermostLocals(); locals != nil && !locals.HasProperty(a, name) {
			return next, a.scope.define(a, name, Undefined)
		}
	case ActionDelete:
		name, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		obj := a.pop()
		a.push(Bool(obj.o != nil && obj.o.Delete(a, name)))
	case ActionDelete2:
		name, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		a.push(Bool(a.scope.deleteName(a, name)))
	case ActionGetMember:
		name, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		recv := a.pop()
		if recv.kind == KindUndefined || recv.kind == KindNull {
			a.push(Undefined)
			break
		}
		v, err := a.ToObject(recv).Get(a, name)
		if err != nil {
			return next, err
		}
		a.push(v)
	case ActionSetMember:
		v := a.pop()
		name, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		if recv := a.pop(); recv.o != nil {
			return next, recv.o.Set(a, name, v)
		}
	case ActionInitArray:
		args, err := a.popArgs()
		if err != nil {
			return next, err
		}
		a.push(ObjectValue(vm.NewArray(args)))
	case ActionInitObject:
		return next, a.initObject()
	case ActionEnumerate, ActionEnumerate2:
		var target Value
		if ac.op == ActionEnumerate {
			name, err := a.ToString(a.pop())
			if err != nil {
				return next, err
			}
			if target, err = a.getVariable(name); err != nil {
				return next, err
			}
		} else {
			target = a.pop()
		}
		a.push(Null)
		if target.o != nil {
			keys := target.o.Keys(a)
			for i := len(keys) - 1; i >= 0; i-- {
				a.push(String(keys[i]))
			}
		}

	// Functions and objects
	case ActionDefineFunction, ActionDefineFunction2:
		return a.defineFunction(ac)
	case ActionCallFunction:
		return next, a.callFunction()
	case ActionCallMethod:
		return next, a.callMethod()
	case ActionNewObject:
		return next, a.newObject()
	case ActionNewMethod:
		return next, a.newMethod()
	case ActionReturn:
		return control{kind: ctlReturn, value: a.pop()}, nil
	case ActionInstanceOf:
		ctorV := a.pop()
		obj := a.pop()
		ok, err := a.instanceOf(obj, ctorV)
		if err != nil {
			return next, err
		}
		a.push(Bool(ok))
	case ActionCastOp:
		obj := a.pop()
		ctorV := a.pop()
		ok, err := a.instanceOf(obj, ctorV)
		if err != nil {
			return next, err
		}
		if ok {
			a.push(obj)
		} else {
			a.push(Null)
		}
	case ActionImplementsOp:
		return next, a.implementsOp()
	case ActionExtends:
		return next, a.extends()

	// Control flow
	case ActionJump:
		off, err := a.reader(ac.body).i16()
		if err != nil {
			return next, err
		}
		return control{kind: ctlJump, target: ac.next + int(off)}, nil
	case ActionIf:
		off, err := a.reader(ac.body).i16()
		if err != nil {
			return next, err
		}
		if a.ToBool(a.pop()) {
			return control{kind: ctlJump, target: ac.next + int(off)}, nil
		}
	case ActionWith:
		return a.actionWith(ac)
	case ActionTry:
		return a.actionTry(ac)
	case ActionThrow:
		return next, &ThrownError{Value: a.pop()}
	case ActionWaitForFrame, ActionWaitForFrame2:
		return a.waitForFrame(ac, outermost)

	// Misc
	case ActionTrace:
		v := a.pop()
		out := "undefined"
		if !v.IsUndefined() {
			s, err := a.ToString(v)
			if err != nil {
				return next, err
			}
			out = s
		}
		traceLog.Info(out)
		if vm.traceHook != nil {
			vm.traceHook(out)
		}
	case ActionGetTime:
		a.push(Number(vm.elapsedMillis()))
	case ActionRandomNumber:
		n, err := a.toInt32(a.pop())
		if err != nil {
			return next, err
		}
		if n <= 0 {
			a.push(Number(0))
		} else {
			a.push(Number(float64(vm.rand.Int31n(n))))
		}
	case ActionGetURL:
		r := a.reader(ac.body)
		url, err := r.str()
		if err != nil {
			return next, err
		}
		target, err := r.str()
		if err != nil {
			return next, err
		}
		a.navigate(url, target, backend.MethodNone)
	case ActionGetURL2:
		return next, a.getURL2(ac)

	// Display list
	default:
		return a.displayAction(ac)
	}
	return next, nil
}

// ---------------------------------------------------------------------------
// Operand helpers
// ---------------------------------------------------------------------------

// pop2Numbers pops the top value then the one below it.
func (a *Activation) pop2Numbers() (top, below float64, err error) {
	tv, bv := a.pop(), a.pop()
	if top, err = a.ToNumber(tv); err != nil {
		return
	}
	below, err = a.ToNumber(bv)
	return
}

func (a *Activation) pop2Strings() (top, below string, err error) {
	tv, bv := a.pop(), a.pop()
	if top, err = a.ToString(tv); err != nil {
		return
	}
	below, err = a.ToString(bv)
	return
}

// binaryNumber computes f(below, top).
func (a *Activation) binaryNumber(f func(x, y float64) float64) error {
	y, x, err := a.pop2Numbers()
	if err != nil {
		return err
	}
	a.push(Number(f(x, y)))
	return nil
}

// add2 concatenates when either primitive operand is a string and adds
// numerically otherwise.
func (a *Activation) add2() error {
	yv, xv := a.pop(), a.pop()
	x, err := a.ToPrimitive(xv)
	if err != nil {
		return err
	}
	y, err := a.ToPrimitive(yv)
	if err != nil {
		return err
	}
	if x.kind == KindString || y.kind == KindString {
		xs, err := a.ToString(x)
		if err != nil {
			return err
		}
		ys, err := a.ToString(y)
		if err != nil {
			return err
		}
		a.push(String(xs + ys))
		return nil
	}
	xn, err := a.ToNumber(x)
	if err != nil {
		return err
	}
	yn, err := a.ToNumber(y)
	if err != nil {
		return err
	}
	a.push(Number(xn + yn))
	return nil
}

func (a *Activation) bitwise(op byte) error {
	yv, xv := a.pop(), a.pop()
	y, err := a.ToNumber(yv)
	if err != nil {
		return err
	}
	x, err := a.ToNumber(xv)
	if err != nil {
		return err
	}
	xi, yi := coerce.ToInt32(x), coerce.ToInt32(y)
	var r float64
	switch op {
	case ActionBitAnd:
		r = float64(xi & yi)
	case ActionBitOr:
		r = float64(xi | yi)
	case ActionBitXor:
		r = float64(xi ^ yi)
	case ActionBitLShift:
		r = float64(xi << (uint32(yi) & 31))
	case ActionBitRShift:
		r = float64(xi >> (uint32(yi) & 31))
	case ActionBitURShift:
		r = float64(coerce.ToUint32(x) >> (uint32(yi) & 31))
	}
	a.push(Number(r))
	return nil
}

// stringExtract implements substring(string, index, count) with a
// one-based index. A negative count takes the rest of the string.
func (a *Activation) stringExtract(multibyte bool) error {
	countV, indexV, strV := a.pop(), a.pop(), a.pop()
	count, err := a.ToNumber(countV)
	if err != nil {
		return err
	}
	index, err := a.ToNumber(indexV)
	if err != nil {
		return err
	}
	s, err := a.ToString(strV)
	if err != nil {
		return err
	}

	var units []rune
	if multibyte {
		units = []rune(s)
	} else {
		units = make([]rune, len(s))
		for i := 0; i < len(s); i++ {
			units[i] = rune(s[i])
		}
	}
	start := 0
	if i := coerce.ToInteger(index) - 1; i > 0 {
		start = len(units)
		if i < float64(len(units)) {
			start = int(i)
		}
	}
	end := len(units)
	if c := coerce.ToInteger(count); c >= 0 && c < float64(end-start) {
		end = start + int(c)
	}
	if multibyte {
		a.push(String(string(units[start:end])))
		return nil
	}
	b := make([]byte, 0, end-start)
	for _, u := range units[start:end] {
		b = append(b, byte(u))
	}
	a.push(String(string(b)))
	return nil
}

func clampByte(f float64) uint8 {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f)
}

func (a *Activation) innermostLocals() *Object {
	for s := a.scope; s != nil; s = s.parent {
		if s.kind != ScopeWith {
			return s.locals
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Push and constant pool
// ---------------------------------------------------------------------------

func (a *Activation) actionPush(ac action) error {
	r := a.reader(ac.body)
	for !r.done() {
		tag, err := r.u8()
		if err != nil {
			return err
		}
		switch tag {
		case pushString:
			s, err := r.str()
			if err != nil {
				return err
			}
			a.push(String(s))
		case pushFloat:
			f, err := r.f32()
			if err != nil {
				return err
			}
			a.push(Number(float64(f)))
		case pushNull:
			a.push(Null)
		case pushUndefined:
			a.push(Undefined)
		case pushRegister:
			idx, err := r.u8()
			if err != nil {
				return err
			}
			v, err := a.register(int(idx))
			if err != nil {
				return err
			}
			a.push(v)
		case pushBool:
			b, err := r.u8()
			if err != nil {
				return err
			}
			a.push(Bool(b != 0))
		case pushDouble:
			f, err := r.f64()
			if err != nil {
				return err
			}
			a.push(Number(f))
		case pushInt:
			n, err := r.u32()
			if err != nil {
				return err
			}
			a.push(Number(float64(int32(n))))
		case pushConstant8, pushConstant16:
			var idx int
			if tag == pushConstant8 {
				b, err := r.u8()
				if err != nil {
					return err
				}
				idx = int(b)
			} else {
				w, err := r.u16()
				if err != nil {
					return err
				}
				idx = int(w)
			}
			if idx >= len(a.pool) {
				log.Warningf("%s: constant %d out of range (pool has %d)", a.describe(), idx, len(a.pool))
				a.push(Undefined)
				continue
			}
			a.push(String(a.pool[idx]))
		default:
			return fmt.Errorf("%w: push type %d", ErrInvalidAction, tag)
		}
	}
	return nil
}

func (a *Activation) actionConstantPool(ac action) error {
	r := a.reader(ac.body)
	n, err := r.u16()
	if err != nil {
		return err
	}
	pool := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := r.str()
		if err != nil {
			return err
		}
		pool = append(pool, s)
	}
	a.pool = pool
	a.vm.pool = pool
	return nil
}

// ---------------------------------------------------------------------------
// Objects and functions
// ---------------------------------------------------------------------------

func (a *Activation) initObject() error {
	n, err := a.ToNumber(a.pop())
	if err != nil {
		return err
	}
	count := int(toInt32(n))
	obj := a.vm.NewObject()
	for i := 0; i < count; i++ {
		v := a.pop()
		name, err := a.ToString(a.pop())
		if err != nil {
			return err
		}
		if err := obj.Set(a, name, v); err != nil {
			return err
		}
	}
	a.push(ObjectValue(obj))
	return nil
}

func (a *Activation) defineFunction(ac action) (control, error) {
	r := a.reader(ac.body)
	name, err := r.str()
	if err != nil {
		return control{}, err
	}
	nparams, err := r.u16()
	if err != nil {
		return control{}, err
	}
	f := &Function{
		name:    name,
		version: a.version,
		scope:   a.scope,
		pool:    a.pool,
		target:  a.targetOrRoot(),
		v2:      ac.op == ActionDefineFunction2,
	}
	if f.v2 {
		if f.registerCount, err = r.u8(); err != nil {
			return control{}, err
		}
		flags, err := r.u16()
		if err != nil {
			return control{}, err
		}
		f.flags = FunctionFlags(flags)
	}
	for i := 0; i < int(nparams); i++ {
		var p Param
		if f.v2 {
			if p.Register, err = r.u8(); err != nil {
				return control{}, err
			}
		}
		if p.Name, err = r.str(); err != nil {
			return control{}, err
		}
		f.params = append(f.params, p)
	}
	size, err := r.u16()
	if err != nil {
		return control{}, err
	}
	bodyEnd := ac.next + int(size)
	if bodyEnd > len(a.code) {
		return control{}, fmt.Errorf("%w: function %q body overruns the code", ErrInvalidAction, name)
	}
	f.code = a.code[ac.next:bodyEnd]

	fnObj := a.vm.newFunctionObject(f)
	if name == "" {
		a.push(ObjectValue(fnObj))
	} else if err := a.scope.define(a, name, ObjectValue(fnObj)); err != nil {
		return control{}, err
	}
	return control{kind: ctlNext, target: bodyEnd}, nil
}

func (a *Activation) callFunction() error {
	name, err := a.ToString(a.pop())
	if err != nil {
		return err
	}
	args, err := a.popArgs()
	if err != nil {
		return err
	}
	fn, err := a.getVariable(name)
	if err != nil {
		return err
	}
	if fn.o == nil {
		a.push(Undefined)
		return nil
	}
	v, err := fn.o.exec(a, name, ObjectValue(a.targetOrRoot()), 0, args)
	if err != nil {
		return err
	}
	a.push(v)
	return nil
}

func (a *Activation) callMethod() error {
	nameV := a.pop()
	recv := a.pop()
	args, err := a.popArgs()
	if err != nil {
		return err
	}
	if recv.kind == KindUndefined || recv.kind == KindNull {
		a.push(Undefined)
		return nil
	}
	obj := a.ToObject(recv)

	var v Value
	switch nameV.kind {
	case KindUndefined, KindNull:
		v, err = obj.Call(a, ObjectValue(a.targetOrRoot()), args)
	default:
		name, serr := a.ToString(nameV)
		if serr != nil {
			return serr
		}
		if name == "" {
			v, err = obj.Call(a, ObjectValue(obj), args)
		} else {
			v, err = obj.CallMethod(a, name, args)
		}
	}
	if err != nil {
		return err
	}
	a.push(v)
	return nil
}

func (a *Activation) newObject() error {
	name, err := a.ToString(a.pop())
	if err != nil {
		return err
	}
	args, err := a.popArgs()
	if err != nil {
		return err
	}
	ctor, err := a.getVariable(name)
	if err != nil {
		return err
	}
	if ctor.o == nil {
		log.Warningf("%s: new %s: not a constructor", a.describe(), name)
		a.push(Undefined)
		return nil
	}
	v, err := a.construct(ctor.o, args)
	if err != nil {
		return err
	}
	a.push(v)
	return nil
}

func (a *Activation) newMethod() error {
	nameV := a.pop()
	recv := a.pop()
	args, err := a.popArgs()
	if err != nil {
		return err
	}
	obj := a.ToObject(recv)
	ctor := obj
	if nameV.kind != KindUndefined && nameV.kind != KindNull {
		name, err := a.ToString(nameV)
		if err != nil {
			return err
		}
		if name != "" {
			cv, err := obj.Get(a, name)
			if err != nil {
				return err
			}
			ctor = cv.o
		}
	}
	if ctor == nil {
		a.push(Undefined)
		return nil
	}
	v, err := a.construct(ctor, args)
	if err != nil {
		return err
	}
	a.push(v)
	return nil
}

func (a *Activation) instanceOf(obj, ctorV Value) (bool, error) {
	if obj.o == nil || ctorV.o == nil {
		return false, nil
	}
	proto, err := ctorV.o.Get(a, "prototype")
	if err != nil || proto.o == nil {
		return false, err
	}
	return obj.o.IsInstanceOf(a, ctorV.o, proto.o)
}

func (a *Activation) implementsOp() error {
	ctorV := a.pop()
	ifaces, err := a.popArgs()
	if err != nil {
		return err
	}
	if ctorV.o == nil {
		return nil
	}
	proto, err := ctorV.o.Get(a, "prototype")
	if err != nil || proto.o == nil {
		return err
	}
	var list []*Object
	for _, v := range ifaces {
		if v.o != nil {
			list = append(list, v.o)
		}
	}
	proto.o.SetInterfaces(list)
	return nil
}

// extends links subclass.prototype to a fresh object inheriting
// superclass.prototype.
func (a *Activation) extends() error {
	superV := a.pop()
	subV := a.pop()
	if superV.o == nil || subV.o == nil {
		return nil
	}
	superProto, err := superV.o.Get(a, "prototype")
	if err != nil {
		return err
	}
	proto := a.vm.newObjectWithProto(superProto)
	proto.Define("constructor", superV, DontEnum)
	proto.Define("__constructor__", superV, DontEnum)
	return subV.o.Set(a, "prototype", ObjectValue(proto))
}

// ---------------------------------------------------------------------------
// Blocks: With and Try
// ---------------------------------------------------------------------------

// actionWith runs the following block with the popped object pushed onto
// the scope chain. The scope is restored however the block exits.
func (a *Activation) actionWith(ac action) (control, error) {
	size, err := a.reader(ac.body).u16()
	if err != nil {
		return control{}, err
	}
	start, end := ac.next, ac.next+int(size)
	if end > len(a.code) {
		return control{}, fmt.Errorf("%w: with block overruns the code", ErrInvalidAction)
	}
	obj := a.ToObject(a.pop())

	saved := a.scope
	a.scope = NewScope(ScopeWith, obj, saved)
	defer func() { a.scope = saved }()

	ctl, err := a.runBlock(start, start, end)
	if err != nil {
		return control{}, err
	}
	if ctl.kind == ctlDone {
		return control{kind: ctlNext, target: end}, nil
	}
	return ctl, nil
}

// Try flag bits.
const (
	tryHasCatch      = 1 << 0
	tryHasFinally    = 1 << 1
	tryCatchRegister = 1 << 2
)

// actionTry runs try, catch and finally regions. Only script throws are
// caught; fatal errors skip the finally block. A finally block that
// returns, branches out or throws replaces the pending outcome.
func (a *Activation) actionTry(ac action) (control, error) {
	r := a.reader(ac.body)
	flags, err := r.u8()
	if err != nil {
		return control{}, err
	}
	var sizes [3]uint16
	for i := range sizes {
		if sizes[i], err = r.u16(); err != nil {
			return control{}, err
		}
	}
	catchReg := -1
	var catchName string
	if flags&tryCatchRegister != 0 {
		reg, err := r.u8()
		if err != nil {
			return control{}, err
		}
		catchReg = int(reg)
	} else if catchName, err = r.str(); err != nil {
		return control{}, err
	}

	tryStart := ac.next
	catchStart := tryStart + int(sizes[0])
	finallyStart := catchStart + int(sizes[1])
	after := finallyStart + int(sizes[2])
	if after > len(a.code) {
		return control{}, fmt.Errorf("%w: try block overruns the code", ErrInvalidAction)
	}

	// Branches into our own catch or finally region just end the block.
	settle := func(ctl control) control {
		if ctl.kind == ctlJump && ctl.target >= catchStart && ctl.target <= after {
			return control{kind: ctlDone}
		}
		return ctl
	}

	ctl, pending := a.runBlock(tryStart, tryStart, catchStart)
	ctl = settle(ctl)
	var thrown *ThrownError
	if pending != nil && !errors.As(pending, &thrown) {
		return control{}, pending
	}

	if thrown != nil && flags&tryHasCatch != 0 {
		var bindErr error
		if catchReg >= 0 {
			bindErr = a.setRegister(catchReg, thrown.Value)
		} else {
			bindErr = a.scope.define(a, catchName, thrown.Value)
		}
		if bindErr != nil {
			return control{}, bindErr
		}
		thrown = nil
		ctl, pending = a.runBlock(catchStart, catchStart, finallyStart)
		ctl = settle(ctl)
		if pending != nil && !errors.As(pending, &thrown) {
			return control{}, pending
		}
	}

	if flags&tryHasFinally != 0 {
		fctl, ferr := a.runBlock(finallyStart, finallyStart, after)
		if ferr != nil {
			return control{}, ferr
		}
		fctl = settle(fctl)
		if fctl.kind == ctlReturn || fctl.kind == ctlJump {
			return fctl, nil
		}
	}

	if thrown != nil {
		return control{}, thrown
	}
	if ctl.kind == ctlDone {
		return control{kind: ctlNext, target: after}, nil
	}
	return ctl, nil
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

func (a *Activation) waitForFrame(ac action, outermost bool) (control, error) {
	r := a.reader(ac.body)
	var frame int
	if ac.op == ActionWaitForFrame {
		f, err := r.u16()
		if err != nil {
			return control{}, err
		}
		frame = int(f)
	} else {
		n, err := a.ToNumber(a.pop())
		if err != nil {
			return control{}, err
		}
		frame = int(coerce.ToInteger(n)) - 1
	}
	skip, err := r.u8()
	if err != nil {
		return control{}, err
	}

	switch a.vm.display.FrameStatus(a.targetOrRoot(), frame) {
	case FrameLoaded:
		return control{kind: ctlNext, target: ac.next}, nil
	case FramePending:
		if a.top && outermost {
			if ac.op == ActionWaitForFrame2 {
				// Put the operand back so the action can run again.
				a.push(Number(float64(frame + 1)))
			}
			return control{kind: ctlSuspend, target: ac.pos}, nil
		}
	}
	pc := ac.next
	for i := 0; i < int(skip); i++ {
		skipped, err := a.readAction(pc)
		if err != nil {
			return control{}, err
		}
		if skipped.op == ActionEnd {
			break
		}
		pc = skipped.next
	}
	return control{kind: ctlNext, target: pc}, nil
}

func (a *Activation) displayAction(ac action) (control, error) {
	next := control{kind: ctlNext, target: ac.next}
	vm := a.vm
	target := a.targetOrRoot()
	display := vm.display

	switch ac.op {
	case ActionPlay:
		display.Timeline(target, TimelinePlay)
	case ActionStop:
		display.Timeline(target, TimelineStop)
	case ActionNextFrame:
		display.Timeline(target, TimelineNextFrame)
	case ActionPrevFrame:
		display.Timeline(target, TimelinePrevFrame)
	case ActionToggleQuality:
		display.Timeline(target, TimelineToggleQuality)
	case ActionEndDrag:
		display.Timeline(target, TimelineEndDrag)
	case ActionStopSounds:
		vm.backends.Audio.StopAllSounds()
	case ActionGotoFrame:
		f, err := a.reader(ac.body).u16()
		if err != nil {
			return next, err
		}
		display.GotoFrame(target, int(f), false)
	case ActionGoToLabel:
		label, err := a.reader(ac.body).str()
		if err != nil {
			return next, err
		}
		display.GotoLabel(target, label, false)
	case ActionGotoFrame2:
		r := a.reader(ac.body)
		flags, err := r.u8()
		if err != nil {
			return next, err
		}
		bias := 0
		if flags&0x2 != 0 {
			b, err := r.u16()
			if err != nil {
				return next, err
			}
			bias = int(b)
		}
		play := flags&0x1 != 0
		fv := a.pop()
		if fv.kind == KindString {
			display.GotoLabel(target, fv.s, play)
			break
		}
		n, err := a.ToNumber(fv)
		if err != nil {
			return next, err
		}
		display.GotoFrame(target, int(coerce.ToInteger(n))-1+bias, play)
	case ActionSetTarget:
		path, err := a.reader(ac.body).str()
		if err != nil {
			return next, err
		}
		return next, a.setTarget(String(path))
	case ActionSetTarget2:
		return next, a.setTarget(a.pop())
	case ActionGetProperty:
		idxV, pathV := a.pop(), a.pop()
		idx, err := a.toInt32(idxV)
		if err != nil {
			return next, err
		}
		path, err := a.ToString(pathV)
		if err != nil {
			return next, err
		}
		a.push(display.GetProperty(path, int(idx)))
	case ActionSetProperty:
		v, idxV, pathV := a.pop(), a.pop(), a.pop()
		idx, err := a.toInt32(idxV)
		if err != nil {
			return next, err
		}
		path, err := a.ToString(pathV)
		if err != nil {
			return next, err
		}
		display.SetProperty(path, int(idx), v)
	case ActionCloneSprite:
		depthV, nameV, srcV := a.pop(), a.pop(), a.pop()
		depth, err := a.toInt32(depthV)
		if err != nil {
			return next, err
		}
		name, err := a.ToString(nameV)
		if err != nil {
			return next, err
		}
		src, err := a.ToString(srcV)
		if err != nil {
			return next, err
		}
		display.CloneSprite(src, name, int(depth))
	case ActionRemoveSprite:
		path, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		display.RemoveSprite(path)
	case ActionStartDrag:
		return next, a.startDrag()
	case ActionTargetPath:
		if v := a.pop(); v.o != nil {
			a.push(String(display.TargetPath(v.o)))
		} else {
			a.push(Undefined)
		}
	case ActionCall:
		frame, err := a.ToString(a.pop())
		if err != nil {
			return next, err
		}
		if code := display.CallFrame(target, frame); code != nil {
			scope := NewScope(ScopeTarget, target, vm.globalScope)
			child := vm.newActivation(code, a.version, scope, ObjectValue(target), target)
			child.name = "[Call " + frame + "]"
			child.pool = a.pool
			if _, err := child.run(); err != nil {
				return next, err
			}
		}
	default:
		log.Debugf("%s: skipping unknown action 0x%02x", a.describe(), ac.op)
	}
	return next, nil
}

func (a *Activation) setTarget(v Value) error {
	if v.o != nil {
		a.target = v.o
		return nil
	}
	path, err := a.ToString(v)
	if err != nil {
		return err
	}
	if path == "" {
		a.target = a.this.o
		return nil
	}
	obj, err := a.resolveTargetPath(path)
	if err != nil {
		return err
	}
	if obj == nil {
		log.Warningf("%s: SetTarget %q: target not found", a.describe(), path)
		return nil
	}
	a.target = obj
	return nil
}

func (a *Activation) startDrag() error {
	targetV := a.pop()
	lock := a.ToBool(a.pop())
	constrain := a.ToBool(a.pop())
	var bounds *[4]float64
	if constrain {
		var b [4]float64
		for i := 3; i >= 0; i-- {
			n, err := a.ToNumber(a.pop())
			if err != nil {
				return err
			}
			b[i] = n
		}
		bounds = &b
	}
	path, err := a.ToString(targetV)
	if err != nil {
		return err
	}
	a.vm.display.StartDrag(path, lock, bounds)
	return nil
}

// ---------------------------------------------------------------------------
// Navigation
// ---------------------------------------------------------------------------

func (a *Activation) getURL2(ac action) error {
	flags, err := a.reader(ac.body).u8()
	if err != nil {
		return err
	}
	targetV, urlV := a.pop(), a.pop()
	target, err := a.ToString(targetV)
	if err != nil {
		return err
	}
	url, err := a.ToString(urlV)
	if err != nil {
		return err
	}
	method := backend.MethodNone
	switch flags >> 6 {
	case 1:
		method = backend.MethodGet
	case 2:
		method = backend.MethodPost
	}
	a.navigate(url, target, method)
	return nil
}

func (a *Activation) navigate(url, target string, method backend.NavigationMethod) {
	if rest, ok := cutPrefixFold(url, "fscommand:"); ok {
		log.Infof("fscommand %s(%s)", rest, target)
		return
	}
	var vars map[string]string
	if method != backend.MethodNone {
		vars = make(map[string]string)
		obj := a.targetOrRoot()
		for _, k := range obj.Keys(a) {
			v, err := obj.Get(a, k)
			if err != nil || v.kind == KindObject {
				continue
			}
			if s, err := a.ToString(v); err == nil {
				vars[k] = s
			}
		}
	}
	a.vm.backends.Navigator.NavigateToURL(url, target, method, vars)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
