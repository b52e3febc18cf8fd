package avm2

import (
	"math"

	"github.com/chazu/avmcore/coerce"
	"github.com/chazu/avmcore/intern"
)

// run executes the verified body until it returns or throws an uncaught
// error. A stack underflow aborts the method with VerifyError #1024.
func (a *Activation) run() (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stackUnderflow); !ok {
				panic(r)
			}
			result, err = Undefined, &VerifyError{Code: 1024, Message: "Stack underflow occurred.", Method: a.method.String()}
		}
	}()
	code := a.body.code
	for {
		if a.vm.limit != nil {
			if err := a.vm.limit.Tick(); err != nil {
				return Undefined, err
			}
		}
		in := &code[a.pc]
		a.pc++
		v, done, err := a.exec(in)
		if err != nil {
			if a.handle(in.pos, err) {
				continue
			}
			return Undefined, err
		}
		if done {
			return v, nil
		}
	}
}

// exec runs one instruction. done reports a return.
func (a *Activation) exec(in *instr) (ret Value, done bool, err error) {
	vm := a.vm
	switch op := in.op; op {
	case OpNop, OpLabel, OpBkpt, OpBkptLine, OpDebug, OpDebugLine, OpDebugFile, OpTimestamp:

	// --- locals ---
	case OpGetLocal0, OpGetLocal1, OpGetLocal2, OpGetLocal3:
		a.push(a.locals[op-OpGetLocal0])
	case OpSetLocal0, OpSetLocal1, OpSetLocal2, OpSetLocal3:
		a.locals[op-OpSetLocal0] = a.pop()
	case OpGetLocal:
		a.push(a.locals[in.a])
	case OpSetLocal:
		a.locals[in.a] = a.pop()
	case OpKill:
		a.locals[in.a] = Undefined
	case OpIncLocal, OpDecLocal:
		f, err := vm.ToNumber(a, a.locals[in.a])
		if err != nil {
			return Undefined, false, err
		}
		if op == OpIncLocal {
			f++
		} else {
			f--
		}
		a.locals[in.a] = numberValue(f)
	case OpIncLocalI, OpDecLocalI:
		i, err := vm.toInt32(a, a.locals[in.a])
		if err != nil {
			return Undefined, false, err
		}
		if op == OpIncLocalI {
			i++
		} else {
			i--
		}
		a.locals[in.a] = Int(i)

	// --- constants and stack ---
	case OpPushNull:
		a.push(Null)
	case OpPushUndefined:
		a.push(Undefined)
	case OpPushTrue:
		a.push(Bool(true))
	case OpPushFalse:
		a.push(Bool(false))
	case OpPushNaN:
		a.push(Number(math.NaN()))
	case OpPushByte:
		a.push(Int(int32(in.a)))
	case OpPushShort:
		a.push(Int(int32(int16(in.a))))
	case OpPushInt:
		a.push(Int(a.abc.Ints[in.a]))
	case OpPushUint:
		a.push(Uint(a.abc.Uints[in.a]))
	case OpPushDouble:
		a.push(Number(a.abc.Doubles[in.a]))
	case OpPushString:
		a.push(String(a.abc.Strings[in.a]))
	case OpPop:
		a.pop()
	case OpDup:
		a.push(a.peek())
	case OpSwap:
		y, x := a.pop(), a.pop()
		a.push(y)
		a.push(x)

	// --- control flow ---
	case OpJump:
		a.pc = in.a
	case OpIfTrue, OpIfFalse:
		if ToBoolean(a.pop()) == (op == OpIfTrue) {
			a.pc = in.a
		}
	case OpIfEq, OpIfNe:
		y, x := a.pop(), a.pop()
		eq, err := vm.LooseEquals(a, x, y)
		if err != nil {
			return Undefined, false, err
		}
		if eq == (op == OpIfEq) {
			a.pc = in.a
		}
	case OpIfStrictEq, OpIfStrictNe:
		y, x := a.pop(), a.pop()
		if StrictEquals(x, y) == (op == OpIfStrictEq) {
			a.pc = in.a
		}
	case OpIfLT, OpIfLE, OpIfGT, OpIfGE, OpIfNLT, OpIfNLE, OpIfNGT, OpIfNGE:
		y, x := a.pop(), a.pop()
		r, err := a.relation(op, x, y)
		if err != nil {
			return Undefined, false, err
		}
		if r {
			a.pc = in.a
		}
	case OpLookupSwitch:
		f, err := vm.ToNumber(a, a.pop())
		if err != nil {
			return Undefined, false, err
		}
		a.pc = in.targets[0]
		if f == math.Trunc(f) && f >= 0 && f < float64(len(in.targets)-1) {
			a.pc = in.targets[1+int(f)]
		}
	case OpReturnVoid:
		return Undefined, true, nil
	case OpReturnValue:
		v, err := vm.coerceTo(a, a.pop(), a.method.ReturnType)
		return v, err == nil, err
	case OpThrow:
		return Undefined, false, &ThrownError{Value: a.pop()}

	// --- scope ---
	case OpPushScope, OpPushWith:
		v := a.pop()
		if v.o == nil {
			return Undefined, false, vm.nullReference(v)
		}
		a.scope = append(a.scope, scopeEntry{obj: v.o, with: op == OpPushWith})
	case OpPopScope:
		if len(a.scope) == 0 {
			return Undefined, false, verifyErrorf(1019, "Getscopeobject %d is out of bounds.", 0)
		}
		a.scope[len(a.scope)-1] = scopeEntry{}
		a.scope = a.scope[:len(a.scope)-1]
	case OpGetScopeObject:
		if in.a >= len(a.scope) {
			return Undefined, false, verifyErrorf(1019, "Getscopeobject %d is out of bounds.", in.a)
		}
		a.push(ObjectValue(a.scope[in.a].obj))
	case OpGetGlobalScope:
		a.push(ObjectValue(a.globalObject()))
	case OpFindProperty, OpFindPropStrict:
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		o, err := a.findProperty(mn, op == OpFindPropStrict)
		if err != nil {
			return Undefined, false, err
		}
		a.push(ObjectValue(o))
	case OpGetLex:
		mn := a.abc.Multinames[in.a]
		o, err := a.findProperty(mn, true)
		if err != nil {
			return Undefined, false, err
		}
		v, err := vm.getProperty(a, ObjectValue(o), mn)
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)

	// --- properties ---
	case OpGetProperty:
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		recv := a.pop()
		if err := a.checkThis(recv); err != nil {
			return Undefined, false, err
		}
		v, err := a.getProperty(recv, mn, !a.abc.Multinames[in.a].IsRuntime())
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)
	case OpSetProperty, OpInitProperty:
		v := a.pop()
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		recv := a.pop()
		if err := a.checkThis(recv); err != nil {
			return Undefined, false, err
		}
		if op == OpInitProperty && recv.o != nil {
			err = recv.o.InitProperty(a, mn, v)
		} else {
			err = vm.setProperty(a, recv, mn, v)
		}
		if err != nil {
			return Undefined, false, err
		}
	case OpDeleteProperty:
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		recv := a.pop()
		if recv.IsNullish() {
			return Undefined, false, vm.nullReference(recv)
		}
		if err := a.checkThis(recv); err != nil {
			return Undefined, false, err
		}
		ok := false
		if recv.o != nil {
			if ok, err = recv.o.DeleteProperty(a, mn); err != nil {
				return Undefined, false, err
			}
		}
		a.push(Bool(ok))
	case OpIn:
		obj, name := a.pop(), a.pop()
		mn, err := a.runtimeName(name)
		if err != nil {
			return Undefined, false, err
		}
		ok, err := vm.hasProperty(obj, mn)
		if err != nil {
			return Undefined, false, err
		}
		a.push(Bool(ok))
	case OpGetSlot:
		recv := a.pop()
		if err := a.checkThis(recv); err != nil {
			return Undefined, false, err
		}
		o, i, err := a.slot(recv, in.a)
		if err != nil {
			return Undefined, false, err
		}
		a.push(o.slots[i])
	case OpSetSlot:
		v, recv := a.pop(), a.pop()
		if err := a.checkThis(recv); err != nil {
			return Undefined, false, err
		}
		o, i, err := a.slot(recv, in.a)
		if err != nil {
			return Undefined, false, err
		}
		if err := a.storeSlot(o, i, v); err != nil {
			return Undefined, false, err
		}
	case OpGetGlobalSlot:
		o, i, err := a.slot(ObjectValue(a.globalObject()), in.a)
		if err != nil {
			return Undefined, false, err
		}
		a.push(o.slots[i])
	case OpSetGlobalSlot:
		v := a.pop()
		o, i, err := a.slot(ObjectValue(a.globalObject()), in.a)
		if err != nil {
			return Undefined, false, err
		}
		if err := a.storeSlot(o, i, v); err != nil {
			return Undefined, false, err
		}
	case OpGetSuper:
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		v, err := a.getSuper(a.pop(), mn)
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)
	case OpSetSuper:
		v := a.pop()
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		if err := a.setSuper(a.pop(), mn, v); err != nil {
			return Undefined, false, err
		}

	// --- calls ---
	case OpCall:
		args := a.popN(in.a)
		this, fn := a.pop(), a.pop()
		v, err := vm.callValue(a, fn, this, args)
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)
	case OpConstruct:
		args := a.popN(in.a)
		v, err := vm.constructValue(a, a.pop(), args)
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)
	case OpCallMethod:
		args := a.popN(in.b)
		recv := a.pop()
		if recv.o == nil {
			return Undefined, false, vm.nullReference(recv)
		}
		if err := a.checkThis(recv); err != nil {
			return Undefined, false, err
		}
		if in.a >= len(recv.o.vt.disp) {
			return Undefined, false, verifyErrorf(1051, "Illegal early binding access to %s.", recv.o.ClassName())
		}
		e := recv.o.vt.disp[in.a]
		v, err := vm.callMethod(a, e.method, e.owner, e.owner.scope, recv, args)
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)
	case OpCallStatic:
		args := a.popN(in.b)
		recv := a.pop()
		if recv.IsNullish() {
			return Undefined, false, vm.nullReference(recv)
		}
		v, err := vm.callMethod(a, a.abc.Methods[in.a], nil, a.outer, recv, args)
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)
	case OpCallProperty, OpCallPropLex, OpCallPropVoid:
		args := a.popN(in.b)
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		recv := a.pop()
		if err := a.checkThis(recv); err != nil {
			return Undefined, false, err
		}
		this := recv
		if op == OpCallPropLex {
			this = Null
		}
		v, err := a.callProperty(recv, mn, args, this, !a.abc.Multinames[in.a].IsRuntime())
		if err != nil {
			return Undefined, false, err
		}
		if op != OpCallPropVoid {
			a.push(v)
		}
	case OpCallSuper, OpCallSuperVoid:
		args := a.popN(in.b)
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		v, err := a.callSuper(a.pop(), mn, args)
		if err != nil {
			return Undefined, false, err
		}
		if op == OpCallSuper {
			a.push(v)
		}
	case OpConstructSuper:
		args := a.popN(in.a)
		recv := a.pop()
		if a.initClass == nil || recv.o == nil || recv.o != a.this.o {
			return Undefined, false, verifyErrorf(1035, "Illegal super expression found in method %s.", a.method)
		}
		if err := a.SuperInit(args); err != nil {
			return Undefined, false, err
		}
	case OpConstructProp:
		args := a.popN(in.b)
		mn, err := a.name(in.a)
		if err != nil {
			return Undefined, false, err
		}
		recv := a.pop()
		ctor, err := vm.getProperty(a, recv, mn)
		if err != nil {
			return Undefined, false, err
		}
		v, err := vm.constructValue(a, ctor, args)
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)

	// --- object creation ---
	case OpNewObject:
		pairs := a.popN(2 * in.a)
		o := vm.NewObject()
		for i := 0; i < len(pairs); i += 2 {
			k, err := vm.ToString(a, pairs[i])
			if err != nil {
				return Undefined, false, err
			}
			o.SetDynamic(k, pairs[i+1])
		}
		a.push(ObjectValue(o))
	case OpNewArray:
		a.push(ObjectValue(vm.NewArray(a.popN(in.a))))
	case OpNewActivation:
		o, err := a.newActivationObject()
		if err != nil {
			return Undefined, false, err
		}
		a.push(ObjectValue(o))
	case OpNewCatch:
		o, err := a.newCatchScope(&a.body.handlers[in.a])
		if err != nil {
			return Undefined, false, err
		}
		a.push(ObjectValue(o))
	case OpNewFunction:
		m := a.abc.Methods[in.a]
		cl := &Closure{method: m, scope: a.outer.extend(a.scope)}
		a.push(ObjectValue(vm.newFunction(cl)))
	case OpNewClass:
		o, err := a.newClass(a.pop(), a.abc.Classes[in.a])
		if err != nil {
			return Undefined, false, err
		}
		a.push(ObjectValue(o))

	// --- enumeration ---
	case OpHasNext:
		idx, obj := a.pop(), a.pop()
		next := 0
		if obj.o != nil {
			next = obj.o.nextIndex(int(primitiveNumber(idx)))
		}
		a.push(Int(int32(next)))
	case OpHasNext2:
		a.push(Bool(a.hasNext2(in.a, in.b)))
	case OpNextName, OpNextValue:
		idx, obj := a.pop(), a.pop()
		v := Undefined
		if obj.o != nil {
			i := int(primitiveNumber(idx))
			if op == OpNextName {
				v = obj.o.nameAt(i)
			} else {
				v = obj.o.valueAt(i)
			}
		}
		a.push(v)

	// --- conversion ---
	case OpConvertS:
		s, err := vm.ToString(a, a.pop())
		if err != nil {
			return Undefined, false, err
		}
		a.push(String(s))
	case OpCoerceS:
		v := a.pop()
		if v.IsNullish() {
			a.push(Null)
			break
		}
		s, err := vm.ToString(a, v)
		if err != nil {
			return Undefined, false, err
		}
		a.push(String(s))
	case OpConvertI, OpCoerceI:
		i, err := vm.toInt32(a, a.pop())
		if err != nil {
			return Undefined, false, err
		}
		a.push(Int(i))
	case OpConvertU, OpCoerceU:
		u, err := vm.toUint32(a, a.pop())
		if err != nil {
			return Undefined, false, err
		}
		a.push(Uint(u))
	case OpConvertD, OpCoerceD:
		f, err := vm.ToNumber(a, a.pop())
		if err != nil {
			return Undefined, false, err
		}
		a.push(Number(f))
	case OpConvertB, OpCoerceB:
		a.push(Bool(ToBoolean(a.pop())))
	case OpConvertO:
		if v := a.peek(); v.IsNullish() {
			return Undefined, false, vm.nullReference(v)
		}
	case OpCoerceO:
		if a.peek().IsUndefined() {
			a.pop()
			a.push(Null)
		}
	case OpCoerceA:
	case OpCoerce:
		v, err := vm.coerceTo(a, a.pop(), a.abc.Multinames[in.a])
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)
	case OpAsType, OpIsType:
		c, err := a.typeClass(a.abc.Multinames[in.a])
		if err != nil {
			return Undefined, false, err
		}
		a.typeTest(op == OpIsType, a.pop(), c)
	case OpAsTypeLate, OpIsTypeLate:
		typ, v := a.pop(), a.pop()
		var c *Class
		if typ.o != nil {
			c, _ = typ.o.AsClass()
		}
		if c == nil {
			return Undefined, false, vm.typeError(1041, "The right-hand side of operator must be a class.")
		}
		a.typeTest(op == OpIsTypeLate, v, c)
	case OpInstanceOf:
		typ, v := a.pop(), a.pop()
		ok, err := vm.instanceOf(a, v, typ)
		if err != nil {
			return Undefined, false, err
		}
		a.push(Bool(ok))
	case OpTypeOf:
		a.push(String(typeOf(a.pop())))

	// --- arithmetic ---
	case OpAdd:
		y, x := a.pop(), a.pop()
		v, err := vm.add(a, x, y)
		if err != nil {
			return Undefined, false, err
		}
		a.push(v)
	case OpSubtract, OpMultiply, OpDivide, OpModulo:
		x, y, err := a.numbers()
		if err != nil {
			return Undefined, false, err
		}
		a.push(numberValue(arith(op, x, y)))
	case OpNegate, OpIncrement, OpDecrement:
		f, err := vm.ToNumber(a, a.pop())
		if err != nil {
			return Undefined, false, err
		}
		switch op {
		case OpNegate:
			f = -f
		case OpIncrement:
			f++
		default:
			f--
		}
		a.push(numberValue(f))
	case OpNegateI, OpIncrementI, OpDecrementI, OpBitNot:
		i, err := vm.toInt32(a, a.pop())
		if err != nil {
			return Undefined, false, err
		}
		switch op {
		case OpNegateI:
			i = -i
		case OpIncrementI:
			i++
		case OpDecrementI:
			i--
		default:
			i = ^i
		}
		a.push(Int(i))
	case OpAddI, OpSubtractI, OpMultiplyI, OpBitAnd, OpBitOr, OpBitXor, OpLShift, OpRShift:
		x, y, err := a.ints()
		if err != nil {
			return Undefined, false, err
		}
		a.push(Int(intArith(op, x, y)))
	case OpURShift:
		y, x := a.pop(), a.pop()
		ux, err := vm.toUint32(a, x)
		if err != nil {
			return Undefined, false, err
		}
		uy, err := vm.toUint32(a, y)
		if err != nil {
			return Undefined, false, err
		}
		a.push(Uint(ux >> (uy & 31)))
	case OpNot:
		a.push(Bool(!ToBoolean(a.pop())))

	// --- comparison ---
	case OpEquals:
		y, x := a.pop(), a.pop()
		eq, err := vm.LooseEquals(a, x, y)
		if err != nil {
			return Undefined, false, err
		}
		a.push(Bool(eq))
	case OpStrictEquals:
		y, x := a.pop(), a.pop()
		a.push(Bool(StrictEquals(x, y)))
	case OpLessThan, OpLessEquals, OpGreaterThan, OpGreaterEquals:
		y, x := a.pop(), a.pop()
		r, err := a.relation(op, x, y)
		if err != nil {
			return Undefined, false, err
		}
		a.push(Bool(r))

	default:
		return Undefined, false, verifyErrorf(1011, "Method contained illegal opcode 0x%02x at offset %d.", op, in.pos)
	}
	return Undefined, false, nil
}

// ---------------------------------------------------------------------------
// Operand helpers
// ---------------------------------------------------------------------------

func (a *Activation) numbers() (float64, float64, error) {
	y, x := a.pop(), a.pop()
	fx, err := a.vm.ToNumber(a, x)
	if err != nil {
		return 0, 0, err
	}
	fy, err := a.vm.ToNumber(a, y)
	return fx, fy, err
}

func (a *Activation) ints() (int32, int32, error) {
	y, x := a.pop(), a.pop()
	ix, err := a.vm.toInt32(a, x)
	if err != nil {
		return 0, 0, err
	}
	iy, err := a.vm.toInt32(a, y)
	return ix, iy, err
}

func arith(op byte, x, y float64) float64 {
	switch op {
	case OpSubtract:
		return x - y
	case OpMultiply:
		return x * y
	case OpDivide:
		return x / y
	}
	return math.Mod(x, y)
}

func intArith(op byte, x, y int32) int32 {
	switch op {
	case OpAddI:
		return x + y
	case OpSubtractI:
		return x - y
	case OpMultiplyI:
		return x * y
	case OpBitAnd:
		return x & y
	case OpBitOr:
		return x | y
	case OpBitXor:
		return x ^ y
	case OpLShift:
		return x << (uint32(y) & 31)
	}
	return x >> (uint32(y) & 31)
}

// relation evaluates a relational operator or branch. The negated
// branches are taken when the comparison is undefined.
func (a *Activation) relation(op byte, x, y Value) (bool, error) {
	var lt, undef bool
	var err error
	switch op {
	case OpLessThan, OpIfLT, OpIfNLT, OpGreaterEquals, OpIfGE, OpIfNGE:
		lt, undef, err = a.vm.lessThan(a, x, y)
	default:
		lt, undef, err = a.vm.lessThan(a, y, x)
	}
	if err != nil {
		return false, err
	}
	var r bool
	switch op {
	case OpLessThan, OpIfLT, OpIfNLT, OpGreaterThan, OpIfGT, OpIfNGT:
		r = lt && !undef
	default:
		r = !lt && !undef
	}
	switch op {
	case OpIfNLT, OpIfNLE, OpIfNGT, OpIfNGE:
		return !r, nil
	}
	return r, nil
}

func (a *Activation) typeTest(is bool, v Value, c *Class) {
	ok := a.vm.isType(v, c)
	switch {
	case is:
		a.push(Bool(ok))
	case ok:
		a.push(v)
	default:
		a.push(Null)
	}
}

func (a *Activation) typeClass(mn *Multiname) (*Class, error) {
	c, err := a.vm.findClass(mn)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, a.vm.throwError(KindVerifyError, 1014, "Class %s could not be found.", mn)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Names and scopes
// ---------------------------------------------------------------------------

// name resolves multiname idx, popping its runtime parts.
func (a *Activation) name(idx int) (*Multiname, error) {
	mn := a.abc.Multinames[idx]
	if !mn.IsRuntime() {
		return mn, nil
	}
	if mn.NeedsName() {
		local, index, err := a.localName(a.pop())
		if err != nil {
			return nil, err
		}
		mn = mn.withName(local, index)
	}
	if mn.NeedsNamespace() {
		uri, err := a.vm.ToString(a, a.pop())
		if err != nil {
			return nil, err
		}
		mn = mn.withNamespace(NewNamespace(NSNamespace, a.vm.atoms.Intern(uri)))
	}
	return mn, nil
}

func (a *Activation) localName(v Value) (*intern.Atom, int, error) {
	if v.IsNumeric() {
		if f := v.n; f >= 0 && f < math.MaxUint32 && f == math.Trunc(f) {
			return a.vm.atoms.Intern(coerce.FormatNumber(f)), int(f), nil
		}
	}
	s, err := a.vm.ToString(a, v)
	if err != nil {
		return nil, -1, err
	}
	index := -1
	if i, ok := arrayIndex(s); ok {
		index = i
	}
	return a.vm.atoms.Intern(s), index, nil
}

// runtimeName builds a public multiname from a value, as used by in.
func (a *Activation) runtimeName(v Value) (*Multiname, error) {
	local, index, err := a.localName(v)
	if err != nil {
		return nil, err
	}
	mn := NewQNameRef(a.vm.public, local)
	mn.index = index
	return mn, nil
}

func (a *Activation) globalObject() *Object {
	if g := a.outer.outermost(); g != nil {
		return g
	}
	if len(a.scope) > 0 {
		return a.scope[0].obj
	}
	return a.vm.global
}

// findProperty searches the local scope stack, then the captured chain,
// then the global object.
func (a *Activation) findProperty(mn *Multiname, strict bool) (*Object, error) {
	for i := len(a.scope) - 1; i >= 0; i-- {
		o := a.scope[i].obj
		ok, err := o.HasProperty(mn)
		if err != nil {
			return nil, err
		}
		if ok {
			return o, nil
		}
	}
	o, err := a.outer.find(mn)
	if err != nil || o != nil {
		return o, err
	}
	g := a.vm.global
	if ok, err := g.HasProperty(mn); err != nil || ok {
		return g, err
	}
	if strict {
		return nil, a.vm.referenceError(1065, "Variable %s is not defined.", mn.LocalName())
	}
	return a.globalObject(), nil
}

// ---------------------------------------------------------------------------
// Property sites
// ---------------------------------------------------------------------------

// cacheable reports whether a property site may use its inline cache:
// the name is static and the receiver is a sealed instance whose layout
// is fixed by its class.
func (a *Activation) cacheable(o *Object, static bool) bool {
	return static && !a.vm.noIC && o != nil && o.dynamic == nil && o.class != nil && o.vt == o.class.vt && o.array() == nil
}

func (a *Activation) cachedBinding(o *Object, mn *Multiname) (binding, bool, error) {
	ic := a.body.caches.site(a.pc - 1)
	if b, ok := ic.lookup(o.class); ok {
		return b, true, nil
	}
	b, ok, err := o.lookupTrait(mn)
	if err != nil || !ok {
		return b, ok, err
	}
	ic.update(o.class, b)
	return b, true, nil
}

func (a *Activation) getProperty(recv Value, mn *Multiname, static bool) (Value, error) {
	if o := recv.o; a.cacheable(o, static) {
		b, ok, err := a.cachedBinding(o, mn)
		if err != nil {
			return Undefined, err
		}
		if ok {
			return o.readBinding(a, b, mn)
		}
	}
	return a.vm.getProperty(a, recv, mn)
}

func (a *Activation) callProperty(recv Value, mn *Multiname, args []Value, this Value, static bool) (Value, error) {
	if o := recv.o; a.cacheable(o, static) {
		b, ok, err := a.cachedBinding(o, mn)
		if err != nil {
			return Undefined, err
		}
		if ok {
			return o.callBinding(a, b, mn, this, args)
		}
	}
	return a.vm.callProperty(a, recv, mn, args, this)
}

func (a *Activation) slot(recv Value, id int) (*Object, int, error) {
	if recv.o == nil {
		return nil, 0, a.vm.nullReference(recv)
	}
	o := recv.o
	if id < 1 || id > len(o.slots) {
		return nil, 0, verifyErrorf(1026, "Slot %d exceeds slotCount=%d of %s.", id, len(o.slots), o.ClassName())
	}
	return o, id - 1, nil
}

func (a *Activation) storeSlot(o *Object, i int, v Value) error {
	if i < len(o.vt.slots) {
		cv, err := a.vm.coerceTo(a, v, o.vt.slots[i].typ)
		if err != nil {
			return err
		}
		v = cv
	}
	o.setSlot(i, v)
	return nil
}

// ---------------------------------------------------------------------------
// Super access
// ---------------------------------------------------------------------------

func (a *Activation) superBinding(recv Value, mn *Multiname) (*Object, *VTable, binding, error) {
	if recv.o == nil {
		return nil, nil, binding{}, a.vm.nullReference(recv)
	}
	if a.class == nil || a.class.Super == nil {
		return nil, nil, binding{}, a.vm.referenceError(1070, "Method %s not found on %s", mn.LocalName(), recv.o.ClassName())
	}
	vt := a.class.Super.vt
	b, ok, err := vt.lookup(mn)
	if err != nil {
		return nil, nil, binding{}, a.vm.ambiguous(mn, a.class.Super.Name.LocalName())
	}
	if !ok {
		return nil, nil, binding{}, a.vm.referenceError(1070, "Method %s not found on %s", mn.LocalName(), a.class.Super.Name.LocalName())
	}
	return recv.o, vt, b, nil
}

func (a *Activation) getSuper(recv Value, mn *Multiname) (Value, error) {
	o, vt, b, err := a.superBinding(recv, mn)
	if err != nil {
		return Undefined, err
	}
	switch b.kind {
	case bindSlot, bindConst:
		return o.slots[b.slot], nil
	case bindMethod:
		e := vt.disp[b.disp]
		return ObjectValue(a.vm.newFunction(&Closure{method: e.method, scope: e.owner.scope, class: e.owner, this: recv, bound: true})), nil
	case bindAccessor:
		if b.get < 0 {
			return Undefined, a.vm.referenceError(1077, "Illegal read of write-only property %s on %s.", mn, o.ClassName())
		}
		e := vt.disp[b.get]
		return a.vm.callMethod(a, e.method, e.owner, e.owner.scope, recv, nil)
	}
	return Undefined, nil
}

func (a *Activation) setSuper(recv Value, mn *Multiname, v Value) error {
	o, vt, b, err := a.superBinding(recv, mn)
	if err != nil {
		return err
	}
	switch b.kind {
	case bindSlot:
		return a.storeSlot(o, b.slot, v)
	case bindAccessor:
		if b.set >= 0 {
			e := vt.disp[b.set]
			_, err := a.vm.callMethod(a, e.method, e.owner, e.owner.scope, recv, []Value{v})
			return err
		}
	case bindMethod:
		return a.vm.referenceError(1037, "Cannot assign to a method %s on %s.", mn, o.ClassName())
	}
	return a.vm.referenceError(1074, "Illegal write to read-only property %s on %s.", mn, o.ClassName())
}

func (a *Activation) callSuper(recv Value, mn *Multiname, args []Value) (Value, error) {
	o, vt, b, err := a.superBinding(recv, mn)
	if err != nil {
		return Undefined, err
	}
	if b.kind == bindMethod {
		e := vt.disp[b.disp]
		return a.vm.callMethod(a, e.method, e.owner, e.owner.scope, ObjectValue(o), args)
	}
	fn, err := a.getSuper(recv, mn)
	if err != nil {
		return Undefined, err
	}
	return a.vm.callValue(a, fn, recv, args)
}

// ---------------------------------------------------------------------------
// Object creation
// ---------------------------------------------------------------------------

// newActivationObject creates the object holding the method body's own
// traits.
func (a *Activation) newActivationObject() (*Object, error) {
	m := a.method
	if m.actClass == nil {
		c := NewClass(a.vm.publicName("activation"), nil)
		c.InstanceTraits = m.Body.Traits
		if err := c.Link(); err != nil {
			return nil, err
		}
		m.actClass = c
	}
	o := a.vm.allocInstance(m.actClass)
	a.vm.applySlotDefaults(m.actClass, o)
	return o, nil
}

// newCatchScope creates the scope object holding a catch variable.
func (a *Activation) newCatchScope(h *handler) (*Object, error) {
	if h.catchScope == nil {
		c := NewClass(a.vm.publicName("catch"), nil)
		if v := h.varName; v != nil && v.Local != nil && len(v.NS) > 0 {
			c.InstanceTraits = []Trait{SlotTrait(QName{NS: v.NS[0], Local: v.Local}, h.typ)}
		}
		if err := c.Link(); err != nil {
			return nil, err
		}
		h.catchScope = c
	}
	o := a.vm.allocInstance(h.catchScope)
	a.vm.applySlotDefaults(h.catchScope, o)
	return o, nil
}

// newClass defines a class from bytecode. base is the superclass object
// or null.
func (a *Activation) newClass(base Value, c *Class) (*Object, error) {
	if c.object != nil {
		return c.object, nil
	}
	if base.o != nil {
		if bc, ok := base.o.AsClass(); ok && c.Super == nil {
			c.Super = bc
		}
	}
	c.scope = a.outer.extend(a.scope)
	if err := c.Link(); err != nil {
		return nil, err
	}
	obj, err := a.vm.createClassObject(a, c)
	if err != nil {
		return nil, err
	}
	a.vm.register(c)
	log.Debugf("defined class %s", c.Name)
	return obj, nil
}

// hasNext2 advances the enumeration state held in two registers, moving
// along the prototype chain once an object is exhausted.
func (a *Activation) hasNext2(objReg, idxReg int) bool {
	obj := a.locals[objReg]
	idx := int(primitiveNumber(a.locals[idxReg]))
	for obj.o != nil {
		if next := obj.o.nextIndex(idx); next != 0 {
			a.locals[objReg] = obj
			a.locals[idxReg] = Int(int32(next))
			return true
		}
		obj, idx = ObjectValue(obj.o.proto), 0
	}
	a.locals[objReg] = Null
	a.locals[idxReg] = Int(0)
	return false
}
