package avm2

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// instr is one decoded instruction. Branch targets are instruction
// indices; a, b and c hold the remaining operands in order.
type instr struct {
	op      byte
	pos     int
	a, b, c int
	targets []int
}

type handler struct {
	from, to   int // covered byte range
	target     int // instruction index
	typ        *Multiname
	varName    *Multiname
	catchClass *Class
	catchScope *Class
}

// verifiedBody is the cached result of verifying a method body.
type verifiedBody struct {
	code     []instr
	handlers []handler
	caches   *InlineCacheTable
}

type codeReader struct {
	code []byte
	pos  int
	bad  bool
}

func (r *codeReader) u8() int {
	if r.pos >= len(r.code) {
		r.bad = true
		return 0
	}
	v := r.code[r.pos]
	r.pos++
	return int(v)
}

func (r *codeReader) u30() int {
	var v uint32
	for shift := 0; shift < 35; shift += 7 {
		b := r.u8()
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
	}
	return int(v & 0x3fffffff)
}

func (r *codeReader) s24() int {
	b0, b1, b2 := r.u8(), r.u8(), r.u8()
	v := b0 | b1<<8 | b2<<16
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

// verify decodes and checks m's body: opcode validity, register and
// constant pool bounds, branch targets on instruction boundaries, no fall
// through past the end, and exception table ranges.
func verify(m *Method) (*verifiedBody, error) {
	body := m.Body
	if body == nil {
		return nil, &VerifyError{Code: 1047, Message: "No entry point was found.", Method: m.String()}
	}
	v, err := decode(m, body)
	if err != nil {
		if ve, ok := err.(*VerifyError); ok {
			ve.Method = m.String()
		}
		return nil, err
	}
	return v, nil
}

func decode(m *Method, body *MethodBody) (*verifiedBody, error) {
	code := body.Code
	if len(code) == 0 {
		return nil, verifyErrorf(1043, "Invalid code_length=0.")
	}
	abc := m.abc
	if abc == nil {
		abc = &ABC{}
	}
	poolCheck := func(idx, size int) error {
		if idx <= 0 || idx >= size {
			return verifyErrorf(1032, "Cpool index %d is out of range.", idx)
		}
		return nil
	}
	regCheck := func(idx int) error {
		if idx < 0 || idx >= body.NumLocals {
			return verifyErrorf(1025, "An invalid register %d was accessed.", idx)
		}
		return nil
	}

	r := &codeReader{code: code}
	var out []instr
	byPos := make(map[int]int)
	var rawTargets [][]int

	for r.pos < len(code) {
		start := r.pos
		op := byte(r.u8())
		spec, ok := opInfo[op]
		if !ok {
			return nil, verifyErrorf(1011, "Method contained illegal opcode 0x%02x at offset %d.", op, start)
		}
		in := instr{op: op, pos: start}
		var targets []int
		if op == OpLookupSwitch {
			targets = append(targets, start+r.s24())
			n := r.u30()
			if n > len(code) {
				return nil, verifyErrorf(1011, "Method contained illegal lookupswitch at offset %d.", start)
			}
			for i := 0; i <= n; i++ {
				targets = append(targets, start+r.s24())
			}
		}
		var vals []int
		for _, kind := range spec.operands {
			var val int
			var err error
			switch kind {
			case opU30:
				val = r.u30()
			case opU8:
				val = r.u8()
			case opS8:
				val = int(int8(r.u8()))
			case opS24:
				off := r.s24()
				targets = append(targets, r.pos+off)
			case opRegister:
				val = r.u30()
				err = regCheck(val)
			case opMultiname:
				val = r.u30()
				err = poolCheck(val, len(abc.Multinames))
			case opString:
				val = r.u30()
				err = poolCheck(val, len(abc.Strings))
			case opInt:
				val = r.u30()
				err = poolCheck(val, len(abc.Ints))
			case opUint:
				val = r.u30()
				err = poolCheck(val, len(abc.Uints))
			case opDouble:
				val = r.u30()
				err = poolCheck(val, len(abc.Doubles))
			case opMethod:
				val = r.u30()
				if val >= len(abc.Methods) {
					err = verifyErrorf(1027, "Method_info %d exceeds method_count.", val)
				}
			case opClass:
				val = r.u30()
				if val >= len(abc.Classes) {
					err = verifyErrorf(1060, "ClassInfo %d exceeds class_count.", val)
				}
			case opException:
				val = r.u30()
				if val >= len(body.Exceptions) {
					err = verifyErrorf(1032, "Cpool index %d is out of range.", val)
				}
			case opDebug:
				r.u8()
				r.u30()
				r.u8()
				r.u30()
			}
			if err != nil {
				return nil, err
			}
			vals = append(vals, val)
		}
		if r.bad {
			return nil, verifyErrorf(1011, "Method contained a truncated %s at offset %d.", spec.name, start)
		}
		if op >= OpGetLocal0 && op <= OpSetLocal3 {
			if err := regCheck(int(op-OpGetLocal0) & 3); err != nil {
				return nil, err
			}
		}
		if !isBranch(op) && op != OpLookupSwitch {
			for i, val := range vals {
				switch i {
				case 0:
					in.a = val
				case 1:
					in.b = val
				case 2:
					in.c = val
				}
			}
		}
		byPos[start] = len(out)
		out = append(out, in)
		rawTargets = append(rawTargets, targets)
	}

	for i, ts := range rawTargets {
		if len(ts) == 0 {
			continue
		}
		mapped := make([]int, len(ts))
		for j, t := range ts {
			idx, ok := byPos[t]
			if !ok {
				return nil, verifyErrorf(1021, "At least one branch target was not on a valid instruction in the method.")
			}
			mapped[j] = idx
		}
		out[i].targets = mapped
		out[i].a = mapped[0]
	}
	if !terminates(out[len(out)-1].op) {
		return nil, verifyErrorf(1020, "Code cannot fall off the end of a method.")
	}

	handlers := make([]handler, len(body.Exceptions))
	for i, e := range body.Exceptions {
		target, ok := byPos[e.Target]
		if e.From < 0 || e.From >= e.To || e.To > len(code) || !ok {
			return nil, verifyErrorf(1054, "Illegal range or target offsets in exception handler.")
		}
		handlers[i] = handler{from: e.From, to: e.To, target: target, typ: e.Type, varName: e.VarName}
	}
	return &verifiedBody{code: out, handlers: handlers, caches: NewInlineCacheTable()}, nil
}

// Verify checks m's body without running it. The result is cached.
func (m *Method) Verify() error {
	_, err := m.verifiedBody()
	return err
}

func (m *Method) verifiedBody() (*verifiedBody, error) {
	if m.verified != nil {
		return m.verified, nil
	}
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	v, err := verify(m)
	if err != nil {
		m.verifyErr = err
		log.Debugf("verification of %s failed: %s", m, err)
		return nil, err
	}
	m.verified = v
	return v, nil
}
