package avm2

import "math"

// ---------------------------------------------------------------------------
// VTable: linked trait table
// ---------------------------------------------------------------------------

type bindingKind uint8

const (
	bindNone bindingKind = iota
	bindSlot
	bindConst
	bindMethod
	bindAccessor
)

// binding is what a name resolves to on a class: a slot index, a method
// disp id, or a getter/setter disp id pair (-1 when absent).
type binding struct {
	kind     bindingKind
	slot     int
	disp     int
	get, set int
}

type slotInfo struct {
	name  QName
	typ   *Multiname
	def   Value
	owner *Class
	class *Class // class trait whose object fills the slot
}

type dispEntry struct {
	name   QName
	method *Method
	owner  *Class
	final  bool
}

type vtEntry struct {
	name QName
	b    binding
}

// VTable is the result of linking a class: every instance trait, including
// inherited ones, placed at a fixed slot or disp id. Overrides reuse the
// disp id of the method they replace.
type VTable struct {
	class   *Class
	entries []vtEntry
	byLocal map[string][]int
	slots   []slotInfo
	disp    []dispEntry
}

// newVTable starts a vtable as a copy of parent's.
func newVTable(c *Class, parent *VTable) *VTable {
	vt := &VTable{class: c, byLocal: make(map[string][]int)}
	if parent != nil {
		vt.entries = append([]vtEntry(nil), parent.entries...)
		vt.slots = append([]slotInfo(nil), parent.slots...)
		vt.disp = append([]dispEntry(nil), parent.disp...)
		for k, v := range parent.byLocal {
			vt.byLocal[k] = append([]int(nil), v...)
		}
	}
	return vt
}

func (vt *VTable) SlotCount() int   { return len(vt.slots) }
func (vt *VTable) MethodCount() int { return len(vt.disp) }

// Method returns the method at disp id, or nil.
func (vt *VTable) Method(disp int) *Method {
	if disp < 0 || disp >= len(vt.disp) {
		return nil
	}
	return vt.disp[disp].method
}

func (vt *VTable) find(q QName) int {
	for _, i := range vt.byLocal[q.LocalName()] {
		if vt.entries[i].name.Equal(q) {
			return i
		}
	}
	return -1
}

func (vt *VTable) addEntry(q QName, b binding) {
	vt.entries = append(vt.entries, vtEntry{name: q, b: b})
	k := q.LocalName()
	vt.byLocal[k] = append(vt.byLocal[k], len(vt.entries)-1)
}

func (vt *VTable) illegalOverride(t Trait) error {
	return verifyErrorf(1053, "Illegal override of %s in %s.", t.Name, vt.class.Name)
}

// addTrait places t, declared by owner, into the table.
func (vt *VTable) addTrait(t Trait, owner *Class) error {
	idx := vt.find(t.Name)
	switch {
	case t.Kind.isSlotLike():
		if idx >= 0 {
			return vt.illegalOverride(t)
		}
		slot := len(vt.slots)
		if t.SlotID > 0 {
			slot = t.SlotID - 1
			for len(vt.slots) <= slot {
				vt.slots = append(vt.slots, slotInfo{})
			}
			if vt.slots[slot].name.Local != nil {
				return verifyErrorf(1053, "Illegal override of %s in %s: slot %d is taken by %s.", t.Name, vt.class.Name, t.SlotID, vt.slots[slot].name)
			}
		} else {
			vt.slots = append(vt.slots, slotInfo{})
		}
		def := t.Default
		if !t.HasDefault {
			def = typeDefault(t.Type)
		}
		vt.slots[slot] = slotInfo{name: t.Name, typ: t.Type, def: def, owner: owner, class: t.Class}
		kind := bindConst
		if t.Kind == TraitSlot {
			kind = bindSlot
		}
		vt.addEntry(t.Name, binding{kind: kind, slot: slot, get: -1, set: -1})

	case t.Kind == TraitMethod:
		if idx >= 0 {
			e := &vt.entries[idx]
			if e.b.kind != bindMethod || !t.Override || vt.disp[e.b.disp].final {
				return vt.illegalOverride(t)
			}
			vt.disp[e.b.disp] = dispEntry{name: t.Name, method: t.Method, owner: owner, final: t.Final}
			return nil
		}
		if t.Override {
			return vt.illegalOverride(t)
		}
		vt.disp = append(vt.disp, dispEntry{name: t.Name, method: t.Method, owner: owner, final: t.Final})
		vt.addEntry(t.Name, binding{kind: bindMethod, disp: len(vt.disp) - 1, get: -1, set: -1})

	case t.Kind == TraitGetter || t.Kind == TraitSetter:
		if idx < 0 {
			if t.Override {
				return vt.illegalOverride(t)
			}
			vt.addEntry(t.Name, binding{kind: bindAccessor, get: -1, set: -1})
			idx = len(vt.entries) - 1
		}
		e := &vt.entries[idx]
		if e.b.kind != bindAccessor {
			return vt.illegalOverride(t)
		}
		half := &e.b.get
		if t.Kind == TraitSetter {
			half = &e.b.set
		}
		entry := dispEntry{name: t.Name, method: t.Method, owner: owner, final: t.Final}
		if *half >= 0 {
			if !t.Override || vt.disp[*half].final || vt.disp[*half].owner == owner {
				return vt.illegalOverride(t)
			}
			vt.disp[*half] = entry
			return nil
		}
		vt.disp = append(vt.disp, entry)
		*half = len(vt.disp) - 1
	}
	return nil
}

// lookup resolves mn against the table. A match in more than one
// namespace returns ErrAmbiguous.
func (vt *VTable) lookup(mn *Multiname) (binding, bool, error) {
	var candidates []int
	if mn.Local == nil {
		candidates = make([]int, len(vt.entries))
		for i := range candidates {
			candidates[i] = i
		}
	} else {
		candidates = vt.byLocal[mn.Local.String()]
	}
	found := -1
	for _, i := range candidates {
		if !mn.Matches(vt.entries[i].name) {
			continue
		}
		if found >= 0 {
			return binding{}, false, ErrAmbiguous
		}
		found = i
	}
	if found < 0 {
		return binding{}, false, nil
	}
	return vt.entries[found].b, true, nil
}

// slotByName returns the slot index declared as q, or -1.
func (vt *VTable) slotByName(q QName) int {
	if i := vt.find(q); i >= 0 {
		if b := vt.entries[i].b; b.kind == bindSlot || b.kind == bindConst {
			return b.slot
		}
	}
	return -1
}

// typeDefault is the initial value of an untyped or typed slot.
func typeDefault(typ *Multiname) Value {
	if typ == nil || typ.Local == nil {
		return Undefined
	}
	public := len(typ.NS) == 0 || typ.NS.containsPublic()
	if !public {
		return Null
	}
	switch typ.Local.String() {
	case "*":
		return Undefined
	case "int":
		return Int(0)
	case "uint":
		return Uint(0)
	case "Number":
		return Number(math.NaN())
	case "Boolean":
		return Bool(false)
	}
	return Null
}
