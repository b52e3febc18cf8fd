package avm2

// ---------------------------------------------------------------------------
// Trait: class and instance member descriptor
// ---------------------------------------------------------------------------

// TraitKind is the trait_info kind.
type TraitKind uint8

const (
	TraitSlot TraitKind = iota
	TraitMethod
	TraitGetter
	TraitSetter
	TraitClass
	TraitFunction
	TraitConst
)

func (k TraitKind) String() string {
	switch k {
	case TraitSlot:
		return "slot"
	case TraitMethod:
		return "method"
	case TraitGetter:
		return "getter"
	case TraitSetter:
		return "setter"
	case TraitClass:
		return "class"
	case TraitFunction:
		return "function"
	case TraitConst:
		return "const"
	}
	return "invalid"
}

func (k TraitKind) isSlotLike() bool {
	return k == TraitSlot || k == TraitConst || k == TraitClass || k == TraitFunction
}

// Trait declares one member of a class, instance, activation or script.
// SlotID 0 asks the linker to assign the next free slot.
type Trait struct {
	Name       QName
	Kind       TraitKind
	SlotID     int
	Type       *Multiname
	Default    Value
	HasDefault bool
	Method     *Method
	Class      *Class
	Final      bool
	Override   bool
}

// SlotTrait declares a variable. A nil type means "*".
func SlotTrait(name QName, typ *Multiname) Trait {
	return Trait{Name: name, Kind: TraitSlot, Type: typ}
}

// SlotTraitWithDefault declares a variable with an initial value.
func SlotTraitWithDefault(name QName, typ *Multiname, def Value) Trait {
	return Trait{Name: name, Kind: TraitSlot, Type: typ, Default: def, HasDefault: true}
}

// ConstTrait declares a constant.
func ConstTrait(name QName, typ *Multiname, def Value) Trait {
	return Trait{Name: name, Kind: TraitConst, Type: typ, Default: def, HasDefault: true}
}

func MethodTrait(name QName, m *Method) Trait {
	return Trait{Name: name, Kind: TraitMethod, Method: m}
}

func GetterTrait(name QName, m *Method) Trait {
	return Trait{Name: name, Kind: TraitGetter, Method: m}
}

func SetterTrait(name QName, m *Method) Trait {
	return Trait{Name: name, Kind: TraitSetter, Method: m}
}

// ClassTrait declares a slot holding a class object.
func ClassTrait(c *Class) Trait {
	return Trait{Name: c.Name, Kind: TraitClass, Class: c}
}

// AsOverride marks t as overriding an inherited method.
func (t Trait) AsOverride() Trait {
	t.Override = true
	return t
}

// AsFinal marks t as not overridable.
func (t Trait) AsFinal() Trait {
	t.Final = true
	return t
}
