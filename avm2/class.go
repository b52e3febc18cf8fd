package avm2

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is a class definition: its name, superclass, traits and
// initializers. Link places the traits into vtables; a class must be
// linked before it is instantiated.
type Class struct {
	Name        QName
	Super       *Class
	Interfaces  []*Class
	Sealed      bool
	Final       bool
	Interface   bool
	ProtectedNS *Namespace

	InstanceTraits []Trait
	ClassTraits    []Trait

	// InstanceInit runs as the constructor. ClassInit runs once when the
	// class object is created.
	InstanceInit *Method
	ClassInit    *Method

	// native hooks
	alloc     func(o *Object)
	call      NativeMethod
	noNew     bool
	isError   bool
	primitive bool // new returns the converted primitive

	scope     *ScopeChain
	vt        *VTable
	staticVT  *VTable
	object    *Object
	prototype *Object
}

// NewClass creates an unlinked sealed class.
func NewClass(name QName, super *Class) *Class {
	return &Class{Name: name, Super: super, Sealed: true}
}

func (c *Class) String() string { return c.Name.String() }

// VTable returns the linked instance vtable, or nil before Link.
func (c *Class) VTable() *VTable { return c.vt }

// Object returns the class object, or nil before the class is defined.
func (c *Class) Object() *Object { return c.object }

// Prototype returns the class's prototype object.
func (c *Class) Prototype() *Object { return c.prototype }

func (c *Class) Linked() bool { return c.vt != nil }

// IsSubclassOf reports whether c is other or derives from it, including
// through implemented interfaces.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
		for _, i := range cur.Interfaces {
			if i.IsSubclassOf(other) {
				return true
			}
		}
	}
	return false
}

// dynamic reports whether instances carry a dynamic property map.
func (c *Class) dynamic() bool { return !c.Sealed }

// Link builds c's vtables. The superclass is linked first. Overriding a
// final method, overriding without the override flag, redeclaring a slot
// or extending a final class is a VerifyError.
func (c *Class) Link() error {
	if c.vt != nil {
		return nil
	}
	var parent *VTable
	if c.Super != nil {
		if c.Super.Final {
			return verifyErrorf(1103, "Class %s cannot extend final base class.", c.Name)
		}
		if c.Super.Interface {
			return verifyErrorf(1110, "Class %s cannot extend %s.", c.Name, c.Super.Name)
		}
		if err := c.Super.Link(); err != nil {
			return err
		}
		parent = c.Super.vt
	}
	vt := newVTable(c, parent)
	for _, t := range c.InstanceTraits {
		if err := vt.addTrait(t, c); err != nil {
			return err
		}
	}
	static := newVTable(c, nil)
	for _, t := range c.ClassTraits {
		if err := static.addTrait(t, c); err != nil {
			return err
		}
	}
	c.vt, c.staticVT = vt, static
	return nil
}

// ownSlots lists the slots declared by c itself.
func (c *Class) ownSlots() []int {
	var out []int
	for i, s := range c.vt.slots {
		if s.owner == c {
			out = append(out, i)
		}
	}
	return out
}
