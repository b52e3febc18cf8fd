package avm2

import "github.com/chazu/avmcore/intern"

// ABC is a constant pool and the methods and classes that reference it.
// Index 0 of every numbered pool is reserved for "none", as in the file
// format. Methods and classes are indexed from 0.
type ABC struct {
	Ints       []int32
	Uints      []uint32
	Doubles    []float64
	Strings    []string
	Namespaces []*Namespace
	Multinames []*Multiname
	Methods    []*Method
	Classes    []*Class

	atoms *intern.Table
}

// NewABC creates an empty pool whose names intern into atoms.
func NewABC(atoms *intern.Table) *ABC {
	return &ABC{
		Ints:       []int32{0},
		Uints:      []uint32{0},
		Doubles:    []float64{0},
		Strings:    []string{""},
		Namespaces: []*Namespace{nil},
		Multinames: []*Multiname{nil},
		atoms:      atoms,
	}
}

func (a *ABC) AddInt(v int32) int {
	a.Ints = append(a.Ints, v)
	return len(a.Ints) - 1
}

func (a *ABC) AddUint(v uint32) int {
	a.Uints = append(a.Uints, v)
	return len(a.Uints) - 1
}

func (a *ABC) AddDouble(v float64) int {
	a.Doubles = append(a.Doubles, v)
	return len(a.Doubles) - 1
}

func (a *ABC) AddString(s string) int {
	for i, existing := range a.Strings[1:] {
		if existing == s {
			return i + 1
		}
	}
	a.Strings = append(a.Strings, s)
	return len(a.Strings) - 1
}

func (a *ABC) AddNamespace(ns *Namespace) int {
	a.Namespaces = append(a.Namespaces, ns)
	return len(a.Namespaces) - 1
}

func (a *ABC) AddMultiname(mn *Multiname) int {
	a.Multinames = append(a.Multinames, mn)
	return len(a.Multinames) - 1
}

// Name adds a multiname for local in ns and returns its index.
func (a *ABC) Name(ns *Namespace, local string) int {
	return a.AddMultiname(NewQNameRef(ns, a.atoms.Intern(local)))
}

// PublicName adds a public multiname and returns its index.
func (a *ABC) PublicName(local string) int {
	return a.Name(a.Public(), local)
}

// Public returns a public namespace interned in the pool's table.
func (a *ABC) Public() *Namespace {
	return NewNamespace(NSPackage, a.atoms.Intern(""))
}

// AddMethod appends m and returns its method index.
func (a *ABC) AddMethod(m *Method) int {
	m.abc = a
	a.Methods = append(a.Methods, m)
	return len(a.Methods) - 1
}

// AddClass appends c and returns its class index.
func (a *ABC) AddClass(c *Class) int {
	a.Classes = append(a.Classes, c)
	return len(a.Classes) - 1
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// NativeMethod implements a method in Go. this is the receiver as passed
// by the caller; act is the activation of the native call itself.
type NativeMethod func(act *Activation, this Value, args []Value) (Value, error)

// MethodFlags are the method_info flags the interpreter honours.
type MethodFlags uint8

const (
	NeedArguments MethodFlags = 1 << iota
	NeedActivation
	NeedRest
)

// Param is one declared parameter.
type Param struct {
	Name       string
	Type       *Multiname
	Default    Value
	HasDefault bool
}

// Method is a method_info: a signature plus either a bytecode body or a
// native implementation.
type Method struct {
	Name       string
	Params     []Param
	ReturnType *Multiname
	Flags      MethodFlags
	Body       *MethodBody
	Native     NativeMethod

	abc       *ABC
	verified  *verifiedBody
	verifyErr error
	actClass  *Class
}

// NewNativeMethod wraps fn as a method without declared parameters.
func NewNativeMethod(name string, fn NativeMethod) *Method {
	return &Method{Name: name, Native: fn}
}

// ABC returns the pool the method's body refers to.
func (m *Method) ABC() *ABC { return m.abc }

func (m *Method) requiredParams() int {
	n := 0
	for _, p := range m.Params {
		if !p.HasDefault {
			n++
		}
	}
	return n
}

func (m *Method) String() string {
	if m.Name == "" {
		return "<anonymous>"
	}
	return m.Name
}

// MethodBody is a method_body_info.
type MethodBody struct {
	MaxStack       int
	NumLocals      int
	InitScopeDepth int
	MaxScopeDepth  int
	Code           []byte
	Exceptions     []Exception

	// Traits describe the activation object created by newactivation.
	Traits []Trait
}

// Exception is one exception_info entry. From and To delimit the covered
// byte range [From, To); Target is the handler's byte offset. A nil Type
// catches everything.
type Exception struct {
	From, To, Target int
	Type             *Multiname
	VarName          *Multiname
}
