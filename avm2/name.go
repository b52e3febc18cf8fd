package avm2

import (
	"strconv"

	"github.com/chazu/avmcore/intern"
)

// QName is a fully qualified name.
type QName struct {
	NS    *Namespace
	Local *intern.Atom
}

func (q QName) LocalName() string { return q.Local.String() }

func (q QName) String() string {
	if q.NS == nil || q.NS.IsPublic() || q.NS.uri.String() == "" {
		return q.Local.String()
	}
	return q.NS.URI() + "::" + q.Local.String()
}

// Equal compares namespace and local name.
func (q QName) Equal(o QName) bool {
	if !q.Local.Equal(o.Local) {
		return false
	}
	if q.NS == o.NS {
		return true
	}
	if q.NS == nil || o.NS == nil {
		return false
	}
	return q.NS.kind != NSAny && o.NS.kind != NSAny && q.NS.Matches(o.NS)
}

// MultinameKind says which parts of a multiname come from the operand
// stack at run time.
type MultinameKind uint8

const (
	MNQName      MultinameKind = iota // static namespace and name
	MNRTQName                         // namespace popped
	MNRTQNameL                        // namespace and name popped
	MNMultiname                       // static name, namespace set
	MNMultinameL                      // name popped, namespace set
)

// Multiname is a name reference: a local name, or the wildcard when Local
// is nil, and a set of candidate namespaces.
type Multiname struct {
	Kind  MultinameKind
	Local *intern.Atom
	NS    NamespaceSet

	// index is the array index a runtime name converted to, or -1.
	index int
}

// NewQNameRef is a multiname for exactly one namespace.
func NewQNameRef(ns *Namespace, local *intern.Atom) *Multiname {
	return &Multiname{Kind: MNQName, Local: local, NS: NamespaceSet{ns}, index: -1}
}

// NewMultiname is a multiname over a namespace set.
func NewMultiname(local *intern.Atom, set NamespaceSet) *Multiname {
	return &Multiname{Kind: MNMultiname, Local: local, NS: set, index: -1}
}

func (m *Multiname) NeedsNamespace() bool { return m.Kind == MNRTQName || m.Kind == MNRTQNameL }
func (m *Multiname) NeedsName() bool      { return m.Kind == MNRTQNameL || m.Kind == MNMultinameL }
func (m *Multiname) IsRuntime() bool      { return m.NeedsName() || m.NeedsNamespace() }
func (m *Multiname) IsAnyName() bool      { return m.Local == nil }

// LocalName returns the local part, "*" for the wildcard.
func (m *Multiname) LocalName() string {
	if m.Local == nil {
		return "*"
	}
	return m.Local.String()
}

// Index returns the array index a runtime name resolved to.
func (m *Multiname) Index() (int, bool) { return m.index, m.index >= 0 }

// Matches reports whether q is named by m.
func (m *Multiname) Matches(q QName) bool {
	if m.Local != nil && !m.Local.Equal(q.Local) {
		return false
	}
	for _, ns := range m.NS {
		if q.NS == nil {
			if ns.IsPublic() || ns.IsAny() {
				return true
			}
			continue
		}
		if ns.Matches(q.NS) {
			return true
		}
	}
	return false
}

func (m *Multiname) String() string {
	if len(m.NS) == 1 {
		return QName{NS: m.NS[0], Local: m.Local}.String()
	}
	return m.LocalName()
}

// withName returns a copy of m with a runtime local name filled in.
func (m *Multiname) withName(local *intern.Atom, index int) *Multiname {
	c := *m
	c.Local = local
	c.index = index
	if c.Kind == MNRTQNameL {
		c.Kind = MNRTQName
	} else {
		c.Kind = MNMultiname
	}
	return &c
}

// withNamespace returns a copy of m qualified by ns.
func (m *Multiname) withNamespace(ns *Namespace) *Multiname {
	c := *m
	c.NS = NamespaceSet{ns}
	if c.Kind == MNRTQNameL {
		c.Kind = MNMultinameL
	} else {
		c.Kind = MNQName
	}
	return &c
}

// arrayIndex parses s as a canonical array index.
func arrayIndex(s string) (int, bool) {
	if s == "" || len(s) > 10 || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 1<<32-1 {
		return 0, false
	}
	return int(n), true
}
