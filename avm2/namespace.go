package avm2

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chazu/avmcore/intern"
)

// NamespaceKind is the ABC namespace kind.
type NamespaceKind uint8

const (
	NSNamespace NamespaceKind = iota
	NSPackage
	NSPackageInternal
	NSProtected
	NSExplicit
	NSStaticProtected
	NSPrivate
	NSAny
)

func (k NamespaceKind) String() string {
	switch k {
	case NSNamespace:
		return "namespace"
	case NSPackage:
		return "package"
	case NSPackageInternal:
		return "internal"
	case NSProtected:
		return "protected"
	case NSExplicit:
		return "explicit"
	case NSStaticProtected:
		return "static protected"
	case NSPrivate:
		return "private"
	case NSAny:
		return "*"
	}
	return "invalid"
}

var privateNamespaceIDs atomic.Uint64

// Namespace qualifies trait names. Private namespaces are unique per
// declaration and compare by identity; all others compare by kind and URI.
type Namespace struct {
	kind NamespaceKind
	uri  *intern.Atom
	id   uint64 // non-zero for private namespaces
}

// NewNamespace creates a namespace. Private kinds get a fresh identity.
func NewNamespace(kind NamespaceKind, uri *intern.Atom) *Namespace {
	ns := &Namespace{kind: kind, uri: uri}
	if kind == NSPrivate {
		ns.id = privateNamespaceIDs.Add(1)
	}
	return ns
}

// AnyNamespace is the wildcard namespace.
var AnyNamespace = &Namespace{kind: NSAny, uri: intern.New("*")}

func (ns *Namespace) Kind() NamespaceKind { return ns.kind }
func (ns *Namespace) URI() string         { return ns.uri.String() }
func (ns *Namespace) IsAny() bool         { return ns.kind == NSAny }

// IsPublic reports whether ns is the unnamed public package.
func (ns *Namespace) IsPublic() bool {
	return ns.kind == NSPackage && ns.uri.String() == ""
}

// Matches reports whether ns and other name the same namespace. The
// wildcard matches everything.
func (ns *Namespace) Matches(other *Namespace) bool {
	if ns == other || ns.kind == NSAny || other.kind == NSAny {
		return true
	}
	if ns.kind == NSPrivate || other.kind == NSPrivate {
		return false
	}
	return ns.equivalentKind(other) && ns.uri.Equal(other.uri)
}

// Package and namespace kinds sharing a URI are the same namespace.
func (ns *Namespace) equivalentKind(other *Namespace) bool {
	a, b := ns.kind, other.kind
	if a == NSNamespace {
		a = NSPackage
	}
	if b == NSNamespace {
		b = NSPackage
	}
	return a == b
}

func (ns *Namespace) String() string {
	if ns.kind == NSPrivate {
		return fmt.Sprintf("private#%d", ns.id)
	}
	if ns.uri.String() == "" {
		return ns.kind.String()
	}
	return fmt.Sprintf("%s(%s)", ns.kind, ns.uri)
}

// NamespaceSet is the candidate list of a multiname.
type NamespaceSet []*Namespace

func (s NamespaceSet) containsPublic() bool {
	for _, ns := range s {
		if ns.IsPublic() || ns.IsAny() {
			return true
		}
	}
	return false
}

func (s NamespaceSet) String() string {
	parts := make([]string, len(s))
	for i, ns := range s {
		parts[i] = ns.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
