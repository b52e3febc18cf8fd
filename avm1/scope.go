package avm1

import "github.com/chazu/avmcore/gc"

// ScopeKind says how a scope participates in variable resolution.
type ScopeKind uint8

const (
	// ScopeGlobal is the root of every chain; its locals are _global.
	ScopeGlobal ScopeKind = iota
	// ScopeTarget holds the timeline object a frame script runs against.
	ScopeTarget
	// ScopeLocal holds a function activation's local variables.
	ScopeLocal
	// ScopeWith is pushed by the With action.
	ScopeWith
)

// Scope is one link of a scope chain. Scopes are not heap objects; they
// are reached through activations and function closures, which trace
// their locals.
type Scope struct {
	kind   ScopeKind
	locals *Object
	parent *Scope
}

// NewScope links a scope of the given kind over parent.
func NewScope(kind ScopeKind, locals *Object, parent *Scope) *Scope {
	return &Scope{kind: kind, locals: locals, parent: parent}
}

func (s *Scope) Kind() ScopeKind { return s.kind }
func (s *Scope) Locals() *Object { return s.locals }
func (s *Scope) Parent() *Scope  { return s.parent }

func (s *Scope) trace(t *gc.Tracer) {
	for ; s != nil; s = s.parent {
		if s.locals != nil {
			t.Mark(s.locals)
		}
	}
}

// resolve walks the chain. With scopes and the innermost local scope are
// searched including their prototype chains. The reported holder is the
// object the name was found on.
func (s *Scope) resolve(act *Activation, name string) (Value, *Object, bool, error) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.locals == nil || !cur.locals.HasProperty(act, name) {
			continue
		}
		v, err := cur.locals.Get(act, name)
		return v, cur.locals, true, err
	}
	return Undefined, nil, false, nil
}

// set assigns name on the first scope that owns a writable property of
// that name. Target scopes capture any assignment that reaches them, so
// undeclared variables land on the timeline rather than the global object.
func (s *Scope) set(act *Activation, name string, v Value) error {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.locals == nil {
			continue
		}
		if cur.kind == ScopeTarget || cur.parent == nil {
			return cur.locals.Set(act, name, v)
		}
		if p := cur.locals.Property(act, name); p != nil && p.Writable() {
			return cur.locals.Set(act, name, v)
		}
	}
	return nil
}

// define sets name on the innermost non-with scope.
func (s *Scope) define(act *Activation, name string, v Value) error {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.kind != ScopeWith && cur.locals != nil {
			return cur.locals.Set(act, name, v)
		}
	}
	return nil
}

// forceDefine inserts name on the innermost non-with scope, bypassing
// watchers and setters.
func (s *Scope) forceDefine(name string, v Value) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.kind != ScopeWith && cur.locals != nil {
			cur.locals.Define(name, v, 0)
			return
		}
	}
}

// deleteName removes name from the first scope that owns it.
func (s *Scope) deleteName(act *Activation, name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.locals != nil && cur.locals.HasOwnProperty(act, name) {
			return cur.locals.Delete(act, name)
		}
	}
	return false
}
