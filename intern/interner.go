// Package intern deduplicates identifier strings so that names compare by
// pointer.
package intern

import "sync"

// ---------------------------------------------------------------------------
// Atom: An interned string
// ---------------------------------------------------------------------------

// Atom is an interned string. Two atoms from the same Table are equal iff
// they are the same pointer.
type Atom struct {
	s  string
	id uint32
}

// String returns the atom's contents.
func (a *Atom) String() string {
	if a == nil {
		return ""
	}
	return a.s
}

// ID returns the atom's index in its table.
func (a *Atom) ID() uint32 {
	return a.id
}

// Equal compares by pointer first and falls back to content, so atoms from
// different tables and hand-built atoms still compare correctly.
func (a *Atom) Equal(b *Atom) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.s == b.s
}

// New returns an atom that is not registered with any table.
func New(s string) *Atom {
	return &Atom{s: s, id: ^uint32(0)}
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// Table interns strings to unique atoms.
type Table struct {
	mu     sync.RWMutex
	byName map[string]*Atom
	byID   []*Atom
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]*Atom),
		byID:   make([]*Atom, 0, 256),
	}
}

// Intern returns the atom for s, creating it if needed.
func (t *Table) Intern(s string) *Atom {
	t.mu.RLock()
	if a, ok := t.byName[s]; ok {
		t.mu.RUnlock()
		return a
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring the write lock
	if a, ok := t.byName[s]; ok {
		return a
	}
	a := &Atom{s: s, id: uint32(len(t.byID))}
	t.byName[s] = a
	t.byID = append(t.byID, a)
	return a
}

// Lookup returns the atom for s without creating one.
func (t *Table) Lookup(s string) (*Atom, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.byName[s]
	return a, ok
}

// ByID returns the atom with the given id, or nil.
func (t *Table) ByID(id uint32) *Atom {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.byID) {
		return nil
	}
	return t.byID[id]
}

// Len returns the number of interned atoms.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
