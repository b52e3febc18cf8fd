package intern

import "testing"

func TestInternReturnsSameAtom(t *testing.T) {
	tab := NewTable()

	a := tab.Intern("length")
	b := tab.Intern("length")
	c := tab.Intern("prototype")

	if a != b {
		t.Error("interning the same string twice should return the same atom")
	}
	if a == c {
		t.Error("different strings should have different atoms")
	}
	if tab.Len() != 2 {
		t.Errorf("Len = %d, want 2", tab.Len())
	}
	if tab.ByID(c.ID()) != c {
		t.Error("ByID should return the registered atom")
	}
}

func TestLookupDoesNotCreate(t *testing.T) {
	tab := NewTable()
	if _, ok := tab.Lookup("x"); ok {
		t.Fatal("Lookup found an atom that was never interned")
	}
	if tab.Len() != 0 {
		t.Fatal("Lookup must not intern")
	}
	tab.Intern("x")
	if a, ok := tab.Lookup("x"); !ok || a.String() != "x" {
		t.Fatal("Lookup should find interned atom")
	}
}

func TestEqualFallsBackToContent(t *testing.T) {
	t1 := NewTable()
	t2 := NewTable()

	a := t1.Intern("name")
	b := t2.Intern("name")

	if a == b {
		t.Fatal("atoms from different tables should be distinct pointers")
	}
	if !a.Equal(b) {
		t.Error("Equal should compare content across tables")
	}
	if !a.Equal(New("name")) {
		t.Error("Equal should accept unregistered atoms")
	}
	if a.Equal(nil) {
		t.Error("non-nil atom should not equal nil")
	}
	var none *Atom
	if none.String() != "" {
		t.Error("nil atom should stringify to empty")
	}
}
