package backend

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SharedKind tags a SharedValue.
type SharedKind uint8

const (
	SharedUndefined SharedKind = iota
	SharedNull
	SharedBool
	SharedNumber
	SharedString
	SharedArray
	SharedObject
)

// SharedValue is the VM-neutral tree stored for a SharedObject. Both VMs
// convert their values to and from it.
type SharedValue struct {
	Kind   SharedKind             `cbor:"1,keyasint"`
	Bool   bool                   `cbor:"2,keyasint,omitempty"`
	Number float64                `cbor:"3,keyasint,omitempty"`
	String string                 `cbor:"4,keyasint,omitempty"`
	Items  []SharedValue          `cbor:"5,keyasint,omitempty"`
	Fields map[string]SharedValue `cbor:"6,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("backend: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalShared serializes SharedObject data to canonical CBOR.
func MarshalShared(data map[string]SharedValue) ([]byte, error) {
	return cborEncMode.Marshal(data)
}

// UnmarshalShared deserializes SharedObject data.
func UnmarshalShared(b []byte) (map[string]SharedValue, error) {
	var data map[string]SharedValue
	if err := cbor.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("backend: unmarshal shared object: %w", err)
	}
	if data == nil {
		data = make(map[string]SharedValue)
	}
	return data, nil
}

// SharedObjects loads and flushes named SharedObject data through a
// Storage backend.
type SharedObjects struct {
	storage Storage
}

// NewSharedObjects creates a SharedObject store over s.
func NewSharedObjects(s Storage) *SharedObjects {
	return &SharedObjects{storage: s}
}

// Load returns the stored data for name, or an empty map if nothing has
// been flushed yet.
func (so *SharedObjects) Load(name string) (map[string]SharedValue, error) {
	b, err := so.storage.Get(name)
	if errors.Is(err, ErrNotFound) {
		return make(map[string]SharedValue), nil
	}
	if err != nil {
		return nil, err
	}
	return UnmarshalShared(b)
}

// Flush writes data under name.
func (so *SharedObjects) Flush(name string, data map[string]SharedValue) error {
	b, err := MarshalShared(data)
	if err != nil {
		return fmt.Errorf("backend: marshal shared object %q: %w", name, err)
	}
	return so.storage.Put(name, b)
}

// Clear removes the stored data for name.
func (so *SharedObjects) Clear(name string) error {
	return so.storage.Remove(name)
}
