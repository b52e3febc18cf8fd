package avm1

import "strings"

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// Attribute is a property attribute bit set.
type Attribute uint8

const (
	DontEnum Attribute = 1 << iota
	DontDelete
	ReadOnly
)

// ASSetPropFlags bit layout.
const (
	flagDontEnum   = 1 << 0
	flagDontDelete = 1 << 1
	flagReadOnly   = 1 << 2
)

// attributesFromFlags converts an ASSetPropFlags mask to attributes.
func attributesFromFlags(bits int32) Attribute {
	var a Attribute
	if bits&flagDontEnum != 0 {
		a |= DontEnum
	}
	if bits&flagDontDelete != 0 {
		a |= DontDelete
	}
	if bits&flagReadOnly != 0 {
		a |= ReadOnly
	}
	return a
}

// ---------------------------------------------------------------------------
// Property
// ---------------------------------------------------------------------------

// Property is one named slot of an object. A property with a getter is
// virtual (created by addProperty); its value field is unused for reads.
type Property struct {
	name   string
	value  Value
	getter *Object
	setter *Object
	attrs  Attribute
	pos    int
}

func (p *Property) Name() string          { return p.name }
func (p *Property) Value() Value          { return p.value }
func (p *Property) Attributes() Attribute { return p.attrs }
func (p *Property) IsVirtual() bool       { return p.getter != nil }
func (p *Property) Enumerable() bool      { return p.attrs&DontEnum == 0 }
func (p *Property) Deletable() bool       { return p.attrs&DontDelete == 0 }
func (p *Property) Writable() bool        { return p.attrs&ReadOnly == 0 }

// ---------------------------------------------------------------------------
// propertyMap: insertion-ordered, optionally case-insensitive
// ---------------------------------------------------------------------------

// propertyMap keeps properties in insertion order. Names are indexed by
// their lower-cased form so SWF 6 and earlier can look them up without
// regard to case; exact-case lookups filter the bucket.
type propertyMap struct {
	order []*Property
	index map[string][]*Property
	count int
}

func foldName(name string) string {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' || c >= 0x80 {
			return strings.ToLower(name)
		}
	}
	return name
}

func (m *propertyMap) get(name string, caseSensitive bool) *Property {
	bucket := m.index[foldName(name)]
	if len(bucket) == 0 {
		return nil
	}
	if !caseSensitive {
		return bucket[0]
	}
	for _, p := range bucket {
		if p.name == name {
			return p
		}
	}
	return nil
}

// insert adds a new property or replaces the slot matching name exactly.
func (m *propertyMap) insert(name string, v Value, attrs Attribute) *Property {
	if p := m.get(name, true); p != nil {
		p.value = v
		p.attrs = attrs
		p.getter, p.setter = nil, nil
		return p
	}
	if m.index == nil {
		m.index = make(map[string][]*Property)
	}
	p := &Property{name: name, value: v, attrs: attrs, pos: len(m.order)}
	m.order = append(m.order, p)
	key := foldName(name)
	m.index[key] = append(m.index[key], p)
	m.count++
	return p
}

func (m *propertyMap) remove(p *Property) {
	key := foldName(p.name)
	bucket := m.index[key]
	for i, q := range bucket {
		if q == p {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(m.index, key)
	} else {
		m.index[key] = bucket
	}
	m.order[p.pos] = nil
	m.count--
	if m.count < len(m.order)/2 {
		m.compact()
	}
}

func (m *propertyMap) compact() {
	live := m.order[:0]
	for _, p := range m.order {
		if p != nil {
			p.pos = len(live)
			live = append(live, p)
		}
	}
	for i := len(live); i < len(m.order); i++ {
		m.order[i] = nil
	}
	m.order = live
}

// each visits live properties in insertion order. fn must not mutate the
// map; callers that run script code take a snapshot first.
func (m *propertyMap) each(fn func(p *Property)) {
	for _, p := range m.order {
		if p != nil {
			fn(p)
		}
	}
}

func (m *propertyMap) len() int { return m.count }
