package avm2

// dynamicMap is the insertion-ordered property map of a dynamic object.
// Deleted entries leave tombstones so that enumeration indices handed out
// by hasnext2 stay valid while handlers delete properties.
type dynamicMap struct {
	keys  []string
	vals  []Value
	dead  []bool
	dont  []bool // not enumerable
	index map[string]int
	live  int
}

func newDynamicMap() *dynamicMap {
	return &dynamicMap{index: make(map[string]int)}
}

func (m *dynamicMap) get(k string) (Value, bool) {
	if i, ok := m.index[k]; ok {
		return m.vals[i], true
	}
	return Undefined, false
}

func (m *dynamicMap) has(k string) bool {
	_, ok := m.index[k]
	return ok
}

func (m *dynamicMap) set(k string, v Value) {
	if i, ok := m.index[k]; ok {
		m.vals[i] = v
		return
	}
	m.index[k] = len(m.keys)
	m.keys = append(m.keys, k)
	m.vals = append(m.vals, v)
	m.dead = append(m.dead, false)
	m.dont = append(m.dont, false)
	m.live++
}

func (m *dynamicMap) remove(k string) bool {
	i, ok := m.index[k]
	if !ok {
		return false
	}
	delete(m.index, k)
	m.dead[i] = true
	m.dont[i] = false
	m.vals[i] = Undefined
	m.live--
	if m.live == 0 {
		m.keys, m.vals, m.dead, m.dont = m.keys[:0], m.vals[:0], m.dead[:0], m.dont[:0]
	}
	return true
}

// setEnumerable changes the enumerable flag of an existing key.
func (m *dynamicMap) setEnumerable(k string, enumerable bool) {
	if i, ok := m.index[k]; ok {
		m.dont[i] = !enumerable
	}
}

func (m *dynamicMap) enumerable(k string) bool {
	i, ok := m.index[k]
	return ok && !m.dont[i]
}

// setHidden stores a non-enumerable property.
func (m *dynamicMap) setHidden(k string, v Value) {
	m.set(k, v)
	m.setEnumerable(k, false)
}

// next returns the first live enumerable position at or after i.
func (m *dynamicMap) next(i int) (int, bool) {
	for ; i < len(m.keys); i++ {
		if !m.dead[i] && !m.dont[i] {
			return i, true
		}
	}
	return 0, false
}

// snapshot returns the live enumerable keys in order.
func (m *dynamicMap) snapshot() []string {
	out := make([]string, 0, m.live)
	for i, k := range m.keys {
		if !m.dead[i] && !m.dont[i] {
			out = append(out, k)
		}
	}
	return out
}

func (m *dynamicMap) len() int { return m.live }
