package avm2

// Inline caching for property sites.
//
// A getproperty, callproperty or callpropvoid site with a static name
// caches the binding it resolved on a sealed receiver, keyed by the
// receiver's class. Most sites see one class; a few see several; the rest
// fall back to full multiname resolution every time.

// CacheState is the state of one site's cache.
type CacheState uint8

const (
	CacheEmpty CacheState = iota
	CacheMonomorphic
	CachePolymorphic
	CacheMegamorphic
)

// MaxPICEntries is the number of classes a polymorphic site remembers.
const MaxPICEntries = 6

type cacheEntry struct {
	class *Class
	b     binding
}

// InlineCache is the cache of a single instruction.
type InlineCache struct {
	State   CacheState
	entries [MaxPICEntries]cacheEntry
	count   int

	Hits   uint64
	Misses uint64
}

func (ic *InlineCache) lookup(c *Class) (binding, bool) {
	switch ic.State {
	case CacheMonomorphic:
		if ic.entries[0].class == c {
			ic.Hits++
			return ic.entries[0].b, true
		}
	case CachePolymorphic:
		for i := 0; i < ic.count; i++ {
			if ic.entries[i].class == c {
				ic.Hits++
				return ic.entries[i].b, true
			}
		}
	}
	ic.Misses++
	return binding{}, false
}

func (ic *InlineCache) update(c *Class, b binding) {
	switch ic.State {
	case CacheEmpty:
		ic.State = CacheMonomorphic
		ic.entries[0] = cacheEntry{c, b}
		ic.count = 1
	case CacheMonomorphic, CachePolymorphic:
		for i := 0; i < ic.count; i++ {
			if ic.entries[i].class == c {
				return
			}
		}
		if ic.count < MaxPICEntries {
			ic.entries[ic.count] = cacheEntry{c, b}
			ic.count++
			ic.State = CachePolymorphic
			return
		}
		ic.State = CacheMegamorphic
		ic.entries = [MaxPICEntries]cacheEntry{}
		ic.count = 0
	}
}

// InlineCacheTable holds the caches of one method body by instruction
// index.
type InlineCacheTable struct {
	caches map[int]*InlineCache
}

func NewInlineCacheTable() *InlineCacheTable {
	return &InlineCacheTable{caches: make(map[int]*InlineCache)}
}

func (t *InlineCacheTable) site(pc int) *InlineCache {
	ic := t.caches[pc]
	if ic == nil {
		ic = &InlineCache{}
		t.caches[pc] = ic
	}
	return ic
}

// ICStats aggregates cache statistics.
type ICStats struct {
	Sites       int
	Monomorphic int
	Polymorphic int
	Megamorphic int
	Hits        uint64
	Misses      uint64
}

func (t *InlineCacheTable) addTo(s *ICStats) {
	for _, ic := range t.caches {
		s.Sites++
		switch ic.State {
		case CacheMonomorphic:
			s.Monomorphic++
		case CachePolymorphic:
			s.Polymorphic++
		case CacheMegamorphic:
			s.Megamorphic++
		}
		s.Hits += ic.Hits
		s.Misses += ic.Misses
	}
}
