package selection

import (
	"container/list"
	"sync"

	"gridbase/internal/metadata"
	"gridbase/internal/typeast"
)

// DefaultCacheCapacity bounds the compiled-selection cache.
const DefaultCacheCapacity = 256

type cacheKey struct {
	table string
	spec  uint64
}

type cacheEntry struct {
	key  cacheKey
	opts *Options
}

// Compiler resolves selection specs with a bounded LRU cache keyed by
// (table identity, spec hash). The cache is explicit and capped rather than
// growing for the life of the process.
type Compiler struct {
	registry *typeast.Registry

	mu       sync.Mutex
	capacity int
	entries  map[cacheKey]*list.Element
	lru      *list.List
	hits     uint64
	misses   uint64
}

// NewCompiler returns a compiler using the given structured-type registry.
// A capacity of 0 or less uses DefaultCacheCapacity.
func NewCompiler(registry *typeast.Registry, capacity int) *Compiler {
	if registry == nil {
		registry = typeast.NewRegistry()
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Compiler{
		registry: registry,
		capacity: capacity,
		entries:  make(map[cacheKey]*list.Element),
		lru:      list.New(),
	}
}

// Registry returns the structured-type registry used for rendering.
func (c *Compiler) Registry() *typeast.Registry {
	return c.registry
}

// Resolve resolves a spec against a table, serving repeated resolutions from
// the cache.
func (c *Compiler) Resolve(table *metadata.CleanTable, catalog metadata.Catalog, spec Spec) *Options {
	key := cacheKey{table: table.Name, spec: spec.Hash()}

	c.mu.Lock()
	if element, ok := c.entries[key]; ok {
		c.lru.MoveToFront(element)
		c.hits++
		opts := element.Value.(*cacheEntry).opts
		c.mu.Unlock()
		return opts
	}
	c.misses++
	c.mu.Unlock()

	opts := Resolve(table, catalog, spec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, opts: opts})
		for c.lru.Len() > c.capacity {
			oldest := c.lru.Back()
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	return opts
}

// EvictTable drops every cached resolution for a table. Called when the
// table's schema shape changes; a stale compiled selection must not survive a
// schema edit.
func (c *Compiler) EvictTable(tableName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, element := range c.entries {
		if key.table == tableName {
			c.lru.Remove(element)
			delete(c.entries, key)
		}
	}
}

// Stats returns cache hit and miss counts.
func (c *Compiler) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached resolutions.
func (c *Compiler) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
