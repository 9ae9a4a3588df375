// Package cachescope owns the composite cache key shape and the invalidation
// contract between the control-plane context and per-tenant contexts. Every
// cached query is addressed by [partition, scope?, resource, args...]; the
// scope travels inside the key, never read from ambient state, which is what
// keeps invalidation provably tenant-isolated.
package cachescope

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gridbase/internal/observability"
)

// Partition separates the global schema-management context from per-tenant
// dashboard contexts.
type Partition string

const (
	// PartitionControl is the global schema-management context.
	PartitionControl Partition = "control"
	// PartitionDashboard is the per-tenant data context. Keys in this
	// partition carry a scope.
	PartitionDashboard Partition = "dashboard"
)

// Scope identifies one tenant's cache partition.
type Scope struct {
	TenantDatabaseID string
	Endpoint         string
}

// Resource type tags. Schema-shape resources describe the structure of a
// tenant's schema; data resources hold row-level results.
const (
	ResourceTableMeta    = "table_meta"
	ResourceRelationMeta = "relation_meta"
	ResourceRows         = "rows"
	ResourceRowByID      = "row_by_id"
	ResourceRowCount     = "row_count"
)

// Class divides resources by invalidation behavior.
type Class int

const (
	// ClassData results tolerate staleness and are soft-invalidated.
	ClassData Class = iota
	// ClassSchemaShape results are evicted outright on schema change.
	ClassSchemaShape
)

var schemaShapeResources = map[string]struct{}{
	ResourceTableMeta:    {},
	ResourceRelationMeta: {},
}

// ClassOf reports the invalidation class of a resource type. Unknown resource
// types are treated as data.
func ClassOf(resource string) Class {
	if _, ok := schemaShapeResources[resource]; ok {
		return ClassSchemaShape
	}
	return ClassData
}

// Key is the composite cache address. The scope is nil for control-partition
// keys and required for dashboard-partition keys.
type Key struct {
	Partition Partition
	Scope     *Scope
	Resource  string
	Args      []string
}

// ControlKey builds a key in the global partition.
func ControlKey(resource string, args ...string) Key {
	return Key{Partition: PartitionControl, Resource: resource, Args: args}
}

// TenantKey builds a key in the per-tenant partition.
func TenantKey(scope Scope, resource string, args ...string) Key {
	return Key{Partition: PartitionDashboard, Scope: &scope, Resource: resource, Args: args}
}

// Class reports the key's invalidation class.
func (k Key) Class() Class {
	return ClassOf(k.Resource)
}

// String encodes the key canonically. Cells are length-prefixed so argument
// values can never collide across positions.
func (k Key) String() string {
	var b strings.Builder
	writeCell(&b, string(k.Partition))
	if k.Scope != nil {
		writeCell(&b, k.Scope.TenantDatabaseID)
		writeCell(&b, k.Scope.Endpoint)
	}
	writeCell(&b, k.Resource)
	for _, arg := range k.Args {
		writeCell(&b, arg)
	}
	return b.String()
}

func writeCell(b *strings.Builder, cell string) {
	fmt.Fprintf(b, "%d:%s|", len(cell), cell)
}

// matchesTenant reports whether the key belongs to the target tenant. An
// empty target matches every per-tenant key; control-partition keys never
// match.
func (k Key) matchesTenant(tenantDatabaseID string) bool {
	if k.Partition != PartitionDashboard || k.Scope == nil {
		return false
	}
	return tenantDatabaseID == "" || k.Scope.TenantDatabaseID == tenantDatabaseID
}

// Freshness is the outcome of a cache lookup.
type Freshness int

const (
	// Miss means no entry exists.
	Miss Freshness = iota
	// Fresh means the entry is within its freshness window and not marked stale.
	Fresh
	// Stale means the entry exists but should be served-then-refetched.
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

type entry struct {
	key      Key
	value    interface{}
	storedAt time.Time
	stale    bool
}

// DefaultFreshness is the window within which an unmarked entry is served
// without refetching.
const DefaultFreshness = 30 * time.Second

// Store is the in-memory query cache. Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	freshness time.Duration
	metrics   *observability.CacheMetrics
	now       func() time.Time
}

// NewStore builds a store with the given freshness window. A non-positive
// window falls back to DefaultFreshness. Metrics may be nil.
func NewStore(freshness time.Duration, metrics *observability.CacheMetrics) *Store {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Store{
		entries:   make(map[string]*entry),
		freshness: freshness,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Put stores a value under the key, resetting any stale mark.
func (s *Store) Put(key Key, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.String()] = &entry{key: key, value: value, storedAt: s.now()}
}

// Get returns the cached value and its freshness. Stale entries are still
// returned; the caller decides whether to serve-then-refetch.
func (s *Store) Get(key Key) (interface{}, Freshness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key.String()]
	if !ok {
		s.metrics.RecordLookup(key.Resource, Miss.String())
		return nil, Miss
	}
	if e.stale || s.now().Sub(e.storedAt) >= s.freshness {
		s.metrics.RecordLookup(key.Resource, Stale.String())
		return e.value, Stale
	}
	s.metrics.RecordLookup(key.Resource, Fresh.String())
	return e.value, Fresh
}

// Evict removes a single entry.
func (s *Store) Evict(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
}

// MarkStale marks a single entry stale without removing it.
func (s *Store) MarkStale(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key.String()]; ok {
		e.stale = true
	}
}

// InvalidateTenantSchema applies the schema-change invalidation contract for
// one tenant: schema-shape entries are evicted outright, data entries are
// marked stale, and every other tenant's entries plus the control partition
// are untouched.
func (s *Store) InvalidateTenantSchema(tenantDatabaseID string) (evicted, marked int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for encoded, e := range s.entries {
		if !e.key.matchesTenant(tenantDatabaseID) {
			continue
		}
		if e.key.Class() == ClassSchemaShape {
			delete(s.entries, encoded)
			evicted++
			continue
		}
		e.stale = true
		marked++
	}
	s.metrics.RecordInvalidation(evicted, marked)
	return evicted, marked
}

// ClearTenantPartition removes every per-tenant entry, across all tenants.
// Used for blanket operations such as sign-out.
func (s *Store) ClearTenantPartition() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for encoded, e := range s.entries {
		if e.key.matchesTenant("") {
			delete(s.entries, encoded)
			removed++
		}
	}
	s.metrics.RecordInvalidation(removed, 0)
	return removed
}

// ClearControlPartition removes every control-partition entry.
func (s *Store) ClearControlPartition() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for encoded, e := range s.entries {
		if e.key.Partition == PartitionControl {
			delete(s.entries, encoded)
			removed++
		}
	}
	s.metrics.RecordInvalidation(removed, 0)
	return removed
}

// Len reports the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
