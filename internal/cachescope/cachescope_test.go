package cachescope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyEncodingDistinguishesPositions(t *testing.T) {
	a := TenantKey(Scope{TenantDatabaseID: "db-1", Endpoint: "https://api.example.com"}, ResourceRows, "users", "page:1")
	b := TenantKey(Scope{TenantDatabaseID: "db-1", Endpoint: "https://api.example.com"}, ResourceRows, "users", "page:2")
	c := ControlKey(ResourceTableMeta, "users")

	assert.NotEqual(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())

	// Argument content must not collide across cell boundaries.
	d := TenantKey(Scope{TenantDatabaseID: "db-1", Endpoint: "e"}, ResourceRows, "ab", "c")
	e := TenantKey(Scope{TenantDatabaseID: "db-1", Endpoint: "e"}, ResourceRows, "a", "bc")
	assert.NotEqual(t, d.String(), e.String())
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ClassSchemaShape, ClassOf(ResourceTableMeta))
	assert.Equal(t, ClassSchemaShape, ClassOf(ResourceRelationMeta))
	assert.Equal(t, ClassData, ClassOf(ResourceRows))
	assert.Equal(t, ClassData, ClassOf(ResourceRowByID))
	assert.Equal(t, ClassData, ClassOf("something_else"))
}

func TestGetFreshnessWindow(t *testing.T) {
	store := NewStore(time.Minute, nil)
	now := time.Now()
	store.now = func() time.Time { return now }

	key := ControlKey(ResourceTableMeta, "users")
	store.Put(key, "meta")

	value, freshness := store.Get(key)
	assert.Equal(t, "meta", value)
	assert.Equal(t, Fresh, freshness)

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	value, freshness = store.Get(key)
	assert.Equal(t, "meta", value)
	assert.Equal(t, Stale, freshness)

	_, freshness = store.Get(ControlKey(ResourceTableMeta, "missing"))
	assert.Equal(t, Miss, freshness)
}

func TestPutResetsStaleMark(t *testing.T) {
	store := NewStore(time.Minute, nil)
	key := TenantKey(Scope{TenantDatabaseID: "db-1", Endpoint: "e"}, ResourceRows, "users")

	store.Put(key, "v1")
	store.MarkStale(key)
	_, freshness := store.Get(key)
	require.Equal(t, Stale, freshness)

	store.Put(key, "v2")
	value, freshness := store.Get(key)
	assert.Equal(t, "v2", value)
	assert.Equal(t, Fresh, freshness)
}

func TestInvalidateTenantSchemaIsolation(t *testing.T) {
	store := NewStore(time.Minute, nil)
	alpha := Scope{TenantDatabaseID: "db-alpha", Endpoint: "https://alpha.example.com"}
	beta := Scope{TenantDatabaseID: "db-beta", Endpoint: "https://beta.example.com"}

	alphaShape := TenantKey(alpha, ResourceTableMeta, "projects")
	alphaData := TenantKey(alpha, ResourceRows, "projects", "page:1")
	betaShape := TenantKey(beta, ResourceTableMeta, "projects")
	betaData := TenantKey(beta, ResourceRows, "projects", "page:1")
	control := ControlKey(ResourceTableMeta, "tenants")

	store.Put(alphaShape, "alpha-shape")
	store.Put(alphaData, "alpha-data")
	store.Put(betaShape, "beta-shape")
	store.Put(betaData, "beta-data")
	store.Put(control, "control")

	evicted, marked := store.InvalidateTenantSchema("db-alpha")
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, marked)

	// Alpha's schema shape is gone outright.
	_, freshness := store.Get(alphaShape)
	assert.Equal(t, Miss, freshness)

	// Alpha's data survives but is marked stale.
	value, freshness := store.Get(alphaData)
	assert.Equal(t, "alpha-data", value)
	assert.Equal(t, Stale, freshness)

	// Beta and the control partition are untouched.
	_, freshness = store.Get(betaShape)
	assert.Equal(t, Fresh, freshness)
	_, freshness = store.Get(betaData)
	assert.Equal(t, Fresh, freshness)
	_, freshness = store.Get(control)
	assert.Equal(t, Fresh, freshness)
}

func TestClearTenantPartitionSpansAllTenants(t *testing.T) {
	store := NewStore(time.Minute, nil)
	alpha := Scope{TenantDatabaseID: "db-alpha", Endpoint: "e"}
	beta := Scope{TenantDatabaseID: "db-beta", Endpoint: "e"}

	store.Put(TenantKey(alpha, ResourceRows, "users"), 1)
	store.Put(TenantKey(beta, ResourceTableMeta, "users"), 2)
	store.Put(ControlKey(ResourceTableMeta, "tenants"), 3)

	removed := store.ClearTenantPartition()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Len())

	_, freshness := store.Get(ControlKey(ResourceTableMeta, "tenants"))
	assert.Equal(t, Fresh, freshness)
}

func TestClearControlPartition(t *testing.T) {
	store := NewStore(time.Minute, nil)
	alpha := Scope{TenantDatabaseID: "db-alpha", Endpoint: "e"}

	store.Put(TenantKey(alpha, ResourceRows, "users"), 1)
	store.Put(ControlKey(ResourceTableMeta, "tenants"), 2)

	removed := store.ClearControlPartition()
	assert.Equal(t, 1, removed)

	_, freshness := store.Get(TenantKey(alpha, ResourceRows, "users"))
	assert.Equal(t, Fresh, freshness)
}
