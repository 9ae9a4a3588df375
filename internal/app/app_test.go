package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/config"
	"gridbase/internal/logging"
	"gridbase/internal/pagecursor"
)

const metadataPayload = `{
	"data": {
		"_meta": {
			"tables": [{
				"name": "users",
				"fields": [
					{"name": "id", "type": {"wireType": "uuid"}},
					{"name": "email", "type": {"wireType": "text"}},
					{"name": "active", "type": {"wireType": "boolean"}}
				],
				"constraints": {
					"primary": [{"name": "users_pkey", "fields": ["id"]}]
				},
				"relations": {}
			}]
		}
	}
}`

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Tenant: config.TenantConfig{
			DatabaseID: "db-alpha",
			Endpoint:   endpoint,
		},
		Cache: config.CacheConfig{
			Freshness:              time.Minute,
			CompiledSelectionLimit: 16,
		},
		Query: config.QueryConfig{
			Timeout:          5 * time.Second,
			RetryMaxAttempts: 1,
			RetryDelay:       time.Millisecond,
			DefaultPreset:    "display",
		},
		Observability: config.ObservabilityConfig{
			Logging: config.LoggingConfig{Level: "error", Format: "text"},
		},
	}
}

func newTestApp(t *testing.T, handler http.HandlerFunc) *App {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	a, err := New(testConfig(server.URL), logger)
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNewRequiresConfigAndLogger(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	_, err := New(nil, logger)
	assert.Error(t, err)

	_, err = New(testConfig("https://api.example.com"), nil)
	assert.Error(t, err)
}

func TestInitIsIdempotent(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(metadataPayload))
	})

	require.NoError(t, a.Init(context.Background()))
	assert.NotNil(t, a.Tenant())
	assert.Nil(t, a.Control())
	assert.NotNil(t, a.Drafts())
	assert.NotNil(t, a.Compiler())
}

func TestLoadCatalogNormalizesAndCaches(t *testing.T) {
	var hits atomic.Int64
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(metadataPayload))
	})

	catalog, err := a.LoadCatalog(context.Background())
	require.NoError(t, err)
	require.NotNil(t, catalog.Table("users"))
	assert.Equal(t, "id", catalog.Table("users").PrimaryKey().Name)

	_, err = a.LoadCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load(), "second load is served from cache")
}

func TestInvalidateTenantSchemaForcesRefetch(t *testing.T) {
	var hits atomic.Int64
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(metadataPayload))
	})

	_, err := a.LoadCatalog(context.Background())
	require.NoError(t, err)

	a.InvalidateTenantSchema("db-alpha")

	_, err = a.LoadCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load(), "schema shape entries are hard-evicted")
}

func TestFetchRowCachesByRowIdentifier(t *testing.T) {
	const rowPayload = `{"data": {"users": [{"id": "u-1", "email": "one@example.com", "active": true}]}}`

	var rowHits atomic.Int64
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "_meta") {
			_, _ = w.Write([]byte(metadataPayload))
			return
		}
		rowHits.Add(1)
		_, _ = w.Write([]byte(rowPayload))
	})

	catalog, err := a.LoadCatalog(context.Background())
	require.NoError(t, err)

	data, err := a.FetchRow(context.Background(), catalog, "users", "u-1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "one@example.com")

	_, err = a.FetchRow(context.Background(), catalog, "users", "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rowHits.Load(), "repeat fetch of the same row is served from cache")

	_, err = a.FetchRow(context.Background(), catalog, "users", "u-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rowHits.Load(), "a different key value is a different cache entry")

	_, err = a.FetchRow(context.Background(), catalog, "ghosts", "g-1")
	assert.Error(t, err)
}

func TestFetchRowsPageMintsAndReplaysCursor(t *testing.T) {
	const fullPage = `{"data": {"users": [
		{"id": "u-1", "email": "one@example.com", "active": true},
		{"id": "u-2", "email": "two@example.com", "active": false}
	]}}`
	const shortPage = `{"data": {"users": [{"id": "u-3", "email": "three@example.com", "active": true}]}}`

	var sawSeek atomic.Bool
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(body), "_meta"):
			_, _ = w.Write([]byte(metadataPayload))
		case strings.Contains(string(body), "gt:"):
			sawSeek.Store(true)
			_, _ = w.Write([]byte(shortPage))
		default:
			_, _ = w.Write([]byte(fullPage))
		}
	})

	catalog, err := a.LoadCatalog(context.Background())
	require.NoError(t, err)

	page, err := a.FetchRowsPage(context.Background(), catalog, "users", "all", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	require.NotEmpty(t, page.NextCursor, "full page carries a cursor for the next one")

	curTable, curKey, _, values, err := pagecursor.Decode(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "users", curTable)
	assert.Equal(t, "id", curKey)
	assert.Equal(t, []string{"u-2"}, values)

	next, err := a.FetchRowsPage(context.Background(), catalog, "users", "all", page.NextCursor, 2)
	require.NoError(t, err)
	assert.True(t, sawSeek.Load(), "cursor replay seeks past the last row")
	require.Len(t, next.Rows, 1)
	assert.Empty(t, next.NextCursor, "short page ends the scan")
}

func TestFetchRowsPageRejectsForeignCursor(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(metadataPayload))
	})

	catalog, err := a.LoadCatalog(context.Background())
	require.NoError(t, err)

	stale := pagecursor.Encode("orders", "id", []string{"ASC"}, "o-9")
	_, err = a.FetchRowsPage(context.Background(), catalog, "users", "display", stale, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cursor table mismatch")
}

func TestShutdownIsSafeToCallTwice(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(metadataPayload))
	})

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))
}
