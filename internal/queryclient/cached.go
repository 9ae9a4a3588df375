package queryclient

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"gridbase/internal/cachescope"
	"gridbase/internal/dataerr"
)

// CachedClient layers the scope-keyed cache and request deduplication over a
// context client. The cache key is captured at request time, so a response
// that lands after the caller switched scope can only ever write under the
// scope it was issued for.
type CachedClient struct {
	client *Client
	store  *cachescope.Store
	group  singleflight.Group
}

// NewCached wraps a client with a cache store.
func NewCached(client *Client, store *cachescope.Store) *CachedClient {
	return &CachedClient{client: client, store: store}
}

// Store exposes the underlying cache for invalidation.
func (c *CachedClient) Store() *cachescope.Store {
	return c.store
}

// Fetch resolves a request through the cache. Fresh entries are served
// directly. Stale entries are served immediately and refreshed in the
// background. Misses fetch synchronously, deduplicated so an identical
// in-flight request is never issued twice.
func (c *CachedClient) Fetch(ctx context.Context, key cachescope.Key, req Request) (json.RawMessage, error) {
	value, freshness := c.store.Get(key)
	switch freshness {
	case cachescope.Fresh:
		return value.(json.RawMessage), nil
	case cachescope.Stale:
		refreshCtx := context.WithoutCancel(ctx)
		go func() {
			if _, err := c.refresh(refreshCtx, key, req); err != nil {
				c.client.logger.Debug("background refresh failed",
					slog.String("resource", key.Resource),
					slog.String("error", err.Error()),
				)
			}
		}()
		return value.(json.RawMessage), nil
	}
	return c.refresh(ctx, key, req)
}

// Invalidate applies the schema-change contract for one tenant.
func (c *CachedClient) Invalidate(tenantDatabaseID string) {
	evicted, marked := c.store.InvalidateTenantSchema(tenantDatabaseID)
	c.client.logger.Info("tenant schema invalidated",
		slog.String("tenant", tenantDatabaseID),
		slog.Int("evicted", evicted),
		slog.Int("marked_stale", marked),
	)
}

func (c *CachedClient) refresh(ctx context.Context, key cachescope.Key, req Request) (json.RawMessage, error) {
	value, err, shared := c.group.Do(key.String(), func() (interface{}, error) {
		data, err := c.client.DoWithRetry(ctx, req)
		if err != nil {
			return nil, err
		}
		c.store.Put(key, data)
		return data, nil
	})
	if shared {
		c.client.metrics.RecordDeduplicated(ctx, key.Resource)
	}
	if err != nil {
		return nil, dataerr.Classify(err)
	}
	return value.(json.RawMessage), nil
}
