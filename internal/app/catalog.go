package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gridbase/internal/cachescope"
	"gridbase/internal/metadata"
	"gridbase/internal/queryclient"
)

const metadataQuery = `query TableMetadata {
  _meta {
    tables {
      name
      fields { name type { wireType isArray dbType subtype typeModifier } }
      constraints {
        primary { name fields }
        unique { name fields }
        foreign { name fields referencedTable referencedFields }
      }
      relations {
        belongsTo { fieldName table keys referencedKeys }
        hasOne { fieldName table keys referencedKeys }
        hasMany { fieldName table keys referencedKeys }
        manyToMany { fieldName table keys referencedKeys junctionTable }
      }
    }
  }
}`

// LoadCatalog fetches table metadata from the tenant context when configured,
// falling back to the control plane. Responses are cached under the schema
// shape resource, so a tenant schema invalidation forces a refetch. Draft
// tables are reconciled against the refreshed metadata and compiled
// selections for changed tables evicted.
func (a *App) LoadCatalog(ctx context.Context) (metadata.Catalog, error) {
	client, key := a.dataSource(cachescope.ResourceTableMeta)
	if client == nil {
		return nil, fmt.Errorf("no query endpoint configured")
	}

	data, err := client.Fetch(ctx, key, queryclient.Request{Query: metadataQuery})
	if err != nil {
		return nil, err
	}

	var raw metadata.RawIntrospection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed metadata payload: %w", err)
	}

	catalog := metadata.NormalizeCatalog(raw)
	for _, tbl := range catalog {
		if a.drafts.SyncWithTable(tbl) {
			a.compiler.EvictTable(tbl.Name)
		}
	}

	a.logger.Info("catalog loaded",
		slog.Int("tables", len(catalog)),
		slog.String("partition", string(key.Partition)),
	)
	return catalog, nil
}

// dataSource picks the tenant query context when one is configured, falling
// back to the control plane, and builds the matching cache key.
func (a *App) dataSource(resource string, args ...string) (*queryclient.CachedClient, cachescope.Key) {
	if a.tenant != nil {
		return a.tenant, cachescope.TenantKey(a.TenantScope(), resource, args...)
	}
	if a.control != nil {
		return a.control, cachescope.ControlKey(resource, args...)
	}
	return nil, cachescope.Key{}
}

// InvalidateTenantSchema evicts the tenant's schema shape entries and marks
// its data entries stale. Entries belonging to other tenants and the control
// partition are untouched.
func (a *App) InvalidateTenantSchema(tenantDatabaseID string) {
	if a.cache == nil {
		return
	}
	evicted, marked := a.cache.InvalidateTenantSchema(tenantDatabaseID)
	a.logger.Info("tenant schema invalidated",
		slog.String("tenant_database_id", tenantDatabaseID),
		slog.Int("evicted", evicted),
		slog.Int("marked_stale", marked),
	)
}
