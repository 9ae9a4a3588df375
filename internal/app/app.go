// Package app owns runtime resources for the gridbase client lifecycle:
// telemetry providers, credential store, scoped cache, query contexts, and
// the draft row engine. Resources are acquired in Init and released in
// reverse order by Shutdown.
package app

import (
	"fmt"
	"sync"

	"gridbase/internal/auth"
	"gridbase/internal/cachescope"
	"gridbase/internal/config"
	"gridbase/internal/draft"
	"gridbase/internal/logging"
	"gridbase/internal/observability"
	"gridbase/internal/queryclient"
	"gridbase/internal/selection"
	"gridbase/internal/typeast"
)

// App wires the query and sync layer together from configuration.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider

	queryMetrics    *observability.QueryMetrics
	cacheMetrics    *observability.CacheMetrics
	securityMetrics *observability.SecurityMetrics
	syncMetrics     *observability.SchemaSyncMetrics

	authStore *auth.Store
	issuer    *auth.Issuer

	cache    *cachescope.Store
	control  *queryclient.CachedClient
	tenant   *queryclient.CachedClient
	registry *typeast.Registry
	compiler *selection.Compiler
	drafts   *draft.Engine

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// TenantScope returns the dashboard scope the app was configured with.
func (a *App) TenantScope() cachescope.Scope {
	return cachescope.Scope{
		TenantDatabaseID: a.cfg.Tenant.DatabaseID,
		Endpoint:         a.cfg.Tenant.Endpoint,
	}
}

// Control returns the control-plane query context, or nil when not configured.
func (a *App) Control() *queryclient.CachedClient { return a.control }

// Tenant returns the tenant query context, or nil when not configured.
func (a *App) Tenant() *queryclient.CachedClient { return a.tenant }

// Cache returns the scoped response cache.
func (a *App) Cache() *cachescope.Store { return a.cache }

// Compiler returns the shared field selection compiler.
func (a *App) Compiler() *selection.Compiler { return a.compiler }

// Drafts returns the draft row engine.
func (a *App) Drafts() *draft.Engine { return a.drafts }

// AuthStore returns the credential store.
func (a *App) AuthStore() *auth.Store { return a.authStore }
