package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

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

// InitLogger builds the application logger and, when log exports are enabled,
// the OTLP logger provider backing it.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     exporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTLP logging: %w", err)
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	return logger, loggerProvider, nil
}

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, queryMetrics, cacheMetrics, syncMetrics, securityMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	authStore := auth.NewStore()
	var issuer *auth.Issuer
	if a.cfg.Auth.IssuerURL != "" {
		issuer, err = auth.NewIssuer(ctx, auth.IssuerConfig{
			IssuerURL:     a.cfg.Auth.IssuerURL,
			ClientID:      a.cfg.Auth.ClientID,
			ClientSecret:  a.cfg.Auth.ClientSecret,
			Scopes:        a.cfg.Auth.Scopes,
			SkipTLSVerify: a.cfg.Auth.SkipTLSVerify,
		}, a.logger, securityMetrics)
		if err != nil {
			return fmt.Errorf("failed to initialize token issuer: %w", err)
		}
		if err := a.acquireCredentials(ctx, issuer, authStore); err != nil {
			return fmt.Errorf("failed to acquire credentials: %w", err)
		}
	}

	cache := cachescope.NewStore(a.cfg.Cache.Freshness, cacheMetrics)

	var control, tenant *queryclient.CachedClient
	if a.cfg.Control.Endpoint != "" {
		control = a.buildClient(a.cfg.Control.Endpoint, auth.ControlKey(), authStore, queryMetrics, securityMetrics, cache)
	}
	if a.cfg.Tenant.Endpoint != "" {
		tenant = a.buildClient(a.cfg.Tenant.Endpoint, auth.TenantKey(a.TenantScope()), authStore, queryMetrics, securityMetrics, cache)
	}

	registry := typeast.NewRegistry()
	compiler := selection.NewCompiler(registry, a.cfg.Cache.CompiledSelectionLimit)
	drafts := draft.NewEngine(a.logger, syncMetrics)

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.queryMetrics = queryMetrics
	a.cacheMetrics = cacheMetrics
	a.syncMetrics = syncMetrics
	a.securityMetrics = securityMetrics
	a.tracerProvider = tracerProvider
	a.authStore = authStore
	a.issuer = issuer
	a.cache = cache
	a.control = control
	a.tenant = tenant
	a.registry = registry
	a.compiler = compiler
	a.drafts = drafts
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

// acquireCredentials fetches one token and stores it under every configured
// context key, so control and tenant requests authenticate independently.
func (a *App) acquireCredentials(ctx context.Context, issuer *auth.Issuer, store *auth.Store) error {
	cred, err := issuer.Acquire(ctx)
	if err != nil {
		return err
	}
	if a.cfg.Control.Endpoint != "" {
		store.Put(auth.ControlKey(), cred)
	}
	if a.cfg.Tenant.Endpoint != "" {
		store.Put(auth.TenantKey(a.TenantScope()), cred)
	}
	return nil
}

func (a *App) buildClient(
	endpoint string,
	key auth.Key,
	store *auth.Store,
	metrics *observability.QueryMetrics,
	security *observability.SecurityMetrics,
	cache *cachescope.Store,
) *queryclient.CachedClient {
	client := queryclient.New(queryclient.Config{
		Endpoint: endpoint,
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   a.cfg.Query.Timeout,
		},
		AuthStore:   store,
		AuthKey:     key,
		Logger:      a.logger,
		Metrics:     metrics,
		Security:    security,
		MaxAttempts: a.cfg.Query.RetryMaxAttempts,
		RetryDelay:  a.cfg.Query.RetryDelay,
	})
	return queryclient.NewCached(client, cache)
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (
	*observability.MeterProvider,
	*observability.QueryMetrics,
	*observability.CacheMetrics,
	*observability.SchemaSyncMetrics,
	*observability.SecurityMetrics,
	error,
) {
	if !cfg.Observability.MetricsEnabled {
		logger.Info("OpenTelemetry metrics disabled")
		return nil, nil, nil, nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	queryMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	cacheMetrics, err := observability.InitCacheMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	syncMetrics, err := observability.InitSchemaSyncMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	securityMetrics, err := observability.InitSecurityMetrics()
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")
	return meterProvider, queryMetrics, cacheMetrics, syncMetrics, securityMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		logger.Info("OpenTelemetry tracing disabled")
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       exporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

func exporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}
