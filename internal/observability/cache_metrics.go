package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics holds custom metrics for query cache behavior. A nil receiver
// is valid and records nothing.
type CacheMetrics struct {
	lookupCounter     metric.Int64Counter
	evictionCounter   metric.Int64Counter
	staleMarksCounter metric.Int64Counter
}

// InitCacheMetrics initializes query cache metrics.
func InitCacheMetrics(logger *slog.Logger) (*CacheMetrics, error) {
	meter := otel.Meter(meterName)

	lookupCounter, err := meter.Int64Counter(
		"cache.lookups.total",
		metric.WithDescription("Total number of cache lookups by resource and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookup counter: %w", err)
	}

	evictionCounter, err := meter.Int64Counter(
		"cache.evictions.total",
		metric.WithDescription("Total number of cache entries removed by invalidation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache eviction counter: %w", err)
	}

	staleMarksCounter, err := meter.Int64Counter(
		"cache.stale_marks.total",
		metric.WithDescription("Total number of cache entries soft-invalidated"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache stale mark counter: %w", err)
	}

	logger.Info("cache metrics initialized")
	return &CacheMetrics{
		lookupCounter:     lookupCounter,
		evictionCounter:   evictionCounter,
		staleMarksCounter: staleMarksCounter,
	}, nil
}

// RecordLookup records one cache lookup outcome.
func (m *CacheMetrics) RecordLookup(resource, outcome string) {
	if m == nil {
		return
	}
	m.lookupCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("outcome", outcome),
	))
}

// RecordInvalidation records the outcome of one invalidation sweep.
func (m *CacheMetrics) RecordInvalidation(evicted, marked int) {
	if m == nil {
		return
	}
	if evicted > 0 {
		m.evictionCounter.Add(context.Background(), int64(evicted))
	}
	if marked > 0 {
		m.staleMarksCounter.Add(context.Background(), int64(marked))
	}
}
