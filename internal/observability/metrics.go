package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "gridbase"

// QueryMetrics holds custom metrics for data-plane query operations.
type QueryMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	retryCounter    metric.Int64Counter
	dedupCounter    metric.Int64Counter
	resultsCount    metric.Int64Histogram
}

// InitQueryMetrics initializes query-specific metrics.
func InitQueryMetrics() (*QueryMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"query.request.duration",
		metric.WithDescription("Duration of data-plane requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"query.requests.total",
		metric.WithDescription("Total number of data-plane requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"query.errors.total",
		metric.WithDescription("Total number of classified request errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"query.requests.active",
		metric.WithDescription("Number of in-flight data-plane requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	retryCounter, err := meter.Int64Counter(
		"query.retries.total",
		metric.WithDescription("Total number of retried requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry counter: %w", err)
	}

	dedupCounter, err := meter.Int64Counter(
		"query.dedup.total",
		metric.WithDescription("Total number of requests coalesced onto an in-flight duplicate"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup counter: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"query.results.count",
		metric.WithDescription("Number of rows returned by data-plane queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	return &QueryMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		retryCounter:    retryCounter,
		dedupCounter:    dedupCounter,
		resultsCount:    resultsCount,
	}, nil
}

// RecordRequest records one request with its duration and outcome. A nil
// receiver records nothing.
func (m *QueryMetrics) RecordRequest(ctx context.Context, duration time.Duration, errKind string, resource string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("resource", resource),
		attribute.Bool("has_errors", errKind != ""),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if errKind != "" {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource", resource),
			attribute.String("kind", errKind),
		))
	}
}

// RecordRetry records a retried attempt.
func (m *QueryMetrics) RecordRetry(ctx context.Context, resource string) {
	if m == nil {
		return
	}
	m.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

// RecordDeduplicated records a request that piggybacked on an identical
// in-flight one.
func (m *QueryMetrics) RecordDeduplicated(ctx context.Context, resource string) {
	if m == nil {
		return
	}
	m.dedupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

// RecordResultsCount records the number of rows returned.
func (m *QueryMetrics) RecordResultsCount(ctx context.Context, count int64, resource string) {
	if m == nil {
		return
	}
	m.resultsCount.Record(ctx, count, metric.WithAttributes(attribute.String("resource", resource)))
}

// IncrementActiveRequests increments the in-flight request counter.
func (m *QueryMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the in-flight request counter.
func (m *QueryMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the QueryMetrics instance.
func InitMetrics(logger *slog.Logger) (*QueryMetrics, error) {
	metrics, err := InitQueryMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}

	logger.Info("custom query metrics initialized")
	return metrics, nil
}

type queryMetricsContextKey struct{}

// ContextWithQueryMetrics stores query metrics in the provided context.
func ContextWithQueryMetrics(ctx context.Context, metrics *QueryMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, queryMetricsContextKey{}, metrics)
}

// QueryMetricsFromContext retrieves query metrics from the context.
func QueryMetricsFromContext(ctx context.Context) *QueryMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(queryMetricsContextKey{}).(*QueryMetrics)
	return metrics
}
