package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchemaSyncMetrics holds custom metrics for schema-signature checks and
// draft reconciliation.
type SchemaSyncMetrics struct {
	checkCounter     metric.Int64Counter
	reconcileCounter metric.Int64Counter
	durationHist     metric.Float64Histogram
	rowsHist         metric.Int64Histogram
	lastSyncUnix     atomic.Int64
}

// InitSchemaSyncMetrics initializes schema sync metrics.
func InitSchemaSyncMetrics(logger *slog.Logger) (*SchemaSyncMetrics, error) {
	meter := otel.Meter(meterName)

	checkCounter, err := meter.Int64Counter(
		"schema.sync.checks.total",
		metric.WithDescription("Total number of schema signature checks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema sync check counter: %w", err)
	}

	reconcileCounter, err := meter.Int64Counter(
		"schema.sync.reconciliations.total",
		metric.WithDescription("Total number of draft reconciliations triggered by a signature change"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema reconciliation counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"schema.sync.duration",
		metric.WithDescription("Duration of draft reconciliations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema sync duration histogram: %w", err)
	}

	rowsHist, err := meter.Int64Histogram(
		"schema.sync.rows",
		metric.WithDescription("Number of draft rows reconciled per sync"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema sync rows histogram: %w", err)
	}

	lastSyncGauge, err := meter.Int64ObservableGauge(
		"schema.sync.last_reconcile_unix",
		metric.WithDescription("Unix timestamp of the last draft reconciliation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema sync gauge: %w", err)
	}

	metrics := &SchemaSyncMetrics{
		checkCounter:     checkCounter,
		reconcileCounter: reconcileCounter,
		durationHist:     durationHist,
		rowsHist:         rowsHist,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			value := metrics.lastSyncUnix.Load()
			if value > 0 {
				observer.ObserveInt64(lastSyncGauge, value)
			}
			return nil
		},
		lastSyncGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema sync gauge callback: %w", err)
	}

	logger.Info("schema sync metrics initialized")
	return metrics, nil
}

// RecordCheck records one signature comparison and whether it found a change.
func (m *SchemaSyncMetrics) RecordCheck(ctx context.Context, table string, changed bool) {
	if m == nil {
		return
	}
	m.checkCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table", table),
		attribute.Bool("changed", changed),
	))
}

// RecordReconcile records one draft reconciliation.
func (m *SchemaSyncMetrics) RecordReconcile(ctx context.Context, table string, duration time.Duration, rows int) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("table", table)}
	m.reconcileCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.rowsHist.Record(ctx, int64(rows), metric.WithAttributes(attrs...))
	m.lastSyncUnix.Store(time.Now().Unix())
}
