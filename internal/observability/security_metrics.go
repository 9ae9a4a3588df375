package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics holds security-related metrics for token acquisition and
// credential lifecycle.
type SecurityMetrics struct {
	tokenRequests     metric.Int64Counter
	tokenFailures     metric.Int64Counter
	tokenSuccesses    metric.Int64Counter
	expiredSkips      metric.Int64Counter
	credentialClears  metric.Int64Counter
	unauthorizedResps metric.Int64Counter
}

// InitSecurityMetrics initializes security-specific metrics.
func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter(meterName + "/security")

	tokenRequests, err := meter.Int64Counter(
		"security.token.requests.total",
		metric.WithDescription("Total number of token acquisition attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token requests counter: %w", err)
	}

	tokenFailures, err := meter.Int64Counter(
		"security.token.failures.total",
		metric.WithDescription("Total number of failed token acquisitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token failures counter: %w", err)
	}

	tokenSuccesses, err := meter.Int64Counter(
		"security.token.successes.total",
		metric.WithDescription("Total number of successful token acquisitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token successes counter: %w", err)
	}

	expiredSkips, err := meter.Int64Counter(
		"security.token.expired_skips.total",
		metric.WithDescription("Total number of requests sent without an Authorization header because the stored token had expired"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expired skips counter: %w", err)
	}

	credentialClears, err := meter.Int64Counter(
		"security.credential.clears.total",
		metric.WithDescription("Total number of stored credentials cleared after an unauthorized response"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential clears counter: %w", err)
	}

	unauthorizedResps, err := meter.Int64Counter(
		"security.unauthorized.responses.total",
		metric.WithDescription("Total number of unauthorized responses received"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create unauthorized responses counter: %w", err)
	}

	return &SecurityMetrics{
		tokenRequests:     tokenRequests,
		tokenFailures:     tokenFailures,
		tokenSuccesses:    tokenSuccesses,
		expiredSkips:      expiredSkips,
		credentialClears:  credentialClears,
		unauthorizedResps: unauthorizedResps,
	}, nil
}

// RecordTokenRequest records a token acquisition attempt.
func (m *SecurityMetrics) RecordTokenRequest(ctx context.Context, issuer string) {
	if m == nil {
		return
	}
	m.tokenRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("issuer", issuer),
	))
}

// RecordTokenFailure records a failed token acquisition.
func (m *SecurityMetrics) RecordTokenFailure(ctx context.Context, issuer, reason string) {
	if m == nil {
		return
	}
	m.tokenFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("issuer", issuer),
		attribute.String("reason", reason),
	))
}

// RecordTokenSuccess records a successful token acquisition.
func (m *SecurityMetrics) RecordTokenSuccess(ctx context.Context, issuer string) {
	if m == nil {
		return
	}
	m.tokenSuccesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("issuer", issuer),
	))
}

// RecordExpiredTokenSkipped records a request that went out without a
// credential because the stored token had expired.
func (m *SecurityMetrics) RecordExpiredTokenSkipped(ctx context.Context) {
	if m == nil {
		return
	}
	m.expiredSkips.Add(ctx, 1)
}

// RecordCredentialCleared records a stored credential removed after the
// server rejected it.
func (m *SecurityMetrics) RecordCredentialCleared(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.credentialClears.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordUnauthorizedResponse records an unauthorized response from the
// platform.
func (m *SecurityMetrics) RecordUnauthorizedResponse(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.unauthorizedResps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}
