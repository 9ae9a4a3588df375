// Package queryclient is the query protocol boundary: JSON documents POSTed
// to a per-context endpoint, answered by a data/errors envelope. Every
// failure leaves this package already classified.
package queryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"gridbase/internal/auth"
	"gridbase/internal/dataerr"
	"gridbase/internal/logging"
	"gridbase/internal/observability"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Config controls one per-context client.
type Config struct {
	// Endpoint is the context's query URL.
	Endpoint string
	// HTTPClient overrides the default instrumented client.
	HTTPClient *http.Client
	// AuthStore supplies the bearer credential; may be nil for
	// unauthenticated endpoints.
	AuthStore *auth.Store
	// AuthKey addresses this context's credential in the store.
	AuthKey auth.Key
	Logger  *logging.Logger
	Metrics *observability.QueryMetrics
	// Security may be nil.
	Security *observability.SecurityMetrics
	// MaxAttempts bounds transparent retries of transient failures.
	MaxAttempts int
	RetryDelay  time.Duration
}

// Client issues envelope requests against one context endpoint.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	authStore   *auth.Store
	authKey     auth.Key
	logger      *logging.Logger
	metrics     *observability.QueryMetrics
	security    *observability.SecurityMetrics
	maxAttempts int
	retryDelay  time.Duration
}

// New builds a client. The default transport is OpenTelemetry-instrumented.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   DefaultTimeout,
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = dataerr.DefaultRetryAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 250 * time.Millisecond
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		httpClient:  httpClient,
		authStore:   cfg.AuthStore,
		authKey:     cfg.AuthKey,
		logger:      logger.WithFields(slog.String("component", "queryclient")),
		metrics:     cfg.Metrics,
		security:    cfg.Security,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Request is one query document with optional bind variables.
type Request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type envelope struct {
	Data   json.RawMessage          `json:"data"`
	Errors []*dataerr.ResponseError `json:"errors,omitempty"`
}

// Do issues one request and decodes the envelope. The returned error, when
// non-nil, is always a classified *dataerr.Error; partial data accompanying
// an envelope error is still returned.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	start := time.Now()
	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.WithRequestIDContext(ctx, requestID)
	}
	ctx, span := startClientSpan(ctx, "query.request",
		attribute.String("endpoint", c.endpoint),
		attribute.String("request.id", requestID),
	)
	defer span.End()

	c.metrics.IncrementActiveRequests(ctx)
	defer c.metrics.DecrementActiveRequests(ctx)

	data, err := c.doOnce(ctx, req)
	classified := dataerr.Classify(err)
	finishClientSpan(span, classified)

	kind := ""
	if classified != nil {
		kind = classified.Kind.String()
	}
	c.metrics.RecordRequest(ctx, time.Since(start), kind, "query")
	if classified != nil {
		c.logger.Debug("request failed", slog.Any("details", classified.LogDetails()))
		return data, classified
	}
	return data, nil
}

// DoWithRetry wraps Do with bounded retries of transient failures. Partial
// data is not propagated through retries; callers needing it use Do.
func (c *Client) DoWithRetry(ctx context.Context, req Request) (json.RawMessage, error) {
	var data json.RawMessage
	attempt := 0
	err := dataerr.WithRetry(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.metrics.RecordRetry(ctx, "query")
		}
		var opErr error
		data, opErr = c.Do(ctx, req)
		return opErr
	}, c.maxAttempts, c.retryDelay)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) doOnce(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if requestID := logging.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}
	c.attachCredential(ctx, httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.clearCredential(ctx)
		return nil, &dataerr.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		return nil, &dataerr.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		// Some platform errors still carry a usable envelope.
		if respErr := envelopeError(payload); respErr != nil {
			return nil, respErr
		}
		return nil, &dataerr.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if len(env.Errors) > 0 {
		return env.Data, env.Errors[0]
	}
	return env.Data, nil
}

// attachCredential sets the Authorization header only when a non-expired
// token exists for this context.
func (c *Client) attachCredential(ctx context.Context, req *http.Request) {
	if c.authStore == nil {
		return
	}
	token, ok := c.authStore.Bearer(c.authKey)
	if !ok {
		if cred, exists := c.authStore.Lookup(c.authKey); exists && !cred.Valid(time.Now()) {
			c.security.RecordExpiredTokenSkipped(ctx)
		}
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func (c *Client) clearCredential(ctx context.Context) {
	c.security.RecordUnauthorizedResponse(ctx, c.endpoint)
	if c.authStore == nil {
		return
	}
	if _, exists := c.authStore.Lookup(c.authKey); exists {
		c.authStore.Clear(c.authKey)
		c.security.RecordCredentialCleared(ctx, "unauthorized_response")
		c.logger.Info("stored credential cleared after unauthorized response",
			slog.String("endpoint", c.endpoint),
		)
	}
}

func envelopeError(payload []byte) *dataerr.ResponseError {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil
	}
	if len(env.Errors) == 0 {
		return nil
	}
	return env.Errors[0]
}
