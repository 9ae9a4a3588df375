package config

import (
	"fmt"
	"net/url"
	"strings"

	"gridbase/internal/selection"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.validateEndpoints(result)
	c.Auth.validate(result)
	c.Cache.validate(result)
	c.Query.validate(result)
	c.Observability.validate(result)

	return result
}

func (c *Config) validateEndpoints(result *ValidationResult) {
	if c.Control.Endpoint == "" && c.Tenant.Endpoint == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "control.endpoint",
			Message: "no query endpoint configured",
			Hint:    "set control.endpoint, tenant.endpoint, or both",
		})
		return
	}

	validateEndpointURL(result, "control.endpoint", c.Control.Endpoint)
	validateEndpointURL(result, "tenant.endpoint", c.Tenant.Endpoint)

	if c.Tenant.Endpoint != "" && c.Tenant.DatabaseID == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "tenant.database_id",
			Message: "tenant endpoint configured without a tenant database id",
			Hint:    "set tenant.database_id or the --tenant.database_id flag",
		})
	}
	if c.Tenant.DatabaseID != "" && c.Tenant.Endpoint == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "tenant.endpoint",
			Message: "tenant database id configured without a tenant endpoint",
			Hint:    "dashboard queries will be skipped until tenant.endpoint is set",
		})
	}
}

func validateEndpointURL(result *ValidationResult, field, value string) {
	if value == "" {
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid URL %q", value),
			Hint:    "expected an absolute URL like https://api.example.com/query",
		})
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
			Hint:    "use http or https",
		})
		return
	}
	if u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   field,
			Message: "endpoint uses plain http on a non-loopback host",
			Hint:    "credentials will be sent unencrypted",
		})
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.IssuerURL == "" {
		if a.ClientID != "" || a.ClientSecret != "" {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "auth.issuer_url",
				Message: "client credentials configured without an issuer URL",
				Hint:    "tokens will not be acquired; requests go out unauthenticated",
			})
		}
		return
	}

	u, err := url.Parse(a.IssuerURL)
	if err != nil || u.Host == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "auth.issuer_url",
			Message: fmt.Sprintf("invalid URL %q", a.IssuerURL),
			Hint:    "expected an absolute https URL",
		})
		return
	}
	if u.Scheme != "https" && !isLoopbackHost(u.Hostname()) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "auth.issuer_url",
			Message: "issuer URL must use https",
			Hint:    "plain http issuers are only allowed on loopback hosts",
		})
	}
	if a.ClientID == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "auth.client_id",
			Message: "issuer URL configured without a client id",
		})
	}
	if a.ClientSecret == "" && a.ClientSecretFile == "" && !a.ClientSecretPrompt {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "auth.client_secret",
			Message: "no client secret source configured",
			Hint:    "set auth.client_secret, auth.client_secret_file, or auth.client_secret_prompt",
		})
	}
	if a.SkipTLSVerify {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "auth.skip_tls_verify",
			Message: "TLS verification for the issuer is disabled",
			Hint:    "do not use this outside development",
		})
	}
}

func (c *CacheConfig) validate(result *ValidationResult) {
	if c.Freshness < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "cache.freshness",
			Message: "must not be negative",
		})
	}
	if c.CompiledSelectionLimit < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "cache.compiled_selection_limit",
			Message: "must be at least 1",
		})
	}
}

func (q *QueryConfig) validate(result *ValidationResult) {
	if q.Timeout <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "query.timeout",
			Message: "must be positive",
		})
	}
	if q.RetryMaxAttempts < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "query.retry_max_attempts",
			Message: "must be at least 1",
		})
	}
	if q.RetryDelay < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "query.retry_delay",
			Message: "must not be negative",
		})
	}
	switch selection.Preset(q.DefaultPreset) {
	case selection.PresetMinimal, selection.PresetDisplay, selection.PresetAll, selection.PresetFull:
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "query.default_preset",
			Message: fmt.Sprintf("unknown preset %q", q.DefaultPreset),
			Hint:    "valid presets: minimal, display, all, full",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("unknown level %q", o.Logging.Level),
			Hint:    "valid levels: debug, info, warn, error",
		})
	}
	switch o.Logging.Format {
	case "json", "text":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("unknown format %q", o.Logging.Format),
			Hint:    "valid formats: json, text",
		})
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: "must be between 0.0 and 1.0",
		})
	}
	if o.TracingEnabled || o.MetricsEnabled || o.Logging.ExportsEnabled {
		o.OTLP.validate("observability.otlp", result)
		if o.Traces != nil {
			o.Traces.validate("observability.traces", result)
		}
		if o.Logs != nil {
			o.Logs.validate("observability.logs", result)
		}
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	switch o.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("unknown protocol %q", o.Protocol),
			Hint:    "valid protocols: grpc, http/protobuf",
		})
	}
	switch o.Compression {
	case "", "none", "gzip":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("unknown compression %q", o.Compression),
			Hint:    "valid values: none, gzip",
		})
	}
	if (o.TLSClientCertFile == "") != (o.TLSClientKeyFile == "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".tls_client_cert_file",
			Message: "client certificate and key must be configured together",
		})
	}
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
