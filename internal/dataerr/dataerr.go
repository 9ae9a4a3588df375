// Package dataerr is the single point where raw failures from the query
// protocol boundary become typed data errors. Classification happens once, at
// the boundary; downstream code only inspects the result.
package dataerr

import (
	"fmt"
)

// Kind is the stable error taxonomy.
type Kind int

const (
	// KindUnknown is the catch-all; the original error is always preserved.
	KindUnknown Kind = iota
	// KindNetwork covers connectivity failures. Retryable.
	KindNetwork
	// KindTimeout covers deadline and cancellation failures. Retryable.
	KindTimeout
	// KindUnauthorized means the caller is not authenticated.
	KindUnauthorized
	// KindForbidden means the caller is authenticated but not allowed.
	KindForbidden
	// KindNotFound means the requested resource does not exist.
	KindNotFound
	// KindBadRequest covers malformed requests rejected before execution.
	KindBadRequest
	// KindValidationFailed covers caller-input validation problems.
	KindValidationFailed
	// KindRequiredFieldMissing means a required input field was absent.
	KindRequiredFieldMissing
	// KindInvalidMutationData means mutation input failed shape checks.
	KindInvalidMutationData
	// KindTableNotFound indicates a stale client-side schema: the table is gone.
	KindTableNotFound
	// KindColumnNotFound indicates a stale client-side schema: the column is gone.
	KindColumnNotFound
	// KindPermissionDenied is a database-level privilege failure.
	KindPermissionDenied
	// KindUniqueViolation is a duplicate-key constraint failure.
	KindUniqueViolation
	// KindForeignKeyViolation is a referential-integrity failure.
	KindForeignKeyViolation
	// KindNotNullViolation is a missing-required-column failure.
	KindNotNullViolation
	// KindCheckViolation is a check-constraint failure.
	KindCheckViolation
	// KindExclusionViolation is an exclusion-constraint failure.
	KindExclusionViolation
	// KindInternal is a server-side failure reported by the platform.
	KindInternal
)

// String returns the taxonomy name for logging.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindValidationFailed:
		return "validation_failed"
	case KindRequiredFieldMissing:
		return "required_field_missing"
	case KindInvalidMutationData:
		return "invalid_mutation_data"
	case KindTableNotFound:
		return "table_not_found"
	case KindColumnNotFound:
		return "column_not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUniqueViolation:
		return "unique_violation"
	case KindForeignKeyViolation:
		return "foreign_key_violation"
	case KindNotNullViolation:
		return "not_null_violation"
	case KindCheckViolation:
		return "check_violation"
	case KindExclusionViolation:
		return "exclusion_violation"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// IsConstraintViolation reports whether the kind is one of the five database
// integrity-violation classes.
func (k Kind) IsConstraintViolation() bool {
	switch k {
	case KindUniqueViolation, KindForeignKeyViolation, KindNotNullViolation,
		KindCheckViolation, KindExclusionViolation:
		return true
	}
	return false
}

// Error is a classified data error. Constructed once at the boundary and
// never re-classified downstream.
type Error struct {
	Kind       Kind
	Message    string
	TableName  string
	FieldName  string
	Constraint string
	// Code is the structured error code from the response envelope, when one
	// was present (protocol code or database SQLSTATE).
	Code  string
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// Unwrap exposes the original error for errors.Is/As and logging.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsRetryable reports whether the failure is transient. Only network and
// timeout failures qualify.
func (e *Error) IsRetryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindTimeout
}

// LogDetails returns structured fields for logging, with the original error
// preserved.
func (e *Error) LogDetails() map[string]interface{} {
	details := map[string]interface{}{
		"kind":    e.Kind.String(),
		"message": e.Message,
	}
	if e.TableName != "" {
		details["table"] = e.TableName
	}
	if e.FieldName != "" {
		details["field"] = e.FieldName
	}
	if e.Constraint != "" {
		details["constraint"] = e.Constraint
	}
	if e.Code != "" {
		details["code"] = e.Code
	}
	if e.cause != nil {
		details["cause"] = e.cause.Error()
	}
	return details
}

// New constructs a classified error directly. Most callers should use
// Classify instead.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a classified error preserving the original.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// ResponseError is a single error entry from the response envelope, carrying
// the structured extensions the platform attaches to each error.
type ResponseError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return e.Message
}

// extensionString returns a string-valued extension, or "".
func (e *ResponseError) extensionString(key string) string {
	if e.Extensions == nil {
		return ""
	}
	if value, ok := e.Extensions[key].(string); ok {
		return value
	}
	return ""
}

// StatusError is a non-2xx HTTP response with no usable envelope.
type StatusError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}
