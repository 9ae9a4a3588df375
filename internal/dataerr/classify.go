package dataerr

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Protocol-level extension codes reported by the platform.
const (
	codeNotAuthenticated = "NOT_AUTHENTICATED"
	codeForbidden        = "FORBIDDEN"
	codeValidationFailed = "VALIDATION_FAILED"
	codeBadUserInput     = "BAD_USER_INPUT"
	codeInternal         = "INTERNAL_SERVER_ERROR"
)

// PostgreSQL SQLSTATE codes embedded in envelope error extensions.
const (
	sqlstateUniqueViolation     = "23505"
	sqlstateForeignKeyViolation = "23503"
	sqlstateNotNullViolation    = "23502"
	sqlstateCheckViolation      = "23514"
	sqlstateExclusionViolation  = "23P01"
	sqlstatePrivilegeDenied     = "42501"
	sqlstateUndefinedTable      = "42P01"
	sqlstateUndefinedColumn     = "42703"
)

var (
	columnMessageRe    = regexp.MustCompile(`column "([^"]+)"`)
	duplicateKeyRe     = regexp.MustCompile(`Key \(([^),=]+)\)=`)
	constraintSuffixRe = regexp.MustCompile(`_([A-Za-z0-9]+)_(?:key|fkey|check|pkey)$`)
)

// Classify turns any raised error into a classified *Error. Classification is
// idempotent: an already-classified error is returned unchanged, never
// re-wrapped. Three tiers apply in order: structured extension codes, then
// message-content rules, then the unknown catch-all.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	// Passthrough tier: never re-classify.
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var respErr *ResponseError
	if errors.As(err, &respErr) {
		if shaped := classifyExtensions(respErr); shaped != nil {
			return shaped
		}
		return classifyMessage(respErr.Message, err)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, err.Error(), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Wrap(KindTimeout, err.Error(), err)
		}
		return Wrap(KindNetwork, err.Error(), err)
	}

	return classifyMessage(err.Error(), err)
}

// classifyExtensions maps a structured extension code to a kind, extracting
// constraint context for integrity violations. Returns nil when the code is
// absent or unrecognized so the message tier can take over.
func classifyExtensions(respErr *ResponseError) *Error {
	code := respErr.extensionString("code")
	if code == "" {
		return nil
	}

	shaped := &Error{Message: respErr.Message, Code: code, cause: respErr}
	switch code {
	case codeNotAuthenticated:
		shaped.Kind = KindUnauthorized
	case codeForbidden:
		shaped.Kind = KindForbidden
	case codeValidationFailed, codeBadUserInput:
		shaped.Kind = KindValidationFailed
	case codeInternal:
		shaped.Kind = KindInternal
	case sqlstateUniqueViolation:
		shaped.Kind = KindUniqueViolation
	case sqlstateForeignKeyViolation:
		shaped.Kind = KindForeignKeyViolation
	case sqlstateNotNullViolation:
		shaped.Kind = KindNotNullViolation
	case sqlstateCheckViolation:
		shaped.Kind = KindCheckViolation
	case sqlstateExclusionViolation:
		shaped.Kind = KindExclusionViolation
	case sqlstatePrivilegeDenied:
		shaped.Kind = KindPermissionDenied
	case sqlstateUndefinedTable:
		shaped.Kind = KindTableNotFound
	case sqlstateUndefinedColumn:
		shaped.Kind = KindColumnNotFound
	default:
		return nil
	}

	shaped.TableName = respErr.extensionString("table")
	shaped.Constraint = respErr.extensionString("constraint")
	if shaped.Kind.IsConstraintViolation() || shaped.Kind == KindColumnNotFound {
		shaped.FieldName = extractFieldName(respErr)
	}
	return shaped
}

// extractFieldName finds the offending column, trying in priority order:
// extension metadata, a `column "<name>"` phrase in the message, a trailing
// constraint-name suffix, then PostgreSQL's duplicate-key detail. First match
// wins.
func extractFieldName(respErr *ResponseError) string {
	if column := respErr.extensionString("column"); column != "" {
		return column
	}
	if match := columnMessageRe.FindStringSubmatch(respErr.Message); match != nil {
		return match[1]
	}
	if constraint := respErr.extensionString("constraint"); constraint != "" {
		if match := constraintSuffixRe.FindStringSubmatch(constraint); match != nil {
			return match[1]
		}
	}
	detail := respErr.extensionString("detail")
	for _, text := range []string{detail, respErr.Message} {
		if match := duplicateKeyRe.FindStringSubmatch(text); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

// messageRule maps case-insensitive message substrings to kinds. Rules are
// ordered; the first match wins.
type messageRule struct {
	kind       Kind
	substrings []string
}

var messageRules = []messageRule{
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindNetwork, []string{"network", "connection refused", "connection reset", "no such host", "fetch failed"}},
	{KindUnauthorized, []string{"unauthorized", "not authenticated", "jwt expired", "invalid token"}},
	{KindForbidden, []string{"forbidden", "permission denied", "access denied"}},
	{KindValidationFailed, []string{"validation", "invalid input"}},
	{KindUniqueViolation, []string{"duplicate key", "unique constraint", "already exists"}},
	{KindForeignKeyViolation, []string{"foreign key"}},
	{KindNotNullViolation, []string{"not-null", "null value in column"}},
	{KindCheckViolation, []string{"check constraint"}},
}

func classifyMessage(message string, cause error) *Error {
	lower := strings.ToLower(message)
	for _, rule := range messageRules {
		for _, substring := range rule.substrings {
			if strings.Contains(lower, substring) {
				shaped := Wrap(rule.kind, message, cause)
				if shaped.Kind.IsConstraintViolation() {
					shaped.FieldName = extractFieldName(&ResponseError{Message: message})
				}
				return shaped
			}
		}
	}
	return Wrap(KindUnknown, message, cause)
}

func classifyStatus(statusErr *StatusError) *Error {
	switch statusErr.StatusCode {
	case http.StatusUnauthorized:
		return Wrap(KindUnauthorized, statusErr.Status, statusErr)
	case http.StatusForbidden:
		return Wrap(KindForbidden, statusErr.Status, statusErr)
	case http.StatusNotFound:
		return Wrap(KindNotFound, statusErr.Status, statusErr)
	default:
		return Wrap(KindBadRequest, statusErr.Status, statusErr)
	}
}
