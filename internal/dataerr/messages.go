package dataerr

import (
	"fmt"
	"strings"
	"sync"
)

// constraintMessages maps constraint names to user-facing messages. Exact
// names are checked first, then wildcard suffix patterns like "*_email_key".
type constraintMessages struct {
	mu       sync.RWMutex
	exact    map[string]string
	suffixes map[string]string
}

var registry = &constraintMessages{
	exact:    make(map[string]string),
	suffixes: make(map[string]string),
}

// RegisterConstraintMessage installs a user-facing message for a constraint
// name. A pattern starting with "*" matches any constraint with that suffix.
func RegisterConstraintMessage(pattern, message string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if strings.HasPrefix(pattern, "*") {
		registry.suffixes[strings.TrimPrefix(pattern, "*")] = message
		return
	}
	registry.exact[pattern] = message
}

func lookupConstraintMessage(constraint string) (string, bool) {
	if constraint == "" {
		return "", false
	}
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	if message, ok := registry.exact[constraint]; ok {
		return message, true
	}
	for suffix, message := range registry.suffixes {
		if strings.HasSuffix(constraint, suffix) {
			return message, true
		}
	}
	return "", false
}

// UserMessage returns the message to surface to a person. A registered
// constraint message wins; otherwise a per-kind template parameterized by the
// extracted field name applies.
func (e *Error) UserMessage() string {
	if message, ok := lookupConstraintMessage(e.Constraint); ok {
		return message
	}

	switch e.Kind {
	case KindNetwork:
		return "A network error occurred. Check your connection and try again."
	case KindTimeout:
		return "The request timed out. Try again."
	case KindUnauthorized:
		return "Your session has expired. Sign in again."
	case KindForbidden:
		return "You do not have permission to perform this action."
	case KindNotFound:
		return "The requested resource was not found."
	case KindValidationFailed, KindInvalidMutationData, KindBadRequest:
		if e.Message != "" {
			return e.Message
		}
		return "The submitted data is invalid."
	case KindRequiredFieldMissing:
		if e.FieldName != "" {
			return fmt.Sprintf("%s is required.", e.FieldName)
		}
		return "A required field is missing."
	case KindTableNotFound:
		return "This table no longer exists. The schema may have changed."
	case KindColumnNotFound:
		if e.FieldName != "" {
			return fmt.Sprintf("The column %s no longer exists. The schema may have changed.", e.FieldName)
		}
		return "A column no longer exists. The schema may have changed."
	case KindPermissionDenied:
		return "You do not have permission to perform this action."
	case KindUniqueViolation:
		if e.FieldName != "" {
			return fmt.Sprintf("A record with this %s already exists.", e.FieldName)
		}
		return "A record with this value already exists."
	case KindForeignKeyViolation:
		if e.FieldName != "" {
			return fmt.Sprintf("The record referenced by %s does not exist.", e.FieldName)
		}
		return "A referenced record does not exist."
	case KindNotNullViolation:
		if e.FieldName != "" {
			return fmt.Sprintf("%s is required.", e.FieldName)
		}
		return "A required value is missing."
	case KindCheckViolation:
		if e.FieldName != "" {
			return fmt.Sprintf("%s has an invalid value.", e.FieldName)
		}
		return "A value failed a validity check."
	case KindExclusionViolation:
		if e.FieldName != "" {
			return fmt.Sprintf("%s conflicts with an existing record.", e.FieldName)
		}
		return "This record conflicts with an existing one."
	case KindInternal:
		return "The server encountered an error. Try again later."
	default:
		return "Something went wrong. Try again."
	}
}
