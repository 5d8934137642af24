package apperr

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the reconciliation pipeline. Callers wrap one of
// these sentinels with context and match them with errors.Is.
var (
	// ErrValidation marks malformed input: bad address, oversized field, future date.
	ErrValidation = errors.New("validation error")
	// ErrDuplicate marks a write that collided with an existing row.
	ErrDuplicate = errors.New("duplicate")
	// ErrDependency marks a failure of an external collaborator (mailbox, SMTP).
	ErrDependency = errors.New("dependency error")
	// ErrConsistency marks broken references: missing conversation, cyclic chain.
	ErrConsistency = errors.New("consistency error")
	// ErrNotFound marks a lookup by id that matched nothing. It is also a
	// validation error.
	ErrNotFound = errors.New("not found")
)

// Validation wraps a formatted message with ErrValidation.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Duplicate wraps a formatted message with ErrDuplicate.
func Duplicate(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, fmt.Sprintf(format, args...))
}

// Dependency wraps err with ErrDependency, keeping both in the chain.
func Dependency(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDependency, what, err)
}

// Consistency wraps a formatted message with ErrConsistency.
func Consistency(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConsistency, fmt.Sprintf(format, args...))
}

// NotFound wraps a formatted message with ErrNotFound and ErrValidation.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w: %s", ErrNotFound, ErrValidation, fmt.Sprintf(format, args...))
}

// Kind returns the taxonomy label of err, or "internal" when it carries none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrDependency):
		return "dependency"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	default:
		return "internal"
	}
}
