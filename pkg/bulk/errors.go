package bulk

import (
	"errors"
	"fmt"
)

// Errors returned by the bulk package. Check them with errors.Is.
var (
	// ErrValidation is returned when an Action is built without a required field.
	ErrValidation = errors.New("bulk: validation failed")

	// ErrClosed is returned by Add once the Operator has been closed.
	ErrClosed = errors.New("bulk: operator closed")
)

// ValidationError names the field that failed validation.
// It matches ErrValidation under errors.Is.
type ValidationError struct {
	Field string
	// Reason is empty when the field is missing.
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bulk: validation failed: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("bulk: validation failed: %s is required", e.Field)
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
