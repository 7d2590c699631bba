package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session id is unknown
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a lifecycle operation is not
	// legal from the session's current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidInput is returned when session parameters fail validation
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
