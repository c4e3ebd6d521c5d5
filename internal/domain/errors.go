package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced user or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed or incomplete input records.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned by stores when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
