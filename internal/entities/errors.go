package entities

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrStateConflict   = errors.New("dialogue state changed concurrently")
	ErrNoActiveProject = errors.New("no active project for contact")
	ErrInvalidInput    = errors.New("invalid input")

	// ErrNoQR is returned while no device pairing code is pending.
	ErrNoQR = errors.New("whatsapp: no pairing code available")
)

// FieldError describes one invalid field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects field errors. It unwraps to ErrInvalidInput.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}
