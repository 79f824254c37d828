package domain

import (
	"errors"
	"fmt"
)

// Error categories surfaced to callers. Concrete errors wrap one of these so
// handlers can map them with errors.Is.
var (
	// ErrValidation marks input that was rejected before any mutation
	ErrValidation = errors.New("validation error")
	// ErrConflict marks an operation that would violate a uniqueness or dependency rule
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks an unknown portfolio, instrument or corporate action id
	ErrNotFound = errors.New("not found")
)

// NewValidationError returns an error wrapping ErrValidation
func NewValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NewConflictError returns an error wrapping ErrConflict
func NewConflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NewNotFoundError returns an error wrapping ErrNotFound
func NewNotFoundError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
