package services

import (
	"errors"
	"fmt"
)

// Sentinel errors translated to HTTP statuses by the handlers.
var (
	// ErrForbidden is returned when the caller lacks the capability or
	// role required for an operation.
	ErrForbidden = errors.New("this action is unauthorized")
	// ErrBadRequest is returned when a required query parameter is
	// missing or empty.
	ErrBadRequest = errors.New("bad request")
	// ErrInvalidCredentials is returned on failed login attempts.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports one or more failed field constraints. Fields is
// keyed by the JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) add(field, message string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// errOrNil returns the error when at least one field failed, nil otherwise.
func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
