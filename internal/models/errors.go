package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated indicates there is no usable credential at all.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrSessionExpired indicates a refresh was attempted and rejected.
	ErrSessionExpired = errors.New("session expired")

	// ErrValidation is wrapped by every locally detected input problem.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by stores when a unique edge already exists.
	ErrConflict = errors.New("conflict")
)

// UpstreamError is a non-success response from the backend API.
type UpstreamError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// NetworkError is a transport level failure (timeout, DNS, refused connection).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
