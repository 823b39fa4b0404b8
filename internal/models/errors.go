package models

import (
	"errors"
	"fmt"
)

// Common errors returned by services and repositories.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRequest indicates a malformed recipe: unknown op, bad
	// payload shape, concat with fewer than two inputs, or an empty
	// text sequence. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoEligibleJob indicates the dequeue found no claimable job.
	ErrNoEligibleJob = errors.New("no eligible job")
)

// ValidationError describes a single invalid payload field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap makes ValidationError match ErrInvalidRequest via errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}
