package model

import "errors"

// Error kinds. Every failure returned by the store, matching and catalog
// packages wraps exactly one of these; classify with errors.Is.
var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to a report or user that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a failed version check or an illegal state transition.
	ErrConflict = errors.New("conflict")

	// ErrAuth marks a missing principal or one lacking permission.
	ErrAuth = errors.New("not authorized")
)
