// Package errs contains sentinel errors and the sync error taxonomy used across layers.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
)

// Taxonomy sentinels; an *Error matches the sentinel of its Kind via errors.Is.
var (
	ErrTransient         = errors.New("transient network error")
	ErrAuthentication    = errors.New("authentication error")
	ErrValidation        = errors.New("validation error")
	ErrConflictIntegrity = errors.New("conflict integrity error")
	ErrReplayDetected    = errors.New("replay detected")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPermissionDenied  = errors.New("permission denied")
)
