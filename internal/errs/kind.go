package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the sync engine and verifier act on.
type Kind int

// Error kinds. Unknown collapses to Transient.
const (
	Transient Kind = iota
	Authentication
	Validation
	ConflictIntegrity
	ReplayDetected
	InvalidInput
	NotFound
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Authentication:
		return "authentication"
	case Validation:
		return "validation"
	case ConflictIntegrity:
		return "conflict_integrity"
	case ReplayDetected:
		return "replay_detected"
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "transient"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case Authentication:
		return ErrAuthentication
	case Validation:
		return ErrValidation
	case ConflictIntegrity:
		return ErrConflictIntegrity
	case ReplayDetected:
		return ErrReplayDetected
	case InvalidInput:
		return ErrInvalidInput
	case NotFound:
		return ErrNotFound
	case PermissionDenied:
		return ErrPermissionDenied
	default:
		return ErrTransient
	}
}

// Retryable reports whether an operation failing with k may be retried automatically.
func (k Kind) Retryable() bool { return k == Transient }

// Error is a categorized failure. It keeps the originating error's type name
// but never exposes its message through Error().
type Error struct {
	Kind      Kind
	Op        string
	CauseType string
	cause     error
}

// E wraps cause into a categorized error for operation op.
func E(kind Kind, op string, cause error) *Error {
	e := &Error{Kind: kind, Op: op, cause: cause}
	if cause != nil {
		e.CauseType = fmt.Sprintf("%T", cause)
	}
	return e
}

func (e *Error) Error() string {
	if e.CauseType == "" {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + " (" + e.CauseType + ")"
}

// Unwrap exposes the original cause for errors.As inside the process.
func (e *Error) Unwrap() error { return e.cause }

// Is matches the taxonomy sentinel of e.Kind.
func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

// KindOf classifies err. Context cancellation is reported as Transient,
// anything unrecognized is Transient as well.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrUnauthorized):
		return Authentication
	case errors.Is(err, ErrValidation):
		return Validation
	case errors.Is(err, ErrConflictIntegrity):
		return ConflictIntegrity
	case errors.Is(err, ErrReplayDetected):
		return ReplayDetected
	case errors.Is(err, ErrInvalidInput):
		return InvalidInput
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrPermissionDenied):
		return PermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	}
	return Transient
}

// Validationf builds a Validation error with a formatted operation label.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Op: "validation: " + fmt.Sprintf(format, args...)}
}
