// Package apperr defines the error kinds shared by the storage, chat hub and
// API layers. Callers wrap a kind with context using fmt.Errorf("%w") and
// classify with errors.Is at the boundary.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input. No side effects were attempted.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown user, room or message.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate marks a uniqueness violation such as an already registered email.
	ErrDuplicate = errors.New("already exists")
	// ErrAuth marks bad credentials or an invalid/expired token.
	ErrAuth = errors.New("authentication failed")
	// ErrForbidden marks an authenticated caller acting on someone else's behalf.
	ErrForbidden = errors.New("forbidden")
	// ErrPersistence marks a failed or timed out gateway call.
	ErrPersistence = errors.New("persistence failure")
)

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Duplicate(format string, args ...any) error {
	return wrap(ErrDuplicate, format, args...)
}

func Auth(format string, args ...any) error {
	return wrap(ErrAuth, format, args...)
}

func Forbidden(format string, args ...any) error {
	return wrap(ErrForbidden, format, args...)
}

// Persistence wraps a gateway failure. Errors that already carry a kind are
// returned unchanged so a NotFound from the gateway stays a NotFound.
func Persistence(err error, op string) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// Classified reports whether err already wraps one of the kinds above.
func Classified(err error) bool {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrDuplicate, ErrAuth, ErrForbidden, ErrPersistence} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
