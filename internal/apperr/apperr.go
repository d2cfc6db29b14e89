// Package apperr defines the error taxonomy shared by services and
// handlers. Validation errors are produced before any write; store
// errors wrap the underlying persistence failure.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind int

const (
	// KindInvalidInput means a field was missing or out of range.
	KindInvalidInput Kind = iota
	// KindInvalidTransition means a lifecycle rule was violated.
	KindInvalidTransition
	// KindAlreadyRated means a side already rated this errand.
	KindAlreadyRated
	// KindUnauthorized means the caller is not allowed to act here.
	KindUnauthorized
	// KindNotFound means a lookup by id or phone number failed.
	KindNotFound
	// KindStore means the underlying persistence call failed.
	KindStore
)

// Error carries a kind, a user-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidInput reports a rejected field before any write happens.
func InvalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports a disallowed lifecycle transition.
func InvalidTransition(format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// AlreadyRated reports a duplicate rating attempt from one side.
func AlreadyRated(format string, args ...any) error {
	return &Error{Kind: KindAlreadyRated, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports an action by a non-participant or wrong role.
func Unauthorized(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a failed lookup.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Store wraps a persistence failure.
func Store(err error, format string, args ...any) error {
	return &Error{Kind: KindStore, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of err, defaulting to KindStore for errors
// that did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
