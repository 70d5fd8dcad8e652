// Package apperr defines the error taxonomy shared across the credential
// broker: sentinel kinds that classify every failure a request can hit, plus
// helpers to wrap causes and translate to HTTP status codes at the boundary.
//
// Handlers log the original cause (with %w wrapping intact) before returning
// the boundary-safe message; the kind — never the wrapped cause — decides the
// response status, so internal details and secrets cannot leak to callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for boundary translation.
type Kind int

const (
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = iota
	// KindUnauthenticated means no or invalid session token.
	KindUnauthenticated
	// KindUnauthorized means the caller is authenticated but policy denies the
	// operation. The provisioning allow-list miss is also this kind.
	KindUnauthorized
	// KindNotFound means a referenced team/member/role/database/credential is absent.
	KindNotFound
	// KindConflict covers status-mismatched recreates and username collisions.
	KindConflict
	// KindProvisioning means an external DDL step failed; the metadata write
	// that preceded it is NOT rolled back.
	KindProvisioning
)

// Error carries a kind, a boundary-safe message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted boundary-safe message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Non-taxonomy errors report KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the boundary-safe message for err. For non-taxonomy errors
// a generic message is returned so raw internals never reach the caller.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// HTTPStatus maps an error's kind to the HTTP status the boundary returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindProvisioning:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
