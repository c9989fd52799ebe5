package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a dispatch error. Kinds are stable identifiers sent to
// clients in structured error payloads.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindNotFound          Kind = "NOT_FOUND"
	KindIllegalTransition Kind = "ILLEGAL_TRANSITION"
	KindAlreadyAccepted   Kind = "ALREADY_ACCEPTED"
	KindDuplicateRequest  Kind = "DUPLICATE_REQUEST"
	KindDependencyFailure Kind = "DEPENDENCY_FAILURE"
)

// Error is the application error carried across the dispatch core.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindIllegalTransition, KindAlreadyAccepted, KindDuplicateRequest:
		return http.StatusConflict
	case KindDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Validation rejects a malformed request before any state change.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Unauthorized rejects a role-scoped call from an unbound or wrong-role session.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// NotFound reports an unknown ride or driver id.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// IllegalTransition reports a status change not permitted from the current
// state or by the acting role.
func IllegalTransition(message string) *Error {
	return &Error{Kind: KindIllegalTransition, Message: message}
}

// AlreadyAccepted is returned to the losing side of the acceptance race.
func AlreadyAccepted(message string) *Error {
	return &Error{Kind: KindAlreadyAccepted, Message: message}
}

// DuplicateRequest rejects a retried request whose original is still in
// flight under the same idempotency key.
func DuplicateRequest(message string) *Error {
	return &Error{Kind: KindDuplicateRequest, Message: message}
}

// Dependency wraps a durable-store or payment-collaborator failure.
func Dependency(message string, err error) *Error {
	return &Error{Kind: KindDependencyFailure, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// From converts any error to an *Error, wrapping unknown errors as a
// dependency failure.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Dependency("unexpected error", err)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
