// Package apperr defines the error taxonomy shared by every service and its
// mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error
type Kind string

const (
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
	KindExternal   Kind = "external"
)

// Error is a classified domain error. Details carries the upstream response body
// for external failures.
type Error struct {
	Kind    Kind
	Message string
	Details string
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

func Auth(message string) error {
	return &Error{Kind: KindAuth, Message: message}
}

func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) error {
	return &Error{Kind: KindConflict, Message: message}
}

// Validation marks a business rule rejected before any write, such as the user cap
func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// External wraps a failure of an outside dependency together with its response body
func External(message, details string, err error) error {
	return &Error{Kind: KindExternal, Message: message, Details: details, Err: err}
}

// KindOf returns the kind of err, or "" for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsAuth(err error) bool      { return KindOf(err) == KindAuth }
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }
func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsExternal(err error) bool  { return KindOf(err) == KindExternal }

// IsConflict also matches validation errors; both reject a request that clashes
// with current state.
func IsConflict(err error) bool {
	k := KindOf(err)
	return k == KindConflict || k == KindValidation
}

// HTTPStatus maps err onto a response code. Unclassified errors are 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message of err. Unclassified errors get a
// generic message so internals never leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}

// DetailsOf returns the upstream body attached to an external error
func DetailsOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return ""
}
