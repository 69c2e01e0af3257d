// Package apperr defines the error taxonomy shared by the membership
// service and the HTTP layer, and maps each code to an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure. Codes are stable and appear in
// API responses as error.type.
type Code string

const (
	DuplicateApplication  Code = "DuplicateApplication"
	CapacityExceeded      Code = "CapacityExceeded"
	InvalidTransition     Code = "InvalidTransition"
	AlreadyInGroup        Code = "AlreadyInGroup"
	NotAMember            Code = "NotAMember"
	GroupCreatorProtected Code = "GroupCreatorProtected"
	WithdrawalTooEarly    Code = "WithdrawalTooEarly"
	NotFound              Code = "NotFound"
	InconsistentState     Code = "InconsistentState"

	Validation   Code = "Validation"
	Unauthorized Code = "Unauthorized"
	Forbidden    Code = "Forbidden"
	Conflict     Code = "Conflict"
	RateLimited  Code = "RateLimited"
	BadMethod    Code = "MethodNotAllowed"
	Internal     Code = "Internal"
)

// Error is a tagged application error.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so errors.Is(err, apperr.New(code, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the code to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case DuplicateApplication, CapacityExceeded, InvalidTransition, AlreadyInGroup, Conflict:
		return http.StatusConflict
	case NotAMember, WithdrawalTooEarly, Validation:
		return http.StatusBadRequest
	case GroupCreatorProtected, Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case BadMethod:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// IsServerError reports whether the error should be logged as a fault.
func (e *Error) IsServerError() bool {
	return e.HTTPStatus() >= 500
}

// WithDetail attaches a key/value shown to clients (chainable).
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error carrying an underlying cause.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NotFoundf is shorthand for the common "<thing> not found" error.
func NotFoundf(format string, args ...any) *Error {
	return Newf(NotFound, format, args...)
}

// From returns err as an *Error. Untagged errors become Internal with the
// original kept as the cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, Internal, "internal server error")
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
