// Package errors defines the domain error type shared by services and
// transport adapters.
//
// Services return *Error values carrying a Code; adapters translate the code
// into a transport status with ToHTTPStatus. Infrastructure facts (not found,
// conflict, unavailable) travel as pkg/platform/sentinel values until a
// service decides what they mean.
package errors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	CodeMalformed          Code = "malformed"
	CodeUnknownType        Code = "unknown_type"
	CodeContentTooLarge    Code = "content_too_large"
	CodeProfanityRejected  Code = "profanity_rejected"
	CodeRoutingNotFound    Code = "routing_not_found"
	CodeInvalidTransition  Code = "invalid_transition"
	CodeNotFound           Code = "not_found"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
)

// Error is a domain error with a stable code and a human readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error without an underlying cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is errors.Is, re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// ToHTTPStatus maps a code to the HTTP status adapters should answer with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeMalformed, CodeInvalidInput, CodeBadRequest, CodeValidation, CodeContentTooLarge:
		return http.StatusBadRequest
	case CodeUnknownType, CodeProfanityRejected, CodeRoutingNotFound:
		return http.StatusUnprocessableEntity
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
