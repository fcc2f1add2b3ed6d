package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and for the HTTP boundary.
type Code string

const (
	MissingHeader       Code = "missing_header"
	VerificationFailed  Code = "verification_failed"
	Validation          Code = "validation_error"
	NotFound            Code = "not_found"
	AlreadyApplied      Code = "already_applied"
	InsufficientCredits Code = "insufficient_credits"
	RaceRetryExhausted  Code = "race_retry_exhausted"
	StoreUnavailable    Code = "store_unavailable"
	GatewayError        Code = "gateway_error"
	Internal            Code = "internal_error"
)

// Error is a coded application error. Err keeps the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code so callers can compare against New(code, "").
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// MessageOf returns the public message for err. Uncoded errors never leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a code to the status returned by the API.
func HTTPStatus(code Code) int {
	switch code {
	case MissingHeader, Validation:
		return http.StatusBadRequest
	case VerificationFailed:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case AlreadyApplied:
		return http.StatusOK
	case InsufficientCredits:
		return http.StatusPaymentRequired
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	case GatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
