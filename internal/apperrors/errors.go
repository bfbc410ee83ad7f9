package apperrors

import (
	"errors"
	"net/http"
)

// Code classifies a failure for acknowledgments and transport status mapping.
type Code string

const (
	CodeAuthentication Code = "AUTHENTICATION_ERROR"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeAuthorization  Code = "AUTHORIZATION_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// InternalMessage is the only text surfaced to callers for internal failures.
const InternalMessage = "Internal server error"

// Error is a coded domain error. Message is safe to show to the caller
// except for CodeInternal, whose detail lives in Cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Authentication(message string) *Error { return New(CodeAuthentication, message) }
func Validation(message string) *Error     { return New(CodeValidation, message) }
func Authorization(message string) *Error  { return New(CodeAuthorization, message) }
func NotFound(message string) *Error       { return New(CodeNotFound, message) }
func Conflict(message string) *Error       { return New(CodeConflict, message) }

// Internal wraps a store or transport failure.
func Internal(message string, cause error) *Error {
	return Wrap(CodeInternal, message, cause)
}

// Sentinels usable with errors.Is to test the class of an error.
var (
	ErrAuthentication = New(CodeAuthentication, "")
	ErrValidation     = New(CodeValidation, "")
	ErrAuthorization  = New(CodeAuthorization, "")
	ErrNotFound       = New(CodeNotFound, "")
	ErrConflict       = New(CodeConflict, "")
	ErrInternal       = New(CodeInternal, "")
)

// From returns the coded error in err's chain, classifying anything else as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("unexpected error", err)
}

// CodeOf reports the code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return From(err).Code
}

// PublicMessage is the caller-facing text for err.
func PublicMessage(err error) string {
	appErr := From(err)
	if appErr == nil {
		return ""
	}
	if appErr.Code == CodeInternal {
		return InternalMessage
	}
	return appErr.Message
}

// HTTPStatus maps an error code to an HTTP status for the REST surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthentication:
		return http.StatusUnauthorized
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
