package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an error for boundary mapping.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindTokenExpired       Kind = "token_expired"
	KindTokenInvalid       Kind = "token_invalid"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindAlreadyExists      Kind = "already_exists"
	KindValidation         Kind = "validation"
	KindDatabase           Kind = "database_error"
	KindExternalService    Kind = "external_service_error"
	KindInternal           Kind = "internal_error"
)

// defaultMessages are the client-visible messages for kinds that never
// surface caller text. Validation, not-found, and conflict errors carry
// their own message.
var defaultMessages = map[Kind]string{
	KindInvalidCredentials: "Invalid email or password",
	KindTokenExpired:       "Token has expired",
	KindTokenInvalid:       "Invalid token",
	KindUnauthorized:       "Authentication required",
	KindForbidden:          "Access denied",
	KindDatabase:           "Database error occurred",
	KindExternalService:    "External service error",
	KindInternal:           "Internal server error",
}

var httpStatus = map[Kind]int{
	KindInvalidCredentials: http.StatusUnauthorized,
	KindTokenExpired:       http.StatusUnauthorized,
	KindTokenInvalid:       http.StatusUnauthorized,
	KindUnauthorized:       http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindNotFound:           http.StatusNotFound,
	KindAlreadyExists:      http.StatusConflict,
	KindValidation:         http.StatusBadRequest,
	KindDatabase:           http.StatusInternalServerError,
	KindExternalService:    http.StatusBadGateway,
	KindInternal:           http.StatusInternalServerError,
}

// Error is a categorized application error. Message is safe to return to
// the client; Err carries the internal cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so handlers can test
// errors.Is(err, apperror.Forbidden()) without caring about the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials}
}

func TokenExpired() *Error {
	return &Error{Kind: KindTokenExpired}
}

func TokenInvalid() *Error {
	return &Error{Kind: KindTokenInvalid}
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized}
}

func Forbidden() *Error {
	return &Error{Kind: KindForbidden}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func AlreadyExists(message string) *Error {
	return &Error{Kind: KindAlreadyExists, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Database wraps a storage failure. The driver error is never surfaced.
func Database(err error) *Error {
	return &Error{Kind: KindDatabase, Err: err}
}

func External(err error) *Error {
	return &Error{Kind: KindExternalService, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Err: err}
}

// KindOf extracts the kind from an error chain. Unrecognized errors are
// internal by definition.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to its response code.
func HTTPStatus(kind Kind) int {
	if code, ok := httpStatus[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-visible message for an error chain:
// the Error's own message when set, the kind default otherwise.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if msg, ok := defaultMessages[e.Kind]; ok {
			return msg
		}
	}
	return defaultMessages[KindInternal]
}

// IsAuthError reports whether the error should be answered with a 401.
func IsAuthError(err error) bool {
	switch KindOf(err) {
	case KindInvalidCredentials, KindTokenExpired, KindTokenInvalid, KindUnauthorized:
		return true
	}
	return false
}
