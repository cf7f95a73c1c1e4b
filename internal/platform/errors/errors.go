// Package errors provides the coded application errors shared by every layer
// of the service. Repositories wrap driver errors, services raise guard
// failures, and transports map codes to HTTP and gRPC statuses.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an AppError.
type Code string

const (
	ErrCodeValidation   Code = "VALIDATION_FAILED"
	ErrCodePrecondition Code = "PRECONDITION_FAILED"
	ErrCodeForbidden    Code = "FORBIDDEN"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeConflict     Code = "CONFLICT"
	ErrCodeUnavailable  Code = "UPSTREAM_UNAVAILABLE"
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	ErrCodeInternal     Code = "INTERNAL"
)

// AppError is an error with a stable code and optional structured details.
type AppError struct {
	Code    Code
	Message string
	Details map[string]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair and returns the same error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an AppError with the given code.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps err with a code and message. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// InvalidInput reports a validation failure on a single field.
func InvalidInput(field, message string) *AppError {
	return New(ErrCodeValidation, message).WithDetail("field", field)
}

// Forbidden reports an actor acting outside their role.
func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

// Precondition reports an operation attempted from the wrong state.
func Precondition(message string) *AppError {
	return New(ErrCodePrecondition, message)
}

// Conflict reports a uniqueness violation.
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Unavailable reports a failed call to a collaborator. Always retryable.
func Unavailable(err error, message string) error {
	return Wrap(err, ErrCodeUnavailable, message)
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// As is errors.As re-exported so callers need a single import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// HTTPStatus maps an error to the HTTP status code returned to clients.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodePrecondition:
		return http.StatusPreconditionFailed
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
