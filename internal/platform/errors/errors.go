// Package errors provides structured errors with a category, context fields and an
// HTTP status mapping. Domain sentinels are classified at the edge by FromDomain.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pscheid92/fanpulse/internal/domain"
)

// ErrorType is the category of an error, used for response formatting and log level.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeUnauthorized indicates a missing caller identity (HTTP 401)
	TypeUnauthorized ErrorType = "unauthorized"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeConflict indicates a state conflict such as a full room (HTTP 409)
	TypeConflict ErrorType = "conflict"
	// TypeUnavailable indicates a failed write the client may retry (HTTP 503)
	TypeUnavailable ErrorType = "unavailable"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the client may repeat the request unchanged.
func (e *Error) Retryable() bool {
	return e.Type == TypeUnavailable
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

func UnauthorizedError(message string) *Error {
	return newError(TypeUnauthorized, message, nil)
}

func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

func ConflictError(message string) *Error {
	return newError(TypeConflict, message, nil)
}

func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Type      ErrorType      `json:"type"`
	Retryable bool           `json:"retryable,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:     e.Message,
		Type:      e.Type,
		Retryable: e.Retryable(),
		Context:   e.Context,
	}
}

// FromDomain classifies a domain sentinel. It returns nil if err wraps none of them.
func FromDomain(err error) *Error {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return UnavailableError("the change could not be saved, please retry", err)
	case errors.Is(err, domain.ErrEmptyBody),
		errors.Is(err, domain.ErrBodyTooLong),
		errors.Is(err, domain.ErrInvalidEventKind),
		errors.Is(err, domain.ErrInvalidRoomKey):
		return newError(TypeValidation, rootMessage(err), err)
	case errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrCommentNotFound),
		errors.Is(err, domain.ErrReplyNotFound),
		errors.Is(err, domain.ErrForumNotFound):
		return newError(TypeNotFound, rootMessage(err), err)
	case errors.Is(err, domain.ErrRoomFull):
		return newError(TypeConflict, domain.ErrRoomFull.Error(), err)
	default:
		return nil
	}
}

// rootMessage returns the innermost error text, which is the sentinel's own message.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// AsStructuredError converts any error into a structured Error. An *Error in the chain
// is returned as is, domain sentinels are classified, and everything else becomes an
// internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}
	if classified := FromDomain(err); classified != nil {
		return classified
	}
	return InternalError("internal server error", err)
}
