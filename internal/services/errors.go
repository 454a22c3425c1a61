package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure for the HTTP layer.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindGone
	// KindConfig is a missing or invalid deployment setting. The client only
	// sees a generic message.
	KindConfig
	// KindIntegrity means stored data is inconsistent; callers should retry.
	KindIntegrity
	KindUpstream
)

// ServiceError carries a client-facing message and the underlying cause.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status.
func (e *ServiceError) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGone:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage is what the HTTP layer renders.
func (e *ServiceError) ClientMessage() string {
	switch e.Kind {
	case KindConfig:
		return "Internal server configuration error."
	case KindUpstream:
		if e.Message == "" {
			return "Something went wrong. Please try again later."
		}
	}
	return e.Message
}

func ValidationError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func ForbiddenError(message string) *ServiceError {
	return &ServiceError{Kind: KindForbidden, Message: message}
}

func NotFoundError(message string) *ServiceError {
	return &ServiceError{Kind: KindNotFound, Message: message}
}

func ConflictError(message string) *ServiceError {
	return &ServiceError{Kind: KindConflict, Message: message}
}

func ConfigError(err error) *ServiceError {
	return &ServiceError{Kind: KindConfig, Message: "configuration error", Err: err}
}

func IntegrityError(message string, err error) *ServiceError {
	return &ServiceError{Kind: KindIntegrity, Message: message, Err: err}
}

func UpstreamError(message string, err error) *ServiceError {
	return &ServiceError{Kind: KindUpstream, Message: message, Err: err}
}

// KindOf returns the kind of err, or 0 when err is not a ServiceError.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
