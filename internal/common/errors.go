package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrDatabase     = errors.New("database error")
	ErrStorage      = errors.New("blob storage error")
	ErrValidation   = errors.New("validation failed")
)

// Upload and extraction errors
var (
	ErrImageTooLarge       = errors.New("image too large")
	ErrQuotaExceeded       = errors.New("monthly upload quota exceeded")
	ErrExtractionFormat    = errors.New("extraction output is not valid JSON")
	ErrExtractionShape     = errors.New("extraction output has an invalid shape")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrImageFetch          = errors.New("image fetch failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// UserMessage returns the message of the outermost AppError in the chain, or "" if there is none.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}

// HTTPStatus maps an error chain onto the status code returned to API callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrImageTooLarge),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrExtractionFormat),
		errors.Is(err, ErrExtractionShape):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrImageFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
