// Package errors defines the service error taxonomy shared by all handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in API responses.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeQuotaLimit   ErrorCode = "QUOTA_EXCEEDED"
	CodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUpstream     ErrorCode = "UPSTREAM_ERROR"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// ServiceError carries an error code, an HTTP status and optional details.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// WithDetails attaches a key/value pair to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Validation returns a 400 error for missing or malformed request fields.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized returns a 401 error for a missing or invalid session.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken returns a 401 error for a token that failed verification.
func InvalidToken(cause error) *ServiceError {
	return &ServiceError{Code: CodeInvalidToken, Message: "invalid token", HTTPStatus: http.StatusUnauthorized, cause: cause}
}

// Forbidden returns a 403 error for a caller that does not own the target.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// NotFound returns a 404 error for an absent or not-owned entity.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// QuotaExceeded returns a 402 error when the caller has no generation credits left.
func QuotaExceeded(kind string, used, limit int) *ServiceError {
	e := &ServiceError{
		Code:       CodeQuotaLimit,
		Message:    fmt.Sprintf("%s quota exceeded", kind),
		HTTPStatus: http.StatusPaymentRequired,
	}
	return e.WithDetails("used", used).WithDetails("limit", limit)
}

// RateLimitExceeded returns a 429 error.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := &ServiceError{
		Code:       CodeRateLimit,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Upstream returns a 500 error for a failed hosted-database or provider call.
// The provider message is attached verbatim, per the API contract.
func Upstream(provider string, cause error) *ServiceError {
	msg := provider + " request failed"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &ServiceError{Code: CodeUpstream, Message: msg, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// Internal returns a 500 error for an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	if message == "" {
		message = "internal server error"
	}
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// GetServiceError extracts a *ServiceError from err, or nil if there is none.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// IsNotFound reports whether err is (or wraps) a NOT_FOUND service error.
func IsNotFound(err error) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == CodeNotFound
}
