package client

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an error response from the ticket API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ticket API error (%d): %s - %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("ticket API error (%d): %s", e.StatusCode, e.Message)
}

// Is matches sentinel API errors by status code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.StatusCode == e.StatusCode && (t.Code == "" || t.Code == e.Code)
}

// NewAPIError creates a new API error
func NewAPIError(statusCode int, message, code, details string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
		Details:    details,
	}
}

// Common error types
var (
	ErrUnauthorized = &APIError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized", Code: "UNAUTHORIZED"}
	ErrForbidden    = &APIError{StatusCode: http.StatusForbidden, Message: "Forbidden", Code: "FORBIDDEN"}
	ErrNotFound     = &APIError{StatusCode: http.StatusNotFound, Message: "Resource not found", Code: "NOT_FOUND"}
	ErrRateLimited  = &APIError{StatusCode: http.StatusTooManyRequests, Message: "Rate limit exceeded", Code: "RATE_LIMITED"}
	ErrInternal     = &APIError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", Code: "INTERNAL_SERVER_ERROR"}
)

// NetworkError represents a transport failure before a response was read
type NetworkError struct {
	Operation string
	URL       string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s to %s: %v", e.Operation, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsUnauthorized checks if an error is an unauthorized error
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether repeating the request may succeed: network
// failures, rate limiting and server errors.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}
