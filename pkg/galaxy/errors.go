package galaxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Error types for common failure scenarios.
var (
	// ErrNotAuthenticated indicates no API key is configured.
	ErrNotAuthenticated = errors.New("not authenticated: no API key configured")

	// ErrNoAPIKey indicates no API key was found in the environment or key files.
	ErrNoAPIKey = errors.New("no API key found")

	// ErrEmptyResponse indicates the server returned no usable payload.
	ErrEmptyResponse = errors.New("empty response")
)

// ErrorResponse is the JSON error body returned by the server.
type ErrorResponse struct {
	Message string `json:"err_msg"`
	Code    int    `json:"err_code"`
}

// HTTPError represents an HTTP-level error (non-2xx response).
type HTTPError struct {
	StatusCode int
	Body       string

	// Code is the server's err_code, when the body carried one.
	Code int
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable returns true if the HTTP error is retryable.
func (e *HTTPError) IsRetryable() bool {
	// 5xx are server-side, 429 asks us to slow down.
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status, Body: string(body)}
	var er ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Message != "" {
		e.Body = er.Message
		e.Code = er.Code
	}
	return e
}

// Error wraps a Galaxy API error with additional context.
type Error struct {
	// Op is the operation that failed.
	Op string

	// Message is the error message.
	Message string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given operation and message.
func NewError(op, message string) *Error {
	return &Error{Op: op, Message: message}
}

// WrapError wraps an error with operation context.
func WrapError(op string, err error) *Error {
	return &Error{Op: op, Err: err, Message: err.Error()}
}

// IsAuthError returns true if the error is an authentication/authorization error.
func IsAuthError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
	}
	return errors.Is(err, ErrNotAuthenticated)
}

// IsNotFoundError returns true if the error indicates a resource was not found.
func IsNotFoundError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsRetryable returns true if the error is likely transient and the request
// should be retried.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	var te *transportError
	return errors.As(err, &te)
}

// transportError marks a failure to reach the server at all.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "HTTP request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// requestNotSent reports whether err proves the request never reached the
// server: the connection could not be established.
func requestNotSent(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
