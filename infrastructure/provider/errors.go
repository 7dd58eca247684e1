// Package provider implements clients for the remote model services: the
// embedding endpoint and the chat-completion summarizer.
package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ProviderError wraps a failure from a remote model service.
type ProviderError struct {
	operation  string
	statusCode int
	message    string
	wrapped    error
}

// NewProviderError creates a ProviderError.
func NewProviderError(operation string, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		wrapped:    wrapped,
	}
}

// Error implements error.
func (e *ProviderError) Error() string {
	if e.statusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.operation, e.statusCode, e.message)
	}
	return fmt.Sprintf("%s: %s", e.operation, e.message)
}

// Unwrap returns the wrapped error.
func (e *ProviderError) Unwrap() error { return e.wrapped }

// StatusCode returns the HTTP status, 0 when the request never completed.
func (e *ProviderError) StatusCode() int { return e.statusCode }

// Operation returns the failing operation name.
func (e *ProviderError) Operation() string { return e.operation }

// retryableStatus reports whether an HTTP status signals a transient
// upstream condition.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isRetryable reports whether an error is worth retrying: transient HTTP
// statuses and network timeouts are, everything else is permanent.
func isRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.statusCode > 0 {
			return retryableStatus(provErr.statusCode)
		}
		// No status means the request never reached the service.
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
