package forge

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound indicates the forge no longer has the requested entity.
// Callers treat it as "deleted upstream".
var ErrNotFound = errors.New("not found on forge")

// PermanentError wraps a 4xx response other than 404. It is never retried:
// a poisoned payload or revoked credential does not heal with backoff.
type PermanentError struct {
	StatusCode int
	Message    string
}

// Error implements error.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent forge error: status %d: %s", e.StatusCode, e.Message)
}

// statusError converts an HTTP status into the forge error taxonomy:
// 404 → ErrNotFound, other 4xx → PermanentError, 5xx and 429 → a plain
// error that IsRetryable recognizes.
func statusError(statusCode int, message string) error {
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("forge rate limited: %s", message)
	case statusCode >= 400 && statusCode < 500:
		return &PermanentError{StatusCode: statusCode, Message: message}
	default:
		return fmt.Errorf("forge error: status %d: %s", statusCode, message)
	}
}

// IsRetryable reports whether a forge error is transient. Permanent errors
// and not-found are final; everything else (5xx, 429, network failures,
// timeouts, canceled requests) is worth retrying with backoff. HTTP client
// timeouts wrap context.DeadlineExceeded, so deadline errors must stay
// retryable or a single slow request would be classified permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return false
	}
	return true
}
