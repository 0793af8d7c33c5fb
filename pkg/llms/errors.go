package llms

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrExhausted is returned when every retry attempt failed.
var ErrExhausted = errors.New("all model call attempts failed")

// APIError is a non-2xx response from a provider.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error (status %d, type %q): %s", e.StatusCode, e.Type, e.Message)
}

// ErrorClass partitions failures for the retry policy.
type ErrorClass int

const (
	// ClassInvalid marks a request the provider will never accept.
	// Retrying is pointless.
	ClassInvalid ErrorClass = iota
	// ClassRateLimit marks throttling. Retry after backing off.
	ClassRateLimit
	// ClassTransient marks server-side or network failures. Retry.
	ClassTransient
)

// ClassifyError maps an error to its retry class. Unknown errors are
// treated as transient, matching how network-level failures surface.
func ClassifyError(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ClassRateLimit
		case apiErr.StatusCode >= 500:
			return ClassTransient
		default:
			return ClassInvalid
		}
	}
	return ClassTransient
}
