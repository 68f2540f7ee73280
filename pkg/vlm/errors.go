package vlm

import (
	"errors"
	"fmt"
)

// ErrNoFrame means the query had no image to send.
var ErrNoFrame = errors.New("vlm: no frame available for query")

// APIError is a non-200 response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vlm api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("vlm api error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether the backend throttled the request.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsRetryable reports whether the request may be retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
