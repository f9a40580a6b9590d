package inference

import (
	"errors"
	"fmt"
)

// ErrInvalidResponse is returned when the backend answers with a body that is not a prediction
var ErrInvalidResponse = errors.New("inference: invalid response body")

// APIError represents a non-2xx answer from the inference backend.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the detail reported by the backend, or the raw body.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("inference: API error %d: %s", e.StatusCode, e.Message)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsBadRequest returns true if the backend rejected the upload (HTTP 400/415/422).
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == 400 || e.StatusCode == 415 || e.StatusCode == 422
}
