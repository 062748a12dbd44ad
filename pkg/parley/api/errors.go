package api

import (
	"errors"
	"fmt"
)

// ErrNoMatch is returned by the lookup-by-name helpers when nothing matched.
var ErrNoMatch = errors.New("no match found")

// APIError is returned for any non-2xx response from the platform's REST API.
// Callers can distinguish it from transport-level failures with errors.As.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the API.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}
