package holded

import (
	"errors"
	"fmt"
)

// ErrPageLimit is returned when the employee listing keeps returning full
// pages past the configured page cap.
var ErrPageLimit = errors.New("holded pagination did not terminate")

// ErrInvalidJSON is returned when Holded answers 2xx with a body that is not JSON.
var ErrInvalidJSON = errors.New("holded returned invalid JSON")

// ErrResponseTooLarge is returned when a Holded body exceeds the 10 MiB read cap.
// The body is dropped rather than forwarded cut short.
var ErrResponseTooLarge = errors.New("holded response exceeds size limit")

// StatusError is a non-2xx answer from Holded. Body is the raw response text.
type StatusError struct {
	StatusCode int
	Body       string
	// Page is the 1-based page that failed, or 0 outside pagination.
	Page int
}

func (e *StatusError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("holded responded %d on page %d", e.StatusCode, e.Page)
	}
	return fmt.Sprintf("holded responded %d", e.StatusCode)
}

// ShapeError means a listing page did not carry the expected record array.
type ShapeError struct {
	Field string
	Page  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("holded page %d has no %q array", e.Page, e.Field)
}
