package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by the error returned when a session does not exist
// or is not visible to the caller.
var ErrNotFound = errors.New("session not found")

// RepositoryError reports a failed backend call.
type RepositoryError struct {
	Op string
	// StatusCode is zero when no HTTP response was received.
	StatusCode int
	// Message is the backend's `detail`, or the raw body.
	Message string
	Err     error
}

func (e *RepositoryError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": failed"
	}
}

func (e *RepositoryError) Unwrap() error { return e.Err }
