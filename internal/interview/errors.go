package interview

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("interview controller closed")
	// ErrNoSession is returned by Retry when no session is loaded.
	ErrNoSession = errors.New("no interview session")
	// ErrSuperseded completes an Open that a later Open or Close replaced.
	ErrSuperseded = errors.New("open superseded")
)

// ValidationError rejects a user action that is not allowed in the current
// state. The same condition is published as a Notice.
type ValidationError struct {
	Op     string
	Code   NoticeCode
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}
