package connection

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned by Send when the channel is not open.
	ErrNotOpen = errors.New("connection not open")
	// ErrClosed is returned after the manager has been closed.
	ErrClosed = errors.New("connection manager closed")
	// ErrBusy is returned when the manager mailbox is full.
	ErrBusy = errors.New("connection manager busy")
)

// ConnectionError is the terminal failure recorded when a channel cannot be
// established or kept open.
type ConnectionError struct {
	SessionID string
	// Attempts is the number of handshakes made in the failed chain.
	Attempts int
	// Reason is the last underlying cause, human readable.
	Reason string
	// Exhausted is set when the retry budget ran out; otherwise the cause was
	// not retryable.
	Exhausted bool
}

func (e *ConnectionError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("could not connect to interview session %s after %d attempts: %s",
			e.SessionID, e.Attempts, e.Reason)
	}
	return fmt.Sprintf("connection to interview session %s failed: %s", e.SessionID, e.Reason)
}

// CloseError is returned by Conn.ReadMessage when the peer closed the channel
// with a close frame.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("closed with code %d", e.Code)
	}
	return fmt.Sprintf("closed with code %d: %s", e.Code, e.Text)
}

// HandshakeError is returned by a Dialer when the server answered the
// upgrade request with a non-101 status.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed with HTTP %d", e.StatusCode)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
