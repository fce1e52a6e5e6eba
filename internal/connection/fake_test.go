package connection

import (
	"context"
	"errors"
	"sync"
)

// fakeConn is an in-memory Conn. The test plays the server through push and
// serverClose.
type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}

	mu        sync.Mutex
	writes    [][]byte
	closeCode int
	peerClose *CloseError
	once      sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.peerClose != nil {
			return nil, c.peerClose
		}
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	c.writes = append(c.writes, append([]byte(nil), payload...))
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	if c.closeCode == 0 {
		c.closeCode = code
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(msg string) { c.inbound <- []byte(msg) }

func (c *fakeConn) serverClose(code int, text string) {
	c.mu.Lock()
	c.peerClose = &CloseError{Code: code, Text: text}
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// fakeDialer records every handshake. next decides the outcome of each one;
// when nil every dial succeeds with a fresh fakeConn.
type fakeDialer struct {
	mu    sync.Mutex
	calls []string
	conns []*fakeConn
	next  func(n int, sessionID string) error
	// block, when set, holds each handshake until released.
	block chan struct{}
	// accepted, when set, sees each conn before the handshake reports
	// success, so a test can play a server that accepts and then closes.
	accepted func(n int, c *fakeConn)
}

func (d *fakeDialer) Dial(ctx context.Context, sessionID string) (Conn, error) {
	d.mu.Lock()
	d.calls = append(d.calls, sessionID)
	n := len(d.calls)
	next, block, accepted := d.next, d.block, d.accepted
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if next != nil {
		if err := next(n, sessionID); err != nil {
			return nil, err
		}
	}
	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	if accepted != nil {
		accepted(n, conn)
	}
	return conn, nil
}

func (d *fakeDialer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// recorder collects notifications.
type recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recorder) listen(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recorder) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, len(r.items))
	for i, n := range r.items {
		out[i] = n.Kind
	}
	return out
}

func (r *recorder) count(kind NotificationKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind NotificationKind) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].Kind == kind {
			return r.items[i], true
		}
	}
	return Notification{}, false
}
