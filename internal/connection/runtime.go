package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/internal/wire"
	"github.com/gradcompass/interview/pkg/logger"
)

// Dialer opens the realtime channel for a session.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Conn, error)
}

// Conn is an open realtime channel. ReadMessage is only called from one
// reader goroutine and WriteMessage only from the manager loop; Close may be
// called concurrently with both.
type Conn interface {
	// ReadMessage blocks for the next text frame. A peer close is reported
	// as *CloseError.
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	Close(code int, reason string) error
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, sessionID string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, sessionID string) (Conn, error) {
	return f(ctx, sessionID)
}

// Runtime executes connection effects.
//
// Runtime never mutates State. Sockets are keyed by the generation they were
// dialed for so a late handshake from an abandoned chain can still be closed.
type Runtime struct {
	dialer           Dialer
	timers           *actor.Timers
	handshakeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	conns     map[int64]Conn
	listeners map[int]Listener
	nextID    int
	stopped   bool
}

// NewRuntime returns a Runtime dialing through dialer and scheduling on clock.
func NewRuntime(dialer Dialer, clock actor.Clock, handshakeTimeout time.Duration) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		dialer:           dialer,
		timers:           actor.NewTimers(clock),
		handshakeTimeout: handshakeTimeout,
		ctx:              ctx,
		cancel:           cancel,
		conns:            make(map[int64]Conn),
		listeners:        make(map[int]Listener),
	}
}

// AddListener registers l and returns a function removing it.
func (r *Runtime) AddListener(l Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effStartTimer:
			name, gen := e.Name, e.Gen
			r.timers.Start(name, e.After, func() {
				emit(evTimerFired{Name: name, Gen: gen})
			})
		case effCancelTimer:
			r.timers.Cancel(e.Name)
		case effDial:
			r.dial(e, emit)
		case effCloseConn:
			r.closeConn(e)
		case effSend:
			r.send(e)
		case effNotify:
			r.notify(e.Notification)
		default:
			// Unknown effect: ignore.
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	conns := r.conns
	r.conns = make(map[int64]Conn)
	r.mu.Unlock()

	r.cancel()
	r.timers.StopAll()
	for gen, conn := range conns {
		if err := conn.Close(wire.CloseGoingAway, "client shutting down"); err != nil {
			logger.Debugf("connection: close gen %d: %v", gen, err)
		}
	}
	r.wg.Wait()
}

func (r *Runtime) dial(eff effDial, emit func(actor.Input)) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		ctx := r.ctx
		if r.handshakeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.handshakeTimeout)
			defer cancel()
		}

		logger.Debugf("connection: dialing session %s (gen %d)", eff.SessionID, eff.Gen)
		conn, err := r.dialer.Dial(ctx, eff.SessionID)
		if err != nil {
			logger.Debugf("connection: dial session %s failed: %v", eff.SessionID, err)
			emit(evDialFailed{Gen: eff.Gen, Err: err})
			return
		}

		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			_ = conn.Close(wire.CloseGoingAway, "client shutting down")
			return
		}
		if prev := r.conns[eff.Gen]; prev != nil {
			_ = prev.Close(wire.CloseNormal, "replaced")
		}
		r.conns[eff.Gen] = conn
		r.wg.Add(1)
		r.mu.Unlock()

		emit(evDialSucceeded{Gen: eff.Gen})
		go r.read(eff.Gen, conn, emit)
	}()
}

func (r *Runtime) read(gen int64, conn Conn, emit func(actor.Input)) {
	defer r.wg.Done()
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			r.forget(gen, conn)
			ev := evClosed{Gen: gen, Err: err}
			var cerr *CloseError
			if errors.As(err, &cerr) {
				ev.Code = cerr.Code
				ev.Reason = cerr.Text
			}
			logger.Debugf("connection: reader gen %d exited: %v", gen, err)
			emit(ev)
			return
		}
		logger.Tracef("connection: <- %s", payload)
		emit(evInbound{Gen: gen, Payload: payload})
	}
}

func (r *Runtime) forget(gen int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[gen] == conn {
		delete(r.conns, gen)
	}
}

func (r *Runtime) closeConn(eff effCloseConn) {
	r.mu.Lock()
	conn := r.conns[eff.Gen]
	delete(r.conns, eff.Gen)
	r.mu.Unlock()
	if conn == nil {
		return
	}
	// The reader goroutine observes the close and reports evClosed.
	go func() {
		if err := conn.Close(eff.Code, eff.Reason); err != nil {
			logger.Debugf("connection: close gen %d: %v", eff.Gen, err)
		}
	}()
}

func (r *Runtime) send(eff effSend) {
	r.mu.Lock()
	conn := r.conns[eff.Gen]
	r.mu.Unlock()
	if conn == nil {
		logger.Debugf("connection: drop frame for gen %d: no socket", eff.Gen)
		return
	}
	logger.Tracef("connection: -> %s", eff.Payload)
	if err := conn.WriteMessage(eff.Payload); err != nil {
		// The reader will observe the broken socket and drive the retry path.
		logger.Warnf("connection: write failed: %v", err)
	}
}

func (r *Runtime) notify(n Notification) {
	r.mu.Lock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()
	for _, l := range listeners {
		l(n)
	}
}
