package connection

import (
	"time"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/pkg/logger"
)

// Default tunables.
const (
	DefaultGracePeriod       = 1500 * time.Millisecond
	DefaultKeepaliveInterval = 4 * time.Minute
	DefaultHandshakeTimeout  = 10 * time.Second
)

// Config configures a Manager. Zero durations and a zero RetryPolicy take
// the defaults; a negative GracePeriod or KeepaliveInterval disables it.
type Config struct {
	Dialer            Dialer
	Clock             actor.Clock
	Retry             RetryPolicy
	GracePeriod       time.Duration
	KeepaliveInterval time.Duration
	HandshakeTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = actor.RealClock{}
	}
	if c.Retry == (RetryPolicy{}) {
		c.Retry = DefaultRetryPolicy()
	}
	switch {
	case c.GracePeriod == 0:
		c.GracePeriod = DefaultGracePeriod
	case c.GracePeriod < 0:
		c.GracePeriod = 0
	}
	switch {
	case c.KeepaliveInterval == 0:
		c.KeepaliveInterval = DefaultKeepaliveInterval
	case c.KeepaliveInterval < 0:
		c.KeepaliveInterval = 0
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}

// Manager is the public handle to the connection actor. All methods enqueue
// and return without waiting on network I/O.
type Manager struct {
	actor   *actor.Actor[State]
	runtime *Runtime
}

// NewManager starts a connection actor.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	rt := NewRuntime(cfg.Dialer, cfg.Clock, cfg.HandshakeTimeout)
	initial := NewState(cfg.Retry, cfg.GracePeriod, cfg.KeepaliveInterval)

	hooks := actor.Hooks[State]{
		OnTransition: func(prev, next State, _ actor.Input) {
			if prev.Phase != next.Phase || prev.SessionID != next.SessionID {
				logger.Debugf("connection: %s -> %s (session %s, gen %d)",
					prev.Phase, next.Phase, next.SessionID, next.Gen)
			}
		},
	}
	a := actor.New(initial, Reduce, rt, actor.WithHooks(hooks))
	a.Start()
	return &Manager{actor: a, runtime: rt}
}

// AddListener registers l for notifications and returns a function that
// removes it.
func (m *Manager) AddListener(l Listener) func() {
	return m.runtime.AddListener(l)
}

// Connect opens the channel for sessionID. It is a no-op if that session is
// already connecting or open. fresh asks for the grace period before the
// first handshake.
func (m *Manager) Connect(sessionID string, fresh bool) error {
	return m.enqueue(cmdConnect{SessionID: sessionID, Fresh: fresh})
}

// Disconnect tears down the channel and cancels pending timers. It is always
// permitted and idempotent.
func (m *Manager) Disconnect() error {
	return m.enqueue(cmdDisconnect{})
}

// Send queues payload for the open channel. It returns ErrNotOpen if the
// channel is not open at call time; write failures are logged and surface as
// a disconnect.
func (m *Manager) Send(payload []byte) error {
	if m.Snapshot().Phase != PhaseOpen {
		return ErrNotOpen
	}
	return m.enqueue(cmdSend{Payload: payload})
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	return m.actor.State()
}

// Close stops the actor, closes any socket and cancels all timers.
func (m *Manager) Close() {
	m.actor.Stop()
	<-m.actor.Done()
}

func (m *Manager) enqueue(in actor.Input) error {
	select {
	case <-m.actor.Done():
		return ErrClosed
	default:
	}
	if !m.actor.Enqueue(in) {
		select {
		case <-m.actor.Done():
			return ErrClosed
		default:
			return ErrBusy
		}
	}
	return nil
}
