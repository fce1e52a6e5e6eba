// Package connection manages the realtime channel for a single interview
// session: connect, grace period, retry with backoff, keepalive, disconnect.
//
// The state machine is a pure reducer (Reduce) driven by the generic actor
// loop; the Runtime owns sockets and timers and reports back as inputs.
package connection

import (
	"time"

	"github.com/gradcompass/interview/internal/actor"
)

// Phase is the lifecycle phase of the channel.
type Phase int

const (
	// PhaseIdle means no channel and no pending attempt.
	PhaseIdle Phase = iota
	// PhaseConnecting covers the grace wait, an in-flight handshake and the
	// backoff wait before a retry.
	PhaseConnecting
	// PhaseOpen means the handshake succeeded and frames flow.
	PhaseOpen
	// PhaseClosing means a client-initiated close is in progress.
	PhaseClosing
	// PhaseFailed is terminal until the next Connect or Disconnect.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseClosing:
		return "closing"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether the phase holds or is acquiring a channel.
func (p Phase) Active() bool {
	return p == PhaseConnecting || p == PhaseOpen
}

// Waiting names what a Connecting state is currently blocked on.
type Waiting string

const (
	WaitingNone  Waiting = ""
	WaitingGrace Waiting = "grace"
	WaitingDial  Waiting = "dial"
	WaitingRetry Waiting = "retry"
)

// State is the loop-owned connection state.
type State struct {
	SessionID string
	Phase     Phase

	// Gen increments on every new connect chain and on every disconnect.
	// Runtime events carry the generation they were produced for; anything
	// not matching Gen is stale and dropped.
	Gen int64

	// ClosingGen is the generation whose socket is being closed while
	// Phase is PhaseClosing.
	ClosingGen int64

	// Attempt counts handshakes started in the current chain.
	Attempt int
	// Retries counts retries scheduled in the current chain.
	Retries int
	// Healthy is set once the open socket delivers its first frame. Until
	// then a close counts against the chain's retry budget, since the
	// backend accepts the upgrade before refusing a session that is not
	// ready yet.
	Healthy bool

	// Fresh marks a session created moments ago; only the first handshake
	// of its chain waits for the grace period.
	Fresh   bool
	Waiting Waiting

	LastError *ConnectionError

	Policy    RetryPolicy
	Grace     time.Duration
	Keepalive time.Duration
}

// NotificationKind identifies a Notification.
type NotificationKind int

const (
	NotifyConnected NotificationKind = iota
	NotifyDisconnected
	NotifyRetrying
	NotifyMessage
	NotifyError
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyConnected:
		return "connected"
	case NotifyDisconnected:
		return "disconnected"
	case NotifyRetrying:
		return "retrying"
	case NotifyMessage:
		return "message"
	case NotifyError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is delivered to listeners on the manager's loop goroutine.
type Notification struct {
	Kind      NotificationKind
	SessionID string
	Gen       int64

	// Reason is set for Disconnected and Retrying.
	Reason string
	// Payload is the raw inbound frame for Message.
	Payload []byte
	// Err is set for Error.
	Err *ConnectionError

	// Retrying is set on Disconnected when an automatic retry follows.
	Retrying bool
	// Attempt and Delay describe a scheduled retry.
	Attempt int
	Delay   time.Duration
}

// Listener receives notifications. It runs on the manager loop and must not
// call back into the manager synchronously in a way that waits for it.
type Listener func(Notification)

// Inputs

type cmdConnect struct {
	actor.InputBase
	SessionID string
	Fresh     bool
}

type cmdDisconnect struct {
	actor.InputBase
}

type cmdSend struct {
	actor.InputBase
	Payload []byte
}

type evDialSucceeded struct {
	actor.InputBase
	Gen int64
}

type evDialFailed struct {
	actor.InputBase
	Gen int64
	Err error
}

type evClosed struct {
	actor.InputBase
	Gen    int64
	Code   int
	Reason string
	Err    error
}

type evTimerFired struct {
	actor.InputBase
	Name string
	Gen  int64
}

type evInbound struct {
	actor.InputBase
	Gen     int64
	Payload []byte
}

// Effects

type effStartTimer struct {
	actor.EffectBase
	Name  string
	After time.Duration
	Gen   int64
}

type effCancelTimer struct {
	actor.EffectBase
	Name string
}

type effDial struct {
	actor.EffectBase
	Gen       int64
	SessionID string
}

type effCloseConn struct {
	actor.EffectBase
	Gen    int64
	Code   int
	Reason string
}

type effSend struct {
	actor.EffectBase
	Gen     int64
	Payload []byte
}

type effNotify struct {
	actor.EffectBase
	Notification Notification
}
