package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/internal/wire"
)

const (
	timerGrace     = "grace"
	timerRetry     = "retry"
	timerKeepalive = "keepalive"
)

// NewState returns an idle state carrying the given tunables.
func NewState(policy RetryPolicy, grace, keepalive time.Duration) State {
	return State{Phase: PhaseIdle, Policy: policy, Grace: grace, Keepalive: keepalive}
}

// Reduce is the connection state machine.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdConnect:
		return reduceConnect(state, in)
	case cmdDisconnect:
		return reduceDisconnect(state)
	case cmdSend:
		return reduceSend(state, in)
	case evDialSucceeded:
		return reduceDialSucceeded(state, in)
	case evDialFailed:
		return reduceDialFailed(state, in)
	case evClosed:
		return reduceClosed(state, in)
	case evTimerFired:
		return reduceTimerFired(state, in)
	case evInbound:
		return reduceInbound(state, in)
	default:
		return state, nil
	}
}

func reduceConnect(state State, cmd cmdConnect) (State, []actor.Effect) {
	if cmd.SessionID == "" {
		return state, nil
	}
	if state.SessionID == cmd.SessionID && state.Phase.Active() {
		return state, nil
	}

	var effects []actor.Effect
	if state.Phase.Active() {
		effects = append(effects, teardown(state, "switching session")...)
	}

	state.Gen++
	state.SessionID = cmd.SessionID
	state.Phase = PhaseConnecting
	state.Fresh = cmd.Fresh
	state.Attempt = 0
	state.Retries = 0
	state.Healthy = false
	state.ClosingGen = 0
	state.LastError = nil

	if cmd.Fresh && state.Grace > 0 {
		state.Waiting = WaitingGrace
		effects = append(effects, effStartTimer{Name: timerGrace, After: state.Grace, Gen: state.Gen})
		return state, effects
	}
	state, dial := startHandshake(state)
	return state, append(effects, dial...)
}

// teardown cancels timers and closes the socket of the current chain.
func teardown(state State, reason string) []actor.Effect {
	effects := cancelTimers()
	if state.Phase == PhaseOpen {
		effects = append(effects, effCloseConn{Gen: state.Gen, Code: wire.CloseNormal, Reason: reason})
	}
	effects = append(effects, notify(state, Notification{Kind: NotifyDisconnected, Reason: reason}))
	return effects
}

func cancelTimers() []actor.Effect {
	return []actor.Effect{
		effCancelTimer{Name: timerGrace},
		effCancelTimer{Name: timerRetry},
		effCancelTimer{Name: timerKeepalive},
	}
}

func startHandshake(state State) (State, []actor.Effect) {
	state.Attempt++
	state.Waiting = WaitingDial
	return state, []actor.Effect{effDial{Gen: state.Gen, SessionID: state.SessionID}}
}

func reduceDisconnect(state State) (State, []actor.Effect) {
	switch state.Phase {
	case PhaseIdle, PhaseClosing:
		return state, nil
	case PhaseFailed:
		state.Phase = PhaseIdle
		state.Gen++
		state.Waiting = WaitingNone
		return state, nil
	case PhaseConnecting:
		effects := cancelTimers()
		effects = append(effects, notify(state, Notification{Kind: NotifyDisconnected, Reason: "disconnected"}))
		state.Gen++
		state.Phase = PhaseIdle
		state.Waiting = WaitingNone
		return state, effects
	case PhaseOpen:
		effects := cancelTimers()
		effects = append(effects, effCloseConn{Gen: state.Gen, Code: wire.CloseNormal, Reason: "client disconnect"})
		state.ClosingGen = state.Gen
		state.Gen++
		state.Phase = PhaseClosing
		state.Waiting = WaitingNone
		return state, effects
	default:
		return state, nil
	}
}

func reduceSend(state State, cmd cmdSend) (State, []actor.Effect) {
	if state.Phase != PhaseOpen || len(cmd.Payload) == 0 {
		return state, nil
	}
	return state, []actor.Effect{effSend{Gen: state.Gen, Payload: cmd.Payload}}
}

func reduceDialSucceeded(state State, ev evDialSucceeded) (State, []actor.Effect) {
	if ev.Gen != state.Gen || state.Phase != PhaseConnecting || state.Waiting != WaitingDial {
		// A handshake from an abandoned chain completed; close its socket.
		return state, []actor.Effect{effCloseConn{Gen: ev.Gen, Code: wire.CloseNormal, Reason: "stale connection"}}
	}
	state.Phase = PhaseOpen
	state.Waiting = WaitingNone
	state.Healthy = false
	state.Fresh = false
	state.LastError = nil

	effects := []actor.Effect{notify(state, Notification{Kind: NotifyConnected})}
	if state.Keepalive > 0 {
		effects = append(effects, effStartTimer{Name: timerKeepalive, After: state.Keepalive, Gen: state.Gen})
	}
	return state, effects
}

func reduceDialFailed(state State, ev evDialFailed) (State, []actor.Effect) {
	if ev.Gen != state.Gen || state.Phase != PhaseConnecting || state.Waiting != WaitingDial {
		return state, nil
	}
	retryable, reason := classifyDialError(ev.Err)
	return fail(state, reason, retryable)
}

func reduceClosed(state State, ev evClosed) (State, []actor.Effect) {
	if state.Phase == PhaseClosing && ev.Gen == state.ClosingGen {
		state.Phase = PhaseIdle
		state.ClosingGen = 0
		return state, []actor.Effect{notify(state, Notification{Kind: NotifyDisconnected, Reason: "closed by client"})}
	}
	if ev.Gen != state.Gen || state.Phase != PhaseOpen {
		return state, nil
	}

	reason := closeReason(ev.Code, ev.Reason, ev.Err)
	effects := []actor.Effect{effCancelTimer{Name: timerKeepalive}}

	switch wire.ClassifyClose(ev.Code) {
	case wire.CloseClassNormal:
		state.Phase = PhaseIdle
		state.Waiting = WaitingNone
		return state, append(effects, notify(state, Notification{Kind: NotifyDisconnected, Reason: reason}))
	case wire.CloseClassRetryable:
		next, more := fail(state, reason, true)
		return next, append(effects, more...)
	default:
		next, more := fail(state, reason, false)
		return next, append(effects, more...)
	}
}

// fail either schedules the next retry or moves the chain to Failed.
func fail(state State, reason string, retryable bool) (State, []actor.Effect) {
	wasOpen := state.Phase == PhaseOpen
	state.Healthy = false
	if retryable && state.Policy.Allow(state.Retries) {
		state.Retries++
		delay := state.Policy.Delay(state.Retries)
		state.Phase = PhaseConnecting
		state.Waiting = WaitingRetry

		var effects []actor.Effect
		if wasOpen {
			effects = append(effects, notify(state, Notification{Kind: NotifyDisconnected, Reason: reason, Retrying: true}))
		}
		effects = append(effects,
			notify(state, Notification{Kind: NotifyRetrying, Reason: reason, Attempt: state.Retries, Delay: delay}),
			effStartTimer{Name: timerRetry, After: delay, Gen: state.Gen},
		)
		return state, effects
	}

	attempts := state.Attempt
	if attempts == 0 {
		attempts = 1
	}
	cerr := &ConnectionError{
		SessionID: state.SessionID,
		Attempts:  attempts,
		Reason:    reason,
		Exhausted: retryable,
	}
	state.Phase = PhaseFailed
	state.Waiting = WaitingNone
	state.LastError = cerr
	return state, []actor.Effect{
		notify(state, Notification{Kind: NotifyError, Err: cerr}),
		notify(state, Notification{Kind: NotifyDisconnected, Reason: cerr.Error()}),
	}
}

func reduceTimerFired(state State, ev evTimerFired) (State, []actor.Effect) {
	if ev.Gen != state.Gen {
		return state, nil
	}
	switch ev.Name {
	case timerGrace:
		if state.Phase != PhaseConnecting || state.Waiting != WaitingGrace {
			return state, nil
		}
		return startHandshake(state)
	case timerRetry:
		if state.Phase != PhaseConnecting || state.Waiting != WaitingRetry {
			return state, nil
		}
		return startHandshake(state)
	case timerKeepalive:
		if state.Phase != PhaseOpen || state.Keepalive <= 0 {
			return state, nil
		}
		return state, []actor.Effect{
			effSend{Gen: state.Gen, Payload: wire.Ping().MustEncode()},
			effStartTimer{Name: timerKeepalive, After: state.Keepalive, Gen: state.Gen},
		}
	default:
		return state, nil
	}
}

func reduceInbound(state State, ev evInbound) (State, []actor.Effect) {
	if ev.Gen != state.Gen || state.Phase != PhaseOpen {
		return state, nil
	}
	if !state.Healthy {
		state.Healthy = true
		state.Attempt = 0
		state.Retries = 0
	}
	return state, []actor.Effect{notify(state, Notification{Kind: NotifyMessage, Payload: ev.Payload})}
}

func notify(state State, n Notification) effNotify {
	n.SessionID = state.SessionID
	n.Gen = state.Gen
	return effNotify{Notification: n}
}

// classifyDialError decides whether a failed handshake is worth retrying.
func classifyDialError(err error) (bool, string) {
	if err == nil {
		return true, "handshake failed"
	}

	var herr *HandshakeError
	if errors.As(err, &herr) {
		switch {
		case herr.StatusCode == http.StatusNotFound:
			return true, "session not ready (HTTP 404)"
		case herr.StatusCode == http.StatusUnauthorized || herr.StatusCode == http.StatusForbidden:
			return false, fmt.Sprintf("not authorized (HTTP %d)", herr.StatusCode)
		case herr.StatusCode >= 500:
			return true, fmt.Sprintf("server error (HTTP %d)", herr.StatusCode)
		default:
			return false, fmt.Sprintf("handshake rejected (HTTP %d)", herr.StatusCode)
		}
	}

	var cerr *CloseError
	if errors.As(err, &cerr) {
		return wire.ClassifyClose(cerr.Code) == wire.CloseClassRetryable, closeReason(cerr.Code, cerr.Text, nil)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "handshake timed out"
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true, nerr.Error()
	}
	return true, err.Error()
}

func closeReason(code int, text string, err error) string {
	switch {
	case code == wire.CloseSessionNotReady:
		if text == "" {
			text = "session not ready"
		}
		return fmt.Sprintf("%s (close %d)", text, code)
	case code != 0 && text != "":
		return fmt.Sprintf("%s (close %d)", text, code)
	case code != 0:
		return fmt.Sprintf("closed with code %d", code)
	case err != nil:
		return err.Error()
	default:
		return "connection lost"
	}
}
