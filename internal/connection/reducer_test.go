package connection

import (
	"errors"
	"testing"
	"time"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/internal/wire"
	"github.com/stretchr/testify/require"
)

func newTestState() State {
	return NewState(DefaultRetryPolicy(), DefaultGracePeriod, DefaultKeepaliveInterval)
}

func effectsOf[T actor.Effect](effects []actor.Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func notifications(effects []actor.Effect) []NotificationKind {
	var kinds []NotificationKind
	for _, n := range effectsOf[effNotify](effects) {
		kinds = append(kinds, n.Notification.Kind)
	}
	return kinds
}

func openState(t *testing.T, id string) State {
	t.Helper()
	s, _ := actor.Steps(newTestState(), Reduce, cmdConnect{SessionID: id})
	s, _ = Reduce(s, evDialSucceeded{Gen: s.Gen})
	require.Equal(t, PhaseOpen, s.Phase)
	return s
}

func TestConnectDialsImmediatelyWhenNotFresh(t *testing.T) {
	t.Parallel()

	s, effects := Reduce(newTestState(), cmdConnect{SessionID: "1"})
	require.Equal(t, PhaseConnecting, s.Phase)
	require.Equal(t, WaitingDial, s.Waiting)
	require.EqualValues(t, 1, s.Gen)
	require.Equal(t, 1, s.Attempt)
	require.Equal(t, []effDial{{Gen: 1, SessionID: "1"}}, effectsOf[effDial](effects))
}

func TestConnectIsSingleFlight(t *testing.T) {
	t.Parallel()

	s, _ := Reduce(newTestState(), cmdConnect{SessionID: "1"})
	again, effects := Reduce(s, cmdConnect{SessionID: "1"})
	require.Empty(t, effects)
	require.Equal(t, s, again)

	open := openState(t, "1")
	again, effects = Reduce(open, cmdConnect{SessionID: "1", Fresh: true})
	require.Empty(t, effects)
	require.Equal(t, open, again)
}

func TestGracePeriodOnlyForFreshFirstAttempt(t *testing.T) {
	t.Parallel()

	s, effects := Reduce(newTestState(), cmdConnect{SessionID: "1", Fresh: true})
	require.Empty(t, effectsOf[effDial](effects))
	require.Equal(t, []effStartTimer{{Name: timerGrace, After: DefaultGracePeriod, Gen: 1}},
		effectsOf[effStartTimer](effects))
	require.Equal(t, 0, s.Attempt)

	s, effects = Reduce(s, evTimerFired{Name: timerGrace, Gen: s.Gen})
	require.Len(t, effectsOf[effDial](effects), 1)

	// The retry that follows waits only for backoff, never the grace period.
	s, effects = Reduce(s, evDialFailed{Gen: s.Gen, Err: &HandshakeError{StatusCode: 404}})
	timers := effectsOf[effStartTimer](effects)
	require.Equal(t, []effStartTimer{{Name: timerRetry, After: time.Second, Gen: s.Gen}}, timers)
}

func TestGraceDisabledDialsImmediately(t *testing.T) {
	t.Parallel()

	s := NewState(DefaultRetryPolicy(), 0, 0)
	_, effects := Reduce(s, cmdConnect{SessionID: "1", Fresh: true})
	require.Len(t, effectsOf[effDial](effects), 1)
}

func TestDisconnectIdempotent(t *testing.T) {
	t.Parallel()

	idle := newTestState()
	s, effects := Reduce(idle, cmdDisconnect{})
	require.Equal(t, idle, s)
	require.Empty(t, effects)

	open := openState(t, "1")
	closing, effects := Reduce(open, cmdDisconnect{})
	require.Equal(t, PhaseClosing, closing.Phase)
	require.Equal(t, open.Gen+1, closing.Gen)
	require.Equal(t, open.Gen, closing.ClosingGen)
	require.Equal(t, []effCloseConn{{Gen: open.Gen, Code: wire.CloseNormal, Reason: "client disconnect"}},
		effectsOf[effCloseConn](effects))
	require.Len(t, effectsOf[effCancelTimer](effects), 3)

	again, effects := Reduce(closing, cmdDisconnect{})
	require.Equal(t, closing, again)
	require.Empty(t, effects)

	idle2, effects := Reduce(closing, evClosed{Gen: open.Gen, Code: wire.CloseNormal})
	require.Equal(t, PhaseIdle, idle2.Phase)
	require.Equal(t, []NotificationKind{NotifyDisconnected}, notifications(effects))
}

func TestDisconnectWhileConnectingCancelsTimers(t *testing.T) {
	t.Parallel()

	s, _ := Reduce(newTestState(), cmdConnect{SessionID: "1", Fresh: true})
	s2, effects := Reduce(s, cmdDisconnect{})
	require.Equal(t, PhaseIdle, s2.Phase)
	require.Greater(t, s2.Gen, s.Gen)
	require.Len(t, effectsOf[effCancelTimer](effects), 3)

	// The grace timer from the abandoned chain is ignored.
	s3, effects := Reduce(s2, evTimerFired{Name: timerGrace, Gen: s.Gen})
	require.Equal(t, s2, s3)
	require.Empty(t, effects)
}

func TestRetryBudgetThenFailed(t *testing.T) {
	t.Parallel()

	notReady := &HandshakeError{StatusCode: 404}
	s, effects := Reduce(newTestState(), cmdConnect{SessionID: "9"})
	dials := len(effectsOf[effDial](effects))
	var delays []time.Duration

	for s.Phase == PhaseConnecting {
		s, effects = Reduce(s, evDialFailed{Gen: s.Gen, Err: notReady})
		for _, tm := range effectsOf[effStartTimer](effects) {
			delays = append(delays, tm.After)
			s, effects = Reduce(s, evTimerFired{Name: tm.Name, Gen: tm.Gen})
			dials += len(effectsOf[effDial](effects))
		}
	}

	require.Equal(t, 4, dials)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
	require.Equal(t, PhaseFailed, s.Phase)
	require.NotNil(t, s.LastError)
	require.True(t, s.LastError.Exhausted)
	require.Equal(t, 4, s.LastError.Attempts)
	require.Contains(t, s.LastError.Error(), "after 4 attempts")
	require.Equal(t, []NotificationKind{NotifyError, NotifyDisconnected}, notifications(effects))
}

func TestFatalHandshakeFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	s, _ := Reduce(newTestState(), cmdConnect{SessionID: "1"})
	s, effects := Reduce(s, evDialFailed{Gen: s.Gen, Err: &HandshakeError{StatusCode: 401}})
	require.Equal(t, PhaseFailed, s.Phase)
	require.False(t, s.LastError.Exhausted)
	require.Empty(t, effectsOf[effStartTimer](effects))
}

func TestStaleRetrySuppressed(t *testing.T) {
	t.Parallel()

	s, _ := Reduce(newTestState(), cmdConnect{SessionID: "A"})
	s, effects := Reduce(s, evDialFailed{Gen: s.Gen, Err: errors.New("connection refused")})
	retry := effectsOf[effStartTimer](effects)
	require.Len(t, retry, 1)

	s, _ = Reduce(s, cmdDisconnect{})
	s, _ = Reduce(s, cmdConnect{SessionID: "B"})
	require.Equal(t, "B", s.SessionID)

	// The retry armed for A fires late; nothing happens for either session.
	after, effects := Reduce(s, evTimerFired{Name: timerRetry, Gen: retry[0].Gen})
	require.Equal(t, s, after)
	require.Empty(t, effects)
}

func TestSwitchSessionTearsDownOld(t *testing.T) {
	t.Parallel()

	open := openState(t, "A")
	s, effects := Reduce(open, cmdConnect{SessionID: "B"})
	require.Equal(t, "B", s.SessionID)
	require.Equal(t, PhaseConnecting, s.Phase)
	require.Equal(t, open.Gen+1, s.Gen)
	require.Equal(t, []effCloseConn{{Gen: open.Gen, Code: wire.CloseNormal, Reason: "switching session"}},
		effectsOf[effCloseConn](effects))
	require.Equal(t, []effDial{{Gen: s.Gen, SessionID: "B"}}, effectsOf[effDial](effects))

	// A late handshake success from A is closed, not adopted.
	after, effects := Reduce(s, evDialSucceeded{Gen: open.Gen})
	require.Equal(t, s, after)
	require.Equal(t, []effCloseConn{{Gen: open.Gen, Code: wire.CloseNormal, Reason: "stale connection"}},
		effectsOf[effCloseConn](effects))

	// The close of A's socket does not disturb B.
	after, effects = Reduce(s, evClosed{Gen: open.Gen, Code: wire.CloseNormal})
	require.Equal(t, s, after)
	require.Empty(t, effects)
}

func TestMidSessionNotReadyCloseRetries(t *testing.T) {
	t.Parallel()

	open := openState(t, "1")
	s, effects := Reduce(open, evClosed{Gen: open.Gen, Code: wire.CloseSessionNotReady})
	require.Equal(t, PhaseConnecting, s.Phase)
	require.Equal(t, WaitingRetry, s.Waiting)
	require.Equal(t, 1, s.Retries)
	require.Equal(t, []NotificationKind{NotifyDisconnected, NotifyRetrying}, notifications(effects))

	s, effects = Reduce(s, evTimerFired{Name: timerRetry, Gen: s.Gen})
	require.Len(t, effectsOf[effDial](effects), 1)
	s, effects = Reduce(s, evDialSucceeded{Gen: s.Gen})
	require.Equal(t, PhaseOpen, s.Phase)
	require.Equal(t, []NotificationKind{NotifyConnected}, notifications(effects))

	// The budget is only restored once the new socket delivers a frame.
	require.Equal(t, 1, s.Retries)
	s, _ = Reduce(s, evInbound{Gen: s.Gen, Payload: []byte(`{"type":"system"}`)})
	require.True(t, s.Healthy)
	require.Zero(t, s.Retries)
	require.Zero(t, s.Attempt)
}

func TestNotReadyCloseAfterAcceptExhaustsBudget(t *testing.T) {
	t.Parallel()

	s, effects := Reduce(newTestState(), cmdConnect{SessionID: "9"})
	dials := len(effectsOf[effDial](effects))
	var delays []time.Duration

	for s.Phase == PhaseConnecting {
		s, _ = Reduce(s, evDialSucceeded{Gen: s.Gen})
		require.Equal(t, PhaseOpen, s.Phase)
		s, effects = Reduce(s, evClosed{Gen: s.Gen, Code: wire.CloseSessionNotReady, Reason: "Interview session not found"})
		for _, tm := range effectsOf[effStartTimer](effects) {
			delays = append(delays, tm.After)
			s, effects = Reduce(s, evTimerFired{Name: tm.Name, Gen: tm.Gen})
			dials += len(effectsOf[effDial](effects))
		}
	}

	require.Equal(t, 4, dials)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
	require.Equal(t, PhaseFailed, s.Phase)
	require.True(t, s.LastError.Exhausted)
	require.Equal(t, 4, s.LastError.Attempts)
	require.Contains(t, s.LastError.Reason, "close 4004")

	// Failed is terminal: a late timer or close changes nothing.
	after, effects := Reduce(s, evTimerFired{Name: timerRetry, Gen: s.Gen})
	require.Equal(t, s, after)
	require.Empty(t, effects)
}

func TestAbnormalCloseAfterAcceptCountsAgainstBudget(t *testing.T) {
	t.Parallel()

	s, _ := Reduce(newTestState(), cmdConnect{SessionID: "9"})
	for i := 1; i <= 3; i++ {
		s, _ = Reduce(s, evDialSucceeded{Gen: s.Gen})
		s, _ = Reduce(s, evClosed{Gen: s.Gen, Code: wire.CloseInternalError})
		require.Equal(t, i, s.Retries)
		s, _ = Reduce(s, evTimerFired{Name: timerRetry, Gen: s.Gen})
	}
	s, _ = Reduce(s, evDialSucceeded{Gen: s.Gen})
	s, _ = Reduce(s, evClosed{Gen: s.Gen, Code: wire.CloseInternalError})
	require.Equal(t, PhaseFailed, s.Phase)
}

func TestNormalCloseGoesIdle(t *testing.T) {
	t.Parallel()

	for _, code := range []int{wire.CloseNormal, wire.CloseGoingAway} {
		open := openState(t, "1")
		s, effects := Reduce(open, evClosed{Gen: open.Gen, Code: code})
		require.Equal(t, PhaseIdle, s.Phase)
		require.Empty(t, effectsOf[effStartTimer](effects))
		require.Equal(t, []NotificationKind{NotifyDisconnected}, notifications(effects))
	}
}

func TestKeepaliveSendsPing(t *testing.T) {
	t.Parallel()

	open := openState(t, "1")
	s, effects := Reduce(open, evTimerFired{Name: timerKeepalive, Gen: open.Gen})
	require.Equal(t, open, s)
	sends := effectsOf[effSend](effects)
	require.Len(t, sends, 1)
	require.JSONEq(t, `{"type":"ping"}`, string(sends[0].Payload))
	require.Equal(t, []effStartTimer{{Name: timerKeepalive, After: DefaultKeepaliveInterval, Gen: open.Gen}},
		effectsOf[effStartTimer](effects))
}

func TestSendRequiresOpen(t *testing.T) {
	t.Parallel()

	_, effects := Reduce(newTestState(), cmdSend{Payload: []byte("x")})
	require.Empty(t, effects)

	open := openState(t, "1")
	_, effects = Reduce(open, cmdSend{Payload: []byte("x")})
	require.Equal(t, []effSend{{Gen: open.Gen, Payload: []byte("x")}}, effectsOf[effSend](effects))
}

func TestInboundDroppedWhenStale(t *testing.T) {
	t.Parallel()

	open := openState(t, "1")
	_, effects := Reduce(open, evInbound{Gen: open.Gen - 1, Payload: []byte("{}")})
	require.Empty(t, effects)

	_, effects = Reduce(open, evInbound{Gen: open.Gen, Payload: []byte("{}")})
	require.Equal(t, []NotificationKind{NotifyMessage}, notifications(effects))
}

func TestRetryPolicyDelay(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
	require.Equal(t, 30*time.Second, p.Delay(10))
	require.True(t, p.Allow(2))
	require.False(t, p.Allow(3))
}

func TestClassifyDialError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		retryable bool
	}{
		{&HandshakeError{StatusCode: 404}, true},
		{&HandshakeError{StatusCode: 503}, true},
		{&HandshakeError{StatusCode: 403}, false},
		{&HandshakeError{StatusCode: 400}, false},
		{&CloseError{Code: wire.CloseSessionNotReady}, true},
		{&CloseError{Code: wire.CloseUnauthorized}, false},
		{errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		got, reason := classifyDialError(tt.err)
		require.Equal(t, tt.retryable, got, tt.err.Error())
		require.NotEmpty(t, reason)
	}
}
