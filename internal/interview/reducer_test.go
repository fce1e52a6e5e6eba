package interview

import (
	"errors"
	"testing"
	"time"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/internal/connection"
	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/transcript"
	"github.com/gradcompass/interview/internal/wire"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func effectsOf[T actor.Effect](effects []actor.Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func noticeCodes(effects []actor.Effect) []NoticeCode {
	var codes []NoticeCode
	for _, p := range effectsOf[effPublish](effects) {
		if p.Event.Kind == EventNotice {
			codes = append(codes, p.Event.Notice.Code)
		}
	}
	return codes
}

func replyErrs(effects []actor.Effect) []error {
	var errs []error
	for _, r := range effectsOf[effReply](effects) {
		errs = append(errs, r.Err)
	}
	return errs
}

func initialState() State {
	return State{AgentType: repository.DefaultAgentType, Conn: ConnectionInfo{Phase: connection.PhaseIdle}}
}

func loadedState(t *testing.T, id string, fresh bool) State {
	t.Helper()
	s, _ := Reduce(initialState(), cmdOpen{SessionID: id, Reply: make(chan error, 1)})
	s, _ = Reduce(s, evSessionLoaded{Gen: s.OpenGen, Fresh: fresh, Session: repository.Session{ID: id, Status: repository.StatusInProgress}})
	require.Equal(t, id, s.Current.ID)
	return s
}

func openState(t *testing.T, id string) State {
	t.Helper()
	s := loadedState(t, id, false)
	s, _ = Reduce(s, evConnection{Notification: connection.Notification{Kind: connection.NotifyConnected, SessionID: id}})
	require.Equal(t, connection.PhaseOpen, s.Conn.Phase)
	return s
}

func TestOpenWithoutIDCreatesSession(t *testing.T) {
	t.Parallel()

	s, effects := Reduce(initialState(), cmdOpen{Reply: make(chan error, 1)})
	require.True(t, s.Opening)
	require.EqualValues(t, 1, s.OpenGen)
	creates := effectsOf[effCreateSession](effects)
	require.Len(t, creates, 1)
	require.Equal(t, repository.DefaultAgentType, creates[0].AgentType)
	require.Empty(t, effectsOf[effFetchSession](effects))
}

func TestOpenWithIDFetchesSession(t *testing.T) {
	t.Parallel()

	_, effects := Reduce(initialState(), cmdOpen{SessionID: " 42 ", Reply: make(chan error, 1)})
	fetches := effectsOf[effFetchSession](effects)
	require.Len(t, fetches, 1)
	require.Equal(t, "42", fetches[0].ID)
}

func TestFreshSessionClearsTranscriptAndConnects(t *testing.T) {
	t.Parallel()

	reply := make(chan error, 1)
	s, _ := Reduce(initialState(), cmdOpen{Reply: reply})
	s, effects := Reduce(s, evSessionLoaded{Gen: s.OpenGen, Fresh: true, Session: repository.Session{ID: "7", AgentType: "visa_assistant"}})

	require.False(t, s.Opening)
	require.True(t, s.Current.Fresh)
	require.Len(t, effectsOf[effClearTranscript](effects), 1)
	require.Empty(t, effectsOf[effReplaceTranscript](effects))
	require.Equal(t, []effConnect{{SessionID: "7", Fresh: true}}, effectsOf[effConnect](effects))
	require.Equal(t, connection.PhaseConnecting, s.Conn.Phase)
	require.Equal(t, []error{nil}, replyErrs(effects))

	records := effectsOf[effRecordLocal](effects)
	require.Len(t, records, 1)
	require.True(t, records[0].Opened)
}

func TestResumedSessionReplacesTranscript(t *testing.T) {
	t.Parallel()

	history := []transcript.Entry{
		transcript.NewEntry(transcript.KindQuestion, "Why this school?", epoch),
		transcript.NewEntry(transcript.KindResponse, "Research fit.", epoch.Add(time.Minute)),
	}
	s, _ := Reduce(initialState(), cmdOpen{SessionID: "9", Reply: make(chan error, 1)})
	s, effects := Reduce(s, evSessionLoaded{Gen: s.OpenGen, Session: repository.Session{ID: "9"}, History: history})

	require.False(t, s.Current.Fresh)
	replaced := effectsOf[effReplaceTranscript](effects)
	require.Len(t, replaced, 1)
	require.Equal(t, history, replaced[0].Entries)
	require.Equal(t, []effConnect{{SessionID: "9"}}, effectsOf[effConnect](effects))
}

func TestConnectIssuedOncePerSession(t *testing.T) {
	t.Parallel()

	s := loadedState(t, "9", false)
	s, _ = Reduce(s, cmdOpen{SessionID: "9", Reply: make(chan error, 1)})
	_, effects := Reduce(s, evSessionLoaded{Gen: s.OpenGen, Session: repository.Session{ID: "9"}})
	require.Empty(t, effectsOf[effConnect](effects))
	require.Len(t, effectsOf[effReplaceTranscript](effects), 1)
}

func TestReopenReconnectsWhenChannelIsDown(t *testing.T) {
	t.Parallel()

	down := []connection.Notification{
		{Kind: connection.NotifyError, SessionID: "9", Err: &connection.ConnectionError{SessionID: "9", Reason: "rejected"}},
		{Kind: connection.NotifyDisconnected, SessionID: "9", Reason: "closed"},
	}
	for _, n := range down {
		s := loadedState(t, "9", false)
		s, _ = Reduce(s, evConnection{Notification: n})
		require.False(t, s.Conn.Phase.Active(), n.Kind.String())

		s, _ = Reduce(s, cmdOpen{SessionID: "9", Reply: make(chan error, 1)})
		s, effects := Reduce(s, evSessionLoaded{Gen: s.OpenGen, Session: repository.Session{ID: "9"}})
		require.Equal(t, []effConnect{{SessionID: "9"}}, effectsOf[effConnect](effects), n.Kind.String())
		require.Equal(t, connection.PhaseConnecting, s.Conn.Phase)
	}
}

func TestRetryReconnectsSameSession(t *testing.T) {
	t.Parallel()

	s := loadedState(t, "9", false)
	s, effects := Reduce(s, cmdRetry{Reply: make(chan error, 1)})
	require.Equal(t, []effFetchSession{{Gen: s.OpenGen, ID: "9"}}, effectsOf[effFetchSession](effects))

	_, effects = Reduce(s, evSessionLoaded{Gen: s.OpenGen, Session: repository.Session{ID: "9"}})
	require.Equal(t, []effConnect{{SessionID: "9"}}, effectsOf[effConnect](effects))
}

func TestRetryWithoutSession(t *testing.T) {
	t.Parallel()

	_, effects := Reduce(initialState(), cmdRetry{Reply: make(chan error, 1)})
	require.Equal(t, []error{ErrNoSession}, replyErrs(effects))
}

func TestStaleRepositoryResultIsDropped(t *testing.T) {
	t.Parallel()

	s, _ := Reduce(initialState(), cmdOpen{SessionID: "1", Reply: make(chan error, 1)})
	staleGen := s.OpenGen
	s, effects := Reduce(s, cmdOpen{SessionID: "2", Reply: make(chan error, 1)})
	require.Equal(t, []error{ErrSuperseded}, replyErrs(effects))

	s, effects = Reduce(s, evSessionLoaded{Gen: s.OpenGen, Session: repository.Session{ID: "2"}})
	require.Equal(t, []effConnect{{SessionID: "2"}}, effectsOf[effConnect](effects))

	s, effects = Reduce(s, evSessionLoaded{Gen: staleGen, Session: repository.Session{ID: "1"}})
	require.Empty(t, effects)
	require.Equal(t, "2", s.Current.ID)
}

func TestSessionNotFoundPublishesNotice(t *testing.T) {
	t.Parallel()

	s, _ := Reduce(initialState(), cmdOpen{SessionID: "404", Reply: make(chan error, 1)})
	notFound := &repository.RepositoryError{Op: "fetch session", StatusCode: 404, Err: repository.ErrNotFound}
	s, effects := Reduce(s, evSessionFailed{Gen: s.OpenGen, Err: notFound})

	require.False(t, s.Opening)
	require.False(t, s.Current.Active())
	require.Equal(t, []NoticeCode{NoticeSessionMissing}, noticeCodes(effects))
	require.Empty(t, effectsOf[effConnect](effects))
	require.Equal(t, []error{notFound}, replyErrs(effects))
}

func TestRepositoryFailurePublishesNotice(t *testing.T) {
	t.Parallel()

	s, _ := Reduce(initialState(), cmdOpen{Reply: make(chan error, 1)})
	_, effects := Reduce(s, evSessionFailed{Gen: s.OpenGen, Err: errors.New("boom")})
	require.Equal(t, []NoticeCode{NoticeRepositoryFailed}, noticeCodes(effects))
}

func TestSendResponseValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		state State
		text  string
		code  NoticeCode
	}{
		{name: "blank", state: openState(t, "1"), text: "   ", code: NoticeInvalidInput},
		{name: "no session", state: initialState(), text: "hi", code: NoticeNotConnected},
		{name: "connecting", state: loadedState(t, "1", false), text: "hi", code: NoticeNotConnected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, effects := Reduce(tc.state, cmdSendResponse{Text: tc.text, Reply: make(chan error, 1)})
			require.Empty(t, effectsOf[effSend](effects))
			require.Empty(t, effectsOf[effAppend](effects))
			require.Equal(t, []NoticeCode{tc.code}, noticeCodes(effects))

			errs := replyErrs(effects)
			require.Len(t, errs, 1)
			var verr *ValidationError
			require.ErrorAs(t, errs[0], &verr)
			require.Equal(t, tc.code, verr.Code)
		})
	}
}

func TestSendResponseAppendsThenSends(t *testing.T) {
	t.Parallel()

	s := openState(t, "1")
	entry := transcript.NewEntry(transcript.KindResponse, "  I study physics ", epoch)
	_, effects := Reduce(s, cmdSendResponse{Text: entry.Content, Entry: entry, Reply: make(chan error, 1)})

	require.Len(t, effects, 3)
	appended, ok := effects[0].(effAppend)
	require.True(t, ok)
	require.Equal(t, "I study physics", appended.Entry.Content)
	require.Equal(t, transcript.KindResponse, appended.Entry.Kind)
	require.Equal(t, entry.ID, appended.Entry.ID)

	sent, ok := effects[1].(effSend)
	require.True(t, ok)
	require.JSONEq(t, `{"type":"user_response","content":"I study physics"}`, string(sent.Payload))
	require.Equal(t, []error{nil}, replyErrs(effects))
}

func TestStartInterviewSendsFrame(t *testing.T) {
	t.Parallel()

	_, effects := Reduce(openState(t, "1"), cmdStartInterview{Reply: make(chan error, 1)})
	sends := effectsOf[effSend](effects)
	require.Len(t, sends, 1)
	require.JSONEq(t, `{"type":"start_interview"}`, string(sends[0].Payload))

	_, effects = Reduce(loadedState(t, "1", true), cmdStartInterview{Reply: make(chan error, 1)})
	require.Empty(t, effectsOf[effSend](effects))
}

func TestInboundFramesBecomeEntries(t *testing.T) {
	t.Parallel()

	s := openState(t, "1")
	inbound := func(typ wire.MessageType, content string) evInbound {
		return evInbound{
			SessionID: "1",
			Message:   wire.Message{Type: typ, Content: content},
			At:        epoch,
			Entry:     transcript.NewEntry(transcript.KindSystem, content, epoch),
		}
	}

	_, effects := Reduce(s, inbound(wire.TypeSystem, "Welcome"))
	require.Equal(t, transcript.KindSystem, effectsOf[effAppend](effects)[0].Entry.Kind)

	_, effects = Reduce(s, inbound(wire.TypeQuestion, "Why?"))
	require.Equal(t, transcript.KindQuestion, effectsOf[effAppend](effects)[0].Entry.Kind)

	_, effects = Reduce(s, inbound(wire.TypeError, "model unavailable"))
	require.Empty(t, effectsOf[effAppend](effects))
	require.Equal(t, []NoticeCode{NoticeServerError}, noticeCodes(effects))

	_, effects = Reduce(s, inbound(wire.TypePong, ""))
	require.Empty(t, effects)

	other := inbound(wire.TypeQuestion, "stale")
	other.SessionID = "2"
	_, effects = Reduce(s, other)
	require.Empty(t, effects)
}

func TestFinalDecisionCompletesSession(t *testing.T) {
	t.Parallel()

	s := openState(t, "1")
	s, effects := Reduce(s, evInbound{
		SessionID: "1",
		Message:   wire.Message{Type: wire.TypeFinalDecision, Content: "Approved"},
		At:        epoch,
		Entry:     transcript.NewEntry(transcript.KindSystem, "Approved", epoch),
	})

	require.Equal(t, repository.StatusCompleted, s.Current.Status)
	require.Equal(t, "Approved", s.Current.FinalOutcome)
	require.NotNil(t, s.Current.CompletedAt)
	require.Equal(t, epoch, *s.Current.CompletedAt)
	require.Equal(t, transcript.KindFinalDecision, effectsOf[effAppend](effects)[0].Entry.Kind)
	require.Len(t, effectsOf[effRecordLocal](effects), 1)
}

func TestConnectionNotificationsUpdateStatus(t *testing.T) {
	t.Parallel()

	s := openState(t, "1")
	s, effects := Reduce(s, evConnection{Notification: connection.Notification{
		Kind: connection.NotifyDisconnected, SessionID: "1", Retrying: true,
	}})
	require.Equal(t, connection.PhaseConnecting, s.Conn.Phase)
	require.True(t, s.Conn.Retrying)
	require.Len(t, effectsOf[effPublish](effects), 1)

	s, _ = Reduce(s, evConnection{Notification: connection.Notification{
		Kind: connection.NotifyRetrying, SessionID: "1", Attempt: 2,
	}})
	require.Equal(t, 2, s.Conn.Attempt)

	failure := &connection.ConnectionError{SessionID: "1", Attempts: 4, Reason: "session not ready", Exhausted: true}
	s, effects = Reduce(s, evConnection{Notification: connection.Notification{
		Kind: connection.NotifyError, SessionID: "1", Err: failure,
	}})
	require.Equal(t, connection.PhaseFailed, s.Conn.Phase)
	require.Equal(t, []NoticeCode{NoticeConnectionFailed}, noticeCodes(effects))

	// The trailing disconnect keeps the failure visible.
	s, effects = Reduce(s, evConnection{Notification: connection.Notification{
		Kind: connection.NotifyDisconnected, SessionID: "1",
	}})
	require.Equal(t, connection.PhaseFailed, s.Conn.Phase)
	require.Empty(t, effects)
}

func TestCloseResetsAndIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openState(t, "1")
	s, effects := Reduce(s, cmdClose{Reply: make(chan error, 1)})
	require.False(t, s.Current.Active())
	require.Equal(t, connection.PhaseIdle, s.Conn.Phase)
	require.Len(t, effectsOf[effDisconnect](effects), 1)
	require.Len(t, effectsOf[effClearTranscript](effects), 1)

	_, effects = Reduce(s, cmdClose{Reply: make(chan error, 1)})
	require.Equal(t, []error{nil}, replyErrs(effects))
	require.Empty(t, effectsOf[effDisconnect](effects))
}

func TestHistoryEntriesSynthesizesDecision(t *testing.T) {
	t.Parallel()

	done := epoch.Add(time.Hour)
	s := repository.Session{
		ID:           "1",
		Status:       repository.StatusCompleted,
		FinalOutcome: "Rejected",
		CompletedAt:  &done,
		Messages: []repository.Message{
			{Type: "question", Content: "Why?", Timestamp: epoch},
			{Type: "response", Content: "Because.", Timestamp: epoch.Add(time.Minute)},
			{Type: "mystery", Content: "??"},
		},
	}
	entries := historyEntries(s, epoch.Add(2*time.Hour))
	require.Len(t, entries, 4)
	require.Equal(t, transcript.KindQuestion, entries[0].Kind)
	require.Equal(t, transcript.KindResponse, entries[1].Kind)
	require.Equal(t, transcript.KindSystem, entries[2].Kind)
	require.Equal(t, epoch.Add(2*time.Hour), entries[2].CreatedAt)
	require.Equal(t, transcript.KindFinalDecision, entries[3].Kind)
	require.Equal(t, "Rejected", entries[3].Content)
	require.Equal(t, done, entries[3].CreatedAt)

	s.Messages = append(s.Messages, repository.Message{Type: "final_decision", Content: "Rejected", Timestamp: done})
	require.Len(t, historyEntries(s, epoch), 4)
}
