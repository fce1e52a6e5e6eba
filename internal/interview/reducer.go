package interview

import (
	"context"
	"errors"
	"strings"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/internal/connection"
	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/transcript"
	"github.com/gradcompass/interview/internal/wire"
)

// Reduce is the session controller state machine.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdOpen:
		return reduceOpen(state, in.Ctx, in.SessionID, in.Reply)
	case cmdRetry:
		return reduceRetry(state, in)
	case cmdStartInterview:
		return reduceStartInterview(state, in)
	case cmdSendResponse:
		return reduceSendResponse(state, in)
	case cmdClose:
		return reduceClose(state, in)
	case evSessionLoaded:
		return reduceSessionLoaded(state, in)
	case evSessionFailed:
		return reduceSessionFailed(state, in)
	case evConnection:
		return reduceConnection(state, in)
	case evInbound:
		return reduceInbound(state, in)
	case evSendFailed:
		return state, []actor.Effect{publishNotice(NoticeSendFailed, "message not sent: "+in.Err.Error())}
	default:
		return state, nil
	}
}

func reduceOpen(state State, ctx context.Context, sessionID string, reply chan error) (State, []actor.Effect) {
	var effects []actor.Effect
	if state.Opening && state.OpenReply != nil {
		effects = append(effects, effReply{Reply: state.OpenReply, Err: ErrSuperseded})
	}

	state.OpenGen++
	state.Opening = true
	state.OpenReply = reply

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return state, append(effects, effCreateSession{Ctx: ctx, Gen: state.OpenGen, AgentType: state.AgentType})
	}
	return state, append(effects, effFetchSession{Ctx: ctx, Gen: state.OpenGen, ID: sessionID})
}

func reduceRetry(state State, cmd cmdRetry) (State, []actor.Effect) {
	if !state.Current.Active() {
		return state, []actor.Effect{effReply{Reply: cmd.Reply, Err: ErrNoSession}}
	}
	// A manual retry reconnects even though this session was already
	// attempted.
	state.LastConnectID = ""
	return reduceOpen(state, cmd.Ctx, state.Current.ID, cmd.Reply)
}

func reduceSessionLoaded(state State, ev evSessionLoaded) (State, []actor.Effect) {
	if ev.Gen != state.OpenGen || !state.Opening {
		return state, nil
	}
	reply := state.OpenReply
	state.Opening = false
	state.OpenReply = nil

	s := ev.Session
	state.Current = SessionInfo{
		ID:           s.ID,
		AgentType:    s.AgentType,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		CompletedAt:  s.CompletedAt,
		FinalOutcome: s.FinalOutcome,
		Fresh:        ev.Fresh,
	}

	var effects []actor.Effect
	if ev.Fresh {
		effects = append(effects, effClearTranscript{})
	} else {
		effects = append(effects, effReplaceTranscript{Entries: ev.History})
	}
	effects = append(effects,
		effRecordLocal{Session: state.Current, Opened: true},
		effPublish{Event: Event{Kind: EventSessionChanged, Session: state.Current}},
	)

	if !connectionOutstanding(state, s.ID) {
		state.LastConnectID = s.ID
		state.Conn = ConnectionInfo{SessionID: s.ID, Phase: connection.PhaseConnecting}
		effects = append(effects,
			effConnect{SessionID: s.ID, Fresh: ev.Fresh},
			effPublish{Event: Event{Kind: EventConnectionChanged, Connection: state.Conn}},
		)
	}
	if reply != nil {
		effects = append(effects, effReply{Reply: reply})
	}
	return state, effects
}

// connectionOutstanding reports whether a connect for id was issued and is
// still connecting or open. A failed or closed channel is not outstanding,
// so opening the same session again reconnects.
func connectionOutstanding(state State, id string) bool {
	if state.LastConnectID != id {
		return false
	}
	return state.Conn.SessionID != id || state.Conn.Phase.Active()
}

func reduceSessionFailed(state State, ev evSessionFailed) (State, []actor.Effect) {
	if ev.Gen != state.OpenGen || !state.Opening {
		return state, nil
	}
	reply := state.OpenReply
	state.Opening = false
	state.OpenReply = nil

	code := NoticeRepositoryFailed
	msg := "could not load interview session: " + ev.Err.Error()
	if errors.Is(ev.Err, repository.ErrNotFound) {
		code = NoticeSessionMissing
		msg = "interview session not found; start a new one"
	}
	effects := []actor.Effect{publishNotice(code, msg)}
	if reply != nil {
		effects = append(effects, effReply{Reply: reply, Err: ev.Err})
	}
	return state, effects
}

func reduceStartInterview(state State, cmd cmdStartInterview) (State, []actor.Effect) {
	if err := requireOpen(state, "start interview"); err != nil {
		return state, rejection(cmd.Reply, err)
	}
	return state, []actor.Effect{
		effSend{Payload: wire.StartInterview().MustEncode()},
		effReply{Reply: cmd.Reply},
	}
}

func reduceSendResponse(state State, cmd cmdSendResponse) (State, []actor.Effect) {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		err := &ValidationError{Op: "send response", Code: NoticeInvalidInput, Reason: "response is empty"}
		return state, rejection(cmd.Reply, err)
	}
	if err := requireOpen(state, "send response"); err != nil {
		return state, rejection(cmd.Reply, err)
	}

	entry := cmd.Entry
	entry.Kind = transcript.KindResponse
	entry.Content = text
	return state, []actor.Effect{
		effAppend{Entry: entry},
		effSend{Payload: wire.UserResponse(text).MustEncode()},
		effReply{Reply: cmd.Reply},
	}
}

func requireOpen(state State, op string) *ValidationError {
	if !state.Current.Active() {
		return &ValidationError{Op: op, Code: NoticeNotConnected, Reason: "no interview session is open"}
	}
	if state.Conn.Phase != connection.PhaseOpen || state.Conn.SessionID != state.Current.ID {
		return &ValidationError{Op: op, Code: NoticeNotConnected, Reason: "not connected to the interviewer"}
	}
	return nil
}

func rejection(reply chan error, err *ValidationError) []actor.Effect {
	return []actor.Effect{
		publishNotice(err.Code, err.Error()),
		effReply{Reply: reply, Err: err},
	}
}

func reduceClose(state State, cmd cmdClose) (State, []actor.Effect) {
	if !state.Current.Active() && !state.Opening && state.LastConnectID == "" {
		return state, []actor.Effect{effReply{Reply: cmd.Reply}}
	}

	var effects []actor.Effect
	if state.Opening && state.OpenReply != nil {
		effects = append(effects, effReply{Reply: state.OpenReply, Err: ErrSuperseded})
	}
	state.OpenGen++
	state.Opening = false
	state.OpenReply = nil
	state.Current = SessionInfo{}
	state.LastConnectID = ""
	state.Conn = ConnectionInfo{Phase: connection.PhaseIdle}

	effects = append(effects,
		effDisconnect{},
		effClearTranscript{},
		effPublish{Event: Event{Kind: EventSessionChanged}},
		effPublish{Event: Event{Kind: EventConnectionChanged, Connection: state.Conn}},
		effReply{Reply: cmd.Reply},
	)
	return state, effects
}

func reduceConnection(state State, ev evConnection) (State, []actor.Effect) {
	n := ev.Notification
	if !state.Current.Active() || n.SessionID != state.Current.ID {
		return state, nil
	}

	conn := state.Conn
	conn.SessionID = n.SessionID
	var effects []actor.Effect

	switch n.Kind {
	case connection.NotifyConnected:
		conn = ConnectionInfo{SessionID: n.SessionID, Phase: connection.PhaseOpen}
		state.Current.Fresh = false
	case connection.NotifyRetrying:
		conn.Phase = connection.PhaseConnecting
		conn.Retrying = true
		conn.Attempt = n.Attempt
	case connection.NotifyError:
		conn.Phase = connection.PhaseFailed
		conn.Retrying = false
		if n.Err != nil {
			conn.Error = n.Err.Error()
		}
		effects = append(effects, publishNotice(NoticeConnectionFailed, conn.Error))
	case connection.NotifyDisconnected:
		if conn.Phase == connection.PhaseFailed {
			return state, nil
		}
		if n.Retrying {
			conn.Phase = connection.PhaseConnecting
			conn.Retrying = true
		} else {
			conn.Phase = connection.PhaseIdle
			conn.Retrying = false
		}
	default:
		return state, nil
	}

	if conn == state.Conn {
		return state, effects
	}
	state.Conn = conn
	return state, append(effects, effPublish{Event: Event{Kind: EventConnectionChanged, Connection: conn}})
}

func reduceInbound(state State, ev evInbound) (State, []actor.Effect) {
	if !state.Current.Active() || ev.SessionID != state.Current.ID {
		return state, nil
	}

	entry := ev.Entry
	entry.Content = ev.Message.Content

	switch ev.Message.Type {
	case wire.TypeSystem:
		entry.Kind = transcript.KindSystem
		return state, []actor.Effect{effAppend{Entry: entry}}
	case wire.TypeQuestion:
		entry.Kind = transcript.KindQuestion
		return state, []actor.Effect{effAppend{Entry: entry}}
	case wire.TypeFinalDecision:
		entry.Kind = transcript.KindFinalDecision
		at := ev.At
		state.Current.Status = repository.StatusCompleted
		state.Current.FinalOutcome = ev.Message.Content
		state.Current.CompletedAt = &at
		return state, []actor.Effect{
			effAppend{Entry: entry},
			effRecordLocal{Session: state.Current},
			effPublish{Event: Event{Kind: EventSessionChanged, Session: state.Current}},
		}
	case wire.TypeError:
		msg := ev.Message.Content
		if msg == "" {
			msg = "the interviewer reported an error"
		}
		return state, []actor.Effect{publishNotice(NoticeServerError, msg)}
	default:
		return state, nil
	}
}

func publishNotice(code NoticeCode, msg string) effPublish {
	return effPublish{Event: Event{Kind: EventNotice, Notice: Notice{Code: code, Message: msg}}}
}
