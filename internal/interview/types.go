// Package interview is the session controller: it opens (creates or
// resumes) an interview session, drives the connection manager, and turns
// realtime frames into transcript entries and view events.
package interview

import (
	"context"
	"time"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/internal/connection"
	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/transcript"
	"github.com/gradcompass/interview/internal/wire"
)

// Repository is the subset of the REST client the controller needs.
type Repository interface {
	CreateSession(ctx context.Context, agentType string) (repository.Session, error)
	FetchSession(ctx context.Context, id string) (repository.Session, error)
}

// Connection is the subset of the connection manager the controller needs.
type Connection interface {
	Connect(sessionID string, fresh bool) error
	Disconnect() error
	Send(payload []byte) error
	AddListener(l connection.Listener) func()
}

// SessionInfo is the controller's view of the current session. The zero
// value (empty ID) means no session.
type SessionInfo struct {
	ID           string
	AgentType    string
	Status       repository.Status
	CreatedAt    time.Time
	CompletedAt  *time.Time
	FinalOutcome string
	// Fresh is set for a session created by this client moments ago. It is
	// never persisted.
	Fresh bool
}

// Active reports whether a session is loaded.
func (s SessionInfo) Active() bool { return s.ID != "" }

// ConnectionInfo is the controller's view of the realtime channel.
type ConnectionInfo struct {
	SessionID string
	Phase     connection.Phase
	Retrying  bool
	// Attempt is the retry number while Retrying.
	Attempt int
	// Error is the terminal failure, if any.
	Error string
}

// State is the loop-owned controller state.
type State struct {
	Current SessionInfo

	// OpenGen increments on every Open, Retry and Close. Repository results
	// carry the generation they were requested for.
	OpenGen int64
	Opening bool
	// OpenReply completes the Open call waiting on OpenGen.
	OpenReply chan error

	// LastConnectID guards Connect to once per adopted session.
	LastConnectID string

	Conn ConnectionInfo

	AgentType string
}

// EventKind identifies an Event.
type EventKind string

const (
	EventNotice            EventKind = "notice"
	EventSessionChanged    EventKind = "session_changed"
	EventConnectionChanged EventKind = "connection_changed"
)

// NoticeCode classifies a user-facing notice.
type NoticeCode string

const (
	NoticeSessionMissing   NoticeCode = "session_missing"
	NoticeRepositoryFailed NoticeCode = "repository_failed"
	NoticeNotConnected     NoticeCode = "not_connected"
	NoticeInvalidInput     NoticeCode = "invalid_input"
	NoticeServerError      NoticeCode = "server_error"
	NoticeConnectionFailed NoticeCode = "connection_failed"
	NoticeSendFailed       NoticeCode = "send_failed"
)

// Notice is a transient user-facing message.
type Notice struct {
	Code    NoticeCode
	Message string
}

// Event is published to view subscribers.
type Event struct {
	Kind       EventKind
	Notice     Notice
	Session    SessionInfo
	Connection ConnectionInfo
}

// Inputs

type cmdOpen struct {
	actor.InputBase
	Ctx       context.Context
	SessionID string
	Reply     chan error
}

type cmdRetry struct {
	actor.InputBase
	Ctx   context.Context
	Reply chan error
}

type cmdStartInterview struct {
	actor.InputBase
	Reply chan error
}

type cmdSendResponse struct {
	actor.InputBase
	Text  string
	Entry transcript.Entry
	Reply chan error
}

type cmdClose struct {
	actor.InputBase
	Reply chan error
}

type evSessionLoaded struct {
	actor.InputBase
	Gen     int64
	Fresh   bool
	Session repository.Session
	History []transcript.Entry
}

type evSessionFailed struct {
	actor.InputBase
	Gen int64
	Err error
}

type evConnection struct {
	actor.InputBase
	Notification connection.Notification
}

type evInbound struct {
	actor.InputBase
	SessionID string
	Message   wire.Message
	At        time.Time
	Entry     transcript.Entry
}

type evSendFailed struct {
	actor.InputBase
	Err error
}

// Effects

type effCreateSession struct {
	actor.EffectBase
	Ctx       context.Context
	Gen       int64
	AgentType string
}

type effFetchSession struct {
	actor.EffectBase
	Ctx context.Context
	Gen int64
	ID  string
}

type effConnect struct {
	actor.EffectBase
	SessionID string
	Fresh     bool
}

type effDisconnect struct {
	actor.EffectBase
}

type effSend struct {
	actor.EffectBase
	Payload []byte
}

type effAppend struct {
	actor.EffectBase
	Entry transcript.Entry
}

type effReplaceTranscript struct {
	actor.EffectBase
	Entries []transcript.Entry
}

type effClearTranscript struct {
	actor.EffectBase
}

type effPublish struct {
	actor.EffectBase
	Event Event
}

type effRecordLocal struct {
	actor.EffectBase
	Session SessionInfo
	Opened  bool
}

type effReply struct {
	actor.EffectBase
	Reply chan error
	Err   error
}
