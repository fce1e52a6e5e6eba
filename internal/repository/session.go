// Package repository is the REST client for interview sessions.
package repository

import (
	"strings"
	"time"

	"github.com/gradcompass/interview/internal/wire"
)

// Status is the lifecycle status of a session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ParseStatus normalizes a backend status. The backend reports a running
// session as "active"; unknown values pass through unchanged.
func ParseStatus(raw string) Status {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "":
		return StatusPending
	case "active", "in_progress":
		return StatusInProgress
	case "pending":
		return StatusPending
	case "completed":
		return StatusCompleted
	default:
		return Status(s)
	}
}

// DefaultAgentType is the interviewer persona used when none is given.
const DefaultAgentType = "visa_assistant"

// Message is a persisted transcript message.
type Message struct {
	ID        string
	Type      string
	Content   string
	Timestamp time.Time
}

// Session is an interview session as known to the backend.
type Session struct {
	ID           string
	AgentType    string
	Status       Status
	CreatedAt    time.Time
	CompletedAt  *time.Time
	FinalOutcome string
	Messages     []Message
}

// Completed reports whether the interview reached a final decision.
func (s Session) Completed() bool { return s.Status == StatusCompleted }

func sessionFromWire(rec wire.SessionRecord) Session {
	s := Session{
		ID:        string(rec.ID),
		AgentType: rec.AgentType,
		Status:    ParseStatus(rec.Status),
		CreatedAt: rec.CreatedAt.Time,
	}
	if rec.CompletedAt != nil && !rec.CompletedAt.IsZero() {
		t := rec.CompletedAt.Time
		s.CompletedAt = &t
	}
	if rec.FinalOutcome != nil {
		s.FinalOutcome = *rec.FinalOutcome
	}
	if len(rec.Messages) > 0 {
		s.Messages = make([]Message, 0, len(rec.Messages))
		for _, m := range rec.Messages {
			s.Messages = append(s.Messages, Message{
				ID:        string(m.ID),
				Type:      m.MessageType,
				Content:   m.Content,
				Timestamp: m.Timestamp.Time,
			})
		}
	}
	return s
}
