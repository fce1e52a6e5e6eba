// Package transcript holds the ordered log of messages shown for the current
// interview session.
package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a transcript entry.
type Kind string

const (
	KindSystem        Kind = "system"
	KindQuestion      Kind = "question"
	KindResponse      Kind = "response"
	KindFinalDecision Kind = "final_decision"
	KindError         Kind = "error"
)

// ParseKind maps a backend message_type to a Kind. Unknown types are
// reported as system messages.
func ParseKind(raw string) Kind {
	switch k := Kind(raw); k {
	case KindSystem, KindQuestion, KindResponse, KindFinalDecision, KindError:
		return k
	default:
		return KindSystem
	}
}

// Entry is one transcript line.
type Entry struct {
	// ID is client generated and time ordered.
	ID        string
	Kind      Kind
	Content   string
	CreatedAt time.Time
}

// NewEntry builds an entry with a fresh time-ordered id.
func NewEntry(kind Kind, content string, at time.Time) Entry {
	return Entry{ID: newID(), Kind: kind, Content: content, CreatedAt: at}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
