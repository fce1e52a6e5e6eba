package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist or belongs to another
	// user.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned by CreateUser for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// Session statuses as stored.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// User is a registered account.
type User struct {
	ID             int64
	Email          string
	FullName       string
	HashedPassword string
	IsActive       bool
	CreatedAt      time.Time
}

// Session is an interview session row plus, when loaded, its messages.
type Session struct {
	ID           int64
	UserID       int64
	AgentType    string
	Status       string
	FinalOutcome *string
	CreatedAt    time.Time
	CompletedAt  *time.Time
	Messages     []Message
}

// Message is one transcript row.
type Message struct {
	ID        int64
	SessionID int64
	Type      string
	Content   string
	Timestamp time.Time
}

// CountType returns how many loaded messages have the given type.
func (s Session) CountType(messageType string) int {
	n := 0
	for _, m := range s.Messages {
		if m.Type == messageType {
			n++
		}
	}
	return n
}
