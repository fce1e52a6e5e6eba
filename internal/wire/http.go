package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CreateSessionRequest is the HTTP POST /interview/start request body.
type CreateSessionRequest struct {
	// AgentType selects the interviewer persona.
	AgentType string `json:"agent_type"`
}

// SessionRecord is an interview session as returned by the backend.
type SessionRecord struct {
	ID           ID              `json:"id"`
	UserID       ID              `json:"user_id,omitempty"`
	AgentType    string          `json:"agent_type"`
	Status       string          `json:"status"`
	FinalOutcome *string         `json:"final_outcome,omitempty"`
	CreatedAt    Timestamp       `json:"created_at"`
	CompletedAt  *Timestamp      `json:"completed_at,omitempty"`
	Messages     []MessageRecord `json:"messages"`
}

// MessageRecord is one persisted transcript message.
type MessageRecord struct {
	ID          ID        `json:"id"`
	SessionID   ID        `json:"session_id,omitempty"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	Timestamp   Timestamp `json:"timestamp"`
}

// RegisterRequest is the HTTP POST /auth/register request body.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// UserRecord is the HTTP POST /auth/register response body.
type UserRecord struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// LoginRequest is the HTTP POST /auth/login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the HTTP POST /auth/login response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ErrorResponse is the body of a non-2xx HTTP response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ID is a backend identifier. The backend uses integer keys but the client
// treats ids as opaque strings, so both JSON forms are accepted.
type ID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits integers as numbers and everything else as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Timestamp parses the backend's datetime formats. Offsets are optional since
// some stores emit naive UTC datetimes.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
