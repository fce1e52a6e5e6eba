// Package wire defines the JSON payloads exchanged with the interview backend,
// both over the realtime channel and over HTTP.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType is the `type` discriminator carried by every realtime message.
type MessageType string

const (
	// TypeStartInterview asks the backend to begin asking questions.
	TypeStartInterview MessageType = "start_interview"
	// TypeUserResponse carries the candidate's answer.
	TypeUserResponse MessageType = "user_response"
	// TypePing is the client keepalive.
	TypePing MessageType = "ping"

	// TypeSystem is an informational message from the backend.
	TypeSystem MessageType = "system"
	// TypeQuestion is an interviewer question.
	TypeQuestion MessageType = "question"
	// TypeFinalDecision ends the interview with an outcome.
	TypeFinalDecision MessageType = "final_decision"
	// TypeError reports a backend-side failure.
	TypeError MessageType = "error"
	// TypePong answers a ping.
	TypePong MessageType = "pong"
)

// Outbound reports whether t is sent by the client.
func (t MessageType) Outbound() bool {
	switch t {
	case TypeStartInterview, TypeUserResponse, TypePing:
		return true
	}
	return false
}

// Inbound reports whether t is sent by the backend.
func (t MessageType) Inbound() bool {
	switch t {
	case TypeSystem, TypeQuestion, TypeFinalDecision, TypeError, TypePong:
		return true
	}
	return false
}

// Message is a realtime channel frame.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`
}

// StartInterview builds the start_interview frame.
func StartInterview() Message { return Message{Type: TypeStartInterview} }

// UserResponse builds a user_response frame.
func UserResponse(content string) Message {
	return Message{Type: TypeUserResponse, Content: content}
}

// Ping builds the keepalive frame.
func Ping() Message { return Message{Type: TypePing} }

// Encode marshals m to its JSON text form.
func (m Message) Encode() ([]byte, error) {
	if m.Type == "" {
		return nil, &ProtocolError{Reason: "missing type"}
	}
	return json.Marshal(m)
}

// MustEncode is Encode for frames built by this package's constructors.
func (m Message) MustEncode() []byte {
	b, err := m.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a frame. Malformed JSON, a missing type or a type outside the
// known set yields a *ProtocolError.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, &ProtocolError{Reason: "malformed json", Raw: snippet(raw), Err: err}
	}
	if m.Type == "" {
		return Message{}, &ProtocolError{Reason: "missing type", Raw: snippet(raw)}
	}
	if !m.Type.Inbound() && !m.Type.Outbound() {
		return Message{}, &ProtocolError{
			Reason: fmt.Sprintf("unknown type %q", m.Type),
			Raw:    snippet(raw),
		}
	}
	return m, nil
}

// ProtocolError describes an inbound frame that could not be understood.
type ProtocolError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString("protocol error: ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func snippet(raw []byte) string {
	const limit = 128
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
