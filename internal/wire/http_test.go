package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionRecordDecodesBackendShape(t *testing.T) {
	t.Parallel()

	raw := `{
		"id": 12,
		"user_id": 3,
		"agent_type": "visa_assistant",
		"status": "active",
		"final_outcome": null,
		"created_at": "2025-03-01T10:00:00.123456",
		"completed_at": null,
		"messages": [
			{"id": 1, "session_id": 12, "message_type": "system", "content": "Welcome", "timestamp": "2025-03-01T10:00:00+00:00"},
			{"id": 2, "session_id": 12, "message_type": "question", "content": "Why?", "timestamp": "2025-03-01 10:00:05"}
		]
	}`

	var rec SessionRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	require.Equal(t, ID("12"), rec.ID)
	require.Equal(t, "active", rec.Status)
	require.Nil(t, rec.FinalOutcome)
	require.Nil(t, rec.CompletedAt)
	require.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC), rec.CreatedAt.Time)
	require.Len(t, rec.Messages, 2)
	require.Equal(t, "question", rec.Messages[1].MessageType)
	require.Equal(t, time.Date(2025, 3, 1, 10, 0, 5, 0, time.UTC), rec.Messages[1].Timestamp.Time)
}

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	t.Parallel()

	var ids []ID
	require.NoError(t, json.Unmarshal([]byte(`[7, "abc", null]`), &ids))
	require.Equal(t, []ID{"7", "abc", ""}, ids)

	out, err := json.Marshal([]ID{"7", "abc"})
	require.NoError(t, err)
	require.JSONEq(t, `[7, "abc"]`, string(out))
}

func TestTimestampRejectsGarbage(t *testing.T) {
	t.Parallel()

	var ts Timestamp
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	require.Error(t, json.Unmarshal([]byte(`12`), &ts))
}
