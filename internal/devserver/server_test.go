package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gradcompass/interview/internal/auth"
	"github.com/gradcompass/interview/internal/config"
	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/store"
	"github.com/gradcompass/interview/internal/wire"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *Server
	http   *httptest.Server
	client *repository.Client
	token  string
}

func newTestEnv(t *testing.T, commitDelay time.Duration, questions int) *testEnv {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "dev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jwt, err := auth.NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)

	cfg := &config.ServerConfig{
		Addr:           "127.0.0.1:0",
		AllowedOrigins: []string{"*"},
		CommitDelay:    commitDelay,
		Questions:      questions,
	}
	srv := New(cfg, db, jwt)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	client := repository.New(repository.Options{BaseURL: ts.URL, Timeout: 5 * time.Second})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Register(ctx, "student@example.com", "correct horse", "Student"))
	token, err := client.Login(ctx, "student@example.com", "correct horse")
	require.NoError(t, err)
	client.SetToken(token)

	return &testEnv{server: srv, http: ts, client: client, token: token}
}

func (e *testEnv) dial(t *testing.T, sessionID, token string) *websocket.Conn {
	t.Helper()
	u, err := wire.ChannelURL(e.http.URL, sessionID, token)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wire.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := wire.Decode(raw)
	require.NoError(t, err)
	return msg
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg wire.Message) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg.MustEncode()))
}

func requireCloseCode(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, code), "got %v", err)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 2)
	resp, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestAuthFailures(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 2)
	ctx := context.Background()

	err := env.client.Register(ctx, "student@example.com", "correct horse", "")
	var rerr *repository.RepositoryError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, http.StatusBadRequest, rerr.StatusCode)
	require.Equal(t, "Email already registered", rerr.Message)

	_, err = env.client.Login(ctx, "student@example.com", "wrong password")
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, http.StatusUnauthorized, rerr.StatusCode)

	anon := repository.New(repository.Options{BaseURL: env.http.URL})
	defer anon.Close()
	_, err = anon.ListSessions(ctx)
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, http.StatusUnauthorized, rerr.StatusCode)
}

func TestSessionRoutes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 2)
	ctx := context.Background()

	first, err := env.client.CreateSession(ctx, "")
	require.NoError(t, err)
	require.Equal(t, repository.StatusPending, first.Status)
	require.Equal(t, defaultAgentType, first.AgentType)

	second, err := env.client.CreateSession(ctx, "visa_assistant")
	require.NoError(t, err)

	got, err := env.client.FetchSession(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "system", got.Messages[0].Type)

	list, err := env.client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)

	_, err = env.client.FetchSession(ctx, "9999")
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = env.client.FetchSession(ctx, "abc")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRealtimeScriptedInterview(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 2)
	ctx := context.Background()
	sess, err := env.client.CreateSession(ctx, "")
	require.NoError(t, err)

	conn := env.dial(t, sess.ID, env.token)
	require.Equal(t, wire.TypeSystem, readFrame(t, conn).Type)

	writeFrame(t, conn, wire.Ping())
	require.Equal(t, wire.TypePong, readFrame(t, conn).Type)

	writeFrame(t, conn, wire.StartInterview())
	q1 := readFrame(t, conn)
	require.Equal(t, wire.TypeQuestion, q1.Type)

	writeFrame(t, conn, wire.UserResponse("I want to join a strong research group in physics."))
	q2 := readFrame(t, conn)
	require.Equal(t, wire.TypeQuestion, q2.Type)
	require.NotEqual(t, q1.Content, q2.Content)

	writeFrame(t, conn, wire.UserResponse("My parents are sponsoring my tuition and living costs."))
	decision := readFrame(t, conn)
	require.Equal(t, wire.TypeFinalDecision, decision.Type)
	require.True(t, strings.HasPrefix(decision.Content, "Approved"), decision.Content)

	got, err := env.client.FetchSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, got.Completed())
	require.Equal(t, decision.Content, got.FinalOutcome)
	require.NotNil(t, got.CompletedAt)

	var types []string
	for _, m := range got.Messages {
		types = append(types, m.Type)
	}
	require.Equal(t, []string{"system", "question", "response", "question", "response", "final_decision"}, types)

	writeFrame(t, conn, wire.UserResponse("one more"))
	require.Equal(t, wire.TypeError, readFrame(t, conn).Type)
}

func TestRealtimeRestartRepeatsQuestion(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 3)
	sess, err := env.client.CreateSession(context.Background(), "")
	require.NoError(t, err)

	conn := env.dial(t, sess.ID, env.token)
	readFrame(t, conn)
	writeFrame(t, conn, wire.StartInterview())
	q := readFrame(t, conn)
	conn.Close()

	again := env.dial(t, sess.ID, env.token)
	writeFrame(t, again, wire.StartInterview())
	require.Equal(t, q, readFrame(t, again))
}

func TestRealtimeCloseCodes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 2)
	sess, err := env.client.CreateSession(context.Background(), "")
	require.NoError(t, err)

	requireCloseCode(t, env.dial(t, sess.ID, "bogus"), wire.CloseUnauthorized)
	requireCloseCode(t, env.dial(t, "9999", env.token), wire.CloseSessionNotReady)
}

func TestRealtimeCommitDelay(t *testing.T) {
	t.Parallel()

	const delay = 300 * time.Millisecond
	env := newTestEnv(t, delay, 2)
	sess, err := env.client.CreateSession(context.Background(), "")
	require.NoError(t, err)

	requireCloseCode(t, env.dial(t, sess.ID, env.token), wire.CloseSessionNotReady)

	time.Sleep(delay)
	conn := env.dial(t, sess.ID, env.token)
	require.Equal(t, wire.TypeSystem, readFrame(t, conn).Type)
}

func TestCloseSendsGoingAway(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0, 2)
	sess, err := env.client.CreateSession(context.Background(), "")
	require.NoError(t, err)

	conn := env.dial(t, sess.ID, env.token)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return env.server.hub.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.server.Close()
	requireCloseCode(t, conn, wire.CloseGoingAway)
}

func TestInterviewerDecision(t *testing.T) {
	t.Parallel()

	iv := NewInterviewer(8)
	require.Len(t, iv.Questions, 8)
	require.Equal(t, iv.Questions[0], iv.Questions[len(defaultQuestions)])
	_, ok := iv.Question(8)
	require.False(t, ok)

	require.True(t, strings.HasPrefix(iv.Decide([]string{"yes", "no", "a much longer considered answer"}), "Refused"))
	require.True(t, strings.HasPrefix(iv.Decide([]string{"I have a scholarship covering everything"}), "Approved"))
	require.True(t, strings.HasPrefix(iv.Decide(nil), "Refused"))
}
