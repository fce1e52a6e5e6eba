package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/gradcompass/interview/internal/store"
	"github.com/gradcompass/interview/internal/wire"
	"github.com/gradcompass/interview/pkg/logger"
)

const (
	writeWait       = 10 * time.Second
	maxMessageBytes = 64 << 10
	readyMessage    = "Welcome! I'm ready to conduct your visa interview. Start the interview when you are ready."
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// hub tracks live realtime connections so shutdown can close them.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		closeWith(c, wire.CloseGoingAway, "server shutting down")
	}
}

// closeWith sends a close frame and drops the connection.
func closeWith(c *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.Close()
}

// realtime handles GET /interview/ws/:id. The handshake always succeeds;
// authentication and visibility failures are reported as close codes.
func (s *Server) realtime(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			token = h[7:]
		}
	}
	userID, authed := verifyUser(s.jwt, token)
	sessionID, idOK := parseID(c.Param("id"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("devserver: websocket upgrade: %v", err)
		return
	}
	if !authed {
		closeWith(conn, wire.CloseUnauthorized, "unauthorized")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	var sess store.Session
	if idOK {
		sess, err = s.db.GetSession(ctx, userID, sessionID)
	} else {
		err = store.ErrNotFound
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		closeWith(conn, wire.CloseSessionNotReady, "session not found")
		return
	case err != nil:
		logger.Errorf("devserver: load session %d: %v", sessionID, err)
		closeWith(conn, wire.CloseInternalError, "internal error")
		return
	case s.now().Sub(sess.CreatedAt) < s.cfg.CommitDelay:
		logger.Debugf("devserver: session %d not visible yet", sessionID)
		closeWith(conn, wire.CloseSessionNotReady, "session not ready")
		return
	}

	s.hub.add(conn)
	defer s.hub.remove(conn)
	defer conn.Close()

	logger.Infof("devserver: realtime channel open for session %d", sessionID)
	ch := &channel{server: s, conn: conn, sessionID: sessionID}
	ch.serve(ctx, sess)
	logger.Infof("devserver: realtime channel closed for session %d", sessionID)
}

// channel runs the scripted interview over one realtime connection. All
// writes happen on the serve goroutine.
type channel struct {
	server    *Server
	conn      *websocket.Conn
	sessionID int64
}

func (ch *channel) serve(ctx context.Context, sess store.Session) {
	ch.conn.SetReadLimit(maxMessageBytes)

	if sess.Status == store.StatusPending {
		if err := ch.send(wire.TypeSystem, readyMessage); err != nil {
			return
		}
	}

	for {
		_, raw, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("devserver: session %d read: %v", ch.sessionID, err)
			}
			return
		}

		msg, err := wire.Decode(raw)
		if err != nil {
			logger.Warnf("devserver: session %d: %v", ch.sessionID, err)
			if err := ch.send(wire.TypeError, "Could not understand the last message."); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case wire.TypePing:
			err = ch.send(wire.TypePong, "")
		case wire.TypeStartInterview:
			err = ch.start(ctx)
		case wire.TypeUserResponse:
			err = ch.respond(ctx, msg.Content)
		default:
			logger.Debugf("devserver: session %d: ignoring %q", ch.sessionID, msg.Type)
		}
		if err != nil {
			logger.Warnf("devserver: session %d: %v", ch.sessionID, err)
			_ = ch.send(wire.TypeError, "An error occurred: "+err.Error())
			closeWith(ch.conn, wire.CloseInternalError, "internal error")
			return
		}
	}
}

func (ch *channel) send(t wire.MessageType, content string) error {
	payload, err := wire.Message{Type: t, Content: content}.Encode()
	if err != nil {
		return err
	}
	_ = ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ch.conn.WriteMessage(websocket.TextMessage, payload)
}

// start handles start_interview. Restarting an interview in progress repeats
// the outstanding question.
func (ch *channel) start(ctx context.Context) error {
	db := ch.server.db
	sess, err := db.GetSession(ctx, 0, ch.sessionID)
	if err != nil {
		return err
	}
	if sess.Status == store.StatusCompleted {
		return ch.send(wire.TypeError, "This interview is already complete.")
	}
	if err := db.MarkStarted(ctx, ch.sessionID); err != nil {
		return err
	}

	asked := sess.CountType("question")
	if asked > sess.CountType("response") {
		return ch.send(wire.TypeQuestion, lastOfType(sess, "question"))
	}
	return ch.advance(ctx, sess, asked)
}

// respond handles user_response.
func (ch *channel) respond(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	db := ch.server.db
	sess, err := db.GetSession(ctx, 0, ch.sessionID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case store.StatusPending:
		return ch.send(wire.TypeError, "The interview has not started yet.")
	case store.StatusCompleted:
		return ch.send(wire.TypeError, "This interview is already complete.")
	}

	m, err := db.AppendMessage(ctx, ch.sessionID, "response", text)
	if err != nil {
		return err
	}
	sess.Messages = append(sess.Messages, m)
	return ch.advance(ctx, sess, sess.CountType("question"))
}

// advance asks question number asked, or decides once every question has
// been answered.
func (ch *channel) advance(ctx context.Context, sess store.Session, asked int) error {
	db := ch.server.db
	iv := ch.server.interviewer

	if q, ok := iv.Question(asked); ok {
		if _, err := db.AppendMessage(ctx, ch.sessionID, "question", q); err != nil {
			return err
		}
		return ch.send(wire.TypeQuestion, q)
	}

	var answers []string
	for _, m := range sess.Messages {
		if m.Type == "response" {
			answers = append(answers, m.Content)
		}
	}
	decision := iv.Decide(answers)
	if err := db.CompleteSession(ctx, ch.sessionID, decision); err != nil {
		return err
	}
	logger.Infof("devserver: session %d completed", ch.sessionID)
	return ch.send(wire.TypeFinalDecision, decision)
}

func lastOfType(sess store.Session, messageType string) string {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Type == messageType {
			return sess.Messages[i].Content
		}
	}
	return ""
}
