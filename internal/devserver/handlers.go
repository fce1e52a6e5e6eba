package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gradcompass/interview/internal/auth"
	"github.com/gradcompass/interview/internal/store"
	"github.com/gradcompass/interview/internal/wire"
	"github.com/gradcompass/interview/pkg/logger"
)

const (
	defaultAgentType = "visa_assistant"
	welcomeMessage   = "Welcome to your visa interview preparation session! " +
		"I'll be conducting a mock F1 visa interview. " +
		"Please respond naturally and honestly to my questions. Are you ready to begin?"
)

// register handles POST /auth/register.
func (s *Server) register(c *gin.Context) {
	var req wire.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if !strings.Contains(req.Email, "@") {
		abort(c, http.StatusBadRequest, "A valid email is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.db.CreateUser(c.Request.Context(), req.Email, req.FullName, hash)
	if errors.Is(err, store.ErrEmailTaken) {
		abort(c, http.StatusBadRequest, "Email already registered")
		return
	}
	if err != nil {
		s.internalError(c, "register", err)
		return
	}

	c.JSON(http.StatusOK, wire.UserRecord{
		ID:       formatID(u.ID),
		Email:    u.Email,
		FullName: u.FullName,
	})
}

// login handles POST /auth/login.
func (s *Server) login(c *gin.Context) {
	var req wire.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.db.UserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		abort(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	if err != nil {
		s.internalError(c, "login", err)
		return
	}
	if err := auth.CheckPassword(u.HashedPassword, req.Password); err != nil || !u.IsActive {
		abort(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token, err := s.jwt.CreateToken(strconv.FormatInt(u.ID, 10), u.Email)
	if err != nil {
		s.internalError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, wire.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// startSession handles POST /interview/start.
func (s *Server) startSession(c *gin.Context) {
	userID, _ := getUserID(c)

	var req wire.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.AgentType == "" {
		req.AgentType = defaultAgentType
	}

	sess, err := s.db.CreateSession(c.Request.Context(), userID, req.AgentType, welcomeMessage)
	if err != nil {
		s.internalError(c, "start session", err)
		return
	}
	logger.Infof("devserver: user %d started session %d (%s)", userID, sess.ID, sess.AgentType)
	c.JSON(http.StatusOK, sessionRecord(sess))
}

// listSessions handles GET /interview/sessions.
func (s *Server) listSessions(c *gin.Context) {
	userID, _ := getUserID(c)

	sessions, err := s.db.ListSessions(c.Request.Context(), userID)
	if err != nil {
		s.internalError(c, "list sessions", err)
		return
	}
	out := make([]wire.SessionRecord, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionRecord(sess))
	}
	c.JSON(http.StatusOK, out)
}

// getSession handles GET /interview/sessions/:id.
func (s *Server) getSession(c *gin.Context) {
	userID, _ := getUserID(c)

	id, ok := parseID(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, "Interview session not found")
		return
	}
	sess, err := s.db.GetSession(c.Request.Context(), userID, id)
	if errors.Is(err, store.ErrNotFound) {
		abort(c, http.StatusNotFound, "Interview session not found")
		return
	}
	if err != nil {
		s.internalError(c, "get session", err)
		return
	}
	c.JSON(http.StatusOK, sessionRecord(sess))
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	logger.Errorf("devserver: %s: %v", op, err)
	if s.cfg.Debug {
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	abort(c, http.StatusInternalServerError, "Internal server error")
}

func sessionRecord(sess store.Session) wire.SessionRecord {
	rec := wire.SessionRecord{
		ID:           formatID(sess.ID),
		UserID:       formatID(sess.UserID),
		AgentType:    sess.AgentType,
		Status:       sess.Status,
		FinalOutcome: sess.FinalOutcome,
		CreatedAt:    wire.Timestamp{Time: sess.CreatedAt},
		Messages:     make([]wire.MessageRecord, 0, len(sess.Messages)),
	}
	if sess.CompletedAt != nil {
		rec.CompletedAt = &wire.Timestamp{Time: *sess.CompletedAt}
	}
	for _, m := range sess.Messages {
		rec.Messages = append(rec.Messages, wire.MessageRecord{
			ID:          formatID(m.ID),
			SessionID:   formatID(m.SessionID),
			MessageType: m.Type,
			Content:     m.Content,
			Timestamp:   wire.Timestamp{Time: m.Timestamp},
		})
	}
	return rec
}

func formatID(id int64) wire.ID {
	return wire.ID(strconv.FormatInt(id, 10))
}
