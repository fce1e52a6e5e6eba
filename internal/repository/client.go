package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gradcompass/interview/internal/wire"
	"github.com/gradcompass/interview/pkg/logger"
	"golang.org/x/sync/singleflight"
	"resty.dev/v3"
)

const defaultTimeout = 15 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the interview REST API.
type Client struct {
	http    *resty.Client
	fetches singleflight.Group
}

// New returns a Client for the backend at opts.BaseURL.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		c.SetAuthToken(opts.Token)
	}
	return &Client{http: c}
}

// SetToken replaces the bearer token used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// CreateSession starts a new interview session. A successful response does
// not mean the realtime endpoint can serve the session yet.
func (c *Client) CreateSession(ctx context.Context, agentType string) (Session, error) {
	if agentType == "" {
		agentType = DefaultAgentType
	}
	var rec wire.SessionRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(wire.CreateSessionRequest{AgentType: agentType}).
		SetResult(&rec).
		Post("/interview/start")
	if err := check("create session", resp, err); err != nil {
		return Session{}, err
	}
	s := sessionFromWire(rec)
	logger.Debugf("repository: created session %s (%s)", s.ID, s.AgentType)
	return s, nil
}

// FetchSession loads a session with its full ordered message history.
// Concurrent fetches of the same id share one request. The shared request
// outlives any single caller's cancellation and is bounded by the client
// timeout; each caller still returns as soon as its own ctx is done.
func (c *Client) FetchSession(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, &RepositoryError{Op: "fetch session", Message: "empty session id", Err: ErrNotFound}
	}
	shared := context.WithoutCancel(ctx)
	ch := c.fetches.DoChan(id, func() (any, error) {
		var rec wire.SessionRecord
		resp, err := c.http.R().
			SetContext(shared).
			SetPathParam("id", id).
			SetResult(&rec).
			Get("/interview/sessions/{id}")
		if err := check("fetch session", resp, err); err != nil {
			return Session{}, err
		}
		return sessionFromWire(rec), nil
	})

	select {
	case <-ctx.Done():
		return Session{}, &RepositoryError{Op: "fetch session", Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			logger.Tracef("repository: shared fetch of session %s", id)
		}
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	}
}

// ListSessions returns the caller's sessions, most recent first.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var recs []wire.SessionRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&recs).
		Get("/interview/sessions")
	if err := check("list sessions", resp, err); err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(recs))
	for _, rec := range recs {
		out = append(out, sessionFromWire(rec))
	}
	return out, nil
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var tok wire.TokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(wire.LoginRequest{Email: email, Password: password}).
		SetResult(&tok).
		Post("/auth/login")
	if err := check("login", resp, err); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", &RepositoryError{Op: "login", StatusCode: resp.StatusCode(), Message: "empty access token"}
	}
	return tok.AccessToken, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password, fullName string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(wire.RegisterRequest{Email: email, Password: password, FullName: fullName}).
		Post("/auth/register")
	return check("register", resp, err)
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &RepositoryError{Op: op, Err: err}
	}
	if resp == nil {
		return &RepositoryError{Op: op, Err: fmt.Errorf("no response")}
	}
	if !resp.IsError() {
		return nil
	}
	rerr := &RepositoryError{
		Op:         op,
		StatusCode: resp.StatusCode(),
		Message:    errorDetail(resp.String()),
	}
	if resp.StatusCode() == http.StatusNotFound {
		rerr.Err = ErrNotFound
	}
	return rerr
}

func errorDetail(body string) string {
	body = strings.TrimSpace(body)
	var er wire.ErrorResponse
	if err := json.Unmarshal([]byte(body), &er); err == nil && er.Detail != "" {
		return er.Detail
	}
	const limit = 200
	if len(body) > limit {
		body = body[:limit] + "..."
	}
	return body
}
