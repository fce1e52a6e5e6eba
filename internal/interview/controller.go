package interview

import (
	"context"
	"time"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/internal/connection"
	"github.com/gradcompass/interview/internal/pubsub"
	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/transcript"
	"github.com/gradcompass/interview/internal/wire"
	"github.com/gradcompass/interview/pkg/logger"
)

// Options configures a Controller.
type Options struct {
	Repository Repository
	Connection Connection
	// Transcript is created when nil.
	Transcript *transcript.Store
	// Home enables local session bookkeeping when set.
	Home string
	// AgentType is requested for new sessions.
	AgentType string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller is the session controller. It is the only component that
// understands the realtime protocol; views read from it and issue commands.
type Controller struct {
	actor   *actor.Actor[State]
	runtime *Runtime
	store   *transcript.Store
	events  *pubsub.Broker[Event]
	now     func() time.Time

	ctx          context.Context
	cancel       context.CancelFunc
	removeListen func()
}

// New starts a controller and subscribes it to the connection's
// notifications.
func New(opts Options) *Controller {
	store := opts.Transcript
	if store == nil {
		store = transcript.NewStore()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	agentType := opts.AgentType
	if agentType == "" {
		agentType = repository.DefaultAgentType
	}

	events := pubsub.NewBroker[Event]()
	rt := newRuntime(opts.Repository, opts.Connection, store, events, opts.Home, now)
	initial := State{
		AgentType: agentType,
		Conn:      ConnectionInfo{Phase: connection.PhaseIdle},
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		actor:   actor.New(initial, Reduce, rt),
		runtime: rt,
		store:   store,
		events:  events,
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
	}
	c.removeListen = opts.Connection.AddListener(c.onConnection)
	c.actor.Start()
	return c
}

// Open creates a session when sessionID is empty, otherwise resumes it, and
// then connects the realtime channel. It returns once the repository has
// answered.
func (c *Controller) Open(ctx context.Context, sessionID string) (SessionInfo, error) {
	reply := make(chan error, 1)
	if err := c.call(ctx, cmdOpen{Ctx: ctx, SessionID: sessionID, Reply: reply}, reply); err != nil {
		return SessionInfo{}, err
	}
	s, _ := c.Session()
	return s, nil
}

// Retry re-opens the current session after a terminal failure.
func (c *Controller) Retry(ctx context.Context) (SessionInfo, error) {
	reply := make(chan error, 1)
	if err := c.call(ctx, cmdRetry{Ctx: ctx, Reply: reply}, reply); err != nil {
		return SessionInfo{}, err
	}
	s, _ := c.Session()
	return s, nil
}

// StartInterview asks the interviewer to begin. It requires an open channel.
func (c *Controller) StartInterview() error {
	reply := make(chan error, 1)
	return c.call(context.Background(), cmdStartInterview{Reply: reply}, reply)
}

// SendUserResponse appends the answer to the transcript and sends it. Blank
// text and a closed channel are rejected with *ValidationError.
func (c *Controller) SendUserResponse(text string) error {
	reply := make(chan error, 1)
	entry := transcript.NewEntry(transcript.KindResponse, text, c.now())
	return c.call(context.Background(), cmdSendResponse{Text: text, Entry: entry, Reply: reply}, reply)
}

// Close tears down the channel and forgets the session. Idempotent.
func (c *Controller) Close() error {
	reply := make(chan error, 1)
	return c.call(context.Background(), cmdClose{Reply: reply}, reply)
}

// Session returns the current session, if any.
func (c *Controller) Session() (SessionInfo, bool) {
	s := c.actor.State().Current
	return s, s.Active()
}

// Connection returns the channel status as seen by the controller.
func (c *Controller) Connection() ConnectionInfo {
	return c.actor.State().Conn
}

// Transcript returns a read-only view of the transcript.
func (c *Controller) Transcript() transcript.Reader {
	return c.store
}

// Subscribe streams view events until ctx is done or the controller shuts
// down.
func (c *Controller) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return c.events.Subscribe(ctx)
}

// Shutdown closes the session and stops the controller. The connection is
// owned by the caller and is left running.
func (c *Controller) Shutdown() {
	_ = c.Close()
	c.removeListen()
	c.cancel()
	c.actor.Stop()
	<-c.actor.Done()
	c.events.Shutdown()
}

func (c *Controller) call(ctx context.Context, in actor.Input, reply chan error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.actor.EnqueueWait(ctx, in) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.actor.Done():
		return ErrClosed
	}
}

// onConnection runs on the connection manager's loop.
func (c *Controller) onConnection(n connection.Notification) {
	if n.Kind != connection.NotifyMessage {
		c.actor.EnqueueWait(c.ctx, evConnection{Notification: n})
		return
	}

	msg, err := wire.Decode(n.Payload)
	if err != nil {
		logger.Warnf("interview: dropping frame from session %s: %v", n.SessionID, err)
		return
	}
	if !msg.Type.Inbound() {
		logger.Warnf("interview: dropping %q frame from session %s", msg.Type, n.SessionID)
		return
	}
	if msg.Type == wire.TypePong {
		logger.Tracef("interview: pong from session %s", n.SessionID)
		return
	}

	at := c.now()
	c.actor.EnqueueWait(c.ctx, evInbound{
		SessionID: n.SessionID,
		Message:   msg,
		At:        at,
		Entry:     transcript.NewEntry(transcript.KindSystem, msg.Content, at),
	})
}
