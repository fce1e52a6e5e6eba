package interview

import (
	"context"
	"sync"
	"time"

	"github.com/gradcompass/interview/internal/actor"
	"github.com/gradcompass/interview/internal/pubsub"
	"github.com/gradcompass/interview/internal/repository"
	"github.com/gradcompass/interview/internal/storage"
	"github.com/gradcompass/interview/internal/transcript"
	"github.com/gradcompass/interview/pkg/logger"
)

// Runtime executes controller effects.
type Runtime struct {
	repo   Repository
	conn   Connection
	store  *transcript.Store
	events *pubsub.Broker[Event]
	home   string
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRuntime(repo Repository, conn Connection, store *transcript.Store, events *pubsub.Broker[Event], home string, now func() time.Time) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		repo:   repo,
		conn:   conn,
		store:  store,
		events: events,
		home:   home,
		now:    now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effCreateSession:
			r.createSession(e, emit)
		case effFetchSession:
			r.fetchSession(e, emit)
		case effConnect:
			if err := r.conn.Connect(e.SessionID, e.Fresh); err != nil {
				logger.Warnf("interview: connect %s: %v", e.SessionID, err)
			}
		case effDisconnect:
			if err := r.conn.Disconnect(); err != nil {
				logger.Debugf("interview: disconnect: %v", err)
			}
		case effSend:
			if err := r.conn.Send(e.Payload); err != nil {
				r.async(func() { emit(evSendFailed{Err: err}) })
			}
		case effAppend:
			r.store.Append(e.Entry)
		case effReplaceTranscript:
			r.store.ReplaceAll(e.Entries)
		case effClearTranscript:
			r.store.Clear()
		case effPublish:
			r.publish(e.Event)
		case effRecordLocal:
			r.recordLocal(e)
		case effReply:
			if e.Reply != nil {
				select {
				case e.Reply <- e.Err:
				default:
				}
			}
		default:
			// Unknown effect: ignore.
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runtime) async(fn func()) {
	select {
	case <-r.ctx.Done():
		return
	default:
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// requestContext ties a repository call to both the caller and the runtime.
func (r *Runtime) requestContext(caller context.Context) (context.Context, context.CancelFunc) {
	if caller == nil {
		caller = context.Background()
	}
	ctx, cancel := context.WithCancel(caller)
	stop := context.AfterFunc(r.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (r *Runtime) createSession(eff effCreateSession, emit func(actor.Input)) {
	r.async(func() {
		ctx, cancel := r.requestContext(eff.Ctx)
		defer cancel()

		s, err := r.repo.CreateSession(ctx, eff.AgentType)
		if err != nil {
			emit(evSessionFailed{Gen: eff.Gen, Err: err})
			return
		}
		emit(evSessionLoaded{Gen: eff.Gen, Fresh: true, Session: s})
	})
}

func (r *Runtime) fetchSession(eff effFetchSession, emit func(actor.Input)) {
	r.async(func() {
		ctx, cancel := r.requestContext(eff.Ctx)
		defer cancel()

		s, err := r.repo.FetchSession(ctx, eff.ID)
		if err != nil {
			emit(evSessionFailed{Gen: eff.Gen, Err: err})
			return
		}
		emit(evSessionLoaded{Gen: eff.Gen, Session: s, History: historyEntries(s, r.now())})
	})
}

func (r *Runtime) publish(ev Event) {
	if ev.Kind == EventNotice {
		logger.Infof("interview: %s: %s", ev.Notice.Code, ev.Notice.Message)
	}
	if ev.Kind == EventSessionChanged && !ev.Session.Active() {
		r.events.Publish(pubsub.DeletedEvent, ev)
		return
	}
	r.events.Publish(pubsub.UpdatedEvent, ev)
}

func (r *Runtime) recordLocal(eff effRecordLocal) {
	if r.home == "" || !eff.Session.Active() {
		return
	}
	openedAt := r.now().UnixMilli()
	err := storage.UpdateLocalSessionInfo(r.home, eff.Session.ID, func(info *storage.LocalSessionInfo) {
		info.AgentType = eff.Session.AgentType
		info.Status = string(eff.Session.Status)
		if eff.Opened {
			info.LastOpenedAtMs = openedAt
		}
	})
	if err != nil {
		logger.Warnf("interview: record session %s locally: %v", eff.Session.ID, err)
	}
}

// historyEntries converts fetched messages to transcript entries. A completed
// session whose history lacks the decision message gets one synthesized from
// its recorded outcome.
func historyEntries(s repository.Session, now time.Time) []transcript.Entry {
	entries := make([]transcript.Entry, 0, len(s.Messages)+1)
	hasDecision := false
	for _, m := range s.Messages {
		at := m.Timestamp
		if at.IsZero() {
			at = now
		}
		kind := transcript.ParseKind(m.Type)
		if kind == transcript.KindFinalDecision {
			hasDecision = true
		}
		entries = append(entries, transcript.NewEntry(kind, m.Content, at))
	}
	if s.Completed() && s.FinalOutcome != "" && !hasDecision {
		at := now
		if s.CompletedAt != nil {
			at = *s.CompletedAt
		}
		entries = append(entries, transcript.NewEntry(transcript.KindFinalDecision, s.FinalOutcome, at))
	}
	return entries
}
