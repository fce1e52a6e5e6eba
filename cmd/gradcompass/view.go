package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
	"github.com/gradcompass/interview/internal/connection"
	"github.com/gradcompass/interview/internal/interview"
	"github.com/gradcompass/interview/internal/transcript"
)

// view renders the transcript and controller events to a terminal. It is
// a pure consumer of controller state.
type view struct {
	mu  sync.Mutex
	out io.Writer

	lastPhase connection.Phase
	// shown counts transcript entries already printed. Only the attach
	// goroutine touches it.
	shown int
}

func newView(out io.Writer) *view {
	return &view{out: out, lastPhase: connection.PhaseIdle}
}

// attach subscribes to the controller. The returned channel closes once both
// subscriptions end.
func (v *view) attach(ctx context.Context, ctrl *interview.Controller) <-chan struct{} {
	changes := ctrl.Transcript().Subscribe(ctx)
	events := ctrl.Subscribe(ctx)
	reader := ctrl.Transcript()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for changes != nil || events != nil {
			select {
			case ch, ok := <-changes:
				if !ok {
					changes = nil
					continue
				}
				v.change(ch.Payload, reader)
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				v.event(ev.Payload)
			}
		}
	}()
	return done
}

// change renders a transcript change. Appends arrive one by one, but the
// broker drops events for a slow subscriber, so a jump in Len is filled in
// from the store.
func (v *view) change(ch transcript.Change, reader transcript.Reader) {
	switch ch.Kind {
	case transcript.ChangeAppended:
		switch {
		case ch.Len <= v.shown:
			// Already printed while catching up.
		case ch.Len == v.shown+1:
			v.entry(ch.Entry)
			v.shown = ch.Len
		default:
			v.catchUp(reader.Snapshot(), ch.Len)
		}
	case transcript.ChangeReplaced:
		v.shown = 0
		v.catchUp(reader.Snapshot(), ch.Len)
	case transcript.ChangeCleared:
		v.shown = 0
	}
}

// catchUp prints entries from v.shown up to upto.
func (v *view) catchUp(entries []transcript.Entry, upto int) {
	upto = min(upto, len(entries))
	for _, e := range entries[min(v.shown, upto):upto] {
		v.entry(e)
	}
	v.shown = max(v.shown, upto)
}

func (v *view) entry(e transcript.Entry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, formatEntry(e))
}

func formatEntry(e transcript.Entry) string {
	switch e.Kind {
	case transcript.KindQuestion:
		return color.FgCyan.Sprint("Officer: ") + e.Content
	case transcript.KindResponse:
		return color.FgGreen.Sprint("You: ") + e.Content
	case transcript.KindFinalDecision:
		return color.Bold.Sprint(color.FgYellow.Sprint("Decision: ")) + e.Content
	case transcript.KindError:
		return color.FgRed.Sprint("Error: ") + e.Content
	default:
		return color.FgDarkGray.Sprint(e.Content)
	}
}

func (v *view) event(ev interview.Event) {
	switch ev.Kind {
	case interview.EventNotice:
		v.notice(ev.Notice.Message)
	case interview.EventConnectionChanged:
		v.connection(ev.Connection)
	case interview.EventSessionChanged:
		if ev.Session.Active() && ev.Session.FinalOutcome != "" {
			v.line(color.FgDarkGray.Sprint("Interview complete. Type /quit to exit."))
		}
	}
}

func (v *view) connection(c interview.ConnectionInfo) {
	v.mu.Lock()
	prev := v.lastPhase
	v.lastPhase = c.Phase
	v.mu.Unlock()

	switch {
	case c.Phase == connection.PhaseOpen && prev != connection.PhaseOpen:
		v.line(color.FgGreen.Sprint("Connected. Type /start to begin or /help for commands."))
	case c.Phase == connection.PhaseConnecting && c.Retrying && c.Attempt > 0:
		v.line(color.FgYellow.Sprintf("Reconnecting (retry %d)...", c.Attempt))
	case c.Phase == connection.PhaseFailed:
		v.line(color.FgRed.Sprintf("Connection failed: %s. Type /retry to try again.", c.Error))
	}
}

func (v *view) notice(msg string) {
	v.line(color.FgYellow.Sprint("! ") + msg)
}

func (v *view) header(s interview.SessionInfo) {
	verb := "Resumed"
	if s.Fresh {
		verb = "Started"
	}
	v.line(color.Bold.Sprintf("%s interview %s (%s, %s)", verb, s.ID, s.AgentType, s.Status))
}

func (v *view) status(s interview.SessionInfo, c interview.ConnectionInfo) {
	if !s.Active() {
		v.line("No interview open.")
		return
	}
	v.line(fmt.Sprintf("Interview %s: %s, connection %s", s.ID, s.Status, c.Phase))
}

func (v *view) help() {
	v.line(`Commands:
  /start    ask the interviewer to begin
  /retry    reconnect after a failure
  /status   show session and connection status
  /quit     leave (the interview can be resumed later)
Anything else is sent as your answer.`)
}

func (v *view) line(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, s)
}
