package actor

import (
	"sync"
	"time"
)

// Timers is a set of named one-shot timers owned by a Runtime.
//
// Starting a name that is already armed replaces the previous timer, so at
// most one timer per name is ever pending.
type Timers struct {
	mu     sync.Mutex
	clock  Clock
	timers map[string]Timer
}

// NewTimers returns an empty timer set scheduling on clock.
func NewTimers(clock Clock) *Timers {
	if clock == nil {
		clock = RealClock{}
	}
	return &Timers{clock: clock, timers: make(map[string]Timer)}
}

// Start arms the named timer. fire runs on the clock's goroutine.
func (t *Timers) Start(name string, after time.Duration, fire func()) {
	if name == "" || fire == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev := t.timers[name]; prev != nil {
		prev.Stop()
	}
	var timer Timer
	timer = t.clock.AfterFunc(after, func() {
		t.mu.Lock()
		if t.timers[name] == timer {
			delete(t.timers, name)
		}
		t.mu.Unlock()
		fire()
	})
	t.timers[name] = timer
}

// Cancel stops the named timer if it is pending.
func (t *Timers) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer := t.timers[name]; timer != nil {
		timer.Stop()
	}
	delete(t.timers, name)
}

// Pending reports whether the named timer is armed.
func (t *Timers) Pending(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[name]
	return ok
}

// StopAll cancels every pending timer.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, timer := range t.timers {
		timer.Stop()
		delete(t.timers, name)
	}
}
