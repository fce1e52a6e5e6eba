package transcript

import (
	"context"
	"iter"
	"sync"

	"github.com/gradcompass/interview/internal/pubsub"
)

// ChangeKind describes how the transcript changed.
type ChangeKind int

const (
	ChangeAppended ChangeKind = iota
	ChangeReplaced
	ChangeCleared
)

// Change is published to subscribers after every mutation.
type Change struct {
	Kind ChangeKind
	// Entry is the appended entry for ChangeAppended.
	Entry Entry
	// Len is the transcript length after the change.
	Len int
}

// Reader is the read-only view handed to presentation code.
type Reader interface {
	All() iter.Seq[Entry]
	Len() int
	Snapshot() []Entry
	Subscribe(ctx context.Context) <-chan pubsub.Event[Change]
}

// Store is an insertion-ordered, append-only log. It has a single writer (the
// session controller); reads are safe from any goroutine.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	broker  *pubsub.Broker[Change]
}

var _ Reader = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{broker: pubsub.NewBroker[Change]()}
}

// Append adds e at the end.
func (s *Store) Append(e Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	n := len(s.entries)
	s.mu.Unlock()

	s.broker.Publish(pubsub.CreatedEvent, Change{Kind: ChangeAppended, Entry: e, Len: n})
}

// ReplaceAll swaps the whole log, e.g. with fetched history.
func (s *Store) ReplaceAll(entries []Entry) {
	next := make([]Entry, len(entries))
	copy(next, entries)

	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()

	s.broker.Publish(pubsub.UpdatedEvent, Change{Kind: ChangeReplaced, Len: len(next)})
}

// Clear empties the log.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	s.broker.Publish(pubsub.DeletedEvent, Change{Kind: ChangeCleared})
}

// All yields the entries present when iteration starts, in order. Each call
// takes its own snapshot, so the sequence can be ranged over repeatedly.
func (s *Store) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range s.Snapshot() {
			if !yield(e) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the entries.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Subscribe streams changes until ctx is done or the store is closed.
func (s *Store) Subscribe(ctx context.Context) <-chan pubsub.Event[Change] {
	return s.broker.Subscribe(ctx)
}

// Close ends all subscriptions.
func (s *Store) Close() {
	s.broker.Shutdown()
}
