package delay

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation. It backs tests and
// local development where a database is unavailable, and mirrors the durable
// store's semantics exactly: pending entries ordered by next attempt,
// idempotent cancel, fixed-backoff retries, exhausted entries retained.
//
// Dispatch is driven explicitly through FireDue, which makes time
// deterministic in tests; nothing fires on its own.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	handler Handler
}

type memEntry struct {
	entry         Entry
	nextAttemptAt time.Time
}

// NewMemoryStore creates an empty MemoryStore. The handler may be nil until
// SetHandler is called; FireDue without a handler is a no-op.
func NewMemoryStore(handler Handler) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		handler: handler,
	}
}

// SetHandler registers the dispatch consumer.
func (s *MemoryStore) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Enqueue implements Store.
func (s *MemoryStore) Enqueue(ctx context.Context, id string, payload []byte, delay time.Duration, policy AttemptPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fireAt := time.Now().UTC().Add(delay)
	s.entries[id] = &memEntry{
		entry: Entry{
			ID:          id,
			FireAt:      fireAt,
			Payload:     payload,
			Status:      StatusPending,
			MaxAttempts: policy.MaxAttempts,
			Backoff:     policy.Backoff,
		},
		nextAttemptAt: fireAt,
	}
	return nil
}

// Cancel implements Store. Unknown ids and non-pending entries are a no-op.
func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok && e.entry.Status == StatusPending {
		delete(s.entries, id)
	}
	return nil
}

// FireDue dispatches every pending entry whose next attempt is at or before
// now, in fire-time order, applying the same attempt policy as the durable
// runner. Returns the number of handler invocations performed.
func (s *MemoryStore) FireDue(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	handler := s.handler
	var due []*memEntry
	for _, e := range s.entries {
		if e.entry.Status == StatusPending && !e.nextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].nextAttemptAt.Before(due[j].nextAttemptAt)
	})
	s.mu.Unlock()

	if handler == nil {
		return 0
	}

	fired := 0
	for _, me := range due {
		s.mu.Lock()
		cur, ok := s.entries[me.entry.ID]
		if !ok || cur.entry.Status != StatusPending {
			s.mu.Unlock()
			continue
		}
		cur.entry.Attempt++
		cur.entry.Status = StatusDelivering
		claimed := cur.entry
		s.mu.Unlock()

		fired++
		err := handler.Handle(ctx, claimed)

		s.mu.Lock()
		switch {
		case err == nil:
			delete(s.entries, claimed.ID)
		case IsTerminal(err) || claimed.Attempt >= claimed.MaxAttempts:
			cur.entry.Status = StatusExhausted
			cur.entry.LastError = err.Error()
		default:
			cur.entry.Status = StatusPending
			cur.entry.LastError = err.Error()
			cur.nextAttemptAt = now.Add(claimed.Backoff)
		}
		s.mu.Unlock()
	}
	return fired
}

// Live reports whether an entry with the given id is still pending dispatch.
func (s *MemoryStore) Live(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.entry.Status == StatusPending
}

// LiveCount returns the number of pending entries.
func (s *MemoryStore) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.entry.Status == StatusPending {
			n++
		}
	}
	return n
}

// Get returns a copy of the entry with the given id, in any state.
func (s *MemoryStore) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.entry, true
}

// Compile-time assertion that MemoryStore satisfies the producer contract.
var _ Store = (*MemoryStore)(nil)
