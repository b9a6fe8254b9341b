// Package delay implements the durable delay store backing reminder
// scheduling: a priority queue keyed by fire time with enqueue-with-delay,
// cancel-by-id, and dispatch-to-one-consumer semantics.
//
// The store owns persistence; entries survive process restarts of the
// consumer. Dispatch is at-least-once: a consumer crash between delivery and
// acknowledgement redelivers the entry, so handlers must be idempotent.
// Completed entries are removed; entries that exhaust their attempt policy
// are retained with the last error so permanent failures stay visible.
package delay

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a delay entry.
type Status string

const (
	// StatusPending entries are waiting for their next_attempt_at instant.
	StatusPending Status = "pending"
	// StatusDelivering entries are claimed by a consumer. Entries stuck in
	// this state past the visibility timeout are reclaimed as pending.
	StatusDelivering Status = "delivering"
	// StatusExhausted entries failed every allowed attempt and are retained
	// for operator visibility.
	StatusExhausted Status = "exhausted"
)

// AttemptPolicy bounds the delivery attempt chain for one entry:
// at most MaxAttempts handler invocations, spaced by a fixed Backoff.
type AttemptPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Entry is a durable record representing one pending delivery attempt chain.
type Entry struct {
	ID          string        `json:"id"`
	FireAt      time.Time     `json:"fire_at"`
	Payload     []byte        `json:"payload"`
	Status      Status        `json:"status"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Backoff     time.Duration `json:"backoff"`
	LastError   string        `json:"last_error,omitempty"`
}

// Store is the producer-facing contract consumed by the reminder scheduler.
type Store interface {
	// Enqueue creates an entry that becomes due after the given delay.
	// The id must be unique per scheduling attempt.
	Enqueue(ctx context.Context, id string, payload []byte, delay time.Duration, policy AttemptPolicy) error

	// Cancel removes a pending entry. Unknown or already-consumed ids are a
	// no-op, never an error: cancellation is idempotent by contract. A
	// cancel racing an in-flight delivery may lose; callers tolerate that.
	Cancel(ctx context.Context, id string) error
}

// Handler consumes a due entry. A nil return consumes the entry; a non-nil
// return counts the attempt as failed and the entry is retried per its
// policy, unless the error is marked terminal.
type Handler interface {
	Handle(ctx context.Context, e Entry) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, e Entry) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// terminalError wraps an error that must not be retried.
type terminalError struct {
	err error
}

func (t *terminalError) Error() string { return "terminal: " + t.err.Error() }
func (t *terminalError) Unwrap() error { return t.err }

// Terminal marks a handler error as non-retryable. The entry moves straight
// to the exhausted state instead of consuming remaining attempts.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether the error chain contains a terminal marker.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
