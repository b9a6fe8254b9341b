package delay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClaimer records the settlement calls the runner makes.
type fakeClaimer struct {
	mu        sync.Mutex
	due       []Entry
	claimErr  error
	completed []string
	retried   map[string]time.Time
	exhausted map[string]string
	requeued  int
}

func newFakeClaimer(due ...Entry) *fakeClaimer {
	return &fakeClaimer{
		due:       due,
		retried:   make(map[string]time.Time),
		exhausted: make(map[string]string),
	}
}

func (f *fakeClaimer) ClaimDue(_ context.Context, _ time.Time, limit int) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.due) > limit {
		out := f.due[:limit]
		f.due = f.due[limit:]
		return out, nil
	}
	out := f.due
	f.due = nil
	return out, nil
}

func (f *fakeClaimer) Complete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeClaimer) ScheduleRetry(_ context.Context, id string, at time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried[id] = at
	return nil
}

func (f *fakeClaimer) MarkExhausted(_ context.Context, id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exhausted[id] = reason
	return nil
}

func (f *fakeClaimer) RequeueStuck(_ context.Context, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.requeued
	f.requeued = 0
	return n, nil
}

func TestRunner_Tick_CompletesSuccessfulDispatch(t *testing.T) {
	claimer := newFakeClaimer(
		Entry{ID: "e1", Attempt: 1, MaxAttempts: 3, Backoff: time.Minute},
		Entry{ID: "e2", Attempt: 1, MaxAttempts: 3, Backoff: time.Minute},
	)

	var handled []string
	var mu sync.Mutex
	runner := NewRunner(claimer, HandlerFunc(func(_ context.Context, e Entry) error {
		mu.Lock()
		handled = append(handled, e.ID)
		mu.Unlock()
		return nil
	}), RunnerConfig{}, nil)

	runner.tick(context.Background())

	assert.ElementsMatch(t, []string{"e1", "e2"}, handled)
	assert.ElementsMatch(t, []string{"e1", "e2"}, claimer.completed)
	assert.Empty(t, claimer.retried)
	assert.Empty(t, claimer.exhausted)
}

func TestRunner_Tick_SchedulesRetryWithFixedBackoff(t *testing.T) {
	claimer := newFakeClaimer(Entry{ID: "e1", Attempt: 1, MaxAttempts: 3, Backoff: 5 * time.Minute})

	runner := NewRunner(claimer, HandlerFunc(func(_ context.Context, _ Entry) error {
		return errors.New("transient")
	}), RunnerConfig{}, nil)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	runner.nowFn = func() time.Time { return now }

	runner.tick(context.Background())

	require.Contains(t, claimer.retried, "e1")
	assert.True(t, claimer.retried["e1"].Equal(now.Add(5*time.Minute)))
	assert.Empty(t, claimer.completed)
	assert.Empty(t, claimer.exhausted)
}

func TestRunner_Tick_ExhaustsAfterFinalAttempt(t *testing.T) {
	claimer := newFakeClaimer(Entry{ID: "e1", Attempt: 3, MaxAttempts: 3, Backoff: time.Minute})

	runner := NewRunner(claimer, HandlerFunc(func(_ context.Context, _ Entry) error {
		return errors.New("still broken")
	}), RunnerConfig{}, nil)

	runner.tick(context.Background())

	assert.Equal(t, "still broken", claimer.exhausted["e1"])
	assert.Empty(t, claimer.retried)
}

func TestRunner_Tick_TerminalErrorExhaustsImmediately(t *testing.T) {
	claimer := newFakeClaimer(Entry{ID: "e1", Attempt: 1, MaxAttempts: 5, Backoff: time.Minute})

	runner := NewRunner(claimer, HandlerFunc(func(_ context.Context, _ Entry) error {
		return Terminal(errors.New("bad payload"))
	}), RunnerConfig{}, nil)

	runner.tick(context.Background())

	require.Contains(t, claimer.exhausted, "e1")
	assert.Empty(t, claimer.retried)
}

func TestRunner_Run_StopsOnContextCancel(t *testing.T) {
	claimer := newFakeClaimer()
	runner := NewRunner(claimer, HandlerFunc(func(_ context.Context, _ Entry) error {
		return nil
	}), RunnerConfig{PollInterval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
}
