package delay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_EnqueueAndFire(t *testing.T) {
	var got []Entry
	store := NewMemoryStore(HandlerFunc(func(_ context.Context, e Entry) error {
		got = append(got, e)
		return nil
	}))

	err := store.Enqueue(context.Background(), "entry_1", []byte(`{"k":"v"}`), 10*time.Millisecond, AttemptPolicy{
		MaxAttempts: 3,
		Backoff:     time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, store.Live("entry_1"))

	// Not yet due.
	fired := store.FireDue(context.Background(), time.Now().UTC())
	assert.Equal(t, 0, fired)

	fired = store.FireDue(context.Background(), time.Now().UTC().Add(time.Second))
	assert.Equal(t, 1, fired)
	require.Len(t, got, 1)
	assert.Equal(t, "entry_1", got[0].ID)
	assert.Equal(t, []byte(`{"k":"v"}`), got[0].Payload)
	assert.Equal(t, 1, got[0].Attempt)

	// Completed entries are removed.
	assert.False(t, store.Live("entry_1"))
	_, ok := store.Get("entry_1")
	assert.False(t, ok)
}

func TestMemoryStore_FiresInFireTimeOrder(t *testing.T) {
	var order []string
	store := NewMemoryStore(HandlerFunc(func(_ context.Context, e Entry) error {
		order = append(order, e.ID)
		return nil
	}))

	ctx := context.Background()
	policy := AttemptPolicy{MaxAttempts: 1, Backoff: time.Minute}
	require.NoError(t, store.Enqueue(ctx, "late", nil, 3*time.Hour, policy))
	require.NoError(t, store.Enqueue(ctx, "early", nil, time.Hour, policy))
	require.NoError(t, store.Enqueue(ctx, "mid", nil, 2*time.Hour, policy))

	store.FireDue(ctx, time.Now().UTC().Add(4*time.Hour))
	assert.Equal(t, []string{"early", "mid", "late"}, order)
}

func TestMemoryStore_CancelIsIdempotent(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, "entry_1", nil, time.Hour, AttemptPolicy{MaxAttempts: 1, Backoff: time.Minute}))
	require.Equal(t, 1, store.LiveCount())

	require.NoError(t, store.Cancel(ctx, "entry_1"))
	assert.Equal(t, 0, store.LiveCount())

	// Cancelling again, or cancelling an id that never existed, still succeeds.
	require.NoError(t, store.Cancel(ctx, "entry_1"))
	require.NoError(t, store.Cancel(ctx, "entry_never"))
}

func TestMemoryStore_RetriesThenExhausts(t *testing.T) {
	attempts := 0
	store := NewMemoryStore(HandlerFunc(func(_ context.Context, e Entry) error {
		attempts++
		return errors.New("provider down")
	}))

	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, "entry_1", nil, 0, AttemptPolicy{
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
	}))

	now := time.Now().UTC().Add(time.Second)
	require.Equal(t, 1, store.FireDue(ctx, now))

	// Still pending, not due again until the backoff elapses.
	assert.True(t, store.Live("entry_1"))
	assert.Equal(t, 0, store.FireDue(ctx, now.Add(time.Minute)))

	require.Equal(t, 1, store.FireDue(ctx, now.Add(6*time.Minute)))
	require.Equal(t, 1, store.FireDue(ctx, now.Add(12*time.Minute)))
	assert.Equal(t, 3, attempts)

	// All attempts consumed: retained as exhausted, never fired again.
	entry, ok := store.Get("entry_1")
	require.True(t, ok)
	assert.Equal(t, StatusExhausted, entry.Status)
	assert.Equal(t, "provider down", entry.LastError)
	assert.Equal(t, 0, store.FireDue(ctx, now.Add(time.Hour)))
}

func TestMemoryStore_TerminalErrorSkipsRemainingAttempts(t *testing.T) {
	attempts := 0
	store := NewMemoryStore(HandlerFunc(func(_ context.Context, e Entry) error {
		attempts++
		return Terminal(errors.New("recipient blocked"))
	}))

	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, "entry_1", nil, 0, AttemptPolicy{
		MaxAttempts: 5,
		Backoff:     time.Minute,
	}))

	store.FireDue(ctx, time.Now().UTC().Add(time.Second))
	assert.Equal(t, 1, attempts)

	entry, ok := store.Get("entry_1")
	require.True(t, ok)
	assert.Equal(t, StatusExhausted, entry.Status)
}

func TestTerminal_NilAndDetection(t *testing.T) {
	assert.Nil(t, Terminal(nil))
	assert.False(t, IsTerminal(errors.New("plain")))

	wrapped := Terminal(errors.New("boom"))
	assert.True(t, IsTerminal(wrapped))
	assert.True(t, IsTerminal(errors.Join(errors.New("outer"), wrapped)))
}
