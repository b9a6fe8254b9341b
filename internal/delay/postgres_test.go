package delay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/types"
)

// fakeDB is a minimal DBTX capturing Exec calls.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execTag  pgconn.CommandTag
	execErr  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, arguments)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return f.execTag, nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestPostgresStore_Enqueue_PersistsBackoffAsMilliseconds(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store := NewPostgresStore(db)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.nowFn = func() time.Time { return now }

	err := store.Enqueue(context.Background(), "sched_1", []byte(`{"k":"v"}`), time.Hour, AttemptPolicy{
		MaxAttempts: 5,
		Backoff:     5 * time.Minute,
	})
	require.NoError(t, err)

	require.Len(t, db.execArgs, 1)
	args := db.execArgs[0]
	assert.Equal(t, "sched_1", args[0])
	assert.Equal(t, now.Add(time.Hour), args[1])
	assert.Equal(t, []byte(`{"k":"v"}`), args[2])
	assert.Equal(t, 5, args[3])
	assert.Equal(t, int64(300000), args[4])
}

func TestPostgresStore_Cancel_OnlyDeletesPendingRows(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("DELETE 0")}
	store := NewPostgresStore(db)

	require.NoError(t, store.Cancel(context.Background(), "sched_1"))

	// A delivering or exhausted row must survive a cancel.
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "status = 'pending'")
	assert.Equal(t, []any{"sched_1"}, db.execArgs[0])
}

func TestPostgresStore_RequeueStuck_ReturnsReclaimedCount(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 4")}
	store := NewPostgresStore(db)

	n, err := store.RequeueStuck(context.Background(), time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPostgresStore_DeleteByIDs_ReturnsPrunedCount(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("DELETE 2")}
	store := NewPostgresStore(db)

	n, err := store.DeleteByIDs(context.Background(), []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPostgresStore_ExecFailureWrapsAsUpstream(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}
	store := NewPostgresStore(db)

	err := store.Enqueue(context.Background(), "sched_1", nil, time.Hour, AttemptPolicy{MaxAttempts: 1, Backoff: time.Minute})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamDelayStore, appErr.Code)
}
