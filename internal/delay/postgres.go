package delay

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"notekeeper/internal/types"
)

// DBTX is the minimal pgx interface accepted by the PostgresStore, satisfied
// by both *pgxpool.Pool and pgx.Tx. Mirrors the db package contract without
// importing it, keeping the delay store free of repository dependencies.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable Store implementation over the delay_entries
// table. Claiming uses FOR UPDATE SKIP LOCKED so multiple worker processes
// can poll the same table without dispatching an entry twice.
//
// Backoff is persisted as milliseconds (backoff_ms bigint) to avoid interval
// round-tripping.
type PostgresStore struct {
	db    DBTX
	nowFn func() time.Time
}

// NewPostgresStore creates a PostgresStore backed by the given connection.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, nowFn: func() time.Time { return time.Now().UTC() }}
}

// Enqueue inserts a pending entry due after the given delay.
func (s *PostgresStore) Enqueue(ctx context.Context, id string, payload []byte, delay time.Duration, policy AttemptPolicy) error {
	fireAt := s.nowFn().Add(delay)
	_, err := s.db.Exec(ctx,
		`INSERT INTO delay_entries
		   (id, fire_at, payload, status, attempts, max_attempts, backoff_ms, next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, $3, 'pending', 0, $4, $5, $2, now(), now())`,
		id, fireAt, payload, policy.MaxAttempts, policy.Backoff.Milliseconds(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to enqueue delay entry", err)
	}
	return nil
}

// Cancel deletes a pending entry. Entries already claimed, consumed, or
// unknown are left alone; per contract that is a successful no-op.
func (s *PostgresStore) Cancel(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM delay_entries WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to cancel delay entry", err)
	}
	return nil
}

// ClaimDue atomically transitions up to limit due entries from pending to
// delivering and returns them with the attempt counter already incremented.
// SKIP LOCKED keeps concurrent workers from claiming the same rows.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE delay_entries
		 SET status = 'delivering', attempts = attempts + 1, updated_at = now()
		 WHERE id IN (
		   SELECT id FROM delay_entries
		   WHERE status = 'pending' AND next_attempt_at <= $1
		   ORDER BY next_attempt_at
		   LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, fire_at, payload, attempts, max_attempts, backoff_ms`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to claim delay entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var backoffMs int64
		if err := rows.Scan(&e.ID, &e.FireAt, &e.Payload, &e.Attempt, &e.MaxAttempts, &backoffMs); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to scan delay entry", err)
		}
		e.Status = StatusDelivering
		e.Backoff = time.Duration(backoffMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to read delay entries", err)
	}
	return entries, nil
}

// Complete removes a successfully consumed entry.
func (s *PostgresStore) Complete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM delay_entries WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to complete delay entry", err)
	}
	return nil
}

// ScheduleRetry returns a claimed entry to pending with its next attempt
// instant and the failure that caused the retry.
func (s *PostgresStore) ScheduleRetry(ctx context.Context, id string, at time.Time, reason string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE delay_entries
		 SET status = 'pending', next_attempt_at = $2, last_error = $3, updated_at = now()
		 WHERE id = $1`,
		id, at, reason,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to schedule retry", err)
	}
	return nil
}

// MarkExhausted parks an entry that failed every allowed attempt. The row is
// retained, not deleted: a silently dropped reminder is worse than a visibly
// stuck one.
func (s *PostgresStore) MarkExhausted(ctx context.Context, id string, reason string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE delay_entries
		 SET status = 'exhausted', last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to mark entry exhausted", err)
	}
	return nil
}

// RequeueStuck reclaims entries stranded in delivering by a crashed worker.
// The attempt they were claimed for is counted as spent.
func (s *PostgresStore) RequeueStuck(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE delay_entries
		 SET status = 'pending', next_attempt_at = now(), updated_at = now()
		 WHERE status = 'delivering' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to requeue stuck entries", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListExhaustedBefore returns exhausted entries last touched before the
// cutoff, oldest first. Used by the archiver.
func (s *PostgresStore) ListExhaustedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, fire_at, payload, status, attempts, max_attempts, backoff_ms, COALESCE(last_error, '')
		 FROM delay_entries
		 WHERE status = 'exhausted' AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to list exhausted entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var backoffMs int64
		if err := rows.Scan(&e.ID, &e.FireAt, &e.Payload, &e.Status, &e.Attempt, &e.MaxAttempts, &backoffMs, &e.LastError); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to scan exhausted entry", err)
		}
		e.Backoff = time.Duration(backoffMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to read exhausted entries", err)
	}
	return entries, nil
}

// DeleteByIDs removes entries after the archiver has persisted them.
func (s *PostgresStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM delay_entries WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamDelayStore, "failed to delete archived entries", err)
	}
	return int(tag.RowsAffected()), nil
}

// Compile-time assertion that PostgresStore satisfies the producer contract.
var _ Store = (*PostgresStore)(nil)
