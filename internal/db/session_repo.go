package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"notekeeper/internal/types"
)

// Session is a persisted login session. Only the SHA-256 hash of the opaque
// bearer token is stored; the token itself never touches the database.
type Session struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionRepository provides data access for the sessions table.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		s.TokenHash, s.UserID, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// Resolve looks up a session by token hash and joins the owning user, so a
// single round trip yields everything the auth middleware needs for the
// Actor. Expiry is checked by the caller to produce a distinct error code.
func (r *SessionRepository) Resolve(ctx context.Context, tokenHash string) (*Session, *types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT s.token_hash, s.user_id, s.expires_at, s.created_at, `+userColumns+`
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash = $1 AND u.deleted_at IS NULL`,
		tokenHash,
	)

	var s Session
	var u types.User
	var (
		name         *string
		passwordHash *string
		authProvider *string
	)
	err := row.Scan(
		&s.TokenHash,
		&s.UserID,
		&s.ExpiresAt,
		&s.CreatedAt,
		&u.ID,
		&u.Email,
		&name,
		&passwordHash,
		&authProvider,
		&u.CreatedAt,
		&u.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session not found", nil)
		}
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve session", err)
	}
	if name != nil {
		u.Name = *name
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if authProvider != nil {
		u.AuthProvider = *authProvider
	}
	return &s, &u, nil
}

// Extend pushes the session expiry forward (sliding window).
func (r *SessionRepository) Extend(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET expires_at = $2 WHERE token_hash = $1`,
		tokenHash, expiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to extend session", err)
	}
	return nil
}

// Delete removes a session (logout). Unknown hashes are a no-op.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`,
		tokenHash,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpired prunes sessions past their expiry. Returns the count of
// deleted rows for maintenance logging.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune sessions", err)
	}
	return int(tag.RowsAffected()), nil
}
