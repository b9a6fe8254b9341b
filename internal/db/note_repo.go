package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"notekeeper/internal/types"
)

// NoteRepository provides data access for the notes table, including the
// reminder state columns (reminder_at, reminder_sent, reminder_schedule_id).
//
// Reminder state is only ever written through partial-field updates so that
// racing writers (user edits, the scheduler, the dispatcher) never clobber
// unrelated fields. The two completion-side updates are guarded by a
// compare-and-swap on reminder_schedule_id: a stale dispatch for a retired
// schedule id can never override the state of a newer schedule.
type NoteRepository struct {
	db DBTX
}

// NewNoteRepository creates a new NoteRepository backed by the given
// database connection (pool or transaction).
func NewNoteRepository(db DBTX) *NoteRepository {
	return &NoteRepository{db: db}
}

// noteColumns defines the standard set of columns selected for note queries.
// Used consistently across all query methods to avoid column drift.
const noteColumns = `n.id, n.user_id, n.title, n.body, n.color, n.pinned,
	n.deleted, n.deleted_at, n.reminder_at, n.reminder_sent,
	n.reminder_schedule_id, n.created_at, n.updated_at`

// scanNote scans a single note row into a types.Note struct.
// The columns must match the order defined in noteColumns.
func scanNote(row pgx.Row) (*types.Note, error) {
	var n types.Note
	var scheduleID *string
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Body,
		&n.Color,
		&n.Pinned,
		&n.Deleted,
		&n.DeletedAt,
		&n.Reminder.At,
		&n.Reminder.Sent,
		&scheduleID,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scheduleID != nil {
		n.Reminder.ScheduleID = *scheduleID
	}
	return &n, nil
}

// scanNotes collects all rows of a noteColumns query.
func scanNotes(rows pgx.Rows) ([]*types.Note, error) {
	defer rows.Close()
	var notes []*types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

// Create inserts a new note owned by the given user.
func (r *NoteRepository) Create(ctx context.Context, n *types.Note) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notes (id, user_id, title, body, color, pinned, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		n.ID, n.UserID, n.Title, n.Body, n.Color, n.Pinned, n.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create note", err)
	}
	return nil
}

// GetByID retrieves a note by ID scoped to its owner. Trashed notes are
// returned as well; a permanently deleted note surfaces as not found.
func (r *NoteRepository) GetByID(ctx context.Context, id string, userID string) (*types.Note, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+noteColumns+`
		 FROM notes n
		 WHERE n.id = $1 AND n.user_id = $2`,
		id, userID,
	)

	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve note", err)
	}
	return n, nil
}

// List returns the owner's notes with trashed notes excluded, unsent
// reminders first, most recently updated first within each group.
func (r *NoteRepository) List(ctx context.Context, userID string) ([]*types.Note, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+noteColumns+`
		 FROM notes n
		 WHERE n.user_id = $1 AND n.deleted = false
		 ORDER BY n.reminder_sent ASC, n.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notes", err)
	}

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notes", err)
	}
	return notes, nil
}

// Update modifies a note's content fields. Reminder state is never touched
// here; it changes only through the dedicated partial updates below.
func (r *NoteRepository) Update(ctx context.Context, n *types.Note) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notes
		 SET title = $3, body = $4, color = $5, pinned = $6, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		n.ID, n.UserID, n.Title, n.Body, n.Color, n.Pinned,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update note", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
	}
	return nil
}

// SoftDelete moves a note to the trash.
func (r *NoteRepository) SoftDelete(ctx context.Context, id string, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notes
		 SET deleted = true, deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND deleted = false`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to trash note", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
	}
	return nil
}

// Restore brings a trashed note back.
func (r *NoteRepository) Restore(ctx context.Context, id string, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notes
		 SET deleted = false, deleted_at = NULL, updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND deleted = true`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to restore note", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
	}
	return nil
}

// ListTrash returns the owner's trashed notes, most recently trashed first.
func (r *NoteRepository) ListTrash(ctx context.Context, userID string, limit, offset int) ([]*types.Note, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+noteColumns+`
		 FROM notes n
		 WHERE n.user_id = $1 AND n.deleted = true
		 ORDER BY n.deleted_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list trash", err)
	}

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan trash", err)
	}
	return notes, nil
}

// HardDelete permanently removes a trashed note. Callers must cancel any
// live reminder schedule before invoking this.
func (r *NoteRepository) HardDelete(ctx context.Context, id string, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notes WHERE id = $1 AND user_id = $2 AND deleted = true`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete note", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
	}
	return nil
}

// EmptyTrash permanently removes every trashed note the user owns and
// returns how many were deleted. Callers must retire any live reminder
// schedules first, the same as for HardDelete.
func (r *NoteRepository) EmptyTrash(ctx context.Context, userID string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notes WHERE user_id = $1 AND deleted = true`,
		userID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to empty trash", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListTrashedBefore returns trashed notes whose deleted_at precedes the
// cutoff, oldest first. Used by the maintenance job to purge old trash.
func (r *NoteRepository) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Note, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+noteColumns+`
		 FROM notes n
		 WHERE n.deleted = true AND n.deleted_at < $1
		 ORDER BY n.deleted_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired trash", err)
	}

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expired trash", err)
	}
	return notes, nil
}

// HardDeleteByIDs permanently removes the given trashed notes regardless of
// owner. Maintenance-only companion to ListTrashedBefore.
func (r *NoteRepository) HardDeleteByIDs(ctx context.Context, ids []string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notes WHERE id = ANY($1) AND deleted = true`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge trash", err)
	}
	return int(tag.RowsAffected()), nil
}

// SetReminder persists a freshly scheduled reminder: the fire instant, an
// unsent flag, and the backing schedule id. The caller has already created
// the delay-store entry; a zero-row update means the note vanished in the
// meantime and surfaces as not found so the caller can compensate.
func (r *NoteRepository) SetReminder(ctx context.Context, id string, userID string, at time.Time, scheduleID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notes
		 SET reminder_at = $3, reminder_sent = false, reminder_schedule_id = $4
		 WHERE id = $1 AND user_id = $2`,
		id, userID, at, scheduleID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set reminder", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
	}
	return nil
}

// MarkReminderSent flips reminder_sent to true if and only if the note's
// current schedule id still equals the id the dispatch was created for.
// Returns false when the guard fails, meaning a newer schedule (or a
// cancellation) owns the reminder now and the stale write was discarded.
func (r *NoteRepository) MarkReminderSent(ctx context.Context, id string, scheduleID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notes
		 SET reminder_sent = true
		 WHERE id = $1 AND reminder_schedule_id = $2`,
		id, scheduleID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark reminder sent", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearReminderSchedule removes the reminder state after a confirmed
// cancellation, guarded by the same schedule-id compare-and-swap.
func (r *NoteRepository) ClearReminderSchedule(ctx context.Context, id string, scheduleID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notes
		 SET reminder_at = NULL, reminder_sent = false, reminder_schedule_id = NULL
		 WHERE id = $1 AND reminder_schedule_id = $2`,
		id, scheduleID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to clear reminder", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DismissReminder marks a reminder as handled without delivery. The fire
// instant and schedule id are kept for history.
func (r *NoteRepository) DismissReminder(ctx context.Context, id string, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notes
		 SET reminder_sent = true
		 WHERE id = $1 AND user_id = $2 AND reminder_at IS NOT NULL`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to dismiss reminder", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNote, "note or reminder not found", nil)
	}
	return nil
}

// ListPendingReminders returns the owner's notes with an unsent reminder,
// ascending by fire time. The read is a plain snapshot and safe to repeat.
func (r *NoteRepository) ListPendingReminders(ctx context.Context, userID string) ([]*types.Note, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+noteColumns+`
		 FROM notes n
		 WHERE n.user_id = $1 AND n.reminder_at IS NOT NULL AND n.reminder_sent = false
		 ORDER BY n.reminder_at ASC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reminders", err)
	}

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminders", err)
	}
	return notes, nil
}
