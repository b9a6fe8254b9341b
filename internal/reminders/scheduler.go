// Package reminders implements the deferred reminder scheduling subsystem:
// the Scheduler that owns the note-to-schedule mapping and the Dispatcher
// that delivers reminders when the delay store fires them.
//
// The two halves run as independent, concurrently-running consumers. All
// writes to a note's reminder state are partial-field updates guarded by a
// compare-and-swap on the schedule id (see db.NoteRepository), so racing
// writers settle on last-writer-wins keyed by schedule identity.
package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notekeeper/internal/delay"
	"notekeeper/internal/types"
)

// NoteStore is the repository subset the scheduler needs.
// Implemented by db.NoteRepository.
type NoteStore interface {
	GetByID(ctx context.Context, id string, userID string) (*types.Note, error)
	SetReminder(ctx context.Context, id string, userID string, at time.Time, scheduleID string) error
	ClearReminderSchedule(ctx context.Context, id string, scheduleID string) (bool, error)
	DismissReminder(ctx context.Context, id string, userID string) error
	ListPendingReminders(ctx context.Context, userID string) ([]*types.Note, error)
}

// UserStore resolves reminder recipients. Implemented by db.UserRepository.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// ScheduleResult is returned by a successful Schedule call.
type ScheduleResult struct {
	ScheduleID string    `json:"schedule_id"`
	FireAt     time.Time `json:"fire_at"`
}

// Scheduler owns the mapping from a note to its single active schedule
// entry. It is constructed explicitly at process startup and injected with
// its delay store and repository dependencies; there is no package-level
// state.
type Scheduler struct {
	notes  NoteStore
	users  UserStore
	store  delay.Store
	policy delay.AttemptPolicy
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewScheduler creates a Scheduler. Zero policy fields fall back to the
// default attempt policy (5 attempts, 5 minute fixed backoff).
func NewScheduler(notes NoteStore, users UserStore, store delay.Store, policy delay.AttemptPolicy, logger *slog.Logger) *Scheduler {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		notes:  notes,
		users:  users,
		store:  store,
		policy: policy,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// newScheduleID generates a schedule entry id. The note id keeps entries
// traceable to their note in operator tooling; the random suffix keeps ids
// unique across rapid reschedules within the same clock tick.
func newScheduleID(noteID string) string {
	return fmt.Sprintf("reminder-%s-%s", noteID, uuid.New().String())
}

// Schedule creates (or replaces) the reminder for a note at the given
// future instant.
//
// The sequencing keeps every failure a clean pre- or post-state:
// validation happens before any mutation; the delay store entry is created
// before the note is updated; and if the note update then fails, the fresh
// entry is cancelled so no orphan schedule survives with no recorded id.
func (s *Scheduler) Schedule(ctx context.Context, noteID, ownerID string, whenUTC time.Time) (*ScheduleResult, error) {
	now := s.nowFn()
	whenUTC = whenUTC.UTC()
	if !whenUTC.After(now) {
		return nil, types.NewAppError(
			types.ErrCodeValidationReminderNotFuture,
			"reminder time must be in the future",
			nil,
		)
	}

	note, err := s.notes.GetByID(ctx, noteID, ownerID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingRecipient,
			"reminder owner has no account on record",
			err,
		)
	}
	if user.Email == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingRecipient,
			"reminder owner has no email address",
			nil,
		)
	}

	// At most one live schedule per note: retire the previous entry before
	// creating its replacement.
	if note.Reminder.Live() {
		if err := s.store.Cancel(ctx, note.Reminder.ScheduleID); err != nil {
			return nil, err
		}
	}

	scheduleID := newScheduleID(noteID)
	payload, err := json.Marshal(types.ReminderPayload{
		NoteID:    noteID,
		OwnerID:   ownerID,
		Recipient: user.Email,
		Title:     note.Title,
		Body:      note.Body,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode reminder payload", err)
	}

	if err := s.store.Enqueue(ctx, scheduleID, payload, whenUTC.Sub(now), s.policy); err != nil {
		// The note was not touched; the caller can safely retry the whole
		// operation.
		return nil, err
	}

	if err := s.notes.SetReminder(ctx, noteID, ownerID, whenUTC, scheduleID); err != nil {
		// Compensate: without the recorded schedule id the entry could
		// never be found for cancellation later.
		if cErr := s.store.Cancel(ctx, scheduleID); cErr != nil {
			s.logger.Error("failed to cancel orphaned schedule entry",
				"schedule_id", scheduleID,
				"error", cErr.Error(),
			)
		}
		return nil, err
	}

	s.logger.Info("reminder scheduled",
		"note_id", noteID,
		"schedule_id", scheduleID,
		"fire_at", whenUTC.Format(time.RFC3339),
	)

	return &ScheduleResult{ScheduleID: scheduleID, FireAt: whenUTC}, nil
}

// Cancel removes the note's live schedule entry, if any, and clears the
// persisted schedule id. Cancelling a note with no schedule is a successful
// no-op; calling it any number of times is safe.
func (s *Scheduler) Cancel(ctx context.Context, noteID, ownerID string) error {
	note, err := s.notes.GetByID(ctx, noteID, ownerID)
	if err != nil {
		return err
	}

	scheduleID := note.Reminder.ScheduleID
	if scheduleID == "" {
		return nil
	}

	if err := s.store.Cancel(ctx, scheduleID); err != nil {
		return err
	}

	cleared, err := s.notes.ClearReminderSchedule(ctx, noteID, scheduleID)
	if err != nil {
		return err
	}
	if !cleared {
		// A reschedule or dispatch completion won the race; their state is
		// newer than what this cancel observed.
		s.logger.Info("cancel lost race to newer reminder state",
			"note_id", noteID,
			"schedule_id", scheduleID,
		)
	}
	return nil
}

// Dismiss marks the note's reminder as handled without delivery and cancels
// any still-live schedule entry, so a dismissed reminder cannot fire anyway.
func (s *Scheduler) Dismiss(ctx context.Context, noteID, ownerID string) error {
	note, err := s.notes.GetByID(ctx, noteID, ownerID)
	if err != nil {
		return err
	}

	if note.Reminder.Live() {
		if err := s.store.Cancel(ctx, note.Reminder.ScheduleID); err != nil {
			return err
		}
	}

	return s.notes.DismissReminder(ctx, noteID, ownerID)
}

// ListPending returns the owner's unsent reminders ascending by fire time.
func (s *Scheduler) ListPending(ctx context.Context, ownerID string) ([]*types.Note, error) {
	return s.notes.ListPendingReminders(ctx, ownerID)
}
