package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"notekeeper/internal/delay"
	"notekeeper/internal/external"
	"notekeeper/internal/types"
)

// DispatchNoteStore is the repository subset the dispatcher needs.
// Implemented by db.NoteRepository.
type DispatchNoteStore interface {
	GetByID(ctx context.Context, id string, userID string) (*types.Note, error)
	MarkReminderSent(ctx context.Context, id string, scheduleID string) (bool, error)
}

// Dispatcher consumes fired delay entries and delivers reminder emails.
// Its Handle method is the delay.Handler plugged into the runner.
//
// Redeliveries are expected under the at-least-once contract; the
// dispatcher dedups them against the note's persisted reminder state and
// guards against stale entries via the schedule id, so a redelivered or
// superseded entry produces no user-visible effect.
type Dispatcher struct {
	notes   DispatchNoteStore
	email   external.EmailProvider
	from    types.EmailAddress
	metrics Metrics
	logger  *slog.Logger
	nowFn   func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil metrics falls back to NopMetrics.
func NewDispatcher(notes DispatchNoteStore, email external.EmailProvider, from types.EmailAddress, metrics Metrics, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notes:   notes,
		email:   email,
		from:    from,
		metrics: metrics,
		logger:  logger,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Compile-time assertion that Dispatcher satisfies delay.Handler.
var _ delay.Handler = (*Dispatcher)(nil)

// Handle processes one fired schedule entry.
//
// Returning nil consumes the entry. A terminal error consumes it as
// exhausted. Any other error schedules a retry per the entry's policy.
// Entries whose note is gone, already sent, or owned by a newer schedule
// are consumed silently: there is nothing left to deliver.
func (d *Dispatcher) Handle(ctx context.Context, entry delay.Entry) error {
	now := d.nowFn()
	d.metrics.RecordDispatchLag(ctx, now.Sub(entry.FireAt))

	var payload types.ReminderPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		// A payload that never parses can never succeed.
		return delay.Terminal(fmt.Errorf("decode reminder payload: %w", err))
	}

	logger := d.logger.With(
		"schedule_id", entry.ID,
		"note_id", payload.NoteID,
		"attempt", entry.Attempt,
	)

	note, err := d.notes.GetByID(ctx, payload.NoteID, payload.OwnerID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundNote {
			logger.Info("note gone, dropping reminder")
			d.metrics.RecordDispatch(ctx, ResultSkipped)
			return nil
		}
		// Transient lookup failure; let the retry policy take it.
		return err
	}

	// Stale-dispatch guard: only the schedule the note currently points at
	// may act on it. Anything else was superseded by a reschedule or cancel.
	if note.Reminder.ScheduleID != entry.ID {
		logger.Info("stale schedule entry, skipping",
			"current_schedule_id", note.Reminder.ScheduleID,
		)
		d.metrics.RecordDispatch(ctx, ResultSkipped)
		return nil
	}

	// Redelivery dedup: a previous attempt of this same schedule already
	// delivered (or the user dismissed it mid-flight).
	if note.Reminder.Sent {
		logger.Info("reminder already sent, skipping redelivery")
		d.metrics.RecordDispatch(ctx, ResultSkipped)
		return nil
	}

	subject := payload.Title
	if subject == "" {
		subject = "Note reminder"
	}

	sendStart := d.nowFn()
	msgID, err := d.email.Send(ctx, types.SendInput{
		From:        d.from,
		To:          payload.Recipient,
		Subject:     subject,
		BodyHTML:    reminderBodyHTML(payload.Body),
		BodyText:    payload.Body,
		ReferenceID: entry.ID,
	})
	d.metrics.RecordSendLatency(ctx, d.nowFn().Sub(sendStart))
	if err != nil {
		d.metrics.RecordDispatch(ctx, ResultFailed)
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeEmailBlocked {
			// The provider will never accept this recipient; retrying only
			// burns attempts.
			logger.Error("recipient blocked by provider", "error", err.Error())
			return delay.Terminal(err)
		}
		logger.Warn("reminder send failed", "error", err.Error())
		return err
	}

	swapped, err := d.notes.MarkReminderSent(ctx, payload.NoteID, entry.ID)
	if err != nil {
		// The email went out but the sent flag didn't stick. Retrying this
		// entry is the at-least-once answer: the next attempt re-runs the
		// dedup checks and, worst case, delivers a duplicate.
		logger.Error("failed to mark reminder sent", "error", err.Error())
		return err
	}
	if !swapped {
		// The note was rescheduled between our read and this write; the
		// newer schedule owns the reminder state now.
		logger.Info("reminder state moved on during delivery")
		d.metrics.RecordDispatch(ctx, ResultSuccess)
		return nil
	}

	logger.Info("reminder delivered",
		"message_id", msgID,
		"recipient", payload.Recipient,
	)
	d.metrics.RecordDispatch(ctx, ResultSuccess)
	return nil
}

// reminderBodyHTML renders the plain note body as minimal HTML.
func reminderBodyHTML(body string) string {
	if body == "" {
		return ""
	}
	return fmt.Sprintf("<pre style=\"font-family:inherit;white-space:pre-wrap\">%s</pre>", html.EscapeString(body))
}
