package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"notekeeper/internal/core"
	"notekeeper/internal/reminders"
	"notekeeper/internal/types"
)

// SchedulerService defines the reminder operations used by the reminder
// handler. Implemented by reminders.Scheduler.
type SchedulerService interface {
	Schedule(ctx context.Context, noteID, ownerID string, whenUTC time.Time) (*reminders.ScheduleResult, error)
	Cancel(ctx context.Context, noteID, ownerID string) error
	Dismiss(ctx context.Context, noteID, ownerID string) error
	ListPending(ctx context.Context, ownerID string) ([]*types.Note, error)
}

// SetReminderRequest is the request body for POST /v1/notes/{id}/reminder.
// At must be an RFC 3339 instant strictly in the future.
type SetReminderRequest struct {
	At time.Time `json:"at" validate:"required"`
}

// ReminderHandler serves the reminder lifecycle: schedule, cancel, dismiss,
// and the pending list.
type ReminderHandler struct {
	scheduler SchedulerService
	validator *core.Validator
	logger    *slog.Logger
}

// NewReminderHandler creates a new ReminderHandler with the provided
// dependencies.
func NewReminderHandler(scheduler SchedulerService, v *core.Validator, l *slog.Logger) *ReminderHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ReminderHandler{scheduler: scheduler, validator: v, logger: l}
}

// RegisterRoutes mounts the reminder endpoints on the given router.
func (h *ReminderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notes/{id}/reminder", h.Set)
	r.Delete("/notes/{id}/reminder", h.Cancel)
	r.Post("/notes/{id}/reminder/dismiss", h.Dismiss)
	r.Get("/reminders", h.ListPending)
}

// Set handles POST /v1/notes/{id}/reminder. Scheduling over an existing
// reminder replaces it; the retired schedule can no longer fire.
func (h *ReminderHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	var req SetReminderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.scheduler.Schedule(r.Context(), chi.URLParam(r, "id"), userID, req.At)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// Cancel handles DELETE /v1/notes/{id}/reminder. Cancelling a note without
// a reminder succeeds; the operation is idempotent.
func (h *ReminderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	if err := h.scheduler.Cancel(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"cancelled": true}})
}

// Dismiss handles POST /v1/notes/{id}/reminder/dismiss: the reminder is
// marked handled without delivery and will not fire.
func (h *ReminderHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	if err := h.scheduler.Dismiss(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"dismissed": true}})
}

// ListPending handles GET /v1/reminders: the caller's unsent reminders
// ascending by fire time.
func (h *ReminderHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	notes, err := h.scheduler.ListPending(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if notes == nil {
		notes = []*types.Note{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: notes})
}
