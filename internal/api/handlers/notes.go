package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"notekeeper/internal/core"
	"notekeeper/internal/types"
)

// NoteRepo defines the data access contract for note operations used by the
// note handler. Mirrors the relevant db.NoteRepository methods.
type NoteRepo interface {
	Create(ctx context.Context, n *types.Note) error
	GetByID(ctx context.Context, id string, userID string) (*types.Note, error)
	List(ctx context.Context, userID string) ([]*types.Note, error)
	Update(ctx context.Context, n *types.Note) error
	SoftDelete(ctx context.Context, id string, userID string) error
	Restore(ctx context.Context, id string, userID string) error
	ListTrash(ctx context.Context, userID string, limit, offset int) ([]*types.Note, error)
	HardDelete(ctx context.Context, id string, userID string) error
	EmptyTrash(ctx context.Context, userID string) (int, error)
}

// ReminderCanceller retires a note's live reminder schedule. The note
// handler calls it before permanent deletion so no orphaned schedule entry
// can fire for a note that no longer exists.
type ReminderCanceller interface {
	Cancel(ctx context.Context, noteID, ownerID string) error
}

// CreateNoteRequest is the request body for POST /v1/notes.
type CreateNoteRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Color  string `json:"color"`
	Pinned bool   `json:"pinned"`
}

// UpdateNoteRequest is the request body for PUT /v1/notes/{id}.
// Pointer fields distinguish "not sent" from zero values.
type UpdateNoteRequest struct {
	Title  *string `json:"title"`
	Body   *string `json:"body"`
	Color  *string `json:"color"`
	Pinned *bool   `json:"pinned"`
}

// NoteHandler serves note CRUD and the trash lifecycle.
type NoteHandler struct {
	repo      NoteRepo
	reminders ReminderCanceller
	validator *core.Validator
	logger    *slog.Logger
}

// NewNoteHandler creates a new NoteHandler with the provided dependencies.
func NewNoteHandler(repo NoteRepo, reminders ReminderCanceller, v *core.Validator, l *slog.Logger) *NoteHandler {
	if l == nil {
		l = slog.Default()
	}
	return &NoteHandler{repo: repo, reminders: reminders, validator: v, logger: l}
}

// RegisterRoutes mounts the note endpoints on the given router.
func (h *NoteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/notes", h.List)
	r.Post("/notes", h.Create)
	r.Get("/notes/{id}", h.Get)
	r.Put("/notes/{id}", h.Update)
	r.Delete("/notes/{id}", h.Trash)
	r.Post("/notes/{id}/restore", h.Restore)
	r.Get("/trash", h.ListTrash)
	r.Delete("/trash", h.EmptyTrash)
	r.Delete("/trash/{id}", h.Purge)
}

// emptyTrashBatchSize caps one trash page while live schedules are retired
// ahead of the bulk delete.
const emptyTrashBatchSize = 200

// actorID extracts the authenticated user's id or writes a 401.
func actorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return "", false
	}
	return actor.UserID, true
}

// List handles GET /v1/notes.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	notes, err := h.repo.List(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if notes == nil {
		notes = []*types.Note{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: notes})
}

// Create handles POST /v1/notes.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	var req CreateNoteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Title == "" && req.Body == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"note must have a title or a body",
			nil,
		))
		return
	}

	note := &types.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     req.Title,
		Body:      req.Body,
		Color:     req.Color,
		Pinned:    req.Pinned,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.Create(r.Context(), note); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.repo.GetByID(r.Context(), note.ID, userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: created})
}

// Get handles GET /v1/notes/{id}.
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	note, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: note})
}

// Update handles PUT /v1/notes/{id}. Only the content fields present in the
// body change; reminder state is untouched by note edits.
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	var req UpdateNoteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	note, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Title != nil {
		note.Title = *req.Title
	}
	if req.Body != nil {
		note.Body = *req.Body
	}
	if req.Color != nil {
		note.Color = *req.Color
	}
	if req.Pinned != nil {
		note.Pinned = *req.Pinned
	}

	if err := h.repo.Update(r.Context(), note); err != nil {
		core.Error(w, r, err)
		return
	}

	updated, err := h.repo.GetByID(r.Context(), note.ID, userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: updated})
}

// Trash handles DELETE /v1/notes/{id}: soft deletion into the trash. A live
// reminder survives the trip and still fires unless cancelled.
func (h *NoteHandler) Trash(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	if err := h.repo.SoftDelete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"trashed": true}})
}

// Restore handles POST /v1/notes/{id}/restore.
func (h *NoteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	noteID := chi.URLParam(r, "id")
	if err := h.repo.Restore(r.Context(), noteID, userID); err != nil {
		core.Error(w, r, err)
		return
	}

	note, err := h.repo.GetByID(r.Context(), noteID, userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: note})
}

// ListTrash handles GET /v1/trash with limit/offset paging.
func (h *NoteHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"limit must be a number between 1 and 200",
				nil,
			))
			return
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"offset must be a non-negative number",
				nil,
			))
			return
		}
		offset = n
	}

	notes, err := h.repo.ListTrash(r.Context(), userID, limit, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if notes == nil {
		notes = []*types.Note{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: notes})
}

// Purge handles DELETE /v1/trash/{id}: permanent deletion of a trashed note.
// Any live reminder schedule is cancelled first so nothing fires for a note
// that no longer exists.
func (h *NoteHandler) Purge(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	noteID := chi.URLParam(r, "id")
	if err := h.reminders.Cancel(r.Context(), noteID, userID); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.repo.HardDelete(r.Context(), noteID, userID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"deleted": true}})
}

// EmptyTrash handles DELETE /v1/trash: permanent deletion of everything in
// the caller's trash. As with Purge, live reminder schedules are cancelled
// before any row is removed; a cancel failure aborts the whole operation and
// leaves the trash intact rather than risk an orphaned entry firing.
func (h *NoteHandler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	for offset := 0; ; offset += emptyTrashBatchSize {
		notes, err := h.repo.ListTrash(r.Context(), userID, emptyTrashBatchSize, offset)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		for _, n := range notes {
			if !n.Reminder.Live() {
				continue
			}
			if err := h.reminders.Cancel(r.Context(), n.ID, userID); err != nil {
				core.Error(w, r, err)
				return
			}
		}
		if len(notes) < emptyTrashBatchSize {
			break
		}
	}

	deleted, err := h.repo.EmptyTrash(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]int{"deleted": deleted}})
}
