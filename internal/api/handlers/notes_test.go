package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/core"
	"notekeeper/internal/types"
)

// fakeNoteRepo is an in-memory NoteRepo.
type fakeNoteRepo struct {
	notes map[string]*types.Note
	calls []string
}

func newFakeNoteRepo(notes ...*types.Note) *fakeNoteRepo {
	f := &fakeNoteRepo{notes: make(map[string]*types.Note)}
	for _, n := range notes {
		f.notes[n.ID] = n
	}
	return f
}

func (f *fakeNoteRepo) lookup(id, userID string) (*types.Note, error) {
	n, ok := f.notes[id]
	if !ok || n.UserID != userID {
		return nil, types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
	}
	return n, nil
}

func (f *fakeNoteRepo) Create(_ context.Context, n *types.Note) error {
	f.notes[n.ID] = n
	return nil
}

func (f *fakeNoteRepo) GetByID(_ context.Context, id string, userID string) (*types.Note, error) {
	return f.lookup(id, userID)
}

func (f *fakeNoteRepo) List(_ context.Context, userID string) ([]*types.Note, error) {
	var out []*types.Note
	for _, n := range f.notes {
		if n.UserID == userID && !n.Deleted {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNoteRepo) Update(_ context.Context, n *types.Note) error {
	if _, err := f.lookup(n.ID, n.UserID); err != nil {
		return err
	}
	f.notes[n.ID] = n
	return nil
}

func (f *fakeNoteRepo) SoftDelete(_ context.Context, id string, userID string) error {
	n, err := f.lookup(id, userID)
	if err != nil {
		return err
	}
	n.Deleted = true
	return nil
}

func (f *fakeNoteRepo) Restore(_ context.Context, id string, userID string) error {
	n, err := f.lookup(id, userID)
	if err != nil {
		return err
	}
	n.Deleted = false
	return nil
}

func (f *fakeNoteRepo) ListTrash(_ context.Context, userID string, _, _ int) ([]*types.Note, error) {
	var out []*types.Note
	for _, n := range f.notes {
		if n.UserID == userID && n.Deleted {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNoteRepo) HardDelete(_ context.Context, id string, userID string) error {
	if _, err := f.lookup(id, userID); err != nil {
		return err
	}
	delete(f.notes, id)
	f.calls = append(f.calls, "delete:"+id)
	return nil
}

func (f *fakeNoteRepo) EmptyTrash(_ context.Context, userID string) (int, error) {
	count := 0
	for id, n := range f.notes {
		if n.UserID == userID && n.Deleted {
			delete(f.notes, id)
			f.calls = append(f.calls, "delete:"+id)
			count++
		}
	}
	return count, nil
}

// fakeCanceller records reminder cancellations against the shared call log.
type fakeCanceller struct {
	repo *fakeNoteRepo
	err  error
}

func (f *fakeCanceller) Cancel(_ context.Context, noteID, _ string) error {
	f.repo.calls = append(f.repo.calls, "cancel:"+noteID)
	return f.err
}

func newNoteRouter(repo *fakeNoteRepo, canceller ReminderCanceller) http.Handler {
	h := NewNoteHandler(repo, canceller, core.NewValidator(), nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(types.WithActor(req.Context(), testActor)))
		})
	})
	h.RegisterRoutes(r)
	return r
}

func TestNoteHandler_Create(t *testing.T) {
	repo := newFakeNoteRepo()
	router := newNoteRouter(repo, &fakeCanceller{repo: repo})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notes",
		strings.NewReader(`{"title":"Groceries","body":"milk","pinned":true}`)))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data types.Note `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Groceries", resp.Data.Title)
	assert.Equal(t, "user_1", resp.Data.UserID)
	assert.True(t, resp.Data.Pinned)
	assert.NotEmpty(t, resp.Data.ID)
}

func TestNoteHandler_Create_RequiresTitleOrBody(t *testing.T) {
	repo := newFakeNoteRepo()
	router := newNoteRouter(repo, &fakeCanceller{repo: repo})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(`{"color":"red"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.notes)
}

func TestNoteHandler_Update_PartialFieldsOnly(t *testing.T) {
	repo := newFakeNoteRepo(&types.Note{
		ID: "note_1", UserID: "user_1", Title: "Old title", Body: "old body", Color: "red",
	})
	router := newNoteRouter(repo, &fakeCanceller{repo: repo})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/notes/note_1",
		strings.NewReader(`{"title":"New title"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	n := repo.notes["note_1"]
	assert.Equal(t, "New title", n.Title)
	assert.Equal(t, "old body", n.Body)
	assert.Equal(t, "red", n.Color)
}

func TestNoteHandler_Get_OtherUsersNoteIs404(t *testing.T) {
	repo := newFakeNoteRepo(&types.Note{ID: "note_1", UserID: "user_2", Title: "Theirs"})
	router := newNoteRouter(repo, &fakeCanceller{repo: repo})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notes/note_1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteHandler_TrashAndRestore(t *testing.T) {
	repo := newFakeNoteRepo(&types.Note{ID: "note_1", UserID: "user_1", Title: "Mine"})
	router := newNoteRouter(repo, &fakeCanceller{repo: repo})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/notes/note_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, repo.notes["note_1"].Deleted)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notes/note_1/restore", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, repo.notes["note_1"].Deleted)
}

func TestNoteHandler_ListTrash_RejectsBadPaging(t *testing.T) {
	repo := newFakeNoteRepo()
	router := newNoteRouter(repo, &fakeCanceller{repo: repo})

	for _, target := range []string{"/trash?limit=0", "/trash?limit=999", "/trash?limit=abc", "/trash?offset=-1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
}

func TestNoteHandler_Purge_CancelsReminderBeforeDelete(t *testing.T) {
	repo := newFakeNoteRepo(&types.Note{ID: "note_1", UserID: "user_1", Deleted: true})
	router := newNoteRouter(repo, &fakeCanceller{repo: repo})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/trash/note_1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"cancel:note_1", "delete:note_1"}, repo.calls)
	assert.Empty(t, repo.notes)
}

func TestNoteHandler_EmptyTrash_CancelsLiveSchedulesThenDeletes(t *testing.T) {
	at := time.Now().UTC().Add(time.Hour)
	repo := newFakeNoteRepo(
		&types.Note{
			ID: "note_1", UserID: "user_1", Deleted: true,
			Reminder: types.Reminder{At: &at, ScheduleID: "sched_1"},
		},
		&types.Note{ID: "note_2", UserID: "user_1", Deleted: true},
		&types.Note{ID: "note_3", UserID: "user_1", Title: "keeper"},
	)
	router := newNoteRouter(repo, &fakeCanceller{repo: repo})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/trash", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":2`)

	// The live schedule is retired before anything is removed.
	require.NotEmpty(t, repo.calls)
	assert.Equal(t, "cancel:note_1", repo.calls[0])

	assert.NotContains(t, repo.notes, "note_1")
	assert.NotContains(t, repo.notes, "note_2")
	assert.Contains(t, repo.notes, "note_3")
}

func TestNoteHandler_EmptyTrash_CancelFailureAbortsDelete(t *testing.T) {
	at := time.Now().UTC().Add(time.Hour)
	repo := newFakeNoteRepo(&types.Note{
		ID: "note_1", UserID: "user_1", Deleted: true,
		Reminder: types.Reminder{At: &at, ScheduleID: "sched_1"},
	})
	canceller := &fakeCanceller{
		repo: repo,
		err:  types.NewAppError(types.ErrCodeUpstreamDelayStore, "delay store unavailable", nil),
	}
	router := newNoteRouter(repo, canceller)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/trash", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, repo.notes, "note_1")
}

func TestNoteHandler_Purge_CancelFailureAbortsDelete(t *testing.T) {
	repo := newFakeNoteRepo(&types.Note{ID: "note_1", UserID: "user_1", Deleted: true})
	canceller := &fakeCanceller{
		repo: repo,
		err:  types.NewAppError(types.ErrCodeUpstreamDelayStore, "delay store unavailable", nil),
	}
	router := newNoteRouter(repo, canceller)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/trash/note_1", nil))

	// The note survives: deleting it while its schedule entry lives would
	// leave an orphan that still fires.
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, repo.notes, "note_1")
}
