package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeblocker/internal/model"
	"timeblocker/internal/service"
)

// fakeAPI serves a small in-memory task and block API. Handlers can be made
// to fail or to wait on gate before answering.
type fakeAPI struct {
	mu     sync.Mutex
	tasks  []model.Task
	blocks []model.TimeBlock
	fail   map[string]int // "METHOD path" -> status
	gate   chan struct{}
	bodies []map[string]any
	auth   []string
	nextID int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{fail: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", f.listTasks)
	mux.HandleFunc("POST /api/tasks", f.createTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", f.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", f.deleteTask)
	mux.HandleFunc("GET /api/day-view", f.dayView)
	mux.HandleFunc("PATCH /api/timeblocks/{id}", f.updateBlock)
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"user": model.User{ID: "u1", Email: "a@b.c"}, "token": "tok"})
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		status, failing := f.fail[r.Method+" "+r.URL.Path]
		gate := f.gate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if failing {
			fields := []service.FieldError{{Field: "title", Msg: "Title is required"}}
			writeTestJSON(w, status, map[string]any{"error": "Failed to save", "errors": fields})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) listTasks(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeTestJSON(w, http.StatusOK, f.tasks)
}

func (f *fakeAPI) createTask(w http.ResponseWriter, r *http.Request) {
	var in service.TaskInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	task := model.Task{ID: "srv-" + string(rune('0'+f.nextID)), Title: in.Title, Status: model.TaskStatusPending, Priority: model.PriorityMedium}
	f.tasks = append(f.tasks, task)
	writeTestJSON(w, http.StatusCreated, task)
}

func (f *fakeAPI) updateTask(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	for i := range f.tasks {
		if f.tasks[i].ID == r.PathValue("id") {
			if title, ok := body["title"].(string); ok {
				f.tasks[i].Title = title
			}
			writeTestJSON(w, http.StatusOK, f.tasks[i])
			return
		}
	}
	writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
}

func (f *fakeAPI) deleteTask(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == r.PathValue("id") {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			writeTestJSON(w, http.StatusOK, map[string]bool{"success": true})
			return
		}
	}
	writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
}

func (f *fakeAPI) dayView(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeTestJSON(w, http.StatusOK, f.blocks)
}

func (f *fakeAPI) updateBlock(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	for i := range f.blocks {
		if f.blocks[i].ID == r.PathValue("id") {
			if _, ok := body["actualEnd"]; ok {
				end := f.blocks[i].End.Add(-15 * time.Minute)
				f.blocks[i].ActualEnd = &end
			}
			writeTestJSON(w, http.StatusOK, f.blocks[i])
			return
		}
	}
	writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "Time block not found"})
}

func (f *fakeAPI) failOn(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[route] = status
}

func (f *fakeAPI) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func seededTasks(t *testing.T) (*fakeAPI, *TaskStore) {
	t.Helper()
	f, srv := newFakeAPI(t)
	f.mu.Lock()
	f.tasks = []model.Task{
		{ID: "a", Title: "Alpha", Status: model.TaskStatusPending, Priority: model.PriorityHigh},
		{ID: "b", Title: "Beta", Status: model.TaskStatusPending, Priority: model.PriorityMedium},
		{ID: "c", Title: "Gamma", Status: model.TaskStatusPending, Priority: model.PriorityLow},
	}
	f.mu.Unlock()
	store := NewTaskStore(New(srv.URL, WithToken("tok")))
	require.NoError(t, store.Fetch(context.Background(), TaskFilter{}))
	return f, store
}

func (f *fakeAPI) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[len(f.auth)-1]
}

func (f *fakeAPI) body(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[i]
}

func ids(entries []Entry[model.Task]) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Value.ID
	}
	return out
}

func TestClient_ErrorsAndAuth(t *testing.T) {
	f, srv := newFakeAPI(t)
	c := New(srv.URL)
	ctx := context.Background()

	res, err := c.Login(ctx, "a@b.c", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, "tok", c.Token())

	_, err = c.ListTasks(ctx, TaskFilter{Roots: true})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", f.lastAuth())

	f.failOn("POST /api/tasks", http.StatusBadRequest)
	_, err = c.CreateTask(ctx, service.TaskInput{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Failed to save", apiErr.Message)
	require.Len(t, apiErr.Fields, 1)
	assert.Equal(t, "title", apiErr.Fields[0].Field)

	srv.Close()
	_, err = c.ListTasks(ctx, TaskFilter{})
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestClient_HTTPClientOption(t *testing.T) {
	assert.Same(t, http.DefaultClient, New("http://api.test").http, "no timeout policy of its own")

	f, srv := newFakeAPI(t)
	gate := f.hold()
	t.Cleanup(func() { close(gate) })
	c := New(srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}), WithToken("tok"))

	_, err := c.ListTasks(context.Background(), TaskFilter{})
	assert.ErrorIs(t, err, ErrNetwork, "the caller's client timeout applies")
}

func TestTaskStore_CreateReplacesTempEntry(t *testing.T) {
	f, store := seededTasks(t)
	gate := f.hold()

	done := make(chan error, 1)
	go func() {
		_, err := store.Create(context.Background(), service.TaskInput{Title: " Delta "})
		done <- err
	}()

	var pending Entry[model.Task]
	require.Eventually(t, func() bool {
		entries := store.Tasks()
		if len(entries) != 4 {
			return false
		}
		pending = entries[3]
		return true
	}, time.Second, 5*time.Millisecond)
	assert.True(t, strings.HasPrefix(pending.Value.ID, "temp-"))
	assert.Equal(t, PendingCreate(pending.Value.ID), pending.State)
	assert.Equal(t, "Delta", pending.Value.Title)

	_, err := store.Update(context.Background(), pending.Value.ID, service.TaskPatch{Title: service.Some("x")})
	assert.ErrorIs(t, err, ErrMutationPending)

	close(gate)
	require.NoError(t, <-done)

	entries := store.Tasks()
	assert.Equal(t, []string{"a", "b", "c", "srv-1"}, ids(entries))
	assert.Equal(t, Synced(), entries[3].State)
}

func TestTaskStore_CreateFailureRemovesTempEntry(t *testing.T) {
	f, store := seededTasks(t)
	f.failOn("POST /api/tasks", http.StatusBadRequest)

	_, err := store.Create(context.Background(), service.TaskInput{Title: ""})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(store.Tasks()))
	var apiErr *APIError
	assert.ErrorAs(t, store.LastError(), &apiErr)
}

func TestTaskStore_UpdateRollbackTouchesOnlyTarget(t *testing.T) {
	f, store := seededTasks(t)
	ctx := context.Background()

	got, err := store.Update(ctx, "a", service.TaskPatch{Title: service.Some("Alpha 2")})
	require.NoError(t, err)
	assert.Equal(t, "Alpha 2", got.Title)
	assert.Equal(t, map[string]any{"title": "Alpha 2"}, f.body(0), "only set keys are sent")

	f.failOn("PATCH /api/tasks/b", http.StatusInternalServerError)
	_, err = store.Update(ctx, "b", service.TaskPatch{Title: service.Some("Beta 2"), Notes: service.Null[string]()})
	require.Error(t, err)

	b, ok := store.Get("b")
	require.True(t, ok)
	assert.Equal(t, "Beta", b.Value.Title, "snapshot restored")
	assert.Equal(t, StatusError, b.State.Status)
	assert.ErrorIs(t, b.State.Err, err)

	a, _ := store.Get("a")
	assert.Equal(t, "Alpha 2", a.Value.Title)
	assert.Equal(t, Synced(), a.State)

	_, err = store.Update(ctx, "missing", service.TaskPatch{})
	assert.ErrorIs(t, err, ErrNotInStore)
}

func TestTaskStore_DeleteRollbackRestoresPosition(t *testing.T) {
	f, store := seededTasks(t)
	ctx := context.Background()

	f.failOn("DELETE /api/tasks/b", http.StatusInternalServerError)
	require.Error(t, store.Delete(ctx, "b"))
	entries := store.Tasks()
	assert.Equal(t, []string{"a", "b", "c"}, ids(entries))
	assert.Equal(t, StatusError, entries[1].State.Status)

	require.NoError(t, store.Delete(ctx, "c"))
	assert.Equal(t, []string{"a", "b"}, ids(store.Tasks()))
}

func TestTaskStore_OneMutationAtATime(t *testing.T) {
	f, store := seededTasks(t)
	ctx := context.Background()
	gate := f.hold()

	done := make(chan error, 1)
	go func() { done <- store.Delete(ctx, "a") }()

	require.Eventually(t, func() bool { return len(store.Tasks()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, store.Delete(ctx, "a"), ErrMutationPending)
	_, err := store.Update(ctx, "a", service.TaskPatch{Title: service.Some("again")})
	assert.ErrorIs(t, err, ErrMutationPending)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"b", "c"}, ids(store.Tasks()))
}

func TestTaskStore_FetchFailureKeepsList(t *testing.T) {
	f, store := seededTasks(t)
	f.failOn("GET /api/tasks", http.StatusInternalServerError)

	require.Error(t, store.Fetch(context.Background(), TaskFilter{}))
	assert.Len(t, store.Tasks(), 3)
	assert.Error(t, store.LastError())
}

func TestTimeBlockStore_FetchDayAndUpdate(t *testing.T) {
	f, srv := newFakeAPI(t)
	start := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	f.mu.Lock()
	f.blocks = []model.TimeBlock{
		{ID: "late", Title: "Late", Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)},
		{ID: "early", Title: "Early", Start: start, End: start.Add(time.Hour)},
	}
	f.mu.Unlock()
	store := NewTimeBlockStore(New(srv.URL))
	ctx := context.Background()

	require.NoError(t, store.FetchDay(ctx, "2024-06-01"))
	blocks := store.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "early", blocks[0].Value.ID)

	actual := start.Add(45 * time.Minute)
	got, err := store.Update(ctx, "early", service.TimeBlockPatch{ActualEnd: service.Some(actual)})
	require.NoError(t, err)
	require.NotNil(t, got.ActualEnd)
	assert.Contains(t, f.body(0), "actualEnd")
	assert.NotContains(t, f.body(0), "title")

	f.failOn("PATCH /api/timeblocks/late", http.StatusBadRequest)
	_, err = store.Update(ctx, "late", service.TimeBlockPatch{Start: service.Some(start)})
	require.Error(t, err)
	late, _ := store.Get("late")
	assert.Equal(t, start.Add(2*time.Hour), late.Value.Start)
	assert.Equal(t, StatusError, late.State.Status)
	assert.False(t, errors.Is(late.State.Err, ErrNetwork))
}
