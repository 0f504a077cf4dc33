package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeblocker/internal/logger"
	"timeblocker/internal/model"
	"timeblocker/internal/repository"
	"timeblocker/internal/service"
	"timeblocker/internal/testutil"
)

type testAPI struct {
	handler http.Handler
	auth    *service.AuthService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := testutil.NewTestDB(t)
	repos := repository.NewRepos(db)
	users, tasks, blocks := repos.Users, repos.Tasks, repos.Blocks
	auth := service.NewAuthService(users, "0123456789abcdef0123456789abcdef", time.Hour)

	srv := New(Services{
		Auth:       auth,
		Tasks:      service.NewTaskService(tasks, blocks),
		Blocks:     service.NewTimeBlockService(blocks, tasks, users, nil),
		Categories: service.NewCategoryService(repository.NewCategoryRepository(db)),
		Demo:       service.NewDemoService(repos, nil, logger.Discard()),
	}, logger.Discard(), nil)
	return &testAPI{handler: srv.Handler(), auth: auth}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns its token.
func (a *testAPI) register(t *testing.T, email, timezone string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "secret1", "timezone": timezone,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)

	token := api.register(t, "ada@example.com", "Europe/London")

	rec := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "ada@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", decodeBody[errorBody](t, rec).Error)

	rec = api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "nope", "password": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody[errorBody](t, rec).Errors
	require.Len(t, fields, 2)
	assert.Equal(t, "email", fields[0].Field)
	assert.Equal(t, "password", fields[1].Field)

	rec = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "bad-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decodeBody[errorBody](t, rec).Error)

	rec = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ada@example.com", me["email"])
	assert.NotContains(t, me, "passwordHash")

	rec = api.do(t, http.MethodPatch, "/api/auth/me", token, `{"dailyPlanningTime":"08:15","name":"Ada"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "08:15", decodeBody[map[string]any](t, rec)["dailyPlanningTime"])

	rec = api.do(t, http.MethodPost, "/api/auth/push-subscription", token, map[string]any{
		"subscription": map[string]any{"endpoint": "https://push.example/x", "keys": map[string]string{"p256dh": "p", "auth": "a"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[successBody](t, rec).Success)
}

func TestAuthenticate(t *testing.T) {
	api := newTestAPI(t)

	for _, header := range []string{"", "garbage"} {
		rec := api.do(t, http.MethodGet, "/api/tasks", header, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Please authenticate", decodeBody[errorBody](t, rec).Error)
	}
}

func TestDemoLogin(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/auth/demo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[struct {
		User   model.User `json:"user"`
		Token  string     `json:"token"`
		IsDemo bool       `json:"isDemo"`
	}](t, rec)
	assert.True(t, out.IsDemo)
	assert.Equal(t, service.DemoEmail, out.User.Email)

	rec = api.do(t, http.MethodGet, "/api/tasks", out.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Task](t, rec), 10)

	rec = api.do(t, http.MethodGet, "/api/categories", out.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[[]string](t, rec), "Work")
}

func TestTaskEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "t@example.com", "")

	rec := api.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"title": "Project", "priority": "HIGH"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	project := decodeBody[model.Task](t, rec)

	rec = api.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"title": "Sub", "parentTaskId": project.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	sub := decodeBody[model.Task](t, rec)

	rec = api.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"title": "Orphan", "parentTaskId": "6f1c2a0e-0000-4000-8000-000000000000"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Parent task not found", decodeBody[errorBody](t, rec).Error)

	rec = api.do(t, http.MethodGet, "/api/tasks?parentId=", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roots := decodeBody[[]model.Task](t, rec)
	require.Len(t, roots, 1)
	assert.Equal(t, []string{sub.ID}, roots[0].SubtaskIDs)

	rec = api.do(t, http.MethodPatch, "/api/tasks/"+project.ID, token, `{"parentTaskId":"`+sub.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cycle")

	rec = api.do(t, http.MethodPatch, "/api/tasks/"+sub.ID, token, `{"status":"COMPLETED","notes":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.TaskStatusCompleted, decodeBody[model.Task](t, rec).Status)

	rec = api.do(t, http.MethodDelete, "/api/tasks/"+project.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/tasks/"+sub.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[model.Task](t, rec).ParentTaskID, "subtask detached")

	rec = api.do(t, http.MethodDelete, "/api/tasks/"+project.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Task not found", decodeBody[errorBody](t, rec).Error)

	rec = api.do(t, http.MethodPost, "/api/tasks", token, `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimeBlockEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "b@example.com", "America/New_York")

	create := func(title, start, end string) *httptest.ResponseRecorder {
		return api.do(t, http.MethodPost, "/api/timeblocks", token, map[string]any{"title": title, "start": start, "end": end})
	}

	rec := create("A", "2024-06-01T13:00:00Z", "2024-06-01T14:00:00Z")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeBody[model.TimeBlock](t, rec)

	rec = create("B", "2024-06-01T13:30:00Z", "2024-06-01T14:30:00Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Time block overlaps with existing block", decodeBody[errorBody](t, rec).Error)

	rec = create("C", "2024-06-01T14:10:00Z", "2024-06-01T15:00:00Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Time must be in 15-minute increments", decodeBody[errorBody](t, rec).Error)

	rec = api.do(t, http.MethodPost, "/api/timeblocks", token, map[string]any{"title": "D"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decodeBody[errorBody](t, rec).Errors, 2)

	rec = create("E", "2024-06-02T03:30:00Z", "2024-06-02T04:30:00Z")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/day-view?date=2024-06-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.TimeBlock](t, rec), 2, "E ends after local midnight of June 1")

	rec = api.do(t, http.MethodGet, "/api/day-view", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Date parameter required", decodeBody[errorBody](t, rec).Error)

	rec = api.do(t, http.MethodPatch, "/api/timeblocks/"+a.ID, token, `{"actualEnd":"2024-06-01T13:40:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decodeBody[model.TimeBlock](t, rec).ActualEnd)

	rec = api.do(t, http.MethodDelete, "/api/timeblocks/"+a.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodDelete, "/api/timeblocks/"+a.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Time block not found", decodeBody[errorBody](t, rec).Error)
}

func TestTenantIsolation(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice@example.com", "")
	bob := api.register(t, "bob@example.com", "")

	rec := api.do(t, http.MethodPost, "/api/tasks", alice, map[string]any{"title": "private"})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decodeBody[model.Task](t, rec)

	rec = api.do(t, http.MethodPatch, "/api/tasks/"+task.ID, bob, `{"title":"stolen"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/tasks", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]model.Task](t, rec))
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeBody[errorBody](t, rec).Error)
}
