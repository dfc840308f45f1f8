package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contentplanner/internal/ai"
	"contentplanner/internal/identity"
	"contentplanner/internal/repository"
	"contentplanner/internal/session"
	"contentplanner/pkg/docstore"
)

type testServer struct {
	handler  http.Handler
	sessions *session.Manager
}

func newTestServer(t *testing.T, llm ai.Model, ready map[string]ReadinessCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := identity.NewProvider(repository.NewMemoryUserRepository(), identity.NewMemoryRevocations(), "test-secret", time.Hour, zap.NewNop())
	sessions := session.NewManager(docstore.NewMemStore(), provider, ai.NewAdapter(llm, zap.NewNop()), time.Hour, zap.NewNop())
	t.Cleanup(sessions.Shutdown)

	router := NewRouter(Deps{
		Provider:  provider,
		Auth:      provider,
		Sessions:  sessions,
		Readiness: ready,
		Logger:    zap.NewNop(),
	})
	return &testServer{handler: router.Handler(), sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": "secret123", "displayName": "Tester",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	return decode[identity.Session](t, w).Token
}

type taskList struct {
	Tasks []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Status   string `json:"status"`
		Priority string `json:"priority"`
		Channel  string `json:"channel"`
	} `json:"tasks"`
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

type mutation struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
	Advisory struct {
		Kind  string `json:"kind"`
		Title string `json:"title"`
		Code  string `json:"code"`
	} `json:"advisory"`
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t, ai.ModelFunc(func(context.Context, string, any) error { return nil }), map[string]ReadinessCheck{
		"db": func(context.Context) error { return errors.New("down") },
	})

	if w := ts.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
	w := ts.do(t, http.MethodGet, "/readyz", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d %s", w.Code, w.Body.String())
	}
	if w := ts.do(t, http.MethodGet, "/metrics", "", nil); w.Code != http.StatusOK {
		t.Errorf("metrics = %d", w.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := newTestServer(t, ai.ModelFunc(func(context.Context, string, any) error { return nil }), nil)

	if w := ts.do(t, http.MethodGet, "/tasks", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/tasks", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", w.Code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	ts := newTestServer(t, ai.ModelFunc(func(context.Context, string, any) error { return nil }), nil)
	token := ts.register(t, "planner@example.com")

	w := ts.do(t, http.MethodPost, "/tasks", token, map[string]any{"title": "Draft Q3 Plan"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	created := decode[mutation](t, w)
	if !created.Accepted || created.ID == "" || created.Advisory.Title != "Task Added" {
		t.Fatalf("create body = %+v", created)
	}

	var list taskList
	waitFor(t, func() bool {
		list = decode[taskList](t, ts.do(t, http.MethodGet, "/tasks", token, nil))
		return len(list.Tasks) == 1
	})
	got := list.Tasks[0]
	if got.Status != "To Do" || got.Priority != "Medium" || got.Channel != "General" {
		t.Errorf("defaults not applied: %+v", got)
	}

	w = ts.do(t, http.MethodPut, "/tasks/"+created.ID, token, map[string]any{"status": "Done"})
	if m := decode[mutation](t, w); !m.Accepted || m.Advisory.Title != "Task Updated" {
		t.Errorf("update body = %s", w.Body.String())
	}
	waitFor(t, func() bool {
		l := decode[taskList](t, ts.do(t, http.MethodGet, "/tasks?status=Done", token, nil))
		return len(l.Tasks) == 1
	})

	w = ts.do(t, http.MethodDelete, "/tasks/"+created.ID, token, nil)
	if m := decode[mutation](t, w); !m.Accepted || m.Advisory.Title != "Task Deleted" {
		t.Errorf("delete body = %s", w.Body.String())
	}
	w = ts.do(t, http.MethodDelete, "/tasks/"+created.ID, token, nil)
	if m := decode[mutation](t, w); m.Accepted || m.Advisory.Kind != "failure" || m.Advisory.Code != "not-found" {
		t.Errorf("second delete body = %s", w.Body.String())
	}
}

func TestCreateValidation(t *testing.T) {
	ts := newTestServer(t, ai.ModelFunc(func(context.Context, string, any) error { return nil }), nil)
	token := ts.register(t, "v@example.com")

	tests := []struct {
		name string
		path string
		body map[string]any
		want int
	}{
		{"task without title", "/tasks", map[string]any{"description": "x"}, http.StatusBadRequest},
		{"task with bad status", "/tasks", map[string]any{"title": "x", "status": "Someday"}, http.StatusBadRequest},
		{"task for another user", "/tasks", map[string]any{"title": "x", "userId": "someone-else"}, http.StatusForbidden},
		{"post on General", "/posts", map[string]any{"platform": "General", "content": "hi", "status": "Draft"}, http.StatusBadRequest},
		{"post with bad image url", "/posts", map[string]any{"platform": "X", "content": "hi", "status": "Draft", "imageUrl": "ftp://x"}, http.StatusBadRequest},
		{"unknown task filter", "/tasks?status=Later", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			var body any = tt.body
			if tt.body == nil {
				method = http.MethodGet
				body = nil
			}
			if w := ts.do(t, method, tt.path, token, body); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPrioritizeAndApply(t *testing.T) {
	llm := ai.ModelFunc(func(_ context.Context, _ string, out any) error {
		return json.Unmarshal([]byte(`{"prioritizedTasks":[{"title":"Draft Q3 Plan","priority":"High","reason":"Due Friday"}]}`), out)
	})
	ts := newTestServer(t, llm, nil)
	token := ts.register(t, "ai@example.com")

	created := decode[mutation](t, ts.do(t, http.MethodPost, "/tasks", token, map[string]any{"title": "Draft Q3 Plan"}))
	waitFor(t, func() bool {
		return len(decode[taskList](t, ts.do(t, http.MethodGet, "/tasks", token, nil)).Tasks) == 1
	})

	w := ts.do(t, http.MethodPost, "/ai/prioritize", token, nil)
	type suggestions struct {
		Suggestions []struct {
			TaskID            string `json:"taskId"`
			SuggestedPriority string `json:"suggestedPriority"`
		} `json:"suggestions"`
	}
	got := decode[suggestions](t, w)
	if len(got.Suggestions) != 1 || got.Suggestions[0].TaskID != created.ID || got.Suggestions[0].SuggestedPriority != "High" {
		t.Fatalf("prioritize body = %s", w.Body.String())
	}

	w = ts.do(t, http.MethodPost, "/ai/suggestions/"+created.ID+"/apply", token, nil)
	if m := decode[mutation](t, w); !m.Accepted || m.Advisory.Title != "Priority Updated" {
		t.Fatalf("apply body = %s", w.Body.String())
	}
	waitFor(t, func() bool {
		return len(decode[taskList](t, ts.do(t, http.MethodGet, "/tasks?priority=High", token, nil)).Tasks) == 1
	})

	if w := ts.do(t, http.MethodPost, "/ai/suggestions/"+created.ID+"/dismiss", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("dismiss after apply = %d", w.Code)
	}
}

func TestGeneratePostEndpoint(t *testing.T) {
	llm := ai.ModelFunc(func(_ context.Context, _ string, out any) error {
		return json.Unmarshal([]byte(`{"post":"Hello LinkedIn"}`), out)
	})
	ts := newTestServer(t, llm, nil)
	token := ts.register(t, "gen@example.com")

	w := ts.do(t, http.MethodPost, "/ai/posts/generate", token, map[string]string{"platform": "LinkedIn", "topic": "hi", "tone": "warm"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("short topic = %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/ai/posts/generate", token, map[string]string{"platform": "LinkedIn", "topic": "Hiring season", "tone": "warm"})
	body := decode[map[string]any](t, w)
	if w.Code != http.StatusOK || body["post"] != "Hello LinkedIn" {
		t.Errorf("generate = %d %s", w.Code, w.Body.String())
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := newTestServer(t, ai.ModelFunc(func(context.Context, string, any) error { return nil }), nil)
	token := ts.register(t, "bye@example.com")

	if w := ts.do(t, http.MethodGet, "/auth/me", token, nil); w.Code != http.StatusOK {
		t.Fatalf("me = %d", w.Code)
	}
	if ts.sessions.Count() != 1 {
		t.Fatalf("sessions = %d", ts.sessions.Count())
	}
	if w := ts.do(t, http.MethodPost, "/auth/logout", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout = %d %s", w.Code, w.Body.String())
	}
	if ts.sessions.Count() != 0 {
		t.Errorf("session not torn down, count = %d", ts.sessions.Count())
	}
	if w := ts.do(t, http.MethodGet, "/tasks", token, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("after logout = %d", w.Code)
	}
}

func TestAdvisoriesDrain(t *testing.T) {
	ts := newTestServer(t, ai.ModelFunc(func(context.Context, string, any) error { return nil }), nil)
	token := ts.register(t, "inbox@example.com")

	ts.do(t, http.MethodPost, "/ai/prioritize", token, nil)

	type advisories struct {
		Advisories []struct {
			Title string `json:"title"`
		} `json:"advisories"`
	}
	got := decode[advisories](t, ts.do(t, http.MethodGet, "/advisories", token, nil))
	if len(got.Advisories) != 1 || got.Advisories[0].Title != "No tasks" {
		t.Errorf("advisories = %+v", got)
	}
	got = decode[advisories](t, ts.do(t, http.MethodGet, "/advisories", token, nil))
	if len(got.Advisories) != 0 {
		t.Errorf("not drained: %+v", got)
	}
}

func TestCalendarParams(t *testing.T) {
	ts := newTestServer(t, ai.ModelFunc(func(context.Context, string, any) error { return nil }), nil)
	token := ts.register(t, "cal@example.com")

	if w := ts.do(t, http.MethodGet, "/calendar?month=2026-13", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad month = %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/calendar/day", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing date = %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/calendar?month=2026-06&tz=UTC", token, nil); w.Code != http.StatusOK {
		t.Errorf("month = %d %s", w.Code, w.Body.String())
	}
	if w := ts.do(t, http.MethodGet, "/dashboard", token, nil); w.Code != http.StatusOK {
		t.Errorf("dashboard = %d", w.Code)
	}
}
