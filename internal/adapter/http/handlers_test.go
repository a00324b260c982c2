package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	adhttp "github.com/Strob0t/AgentDeck/internal/adapter/http"
	"github.com/Strob0t/AgentDeck/internal/adapter/memidentity"
	"github.com/Strob0t/AgentDeck/internal/adapter/memkv"
	"github.com/Strob0t/AgentDeck/internal/adapter/mockapi"
	"github.com/Strob0t/AgentDeck/internal/adapter/ws"
	"github.com/Strob0t/AgentDeck/internal/config"
	"github.com/Strob0t/AgentDeck/internal/domain/agent"
	"github.com/Strob0t/AgentDeck/internal/domain/user"
	"github.com/Strob0t/AgentDeck/internal/port/connectivity"
	"github.com/Strob0t/AgentDeck/internal/service"
)

type testEnv struct {
	router  chi.Router
	h       *adhttp.Handlers
	agents  *service.AgentService
	auth    *service.AuthService
	backend *mockapi.Backend
}

func newTestEnv(t *testing.T, failureRate float64) *testEnv {
	t.Helper()
	hub := ws.NewHub("", nil)
	toasts := service.NewNotificationService()
	backend := mockapi.New(0, failureRate)

	agents := service.NewAgentService(backend, hub, toasts, config.Simulation{
		TickInterval: time.Hour,
		FailureRate:  failureRate,
	})
	agents.Initialize(context.Background())
	t.Cleanup(agents.Close)

	provider := memidentity.New(user.DefaultPasswordPolicy()).WithBcryptCost(bcrypt.MinCost)
	auth := service.NewAuthService(provider, connectivity.Always(true), service.NewPreferences(memkv.New()), hub, toasts,
		config.SignIn{MaxAttempts: 5, Window: 300 * time.Second}, "http://localhost:5173")
	auth.Initialize(context.Background())
	t.Cleanup(auth.Close)

	chat := service.NewChatService()
	chat.SetThinkingDelay(0)

	h := &adhttp.Handlers{
		Agents: agents,
		Auth:   auth,
		Chat:   chat,
		Cache:  service.NewFetchCache(memkv.New(), nil, config.Defaults().Cache),
	}
	r := chi.NewRouter()
	adhttp.MountRoutes(r, h)
	return &testEnv{router: r, h: h, agents: agents, auth: auth, backend: backend}
}

// allowFetch replaces the fetch cache with one that proxies prefix.
func (e *testEnv) allowFetch(prefix string) {
	e.h.Cache = service.NewFetchCache(memkv.New(), nil, config.Cache{
		TTL:             5 * time.Minute,
		AllowedPrefixes: []string{prefix},
	})
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestListAgents(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodGet, "/api/v1/agents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	agents := decode[[]agent.Agent](t, w)
	if len(agents) != 2 {
		t.Fatalf("expected 2 seeded agents, got %d", len(agents))
	}
}

func TestCreateAgentDefaultsToDraft(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodPost, "/api/v1/agents", map[string]string{"name": "X"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	a := decode[agent.Agent](t, w)
	if a.ID == "" || a.Name != "X" || a.Status != agent.StatusStopped {
		t.Fatalf("unexpected agent %+v", a)
	}
	if a.MemoryUsage != 0 || a.CPUUsage != 0 || a.TaskProgress != 0 || a.CurrentTask != agent.InitializingTask {
		t.Fatalf("draft defaults not applied: %+v", a)
	}
	if _, ok := env.backend.Agent(a.ID); !ok {
		t.Fatal("agent not registered with the backend")
	}
	if n := len(env.agents.List()); n != 3 {
		t.Fatalf("expected 3 agents, got %d", n)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodPost, "/api/v1/agents", map[string]any{"name": "X", "cpu_usage": 150})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/agents", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodGet, "/api/v1/agents/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateAgentStatus(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(t, http.MethodPut, "/api/v1/agents/agent-2/status", map[string]string{"status": "running"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if a := decode[agent.Agent](t, w); a.Status != agent.StatusRunning {
		t.Fatalf("status = %q", a.Status)
	}

	w = env.do(t, http.MethodPut, "/api/v1/agents/agent-2/status", map[string]string{"status": "idle"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
	w = env.do(t, http.MethodPut, "/api/v1/agents/agent-2/status", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing status, got %d", w.Code)
	}
}

func TestUpdateAgentStatusSimulatedFailure(t *testing.T) {
	env := newTestEnv(t, 1)

	w := env.do(t, http.MethodPut, "/api/v1/agents/agent-1/status", map[string]string{"status": "paused"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	a, err := env.agents.Get("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != agent.StatusRunning {
		t.Fatalf("failed update changed status to %q", a.Status)
	}

	state := decode[service.ContainerState](t, env.do(t, http.MethodGet, "/api/v1/state", nil))
	if state.Error == "" {
		t.Fatal("expected the failure to be recorded in the container state")
	}
}

func TestRestartAgent(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodPost, "/api/v1/agents/agent-2/restart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	a := decode[agent.Agent](t, w)
	if a.Status != agent.StatusRunning || a.MemoryUsage != 0 || a.CPUUsage != 0 || a.TaskProgress != 0 {
		t.Fatalf("unexpected agent after restart: %+v", a)
	}
}

func TestAgentTasksAndMemory(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(t, http.MethodPost, "/api/v1/agents/agent-1/tasks", map[string]string{"description": "Crawl docs"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if a := decode[agent.Agent](t, w); a.CurrentTask != "Crawl docs" || a.TaskProgress != 0 {
		t.Fatalf("unexpected agent %+v", a)
	}

	w = env.do(t, http.MethodPost, "/api/v1/agents/agent-1/memory", map[string]string{"content": "remember this"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(env.backend.Memories("agent-1")) != 1 {
		t.Fatal("memory not stored")
	}

	w = env.do(t, http.MethodPost, "/api/v1/agents/agent-1/memory", map[string]string{"content": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPatchMetricsClamps(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodPatch, "/api/v1/metrics", map[string]any{"efficiency": 140})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	m := decode[agent.Metrics](t, w)
	if m.Efficiency != 100 || m.CompletionRate != 92 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestTemplatesAndChat(t *testing.T) {
	env := newTestEnv(t, 0)

	if tpl := decode[[]agent.Template](t, env.do(t, http.MethodGet, "/api/v1/templates", nil)); len(tpl) != 3 {
		t.Fatalf("expected 3 templates, got %d", len(tpl))
	}

	w := env.do(t, http.MethodPost, "/api/v1/chat/analyze", map[string]string{"message": "Build a data processing pipeline"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	ex := decode[service.Exchange](t, w)
	if ex.Reply.Analysis == nil || ex.Reply.Analysis.Model == "" {
		t.Fatalf("reply lacks analysis: %+v", ex.Reply)
	}

	w = env.do(t, http.MethodPost, "/api/v1/chat/analyze", map[string]string{"message": " "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", w.Code)
	}
}

func TestFetchRequiresURL(t *testing.T) {
	env := newTestEnv(t, 0)
	if w := env.do(t, http.MethodGet, "/api/v1/fetch", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/fetch?url=ftp://x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestFetchUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	env := newTestEnv(t, 0)
	env.allowFetch(upstream.URL)
	w := env.do(t, http.MethodGet, "/api/v1/fetch?url="+upstream.URL, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if got := decode[map[string]string](t, w)["error"]; got != "HTTP error! status: 404" {
		t.Fatalf("error = %q", got)
	}
}

func TestFetchDefaultConfigRejectsInternalAddresses(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	env := newTestEnv(t, 0)
	for _, target := range []string{upstream.URL, "http://169.254.169.254/latest/meta-data/"} {
		w := env.do(t, http.MethodGet, "/api/v1/fetch?url="+url.QueryEscape(target), nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("fetch %s: expected 400, got %d", target, w.Code)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("upstream hit %d times, want 0", hits.Load())
	}
}

func TestFetchDebounceParameter(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	env := newTestEnv(t, 0)
	env.allowFetch(upstream.URL)
	path := "/api/v1/fetch?url=" + url.QueryEscape(upstream.URL+"/stats")

	var wg sync.WaitGroup
	codes := make([]int, 4)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = env.do(t, http.MethodGet, path+"&debounce=50ms", nil).Code
		}()
	}
	wg.Wait()
	for i, c := range codes {
		if c != http.StatusOK {
			t.Fatalf("request %d: status %d", i, c)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hit %d times, want 1", hits.Load())
	}

	tests := []struct {
		debounce string
		want     int
	}{
		{"soon", http.StatusBadRequest},
		{"-1s", http.StatusBadRequest},
		{"10s", http.StatusBadRequest},
		{"0s", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.debounce, func(t *testing.T) {
			if w := env.do(t, http.MethodGet, path+"&debounce="+tt.debounce, nil); w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, 0)
	creds := map[string]string{"email": "ada@example.com", "password": "Str0ng!pass"}

	w := env.do(t, http.MethodPost, "/api/v1/auth/signup", creds)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/signin", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "access_token") {
		t.Fatal("tokens must not be exposed")
	}

	session := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/auth/session", nil))
	if session["authenticated"] != true {
		t.Fatalf("session = %v", session)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/auth/signout", nil); w.Code != http.StatusNoContent {
		t.Fatalf("signout: expected 204, got %d", w.Code)
	}
	if env.auth.Session() != nil {
		t.Fatal("session should be cleared")
	}
}

func TestSignInErrorsAndRateLimit(t *testing.T) {
	env := newTestEnv(t, 0)
	bad := map[string]string{"email": "ghost@example.com", "password": "wrong"}

	for i := range 5 {
		w := env.do(t, http.MethodPost, "/api/v1/auth/signin", bad)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i+1, w.Code)
		}
		if got := decode[map[string]string](t, w)["error"]; got != user.MsgInvalidLogin {
			t.Fatalf("attempt %d: error = %q", i+1, got)
		}
	}

	w := env.do(t, http.MethodPost, "/api/v1/auth/signin", bad)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if got := decode[map[string]string](t, w)["error"]; !strings.HasPrefix(got, "Too many login attempts.") {
		t.Fatalf("error = %q", got)
	}
}

func TestRememberMe(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodPut, "/api/v1/auth/remember-me", map[string]bool{"remember_me": true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !env.auth.RememberMe() {
		t.Fatal("rememberMe not stored")
	}
}

func TestResetPasswordUnknownUser(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.do(t, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{"email": "ghost@example.com"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if got := decode[map[string]string](t, w)["error"]; got != user.MsgNoAccountReset {
		t.Fatalf("error = %q", got)
	}
}
