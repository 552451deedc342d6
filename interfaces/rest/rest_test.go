package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/agent-registry/application"
	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/publisher"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/memory"
	"github.com/felixgeelhaar/agent-registry/interfaces/rest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	api   http.Handler
	facts http.Handler
}

func newEnv(t *testing.T) env {
	t.Helper()

	facts := memory.NewFactsStore()
	pub, err := publisher.NewStorePublisher(facts, "http://localhost:8000")
	if err != nil {
		t.Fatalf("NewStorePublisher failed: %v", err)
	}
	svc, err := application.NewServiceWithOptions(
		application.WithIndexStore(memory.NewAgentStore()),
		application.WithFactsStore(facts),
		application.WithPublisher(publisher.ModeLocal, pub),
	)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	api := rest.NewAPI(svc, "agent-registry", "test")
	return env{api: rest.NewRouter(api), facts: rest.NewFactsRouter(api)}
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, map[string]any) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func register(t *testing.T, e env, body string) {
	t.Helper()
	if code, out := do(t, e.api, http.MethodPost, "/register", body); code != http.StatusOK {
		t.Fatalf("register: %d %v", code, out)
	}
}

func TestAPI_Banner(t *testing.T) {
	t.Parallel()

	code, out := do(t, newEnv(t).api, http.MethodGet, "/", "")
	if code != http.StatusOK || out["name"] != "agent-registry" || out["status"] != "running" {
		t.Errorf("banner: %d %v", code, out)
	}
}

func TestAPI_Lifecycle(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	register(t, e, `{"agent_id":"fin-1","agent_url":"http://fin","capabilities":["financial_analysis","risk_assessment"],"domain":"finance"}`)
	register(t, e, `{"agent_id":"med-1","agent_url":"http://med","capabilities":["diagnosis"],"domain":"healthcare","status":"inactive"}`)

	tests := []struct {
		name      string
		target    string
		wantCount float64
	}{
		{"list all", "/list", 2},
		{"list active", "/list?status=active", 1},
		{"search comma separated", "/search?capabilities=diagnosis,risk_assessment", 2},
		{"search repeated", "/search?capabilities=diagnosis&capabilities=weather", 1},
		{"search domain", "/search?domain=finance", 1},
		{"search text", "/search?q=FIN", 1},
		{"search none", "/search?capabilities=weather", 0},
		{"search skips blank parts", "/search?capabilities=diagnosis,,%20", 1},
	}
	for _, tt := range tests {
		code, out := do(t, e.api, http.MethodGet, tt.target, "")
		if code != http.StatusOK || out["count"] != tt.wantCount {
			t.Errorf("%s: %d count=%v, want %v", tt.name, code, out["count"], tt.wantCount)
		}
	}

	for _, target := range []string{"/search?capabilities=%20", "/search?capabilities=,", "/search?q=%20%20"} {
		if code, out := do(t, e.api, http.MethodGet, target, ""); code != http.StatusBadRequest {
			t.Errorf("%s: %d %v, want 400", target, code, out)
		}
	}

	code, out := do(t, e.api, http.MethodGet, "/lookup/fin-1", "")
	if code != http.StatusOK || out["agent_facts_url"] != "http://localhost:8000/@fin_1.json" {
		t.Errorf("lookup: %d %v", code, out)
	}

	code, out = do(t, e.api, http.MethodPut, "/update/fin-1", `{"description":"Portfolio analytics"}`)
	if code != http.StatusOK || out["modified"] != true {
		t.Errorf("update: %d %v", code, out)
	}

	code, out = do(t, e.api, http.MethodDelete, "/agents/fin-1", "")
	if code != http.StatusOK || out["success"] != true {
		t.Errorf("delete: %d %v", code, out)
	}

	code, _ = do(t, e.api, http.MethodGet, "/lookup/fin-1", "")
	if code != http.StatusNotFound {
		t.Errorf("lookup after delete: %d, want 404", code)
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	register(t, e, `{"agent_id":"fin-1","agent_url":"http://fin"}`)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantKind string
	}{
		{"register missing id", http.MethodPost, "/register", `{"agent_url":"http://a"}`, http.StatusBadRequest, "validation"},
		{"register malformed", http.MethodPost, "/register", `{"agent_id":`, http.StatusBadRequest, "validation"},
		{"list unknown status", http.MethodGet, "/list?status=paused", "", http.StatusBadRequest, "validation"},
		{"lookup unknown", http.MethodGet, "/lookup/ghost", "", http.StatusNotFound, "not_found"},
		{"update empty capabilities", http.MethodPut, "/update/fin-1", `{"capabilities":[]}`, http.StatusBadRequest, "validation"},
		{"update unknown", http.MethodPut, "/update/ghost", `{"description":"x"}`, http.StatusNotFound, "not_found"},
		{"delete unknown", http.MethodDelete, "/agents/ghost", "", http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, out := do(t, e.api, tt.method, tt.target, tt.body)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d (%v)", code, tt.wantCode, out)
			}
			if out["kind"] != tt.wantKind {
				t.Errorf("kind = %v, want %s", out["kind"], tt.wantKind)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{registry.NewValidationError("agent_id", "required"), http.StatusBadRequest},
		{registry.NewNotFoundError("agent", "x"), http.StatusNotFound},
		{registry.NewStorageError("list", errors.New("down")), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", registry.NewNotFoundError("facts", "x")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := rest.StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type unhealthyRegistry struct {
	application.Registry
}

func (unhealthyRegistry) HealthCheck(context.Context) registry.HealthStatus {
	return registry.HealthStatus{Status: registry.Unhealthy, Error: "index: connection refused"}
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	if code, out := do(t, e.api, http.MethodGet, "/health", ""); code != http.StatusOK || out["status"] != "healthy" {
		t.Errorf("health: %d %v", code, out)
	}

	sick := rest.NewRouter(rest.NewAPI(unhealthyRegistry{}, "agent-registry", "test"))
	code, out := do(t, sick, http.MethodGet, "/health", "")
	if code != http.StatusServiceUnavailable || out["status"] != "unhealthy" {
		t.Errorf("unhealthy: %d %v", code, out)
	}
}

func TestFactsRouter(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	register(t, e, `{"agent_id":"fin-1","agent_url":"http://fin","capabilities":["financial_analysis"]}`)

	tests := []struct {
		target   string
		wantCode int
	}{
		{"/@fin_1.json", http.StatusOK},
		{"/facts/fin_1", http.StatusOK},
		{"/@ghost.json", http.StatusNotFound},
		{"/fin_1.json", http.StatusNotFound},
		{"/@.json", http.StatusNotFound},
		{"/health", http.StatusOK},
	}

	for _, tt := range tests {
		code, out := do(t, e.facts, http.MethodGet, tt.target, "")
		if code != tt.wantCode {
			t.Errorf("GET %s = %d, want %d (%v)", tt.target, code, tt.wantCode, out)
		}
		if tt.wantCode == http.StatusOK && strings.Contains(tt.target, "fin_1") {
			if out["username"] != "fin_1" || out["agent_name"] != "fin-1" {
				t.Errorf("GET %s body = %v", tt.target, out)
			}
		}
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rest.Serve(ctx, rest.ServerConfig{Addr: "127.0.0.1:0"}, http.NotFoundHandler())
	}()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}
