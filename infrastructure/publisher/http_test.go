package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/publisher"
)

func testFacts() *registry.AgentFacts {
	rec := registry.NewRecord(registry.AgentRegistration{
		AgentID:      "fin-1",
		AgentURL:     "http://fin",
		Capabilities: []string{"analysis"},
	}, time.Now())
	return registry.NewGenerator().Generate(rec)
}

func newHTTPPublisher(t *testing.T, endpoint string, mutate func(*publisher.HTTPConfig)) *publisher.HTTPPublisher {
	t.Helper()

	cfg := publisher.HTTPConfig{
		Endpoint:         endpoint,
		RetrievalBaseURL: "https://facts.example.com",
		Timeout:          2 * time.Second,
		MaxRetries:       3,
		RetryDelay:       time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := publisher.NewHTTPPublisher(cfg)
	if err != nil {
		t.Fatalf("NewHTTPPublisher failed: %v", err)
	}
	return p
}

func TestNewHTTPPublisher_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  publisher.HTTPConfig
	}{
		{"missing endpoint", publisher.HTTPConfig{RetrievalBaseURL: "https://facts"}},
		{"missing base url", publisher.HTTPConfig{Endpoint: "https://facts/api"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := publisher.NewHTTPPublisher(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHTTPPublisher_Success(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantURL string
	}{
		{"empty body uses base url", "", "https://facts.example.com/@fin_1.json"},
		{"url in body", `{"url":"https://cdn.example.com/fin_1.json"}`, "https://cdn.example.com/fin_1.json"},
		{"body without url uses base url", `{"status":"ok"}`, "https://facts.example.com/@fin_1.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var received registry.AgentFacts
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type = %s", ct)
				}
				if r.Header.Get("X-Api-Key") != "secret" {
					t.Errorf("missing configured header")
				}
				if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
					t.Errorf("decode body: %v", err)
				}
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newHTTPPublisher(t, srv.URL, func(c *publisher.HTTPConfig) {
				c.Headers = map[string]string{"X-Api-Key": "secret"}
			})
			url, err := p.Publish(context.Background(), testFacts())
			if err != nil {
				t.Fatalf("Publish failed: %v", err)
			}
			if url != tt.wantURL {
				t.Errorf("url = %s, want %s", url, tt.wantURL)
			}
			if received.Username != "fin_1" {
				t.Errorf("posted username = %q, want fin_1", received.Username)
			}
		})
	}
}

func TestHTTPPublisher_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newHTTPPublisher(t, srv.URL, nil)
	url, err := p.Publish(context.Background(), testFacts())
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if url != "https://facts.example.com/@fin_1.json" {
		t.Errorf("url = %s", url)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestHTTPPublisher_PermanentFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"invalid"}`},
		{"conflict", http.StatusConflict, ""},
		{"malformed success body", http.StatusOK, "<html>ok</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newHTTPPublisher(t, srv.URL, nil)
			_, err := p.Publish(context.Background(), testFacts())
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := registry.PublishKindOf(err); kind != registry.PublishPermanent {
				t.Errorf("kind = %s, want permanent", kind)
			}
			if !errors.Is(err, registry.ErrPublish) {
				t.Errorf("error should match ErrPublish: %v", err)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("calls = %d, want 1 (no retry)", got)
			}
		})
	}
}

func TestHTTPPublisher_TransientFailures(t *testing.T) {
	t.Parallel()

	t.Run("server keeps failing", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		p := newHTTPPublisher(t, srv.URL, nil)
		_, err := p.Publish(context.Background(), testFacts())
		if kind := registry.PublishKindOf(err); err == nil || kind != registry.PublishTransient {
			t.Errorf("err = %v (kind %s), want transient", err, kind)
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("calls = %d, want 3", got)
		}
	})

	t.Run("slow server times out", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		p := newHTTPPublisher(t, srv.URL, func(c *publisher.HTTPConfig) {
			c.Timeout = 50 * time.Millisecond
			c.MaxRetries = 1
		})
		_, err := p.Publish(context.Background(), testFacts())
		if kind := registry.PublishKindOf(err); err == nil || kind != registry.PublishTransient {
			t.Errorf("err = %v (kind %s), want transient", err, kind)
		}
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		endpoint := srv.URL
		srv.Close()

		p := newHTTPPublisher(t, endpoint, func(c *publisher.HTTPConfig) { c.MaxRetries = 1 })
		_, err := p.Publish(context.Background(), testFacts())
		if kind := registry.PublishKindOf(err); err == nil || kind != registry.PublishTransient {
			t.Errorf("err = %v (kind %s), want transient", err, kind)
		}
	})
}

func TestHTTPPublisher_BreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newHTTPPublisher(t, srv.URL, func(c *publisher.HTTPConfig) {
		c.MaxRetries = 1
		c.CircuitBreakerThreshold = 2
		c.CircuitBreakerTimeout = time.Minute
	})

	initial := p.BreakerState()
	for i := 0; i < 2; i++ {
		if _, err := p.Publish(context.Background(), testFacts()); err == nil {
			t.Fatal("expected error")
		}
	}
	if state := p.BreakerState(); state == initial {
		t.Fatalf("breaker state still %s after consecutive failures", state)
	}

	before := calls.Load()
	_, err := p.Publish(context.Background(), testFacts())
	if kind := registry.PublishKindOf(err); err == nil || kind != registry.PublishTransient {
		t.Errorf("err = %v (kind %s), want transient while open", err, kind)
	}
	if calls.Load() != before {
		t.Error("open breaker should not reach the endpoint")
	}
}

func TestHTTPPublisher_RejectionsKeepBreakerClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"invalid"}`},
		{"malformed success body", http.StatusOK, "<html>ok</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newHTTPPublisher(t, srv.URL, func(c *publisher.HTTPConfig) {
				c.MaxRetries = 1
				c.CircuitBreakerThreshold = 2
				c.CircuitBreakerTimeout = time.Minute
			})

			initial := p.BreakerState()
			const attempts = 5
			for i := 0; i < attempts; i++ {
				_, err := p.Publish(context.Background(), testFacts())
				if kind := registry.PublishKindOf(err); err == nil || kind != registry.PublishPermanent {
					t.Fatalf("attempt %d: err = %v (kind %s), want permanent", i, err, kind)
				}
			}
			if state := p.BreakerState(); state != initial {
				t.Errorf("breaker state = %s, want %s", state, initial)
			}
			if got := calls.Load(); got != attempts {
				t.Errorf("calls = %d, want %d", got, attempts)
			}
		})
	}
}
