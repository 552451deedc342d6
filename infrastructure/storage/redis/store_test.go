package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/storetest"
)

// The store contract runs against a live server when
// REGISTRY_TEST_REDIS_ADDR is set. Each store gets its own key prefix.
func TestFactsStore(t *testing.T) {
	addr := os.Getenv("REGISTRY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("REGISTRY_TEST_REDIS_ADDR not set")
	}

	storetest.RunFactsStore(t, func(t *testing.T) registry.FactsStore {
		prefix := fmt.Sprintf("registry_test_%d:", time.Now().UnixNano())
		s, err := NewFactsStore(DefaultConfig(), WithAddress(addr), WithKeyPrefix(prefix))
		if err != nil {
			t.Fatalf("NewFactsStore failed: %v", err)
		}
		t.Cleanup(func() {
			ctx := context.Background()
			if keys, err := s.client.Keys(ctx, prefix+"*").Result(); err == nil && len(keys) > 0 {
				_ = s.client.Del(ctx, keys...).Err()
			}
			_ = s.Close()
		})
		return s
	})
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Address != "localhost:6379" {
		t.Errorf("Address = %s, want localhost:6379", cfg.Address)
	}
	if cfg.KeyPrefix != "registry:" {
		t.Errorf("KeyPrefix = %s, want registry:", cfg.KeyPrefix)
	}
	if cfg.FactsTTL != 0 {
		t.Errorf("FactsTTL = %v, want 0", cfg.FactsTTL)
	}
	if cfg.DialTimeout != 5*time.Second {
		t.Errorf("DialTimeout = %v, want 5s", cfg.DialTimeout)
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, opt := range []ConfigOption{
		WithAddress("redis.internal:6380"),
		WithPassword("secret"),
		WithDB(2),
		WithKeyPrefix("nanda:"),
		WithPoolSize(20),
		WithTimeouts(time.Second, 2*time.Second, 3*time.Second),
		WithFactsTTL(time.Hour),
	} {
		opt(&cfg)
	}

	if cfg.Address != "redis.internal:6380" || cfg.Password != "secret" || cfg.DB != 2 {
		t.Errorf("unexpected connection settings: %+v", cfg)
	}
	if cfg.KeyPrefix != "nanda:" || cfg.PoolSize != 20 {
		t.Errorf("unexpected pool settings: %+v", cfg)
	}
	if cfg.DialTimeout != time.Second || cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != 3*time.Second {
		t.Errorf("unexpected timeouts: %+v", cfg)
	}
	if cfg.FactsTTL != time.Hour {
		t.Errorf("FactsTTL = %v, want 1h", cfg.FactsTTL)
	}
}

func TestFactsStore_Key(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prefix   string
		username string
		want     string
	}{
		{"default prefix", "registry:", "fin_1", "registry:facts:fin_1"},
		{"empty prefix", "", "fin_1", "facts:fin_1"},
		{"custom prefix", "nanda:", "med_agent_v2", "nanda:facts:med_agent_v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewFactsStoreFromClient(nil, tt.prefix)
			if got := s.key(tt.username); got != tt.want {
				t.Errorf("key(%q) = %q, want %q", tt.username, got, tt.want)
			}
		})
	}
}

func TestFactsStore_CanceledContext(t *testing.T) {
	t.Parallel()

	s := NewFactsStoreFromClient(nil, "registry:")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Save(ctx, &registry.AgentFacts{Username: "a"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Save error = %v, want context.Canceled", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get error = %v, want context.Canceled", err)
	}
}

func TestFactsStore_SaveRequiresUsername(t *testing.T) {
	t.Parallel()

	s := NewFactsStoreFromClient(nil, "")
	if err := s.Save(context.Background(), &registry.AgentFacts{}); err == nil {
		t.Error("expected error for empty username")
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil key", redis.Nil, registry.ErrNotFound},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), registry.ErrOperationTimeout},
		{"net timeout", timeoutError{}, registry.ErrOperationTimeout},
		{"other", errors.New("connection refused"), registry.ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := wrapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("wrapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}
