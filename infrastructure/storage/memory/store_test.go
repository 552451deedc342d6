package memory

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/storetest"
)

func TestAgentStore(t *testing.T) {
	t.Parallel()
	storetest.RunIndexStore(t, func(t *testing.T) registry.IndexStore {
		return NewAgentStore()
	})
}

func TestFactsStore(t *testing.T) {
	t.Parallel()
	storetest.RunFactsStore(t, func(t *testing.T) registry.FactsStore {
		return NewFactsStore()
	})
}

func TestAgentStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s := NewAgentStore()
	ctx := context.Background()
	rec := registry.NewRecord(registry.AgentRegistration{AgentID: "a", AgentURL: "http://a"}, time.Now())
	if _, err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	rec.Capabilities[0] = "mutated"
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Domain = "mutated"

	again, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Capabilities[0] != "chat" || again.Domain != "general" {
		t.Errorf("stored record was mutated: %+v", again)
	}
}

func TestAgentStore_CanceledContext(t *testing.T) {
	t.Parallel()

	s := NewAgentStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.List(ctx, registry.Filter{}); err == nil {
		t.Error("List() with canceled context succeeded")
	}
	if err := s.Ping(ctx); err == nil {
		t.Error("Ping() with canceled context succeeded")
	}
}

func TestAgentStore_LenAndClear(t *testing.T) {
	t.Parallel()

	s := NewAgentStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "a"} {
		rec := registry.NewRecord(registry.AgentRegistration{AgentID: id, AgentURL: "http://" + id}, time.Now())
		if _, err := s.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", s.Len())
	}
}
