// Package storetest provides behavior tests shared by every registry
// storage backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

func record(id string, caps []string, domain string, status registry.Status, at time.Time) *registry.AgentRecord {
	return registry.NewRecord(registry.AgentRegistration{
		AgentID:      id,
		AgentURL:     "http://" + id,
		Capabilities: caps,
		Domain:       domain,
		Status:       status,
	}, at)
}

// RunIndexStore exercises an IndexStore. newStore must return an empty store.
func RunIndexStore(t *testing.T, newStore func(t *testing.T) registry.IndexStore) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("upsert then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.Upsert(ctx, record("fin-1", []string{"financial_analysis"}, "finance", "", base))
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if id == "" {
			t.Fatal("Upsert() returned empty id")
		}

		got, err := s.Get(ctx, "fin-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ID != id {
			t.Errorf("ID = %q, want %q", got.ID, id)
		}
		if got.Domain != "finance" || got.Status != registry.StatusActive {
			t.Errorf("record = %+v", got)
		}
		if !slices.Equal(got.Modalities, []string{"text"}) {
			t.Errorf("Modalities = %v", got.Modalities)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}
	})

	t.Run("upsert replaces and keeps identity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.Upsert(ctx, record("a", []string{"x", "y"}, "one", "", base))
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if _, err := s.Patch(ctx, "a", registry.Patch{AgentFactsURL: strPtr("http://facts/@a.json")}); err != nil {
			t.Fatalf("Patch() error = %v", err)
		}

		later := base.Add(time.Hour)
		second, err := s.Upsert(ctx, record("a", []string{"z"}, "two", registry.StatusInactive, later))
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if first != second {
			t.Errorf("storage id changed: %q -> %q", first, second)
		}

		got, err := s.Get(ctx, "a")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !slices.Equal(got.Capabilities, []string{"z"}) {
			t.Errorf("Capabilities = %v, want [z]", got.Capabilities)
		}
		if got.Domain != "two" || got.Status != registry.StatusInactive {
			t.Errorf("record = %+v", got)
		}
		if got.AgentFactsURL != "" {
			t.Errorf("AgentFactsURL = %q, want cleared by replace", got.AgentFactsURL)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}
		if !got.UpdatedAt.Equal(later) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
		}

		all, err := s.List(ctx, registry.Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(all) != 1 {
			t.Errorf("len(List()) = %d, want 1", len(all))
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("patch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Upsert(ctx, record("a", []string{"x"}, "d", "", base)); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		later := base.Add(time.Minute)
		changed, err := s.Patch(ctx, "a", registry.Patch{
			AgentUpdate: registry.AgentUpdate{
				AgentURL:     strPtr("http://new"),
				Capabilities: []string{"p", "q", "p"},
			},
			UpdatedAt: later,
		})
		if err != nil {
			t.Fatalf("Patch() error = %v", err)
		}
		if !changed {
			t.Error("Patch() changed = false, want true")
		}

		got, err := s.Get(ctx, "a")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.AgentURL != "http://new" {
			t.Errorf("AgentURL = %q", got.AgentURL)
		}
		if !slices.Equal(got.Capabilities, []string{"p", "q"}) {
			t.Errorf("Capabilities = %v", got.Capabilities)
		}
		if got.Domain != "d" {
			t.Errorf("Domain = %q, want unchanged", got.Domain)
		}
		if !got.UpdatedAt.Equal(later) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
		}

		changed, err = s.Patch(ctx, "a", registry.Patch{
			AgentUpdate: registry.AgentUpdate{AgentURL: strPtr("http://new")},
			UpdatedAt:   later.Add(time.Minute),
		})
		if err != nil {
			t.Fatalf("Patch() error = %v", err)
		}
		if changed {
			t.Error("Patch() with identical values changed = true")
		}

		if _, err := s.Patch(ctx, "missing", registry.Patch{}); !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("Patch(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Upsert(ctx, record("a", nil, "", "", base)); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if err := s.Delete(ctx, "a"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := s.Delete(ctx, "a"); !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
		if _, err := s.Get(ctx, "a"); !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list filters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seed := []*registry.AgentRecord{
			record("fin-1", []string{"a", "b"}, "finance", "", base),
			record("med-1", []string{"c"}, "health", registry.StatusInactive, base),
			record("med-2", []string{"b", "d"}, "health", "", base),
		}
		for _, rec := range seed {
			if _, err := s.Upsert(ctx, rec); err != nil {
				t.Fatalf("Upsert(%s) error = %v", rec.AgentID, err)
			}
		}

		tests := []struct {
			name   string
			filter registry.Filter
			want   []string
		}{
			{"all", registry.Filter{}, []string{"fin-1", "med-1", "med-2"}},
			{"active", registry.StatusFilter(registry.StatusActive), []string{"fin-1", "med-2"}},
			{"inactive", registry.StatusFilter(registry.StatusInactive), []string{"med-1"}},
			{"match any", registry.Filter{Capabilities: []string{"b", "z"}}, []string{"fin-1", "med-2"}},
			{"no capability match", registry.Filter{Capabilities: []string{"z"}}, nil},
			{"domain", registry.Filter{Domain: "health"}, []string{"med-1", "med-2"}},
			{"domain case", registry.Filter{Domain: "Health"}, nil},
			{"query", registry.Filter{Query: "MED"}, []string{"med-1", "med-2"}},
			{"combined", registry.Filter{Capabilities: []string{"b"}, Domain: "health"}, []string{"med-2"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.List(ctx, tt.filter)
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				ids := make([]string, 0, len(got))
				for _, rec := range got {
					ids = append(ids, rec.AgentID)
				}
				slices.Sort(ids)
				if !slices.Equal(ids, tt.want) && !(len(ids) == 0 && len(tt.want) == 0) {
					t.Errorf("List() = %v, want %v", ids, tt.want)
				}
			})
		}
	})

	t.Run("concurrent writes to one agent id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const writers = 20
		var wg sync.WaitGroup
		ids := make([]string, writers)
		errs := make(chan error, 2*writers)
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := record("fin-1", []string{fmt.Sprintf("cap_%d", i)}, "", "", base)
				id, err := s.Upsert(ctx, rec)
				if err != nil {
					errs <- fmt.Errorf("upsert %d: %w", i, err)
					return
				}
				ids[i] = id
				url := fmt.Sprintf("http://facts/%d", i)
				if _, err := s.Patch(ctx, "fin-1", registry.Patch{AgentFactsURL: &url}); err != nil {
					errs <- fmt.Errorf("patch %d: %w", i, err)
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}

		all, err := s.List(ctx, registry.Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("List() = %d records, want 1", len(all))
		}
		for i, id := range ids {
			if id != "" && id != all[0].ID {
				t.Errorf("writer %d got id %q, stored id %q", i, id, all[0].ID)
			}
		}
		if !strings.HasPrefix(all[0].AgentFactsURL, "http://facts/") {
			t.Errorf("AgentFactsURL = %q, want one of the written urls", all[0].AgentFactsURL)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

// RunFactsStore exercises a FactsStore. newStore must return an empty store.
func RunFactsStore(t *testing.T, newStore func(t *testing.T) registry.FactsStore) {
	t.Helper()

	gen := registry.NewGenerator()
	facts := func(id string) *registry.AgentFacts {
		return gen.Generate(record(id, []string{"x"}, "", "", time.Now()))
	}

	t.Run("save then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		want := facts("fin-1")
		if err := s.Save(ctx, want); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := s.Get(ctx, "fin_1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.AgentName != "fin-1" || len(got.Skills) != 1 {
			t.Errorf("facts = %+v", got)
		}
		if got.Skills[0].ID != want.Skills[0].ID {
			t.Errorf("skill id = %q, want %q", got.Skills[0].ID, want.Skills[0].ID)
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := facts("a")
		if err := s.Save(ctx, first); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		second := facts("a")
		second.Description = "replaced"
		if err := s.Save(ctx, second); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := s.Get(ctx, "a")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Description != "replaced" {
			t.Errorf("Description = %q, want replaced", got.Description)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "nobody"); !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

func strPtr(s string) *string { return &s }
