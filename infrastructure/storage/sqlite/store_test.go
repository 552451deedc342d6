package sqlite

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/storetest"
)

func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()

	opts = append([]Option{WithPath(filepath.Join(t.TempDir(), "test.db"))}, opts...)
	db, err := Open(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAgentStore(t *testing.T) {
	storetest.RunIndexStore(t, func(t *testing.T) registry.IndexStore {
		return newTestDB(t).Agents()
	})
}

func TestFactsStore(t *testing.T) {
	storetest.RunFactsStore(t, func(t *testing.T) registry.FactsStore {
		return newTestDB(t).Facts()
	})
}

func TestAgentStore_ConcurrentUpsertsKeepOneRecord(t *testing.T) {
	store := newTestDB(t).Agents()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := registry.NewRecord(registry.AgentRegistration{AgentID: "same", AgentURL: "http://s"}, time.Now())
			id, err := store.Upsert(ctx, rec)
			if err != nil {
				t.Errorf("Upsert failed: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Errorf("Upsert returned ids %q and %q for the same agent", first, id)
		}
	}

	records, err := store.List(ctx, registry.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}

func TestTablePrefix_IsolatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	tenantA, err := Open(DefaultConfig(), WithPath(path), WithTablePrefix("a_"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tenantA.Close()
	tenantB, err := Open(DefaultConfig(), WithPath(path), WithTablePrefix("b_"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tenantB.Close()

	rec := registry.NewRecord(registry.AgentRegistration{AgentID: "a", AgentURL: "http://a"}, time.Now())
	if _, err := tenantA.Agents().Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := tenantB.Agents().Get(ctx, "a"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("expected ErrNotFound from other prefix, got %v", err)
	}
}

func TestOpen_WithoutAutoMigrate(t *testing.T) {
	db := newTestDB(t, WithoutAutoMigrate())

	_, err := db.Agents().Get(context.Background(), "a")
	if err == nil || errors.Is(err, registry.ErrNotFound) {
		t.Errorf("expected a missing table error, got %v", err)
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("expected error without dsn")
	}
}

func TestClosedDatabase(t *testing.T) {
	db := newTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}

	if err := db.Facts().Ping(context.Background()); !errors.Is(err, registry.ErrConnectionFailed) {
		t.Errorf("expected ErrConnectionFailed from Ping, got %v", err)
	}
}

func TestDSNWithPragmas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want map[string]string
	}{
		{
			name: "defaults",
			cfg:  DefaultConfig(),
			want: map[string]string{
				"mode":          "rwc",
				"_txlock":       "immediate",
				"_journal_mode": "WAL",
				"_busy_timeout": "5000",
				"_foreign_keys": "on",
			},
		},
		{
			name: "explicit dsn params win",
			cfg:  Config{DSN: "file:x.db?_busy_timeout=10", BusyTimeout: 5000},
			want: map[string]string{"_busy_timeout": "10"},
		},
		{
			name: "no query",
			cfg:  Config{DSN: ":memory:", JournalMode: "MEMORY"},
			want: map[string]string{"_journal_mode": "MEMORY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dsn := dsnWithPragmas(tt.cfg)
			_, rawQuery, ok := strings.Cut(dsn, "?")
			if !ok {
				t.Fatalf("dsn %q has no query", dsn)
			}
			params, err := url.ParseQuery(rawQuery)
			if err != nil {
				t.Fatalf("ParseQuery failed: %v", err)
			}
			for k, v := range tt.want {
				if got := params.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestBuildWhereClause(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		filter    registry.Filter
		wantWhere string
		wantArgs  int
	}{
		{"empty", registry.Filter{}, "", 0},
		{"status", registry.StatusFilter(registry.StatusActive), " WHERE status = ?", 1},
		{"status and domain", registry.Filter{Status: registry.StatusActive, Domain: "finance"}, " WHERE status = ? AND domain = ?", 2},
		{"capabilities stay in memory", registry.Filter{Capabilities: []string{"x"}, Query: "q"}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			where, args := buildWhereClause(tt.filter)
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}
