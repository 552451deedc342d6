package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// FactsStore is a SQLite implementation of registry.FactsStore.
type FactsStore struct {
	db    *sql.DB
	table string
}

// Save inserts or replaces the document of facts.Username.
func (s *FactsStore) Save(ctx context.Context, facts *registry.AgentFacts) error {
	if facts.Username == "" {
		return errors.New("facts username is required")
	}

	data, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (username, data, generated_at) VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			data = excluded.data,
			generated_at = excluded.generated_at
	`, s.table)
	_, err = s.db.ExecContext(ctx, query, facts.Username, data, facts.GeneratedAt.UnixNano())
	return wrapError(err)
}

// Get retrieves a facts document.
func (s *FactsStore) Get(ctx context.Context, username string) (*registry.AgentFacts, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE username = ?`, s.table)

	var data []byte
	if err := s.db.QueryRowContext(ctx, query, username).Scan(&data); err != nil {
		return nil, wrapError(err)
	}

	var facts registry.AgentFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}
	return &facts, nil
}

// Ping checks the database is reachable.
func (s *FactsStore) Ping(ctx context.Context) error {
	return ping(ctx, s.db)
}

var _ registry.FactsStore = (*FactsStore)(nil)
