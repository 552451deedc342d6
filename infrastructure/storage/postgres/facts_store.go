package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// FactsStore is a PostgreSQL implementation of registry.FactsStore.
type FactsStore struct {
	pool         *pgxpool.Pool
	table        string
	queryTimeout time.Duration
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

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (username, data, generated_at) VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET
			data = EXCLUDED.data,
			generated_at = EXCLUDED.generated_at
	`, s.table)
	_, err = s.pool.Exec(ctx, query, facts.Username, data, facts.GeneratedAt)
	return wrapError(err)
}

// Get retrieves a facts document.
func (s *FactsStore) Get(ctx context.Context, username string) (*registry.AgentFacts, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT data FROM %s WHERE username = $1`, s.table)

	var data []byte
	if err := s.pool.QueryRow(ctx, query, username).Scan(&data); err != nil {
		return nil, wrapError(err)
	}

	var facts registry.AgentFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}
	return &facts, nil
}

// Ping checks the pool can reach the server.
func (s *FactsStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return wrapError(s.pool.Ping(ctx))
}

var _ registry.FactsStore = (*FactsStore)(nil)
