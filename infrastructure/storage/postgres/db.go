package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// ErrMigrationFailed indicates the schema could not be created.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// DB is a connection pool holding both registry tables.
type DB struct {
	pool   *pgxpool.Pool
	agents *AgentStore
	facts  *FactsStore
}

// Open creates a connection pool, verifies it and creates the tables
// when AutoMigrate is set.
func Open(ctx context.Context, cfg Config, opts ...ConfigOption) (*DB, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Join(registry.ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(registry.ErrConnectionFailed, err)
	}

	d := newDB(pool, cfg)
	if cfg.AutoMigrate {
		if err := d.migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return d, nil
}

func newDB(pool *pgxpool.Pool, cfg Config) *DB {
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().QueryTimeout
	}
	return &DB{
		pool: pool,
		agents: &AgentStore{
			pool:         pool,
			table:        pgx.Identifier{cfg.Schema, "agents"}.Sanitize(),
			queryTimeout: timeout,
		},
		facts: &FactsStore{
			pool:         pool,
			table:        pgx.Identifier{cfg.Schema, "agent_facts"}.Sanitize(),
			queryTimeout: timeout,
		},
	}
}

// Agents returns the index store.
func (d *DB) Agents() *AgentStore {
	return d.agents
}

// Facts returns the facts store.
func (d *DB) Facts() *FactsStore {
	return d.facts
}

// Close closes the pool.
func (d *DB) Close() {
	d.pool.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			agent_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			status TEXT NOT NULL,
			domain TEXT NOT NULL DEFAULT '',
			capabilities TEXT[] NOT NULL DEFAULT '{}',
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, d.agents.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS agents_status_idx ON %s (status)`, d.agents.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS agents_domain_idx ON %s (domain)`, d.agents.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS agents_capabilities_idx ON %s USING GIN (capabilities)`, d.agents.table),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			username TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL
		)`, d.facts.table),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	for _, stmt := range statements {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return errors.Join(ErrMigrationFailed, err)
		}
	}
	return nil
}

// wrapError joins database errors with registry sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, registry.ErrNotFound) ||
		errors.Is(err, registry.ErrConnectionFailed) ||
		errors.Is(err, registry.ErrOperationTimeout) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(registry.ErrOperationTimeout, err)
	}
	return errors.Join(registry.ErrConnectionFailed, err)
}
