package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// ErrMigrationFailed indicates the schema could not be created.
var ErrMigrationFailed = errors.New("sqlite: migration failed")

// DB is an open SQLite database holding both registry tables.
type DB struct {
	db     *sql.DB
	agents *AgentStore
	facts  *FactsStore

	closeOnce sync.Once
	closeErr  error
}

// Open opens the database described by cfg and creates the tables when
// AutoMigrate is set.
func Open(cfg Config, opts ...Option) (*DB, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, errors.New("sqlite: dsn is required")
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	d := &DB{
		db:     db,
		agents: &AgentStore{db: db, table: cfg.TablePrefix + "agents"},
		facts:  &FactsStore{db: db, table: cfg.TablePrefix + "agent_facts"},
	}
	if cfg.AutoMigrate {
		if err := d.migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return d, nil
}

// Agents returns the index store.
func (d *DB) Agents() *AgentStore {
	return d.agents
}

// Facts returns the facts store.
func (d *DB) Facts() *FactsStore {
	return d.facts
}

// Close closes the database. It is safe to call more than once.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}

func (d *DB) migrate(ctx context.Context) error {
	agents, facts := d.agents.table, d.facts.table
	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			agent_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			status TEXT NOT NULL,
			domain TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`, agents),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status)`, agents, agents),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_domain ON %s(domain)`, agents, agents),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			username TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			generated_at INTEGER NOT NULL
		)`, facts),
	}

	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Join(ErrMigrationFailed, err)
		}
	}
	return nil
}

// openDB opens a SQLite database with the given configuration.
func openDB(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsnWithPragmas(cfg))
	if err != nil {
		return nil, errors.Join(registry.ErrConnectionFailed, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Join(registry.ErrConnectionFailed, err)
	}
	return db, nil
}

// dsnWithPragmas moves the journal mode and busy timeout into the DSN so
// every pooled connection gets them, not only the first one.
func dsnWithPragmas(cfg Config) string {
	base, rawQuery, _ := strings.Cut(cfg.DSN, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return cfg.DSN
	}

	if cfg.JournalMode != "" && params.Get("_journal_mode") == "" {
		params.Set("_journal_mode", cfg.JournalMode)
	}
	if cfg.BusyTimeout > 0 && params.Get("_busy_timeout") == "" {
		params.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	}
	if params.Get("_foreign_keys") == "" {
		params.Set("_foreign_keys", "on")
	}
	return base + "?" + params.Encode()
}

func ping(ctx context.Context, db *sql.DB) error {
	return wrapError(db.PingContext(ctx))
}

// wrapError joins database errors with registry sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return registry.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(registry.ErrOperationTimeout, err)
	}
	return errors.Join(registry.ErrConnectionFailed, err)
}
