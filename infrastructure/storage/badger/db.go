package badger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// DB owns a BadgerDB database shared by the agent and facts stores.
type DB struct {
	db        *badger.DB
	keyPrefix string
	writes    *writeLocks
	gcStop    chan struct{}
	gcWg      sync.WaitGroup
	closeOnce sync.Once
}

// Open opens the database and starts value log GC.
func Open(cfg Config, opts ...Option) (*DB, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	d := &DB{
		db:        db,
		keyPrefix: cfg.KeyPrefix,
		writes:    newWriteLocks(),
		gcStop:    make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		d.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return d, nil
}

func (d *DB) startGC(interval time.Duration, discardRatio float64) {
	d.gcWg.Add(1)
	go func() {
		defer d.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-d.gcStop:
				return
			case <-ticker.C:
				for d.db.RunValueLogGC(discardRatio) == nil {
				}
			}
		}
	}()
}

// Agents returns the agent index store.
func (d *DB) Agents() *AgentStore {
	return &AgentStore{db: d.db, prefix: d.keyPrefix + "agent:", writes: d.writes}
}

// Facts returns the facts store.
func (d *DB) Facts() *FactsStore {
	return &FactsStore{db: d.db, prefix: d.keyPrefix + "facts:"}
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.gcStop)
		d.gcWg.Wait()
		err = d.db.Close()
	})
	return err
}

func ping(ctx context.Context, db *badger.DB) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.IsClosed() {
		return errors.Join(registry.ErrConnectionFailed, errors.New("badger: database closed"))
	}
	return nil
}

// wrapError maps badger errors onto registry sentinels.
func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return registry.ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return errors.Join(registry.ErrConnectionFailed, err)
	default:
		return err
	}
}
