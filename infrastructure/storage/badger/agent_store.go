package badger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// AgentStore is a BadgerDB implementation of registry.IndexStore.
// Records are JSON values under {prefix}agent:{agent_id}.
type AgentStore struct {
	db     *badger.DB
	prefix string
	writes *writeLocks
}

func (s *AgentStore) key(agentID string) []byte {
	return []byte(s.prefix + agentID)
}

func (s *AgentStore) read(txn *badger.Txn, agentID string) (*registry.AgentRecord, error) {
	item, err := txn.Get(s.key(agentID))
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var rec registry.AgentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *AgentStore) write(txn *badger.Txn, rec *registry.AgentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.SetEntry(badger.NewEntry(s.key(rec.AgentID), data))
}

// Upsert inserts rec or replaces the record with the same agent id.
func (s *AgentStore) Upsert(ctx context.Context, rec *registry.AgentRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var stored *registry.AgentRecord
	err := update(ctx, s.db, s.writes, s.key(rec.AgentID), func(txn *badger.Txn) error {
		stored = rec.Clone()
		prev, err := s.read(txn, rec.AgentID)
		switch {
		case err == nil:
			stored.ID = prev.ID
			stored.CreatedAt = prev.CreatedAt
		case errors.Is(err, badger.ErrKeyNotFound):
			stored.ID = uuid.NewString()
		default:
			return err
		}
		return s.write(txn, stored)
	})
	if err != nil {
		return "", wrapError(err)
	}
	return stored.ID, nil
}

// Get retrieves a record by agent id.
func (s *AgentStore) Get(ctx context.Context, agentID string) (*registry.AgentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *registry.AgentRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = s.read(txn, agentID)
		return err
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return rec, nil
}

// Patch applies a partial update inside a single transaction. Writers of
// the same agent id are serialized, so concurrent patches and upserts
// resolve last-write-wins instead of failing with a conflict.
func (s *AgentStore) Patch(ctx context.Context, agentID string, patch registry.Patch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	changed := false
	err := update(ctx, s.db, s.writes, s.key(agentID), func(txn *badger.Txn) error {
		changed = false
		rec, err := s.read(txn, agentID)
		if err != nil {
			return err
		}
		if changed = patch.Apply(rec); !changed {
			return nil
		}
		return s.write(txn, rec)
	})
	if err != nil {
		return false, wrapError(err)
	}
	return changed, nil
}

// Delete removes a record.
func (s *AgentStore) Delete(ctx context.Context, agentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := update(ctx, s.db, s.writes, s.key(agentID), func(txn *badger.Txn) error {
		if _, err := txn.Get(s.key(agentID)); err != nil {
			return err
		}
		return txn.Delete(s.key(agentID))
	})
	return wrapError(err)
}

// List scans the agent prefix and returns the matching records in key order.
func (s *AgentStore) List(ctx context.Context, filter registry.Filter) ([]*registry.AgentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*registry.AgentRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(s.prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec registry.AgentRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				continue
			}
			if filter.Matches(&rec) {
				result = append(result, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

// Ping reports whether the database is open.
func (s *AgentStore) Ping(ctx context.Context) error {
	return ping(ctx, s.db)
}

var _ registry.IndexStore = (*AgentStore)(nil)
