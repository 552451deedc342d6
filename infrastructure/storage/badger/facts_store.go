package badger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// FactsStore is a BadgerDB implementation of registry.FactsStore.
type FactsStore struct {
	db     *badger.DB
	prefix string
}

// Save inserts or replaces the document of facts.Username.
func (s *FactsStore) Save(ctx context.Context, facts *registry.AgentFacts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if facts.Username == "" {
		return errors.New("facts username is required")
	}

	data, err := json.Marshal(facts)
	if err != nil {
		return err
	}
	return wrapError(s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(s.prefix+facts.Username), data))
	}))
}

// Get retrieves a facts document.
func (s *FactsStore) Get(ctx context.Context, username string) (*registry.AgentFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(s.prefix + username))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, wrapError(err)
	}

	var facts registry.AgentFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, err
	}
	return &facts, nil
}

// Ping reports whether the database is open.
func (s *FactsStore) Ping(ctx context.Context) error {
	return ping(ctx, s.db)
}

var _ registry.FactsStore = (*FactsStore)(nil)
