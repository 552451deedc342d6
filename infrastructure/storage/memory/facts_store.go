package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// FactsStore is an in-memory implementation of registry.FactsStore.
type FactsStore struct {
	facts map[string][]byte
	mu    sync.RWMutex
}

// NewFactsStore creates a new in-memory facts store.
func NewFactsStore() *FactsStore {
	return &FactsStore{
		facts: make(map[string][]byte),
	}
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

	s.mu.Lock()
	s.facts[facts.Username] = data
	s.mu.Unlock()
	return nil
}

// Get retrieves a facts document.
func (s *FactsStore) Get(ctx context.Context, username string) (*registry.AgentFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.facts[username]
	s.mu.RUnlock()
	if !ok {
		return nil, registry.ErrNotFound
	}

	var facts registry.AgentFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, err
	}
	return &facts, nil
}

// Ping always succeeds unless ctx is done.
func (s *FactsStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored documents.
func (s *FactsStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

var _ registry.FactsStore = (*FactsStore)(nil)
