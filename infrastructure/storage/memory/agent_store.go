// Package memory provides in-process registry stores for tests and
// single-node deployments.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// agentEntry holds a serialized copy of a record.
type agentEntry struct {
	data []byte
}

// AgentStore is an in-memory implementation of registry.IndexStore.
type AgentStore struct {
	agents map[string]*agentEntry
	mu     sync.RWMutex
}

// NewAgentStore creates a new in-memory agent store.
func NewAgentStore() *AgentStore {
	return &AgentStore{
		agents: make(map[string]*agentEntry),
	}
}

func (s *AgentStore) decode(entry *agentEntry) (*registry.AgentRecord, error) {
	var rec registry.AgentRecord
	if err := json.Unmarshal(entry.data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert inserts rec or replaces the record with the same agent id.
func (s *AgentStore) Upsert(ctx context.Context, rec *registry.AgentRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := rec.Clone()
	if entry, ok := s.agents[rec.AgentID]; ok {
		prev, err := s.decode(entry)
		if err != nil {
			return "", err
		}
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.ID = uuid.NewString()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	s.agents[rec.AgentID] = &agentEntry{data: data}
	return stored.ID, nil
}

// Get retrieves a record by agent id.
func (s *AgentStore) Get(ctx context.Context, agentID string) (*registry.AgentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.agents[agentID]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return s.decode(entry)
}

// Patch applies a partial update.
func (s *AgentStore) Patch(ctx context.Context, agentID string, patch registry.Patch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.agents[agentID]
	if !ok {
		return false, registry.ErrNotFound
	}
	rec, err := s.decode(entry)
	if err != nil {
		return false, err
	}
	if !patch.Apply(rec) {
		return false, nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	s.agents[agentID] = &agentEntry{data: data}
	return true, nil
}

// Delete removes a record.
func (s *AgentStore) Delete(ctx context.Context, agentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; !ok {
		return registry.ErrNotFound
	}
	delete(s.agents, agentID)
	return nil
}

// List returns records matching the filter, ordered by agent id.
func (s *AgentStore) List(ctx context.Context, filter registry.Filter) ([]*registry.AgentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*registry.AgentRecord, 0, len(s.agents))
	for _, entry := range s.agents {
		rec, err := s.decode(entry)
		if err != nil {
			continue
		}
		if filter.Matches(rec) {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AgentID < result[j].AgentID
	})
	return result, nil
}

// Ping always succeeds unless ctx is done.
func (s *AgentStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records.
func (s *AgentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// Clear removes all records.
func (s *AgentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = make(map[string]*agentEntry)
}

var _ registry.IndexStore = (*AgentStore)(nil)
