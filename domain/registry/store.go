package registry

import "context"

// IndexStore persists agent records keyed by agent id.
type IndexStore interface {
	// Upsert inserts rec or replaces the record with the same agent id.
	// The ID and CreatedAt of an existing record are preserved. It
	// returns the storage identifier of the record.
	Upsert(ctx context.Context, rec *AgentRecord) (string, error)

	// Get retrieves a record by agent id.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, agentID string) (*AgentRecord, error)

	// Patch applies a partial update and reports whether the record changed.
	// Returns ErrNotFound if the record doesn't exist.
	Patch(ctx context.Context, agentID string, patch Patch) (bool, error)

	// Delete removes a record.
	// Returns ErrNotFound if the record doesn't exist.
	Delete(ctx context.Context, agentID string) error

	// List returns every record matching the filter. Order is unspecified.
	List(ctx context.Context, filter Filter) ([]*AgentRecord, error)

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error
}

// FactsStore persists facts documents keyed by username.
type FactsStore interface {
	// Save inserts or replaces the facts document for facts.Username.
	Save(ctx context.Context, facts *AgentFacts) error

	// Get retrieves a facts document.
	// Returns ErrNotFound if the document doesn't exist.
	Get(ctx context.Context, username string) (*AgentFacts, error)

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error
}

// Publisher makes a facts document retrievable and returns its URL.
// Failures are *PublishError values.
type Publisher interface {
	Publish(ctx context.Context, facts *AgentFacts) (string, error)
}

// HealthState is the outcome of a health check.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Unhealthy HealthState = "unhealthy"
)

// HealthStatus is the structured result of a health check.
type HealthStatus struct {
	Status HealthState `json:"status"`
	// Checks maps component names to "ok" or the probe error.
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Healthy reports whether every probe passed.
func (h HealthStatus) Healthy() bool {
	return h.Status == Healthy
}
