package publisher

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// StorePublisher saves facts into the registry's own facts store. The
// returned URL points at the facts server of this process.
type StorePublisher struct {
	store   registry.FactsStore
	baseURL string
}

// NewStorePublisher creates a publisher backed by store.
func NewStorePublisher(store registry.FactsStore, retrievalBaseURL string) (*StorePublisher, error) {
	if store == nil {
		return nil, errors.New("facts store is required")
	}
	if retrievalBaseURL == "" {
		return nil, errors.New("retrieval base url is required")
	}
	return &StorePublisher{store: store, baseURL: retrievalBaseURL}, nil
}

// Publish saves facts and returns their retrieval URL.
func (p *StorePublisher) Publish(ctx context.Context, facts *registry.AgentFacts) (string, error) {
	if err := p.store.Save(ctx, facts); err != nil {
		return "", saveFailure(err)
	}
	return FactsURL(p.baseURL, facts.Username), nil
}

// saveFailure classifies a facts store error as a publish failure.
func saveFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, registry.ErrOperationTimeout) ||
		errors.Is(err, registry.ErrConnectionFailed) {
		return registry.Transient(err)
	}
	return registry.Permanent(err)
}

var _ registry.Publisher = (*StorePublisher)(nil)
