package publisher

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// Mirrored saves every document into the local facts store before handing
// it to a remote publisher, so facts stay readable through the registry
// whichever publisher serves them.
type Mirrored struct {
	store  registry.FactsStore
	remote registry.Publisher
}

// NewMirrored wraps remote with a local copy in store.
func NewMirrored(store registry.FactsStore, remote registry.Publisher) (*Mirrored, error) {
	if store == nil {
		return nil, errors.New("facts store is required")
	}
	if remote == nil {
		return nil, errors.New("remote publisher is required")
	}
	return &Mirrored{store: store, remote: remote}, nil
}

// Publish saves facts locally and returns the remote retrieval URL. A
// failed local save skips the remote publish.
func (p *Mirrored) Publish(ctx context.Context, facts *registry.AgentFacts) (string, error) {
	if err := p.store.Save(ctx, facts); err != nil {
		return "", saveFailure(err)
	}
	return p.remote.Publish(ctx, facts)
}

// Remote returns the wrapped publisher.
func (p *Mirrored) Remote() registry.Publisher {
	return p.remote
}

var _ registry.Publisher = (*Mirrored)(nil)
