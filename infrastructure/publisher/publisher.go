// Package publisher provides the facts publishers: a remote HTTP facts
// service, the local facts store, object storage, and a disabled stub.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// Publisher modes selectable from configuration.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeGCS    = "gcs"
	ModeNone   = "none"
)

// ErrDisabled is returned by the Disabled publisher.
var ErrDisabled = errors.New("facts publishing disabled")

// FactsURL returns the retrieval URL of a facts document:
// {base}/@{username}.json.
func FactsURL(base, username string) string {
	return fmt.Sprintf("%s/@%s.json", strings.TrimRight(base, "/"), url.PathEscape(username))
}

// Disabled never publishes; registrations keep an empty facts URL.
type Disabled struct{}

// Publish always fails permanently.
func (Disabled) Publish(ctx context.Context, facts *registry.AgentFacts) (string, error) {
	return "", registry.Permanent(ErrDisabled)
}

var _ registry.Publisher = Disabled{}
