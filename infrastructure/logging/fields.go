package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// AgentID adds the agent id.
func AgentID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("agent_id", id)
	}
}

// Username adds the facts username.
func Username(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("username", name)
	}
}

// Status adds an agent status.
func Status(s registry.Status) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("status", string(s))
	}
}

// FactsURL adds the published facts URL.
func FactsURL(url string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("agent_facts_url", url)
	}
}

// PublishKind adds the classification of a publish failure.
func PublishKind(kind registry.PublishKind) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("publish_kind", string(kind))
	}
}

// Count adds a result count.
func Count(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("count", n)
	}
}

// Modified adds whether an update changed the record.
func Modified(modified bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("modified", modified)
	}
}

// Duration adds a duration in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error. A nil error adds nothing.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds the service operation name.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with a custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
