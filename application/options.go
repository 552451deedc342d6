package application

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/telemetry"
)

// Option configures the service.
type Option func(*ServiceConfig)

// WithIndexStore sets the agent index store.
func WithIndexStore(s registry.IndexStore) Option {
	return func(c *ServiceConfig) {
		c.Index = s
	}
}

// WithFactsStore sets the facts store.
func WithFactsStore(s registry.FactsStore) Option {
	return func(c *ServiceConfig) {
		c.Facts = s
	}
}

// WithPublisher sets the facts publisher and the name used in its metrics.
func WithPublisher(name string, p registry.Publisher) Option {
	return func(c *ServiceConfig) {
		c.PublisherName = name
		c.Publisher = p
	}
}

// WithGenerator sets the facts generator.
func WithGenerator(g *registry.Generator) Option {
	return func(c *ServiceConfig) {
		c.Generator = g
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *ServiceConfig) {
		c.Metrics = m
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *ServiceConfig) {
		c.Tracer = t
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *ServiceConfig) {
		c.Clock = now
	}
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *ServiceConfig) {
		c.PublishTimeout = d
	}
}

// WithHealthTimeout bounds the health probes.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *ServiceConfig) {
		c.HealthTimeout = d
	}
}
