// Package application provides the registry service, the single
// implementation of every registry operation.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/logging"
	"github.com/felixgeelhaar/agent-registry/infrastructure/publisher"
	"github.com/felixgeelhaar/agent-registry/infrastructure/telemetry"
)

const (
	// DefaultPublishTimeout bounds a single facts publish.
	DefaultPublishTimeout = 10 * time.Second

	// DefaultHealthTimeout bounds the storage probes of a health check.
	DefaultHealthTimeout = 5 * time.Second

	// TracerName names the tracer of the service spans.
	TracerName = "github.com/felixgeelhaar/agent-registry/application"
)

// Registry is the set of registry operations transport adapters call.
type Registry interface {
	Register(ctx context.Context, reg registry.AgentRegistration) (registry.RegistrationResult, error)
	List(ctx context.Context, status registry.Status) ([]registry.AgentSummary, error)
	Search(ctx context.Context, q registry.SearchQuery) ([]registry.AgentSummary, error)
	Get(ctx context.Context, agentID string) (*registry.AgentRecord, error)
	Update(ctx context.Context, agentID string, update registry.AgentUpdate) (registry.UpdateResult, error)
	Delete(ctx context.Context, agentID string) (registry.DeleteResult, error)
	GetAgentFacts(ctx context.Context, username string) (*registry.AgentFacts, error)
	HealthCheck(ctx context.Context) registry.HealthStatus
}

var _ Registry = (*Service)(nil)

// Service implements the registry operations over injected stores.
// It holds no mutable state of its own and is safe for concurrent use.
type Service struct {
	index          registry.IndexStore
	facts          registry.FactsStore
	publisher      registry.Publisher
	publisherName  string
	generator      *registry.Generator
	metrics        telemetry.Metrics
	tracer         trace.Tracer
	now            func() time.Time
	publishTimeout time.Duration
	healthTimeout  time.Duration
}

// ServiceConfig contains the dependencies of a Service.
type ServiceConfig struct {
	// Index stores agent records. Required.
	Index registry.IndexStore

	// Facts stores facts documents. Required.
	Facts registry.FactsStore

	// Publisher publishes facts documents. Defaults to publisher.Disabled.
	Publisher registry.Publisher

	// PublisherName labels publish metrics.
	PublisherName string

	// Generator builds facts documents.
	Generator *registry.Generator

	// Metrics records operation metrics.
	Metrics telemetry.Metrics

	// Tracer starts one span per operation. Defaults to the global tracer.
	Tracer trace.Tracer

	// Clock is the time source for record timestamps.
	Clock func() time.Time

	// PublishTimeout bounds a single publish call.
	PublishTimeout time.Duration

	// HealthTimeout bounds the health probes.
	HealthTimeout time.Duration
}

// NewService creates a registry service.
func NewService(config ServiceConfig) (*Service, error) {
	if config.Index == nil {
		return nil, errors.New("index store is required")
	}
	if config.Facts == nil {
		return nil, errors.New("facts store is required")
	}

	s := &Service{
		index:          config.Index,
		facts:          config.Facts,
		publisher:      config.Publisher,
		publisherName:  config.PublisherName,
		generator:      config.Generator,
		metrics:        config.Metrics,
		tracer:         config.Tracer,
		now:            config.Clock,
		publishTimeout: config.PublishTimeout,
		healthTimeout:  config.HealthTimeout,
	}

	if s.publisher == nil {
		s.publisher = publisher.Disabled{}
		s.publisherName = publisher.ModeNone
	}
	if s.publisherName == "" {
		s.publisherName = "custom"
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generator == nil {
		s.generator = registry.NewGenerator(registry.WithClock(s.now))
	}
	if s.metrics == nil {
		s.metrics = telemetry.NoopMetricsProvider{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(TracerName)
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = DefaultPublishTimeout
	}
	if s.healthTimeout <= 0 {
		s.healthTimeout = DefaultHealthTimeout
	}

	return s, nil
}

// NewServiceWithOptions creates a registry service from options.
func NewServiceWithOptions(opts ...Option) (*Service, error) {
	var config ServiceConfig
	for _, opt := range opts {
		opt(&config)
	}
	return NewService(config)
}

// begin starts the span of an operation. The returned function ends it,
// logs a failure and records the operation metric.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry."+op,
		trace.WithAttributes(attribute.String("registry.operation", op)))

	return ctx, func(err error) {
		elapsed := time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = registry.ErrorKind(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)

			event := logging.Debug()
			if errors.Is(err, registry.ErrStorage) {
				event = logging.Error()
			}
			event.
				Add(logging.Component("service")).
				Add(logging.Operation(op)).
				Add(logging.Duration(elapsed)).
				Add(logging.ErrorField(err)).
				Msg("operation failed")
		}
		span.SetAttributes(attribute.String("registry.outcome", outcome))
		span.End()
		s.metrics.RecordOperation(ctx, op, outcome, elapsed)
	}
}

// Register creates or replaces the record for reg.AgentID, then generates
// and publishes its facts document. A publish failure is logged and leaves
// the facts URL empty; it never fails the registration.
func (s *Service) Register(ctx context.Context, reg registry.AgentRegistration) (result registry.RegistrationResult, err error) {
	ctx, done := s.begin(ctx, "register")
	defer func() { done(err) }()

	if err := reg.Validate(); err != nil {
		return registry.RegistrationResult{}, err
	}

	rec := registry.NewRecord(reg, s.now())
	id, err := s.index.Upsert(ctx, rec)
	if err != nil {
		return registry.RegistrationResult{}, registry.NewStorageError("upsert", err)
	}
	rec.ID = id

	factsURL := s.publish(ctx, rec)
	if factsURL != "" {
		if _, err := s.index.Patch(ctx, rec.AgentID, registry.Patch{AgentFactsURL: &factsURL}); err != nil {
			logging.Warn().
				Add(logging.Component("service")).
				Add(logging.AgentID(rec.AgentID)).
				Add(logging.FactsURL(factsURL)).
				Add(logging.ErrorField(err)).
				Msg("failed to persist facts url")
			factsURL = ""
		}
	}

	logging.Info().
		Add(logging.Component("service")).
		Add(logging.AgentID(rec.AgentID)).
		Add(logging.FactsURL(factsURL)).
		Msg("agent registered")

	return registry.RegistrationResult{
		Success:       true,
		Message:       fmt.Sprintf("Agent %s registered successfully", rec.AgentID),
		AgentID:       rec.AgentID,
		ID:            id,
		AgentFactsURL: factsURL,
	}, nil
}

// publish generates and publishes the facts of rec under the publish
// timeout. It returns the empty string on any failure.
func (s *Service) publish(ctx context.Context, rec *registry.AgentRecord) string {
	facts := s.generator.Generate(rec)

	pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	start := time.Now()
	url, err := s.publisher.Publish(pctx, facts)
	if err == nil && strings.TrimSpace(url) == "" {
		err = registry.Permanent(errors.New("publisher returned an empty url"))
	}
	if err != nil {
		kind := registry.PublishKindOf(err)
		if errors.Is(err, context.DeadlineExceeded) {
			kind = registry.PublishTransient
		}
		s.metrics.RecordPublish(ctx, s.publisherName, string(kind), time.Since(start))
		logging.Warn().
			Add(logging.Component("service")).
			Add(logging.AgentID(rec.AgentID)).
			Add(logging.Username(facts.Username)).
			Add(logging.PublishKind(kind)).
			Add(logging.ErrorField(err)).
			Msg("facts publishing failed")
		return ""
	}

	s.metrics.RecordPublish(ctx, s.publisherName, "", time.Since(start))
	return url
}

// List returns every agent, or only those with the given status.
func (s *Service) List(ctx context.Context, status registry.Status) (summaries []registry.AgentSummary, err error) {
	ctx, done := s.begin(ctx, "list")
	defer func() { done(err) }()

	if status != "" && !status.Valid() {
		return nil, registry.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	return s.query(ctx, registry.StatusFilter(status))
}

// Search returns the agents matching every supplied criterion. Capability
// criteria match when at least one capability is shared.
func (s *Service) Search(ctx context.Context, q registry.SearchQuery) (summaries []registry.AgentSummary, err error) {
	ctx, done := s.begin(ctx, "search")
	defer func() { done(err) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.query(ctx, q.Filter())
}

func (s *Service) query(ctx context.Context, filter registry.Filter) ([]registry.AgentSummary, error) {
	records, err := s.index.List(ctx, filter)
	if err != nil {
		return nil, registry.NewStorageError("list", err)
	}
	summaries := make([]registry.AgentSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.Summary())
	}
	return summaries, nil
}

// Get returns the record of agentID.
func (s *Service) Get(ctx context.Context, agentID string) (rec *registry.AgentRecord, err error) {
	ctx, done := s.begin(ctx, "get")
	defer func() { done(err) }()

	rec, err = s.index.Get(ctx, agentID)
	if err != nil {
		return nil, storeError("get", "agent", agentID, err)
	}
	return rec, nil
}

// Update applies the supplied fields to the record of agentID. Facts are
// not regenerated.
func (s *Service) Update(ctx context.Context, agentID string, update registry.AgentUpdate) (result registry.UpdateResult, err error) {
	ctx, done := s.begin(ctx, "update")
	defer func() { done(err) }()

	if err := update.Validate(); err != nil {
		return registry.UpdateResult{}, err
	}

	changed, err := s.index.Patch(ctx, agentID, registry.Patch{
		AgentUpdate: update,
		UpdatedAt:   s.now(),
	})
	if err != nil {
		return registry.UpdateResult{}, storeError("patch", "agent", agentID, err)
	}

	logging.Info().
		Add(logging.Component("service")).
		Add(logging.AgentID(agentID)).
		Add(logging.Modified(changed)).
		Msg("agent updated")

	return registry.UpdateResult{Success: true, AgentID: agentID, Modified: changed}, nil
}

// Delete removes the record of agentID. Its facts document is kept.
func (s *Service) Delete(ctx context.Context, agentID string) (result registry.DeleteResult, err error) {
	ctx, done := s.begin(ctx, "delete")
	defer func() { done(err) }()

	if err := s.index.Delete(ctx, agentID); err != nil {
		return registry.DeleteResult{}, storeError("delete", "agent", agentID, err)
	}

	logging.Info().
		Add(logging.Component("service")).
		Add(logging.AgentID(agentID)).
		Msg("agent deleted")

	return registry.DeleteResult{Success: true, AgentID: agentID}, nil
}

// GetAgentFacts returns the facts document stored under username.
func (s *Service) GetAgentFacts(ctx context.Context, username string) (facts *registry.AgentFacts, err error) {
	ctx, done := s.begin(ctx, "get_agent_facts")
	defer func() { done(err) }()

	facts, err = s.facts.Get(ctx, username)
	if err != nil {
		return nil, storeError("get_facts", "facts", username, err)
	}
	return facts, nil
}

// HealthCheck probes both stores. It always returns a result.
func (s *Service) HealthCheck(ctx context.Context) registry.HealthStatus {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry.health_check")
	defer span.End()

	hctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()

	status := registry.HealthStatus{
		Status: registry.Healthy,
		Checks: make(map[string]string, 2),
	}
	var failures []string

	probe := func(component string, ping func(context.Context) error) {
		err := safePing(hctx, ping)
		s.metrics.RecordHealth(ctx, component, err == nil)
		if err != nil {
			status.Checks[component] = err.Error()
			failures = append(failures, fmt.Sprintf("%s: %v", component, err))
			return
		}
		status.Checks[component] = "ok"
	}
	probe("index", s.index.Ping)
	probe("facts", s.facts.Ping)

	if len(failures) > 0 {
		status.Status = registry.Unhealthy
		status.Error = strings.Join(failures, "; ")
		logging.Warn().
			Add(logging.Component("service")).
			Add(logging.Operation("health_check")).
			Add(logging.Str("detail", status.Error)).
			Msg("storage unhealthy")
	}

	outcome := "ok"
	if !status.Healthy() {
		outcome = string(registry.Unhealthy)
		span.SetStatus(codes.Error, status.Error)
	}
	span.SetAttributes(attribute.String("registry.outcome", outcome))
	s.metrics.RecordOperation(ctx, "health_check", outcome, time.Since(start))
	return status
}

// safePing converts a panicking probe into an error.
func safePing(ctx context.Context, ping func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return ping(ctx)
}

// storeError maps adapter errors onto the service error taxonomy.
func storeError(op, resource, key string, err error) error {
	if errors.Is(err, registry.ErrNotFound) {
		return registry.NewNotFoundError(resource, key)
	}
	return registry.NewStorageError(op, err)
}
