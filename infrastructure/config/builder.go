package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/felixgeelhaar/agent-registry/application"
	domainconfig "github.com/felixgeelhaar/agent-registry/domain/config"
	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/logging"
	"github.com/felixgeelhaar/agent-registry/infrastructure/observability"
	"github.com/felixgeelhaar/agent-registry/infrastructure/publisher"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/badger"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/memory"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/redis"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/sqlite"
	"github.com/felixgeelhaar/agent-registry/infrastructure/telemetry"
)

// Builder builds the registry service from configuration.
type Builder struct {
	config *domainconfig.RegistryConfig
}

// NewBuilder creates a new configuration builder.
func NewBuilder(config *domainconfig.RegistryConfig) *Builder {
	return &Builder{config: config}
}

// BuildResult contains the components built from configuration.
type BuildResult struct {
	// Service is the wired registry service.
	Service *application.Service
	// Index is the agent index store.
	Index registry.IndexStore
	// Facts is the facts store.
	Facts registry.FactsStore
	// Publisher is the facts publisher.
	Publisher registry.Publisher
	// PublisherMode names the publisher.
	PublisherMode string
	// Tracing is the tracing provider.
	Tracing *observability.Provider

	closers []func(context.Context) error
}

// Close releases the connections opened by Build in reverse order.
func (r *BuildResult) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *BuildResult) onClose(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

// LoggingConfig converts the logging section to a logger configuration.
func (b *Builder) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if b.config.Logging.Level != "" {
		cfg.Level = b.config.Logging.Level
	}
	if b.config.Logging.Format != "" {
		cfg.Format = b.config.Logging.Format
	}
	cfg.Output = os.Stderr
	return cfg
}

// Build opens the stores, creates the publisher and wires the service. On
// failure everything opened so far is closed again.
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	result := &BuildResult{}
	if err := b.build(ctx, result); err != nil {
		_ = result.Close(context.Background())
		return nil, errors.Join(domainconfig.ErrBuildFailed, err)
	}

	logging.Info().
		Add(logging.Component("builder")).
		Add(logging.Str("storage", b.config.Storage.Backend)).
		Add(logging.Str("publisher", result.PublisherMode)).
		Msg("registry built")

	return result, nil
}

func (b *Builder) build(ctx context.Context, result *BuildResult) error {
	if err := b.buildStores(ctx, result); err != nil {
		return fmt.Errorf("building storage: %w", err)
	}
	if err := b.buildPublisher(ctx, result); err != nil {
		return fmt.Errorf("building publisher: %w", err)
	}
	if err := b.buildTracing(result); err != nil {
		return fmt.Errorf("building tracing: %w", err)
	}

	svc, err := application.NewServiceWithOptions(
		application.WithIndexStore(result.Index),
		application.WithFactsStore(result.Facts),
		application.WithPublisher(result.PublisherMode, result.Publisher),
		application.WithGenerator(registry.NewGenerator(registry.WithGeneratorConfig(b.generatorConfig()))),
		application.WithMetrics(telemetry.NewMetricsProvider(telemetry.DefaultMetricsConfig())),
		application.WithTracer(result.Tracing.Tracer(application.TracerName)),
		application.WithPublishTimeout(b.config.Publisher.Timeout.Duration()),
		application.WithHealthTimeout(b.config.Storage.HealthTimeout.Duration()),
	)
	if err != nil {
		return err
	}
	result.Service = svc
	return nil
}

func (b *Builder) buildStores(ctx context.Context, result *BuildResult) error {
	s := b.config.Storage

	switch s.Backend {
	case domainconfig.BackendMemory:
		result.Index = memory.NewAgentStore()
		result.Facts = memory.NewFactsStore()

	case domainconfig.BackendMongoDB:
		opts := []mongodb.ConfigOption{
			mongodb.WithURI(s.URI),
			mongodb.WithDatabase(s.Database),
		}
		if s.QueryTimeout > 0 {
			opts = append(opts, mongodb.WithQueryTimeout(s.QueryTimeout.Duration()))
		}
		client, err := mongodb.NewClient(ctx, opts...)
		if err != nil {
			return err
		}
		result.onClose(client.Close)
		if err := client.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("create indexes: %w", err)
		}
		result.Index = mongodb.NewAgentStore(client)
		result.Facts = mongodb.NewFactsStore(client)

	case domainconfig.BackendBadger:
		opts := []badger.Option{badger.WithDir(s.Dir)}
		if s.InMemory {
			opts = append(opts, badger.WithInMemory())
		}
		db, err := badger.Open(badger.DefaultConfig(), opts...)
		if err != nil {
			return err
		}
		result.onClose(func(context.Context) error { return db.Close() })
		result.Index = db.Agents()
		result.Facts = db.Facts()

	case domainconfig.BackendSQLite:
		db, err := sqlite.Open(sqlite.DefaultConfig(), sqlite.WithPath(s.Path))
		if err != nil {
			return err
		}
		result.onClose(func(context.Context) error { return db.Close() })
		result.Index = db.Agents()
		result.Facts = db.Facts()

	case domainconfig.BackendPostgres:
		opts := []postgres.ConfigOption{postgres.WithURL(s.URI)}
		if s.Schema != "" {
			opts = append(opts, postgres.WithSchema(s.Schema))
		}
		if s.QueryTimeout > 0 {
			opts = append(opts, postgres.WithQueryTimeout(s.QueryTimeout.Duration()))
		}
		db, err := postgres.Open(ctx, postgres.DefaultConfig(), opts...)
		if err != nil {
			return err
		}
		result.onClose(func(context.Context) error { db.Close(); return nil })
		result.Index = db.Agents()
		result.Facts = db.Facts()

	case domainconfig.BackendDynamoDB:
		d := s.DynamoDB
		opts := []dynamodb.ConfigOption{dynamodb.WithTableNames(d.AgentsTable, d.FactsTable)}
		if d.Region != "" {
			opts = append(opts, dynamodb.WithRegion(d.Region))
		}
		if d.Endpoint != "" {
			opts = append(opts, dynamodb.WithEndpoint(d.Endpoint))
		}
		if s.QueryTimeout > 0 {
			opts = append(opts, dynamodb.WithQueryTimeout(s.QueryTimeout.Duration()))
		}
		client, err := dynamodb.NewClient(ctx, opts...)
		if err != nil {
			return err
		}
		if d.CreateTables {
			if err := client.CreateTables(ctx); err != nil {
				return fmt.Errorf("create tables: %w", err)
			}
		}
		result.Index = dynamodb.NewAgentStore(client)
		result.Facts = dynamodb.NewFactsStore(client)

	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}

	if s.Facts.Backend == domainconfig.BackendRedis {
		r := s.Facts.Redis
		store, err := redis.NewFactsStore(redis.DefaultConfig(),
			redis.WithAddress(r.Address),
			redis.WithPassword(r.Password),
			redis.WithDB(r.DB),
			redis.WithKeyPrefix(r.KeyPrefix),
			redis.WithFactsTTL(r.TTL.Duration()),
		)
		if err != nil {
			return err
		}
		result.onClose(func(context.Context) error { return store.Close() })
		result.Facts = store
	}
	return nil
}

func (b *Builder) buildPublisher(ctx context.Context, result *BuildResult) error {
	p := b.config.Publisher
	result.PublisherMode = p.Mode

	var remote registry.Publisher

	switch p.Mode {
	case domainconfig.PublisherLocal:
		pub, err := publisher.NewStorePublisher(result.Facts, p.RetrievalBaseURL)
		if err != nil {
			return err
		}
		result.Publisher = pub

	case domainconfig.PublisherRemote:
		pub, err := publisher.NewHTTPPublisher(publisher.HTTPConfig{
			Endpoint:                p.Endpoint,
			RetrievalBaseURL:        p.RetrievalBaseURL,
			Timeout:                 p.Timeout.Duration(),
			MaxRetries:              p.MaxRetries,
			RetryDelay:              p.RetryDelay.Duration(),
			CircuitBreakerThreshold: p.CircuitBreaker.Threshold,
			CircuitBreakerTimeout:   p.CircuitBreaker.Timeout.Duration(),
			Headers:                 p.Headers,
		})
		if err != nil {
			return err
		}
		remote = pub

	case domainconfig.PublisherGCS:
		client, err := publisher.NewGCSClient(ctx, publisher.GCSOptions{
			CredentialsFile: p.GCS.CredentialsFile,
		})
		if err != nil {
			return err
		}
		result.onClose(func(context.Context) error { return client.Close() })
		pub, err := publisher.NewObjectPublisher(publisher.ObjectConfig{
			Client:           client,
			Bucket:           p.GCS.Bucket,
			Prefix:           p.GCS.Prefix,
			RetrievalBaseURL: p.GCS.BaseURL,
		})
		if err != nil {
			return err
		}
		remote = pub

	case domainconfig.PublisherS3:
		client, err := publisher.NewS3Client(ctx, publisher.S3Options{
			Region:          p.S3.Region,
			Endpoint:        p.S3.Endpoint,
			AccessKeyID:     p.S3.AccessKeyID,
			SecretAccessKey: p.S3.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		pub, err := publisher.NewObjectPublisher(publisher.ObjectConfig{
			Client:           client,
			Bucket:           p.S3.Bucket,
			Prefix:           p.S3.Prefix,
			RetrievalBaseURL: p.S3.BaseURL,
		})
		if err != nil {
			return err
		}
		remote = pub

	case domainconfig.PublisherAzure:
		client, err := publisher.NewAzureClient(publisher.AzureOptions{
			AccountName:      p.Azure.AccountName,
			AccountKey:       p.Azure.AccountKey,
			ConnectionString: p.Azure.ConnectionString,
		})
		if err != nil {
			return err
		}
		pub, err := publisher.NewObjectPublisher(publisher.ObjectConfig{
			Client:           client,
			Bucket:           p.Azure.Container,
			Prefix:           p.Azure.Prefix,
			RetrievalBaseURL: p.Azure.BaseURL,
		})
		if err != nil {
			return err
		}
		remote = pub

	case domainconfig.PublisherNone:
		result.Publisher = publisher.Disabled{}

	default:
		return fmt.Errorf("unknown publisher mode %q", p.Mode)
	}

	if remote != nil {
		mirrored, err := publisher.NewMirrored(result.Facts, remote)
		if err != nil {
			return err
		}
		result.Publisher = mirrored
	}
	return nil
}

func (b *Builder) buildTracing(result *BuildResult) error {
	t := b.config.Telemetry
	opts := []observability.Option{
		observability.WithEnvironment(t.Environment),
		observability.WithSampleRate(t.Tracing.SampleRate),
	}
	if b.config.Name != "" {
		opts = append(opts, observability.WithServiceName(b.config.Name))
	}
	if t.Tracing.Enabled {
		opts = append(opts, observability.WithTracing(observability.ExporterType(t.Tracing.Exporter), t.Tracing.Endpoint))
		if t.Tracing.Insecure {
			opts = append(opts, observability.WithTracingInsecure())
		}
	}

	provider, err := observability.New(opts...)
	if err != nil {
		return err
	}
	result.Tracing = provider
	result.onClose(provider.Shutdown)
	return nil
}

func (b *Builder) generatorConfig() registry.GeneratorConfig {
	f := b.config.Facts
	cfg := registry.DefaultGeneratorConfig()
	if f.LatencyBudgetMs > 0 {
		cfg.LatencyBudgetMs = f.LatencyBudgetMs
	}
	if f.MaxTokens > 0 {
		cfg.MaxTokens = f.MaxTokens
	}
	cfg.PerformanceScore = f.PerformanceScore
	if f.CertificationLevel != "" {
		cfg.CertificationLevel = f.CertificationLevel
	}
	if f.CertificationIssuer != "" {
		cfg.CertificationIssuer = f.CertificationIssuer
	}
	return cfg
}
