// Package config provides the configuration model of the registry.
package config

import "time"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendMongoDB  = "mongodb"
	BackendBadger   = "badger"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

// Publisher modes.
const (
	PublisherLocal  = "local"
	PublisherRemote = "remote"
	PublisherGCS    = "gcs"
	PublisherS3     = "s3"
	PublisherAzure  = "azure"
	PublisherNone   = "none"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// RegistryConfig represents the complete registry configuration.
type RegistryConfig struct {
	// Name is a human-readable name for this deployment.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Server configures the REST and facts listeners.
	Server ServerConfig `json:"server" yaml:"server"`
	// Storage selects and configures the index and facts stores.
	Storage StorageConfig `json:"storage" yaml:"storage"`
	// Publisher configures facts publishing.
	Publisher PublisherConfig `json:"publisher" yaml:"publisher"`
	// Facts configures the facts generator.
	Facts FactsConfig `json:"facts,omitempty" yaml:"facts,omitempty"`
	// Logging configures the logger.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry configures tracing.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	// MCP configures the tool-calling adapter.
	MCP MCPConfig `json:"mcp,omitempty" yaml:"mcp,omitempty"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	// Addr is the REST listen address.
	Addr string `json:"addr" yaml:"addr"`
	// FactsAddr is the facts document server listen address. Empty
	// disables the facts server.
	FactsAddr string `json:"facts_addr,omitempty" yaml:"facts_addr,omitempty"`
	// ReadTimeout bounds reading a request.
	ReadTimeout Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	// WriteTimeout bounds writing a response.
	WriteTimeout Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
	// Debug enables gin debug mode.
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// StorageConfig configures the index store and the facts store.
type StorageConfig struct {
	// Backend is the index store backend (memory, mongodb, badger,
	// sqlite, postgres, dynamodb).
	Backend string `json:"backend" yaml:"backend"`
	// URI is the MongoDB or PostgreSQL connection string.
	URI string `json:"uri,omitempty" yaml:"uri,omitempty"`
	// Database is the MongoDB database name.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	// Schema is the PostgreSQL schema holding the tables.
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	// Dir is the BadgerDB data directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// InMemory runs BadgerDB without a data directory.
	InMemory bool `json:"in_memory,omitempty" yaml:"in_memory,omitempty"`
	// Path is the SQLite database file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// DynamoDB configures the dynamodb backend.
	DynamoDB DynamoDBConfig `json:"dynamodb,omitempty" yaml:"dynamodb,omitempty"`
	// QueryTimeout bounds each store query.
	QueryTimeout Duration `json:"query_timeout,omitempty" yaml:"query_timeout,omitempty"`
	// HealthTimeout bounds the health probes.
	HealthTimeout Duration `json:"health_timeout,omitempty" yaml:"health_timeout,omitempty"`
	// Facts overrides the facts store backend.
	Facts FactsStoreConfig `json:"facts,omitempty" yaml:"facts,omitempty"`
}

// DynamoDBConfig configures the DynamoDB tables.
type DynamoDBConfig struct {
	Region      string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AgentsTable string `json:"agents_table,omitempty" yaml:"agents_table,omitempty"`
	FactsTable  string `json:"facts_table,omitempty" yaml:"facts_table,omitempty"`
	// CreateTables creates missing tables on startup.
	CreateTables bool `json:"create_tables,omitempty" yaml:"create_tables,omitempty"`
}

// FactsStoreConfig configures a facts store separate from the index backend.
type FactsStoreConfig struct {
	// Backend is empty to share the index backend, or redis.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Redis configures the redis facts store.
	Redis RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig configures a Redis connection.
type RedisConfig struct {
	// Address is host:port.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Password for authentication.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DB selects the database index.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
	// KeyPrefix namespaces all keys.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	// TTL expires facts documents when positive.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// PublisherConfig configures facts publishing.
type PublisherConfig struct {
	// Mode is local, remote, gcs, s3, azure or none.
	Mode string `json:"mode" yaml:"mode"`
	// Endpoint receives facts documents in remote mode.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// RetrievalBaseURL is the base of published facts URLs.
	RetrievalBaseURL string `json:"retrieval_base_url,omitempty" yaml:"retrieval_base_url,omitempty"`
	// Timeout bounds a single publish.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxRetries is the maximum number of attempts in remote mode.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// RetryDelay is the initial delay between attempts.
	RetryDelay Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	// CircuitBreaker configures the remote endpoint breaker.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// Headers are added to every remote request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// GCS configures the Google Cloud Storage publisher.
	GCS GCSConfig `json:"gcs,omitempty" yaml:"gcs,omitempty"`
	// S3 configures the AWS S3 publisher.
	S3 S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
	// Azure configures the Azure Blob Storage publisher.
	Azure AzureConfig `json:"azure,omitempty" yaml:"azure,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GCSConfig configures the GCS facts publisher.
type GCSConfig struct {
	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	// BaseURL is the public base of the bucket. Defaults to
	// https://storage.googleapis.com/{bucket}.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// S3Config configures the S3 facts publisher.
type S3Config struct {
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint selects S3-compatible storage such as MinIO.
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	// BaseURL is the public base of the bucket. Defaults to the virtual
	// hosted URL, or {endpoint}/{bucket}.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// AzureConfig configures the Azure Blob Storage facts publisher.
type AzureConfig struct {
	Container        string `json:"container,omitempty" yaml:"container,omitempty"`
	Prefix           string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	AccountName      string `json:"account_name,omitempty" yaml:"account_name,omitempty"`
	AccountKey       string `json:"account_key,omitempty" yaml:"account_key,omitempty"`
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
	// BaseURL is the public base of the container. Defaults to the
	// account's blob endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// FactsConfig configures the placeholder values of generated facts.
type FactsConfig struct {
	LatencyBudgetMs     int     `json:"latency_budget_ms,omitempty" yaml:"latency_budget_ms,omitempty"`
	MaxTokens           int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	PerformanceScore    float64 `json:"performance_score,omitempty" yaml:"performance_score,omitempty"`
	CertificationLevel  string  `json:"certification_level,omitempty" yaml:"certification_level,omitempty"`
	CertificationIssuer string  `json:"certification_issuer,omitempty" yaml:"certification_issuer,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is console or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// Environment is the deployment environment attribute.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
	// Tracing configures span export.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled    bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Exporter   string  `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure   bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// MCPConfig configures the tool-calling adapter.
type MCPConfig struct {
	// Transport is stdio or http.
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`
	// Addr is the listen address of the http transport.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// DefaultConfig returns a configuration that runs entirely in process.
func DefaultConfig() RegistryConfig {
	return RegistryConfig{
		Name: "agent-registry",
		Server: ServerConfig{
			Addr:            ":6900",
			FactsAddr:       ":8000",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Backend:       BackendMemory,
			Database:      "agent_registry",
			Schema:        "public",
			Path:          "registry.db",
			QueryTimeout:  Duration(10 * time.Second),
			HealthTimeout: Duration(5 * time.Second),
			Facts: FactsStoreConfig{
				Redis: RedisConfig{
					Address:   "localhost:6379",
					KeyPrefix: "registry:",
				},
			},
		},
		Publisher: PublisherConfig{
			Mode:             PublisherLocal,
			RetrievalBaseURL: "http://localhost:8000",
			Timeout:          Duration(10 * time.Second),
			MaxRetries:       3,
			RetryDelay:       Duration(200 * time.Millisecond),
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: 5,
				Timeout:   Duration(30 * time.Second),
			},
		},
		Facts: FactsConfig{
			LatencyBudgetMs:     2000,
			MaxTokens:           4000,
			CertificationLevel:  "self-declared",
			CertificationIssuer: "agent-registry",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Environment: "development",
			Tracing: TracingConfig{
				Exporter:   "noop",
				SampleRate: 1.0,
			},
		},
		MCP: MCPConfig{
			Transport: TransportStdio,
			Addr:      ":6901",
		},
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
