package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates registry configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *RegistryConfig) ValidationErrors {
	v.errors = nil

	v.validateServer(config)
	v.validateStorage(config)
	v.validatePublisher(config)
	v.validateFacts(config)
	v.validateLogging(config)
	v.validateTelemetry(config)
	v.validateMCP(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) nonNegative(path string, d Duration) {
	if d < 0 {
		v.addError(path, "must be non-negative")
	}
}

func (v *Validator) validateServer(config *RegistryConfig) {
	if config.Server.Addr == "" {
		v.addError("server.addr", "addr is required")
	}
	v.nonNegative("server.read_timeout", config.Server.ReadTimeout)
	v.nonNegative("server.write_timeout", config.Server.WriteTimeout)
	v.nonNegative("server.shutdown_timeout", config.Server.ShutdownTimeout)
}

func (v *Validator) validateStorage(config *RegistryConfig) {
	s := config.Storage
	switch s.Backend {
	case BackendMemory:
	case BackendMongoDB:
		if s.URI == "" {
			v.addError("storage.uri", "uri is required for mongodb backend")
		}
		if s.Database == "" {
			v.addError("storage.database", "database is required for mongodb backend")
		}
	case BackendBadger:
		if s.Dir == "" && !s.InMemory {
			v.addError("storage.dir", "dir is required for badger backend unless in_memory is set")
		}
	case BackendSQLite:
		if s.Path == "" {
			v.addError("storage.path", "path is required for sqlite backend")
		}
	case BackendPostgres:
		if s.URI == "" {
			v.addError("storage.uri", "uri is required for postgres backend")
		}
	case BackendDynamoDB:
		if s.DynamoDB.Region == "" && s.DynamoDB.Endpoint == "" {
			v.addError("storage.dynamodb.region", "region or endpoint is required for dynamodb backend")
		}
		if s.DynamoDB.Endpoint != "" {
			v.validateURL("storage.dynamodb.endpoint", s.DynamoDB.Endpoint, false)
		}
	case "":
		v.addError("storage.backend", "backend is required")
	default:
		v.addError("storage.backend", fmt.Sprintf("unknown backend: %s", s.Backend))
	}
	v.nonNegative("storage.query_timeout", s.QueryTimeout)
	v.nonNegative("storage.health_timeout", s.HealthTimeout)

	switch s.Facts.Backend {
	case "":
	case BackendRedis:
		if s.Facts.Redis.Address == "" {
			v.addError("storage.facts.redis.address", "address is required for redis facts backend")
		}
		v.nonNegative("storage.facts.redis.ttl", s.Facts.Redis.TTL)
	default:
		v.addError("storage.facts.backend", fmt.Sprintf("unknown facts backend: %s", s.Facts.Backend))
	}
}

func (v *Validator) validatePublisher(config *RegistryConfig) {
	p := config.Publisher
	switch p.Mode {
	case PublisherLocal:
		v.validateURL("publisher.retrieval_base_url", p.RetrievalBaseURL, true)
	case PublisherRemote:
		v.validateURL("publisher.endpoint", p.Endpoint, true)
		v.validateURL("publisher.retrieval_base_url", p.RetrievalBaseURL, true)
		if p.MaxRetries < 0 {
			v.addError("publisher.max_retries", "max_retries must be non-negative")
		}
		if p.CircuitBreaker.Threshold < 0 {
			v.addError("publisher.circuit_breaker.threshold", "threshold must be non-negative")
		}
	case PublisherGCS:
		if p.GCS.Bucket == "" {
			v.addError("publisher.gcs.bucket", "bucket is required for gcs mode")
		}
		v.validateURL("publisher.gcs.base_url", p.GCS.BaseURL, false)
	case PublisherS3:
		if p.S3.Bucket == "" {
			v.addError("publisher.s3.bucket", "bucket is required for s3 mode")
		}
		if (p.S3.AccessKeyID == "") != (p.S3.SecretAccessKey == "") {
			v.addError("publisher.s3.access_key_id", "access_key_id and secret_access_key must be set together")
		}
		v.validateURL("publisher.s3.endpoint", p.S3.Endpoint, false)
		v.validateURL("publisher.s3.base_url", p.S3.BaseURL, false)
	case PublisherAzure:
		if p.Azure.Container == "" {
			v.addError("publisher.azure.container", "container is required for azure mode")
		}
		if p.Azure.AccountName == "" && p.Azure.ConnectionString == "" {
			v.addError("publisher.azure.account_name", "account_name or connection_string is required for azure mode")
		}
		v.validateURL("publisher.azure.base_url", p.Azure.BaseURL, false)
	case PublisherNone:
	default:
		v.addError("publisher.mode", fmt.Sprintf("unknown mode: %s", p.Mode))
	}
	v.nonNegative("publisher.timeout", p.Timeout)
	v.nonNegative("publisher.retry_delay", p.RetryDelay)
}

func (v *Validator) validateURL(path, raw string, required bool) {
	if raw == "" {
		if required {
			v.addError(path, "url is required")
		}
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		v.addError(path, fmt.Sprintf("invalid http url: %s", raw))
	}
}

func (v *Validator) validateFacts(config *RegistryConfig) {
	if config.Facts.LatencyBudgetMs < 0 {
		v.addError("facts.latency_budget_ms", "latency_budget_ms must be non-negative")
	}
	if config.Facts.MaxTokens < 0 {
		v.addError("facts.max_tokens", "max_tokens must be non-negative")
	}
	if score := config.Facts.PerformanceScore; score < 0 || score > 100 {
		v.addError("facts.performance_score", "performance_score must be between 0 and 100")
	}
}

func (v *Validator) validateLogging(config *RegistryConfig) {
	if level := config.Logging.Level; level != "" {
		switch strings.ToLower(level) {
		case "debug", "info", "warn", "warning", "error":
		default:
			v.addError("logging.level", fmt.Sprintf("invalid level: %s", level))
		}
	}
	if format := config.Logging.Format; format != "" && format != "console" && format != "json" {
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", format))
	}
}

func (v *Validator) validateTelemetry(config *RegistryConfig) {
	t := config.Telemetry.Tracing
	if !t.Enabled {
		return
	}
	switch t.Exporter {
	case "otlp":
		if t.Endpoint == "" {
			v.addError("telemetry.tracing.endpoint", "endpoint is required for otlp exporter")
		}
	case "stdout", "noop":
	default:
		v.addError("telemetry.tracing.exporter", fmt.Sprintf("unknown exporter: %s", t.Exporter))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		v.addError("telemetry.tracing.sample_rate", "sample_rate must be between 0 and 1")
	}
}

func (v *Validator) validateMCP(config *RegistryConfig) {
	switch config.MCP.Transport {
	case "", TransportStdio:
	case TransportHTTP:
		if config.MCP.Addr == "" {
			v.addError("mcp.addr", "addr is required for http transport")
		}
	default:
		v.addError("mcp.transport", fmt.Sprintf("unknown transport: %s", config.MCP.Transport))
	}
}
