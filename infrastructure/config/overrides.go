package config

import (
	"strings"

	domainconfig "github.com/felixgeelhaar/agent-registry/domain/config"
)

// Environment variables that override file values.
const (
	EnvServerAddr      = "REGISTRY_SERVER_ADDR"
	EnvFactsAddr       = "REGISTRY_FACTS_ADDR"
	EnvStorageBackend  = "REGISTRY_STORAGE_BACKEND"
	EnvStorageURI      = "REGISTRY_STORAGE_URI"
	EnvAtlasURL        = "ATLAS_URL"
	EnvStorageDatabase = "REGISTRY_STORAGE_DATABASE"
	EnvStorageDir      = "REGISTRY_STORAGE_DIR"
	EnvStoragePath     = "REGISTRY_STORAGE_PATH"
	EnvRedisAddr       = "REGISTRY_REDIS_ADDR"
	EnvPublisherMode   = "REGISTRY_PUBLISHER_MODE"
	EnvFactsEndpoint   = "REGISTRY_FACTS_ENDPOINT"
	EnvFactsBaseURL    = "REGISTRY_FACTS_BASE_URL"
	EnvLogLevel        = "REGISTRY_LOG_LEVEL"
	EnvLogFormat       = "REGISTRY_LOG_FORMAT"
)

// ApplyEnvOverrides applies the environment overrides found by lookup and
// returns the names of the variables that were applied.
//
// A storage URI switches the memory backend to mongodb, or to postgres for
// postgres:// URIs, so setting ATLAS_URL alone is enough to run against a
// MongoDB deployment. A redis address selects the redis facts store.
func ApplyEnvOverrides(cfg *domainconfig.RegistryConfig, lookup func(string) (string, bool)) []string {
	var applied []string
	set := func(name string, apply func(string)) {
		if v, ok := lookup(name); ok && v != "" {
			apply(v)
			applied = append(applied, name)
		}
	}

	set(EnvServerAddr, func(v string) { cfg.Server.Addr = v })
	set(EnvFactsAddr, func(v string) { cfg.Server.FactsAddr = v })
	set(EnvStorageBackend, func(v string) { cfg.Storage.Backend = v })

	uri := func(v string) {
		cfg.Storage.URI = v
		if cfg.Storage.Backend != domainconfig.BackendMemory {
			return
		}
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Storage.Backend = domainconfig.BackendPostgres
		} else {
			cfg.Storage.Backend = domainconfig.BackendMongoDB
		}
	}
	set(EnvAtlasURL, uri)
	set(EnvStorageURI, uri)

	set(EnvStorageDatabase, func(v string) { cfg.Storage.Database = v })
	set(EnvStorageDir, func(v string) { cfg.Storage.Dir = v })
	set(EnvStoragePath, func(v string) { cfg.Storage.Path = v })
	set(EnvRedisAddr, func(v string) {
		cfg.Storage.Facts.Backend = domainconfig.BackendRedis
		cfg.Storage.Facts.Redis.Address = v
	})
	set(EnvPublisherMode, func(v string) { cfg.Publisher.Mode = v })
	set(EnvFactsEndpoint, func(v string) { cfg.Publisher.Endpoint = v })
	set(EnvFactsBaseURL, func(v string) { cfg.Publisher.RetrievalBaseURL = v })
	set(EnvLogLevel, func(v string) { cfg.Logging.Level = v })
	set(EnvLogFormat, func(v string) { cfg.Logging.Format = v })

	return applied
}
