package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// FactsStore is a Redis implementation of registry.FactsStore. Documents are
// stored as JSON strings under {prefix}facts:{username}.
type FactsStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewFactsStore connects to Redis and verifies the connection.
func NewFactsStore(cfg Config, opts ...ConfigOption) (*FactsStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(registry.ErrConnectionFailed, err)
	}

	s := NewFactsStoreFromClient(client, cfg.KeyPrefix)
	s.ttl = cfg.FactsTTL
	return s, nil
}

// NewFactsStoreFromClient creates a facts store from an existing Redis client.
func NewFactsStoreFromClient(client *redis.Client, keyPrefix string) *FactsStore {
	return &FactsStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *FactsStore) key(username string) string {
	return s.keyPrefix + "facts:" + username
}

// Save inserts or replaces the document of facts.Username.
func (s *FactsStore) Save(ctx context.Context, facts *registry.AgentFacts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if facts.Username == "" {
		return errors.New("facts username is required")
	}

	data, err := json.Marshal(facts)
	if err != nil {
		return err
	}
	return wrapError(s.client.Set(ctx, s.key(facts.Username), data, s.ttl).Err())
}

// Get retrieves a facts document.
func (s *FactsStore) Get(ctx context.Context, username string) (*registry.AgentFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.key(username)).Bytes()
	if err != nil {
		return nil, wrapError(err)
	}

	var facts registry.AgentFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, err
	}
	return &facts, nil
}

// Ping checks the Redis connection.
func (s *FactsStore) Ping(ctx context.Context) error {
	return wrapError(s.client.Ping(ctx).Err())
}

// Close closes the Redis connection.
func (s *FactsStore) Close() error {
	return s.client.Close()
}

// wrapError joins Redis errors with registry sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return registry.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(registry.ErrOperationTimeout, err)
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(registry.ErrOperationTimeout, err)
	}
	return errors.Join(registry.ErrConnectionFailed, err)
}

var _ registry.FactsStore = (*FactsStore)(nil)
