// Package mongodb provides the MongoDB registry stores: the agents index
// collection and the agent_facts collection.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// Default collection names.
const (
	AgentsCollection = "agents"
	FactsCollection  = "agent_facts"
)

// Config contains MongoDB connection configuration.
type Config struct {
	// URI is the MongoDB connection string.
	URI string

	// Database is the database name.
	Database string

	// AgentsCollection names the index collection.
	AgentsCollection string

	// FactsCollection names the facts collection.
	FactsCollection string

	// ConnectTimeout is the timeout for the initial connection.
	ConnectTimeout time.Duration

	// QueryTimeout is the default timeout for queries.
	QueryTimeout time.Duration

	// MaxPoolSize is the maximum connection pool size.
	MaxPoolSize uint64

	// MinPoolSize is the minimum connection pool size.
	MinPoolSize uint64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		URI:              "mongodb://localhost:27017",
		Database:         "agent_registry",
		AgentsCollection: AgentsCollection,
		FactsCollection:  FactsCollection,
		ConnectTimeout:   10 * time.Second,
		QueryTimeout:     10 * time.Second,
		MaxPoolSize:      50,
		MinPoolSize:      0,
	}
}

// ConfigOption configures the MongoDB connection.
type ConfigOption func(*Config)

// WithURI sets the MongoDB connection URI.
func WithURI(uri string) ConfigOption {
	return func(c *Config) {
		c.URI = uri
	}
}

// WithDatabase sets the database name.
func WithDatabase(db string) ConfigOption {
	return func(c *Config) {
		c.Database = db
	}
}

// WithCollections overrides the collection names. Empty names keep the default.
func WithCollections(agents, facts string) ConfigOption {
	return func(c *Config) {
		if agents != "" {
			c.AgentsCollection = agents
		}
		if facts != "" {
			c.FactsCollection = facts
		}
	}
}

// WithConnectTimeout sets the connection timeout.
func WithConnectTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.ConnectTimeout = d
	}
}

// WithQueryTimeout sets the default query timeout.
func WithQueryTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.QueryTimeout = d
	}
}

// WithMaxPoolSize sets the maximum pool size.
func WithMaxPoolSize(size uint64) ConfigOption {
	return func(c *Config) {
		c.MaxPoolSize = size
	}
}

// Client wraps a MongoDB client with configuration.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	config   Config
}

// NewClient connects to MongoDB and verifies the connection.
func NewClient(ctx context.Context, opts ...ConfigOption) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URI == "" {
		return nil, errors.New("mongodb: uri is required")
	}

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetAppName("agent-registry")

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, errors.Join(registry.ErrConnectionFailed, err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Join(registry.ErrConnectionFailed, err)
	}

	return &Client{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

// Collection returns a collection from the database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Ping checks connectivity to the primary.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.QueryTimeout)
	defer cancel()
	return wrapError(c.client.Ping(ctx, nil))
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the registry relies on. The unique
// indexes enforce one record per agent id and one document per username.
func (c *Client) CreateIndexes(ctx context.Context) error {
	agentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "agent_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "domain", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "capabilities", Value: 1}},
		},
	}
	if _, err := c.Collection(c.config.AgentsCollection).Indexes().CreateMany(ctx, agentIndexes); err != nil {
		return wrapError(err)
	}

	factsIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := c.Collection(c.config.FactsCollection).Indexes().CreateMany(ctx, factsIndexes); err != nil {
		return wrapError(err)
	}
	return nil
}

// wrapError joins MongoDB errors with registry sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return registry.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(registry.ErrOperationTimeout, err)
	}
	return errors.Join(registry.ErrConnectionFailed, err)
}
