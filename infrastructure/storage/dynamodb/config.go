// Package dynamodb provides the DynamoDB registry stores: an agents table
// keyed by agent_id and a facts table keyed by username.
package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// Config contains DynamoDB connection configuration.
type Config struct {
	// Region is the AWS region.
	Region string

	// Endpoint is the DynamoDB endpoint (useful for local development).
	Endpoint string

	// AccessKeyID and SecretAccessKey replace the default credential
	// chain when both are set.
	AccessKeyID     string
	SecretAccessKey string

	// QueryTimeout is the default timeout for queries.
	QueryTimeout time.Duration

	// AgentsTableName is the table name for agent records.
	AgentsTableName string

	// FactsTableName is the table name for facts documents.
	FactsTableName string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Region:          "us-east-1",
		QueryTimeout:    30 * time.Second,
		AgentsTableName: "agent_registry_agents",
		FactsTableName:  "agent_registry_facts",
	}
}

// ConfigOption configures the DynamoDB connection.
type ConfigOption func(*Config)

// WithRegion sets the AWS region.
func WithRegion(region string) ConfigOption {
	return func(c *Config) {
		c.Region = region
	}
}

// WithEndpoint sets the DynamoDB endpoint (for local development).
func WithEndpoint(endpoint string) ConfigOption {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithStaticCredentials sets an access key pair.
func WithStaticCredentials(accessKeyID, secretAccessKey string) ConfigOption {
	return func(c *Config) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	}
}

// WithQueryTimeout sets the default query timeout.
func WithQueryTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.QueryTimeout = d
	}
}

// WithTableNames overrides the table names. Empty names keep the default.
func WithTableNames(agents, facts string) ConfigOption {
	return func(c *Config) {
		if agents != "" {
			c.AgentsTableName = agents
		}
		if facts != "" {
			c.FactsTableName = facts
		}
	}
}

// Client wraps a DynamoDB client with configuration.
type Client struct {
	client *dynamodb.Client
	config Config
}

// NewClient creates a new DynamoDB client.
func NewClient(ctx context.Context, opts ...ConfigOption) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Join(registry.ErrConnectionFailed, err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Client{
		client: dynamodb.NewFromConfig(awsCfg, ddbOpts...),
		config: cfg,
	}, nil
}

// DynamoDB returns the underlying DynamoDB client.
func (c *Client) DynamoDB() *dynamodb.Client {
	return c.client
}

// CreateTables creates the agents and facts tables if they don't exist
// and waits for them to become active.
func (c *Client) CreateTables(ctx context.Context) error {
	if err := c.createTable(ctx, c.config.AgentsTableName, "agent_id"); err != nil {
		return err
	}
	return c.createTable(ctx, c.config.FactsTableName, "username")
}

func (c *Client) createTable(ctx context.Context, name, hashKey string) error {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(hashKey),
				KeyType:       types.KeyTypeHash,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(hashKey),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	_, err := c.client.CreateTable(ctx, input)
	if err != nil {
		var resourceInUse *types.ResourceInUseException
		if isError(err, resourceInUse) {
			return nil
		}
		return wrapError(err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	}, 2*time.Minute)
}

func ping(ctx context.Context, client *dynamodb.Client, table string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	return wrapError(err)
}

// isError checks if an error is of a specific type.
func isError[T error](err error, _ T) bool {
	var target T
	return errors.As(err, &target)
}

// wrapError joins DynamoDB errors with registry sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(registry.ErrOperationTimeout, err)
	}

	var throughputExceeded *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughputExceeded) {
		return errors.Join(registry.ErrOperationTimeout, err)
	}

	return errors.Join(registry.ErrConnectionFailed, err)
}
