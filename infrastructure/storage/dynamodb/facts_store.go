package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// FactsStore is a DynamoDB implementation of registry.FactsStore. Each
// document is one item with the facts JSON field names as attributes.
type FactsStore struct {
	client       *dynamodb.Client
	tableName    string
	queryTimeout time.Duration
}

// NewFactsStore creates a facts store on the configured facts table.
func NewFactsStore(client *Client) *FactsStore {
	return &FactsStore{
		client:       client.DynamoDB(),
		tableName:    client.config.FactsTableName,
		queryTimeout: client.config.QueryTimeout,
	}
}

// Save inserts or replaces the document of facts.Username.
func (s *FactsStore) Save(ctx context.Context, facts *registry.AgentFacts) error {
	if facts.Username == "" {
		return errors.New("facts username is required")
	}

	item, err := encodeFacts(facts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return wrapError(err)
}

// Get retrieves a facts document.
func (s *FactsStore) Get(ctx context.Context, username string) (*registry.AgentFacts, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	if result.Item == nil {
		return nil, registry.ErrNotFound
	}
	return decodeFacts(result.Item)
}

// Ping describes the facts table.
func (s *FactsStore) Ping(ctx context.Context) error {
	return ping(ctx, s.client, s.tableName, s.queryTimeout)
}

func encodeFacts(facts *registry.AgentFacts) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMapWithOptions(facts, func(o *attributevalue.EncoderOptions) {
		o.TagKey = "json"
	})
	if err != nil {
		return nil, fmt.Errorf("marshal facts: %w", err)
	}
	return item, nil
}

func decodeFacts(item map[string]types.AttributeValue) (*registry.AgentFacts, error) {
	var facts registry.AgentFacts
	if err := attributevalue.UnmarshalMapWithOptions(item, &facts, useJSONTags); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}
	facts.GeneratedAt = facts.GeneratedAt.UTC()
	return &facts, nil
}

var _ registry.FactsStore = (*FactsStore)(nil)
