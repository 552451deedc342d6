package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// Items use the JSON field names of the domain types.
func useJSONTags(o *attributevalue.DecoderOptions) {
	o.TagKey = "json"
}

// AgentStore is a DynamoDB implementation of registry.IndexStore.
type AgentStore struct {
	client       *dynamodb.Client
	tableName    string
	queryTimeout time.Duration
}

// NewAgentStore creates an agent store on the configured agents table.
func NewAgentStore(client *Client) *AgentStore {
	return &AgentStore{
		client:       client.DynamoDB(),
		tableName:    client.config.AgentsTableName,
		queryTimeout: client.config.QueryTimeout,
	}
}

func agentKey(agentID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"agent_id": &types.AttributeValueMemberS{Value: agentID},
	}
}

// Upsert inserts rec or replaces the record with the same agent id. The
// id and created_at attributes are only written when absent.
func (s *AgentStore) Upsert(ctx context.Context, rec *registry.AgentRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	update := setFields(recordFields(rec)).
		Set(expression.Name("id"), expression.IfNotExists(expression.Name("id"), expression.Value(uuid.NewString()))).
		Set(expression.Name("created_at"), expression.IfNotExists(expression.Name("created_at"), expression.Value(formatTime(rec.CreatedAt))))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return "", fmt.Errorf("build update: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       agentKey(rec.AgentID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return "", wrapError(err)
	}

	var stored registry.AgentRecord
	if err := attributevalue.UnmarshalMapWithOptions(out.Attributes, &stored, useJSONTags); err != nil {
		return "", fmt.Errorf("unmarshal record: %w", err)
	}
	return stored.ID, nil
}

// Get retrieves a record by agent id.
func (s *AgentStore) Get(ctx context.Context, agentID string) (*registry.AgentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            agentKey(agentID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	if result.Item == nil {
		return nil, registry.ErrNotFound
	}
	return decodeRecord(result.Item)
}

// Patch applies a partial update. Only the supplied attributes are
// written, on the condition that the item still exists.
func (s *AgentStore) Patch(ctx context.Context, agentID string, patch registry.Patch) (bool, error) {
	current, err := s.Get(ctx, agentID)
	if err != nil {
		return false, err
	}
	if !patch.Apply(current) {
		return false, nil
	}

	fields := patch.Fields()
	fields["updated_at"] = formatTime(current.UpdatedAt)
	expr, err := expression.NewBuilder().
		WithUpdate(setFields(fields)).
		WithCondition(expression.AttributeExists(expression.Name("agent_id"))).
		Build()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       agentKey(agentID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, registry.ErrNotFound
		}
		return false, wrapError(err)
	}
	return true, nil
}

// Delete removes a record.
func (s *AgentStore) Delete(ctx context.Context, agentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 agentKey(agentID),
		ConditionExpression: aws.String("attribute_exists(agent_id)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return registry.ErrNotFound
		}
		return wrapError(err)
	}
	return nil
}

// List scans the table with a filter expression. The text query is
// case-insensitive, which DynamoDB cannot express, so it is applied to
// the decoded records.
func (s *AgentStore) List(ctx context.Context, filter registry.Filter) ([]*registry.AgentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	scanInput := &dynamodb.ScanInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
	}
	if cond, ok := buildFilter(filter); ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("build filter: %w", err)
		}
		scanInput.FilterExpression = expr.Filter()
		scanInput.ExpressionAttributeNames = expr.Names()
		scanInput.ExpressionAttributeValues = expr.Values()
	}

	var records []*registry.AgentRecord
	paginator := dynamodb.NewScanPaginator(s.client, scanInput)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError(err)
		}
		for _, item := range page.Items {
			rec, err := decodeRecord(item)
			if err != nil {
				return nil, err
			}
			if filter.Matches(rec) {
				records = append(records, rec)
			}
		}
	}

	slices.SortFunc(records, func(a, b *registry.AgentRecord) int {
		return strings.Compare(a.AgentID, b.AgentID)
	})
	return records, nil
}

// Ping describes the agents table.
func (s *AgentStore) Ping(ctx context.Context) error {
	return ping(ctx, s.client, s.tableName, s.queryTimeout)
}

// buildFilter translates the exact-match criteria of a filter into a
// condition. It reports false when there is nothing to filter on.
func buildFilter(filter registry.Filter) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder

	if filter.Status != "" {
		conds = append(conds, expression.Name("status").Equal(expression.Value(string(filter.Status))))
	}
	if filter.Domain != "" {
		conds = append(conds, expression.Name("domain").Equal(expression.Value(filter.Domain)))
	}
	if len(filter.Capabilities) > 0 {
		capCond := expression.Name("capabilities").Contains(filter.Capabilities[0])
		for _, c := range filter.Capabilities[1:] {
			capCond = capCond.Or(expression.Name("capabilities").Contains(c))
		}
		conds = append(conds, capCond)
	}

	if len(conds) == 0 {
		return expression.ConditionBuilder{}, false
	}
	cond := conds[0]
	for _, c := range conds[1:] {
		cond = cond.And(c)
	}
	return cond, true
}

// recordFields returns every caller-owned attribute of rec.
func recordFields(rec *registry.AgentRecord) map[string]any {
	return map[string]any{
		"agent_url":       rec.AgentURL,
		"capabilities":    rec.Capabilities,
		"domain":          rec.Domain,
		"specialization":  rec.Specialization,
		"description":     rec.Description,
		"modalities":      rec.Modalities,
		"languages":       rec.Languages,
		"streaming":       rec.Streaming,
		"batch":           rec.Batch,
		"status":          string(rec.Status),
		"agent_facts_url": rec.AgentFactsURL,
		"updated_at":      formatTime(rec.UpdatedAt),
	}
}

// setFields builds a SET clause in key order so expressions are stable.
func setFields(fields map[string]any) expression.UpdateBuilder {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var update expression.UpdateBuilder
	for _, k := range keys {
		update = update.Set(expression.Name(k), expression.Value(fields[k]))
	}
	return update
}

func decodeRecord(item map[string]types.AttributeValue) (*registry.AgentRecord, error) {
	var rec registry.AgentRecord
	if err := attributevalue.UnmarshalMapWithOptions(item, &rec, useJSONTags); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var _ registry.IndexStore = (*AgentStore)(nil)
