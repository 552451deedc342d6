package dynamodb

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/storetest"
)

// The store contract runs against DynamoDB Local when
// REGISTRY_TEST_DYNAMODB_ENDPOINT is set.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	endpoint := os.Getenv("REGISTRY_TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("REGISTRY_TEST_DYNAMODB_ENDPOINT not set")
	}

	suffix := strings.ToLower(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	client, err := NewClient(context.Background(),
		WithEndpoint(endpoint),
		WithStaticCredentials("local", "local"),
		WithTableNames("agents_"+suffix, "facts_"+suffix),
		WithQueryTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.CreateTables(context.Background()); err != nil {
		t.Fatalf("CreateTables failed: %v", err)
	}
	return client
}

func TestAgentStore(t *testing.T) {
	storetest.RunIndexStore(t, func(t *testing.T) registry.IndexStore {
		return NewAgentStore(newTestClient(t))
	})
}

func TestFactsStore(t *testing.T) {
	storetest.RunFactsStore(t, func(t *testing.T) registry.FactsStore {
		return NewFactsStore(newTestClient(t))
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	WithTableNames("", "facts")(&cfg)

	if cfg.AgentsTableName != "agent_registry_agents" {
		t.Errorf("AgentsTableName = %q, want default", cfg.AgentsTableName)
	}
	if cfg.FactsTableName != "facts" {
		t.Errorf("FactsTableName = %q, want facts", cfg.FactsTableName)
	}
	if cfg.Region != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1", cfg.Region)
	}
}

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		filter     registry.Filter
		wantOK     bool
		wantNames  []string
		wantValues int
	}{
		{
			name: "empty",
		},
		{
			name:   "query only",
			filter: registry.Filter{Query: "fin"},
		},
		{
			name:       "status",
			filter:     registry.StatusFilter(registry.StatusActive),
			wantOK:     true,
			wantNames:  []string{"status"},
			wantValues: 1,
		},
		{
			name:       "all exact criteria",
			filter:     registry.Filter{Status: registry.StatusActive, Domain: "finance", Capabilities: []string{"a", "b"}},
			wantOK:     true,
			wantNames:  []string{"capabilities", "domain", "status"},
			wantValues: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cond, ok := buildFilter(tt.filter)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}

			expr, err := expression.NewBuilder().WithFilter(cond).Build()
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			var names []string
			for _, n := range expr.Names() {
				names = append(names, n)
			}
			slices.Sort(names)
			if !slices.Equal(names, tt.wantNames) {
				t.Errorf("names = %v, want %v", names, tt.wantNames)
			}
			if len(expr.Values()) != tt.wantValues {
				t.Errorf("len(values) = %d, want %d", len(expr.Values()), tt.wantValues)
			}
		})
	}
}

func TestSetFields_OrderIndependent(t *testing.T) {
	t.Parallel()

	fields := map[string]any{"status": "active", "domain": "x", "batch": true}
	first, err := expression.NewBuilder().WithUpdate(setFields(fields)).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := expression.NewBuilder().WithUpdate(setFields(fields)).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if *first.Update() != *second.Update() {
		t.Errorf("update expressions differ: %q vs %q", *first.Update(), *second.Update())
	}
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	item := map[string]types.AttributeValue{
		"id":           &types.AttributeValueMemberS{Value: "id-1"},
		"agent_id":     &types.AttributeValueMemberS{Value: "fin-1"},
		"agent_url":    &types.AttributeValueMemberS{Value: "http://fin"},
		"capabilities": &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberS{Value: "a"}}},
		"status":       &types.AttributeValueMemberS{Value: "active"},
		"streaming":    &types.AttributeValueMemberBOOL{Value: true},
		"created_at":   &types.AttributeValueMemberS{Value: formatTime(at)},
		"updated_at":   &types.AttributeValueMemberS{Value: formatTime(at)},
	}

	rec, err := decodeRecord(item)
	if err != nil {
		t.Fatalf("decodeRecord failed: %v", err)
	}
	if rec.ID != "id-1" || rec.AgentID != "fin-1" || rec.Status != registry.StatusActive {
		t.Errorf("record = %+v", rec)
	}
	if !rec.Streaming || !slices.Equal(rec.Capabilities, []string{"a"}) {
		t.Errorf("record = %+v", rec)
	}
	if !rec.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, at)
	}
}

func TestEncodeFacts_UsesDocumentFieldNames(t *testing.T) {
	t.Parallel()

	rec := registry.NewRecord(registry.AgentRegistration{AgentID: "fin-1", AgentURL: "http://fin", Capabilities: []string{"a", "b"}}, time.Now())
	facts := registry.NewGenerator().Generate(rec)

	item, err := encodeFacts(facts)
	if err != nil {
		t.Fatalf("encodeFacts failed: %v", err)
	}
	for _, key := range []string{"username", "agent_name", "skills", "generated_at"} {
		if _, ok := item[key]; !ok {
			t.Errorf("item is missing %q", key)
		}
	}

	var username string
	if err := attributevalue.Unmarshal(item["username"], &username); err != nil || username != "fin_1" {
		t.Errorf("username = %q (%v), want fin_1", username, err)
	}

	got, err := decodeFacts(item)
	if err != nil {
		t.Fatalf("decodeFacts failed: %v", err)
	}
	if len(got.Skills) != 2 || got.Skills[0].ID != facts.Skills[0].ID {
		t.Errorf("skills = %+v", got.Skills)
	}
	if !got.GeneratedAt.Equal(facts.GeneratedAt) {
		t.Errorf("GeneratedAt = %v, want %v", got.GeneratedAt, facts.GeneratedAt)
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"deadline", context.DeadlineExceeded, registry.ErrOperationTimeout},
		{"throttled", &types.ProvisionedThroughputExceededException{}, registry.ErrOperationTimeout},
		{"other", errors.New("boom"), registry.ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if err := wrapError(tt.err); !errors.Is(err, tt.target) {
				t.Errorf("wrapError(%v) = %v, want %v", tt.err, err, tt.target)
			}
		})
	}
	if wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}

func TestIsError(t *testing.T) {
	t.Parallel()

	var inUse *types.ResourceInUseException
	if !isError(&types.ResourceInUseException{}, inUse) {
		t.Error("expected ResourceInUseException to match")
	}
	if isError(errors.New("other"), inUse) {
		t.Error("unexpected match")
	}
}
