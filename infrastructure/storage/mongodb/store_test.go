package mongodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
	"github.com/felixgeelhaar/agent-registry/infrastructure/storage/storetest"
)

// The store contract runs against a live deployment when
// REGISTRY_TEST_MONGODB_URI is set. Each store gets its own database.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	uri := os.Getenv("REGISTRY_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("REGISTRY_TEST_MONGODB_URI not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx,
		WithURI(uri),
		WithDatabase(fmt.Sprintf("registry_test_%d", time.Now().UnixNano())),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.database.Drop(context.Background())
		_ = client.Close(context.Background())
	})
	if err := client.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
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

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter registry.Filter
		keys   []string
	}{
		{name: "empty", filter: registry.Filter{}, keys: nil},
		{name: "status", filter: registry.StatusFilter(registry.StatusActive), keys: []string{"status"}},
		{
			name:   "capabilities and domain",
			filter: registry.Filter{Capabilities: []string{"a"}, Domain: "finance"},
			keys:   []string{"capabilities", "domain"},
		},
		{name: "query", filter: registry.Filter{Query: "fin"}, keys: []string{"$expr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := buildFilter(tt.filter)
			if len(got) != len(tt.keys) {
				t.Fatalf("filter = %v, want keys %v", got, tt.keys)
			}
			for _, k := range tt.keys {
				if _, ok := got[k]; !ok {
					t.Errorf("missing key %q in %v", k, got)
				}
			}
		})
	}
}

func TestBuildFilter_CapabilitiesMatchAny(t *testing.T) {
	t.Parallel()

	got := buildFilter(registry.Filter{Capabilities: []string{"x", "y"}})
	in, ok := got["capabilities"].(bson.M)
	if !ok {
		t.Fatalf("capabilities clause = %T", got["capabilities"])
	}
	if !reflect.DeepEqual(in["$in"], []string{"x", "y"}) {
		t.Errorf("$in = %v", in["$in"])
	}
}

func TestBuildFilter_QueryIsLiteral(t *testing.T) {
	t.Parallel()

	got := buildFilter(registry.Filter{Query: "a.b+"})
	expr := got["$expr"].(bson.M)
	match := expr["$regexMatch"].(bson.M)
	if match["regex"] != `a\.b\+` {
		t.Errorf("regex = %v, want escaped literal", match["regex"])
	}
	if match["options"] != "i" {
		t.Errorf("options = %v, want i", match["options"])
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := registry.NewRecord(registry.AgentRegistration{
		AgentID:      "fin-1",
		AgentURL:     "http://fin",
		Capabilities: []string{"analysis"},
		Domain:       "finance",
	}, now)

	id := primitive.NewObjectID()
	fields := replaceFields(rec)
	if _, ok := fields["created_at"]; ok {
		t.Error("created_at must only be written on insert")
	}

	doc := agentDocument{
		ID:             id,
		AgentID:        fields["agent_id"].(string),
		AgentURL:       fields["agent_url"].(string),
		Capabilities:   fields["capabilities"].([]string),
		Domain:         fields["domain"].(string),
		Specialization: fields["specialization"].(string),
		Description:    fields["description"].(string),
		Modalities:     fields["modalities"].([]string),
		Languages:      fields["languages"].([]string),
		Streaming:      fields["streaming"].(bool),
		Batch:          fields["batch"].(bool),
		Status:         fields["status"].(string),
		CreatedAt:      now,
		UpdatedAt:      fields["updated_at"].(time.Time),
	}
	got := fromDocument(&doc)
	want := rec.Clone()
	want.ID = id.Hex()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fromDocument = %+v, want %+v", got, want)
	}
}

func TestFactsDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := registry.NewRecord(registry.AgentRegistration{
		AgentID:      "fin-1",
		AgentURL:     "http://fin",
		Capabilities: []string{"analysis", "risk"},
	}, now)
	facts := registry.NewGenerator(registry.WithClock(func() time.Time { return now })).Generate(rec)

	data, err := bson.Marshal(toFactsDocument(facts))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var doc factsDocument
	if err := bson.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	got := fromFactsDocument(&doc)
	if !reflect.DeepEqual(got, facts) {
		t.Errorf("round trip = %+v, want %+v", got, facts)
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no documents", err: mongo.ErrNoDocuments, want: registry.ErrNotFound},
		{name: "deadline", err: fmt.Errorf("find: %w", context.DeadlineExceeded), want: registry.ErrOperationTimeout},
		{name: "other", err: errors.New("socket closed"), want: registry.ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := wrapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("wrapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, opt := range []ConfigOption{
		WithURI("mongodb://db:27017"),
		WithDatabase("registry"),
		WithCollections("", "facts"),
		WithQueryTimeout(time.Second),
	} {
		opt(&cfg)
	}

	if cfg.URI != "mongodb://db:27017" || cfg.Database != "registry" {
		t.Errorf("unexpected connection settings: %+v", cfg)
	}
	if cfg.AgentsCollection != AgentsCollection {
		t.Errorf("AgentsCollection = %q, want default", cfg.AgentsCollection)
	}
	if cfg.FactsCollection != "facts" {
		t.Errorf("FactsCollection = %q", cfg.FactsCollection)
	}
	if cfg.QueryTimeout != time.Second {
		t.Errorf("QueryTimeout = %v", cfg.QueryTimeout)
	}
}

func TestNewClient_RequiresURI(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(context.Background(), WithURI("")); err == nil {
		t.Error("expected error for empty uri")
	}
}
