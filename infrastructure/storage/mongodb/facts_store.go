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

type skillDocument struct {
	ID                 string   `bson:"id"`
	Name               string   `bson:"name"`
	Description        string   `bson:"description"`
	InputModes         []string `bson:"inputModes"`
	OutputModes        []string `bson:"outputModes"`
	SupportedLanguages []string `bson:"supportedLanguages"`
	LatencyBudgetMs    int      `bson:"latencyBudgetMs"`
	MaxTokens          int      `bson:"maxTokens"`
}

// factsDocument is the MongoDB document representation of a facts document.
type factsDocument struct {
	Username     string `bson:"username"`
	AgentName    string `bson:"agent_name"`
	Description  string `bson:"description"`
	Capabilities struct {
		Modalities []string `bson:"modalities"`
		Streaming  bool     `bson:"streaming"`
		Batch      bool     `bson:"batch"`
	} `bson:"capabilities"`
	Skills      []skillDocument `bson:"skills"`
	Evaluations struct {
		PerformanceScore float64 `bson:"performanceScore"`
	} `bson:"evaluations"`
	Certification struct {
		Level  string `bson:"level"`
		Issuer string `bson:"issuer"`
	} `bson:"certification"`
	GeneratedAt time.Time `bson:"generated_at"`
}

// FactsStore is a MongoDB implementation of registry.FactsStore.
type FactsStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewFactsStore creates a facts store on the configured facts collection.
func NewFactsStore(client *Client) *FactsStore {
	return &FactsStore{
		collection:   client.Collection(client.config.FactsCollection),
		queryTimeout: client.config.QueryTimeout,
	}
}

// Save inserts or replaces the document of facts.Username.
func (s *FactsStore) Save(ctx context.Context, facts *registry.AgentFacts) error {
	if facts.Username == "" {
		return errors.New("facts username is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"username": facts.Username},
		toFactsDocument(facts),
		options.Replace().SetUpsert(true),
	)
	return wrapError(err)
}

// Get retrieves a facts document.
func (s *FactsStore) Get(ctx context.Context, username string) (*registry.AgentFacts, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc factsDocument
	if err := s.collection.FindOne(ctx, bson.M{"username": username}).Decode(&doc); err != nil {
		return nil, wrapError(err)
	}
	return fromFactsDocument(&doc), nil
}

// Ping checks the collection's database is reachable.
func (s *FactsStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return wrapError(s.collection.Database().Client().Ping(ctx, nil))
}

func toFactsDocument(f *registry.AgentFacts) *factsDocument {
	doc := &factsDocument{
		Username:    f.Username,
		AgentName:   f.AgentName,
		Description: f.Description,
		Skills:      make([]skillDocument, 0, len(f.Skills)),
		GeneratedAt: f.GeneratedAt.UTC(),
	}
	doc.Capabilities.Modalities = f.Capabilities.Modalities
	doc.Capabilities.Streaming = f.Capabilities.Streaming
	doc.Capabilities.Batch = f.Capabilities.Batch
	doc.Evaluations.PerformanceScore = f.Evaluations.PerformanceScore
	doc.Certification.Level = f.Certification.Level
	doc.Certification.Issuer = f.Certification.Issuer
	for _, sk := range f.Skills {
		doc.Skills = append(doc.Skills, skillDocument(sk))
	}
	return doc
}

func fromFactsDocument(doc *factsDocument) *registry.AgentFacts {
	f := &registry.AgentFacts{
		Username:    doc.Username,
		AgentName:   doc.AgentName,
		Description: doc.Description,
		Capabilities: registry.FactsCapabilities{
			Modalities: doc.Capabilities.Modalities,
			Streaming:  doc.Capabilities.Streaming,
			Batch:      doc.Capabilities.Batch,
		},
		Skills: make([]registry.Skill, 0, len(doc.Skills)),
		Evaluations: registry.Evaluations{
			PerformanceScore: doc.Evaluations.PerformanceScore,
		},
		Certification: registry.Certification{
			Level:  doc.Certification.Level,
			Issuer: doc.Certification.Issuer,
		},
		GeneratedAt: doc.GeneratedAt.UTC(),
	}
	for _, sk := range doc.Skills {
		f.Skills = append(f.Skills, registry.Skill(sk))
	}
	return f
}

var _ registry.FactsStore = (*FactsStore)(nil)
