package mongodb

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// agentDocument is the MongoDB document representation of a record.
type agentDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	AgentID        string             `bson:"agent_id"`
	AgentURL       string             `bson:"agent_url"`
	Capabilities   []string           `bson:"capabilities"`
	Domain         string             `bson:"domain"`
	Specialization string             `bson:"specialization"`
	Description    string             `bson:"description"`
	Modalities     []string           `bson:"modalities"`
	Languages      []string           `bson:"languages"`
	Streaming      bool               `bson:"streaming"`
	Batch          bool               `bson:"batch"`
	Status         string             `bson:"status"`
	AgentFactsURL  string             `bson:"agent_facts_url"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

// AgentStore is a MongoDB implementation of registry.IndexStore.
type AgentStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewAgentStore creates an agent store on the configured agents collection.
func NewAgentStore(client *Client) *AgentStore {
	return &AgentStore{
		collection:   client.Collection(client.config.AgentsCollection),
		queryTimeout: client.config.QueryTimeout,
	}
}

// Upsert inserts rec or replaces the record with the same agent id. The
// storage id and created_at are only written on insert.
func (s *AgentStore) Upsert(ctx context.Context, rec *registry.AgentRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	set := replaceFields(rec)
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": rec.CreatedAt.UTC()},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc agentDocument
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"agent_id": rec.AgentID}, update, opts).Decode(&doc)
	if err != nil {
		return "", wrapError(err)
	}
	return doc.ID.Hex(), nil
}

// Get retrieves a record by agent id.
func (s *AgentStore) Get(ctx context.Context, agentID string) (*registry.AgentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc agentDocument
	if err := s.collection.FindOne(ctx, bson.M{"agent_id": agentID}).Decode(&doc); err != nil {
		return nil, wrapError(err)
	}
	return fromDocument(&doc), nil
}

// Patch applies a partial update. Only the supplied fields are written so
// concurrent patches of different fields do not overwrite each other.
func (s *AgentStore) Patch(ctx context.Context, agentID string, patch registry.Patch) (bool, error) {
	current, err := s.Get(ctx, agentID)
	if err != nil {
		return false, err
	}
	if !patch.Apply(current) {
		return false, nil
	}

	set := bson.M{}
	for k, v := range patch.Fields() {
		set[k] = v
	}
	set["updated_at"] = current.UpdatedAt

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.UpdateOne(ctx, bson.M{"agent_id": agentID}, bson.M{"$set": set})
	if err != nil {
		return false, wrapError(err)
	}
	if result.MatchedCount == 0 {
		return false, registry.ErrNotFound
	}
	return true, nil
}

// Delete removes a record.
func (s *AgentStore) Delete(ctx context.Context, agentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"agent_id": agentID})
	if err != nil {
		return wrapError(err)
	}
	if result.DeletedCount == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// List returns the records matching the filter, translated into a native query.
func (s *AgentStore) List(ctx context.Context, filter registry.Filter) ([]*registry.AgentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "agent_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var records []*registry.AgentRecord
	for cursor.Next(ctx) {
		var doc agentDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapError(err)
		}
		records = append(records, fromDocument(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapError(err)
	}
	return records, nil
}

// Ping checks the collection's database is reachable.
func (s *AgentStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return wrapError(s.collection.Database().Client().Ping(ctx, nil))
}

// buildFilter translates a registry filter into a MongoDB query.
func buildFilter(filter registry.Filter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if len(filter.Capabilities) > 0 {
		query["capabilities"] = bson.M{"$in": filter.Capabilities}
	}
	if filter.Domain != "" {
		query["domain"] = filter.Domain
	}
	if filter.Query != "" {
		query["$expr"] = bson.M{
			"$regexMatch": bson.M{
				"input": bson.M{"$concat": bson.A{
					bson.M{"$ifNull": bson.A{"$agent_id", ""}}, " ",
					bson.M{"$ifNull": bson.A{"$description", ""}}, " ",
					bson.M{"$ifNull": bson.A{"$specialization", ""}},
				}},
				"regex":   regexp.QuoteMeta(filter.Query),
				"options": "i",
			},
		}
	}
	return query
}

// replaceFields returns every caller-owned field of rec for $set.
func replaceFields(rec *registry.AgentRecord) bson.M {
	return bson.M{
		"agent_id":        rec.AgentID,
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
		"updated_at":      rec.UpdatedAt.UTC(),
	}
}

func fromDocument(doc *agentDocument) *registry.AgentRecord {
	return &registry.AgentRecord{
		ID:             doc.ID.Hex(),
		AgentID:        doc.AgentID,
		AgentURL:       doc.AgentURL,
		Capabilities:   doc.Capabilities,
		Domain:         doc.Domain,
		Specialization: doc.Specialization,
		Description:    doc.Description,
		Modalities:     doc.Modalities,
		Languages:      doc.Languages,
		Streaming:      doc.Streaming,
		Batch:          doc.Batch,
		Status:         registry.Status(doc.Status),
		AgentFactsURL:  doc.AgentFactsURL,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
	}
}

var _ registry.IndexStore = (*AgentStore)(nil)
