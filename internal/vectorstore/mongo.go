package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo backs the vector store with a MongoDB Atlas collection and a
// $vectorSearch index. Points live as one document per segment keyed by the
// stable id, so ReplaceOne with upsert gives overwrite-in-place semantics.
type Mongo struct {
	collection *mongo.Collection
	indexName  string
}

type MongoConfig struct {
	URI        string
	DBName     string
	Collection string
	IndexName  string
}

func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Mongo{
		collection: client.Database(cfg.DBName).Collection(cfg.Collection),
		indexName:  cfg.IndexName,
	}, nil
}

type mongoSegment struct {
	ID       string         `bson:"_id"`
	Content  string         `bson:"content"`
	Metadata map[string]any `bson:"metadata"`
	Vector   []float32      `bson:"vector"`
}

// EnsureCollection is a no-op for Mongo: collections are created on first
// insert and the Atlas vector index is provisioned out of band.
func (m *Mongo) EnsureCollection(ctx context.Context, dimension int) error {
	return nil
}

func (m *Mongo) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, len(points))
	for i, p := range points {
		doc := mongoSegment{
			ID:       p.ID,
			Content:  p.Payload.Content,
			Metadata: p.Payload.Metadata,
			Vector:   p.Vector,
		}
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": p.ID}).
			SetReplacement(doc).
			SetUpsert(true)
	}
	_, err := m.collection.BulkWrite(ctx, writes)
	return err
}

func (m *Mongo) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]Document, error) {
	search := bson.M{
		"index":         m.indexName,
		"path":          "vector",
		"queryVector":   vector,
		"limit":         limit,
		"numCandidates": limit * 10,
	}
	if filter != nil {
		search["filter"] = bson.M{filter.Key: filter.Value}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$project", Value: bson.M{"content": 1, "metadata": 1}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		var seg mongoSegment
		if err := cursor.Decode(&seg); err != nil {
			continue
		}
		docs = append(docs, Document{Content: seg.Content, Metadata: seg.Metadata})
	}
	return docs, cursor.Err()
}
