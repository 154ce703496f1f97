package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements DocumentStore against a MongoDB database, grounded
// on original_source/backend/core/mongodb.py and the teacher's root
// go.mongodb.org/mongo-driver dependency.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	eventsCollection string
	jobsCollection   string
}

// NewMongoStore connects to uri and selects dbName.
func NewMongoStore(ctx context.Context, uri, dbName, eventsCollection, jobsCollection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client:           client,
		db:               client.Database(dbName),
		eventsCollection: eventsCollection,
		jobsCollection:   jobsCollection,
	}, nil
}

// EnsureIndexes creates the indexes the core's query patterns rely on:
// camera_id + wall_time on events, and a TTL-friendly completed_at index on
// the jobs archive (retention itself is the store's concern, per spec §4.4).
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	events := m.db.Collection(m.eventsCollection)
	_, err := events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "camera_id", Value: 1}, {Key: "wall_time", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("ensure event indexes: %w", err)
	}

	jobs := m.db.Collection(m.jobsCollection)
	_, err = jobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "completed_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("ensure jobs archive index: %w", err)
	}
	return nil
}

func (m *MongoStore) FindOne(ctx context.Context, collection string, filter Document) (Document, error) {
	var result Document
	err := m.db.Collection(collection).FindOne(ctx, bson.M(filter)).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find_one %s: %w", collection, err)
	}
	return result, nil
}

func (m *MongoStore) InsertOne(ctx context.Context, collection string, doc Document) error {
	_, err := m.db.Collection(collection).InsertOne(ctx, bson.M(doc))
	if err != nil {
		return fmt.Errorf("insert_one %s: %w", collection, err)
	}
	return nil
}

func (m *MongoStore) UpdateOne(ctx context.Context, collection string, filter, patch Document) error {
	_, err := m.db.Collection(collection).UpdateOne(ctx, bson.M(filter), bson.M{"$set": bson.M(patch)})
	if err != nil {
		return fmt.Errorf("update_one %s: %w", collection, err)
	}
	return nil
}

func (m *MongoStore) DeleteOne(ctx context.Context, collection string, filter Document) error {
	_, err := m.db.Collection(collection).DeleteOne(ctx, bson.M(filter))
	if err != nil {
		return fmt.Errorf("delete_one %s: %w", collection, err)
	}
	return nil
}

func (m *MongoStore) Count(ctx context.Context, collection string, filter Document) (int64, error) {
	count, err := m.db.Collection(collection).CountDocuments(ctx, bson.M(filter))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return count, nil
}

// Close disconnects the underlying client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
