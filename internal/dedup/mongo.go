package dedup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	processedCollection = "processed_keys"
	mappingCollection   = "message_map"
	// codeNamespaceExists is returned by createCollection when the collection is already there.
	codeNamespaceExists = 48
	// averageKeyDocSize sizes the capped collection; MaxDocuments is the binding limit.
	averageKeyDocSize = 128
)

type processedDoc struct {
	Key         string    `bson:"_id"`
	ProcessedAt time.Time `bson:"processed_at"`
}

// MongoStore keeps keys in a capped collection so the oldest are evicted
// automatically once retention is reached. Uniqueness of _id makes TryMark
// atomic across bot instances.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore ensures the capped collection exists and returns the store.
func NewMongoStore(ctx context.Context, db *mongo.Database, retention int) (*MongoStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	opts := options.CreateCollection().
		SetCapped(true).
		SetMaxDocuments(int64(retention)).
		SetSizeInBytes(int64(retention) * averageKeyDocSize)
	if err := db.CreateCollection(ctx, processedCollection, opts); err != nil {
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Code != codeNamespaceExists {
			return nil, &StoreError{Backend: "mongo", Op: "open", Err: fmt.Errorf("failed to create collection '%s': %w", processedCollection, err)}
		}
	}
	return &MongoStore{coll: db.Collection(processedCollection)}, nil
}

func (s *MongoStore) HasBeenProcessed(ctx context.Context, key string) (bool, error) {
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Backend: "mongo", Op: "read", Err: err}
	}
	return true, nil
}

func (s *MongoStore) MarkProcessed(ctx context.Context, key string) error {
	_, err := s.TryMark(ctx, key)
	return err
}

func (s *MongoStore) TryMark(ctx context.Context, key string) (bool, error) {
	_, err := s.coll.InsertOne(ctx, processedDoc{Key: key, ProcessedAt: time.Now().UTC()})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Backend: "mongo", Op: "mark", Err: err}
	}
	return true, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *MongoStore) Close() error { return nil }

type mappingEntry struct {
	SourceKey   string    `bson:"_id"`
	PublishedID int       `bson:"published_id"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// MongoMapper stores the message mapping with one upserted document per source key.
type MongoMapper struct {
	coll *mongo.Collection
}

// NewMongoMapper returns a mapper over the message_map collection.
func NewMongoMapper(db *mongo.Database) *MongoMapper {
	return &MongoMapper{coll: db.Collection(mappingCollection)}
}

func (m *MongoMapper) Put(ctx context.Context, sourceKey string, publishedID int) error {
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": sourceKey},
		bson.M{"$set": bson.M{"published_id": publishedID, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		log.Printf("[Dedup Mongo] Failed to store mapping %s -> %d: %v", sourceKey, publishedID, err)
		return &StoreError{Backend: "mongo", Op: "map", Err: err}
	}
	return nil
}

func (m *MongoMapper) Get(ctx context.Context, sourceKey string) (int, bool, error) {
	var entry mappingEntry
	err := m.coll.FindOne(ctx, bson.M{"_id": sourceKey}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &StoreError{Backend: "mongo", Op: "lookup", Err: err}
	}
	return entry.PublishedID, true, nil
}
