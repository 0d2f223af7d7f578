package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"newsboost-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const postLogCollection = "post_logs"

// MongoPostLogger writes post logs into the post_logs collection.
type MongoPostLogger struct {
	collection *mongo.Collection
}

// NewMongoPostLogger creates the logger and makes sure its indexes exist.
func NewMongoPostLogger(ctx context.Context, db *mongo.Database) (*MongoPostLogger, error) {
	l := &MongoPostLogger{collection: db.Collection(postLogCollection)}
	_, err := l.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "published_at", Value: -1}}},
		{Keys: bson.D{{Key: "source_key", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes on '%s': %w", postLogCollection, err)
	}
	return l, nil
}

// LogPublishedPost writes a log entry for a successfully republished post.
func (m *MongoPostLogger) LogPublishedPost(ctx context.Context, entry models.PostLog) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if entry.PublishedAt.IsZero() {
		entry.PublishedAt = time.Now()
	}
	if _, err := m.collection.InsertOne(ctx, entry); err != nil {
		wrappedErr := fmt.Errorf("failed to insert post log into collection '%s': %w", postLogCollection, err)
		log.Printf("%v", wrappedErr)
		return wrappedErr
	}
	return nil
}

// RecentPosts returns the newest entries for a chat, newest first.
func (m *MongoPostLogger) RecentPosts(ctx context.Context, chatID int64, limit int) ([]models.PostLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "published_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find post logs for chat %d: %w", chatID, err)
	}
	defer cursor.Close(ctx)

	var entries []models.PostLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode post logs: %w", err)
	}
	return entries, nil
}
