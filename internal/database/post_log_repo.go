package database

import (
	"context"
	"fmt"

	"studyqa-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPostLogRepository implements PostLogRepository for MongoDB.
type MongoPostLogRepository struct {
	collection *mongo.Collection
}

// NewMongoPostLogRepository creates a new MongoDB post log repository.
func NewMongoPostLogRepository(db *mongo.Database) *MongoPostLogRepository {
	return &MongoPostLogRepository{
		collection: db.Collection(postLogsCollectionName),
	}
}

// LogPost writes a log entry for a question published to the channel.
func (r *MongoPostLogRepository) LogPost(ctx context.Context, entry *models.PostLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert post log into collection '%s': %w", postLogsCollectionName, err)
	}
	return nil
}

// ListByQuestion returns the channel posts made for a question, newest first.
// Re-approving is impossible, so more than one entry means a manual repost.
func (r *MongoPostLogRepository) ListByQuestion(ctx context.Context, questionID primitive.ObjectID) ([]models.PostLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "publishedAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"questionId": questionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find post logs for question %s: %w", questionID.Hex(), err)
	}
	var logs []models.PostLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode post logs: %w", err)
	}
	return logs, nil
}
