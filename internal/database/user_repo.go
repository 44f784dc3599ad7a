package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyqa-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUserRepository implements UserRepository for MongoDB.
type MongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository creates a new MongoDB user repository.
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{
		collection: db.Collection(usersCollectionName),
	}
}

// Upsert refreshes the profile fields and last activity of a user, creating the
// record with default onboarding flags when it does not exist yet.
func (r *MongoUserRepository) Upsert(ctx context.Context, profile models.Profile) (*models.User, error) {
	now := time.Now()
	filter := bson.M{"telegramId": profile.TelegramID}
	update := bson.M{
		"$set": bson.M{
			"username":     profile.Username,
			"firstName":    profile.FirstName,
			"lastName":     profile.LastName,
			"languageCode": profile.LanguageCode,
			"lastActiveAt": now,
		},
		"$setOnInsert": bson.M{
			"telegramId":             profile.TelegramID,
			"isAdmin":                false,
			"isBanned":               false,
			"hasSubscribedToChannel": false,
			"hasSharedContact":       false,
			"onboardingCompleted":    false,
			"createdAt":              now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user models.User
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to upsert user %d: %w", profile.TelegramID, err)
	}
	return &user, nil
}

// GetByTelegramID returns ErrUserNotFound if the user has never been seen.
func (r *MongoUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"telegramId": telegramID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user %d: %w", telegramID, err)
	}
	return &user, nil
}

// MarkSubscribed records a successful channel membership check.
func (r *MongoUserRepository) MarkSubscribed(ctx context.Context, telegramID int64) error {
	return r.updateOne(ctx, telegramID, bson.M{"$set": bson.M{"hasSubscribedToChannel": true}})
}

// SaveContact stores the phone number and completes onboarding. The flags only
// ever move to true.
func (r *MongoUserRepository) SaveContact(ctx context.Context, telegramID int64, phoneNumber string) error {
	return r.updateOne(ctx, telegramID, bson.M{"$set": bson.M{
		"phoneNumber":         phoneNumber,
		"hasSharedContact":    true,
		"onboardingCompleted": true,
	}})
}

// SetAdmin grants admin rights with the permissions of role. Unknown users are
// created so that seeded admins work before their first message.
func (r *MongoUserRepository) SetAdmin(ctx context.Context, telegramID int64, role models.AdminRole) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"isAdmin":          true,
			"adminRole":        role,
			"adminPermissions": models.PermissionsFor(role),
		},
		"$setOnInsert": bson.M{
			"telegramId":             telegramID,
			"isBanned":               false,
			"hasSubscribedToChannel": false,
			"hasSharedContact":       false,
			"onboardingCompleted":    false,
			"createdAt":              now,
			"lastActiveAt":           now,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"telegramId": telegramID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set admin for user %d: %w", telegramID, err)
	}
	return nil
}

// SetBanned bans or unbans a user.
func (r *MongoUserRepository) SetBanned(ctx context.Context, telegramID int64, banned bool, reason string, actorID int64) error {
	var update bson.M
	if banned {
		update = bson.M{"$set": bson.M{
			"isBanned":  true,
			"banReason": reason,
			"bannedAt":  time.Now(),
			"bannedBy":  actorID,
		}}
	} else {
		update = bson.M{
			"$set":   bson.M{"isBanned": false},
			"$unset": bson.M{"banReason": "", "bannedAt": "", "bannedBy": ""},
		}
	}
	return r.updateOne(ctx, telegramID, update)
}

// ListAdmins returns every user holding the admin flag.
func (r *MongoUserRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"isAdmin": true}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find admins: %w", err)
	}
	defer cursor.Close(ctx)

	var admins []models.User
	if err := cursor.All(ctx, &admins); err != nil {
		return nil, fmt.Errorf("failed to decode admins: %w", err)
	}
	return admins, nil
}

// ListRecipientIDs returns the Telegram IDs of all users that are not banned.
func (r *MongoUserRepository) ListRecipientIDs(ctx context.Context) ([]int64, error) {
	opts := options.Find().SetProjection(bson.M{"telegramId": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"isBanned": bson.M{"$ne": true}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find broadcast recipients: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []int64
	for cursor.Next(ctx) {
		var row struct {
			TelegramID int64 `bson:"telegramId"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode recipient: %w", err)
		}
		ids = append(ids, row.TelegramID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}
	return ids, nil
}

// Stats counts users by onboarding and role.
func (r *MongoUserRepository) Stats(ctx context.Context) (UserStats, error) {
	var stats UserStats
	counts := []struct {
		dst    *int64
		filter bson.M
	}{
		{&stats.Total, bson.M{}},
		{&stats.Onboarded, bson.M{"onboardingCompleted": true}},
		{&stats.Admins, bson.M{"isAdmin": true}},
		{&stats.Banned, bson.M{"isBanned": true}},
	}
	for _, c := range counts {
		n, err := r.collection.CountDocuments(ctx, c.filter)
		if err != nil {
			return UserStats{}, fmt.Errorf("failed to count users: %w", err)
		}
		*c.dst = n
	}
	return stats, nil
}

func (r *MongoUserRepository) updateOne(ctx context.Context, telegramID int64, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"telegramId": telegramID}, update)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", telegramID, err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}
