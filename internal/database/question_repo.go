package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyqa-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQuestionRepository implements QuestionRepository for MongoDB.
// Every mutation of a question is a single conditional update so concurrent
// answers, reactions and replies never overwrite each other.
type MongoQuestionRepository struct {
	collection *mongo.Collection
}

// NewMongoQuestionRepository creates a new MongoDB question repository.
func NewMongoQuestionRepository(db *mongo.Database) *MongoQuestionRepository {
	return &MongoQuestionRepository{
		collection: db.Collection(questionsCollectionName),
	}
}

// Create inserts a new question, generating its ID.
func (r *MongoQuestionRepository) Create(ctx context.Context, question *models.Question) error {
	question.ID = primitive.NewObjectID()
	if question.Answers == nil {
		question.Answers = []models.Answer{}
	}
	if question.CreatedAt.IsZero() {
		question.CreatedAt = time.Now()
	}
	question.UpdatedAt = question.CreatedAt

	if _, err := r.collection.InsertOne(ctx, question); err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// GetByID returns ErrQuestionNotFound if no question matches the ID.
func (r *MongoQuestionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Question, error) {
	var question models.Question
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&question)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to find question %s: %w", id.Hex(), err)
	}
	return &question, nil
}

// TransitionStatus moves a pending question to status. The status filter makes
// the transition one-way: a question that is already approved or declined does
// not match and ErrStatusConflict is returned.
func (r *MongoQuestionRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, status models.QuestionStatus, actorID int64) (*models.Question, error) {
	if !models.StatusPending.CanTransitionTo(status) {
		return nil, fmt.Errorf("invalid target status %q", status)
	}

	now := time.Now()
	set := bson.M{"status": status, "updatedAt": now}
	switch status {
	case models.StatusApproved:
		set["approvedBy"] = actorID
		set["approvedAt"] = now
	case models.StatusDeclined:
		set["declinedBy"] = actorID
		set["declinedAt"] = now
	}

	filter := bson.M{"_id": id, "status": models.StatusPending}
	question, err := r.findOneAndUpdate(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("failed to set status %s on question %s: %w", status, id.Hex(), err)
	}
	if question == nil {
		return nil, r.missOrConflict(ctx, id, ErrStatusConflict)
	}
	return question, nil
}

// SetChannelMessageID records the channel post of a question. It only succeeds
// once per question.
func (r *MongoQuestionRepository) SetChannelMessageID(ctx context.Context, id primitive.ObjectID, messageID int) error {
	filter := bson.M{"_id": id, "channelMessageId": bson.M{"$in": bson.A{nil, 0}}}
	update := bson.M{"$set": bson.M{"channelMessageId": messageID, "updatedAt": time.Now()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set channel message on question %s: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return r.missOrConflict(ctx, id, ErrChannelMessageAlreadySet)
	}
	return nil
}

// AppendAnswer pushes answer onto an approved question with a single $push.
func (r *MongoQuestionRepository) AppendAnswer(ctx context.Context, id primitive.ObjectID, answer models.Answer) (*models.Question, error) {
	if answer.Replies == nil {
		answer.Replies = []models.Reply{}
	}
	filter := bson.M{"_id": id, "status": models.StatusApproved}
	update := bson.M{
		"$push": bson.M{"answers": answer},
		"$set":  bson.M{"updatedAt": time.Now()},
	}

	question, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("failed to append answer to question %s: %w", id.Hex(), err)
	}
	if question == nil {
		return nil, r.missOrConflict(ctx, id, ErrQuestionNotApproved)
	}
	return question, nil
}

// IncrementReaction atomically increments one counter of answers[index].
func (r *MongoQuestionRepository) IncrementReaction(ctx context.Context, id primitive.ObjectID, index int, kind models.ReactionKind) (*models.Question, error) {
	if index < 0 {
		return nil, ErrAnswerIndexOutOfRange
	}
	if kind != models.ReactionRight && kind != models.ReactionWrong {
		return nil, fmt.Errorf("unknown reaction kind %q", kind)
	}

	filter := answerFilter(id, index)
	update := bson.M{"$inc": bson.M{fmt.Sprintf("answers.%d.reactions.%s", index, kind): 1}}

	question, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s reaction on question %s answer %d: %w", kind, id.Hex(), index, err)
	}
	if question == nil {
		return nil, r.missOrConflict(ctx, id, ErrAnswerIndexOutOfRange)
	}
	return question, nil
}

// AppendReply pushes reply onto answers[index].replies.
func (r *MongoQuestionRepository) AppendReply(ctx context.Context, id primitive.ObjectID, index int, reply models.Reply) (*models.Question, error) {
	if index < 0 {
		return nil, ErrAnswerIndexOutOfRange
	}

	filter := answerFilter(id, index)
	update := bson.M{
		"$push": bson.M{fmt.Sprintf("answers.%d.replies", index): reply},
		"$set":  bson.M{"updatedAt": time.Now()},
	}

	question, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("failed to append reply to question %s answer %d: %w", id.Hex(), index, err)
	}
	if question == nil {
		return nil, r.missOrConflict(ctx, id, ErrAnswerIndexOutOfRange)
	}
	return question, nil
}

// ListPending returns up to limit pending questions, newest first.
func (r *MongoQuestionRepository) ListPending(ctx context.Context, limit int) ([]models.Question, error) {
	return r.find(ctx, bson.M{"status": models.StatusPending}, limit)
}

// ListByUser returns up to limit questions asked by userID, newest first.
func (r *MongoQuestionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Question, error) {
	return r.find(ctx, bson.M{"userId": userID}, limit)
}

// ListAll returns every question, newest first.
func (r *MongoQuestionRepository) ListAll(ctx context.Context) ([]models.Question, error) {
	return r.find(ctx, bson.M{}, 0)
}

// Stats counts questions by status.
func (r *MongoQuestionRepository) Stats(ctx context.Context) (QuestionStats, error) {
	var stats QuestionStats
	counts := []struct {
		dst    *int64
		filter bson.M
	}{
		{&stats.Total, bson.M{}},
		{&stats.Pending, bson.M{"status": models.StatusPending}},
		{&stats.Approved, bson.M{"status": models.StatusApproved}},
		{&stats.Declined, bson.M{"status": models.StatusDeclined}},
	}
	for _, c := range counts {
		n, err := r.collection.CountDocuments(ctx, c.filter)
		if err != nil {
			return QuestionStats{}, fmt.Errorf("failed to count questions: %w", err)
		}
		*c.dst = n
	}
	return stats, nil
}

func (r *MongoQuestionRepository) find(ctx context.Context, filter bson.M, limit int) ([]models.Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find questions: %w", err)
	}
	defer cursor.Close(ctx)

	questions := []models.Question{}
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return questions, nil
}

// findOneAndUpdate returns the updated document, or nil when the filter matched nothing.
func (r *MongoQuestionRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.Question, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var question models.Question
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&question)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &question, nil
}

// missOrConflict tells a missing question apart from a failed condition.
func (r *MongoQuestionRepository) missOrConflict(ctx context.Context, id primitive.ObjectID, conflict error) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return conflict
}

// answerFilter matches a question only when answers[index] exists.
func answerFilter(id primitive.ObjectID, index int) bson.M {
	return bson.M{
		"_id": id,
		fmt.Sprintf("answers.%d", index): bson.M{"$exists": true},
	}
}
