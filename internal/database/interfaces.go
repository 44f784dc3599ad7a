package database

import (
	"context"
	"studyqa-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// Upsert creates or refreshes a user from their Telegram profile and returns the stored record.
	Upsert(ctx context.Context, profile models.Profile) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	MarkSubscribed(ctx context.Context, telegramID int64) error
	// SaveContact stores the phone number and completes onboarding.
	SaveContact(ctx context.Context, telegramID int64, phoneNumber string) error
	SetAdmin(ctx context.Context, telegramID int64, role models.AdminRole) error
	SetBanned(ctx context.Context, telegramID int64, banned bool, reason string, actorID int64) error
	ListAdmins(ctx context.Context) ([]models.User, error)
	// ListRecipientIDs returns the Telegram IDs of every user that is not banned.
	ListRecipientIDs(ctx context.Context) ([]int64, error)
	Stats(ctx context.Context) (UserStats, error)
}

// QuestionRepository defines the interface for question storage.
// Mutations of answers are single atomic document updates.
type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Question, error)
	// TransitionStatus moves a pending question to status and returns the updated document.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, status models.QuestionStatus, actorID int64) (*models.Question, error)
	SetChannelMessageID(ctx context.Context, id primitive.ObjectID, messageID int) error
	// AppendAnswer pushes an answer onto an approved question and returns the updated document.
	AppendAnswer(ctx context.Context, id primitive.ObjectID, answer models.Answer) (*models.Question, error)
	IncrementReaction(ctx context.Context, id primitive.ObjectID, index int, kind models.ReactionKind) (*models.Question, error)
	AppendReply(ctx context.Context, id primitive.ObjectID, index int, reply models.Reply) (*models.Question, error)
	ListPending(ctx context.Context, limit int) ([]models.Question, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Question, error)
	ListAll(ctx context.Context) ([]models.Question, error)
	Stats(ctx context.Context) (QuestionStats, error)
}

// PostLogRepository records channel publications.
type PostLogRepository interface {
	LogPost(ctx context.Context, entry *models.PostLog) error
	ListByQuestion(ctx context.Context, questionID primitive.ObjectID) ([]models.PostLog, error)
}
