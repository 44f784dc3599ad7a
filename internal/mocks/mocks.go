// Package mocks holds testify mocks shared by the package tests.
package mocks

import (
	"context"

	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockBot is a mock implementing the telegoapi.BotAPI interface.
type MockBot struct {
	mock.Mock
}

func (m *MockBot) message(args mock.Arguments) (*telego.Message, error) {
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if user, ok := args.Get(0).(*telego.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockBot) GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error) {
	args := m.Called(ctx, params)
	if member, ok := args.Get(0).(telego.ChatMember); ok {
		return member, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	return m.message(m.Called(ctx, params))
}

func (m *MockBot) SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	return m.message(m.Called(ctx, params))
}

func (m *MockBot) SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error) {
	return m.message(m.Called(ctx, params))
}

func (m *MockBot) SendAudio(ctx context.Context, params *telego.SendAudioParams) (*telego.Message, error) {
	return m.message(m.Called(ctx, params))
}

func (m *MockBot) SendVoice(ctx context.Context, params *telego.SendVoiceParams) (*telego.Message, error) {
	return m.message(m.Called(ctx, params))
}

func (m *MockBot) SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error) {
	return m.message(m.Called(ctx, params))
}

func (m *MockBot) EditMessageReplyMarkup(ctx context.Context, params *telego.EditMessageReplyMarkupParams) (*telego.Message, error) {
	return m.message(m.Called(ctx, params))
}

// MockUserRepository is a mock for database.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) user(args mock.Arguments) (*models.User, error) {
	if u, ok := args.Get(0).(*models.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Upsert(ctx context.Context, profile models.Profile) (*models.User, error) {
	return m.user(m.Called(ctx, profile))
}

func (m *MockUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return m.user(m.Called(ctx, telegramID))
}

func (m *MockUserRepository) MarkSubscribed(ctx context.Context, telegramID int64) error {
	return m.Called(ctx, telegramID).Error(0)
}

func (m *MockUserRepository) SaveContact(ctx context.Context, telegramID int64, phoneNumber string) error {
	return m.Called(ctx, telegramID, phoneNumber).Error(0)
}

func (m *MockUserRepository) SetAdmin(ctx context.Context, telegramID int64, role models.AdminRole) error {
	return m.Called(ctx, telegramID, role).Error(0)
}

func (m *MockUserRepository) SetBanned(ctx context.Context, telegramID int64, banned bool, reason string, actorID int64) error {
	return m.Called(ctx, telegramID, banned, reason, actorID).Error(0)
}

func (m *MockUserRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if users, ok := args.Get(0).([]models.User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) ListRecipientIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if ids, ok := args.Get(0).([]int64); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Stats(ctx context.Context) (database.UserStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(database.UserStats), args.Error(1)
}

// MockQuestionRepository is a mock for database.QuestionRepository.
type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) question(args mock.Arguments) (*models.Question, error) {
	if q, ok := args.Get(0).(*models.Question); ok {
		return q, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQuestionRepository) questions(args mock.Arguments) ([]models.Question, error) {
	if qs, ok := args.Get(0).([]models.Question); ok {
		return qs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQuestionRepository) Create(ctx context.Context, question *models.Question) error {
	return m.Called(ctx, question).Error(0)
}

func (m *MockQuestionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Question, error) {
	return m.question(m.Called(ctx, id))
}

func (m *MockQuestionRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, status models.QuestionStatus, actorID int64) (*models.Question, error) {
	return m.question(m.Called(ctx, id, status, actorID))
}

func (m *MockQuestionRepository) SetChannelMessageID(ctx context.Context, id primitive.ObjectID, messageID int) error {
	return m.Called(ctx, id, messageID).Error(0)
}

func (m *MockQuestionRepository) AppendAnswer(ctx context.Context, id primitive.ObjectID, answer models.Answer) (*models.Question, error) {
	return m.question(m.Called(ctx, id, answer))
}

func (m *MockQuestionRepository) IncrementReaction(ctx context.Context, id primitive.ObjectID, index int, kind models.ReactionKind) (*models.Question, error) {
	return m.question(m.Called(ctx, id, index, kind))
}

func (m *MockQuestionRepository) AppendReply(ctx context.Context, id primitive.ObjectID, index int, reply models.Reply) (*models.Question, error) {
	return m.question(m.Called(ctx, id, index, reply))
}

func (m *MockQuestionRepository) ListPending(ctx context.Context, limit int) ([]models.Question, error) {
	return m.questions(m.Called(ctx, limit))
}

func (m *MockQuestionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Question, error) {
	return m.questions(m.Called(ctx, userID, limit))
}

func (m *MockQuestionRepository) ListAll(ctx context.Context) ([]models.Question, error) {
	return m.questions(m.Called(ctx))
}

func (m *MockQuestionRepository) Stats(ctx context.Context) (database.QuestionStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(database.QuestionStats), args.Error(1)
}

// MockPostLogRepository is a mock for database.PostLogRepository.
type MockPostLogRepository struct {
	mock.Mock
}

func (m *MockPostLogRepository) LogPost(ctx context.Context, entry *models.PostLog) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockPostLogRepository) ListByQuestion(ctx context.Context, questionID primitive.ObjectID) ([]models.PostLog, error) {
	args := m.Called(ctx, questionID)
	if logs, ok := args.Get(0).([]models.PostLog); ok {
		return logs, args.Error(1)
	}
	return nil, args.Error(1)
}
