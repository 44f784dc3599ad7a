package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"studyqa-bot/internal/callbackdata"
	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/mocks"
	"studyqa-bot/internal/session"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockModerator is a mock implementing Moderator.
type MockModerator struct {
	mock.Mock
}

func (m *MockModerator) question(args mock.Arguments) (*models.Question, error) {
	if q := args.Get(0); q != nil {
		return q.(*models.Question), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockModerator) AppendAnswer(ctx context.Context, questionID string, answer models.Answer) (*models.Question, error) {
	return m.question(m.Called(ctx, questionID, answer))
}

func (m *MockModerator) RecordReaction(ctx context.Context, questionID string, index int, kind models.ReactionKind) (*models.Question, error) {
	return m.question(m.Called(ctx, questionID, index, kind))
}

func (m *MockModerator) AppendReply(ctx context.Context, questionID string, index int, reply models.Reply) (*models.Question, error) {
	return m.question(m.Called(ctx, questionID, index, reply))
}

func (m *MockModerator) NotifyAdmins(ctx context.Context, q *models.Question) {
	m.Called(ctx, q)
}

const (
	testUserID  = int64(700)
	testAskerID = int64(500)
)

type testSuite struct {
	bot       *mocks.MockBot
	questions *mocks.MockQuestionRepository
	moderator *MockModerator
	flow      *Flow
	user      *models.User
	sess      *session.Session
}

func setupTestSuite(t *testing.T) *testSuite {
	t.Helper()
	locales.Init("en")

	s := &testSuite{
		bot:       new(mocks.MockBot),
		questions: new(mocks.MockQuestionRepository),
		moderator: new(MockModerator),
		user:      &models.User{TelegramID: testUserID, FirstName: "Nodir", LanguageCode: "en"},
		sess:      session.New(),
	}
	s.flow = NewFlow(s.bot, s.questions, s.moderator, 0)
	return s
}

func text(msgID string, data map[string]interface{}) string {
	return locales.Text(locales.ForLanguage("en"), msgID, data)
}

func sentText(want string) interface{} {
	return mock.MatchedBy(func(p *telego.SendMessageParams) bool { return p.Text == want })
}

func approvedQuestion(answers ...models.Answer) *models.Question {
	q := models.NewQuestion(testAskerID, "Asker", models.Payload{Content: "What is osmosis?", MediaType: models.MediaText}, models.Grade8)
	q.ID = primitive.NewObjectID()
	q.Status = models.StatusApproved
	q.Answers = append(q.Answers, answers...)
	return q
}

func textMessage(s string) telego.Message {
	return telego.Message{Chat: telego.Chat{ID: testUserID}, Text: s}
}

func TestAskFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("ShortQuestionKeepsStep", func(t *testing.T) {
		s := setupTestSuite(t)
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)

		require.NoError(t, s.flow.StartAsk(ctx, testUserID, s.user, s.sess))
		assert.Equal(t, session.StateAwaitingQuestion, s.sess.State)

		handled, err := s.flow.HandleMessage(ctx, textMessage("hi"), s.user, s.sess)
		require.NoError(t, err)
		assert.True(t, handled)
		assert.Equal(t, session.StateAwaitingQuestion, s.sess.State)
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgErrTooShort", nil)))
	})

	t.Run("UnsupportedContentKeepsStep", func(t *testing.T) {
		s := setupTestSuite(t)
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)

		require.NoError(t, s.flow.StartAsk(ctx, testUserID, s.user, s.sess))

		sticker := telego.Message{Chat: telego.Chat{ID: testUserID}, Sticker: &telego.Sticker{FileID: "sticker-1"}}
		handled, err := s.flow.HandleMessage(ctx, sticker, s.user, s.sess)
		require.NoError(t, err)
		assert.True(t, handled)
		assert.Equal(t, session.StateAwaitingQuestion, s.sess.State)
		assert.Nil(t, s.sess.QuestionDraft)
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgErrUnsupportedContent", nil)))
		s.questions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("GradeSelectionSubmitsQuestion", func(t *testing.T) {
		s := setupTestSuite(t)
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)
		s.questions.On("Create", mock.Anything, mock.MatchedBy(func(q *models.Question) bool {
			return q.UserID == testUserID && q.Status == models.StatusPending && q.GradeLevel == models.Grade9 && q.Content == "How do magnets work?"
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*models.Question).ID = primitive.NewObjectID()
		}).Return(nil).Once()
		s.moderator.On("NotifyAdmins", ctx, mock.AnythingOfType("*models.Question")).Return().Once()

		require.NoError(t, s.flow.StartAsk(ctx, testUserID, s.user, s.sess))
		_, err := s.flow.HandleMessage(ctx, textMessage("How do magnets work?"), s.user, s.sess)
		require.NoError(t, err)
		assert.Equal(t, session.StateAwaitingGrade, s.sess.State)

		require.NoError(t, s.flow.SelectGrade(ctx, testUserID, s.user, s.sess, models.Grade9))
		assert.True(t, s.sess.IsIdle())
		assert.Nil(t, s.sess.QuestionDraft)
		s.questions.AssertExpectations(t)
		s.moderator.AssertExpectations(t)
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgQuestionSubmitted", map[string]interface{}{"Grade": "Grade 9"})))
	})

	t.Run("GradeWithoutDraftFails", func(t *testing.T) {
		s := setupTestSuite(t)
		s.bot.On("SendMessage", ctx, sentText(text("MsgErrNoDraft", nil))).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.flow.SelectGrade(ctx, testUserID, s.user, s.sess, models.Grade9))
		s.questions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		s.bot.AssertExpectations(t)
	})

	t.Run("BannedUserCannotAsk", func(t *testing.T) {
		s := setupTestSuite(t)
		s.user.IsBanned = true
		s.bot.On("SendMessage", ctx, sentText(text("MsgErrBanned", nil))).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.flow.StartAsk(ctx, testUserID, s.user, s.sess))
		assert.True(t, s.sess.IsIdle())
		s.bot.AssertExpectations(t)
	})
}

func TestHandleMessageIdle(t *testing.T) {
	s := setupTestSuite(t)
	handled, err := s.flow.HandleMessage(context.Background(), textMessage("hello"), s.user, s.sess)
	require.NoError(t, err)
	assert.False(t, handled)
	s.bot.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestAnswerFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("ConfirmPostsAnswer", func(t *testing.T) {
		s := setupTestSuite(t)
		q := approvedQuestion()
		qid := q.ID.Hex()
		s.questions.On("GetByID", mock.Anything, q.ID).Return(q, nil).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)
		s.moderator.On("AppendAnswer", ctx, qid, mock.MatchedBy(func(a models.Answer) bool {
			return a.AuthorID == testUserID && a.Content == "Water moves across a membrane" && !a.IsAuthorUpdate
		})).Return(q, nil).Once()

		require.NoError(t, s.flow.StartAnswer(ctx, testUserID, s.user, s.sess, qid))
		assert.Equal(t, session.StateAwaitingAnswer, s.sess.State)
		assert.False(t, s.sess.IsAuthorAnswer)

		_, err := s.flow.HandleMessage(ctx, textMessage("Water moves across a membrane"), s.user, s.sess)
		require.NoError(t, err)
		assert.True(t, s.sess.ConfirmingAnswer)

		_, err = s.flow.HandleMessage(ctx, textMessage("maybe"), s.user, s.sess)
		require.NoError(t, err)
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgConfirmOrEdit", nil)))
		assert.True(t, s.sess.ConfirmingAnswer)

		_, err = s.flow.HandleMessage(ctx, textMessage(text("BtnConfirmAnswer", nil)), s.user, s.sess)
		require.NoError(t, err)
		assert.True(t, s.sess.IsIdle())
		s.moderator.AssertExpectations(t)
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgAnswerPosted", nil)))
	})

	t.Run("EditDropsDraft", func(t *testing.T) {
		s := setupTestSuite(t)
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)
		s.sess.BeginAnswer(primitive.NewObjectID().Hex(), false)
		s.sess.StageAnswer(models.Payload{Content: "draft", MediaType: models.MediaText})

		_, err := s.flow.HandleMessage(ctx, textMessage(text("BtnEditAnswer", nil)), s.user, s.sess)
		require.NoError(t, err)
		assert.Equal(t, session.StateAwaitingAnswer, s.sess.State)
		assert.False(t, s.sess.ConfirmingAnswer)
		assert.Nil(t, s.sess.AnswerDraft)
	})

	t.Run("AuthorAnswerIsUpdate", func(t *testing.T) {
		s := setupTestSuite(t)
		q := approvedQuestion()
		q.UserID = testUserID
		s.questions.On("GetByID", mock.Anything, q.ID).Return(q, nil).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)
		s.moderator.On("AppendAnswer", ctx, q.ID.Hex(), mock.MatchedBy(func(a models.Answer) bool { return a.IsAuthorUpdate })).Return(q, nil).Once()

		require.NoError(t, s.flow.StartAnswer(ctx, testUserID, s.user, s.sess, q.ID.Hex()))
		assert.True(t, s.sess.IsAuthorAnswer)
		_, err := s.flow.HandleMessage(ctx, textMessage("I found it in the textbook"), s.user, s.sess)
		require.NoError(t, err)
		_, err = s.flow.HandleMessage(ctx, textMessage(text("BtnConfirmAnswer", nil)), s.user, s.sess)
		require.NoError(t, err)

		s.moderator.AssertExpectations(t)
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgAuthorUpdatePosted", nil)))
	})

	t.Run("PendingQuestionRejected", func(t *testing.T) {
		s := setupTestSuite(t)
		q := approvedQuestion()
		q.Status = models.StatusPending
		s.questions.On("GetByID", mock.Anything, q.ID).Return(q, nil).Once()
		s.bot.On("SendMessage", ctx, sentText(text("MsgErrQuestionNotApproved", nil))).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.flow.StartAnswer(ctx, testUserID, s.user, s.sess, q.ID.Hex()))
		assert.True(t, s.sess.IsIdle())
		s.bot.AssertExpectations(t)
	})

	t.Run("StoreFailureResetsFlow", func(t *testing.T) {
		s := setupTestSuite(t)
		qid := primitive.NewObjectID().Hex()
		s.sess.BeginAnswer(qid, false)
		s.sess.StageAnswer(models.Payload{Content: "an answer", MediaType: models.MediaText})
		s.moderator.On("AppendAnswer", ctx, qid, mock.Anything).Return(nil, errors.New("connection reset")).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)

		_, err := s.flow.HandleMessage(ctx, textMessage(text("BtnConfirmAnswer", nil)), s.user, s.sess)
		require.NoError(t, err)
		assert.True(t, s.sess.IsIdle())
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgErrorGeneral", nil)))
	})

	t.Run("CancelButton", func(t *testing.T) {
		s := setupTestSuite(t)
		s.sess.BeginAnswer(primitive.NewObjectID().Hex(), false)
		s.bot.On("SendMessage", ctx, sentText(text("MsgAnswerCancelled", nil))).Return(&telego.Message{}, nil).Once()

		_, err := s.flow.HandleMessage(ctx, textMessage(text("BtnCancelAnswering", nil)), s.user, s.sess)
		require.NoError(t, err)
		assert.True(t, s.sess.IsIdle())
		s.bot.AssertExpectations(t)
	})
}

func TestShowAnswers(t *testing.T) {
	ctx := context.Background()

	t.Run("AuthorUpdatesFirst", func(t *testing.T) {
		s := setupTestSuite(t)
		regular := models.NewAnswer(testUserID, "Nodir", models.Payload{Content: "regular answer", MediaType: models.MediaText}, false)
		update := models.NewAnswer(testAskerID, "Asker", models.Payload{Content: "author update", MediaType: models.MediaText}, true)
		q := approvedQuestion(regular, update)
		s.questions.On("GetByID", mock.Anything, q.ID).Return(q, nil).Once()

		var order []string
		s.bot.On("SendMessage", ctx, mock.Anything).Run(func(args mock.Arguments) {
			order = append(order, args.Get(1).(*telego.SendMessageParams).Text)
		}).Return(&telego.Message{}, nil)

		require.NoError(t, s.flow.ShowAnswers(ctx, testUserID, s.user, s.sess, q.ID.Hex()))
		require.Len(t, order, 4)
		assert.Contains(t, order[1], "author update")
		assert.Contains(t, order[2], "regular answer")
		assert.Equal(t, text("MsgAnswersFooter", nil), order[3])
	})

	t.Run("ButtonsCarryRawIndex", func(t *testing.T) {
		s := setupTestSuite(t)
		regular := models.NewAnswer(testUserID, "Nodir", models.Payload{Content: "regular answer", MediaType: models.MediaText}, false)
		update := models.NewAnswer(testAskerID, "Asker", models.Payload{Content: "author update", MediaType: models.MediaText}, true)
		q := approvedQuestion(regular, update)
		s.questions.On("GetByID", mock.Anything, q.ID).Return(q, nil).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)

		require.NoError(t, s.flow.ShowAnswers(ctx, testUserID, s.user, s.sess, q.ID.Hex()))
		s.bot.AssertCalled(t, "SendMessage", ctx, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
			kb, ok := p.ReplyMarkup.(*telego.InlineKeyboardMarkup)
			return ok && strings.Contains(p.Text, "author update") && len(kb.InlineKeyboard[0]) == 3 &&
				kb.InlineKeyboard[0][0].CallbackData == callbackdata.React(models.ReactionRight, q.ID.Hex(), 1) &&
				kb.InlineKeyboard[0][2].CallbackData == callbackdata.Reply(q.ID.Hex(), 1)
		}))
	})

	t.Run("NoAnswers", func(t *testing.T) {
		s := setupTestSuite(t)
		q := approvedQuestion()
		s.questions.On("GetByID", mock.Anything, q.ID).Return(q, nil).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)

		require.NoError(t, s.flow.ShowAnswers(ctx, testUserID, s.user, s.sess, q.ID.Hex()))
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgNoAnswersYet", nil)))
		s.bot.AssertNumberOfCalls(t, "SendMessage", 2)
	})

	t.Run("UnknownQuestion", func(t *testing.T) {
		s := setupTestSuite(t)
		id := primitive.NewObjectID()
		s.questions.On("GetByID", mock.Anything, id).Return(nil, database.ErrQuestionNotFound).Once()
		s.bot.On("SendMessage", ctx, sentText(text("MsgErrQuestionNotFound", nil))).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.flow.ShowAnswers(ctx, testUserID, s.user, s.sess, id.Hex()))
		s.bot.AssertExpectations(t)
	})
}

func TestReplyFlow(t *testing.T) {
	ctx := context.Background()
	answer := models.NewAnswer(testAskerID, "Asker", models.Payload{Content: "It is diffusion of water", MediaType: models.MediaText}, false)

	t.Run("PostsReply", func(t *testing.T) {
		s := setupTestSuite(t)
		q := approvedQuestion(answer)
		s.questions.On("GetByID", mock.Anything, q.ID).Return(q, nil).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil)
		s.moderator.On("AppendReply", ctx, q.ID.Hex(), 0, mock.MatchedBy(func(r models.Reply) bool {
			return r.AuthorID == testUserID && r.Content == "Thanks, that helps"
		})).Return(q, nil).Once()

		require.NoError(t, s.flow.StartReply(ctx, testUserID, s.user, s.sess, q.ID.Hex(), 0))
		assert.Equal(t, session.StateAwaitingReply, s.sess.State)

		_, err := s.flow.HandleMessage(ctx, textMessage("Thanks, that helps"), s.user, s.sess)
		require.NoError(t, err)
		assert.True(t, s.sess.IsIdle())
		s.moderator.AssertExpectations(t)
		s.bot.AssertCalled(t, "SendMessage", ctx, sentText(text("MsgReplyPosted", nil)))
	})

	t.Run("IndexOutOfRange", func(t *testing.T) {
		s := setupTestSuite(t)
		q := approvedQuestion(answer)
		s.questions.On("GetByID", mock.Anything, q.ID).Return(q, nil).Once()
		s.bot.On("SendMessage", ctx, sentText(text("MsgErrAnswerNotFound", nil))).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.flow.StartReply(ctx, testUserID, s.user, s.sess, q.ID.Hex(), 3))
		assert.True(t, s.sess.IsIdle())
		s.bot.AssertExpectations(t)
	})
}

func TestReact(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordsAndRedraws", func(t *testing.T) {
		s := setupTestSuite(t)
		a := models.NewAnswer(testAskerID, "Asker", models.Payload{Content: "answer", MediaType: models.MediaText}, false)
		a.Reactions.Right = 3
		q := approvedQuestion(a)
		qid := q.ID.Hex()

		s.moderator.On("RecordReaction", ctx, qid, 0, models.ReactionRight).Return(q, nil).Once()
		s.bot.On("AnswerCallbackQuery", ctx, mock.MatchedBy(func(p *telego.AnswerCallbackQueryParams) bool {
			return p.CallbackQueryID == "cb1" && p.Text == text("MsgRecorded", nil) && !p.ShowAlert
		})).Return(nil).Once()
		s.bot.On("EditMessageReplyMarkup", ctx, mock.MatchedBy(func(p *telego.EditMessageReplyMarkupParams) bool {
			return p.MessageID == 99 && p.ReplyMarkup.InlineKeyboard[0][0].Text == text("BtnReactRight", map[string]interface{}{"Count": 3})
		})).Return(&telego.Message{}, nil).Once()

		query := telego.CallbackQuery{ID: "cb1", Message: &telego.Message{MessageID: 99, Chat: telego.Chat{ID: testUserID}}}
		data, err := callbackdata.Parse(callbackdata.React(models.ReactionRight, qid, 0))
		require.NoError(t, err)

		require.NoError(t, s.flow.React(ctx, query, data, s.user))
		s.moderator.AssertExpectations(t)
		s.bot.AssertExpectations(t)
	})

	t.Run("RejectedReactionAlerts", func(t *testing.T) {
		s := setupTestSuite(t)
		qid := primitive.NewObjectID().Hex()
		s.moderator.On("RecordReaction", ctx, qid, 5, models.ReactionWrong).Return(nil, database.ErrAnswerIndexOutOfRange).Once()
		s.bot.On("AnswerCallbackQuery", ctx, mock.MatchedBy(func(p *telego.AnswerCallbackQueryParams) bool {
			return p.ShowAlert && p.Text == text("MsgErrAnswerNotFound", nil)
		})).Return(nil).Once()

		data, err := callbackdata.Parse(callbackdata.React(models.ReactionWrong, qid, 5))
		require.NoError(t, err)
		require.NoError(t, s.flow.React(ctx, telego.CallbackQuery{ID: "cb2"}, data, s.user))
		s.bot.AssertExpectations(t)
		s.bot.AssertNotCalled(t, "EditMessageReplyMarkup", mock.Anything, mock.Anything)
	})
}

func TestMyQuestions(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		s := setupTestSuite(t)
		s.questions.On("ListByUser", mock.Anything, testUserID, MyQuestionsLimit).Return([]models.Question{}, nil).Once()
		s.bot.On("SendMessage", ctx, sentText(text("MsgNoQuestions", nil))).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.flow.MyQuestions(ctx, testUserID, s.user, s.sess))
		s.bot.AssertExpectations(t)
	})

	t.Run("ViewButtonsOnlyForApproved", func(t *testing.T) {
		s := setupTestSuite(t)
		pending := *approvedQuestion()
		pending.Status = models.StatusPending
		approved := *approvedQuestion()
		s.questions.On("ListByUser", mock.Anything, testUserID, MyQuestionsLimit).Return([]models.Question{pending, approved}, nil).Once()
		s.bot.On("SendMessage", ctx, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
			kb, ok := p.ReplyMarkup.(*telego.InlineKeyboardMarkup)
			return ok && len(kb.InlineKeyboard) == 2 &&
				len(kb.InlineKeyboard[0]) == 1 &&
				kb.InlineKeyboard[0][0].CallbackData == callbackdata.View(approved.ID.Hex())
		})).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.flow.MyQuestions(ctx, testUserID, s.user, s.sess))
		s.bot.AssertExpectations(t)
	})
}
