package onboarding

import (
	"context"
	"errors"
	"testing"

	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/mocks"
	"studyqa-bot/internal/session"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAdminChecker struct {
	mock.Mock
}

func (m *MockAdminChecker) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockContinuation struct {
	mock.Mock
}

func (m *MockContinuation) ShowMainMenu(ctx context.Context, chatID int64, user *models.User) error {
	return m.Called(ctx, chatID, user).Error(0)
}

func (m *MockContinuation) ResumeDeepLink(ctx context.Context, chatID int64, user *models.User, sess *session.Session, link *session.DeepLink) error {
	return m.Called(ctx, chatID, user, sess, link).Error(0)
}

const (
	testChannelID = int64(-100555)
	testUserID    = int64(4242)
	testQuestion  = "65a1f0c2b3d4e5f607182930"
)

type testSuite struct {
	bot     *mocks.MockBot
	users   *mocks.MockUserRepository
	admins  *MockAdminChecker
	next    *MockContinuation
	service *Service
}

func setupTestSuite(t *testing.T) *testSuite {
	t.Helper()
	locales.Init("en")

	s := &testSuite{
		bot:    new(mocks.MockBot),
		users:  new(mocks.MockUserRepository),
		admins: new(MockAdminChecker),
		next:   new(MockContinuation),
	}
	s.service = NewService(s.bot, s.users, s.admins, s.next, Options{
		Channel:    tu.ID(testChannelID),
		HasChannel: true,
		JoinLink:   "https://t.me/studyqa_channel",
	})
	return s
}

func member(status string) telego.ChatMember {
	switch status {
	case telego.MemberStatusMember:
		return &telego.ChatMemberMember{Status: status}
	case telego.MemberStatusAdministrator:
		return &telego.ChatMemberAdministrator{Status: status}
	default:
		return &telego.ChatMemberLeft{Status: status}
	}
}

func TestIsSubscribed(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		member telego.ChatMember
		err    error
		want   bool
	}{
		{name: "Member", member: member(telego.MemberStatusMember), want: true},
		{name: "Administrator", member: member(telego.MemberStatusAdministrator), want: true},
		{name: "Left", member: member(telego.MemberStatusLeft), want: false},
		{name: "RestrictedStillMember", member: &telego.ChatMemberRestricted{Status: telego.MemberStatusRestricted, IsMember: true}, want: true},
		{name: "ApiErrorFailsOpen", err: errors.New("Bad Request: chat not found"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestSuite(t)
			s.bot.On("GetChatMember", ctx, mock.AnythingOfType("*telego.GetChatMemberParams")).Return(tt.member, tt.err).Once()
			assert.Equal(t, tt.want, s.service.IsSubscribed(ctx, testUserID))
		})
	}

	t.Run("NoChannel", func(t *testing.T) {
		s := setupTestSuite(t)
		s.service.opts.HasChannel = false
		assert.True(t, s.service.IsSubscribed(ctx, testUserID))
		s.bot.AssertNotCalled(t, "GetChatMember", mock.Anything, mock.Anything)
	})
}

func TestAllow(t *testing.T) {
	ctx := context.Background()
	fresh := &models.User{TelegramID: testUserID, LanguageCode: "en"}
	done := &models.User{TelegramID: testUserID, HasSubscribedToChannel: true, HasSharedContact: true, OnboardingCompleted: true}

	t.Run("BootstrapCommandsSkipGate", func(t *testing.T) {
		s := setupTestSuite(t)
		for _, cmd := range []string{"start", "help"} {
			ok, err := s.service.Allow(ctx, Request{UserID: testUserID, ChatID: testUserID, Command: cmd}, fresh)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, _ := s.service.Allow(ctx, Request{UserID: testUserID, IsContact: true}, fresh)
		assert.True(t, ok)
		ok, _ = s.service.Allow(ctx, Request{UserID: testUserID, Text: CheckSubscriptionText}, fresh)
		assert.True(t, ok)
		ok, _ = s.service.Allow(ctx, Request{UserID: testUserID, CallbackData: "check_subscription"}, fresh)
		assert.True(t, ok)
		s.admins.AssertNotCalled(t, "IsAdmin", mock.Anything, mock.Anything)
	})

	t.Run("IncompleteUserIsPrompted", func(t *testing.T) {
		s := setupTestSuite(t)
		s.admins.On("IsAdmin", ctx, testUserID).Return(false, nil).Once()

		var prompt *telego.SendMessageParams
		s.bot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
			Run(func(args mock.Arguments) { prompt = args.Get(1).(*telego.SendMessageParams) }).
			Return(&telego.Message{}, nil).Once()

		ok, err := s.service.Allow(ctx, Request{UserID: testUserID, ChatID: testUserID, Command: "ask"}, fresh)

		require.NoError(t, err)
		assert.False(t, ok)
		require.NotNil(t, prompt)
		markup := prompt.ReplyMarkup.(*telego.InlineKeyboardMarkup)
		assert.Equal(t, "https://t.me/studyqa_channel", markup.InlineKeyboard[0][0].URL)
		assert.Equal(t, "check_subscription", markup.InlineKeyboard[1][0].CallbackData)
	})

	t.Run("AdminsBypass", func(t *testing.T) {
		s := setupTestSuite(t)
		s.admins.On("IsAdmin", ctx, testUserID).Return(true, nil).Once()

		ok, err := s.service.Allow(ctx, Request{UserID: testUserID, Command: "admin"}, fresh)
		require.NoError(t, err)
		assert.True(t, ok)
		s.bot.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	})

	t.Run("CompletedButUnsubscribed", func(t *testing.T) {
		s := setupTestSuite(t)
		s.admins.On("IsAdmin", ctx, testUserID).Return(false, nil).Once()
		s.bot.On("GetChatMember", ctx, mock.Anything).Return(member(telego.MemberStatusLeft), nil).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil).Once()

		ok, err := s.service.Allow(ctx, Request{UserID: testUserID, ChatID: testUserID, Text: "hello"}, done)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("CompletedAndSubscribed", func(t *testing.T) {
		s := setupTestSuite(t)
		s.admins.On("IsAdmin", ctx, testUserID).Return(false, nil).Once()
		s.bot.On("GetChatMember", ctx, mock.Anything).Return(member(telego.MemberStatusMember), nil).Once()

		ok, err := s.service.Allow(ctx, Request{UserID: testUserID, ChatID: testUserID, Text: "hello"}, done)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestStartResumesDeepLink(t *testing.T) {
	ctx := context.Background()
	s := setupTestSuite(t)
	user := &models.User{TelegramID: testUserID, OnboardingCompleted: true, HasSubscribedToChannel: true}
	sess := session.New()

	s.admins.On("IsAdmin", ctx, testUserID).Return(false, nil).Once()
	s.bot.On("GetChatMember", ctx, mock.Anything).Return(member(telego.MemberStatusMember), nil).Once()
	s.next.On("ResumeDeepLink", ctx, testUserID, user, sess, &session.DeepLink{Action: session.DeepLinkAnswer, QuestionID: testQuestion}).
		Return(nil).Once()

	require.NoError(t, s.service.Start(ctx, testUserID, user, sess, "answer_"+testQuestion))

	s.next.AssertExpectations(t)
	assert.Nil(t, sess.PendingDeepLink, "deep link is consumed once acted on")
}

func TestStartKeepsDeepLinkUntilOnboarded(t *testing.T) {
	ctx := context.Background()
	s := setupTestSuite(t)
	user := &models.User{TelegramID: testUserID}
	sess := session.New()

	s.admins.On("IsAdmin", ctx, testUserID).Return(false, nil).Once()
	s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil).Twice()

	require.NoError(t, s.service.Start(ctx, testUserID, user, sess, "view_"+testQuestion))

	require.NotNil(t, sess.PendingDeepLink)
	assert.Equal(t, session.DeepLinkView, sess.PendingDeepLink.Action)
	s.next.AssertNotCalled(t, "ResumeDeepLink", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("SubscribedAsksForContact", func(t *testing.T) {
		s := setupTestSuite(t)
		user := &models.User{TelegramID: testUserID}
		s.bot.On("GetChatMember", ctx, mock.Anything).Return(member(telego.MemberStatusMember), nil).Once()
		s.users.On("MarkSubscribed", mock.Anything, testUserID).Return(nil).Once()

		var prompt *telego.SendMessageParams
		s.bot.On("SendMessage", ctx, mock.Anything).
			Run(func(args mock.Arguments) { prompt = args.Get(1).(*telego.SendMessageParams) }).
			Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.service.CheckSubscription(ctx, testUserID, user, session.New()))

		assert.True(t, user.HasSubscribedToChannel)
		keyboard, ok := prompt.ReplyMarkup.(*telego.ReplyKeyboardMarkup)
		require.True(t, ok)
		assert.True(t, keyboard.Keyboard[0][0].RequestContact)
		s.users.AssertExpectations(t)
	})

	t.Run("NotSubscribed", func(t *testing.T) {
		s := setupTestSuite(t)
		user := &models.User{TelegramID: testUserID}
		s.bot.On("GetChatMember", ctx, mock.Anything).Return(member(telego.MemberStatusLeft), nil).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.service.CheckSubscription(ctx, testUserID, user, session.New()))
		s.users.AssertNotCalled(t, "MarkSubscribed", mock.Anything, mock.Anything)
	})
}

func TestHandleContact(t *testing.T) {
	ctx := context.Background()

	t.Run("ForeignContactRejected", func(t *testing.T) {
		s := setupTestSuite(t)
		user := &models.User{TelegramID: testUserID, HasSubscribedToChannel: true}
		msg := telego.Message{
			Chat:    telego.Chat{ID: testUserID},
			From:    &telego.User{ID: testUserID},
			Contact: &telego.Contact{PhoneNumber: "+100", UserID: 999},
		}
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil).Once()

		require.NoError(t, s.service.HandleContact(ctx, msg, user, session.New()))
		s.users.AssertNotCalled(t, "SaveContact", mock.Anything, mock.Anything, mock.Anything)
		assert.False(t, user.OnboardingCompleted)
	})

	t.Run("OwnContactCompletesOnboarding", func(t *testing.T) {
		s := setupTestSuite(t)
		user := &models.User{TelegramID: testUserID, HasSubscribedToChannel: true}
		msg := telego.Message{
			Chat:    telego.Chat{ID: testUserID},
			From:    &telego.User{ID: testUserID},
			Contact: &telego.Contact{PhoneNumber: "+15550100", UserID: testUserID},
		}
		s.users.On("SaveContact", mock.Anything, testUserID, "+15550100").Return(nil).Once()
		s.bot.On("SendMessage", ctx, mock.Anything).Return(&telego.Message{}, nil).Once()
		s.next.On("ShowMainMenu", ctx, testUserID, user).Return(nil).Once()

		require.NoError(t, s.service.HandleContact(ctx, msg, user, session.New()))

		assert.True(t, user.OnboardingCompleted)
		assert.Equal(t, "+15550100", user.PhoneNumber)
		s.users.AssertExpectations(t)
		s.next.AssertExpectations(t)
	})
}
