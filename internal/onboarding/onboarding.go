// Package onboarding implements the subscription and contact gate that runs
// before any conversation flow.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/callbackdata"
	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/session"
	"studyqa-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
)

// CheckSubscriptionText is the English label of the check button. Typing it is
// equivalent to pressing the button.
const CheckSubscriptionText = "✅ Check Subscription"

// AdminChecker reports whether a user bypasses the gate.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// Continuation is what runs once a user is through the gate.
type Continuation interface {
	ShowMainMenu(ctx context.Context, chatID int64, user *models.User) error
	ResumeDeepLink(ctx context.Context, chatID int64, user *models.User, sess *session.Session, link *session.DeepLink) error
}

// Request is the part of an inbound update the gate looks at.
type Request struct {
	UserID       int64
	ChatID       int64
	Command      string
	Text         string
	IsContact    bool
	CallbackData string
}

// Options configures a Service.
type Options struct {
	Channel      telego.ChatID
	HasChannel   bool
	JoinLink     string
	StoreTimeout time.Duration
}

// Service is the onboarding gate and flow.
type Service struct {
	bot    telegoapi.BotAPI
	users  database.UserRepository
	admins AdminChecker
	next   Continuation
	opts   Options
}

// NewService creates an onboarding service.
func NewService(bot telegoapi.BotAPI, users database.UserRepository, admins AdminChecker, next Continuation, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Service{bot: bot, users: users, admins: admins, next: next, opts: opts}
}

// IsOnboardingComplete reports whether userID finished onboarding.
func (s *Service) IsOnboardingComplete(ctx context.Context, userID int64) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	user, err := s.users.GetByTelegramID(sctx, userID)
	if errors.Is(err, database.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.OrTransient("load user", err)
	}
	return user.OnboardingCompleted, nil
}

// IsSubscribed reports whether userID is a member of the channel. Without a
// channel, or when Telegram cannot answer, the check passes.
func (s *Service) IsSubscribed(ctx context.Context, userID int64) bool {
	if !s.opts.HasChannel {
		return true
	}

	member, err := s.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: s.opts.Channel,
		UserID: userID,
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("[Onboarding] Membership check failed, allowing")
		return true
	}
	return isMember(member)
}

func isMember(member telego.ChatMember) bool {
	if member == nil {
		return false
	}
	switch member.MemberStatus() {
	case telego.MemberStatusCreator, telego.MemberStatusAdministrator, telego.MemberStatusMember:
		return true
	case telego.MemberStatusRestricted:
		if restricted, ok := member.(*telego.ChatMemberRestricted); ok {
			return restricted.IsMember
		}
	}
	return false
}

// IsCheckSubscriptionText reports whether text is the check button label.
func IsCheckSubscriptionText(text string) bool {
	return strings.TrimSpace(text) == CheckSubscriptionText
}

func isOnboardingCallback(data string) bool {
	switch callbackdata.Action(data) {
	case callbackdata.ActionCheckSubscription, callbackdata.ActionCancelOnboarding, callbackdata.ActionShareContact:
		return true
	}
	return false
}

// Allow is the pre-dispatch filter. It returns false when the update must not
// reach a conversation flow; in that case the user has been prompted already.
func (s *Service) Allow(ctx context.Context, req Request, user *models.User) (bool, error) {
	switch {
	case req.Command == "start" || req.Command == "help":
		return true, nil
	case req.IsContact, IsCheckSubscriptionText(req.Text), isOnboardingCallback(req.CallbackData):
		return true, nil
	}

	isAdmin, err := s.admins.IsAdmin(ctx, req.UserID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("user_id", req.UserID).Msg("[Onboarding] Admin check failed")
	}
	if isAdmin {
		return true, nil
	}

	loc := locales.ForLanguage(user.LanguageCode)
	if !user.OnboardingCompleted {
		log.Ctx(ctx).Debug().Int64("user_id", req.UserID).Msg("[Onboarding] Blocked: onboarding incomplete")
		return false, s.prompt(ctx, loc, req.ChatID, user)
	}
	if !s.IsSubscribed(ctx, req.UserID) {
		log.Ctx(ctx).Debug().Int64("user_id", req.UserID).Msg("[Onboarding] Blocked: not subscribed")
		return false, s.sendJoinPrompt(ctx, loc, req.ChatID, "MsgSubscriptionRequired")
	}
	return true, nil
}

// Start handles /start with an optional deep-link payload.
func (s *Service) Start(ctx context.Context, chatID int64, user *models.User, sess *session.Session, payload string) error {
	if data, ok := callbackdata.ParseDeepLink(payload); ok {
		sess.PendingDeepLink = &session.DeepLink{Action: session.DeepLinkAction(data.Action), QuestionID: data.QuestionID}
		log.Ctx(ctx).Info().Int64("user_id", user.TelegramID).Str("deep_link", payload).Msg("[Onboarding] Captured deep link")
	}

	isAdmin, _ := s.admins.IsAdmin(ctx, user.TelegramID)
	loc := locales.ForLanguage(user.LanguageCode)

	if isAdmin || user.OnboardingCompleted {
		if !isAdmin && !s.IsSubscribed(ctx, user.TelegramID) {
			return s.sendJoinPrompt(ctx, loc, chatID, "MsgSubscriptionRequired")
		}
		return s.proceed(ctx, chatID, user, sess)
	}

	if _, err := messaging.SendText(ctx, s.bot, tu.ID(chatID), locales.Text(loc, "MsgWelcome", map[string]interface{}{
		"Name": messaging.Escape(user.DisplayName()),
	}), nil); err != nil {
		return apperrors.Transient("send welcome", err)
	}
	return s.prompt(ctx, loc, chatID, user)
}

// CheckSubscription handles the check button or its text.
func (s *Service) CheckSubscription(ctx context.Context, chatID int64, user *models.User, sess *session.Session) error {
	loc := locales.ForLanguage(user.LanguageCode)

	if !s.IsSubscribed(ctx, user.TelegramID) {
		return s.sendJoinPrompt(ctx, loc, chatID, "MsgNotSubscribedYet")
	}

	if !user.HasSubscribedToChannel {
		sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		err := s.users.MarkSubscribed(sctx, user.TelegramID)
		cancel()
		if err != nil {
			return apperrors.OrTransient("mark subscribed", err)
		}
		user.HasSubscribedToChannel = true
		log.Ctx(ctx).Info().Int64("user_id", user.TelegramID).Msg("[Onboarding] Subscription confirmed")
	}

	if user.OnboardingCompleted {
		if _, err := messaging.SendText(ctx, s.bot, tu.ID(chatID), locales.Text(loc, "MsgSubscriptionConfirmed", nil), nil); err != nil {
			return apperrors.Transient("send confirmation", err)
		}
		return s.proceed(ctx, chatID, user, sess)
	}
	return s.sendContactPrompt(ctx, loc, chatID)
}

// HandleContact stores the user's own shared contact and completes onboarding.
func (s *Service) HandleContact(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session) error {
	loc := locales.ForLanguage(user.LanguageCode)
	chatID := msg.Chat.ID

	if msg.Contact == nil || msg.From == nil || msg.Contact.UserID != msg.From.ID {
		_, err := messaging.SendText(ctx, s.bot, tu.ID(chatID), locales.Text(loc, "MsgContactNotYours", nil), nil)
		return err
	}
	if !user.HasSubscribedToChannel && !s.IsSubscribed(ctx, user.TelegramID) {
		return s.sendJoinPrompt(ctx, loc, chatID, "MsgNotSubscribedYet")
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if !user.HasSubscribedToChannel {
		if err := s.users.MarkSubscribed(sctx, user.TelegramID); err != nil {
			return apperrors.OrTransient("mark subscribed", err)
		}
		user.HasSubscribedToChannel = true
	}
	if err := s.users.SaveContact(sctx, user.TelegramID, msg.Contact.PhoneNumber); err != nil {
		return apperrors.OrTransient("save contact", err)
	}
	user.PhoneNumber = msg.Contact.PhoneNumber
	user.HasSharedContact = true
	user.OnboardingCompleted = true
	log.Ctx(ctx).Info().Int64("user_id", user.TelegramID).Msg("[Onboarding] Completed")

	params := tu.Message(tu.ID(chatID), locales.Text(loc, "MsgOnboardingComplete", nil)).
		WithParseMode(telego.ModeHTML).
		WithReplyMarkup(tu.ReplyKeyboardRemove())
	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		return apperrors.Transient("send onboarding complete", err)
	}
	return s.proceed(ctx, chatID, user, sess)
}

// RequestContact shows the share-contact keyboard again.
func (s *Service) RequestContact(ctx context.Context, chatID int64, user *models.User) error {
	return s.sendContactPrompt(ctx, locales.ForLanguage(user.LanguageCode), chatID)
}

// Cancel aborts onboarding.
func (s *Service) Cancel(ctx context.Context, chatID int64, user *models.User, sess *session.Session) error {
	sess.Reset()
	sess.ConsumeDeepLink()
	params := tu.Message(tu.ID(chatID), locales.Text(locales.ForLanguage(user.LanguageCode), "MsgOnboardingCancelled", nil)).
		WithReplyMarkup(tu.ReplyKeyboardRemove())
	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		return apperrors.Transient("send onboarding cancelled", err)
	}
	return nil
}

func (s *Service) proceed(ctx context.Context, chatID int64, user *models.User, sess *session.Session) error {
	if link := sess.ConsumeDeepLink(); link != nil {
		return s.next.ResumeDeepLink(ctx, chatID, user, sess, link)
	}
	return s.next.ShowMainMenu(ctx, chatID, user)
}

func (s *Service) prompt(ctx context.Context, loc *i18n.Localizer, chatID int64, user *models.User) error {
	if !user.HasSubscribedToChannel {
		return s.sendJoinPrompt(ctx, loc, chatID, "MsgJoinChannelPrompt")
	}
	return s.sendContactPrompt(ctx, loc, chatID)
}

func (s *Service) sendJoinPrompt(ctx context.Context, loc *i18n.Localizer, chatID int64, msgID string) error {
	rows := make([][]telego.InlineKeyboardButton, 0, 3)
	if s.opts.JoinLink != "" {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.Text(loc, "BtnJoinChannel", nil)).WithURL(s.opts.JoinLink),
		))
	}
	rows = append(rows,
		tu.InlineKeyboardRow(tu.InlineKeyboardButton(locales.Text(loc, "BtnCheckSubscription", nil)).
			WithCallbackData(string(callbackdata.ActionCheckSubscription))),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton(locales.Text(loc, "BtnCancel", nil)).
			WithCallbackData(string(callbackdata.ActionCancelOnboarding))),
	)

	if _, err := messaging.SendText(ctx, s.bot, tu.ID(chatID), locales.Text(loc, msgID, nil), tu.InlineKeyboard(rows...)); err != nil {
		return apperrors.Transient(fmt.Sprintf("send %s", msgID), err)
	}
	return nil
}

func (s *Service) sendContactPrompt(ctx context.Context, loc *i18n.Localizer, chatID int64) error {
	keyboard := tu.Keyboard(
		tu.KeyboardRow(tu.KeyboardButton(locales.Text(loc, "BtnShareContact", nil)).WithRequestContact()),
	).WithResizeKeyboard().WithOneTimeKeyboard()

	if _, err := messaging.SendText(ctx, s.bot, tu.ID(chatID), locales.Text(loc, "MsgSharePrompt", nil), keyboard); err != nil {
		return apperrors.Transient("send contact prompt", err)
	}
	return nil
}
