package handlers

import (
	"context"
	"strconv"
	"strings"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/session"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

var (
	// ErrReplyRequired is returned when a user-targeting command has no target.
	ErrReplyRequired = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrReplyRequired", "reply to a forwarded message or pass a user id")
	// ErrUnknownRole is returned for an admin role name that does not exist.
	ErrUnknownRole = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrUnknownRole", "unknown admin role")
	// ErrSelfTarget is returned when an admin targets themselves.
	ErrSelfTarget = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrSelfTarget", "cannot target yourself")
	// ErrBotTarget is returned when the target is a bot account.
	ErrBotTarget = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrBotTarget", "cannot target a bot")
)

// ParseCommand splits "/name@bot args" into name and args.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// reply sends a localized message to chatID.
func (h *MessageHandler) reply(ctx context.Context, chatID int64, user *models.User, msgID string, data map[string]interface{}, markup telego.ReplyMarkup) error {
	loc := locales.ForLanguage(user.LanguageCode)
	return h.send(ctx, chatID, locales.Text(loc, msgID, data), markup)
}

func (h *MessageHandler) send(ctx context.Context, chatID int64, text string, markup telego.ReplyMarkup) error {
	if _, err := messaging.SendText(ctx, h.bot, tu.ID(chatID), text, markup); err != nil {
		return apperrors.Transient("send reply", err)
	}
	return nil
}

// finish turns a handler error into a user-facing notice and a session reset.
func (h *MessageHandler) finish(ctx context.Context, chatID int64, user *models.User, sess *session.Session, err error) error {
	if err == nil {
		return nil
	}
	return h.flow.Fail(ctx, chatID, user, sess, err)
}

// ack stops the loading indicator on an inline button.
func (h *MessageHandler) ack(ctx context.Context, query telego.CallbackQuery, text string, alert bool) {
	err := h.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("callback_id", query.ID).Msg("[Handlers] Failed to answer callback query")
	}
}

// alert answers a callback with the localized text for err.
func (h *MessageHandler) alert(ctx context.Context, query telego.CallbackQuery, user *models.User, err error) error {
	logger := log.Ctx(ctx).With().Int64("user_id", user.TelegramID).Str("data", query.Data).Logger()
	switch apperrors.KindOf(err) {
	case apperrors.KindUnknown, apperrors.KindExternalTransient:
		logger.Error().Err(err).Msg("[Handlers] Callback failed")
		sentry.CaptureException(err)
	default:
		logger.Info().Err(err).Msg("[Handlers] Callback rejected")
	}

	loc := locales.ForLanguage(user.LanguageCode)
	h.ack(ctx, query, locales.Text(loc, apperrors.UserMessageID(err), nil), true)
	return nil
}

// clearMarkup removes the inline keyboard from the message a callback came from.
func (h *MessageHandler) clearMarkup(ctx context.Context, query telego.CallbackQuery) {
	msg, ok := query.Message.(*telego.Message)
	if !ok || msg == nil {
		return
	}
	_, err := h.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:    tu.ID(msg.Chat.ID),
		MessageID: msg.MessageID,
	})
	if err != nil && !messaging.IsNotModified(err) {
		log.Ctx(ctx).Warn().Err(err).Int("message_id", msg.MessageID).Msg("[Handlers] Failed to clear keyboard")
	}
}

// target resolves the user a moderation command acts on. The bot only sees
// private chats, so a reply can only point at someone else through a message
// forwarded from them; otherwise the first argument must be a numeric id.
// rest is what remains of args. The actor and bots are never valid targets.
func target(msg telego.Message, args string, actorID int64) (id int64, name, rest string, err error) {
	if r := msg.ReplyToMessage; r != nil {
		if origin, ok := r.ForwardOrigin.(*telego.MessageOriginUser); ok {
			u := origin.SenderUser
			switch {
			case u.IsBot:
				return 0, "", "", ErrBotTarget
			case u.ID == actorID:
				return 0, "", "", ErrSelfTarget
			}
			return u.ID, telegramName(&u), args, nil
		}
	}

	first, rest, _ := strings.Cut(args, " ")
	id, convErr := strconv.ParseInt(first, 10, 64)
	if convErr != nil || id <= 0 {
		return 0, "", "", ErrReplyRequired
	}
	if id == actorID {
		return 0, "", "", ErrSelfTarget
	}
	return id, first, strings.TrimSpace(rest), nil
}

func telegramName(u *telego.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}
