package handlers

import (
	"context"

	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/moderation"
	"studyqa-bot/internal/onboarding"
	"studyqa-bot/internal/session"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"
)

// HandleMessage routes a private message: shared contacts and the check
// button text go to onboarding, commands to the registry and everything else
// to the current conversation step. With no step waiting the main menu is shown.
func (h *MessageHandler) HandleMessage(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session) error {
	chatID := msg.Chat.ID

	switch {
	case msg.Contact != nil:
		return h.finish(ctx, chatID, user, sess, h.onboarding.HandleContact(ctx, msg, user, sess))
	case onboarding.IsCheckSubscriptionText(msg.Text):
		return h.finish(ctx, chatID, user, sess, h.onboarding.CheckSubscription(ctx, chatID, user, sess))
	}

	if name, args, ok := ParseCommand(msg.Text); ok {
		return h.runCommand(ctx, msg, user, sess, name, args)
	}

	handled, err := h.flow.HandleMessage(ctx, msg, user, sess)
	if err != nil || handled {
		return err
	}
	return h.finish(ctx, chatID, user, sess, h.flow.ShowMainMenu(ctx, chatID, user))
}

func (h *MessageHandler) runCommand(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, name, args string) error {
	chatID := msg.Chat.ID
	logger := log.Ctx(ctx).With().Str("command", name).Int64("user_id", user.TelegramID).Logger()

	cmd, ok := h.GetCommand(name)
	if !ok {
		logger.Debug().Msg("[Handlers] Unknown command")
		return h.reply(ctx, chatID, user, "MsgUnknownCommand", nil, nil)
	}

	allowed, err := h.allowed(ctx, cmd, user.TelegramID)
	if err != nil {
		return h.finish(ctx, chatID, user, sess, err)
	}
	if !allowed {
		logger.Warn().Msg("[Handlers] Command denied")
		return h.finish(ctx, chatID, user, sess, moderation.ErrNotAdmin)
	}

	logger.Info().Msg("[Handlers] Command received")
	return h.finish(ctx, chatID, user, sess, cmd.Handler(ctx, msg, user, sess, args))
}

// allowed applies the command's admin gate.
func (h *MessageHandler) allowed(ctx context.Context, cmd Command, userID int64) (bool, error) {
	switch {
	case cmd.Permission != "":
		return h.admins.Can(ctx, userID, cmd.Permission)
	case cmd.AdminOnly:
		return h.admins.IsAdmin(ctx, userID)
	default:
		return true, nil
	}
}

// localizedText is a convenience for callers that only need one string.
func localizedText(user *models.User, msgID string) string {
	return locales.Text(locales.ForLanguage(user.LanguageCode), msgID, nil)
}
