package handlers

import (
	"context"
	"fmt"
	"strings"

	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/session"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

// HandleStart handles /start with an optional deep-link payload.
func (h *MessageHandler) HandleStart(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, args string) error {
	return h.onboarding.Start(ctx, msg.Chat.ID, user, sess, args)
}

// HandleHelp lists the commands available to the sender.
func (h *MessageHandler) HandleHelp(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	isAdmin, err := h.admins.IsAdmin(ctx, user.TelegramID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("user_id", user.TelegramID).Msg("[Cmd:help] Admin check failed, assuming non-admin")
		isAdmin = false
	}

	loc := locales.ForLanguage(user.LanguageCode)
	var helpText strings.Builder
	helpText.WriteString(locales.Text(loc, "MsgHelpHeader", nil) + "\n")
	for _, cmd := range h.commands {
		if cmd.Hidden || (!isAdmin && !cmd.Public()) {
			continue
		}
		helpText.WriteString(fmt.Sprintf("/%s - %s\n", cmd.Command, locales.Text(loc, cmd.Description, nil)))
	}

	footerKey := "MsgHelpFooterUser"
	if isAdmin {
		footerKey = "MsgHelpFooterAdmin"
	}
	helpText.WriteString(locales.Text(loc, footerKey, nil))

	return h.send(ctx, msg.Chat.ID, helpText.String(), nil)
}

// HandleAsk starts the ask flow.
func (h *MessageHandler) HandleAsk(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	return h.flow.StartAsk(ctx, msg.Chat.ID, user, sess)
}

// HandleCancel drops whatever the user was doing.
func (h *MessageHandler) HandleCancel(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	sess.Reset()
	sess.PendingDeepLink = nil
	return h.reply(ctx, msg.Chat.ID, user, "MsgCancelled", nil, tu.ReplyKeyboardRemove())
}

// SetupCommands registers the public commands with Telegram.
func (h *MessageHandler) SetupCommands(ctx context.Context) error {
	loc := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())

	commands := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		if cmd.Hidden || !cmd.Public() {
			continue
		}
		commands = append(commands, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.Text(loc, cmd.Description, nil),
		})
	}

	if err := h.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	log.Ctx(ctx).Info().Int("count", len(commands)).Msg("[Handlers] Bot commands registered")
	return nil
}
