package handlers

import (
	"bytes"
	"context"
	"strings"
	"time"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/export"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/moderation"
	"studyqa-bot/internal/session"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

// HandleAdmin shows the admin panel.
func (h *MessageHandler) HandleAdmin(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	return h.reply(ctx, msg.Chat.ID, user, "MsgAdminPanel", map[string]interface{}{
		"Name": messaging.Escape(user.DisplayName()),
		"Role": string(user.AdminRole),
	}, nil)
}

// HandleAdminQuestions sends the newest pending questions as review cards.
func (h *MessageHandler) HandleAdminQuestions(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	pending, err := h.questions.ListPending(sctx, PendingLimit)
	cancel()
	if err != nil {
		return apperrors.OrTransient("list pending questions", err)
	}

	chatID := msg.Chat.ID
	if len(pending) == 0 {
		return h.reply(ctx, chatID, user, "MsgNoPendingQuestions", nil, nil)
	}
	if err := h.reply(ctx, chatID, user, "MsgPendingHeader", map[string]interface{}{"Count": len(pending)}, nil); err != nil {
		return err
	}
	for i := range pending {
		if err := h.moderator.SendReviewCard(ctx, chatID, &pending[i]); err != nil {
			return err
		}
	}
	return nil
}

// HandleAdminStats reports question and user counters.
func (h *MessageHandler) HandleAdminStats(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	qs, err := h.questions.Stats(sctx)
	if err != nil {
		return apperrors.OrTransient("question stats", err)
	}
	us, err := h.users.Stats(sctx)
	if err != nil {
		return apperrors.OrTransient("user stats", err)
	}

	return h.reply(ctx, msg.Chat.ID, user, "MsgAdminStats", map[string]interface{}{
		"Total":     qs.Total,
		"Pending":   qs.Pending,
		"Approved":  qs.Approved,
		"Declined":  qs.Declined,
		"Users":     us.Total,
		"Onboarded": us.Onboarded,
		"Admins":    us.Admins,
		"Banned":    us.Banned,
	}, nil)
}

// HandleApprove approves and publishes the question given as argument.
func (h *MessageHandler) HandleApprove(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, args string) error {
	res, err := h.moderator.Approve(ctx, strings.TrimSpace(args), user.TelegramID)
	if err != nil {
		return err
	}
	return h.reply(ctx, msg.Chat.ID, user, approvedMessageID(res), map[string]interface{}{"ID": res.Question.ID.Hex()}, nil)
}

// HandleDecline declines the question given as argument.
func (h *MessageHandler) HandleDecline(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, args string) error {
	q, err := h.moderator.Decline(ctx, strings.TrimSpace(args), user.TelegramID)
	if err != nil {
		return err
	}
	return h.reply(ctx, msg.Chat.ID, user, "MsgDeclined", map[string]interface{}{"ID": q.ID.Hex()}, nil)
}

func approvedMessageID(res *moderation.ApproveResult) string {
	if res.Published() {
		return "MsgApproved"
	}
	return "MsgApprovedNotPublished"
}

// HandleBroadcast starts a broadcast in the background and reports when done.
// Shutdown stops the run early; the admin still gets the partial counts.
func (h *MessageHandler) HandleBroadcast(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, args string) error {
	text := strings.TrimSpace(args)
	if text == "" {
		return moderation.ErrEmptyBroadcast
	}

	chatID := msg.Chat.ID
	if err := h.reply(ctx, chatID, user, "MsgBroadcastStarted", nil, nil); err != nil {
		return err
	}

	bctx, cancel := h.jobContext(ctx)
	h.async(func() {
		defer cancel()
		report, err := h.moderator.Broadcast(bctx, text, user.TelegramID)

		// The report goes out even when shutdown stopped the run.
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(bctx), h.storeTimeout)
		defer rcancel()
		if err != nil {
			log.Ctx(rctx).Error().Err(err).Int64("admin_id", user.TelegramID).Msg("[Cmd:broadcast] Broadcast failed")
			_ = h.reply(rctx, chatID, user, apperrors.UserMessageID(err), nil, nil)
			return
		}
		if err := h.reply(rctx, chatID, user, "MsgBroadcastDone", map[string]interface{}{
			"Sent":   report.Sent,
			"Failed": report.Failed,
			"Total":  report.Total,
		}, nil); err != nil {
			log.Ctx(rctx).Warn().Err(err).Str("broadcast_id", report.RunID).Msg("[Cmd:broadcast] Failed to send report")
		}
	})
	return nil
}

// HandleMakeAdmin grants an admin role to the target user. The role defaults
// to content. Admins cannot change their own role.
func (h *MessageHandler) HandleMakeAdmin(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, args string) error {
	id, name, rest, err := target(msg, args, user.TelegramID)
	if err != nil {
		return err
	}

	role := models.RoleContent
	if rest != "" {
		parsed, ok := models.ParseAdminRole(rest)
		if !ok {
			return ErrUnknownRole
		}
		role = parsed
	}

	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	err = h.users.SetAdmin(sctx, id, role)
	cancel()
	if err != nil {
		return apperrors.OrTransient("set admin", err)
	}
	log.Ctx(ctx).Info().Int64("admin_id", user.TelegramID).Int64("user_id", id).Str("role", string(role)).Msg("[Cmd:makeadmin] Admin granted")

	loc := locales.ForLanguage(user.LanguageCode)
	if _, err := messaging.SendText(ctx, h.bot, tu.ID(id), locales.Text(loc, "MsgYouAreAdmin", map[string]interface{}{"Role": string(role)}), nil); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("user_id", id).Msg("[Cmd:makeadmin] Failed to notify new admin")
	}
	return h.reply(ctx, msg.Chat.ID, user, "MsgAdminGranted", map[string]interface{}{
		"Name": messaging.Escape(name),
		"Role": string(role),
	}, nil)
}

// HandleListAdmins lists every admin with their role.
func (h *MessageHandler) HandleListAdmins(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	admins, err := h.users.ListAdmins(sctx)
	cancel()
	if err != nil {
		return apperrors.OrTransient("list admins", err)
	}
	if len(admins) == 0 {
		return h.reply(ctx, msg.Chat.ID, user, "MsgNoAdmins", nil, nil)
	}

	loc := locales.ForLanguage(user.LanguageCode)
	var b strings.Builder
	b.WriteString(locales.Text(loc, "MsgAdminListHeader", map[string]interface{}{"Count": len(admins)}))
	for i := range admins {
		a := &admins[i]
		b.WriteString("\n")
		b.WriteString(locales.Text(loc, "MsgAdminListItem", map[string]interface{}{
			"Name":   messaging.Escape(a.DisplayName()),
			"ID":     a.TelegramID,
			"Role":   string(a.AdminRole),
			"Banned": a.IsBanned,
		}))
	}
	return h.send(ctx, msg.Chat.ID, b.String(), nil)
}

// HandleAdminStatus tells the sender whether they are an admin and what they can do.
func (h *MessageHandler) HandleAdminStatus(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	if !user.IsAdmin || user.IsBanned {
		return h.reply(ctx, msg.Chat.ID, user, "MsgNotAdminStatus", map[string]interface{}{"ID": user.TelegramID}, nil)
	}

	perms := make([]string, 0, len(user.AdminPermissions))
	for _, p := range user.AdminPermissions {
		perms = append(perms, string(p))
	}
	return h.reply(ctx, msg.Chat.ID, user, "MsgAdminStatus", map[string]interface{}{
		"ID":          user.TelegramID,
		"Role":        string(user.AdminRole),
		"Permissions": strings.Join(perms, ", "),
	}, nil)
}

// HandleAdminExport sends every question as an xlsx document.
func (h *MessageHandler) HandleAdminExport(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, _ string) error {
	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	questions, err := h.questions.ListAll(sctx)
	cancel()
	if err != nil {
		return apperrors.OrTransient("list questions", err)
	}

	buf, err := export.Questions(questions)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, "build export", err)
	}

	loc := locales.ForLanguage(user.LanguageCode)
	caption := locales.Text(loc, "MsgExportCaption", map[string]interface{}{"Count": len(questions)})
	name := export.Filename(time.Now())
	data := buf.Bytes()

	// Each attempt needs its own reader.
	err = messaging.WithRetry(ctx, "sendDocument", func() error {
		params := tu.Document(tu.ID(msg.Chat.ID), tu.File(tu.NameReader(bytes.NewReader(data), name))).
			WithCaption(caption).
			WithParseMode(telego.ModeHTML)
		_, err := h.bot.SendDocument(ctx, params)
		return err
	})
	if err != nil {
		return apperrors.Transient("send export", err)
	}
	log.Ctx(ctx).Info().Int64("admin_id", user.TelegramID).Int("questions", len(questions)).Msg("[Cmd:admin_export] Export sent")
	return nil
}

// HandleBan bans the target user. Anything after the target is the reason.
func (h *MessageHandler) HandleBan(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, args string) error {
	return h.setBanned(ctx, msg, user, args, true)
}

// HandleUnban lifts a ban.
func (h *MessageHandler) HandleUnban(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, args string) error {
	return h.setBanned(ctx, msg, user, args, false)
}

func (h *MessageHandler) setBanned(ctx context.Context, msg telego.Message, user *models.User, args string, banned bool) error {
	id, name, reason, err := target(msg, args, user.TelegramID)
	if err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	err = h.users.SetBanned(sctx, id, banned, reason, user.TelegramID)
	cancel()
	if err != nil {
		return apperrors.OrTransient("set banned", err)
	}
	log.Ctx(ctx).Info().Int64("admin_id", user.TelegramID).Int64("user_id", id).Bool("banned", banned).Str("reason", reason).Msg("[Handlers] Ban status changed")

	msgID := "MsgUserUnbanned"
	if banned {
		msgID = "MsgUserBanned"
	}
	return h.reply(ctx, msg.Chat.ID, user, msgID, map[string]interface{}{"Name": messaging.Escape(name)}, nil)
}
