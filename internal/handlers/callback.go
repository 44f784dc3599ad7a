package handlers

import (
	"context"

	"studyqa-bot/internal/callbackdata"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/session"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"
)

// HandleCallbackQuery routes an inline button press.
func (h *MessageHandler) HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery, user *models.User, sess *session.Session) error {
	data, err := callbackdata.Parse(query.Data)
	if err != nil {
		return h.alert(ctx, query, user, err)
	}
	log.Ctx(ctx).Debug().Int64("user_id", user.TelegramID).Str("action", string(data.Action)).Msg("[Handlers] Callback received")

	switch data.Action {
	case callbackdata.ActionReactRight, callbackdata.ActionReactWrong:
		return h.flow.React(ctx, query, data, user)
	case callbackdata.ActionApprove, callbackdata.ActionDecline:
		return h.review(ctx, query, data, user)
	}

	h.ack(ctx, query, "", false)
	chatID := query.From.ID
	return h.finish(ctx, chatID, user, sess, h.route(ctx, chatID, data, user, sess))
}

func (h *MessageHandler) route(ctx context.Context, chatID int64, data callbackdata.Data, user *models.User, sess *session.Session) error {
	switch data.Action {
	case callbackdata.ActionCheckSubscription:
		return h.onboarding.CheckSubscription(ctx, chatID, user, sess)
	case callbackdata.ActionCancelOnboarding:
		return h.onboarding.Cancel(ctx, chatID, user, sess)
	case callbackdata.ActionShareContact:
		return h.onboarding.RequestContact(ctx, chatID, user)

	case callbackdata.ActionAskMenu:
		return h.flow.ShowAskMenu(ctx, chatID, user)
	case callbackdata.ActionHelpMenu:
		return h.flow.ShowHelp(ctx, chatID, user)
	case callbackdata.ActionBackToMain:
		return h.flow.ShowMainMenu(ctx, chatID, user)
	case callbackdata.ActionStartAsking:
		return h.flow.StartAsk(ctx, chatID, user, sess)
	case callbackdata.ActionCancelQuestion:
		return h.flow.CancelQuestion(ctx, chatID, user, sess)
	case callbackdata.ActionMyQuestions:
		return h.flow.MyQuestions(ctx, chatID, user, sess)
	case callbackdata.ActionGrade:
		return h.flow.SelectGrade(ctx, chatID, user, sess, data.Grade)

	case callbackdata.ActionAnswer:
		return h.flow.StartAnswer(ctx, chatID, user, sess, data.QuestionID)
	case callbackdata.ActionView:
		return h.flow.ShowAnswers(ctx, chatID, user, sess, data.QuestionID)
	case callbackdata.ActionReplyAnswer:
		return h.flow.StartReply(ctx, chatID, user, sess, data.QuestionID, data.AnswerIndex)
	}
	return callbackdata.ErrMalformed
}

// review handles the approve and decline buttons on a review card.
func (h *MessageHandler) review(ctx context.Context, query telego.CallbackQuery, data callbackdata.Data, user *models.User) error {
	if data.Action == callbackdata.ActionDecline {
		if _, err := h.moderator.Decline(ctx, data.QuestionID, user.TelegramID); err != nil {
			return h.alert(ctx, query, user, err)
		}
		h.ack(ctx, query, localizedText(user, "MsgDeclinedShort"), false)
		h.clearMarkup(ctx, query)
		return nil
	}

	res, err := h.moderator.Approve(ctx, data.QuestionID, user.TelegramID)
	if err != nil {
		return h.alert(ctx, query, user, err)
	}
	if res.Published() {
		h.ack(ctx, query, localizedText(user, "MsgApprovedShort"), false)
	} else {
		h.ack(ctx, query, localizedText(user, "MsgApprovedNotPublishedShort"), true)
	}
	h.clearMarkup(ctx, query)
	return nil
}
