package qa

import (
	"context"
	"time"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/callbackdata"
	"studyqa-bot/internal/content"
	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/session"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

// StartReply opens the reply flow on answers[index] of an approved question.
func (f *Flow) StartReply(ctx context.Context, chatID int64, user *models.User, sess *session.Session, questionID string, index int) error {
	if user.IsBanned {
		return f.Fail(ctx, chatID, user, sess, ErrBanned)
	}
	q, err := f.loadQuestion(ctx, questionID)
	if err != nil {
		return f.Fail(ctx, chatID, user, sess, err)
	}
	if q.Status != models.StatusApproved {
		return f.Fail(ctx, chatID, user, sess, database.ErrQuestionNotApproved)
	}
	if !q.HasAnswer(index) {
		return f.Fail(ctx, chatID, user, sess, database.ErrAnswerIndexOutOfRange)
	}
	sess.BeginReply(q.ID.Hex(), index)

	a := q.Answers[index]
	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, chatID, locales.Text(loc, "MsgReplyPrompt", map[string]interface{}{
		"Name":   messaging.Escape(a.AuthorName),
		"Answer": messaging.Escape(content.Preview(a.Content, answerPreviewLength)),
	}), replyKeyboard(loc, "BtnCancelReply"))
}

func (f *Flow) replyInput(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session) error {
	chatID := msg.Chat.ID
	loc := locales.ForLanguage(user.LanguageCode)

	if isButton(loc, msg.Text, "BtnCancelReply") {
		sess.Reset()
		return f.send(ctx, chatID, locales.Text(loc, "MsgReplyCancelled", nil), tu.ReplyKeyboardRemove())
	}

	payload, err := content.FromMessage(msg).Payload(content.MinAnswerLength)
	if err != nil {
		return f.Reject(ctx, chatID, user, err)
	}

	reply := models.Reply{
		AuthorID:   user.TelegramID,
		AuthorName: user.DisplayName(),
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	questionID, index := sess.QuestionID, sess.AnswerIndex
	if _, err := f.moderator.AppendReply(ctx, questionID, index, reply); err != nil {
		return err
	}
	sess.Reset()

	log.Ctx(ctx).Info().Int64("user_id", user.TelegramID).Str("question_id", questionID).Int("answer_index", index).Msg("[QA] Reply posted")
	return f.send(ctx, chatID, locales.Text(loc, "MsgReplyPosted", nil), tu.ReplyKeyboardRemove())
}

// React records a right/wrong reaction from an answer's inline button, acks
// the callback and redraws the counters on the pressed message.
func (f *Flow) React(ctx context.Context, query telego.CallbackQuery, data callbackdata.Data, user *models.User) error {
	loc := locales.ForLanguage(user.LanguageCode)

	kind := models.ReactionRight
	if data.Action == callbackdata.ActionReactWrong {
		kind = models.ReactionWrong
	}

	q, err := f.moderator.RecordReaction(ctx, data.QuestionID, data.AnswerIndex, kind)
	if err != nil {
		logger := log.Ctx(ctx).With().Int64("user_id", user.TelegramID).Str("question_id", data.QuestionID).Logger()
		if k := apperrors.KindOf(err); k == apperrors.KindUnknown || k == apperrors.KindExternalTransient {
			logger.Error().Err(err).Msg("[QA] Reaction failed")
			sentry.CaptureException(err)
		} else {
			logger.Info().Err(err).Msg("[QA] Reaction rejected")
		}
		return f.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            locales.Text(loc, apperrors.UserMessageID(err), nil),
			ShowAlert:       true,
		})
	}

	if err := f.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            locales.Text(loc, "MsgRecorded", nil),
	}); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("callback_id", query.ID).Msg("[QA] Failed to answer callback query")
	}

	msg, ok := query.Message.(*telego.Message)
	if !ok || msg == nil || !q.HasAnswer(data.AnswerIndex) {
		return nil
	}
	_, err = f.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:      tu.ID(msg.Chat.ID),
		MessageID:   msg.MessageID,
		ReplyMarkup: answerButtonsKeyboard(loc, data.QuestionID, data.AnswerIndex, q.Answers[data.AnswerIndex]),
	})
	if err != nil && !messaging.IsNotModified(err) {
		log.Ctx(ctx).Warn().Err(err).Int("message_id", msg.MessageID).Msg("[QA] Failed to refresh reaction counters")
	}
	return nil
}
