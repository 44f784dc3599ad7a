package qa

import (
	"context"

	"studyqa-bot/internal/content"
	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/session"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

const answerPreviewLength = 100

// StartAnswer opens the answer flow on an approved question. When the asker
// answers their own question the answer is stored as an author update.
func (f *Flow) StartAnswer(ctx context.Context, chatID int64, user *models.User, sess *session.Session, questionID string) error {
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

	isAuthor := q.IsAuthor(user.TelegramID)
	sess.BeginAnswer(q.ID.Hex(), isAuthor)

	prompt := "MsgAnswerPrompt"
	if isAuthor {
		prompt = "MsgAuthorUpdatePrompt"
	}
	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, chatID, locales.Text(loc, prompt, map[string]interface{}{
		"Question": messaging.Escape(content.Preview(q.Content, answerPreviewLength)),
	}), replyKeyboard(loc, "BtnCancelAnswering"))
}

func (f *Flow) answerInput(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session) error {
	chatID := msg.Chat.ID
	loc := locales.ForLanguage(user.LanguageCode)

	if isButton(loc, msg.Text, "BtnCancelAnswering") {
		sess.Reset()
		return f.send(ctx, chatID, locales.Text(loc, "MsgAnswerCancelled", nil), tu.ReplyKeyboardRemove())
	}

	if sess.ConfirmingAnswer {
		switch {
		case isButton(loc, msg.Text, "BtnConfirmAnswer"):
			return f.postAnswer(ctx, chatID, user, sess)
		case isButton(loc, msg.Text, "BtnEditAnswer"):
			sess.EditAnswer()
			return f.send(ctx, chatID, locales.Text(loc, "MsgAnswerEditPrompt", nil), replyKeyboard(loc, "BtnCancelAnswering"))
		default:
			return f.send(ctx, chatID, locales.Text(loc, "MsgConfirmOrEdit", nil), confirmKeyboard(loc))
		}
	}

	payload, err := content.FromMessage(msg).Payload(content.MinAnswerLength)
	if err != nil {
		return f.Reject(ctx, chatID, user, err)
	}
	sess.StageAnswer(payload)

	return f.send(ctx, chatID, locales.Text(loc, "MsgAnswerPreview", map[string]interface{}{
		"Preview": messaging.Escape(content.Preview(payload.Content, answerPreviewLength)),
	}), confirmKeyboard(loc))
}

func (f *Flow) postAnswer(ctx context.Context, chatID int64, user *models.User, sess *session.Session) error {
	if sess.AnswerDraft == nil {
		return ErrNoDraft
	}
	answer := models.NewAnswer(user.TelegramID, user.DisplayName(), *sess.AnswerDraft, sess.IsAuthorAnswer)
	questionID := sess.QuestionID

	if _, err := f.moderator.AppendAnswer(ctx, questionID, answer); err != nil {
		return err
	}
	sess.Reset()

	log.Ctx(ctx).Info().Int64("user_id", user.TelegramID).Str("question_id", questionID).Bool("author_update", answer.IsAuthorUpdate).Msg("[QA] Answer posted")

	loc := locales.ForLanguage(user.LanguageCode)
	posted := "MsgAnswerPosted"
	if answer.IsAuthorUpdate {
		posted = "MsgAuthorUpdatePosted"
	}
	return f.send(ctx, chatID, locales.Text(loc, posted, nil), tu.ReplyKeyboardRemove())
}
