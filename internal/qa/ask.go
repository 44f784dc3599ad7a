package qa

import (
	"context"
	"strings"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/callbackdata"
	"studyqa-bot/internal/content"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/session"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

// MyQuestionsLimit is how many questions "My Questions" lists.
const MyQuestionsLimit = 10

// ErrNoDraft is returned when a grade arrives without a question draft.
var ErrNoDraft = apperrors.WithMessageID(apperrors.KindInvalidState, "MsgErrNoDraft", "no question draft in session")

// StartAsk begins the ask flow.
func (f *Flow) StartAsk(ctx context.Context, chatID int64, user *models.User, sess *session.Session) error {
	if user.IsBanned {
		return f.Fail(ctx, chatID, user, sess, ErrBanned)
	}
	sess.BeginQuestion()

	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, chatID, locales.Text(loc, "MsgAskPrompt", map[string]interface{}{
		"Min": content.MinQuestionLength,
	}), cancelQuestionKeyboard(loc))
}

func (f *Flow) questionInput(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session) error {
	payload, err := content.FromMessage(msg).Payload(content.MinQuestionLength)
	if err != nil {
		return f.Reject(ctx, msg.Chat.ID, user, err)
	}
	sess.AwaitGrade(payload)

	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, msg.Chat.ID, locales.Text(loc, "MsgChooseGrade", nil), gradeKeyboard(loc))
}

// SelectGrade persists the drafted question as pending and hands it to the
// admins for review.
func (f *Flow) SelectGrade(ctx context.Context, chatID int64, user *models.User, sess *session.Session, grade models.GradeLevel) error {
	if sess.State != session.StateAwaitingGrade || sess.QuestionDraft == nil {
		return f.Fail(ctx, chatID, user, sess, ErrNoDraft)
	}

	q := models.NewQuestion(user.TelegramID, user.DisplayName(), *sess.QuestionDraft, grade)
	sctx, cancel := context.WithTimeout(ctx, f.storeTimeout)
	err := f.questions.Create(sctx, q)
	cancel()
	if err != nil {
		return f.Fail(ctx, chatID, user, sess, apperrors.OrTransient("create question", err))
	}
	sess.Reset()

	log.Ctx(ctx).Info().Int64("user_id", user.TelegramID).Str("question_id", q.ID.Hex()).Str("grade", string(grade)).Msg("[QA] Question submitted")

	loc := locales.ForLanguage(user.LanguageCode)
	if err := f.send(ctx, chatID, locales.Text(loc, "MsgQuestionSubmitted", map[string]interface{}{
		"Grade": grade.Label(),
	}), nil); err != nil {
		return err
	}

	f.moderator.NotifyAdmins(ctx, q)
	return nil
}

// CancelQuestion drops the question draft.
func (f *Flow) CancelQuestion(ctx context.Context, chatID int64, user *models.User, sess *session.Session) error {
	sess.Reset()
	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, chatID, locales.Text(loc, "MsgQuestionCancelled", nil), mainMenuKeyboard(loc))
}

// MyQuestions lists the user's latest questions.
func (f *Flow) MyQuestions(ctx context.Context, chatID int64, user *models.User, sess *session.Session) error {
	sctx, cancel := context.WithTimeout(ctx, f.storeTimeout)
	questions, err := f.questions.ListByUser(sctx, user.TelegramID, MyQuestionsLimit)
	cancel()
	if err != nil {
		return f.Fail(ctx, chatID, user, sess, apperrors.OrTransient("list user questions", err))
	}

	loc := locales.ForLanguage(user.LanguageCode)
	if len(questions) == 0 {
		return f.send(ctx, chatID, locales.Text(loc, "MsgNoQuestions", nil), askMenuKeyboard(loc))
	}

	var b strings.Builder
	b.WriteString(locales.Text(loc, "MsgMyQuestionsHeader", nil))
	var viewRow []telego.InlineKeyboardButton
	for i, q := range questions {
		b.WriteString("\n\n")
		b.WriteString(locales.Text(loc, "MsgMyQuestionsItem", map[string]interface{}{
			"N":       i + 1,
			"Icon":    statusIcon(q.Status),
			"Status":  string(q.Status),
			"Grade":   q.GradeLevel.Label(),
			"Preview": messaging.Escape(content.Preview(q.Content, 60)),
			"Answers": q.AnswerCount(),
		}))
		if q.Status == models.StatusApproved {
			viewRow = append(viewRow, tu.InlineKeyboardButton(viewButtonLabel(i+1)).WithCallbackData(callbackdata.View(q.ID.Hex())))
		}
	}

	rows := make([][]telego.InlineKeyboardButton, 0, 3)
	for len(viewRow) > 0 {
		n := min(len(viewRow), 5)
		rows = append(rows, viewRow[:n])
		viewRow = viewRow[n:]
	}
	rows = append(rows, tu.InlineKeyboardRow(button(loc, "BtnBack", string(callbackdata.ActionBackToMain))))
	return f.send(ctx, chatID, b.String(), tu.InlineKeyboard(rows...))
}
