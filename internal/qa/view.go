package qa

import (
	"context"
	"strings"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/session"

	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// ShowAnswers sends an approved question followed by one message per answer,
// author updates first.
func (f *Flow) ShowAnswers(ctx context.Context, chatID int64, user *models.User, sess *session.Session, questionID string) error {
	q, err := f.loadQuestion(ctx, questionID)
	if err != nil {
		return f.Fail(ctx, chatID, user, sess, err)
	}
	if q.Status != models.StatusApproved {
		return f.Fail(ctx, chatID, user, sess, database.ErrQuestionNotApproved)
	}

	loc := locales.ForLanguage(user.LanguageCode)
	qid := q.ID.Hex()
	header := locales.Text(loc, "MsgQuestionHeader", map[string]interface{}{
		"Content": messaging.Escape(q.Content),
		"Grade":   q.GradeLevel.Label(),
		"Count":   q.AnswerCount(),
	})

	if q.AnswerCount() == 0 {
		if _, err := messaging.SendPayload(ctx, f.bot, tu.ID(chatID), q.Payload, header, nil); err != nil {
			return apperrors.Transient("send question", err)
		}
		return f.send(ctx, chatID, locales.Text(loc, "MsgNoAnswersYet", nil), addAnswerKeyboard(loc, qid))
	}

	if _, err := messaging.SendPayload(ctx, f.bot, tu.ID(chatID), q.Payload, header, nil); err != nil {
		return apperrors.Transient("send question", err)
	}
	for _, idx := range q.AnswerOrder() {
		a := q.Answers[idx]
		text := answerText(loc, a)
		if _, err := messaging.SendPayload(ctx, f.bot, tu.ID(chatID), a.Payload, text, answerButtonsKeyboard(loc, qid, idx, a)); err != nil {
			return apperrors.Transient("send answer", err)
		}
	}
	return f.send(ctx, chatID, locales.Text(loc, "MsgAnswersFooter", nil), addAnswerKeyboard(loc, qid))
}

func answerText(loc *i18n.Localizer, a models.Answer) string {
	entry := "MsgAnswerEntry"
	if a.IsAuthorUpdate {
		entry = "MsgAuthorUpdateEntry"
	}

	var b strings.Builder
	b.WriteString(locales.Text(loc, entry, map[string]interface{}{
		"Name":    messaging.Escape(a.AuthorName),
		"Content": messaging.Escape(a.Content),
		"Right":   a.Reactions.Right,
		"Wrong":   a.Reactions.Wrong,
	}))
	for _, r := range a.Replies {
		b.WriteString("\n")
		b.WriteString(locales.Text(loc, "MsgReplyEntry", map[string]interface{}{
			"Name":    messaging.Escape(r.AuthorName),
			"Content": messaging.Escape(r.Content),
		}))
	}
	return b.String()
}
