// Package qa is the conversation state machine: asking, answering, replying,
// reacting and browsing questions.
package qa

import (
	"context"
	"time"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/callbackdata"
	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/session"
	"studyqa-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrBanned is returned when a banned user tries to contribute.
var ErrBanned = apperrors.WithMessageID(apperrors.KindUnauthorized, "MsgErrBanned", "user is banned")

// Moderator is the part of the moderation service the flows call into.
type Moderator interface {
	AppendAnswer(ctx context.Context, questionID string, answer models.Answer) (*models.Question, error)
	RecordReaction(ctx context.Context, questionID string, index int, kind models.ReactionKind) (*models.Question, error)
	AppendReply(ctx context.Context, questionID string, index int, reply models.Reply) (*models.Question, error)
	NotifyAdmins(ctx context.Context, q *models.Question)
}

// Flow runs the Q&A conversation for one update at a time. The session passed
// to each method belongs to the sender and is saved by the caller.
type Flow struct {
	bot          telegoapi.BotAPI
	questions    database.QuestionRepository
	moderator    Moderator
	storeTimeout time.Duration
}

// NewFlow creates a Flow.
func NewFlow(bot telegoapi.BotAPI, questions database.QuestionRepository, moderator Moderator, storeTimeout time.Duration) *Flow {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Flow{bot: bot, questions: questions, moderator: moderator, storeTimeout: storeTimeout}
}

func (f *Flow) loadQuestion(ctx context.Context, questionID string) (*models.Question, error) {
	id, err := callbackdata.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	return f.loadByID(ctx, id)
}

func (f *Flow) loadByID(ctx context.Context, id primitive.ObjectID) (*models.Question, error) {
	sctx, cancel := context.WithTimeout(ctx, f.storeTimeout)
	defer cancel()

	q, err := f.questions.GetByID(sctx, id)
	if err != nil {
		return nil, apperrors.OrTransient("load question", err)
	}
	return q, nil
}

func (f *Flow) send(ctx context.Context, chatID int64, text string, markup telego.ReplyMarkup) error {
	if _, err := messaging.SendText(ctx, f.bot, tu.ID(chatID), text, markup); err != nil {
		return apperrors.Transient("send message", err)
	}
	return nil
}

// Fail resets the conversation and tells the user what went wrong in plain
// words. Unknown failures are reported to Sentry; the raw error never reaches
// the chat.
func (f *Flow) Fail(ctx context.Context, chatID int64, user *models.User, sess *session.Session, cause error) error {
	sess.Reset()

	logger := log.Ctx(ctx).With().Int64("user_id", user.TelegramID).Str("kind", string(apperrors.KindOf(cause))).Logger()
	switch apperrors.KindOf(cause) {
	case apperrors.KindUnknown, apperrors.KindExternalTransient:
		logger.Error().Err(cause).Msg("[QA] Flow failed")
		sentry.CaptureException(cause)
	default:
		logger.Info().Err(cause).Msg("[QA] Flow rejected")
	}

	loc := locales.ForLanguage(user.LanguageCode)
	params := tu.Message(tu.ID(chatID), locales.Text(loc, apperrors.UserMessageID(cause), nil)).
		WithParseMode(telego.ModeHTML).
		WithReplyMarkup(tu.ReplyKeyboardRemove())
	if _, err := f.bot.SendMessage(ctx, params); err != nil {
		return apperrors.Transient("send failure notice", err)
	}
	return nil
}

// Reject tells the user why the input was refused without leaving the
// current step.
func (f *Flow) Reject(ctx context.Context, chatID int64, user *models.User, cause error) error {
	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, chatID, locales.Text(loc, apperrors.UserMessageID(cause), nil), nil)
}

// ShowMainMenu sends the main menu.
func (f *Flow) ShowMainMenu(ctx context.Context, chatID int64, user *models.User) error {
	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, chatID, locales.Text(loc, "MsgMainMenu", map[string]interface{}{
		"Name": messaging.Escape(user.DisplayName()),
	}), mainMenuKeyboard(loc))
}

// ShowAskMenu sends the ask submenu.
func (f *Flow) ShowAskMenu(ctx context.Context, chatID int64, user *models.User) error {
	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, chatID, locales.Text(loc, "MsgAskMenu", nil), askMenuKeyboard(loc))
}

// ShowHelp sends the user guide.
func (f *Flow) ShowHelp(ctx context.Context, chatID int64, user *models.User) error {
	loc := locales.ForLanguage(user.LanguageCode)
	return f.send(ctx, chatID, locales.Text(loc, "MsgHelpUser", nil), backKeyboard(loc))
}

// ResumeDeepLink acts on a deep link captured by /start.
func (f *Flow) ResumeDeepLink(ctx context.Context, chatID int64, user *models.User, sess *session.Session, link *session.DeepLink) error {
	log.Ctx(ctx).Info().Int64("user_id", user.TelegramID).Str("action", string(link.Action)).Str("question_id", link.QuestionID).Msg("[QA] Resuming deep link")

	switch link.Action {
	case session.DeepLinkAnswer:
		return f.StartAnswer(ctx, chatID, user, sess, link.QuestionID)
	case session.DeepLinkView:
		return f.ShowAnswers(ctx, chatID, user, sess, link.QuestionID)
	default:
		return f.ShowMainMenu(ctx, chatID, user)
	}
}

// HandleMessage feeds a non-command message into the current step. It reports
// false when no flow is waiting for input.
func (f *Flow) HandleMessage(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session) (bool, error) {
	var err error
	switch sess.State {
	case session.StateAwaitingQuestion:
		err = f.questionInput(ctx, msg, user, sess)
	case session.StateAwaitingGrade:
		loc := locales.ForLanguage(user.LanguageCode)
		err = f.send(ctx, msg.Chat.ID, locales.Text(loc, "MsgChooseGrade", nil), gradeKeyboard(loc))
	case session.StateAwaitingAnswer:
		err = f.answerInput(ctx, msg, user, sess)
	case session.StateAwaitingReply:
		err = f.replyInput(ctx, msg, user, sess)
	default:
		return false, nil
	}
	if err != nil {
		return true, f.Fail(ctx, msg.Chat.ID, user, sess, err)
	}
	return true, nil
}
