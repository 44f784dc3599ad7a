// Package moderation implements the admin-gated question lifecycle and keeps
// the channel post of every approved question in sync with its answers.
package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/callbackdata"
	"studyqa-bot/internal/content"
	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/messaging"
	"studyqa-bot/internal/session"
	"studyqa-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/ratelimit"
)

var (
	// ErrNotAdmin is returned when the actor lacks the required admin permission.
	ErrNotAdmin = apperrors.WithMessageID(apperrors.KindUnauthorized, "MsgErrUnauthorized", "admin rights required")
	// ErrChannelNotConfigured is returned when publishing without a channel.
	ErrChannelNotConfigured = apperrors.WithMessageID(apperrors.KindConfigurationMissing, "MsgErrConfigMissing", "channel is not configured")
	// ErrEmptyBroadcast is returned for a broadcast without text.
	ErrEmptyBroadcast = apperrors.WithMessageID(apperrors.KindValidation, "MsgBroadcastUsage", "broadcast text is empty")
)

// AdminChecker is the capability check consulted by every gated operation.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	Can(ctx context.Context, userID int64, perm models.Permission) (bool, error)
}

// Options configures a Service.
type Options struct {
	Channel     telego.ChatID
	HasChannel  bool
	BotUsername string
	// BroadcastDelay is the minimum spacing between two broadcast sends.
	BroadcastDelay time.Duration
	StoreTimeout   time.Duration
	Language       string
	// PostLog, when set, receives an entry for every channel post.
	PostLog database.PostLogRepository
}

// Service runs moderation and publishing.
type Service struct {
	bot       telegoapi.BotAPI
	questions database.QuestionRepository
	users     database.UserRepository
	admins    AdminChecker
	opts      Options
	limiter   ratelimit.Limiter
	// refreshes serializes channel keyboard edits per question.
	refreshes *session.KeyedLocker[primitive.ObjectID]
}

// NewService creates a moderation service.
func NewService(bot telegoapi.BotAPI, questions database.QuestionRepository, users database.UserRepository, admins AdminChecker, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Language == "" {
		opts.Language = "en"
	}

	limiter := ratelimit.NewUnlimited()
	if opts.BroadcastDelay > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(opts.BroadcastDelay), ratelimit.WithoutSlack)
	}

	return &Service{
		bot:       bot,
		questions: questions,
		users:     users,
		admins:    admins,
		opts:      opts,
		limiter:   limiter,
		refreshes: session.NewKeyedLocker[primitive.ObjectID](),
	}
}

func (s *Service) localizer() *i18n.Localizer {
	return locales.NewLocalizer(s.opts.Language)
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *Service) authorize(ctx context.Context, actorID int64, perm models.Permission) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ok, err := s.admins.Can(sctx, actorID, perm)
	if err != nil {
		return apperrors.Transient("admin check failed", err)
	}
	if !ok {
		log.Ctx(ctx).Warn().Int64("user_id", actorID).Str("permission", string(perm)).Msg("[Moderation] Permission denied")
		return ErrNotAdmin
	}
	return nil
}

// ApproveResult is the outcome of an approval. The approval itself is final
// even when publishing failed; PublishErr reports that second step.
type ApproveResult struct {
	Question   *models.Question
	PublishErr error
}

// Published reports whether the question now has a channel post.
func (r *ApproveResult) Published() bool {
	return r.PublishErr == nil && r.Question != nil && r.Question.IsPublished()
}

// Approve moves a pending question to approved, posts it to the channel and
// notifies the asker. Approving a question that is no longer pending fails with
// an InvalidState error and posts nothing.
func (s *Service) Approve(ctx context.Context, questionID string, actorID int64) (*ApproveResult, error) {
	if err := s.authorize(ctx, actorID, models.PermApproveContent); err != nil {
		return nil, err
	}
	id, err := callbackdata.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	q, err := s.questions.TransitionStatus(sctx, id, models.StatusApproved, actorID)
	cancel()
	if err != nil {
		return nil, apperrors.OrTransient("approve question", err)
	}

	logger := log.Ctx(ctx).With().Str("question_id", questionID).Int64("admin_id", actorID).Logger()
	logger.Info().Msg("[Moderation] Question approved")

	result := &ApproveResult{Question: q}
	if err := s.publish(ctx, q, actorID); err != nil {
		result.PublishErr = err
		logger.Error().Err(err).Msg("[Moderation] Failed to publish approved question")
		if !apperrors.Is(err, apperrors.KindConfigurationMissing) {
			sentry.CaptureException(err)
		}
	}

	s.notify(ctx, q.UserID, "MsgQuestionApprovedNotice", map[string]interface{}{
		"Content": messaging.Escape(content.Preview(q.Content, 100)),
	}, nil)
	return result, nil
}

// Decline moves a pending question to declined and notifies the asker.
func (s *Service) Decline(ctx context.Context, questionID string, actorID int64) (*models.Question, error) {
	if err := s.authorize(ctx, actorID, models.PermApproveContent); err != nil {
		return nil, err
	}
	id, err := callbackdata.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	q, err := s.questions.TransitionStatus(sctx, id, models.StatusDeclined, actorID)
	cancel()
	if err != nil {
		return nil, apperrors.OrTransient("decline question", err)
	}
	log.Ctx(ctx).Info().Str("question_id", questionID).Int64("admin_id", actorID).Msg("[Moderation] Question declined")

	s.notify(ctx, q.UserID, "MsgQuestionDeclinedNotice", map[string]interface{}{
		"Content": messaging.Escape(content.Preview(q.Content, 100)),
	}, nil)
	return q, nil
}

func (s *Service) publish(ctx context.Context, q *models.Question, actorID int64) error {
	if !s.opts.HasChannel {
		return ErrChannelNotConfigured
	}

	loc := s.localizer()
	text := ChannelPostText(loc, q)
	sent, err := messaging.SendPayload(ctx, s.bot, s.opts.Channel, q.Payload, text, ChannelKeyboard(loc, s.opts.BotUsername, q))
	if err != nil {
		return apperrors.Wrap(apperrors.KindExternalPublish, "failed to post question to channel", err)
	}
	if sent == nil {
		return apperrors.New(apperrors.KindExternalPublish, "channel post returned no message")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.questions.SetChannelMessageID(sctx, q.ID, sent.MessageID); err != nil {
		return apperrors.OrTransient("record channel message", err)
	}
	q.ChannelMessageID = sent.MessageID
	log.Ctx(ctx).Info().Str("question_id", q.ID.Hex()).Int("message_id", sent.MessageID).Msg("[Moderation] Question posted to channel")
	s.logPost(ctx, q, actorID)
	return nil
}

// logPost is best-effort: the post exists whether or not it is logged.
func (s *Service) logPost(ctx context.Context, q *models.Question, actorID int64) {
	if s.opts.PostLog == nil {
		return
	}
	entry := models.NewPostLog(q, actorID)
	entry.ChannelID = s.opts.Channel.ID
	entry.ChannelUsername = s.opts.Channel.Username

	sctx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.opts.PostLog.LogPost(sctx, entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("question_id", q.ID.Hex()).Msg("[Moderation] Failed to log channel post")
		sentry.CaptureException(err)
	}
}

// RefreshChannelKeyboard re-renders the answer counter of a published question.
// Only the inline keyboard of the existing post is edited.
func (s *Service) RefreshChannelKeyboard(ctx context.Context, questionID string) error {
	id, err := callbackdata.ParseQuestionID(questionID)
	if err != nil {
		return err
	}
	return s.refreshLatest(ctx, id)
}

// refreshLatest edits the keyboard from a read taken under the question's
// lock, so the last edit always carries the newest answer count.
func (s *Service) refreshLatest(ctx context.Context, id primitive.ObjectID) error {
	unlock := s.refreshes.Lock(id)
	defer unlock()

	sctx, cancel := s.storeCtx(ctx)
	q, err := s.questions.GetByID(sctx, id)
	cancel()
	if err != nil {
		return apperrors.OrTransient("load question", err)
	}
	return s.refresh(ctx, q)
}

func (s *Service) refresh(ctx context.Context, q *models.Question) error {
	if !s.opts.HasChannel {
		log.Ctx(ctx).Warn().Str("question_id", q.ID.Hex()).Msg("[Moderation] Channel not configured, skipping keyboard refresh")
		return nil
	}
	if !q.IsPublished() {
		log.Ctx(ctx).Warn().Str("question_id", q.ID.Hex()).Msg("[Moderation] Question has no channel post, skipping keyboard refresh")
		return nil
	}

	params := &telego.EditMessageReplyMarkupParams{
		ChatID:      s.opts.Channel,
		MessageID:   q.ChannelMessageID,
		ReplyMarkup: ChannelKeyboard(s.localizer(), s.opts.BotUsername, q),
	}
	err := messaging.WithRetry(ctx, "editMessageReplyMarkup", func() error {
		_, err := s.bot.EditMessageReplyMarkup(ctx, params)
		return err
	})
	if err != nil && !messaging.IsNotModified(err) {
		return apperrors.Wrap(apperrors.KindExternalPublish, "failed to refresh channel keyboard", err)
	}
	return nil
}

// AppendAnswer stores answer on an approved question, then refreshes the
// channel counter and tells the asker. Both follow-ups are best-effort.
func (s *Service) AppendAnswer(ctx context.Context, questionID string, answer models.Answer) (*models.Question, error) {
	id, err := callbackdata.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	q, err := s.questions.AppendAnswer(sctx, id, answer)
	cancel()
	if err != nil {
		return nil, apperrors.OrTransient("append answer", err)
	}
	logger := log.Ctx(ctx).With().Str("question_id", questionID).Int64("user_id", answer.AuthorID).Logger()
	logger.Info().Int("answers", q.AnswerCount()).Bool("author_update", answer.IsAuthorUpdate).Msg("[Moderation] Answer appended")

	if s.opts.HasChannel && q.IsPublished() {
		err = s.refreshLatest(ctx, q.ID)
	} else {
		err = s.refresh(ctx, q)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("[Moderation] Channel keyboard refresh failed")
	}

	if !answer.IsAuthorUpdate && !q.IsAuthor(answer.AuthorID) {
		markup := tu.InlineKeyboard(tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.Text(s.localizer(), "BtnViewAnswers", map[string]interface{}{"Count": q.AnswerCount()})).
				WithCallbackData(callbackdata.View(questionID)),
		))
		s.notify(ctx, q.UserID, "MsgNewAnswerNotice", map[string]interface{}{
			"Question": messaging.Escape(content.Preview(q.Content, 100)),
			"Name":     messaging.Escape(answer.AuthorName),
		}, markup)
	}
	return q, nil
}

// RecordReaction increments one counter of answers[index].
func (s *Service) RecordReaction(ctx context.Context, questionID string, index int, kind models.ReactionKind) (*models.Question, error) {
	id, err := callbackdata.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, database.ErrAnswerIndexOutOfRange
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	q, err := s.questions.IncrementReaction(sctx, id, index, kind)
	if err != nil {
		return nil, apperrors.OrTransient("record reaction", err)
	}
	log.Ctx(ctx).Debug().Str("question_id", questionID).Int("answer_index", index).Str("kind", string(kind)).Msg("[Moderation] Reaction recorded")
	return q, nil
}

// AppendReply attaches reply to answers[index] and tells the answer's author.
func (s *Service) AppendReply(ctx context.Context, questionID string, index int, reply models.Reply) (*models.Question, error) {
	id, err := callbackdata.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, database.ErrAnswerIndexOutOfRange
	}

	sctx, cancel := s.storeCtx(ctx)
	q, err := s.questions.AppendReply(sctx, id, index, reply)
	cancel()
	if err != nil {
		return nil, apperrors.OrTransient("append reply", err)
	}
	log.Ctx(ctx).Info().Str("question_id", questionID).Int("answer_index", index).Int64("user_id", reply.AuthorID).Msg("[Moderation] Reply appended")

	if q.HasAnswer(index) {
		if author := q.Answers[index].AuthorID; author != reply.AuthorID {
			s.notify(ctx, author, "MsgNewReplyNotice", map[string]interface{}{
				"Name":  messaging.Escape(reply.AuthorName),
				"Reply": messaging.Escape(content.Preview(reply.Content, 200)),
			}, nil)
		}
	}
	return q, nil
}

// SendReviewCard sends q to chatID with approve and decline buttons.
func (s *Service) SendReviewCard(ctx context.Context, chatID int64, q *models.Question) error {
	loc := s.localizer()
	id := q.ID.Hex()
	text := locales.Text(loc, "MsgReviewCard", map[string]interface{}{
		"Name":    messaging.Escape(q.UserName),
		"UserID":  q.UserID,
		"Grade":   q.GradeLevel.Label(),
		"Content": messaging.Escape(q.Content),
		"ID":      id,
	})
	markup := tu.InlineKeyboard(tu.InlineKeyboardRow(
		tu.InlineKeyboardButton(locales.Text(loc, "BtnApprove", nil)).WithCallbackData(callbackdata.Approve(id)),
		tu.InlineKeyboardButton(locales.Text(loc, "BtnDecline", nil)).WithCallbackData(callbackdata.Decline(id)),
	))
	if _, err := messaging.SendPayload(ctx, s.bot, tu.ID(chatID), q.Payload, text, markup); err != nil {
		return apperrors.Transient("send review card", err)
	}
	return nil
}

// NotifyAdmins sends the review card of a new question to every admin allowed
// to approve it. Failures are logged per admin.
func (s *Service) NotifyAdmins(ctx context.Context, q *models.Question) {
	sctx, cancel := s.storeCtx(ctx)
	admins, err := s.users.ListAdmins(sctx)
	cancel()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("[Moderation] Failed to list admins for review notification")
		return
	}

	for _, admin := range admins {
		if admin.IsBanned || !admin.HasPermission(models.PermApproveContent) {
			continue
		}
		if err := s.SendReviewCard(ctx, admin.TelegramID, q); err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("admin_id", admin.TelegramID).Msg("[Moderation] Failed to notify admin")
		}
	}
}

// BroadcastReport summarises one broadcast run.
type BroadcastReport struct {
	RunID    string
	Total    int
	Sent     int
	Failed   int
	Duration time.Duration
}

// Broadcast sends text to every user that is not banned. Sends are spaced by
// BroadcastDelay; one failed recipient never stops the run.
func (s *Service) Broadcast(ctx context.Context, text string, actorID int64) (*BroadcastReport, error) {
	if err := s.authorize(ctx, actorID, models.PermSendBroadcast); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyBroadcast
	}

	sctx, cancel := s.storeCtx(ctx)
	ids, err := s.users.ListRecipientIDs(sctx)
	cancel()
	if err != nil {
		return nil, apperrors.OrTransient("list broadcast recipients", err)
	}

	report := &BroadcastReport{RunID: uuid.NewString(), Total: len(ids)}
	logger := log.Ctx(ctx).With().Str("broadcast_id", report.RunID).Int64("admin_id", actorID).Logger()
	logger.Info().Int("recipients", report.Total).Msg("[Broadcast] Started")

	start := time.Now()
	body := messaging.Escape(text)
	for i, id := range ids {
		if ctx.Err() != nil {
			report.Failed += len(ids) - i
			logger.Warn().Err(ctx.Err()).Msg("[Broadcast] Stopped early")
			break
		}
		s.limiter.Take()

		sendCtx, cancel := s.storeCtx(ctx)
		_, err := messaging.SendText(sendCtx, s.bot, tu.ID(id), body, nil)
		cancel()
		if err != nil {
			report.Failed++
			logger.Debug().Err(err).Int64("user_id", id).Msg("[Broadcast] Send failed")
			continue
		}
		report.Sent++
	}
	report.Duration = time.Since(start)

	logger.Info().Int("sent", report.Sent).Int("failed", report.Failed).Dur("took", report.Duration).Msg("[Broadcast] Finished")
	return report, nil
}

func (s *Service) notify(ctx context.Context, chatID int64, msgID string, data map[string]interface{}, markup telego.ReplyMarkup) {
	if chatID == 0 {
		return
	}
	text := locales.Text(s.localizer(), msgID, data)
	if _, err := messaging.SendText(ctx, s.bot, tu.ID(chatID), text, markup); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("chat_id", chatID).Str("notice", msgID).Msg("[Moderation] Best-effort notification failed")
	}
}

// ChannelPostText renders the body of a channel post.
func ChannelPostText(loc *i18n.Localizer, q *models.Question) string {
	return locales.Text(loc, "MsgChannelPost", map[string]interface{}{
		"Content": messaging.Escape(q.Content),
		"Grade":   q.GradeLevel.Label(),
	})
}

// ChannelKeyboard renders the deep-link keyboard under a channel post. The
// view button carries the current answer count.
func ChannelKeyboard(loc *i18n.Localizer, botUsername string, q *models.Question) *telego.InlineKeyboardMarkup {
	id := q.ID.Hex()
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.Text(loc, "BtnAnswerQuestion", nil)).
				WithURL(callbackdata.DeepLink(botUsername, callbackdata.Answer(id))),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.Text(loc, "BtnViewAnswers", map[string]interface{}{"Count": q.AnswerCount()})).
				WithURL(callbackdata.DeepLink(botUsername, callbackdata.View(id))),
		),
	)
}

func (r *BroadcastReport) String() string {
	return fmt.Sprintf("broadcast %s: %d/%d sent, %d failed", r.RunID, r.Sent, r.Total, r.Failed)
}
