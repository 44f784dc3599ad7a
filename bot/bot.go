package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"studyqa-bot/internal/apperrors"
	dbi "studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/mediagroups"
	"studyqa-bot/internal/onboarding"
	"studyqa-bot/internal/session"
	telegoapi "studyqa-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
)

// DefaultUpdatesPerSecond caps how many updates are processed per second.
const DefaultUpdatesPerSecond = 20

// Gate decides whether an update may reach a conversation flow.
type Gate interface {
	Allow(ctx context.Context, req onboarding.Request, user *models.User) (bool, error)
}

// Dispatcher handles updates that passed the gate.
type Dispatcher interface {
	HandleMessage(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session) error
	HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery, user *models.User, sess *session.Session) error
}

// Bot runs the update loop. Updates from the same user are processed one at a
// time; different users are processed concurrently.
type Bot struct {
	bot        telegoapi.BotAPI
	updates    <-chan telego.Update
	users      dbi.UserRepository
	sessions   session.Store
	locker     *session.KeyedLocker[int64]
	gate       Gate
	dispatcher Dispatcher
	albums     *mediagroups.Manager
	limiter    ratelimit.Limiter

	updateTimeout time.Duration
	storeTimeout  time.Duration
	debug         bool

	wg sync.WaitGroup
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	Bot        telegoapi.BotAPI
	Updates    <-chan telego.Update
	Users      dbi.UserRepository
	Sessions   session.Store
	Gate       Gate
	Dispatcher Dispatcher

	UpdateTimeout    time.Duration
	StoreTimeout     time.Duration
	UpdatesPerSecond int
	AlbumDelay       time.Duration
	Debug            bool
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	switch {
	case deps.Bot == nil:
		return nil, fmt.Errorf("telego bot (BotAPI) instance cannot be nil")
	case deps.Updates == nil:
		return nil, fmt.Errorf("updates channel cannot be nil")
	case deps.Users == nil:
		return nil, fmt.Errorf("user repository cannot be nil")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session store cannot be nil")
	case deps.Gate == nil:
		return nil, fmt.Errorf("onboarding gate cannot be nil")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if deps.UpdateTimeout <= 0 {
		deps.UpdateTimeout = 30 * time.Second
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}
	if deps.UpdatesPerSecond <= 0 {
		deps.UpdatesPerSecond = DefaultUpdatesPerSecond
	}

	b := &Bot{
		bot:           deps.Bot,
		updates:       deps.Updates,
		users:         deps.Users,
		sessions:      deps.Sessions,
		locker:        session.NewKeyedLocker[int64](),
		gate:          deps.Gate,
		dispatcher:    deps.Dispatcher,
		limiter:       ratelimit.New(deps.UpdatesPerSecond),
		updateTimeout: deps.UpdateTimeout,
		storeTimeout:  deps.StoreTimeout,
		debug:         deps.Debug,
	}
	b.albums = mediagroups.NewManager(context.Background(), b.handleAlbum, deps.AlbumDelay, mediagroups.DefaultMaxGroupSize)
	return b, nil
}

// Start processes updates until ctx is cancelled or the updates channel is
// closed, then waits for in-flight updates.
func (b *Bot) Start(ctx context.Context) {
	log.Info().Msg("[Bot] Listening for updates...")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[Bot] Context done, stopping update processing...")
			b.drain()
			return
		case update, ok := <-b.updates:
			if !ok {
				log.Info().Msg("[Bot] Updates channel closed")
				b.drain()
				return
			}
			b.wg.Add(1)
			go func(up telego.Update) {
				defer b.wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}

func (b *Bot) drain() {
	b.albums.Shutdown()
	b.wg.Wait()
	log.Info().Msg("[Bot] All update processing finished")
}

// processUpdate routes one update. Panics are recovered and reported.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.limiter.Take()

	logger := log.With().
		Int("update_id", update.UpdateID).
		Str("correlation_id", uuid.NewString()).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("[Bot] PANIC recovered in processUpdate")
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.updateTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		msg := *update.Message
		if msg.From == nil || msg.Chat.Type != telego.ChatTypePrivate {
			if b.debug {
				logger.Debug().Int64("chat_id", msg.Chat.ID).Msg("[Bot] Ignoring non-private message")
			}
			return
		}
		if b.albums.Add(msg) {
			return
		}
		b.handleMessage(ctx, msg)

	case update.CallbackQuery != nil:
		b.handleCallback(ctx, *update.CallbackQuery)

	default:
		if b.debug {
			logger.Debug().Msg("[Bot] Ignoring unhandled update type")
		}
	}
}

// handleAlbum treats a completed album as its lead message.
func (b *Bot) handleAlbum(ctx context.Context, groupID string, messages []telego.Message) error {
	if len(messages) == 0 {
		return nil
	}
	lead := mediagroups.Lead(messages)

	logger := log.With().Str("group_id", groupID).Str("correlation_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, b.updateTimeout)
	defer cancel()

	if len(messages) > 1 {
		logger.Info().Int("parts", len(messages)).Int("lead_id", lead.MessageID).Msg("[Bot] Album collapsed to its lead part")
	}
	b.handleMessage(ctx, lead)
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg telego.Message) {
	req := messageRequest(msg)
	b.withConversation(ctx, msg.From, req, func(user *models.User, sess *session.Session) error {
		return b.dispatcher.HandleMessage(ctx, msg, user, sess)
	})
}

func (b *Bot) handleCallback(ctx context.Context, query telego.CallbackQuery) {
	req := callbackRequest(query)
	dispatched := b.withConversation(ctx, &query.From, req, func(user *models.User, sess *session.Session) error {
		return b.dispatcher.HandleCallbackQuery(ctx, query, user, sess)
	})
	if !dispatched {
		// Stop the button spinner; the gate has already prompted the user.
		if err := b.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID}); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("callback_id", query.ID).Msg("[Bot] Failed to answer blocked callback")
		}
	}
}

// withConversation serializes work for one user: it refreshes the user record,
// loads the session, applies the gate, runs fn and saves the session. It
// reports whether fn ran.
func (b *Bot) withConversation(ctx context.Context, from *telego.User, req onboarding.Request, fn func(*models.User, *session.Session) error) bool {
	logger := log.Ctx(ctx).With().Int64("user_id", from.ID).Logger()
	ctx = logger.WithContext(ctx)

	unlock := b.locker.Lock(from.ID)
	defer unlock()

	sctx, cancel := context.WithTimeout(ctx, b.storeTimeout)
	user, err := b.users.Upsert(sctx, profileOf(from))
	cancel()
	if err != nil {
		b.report(ctx, "refresh user", err)
		return false
	}

	sctx, cancel = context.WithTimeout(ctx, b.storeTimeout)
	sess, err := b.sessions.Load(sctx, from.ID)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("[Bot] Failed to load session, starting fresh")
		sess = session.New()
	}

	allowed, err := b.gate.Allow(ctx, req, user)
	if err != nil {
		b.report(ctx, "onboarding gate", err)
	}
	if !allowed {
		return false
	}

	if err := fn(user, sess); err != nil {
		b.report(ctx, "handle update", err)
	}

	sctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), b.storeTimeout)
	defer cancel()
	if err := b.sessions.Save(sctx, from.ID, sess); err != nil {
		b.report(ctx, "save session", err)
	}
	return true
}

// report logs an error that escaped the handlers. Those are failures to talk
// to Telegram or the stores, so they also go to Sentry.
func (b *Bot) report(ctx context.Context, op string, err error) {
	log.Ctx(ctx).Error().Err(err).Str("kind", string(apperrors.KindOf(err))).Msgf("[Bot] Failed to %s", op)
	sentry.CaptureException(fmt.Errorf("%s: %w", op, err))
}
