package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	telegoBot "studyqa-bot/bot"
	"studyqa-bot/config"
	"studyqa-bot/internal/auth"
	"studyqa-bot/internal/database"
	"studyqa-bot/internal/handlers"
	"studyqa-bot/internal/health"
	"studyqa-bot/internal/locales"
	"studyqa-bot/internal/logger"
	"studyqa-bot/internal/moderation"
	"studyqa-bot/internal/onboarding"
	"studyqa-bot/internal/qa"
	"studyqa-bot/internal/scheduler"
	"studyqa-bot/internal/session"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const serviceName = "studyqa-bot"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	logger.Init(serviceName, level, cfg.AppEnv == "production")

	// Initialize localization bundle
	locales.Init(cfg.DefaultLanguage)

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("sentry.Init failed")
	}
	defer sentry.Flush(2 * time.Second)

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	client, db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error disconnecting from MongoDB")
			sentry.CaptureException(err)
		} else {
			log.Info().Msg("Disconnected from MongoDB.")
		}
	}()
	if err := database.EnsureIndexes(ctx, db); err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to create indexes")
	}

	// Create repository instances
	userRepo := database.NewMongoUserRepository(db)
	questionRepo := database.NewMongoQuestionRepository(db)
	postLogRepo := database.NewMongoPostLogRepository(db)

	adminChecker, err := auth.NewAdminChecker(userRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin checker")
	}
	if err := adminChecker.SeedAdmins(ctx, cfg.AdminIDs); err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to seed admins")
	}

	// Session store
	var sessions session.Store
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			sentry.CaptureException(err)
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
	default:
		memory := session.NewMemoryStore()
		// SESSION_TTL=0 keeps sessions forever, as with Redis.
		if cfg.SessionTTL > 0 {
			sweeper := scheduler.New(memory, cfg.SessionTTL, 0)
			if err := sweeper.Start(); err != nil {
				log.Fatal().Err(err).Msg("Failed to start scheduler")
			}
			defer sweeper.Stop()
		}
		sessions = memory
	}
	log.Info().Str("backend", cfg.SessionBackend).Msg("Session store ready")

	// --- Bot Initialization ---
	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, true))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to create telego bot")
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to get bot info")
	}
	log.Info().Str("username", me.Username).Msg("Authorized on Telegram")

	channel, hasChannel := cfg.ChannelChatID()

	moderator := moderation.NewService(bot, questionRepo, userRepo, adminChecker, moderation.Options{
		Channel:        channel,
		HasChannel:     hasChannel,
		BotUsername:    me.Username,
		BroadcastDelay: cfg.BroadcastDelay,
		StoreTimeout:   cfg.StoreTimeout,
		Language:       cfg.DefaultLanguage,
		PostLog:        postLogRepo,
	})
	flow := qa.NewFlow(bot, questionRepo, moderator, cfg.StoreTimeout)
	gate := onboarding.NewService(bot, userRepo, adminChecker, flow, onboarding.Options{
		Channel:      channel,
		HasChannel:   hasChannel,
		JoinLink:     cfg.JoinLink(),
		StoreTimeout: cfg.StoreTimeout,
	})

	messageHandler, err := handlers.NewMessageHandler(handlers.Deps{
		Bot:          bot,
		Users:        userRepo,
		Questions:    questionRepo,
		Admins:       adminChecker,
		Moderator:    moderator,
		Flow:         flow,
		Onboarding:   gate,
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create message handler")
	}
	if err := messageHandler.SetupCommands(ctx); err != nil {
		// Not fatal: the bot works without the command menu.
		log.Error().Err(err).Msg("Failed to register bot commands")
		sentry.CaptureException(err)
	}

	// Health endpoint
	healthServer := health.NewServer(cfg.HTTPAddr, health.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}), cfg.Debug)
	healthServer.Start()

	updates, err := bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to start long polling")
	}

	appBot, err := telegoBot.New(telegoBot.BotDeps{
		Bot:           bot,
		Updates:       updates,
		Users:         userRepo,
		Sessions:      sessions,
		Gate:          gate,
		Dispatcher:    messageHandler,
		UpdateTimeout: cfg.UpdateTimeout,
		StoreTimeout:  cfg.StoreTimeout,
		Debug:         cfg.Debug,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Start blocks until the context is cancelled (SIGINT, SIGTERM) and every
	// in-flight update has finished.
	appBot.Start(ctx)

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := messageHandler.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Background jobs did not finish")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health server shutdown failed")
	}
	log.Info().Msg("Bot shutdown complete.")
}
