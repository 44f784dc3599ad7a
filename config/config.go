package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config holds the application configuration.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	Debug    bool   `env:"DEBUG" envDefault:"false"`
	Version  string `env:"VERSION" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	BotToken    string  `env:"TELEGRAM_BOT_TOKEN"`
	ChannelID   string  `env:"TELEGRAM_CHANNEL_ID"`
	ChannelLink string  `env:"TELEGRAM_CHANNEL_LINK"`
	AdminIDs    []int64 `env:"ADMIN_IDS" envSeparator:","`

	SentryDSN string `env:"SENTRY_DSN"`

	MongoDBURI      string `env:"MONGODB_URI"`
	MongoDBDatabase string `env:"MONGODB_DATABASE" envDefault:"studyqa"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"memory"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	BroadcastDelay  time.Duration `env:"BROADCAST_DELAY" envDefault:"100ms"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	UpdateTimeout   time.Duration `env:"UPDATE_TIMEOUT" envDefault:"30s"`
	DefaultLanguage string        `env:"DEFAULT_LANGUAGE" envDefault:"en"`
}

// LoadConfig loads configuration from environment variables.
// A .env file is read first if present; variables already set in the
// environment (e.g. by Docker) take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and cross-field constraints.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.MongoDBURI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	switch c.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.StoreTimeout <= 0 || c.UpdateTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT and UPDATE_TIMEOUT must be positive")
	}
	if c.BroadcastDelay < 0 {
		return fmt.Errorf("BROADCAST_DELAY cannot be negative")
	}

	if c.ChannelID == "" {
		log.Warn().Msg("TELEGRAM_CHANNEL_ID is not set. Publishing and the subscription check are disabled.")
	}
	if c.SentryDSN == "" {
		log.Warn().Msg("SENTRY_DSN is not set. Error tracking disabled.")
	}
	return nil
}

// ChannelChatID returns the configured channel as a chat id. Numeric values
// are used as ids, anything else as a @username.
func (c *Config) ChannelChatID() (telego.ChatID, bool) {
	raw := strings.TrimSpace(c.ChannelID)
	if raw == "" {
		return telego.ChatID{}, false
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return tu.ID(id), true
	}
	return tu.Username("@" + strings.TrimPrefix(raw, "@")), true
}

// JoinLink returns the public link users follow to subscribe to the channel.
func (c *Config) JoinLink() string {
	if c.ChannelLink != "" {
		return c.ChannelLink
	}
	raw := strings.TrimPrefix(strings.TrimSpace(c.ChannelID), "@")
	if raw == "" {
		return ""
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ""
	}
	return "https://t.me/" + raw
}
