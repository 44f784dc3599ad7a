// Package messaging sends text and media payloads through the Bot API with
// HTML formatting and retry on flood limits.
package messaging

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"studyqa-bot/internal/database/models"
	"studyqa-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

const (
	// MaxRetries is how many times a send is attempted when Telegram answers 429.
	MaxRetries       = 3
	defaultRetryWait = 2 * time.Second
	// captionLimit keeps media captions under Telegram's 1024 character cap.
	captionLimit = 900
)

var retryAfterPattern = regexp.MustCompile(`(?i)retry after:?\s*(\d+)`)

// Escape makes user content safe for ModeHTML.
func Escape(s string) string {
	return html.EscapeString(s)
}

// IsRateLimited reports whether err is a 429 from the Bot API.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "429")
}

// IsNotModified reports whether an edit was refused because nothing changed.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// ParseRetryAfter extracts the retry delay from a 429 error message.
func ParseRetryAfter(errorString string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(errorString)
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// WithRetry runs send, waiting out flood limits up to MaxRetries times. Any
// other error is returned immediately.
func WithRetry(ctx context.Context, op string, send func() error) error {
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		err := send()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRateLimited(err) {
			return err
		}

		wait, ok := ParseRetryAfter(err.Error())
		if !ok {
			wait = defaultRetryWait
		}
		log.Ctx(ctx).Warn().Str("op", op).Int("attempt", attempt).Dur("wait", wait).Msg("[Send] Rate limit hit")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: context done during rate limit wait: %w", op, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s: max retries (%d) exceeded: %w", op, MaxRetries, lastErr)
}

// SendText sends an HTML message to chatID. markup may be nil.
func SendText(ctx context.Context, bot telegoapi.BotAPI, chatID telego.ChatID, text string, markup telego.ReplyMarkup) (*telego.Message, error) {
	params := tu.Message(chatID, text).WithParseMode(telego.ModeHTML)
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}

	var sent *telego.Message
	err := WithRetry(ctx, "sendMessage", func() error {
		var err error
		sent, err = bot.SendMessage(ctx, params)
		return err
	})
	return sent, err
}

// SendPayload sends p to chatID using the method matching its media type.
// text is the already formatted HTML body; for media it becomes the caption.
func SendPayload(ctx context.Context, bot telegoapi.BotAPI, chatID telego.ChatID, p models.Payload, text string, markup telego.ReplyMarkup) (*telego.Message, error) {
	if !p.HasMedia() {
		return SendText(ctx, bot, chatID, text, markup)
	}

	// Cutting formatted HTML can leave a tag open, so an oversized body
	// follows the media as its own message.
	if utf8.RuneCountInString(text) > captionLimit {
		if _, err := sendMedia(ctx, bot, chatID, p, "", nil); err != nil {
			return nil, err
		}
		return SendText(ctx, bot, chatID, text, markup)
	}
	return sendMedia(ctx, bot, chatID, p, text, markup)
}

func sendMedia(ctx context.Context, bot telegoapi.BotAPI, chatID telego.ChatID, p models.Payload, caption string, markup telego.ReplyMarkup) (*telego.Message, error) {
	file := tu.FileFromID(p.MediaID)

	var sent *telego.Message
	err := WithRetry(ctx, "send"+string(p.MediaType), func() error {
		var err error
		switch p.MediaType {
		case models.MediaPhoto:
			params := tu.Photo(chatID, file).WithCaption(caption).WithParseMode(telego.ModeHTML)
			if markup != nil {
				params = params.WithReplyMarkup(markup)
			}
			sent, err = bot.SendPhoto(ctx, params)
		case models.MediaVideo:
			params := tu.Video(chatID, file).WithCaption(caption).WithParseMode(telego.ModeHTML)
			if markup != nil {
				params = params.WithReplyMarkup(markup)
			}
			sent, err = bot.SendVideo(ctx, params)
		case models.MediaAudio:
			params := tu.Audio(chatID, file).WithCaption(caption).WithParseMode(telego.ModeHTML)
			if markup != nil {
				params = params.WithReplyMarkup(markup)
			}
			sent, err = bot.SendAudio(ctx, params)
		case models.MediaVoice:
			params := tu.Voice(chatID, file).WithCaption(caption).WithParseMode(telego.ModeHTML)
			if markup != nil {
				params = params.WithReplyMarkup(markup)
			}
			sent, err = bot.SendVoice(ctx, params)
		case models.MediaDocument:
			params := tu.Document(chatID, file).WithCaption(caption).WithParseMode(telego.ModeHTML)
			if markup != nil {
				params = params.WithReplyMarkup(markup)
			}
			sent, err = bot.SendDocument(ctx, params)
		default:
			return fmt.Errorf("unsupported media type %q", p.MediaType)
		}
		return err
	})
	return sent, err
}
