package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/mocks"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{in: `telego: sendMessage: api: 429 "Too Many Requests: retry after 5"`, want: 5 * time.Second, ok: true},
		{in: "api: 429, retry after: 12", want: 12 * time.Second, ok: true},
		{in: "Bad Request: chat not found", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseRetryAfter(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("RetriesRateLimit", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, "test", func() error {
			calls++
			if calls == 1 {
				return errors.New("429 Too Many Requests: retry after 1")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("OtherErrorsAreNotRetried", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, "test", func() error {
			calls++
			return errors.New("Forbidden: bot was blocked by the user")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("ContextCancelledDuringWait", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := WithRetry(cctx, "test", func() error {
			return errors.New("429 Too Many Requests: retry after 30")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSendPayload(t *testing.T) {
	ctx := context.Background()
	chat := tu.ID(77)

	t.Run("Text", func(t *testing.T) {
		bot := new(mocks.MockBot)
		var captured *telego.SendMessageParams
		bot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
			Run(func(args mock.Arguments) { captured = args.Get(1).(*telego.SendMessageParams) }).
			Return(&telego.Message{MessageID: 1}, nil).Once()

		sent, err := SendPayload(ctx, bot, chat, models.Payload{Content: "hi", MediaType: models.MediaText}, "<b>hi</b>", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, sent.MessageID)
		require.NotNil(t, captured)
		assert.Equal(t, telego.ModeHTML, captured.ParseMode)
		assert.Nil(t, captured.ReplyMarkup)
		bot.AssertExpectations(t)
	})

	t.Run("PhotoUsesCaption", func(t *testing.T) {
		bot := new(mocks.MockBot)
		var captured *telego.SendPhotoParams
		bot.On("SendPhoto", ctx, mock.AnythingOfType("*telego.SendPhotoParams")).
			Run(func(args mock.Arguments) { captured = args.Get(1).(*telego.SendPhotoParams) }).
			Return(&telego.Message{MessageID: 2}, nil).Once()

		markup := tu.InlineKeyboard(tu.InlineKeyboardRow(tu.InlineKeyboardButton("x").WithCallbackData("y")))
		_, err := SendPayload(ctx, bot, chat, models.Payload{Content: "graph", MediaType: models.MediaPhoto, MediaID: "file-1"}, "graph", markup)
		require.NoError(t, err)
		require.NotNil(t, captured)
		assert.Equal(t, "file-1", captured.Photo.FileID)
		assert.Equal(t, "graph", captured.Caption)
		assert.Equal(t, markup, captured.ReplyMarkup)
	})

	t.Run("LongBodyFollowsMedia", func(t *testing.T) {
		bot := new(mocks.MockBot)
		var photo *telego.SendPhotoParams
		var text *telego.SendMessageParams
		bot.On("SendPhoto", ctx, mock.AnythingOfType("*telego.SendPhotoParams")).
			Run(func(args mock.Arguments) { photo = args.Get(1).(*telego.SendPhotoParams) }).
			Return(&telego.Message{MessageID: 3}, nil).Once()
		bot.On("SendMessage", ctx, mock.AnythingOfType("*telego.SendMessageParams")).
			Run(func(args mock.Arguments) { text = args.Get(1).(*telego.SendMessageParams) }).
			Return(&telego.Message{MessageID: 4}, nil).Once()

		body := "<b>" + strings.Repeat("x", captionLimit) + "</b>"
		sent, err := SendPayload(ctx, bot, chat, models.Payload{MediaType: models.MediaPhoto, MediaID: "file-2"}, body, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, sent.MessageID)
		require.NotNil(t, photo)
		assert.Empty(t, photo.Caption)
		require.NotNil(t, text)
		assert.Equal(t, body, text.Text)
		bot.AssertExpectations(t)
	})

	t.Run("Voice", func(t *testing.T) {
		bot := new(mocks.MockBot)
		bot.On("SendVoice", ctx, mock.AnythingOfType("*telego.SendVoiceParams")).Return(&telego.Message{}, nil).Once()
		_, err := SendPayload(ctx, bot, chat, models.Payload{MediaType: models.MediaVoice, MediaID: "v"}, "Voice message", nil)
		require.NoError(t, err)
		bot.AssertExpectations(t)
	})
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", Escape("a <b> & c"))
}
