package bot

import (
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/handlers"
	"studyqa-bot/internal/onboarding"

	"github.com/mymmrac/telego"
)

// profileOf extracts the profile fields refreshed on every update.
func profileOf(u *telego.User) models.Profile {
	return models.Profile{
		TelegramID:   u.ID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
	}
}

// messageRequest describes a message to the onboarding gate.
func messageRequest(msg telego.Message) onboarding.Request {
	req := onboarding.Request{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		Text:      msg.Text,
		IsContact: msg.Contact != nil,
	}
	if name, _, ok := handlers.ParseCommand(msg.Text); ok {
		req.Command = name
	}
	return req
}

// callbackRequest describes a button press to the onboarding gate. Callbacks
// are answered in the private chat with the sender.
func callbackRequest(query telego.CallbackQuery) onboarding.Request {
	return onboarding.Request{
		UserID:       query.From.ID,
		ChatID:       query.From.ID,
		CallbackData: query.Data,
	}
}
