package qa

import (
	"fmt"
	"strings"

	"studyqa-bot/internal/callbackdata"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/locales"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// gradeRows is the layout of the grade picker.
var gradeRows = [][]models.GradeLevel{
	{models.Grade6, models.Grade7, models.Grade8},
	{models.Grade9, models.Grade10},
	{models.Grade11, models.Grade12},
	{models.GradeUniversity},
}

func button(loc *i18n.Localizer, msgID string, data string) telego.InlineKeyboardButton {
	return tu.InlineKeyboardButton(locales.Text(loc, msgID, nil)).WithCallbackData(data)
}

func mainMenuKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(button(loc, "BtnAskMenu", string(callbackdata.ActionAskMenu))),
		tu.InlineKeyboardRow(button(loc, "BtnHelp", string(callbackdata.ActionHelpMenu))),
	)
}

func askMenuKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(button(loc, "BtnStartAsking", string(callbackdata.ActionStartAsking))),
		tu.InlineKeyboardRow(button(loc, "BtnMyQuestions", string(callbackdata.ActionMyQuestions))),
		tu.InlineKeyboardRow(button(loc, "BtnBack", string(callbackdata.ActionBackToMain))),
	)
}

func backKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(tu.InlineKeyboardRow(button(loc, "BtnBack", string(callbackdata.ActionBackToMain))))
}

func cancelQuestionKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(tu.InlineKeyboardRow(button(loc, "BtnCancel", string(callbackdata.ActionCancelQuestion))))
}

func gradeKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(gradeRows)+1)
	for _, grades := range gradeRows {
		row := make([]telego.InlineKeyboardButton, 0, len(grades))
		for _, g := range grades {
			row = append(row, tu.InlineKeyboardButton(g.Label()).WithCallbackData(callbackdata.Grade(g)))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tu.InlineKeyboardRow(button(loc, "BtnCancel", string(callbackdata.ActionCancelQuestion))))
	return tu.InlineKeyboard(rows...)
}

func replyKeyboard(loc *i18n.Localizer, msgIDs ...string) *telego.ReplyKeyboardMarkup {
	rows := make([][]telego.KeyboardButton, 0, len(msgIDs))
	for _, id := range msgIDs {
		rows = append(rows, tu.KeyboardRow(tu.KeyboardButton(locales.Text(loc, id, nil))))
	}
	return tu.Keyboard(rows...).WithResizeKeyboard()
}

func confirmKeyboard(loc *i18n.Localizer) *telego.ReplyKeyboardMarkup {
	return replyKeyboard(loc, "BtnConfirmAnswer", "BtnEditAnswer", "BtnCancelAnswering")
}

func answerButtonsKeyboard(loc *i18n.Localizer, questionID string, index int, a models.Answer) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(tu.InlineKeyboardRow(
		tu.InlineKeyboardButton(locales.Text(loc, "BtnReactRight", map[string]interface{}{"Count": a.Reactions.Right})).
			WithCallbackData(callbackdata.React(models.ReactionRight, questionID, index)),
		tu.InlineKeyboardButton(locales.Text(loc, "BtnReactWrong", map[string]interface{}{"Count": a.Reactions.Wrong})).
			WithCallbackData(callbackdata.React(models.ReactionWrong, questionID, index)),
		tu.InlineKeyboardButton(locales.Text(loc, "BtnReply", nil)).
			WithCallbackData(callbackdata.Reply(questionID, index)),
	))
}

func addAnswerKeyboard(loc *i18n.Localizer, questionID string) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(tu.InlineKeyboardRow(button(loc, "BtnAddAnswer", callbackdata.Answer(questionID))))
}

// isButton reports whether text is the label of the reply keyboard button msgID.
func isButton(loc *i18n.Localizer, text, msgID string) bool {
	text = strings.TrimSpace(text)
	return text != "" && text == locales.Text(loc, msgID, nil)
}

func statusIcon(status models.QuestionStatus) string {
	switch status {
	case models.StatusApproved:
		return "✅"
	case models.StatusDeclined:
		return "❌"
	default:
		return "⏳"
	}
}

func viewButtonLabel(n int) string {
	return fmt.Sprintf("👁️ #%d", n)
}
