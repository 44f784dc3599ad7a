package locales

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	Init("en")
	loc := ForLanguage("uz")

	t.Run("Template", func(t *testing.T) {
		got := Text(loc, "MsgChannelPost", map[string]interface{}{"Content": "What is 2+2?", "Grade": "Grade 1"})
		assert.Equal(t, "❓ Question from Student\n\nWhat is 2+2?\n\n📚 Grade Level: Grade 1", got)
	})

	t.Run("Conditional", func(t *testing.T) {
		item := map[string]interface{}{"Name": "Aziz", "ID": int64(7), "Role": "content", "Banned": true}
		assert.Contains(t, Text(loc, "MsgAdminListItem", item), "🚫")
		item["Banned"] = false
		assert.NotContains(t, Text(loc, "MsgAdminListItem", item), "🚫")
	})

	t.Run("MissingKeyReturnsID", func(t *testing.T) {
		assert.Equal(t, "MsgDoesNotExist", Text(loc, "MsgDoesNotExist", nil))
	})

	t.Run("BadDefaultFallsBackToEnglish", func(t *testing.T) {
		Init("not a tag!")
		assert.Equal(t, "en", GetDefaultLanguageTag().String())
		Init("en")
	})
}
