package locales

import (
	"embed"
	"encoding/json"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Init loads the embedded message files and sets the default language.
// It is safe to call more than once; tests call it before every suite.
func Init(defaultLangCode string) {
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		log.Warn().Err(err).Str("lang", defaultLangCode).Msg("Failed to parse default language code, falling back to English")
		tag = language.English
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read embedded locales directory")
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, entry.Name()); err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to load message file")
			continue
		}
		loaded++
	}
	if loaded == 0 {
		log.Fatal().Msg("No message files loaded from locales")
	}

	mu.Lock()
	bundle = b
	defaultLanguage = tag
	mu.Unlock()

	log.Debug().Int("files", loaded).Str("default", tag.String()).Msg("i18n bundle initialized")
}

// GetDefaultLanguageTag returns the configured default language tag.
func GetDefaultLanguageTag() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLanguage
}

// NewLocalizer creates a localizer for the given language preferences
// (tags such as "en" or an Accept-Language string).
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		log.Panic().Msg("Attempted to create localizer before i18n bundle initialization")
	}
	return i18n.NewLocalizer(bundle, langPrefs...)
}

// GetMessage localizes msgID. When the id is missing in every language the id
// itself is returned, so a missing key shows up in chat rather than crashing.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}, pluralCount *int) string {
	cfg := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}
	if pluralCount != nil {
		cfg.PluralCount = *pluralCount
	}

	msg, err := localizer.Localize(cfg)
	if err == nil {
		return msg
	}

	log.Error().Err(err).Str("msg_id", msgID).Msg("Failed to localize message, falling back to English")
	fallback, fallbackErr := NewLocalizer(language.English.String()).Localize(cfg)
	if fallbackErr == nil {
		return fallback
	}
	return msgID
}

// Text is GetMessage for messages without plural forms.
func Text(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}) string {
	return GetMessage(localizer, msgID, templateData, nil)
}

// ForLanguage returns a localizer preferring code and falling back to the
// default language.
func ForLanguage(code string) *i18n.Localizer {
	return NewLocalizer(code, GetDefaultLanguageTag().String())
}
