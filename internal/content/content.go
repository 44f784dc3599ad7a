// Package content turns inbound Telegram messages into a typed content value
// and applies the submission validation policy.
package content

import (
	"strings"
	"unicode/utf8"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/database/models"

	"github.com/mymmrac/telego"
)

// Kind is the shape of an inbound message.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindPhoto
	KindVideo
	KindAudio
	KindVoice
	KindDocument
)

const (
	// MinQuestionLength is the minimum rune count of a text question.
	MinQuestionLength = 5
	// MinAnswerLength is the minimum rune count of a text answer or reply.
	MinAnswerLength = 3
)

var (
	// ErrTooShort is returned for text below the minimum length.
	ErrTooShort = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrTooShort", "text too short")
	// ErrUnsupported is returned for message shapes that cannot be submitted.
	ErrUnsupported = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrUnsupportedContent", "unsupported content")
)

// Content is one inbound message reduced to what the flows care about.
type Content struct {
	Kind     Kind
	Text     string
	FileID   string
	Caption  string
	FileName string
}

// FromMessage classifies msg once, at the transport boundary.
func FromMessage(msg telego.Message) Content {
	switch {
	case msg.Text != "":
		return Content{Kind: KindText, Text: msg.Text}
	case msg.Voice != nil:
		return Content{Kind: KindVoice, FileID: msg.Voice.FileID, Caption: msg.Caption}
	case len(msg.Photo) > 0:
		return Content{Kind: KindPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID, Caption: msg.Caption}
	case msg.Video != nil:
		return Content{Kind: KindVideo, FileID: msg.Video.FileID, Caption: msg.Caption}
	case msg.Audio != nil:
		return Content{Kind: KindAudio, FileID: msg.Audio.FileID, Caption: msg.Caption}
	case msg.Document != nil:
		return Content{Kind: KindDocument, FileID: msg.Document.FileID, Caption: msg.Caption, FileName: msg.Document.FileName}
	default:
		return Content{Kind: KindUnsupported}
	}
}

// Payload validates c and converts it to a stored payload. Text must have at
// least minLength runes after trimming; media kinds default their content to a
// type label unless a caption is present.
func (c Content) Payload(minLength int) (models.Payload, error) {
	caption := strings.TrimSpace(c.Caption)

	switch c.Kind {
	case KindText:
		text := strings.TrimSpace(c.Text)
		if utf8.RuneCountInString(text) < minLength {
			return models.Payload{}, ErrTooShort
		}
		return models.Payload{Content: text, MediaType: models.MediaText}, nil
	case KindVoice:
		return mediaPayload(models.MediaVoice, c.FileID, caption, "Voice message"), nil
	case KindPhoto:
		return mediaPayload(models.MediaPhoto, c.FileID, caption, "Photo"), nil
	case KindVideo:
		return mediaPayload(models.MediaVideo, c.FileID, caption, "Video"), nil
	case KindAudio:
		return mediaPayload(models.MediaAudio, c.FileID, caption, "Audio"), nil
	case KindDocument:
		name := strings.TrimSpace(c.FileName)
		if name == "" {
			name = "Untitled"
		}
		return mediaPayload(models.MediaDocument, c.FileID, caption, "Document: "+name), nil
	default:
		return models.Payload{}, ErrUnsupported
	}
}

func mediaPayload(mediaType models.MediaType, fileID, caption, label string) models.Payload {
	p := models.Payload{
		Content:      label,
		MediaType:    mediaType,
		MediaID:      fileID,
		MediaCaption: caption,
	}
	if caption != "" {
		p.Content = caption
	}
	return p
}

// Preview shortens text to at most limit runes, appending "..." when cut.
func Preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
