// Package callbackdata encodes and decodes inline button payloads and /start deep links.
package callbackdata

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"studyqa-bot/internal/apperrors"
	"studyqa-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Action is the verb encoded in a callback payload.
type Action string

const (
	ActionGrade       Action = "grade"
	ActionApprove     Action = "approve"
	ActionDecline     Action = "decline"
	ActionAnswer      Action = "answer"
	ActionView        Action = "view"
	ActionReactRight  Action = "ans_right"
	ActionReactWrong  Action = "ans_wrong"
	ActionReplyAnswer Action = "ans_reply"

	ActionCheckSubscription Action = "check_subscription"
	ActionCancelOnboarding  Action = "cancel_onboarding"
	ActionShareContact      Action = "share_contact"
	ActionCancelQuestion    Action = "cancel_question"
	ActionAskMenu           Action = "ask_question_menu"
	ActionHelpMenu          Action = "help_menu"
	ActionStartAsking       Action = "start_asking"
	ActionMyQuestions       Action = "my_questions"
	ActionBackToMain        Action = "back_to_main"
)

// legacyReply is the older reply payload ("reply_<id>_<n>") still found on old messages.
const legacyReply = "reply"

var (
	objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

	// ErrMalformed is returned for payloads that do not match any known encoding.
	ErrMalformed = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrInvalidRequest", "malformed callback payload")
	// ErrInvalidQuestionID is returned when a question ID is not 24 hex characters.
	ErrInvalidQuestionID = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrInvalidQuestionID", "invalid question id")
)

var staticActions = map[Action]bool{
	ActionCheckSubscription: true,
	ActionCancelOnboarding:  true,
	ActionShareContact:      true,
	ActionCancelQuestion:    true,
	ActionAskMenu:           true,
	ActionHelpMenu:          true,
	ActionStartAsking:       true,
	ActionMyQuestions:       true,
	ActionBackToMain:        true,
}

// Data is a decoded callback payload.
type Data struct {
	Action      Action
	QuestionID  string
	AnswerIndex int
	Grade       models.GradeLevel
}

// IsObjectIDHex reports whether s is a 24 character hexadecimal string.
func IsObjectIDHex(s string) bool {
	return objectIDPattern.MatchString(s)
}

// ParseQuestionID converts a hex question id into an ObjectID.
func ParseQuestionID(hex string) (primitive.ObjectID, error) {
	if !IsObjectIDHex(hex) {
		return primitive.NilObjectID, ErrInvalidQuestionID
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidQuestionID
	}
	return id, nil
}

// Parse decodes a callback payload.
func Parse(raw string) (Data, error) {
	if staticActions[Action(raw)] {
		return Data{Action: Action(raw)}, nil
	}

	for _, action := range []Action{ActionReactRight, ActionReactWrong, ActionReplyAnswer} {
		if rest, ok := strings.CutPrefix(raw, string(action)+"_"); ok {
			return parseAnswerRef(action, rest)
		}
	}
	if rest, ok := strings.CutPrefix(raw, legacyReply+"_"); ok {
		return parseAnswerRef(ActionReplyAnswer, rest)
	}

	if code, ok := strings.CutPrefix(raw, string(ActionGrade)+"_"); ok {
		grade, valid := models.ParseGradeLevel(code)
		if !valid {
			return Data{}, fmt.Errorf("unknown grade %q: %w", code, ErrMalformed)
		}
		return Data{Action: ActionGrade, Grade: grade}, nil
	}

	for _, action := range []Action{ActionApprove, ActionDecline, ActionAnswer, ActionView} {
		if id, ok := strings.CutPrefix(raw, string(action)+"_"); ok {
			if !IsObjectIDHex(id) {
				return Data{}, ErrInvalidQuestionID
			}
			return Data{Action: action, QuestionID: id}, nil
		}
	}
	return Data{}, ErrMalformed
}

func parseAnswerRef(action Action, rest string) (Data, error) {
	id, indexStr, ok := strings.Cut(rest, "_")
	if !ok {
		return Data{}, ErrMalformed
	}
	if !IsObjectIDHex(id) {
		return Data{}, ErrInvalidQuestionID
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		return Data{}, ErrMalformed
	}
	return Data{Action: action, QuestionID: id, AnswerIndex: index}, nil
}

// Encoders. Question IDs are passed as hex strings.

func Grade(g models.GradeLevel) string { return string(ActionGrade) + "_" + string(g) }
func Approve(questionID string) string { return string(ActionApprove) + "_" + questionID }
func Decline(questionID string) string { return string(ActionDecline) + "_" + questionID }
func Answer(questionID string) string  { return string(ActionAnswer) + "_" + questionID }
func View(questionID string) string    { return string(ActionView) + "_" + questionID }

func React(kind models.ReactionKind, questionID string, index int) string {
	action := ActionReactRight
	if kind == models.ReactionWrong {
		action = ActionReactWrong
	}
	return fmt.Sprintf("%s_%s_%d", action, questionID, index)
}

func Reply(questionID string, index int) string {
	return fmt.Sprintf("%s_%s_%d", ActionReplyAnswer, questionID, index)
}

// ParseDeepLink decodes a /start payload. Only answer_<id> and view_<id> are
// recognised; anything else returns false.
func ParseDeepLink(payload string) (Data, bool) {
	payload = strings.TrimSpace(payload)
	for _, action := range []Action{ActionAnswer, ActionView} {
		if id, ok := strings.CutPrefix(payload, string(action)+"_"); ok && IsObjectIDHex(id) {
			return Data{Action: action, QuestionID: id}, true
		}
	}
	return Data{}, false
}

// DeepLink builds a t.me start link for the bot.
func DeepLink(botUsername, payload string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(botUsername, "@"), url.QueryEscape(payload))
}
