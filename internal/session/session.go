// Package session keeps per-conversation state between Telegram updates.
// Handlers receive the *Session of the current conversation as an argument and
// mutate it; the dispatcher loads and saves it around each update.
package session

import (
	"context"
	"time"

	"studyqa-bot/internal/database/models"
)

// State identifies a step of the conversation state machine.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingQuestion State = "awaiting_question"
	StateAwaitingGrade    State = "awaiting_grade"
	StateAwaitingAnswer   State = "awaiting_answer"
	StateAwaitingReply    State = "awaiting_reply"
)

// DeepLinkAction is the kind of deep link captured from /start.
type DeepLinkAction string

const (
	DeepLinkAnswer DeepLinkAction = "answer"
	DeepLinkView   DeepLinkAction = "view"
)

// DeepLink is a /start payload waiting to be acted on.
type DeepLink struct {
	Action     DeepLinkAction `json:"action"`
	QuestionID string         `json:"questionId"`
}

// Session is the state of one conversation.
type Session struct {
	State State `json:"state"`

	// awaiting_grade
	QuestionDraft *models.Payload `json:"questionDraft,omitempty"`

	// awaiting_answer / awaiting_reply
	QuestionID       string          `json:"questionId,omitempty"`
	IsAuthorAnswer   bool            `json:"isAuthorAnswer,omitempty"`
	AnswerDraft      *models.Payload `json:"answerDraft,omitempty"`
	ConfirmingAnswer bool            `json:"confirmingAnswer,omitempty"`
	AnswerIndex      int             `json:"answerIndex,omitempty"`

	PendingDeepLink *DeepLink `json:"pendingDeepLink,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// New returns an idle session.
func New() *Session {
	return &Session{State: StateIdle}
}

// Reset returns the conversation to idle and drops every draft. A pending deep
// link survives a reset; it is consumed separately.
func (s *Session) Reset() {
	s.State = StateIdle
	s.QuestionDraft = nil
	s.QuestionID = ""
	s.IsAuthorAnswer = false
	s.AnswerDraft = nil
	s.ConfirmingAnswer = false
	s.AnswerIndex = 0
}

// IsIdle reports whether no flow is in progress.
func (s *Session) IsIdle() bool {
	return s.State == "" || s.State == StateIdle
}

// BeginQuestion starts the ask flow.
func (s *Session) BeginQuestion() {
	s.Reset()
	s.State = StateAwaitingQuestion
}

// AwaitGrade stores the question draft and waits for a grade.
func (s *Session) AwaitGrade(draft models.Payload) {
	s.State = StateAwaitingGrade
	s.QuestionDraft = &draft
}

// BeginAnswer starts the answer flow for questionID.
func (s *Session) BeginAnswer(questionID string, isAuthor bool) {
	s.Reset()
	s.State = StateAwaitingAnswer
	s.QuestionID = questionID
	s.IsAuthorAnswer = isAuthor
}

// StageAnswer stores an answer draft and asks for confirmation.
func (s *Session) StageAnswer(draft models.Payload) {
	s.AnswerDraft = &draft
	s.ConfirmingAnswer = true
}

// EditAnswer discards the staged draft but keeps the answer flow.
func (s *Session) EditAnswer() {
	s.AnswerDraft = nil
	s.ConfirmingAnswer = false
}

// BeginReply starts the reply flow for answers[answerIndex] of questionID.
func (s *Session) BeginReply(questionID string, answerIndex int) {
	s.Reset()
	s.State = StateAwaitingReply
	s.QuestionID = questionID
	s.AnswerIndex = answerIndex
}

// ConsumeDeepLink returns and clears the pending deep link.
func (s *Session) ConsumeDeepLink() *DeepLink {
	link := s.PendingDeepLink
	s.PendingDeepLink = nil
	return link
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.QuestionDraft != nil {
		d := *s.QuestionDraft
		c.QuestionDraft = &d
	}
	if s.AnswerDraft != nil {
		d := *s.AnswerDraft
		c.AnswerDraft = &d
	}
	if s.PendingDeepLink != nil {
		l := *s.PendingDeepLink
		c.PendingDeepLink = &l
	}
	return &c
}

// Store persists sessions by conversation key (the Telegram user ID).
type Store interface {
	// Load returns the session for key, or a new idle session when none exists.
	Load(ctx context.Context, key int64) (*Session, error)
	Save(ctx context.Context, key int64, s *Session) error
	Delete(ctx context.Context, key int64) error
}
