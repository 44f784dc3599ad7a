package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// QuestionStatus is the moderation state of a question.
type QuestionStatus string

const (
	StatusPending  QuestionStatus = "pending"
	StatusApproved QuestionStatus = "approved"
	StatusDeclined QuestionStatus = "declined"
)

// CanTransitionTo reports whether a question in status s may move to next.
// Only pending questions move, and only to approved or declined.
func (s QuestionStatus) CanTransitionTo(next QuestionStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusDeclined)
}

// MediaType is the kind of content carried by a question, answer or reply.
type MediaType string

const (
	MediaText     MediaType = "text"
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaVoice    MediaType = "voice"
	MediaDocument MediaType = "document"
)

// GradeLevel classifies a question by school grade band.
type GradeLevel string

const (
	Grade6          GradeLevel = "grade6"
	Grade7          GradeLevel = "grade7"
	Grade8          GradeLevel = "grade8"
	Grade9          GradeLevel = "grade9"
	Grade10         GradeLevel = "grade10"
	Grade11         GradeLevel = "grade11"
	Grade12         GradeLevel = "grade12"
	GradeUniversity GradeLevel = "university"
)

// GradeLevels lists every grade in display order.
var GradeLevels = []GradeLevel{Grade6, Grade7, Grade8, Grade9, Grade10, Grade11, Grade12, GradeUniversity}

// ParseGradeLevel validates a grade code.
func ParseGradeLevel(code string) (GradeLevel, bool) {
	for _, g := range GradeLevels {
		if string(g) == code {
			return g, true
		}
	}
	return "", false
}

// Label returns the human readable grade name ("Grade 10", "University").
func (g GradeLevel) Label() string {
	if g == GradeUniversity {
		return "University"
	}
	if n, ok := strings.CutPrefix(string(g), "grade"); ok && n != "" {
		return "Grade " + n
	}
	return string(g)
}

// Payload is the content shared by questions, answers and replies.
type Payload struct {
	Content      string    `bson:"content" json:"content"`
	MediaType    MediaType `bson:"mediaType" json:"mediaType"`
	MediaID      string    `bson:"mediaId,omitempty" json:"mediaId,omitempty"`
	MediaCaption string    `bson:"mediaCaption,omitempty" json:"mediaCaption,omitempty"`
}

// HasMedia reports whether the payload references a Telegram file.
func (p Payload) HasMedia() bool {
	return p.MediaType != MediaText && p.MediaType != "" && p.MediaID != ""
}

// ReactionKind selects one of the two answer counters.
type ReactionKind string

const (
	ReactionRight ReactionKind = "right"
	ReactionWrong ReactionKind = "wrong"
)

// Reactions holds the monotonically increasing answer counters.
type Reactions struct {
	Right int `bson:"right" json:"right"`
	Wrong int `bson:"wrong" json:"wrong"`
}

// Reply is a lightweight comment attached to an answer.
type Reply struct {
	AuthorID   int64  `bson:"authorId"`
	AuthorName string `bson:"authorName,omitempty"`

	Payload `bson:",inline"`

	CreatedAt time.Time `bson:"createdAt"`
}

// Answer is embedded in Question.Answers. Its position in that slice is its
// address for reactions and replies, so answers are only ever appended.
type Answer struct {
	AuthorID   int64  `bson:"authorId"`
	AuthorName string `bson:"authorName,omitempty"`

	Payload `bson:",inline"`

	IsAuthorUpdate bool      `bson:"isAuthorUpdate"`
	Reactions      Reactions `bson:"reactions"`
	Replies        []Reply   `bson:"replies"`
	CreatedAt      time.Time `bson:"createdAt"`
}

// Question represents a student's question and everything hanging off it.
type Question struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	UserID   int64              `bson:"userId"`
	UserName string             `bson:"userName,omitempty"`

	Payload `bson:",inline"`

	GradeLevel       GradeLevel     `bson:"gradeLevel"`
	Status           QuestionStatus `bson:"status"`
	ApprovedBy       int64          `bson:"approvedBy,omitempty"`
	ApprovedAt       *time.Time     `bson:"approvedAt,omitempty"`
	DeclinedBy       int64          `bson:"declinedBy,omitempty"`
	DeclinedAt       *time.Time     `bson:"declinedAt,omitempty"`
	ChannelMessageID int            `bson:"channelMessageId,omitempty"`
	Answers          []Answer       `bson:"answers"`
	CreatedAt        time.Time      `bson:"createdAt"`
	UpdatedAt        time.Time      `bson:"updatedAt"`
}

// NewQuestion builds a pending question with an empty answer list.
func NewQuestion(userID int64, userName string, payload Payload, grade GradeLevel) *Question {
	now := time.Now()
	return &Question{
		UserID:     userID,
		UserName:   userName,
		Payload:    payload,
		GradeLevel: grade,
		Status:     StatusPending,
		Answers:    []Answer{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewAnswer builds an answer with zeroed counters and an empty reply list.
func NewAnswer(authorID int64, authorName string, payload Payload, isAuthorUpdate bool) Answer {
	return Answer{
		AuthorID:       authorID,
		AuthorName:     authorName,
		Payload:        payload,
		IsAuthorUpdate: isAuthorUpdate,
		Replies:        []Reply{},
		CreatedAt:      time.Now(),
	}
}

// IsPublished reports whether the question has a channel post.
func (q *Question) IsPublished() bool {
	return q.ChannelMessageID != 0
}

// IsAuthor reports whether userID asked the question.
func (q *Question) IsAuthor(userID int64) bool {
	return q.UserID == userID
}

// AnswerCount returns the number of answers, author updates included.
func (q *Question) AnswerCount() int {
	return len(q.Answers)
}

// HasAnswer reports whether index addresses an existing answer.
func (q *Question) HasAnswer(index int) bool {
	return index >= 0 && index < len(q.Answers)
}

// AnswerOrder returns answer indexes with author updates first, each group
// keeping insertion order. Indexes stay the raw positions in Answers.
func (q *Question) AnswerOrder() []int {
	order := make([]int, 0, len(q.Answers))
	for i, a := range q.Answers {
		if a.IsAuthorUpdate {
			order = append(order, i)
		}
	}
	for i, a := range q.Answers {
		if !a.IsAuthorUpdate {
			order = append(order, i)
		}
	}
	return order
}
