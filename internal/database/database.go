package database

import (
	"studyqa-bot/internal/apperrors"
)

var (
	// ErrQuestionNotFound is returned when no question matches the given ID.
	ErrQuestionNotFound = apperrors.WithMessageID(apperrors.KindNotFound, "MsgErrQuestionNotFound", "question not found")
	// ErrUserNotFound is returned when no user matches the given Telegram ID.
	ErrUserNotFound = apperrors.WithMessageID(apperrors.KindNotFound, "MsgErrUserNotFound", "user not found")
	// ErrStatusConflict is returned when a status transition is attempted on a question that is no longer pending.
	ErrStatusConflict = apperrors.WithMessageID(apperrors.KindInvalidState, "MsgErrAlreadyModerated", "question is no longer pending")
	// ErrQuestionNotApproved is returned when answering a question that was not approved.
	ErrQuestionNotApproved = apperrors.WithMessageID(apperrors.KindInvalidState, "MsgErrQuestionNotApproved", "question is not approved")
	// ErrAnswerIndexOutOfRange is returned when an answer index does not address an existing answer.
	ErrAnswerIndexOutOfRange = apperrors.WithMessageID(apperrors.KindValidation, "MsgErrAnswerNotFound", "answer index out of range")
	// ErrChannelMessageAlreadySet is returned when a question already has a channel post.
	ErrChannelMessageAlreadySet = apperrors.WithMessageID(apperrors.KindInvalidState, "MsgErrAlreadyPublished", "channel message already recorded")
)

// QuestionStats summarises questions by status.
type QuestionStats struct {
	Total    int64
	Pending  int64
	Approved int64
	Declined int64
}

// UserStats summarises the user base.
type UserStats struct {
	Total     int64
	Onboarded int64
	Admins    int64
	Banned    int64
}
