package handlers

import (
	"context"

	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/moderation"
)

// AdminChecker answers admin and permission questions for command gating.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	Can(ctx context.Context, userID int64, perm models.Permission) (bool, error)
}

// Moderator is the moderation surface used by admin commands and review buttons.
type Moderator interface {
	Approve(ctx context.Context, questionID string, actorID int64) (*moderation.ApproveResult, error)
	Decline(ctx context.Context, questionID string, actorID int64) (*models.Question, error)
	SendReviewCard(ctx context.Context, chatID int64, q *models.Question) error
	Broadcast(ctx context.Context, text string, actorID int64) (*moderation.BroadcastReport, error)
}
