package auth

import (
	"context"
	"errors"
	"fmt"

	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"

	"github.com/rs/zerolog/log"
)

// AdminChecker answers admin capability questions from the stored User record.
type AdminChecker struct {
	users database.UserRepository
}

// NewAdminChecker creates a new AdminChecker.
func NewAdminChecker(users database.UserRepository) (*AdminChecker, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository cannot be nil")
	}
	return &AdminChecker{users: users}, nil
}

// IsAdmin reports whether userID is an admin who is not banned.
// Unknown users are simply not admins.
func (ac *AdminChecker) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	user, err := ac.lookup(ctx, userID)
	if err != nil || user == nil {
		return false, err
	}
	return user.IsAdmin && !user.IsBanned, nil
}

// Can reports whether userID is an admin holding perm.
func (ac *AdminChecker) Can(ctx context.Context, userID int64, perm models.Permission) (bool, error) {
	user, err := ac.lookup(ctx, userID)
	if err != nil || user == nil {
		return false, err
	}
	return !user.IsBanned && user.HasPermission(perm), nil
}

func (ac *AdminChecker) lookup(ctx context.Context, userID int64) (*models.User, error) {
	user, err := ac.users.GetByTelegramID(ctx, userID)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d for admin check: %w", userID, err)
	}
	return user, nil
}

// SeedAdmins promotes every id in ids to a super admin. It runs at startup and
// is idempotent.
func (ac *AdminChecker) SeedAdmins(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := ac.users.SetAdmin(ctx, id, models.RoleSuper); err != nil {
			return fmt.Errorf("failed to seed admin %d: %w", id, err)
		}
		log.Info().Int64("user_id", id).Msg("[Auth] Seeded super admin")
	}
	return nil
}
