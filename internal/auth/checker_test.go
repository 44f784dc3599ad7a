package auth

import (
	"context"
	"errors"
	"testing"

	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownUserIsNotAdmin", func(t *testing.T) {
		repo := new(mocks.MockUserRepository)
		repo.On("GetByTelegramID", ctx, int64(1)).Return(nil, database.ErrUserNotFound).Once()
		checker, err := NewAdminChecker(repo)
		require.NoError(t, err)

		ok, err := checker.IsAdmin(ctx, 1)
		assert.NoError(t, err)
		assert.False(t, ok)
		repo.AssertExpectations(t)
	})

	t.Run("BannedAdminIsNotAdmin", func(t *testing.T) {
		repo := new(mocks.MockUserRepository)
		repo.On("GetByTelegramID", ctx, int64(2)).Return(&models.User{TelegramID: 2, IsAdmin: true, IsBanned: true}, nil)
		checker, _ := NewAdminChecker(repo)

		ok, err := checker.IsAdmin(ctx, 2)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Permissions", func(t *testing.T) {
		repo := new(mocks.MockUserRepository)
		support := &models.User{TelegramID: 3, IsAdmin: true, AdminRole: models.RoleSupport, AdminPermissions: models.PermissionsFor(models.RoleSupport)}
		repo.On("GetByTelegramID", ctx, int64(3)).Return(support, nil)
		checker, _ := NewAdminChecker(repo)

		ok, err := checker.IsAdmin(ctx, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, _ = checker.Can(ctx, 3, models.PermViewStats)
		assert.True(t, ok)
		ok, _ = checker.Can(ctx, 3, models.PermApproveContent)
		assert.False(t, ok)
	})

	t.Run("StoreErrorPropagates", func(t *testing.T) {
		repo := new(mocks.MockUserRepository)
		repo.On("GetByTelegramID", ctx, int64(4)).Return(nil, errors.New("timeout"))
		checker, _ := NewAdminChecker(repo)

		ok, err := checker.IsAdmin(ctx, 4)
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestSeedAdmins(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockUserRepository)
	repo.On("SetAdmin", ctx, int64(10), models.RoleSuper).Return(nil).Once()
	repo.On("SetAdmin", ctx, int64(11), models.RoleSuper).Return(nil).Once()
	checker, _ := NewAdminChecker(repo)

	require.NoError(t, checker.SeedAdmins(ctx, []int64{10, 11}))
	repo.AssertExpectations(t)

	_, err := NewAdminChecker(nil)
	assert.Error(t, err)
}
