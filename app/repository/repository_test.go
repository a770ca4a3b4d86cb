package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/database/dbtest"
)

func TestUserRepositoryUpdateSubscriptionTier(t *testing.T) {
	db := dbtest.New(t)
	repos := NewRepositories(db)

	user := &models.User{Name: "Jane Doe", Email: "jane@example.com", SubscriptionTier: models.TierFree}
	require.NoError(t, repos.User.Create(user))

	require.NoError(t, repos.User.UpdateSubscriptionTier(user.ID, models.TierStarter))
	// Writing the same tier again is not an error.
	require.NoError(t, repos.User.UpdateSubscriptionTier(user.ID, models.TierStarter))

	got, err := repos.User.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TierStarter, got.SubscriptionTier)

	assert.Error(t, repos.User.UpdateSubscriptionTier(user.ID, "gold"))
	assert.ErrorIs(t, repos.User.UpdateSubscriptionTier(9999, models.TierFree), gorm.ErrRecordNotFound)
}

func TestServicePlanRepositoryGetByPriceID(t *testing.T) {
	db := dbtest.New(t)
	repo := NewServicePlanRepository(db)

	plan := &models.ServicePlan{
		Slug:                 "vps-starter",
		Name:                 "VPS Starter",
		TierKey:              models.TierStarter,
		StripePriceIDMonthly: "price_month",
		StripePriceIDAnnual:  "price_year",
		IsActive:             true,
	}
	require.NoError(t, repo.Create(plan))

	for _, priceID := range []string{"price_month", "price_year"} {
		got, err := repo.GetByPriceID(priceID)
		require.NoError(t, err)
		assert.Equal(t, plan.ID, got.ID)
	}

	_, err := repo.GetByPriceID("price_unknown")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetByPriceID("")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	got, err := repo.GetBySlug("vps-starter")
	require.NoError(t, err)
	assert.Equal(t, "VPS Starter", got.Name)
}

func TestNotificationRepository(t *testing.T) {
	db := dbtest.New(t)
	repo := NewNotificationRepository(db)

	pref, err := repo.GetPreference(1)
	require.NoError(t, err)
	assert.Nil(t, pref)

	require.NoError(t, repo.SavePreference(&models.NotificationPreference{UserID: 1, EmailEnabled: true}))
	require.NoError(t, repo.SavePreference(&models.NotificationPreference{UserID: 1, TelegramEnabled: true, TelegramChatID: "42"}))

	pref, err = repo.GetPreference(1)
	require.NoError(t, err)
	require.NotNil(t, pref)
	assert.False(t, pref.EmailEnabled)
	assert.Equal(t, []string{models.ChannelTelegram}, pref.ActiveChannels())

	userID := uint(1)
	require.NoError(t, repo.CreateLog(&models.NotificationLog{UserID: &userID, Channel: models.ChannelEmail, Subject: "Hello", Recipient: "a@b.c", Success: true}))
	require.NoError(t, repo.CreateLog(&models.NotificationLog{Channel: models.ChannelEmail, Subject: "Admin", Recipient: "ops@b.c"}))

	found, err := repo.HasRecentLog(1, "Hello", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.HasRecentLog(1, "Hello", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, found)

	logs, err := repo.ListLogsByUser(1, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
