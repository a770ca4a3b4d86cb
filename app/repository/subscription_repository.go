package repository

import (
	"time"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert writes sub keyed by its external id and returns the stored row.
func (r *subscriptionRepository) Upsert(sub *models.Subscription) (*models.Subscription, error) {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_id",
			"stripe_price_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(sub).Error
	if err != nil {
		return nil, err
	}
	return r.GetByStripeID(sub.StripeSubscriptionID)
}

// ListExpiring returns entitling subscriptions set to cancel whose period
// ends within [from, to].
func (r *subscriptionRepository) ListExpiring(from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Preload("Customer").
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Where("cancel_at_period_end = ?", true).
		Where("current_period_end BETWEEN ? AND ?", from, to).
		Order("current_period_end ASC").
		Find(&subs).Error
	return subs, err
}
