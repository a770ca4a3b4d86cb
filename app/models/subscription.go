package models

import "time"

const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPaused            = "paused"
)

// Subscription mirrors the processor's subscription object. Rows are only
// written by upserting on StripeSubscriptionID.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	CustomerID           uint       `gorm:"not null;index" json:"customer_id"`
	Customer             *Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_subscription_id"`
	StripePriceID        string     `gorm:"type:varchar(191);index" json:"stripe_price_id"`
	Status               string     `gorm:"type:varchar(32);not null;index" json:"status"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null;index" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the status grants the plan's tier.
func (s *Subscription) IsEntitling() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

// IsEndedSubscriptionStatus reports whether the status means the customer lost access.
func IsEndedSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionStatusCanceled, SubscriptionStatusUnpaid, SubscriptionStatusIncompleteExpired:
		return true
	}
	return false
}
