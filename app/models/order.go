package models

import "time"

const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusCanceled = "canceled"
	OrderStatusFailed   = "failed"
)

// Order is created exactly once per completed checkout session.
type Order struct {
	ID                      uint          `gorm:"primaryKey" json:"id"`
	CustomerID              uint          `gorm:"not null;index" json:"customer_id"`
	Customer                *Customer     `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	ServicePlanID           *uint         `gorm:"index" json:"service_plan_id,omitempty"`
	ServicePlan             *ServicePlan  `gorm:"foreignKey:ServicePlanID" json:"service_plan,omitempty"`
	SubscriptionID          *uint         `gorm:"index" json:"subscription_id,omitempty"`
	Subscription            *Subscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
	Status                  string        `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	StripeCheckoutSessionID *string       `gorm:"type:varchar(191);uniqueIndex" json:"stripe_checkout_session_id,omitempty"`
	StripePaymentIntentID   *string       `gorm:"type:varchar(191);uniqueIndex" json:"stripe_payment_intent_id,omitempty"`
	AmountTotal             int64         `gorm:"not null;default:0" json:"amount_total"` // minor units
	Currency                string        `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	CreatedAt               time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}
