package models

import "time"

// ServicePlan is a purchasable catalog entry. TierKey links it to both the
// user's subscription tier and the resource spec used for provisioning.
type ServicePlan struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Slug                 string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"slug"`
	Name                 string    `gorm:"type:varchar(150);not null" json:"name"`
	TierKey              string    `gorm:"type:varchar(32);not null;default:'free';index" json:"tier_key"`
	StripePriceIDMonthly string    `gorm:"type:varchar(191);index" json:"stripe_price_id_monthly"`
	StripePriceIDAnnual  string    `gorm:"type:varchar(191);index" json:"stripe_price_id_annual"`
	PriceMonthly         int64     `gorm:"not null;default:0" json:"price_monthly"` // minor units
	Currency             string    `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	IsActive             bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PriceID returns the processor price for the given billing interval.
func (p *ServicePlan) PriceID(annual bool) string {
	if annual {
		return p.StripePriceIDAnnual
	}
	return p.StripePriceIDMonthly
}
