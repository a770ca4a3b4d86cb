package repository

import (
	"github.com/ManuelReschke/Fulfillment/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type customerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new customer repository instance
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) GetByStripeID(stripeCustomerID string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.Preload("User").Where("stripe_customer_id = ?", stripeCustomerID).First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) GetByUserID(userID uint) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.Preload("User").Where("user_id = ?", userID).First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// Ensure returns the customer for stripeCustomerID, creating it for userID
// if missing. Concurrent callers converge on the same row. If the user is
// already linked to a different processor customer, ErrRecordNotFound is returned.
func (r *customerRepository) Ensure(userID uint, stripeCustomerID string) (*models.Customer, error) {
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Customer{
		UserID:           userID,
		StripeCustomerID: stripeCustomerID,
	}).Error
	if err != nil {
		return nil, err
	}
	return r.GetByStripeID(stripeCustomerID)
}
