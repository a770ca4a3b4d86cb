package repository

import (
	"github.com/ManuelReschke/Fulfillment/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// CreateIfNotExists inserts the order unless one already exists for its
// checkout session. It always returns the stored order.
func (r *orderRepository) CreateIfNotExists(order *models.Order) (*models.Order, bool, error) {
	tx := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(order)
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	created := tx.RowsAffected == 1
	if order.StripeCheckoutSessionID == nil {
		return order, created, nil
	}
	stored, err := r.GetByCheckoutSessionID(*order.StripeCheckoutSessionID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *orderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.Preload("ServicePlan").Preload("Customer").First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByCheckoutSessionID(sessionID string) (*models.Order, error) {
	var order models.Order
	err := r.db.Preload("ServicePlan").Preload("Customer").
		Where("stripe_checkout_session_id = ?", sessionID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByCustomer(customerID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Where("customer_id = ?", customerID).Order("id DESC").Find(&orders).Error
	return orders, err
}
