package repository

import (
	"strings"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"gorm.io/gorm"
)

type servicePlanRepository struct {
	db *gorm.DB
}

// NewServicePlanRepository creates a new service plan repository instance
func NewServicePlanRepository(db *gorm.DB) ServicePlanRepository {
	return &servicePlanRepository{db: db}
}

func (r *servicePlanRepository) Create(plan *models.ServicePlan) error {
	return r.db.Create(plan).Error
}

func (r *servicePlanRepository) GetByID(id uint) (*models.ServicePlan, error) {
	var plan models.ServicePlan
	if err := r.db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *servicePlanRepository) GetBySlug(slug string) (*models.ServicePlan, error) {
	var plan models.ServicePlan
	err := r.db.Where("slug = ?", strings.TrimSpace(slug)).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetByPriceID matches either the monthly or the annual price.
func (r *servicePlanRepository) GetByPriceID(priceID string) (*models.ServicePlan, error) {
	id := strings.TrimSpace(priceID)
	if id == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var plan models.ServicePlan
	err := r.db.
		Where("stripe_price_id_monthly = ? OR stripe_price_id_annual = ?", id, id).
		Order("is_active DESC, id ASC").
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *servicePlanRepository) ListActive() ([]models.ServicePlan, error) {
	var plans []models.ServicePlan
	err := r.db.Where("is_active = ?", true).Order("price_monthly ASC").Find(&plans).Error
	return plans, err
}
