package repository

import (
	"time"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	UpdateSubscriptionTier(id uint, tier string) error
}

// ServicePlanRepository resolves catalog plans for billing and provisioning.
type ServicePlanRepository interface {
	Create(plan *models.ServicePlan) error
	GetByID(id uint) (*models.ServicePlan, error)
	GetBySlug(slug string) (*models.ServicePlan, error)
	GetByPriceID(priceID string) (*models.ServicePlan, error)
	ListActive() ([]models.ServicePlan, error)
}

// NotificationRepository stores channel preferences and the send audit log.
type NotificationRepository interface {
	GetPreference(userID uint) (*models.NotificationPreference, error)
	SavePreference(pref *models.NotificationPreference) error
	CreateLog(entry *models.NotificationLog) error
	HasRecentLog(userID uint, subject string, since time.Time) (bool, error)
	ListLogsByUser(userID uint, limit int) ([]models.NotificationLog, error)
}

// PaymentEventRepository is the webhook idempotency log. Every status
// change is a guarded update that reports whether it won.
type PaymentEventRepository interface {
	CreateIfNotExists(event *models.PaymentEvent) (bool, error)
	GetByID(id uint) (*models.PaymentEvent, error)
	GetByStripeID(stripeEventID string) (*models.PaymentEvent, error)
	MarkSkipped(stripeEventID string) (bool, error)
	Claim(stripeEventID string, reclaim bool) (bool, error)
	MarkProcessed(stripeEventID string) (bool, error)
	RecordError(stripeEventID, message string) error
	MarkFailed(stripeEventID, message string) (bool, error)
	DeleteTerminalBefore(cutoff time.Time) (int64, error)
	CountByStatus() (map[string]int64, error)
}

// CustomerRepository links users to processor customers.
type CustomerRepository interface {
	GetByStripeID(stripeCustomerID string) (*models.Customer, error)
	GetByUserID(userID uint) (*models.Customer, error)
	Ensure(userID uint, stripeCustomerID string) (*models.Customer, error)
}

// SubscriptionRepository mirrors processor subscriptions.
type SubscriptionRepository interface {
	GetByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	Upsert(sub *models.Subscription) (*models.Subscription, error)
	ListExpiring(from, to time.Time) ([]models.Subscription, error)
}

// OrderRepository defines order persistence.
type OrderRepository interface {
	CreateIfNotExists(order *models.Order) (*models.Order, bool, error)
	GetByID(id uint) (*models.Order, error)
	GetByCheckoutSessionID(sessionID string) (*models.Order, error)
	ListByCustomer(customerID uint) ([]models.Order, error)
}

// ProvisioningRepository persists provisioning jobs and their instances.
type ProvisioningRepository interface {
	CreateJobIfNotExists(job *models.ProvisioningJob) (*models.ProvisioningJob, bool, error)
	GetJobByID(id uint) (*models.ProvisioningJob, error)
	GetJobByOrderID(orderID uint) (*models.ProvisioningJob, error)
	ClaimJob(id uint, reclaim bool, now time.Time) (bool, error)
	CompleteJob(id uint, externalID string, payload datatypes.JSON, instance *models.ProvisionedInstance, now time.Time) (bool, error)
	RecordJobError(id uint, message string) error
	FailJob(id uint, message string, now time.Time) (bool, error)
	ListStaleJobs(startedBefore time.Time) ([]models.ProvisioningJob, error)
	FailStaleJob(id uint, startedBefore time.Time, message string, now time.Time) (bool, error)
	GetInstanceByID(id uint) (*models.ProvisionedInstance, error)
	GetInstanceByJobID(jobID uint) (*models.ProvisionedInstance, error)
	UpdateInstanceStatus(id uint, status string) error
	CountInstancesByOrder(orderID uint) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User         UserRepository
	ServicePlan  ServicePlanRepository
	Notification NotificationRepository
	PaymentEvent PaymentEventRepository
	Customer     CustomerRepository
	Subscription SubscriptionRepository
	Order        OrderRepository
	Provisioning ProvisioningRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		ServicePlan:  NewServicePlanRepository(db),
		Notification: NewNotificationRepository(db),
		PaymentEvent: NewPaymentEventRepository(db),
		Customer:     NewCustomerRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Order:        NewOrderRepository(db),
		Provisioning: NewProvisioningRepository(db),
	}
}
