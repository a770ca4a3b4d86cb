// Package billing ingests payment processor webhooks into the payment event
// log and routes stored events to their handlers.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/app/repository"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/notify"
)

var (
	ErrUnknownPlan      = errors.New("unknown service plan")
	ErrNoCustomer       = errors.New("user has no billing customer")
	ErrPlanHasNoPrice   = errors.New("service plan has no price for this interval")
	ErrInvalidUserID    = errors.New("invalid user id")
	errUnknownReference = errors.New("unknown foreign reference")
)

// Provisioner schedules infrastructure for a paid order.
type Provisioner interface {
	Schedule(ctx context.Context, order *models.Order) (*models.ProvisioningJob, error)
}

// IngestResult describes what happened to one webhook delivery.
type IngestResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Ignored   bool
}

type Service struct {
	repos         *repository.Repositories
	processor     Processor
	dispatcher    jobqueue.Dispatcher
	provisioner   Provisioner
	webhookSecret string
	publicURL     string
	warningWindow time.Duration
	retention     time.Duration
	now           func() time.Time
}

func NewService(cfg config.Config, repos *repository.Repositories, processor Processor, dispatcher jobqueue.Dispatcher, provisioner Provisioner) *Service {
	warningDays := cfg.Schedule.ExpiryWarningDays
	if warningDays <= 0 {
		warningDays = 3
	}
	retentionDays := cfg.Schedule.EventRetentionDays
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Service{
		repos:         repos,
		processor:     processor,
		dispatcher:    dispatcher,
		provisioner:   provisioner,
		webhookSecret: cfg.Stripe.WebhookSecret,
		publicURL:     strings.TrimRight(cfg.App.PublicURL, "/"),
		warningWindow: time.Duration(warningDays) * 24 * time.Hour,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Ingest verifies a webhook delivery, records it in the payment event log
// and hands handled event types to the dispatcher. Duplicates are detected
// by the unique event id on insert, never by a prior lookup.
func (s *Service) Ingest(ctx context.Context, payload []byte, signatureHeader string) (*IngestResult, error) {
	event, err := VerifyEvent(payload, signatureHeader, s.webhookSecret)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{EventID: event.ID, EventType: string(event.Type)}
	row := &models.PaymentEvent{
		StripeEventID: event.ID,
		EventType:     string(event.Type),
		Status:        models.PaymentEventStatusReceived,
		Payload:       datatypes.JSON(payload),
	}
	created, err := s.repos.PaymentEvent.CreateIfNotExists(row)
	if err != nil {
		return nil, fmt.Errorf("record payment event %s: %w", event.ID, err)
	}
	if !created {
		log.Infof("[Webhook] Duplicate delivery of %s (%s)", event.ID, event.Type)
		result.Duplicate = true
		return result, nil
	}

	if !KindOf(result.EventType).Handled() {
		if _, err := s.repos.PaymentEvent.MarkSkipped(event.ID); err != nil {
			return nil, fmt.Errorf("skip payment event %s: %w", event.ID, err)
		}
		result.Ignored = true
		return result, nil
	}

	if err := s.dispatcher.Dispatch(ctx, jobqueue.JobTypeProcessPaymentEvent, jobqueue.PaymentEventJobPayload{EventID: row.ID}.ToMap()); err != nil {
		return nil, fmt.Errorf("dispatch payment event %s: %w", event.ID, err)
	}
	return result, nil
}

// EnsureCustomer returns the user's customer, creating it at the processor
// on first use.
func (s *Service) EnsureCustomer(ctx context.Context, userID uint) (*models.Customer, error) {
	if userID == 0 {
		return nil, ErrInvalidUserID
	}
	existing, err := s.repos.Customer.GetByUserID(userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user, err := s.repos.User.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	stripeID, err := s.processor.CreateCustomer(ctx, user.Email, user.Name, user.ID)
	if err != nil {
		return nil, err
	}
	return s.repos.Customer.Ensure(user.ID, stripeID)
}

// CreateCheckoutSession starts a subscription checkout for planSlug and
// returns the hosted checkout URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, planSlug string, annual bool) (string, error) {
	plan, err := s.repos.ServicePlan.GetBySlug(strings.TrimSpace(planSlug))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnknownPlan
		}
		return "", err
	}
	if !plan.IsActive {
		return "", ErrUnknownPlan
	}
	priceID := plan.PriceID(annual)
	if priceID == "" {
		return "", ErrPlanHasNoPrice
	}

	customer, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	_, url, err := s.processor.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customer.StripeCustomerID,
		PriceID:    priceID,
		UserID:     userID,
		PlanSlug:   plan.Slug,
		SuccessURL: s.publicURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.publicURL + "/billing/cancel",
	})
	return url, err
}

// CreatePortalSession returns a billing portal URL for an existing customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID uint) (string, error) {
	customer, err := s.repos.Customer.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoCustomer
		}
		return "", err
	}
	return s.processor.CreatePortalSession(ctx, customer.StripeCustomerID, s.publicURL+"/billing")
}

// CheckExpiringSubscriptions reminds users whose subscriptions end within
// the warning window and will not renew. Users reminded within the window
// are skipped.
func (s *Service) CheckExpiringSubscriptions(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.repos.Subscription.ListExpiring(now, now.Add(s.warningWindow))
	if err != nil {
		return 0, fmt.Errorf("list expiring subscriptions: %w", err)
	}

	sent := 0
	for _, sub := range subs {
		if sub.Customer == nil || sub.CurrentPeriodEnd == nil {
			continue
		}
		userID := sub.Customer.UserID
		recent, err := s.repos.Notification.HasRecentLog(userID, notify.SubjectSubscriptionExpiring, now.Add(-s.warningWindow))
		if err != nil {
			log.Errorf("[Billing] Could not check reminder log for user %d: %v", userID, err)
			continue
		}
		if recent {
			continue
		}

		name := planName(s.planForPrice(sub.StripePriceID), "")
		msg := notify.SubscriptionExpiring(name, *sub.CurrentPeriodEnd)
		if err := jobqueue.NotifyUser(ctx, s.dispatcher, userID, msg.Subject, msg.Body); err != nil {
			log.Errorf("[Billing] Could not queue expiry reminder for user %d: %v", userID, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		log.Infof("[Billing] Sent %d subscription expiry reminders", sent)
	}
	return sent, nil
}

// PruneEvents deletes processed and skipped events older than the retention period.
func (s *Service) PruneEvents(ctx context.Context) (int64, error) {
	deleted, err := s.repos.PaymentEvent.DeleteTerminalBefore(s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("prune payment events: %w", err)
	}
	if deleted > 0 {
		log.Infof("[Billing] Pruned %d payment events", deleted)
	}
	return deleted, nil
}

func (s *Service) planForPrice(priceID string) *models.ServicePlan {
	if priceID == "" {
		return nil
	}
	plan, err := s.repos.ServicePlan.GetByPriceID(priceID)
	if err != nil {
		return nil
	}
	return plan
}
