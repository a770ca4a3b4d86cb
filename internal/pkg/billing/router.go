package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/metrics"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/notify"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/utils"
)

// ProcessEvent runs the handler for a stored payment event. Events already
// in a terminal state, and events claimed by a concurrent worker, are left
// alone. A failing handler keeps the event processing so the next attempt
// can reclaim it; on the final attempt the event fails and operators are
// alerted.
func (s *Service) ProcessEvent(ctx context.Context, eventID uint, attempt jobqueue.Attempt) error {
	row, err := s.repos.PaymentEvent.GetByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[EventRouter] Payment event %d not found, dropping", eventID)
			return nil
		}
		return fmt.Errorf("load payment event %d: %w", eventID, err)
	}
	if row.IsTerminal() {
		log.Infof("[EventRouter] Event %s already %s", row.StripeEventID, row.Status)
		return nil
	}

	claimed, err := s.repos.PaymentEvent.Claim(row.StripeEventID, attempt.Retry)
	if err != nil {
		return fmt.Errorf("claim payment event %s: %w", row.StripeEventID, err)
	}
	if !claimed {
		log.Infof("[EventRouter] Event %s claimed elsewhere, skipping", row.StripeEventID)
		return nil
	}

	err = s.route(ctx, row)
	switch {
	case err == nil:
		if _, err := s.repos.PaymentEvent.MarkProcessed(row.StripeEventID); err != nil {
			return fmt.Errorf("mark payment event %s processed: %w", row.StripeEventID, err)
		}
		metrics.PaymentEventsTotal.WithLabelValues(row.EventType, "processed").Inc()
		return nil

	case errors.Is(err, errUnknownReference):
		log.Warnf("[EventRouter] Event %s (%s) dropped: %v", row.StripeEventID, row.EventType, err)
		if _, err := s.repos.PaymentEvent.MarkProcessed(row.StripeEventID); err != nil {
			return fmt.Errorf("mark payment event %s processed: %w", row.StripeEventID, err)
		}
		metrics.PaymentEventsTotal.WithLabelValues(row.EventType, "dropped").Inc()
		return nil
	}

	message := utils.TruncateError(err)
	if attempt.Final || jobqueue.IsPermanent(err) {
		if _, ferr := s.repos.PaymentEvent.MarkFailed(row.StripeEventID, message); ferr != nil {
			log.Errorf("[EventRouter] Could not mark event %s failed: %v", row.StripeEventID, ferr)
		}
		metrics.PaymentEventsTotal.WithLabelValues(row.EventType, "failed").Inc()
		log.Errorf("[EventRouter] Event %s (%s) failed: %v", row.StripeEventID, row.EventType, err)

		alert := notify.EventProcessingFailed(row.StripeEventID, row.EventType, message)
		if aerr := jobqueue.NotifyAdmin(ctx, s.dispatcher, alert.Subject, alert.Body); aerr != nil {
			log.Errorf("[EventRouter] Could not queue admin alert for %s: %v", row.StripeEventID, aerr)
		}
		return err
	}

	if rerr := s.repos.PaymentEvent.RecordError(row.StripeEventID, message); rerr != nil {
		log.Errorf("[EventRouter] Could not record error on event %s: %v", row.StripeEventID, rerr)
	}
	metrics.PaymentEventsTotal.WithLabelValues(row.EventType, "retrying").Inc()
	log.Warnf("[EventRouter] Event %s (%s) failed, will retry: %v", row.StripeEventID, row.EventType, err)
	return err
}

func (s *Service) route(ctx context.Context, row *models.PaymentEvent) error {
	var event stripe.Event
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return jobqueue.Permanent(fmt.Errorf("decode stored event: %w", err))
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return jobqueue.Permanent(errors.New("stored event has no data object"))
	}
	raw := event.Data.Raw

	switch KindOf(row.EventType) {
	case KindCheckoutCompleted:
		var session CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return jobqueue.Permanent(fmt.Errorf("decode checkout session: %w", err))
		}
		return s.handleCheckoutCompleted(ctx, session)

	case KindSubscriptionChanged:
		var sub Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return jobqueue.Permanent(fmt.Errorf("decode subscription: %w", err))
		}
		return s.handleSubscriptionChanged(ctx, sub)

	case KindPaymentFailed:
		var invoice Invoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return jobqueue.Permanent(fmt.Errorf("decode invoice: %w", err))
		}
		return s.handlePaymentFailed(ctx, invoice)

	default:
		return jobqueue.Permanent(fmt.Errorf("no handler for event type %s", row.EventType))
	}
}

// handleCheckoutCompleted records the subscription and order for a paid
// checkout, upgrades the user's tier and schedules provisioning. Every
// write is keyed by a processor id, so a repeated run changes nothing.
func (s *Service) handleCheckoutCompleted(ctx context.Context, session CheckoutSession) error {
	if strings.TrimSpace(session.Customer) == "" {
		return fmt.Errorf("%w: checkout session %s has no customer", errUnknownReference, session.ID)
	}
	customer, err := s.resolveCheckoutCustomer(session)
	if err != nil {
		return err
	}

	var (
		sub     *models.Subscription
		priceID string
	)
	if session.Subscription != "" {
		remote, err := s.processor.GetSubscription(ctx, session.Subscription)
		if err != nil {
			return err
		}
		sub, err = s.upsertSubscription(customer.ID, remote)
		if err != nil {
			return err
		}
		priceID = remote.PriceID()
	}

	plan := s.resolvePlan(session.PlanSlug(), priceID)

	order := &models.Order{
		CustomerID:              customer.ID,
		Status:                  models.OrderStatusPaid,
		StripeCheckoutSessionID: stringPtr(session.ID),
		StripePaymentIntentID:   stringPtr(session.PaymentIntent),
		AmountTotal:             session.AmountTotal,
		Currency:                strings.ToLower(session.Currency),
	}
	if order.Currency == "" {
		order.Currency = "eur"
	}
	if plan != nil {
		order.ServicePlanID = &plan.ID
	}
	if sub != nil {
		order.SubscriptionID = &sub.ID
	}
	order, created, err := s.repos.Order.CreateIfNotExists(order)
	if err != nil {
		return fmt.Errorf("create order for session %s: %w", session.ID, err)
	}
	if created {
		log.Infof("[EventRouter] Created order %d for checkout %s", order.ID, session.ID)
	}
	if order.ServicePlan == nil {
		order.ServicePlan = plan
	}

	if tier := tierForPlan(plan); tier != "" && (sub == nil || sub.IsEntitling()) {
		if err := s.repos.User.UpdateSubscriptionTier(customer.UserID, tier); err != nil {
			return fmt.Errorf("update tier for user %d: %w", customer.UserID, err)
		}
	}

	if job, err := s.provisioner.Schedule(ctx, order); err != nil {
		if job == nil || !s.provisioningStarted(job.ID) {
			return err
		}
		// the inline run owns the job now and alerts on its own failure
		log.Warnf("[EventRouter] Provisioning job %d for order %d: %v", job.ID, order.ID, err)
	}

	msg := notify.CheckoutSucceeded(planName(plan, session.PlanSlug()))
	if err := jobqueue.NotifyUser(ctx, s.dispatcher, customer.UserID, msg.Subject, msg.Body); err != nil {
		log.Errorf("[EventRouter] Could not queue checkout notification for user %d: %v", customer.UserID, err)
	}
	return nil
}

// resolveCheckoutCustomer finds the customer for a session. Sessions for a
// customer created outside this service are linked through the user id in
// the session metadata.
func (s *Service) resolveCheckoutCustomer(session CheckoutSession) (*models.Customer, error) {
	customer, err := s.repos.Customer.GetByStripeID(session.Customer)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load customer %s: %w", session.Customer, err)
	}

	userID := session.UserID()
	if userID == 0 {
		return nil, fmt.Errorf("%w: customer %s", errUnknownReference, session.Customer)
	}
	if _, err := s.repos.User.GetByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", errUnknownReference, userID)
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	linked, err := s.repos.Customer.Ensure(userID, session.Customer)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// user already linked to a different processor customer
		return nil, fmt.Errorf("%w: customer %s conflicts with user %d", errUnknownReference, session.Customer, userID)
	}
	return linked, err
}

// handleSubscriptionChanged mirrors the subscription and adjusts the
// user's tier. Losing access moves the user to the free tier once.
func (s *Service) handleSubscriptionChanged(ctx context.Context, remote Subscription) error {
	customer, err := s.repos.Customer.GetByStripeID(remote.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: customer %s", errUnknownReference, remote.Customer)
		}
		return fmt.Errorf("load customer %s: %w", remote.Customer, err)
	}

	previous := ""
	if existing, err := s.repos.Subscription.GetByStripeID(remote.ID); err == nil {
		previous = existing.Status
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load subscription %s: %w", remote.ID, err)
	}

	sub, err := s.upsertSubscription(customer.ID, &remote)
	if err != nil {
		return err
	}

	switch {
	case sub.IsEntitling():
		if tier := tierForPlan(s.planForPrice(sub.StripePriceID)); tier != "" {
			if err := s.repos.User.UpdateSubscriptionTier(customer.UserID, tier); err != nil {
				return fmt.Errorf("update tier for user %d: %w", customer.UserID, err)
			}
		}

	case models.IsEndedSubscriptionStatus(sub.Status):
		if err := s.repos.User.UpdateSubscriptionTier(customer.UserID, models.TierFree); err != nil {
			return fmt.Errorf("downgrade user %d: %w", customer.UserID, err)
		}
		if previous != sub.Status {
			msg := notify.SubscriptionCanceled(planName(s.planForPrice(sub.StripePriceID), ""))
			if err := jobqueue.NotifyUser(ctx, s.dispatcher, customer.UserID, msg.Subject, msg.Body); err != nil {
				log.Errorf("[EventRouter] Could not queue cancellation notice for user %d: %v", customer.UserID, err)
			}
		}
	}
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, invoice Invoice) error {
	customer, err := s.repos.Customer.GetByStripeID(invoice.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: customer %s", errUnknownReference, invoice.Customer)
		}
		return fmt.Errorf("load customer %s: %w", invoice.Customer, err)
	}

	msg := notify.PaymentFailed(utils.FormatAmount(invoice.AmountDue, invoice.Currency))
	if err := jobqueue.NotifyUser(ctx, s.dispatcher, customer.UserID, msg.Subject, msg.Body); err != nil {
		log.Errorf("[EventRouter] Could not queue payment failure notice for user %d: %v", customer.UserID, err)
	}
	return nil
}

func (s *Service) upsertSubscription(customerID uint, remote *Subscription) (*models.Subscription, error) {
	start, end := remote.Period()
	sub, err := s.repos.Subscription.Upsert(&models.Subscription{
		CustomerID:           customerID,
		StripeSubscriptionID: remote.ID,
		StripePriceID:        remote.PriceID(),
		Status:               normalizeStatus(remote.Status),
		CurrentPeriodStart:   start,
		CurrentPeriodEnd:     end,
		CancelAtPeriodEnd:    remote.CancelAtPeriodEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", remote.ID, err)
	}
	return sub, nil
}

func (s *Service) resolvePlan(slug, priceID string) *models.ServicePlan {
	if slug != "" {
		if plan, err := s.repos.ServicePlan.GetBySlug(slug); err == nil {
			return plan
		}
	}
	return s.planForPrice(priceID)
}

// provisioningStarted reports whether the job has left the queued state.
// A job still queued after a failed dispatch has not run anywhere.
func (s *Service) provisioningStarted(jobID uint) bool {
	job, err := s.repos.Provisioning.GetJobByID(jobID)
	if err != nil {
		log.Errorf("[EventRouter] Could not reload provisioning job %d: %v", jobID, err)
		return false
	}
	return job.Status != models.ProvisioningStatusQueued
}

func stringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
