package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
)

// ErrProcessorNotConfigured is returned when no API key is set.
var ErrProcessorNotConfigured = errors.New("payment processor API key not configured")

// CheckoutRequest describes a subscription checkout for one plan.
type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	UserID     uint
	PlanSlug   string
	SuccessURL string
	CancelURL  string
}

// Processor is the synchronous side of the payment processor.
type Processor interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (id, url string, err error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeProcessor calls the Stripe API. The function fields default to the
// stripe-go package functions and are swapped in tests.
type StripeProcessor struct {
	apiKey string

	getSubscription       func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	createCustomer        func(params *stripe.CustomerParams) (*stripe.Customer, error)
	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	createPortalSession   func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

func NewStripeProcessor(cfg config.Stripe) *StripeProcessor {
	key := strings.TrimSpace(cfg.SecretKey)
	if key != "" {
		stripe.Key = key
	}
	return &StripeProcessor{
		apiKey:                key,
		getSubscription:       subscription.Get,
		createCustomer:        customer.New,
		createCheckoutSession: checkoutsession.New,
		createPortalSession:   portalsession.New,
	}
}

func (p *StripeProcessor) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if p.apiKey == "" {
		return nil, ErrProcessorNotConfigured
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.getSubscription(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", id, err)
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error) {
	if p.apiKey == "" {
		return "", ErrProcessorNotConfigured
	}
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatUint(uint64(userID), 10))
	params.SetIdempotencyKey(fmt.Sprintf("customer-user-%d", userID))

	c, err := p.createCustomer(params)
	if err != nil {
		return "", fmt.Errorf("create customer for user %d: %w", userID, err)
	}
	return c.ID, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, string, error) {
	if p.apiKey == "" {
		return "", "", ErrProcessorNotConfigured
	}
	userID := strconv.FormatUint(uint64(req.UserID), 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(req.CustomerID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id":   userID,
				"plan_slug": req.PlanSlug,
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.AddMetadata("plan_slug", req.PlanSlug)

	session, err := p.createCheckoutSession(params)
	if err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return "", "", errors.New("checkout session has no url")
	}
	return session.ID, session.URL, nil
}

func (p *StripeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if p.apiKey == "" {
		return "", ErrProcessorNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := p.createPortalSession(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return session.URL, nil
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.Customer = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			var si SubscriptionItem
			if item.Price != nil {
				si.Price.ID = item.Price.ID
			}
			si.CurrentPeriodStart = item.CurrentPeriodStart
			si.CurrentPeriodEnd = item.CurrentPeriodEnd
			out.Items.Data = append(out.Items.Data, si)
		}
	}
	return out
}
