package billing

import (
	"strconv"
	"strings"
	"time"
)

// EventKind is the closed set of processor events the router acts on.
type EventKind int

const (
	KindUnhandled EventKind = iota
	KindCheckoutCompleted
	KindSubscriptionChanged
	KindPaymentFailed
)

// KindOf classifies a processor event type.
func KindOf(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return KindCheckoutCompleted
	case "customer.subscription.updated", "customer.subscription.deleted":
		return KindSubscriptionChanged
	case "invoice.payment_failed":
		return KindPaymentFailed
	default:
		return KindUnhandled
	}
}

func (k EventKind) String() string {
	switch k {
	case KindCheckoutCompleted:
		return "checkout_completed"
	case KindSubscriptionChanged:
		return "subscription_changed"
	case KindPaymentFailed:
		return "payment_failed"
	default:
		return "unhandled"
	}
}

// Handled reports whether events of this kind are routed to a handler.
func (k EventKind) Handled() bool {
	return k != KindUnhandled
}

// CheckoutSession is the part of a checkout.session object the router reads.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	PaymentIntent     string            `json:"payment_intent"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// UserID returns the local user id carried in metadata or the client
// reference id, or 0.
func (s CheckoutSession) UserID() uint {
	for _, raw := range []string{s.Metadata["user_id"], s.ClientReferenceID} {
		if id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64); err == nil && id > 0 {
			return uint(id)
		}
	}
	return 0
}

// PlanSlug returns the plan slug from metadata.
func (s CheckoutSession) PlanSlug() string {
	return strings.TrimSpace(s.Metadata["plan_slug"])
}

// Subscription is a processor subscription object. Period bounds live on
// the subscription items.
type Subscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

type SubscriptionItem struct {
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

// PriceID returns the price of the first item.
func (s Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// Period returns the current period of the first item.
func (s Subscription) Period() (start, end *time.Time) {
	if len(s.Items.Data) == 0 {
		return nil, nil
	}
	return unixTime(s.Items.Data[0].CurrentPeriodStart), unixTime(s.Items.Data[0].CurrentPeriodEnd)
}

// Invoice is the part of an invoice object the router reads.
type Invoice struct {
	ID        string `json:"id"`
	Customer  string `json:"customer"`
	AmountDue int64  `json:"amount_due"`
	Currency  string `json:"currency"`
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
