package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
)

func TestStripeProcessorRequiresKey(t *testing.T) {
	p := NewStripeProcessor(config.Stripe{})

	_, err := p.GetSubscription(context.Background(), "sub_1")
	assert.ErrorIs(t, err, ErrProcessorNotConfigured)
	_, _, err = p.CreateCheckoutSession(context.Background(), CheckoutRequest{})
	assert.ErrorIs(t, err, ErrProcessorNotConfigured)
}

func TestStripeProcessorGetSubscription(t *testing.T) {
	p := &StripeProcessor{apiKey: "sk_test"}
	p.getSubscription = func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
		assert.Equal(t, "sub_1", id)
		assert.NotNil(t, params.Context)
		return &stripe.Subscription{
			ID:                id,
			Status:            stripe.SubscriptionStatusActive,
			CancelAtPeriodEnd: true,
			Customer:          &stripe.Customer{ID: "cus_1"},
			Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
				Price:              &stripe.Price{ID: "price_1"},
				CurrentPeriodStart: 1700000000,
				CurrentPeriodEnd:   1702592000,
			}}},
		}, nil
	}

	sub, err := p.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", sub.Customer)
	assert.Equal(t, "active", sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "price_1", sub.PriceID())
	_, end := sub.Period()
	require.NotNil(t, end)
	assert.Equal(t, int64(1702592000), end.Unix())
}

func TestStripeProcessorCheckoutSession(t *testing.T) {
	p := &StripeProcessor{apiKey: "sk_test"}
	var got *stripe.CheckoutSessionParams
	p.createCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = params
		return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
	}

	id, url, err := p.CreateCheckoutSession(context.Background(), CheckoutRequest{
		CustomerID: "cus_1", PriceID: "price_1", UserID: 42, PlanSlug: "vps-starter",
		SuccessURL: "https://example.test/ok", CancelURL: "https://example.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", id)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", url)

	require.NotNil(t, got)
	assert.Equal(t, "subscription", *got.Mode)
	assert.Equal(t, "cus_1", *got.Customer)
	assert.Equal(t, "42", *got.ClientReferenceID)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, "price_1", *got.LineItems[0].Price)
	assert.Equal(t, "42", got.Metadata["user_id"])
	assert.Equal(t, "vps-starter", got.Metadata["plan_slug"])
	assert.Equal(t, "vps-starter", got.SubscriptionData.Metadata["plan_slug"])
}

func TestStripeProcessorCheckoutWithoutURL(t *testing.T) {
	p := &StripeProcessor{apiKey: "sk_test"}
	p.createCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return &stripe.CheckoutSession{ID: "cs_1"}, nil
	}
	_, _, err := p.CreateCheckoutSession(context.Background(), CheckoutRequest{})
	assert.Error(t, err)
}
