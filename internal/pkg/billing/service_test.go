package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/notify"
)

func TestIngestRecordsAndDispatchesHandledEvent(t *testing.T) {
	f := newFixture(t)
	payload, header := signedEvent(t, "evt_1", "checkout.session.completed", checkoutObject("cs_1", "cus_1", "sub_1", nil))

	result, err := f.svc.Ingest(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", result.EventID)
	assert.False(t, result.Duplicate)
	assert.False(t, result.Ignored)

	row, err := f.repos.PaymentEvent.GetByStripeID("evt_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentEventStatusReceived, row.Status)
	assert.JSONEq(t, string(payload), string(row.Payload))

	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, jobqueue.JobTypeProcessPaymentEvent, f.dispatcher.jobs[0].jobType)
	p, err := jobqueue.PaymentEventJobPayloadFromMap(f.dispatcher.jobs[0].payload)
	require.NoError(t, err)
	assert.Equal(t, row.ID, p.EventID)
}

func TestIngestDuplicateIsAcceptedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	payload, header := signedEvent(t, "evt_dup", "invoice.payment_failed", map[string]interface{}{"id": "in_1", "customer": "cus_1"})

	first, err := f.svc.Ingest(context.Background(), payload, header)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.svc.Ingest(context.Background(), payload, header)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.Equal(t, 1, f.dispatcher.count(jobqueue.JobTypeProcessPaymentEvent))
}

func TestIngestSkipsUnhandledTypes(t *testing.T) {
	f := newFixture(t)
	payload, header := signedEvent(t, "evt_paid", "invoice.paid", map[string]interface{}{"id": "in_1"})

	result, err := f.svc.Ingest(context.Background(), payload, header)
	require.NoError(t, err)
	assert.True(t, result.Ignored)

	row, err := f.repos.PaymentEvent.GetByStripeID("evt_paid")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentEventStatusSkipped, row.Status)
	assert.NotNil(t, row.ProcessedAt)
	assert.Empty(t, f.dispatcher.jobs)
}

func TestIngestRejectsBadSignatureWithoutState(t *testing.T) {
	f := newFixture(t)
	payload, _ := signedEvent(t, "evt_bad", "checkout.session.completed", map[string]interface{}{"id": "cs_1"})
	_, header := signPayload(payload, "whsec_attacker")

	_, err := f.svc.Ingest(context.Background(), payload, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = f.repos.PaymentEvent.GetByStripeID("evt_bad")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, f.dispatcher.jobs)
}

func TestIngestPropagatesFallbackFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("inline run failed")
	payload, header := signedEvent(t, "evt_1", "invoice.payment_failed", map[string]interface{}{"id": "in_1", "customer": "cus_1"})

	_, err := f.svc.Ingest(context.Background(), payload, header)
	assert.Error(t, err)

	row, err := f.repos.PaymentEvent.GetByStripeID("evt_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentEventStatusReceived, row.Status)
}

func TestEnsureCustomerCreatesOnce(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.EnsureCustomer(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", first.StripeCustomerID)

	second, err := f.svc.EnsureCustomer(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.processor.customers)

	_, err = f.svc.EnsureCustomer(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newFixture(t)

	url, err := f.svc.CreateCheckoutSession(context.Background(), f.user.ID, "vps-starter", true)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_new", url)

	require.Len(t, f.processor.checkouts, 1)
	req := f.processor.checkouts[0]
	assert.Equal(t, "price_starter_y", req.PriceID)
	assert.Equal(t, "cus_new", req.CustomerID)
	assert.Equal(t, "vps-starter", req.PlanSlug)
	assert.Equal(t, f.user.ID, req.UserID)
	assert.Equal(t, "https://fulfillment.test/billing/cancel", req.CancelURL)

	_, err = f.svc.CreateCheckoutSession(context.Background(), f.user.ID, "does-not-exist", false)
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestCreatePortalSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePortalSession(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, ErrNoCustomer)

	f.linkCustomer(t, "cus_1")
	url, err := f.svc.CreatePortalSession(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/cus_1", url)
}

func TestCheckExpiringSubscriptionsRemindsOnce(t *testing.T) {
	f := newFixture(t)
	customer := f.linkCustomer(t, "cus_1")

	now := time.Now().UTC()
	soon := now.Add(48 * time.Hour)
	later := now.Add(20 * 24 * time.Hour)
	for _, sub := range []*models.Subscription{
		{CustomerID: customer.ID, StripeSubscriptionID: "sub_soon", StripePriceID: "price_starter_m", Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &soon, CancelAtPeriodEnd: true},
		{CustomerID: customer.ID, StripeSubscriptionID: "sub_renews", StripePriceID: "price_starter_m", Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &soon},
		{CustomerID: customer.ID, StripeSubscriptionID: "sub_later", StripePriceID: "price_starter_m", Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &later, CancelAtPeriodEnd: true},
	} {
		_, err := f.repos.Subscription.Upsert(sub)
		require.NoError(t, err)
	}

	sent, err := f.svc.CheckExpiringSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	notes := f.dispatcher.notifications(t)
	require.Len(t, notes, 1)
	assert.Equal(t, f.user.ID, notes[0].UserID)
	assert.Equal(t, notify.SubjectSubscriptionExpiring, notes[0].Subject)
	assert.Contains(t, notes[0].Body, "VPS Starter")

	// The send job writes the log row; once it exists the user is not reminded again.
	uid := f.user.ID
	require.NoError(t, f.repos.Notification.CreateLog(&models.NotificationLog{
		UserID: &uid, Channel: models.ChannelEmail, Subject: notify.SubjectSubscriptionExpiring,
		Recipient: f.user.Email, Success: true,
	}))

	sent, err = f.svc.CheckExpiringSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestPruneEvents(t *testing.T) {
	f := newFixture(t)
	f.deliver(t, "evt_old", "invoice.paid", map[string]interface{}{"id": "in_1"})
	f.deliver(t, "evt_pending", "invoice.payment_failed", map[string]interface{}{"id": "in_2", "customer": "cus_1"})

	f.svc.now = func() time.Time { return time.Now().UTC().Add(91 * 24 * time.Hour) }
	deleted, err := f.svc.PruneEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = f.repos.PaymentEvent.GetByStripeID("evt_old")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = f.repos.PaymentEvent.GetByStripeID("evt_pending")
	assert.NoError(t, err)
}
