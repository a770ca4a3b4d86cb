package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/app/repository"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
)

const testSecret = "whsec_test_secret"

type dispatched struct {
	jobType jobqueue.JobType
	payload map[string]interface{}
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []dispatched
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, dispatched{jobType: jobType, payload: payload})
	return d.err
}

func (d *recordingDispatcher) notifications(t *testing.T) []jobqueue.NotificationJobPayload {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []jobqueue.NotificationJobPayload
	for _, j := range d.jobs {
		if j.jobType != jobqueue.JobTypeSendNotification {
			continue
		}
		p, err := jobqueue.NotificationJobPayloadFromMap(j.payload)
		require.NoError(t, err)
		out = append(out, *p)
	}
	return out
}

func (d *recordingDispatcher) count(jobType jobqueue.JobType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, j := range d.jobs {
		if j.jobType == jobType {
			n++
		}
	}
	return n
}

type fakeProcessor struct {
	mu            sync.Mutex
	subscriptions map[string]*Subscription
	subErr        error
	subCalls      int
	customers     int
	checkouts     []CheckoutRequest
}

func (p *fakeProcessor) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subCalls++
	if p.subErr != nil {
		return nil, p.subErr
	}
	sub, ok := p.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	return sub, nil
}

func (p *fakeProcessor) CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers++
	return "cus_new", nil
}

func (p *fakeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkouts = append(p.checkouts, req)
	return "cs_new", "https://checkout.stripe.test/cs_new", nil
}

func (p *fakeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.stripe.test/" + customerID, nil
}

type fakeProvisioner struct {
	mu     sync.Mutex
	repo   repository.ProvisioningRepository
	orders []uint
	err    error
	// jobStatus, when set, stores a job for the order in that status and
	// returns it alongside err.
	jobStatus string
}

func (p *fakeProvisioner) Schedule(ctx context.Context, order *models.Order) (*models.ProvisioningJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, order.ID)
	if p.jobStatus == "" {
		return nil, p.err
	}
	job, _, err := p.repo.CreateJobIfNotExists(&models.ProvisioningJob{
		OrderID:  order.ID,
		Provider: "fake",
		Status:   p.jobStatus,
	})
	if err != nil {
		return nil, err
	}
	return job, p.err
}

type fixture struct {
	svc         *Service
	repos       *repository.Repositories
	dispatcher  *recordingDispatcher
	processor   *fakeProcessor
	provisioner *fakeProvisioner
	user        *models.User
	plan        *models.ServicePlan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewRepositories(dbtest.New(t))

	user := &models.User{Name: "Jane Doe", Email: "jane@example.com", SubscriptionTier: models.TierFree}
	require.NoError(t, repos.User.Create(user))
	plan := &models.ServicePlan{
		Slug:                 "vps-starter",
		Name:                 "VPS Starter",
		TierKey:              models.TierStarter,
		StripePriceIDMonthly: "price_starter_m",
		StripePriceIDAnnual:  "price_starter_y",
		IsActive:             true,
	}
	require.NoError(t, repos.ServicePlan.Create(plan))

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	processor := &fakeProcessor{subscriptions: map[string]*Subscription{
		"sub_1": testSubscription("sub_1", "cus_1", models.SubscriptionStatusActive, "price_starter_m", periodEnd),
	}}

	cfg := config.Config{
		App:      config.App{PublicURL: "https://fulfillment.test/"},
		Stripe:   config.Stripe{WebhookSecret: testSecret},
		Schedule: config.Schedule{EventRetentionDays: 90, ExpiryWarningDays: 3},
	}
	d := &recordingDispatcher{}
	prov := &fakeProvisioner{repo: repos.Provisioning}
	return &fixture{
		svc:         NewService(cfg, repos, processor, d, prov),
		repos:       repos,
		dispatcher:  d,
		processor:   processor,
		provisioner: prov,
		user:        user,
		plan:        plan,
	}
}

func (f *fixture) linkCustomer(t *testing.T, stripeID string) *models.Customer {
	t.Helper()
	customer, err := f.repos.Customer.Ensure(f.user.ID, stripeID)
	require.NoError(t, err)
	return customer
}

// deliver ingests a signed event and returns the stored row.
func (f *fixture) deliver(t *testing.T, id, eventType string, object interface{}) *models.PaymentEvent {
	t.Helper()
	payload, header := signedEvent(t, id, eventType, object)
	_, err := f.svc.Ingest(context.Background(), payload, header)
	require.NoError(t, err)
	row, err := f.repos.PaymentEvent.GetByStripeID(id)
	require.NoError(t, err)
	return row
}

func testSubscription(id, customer, status, priceID string, periodEnd int64) *Subscription {
	sub := &Subscription{ID: id, Customer: customer, Status: status}
	item := SubscriptionItem{CurrentPeriodStart: periodEnd - 30*24*3600, CurrentPeriodEnd: periodEnd}
	item.Price.ID = priceID
	sub.Items.Data = []SubscriptionItem{item}
	return sub
}

func signedEvent(t *testing.T, id, eventType string, object interface{}) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return signPayload(body, testSecret)
}

func signPayload(body []byte, secret string) ([]byte, string) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func checkoutObject(session, customer, subscription string, metadata map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"id":             session,
		"object":         "checkout.session",
		"mode":           "subscription",
		"customer":       customer,
		"subscription":   subscription,
		"payment_intent": "pi_" + session,
		"amount_total":   1999,
		"currency":       "eur",
		"metadata":       metadata,
	}
}
