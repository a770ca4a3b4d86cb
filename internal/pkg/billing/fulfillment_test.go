package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/app/repository"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/notify"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/provisioning"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/tasks"
)

type recordingChannel struct {
	mu    sync.Mutex
	sends []notify.Message
}

func (c *recordingChannel) Name() string       { return models.ChannelEmail }
func (c *recordingChannel) IsConfigured() bool { return true }
func (c *recordingChannel) Send(ctx context.Context, recipient string, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, msg)
	return nil
}

type pipeline struct {
	db      *gorm.DB
	svc     *Service
	channel *recordingChannel
}

// newPipeline wires the service, orchestrator and notifier to a queue
// without redis, so every dispatch runs inline.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	db := dbtest.New(t)
	repos := repository.NewRepositories(db)

	user := &models.User{Name: "Jane Doe", Email: "jane@example.com", SubscriptionTier: models.TierFree}
	require.NoError(t, repos.User.Create(user))
	require.NoError(t, repos.ServicePlan.Create(&models.ServicePlan{
		Slug:                 "vps-starter",
		Name:                 "VPS Starter",
		TierKey:              models.TierStarter,
		StripePriceIDMonthly: "price_starter_m",
		IsActive:             true,
	}))
	_, err := repos.Customer.Ensure(user.ID, "cus_1")
	require.NoError(t, err)

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	processor := &fakeProcessor{subscriptions: map[string]*Subscription{
		"sub_1": testSubscription("sub_1", "cus_1", models.SubscriptionStatusActive, "price_starter_m", periodEnd),
	}}

	queue := jobqueue.NewQueueWithClient(nil, 1)
	orchestrator := provisioning.NewOrchestrator(repos.Provisioning, provisioning.NewDemoProvider(), queue, config.Provisioning{
		StaleAfter:  time.Hour,
		CallTimeout: 5 * time.Second,
	})
	cfg := config.Config{
		App:      config.App{PublicURL: "https://fulfillment.test/"},
		Stripe:   config.Stripe{WebhookSecret: testSecret},
		Schedule: config.Schedule{EventRetentionDays: 90, ExpiryWarningDays: 3},
	}
	svc := NewService(cfg, repos, processor, queue, orchestrator)

	channel := &recordingChannel{}
	notifier := notify.NewDispatcher(config.Notify{DefaultChannel: models.ChannelEmail}, repos.User, repos.Notification, channel)
	tasks.Register(queue, tasks.Handlers{Events: svc, Provisioning: orchestrator, Notifier: notifier})

	return &pipeline{db: db, svc: svc, channel: channel}
}

func (p *pipeline) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, p.db.Model(model).Count(&n).Error)
	return n
}

func TestCheckoutFulfilledEndToEnd(t *testing.T) {
	p := newPipeline(t)

	payload, header := signedEvent(t, "evt_1", "checkout.session.completed",
		checkoutObject("cs_1", "cus_1", "sub_1", map[string]string{"plan_slug": "vps-starter"}))
	res, err := p.svc.Ingest(context.Background(), payload, header)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	var event models.PaymentEvent
	require.NoError(t, p.db.Where("stripe_event_id = ?", "evt_1").First(&event).Error)
	assert.Equal(t, models.PaymentEventStatusProcessed, event.Status)

	var order models.Order
	require.NoError(t, p.db.First(&order).Error)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.EqualValues(t, 1, p.count(t, &models.Order{}))

	var sub models.Subscription
	require.NoError(t, p.db.First(&sub).Error)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	var job models.ProvisioningJob
	require.NoError(t, p.db.Where("order_id = ?", order.ID).First(&job).Error)
	assert.Equal(t, models.ProvisioningStatusReady, job.Status)

	var instances []models.ProvisionedInstance
	require.NoError(t, p.db.Find(&instances).Error)
	require.Len(t, instances, 1)
	assert.Equal(t, 1, instances[0].CPUCores)
	assert.Equal(t, 1024, instances[0].RAMMB)
	assert.Equal(t, 20, instances[0].DiskGB)
	assert.Equal(t, models.InstanceStatusRunning, instances[0].Status)

	var logs []models.NotificationLog
	require.NoError(t, p.db.Where("subject = ?", "Subscription activated").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, "jane@example.com", logs[0].Recipient)

	subjects := make([]string, 0, len(p.channel.sends))
	for _, msg := range p.channel.sends {
		subjects = append(subjects, msg.Subject)
	}
	assert.ElementsMatch(t, []string{"Subscription activated", "Your server is ready"}, subjects)
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	p := newPipeline(t)
	payload, header := signedEvent(t, "evt_1", "checkout.session.completed",
		checkoutObject("cs_1", "cus_1", "sub_1", map[string]string{"plan_slug": "vps-starter"}))

	const deliveries = 4
	results := make([]*IngestResult, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.svc.Ingest(context.Background(), payload, header)
		}(i)
	}
	wg.Wait()

	duplicates := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, deliveries-1, duplicates)

	assert.EqualValues(t, 1, p.count(t, &models.PaymentEvent{}))
	assert.EqualValues(t, 1, p.count(t, &models.Order{}))
	assert.EqualValues(t, 1, p.count(t, &models.ProvisionedInstance{}))

	var activated int64
	require.NoError(t, p.db.Model(&models.NotificationLog{}).Where("subject = ?", "Subscription activated").Count(&activated).Error)
	assert.EqualValues(t, 1, activated)
}
