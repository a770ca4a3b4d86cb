package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/app/repository"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
)

type dispatched struct {
	jobType jobqueue.JobType
	payload map[string]interface{}
}

// recordingDispatcher captures dispatched jobs instead of running them.
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

func (d *recordingDispatcher) ofType(jobType jobqueue.JobType) []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dispatched
	for _, j := range d.jobs {
		if j.jobType == jobType {
			out = append(out, j)
		}
	}
	return out
}

// fakeProvider wraps the demo provider and can fail Provision.
type fakeProvider struct {
	*DemoProvider
	mu         sync.Mutex
	failures   int
	calls      int
	terminated []string
}

func newFakeProvider(failures int) *fakeProvider {
	return &fakeProvider{DemoProvider: NewDemoProvider(), failures: failures}
}

func (p *fakeProvider) Provision(ctx context.Context, spec Spec) (*Resource, error) {
	p.mu.Lock()
	p.calls++
	fail := p.failures > 0
	if fail {
		p.failures--
	}
	p.mu.Unlock()
	if fail {
		return nil, errors.New("hypervisor unavailable")
	}
	return p.DemoProvider.Provision(ctx, spec)
}

func (p *fakeProvider) Terminate(ctx context.Context, externalID string) error {
	p.mu.Lock()
	p.terminated = append(p.terminated, externalID)
	p.mu.Unlock()
	return p.DemoProvider.Terminate(ctx, externalID)
}

func (p *fakeProvider) provisionCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fixture struct {
	repos *repository.Repositories
	user  *models.User
	order *models.Order
}

func seedOrder(t *testing.T, tier string) fixture {
	t.Helper()
	db := dbtest.New(t)
	repos := repository.NewRepositories(db)

	user := &models.User{Name: "Jane Doe", Email: "jane@example.com", SubscriptionTier: models.TierFree}
	require.NoError(t, repos.User.Create(user))
	customer, err := repos.Customer.Ensure(user.ID, "cus_1")
	require.NoError(t, err)

	plan := &models.ServicePlan{Slug: "vps-" + tier, Name: "VPS " + tier, TierKey: tier, StripePriceIDMonthly: "price_" + tier, IsActive: true}
	require.NoError(t, repos.ServicePlan.Create(plan))

	session := "cs_" + tier
	order, _, err := repos.Order.CreateIfNotExists(&models.Order{
		CustomerID:              customer.ID,
		ServicePlanID:           &plan.ID,
		Status:                  models.OrderStatusPaid,
		StripeCheckoutSessionID: &session,
	})
	require.NoError(t, err)
	order, err = repos.Order.GetByID(order.ID)
	require.NoError(t, err)

	return fixture{repos: repos, user: user, order: order}
}
