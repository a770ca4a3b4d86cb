package provisioning

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/Fulfillment/app/models"
)

const DemoProviderName = "demo"

// DemoProvider keeps resources in memory. It is the default backend for
// development and tests.
type DemoProvider struct {
	mu        sync.Mutex
	resources map[string]*Resource
}

func NewDemoProvider() *DemoProvider {
	return &DemoProvider{resources: make(map[string]*Resource)}
}

func (p *DemoProvider) Name() string { return DemoProviderName }

func (p *DemoProvider) Provision(ctx context.Context, spec Spec) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Resource{
		ExternalID: "demo-" + uuid.New().String(),
		IPAddress:  fmt.Sprintf("10.0.%d.%d", rand.Intn(256), 2+rand.Intn(252)),
		Status:     models.InstanceStatusRunning,
		Details: map[string]interface{}{
			"hostname": spec.Hostname,
			"os":       spec.OSTemplate,
		},
	}

	p.mu.Lock()
	p.resources[res.ExternalID] = res
	p.mu.Unlock()

	log.Infof("[Provisioning] demo: created %s (%s) at %s", spec.Hostname, res.ExternalID, res.IPAddress)
	copied := *res
	return &copied, nil
}

func (p *DemoProvider) Start(ctx context.Context, externalID string) error {
	return p.setStatus(externalID, models.InstanceStatusRunning)
}

func (p *DemoProvider) Stop(ctx context.Context, externalID string) error {
	return p.setStatus(externalID, models.InstanceStatusStopped)
}

func (p *DemoProvider) Restart(ctx context.Context, externalID string) error {
	return p.setStatus(externalID, models.InstanceStatusRunning)
}

func (p *DemoProvider) Terminate(ctx context.Context, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.resources[externalID]; !ok {
		return ErrResourceNotFound
	}
	delete(p.resources, externalID)
	return nil
}

func (p *DemoProvider) Status(ctx context.Context, externalID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.resources[externalID]
	if !ok {
		return models.InstanceStatusTerminated, nil
	}
	return res.Status, nil
}

func (p *DemoProvider) setStatus(externalID, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.resources[externalID]
	if !ok {
		return ErrResourceNotFound
	}
	res.Status = status
	return nil
}
