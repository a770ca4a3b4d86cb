// Package provisioning creates infrastructure for paid orders.
//
// Backends implement Provider and are selected by key through New. The
// Orchestrator drives the ProvisioningJob state machine on top of a
// Provider without knowing which backend it talks to.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
)

var (
	// ErrUnknownProvider is returned by New for an unregistered key.
	ErrUnknownProvider = errors.New("unknown provisioning provider")
	// ErrResourceNotFound is returned for an external id the backend does not know.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrJobNotProvisioning means the job left the provisioning state while
	// the provider call was running.
	ErrJobNotProvisioning = errors.New("provisioning job is no longer provisioning")
)

// Spec describes the resource to create.
type Spec struct {
	Hostname   string
	CPUCores   int
	RAMMB      int
	DiskGB     int
	OSTemplate string
	Labels     map[string]string
}

// Resource is what a backend reports after provisioning.
type Resource struct {
	ExternalID string
	IPAddress  string
	Status     string
	Details    map[string]interface{}
}

// Provider is an infrastructure backend. Status values are the
// models.InstanceStatus* constants.
type Provider interface {
	Name() string
	Provision(ctx context.Context, spec Spec) (*Resource, error)
	Start(ctx context.Context, externalID string) error
	Stop(ctx context.Context, externalID string) error
	Restart(ctx context.Context, externalID string) error
	Terminate(ctx context.Context, externalID string) error
	Status(ctx context.Context, externalID string) (string, error)
}

// Factory builds a provider from configuration.
type Factory func(cfg config.Provisioning) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		DemoProviderName:   func(config.Provisioning) (Provider, error) { return NewDemoProvider(), nil },
		DockerProviderName: func(cfg config.Provisioning) (Provider, error) { return NewDockerProvider(cfg) },
	}
)

// Register adds or replaces a provider factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New returns the provider registered under cfg.Provider.
func New(cfg config.Provisioning) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownProvider, cfg.Provider, Available())
	}
	return factory(cfg)
}

// Available lists registered provider keys.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
