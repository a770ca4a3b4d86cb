package provisioning

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/gofiber/fiber/v2/log"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
)

const (
	DockerProviderName = "docker"

	managedLabel   = "fulfillment.managed"
	stopTimeout    = 30
	cleanupTimeout = 30 * time.Second
)

// dockerAPI is the part of *client.Client the provider uses.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// DockerProvider runs each resource as a long-lived container on the local
// daemon, sized with the tier's CPU and memory limits.
type DockerProvider struct {
	cli     dockerAPI
	image   string
	network string
}

// NewDockerProvider connects to the daemon from DOCKER_HOST and friends.
func NewDockerProvider(cfg config.Provisioning) (*DockerProvider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return newDockerProvider(cli, cfg), nil
}

func newDockerProvider(cli dockerAPI, cfg config.Provisioning) *DockerProvider {
	image := cfg.DockerImage
	if image == "" {
		image = "ubuntu:22.04"
	}
	return &DockerProvider{cli: cli, image: image, network: cfg.DockerNetwork}
}

func (p *DockerProvider) Name() string { return DockerProviderName }

func (p *DockerProvider) Provision(ctx context.Context, spec Spec) (*Resource, error) {
	resp, err := p.create(ctx, spec)
	if errdefs.IsConflict(err) {
		// an earlier failed attempt left a container holding the name
		log.Warnf("[Provisioning] docker: %s already exists, replacing it", spec.Hostname)
		p.discard(ctx, spec.Hostname, "stale")
		resp, err = p.create(ctx, spec)
	}
	if err != nil {
		return nil, fmt.Errorf("create container %s: %w", spec.Hostname, err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.discard(ctx, resp.ID, "failed start")
		return nil, fmt.Errorf("start container %s: %w", spec.Hostname, err)
	}

	inspect, err := p.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.discard(ctx, resp.ID, "failed inspect")
		return nil, fmt.Errorf("inspect container %s: %w", spec.Hostname, err)
	}

	log.Infof("[Provisioning] docker: started %s (%s)", spec.Hostname, shortID(resp.ID))
	return &Resource{
		ExternalID: resp.ID,
		IPAddress:  p.ipAddress(inspect),
		Status:     mapContainerState(inspect.State),
		Details: map[string]interface{}{
			"image":    p.image,
			"hostname": spec.Hostname,
			"warnings": resp.Warnings,
		},
	}, nil
}

func (p *DockerProvider) create(ctx context.Context, spec Spec) (container.CreateResponse, error) {
	return p.cli.ContainerCreate(ctx,
		p.containerConfig(spec),
		hostConfig(spec),
		p.networkingConfig(),
		nil,
		spec.Hostname,
	)
}

// discard force-removes a container that must not outlive a failed
// Provision. It runs even when ctx has already expired.
func (p *DockerProvider) discard(ctx context.Context, ref, reason string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	err := p.cli.ContainerRemove(cleanupCtx, ref, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		log.Warnf("[Provisioning] docker: could not remove %s after %s: %v", shortID(ref), reason, err)
	}
}

func (p *DockerProvider) Start(ctx context.Context, externalID string) error {
	return p.wrap(externalID, p.cli.ContainerStart(ctx, externalID, container.StartOptions{}))
}

func (p *DockerProvider) Stop(ctx context.Context, externalID string) error {
	timeout := stopTimeout
	return p.wrap(externalID, p.cli.ContainerStop(ctx, externalID, container.StopOptions{Timeout: &timeout}))
}

func (p *DockerProvider) Restart(ctx context.Context, externalID string) error {
	timeout := stopTimeout
	return p.wrap(externalID, p.cli.ContainerRestart(ctx, externalID, container.StopOptions{Timeout: &timeout}))
}

// Terminate stops and removes the container. A missing container counts as terminated.
func (p *DockerProvider) Terminate(ctx context.Context, externalID string) error {
	if err := p.Stop(ctx, externalID); err != nil && !errdefs.IsNotFound(err) {
		log.Warnf("[Provisioning] docker: failed to stop %s, forcing remove: %v", shortID(externalID), err)
	}
	err := p.cli.ContainerRemove(ctx, externalID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", shortID(externalID), err)
	}
	return nil
}

func (p *DockerProvider) Status(ctx context.Context, externalID string) (string, error) {
	inspect, err := p.cli.ContainerInspect(ctx, externalID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return models.InstanceStatusTerminated, nil
		}
		return "", fmt.Errorf("inspect container %s: %w", shortID(externalID), err)
	}
	return mapContainerState(inspect.State), nil
}

func (p *DockerProvider) containerConfig(spec Spec) *container.Config {
	labels := map[string]string{
		managedLabel:              "true",
		"fulfillment.hostname":    spec.Hostname,
		"fulfillment.os_template": spec.OSTemplate,
		"fulfillment.disk_gb":     strconv.Itoa(spec.DiskGB),
	}
	for k, v := range spec.Labels {
		labels["fulfillment."+k] = v
	}
	return &container.Config{
		Image:    p.image,
		Hostname: spec.Hostname,
		Labels:   labels,
		Cmd:      []string{"sleep", "infinity"},
	}
}

func hostConfig(spec Spec) *container.HostConfig {
	return &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
		Resources: container.Resources{
			NanoCPUs: int64(spec.CPUCores) * 1_000_000_000,
			Memory:   int64(spec.RAMMB) * 1024 * 1024,
		},
	}
}

func (p *DockerProvider) networkingConfig() *network.NetworkingConfig {
	if p.network == "" {
		return nil
	}
	return &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			p.network: {},
		},
	}
}

func (p *DockerProvider) ipAddress(inspect container.InspectResponse) string {
	if inspect.NetworkSettings == nil {
		return ""
	}
	if p.network != "" {
		if ep, ok := inspect.NetworkSettings.Networks[p.network]; ok && ep != nil {
			return ep.IPAddress
		}
	}
	for _, ep := range inspect.NetworkSettings.Networks {
		if ep != nil && ep.IPAddress != "" {
			return ep.IPAddress
		}
	}
	return ""
}

func (p *DockerProvider) wrap(externalID string, err error) error {
	if err == nil {
		return nil
	}
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, shortID(externalID))
	}
	return err
}

// mapContainerState converts a docker state to an instance status.
func mapContainerState(state *container.State) string {
	if state == nil {
		return models.InstanceStatusError
	}
	switch string(state.Status) {
	case "created", "restarting":
		return models.InstanceStatusProvisioning
	case "running":
		return models.InstanceStatusRunning
	case "paused":
		return models.InstanceStatusSuspended
	case "exited":
		return models.InstanceStatusStopped
	case "removing":
		return models.InstanceStatusTerminated
	default:
		return models.InstanceStatusError
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
