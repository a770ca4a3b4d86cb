package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/app/repository"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/metrics"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/notify"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/utils"
)

// Instance actions accepted by Control.
const (
	ActionStart     = "start"
	ActionStop      = "stop"
	ActionRestart   = "restart"
	ActionTerminate = "terminate"
)

// ErrUnknownAction is returned by Control for an unsupported action.
var ErrUnknownAction = errors.New("unknown instance action")

// Orchestrator drives ProvisioningJob rows through
// queued -> provisioning -> ready|failed.
type Orchestrator struct {
	repo        repository.ProvisioningRepository
	provider    Provider
	dispatcher  jobqueue.Dispatcher
	staleAfter  time.Duration
	callTimeout time.Duration
	now         func() time.Time
}

func NewOrchestrator(repo repository.ProvisioningRepository, provider Provider, dispatcher jobqueue.Dispatcher, cfg config.Provisioning) *Orchestrator {
	o := &Orchestrator{
		repo:        repo,
		provider:    provider,
		dispatcher:  dispatcher,
		staleAfter:  cfg.StaleAfter,
		callTimeout: cfg.CallTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if o.staleAfter <= 0 {
		o.staleAfter = time.Hour
	}
	if o.callTimeout <= 0 {
		o.callTimeout = 5 * time.Minute
	}
	return o
}

// Provider returns the backend in use.
func (o *Orchestrator) Provider() Provider {
	return o.provider
}

// Schedule creates the job for a paid order whose plan includes resources
// and dispatches it. It returns nil without error for plans without
// resources. Redelivered checkouts reuse the existing job and only
// re-dispatch it while it is still queued.
func (o *Orchestrator) Schedule(ctx context.Context, order *models.Order) (*models.ProvisioningJob, error) {
	if !HasResources(order.ServicePlan) {
		return nil, nil
	}

	job, created, err := o.repo.CreateJobIfNotExists(&models.ProvisioningJob{
		OrderID:  order.ID,
		Provider: o.provider.Name(),
		Status:   models.ProvisioningStatusQueued,
	})
	if err != nil {
		return nil, fmt.Errorf("create provisioning job for order %d: %w", order.ID, err)
	}
	if created {
		log.Infof("[Provisioning] Created job %d for order %d", job.ID, order.ID)
	}
	if job.Status != models.ProvisioningStatusQueued {
		return job, nil
	}

	payload := jobqueue.ProvisioningJobPayload{JobID: job.ID}.ToMap()
	if err := o.dispatcher.Dispatch(ctx, jobqueue.JobTypeProvisionResource, payload); err != nil {
		return job, fmt.Errorf("dispatch provisioning job %d: %w", job.ID, err)
	}
	return job, nil
}

// Process runs one attempt of the job. Jobs already ready or failed, and
// jobs claimed by another worker, are left alone. A provider error keeps
// the job provisioning for the next attempt; on the final attempt the job
// fails and operators are alerted.
func (o *Orchestrator) Process(ctx context.Context, jobID uint, attempt jobqueue.Attempt) error {
	job, err := o.repo.GetJobByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Provisioning] Job %d not found, dropping", jobID)
			return nil
		}
		return fmt.Errorf("load provisioning job %d: %w", jobID, err)
	}
	if job.IsTerminal() {
		log.Infof("[Provisioning] Job %d already %s, skipping", job.ID, job.Status)
		return nil
	}

	claimed, err := o.repo.ClaimJob(job.ID, attempt.Retry, o.now())
	if err != nil {
		return fmt.Errorf("claim provisioning job %d: %w", job.ID, err)
	}
	if !claimed {
		log.Infof("[Provisioning] Job %d claimed elsewhere, skipping", job.ID)
		return nil
	}

	spec, err := SpecFor(job.Order)
	if err != nil {
		// The plan cannot change between attempts, so retrying is pointless.
		o.fail(ctx, job, err.Error())
		return jobqueue.Permanent(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	res, err := o.provider.Provision(callCtx, spec)
	cancel()
	if err != nil {
		return o.handleProvisionError(ctx, job, attempt, err)
	}

	instance := &models.ProvisionedInstance{
		OrderID:    job.OrderID,
		CustomerID: job.Order.CustomerID,
		Hostname:   spec.Hostname,
		ExternalID: res.ExternalID,
		IPAddress:  res.IPAddress,
		CPUCores:   spec.CPUCores,
		RAMMB:      spec.RAMMB,
		DiskGB:     spec.DiskGB,
		OSTemplate: spec.OSTemplate,
		Status:     res.Status,
	}
	if instance.Status == "" {
		instance.Status = models.InstanceStatusRunning
	}

	completed, err := o.repo.CompleteJob(job.ID, res.ExternalID, resourcePayload(res), instance, o.now())
	if err != nil {
		o.release(res)
		return o.handleProvisionError(ctx, job, attempt, fmt.Errorf("store instance: %w", err))
	}
	if !completed {
		// The sweep failed the job while the provider was working.
		log.Warnf("[Provisioning] Job %d: %v, releasing %s", job.ID, ErrJobNotProvisioning, res.ExternalID)
		o.release(res)
		return nil
	}

	metrics.ProvisioningTotal.WithLabelValues(o.provider.Name(), "ready").Inc()
	log.Infof("[Provisioning] Job %d ready: %s (%s)", job.ID, instance.Hostname, res.ExternalID)

	if job.Order.Customer != nil {
		msg := notify.ResourceReady(instance.Hostname, instance.IPAddress)
		if err := jobqueue.NotifyUser(ctx, o.dispatcher, job.Order.Customer.UserID, msg.Subject, msg.Body); err != nil {
			log.Errorf("[Provisioning] Could not queue ready notification for job %d: %v", job.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) handleProvisionError(ctx context.Context, job *models.ProvisioningJob, attempt jobqueue.Attempt, cause error) error {
	message := utils.TruncateError(cause)
	if attempt.Final {
		o.fail(ctx, job, message)
		return cause
	}
	if err := o.repo.RecordJobError(job.ID, message); err != nil {
		log.Errorf("[Provisioning] Could not record error on job %d: %v", job.ID, err)
	}
	metrics.ProvisioningTotal.WithLabelValues(o.provider.Name(), "retry").Inc()
	log.Warnf("[Provisioning] Job %d attempt failed, will retry: %v", job.ID, cause)
	return cause
}

func (o *Orchestrator) fail(ctx context.Context, job *models.ProvisioningJob, message string) {
	message = utils.Truncate(message, utils.MaxErrorLength)
	failed, err := o.repo.FailJob(job.ID, message, o.now())
	if err != nil {
		log.Errorf("[Provisioning] Could not mark job %d failed: %v", job.ID, err)
		return
	}
	if !failed {
		return
	}
	metrics.ProvisioningTotal.WithLabelValues(o.provider.Name(), "failed").Inc()
	log.Errorf("[Provisioning] Job %d failed: %s", job.ID, message)

	alert := notify.ProvisioningFailed(job.ID, job.OrderID, o.provider.Name(), message)
	if err := jobqueue.NotifyAdmin(ctx, o.dispatcher, alert.Subject, alert.Body); err != nil {
		log.Errorf("[Provisioning] Could not queue admin alert for job %d: %v", job.ID, err)
	}
}

// release terminates a resource that will not be recorded.
func (o *Orchestrator) release(res *Resource) {
	ctx, cancel := context.WithTimeout(context.Background(), o.callTimeout)
	defer cancel()
	if err := o.provider.Terminate(ctx, res.ExternalID); err != nil {
		log.Errorf("[Provisioning] Could not release orphaned resource %s: %v", res.ExternalID, err)
	}
}

// SweepStale fails jobs that have been provisioning longer than the
// staleness threshold and alerts operators for each of them.
func (o *Orchestrator) SweepStale(ctx context.Context) (int, error) {
	now := o.now()
	cutoff := now.Add(-o.staleAfter)

	jobs, err := o.repo.ListStaleJobs(cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale provisioning jobs: %w", err)
	}

	message := "Timed out after " + humanDuration(o.staleAfter)
	swept := 0
	for _, job := range jobs {
		failed, err := o.repo.FailStaleJob(job.ID, cutoff, message, now)
		if err != nil {
			log.Errorf("[Provisioning] Could not fail stale job %d: %v", job.ID, err)
			continue
		}
		if !failed {
			continue
		}
		swept++
		metrics.ProvisioningTotal.WithLabelValues(job.Provider, "timeout").Inc()
		log.Warnf("[Provisioning] Job %d timed out", job.ID)

		startedAt := now
		if job.StartedAt != nil {
			startedAt = *job.StartedAt
		}
		alert := notify.ProvisioningTimedOut(job.ID, job.OrderID, startedAt)
		if err := jobqueue.NotifyAdmin(ctx, o.dispatcher, alert.Subject, alert.Body); err != nil {
			log.Errorf("[Provisioning] Could not queue timeout alert for job %d: %v", job.ID, err)
		}
	}
	if swept > 0 {
		log.Infof("[Provisioning] Stale sweep failed %d job(s)", swept)
	}
	return swept, nil
}

// Control runs a lifecycle action against a provisioned instance and
// stores the resulting status.
func (o *Orchestrator) Control(ctx context.Context, instanceID uint, action string) (*models.ProvisionedInstance, error) {
	instance, err := o.repo.GetInstanceByID(instanceID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	switch action {
	case ActionStart:
		err = o.provider.Start(callCtx, instance.ExternalID)
	case ActionStop:
		err = o.provider.Stop(callCtx, instance.ExternalID)
	case ActionRestart:
		err = o.provider.Restart(callCtx, instance.ExternalID)
	case ActionTerminate:
		err = o.provider.Terminate(callCtx, instance.ExternalID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err != nil {
		return nil, fmt.Errorf("%s instance %d: %w", action, instance.ID, err)
	}

	status := models.InstanceStatusTerminated
	if action != ActionTerminate {
		status, err = o.provider.Status(callCtx, instance.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("status of instance %d: %w", instance.ID, err)
		}
	}
	if err := o.repo.UpdateInstanceStatus(instance.ID, status); err != nil {
		return nil, err
	}
	instance.Status = status
	log.Infof("[Provisioning] Instance %d %s -> %s", instance.ID, action, status)
	return instance, nil
}

func resourcePayload(res *Resource) datatypes.JSON {
	data := map[string]interface{}{
		"external_id": res.ExternalID,
		"ip_address":  res.IPAddress,
	}
	for k, v := range res.Details {
		data[k] = v
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return raw
}

func humanDuration(d time.Duration) string {
	if d == time.Hour {
		return "1 hour"
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
