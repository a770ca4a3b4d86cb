// Package tasks binds job types to the billing, provisioning and notify
// handlers and schedules the periodic jobs.
package tasks

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/notify"
)

type EventProcessor interface {
	ProcessEvent(ctx context.Context, eventID uint, attempt jobqueue.Attempt) error
	CheckExpiringSubscriptions(ctx context.Context) (int, error)
	PruneEvents(ctx context.Context) (int64, error)
}

type Provisioner interface {
	Process(ctx context.Context, jobID uint, attempt jobqueue.Attempt) error
	SweepStale(ctx context.Context) (int, error)
}

type Notifier interface {
	NotifyUser(ctx context.Context, userID uint, msg notify.Message, channels ...string) notify.Result
	NotifyAdmin(ctx context.Context, msg notify.Message) notify.Result
}

// Registrar is implemented by *jobqueue.Queue.
type Registrar interface {
	RegisterHandler(jobType jobqueue.JobType, fn jobqueue.HandlerFunc)
}

type Handlers struct {
	Events       EventProcessor
	Provisioning Provisioner
	Notifier     Notifier
}

// Register installs a handler for every job type.
func Register(r Registrar, h Handlers) {
	r.RegisterHandler(jobqueue.JobTypeProcessPaymentEvent, func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.PaymentEventJobPayloadFromMap(job.Payload)
		if err != nil || payload.EventID == 0 {
			return jobqueue.Permanent(fmt.Errorf("invalid payment event payload: %v", err))
		}
		return h.Events.ProcessEvent(ctx, payload.EventID, job.Attempt())
	})

	r.RegisterHandler(jobqueue.JobTypeProvisionResource, func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.ProvisioningJobPayloadFromMap(job.Payload)
		if err != nil || payload.JobID == 0 {
			return jobqueue.Permanent(fmt.Errorf("invalid provisioning payload: %v", err))
		}
		return h.Provisioning.Process(ctx, payload.JobID, job.Attempt())
	})

	// Sends are never retried: channel failures are isolated and logged
	// by the dispatcher, and a retry would resend on the channels that worked.
	r.RegisterHandler(jobqueue.JobTypeSendNotification, func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.NotificationJobPayloadFromMap(job.Payload)
		if err != nil {
			log.Errorf("[Notify] Dropping notification job %s: %v", job.ID, err)
			return nil
		}
		msg := notify.Message{Subject: payload.Subject, Body: payload.Body}

		var result notify.Result
		if payload.Admin {
			result = h.Notifier.NotifyAdmin(ctx, msg)
		} else {
			result = h.Notifier.NotifyUser(ctx, payload.UserID, msg, payload.Channels...)
		}
		if len(result) > 0 && !result.Any() {
			log.Warnf("[Notify] %q reached no channel (admin=%t user=%d)", payload.Subject, payload.Admin, payload.UserID)
		}
		return nil
	})

	r.RegisterHandler(jobqueue.JobTypeSweepStaleProvisioning, func(ctx context.Context, job *jobqueue.Job) error {
		_, err := h.Provisioning.SweepStale(ctx)
		return err
	})

	r.RegisterHandler(jobqueue.JobTypeCheckExpiringSubscriptions, func(ctx context.Context, job *jobqueue.Job) error {
		_, err := h.Events.CheckExpiringSubscriptions(ctx)
		return err
	})

	r.RegisterHandler(jobqueue.JobTypePrunePaymentEvents, func(ctx context.Context, job *jobqueue.Job) error {
		_, err := h.Events.PruneEvents(ctx)
		return err
	})
}

// Scheduler is implemented by *jobqueue.Manager.
type Scheduler interface {
	Schedule(spec string, jobType jobqueue.JobType, payload map[string]interface{}) error
}

// Schedule registers the periodic jobs from cfg.
func Schedule(s Scheduler, cfg config.Schedule) error {
	entries := []struct {
		spec    string
		jobType jobqueue.JobType
	}{
		{cfg.StaleSweep, jobqueue.JobTypeSweepStaleProvisioning},
		{cfg.ExpiryCheck, jobqueue.JobTypeCheckExpiringSubscriptions},
		{cfg.EventPrune, jobqueue.JobTypePrunePaymentEvents},
	}
	for _, e := range entries {
		if err := s.Schedule(e.spec, e.jobType, nil); err != nil {
			return err
		}
	}
	return nil
}
