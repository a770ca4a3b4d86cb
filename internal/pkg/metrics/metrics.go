// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fulfillment"

var (
	// WebhookRequestsTotal counts webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "requests_total",
		Help:      "Total payment webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks ingestion latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "duration_seconds",
		Help:      "Payment webhook ingestion duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// PaymentEventsTotal counts event processing outcomes.
	PaymentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "processed_total",
		Help:      "Payment events by type and outcome.",
	}, []string{"event_type", "outcome"})

	// ProvisioningTotal counts provisioning attempts and outcomes.
	ProvisioningTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provisioning",
		Name:      "jobs_total",
		Help:      "Provisioning attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	// NotificationsTotal counts channel send attempts.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "sends_total",
		Help:      "Notification send attempts by channel and result.",
	}, []string{"channel", "result"})

	// JobsTotal counts background job outcomes.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobqueue",
		Name:      "jobs_total",
		Help:      "Background jobs by type and outcome (completed, retrying, failed, inline).",
	}, []string{"type", "outcome"})
)

// Result maps a boolean outcome to a label value.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
