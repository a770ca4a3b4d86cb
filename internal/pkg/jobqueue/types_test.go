package jobqueue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	tests := []struct {
		name     string
		jobType  JobType
		expected string
	}{
		{"Payment event", JobTypeProcessPaymentEvent, "process_payment_event"},
		{"Provisioning", JobTypeProvisionResource, "provision_resource"},
		{"Notification", JobTypeSendNotification, "send_notification"},
		{"Stale sweep", JobTypeSweepStaleProvisioning, "sweep_stale_provisioning"},
		{"Expiry check", JobTypeCheckExpiringSubscriptions, "check_expiring_subscriptions"},
		{"Event prune", JobTypePrunePaymentEvents, "prune_payment_events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.jobType))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"Failed job with retries remaining", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"Failed job with no retries remaining", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"Completed job", &Job{Status: JobStatusCompleted, RetryCount: 1, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_Attempts(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		retry      bool
		final      bool
	}{
		{"First of three", 0, 3, false, false},
		{"Second of three", 1, 3, true, false},
		{"Last of three", 2, 3, true, true},
		{"Single attempt", 0, 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			assert.Equal(t, tt.retry, job.IsRetry())
			assert.Equal(t, tt.final, job.IsFinalAttempt())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{ID: "j1", Status: JobStatusPending, MaxRetries: 3}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "boom", job.ErrorMsg)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	assert.NotNil(t, job.CompletedAt)
}

func TestPayloadsSurviveRedisRoundTrip(t *testing.T) {
	// Values stored in Redis come back as float64 inside the map.
	job := Job{Payload: NotificationJobPayload{UserID: 12, Subject: "S", Body: "B", Channels: []string{"email"}}.ToMap()}
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))

	p, err := NotificationJobPayloadFromMap(decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint(12), p.UserID)
	assert.False(t, p.Admin)
	assert.Equal(t, []string{"email"}, p.Channels)
}
