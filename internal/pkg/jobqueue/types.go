package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeProcessPaymentEvent        JobType = "process_payment_event"
	JobTypeProvisionResource          JobType = "provision_resource"
	JobTypeSendNotification           JobType = "send_notification"
	JobTypeSweepStaleProvisioning     JobType = "sweep_stale_provisioning"
	JobTypeCheckExpiringSubscriptions JobType = "check_expiring_subscriptions"
	JobTypePrunePaymentEvents         JobType = "prune_payment_events"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
	Inline      bool                   `json:"inline,omitempty"` // executed in the caller after enqueue failed
}

// PaymentEventJobPayload references a stored PaymentEvent row.
type PaymentEventJobPayload struct {
	EventID uint `json:"event_id"`
}

// ToMap converts the payload to a map for storage
func (p PaymentEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id": p.EventID,
	}
}

func PaymentEventJobPayloadFromMap(data map[string]interface{}) (*PaymentEventJobPayload, error) {
	var payload PaymentEventJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

// ProvisioningJobPayload references a ProvisioningJob row.
type ProvisioningJobPayload struct {
	JobID uint `json:"job_id"`
}

func (p ProvisioningJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"job_id": p.JobID,
	}
}

func ProvisioningJobPayloadFromMap(data map[string]interface{}) (*ProvisioningJobPayload, error) {
	var payload ProvisioningJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

// NotificationJobPayload carries a rendered message. Admin alerts leave
// UserID at zero and set Admin.
type NotificationJobPayload struct {
	UserID   uint     `json:"user_id"`
	Admin    bool     `json:"admin"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	Channels []string `json:"channels,omitempty"`
}

func (p NotificationJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"user_id": p.UserID,
		"admin":   p.Admin,
		"subject": p.Subject,
		"body":    p.Body,
	}
	if len(p.Channels) > 0 {
		m["channels"] = p.Channels
	}
	return m
}

func NotificationJobPayloadFromMap(data map[string]interface{}) (*NotificationJobPayload, error) {
	var payload NotificationJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

// decodePayload round-trips through JSON so numbers read back from Redis
// (float64) land in typed fields.
func decodePayload(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// IsRetry reports whether an earlier attempt of this job already ran.
func (j *Job) IsRetry() bool {
	return j.RetryCount > 0
}

// IsFinalAttempt reports whether a failure of the current run will not be retried.
func (j *Job) IsFinalAttempt() bool {
	return j.RetryCount+1 >= j.MaxRetries
}

// Attempt describes the current run of a job to domain handlers.
type Attempt struct {
	Retry bool // an earlier attempt already ran
	Final bool // a failure will not be retried
}

// Attempt returns the run descriptor for the job.
func (j *Job) Attempt() Attempt {
	return Attempt{Retry: j.IsRetry(), Final: j.IsFinalAttempt()}
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
