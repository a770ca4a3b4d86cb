package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ProvisioningStatusQueued       = "queued"
	ProvisioningStatusProvisioning = "provisioning"
	ProvisioningStatusReady        = "ready"
	ProvisioningStatusFailed       = "failed"
)

// ProvisioningJob tracks infrastructure creation for an order.
// StartedAt marks the beginning of the provisioning window used by the
// stale sweep.
type ProvisioningJob struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	OrderID      uint           `gorm:"not null;uniqueIndex" json:"order_id"`
	Order        *Order         `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Provider     string         `gorm:"type:varchar(50);not null" json:"provider"`
	Status       string         `gorm:"type:varchar(20);not null;default:'queued';index:idx_provisioning_jobs_status_started,priority:1" json:"status"`
	ExternalID   string         `gorm:"type:varchar(191);index" json:"external_id"`
	Payload      datatypes.JSON `json:"payload"`
	ErrorMessage string         `gorm:"type:text" json:"error_message"`
	StartedAt    *time.Time     `gorm:"type:timestamp;default:null;index:idx_provisioning_jobs_status_started,priority:2" json:"started_at,omitempty"`
	CompletedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (j *ProvisioningJob) IsTerminal() bool {
	return j.Status == ProvisioningStatusReady || j.Status == ProvisioningStatusFailed
}
