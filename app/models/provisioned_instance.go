package models

import "time"

const (
	InstanceStatusProvisioning = "provisioning"
	InstanceStatusRunning      = "running"
	InstanceStatusStopped      = "stopped"
	InstanceStatusSuspended    = "suspended"
	InstanceStatusTerminated   = "terminated"
	InstanceStatusError        = "error"
)

// ProvisionedInstance is the resource created by a ready ProvisioningJob.
type ProvisionedInstance struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ProvisioningJobID uint      `gorm:"not null;uniqueIndex" json:"provisioning_job_id"`
	OrderID           uint      `gorm:"not null;index" json:"order_id"`
	CustomerID        uint      `gorm:"not null;index" json:"customer_id"`
	Hostname          string    `gorm:"type:varchar(191);not null" json:"hostname"`
	ExternalID        string    `gorm:"type:varchar(191);index" json:"external_id"`
	IPAddress         string    `gorm:"type:varchar(45)" json:"ip_address"`
	CPUCores          int       `gorm:"not null" json:"cpu_cores"`
	RAMMB             int       `gorm:"column:ram_mb;not null" json:"ram_mb"`
	DiskGB            int       `gorm:"not null" json:"disk_gb"`
	OSTemplate        string    `gorm:"type:varchar(100)" json:"os_template"`
	Status            string    `gorm:"type:varchar(20);not null;default:'provisioning'" json:"status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
