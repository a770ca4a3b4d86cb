package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PaymentEventStatusReceived   = "received"
	PaymentEventStatusProcessing = "processing"
	PaymentEventStatusProcessed  = "processed"
	PaymentEventStatusFailed     = "failed"
	PaymentEventStatusSkipped    = "skipped"
)

// PaymentEvent is the idempotency record for an inbound processor webhook.
// Status only moves forward: received -> processing -> processed|failed,
// or received -> skipped.
type PaymentEvent struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	StripeEventID string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_event_id"`
	EventType     string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Status        string         `gorm:"type:varchar(20);not null;default:'received';index:idx_payment_events_status_processed,priority:1" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	ErrorMessage  string         `gorm:"type:text" json:"error_message"`
	Payload       datatypes.JSON `gorm:"not null" json:"payload"`
	ReceivedAt    time.Time      `gorm:"autoCreateTime;index" json:"received_at"`
	ProcessedAt   *time.Time     `gorm:"type:timestamp;default:null;index:idx_payment_events_status_processed,priority:2" json:"processed_at,omitempty"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether no further transition is allowed.
func (e *PaymentEvent) IsTerminal() bool {
	switch e.Status {
	case PaymentEventStatusProcessed, PaymentEventStatusSkipped, PaymentEventStatusFailed:
		return true
	}
	return false
}
