package repository

import (
	"time"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment event repository instance
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// CreateIfNotExists inserts the event and reports whether this call created it.
// A duplicate external id is resolved by the unique index, not a prior lookup.
func (r *paymentEventRepository) CreateIfNotExists(event *models.PaymentEvent) (bool, error) {
	if event.Status == "" {
		event.Status = models.PaymentEventStatusReceived
	}
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *paymentEventRepository) GetByID(id uint) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *paymentEventRepository) GetByStripeID(stripeEventID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	if err := r.db.Where("stripe_event_id = ?", stripeEventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *paymentEventRepository) MarkSkipped(stripeEventID string) (bool, error) {
	return r.transition(stripeEventID, []string{models.PaymentEventStatusReceived}, map[string]interface{}{
		"status":       models.PaymentEventStatusSkipped,
		"processed_at": time.Now().UTC(),
	})
}

// Claim moves a received event to processing. With reclaim set, an event
// already in processing (left by an earlier failed attempt) is claimed again.
func (r *paymentEventRepository) Claim(stripeEventID string, reclaim bool) (bool, error) {
	from := []string{models.PaymentEventStatusReceived}
	if reclaim {
		from = append(from, models.PaymentEventStatusProcessing)
	}
	return r.transition(stripeEventID, from, map[string]interface{}{
		"status":   models.PaymentEventStatusProcessing,
		"attempts": gorm.Expr("attempts + 1"),
	})
}

func (r *paymentEventRepository) MarkProcessed(stripeEventID string) (bool, error) {
	return r.transition(stripeEventID, []string{models.PaymentEventStatusProcessing}, map[string]interface{}{
		"status":        models.PaymentEventStatusProcessed,
		"error_message": "",
		"processed_at":  time.Now().UTC(),
	})
}

// RecordError stores the latest handler error without leaving processing.
func (r *paymentEventRepository) RecordError(stripeEventID, message string) error {
	return r.db.Model(&models.PaymentEvent{}).
		Where("stripe_event_id = ? AND status = ?", stripeEventID, models.PaymentEventStatusProcessing).
		Update("error_message", message).Error
}

func (r *paymentEventRepository) MarkFailed(stripeEventID, message string) (bool, error) {
	return r.transition(stripeEventID, []string{models.PaymentEventStatusProcessing}, map[string]interface{}{
		"status":        models.PaymentEventStatusFailed,
		"error_message": message,
		"processed_at":  time.Now().UTC(),
	})
}

// DeleteTerminalBefore prunes processed and skipped events older than cutoff.
// Failed events are kept for operators.
func (r *paymentEventRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	tx := r.db.
		Where("status IN ? AND processed_at < ?", []string{models.PaymentEventStatusProcessed, models.PaymentEventStatusSkipped}, cutoff).
		Delete(&models.PaymentEvent{})
	return tx.RowsAffected, tx.Error
}

func (r *paymentEventRepository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.Model(&models.PaymentEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// transition is a status-guarded update; false means another writer got there first.
func (r *paymentEventRepository) transition(stripeEventID string, from []string, updates map[string]interface{}) (bool, error) {
	tx := r.db.Model(&models.PaymentEvent{}).
		Where("stripe_event_id = ? AND status IN ?", stripeEventID, from).
		Updates(updates)
	return tx.RowsAffected == 1, tx.Error
}
