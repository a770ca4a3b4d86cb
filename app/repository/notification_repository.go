package repository

import (
	"errors"
	"time"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository instance
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// GetPreference returns nil without error when the user never saved preferences.
func (r *notificationRepository) GetPreference(userID uint) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := r.db.Where("user_id = ?", userID).First(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pref, nil
}

func (r *notificationRepository) SavePreference(pref *models.NotificationPreference) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email_enabled",
			"telegram_enabled",
			"telegram_chat_id",
			"signal_enabled",
			"signal_phone",
			"push_enabled",
			"push_token",
			"updated_at",
		}),
	}).Create(pref).Error
}

func (r *notificationRepository) CreateLog(entry *models.NotificationLog) error {
	return r.db.Create(entry).Error
}

// HasRecentLog reports whether a notification with subject was sent to the
// user since the given time.
func (r *notificationRepository) HasRecentLog(userID uint, subject string, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.NotificationLog{}).
		Where("user_id = ? AND subject = ? AND created_at >= ?", userID, subject, since).
		Count(&count).Error
	return count > 0, err
}

func (r *notificationRepository) ListLogsByUser(userID uint, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.NotificationLog
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
