package models

import (
	"strings"
	"time"
)

const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelSignal   = "signal"
	ChannelPush     = "push"
)

// NotificationPreference holds per-user channel toggles and contact ids.
// Users without a row are treated as email-only.
type NotificationPreference struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	EmailEnabled    bool      `gorm:"not null" json:"email_enabled"`
	TelegramEnabled bool      `gorm:"default:false" json:"telegram_enabled"`
	TelegramChatID  string    `gorm:"type:varchar(64)" json:"telegram_chat_id"`
	SignalEnabled   bool      `gorm:"default:false" json:"signal_enabled"`
	SignalPhone     string    `gorm:"type:varchar(32)" json:"signal_phone"`
	PushEnabled     bool      `gorm:"default:false" json:"push_enabled"`
	PushToken       string    `gorm:"type:varchar(255)" json:"push_token"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveChannels returns channels that are enabled and have a contact id.
// Email is addressed through the user's account email, so the toggle is enough.
func (p *NotificationPreference) ActiveChannels() []string {
	var channels []string
	if p.EmailEnabled {
		channels = append(channels, ChannelEmail)
	}
	if p.TelegramEnabled && strings.TrimSpace(p.TelegramChatID) != "" {
		channels = append(channels, ChannelTelegram)
	}
	if p.SignalEnabled && strings.TrimSpace(p.SignalPhone) != "" {
		channels = append(channels, ChannelSignal)
	}
	if p.PushEnabled && strings.TrimSpace(p.PushToken) != "" {
		channels = append(channels, ChannelPush)
	}
	return channels
}

// NotificationLog is an append-only record of one send attempt.
// UserID is nil for admin alerts.
type NotificationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       *uint     `gorm:"index:idx_notification_logs_user_subject,priority:1" json:"user_id,omitempty"`
	Channel      string    `gorm:"type:varchar(20);not null" json:"channel"`
	Subject      string    `gorm:"type:varchar(255);not null;index:idx_notification_logs_user_subject,priority:2" json:"subject"`
	Recipient    string    `gorm:"type:varchar(255);not null" json:"recipient"`
	Success      bool      `gorm:"not null;default:false" json:"success"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
