package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/app/repository"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/mail"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/metrics"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/utils"
)

// Result maps each attempted channel to whether its send succeeded.
// Channels that were skipped (unconfigured or no recipient) are absent.
type Result map[string]bool

// Any reports whether at least one channel delivered.
func (r Result) Any() bool {
	for _, ok := range r {
		if ok {
			return true
		}
	}
	return false
}

// Dispatcher fans a message out to channels and records every attempt.
type Dispatcher struct {
	cfg           config.Notify
	channels      map[string]Channel
	order         []string
	users         repository.UserRepository
	notifications repository.NotificationRepository
}

func NewDispatcher(cfg config.Notify, users repository.UserRepository, notifications repository.NotificationRepository, channels ...Channel) *Dispatcher {
	d := &Dispatcher{
		cfg:           cfg,
		channels:      make(map[string]Channel, len(channels)),
		users:         users,
		notifications: notifications,
	}
	for _, ch := range channels {
		if _, dup := d.channels[ch.Name()]; !dup {
			d.order = append(d.order, ch.Name())
		}
		d.channels[ch.Name()] = ch
	}
	if d.cfg.SendTimeout <= 0 {
		d.cfg.SendTimeout = 15 * time.Second
	}
	return d
}

// NewDispatcherFromConfig wires the four built-in channels from cfg.
func NewDispatcherFromConfig(ctx context.Context, cfg config.Notify, repos *repository.Repositories) (*Dispatcher, error) {
	push, err := NewFirebasePushChannel(ctx, cfg.FirebaseCredentialsFile)
	if err != nil {
		return nil, err
	}
	channels := []Channel{
		NewEmailChannel(mail.NewSMTPMailer(cfg.SMTP, nil)),
		NewTelegramChannel(cfg.TelegramAPIURL, cfg.TelegramBotToken),
		NewSignalChannel(cfg.SignalAPIURL, cfg.SignalNumber),
		push,
	}
	for _, ch := range channels {
		log.Infof("[Notify] Channel %s configured=%t", ch.Name(), ch.IsConfigured())
	}
	return NewDispatcher(cfg, repos.User, repos.Notification, channels...), nil
}

// NotifyUser sends msg to the user. An explicit channel list overrides the
// user's preferences; without preferences the default channel is used.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID uint, msg Message, channels ...string) Result {
	result := Result{}

	user, err := d.users.GetByID(userID)
	if err != nil {
		log.Errorf("[Notify] Could not load user %d: %v", userID, err)
		return result
	}
	pref, err := d.notifications.GetPreference(userID)
	if err != nil {
		log.Warnf("[Notify] Could not load preferences for user %d, using default channel: %v", userID, err)
		pref = nil
	}

	targets := channels
	if len(targets) == 0 && pref != nil {
		targets = pref.ActiveChannels()
	}
	if len(targets) == 0 {
		targets = []string{d.cfg.DefaultChannel}
	}

	uid := userID
	for _, name := range uniq(targets) {
		recipient := userRecipient(name, user, pref)
		d.attempt(ctx, result, &uid, name, recipient, msg)
	}
	return result
}

// NotifyAdmin sends msg to every channel that has an admin contact configured.
func (d *Dispatcher) NotifyAdmin(ctx context.Context, msg Message) Result {
	result := Result{}
	for _, name := range d.order {
		d.attempt(ctx, result, nil, name, d.adminRecipient(name), msg)
	}
	if len(result) == 0 {
		log.Warnf("[Notify] No admin channel available for %q", msg.Subject)
	}
	return result
}

func (d *Dispatcher) attempt(ctx context.Context, result Result, userID *uint, name, recipient string, msg Message) {
	ch, ok := d.channels[name]
	if !ok || !ch.IsConfigured() {
		log.Debugf("[Notify] Channel %s not configured, skipping", name)
		return
	}
	if strings.TrimSpace(recipient) == "" {
		log.Debugf("[Notify] No %s recipient, skipping", name)
		return
	}

	err := d.send(ctx, ch, recipient, msg)
	result[name] = err == nil
	metrics.NotificationsTotal.WithLabelValues(name, metrics.Result(err == nil)).Inc()

	entry := &models.NotificationLog{
		UserID:    userID,
		Channel:   name,
		Subject:   utils.Truncate(msg.Subject, 255),
		Recipient: utils.Truncate(recipient, 255),
		Success:   err == nil,
	}
	if err != nil {
		entry.ErrorMessage = utils.TruncateError(err)
		log.Warnf("[Notify] %s send to %s failed: %v", name, recipient, err)
	}
	if logErr := d.notifications.CreateLog(entry); logErr != nil {
		log.Errorf("[Notify] Could not write notification log: %v", logErr)
	}
}

// send bounds a single channel call and converts a panic into an error.
func (d *Dispatcher) send(ctx context.Context, ch Channel, recipient string, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return ch.Send(sendCtx, recipient, msg)
}

func (d *Dispatcher) adminRecipient(channel string) string {
	switch channel {
	case models.ChannelEmail:
		return d.cfg.AdminEmail
	case models.ChannelTelegram:
		return d.cfg.AdminTelegramChatID
	case models.ChannelSignal:
		return d.cfg.AdminSignalNumber
	case models.ChannelPush:
		return d.cfg.AdminPushToken
	}
	return ""
}

func userRecipient(channel string, user *models.User, pref *models.NotificationPreference) string {
	if channel == models.ChannelEmail {
		return user.Email
	}
	if pref == nil {
		return ""
	}
	switch channel {
	case models.ChannelTelegram:
		return pref.TelegramChatID
	case models.ChannelSignal:
		return pref.SignalPhone
	case models.ChannelPush:
		return pref.PushToken
	}
	return ""
}

func uniq(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
