package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"github.com/ManuelReschke/Fulfillment/app/models"
)

// PushSender is the subset of *messaging.Client used by PushChannel.
type PushSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushChannel delivers notifications to a device token via Firebase Cloud Messaging.
type PushChannel struct {
	sender PushSender
}

func NewPushChannel(sender PushSender) *PushChannel {
	return &PushChannel{sender: sender}
}

// NewFirebasePushChannel builds the FCM client from a service account file.
// An empty path yields an unconfigured channel.
func NewFirebasePushChannel(ctx context.Context, credentialsFile string) (*PushChannel, error) {
	if credentialsFile == "" {
		return NewPushChannel(nil), nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return NewPushChannel(client), nil
}

func (c *PushChannel) Name() string { return models.ChannelPush }

func (c *PushChannel) IsConfigured() bool {
	return c.sender != nil
}

func (c *PushChannel) Send(ctx context.Context, token string, msg Message) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	_, err := c.sender.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Subject,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Subject,
						Body:  msg.Body,
					},
					Sound: "default",
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("fcm send failed: %w", err)
	}
	return nil
}
