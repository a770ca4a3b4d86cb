package jobqueue

import "context"

// NotifyUser queues a notification for a user's active channels.
func NotifyUser(ctx context.Context, d Dispatcher, userID uint, subject, body string) error {
	return d.Dispatch(ctx, JobTypeSendNotification, NotificationJobPayload{
		UserID:  userID,
		Subject: subject,
		Body:    body,
	}.ToMap())
}

// NotifyAdmin queues an operator alert.
func NotifyAdmin(ctx context.Context, d Dispatcher, subject, body string) error {
	return d.Dispatch(ctx, JobTypeSendNotification, NotificationJobPayload{
		Admin:   true,
		Subject: subject,
		Body:    body,
	}.ToMap())
}
