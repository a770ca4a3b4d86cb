package notify

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by channels missing credentials.
var ErrNotConfigured = errors.New("channel not configured")

// Channel delivers a message to one recipient over one transport.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, recipient string, msg Message) error
}

// Message is a rendered notification. Body is plain text; channels that
// render HTML escape it themselves.
type Message struct {
	Subject string
	Body    string
}
