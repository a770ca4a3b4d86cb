package notify

import (
	"context"
	"html"
	"strings"

	"github.com/ManuelReschke/Fulfillment/app/models"
)

// Mailer is satisfied by mail.SMTPMailer.
type Mailer interface {
	IsConfigured() bool
	SendMail(ctx context.Context, to, subject, body string) error
}

// EmailChannel sends notifications as HTML mail.
type EmailChannel struct {
	mailer Mailer
}

func NewEmailChannel(mailer Mailer) *EmailChannel {
	return &EmailChannel{mailer: mailer}
}

func (c *EmailChannel) Name() string { return models.ChannelEmail }

func (c *EmailChannel) IsConfigured() bool {
	return c.mailer != nil && c.mailer.IsConfigured()
}

func (c *EmailChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	return c.mailer.SendMail(ctx, recipient, msg.Subject, renderHTML(msg.Body))
}

func renderHTML(body string) string {
	escaped := html.EscapeString(body)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}
