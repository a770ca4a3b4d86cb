package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	// ErrInvalidSignature is returned when the payload was not signed with the shared secret.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedPayload is returned for a correctly signed body that is not a usable event.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// VerifyEvent checks the Stripe-Signature header against secret and decodes
// the event. It fails closed: an empty secret never verifies.
func VerifyEvent(payload []byte, signatureHeader, secret string) (*stripe.Event, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(signatureHeader) == "" {
		return nil, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(event.ID) == "" || event.Type == "" || event.Data == nil {
		return nil, fmt.Errorf("%w: missing id, type or data", ErrMalformedPayload)
	}
	return &event, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
