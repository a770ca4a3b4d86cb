package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/billing"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/metrics"
)

// WebhookIngester is implemented by *billing.Service.
type WebhookIngester interface {
	Ingest(ctx context.Context, payload []byte, signatureHeader string) (*billing.IngestResult, error)
}

// WebhookController receives payment processor webhooks. It only records
// receipt; handlers run on the job queue.
type WebhookController struct {
	ingester WebhookIngester
}

func NewWebhookController(ingester WebhookIngester) *WebhookController {
	return &WebhookController{ingester: ingester}
}

// HandleStripeWebhook answers 400 for unverifiable deliveries, 200 for
// accepted, duplicate and ignored ones, and 500 only when the event could
// not be stored or its inline fallback run failed.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	start := time.Now()
	// fiber reuses the request buffer after the handler returns
	rawBody := append([]byte(nil), c.Body()...)

	result, err := wc.ingester.Ingest(c.UserContext(), rawBody, c.Get("Stripe-Signature"))

	eventType := "unknown"
	if result != nil {
		eventType = result.EventType
	}
	status := fiber.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		status = fiber.StatusBadRequest
		log.Warnf("[Webhook] Rejected delivery from %s: %v", c.IP(), err)
		return c.Status(status).JSON(fiber.Map{"error": "invalid_signature"})
	case errors.Is(err, billing.ErrMalformedPayload):
		status = fiber.StatusBadRequest
		log.Warnf("[Webhook] Malformed payload: %v", err)
		return c.Status(status).JSON(fiber.Map{"error": "invalid_payload"})
	case err != nil:
		status = fiber.StatusInternalServerError
		log.Errorf("[Webhook] Intake failed: %v", err)
		return c.Status(status).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	if result.Duplicate {
		return c.Status(status).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if result.Ignored {
		return c.Status(status).JSON(fiber.Map{"ok": true, "ignored": true})
	}
	log.Infof("[Webhook] Accepted %s (%s)", result.EventID, result.EventType)
	return c.Status(status).JSON(fiber.Map{"ok": true})
}
