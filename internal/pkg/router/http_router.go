package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HttpRouter mounts the unauthenticated endpoints: the processor webhook,
// which authenticates by signature, and the health and metrics endpoints.
type HttpRouter struct {
	controllers Controllers
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/stripe", h.controllers.Webhook.HandleStripeWebhook)
	app.Get("/healthz", h.controllers.Health.HandleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func NewHttpRouter(c Controllers) *HttpRouter {
	return &HttpRouter{controllers: c}
}
