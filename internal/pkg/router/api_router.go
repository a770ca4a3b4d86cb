package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/middleware"
)

type ApiRouter struct {
	controllers Controllers
	apiKey      string
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.apiKey))
	v1.Post("/billing/checkout", h.controllers.Billing.HandleCreateCheckout)
	v1.Post("/billing/portal", h.controllers.Billing.HandleCreatePortal)
	v1.Post("/instances/:id/:action", h.controllers.Billing.HandleInstanceAction)
	v1.Get("/queue/stats", h.controllers.Billing.HandleQueueStats)

	users := v1.Group("/users/:id")
	users.Get("/orders", h.controllers.Account.HandleListOrders)
	users.Get("/notifications", h.controllers.Account.HandleListNotifications)
	users.Get("/notification-preferences", h.controllers.Account.HandleGetPreferences)
	users.Put("/notification-preferences", h.controllers.Account.HandleUpdatePreferences)
}

func NewApiRouter(c Controllers, apiKey string) *ApiRouter {
	return &ApiRouter{controllers: c, apiKey: apiKey}
}
