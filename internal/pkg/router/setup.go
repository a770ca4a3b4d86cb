package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Fulfillment/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Controllers bundles the handlers the routers mount.
type Controllers struct {
	Webhook *controllers.WebhookController
	Health  *controllers.HealthController
	Billing *controllers.BillingController
	Account *controllers.AccountController
}

func InstallRouter(app *fiber.App, c Controllers, internalAPIKey string) {
	setup(app, NewHttpRouter(c), NewApiRouter(c, internalAPIKey))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
