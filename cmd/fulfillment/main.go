package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/Fulfillment/app/controllers"
	"github.com/ManuelReschke/Fulfillment/app/repository"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/billing"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/cache"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/config"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/database"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/env"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/notify"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/provisioning"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/router"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/tasks"
)

// webhook payloads are small; anything larger is not a processor event
const bodyLimit = 1 << 20

func main() {
	if err := env.SetupEnvFile(); err != nil {
		log.Warnf("[Main] %v, using process environment", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}

	app, manager, err := NewApplication(cfg)
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}
	manager.Start()

	addr := fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Errorf("[Main] Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] Shutting down...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Errorf("[Main] HTTP shutdown: %v", err)
	}
	manager.Stop()
}

// NewApplication wires configuration, storage, the job queue and the HTTP
// routes. The returned manager is not started.
func NewApplication(cfg config.Config) (*fiber.App, *jobqueue.Manager, error) {
	if err := database.SetupDatabase(cfg.Database); err != nil {
		return nil, nil, err
	}
	cache.SetupCache(cfg.Cache)

	ctx := context.Background()
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	queue := jobqueue.NewQueue(cfg.Queue.Workers)
	queue.SetMaxRetries(cfg.Queue.MaxRetries)
	manager := jobqueue.NewManager(queue)

	notifier, err := notify.NewDispatcherFromConfig(ctx, cfg.Notify, repos)
	if err != nil {
		return nil, nil, fmt.Errorf("notification channels: %w", err)
	}

	provider, err := provisioning.New(cfg.Provisioning)
	if err != nil {
		return nil, nil, err
	}
	orchestrator := provisioning.NewOrchestrator(repos.Provisioning, provider, queue, cfg.Provisioning)

	processor := billing.NewStripeProcessor(cfg.Stripe)
	billingService := billing.NewService(cfg, repos, processor, queue, orchestrator)

	tasks.Register(queue, tasks.Handlers{
		Events:       billingService,
		Provisioning: orchestrator,
		Notifier:     notifier,
	})
	if err := tasks.Schedule(manager, cfg.Schedule); err != nil {
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Controllers{
		Webhook: controllers.NewWebhookController(billingService),
		Health: controllers.NewHealthController(map[string]controllers.HealthCheck{
			"database": database.Ping,
			"redis":    cache.Ping,
		}),
		Billing: controllers.NewBillingController(billingService, orchestrator, queue, repos.PaymentEvent),
		Account: controllers.NewAccountController(repos),
	}, cfg.App.InternalAPIKey)

	log.Infof("[Main] Provider %s, %d workers", provider.Name(), cfg.Queue.Workers)
	return app, manager, nil
}
