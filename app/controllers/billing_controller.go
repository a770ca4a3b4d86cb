package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/billing"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Fulfillment/internal/pkg/provisioning"
)

// BillingSessions is implemented by *billing.Service.
type BillingSessions interface {
	CreateCheckoutSession(ctx context.Context, userID uint, planSlug string, annual bool) (string, error)
	CreatePortalSession(ctx context.Context, userID uint) (string, error)
}

// InstanceControl is implemented by *provisioning.Orchestrator.
type InstanceControl interface {
	Control(ctx context.Context, instanceID uint, action string) (*models.ProvisionedInstance, error)
}

// QueueStats is implemented by *jobqueue.Queue.
type QueueStats interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetDelayedSize(ctx context.Context) (int64, error)
}

// EventStats is implemented by the payment event repository.
type EventStats interface {
	CountByStatus() (map[string]int64, error)
}

// BillingController serves the internal API used by the storefront.
type BillingController struct {
	sessions  BillingSessions
	instances InstanceControl
	queue     QueueStats
	events    EventStats
}

func NewBillingController(sessions BillingSessions, instances InstanceControl, queue QueueStats, events EventStats) *BillingController {
	return &BillingController{sessions: sessions, instances: instances, queue: queue, events: events}
}

type checkoutRequest struct {
	UserID   uint   `json:"user_id"`
	PlanSlug string `json:"plan_slug"`
	Annual   bool   `json:"annual"`
}

func (bc *BillingController) HandleCreateCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}
	if req.UserID == 0 || strings.TrimSpace(req.PlanSlug) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "user_id and plan_slug are required"})
	}

	url, err := bc.sessions.CreateCheckoutSession(c.UserContext(), req.UserID, req.PlanSlug, req.Annual)
	if err != nil {
		return bc.handleError(c, "checkout", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url})
}

type portalRequest struct {
	UserID uint `json:"user_id"`
}

func (bc *BillingController) HandleCreatePortal(c *fiber.Ctx) error {
	var req portalRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "user_id is required"})
	}

	url, err := bc.sessions.CreatePortalSession(c.UserContext(), req.UserID)
	if err != nil {
		return bc.handleError(c, "portal", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url})
}

func (bc *BillingController) HandleInstanceAction(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "invalid instance id"})
	}

	instance, err := bc.instances.Control(c.UserContext(), uint(id), c.Params("action"))
	if err != nil {
		return bc.handleError(c, "instance action", err)
	}
	return c.JSON(instance)
}

func (bc *BillingController) HandleQueueStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	stats, err := bc.queue.GetJobStats(ctx)
	if err != nil {
		return bc.handleError(c, "queue stats", err)
	}
	pending, err := bc.queue.GetQueueSize(ctx)
	if err != nil {
		return bc.handleError(c, "queue stats", err)
	}
	delayed, err := bc.queue.GetDelayedSize(ctx)
	if err != nil {
		return bc.handleError(c, "queue stats", err)
	}
	events, err := bc.events.CountByStatus()
	if err != nil {
		return bc.handleError(c, "event stats", err)
	}

	return c.JSON(fiber.Map{
		"jobs":    stats,
		"pending": pending,
		"delayed": delayed,
		"events":  events,
	})
}

// handleError maps domain errors to status codes.
func (bc *BillingController) handleError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, billing.ErrUnknownPlan), errors.Is(err, billing.ErrNoCustomer),
		errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, provisioning.ErrResourceNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, billing.ErrPlanHasNoPrice), errors.Is(err, billing.ErrInvalidUserID),
		errors.Is(err, provisioning.ErrUnknownAction):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, billing.ErrProcessorNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": err.Error()})
	}
	log.Errorf("[API] %s failed: %v", op, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
}
