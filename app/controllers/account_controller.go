package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Fulfillment/app/models"
	"github.com/ManuelReschke/Fulfillment/app/repository"
)

const maxNotificationLogs = 200

// AccountController exposes a user's orders, notification history and
// channel preferences to the storefront.
type AccountController struct {
	users         repository.UserRepository
	customers     repository.CustomerRepository
	orders        repository.OrderRepository
	notifications repository.NotificationRepository
	validate      *validator.Validate
}

func NewAccountController(repos *repository.Repositories) *AccountController {
	return &AccountController{
		users:         repos.User,
		customers:     repos.Customer,
		orders:        repos.Order,
		notifications: repos.Notification,
		validate:      validator.New(),
	}
}

// HandleListOrders returns the user's orders, newest first. Users who never
// checked out have none.
func (ac *AccountController) HandleListOrders(c *fiber.Ctx) error {
	user, resp := ac.loadUser(c)
	if user == nil {
		return resp
	}

	customer, err := ac.customers.GetByUserID(user.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"orders": []models.Order{}})
	}
	if err != nil {
		return ac.internalError(c, "list orders", err)
	}

	orders, err := ac.orders.ListByCustomer(customer.ID)
	if err != nil {
		return ac.internalError(c, "list orders", err)
	}
	return c.JSON(fiber.Map{"orders": orders})
}

func (ac *AccountController) HandleListNotifications(c *fiber.Ctx) error {
	user, resp := ac.loadUser(c)
	if user == nil {
		return resp
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxNotificationLogs {
		limit = maxNotificationLogs
	}
	logs, err := ac.notifications.ListLogsByUser(user.ID, limit)
	if err != nil {
		return ac.internalError(c, "list notifications", err)
	}
	return c.JSON(fiber.Map{"notifications": logs})
}

func (ac *AccountController) HandleGetPreferences(c *fiber.Ctx) error {
	user, resp := ac.loadUser(c)
	if user == nil {
		return resp
	}

	pref, err := ac.notifications.GetPreference(user.ID)
	if err != nil {
		return ac.internalError(c, "load preferences", err)
	}
	if pref == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "no preferences stored, the default channel is used"})
	}
	return c.JSON(pref)
}

type preferenceRequest struct {
	EmailEnabled    bool   `json:"email_enabled"`
	TelegramEnabled bool   `json:"telegram_enabled"`
	TelegramChatID  string `json:"telegram_chat_id" validate:"required_if=TelegramEnabled true,max=64"`
	SignalEnabled   bool   `json:"signal_enabled"`
	SignalPhone     string `json:"signal_phone" validate:"required_if=SignalEnabled true,max=32"`
	PushEnabled     bool   `json:"push_enabled"`
	PushToken       string `json:"push_token" validate:"required_if=PushEnabled true,max=255"`
}

func (ac *AccountController) HandleUpdatePreferences(c *fiber.Ctx) error {
	user, resp := ac.loadUser(c)
	if user == nil {
		return resp
	}

	var req preferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}
	req.TelegramChatID = strings.TrimSpace(req.TelegramChatID)
	req.SignalPhone = strings.TrimSpace(req.SignalPhone)
	req.PushToken = strings.TrimSpace(req.PushToken)
	if err := ac.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	pref := &models.NotificationPreference{
		UserID:          user.ID,
		EmailEnabled:    req.EmailEnabled,
		TelegramEnabled: req.TelegramEnabled,
		TelegramChatID:  req.TelegramChatID,
		SignalEnabled:   req.SignalEnabled,
		SignalPhone:     req.SignalPhone,
		PushEnabled:     req.PushEnabled,
		PushToken:       req.PushToken,
	}
	if err := ac.notifications.SavePreference(pref); err != nil {
		return ac.internalError(c, "save preferences", err)
	}

	stored, err := ac.notifications.GetPreference(user.ID)
	if err != nil || stored == nil {
		return ac.internalError(c, "reload preferences", err)
	}
	return c.JSON(stored)
}

// loadUser resolves the :id route parameter. On a nil user the response has
// already been written and the second value is the handler's result.
func (ac *AccountController) loadUser(c *fiber.Ctx) (*models.User, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "invalid user id"})
	}
	user, err := ac.users.GetByID(uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "user not found"})
	}
	if err != nil {
		return nil, ac.internalError(c, "load user", err)
	}
	return user, nil
}

func (ac *AccountController) internalError(c *fiber.Ctx, op string, err error) error {
	log.Errorf("[API] %s failed: %v", op, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
}
