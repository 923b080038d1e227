package handler

import (
	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	service service.NotificationService
	log     *zap.Logger
}

func NewNotificationHandler(s service.NotificationService, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{service: s, log: log}
}

// GetNotifications lists the caller's notifications, newest first
// GET /api/v1/notifications?unread=true
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	actor := middleware.CurrentActor(c)
	list, err := h.service.List(c.UserContext(), actor.ID, c.QueryBool("unread"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	unread, err := h.service.CountUnread(c.UserContext(), actor.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"data": list, "unread": unread})
}

// POST /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid notification ID"})
	}
	if err := h.service.MarkRead(c.UserContext(), id, middleware.CurrentActor(c).ID); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

// GetAuditTrail returns recorded audit events
// GET /api/v1/audit?event_type=&limit=
func (h *NotificationHandler) GetAuditTrail(c *fiber.Ctx) error {
	events, err := h.service.AuditTrail(c.UserContext(), c.Query("event_type"), c.QueryInt("limit", 100))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(events)
}
