package handler

import (
	"strconv"

	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ApprovalHandler struct {
	service service.ApprovalService
	log     *zap.Logger
}

func NewApprovalHandler(s service.ApprovalService, log *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{service: s, log: log}
}

type reviewRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// GetApprovals lists approval requests. Stale pending rows come back expired.
// GET /api/v1/approvals?status=&item_id=&mine=true&limit=
func (h *ApprovalHandler) GetApprovals(c *fiber.Ctx) error {
	itemID, err := parseOptionalUUID(c.Query("item_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid item ID"})
	}
	filter := repository.ApprovalFilter{
		Status: model.ApprovalStatus(c.Query("status")),
		ItemID: itemID,
	}
	if c.QueryBool("mine") {
		filter.RequesterID = middleware.CurrentActor(c).ID
	}
	if limit, err := strconv.Atoi(c.Query("limit", "0")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	requests, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(requests)
}

// GET /api/v1/approvals/:id
func (h *ApprovalHandler) GetApproval(c *fiber.Ctx) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request ID"})
	}
	req, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(req)
}

// Approve replays the requested movement. If the replay is refused the
// request stays pending and the error says why.
// POST /api/v1/approvals/:id/approve
func (h *ApprovalHandler) Approve(c *fiber.Ctx) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request ID"})
	}
	body, err := h.parseReview(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	out, err := h.service.Approve(c.UserContext(), id, middleware.CurrentActor(c), body.Note)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"message": "Request approved", "data": out})
}

// POST /api/v1/approvals/:id/reject
func (h *ApprovalHandler) Reject(c *fiber.Ctx) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request ID"})
	}
	body, err := h.parseReview(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	req, err := h.service.Reject(c.UserContext(), id, middleware.CurrentActor(c), body.Note)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"message": "Request rejected", "data": req})
}

// POST /api/v1/approvals/:id/cancel
func (h *ApprovalHandler) Cancel(c *fiber.Ctx) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request ID"})
	}
	req, err := h.service.Cancel(c.UserContext(), id, middleware.CurrentActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"message": "Request cancelled", "data": req})
}

// parseReview accepts an empty body.
func (h *ApprovalHandler) parseReview(c *fiber.Ctx) (*reviewRequest, error) {
	var body reviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return nil, &model.ValidationError{Message: "Invalid JSON"}
		}
	}
	if err := validate(&body); err != nil {
		return nil, err
	}
	return &body, nil
}
