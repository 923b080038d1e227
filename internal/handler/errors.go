package handler

import (
	"errors"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/service"
	"go-inventory-ledger/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusFor maps the ledger error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case model.IsNotFound(err):
		return fiber.StatusNotFound
	case model.IsStructural(err), errors.Is(err, service.ErrUnreadableInput):
		return fiber.StatusBadRequest
	case model.IsRetryable(err), errors.Is(err, model.ErrRequestNotPending):
		return fiber.StatusConflict
	case model.IsPolicyError(err):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotPrimaryApprover), errors.Is(err, model.ErrNotRequester):
		return fiber.StatusForbidden
	case errors.Is(err, model.ErrCodeGenerationExhausted):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// kindFor names the error class so clients can branch without parsing text.
func kindFor(err error) string {
	switch {
	case model.IsNotFound(err):
		return "not_found"
	case model.IsStructural(err), errors.Is(err, service.ErrUnreadableInput):
		return "invalid_input"
	case model.IsRetryable(err), errors.Is(err, model.ErrRequestNotPending):
		return "conflict"
	case errors.Is(err, model.ErrNegativeStockUnconfirmed):
		return "confirmation_required"
	case errors.Is(err, model.ErrNegativeStockBlocked):
		return "negative_stock_blocked"
	case errors.Is(err, model.ErrReasonRequired):
		return "reason_required"
	case errors.Is(err, model.ErrNotPrimaryApprover), errors.Is(err, model.ErrNotRequester):
		return "forbidden"
	}
	return "internal"
}

func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "Internal Server Error", "kind": "internal"})
	}
	return c.Status(status).JSON(fiber.Map{
		"error":     err.Error(),
		"kind":      kindFor(err),
		"retryable": model.IsRetryable(err),
	})
}

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// validate checks request bodies that never reach a service validator.
func validate(req interface{}) error {
	if msg := validator.FirstError(req); msg != "" {
		return &model.ValidationError{Message: msg}
	}
	return nil
}
