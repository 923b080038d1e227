package handler

import (
	"strconv"
	"time"

	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	service service.InventoryService
	ledger  service.LedgerService
	log     *zap.Logger
}

func NewInventoryHandler(s service.InventoryService, ledger service.LedgerService, log *zap.Logger) *InventoryHandler {
	return &InventoryHandler{service: s, ledger: ledger, log: log}
}

// CreateItem handles item creation
// POST /api/v1/items
func (h *InventoryHandler) CreateItem(c *fiber.Ctx) error {
	var req service.CreateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	item, err := h.service.CreateItem(c.UserContext(), &req, middleware.CurrentActor(c))
	if err != nil {
		// The item exists even if its initial stock failed.
		if item != nil {
			return c.Status(207).JSON(fiber.Map{"message": err.Error(), "data": item})
		}
		return respondError(c, h.log, err)
	}

	return c.Status(201).JSON(fiber.Map{"message": "Item created", "data": item})
}

// GetItems lists items
// GET /api/v1/items?search=&category_id=&low_stock=true
func (h *InventoryHandler) GetItems(c *fiber.Ctx) error {
	categoryID, err := parseOptionalUUID(c.Query("category_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid category ID"})
	}
	items, err := h.service.GetItems(c.UserContext(), repository.ItemFilter{
		Search:       c.Query("search"),
		CategoryID:   categoryID,
		LowStockOnly: c.QueryBool("low_stock"),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(items)
}

// GET /api/v1/items/:id
func (h *InventoryHandler) GetItem(c *fiber.Ctx) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid item ID"})
	}
	item, err := h.service.GetItem(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(item)
}

// VerifyItem replays an item's ledger and compares it with the stored balance
// GET /api/v1/items/:id/verify
func (h *InventoryHandler) VerifyItem(c *fiber.Ctx) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid item ID"})
	}
	res, err := h.ledger.VerifyItem(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if !res.Consistent {
		h.log.Warn("ledger drift detected",
			zap.String("item_id", id.String()),
			zap.Int64("ledger_balance", res.LedgerBalance),
			zap.Int64("stored_balance", res.StoredBalance))
	}
	return c.JSON(res)
}

// POST /api/v1/locations
func (h *InventoryHandler) CreateLocation(c *fiber.Ctx) error {
	var req service.CreateLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	location, err := h.service.CreateLocation(c.UserContext(), &req, middleware.CurrentActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Location created", "data": location})
}

// GET /api/v1/locations
func (h *InventoryHandler) GetLocations(c *fiber.Ctx) error {
	locations, err := h.service.GetLocations(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(locations)
}

// POST /api/v1/categories
func (h *InventoryHandler) CreateCategory(c *fiber.Ctx) error {
	var req service.CreateCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	category, err := h.service.CreateCategory(c.UserContext(), &req, middleware.CurrentActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Category created", "data": category})
}

// GET /api/v1/categories
func (h *InventoryHandler) GetCategories(c *fiber.Ctx) error {
	categories, err := h.service.GetCategories(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(categories)
}

// RecordStock applies a stock movement or files it for approval. A request
// sent for approval answers 202.
// POST /api/v1/stock
func (h *InventoryHandler) RecordStock(c *fiber.Ctx) error {
	var req service.StockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	res, err := h.service.RecordStock(c.UserContext(), &req, middleware.CurrentActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if res.Status == service.StockPendingApproval {
		return c.Status(202).JSON(res)
	}
	return c.Status(201).JSON(res)
}

// PreviewStock evaluates a stock movement against the policy without applying it
// POST /api/v1/stock/preview
func (h *InventoryHandler) PreviewStock(c *fiber.Ctx) error {
	var req service.StockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	decision, err := h.service.PreviewStock(c.UserContext(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(decision)
}

// GetTransactions lists ledger rows, newest first
// GET /api/v1/transactions?item_id=&action=&from=&to=&limit=
func (h *InventoryHandler) GetTransactions(c *fiber.Ctx) error {
	itemID, err := parseOptionalUUID(c.Query("item_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid item ID"})
	}
	filter := repository.TransactionFilter{ItemID: itemID}
	if a := c.Query("action"); a != "" {
		action, ok := model.ParseActionClass(a)
		if !ok {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid action"})
		}
		filter.Action = action
	}
	if filter.From, err = parseDateQuery(c.Query("from")); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid from date, use YYYY-MM-DD"})
	}
	if filter.To, err = parseDateQuery(c.Query("to")); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid to date, use YYYY-MM-DD"})
	}
	if filter.To != nil {
		end := filter.To.AddDate(0, 0, 1)
		filter.To = &end
	}
	if limit, err := strconv.Atoi(c.Query("limit", "0")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	transactions, err := h.ledger.History(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(transactions)
}

// GET /api/v1/transactions/:id
func (h *InventoryHandler) GetTransaction(c *fiber.Ctx) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}
	tx, err := h.ledger.GetTransaction(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(tx)
}

func parseDateQuery(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
