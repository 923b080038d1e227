package handler

import (
	"errors"

	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type UserHandler struct {
	userService service.UserService
	log         *zap.Logger
}

func NewUserHandler(userService service.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, log: log}
}

func userErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return 404
	case errors.Is(err, service.ErrEmailExists):
		return 409
	}
	return 400
}

// CreateUser handles user creation
// POST /api/v1/users
func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req service.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	user, err := h.userService.CreateUser(&req, middleware.CurrentActor(c).ID)
	if err != nil {
		return c.Status(userErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	h.log.Info("user created", zap.String("user_id", user.ID.String()), zap.Bool("primary_approver", user.IsPrimaryApprover))
	return c.Status(201).JSON(fiber.Map{
		"message": "User created successfully",
		"data":    user.ToResponse(),
	})
}

// UpdateUserPrivileges handles privilege assignment
// PUT /api/v1/users/:id/privileges
func (h *UserHandler) UpdateUserPrivileges(c *fiber.Ctx) error {
	userID, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	var req struct {
		Privileges []string `json:"privileges"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	user, err := h.userService.UpdateUserPrivileges(userID, req.Privileges, middleware.CurrentActor(c).ID)
	if err != nil {
		return c.Status(userErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"message": "Privileges updated successfully",
		"data":    user.ToResponse(),
	})
}

// SetPrimaryApprover designates or removes a reviewer of approval requests
// PUT /api/v1/users/:id/primary-approver
func (h *UserHandler) SetPrimaryApprover(c *fiber.Ctx) error {
	userID, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	var req struct {
		Primary *bool `json:"is_primary_approver"`
	}
	if err := c.BodyParser(&req); err != nil || req.Primary == nil {
		return c.Status(400).JSON(fiber.Map{"error": "is_primary_approver is required"})
	}

	user, err := h.userService.SetPrimaryApprover(userID, *req.Primary)
	if err != nil {
		return c.Status(userErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	h.log.Info("primary approver changed",
		zap.String("user_id", userID.String()),
		zap.Bool("primary_approver", *req.Primary),
		zap.String("changed_by", middleware.CurrentActor(c).ID))
	return c.JSON(fiber.Map{
		"message": "Primary approver updated",
		"data":    user.ToResponse(),
	})
}

// GetUsers returns all users
// GET /api/v1/users
func (h *UserHandler) GetUsers(c *fiber.Ctx) error {
	users, err := h.userService.GetAllUsers()
	if err != nil {
		h.log.Error("list users", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch users"})
	}
	return c.JSON(users)
}

// GetUser returns a single user by ID
// GET /api/v1/users/:id
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	userID, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	user, err := h.userService.GetUserByID(userID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "User not found"})
	}

	return c.JSON(user)
}

// UpdateUser handles user update
// PUT /api/v1/users/:id
func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	userID, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	var req service.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	user, err := h.userService.UpdateUser(userID, &req, middleware.CurrentActor(c).ID)
	if err != nil {
		return c.Status(userErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"data":    user.ToResponse(),
	})
}

// DeleteUser handles user deletion
// DELETE /api/v1/users/:id
func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	userID, ok := parseUUIDParam(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	if middleware.CurrentActor(c).ID == userID.String() {
		return c.Status(400).JSON(fiber.Map{"error": "You cannot delete your own account"})
	}

	if err := h.userService.DeleteUser(userID); err != nil {
		return c.Status(userErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "User deleted successfully"})
}
