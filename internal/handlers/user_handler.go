package handlers

import (
	"github.com/gofiber/fiber/v2"

	"kasir/internal/middleware"
	"kasir/internal/services"
)

// UserHandler handles HTTP requests for user management. Every route is
// admin-gated by the user service.
type UserHandler struct {
	service *services.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// RegisterRoutes registers the user routes with the Fiber app.
func (h *UserHandler) RegisterRoutes(router fiber.Router) {
	users := router.Group("/users")
	users.Get("/", h.HandleList)
	users.Post("/", h.HandleCreate)
	users.Put("/:id", h.HandleUpdate)
	users.Patch("/:id", h.HandleUpdate)
	users.Delete("/:id", h.HandleDelete)
}

// HandleList returns all users. Password hashes are excluded by the model's
// JSON serialization.
func (h *UserHandler) HandleList(c *fiber.Ctx) error {
	users, err := h.service.List(middleware.CallerRole(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// HandleCreate creates a new user.
func (h *UserHandler) HandleCreate(c *fiber.Ctx) error {
	var req services.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	user, err := h.service.Create(middleware.CallerRole(c), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

// HandleUpdate applies a partial update to a user.
func (h *UserHandler) HandleUpdate(c *fiber.Ctx) error {
	var req services.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	user, err := h.service.Update(middleware.CallerRole(c), c.Params("id"), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"user":    user,
	})
}

// HandleDelete removes a user.
func (h *UserHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.service.Delete(middleware.CallerRole(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "User deleted successfully",
	})
}
