package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"kasir/internal/models"
	"kasir/internal/services"
)

// Locals keys set by AuthRequired.
const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

// AuthRequired is a Fiber middleware that checks for a valid bearer token
// and stashes the caller's ID and role in the request Locals.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		claims, err := authService.VerifyToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
			})
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalRole, claims.Role)
		return c.Next()
	}
}

// CallerRole returns the authenticated caller's role from the Locals, or an
// empty role when the middleware has not run.
func CallerRole(c *fiber.Ctx) models.Role {
	if role, ok := c.Locals(LocalRole).(models.Role); ok {
		return role
	}
	return ""
}

// CallerID returns the authenticated caller's user ID from the Locals.
func CallerID(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalUserID).(string); ok {
		return id
	}
	return ""
}
