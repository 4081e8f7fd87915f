package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"kasir/internal/repositories"
	"kasir/internal/services"
)

// respondError maps service errors onto HTTP responses. Validation failures
// become a 422 with a field-to-message body, authorization failures 403,
// missing records 404, bad query parameters 400 and anything else a
// logged 500.
func respondError(c *fiber.Ctx, err error) error {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ve.Fields)
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "This action is unauthorized",
		})
	case errors.Is(err, repositories.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Resource not found",
		})
	case errors.Is(err, services.ErrBadRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Internal server error",
		})
	}
}
