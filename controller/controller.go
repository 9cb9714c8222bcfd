package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"storefront-service/service"
	"storefront-service/store"
)

// httpStatus maps core error kinds to transport codes; the core itself never
// sees HTTP.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, store.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, store.ErrFulfillmentPending):
		return fiber.StatusAccepted
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrNoCardAvailable):
		return fiber.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInsufficientBalance),
		errors.Is(err, store.ErrAmountMismatch),
		errors.Is(err, store.ErrMalformedCallback),
		errors.Is(err, store.ErrCardNotUsed),
		errors.Is(err, store.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidQuantity),
		errors.Is(err, store.ErrProductInactive),
		errors.Is(err, store.ErrDuplicate):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(httpStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func actorFrom(c *fiber.Ctx) service.Actor {
	userID, _ := c.Locals("user_id").(uint)
	admin, _ := c.Locals("is_admin").(bool)
	return service.Actor{UserID: userID, Admin: admin}
}
