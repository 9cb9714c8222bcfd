package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Auth trusts the identity headers stamped by the gateway in front of this
// service; session issuance itself lives outside the core. Handlers read the
// identity from c.Locals.
func Auth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-User-ID")
		if raw == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing identity"})
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			return c.Status(401).JSON(fiber.Map{"error": "invalid identity"})
		}

		c.Locals("user_id", uint(id))
		c.Locals("is_admin", c.Get("X-User-Role") == "admin")

		return c.Next()
	}
}

// AdminOnly gates the operator surface; it must run after Auth.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if admin, _ := c.Locals("is_admin").(bool); !admin {
			return c.Status(403).JSON(fiber.Map{"error": "admin only"})
		}
		return c.Next()
	}
}
