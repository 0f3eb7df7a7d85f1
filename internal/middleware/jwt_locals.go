package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/finitixhub/finitix_be/internal/utils"
)

// AttachJWTLocals copies the verified claims into userId, role and session locals.
func AttachJWTLocals() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("user").(*utils.Claims)
		if !ok || claims == nil {
			return fiber.ErrUnauthorized
		}

		uid := strings.TrimSpace(claims.UserID)
		role := strings.ToLower(strings.TrimSpace(claims.Role))

		if uid == "" {
			return fiber.ErrUnauthorized
		}

		c.Locals("userId", uid)
		c.Locals("role", role)
		c.Locals("sessionId", claims.ID)
		if claims.ExpiresAt != nil {
			c.Locals("sessionExp", claims.ExpiresAt.Time)
		}

		return c.Next()
	}
}
