package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// Authenticator is satisfied by cartridge's session manager.
type Authenticator interface {
	IsAuthenticated(c *fiber.Ctx) bool
}

// DashboardAuth guards the dashboard read endpoints. Unlike the session
// manager's own middleware it answers with JSON instead of redirecting, as
// every caller is the dashboard's fetch client. With required false every
// request passes.
func DashboardAuth(sessions Authenticator, required bool, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !required || sessions.IsAuthenticated(c) {
			return c.Next()
		}

		logger.Debug("Rejected unauthenticated dashboard request",
			slog.String("path", c.Path()),
			slog.String("method", c.Method()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Authentication required",
		})
	}
}
