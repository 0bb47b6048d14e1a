package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/cyclebees/internal/config"
	"github.com/example/cyclebees/internal/utils"
)

const identityContextKey = "currentIdentity"

// AuthMiddleware validates JWT tokens and loads the caller's identity into context.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		identity, err := utils.ParseToken(cfg.JWTSecret, strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(identityContextKey, identity)
		return c.Next()
	}
}

// RequireRole rejects callers whose token does not carry role. Must run after AuthMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := GetIdentity(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		if identity.Role != role {
			return fiber.NewError(fiber.StatusForbidden, role+" access required")
		}
		return c.Next()
	}
}

// RequireAdmin is RequireRole(utils.RoleAdmin).
func RequireAdmin() fiber.Handler {
	return RequireRole(utils.RoleAdmin)
}

// GetIdentity extracts the authenticated identity from context.
func GetIdentity(c *fiber.Ctx) (utils.Identity, bool) {
	identity, ok := c.Locals(identityContextKey).(utils.Identity)
	return identity, ok
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	identity, ok := GetIdentity(c)
	if !ok {
		return uuid.Nil, false
	}
	return identity.ID, true
}
