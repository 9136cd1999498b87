package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/campus-market/campus_market/internal/auth"
	"github.com/campus-market/campus_market/internal/session"
)

// SessionAuth validates the bearer access token and stores the user id for session handlers.
func SessionAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		userID, err := tokens.Verify(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid or revoked token")
		}
		c.Locals(session.UserIDLocal, userID)
		return c.Next()
	}
}
