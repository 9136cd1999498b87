package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campus-market/campus_market/internal/session"
)

// RegisterAuthRoutes wires registration, verification and sign-in endpoints.
func RegisterAuthRoutes(r fiber.Router, h *session.Handler, rateLimiter, requireSession fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", h.Register)
	group.Post("/verify", rateLimiter, h.Verify)
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/logout", requireSession, h.Logout)
}
