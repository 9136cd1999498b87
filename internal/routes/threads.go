package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campus-market/campus_market/internal/session"
)

// RegisterThreadRoutes wires the messaging endpoints.
func RegisterThreadRoutes(r fiber.Router, h *session.Handler, requireSession fiber.Handler) {
	group := r.Group("/threads", requireSession)
	group.Get("/", h.Threads)
	group.Get("/:userId", h.Thread)
	group.Post("/:userId/messages", h.SendMessage)
}
