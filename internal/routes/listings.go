package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campus-market/campus_market/internal/session"
)

// RegisterListingRoutes wires the catalog and purchase endpoints.
func RegisterListingRoutes(r fiber.Router, h *session.Handler, requireSession, idempotent fiber.Handler) {
	group := r.Group("/listings")
	group.Get("/", h.ListListings)
	group.Get("/:id", h.GetListing)
	group.Get("/:id/quote", h.Quote)
	group.Post("/", requireSession, h.Publish)
	group.Post("/:id/archive", requireSession, h.Archive)
	group.Post("/:id/purchase", requireSession, idempotent, h.Purchase)
}
