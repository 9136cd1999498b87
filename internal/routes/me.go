package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campus-market/campus_market/internal/session"
)

// RegisterMeRoutes wires the signed-in user's profile, dashboard and payout endpoints.
func RegisterMeRoutes(r fiber.Router, h *session.Handler, requireSession, idempotent fiber.Handler) {
	group := r.Group("/me", requireSession)
	group.Get("/", h.Me)
	group.Put("/biometric", h.SetBiometric)
	group.Get("/listings", h.MyListings)
	group.Get("/transactions", h.MyTransactions)
	group.Post("/payout", idempotent, h.Payout)
}
