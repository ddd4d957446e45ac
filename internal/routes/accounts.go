package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/card_issuing/internal/accounts"
)

// RegisterAccountRoutes wires account administration endpoints.
func RegisterAccountRoutes(r fiber.Router, h *accounts.Handler) {
	r.Get("/accounts", h.List)
	r.Post("/accounts", h.Create)
	r.Get("/accounts/:id", h.Get)
	r.Patch("/accounts/:id", h.Update)
	r.Get("/accounts/:id/transactions", h.Transactions)
}
