package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/card_issuing/internal/funding"
	"github.com/congo-pay/card_issuing/internal/issuing"
)

// RegisterOperationRoutes wires the scheme webhooks, clearing, balance lookup
// and load money endpoints.
func RegisterOperationRoutes(r fiber.Router, h *issuing.Handler, f *funding.Handler) {
	ops := r.Group("/operations")
	ops.Post("/auth", h.Authorisation)
	ops.Post("/presentment", h.Presentment)
	ops.Post("/clearing", h.Clearing)
	ops.Get("/balance", h.Balance)
	ops.Post("/load", f.Load)
}
