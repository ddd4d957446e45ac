package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/card_issuing/internal/ledger"
	"github.com/congo-pay/card_issuing/internal/respond"
	"github.com/congo-pay/card_issuing/internal/validation"
)

// Handler exposes the load money operation.
type Handler struct {
	service   *Service
	validator *validation.Validator
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service, validator *validation.Validator) *Handler {
	return &Handler{service: service, validator: validator}
}

// Load funds one or more cardholders with the same amount.
func (h *Handler) Load(c *fiber.Ctx) error {
	var req LoadRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return respond.Invalid(validation.Details(err))
	}
	if !validation.Cents(req.Amount) {
		return respond.Invalid(map[string]string{"amount": "at most two decimal places"})
	}

	results, err := h.service.Load(c.UserContext(), req.Amount, req.Cardholders...)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return err
		}
	}
	return respond.OK(c, toResponse(results))
}
