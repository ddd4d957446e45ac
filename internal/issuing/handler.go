package issuing

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/card_issuing/internal/ledger"
	"github.com/congo-pay/card_issuing/internal/respond"
	"github.com/congo-pay/card_issuing/internal/validation"
)

const authorisedDetail = "Authorization success"

// Handler exposes the scheme webhooks, clearing trigger and balance lookup.
type Handler struct {
	service   *Service
	directory *Directory
	validator *validation.Validator
}

// NewHandler constructs an issuing handler.
func NewHandler(service *Service, directory *Directory, validator *validation.Validator) *Handler {
	return &Handler{service: service, directory: directory, validator: validator}
}

// Authorisation handles the scheme's authorisation webhook.
func (h *Handler) Authorisation(c *fiber.Ctx) error {
	msg, err := h.parseMessage(c, ledger.MessageAuthorisation)
	if err != nil {
		return err
	}
	if err := h.service.Authorise(c.UserContext(), msg); err != nil {
		return httpError(err)
	}
	return respond.OK(c, authorisedDetail)
}

// Presentment handles the scheme's presentment webhook.
func (h *Handler) Presentment(c *fiber.Ctx) error {
	msg, err := h.parseMessage(c, ledger.MessagePresentment)
	if err != nil {
		return err
	}
	if err := h.service.Present(c.UserContext(), msg); err != nil {
		return httpError(err)
	}
	return respond.OK(c, authorisedDetail)
}

// Clearing clears every pending presentment.
func (h *Handler) Clearing(c *fiber.Ctx) error {
	var req ClearingRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if err := h.validator.Struct(req); err != nil {
		return respond.Invalid(validation.Details(err))
	}

	result, err := h.service.Clear(c.UserContext(), req.Window)
	if err != nil {
		return httpError(err)
	}
	return respond.OK(c, result.Lines())
}

// Balance returns the card's balance as "<amount> <currency>".
func (h *Handler) Balance(c *fiber.Ctx) error {
	var q BalanceQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validator.Struct(q); err != nil {
		return respond.Invalid(validation.Details(err))
	}
	if !h.directory.KnownCard(q.CardID) {
		return respond.Invalid(map[string]string{"card_id": "card is not supported"})
	}
	at, ok := parseDateTime(q.DateTime)
	if !ok {
		return respond.Invalid(map[string]string{"date_time": "expected format YYYY-MM-DDTHH:MM:SS"})
	}
	kind, err := ledger.ParseBalanceKind(q.BalanceType)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	bal, err := h.service.Balance(c.UserContext(), q.CardID, at, kind)
	if err != nil {
		return httpError(err)
	}
	return respond.OK(c, bal.String())
}

func (h *Handler) parseMessage(c *fiber.Ctx, want ledger.MessageType) (ledger.SchemeMessage, error) {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return ledger.SchemeMessage{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return ledger.SchemeMessage{}, respond.Invalid(validation.Details(err))
	}

	details := map[string]string{}
	if ledger.MessageType(req.Type) != want {
		details["type"] = "wrong type, expected " + string(want)
	}
	if !h.directory.KnownCard(req.CardID) {
		details["card_id"] = "card is not supported"
	}
	for field, amount := range req.amounts() {
		if !validation.Cents(amount) {
			details[field] = "at most two decimal places"
		}
	}
	if len(details) > 0 {
		return ledger.SchemeMessage{}, respond.Invalid(details)
	}
	return req.toMessage(), nil
}

// httpError maps service errors onto API status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusForbidden, "insufficient funds")
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrHoldNotFound):
		return fiber.NewError(http.StatusNotFound, "no open hold for this transaction")
	case errors.Is(err, ledger.ErrDuplicateMessage):
		return fiber.NewError(http.StatusConflict, "duplicated data")
	case errors.Is(err, ledger.ErrAlreadyCleared):
		return fiber.NewError(http.StatusConflict, "settlement window already cleared")
	default:
		return err
	}
}
