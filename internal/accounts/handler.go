package accounts

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/congo-pay/card_issuing/internal/ledger"
	"github.com/congo-pay/card_issuing/internal/respond"
	"github.com/congo-pay/card_issuing/internal/validation"
)

const defaultHistory = 50

// Handler exposes account administration endpoints.
type Handler struct {
	service   *Service
	validator *validation.Validator
}

// NewHandler builds an accounts HTTP handler.
func NewHandler(service *Service, validator *validation.Validator) *Handler {
	return &Handler{service: service, validator: validator}
}

// List returns every account.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return respond.OK(c, out)
}

// Get returns one account.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	account, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return respond.OK(c, toAccountResponse(account))
}

// Create opens an account with zero balances.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return respond.Invalid(validation.Details(err))
	}
	account, err := h.service.Create(c.UserContext(), CreateInput{Name: req.Name, Type: req.Type, Currency: req.Currency})
	if err != nil {
		return httpError(err)
	}
	return respond.Status(c, http.StatusCreated, toAccountResponse(account))
}

// Update renames an account or changes its currency.
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return respond.Invalid(validation.Details(err))
	}
	account, err := h.service.Update(c.UserContext(), id, UpdateInput{Name: req.Name, Currency: req.Currency})
	if err != nil {
		return httpError(err)
	}
	return respond.OK(c, toAccountResponse(account))
}

// Transactions returns the latest transactions of an account.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", defaultHistory)
	if limit <= 0 || limit > 500 {
		return respond.Invalid(map[string]string{"limit": "must be between 1 and 500"})
	}
	txns, err := h.service.Transactions(c.UserContext(), id, limit)
	if err != nil {
		return httpError(err)
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	return respond.OK(c, out)
}

func accountID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, respond.Invalid(map[string]string{"id": "must be a uuid"})
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrDuplicateAccount):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrUnknownAccountType), errors.Is(err, ErrNameRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
