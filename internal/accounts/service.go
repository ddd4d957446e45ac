package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/congo-pay/card_issuing/internal/ledger"
)

// ErrNameRequired rejects blank account names.
var ErrNameRequired = errors.New("account name is required")

// Service exposes account administration. Balances are read-only here; they
// only move through the ledger engine.
type Service struct {
	store           ledger.Store
	defaultCurrency string
}

// NewService builds an account administration service.
func NewService(store ledger.Store, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = ledger.DefaultCurrency
	}
	return &Service{store: store, defaultCurrency: defaultCurrency}
}

// CreateInput captures the data required to open an account.
type CreateInput struct {
	Name     string
	Type     string
	Currency string
}

// UpdateInput carries the editable details of an account. Empty fields keep
// their current value.
type UpdateInput struct {
	Name     string
	Currency string
}

// List returns every account, oldest first.
func (s *Service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.store.Accounts(ctx)
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return s.store.Account(ctx, id)
}

// Create opens an account with zero balances.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Account, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ledger.Account{}, ErrNameRequired
	}
	typ, err := ledger.ParseAccountType(input.Type)
	if err != nil {
		return ledger.Account{}, err
	}
	currency := input.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	return s.store.CreateAccount(ctx, ledger.Account{Name: name, Type: typ, Currency: currency})
}

// Update renames an account or changes its currency label.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (ledger.Account, error) {
	current, err := s.store.Account(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = current.Name
	}
	currency := input.Currency
	if currency == "" {
		currency = current.Currency
	}
	return s.store.UpdateAccountDetails(ctx, id, name, currency)
}

// Transactions lists the latest transactions touching the account.
func (s *Service) Transactions(ctx context.Context, id uuid.UUID, limit int) ([]ledger.Transaction, error) {
	if _, err := s.store.Account(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Transactions(ctx, id, limit)
}
