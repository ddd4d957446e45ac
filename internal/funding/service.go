package funding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/card_issuing/internal/ledger"
	"github.com/congo-pay/card_issuing/internal/notification"
)

// Resolver finds the ledger account of a cardholder.
type Resolver interface {
	AccountForCardholder(ctx context.Context, cardholder string) (ledger.Account, error)
}

// Service loads money onto cardholder accounts out of the issuer's equity.
type Service struct {
	store    ledger.Store
	registry ledger.Registry
	resolver Resolver
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a funding service.
func NewService(store ledger.Store, registry ledger.Registry, resolver Resolver, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, registry: registry, resolver: resolver, notifier: notifier, logger: logger}
}

// LoadResult reports the balances of a funded cardholder after a load.
type LoadResult struct {
	Cardholder string
	Account    ledger.Account
	Reference  string
}

// Load credits amount to every cardholder in one atomic unit. For each of them
// the equity funds the cardholder account and the bank, both as PROCESSED
// movements. Every cardholder is resolved before anything is booked.
func (s *Service) Load(ctx context.Context, amount decimal.Decimal, cardholders ...string) ([]LoadResult, error) {
	if amount.Sign() <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if len(cardholders) == 0 {
		return nil, fmt.Errorf("no cardholder to load")
	}

	accounts := make([]ledger.Account, 0, len(cardholders))
	for _, name := range cardholders {
		acc, err := s.resolver.AccountForCardholder(ctx, name)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	ref := "load-" + uuid.NewString()
	equityID, bankID := s.registry.Equity.ID, s.registry.Bank.ID
	results := make([]LoadResult, len(accounts))
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		ids := []uuid.UUID{equityID, bankID}
		for _, acc := range accounts {
			ids = append(ids, acc.ID)
		}
		locked, err := tx.LockAccounts(ctx, ids...)
		if err != nil {
			return err
		}

		for i, acc := range accounts {
			holder := locked[acc.ID]
			if _, err := ledger.TransferTo(ctx, tx, locked[equityID], holder, amount, ledger.StatusProcessed, &ref); err != nil {
				return fmt.Errorf("fund %s: %w", cardholders[i], err)
			}
			if _, err := ledger.TransferTo(ctx, tx, locked[equityID], locked[bankID], amount, ledger.StatusProcessed, &ref); err != nil {
				return fmt.Errorf("fund bank for %s: %w", cardholders[i], err)
			}
			results[i] = LoadResult{Cardholder: cardholders[i], Reference: ref}
		}
		for i, acc := range accounts {
			results[i].Account = *locked[acc.ID]
		}
		return nil
	})
	if err != nil {
		s.logger.Error("load money failed", "cardholders", cardholders, "amount", amount.StringFixed(2), "error", err)
		return nil, err
	}

	for _, r := range results {
		s.logger.Info("money loaded", "cardholder", r.Cardholder, "amount", amount.StringFixed(2), "reference", ref)
		if s.notifier == nil {
			continue
		}
		msg := notification.Message{
			Kind:        notification.KindFunded,
			Destination: r.Account.Name,
			Body:        fmt.Sprintf("%s %s loaded", amount.StringFixed(2), r.Account.Currency),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("notification failed", "kind", msg.Kind, "error", err)
		}
	}
	return results, nil
}
