package issuing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/card_issuing/internal/ledger"
	"github.com/congo-pay/card_issuing/internal/notification"
)

// Service settles scheme messages against the ledger. Every operation runs as
// one atomic unit of the store.
type Service struct {
	store     ledger.Store
	registry  ledger.Registry
	directory *Directory
	notifier  notification.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the lifecycle service.
func NewService(store ledger.Store, registry ledger.Registry, directory *Directory, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		registry:  registry,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ClearingResult summarises one clearing run.
type ClearingResult struct {
	ID        uuid.UUID
	Window    string
	Liability decimal.Decimal
	Equity    decimal.Decimal
	Messages  int
	Currency  string
}

// Lines renders the result as ["liability: X EUR", "equity: Y EUR"].
func (r ClearingResult) Lines() []string {
	return []string{
		fmt.Sprintf("liability: %s %s", r.Liability.StringFixed(2), r.Currency),
		fmt.Sprintf("equity: %s %s", r.Equity.StringFixed(2), r.Currency),
	}
}

// Authorise places a hold of the billing amount on the card's account in
// favour of the bank. The message is recorded before the funds check, so a
// replay fails with ErrDuplicateMessage.
func (s *Service) Authorise(ctx context.Context, msg ledger.SchemeMessage) error {
	msg.Type = ledger.MessageAuthorisation
	if msg.BillingAmount.Sign() <= 0 {
		return fmt.Errorf("%w: billing amount", ledger.ErrInvalidAmount)
	}

	account, err := s.directory.AccountForCard(ctx, msg.CardID)
	if err != nil {
		return err
	}

	bankID := s.registry.Bank.ID
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		// a replayed message is a duplicate whatever the balance is now
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		locked, err := tx.LockAccounts(ctx, account.ID, bankID)
		if err != nil {
			return err
		}
		acc := locked[account.ID]
		if !msg.BillingAmount.LessThan(acc.AmountAvailable) {
			return fmt.Errorf("%w: available %s, requested %s", ledger.ErrInsufficientFunds, acc.AmountAvailable, msg.BillingAmount)
		}
		ref := msg.TransactionID
		_, err = ledger.TransferTo(ctx, tx, acc, locked[bankID], msg.BillingAmount, ledger.StatusHold, &ref)
		return err
	})
	if err != nil {
		s.failure("authorisation rejected", err, "card_id", msg.CardID, "transaction_id", msg.TransactionID)
		return err
	}

	s.logger.Info("authorisation accepted",
		"card_id", msg.CardID, "transaction_id", msg.TransactionID, "amount", msg.BillingAmount.StringFixed(2))
	s.notify(ctx, notification.KindAuthorised, account.Name,
		fmt.Sprintf("%s %s on hold at %s", msg.BillingAmount.StringFixed(2), msg.BillingCurrency, msg.MerchantName))
	return nil
}

// Present captures the hold opened by the authorisation with the same
// transaction id: the hold is released by a CANCELED reversal and the billing
// amount is booked as PROCESSED. Replays fail with ErrDuplicateMessage, as in
// Authorise.
func (s *Service) Present(ctx context.Context, msg ledger.SchemeMessage) error {
	msg.Type = ledger.MessagePresentment
	if msg.BillingAmount.Sign() <= 0 {
		return fmt.Errorf("%w: billing amount", ledger.ErrInvalidAmount)
	}
	if msg.SettlementAmount != nil && msg.SettlementAmount.GreaterThan(msg.BillingAmount) {
		return fmt.Errorf("%w: settlement amount exceeds billing amount", ledger.ErrInvalidAmount)
	}

	account, err := s.directory.AccountForCard(ctx, msg.CardID)
	if err != nil {
		return err
	}

	bankID := s.registry.Bank.ID
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		locked, err := tx.LockAccounts(ctx, account.ID, bankID)
		if err != nil {
			return err
		}
		acc, bank := locked[account.ID], locked[bankID]
		if !msg.BillingAmount.LessThan(acc.AmountLedger) {
			return fmt.Errorf("%w: ledger %s, requested %s", ledger.ErrInsufficientFunds, acc.AmountLedger, msg.BillingAmount)
		}

		hold, err := tx.OpenHold(ctx, acc.ID, msg.TransactionID)
		if err != nil {
			return err
		}
		ref := msg.TransactionID
		if _, err := ledger.TransferTo(ctx, tx, bank, acc, hold.Amount.Abs(), ledger.StatusCanceled, &ref); err != nil {
			return fmt.Errorf("release hold: %w", err)
		}
		if _, err := ledger.TransferTo(ctx, tx, acc, bank, msg.BillingAmount, ledger.StatusProcessed, &ref); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		return nil
	})
	if err != nil {
		s.failure("presentment rejected", err, "card_id", msg.CardID, "transaction_id", msg.TransactionID)
		return err
	}

	s.logger.Info("presentment settled",
		"card_id", msg.CardID, "transaction_id", msg.TransactionID, "amount", msg.BillingAmount.StringFixed(2))
	s.notify(ctx, notification.KindPresented, account.Name,
		fmt.Sprintf("%s %s charged by %s", msg.BillingAmount.StringFixed(2), msg.BillingCurrency, msg.MerchantName))
	return nil
}

// Clear settles every presentment not yet cleared: the bank pays the scheme
// the settlement total and keeps the margin as equity. An empty window gets a
// generated key; a window can only be cleared once.
func (s *Service) Clear(ctx context.Context, window string) (ClearingResult, error) {
	if window == "" {
		window = fmt.Sprintf("clearing-%d", s.now().UnixNano())
	}
	result := ClearingResult{ID: uuid.New(), Window: window, Currency: s.registry.Bank.Currency}

	bankID, schemeID, equityID := s.registry.Bank.ID, s.registry.Scheme.ID, s.registry.Equity.ID
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		pending, err := tx.PendingPresentments(ctx)
		if err != nil {
			return err
		}

		billing, settlement := decimal.Zero, decimal.Zero
		ids := make([]uuid.UUID, 0, len(pending))
		for _, m := range pending {
			billing = billing.Add(m.BillingAmount)
			if m.SettlementAmount != nil {
				settlement = settlement.Add(*m.SettlementAmount)
			}
			ids = append(ids, m.ID)
		}
		result.Liability = settlement
		result.Equity = billing.Sub(settlement)
		result.Messages = len(pending)
		if result.Equity.IsNegative() {
			return fmt.Errorf("%w: settlement total exceeds billing total", ledger.ErrInvalidAmount)
		}

		clearing := ledger.Clearing{
			ID:        result.ID,
			Window:    window,
			Liability: result.Liability,
			Equity:    result.Equity,
			Messages:  result.Messages,
			CreatedAt: tx.Now(),
		}
		if err := tx.InsertClearing(ctx, clearing, ids); err != nil {
			return err
		}

		locked, err := tx.LockAccounts(ctx, bankID, schemeID, equityID)
		if err != nil {
			return err
		}
		ref := window
		if result.Liability.IsPositive() {
			if _, err := ledger.TransferTo(ctx, tx, locked[bankID], locked[schemeID], result.Liability, ledger.StatusProcessed, &ref); err != nil {
				return fmt.Errorf("settle scheme: %w", err)
			}
		}
		if result.Equity.IsPositive() {
			if _, err := ledger.TransferTo(ctx, tx, locked[bankID], locked[equityID], result.Equity, ledger.StatusProcessed, &ref); err != nil {
				return fmt.Errorf("book margin: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.failure("clearing failed", err, "window", window)
		return ClearingResult{}, err
	}

	s.logger.Info("clearing completed", "window", window, "messages", result.Messages,
		"liability", result.Liability.StringFixed(2), "equity", result.Equity.StringFixed(2))
	s.notify(ctx, notification.KindCleared, s.registry.Scheme.Name, fmt.Sprintf("%v", result.Lines()))
	return result, nil
}

// Balance returns the card account's balance of kind, as of at when set.
func (s *Service) Balance(ctx context.Context, cardID string, at *time.Time, kind ledger.BalanceKind) (ledger.Balance, error) {
	account, err := s.directory.AccountForCard(ctx, cardID)
	if err != nil {
		return ledger.Balance{}, err
	}
	return ledger.BalanceAt(ctx, s.store, account, at, kind)
}

func (s *Service) failure(msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	if isClientError(err) {
		s.logger.Warn(msg, attrs...)
		return
	}
	s.logger.Error(msg, attrs...)
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body}); err != nil {
		s.logger.Warn("notification failed", "kind", kind, "error", err)
	}
}

// isClientError reports whether err is caused by the request rather than the
// service.
func isClientError(err error) bool {
	for _, target := range []error{
		ledger.ErrInsufficientFunds,
		ledger.ErrDuplicateMessage,
		ledger.ErrAccountNotFound,
		ledger.ErrHoldNotFound,
		ledger.ErrInvalidAmount,
		ledger.ErrAlreadyCleared,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
