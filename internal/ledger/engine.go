package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferTo moves amount of value from one account to another as one
// transaction made of two offsetting transfers, and updates both accounts'
// balances: from loses amount and to gains it, on the available balance always
// and on the ledger balance only for PROCESSED movements.
//
// The entry amounts are normalised by Direction(to.Type) so they sum to zero,
// but across the two sides of the identity they no longer say which way value
// went; each transfer keeps the balance change it caused in Delta. Moving value
// between an asset and a liability or equity account shifts
// Assets - Liabilities - Equity by twice the amount, as clearing and funding
// do. No overdraft check is made here.
func TransferTo(ctx context.Context, tx Tx, from, to *Account, amount decimal.Decimal, status Status, externalID *string) (Transaction, error) {
	if amount.Sign() <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return Transaction{}, fmt.Errorf("%w: more than two decimal places", ErrInvalidAmount)
	}
	if from.ID == to.ID {
		return Transaction{}, fmt.Errorf("transfer from account %s to itself", from.ID)
	}

	direction, err := Direction(to.Type)
	if err != nil {
		return Transaction{}, err
	}
	if _, err := Sign(from.Type); err != nil {
		return Transaction{}, err
	}

	now := tx.Now()
	dir := decimal.NewFromInt(direction)
	txn := Transaction{
		ID:                    uuid.New(),
		CreatedAt:             now,
		Status:                status,
		ExternalTransactionID: externalID,
	}
	debit := Transfer{ID: uuid.New(), AccountID: from.ID, TransactionID: txn.ID,
		Amount: amount.Neg().Mul(dir), Delta: amount.Neg(), CreatedAt: now}
	credit := Transfer{ID: uuid.New(), AccountID: to.ID, TransactionID: txn.ID,
		Amount: amount.Mul(dir), Delta: amount, CreatedAt: now}
	txn.Transfers = []Transfer{debit, credit}
	txn.Amount = magnitude(txn.Transfers)

	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	apply(from, debit.Delta, status)
	apply(to, credit.Delta, status)

	if err := tx.SaveBalances(ctx, from, to); err != nil {
		return Transaction{}, fmt.Errorf("save balances: %w", err)
	}
	return txn, nil
}

func apply(a *Account, delta decimal.Decimal, status Status) {
	a.AmountAvailable = a.AmountAvailable.Add(delta)
	if status == StatusProcessed {
		a.AmountLedger = a.AmountLedger.Add(delta)
	}
}

// magnitude is the mean absolute transfer amount of a transaction.
func magnitude(transfers []Transfer) decimal.Decimal {
	if len(transfers) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, t := range transfers {
		sum = sum.Add(t.Amount.Abs())
	}
	return sum.Div(decimal.NewFromInt(int64(len(transfers))))
}

// BalanceAt returns the balance of kind for the account. With at set, the
// balance changes booked since at are taken back out of the current balance.
// Every status that moves the balance has to be rewound, so the available
// balance rewinds HOLD, CANCELED and PROCESSED movements, not holds alone: a
// hold released by its CANCELED reversal after at would otherwise be counted
// twice.
func BalanceAt(ctx context.Context, store Store, account Account, at *time.Time, kind BalanceKind) (Balance, error) {
	bal := Balance{
		AccountID: account.ID,
		Kind:      kind,
		Amount:    kind.Of(account),
		Currency:  account.Currency,
		AsOf:      time.Now().UTC(),
	}
	if at == nil {
		return bal, nil
	}

	moved, err := store.Movements(ctx, account.ID, *at, kind.Statuses())
	if err != nil {
		return Balance{}, fmt.Errorf("sum movements: %w", err)
	}
	bal.Amount = bal.Amount.Sub(moved)
	bal.AsOf = at.UTC()
	return bal, nil
}

// Imbalance returns sum(Sign(type) * balance) over the accounts; zero when
// Assets = Liabilities + Equity holds for that balance. Movements between
// accounts on the same side leave it unchanged.
func Imbalance(accounts []Account, kind BalanceKind) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range accounts {
		sign, err := Sign(a.Type)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(kind.Of(a).Mul(decimal.NewFromInt(sign)))
	}
	return total, nil
}

// Total returns the sum of the kind balances over the accounts. TransferTo
// never changes it, so a ledger whose balances all come from transfers totals
// zero.
func Total(accounts []Account, kind BalanceKind) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(kind.Of(a))
	}
	return total
}
