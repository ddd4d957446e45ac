package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store defines the contract implemented by ledger backends (e.g. Postgres).
// Balance fields are only ever written through a Tx by TransferTo.
type Store interface {
	// WithinTx runs fn as one all-or-nothing unit. Any error returned by fn
	// discards every write made through the Tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Account(ctx context.Context, id uuid.UUID) (Account, error)
	AccountByName(ctx context.Context, name string) (Account, error)
	Accounts(ctx context.Context) ([]Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
	UpdateAccountDetails(ctx context.Context, id uuid.UUID, name, currency string) (Account, error)

	// Movements sums the balance changes (Transfer.Delta) booked on the account by
	// transactions created at or after since with one of the statuses.
	Movements(ctx context.Context, accountID uuid.UUID, since time.Time, statuses []Status) (decimal.Decimal, error)

	// Transactions lists the most recent transactions touching the account,
	// newest first, with their transfers.
	Transactions(ctx context.Context, accountID uuid.UUID, limit int) ([]Transaction, error)
}

// Tx is the view of the store inside one atomic unit.
type Tx interface {
	Now() time.Time

	// LockAccounts loads and locks the accounts for the rest of the unit.
	// Locks are taken in a stable order so concurrent units cannot deadlock.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*Account, error)
	SaveBalances(ctx context.Context, accounts ...*Account) error
	InsertTransaction(ctx context.Context, txn Transaction) error

	// OpenHold returns the most recent transfer on the account belonging to a
	// HOLD transaction with the external id.
	OpenHold(ctx context.Context, accountID uuid.UUID, externalID string) (Transfer, error)

	// InsertMessage fails with ErrDuplicateMessage when (type, transaction id)
	// was already stored.
	InsertMessage(ctx context.Context, msg SchemeMessage) error

	// PendingPresentments returns presentments not yet settled by a clearing.
	PendingPresentments(ctx context.Context) ([]SchemeMessage, error)

	// InsertClearing stores the run and attaches the messages to it. It fails
	// with ErrAlreadyCleared when the window was used before.
	InsertClearing(ctx context.Context, clearing Clearing, messageIDs []uuid.UUID) error
}
