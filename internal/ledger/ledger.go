package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks the balance
	// required by a lifecycle operation.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateMessage indicates a scheme message with the same type and
	// transaction id was already processed.
	ErrDuplicateMessage = errors.New("duplicate scheme message")

	// ErrAccountNotFound is returned when a card, cardholder or id does not
	// resolve to a stored account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrHoldNotFound is returned when a presentment has no matching hold.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrInvalidAmount rejects non-positive movements.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAlreadyCleared indicates the settlement window was already cleared.
	ErrAlreadyCleared = errors.New("settlement window already cleared")

	// ErrDuplicateAccount indicates an account name is taken.
	ErrDuplicateAccount = errors.New("account name already exists")

	// ErrUnknownAccountType indicates an account type outside asset, liability
	// and equity.
	ErrUnknownAccountType = errors.New("unknown account type")
)

// DefaultCurrency is used for accounts created without one.
const DefaultCurrency = "EUR"

// AccountType places an account on one side of Assets = Liabilities + Equity.
type AccountType int16

const (
	AccountTypeAsset     AccountType = 1
	AccountTypeLiability AccountType = 2
	AccountTypeEquity    AccountType = 3
)

// ParseAccountType accepts the lower-case names used in configuration and the API.
func ParseAccountType(s string) (AccountType, error) {
	switch s {
	case "asset":
		return AccountTypeAsset, nil
	case "liability":
		return AccountTypeLiability, nil
	case "equity":
		return AccountTypeEquity, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAccountType, s)
	}
}

func (t AccountType) String() string {
	switch t {
	case AccountTypeAsset:
		return "asset"
	case AccountTypeLiability:
		return "liability"
	case AccountTypeEquity:
		return "equity"
	default:
		return fmt.Sprintf("account_type(%d)", int16(t))
	}
}

// Sign is the coefficient of the account type in the identity
// 0 = Liabilities + Equity - Assets.
func Sign(t AccountType) (int64, error) {
	switch t {
	case AccountTypeAsset:
		return -1, nil
	case AccountTypeLiability, AccountTypeEquity:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownAccountType, int16(t))
	}
}

// Direction normalises entry signs for a movement towards an account of type to.
func Direction(to AccountType) (int64, error) {
	sign, err := Sign(to)
	if err != nil {
		return 0, err
	}
	if sign == 1 {
		return -1, nil
	}
	return 1, nil
}

// Status of a ledger transaction. It is fixed when the transaction is created.
type Status int16

const (
	StatusCanceled  Status = -1
	StatusHold      Status = 0
	StatusProcessed Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusCanceled:
		return "canceled"
	case StatusHold:
		return "hold"
	case StatusProcessed:
		return "processed"
	default:
		return fmt.Sprintf("status(%d)", int16(s))
	}
}

// BalanceKind selects one of the two balances carried by every account.
type BalanceKind string

const (
	BalanceLedger    BalanceKind = "ledger"
	BalanceAvailable BalanceKind = "available"
)

// ParseBalanceKind defaults to the available balance when s is empty.
func ParseBalanceKind(s string) (BalanceKind, error) {
	switch BalanceKind(s) {
	case "", BalanceAvailable:
		return BalanceAvailable, nil
	case BalanceLedger:
		return BalanceLedger, nil
	default:
		return "", fmt.Errorf("unknown balance type %q", s)
	}
}

// Of returns the balance of kind k held by the account.
func (k BalanceKind) Of(a Account) decimal.Decimal {
	switch k {
	case BalanceLedger:
		return a.AmountLedger
	default:
		return a.AmountAvailable
	}
}

// Statuses lists the transaction statuses whose transfers move balance k.
func (k BalanceKind) Statuses() []Status {
	switch k {
	case BalanceLedger:
		return []Status{StatusProcessed}
	default:
		return []Status{StatusHold, StatusCanceled, StatusProcessed}
	}
}

// Account is one node of the ledger.
type Account struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Type            AccountType     `json:"type"`
	Currency        string          `json:"currency"`
	AmountAvailable decimal.Decimal `json:"amount_available"`
	AmountLedger    decimal.Decimal `json:"amount_ledger"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Transaction groups the two transfers of one money movement.
type Transaction struct {
	ID                    uuid.UUID       `json:"id"`
	CreatedAt             time.Time       `json:"created_at"`
	Status                Status          `json:"status"`
	Amount                decimal.Decimal `json:"amount"`
	ExternalTransactionID *string         `json:"external_transaction_id,omitempty"`
	Transfers             []Transfer      `json:"transfers,omitempty"`
}

// TransferType is derived from the sign of a transfer amount.
type TransferType string

const (
	TransferDebit  TransferType = "debit"
	TransferCredit TransferType = "credit"
)

// Transfer is a single signed ledger entry.
type Transfer struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	// Delta is the change the transfer made to the account's balances.
	Delta     decimal.Decimal `json:"delta"`
	CreatedAt time.Time       `json:"created_at"`
}

// Type is empty for a zero amount.
func (t Transfer) Type() TransferType {
	switch t.Amount.Sign() {
	case -1:
		return TransferDebit
	case 1:
		return TransferCredit
	default:
		return ""
	}
}

// MessageType identifies the scheme webhook a message arrived on.
type MessageType string

const (
	MessageAuthorisation MessageType = "authorisation"
	MessagePresentment   MessageType = "presentment"
)

// SchemeMessage is the receipt of an inbound scheme webhook. (Type,
// TransactionID) is unique.
type SchemeMessage struct {
	ID                  uuid.UUID
	Type                MessageType
	CardID              string
	TransactionID       string
	MerchantName        string
	MerchantCountry     string
	MerchantMCC         int16
	MerchantCity        *string
	BillingAmount       decimal.Decimal
	BillingCurrency     string
	TransactionAmount   decimal.Decimal
	TransactionCurrency string
	SettlementAmount    *decimal.Decimal
	SettlementCurrency  *string
	ClearingID          *uuid.UUID
	CreatedAt           time.Time
}

// Clearing records one settlement run over the presentments it settled.
type Clearing struct {
	ID        uuid.UUID
	Window    string
	Liability decimal.Decimal
	Equity    decimal.Decimal
	Messages  int
	CreatedAt time.Time
}

// Balance is a point-in-time balance of one account.
type Balance struct {
	AccountID uuid.UUID
	Kind      BalanceKind
	Amount    decimal.Decimal
	Currency  string
	AsOf      time.Time
}

// String renders the balance as "<amount> <currency>".
func (b Balance) String() string {
	return fmt.Sprintf("%s %s", b.Amount.StringFixed(2), b.Currency)
}
