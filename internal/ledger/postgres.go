package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PostgresStore persists the ledger in PostgreSQL. Balances are updated in
// place under row locks taken with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed ledger store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx, now: time.Now().UTC()}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const accountColumns = `id, name, type, currency, amount_available, amount_ledger, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Currency, &a.AmountAvailable, &a.AmountLedger, &a.CreatedAt)
	return a, err
}

func (s *PostgresStore) Account(ctx context.Context, id uuid.UUID) (Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return a, err
}

func (s *PostgresStore) AccountByName(ctx context.Context, name string) (Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, name)
	}
	return a, err
}

func (s *PostgresStore) Accounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	if _, err := Sign(account.Type); err != nil {
		return Account{}, err
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	const query = `INSERT INTO accounts (id, name, type, currency, amount_available, amount_ledger)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING ` + accountColumns
	a, err := scanAccount(s.db.QueryRow(ctx, query,
		account.ID, account.Name, int16(account.Type), account.Currency, account.AmountAvailable, account.AmountLedger))
	if isUniqueViolation(err) {
		return Account{}, fmt.Errorf("%w: %q", ErrDuplicateAccount, account.Name)
	}
	return a, err
}

func (s *PostgresStore) UpdateAccountDetails(ctx context.Context, id uuid.UUID, name, currency string) (Account, error) {
	const query = `UPDATE accounts SET name = $2, currency = $3 WHERE id = $1 RETURNING ` + accountColumns
	a, err := scanAccount(s.db.QueryRow(ctx, query, id, name, currency))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	case isUniqueViolation(err):
		return Account{}, fmt.Errorf("%w: %q", ErrDuplicateAccount, name)
	}
	return a, err
}

func (s *PostgresStore) Movements(ctx context.Context, accountID uuid.UUID, since time.Time, statuses []Status) (decimal.Decimal, error) {
	const query = `
        SELECT COALESCE(SUM(tr.delta), 0)
        FROM transfers tr
        INNER JOIN transactions t ON t.id = tr.transaction_id
        WHERE tr.account_id = $1 AND t.created_at >= $2 AND t.status = ANY($3::smallint[])`
	codes := make([]int16, len(statuses))
	for i, st := range statuses {
		codes[i] = int16(st)
	}
	var sum decimal.Decimal
	if err := s.db.QueryRow(ctx, query, accountID, since, codes).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, accountID uuid.UUID, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT t.id, t.created_at, t.status, t.amount, t.external_transaction_id
        FROM transactions t
        WHERE EXISTS (SELECT 1 FROM transfers tr WHERE tr.transaction_id = t.id AND tr.account_id = $1)
        ORDER BY t.created_at DESC
        LIMIT $2`
	rows, err := s.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []Transaction
		ids   []uuid.UUID
		index = make(map[uuid.UUID]int)
	)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.Status, &t.Amount, &t.ExternalTransactionID); err != nil {
			return nil, err
		}
		index[t.ID] = len(out)
		ids = append(ids, t.ID)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	trRows, err := s.db.Query(ctx, `SELECT id, account_id, transaction_id, amount, delta, created_at
        FROM transfers WHERE transaction_id = ANY($1::uuid[]) ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, err
	}
	defer trRows.Close()
	for trRows.Next() {
		var tr Transfer
		if err := trRows.Scan(&tr.ID, &tr.AccountID, &tr.TransactionID, &tr.Amount, &tr.Delta, &tr.CreatedAt); err != nil {
			return nil, err
		}
		i := index[tr.TransactionID]
		out[i].Transfers = append(out[i].Transfers, tr)
	}
	return out, trRows.Err()
}

type pgTx struct {
	tx  pgx.Tx
	now time.Time
}

func (t *pgTx) Now() time.Time { return t.now }

func (t *pgTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*Account, error) {
	keys := append([]uuid.UUID(nil), ids...)
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	rows, err := t.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = &a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
	}
	return out, nil
}

func (t *pgTx) SaveBalances(ctx context.Context, accounts ...*Account) error {
	for _, a := range accounts {
		tag, err := t.tx.Exec(ctx, `UPDATE accounts SET amount_available = $2, amount_ledger = $3 WHERE id = $1`,
			a.ID, a.AmountAvailable, a.AmountLedger)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, a.ID)
		}
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn Transaction) error {
	if _, err := t.tx.Exec(ctx, `INSERT INTO transactions (id, created_at, status, amount, external_transaction_id)
        VALUES ($1, $2, $3, $4, $5)`, txn.ID, txn.CreatedAt, int16(txn.Status), txn.Amount, txn.ExternalTransactionID); err != nil {
		return err
	}
	for _, tr := range txn.Transfers {
		if _, err := t.tx.Exec(ctx, `INSERT INTO transfers (id, account_id, transaction_id, amount, delta, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)`, tr.ID, tr.AccountID, tr.TransactionID, tr.Amount, tr.Delta, tr.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) OpenHold(ctx context.Context, accountID uuid.UUID, externalID string) (Transfer, error) {
	const query = `
        SELECT tr.id, tr.account_id, tr.transaction_id, tr.amount, tr.delta, tr.created_at
        FROM transfers tr
        INNER JOIN transactions t ON t.id = tr.transaction_id
        WHERE tr.account_id = $1 AND t.external_transaction_id = $2 AND t.status = $3
        ORDER BY t.created_at DESC
        LIMIT 1`
	var tr Transfer
	err := t.tx.QueryRow(ctx, query, accountID, externalID, int16(StatusHold)).
		Scan(&tr.ID, &tr.AccountID, &tr.TransactionID, &tr.Amount, &tr.Delta, &tr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, fmt.Errorf("%w: account %s, transaction %q", ErrHoldNotFound, accountID, externalID)
	}
	return tr, err
}

func (t *pgTx) InsertMessage(ctx context.Context, msg SchemeMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = t.now
	}
	const query = `INSERT INTO scheme_messages (
            id, type, card_id, transaction_id, merchant_name, merchant_country, merchant_mcc, merchant_city,
            billing_amount, billing_currency, transaction_amount, transaction_currency,
            settlement_amount, settlement_currency, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := t.tx.Exec(ctx, query,
		msg.ID, string(msg.Type), msg.CardID, msg.TransactionID, msg.MerchantName, msg.MerchantCountry, msg.MerchantMCC, msg.MerchantCity,
		msg.BillingAmount, msg.BillingCurrency, msg.TransactionAmount, msg.TransactionCurrency,
		msg.SettlementAmount, msg.SettlementCurrency, msg.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %q", ErrDuplicateMessage, msg.Type, msg.TransactionID)
	}
	return err
}

func (t *pgTx) PendingPresentments(ctx context.Context) ([]SchemeMessage, error) {
	const query = `
        SELECT id, type, card_id, transaction_id, merchant_name, merchant_country, merchant_mcc, merchant_city,
            billing_amount, billing_currency, transaction_amount, transaction_currency,
            settlement_amount, settlement_currency, created_at
        FROM scheme_messages
        WHERE type = $1 AND clearing_id IS NULL
        ORDER BY created_at
        FOR UPDATE`
	rows, err := t.tx.Query(ctx, query, string(MessagePresentment))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SchemeMessage
	for rows.Next() {
		var (
			m    SchemeMessage
			kind string
		)
		if err := rows.Scan(&m.ID, &kind, &m.CardID, &m.TransactionID, &m.MerchantName, &m.MerchantCountry, &m.MerchantMCC, &m.MerchantCity,
			&m.BillingAmount, &m.BillingCurrency, &m.TransactionAmount, &m.TransactionCurrency,
			&m.SettlementAmount, &m.SettlementCurrency, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MessageType(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertClearing(ctx context.Context, clearing Clearing, messageIDs []uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO clearings (id, window_key, liability, equity, messages, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		clearing.ID, clearing.Window, clearing.Liability, clearing.Equity, clearing.Messages, clearing.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %q", ErrAlreadyCleared, clearing.Window)
	}
	if err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}
	_, err = t.tx.Exec(ctx, `UPDATE scheme_messages SET clearing_id = $1 WHERE id = ANY($2::uuid[])`, clearing.ID, messageIDs)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
