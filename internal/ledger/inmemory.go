package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type messageKey struct {
	kind MessageType
	id   string
}

type inMemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	accounts     map[uuid.UUID]Account
	names        map[string]uuid.UUID
	transactions map[uuid.UUID]Transaction
	transfers    []Transfer
	messages     map[messageKey]SchemeMessage
	order        []messageKey
	clearings    map[string]Clearing
}

// Option configures the in-memory store.
type Option func(*inMemoryStore)

// WithClock overrides the time source used to stamp transactions.
func WithClock(now func() time.Time) Option {
	return func(s *inMemoryStore) { s.now = now }
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local runs. Units are serialised and their writes staged until commit.
func NewInMemory(opts ...Option) Store {
	s := &inMemoryStore{
		now:          func() time.Time { return time.Now().UTC() },
		accounts:     make(map[uuid.UUID]Account),
		names:        make(map[string]uuid.UUID),
		transactions: make(map[uuid.UUID]Transaction),
		messages:     make(map[messageKey]SchemeMessage),
		clearings:    make(map[string]Clearing),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *inMemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:        s,
		accounts: make(map[uuid.UUID]*Account),
		cleared:  make(map[messageKey]uuid.UUID),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *inMemoryStore) Account(_ context.Context, id uuid.UUID) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return a, nil
}

func (s *inMemoryStore) AccountByName(_ context.Context, name string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[name]
	if !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, name)
	}
	return s.accounts[id], nil
}

func (s *inMemoryStore) Accounts(_ context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *inMemoryStore) CreateAccount(_ context.Context, account Account) (Account, error) {
	if _, err := Sign(account.Type); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.names[account.Name]; exists {
		return Account{}, fmt.Errorf("%w: %q", ErrDuplicateAccount, account.Name)
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now()
	}
	s.accounts[account.ID] = account
	s.names[account.Name] = account.ID
	return account, nil
}

func (s *inMemoryStore) UpdateAccountDetails(_ context.Context, id uuid.UUID, name, currency string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if other, taken := s.names[name]; taken && other != id {
		return Account{}, fmt.Errorf("%w: %q", ErrDuplicateAccount, name)
	}
	delete(s.names, a.Name)
	a.Name = name
	a.Currency = currency
	s.accounts[id] = a
	s.names[name] = id
	return a, nil
}

func (s *inMemoryStore) Movements(_ context.Context, accountID uuid.UUID, since time.Time, statuses []Status) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, tr := range s.transfers {
		if tr.AccountID != accountID {
			continue
		}
		txn := s.transactions[tr.TransactionID]
		if txn.CreatedAt.Before(since) || !hasStatus(statuses, txn.Status) {
			continue
		}
		sum = sum.Add(tr.Delta)
	}
	return sum, nil
}

func (s *inMemoryStore) Transactions(_ context.Context, accountID uuid.UUID, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	seen := make(map[uuid.UUID]bool)
	for i := len(s.transfers) - 1; i >= 0; i-- {
		tr := s.transfers[i]
		if tr.AccountID != accountID || seen[tr.TransactionID] {
			continue
		}
		seen[tr.TransactionID] = true
		out = append(out, s.transactions[tr.TransactionID])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func hasStatus(statuses []Status, status Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// memTx stages writes on top of the store; the store mutex is held by
// WithinTx for the life of the unit.
type memTx struct {
	s            *inMemoryStore
	accounts     map[uuid.UUID]*Account
	transactions []Transaction
	messages     []SchemeMessage
	clearings    []Clearing
	cleared      map[messageKey]uuid.UUID
}

func (t *memTx) Now() time.Time { return t.s.now() }

func (t *memTx) LockAccounts(_ context.Context, ids ...uuid.UUID) (map[uuid.UUID]*Account, error) {
	out := make(map[uuid.UUID]*Account, len(ids))
	for _, id := range ids {
		if staged, ok := t.accounts[id]; ok {
			out[id] = staged
			continue
		}
		a, ok := t.s.accounts[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		staged := a
		t.accounts[id] = &staged
		out[id] = &staged
	}
	return out, nil
}

func (t *memTx) SaveBalances(_ context.Context, accounts ...*Account) error {
	for _, a := range accounts {
		staged, ok := t.accounts[a.ID]
		if !ok {
			return fmt.Errorf("account %s saved without lock", a.ID)
		}
		staged.AmountAvailable = a.AmountAvailable
		staged.AmountLedger = a.AmountLedger
	}
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn Transaction) error {
	t.transactions = append(t.transactions, txn)
	return nil
}

func (t *memTx) OpenHold(_ context.Context, accountID uuid.UUID, externalID string) (Transfer, error) {
	var (
		found  Transfer
		foundT time.Time
		ok     bool
	)
	consider := func(txn Transaction, tr Transfer) {
		if tr.AccountID != accountID || txn.Status != StatusHold {
			return
		}
		if txn.ExternalTransactionID == nil || *txn.ExternalTransactionID != externalID {
			return
		}
		if !ok || !txn.CreatedAt.Before(foundT) {
			found, foundT, ok = tr, txn.CreatedAt, true
		}
	}
	for _, tr := range t.s.transfers {
		consider(t.s.transactions[tr.TransactionID], tr)
	}
	for _, txn := range t.transactions {
		for _, tr := range txn.Transfers {
			consider(txn, tr)
		}
	}
	if !ok {
		return Transfer{}, fmt.Errorf("%w: account %s, transaction %q", ErrHoldNotFound, accountID, externalID)
	}
	return found, nil
}

func (t *memTx) InsertMessage(_ context.Context, msg SchemeMessage) error {
	key := messageKey{kind: msg.Type, id: msg.TransactionID}
	if _, exists := t.s.messages[key]; exists {
		return fmt.Errorf("%w: %s %q", ErrDuplicateMessage, msg.Type, msg.TransactionID)
	}
	for _, staged := range t.messages {
		if staged.Type == msg.Type && staged.TransactionID == msg.TransactionID {
			return fmt.Errorf("%w: %s %q", ErrDuplicateMessage, msg.Type, msg.TransactionID)
		}
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = t.Now()
	}
	t.messages = append(t.messages, msg)
	return nil
}

func (t *memTx) PendingPresentments(_ context.Context) ([]SchemeMessage, error) {
	var out []SchemeMessage
	for _, key := range t.s.order {
		msg := t.s.messages[key]
		if msg.Type != MessagePresentment || msg.ClearingID != nil {
			continue
		}
		if _, done := t.cleared[key]; done {
			continue
		}
		out = append(out, msg)
	}
	for _, msg := range t.messages {
		if msg.Type == MessagePresentment && msg.ClearingID == nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (t *memTx) InsertClearing(_ context.Context, clearing Clearing, messageIDs []uuid.UUID) error {
	if _, exists := t.s.clearings[clearing.Window]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyCleared, clearing.Window)
	}
	for _, staged := range t.clearings {
		if staged.Window == clearing.Window {
			return fmt.Errorf("%w: %q", ErrAlreadyCleared, clearing.Window)
		}
	}
	t.clearings = append(t.clearings, clearing)

	ids := make(map[uuid.UUID]bool, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = true
	}
	for key, msg := range t.s.messages {
		if ids[msg.ID] {
			t.cleared[key] = clearing.ID
		}
	}
	for i := range t.messages {
		if ids[t.messages[i].ID] {
			id := clearing.ID
			t.messages[i].ClearingID = &id
		}
	}
	return nil
}

func (t *memTx) commit() {
	s := t.s
	for id, a := range t.accounts {
		s.accounts[id] = *a
	}
	for _, txn := range t.transactions {
		s.transactions[txn.ID] = txn
		s.transfers = append(s.transfers, txn.Transfers...)
	}
	for key, clearingID := range t.cleared {
		msg := s.messages[key]
		id := clearingID
		msg.ClearingID = &id
		s.messages[key] = msg
	}
	for _, msg := range t.messages {
		key := messageKey{kind: msg.Type, id: msg.TransactionID}
		s.messages[key] = msg
		s.order = append(s.order, key)
	}
	for _, c := range t.clearings {
		s.clearings[c.Window] = c
	}
}
