package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustCreate(t *testing.T, s Store, name string, typ AccountType) Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), Account{Name: name, Type: typ, Currency: "EUR"})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return a
}

func mustAccount(t *testing.T, s Store, id uuid.UUID) Account {
	t.Helper()
	a, err := s.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("load account %s: %v", id, err)
	}
	return a
}

func transfer(ctx context.Context, s Store, from, to uuid.UUID, amount string, status Status, ref string) error {
	return s.WithinTx(ctx, func(tx Tx) error {
		locked, err := tx.LockAccounts(ctx, from, to)
		if err != nil {
			return err
		}
		_, err = TransferTo(ctx, tx, locked[from], locked[to], dec(amount), status, &ref)
		return err
	})
}

func TestInMemoryStore_TransferMaintainsBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := mustCreate(t, s, "cardholder:a", AccountTypeAsset)
	b := mustCreate(t, s, "cardholder:b", AccountTypeAsset)

	// seed account a with funds via manual mutation (test helper)
	SeedBalance(s, a.ID, dec("100.00"), dec("100.00"))

	if err := transfer(ctx, s, a.ID, b.ID, "15.00", StatusProcessed, "p-1"); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	gotA, gotB := mustAccount(t, s, a.ID), mustAccount(t, s, b.ID)
	if !gotA.AmountLedger.Equal(dec("85")) || !gotA.AmountAvailable.Equal(dec("85")) {
		t.Fatalf("expected a 85/85, got %s/%s", gotA.AmountAvailable, gotA.AmountLedger)
	}
	if !gotB.AmountLedger.Equal(dec("15")) || !gotB.AmountAvailable.Equal(dec("15")) {
		t.Fatalf("expected b 15/15, got %s/%s", gotB.AmountAvailable, gotB.AmountLedger)
	}
}

func TestInMemoryStore_HoldMovesAvailableOnly(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := mustCreate(t, s, "cardholder:a", AccountTypeAsset)
	bank := mustCreate(t, s, "bank", AccountTypeAsset)
	SeedBalance(s, a.ID, dec("50"), dec("50"))

	if err := transfer(ctx, s, a.ID, bank.ID, "20.00", StatusHold, "T1"); err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	got := mustAccount(t, s, a.ID)
	if !got.AmountAvailable.Equal(dec("30")) || !got.AmountLedger.Equal(dec("50")) {
		t.Fatalf("expected 30/50, got %s/%s", got.AmountAvailable, got.AmountLedger)
	}
}

func TestInMemoryStore_FailedUnitRollsBack(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := mustCreate(t, s, "cardholder:a", AccountTypeAsset)
	bank := mustCreate(t, s, "bank", AccountTypeAsset)
	SeedBalance(s, a.ID, dec("50"), dec("50"))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx Tx) error {
		locked, err := tx.LockAccounts(ctx, a.ID, bank.ID)
		if err != nil {
			return err
		}
		ref := "T1"
		if _, err := TransferTo(ctx, tx, locked[a.ID], locked[bank.ID], dec("10"), StatusProcessed, &ref); err != nil {
			return err
		}
		if err := tx.InsertMessage(ctx, SchemeMessage{Type: MessageAuthorisation, TransactionID: "T1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got := mustAccount(t, s, a.ID)
	if !got.AmountAvailable.Equal(dec("50")) || !got.AmountLedger.Equal(dec("50")) {
		t.Fatalf("balances changed after rollback: %s/%s", got.AmountAvailable, got.AmountLedger)
	}
	txns, err := s.Transactions(ctx, a.ID, 0)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("expected no transactions after rollback, got %d", len(txns))
	}
	// the message key must still be free
	err = s.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertMessage(ctx, SchemeMessage{Type: MessageAuthorisation, TransactionID: "T1"})
	})
	if err != nil {
		t.Fatalf("message insert after rollback: %v", err)
	}
}

func TestInMemoryStore_DuplicateMessage(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	insert := func(kind MessageType, id string) error {
		return s.WithinTx(ctx, func(tx Tx) error {
			return tx.InsertMessage(ctx, SchemeMessage{Type: kind, TransactionID: id})
		})
	}

	if err := insert(MessageAuthorisation, "dup"); err != nil {
		t.Fatalf("initial insert failed: %v", err)
	}
	if err := insert(MessageAuthorisation, "dup"); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := insert(MessagePresentment, "dup"); err != nil {
		t.Fatalf("presentment with same id should be accepted: %v", err)
	}
}

func TestInMemoryStore_OpenHoldPicksLatest(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewInMemory(WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	ctx := context.Background()
	a := mustCreate(t, s, "cardholder:a", AccountTypeAsset)
	bank := mustCreate(t, s, "bank", AccountTypeAsset)
	SeedBalance(s, a.ID, dec("100"), dec("100"))

	for _, amount := range []string{"5.00", "7.00"} {
		if err := transfer(ctx, s, a.ID, bank.ID, amount, StatusHold, "T1"); err != nil {
			t.Fatalf("hold %s: %v", amount, err)
		}
	}

	err := s.WithinTx(ctx, func(tx Tx) error {
		hold, err := tx.OpenHold(ctx, a.ID, "T1")
		if err != nil {
			return err
		}
		if !hold.Amount.Equal(dec("-7")) {
			t.Fatalf("expected latest hold -7, got %s", hold.Amount)
		}
		if _, err := tx.OpenHold(ctx, a.ID, "T2"); !errors.Is(err, ErrHoldNotFound) {
			t.Fatalf("expected ErrHoldNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
}

func TestInMemoryStore_ClearingWindowIsUnique(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertMessage(ctx, SchemeMessage{Type: MessagePresentment, TransactionID: "P1"})
	})
	if err != nil {
		t.Fatalf("insert presentment: %v", err)
	}

	runClearing := func(window string) (int, error) {
		var pending int
		err := s.WithinTx(ctx, func(tx Tx) error {
			msgs, err := tx.PendingPresentments(ctx)
			if err != nil {
				return err
			}
			pending = len(msgs)
			ids := make([]uuid.UUID, len(msgs))
			for i, m := range msgs {
				ids[i] = m.ID
			}
			return tx.InsertClearing(ctx, Clearing{ID: uuid.New(), Window: window, Messages: len(ids)}, ids)
		})
		return pending, err
	}

	if n, err := runClearing("w1"); err != nil || n != 1 {
		t.Fatalf("first clearing: pending=%d err=%v", n, err)
	}
	if _, err := runClearing("w1"); !errors.Is(err, ErrAlreadyCleared) {
		t.Fatalf("expected ErrAlreadyCleared, got %v", err)
	}
	if n, err := runClearing("w2"); err != nil || n != 0 {
		t.Fatalf("second window should see nothing pending: pending=%d err=%v", n, err)
	}
}

func TestInMemoryStore_ConcurrentTransfers(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := mustCreate(t, s, "cardholder:a", AccountTypeAsset)
	bank := mustCreate(t, s, "bank", AccountTypeAsset)
	SeedBalance(s, a.ID, dec("1000"), dec("1000"))
	SeedBalance(s, bank.ID, dec("1000"), dec("1000"))

	const workers = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := transfer(ctx, s, a.ID, bank.ID, "5.00", StatusProcessed, fmt.Sprintf("tx-%d", i)); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	accounts, err := s.Accounts(ctx)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	total := decimal.Zero
	for _, acc := range accounts {
		total = total.Add(acc.AmountLedger)
	}
	if !total.Equal(dec("2000")) {
		t.Fatalf("ledger not balanced after concurrency, total=%s", total)
	}
	if got := mustAccount(t, s, a.ID); !got.AmountLedger.Equal(dec("950")) {
		t.Fatalf("expected 950, got %s", got.AmountLedger)
	}
}

func TestInMemoryStore_AccountAdministration(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := mustCreate(t, s, "cardholder:a", AccountTypeAsset)
	mustCreate(t, s, "cardholder:b", AccountTypeAsset)

	if _, err := s.CreateAccount(ctx, Account{Name: "cardholder:a", Type: AccountTypeAsset}); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
	if _, err := s.CreateAccount(ctx, Account{Name: "x", Type: AccountType(9)}); !errors.Is(err, ErrUnknownAccountType) {
		t.Fatalf("expected ErrUnknownAccountType, got %v", err)
	}
	if _, err := s.UpdateAccountDetails(ctx, a.ID, "cardholder:b", "EUR"); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected rename clash, got %v", err)
	}

	renamed, err := s.UpdateAccountDetails(ctx, a.ID, "cardholder:alice", "USD")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "cardholder:alice" || renamed.Currency != "USD" {
		t.Fatalf("unexpected account after rename: %+v", renamed)
	}
	if _, err := s.AccountByName(ctx, "cardholder:a"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("old name should be gone, got %v", err)
	}
}
