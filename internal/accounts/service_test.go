package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/card_issuing/internal/ledger"
)

func TestServiceCreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ledger.NewInMemory(), "")

	acc, err := svc.Create(ctx, CreateInput{Name: "cardholder:carol", Type: "asset"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.Currency != ledger.DefaultCurrency || acc.Type != ledger.AccountTypeAsset {
		t.Fatalf("unexpected account %+v", acc)
	}
	if !acc.AmountAvailable.IsZero() || !acc.AmountLedger.IsZero() {
		t.Fatalf("expected zero balances, got %s/%s", acc.AmountAvailable, acc.AmountLedger)
	}

	if _, err := svc.Create(ctx, CreateInput{Name: "cardholder:carol", Type: "asset"}); !errors.Is(err, ledger.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Name: "x", Type: "revenue"}); !errors.Is(err, ledger.ErrUnknownAccountType) {
		t.Fatalf("expected ErrUnknownAccountType, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Name: "  ", Type: "asset"}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}

	updated, err := svc.Update(ctx, acc.ID, UpdateInput{Currency: "USD"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "cardholder:carol" || updated.Currency != "USD" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if _, err := svc.Get(ctx, uuid.New()); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.Transactions(ctx, uuid.New(), 10); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func decimalOf(s string) decimal.Decimal { return decimal.RequireFromString(s) }
