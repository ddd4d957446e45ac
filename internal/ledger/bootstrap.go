package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Registry holds the well-known accounts every lifecycle operation
// moves money against.
type Registry struct {
	Bank   Account
	Scheme Account
	Equity Account
}

// Chart names the accounts Bootstrap makes sure exist.
type Chart struct {
	Bank        string
	Scheme      string
	Equity      string
	Cardholders []string
	Currency    string
}

// Bootstrap creates any missing account of the chart with zero balances and
// resolves the registry. Existing accounts are left untouched.
func Bootstrap(ctx context.Context, store Store, chart Chart) (Registry, error) {
	var reg Registry
	wellKnown := []struct {
		name string
		typ  AccountType
		dst  *Account
	}{
		{chart.Bank, AccountTypeAsset, &reg.Bank},
		{chart.Scheme, AccountTypeLiability, &reg.Scheme},
		{chart.Equity, AccountTypeEquity, &reg.Equity},
	}
	for _, wk := range wellKnown {
		if wk.name == "" {
			return Registry{}, fmt.Errorf("bootstrap: %s account name is empty", wk.typ)
		}
		acc, err := ensure(ctx, store, wk.name, wk.typ, chart.Currency)
		if err != nil {
			return Registry{}, err
		}
		*wk.dst = acc
	}
	for _, name := range chart.Cardholders {
		if _, err := ensure(ctx, store, name, AccountTypeAsset, chart.Currency); err != nil {
			return Registry{}, err
		}
	}
	return reg, nil
}

func ensure(ctx context.Context, store Store, name string, typ AccountType, currency string) (Account, error) {
	acc, err := store.AccountByName(ctx, name)
	if err == nil {
		if acc.Type != typ {
			return Account{}, fmt.Errorf("bootstrap: account %q is %s, want %s", name, acc.Type, typ)
		}
		return acc, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, fmt.Errorf("bootstrap: load %q: %w", name, err)
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	acc, err = store.CreateAccount(ctx, Account{Name: name, Type: typ, Currency: currency})
	if errors.Is(err, ErrDuplicateAccount) {
		// created concurrently by another instance
		return store.AccountByName(ctx, name)
	}
	if err != nil {
		return Account{}, fmt.Errorf("bootstrap: create %q: %w", name, err)
	}
	return acc, nil
}
