package issuing

import (
	"context"
	"fmt"

	"github.com/congo-pay/card_issuing/internal/ledger"
)

// Directory resolves scheme card ids and cardholder names to ledger accounts
// through a static mapping to account names.
type Directory struct {
	store       ledger.Store
	cards       map[string]string
	cardholders map[string]string
}

// NewDirectory builds a directory. cards maps card id to account name and
// cardholders maps cardholder name to account name.
func NewDirectory(store ledger.Store, cards, cardholders map[string]string) *Directory {
	d := &Directory{
		store:       store,
		cards:       make(map[string]string, len(cards)),
		cardholders: make(map[string]string, len(cardholders)),
	}
	for k, v := range cards {
		d.cards[k] = v
	}
	for k, v := range cardholders {
		d.cardholders[k] = v
	}
	return d
}

// KnownCard reports whether the card id is mapped to an account.
func (d *Directory) KnownCard(cardID string) bool {
	_, ok := d.cards[cardID]
	return ok
}

// AccountForCard returns the account the card spends from.
func (d *Directory) AccountForCard(ctx context.Context, cardID string) (ledger.Account, error) {
	name, ok := d.cards[cardID]
	if !ok {
		return ledger.Account{}, fmt.Errorf("%w: card %q is not mapped", ledger.ErrAccountNotFound, cardID)
	}
	return d.store.AccountByName(ctx, name)
}

// AccountForCardholder returns the account of the named cardholder.
func (d *Directory) AccountForCardholder(ctx context.Context, cardholder string) (ledger.Account, error) {
	name, ok := d.cardholders[cardholder]
	if !ok {
		return ledger.Account{}, fmt.Errorf("%w: cardholder %q is not mapped", ledger.ErrAccountNotFound, cardholder)
	}
	return d.store.AccountByName(ctx, name)
}
