package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that sets both balances of an account when
// using the in-memory store. It bypasses the double-entry rules on purpose.
func SeedBalance(s Store, id uuid.UUID, available, ledger decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		a, exists := mem.accounts[id]
		if !exists {
			return
		}
		a.AmountAvailable = available
		a.AmountLedger = ledger
		mem.accounts[id] = a
	}
}
