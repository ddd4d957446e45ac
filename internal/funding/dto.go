package funding

import "github.com/shopspring/decimal"

// LoadRequest names the cardholders to fund and the amount each receives.
type LoadRequest struct {
	Cardholders []string        `json:"cardholders" validate:"required,min=1,dive,required"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
}

// LoadResponse maps each cardholder to its balances after the load.
type LoadResponse map[string]CardholderBalance

// CardholderBalance renders both balances as "<amount> <currency>".
type CardholderBalance struct {
	Available string `json:"available"`
	Ledger    string `json:"ledger"`
}

func toResponse(results []LoadResult) LoadResponse {
	out := make(LoadResponse, len(results))
	for _, r := range results {
		out[r.Cardholder] = CardholderBalance{
			Available: r.Account.AmountAvailable.StringFixed(2) + " " + r.Account.Currency,
			Ledger:    r.Account.AmountLedger.StringFixed(2) + " " + r.Account.Currency,
		}
	}
	return out
}
