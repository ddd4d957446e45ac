package issuing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/card_issuing/internal/ledger"
)

// MessageRequest is the scheme webhook payload shared by authorisation and
// presentment messages. Amounts are accepted as JSON numbers or strings.
type MessageRequest struct {
	Type                string           `json:"type" validate:"required,oneof=authorisation presentment"`
	CardID              string           `json:"card_id" validate:"required,max=8"`
	TransactionID       string           `json:"transaction_id" validate:"required,max=12"`
	MerchantName        string           `json:"merchant_name" validate:"required,max=128"`
	MerchantCountry     string           `json:"merchant_country" validate:"required,max=4"`
	MerchantMCC         int16            `json:"merchant_mcc" validate:"gte=0"`
	MerchantCity        *string          `json:"merchant_city" validate:"required_if=Type presentment,omitempty,max=64"`
	BillingAmount       decimal.Decimal  `json:"billing_amount" validate:"gt=0"`
	BillingCurrency     string           `json:"billing_currency" validate:"required,max=12"`
	TransactionAmount   decimal.Decimal  `json:"transaction_amount" validate:"gt=0"`
	TransactionCurrency string           `json:"transaction_currency" validate:"required,max=12"`
	SettlementAmount    *decimal.Decimal `json:"settlement_amount" validate:"required_if=Type presentment,omitempty,gt=0"`
	SettlementCurrency  *string          `json:"settlement_currency" validate:"required_if=Type presentment,omitempty,max=12"`
}

func (r MessageRequest) toMessage() ledger.SchemeMessage {
	return ledger.SchemeMessage{
		Type:                ledger.MessageType(r.Type),
		CardID:              r.CardID,
		TransactionID:       r.TransactionID,
		MerchantName:        r.MerchantName,
		MerchantCountry:     r.MerchantCountry,
		MerchantMCC:         r.MerchantMCC,
		MerchantCity:        r.MerchantCity,
		BillingAmount:       r.BillingAmount,
		BillingCurrency:     r.BillingCurrency,
		TransactionAmount:   r.TransactionAmount,
		TransactionCurrency: r.TransactionCurrency,
		SettlementAmount:    r.SettlementAmount,
		SettlementCurrency:  r.SettlementCurrency,
	}
}

func (r MessageRequest) amounts() map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{
		"billing_amount":     r.BillingAmount,
		"transaction_amount": r.TransactionAmount,
	}
	if r.SettlementAmount != nil {
		out["settlement_amount"] = *r.SettlementAmount
	}
	return out
}

// ClearingRequest optionally names the settlement window being cleared.
type ClearingRequest struct {
	Window string `json:"window" validate:"omitempty,max=64"`
}

// BalanceQuery is read from the query string of the balance endpoint.
type BalanceQuery struct {
	CardID      string `query:"card_id" validate:"required,max=8"`
	DateTime    string `query:"date_time"`
	BalanceType string `query:"balance_type" validate:"omitempty,oneof=ledger available"`
}

var dateTimeLayouts = []string{"2006-01-02T15:04:05", time.RFC3339, time.RFC3339Nano}

// parseDateTime accepts the point in time as Y-m-dTH:M:S (UTC) or RFC 3339.
func parseDateTime(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}
