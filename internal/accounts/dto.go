package accounts

import (
	"time"

	"github.com/congo-pay/card_issuing/internal/ledger"
)

type createRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Type     string `json:"type" validate:"required,oneof=asset liability equity"`
	Currency string `json:"currency" validate:"omitempty,max=12"`
}

type updateRequest struct {
	Name     string `json:"name" validate:"omitempty,max=64"`
	Currency string `json:"currency" validate:"omitempty,max=12"`
}

type accountResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Currency        string    `json:"currency"`
	AmountAvailable string    `json:"amount_available"`
	AmountLedger    string    `json:"amount_ledger"`
	CreatedAt       time.Time `json:"created_at"`
}

type transferResponse struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
	Delta     string `json:"delta"`
	Type      string `json:"type"`
}

type transactionResponse struct {
	ID                    string             `json:"id"`
	Status                string             `json:"status"`
	Amount                string             `json:"amount"`
	ExternalTransactionID *string            `json:"external_transaction_id,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	Transfers             []transferResponse `json:"transfers"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:              a.ID.String(),
		Name:            a.Name,
		Type:            a.Type.String(),
		Currency:        a.Currency,
		AmountAvailable: a.AmountAvailable.StringFixed(2),
		AmountLedger:    a.AmountLedger.StringFixed(2),
		CreatedAt:       a.CreatedAt,
	}
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	out := transactionResponse{
		ID:                    t.ID.String(),
		Status:                t.Status.String(),
		Amount:                t.Amount.StringFixed(2),
		ExternalTransactionID: t.ExternalTransactionID,
		CreatedAt:             t.CreatedAt,
		Transfers:             make([]transferResponse, 0, len(t.Transfers)),
	}
	for _, tr := range t.Transfers {
		out.Transfers = append(out.Transfers, transferResponse{
			AccountID: tr.AccountID.String(),
			Amount:    tr.Amount.StringFixed(2),
			Delta:     tr.Delta.StringFixed(2),
			Type:      string(tr.Type()),
		})
	}
	return out
}
