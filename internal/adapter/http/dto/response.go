package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/pricing"
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BalanceResponse carries the liquid funds of a user.
type BalanceResponse struct {
	UserID    string          `json:"user_id"`
	Available decimal.Decimal `json:"available"`
}

// WalletResponse represents a wallet in API responses.
type WalletResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WalletFromDomain converts domain wallet to response.
func WalletFromDomain(w *domain.Wallet) *WalletResponse {
	return &WalletResponse{
		ID:        w.ID,
		UserID:    w.UserID,
		Balance:   w.Balance,
		Reserved:  w.Reserved,
		Available: w.Available(),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// ReserveResponse is returned once a hold is placed.
type ReserveResponse struct {
	WalletID string `json:"wallet_id"`
	RefID    string `json:"ref_id"`
}

// TransactionResponse represents a ledger row in API responses.
type TransactionResponse struct {
	ID             string          `json:"id"`
	WalletID       string          `json:"wallet_id"`
	Amount         decimal.Decimal `json:"amount"`
	Type           string          `json:"type"`
	Description    string          `json:"description,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	RefID          *string         `json:"ref_id,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransactionFromDomain converts a domain ledger row to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:             t.ID,
		WalletID:       t.WalletID,
		Amount:         t.Amount,
		Type:           string(t.Type),
		Description:    t.Description,
		IdempotencyKey: t.IdempotencyKey,
		RefID:          t.RefID,
		Metadata:       t.Metadata,
		CreatedAt:      t.CreatedAt,
	}
}

// TransactionsFromDomain converts domain ledger rows to responses.
func TransactionsFromDomain(txs []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(txs))
	for i, t := range txs {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// IntegrityResponse reports the outcome of a single wallet check.
type IntegrityResponse struct {
	UserID string `json:"user_id"`
	Intact bool   `json:"intact"`
}

// RankResponse lists scored options, best first.
type RankResponse struct {
	Weights pricing.Weights        `json:"weights"`
	Options []pricing.ScoredOption `json:"options"`
}

// OptimizeResponse lists the chosen option per market.
type OptimizeResponse struct {
	Weights pricing.Weights  `json:"weights"`
	Choices []pricing.Choice `json:"choices"`
}
