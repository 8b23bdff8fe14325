package dto

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
)

func TestWalletFromDomainComputesAvailable(t *testing.T) {
	now := time.Now()
	resp := WalletFromDomain(&domain.Wallet{
		ID:        "w1",
		UserID:    "u1",
		Balance:   decimal.NewFromInt(100),
		Reserved:  decimal.NewFromInt(30),
		CreatedAt: now,
		UpdatedAt: now,
	})

	if !resp.Available.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected available 70, got %s", resp.Available)
	}
}

func TestTransactionsFromDomain(t *testing.T) {
	ref := "order-1"
	out := TransactionsFromDomain([]*domain.Transaction{
		{ID: "t1", WalletID: "w1", Amount: decimal.NewFromInt(-5), Type: domain.TxTypePurchase, RefID: &ref},
		{ID: "t2", WalletID: "w1", Amount: decimal.NewFromInt(10), Type: domain.TxTypeTopup},
	})

	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if out[0].Type != "purchase" || *out[0].RefID != "order-1" {
		t.Fatalf("unexpected first row: %+v", out[0])
	}
}
