package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TxTypeTopup                TransactionType = "topup"
	TxTypeManualCredit         TransactionType = "manual_credit"
	TxTypeManualDebit          TransactionType = "manual_debit"
	TxTypeReferralBonus        TransactionType = "referral_bonus"
	TxTypeRedeemCode           TransactionType = "redeem_code"
	TxTypePurchase             TransactionType = "purchase"
	TxTypeNumberPurchase       TransactionType = "number_purchase"
	TxTypeSubscriptionPurchase TransactionType = "subscription_purchase"
	TxTypeItemPurchase         TransactionType = "item_purchase"
	TxTypeRefund               TransactionType = "refund"
	TxTypeP2PTransferOut       TransactionType = "p2p_transfer_out"
	TxTypeP2PTransferIn        TransactionType = "p2p_transfer_in"
	TxTypeDeposit              TransactionType = "deposit"
	TxTypeDepositFailed        TransactionType = "deposit_failed"
	TxTypeDepositExpired       TransactionType = "deposit_expired"
	TxTypeChargeback           TransactionType = "chargeback"
	TxTypeAdjustment           TransactionType = "adjustment"
)

var validTransactionTypes = map[TransactionType]bool{
	TxTypeTopup:                true,
	TxTypeManualCredit:         true,
	TxTypeManualDebit:          true,
	TxTypeReferralBonus:        true,
	TxTypeRedeemCode:           true,
	TxTypePurchase:             true,
	TxTypeNumberPurchase:       true,
	TxTypeSubscriptionPurchase: true,
	TxTypeItemPurchase:         true,
	TxTypeRefund:               true,
	TxTypeP2PTransferOut:       true,
	TxTypeP2PTransferIn:        true,
	TxTypeDeposit:              true,
	TxTypeDepositFailed:        true,
	TxTypeDepositExpired:       true,
	TxTypeChargeback:           true,
	TxTypeAdjustment:           true,
}

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	return validTransactionTypes[t]
}

// Transaction is an immutable, append-only ledger row.
// Positive amounts are credits, negative amounts are debits.
type Transaction struct {
	CreatedAt      time.Time
	Metadata       map[string]any
	IdempotencyKey *string
	RefID          *string
	ID             string
	WalletID       string
	Type           TransactionType
	Description    string
	Amount         decimal.Decimal
}

// IsCredit reports whether the row adds money to the wallet.
func (t *Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

// SumAmounts returns the signed sum of the given rows.
func SumAmounts(txs []*Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	return sum
}
