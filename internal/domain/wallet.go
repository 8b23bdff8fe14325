package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the materialized balance of a single user.
type Wallet struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	Reserved  decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available returns liquid funds: balance minus funds held by open reservations.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Reserved)
}

// ValidateReserve checks if amount can be put on hold.
func (w *Wallet) ValidateReserve(amount decimal.Decimal) error {
	if w.Available().LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// ValidateDebit checks if the settled balance covers amount.
func (w *Wallet) ValidateDebit(amount decimal.Decimal) error {
	if w.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// ReleaseAmount returns how much of amount can be taken off Reserved
// without driving it negative.
func (w *Wallet) ReleaseAmount(amount decimal.Decimal) decimal.Decimal {
	return decimal.Min(w.Reserved, amount)
}
