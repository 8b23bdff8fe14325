package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusOpen      ReservationStatus = "open"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// Reservation records why part of a wallet's Reserved counter is held.
// The counter stays authoritative; records let orphaned holds be found and
// released after ExpiresAt.
type Reservation struct {
	ID             string
	WalletID       string
	RefID          string
	Amount         decimal.Decimal
	Status         ReservationStatus
	IdempotencyKey *string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired reports whether an open reservation outlived its TTL.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationStatusOpen && now.After(r.ExpiresAt)
}
