package domain

import "time"

// Event types
const (
	EventTypeUserRevoked         = "user.revoked"
	EventTypeReservationExpired  = "reservation.expired"
	EventTypeWalletIntegrityFail = "wallet.integrity_failed"
)

// Aggregate types
const (
	AggregateTypeUser        = "user"
	AggregateTypeWallet      = "wallet"
	AggregateTypeReservation = "reservation"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}
