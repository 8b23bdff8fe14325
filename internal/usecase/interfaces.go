package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
)

// Repository methods taking a Transaction run on the pool when tx is nil.

// WalletRepository defines data access for wallets. It is the only writer
// of balance and reserved.
type WalletRepository interface {
	Ensure(ctx context.Context, tx Transaction, wallet *domain.Wallet) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, tx Transaction, userID string) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx Transaction, userID string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Wallet, error)
	IncrementReserved(ctx context.Context, tx Transaction, id string, amount decimal.Decimal, updatedAt time.Time) error
	// ReleaseReserved lowers reserved by amount, never below zero.
	ReleaseReserved(ctx context.Context, tx Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error)
	SetReserved(ctx context.Context, tx Transaction, id string, reserved decimal.Decimal, updatedAt time.Time) error
	// Settle converts a hold into a debit: balance -= amount and reserved -=
	// min(reserved, amount), guarded by balance >= amount. Returns
	// domain.ErrInsufficientFunds when the guard fails.
	Settle(ctx context.Context, tx Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error)
	Credit(ctx context.Context, tx Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error)
	// DebitIfSufficient decrements balance guarded by balance >= amount.
	// Returns domain.ErrInsufficientFunds when no row was updated.
	DebitIfSufficient(ctx context.Context, tx Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Wallet, error)
}

// LedgerRepository defines data access for the append-only transaction log.
type LedgerRepository interface {
	// Create returns domain.ErrDuplicateIdempotencyKey on key collision.
	Create(ctx context.Context, tx Transaction, t *domain.Transaction) error
	GetByIdempotencyKey(ctx context.Context, tx Transaction, key string) (*domain.Transaction, error)
	SumByWallet(ctx context.Context, tx Transaction, walletID string) (decimal.Decimal, error)
	ListByWallet(ctx context.Context, tx Transaction, walletID string, limit, offset int) ([]*domain.Transaction, error)
	CheckConsistency(ctx context.Context) (totalBalance, totalAmount decimal.Decimal, err error)
}

// ReservationRepository defines data access for reservation records.
type ReservationRepository interface {
	// Create returns domain.ErrDuplicateIdempotencyKey on key collision.
	Create(ctx context.Context, tx Transaction, reservation *domain.Reservation) error
	GetByIdempotencyKey(ctx context.Context, tx Transaction, key string) (*domain.Reservation, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Reservation, error)
	// GetOpenByRef returns the oldest open reservation for refID, locked.
	GetOpenByRef(ctx context.Context, tx Transaction, walletID, refID string) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, tx Transaction, id string, status domain.ReservationStatus, updatedAt time.Time) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error)
	SumOpenByWallet(ctx context.Context, tx Transaction, walletID string) (decimal.Decimal, error)
}

// UserRepository defines access to the user standing fields.
type UserRepository interface {
	GetByID(ctx context.Context, tx Transaction, id string) (*domain.User, error)
	// Ban marks the user banned and reports whether the status changed.
	Ban(ctx context.Context, tx Transaction, id, reason string, at time.Time) (bool, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier re-runs an operation on transient storage conflicts.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IncidentDispatcher reports quarantine incidents. Implementations are
// best-effort and never fail the caller.
type IncidentDispatcher interface {
	Dispatch(ctx context.Context, incident *domain.ForensicIncident)
}

// IntegrityGuard refuses spending for wallets that fail verification.
// GuardTx checks inside the caller's transaction.
type IntegrityGuard interface {
	Guard(ctx context.Context, userID string) error
	GuardTx(ctx context.Context, tx Transaction, userID string) error
}
