package domain

import (
	"errors"
	"fmt"
)

var (
	// Wallet errors
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrWalletIntegrityViolation = errors.New("wallet integrity violation")
	ErrInvalidAmount            = errors.New("amount must be positive")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrIdempotencyKeyReused    = errors.New("idempotency key belongs to another wallet")

	// Reservation errors
	ErrReservationNotFound = errors.New("reservation not found")

	// User errors
	ErrUserNotFound = errors.New("user not found")
)

// ErrIntegrityUnverifiable is returned when the sentinel cannot establish
// ledger integrity. It matches ErrWalletIntegrityViolation under errors.Is so
// callers treat "cannot verify" exactly like "verification failed".
var ErrIntegrityUnverifiable = fmt.Errorf("%w: integrity could not be verified", ErrWalletIntegrityViolation)

// ErrTransactionNotFound is returned when a ledger row lookup misses.
var ErrTransactionNotFound = errors.New("transaction not found")
