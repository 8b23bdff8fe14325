package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultReservationTTL is how long a hold may stay open before the
	// reaper releases it.
	DefaultReservationTTL = 15 * time.Minute

	// DefaultDispatchTimeout bounds one asynchronous incident dispatch.
	DefaultDispatchTimeout = 30 * time.Second

	// SweepPageSize is how many wallets are verified per page.
	SweepPageSize = 500
)
