package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/infrastructure/metrics"
)

// SentinelOptions holds optional SentinelUseCase collaborators.
type SentinelOptions struct {
	Dispatcher IncidentDispatcher
	Retrier    Retrier
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// SentinelUseCase reconciles wallet balances against their ledgers and
// quarantines users whose balance drifted.
type SentinelUseCase struct {
	txManager  TransactionManager
	walletRepo WalletRepository
	ledgerRepo LedgerRepository
	userRepo   UserRepository
	outboxRepo OutboxRepository
	auditRepo  AuditRepository
	idGen      IDGenerator
	dispatcher IncidentDispatcher
	retrier    Retrier
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	inflight sync.WaitGroup
}

// NewSentinelUseCase creates a new SentinelUseCase.
func NewSentinelUseCase(
	txManager TransactionManager,
	walletRepo WalletRepository,
	ledgerRepo LedgerRepository,
	userRepo UserRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	opts SentinelOptions,
) *SentinelUseCase {
	return &SentinelUseCase{
		txManager:  txManager,
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		userRepo:   userRepo,
		outboxRepo: outboxRepo,
		auditRepo:  auditRepo,
		idGen:      idGen,
		dispatcher: opts.Dispatcher,
		retrier:    opts.Retrier,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "sentinel").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IntegrityReport summarizes a sweep over all wallets.
type IntegrityReport struct {
	Checked     int
	Intact      int
	Quarantined int
	Failed      int
	StartedAt   time.Time
	Duration    time.Duration
}

// VerifyIntegrity reports whether the user's wallet balance equals the sum
// of its ledger. On drift the user is banned, audited and announced in one
// transaction, and the incident is dispatched afterwards. A user without a
// wallet is intact. Any storage failure yields false with
// domain.ErrIntegrityUnverifiable.
func (uc *SentinelUseCase) VerifyIntegrity(ctx context.Context, userID string) (bool, error) {
	var (
		intact   bool
		incident *domain.ForensicIncident
	)

	run := func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		intact, incident, err = uc.verify(txCtx, tx, userID)
		if err != nil {
			return err
		}

		return tx.Commit(txCtx)
	}

	var err error
	if uc.retrier != nil {
		err = uc.retrier.Retry(ctx, run)
	} else {
		err = run()
	}

	return uc.conclude(ctx, userID, intact, incident, err)
}

// VerifyIntegrityTx runs the check inside the caller's transaction. The ban,
// audit row and revocation event commit or roll back with tx.
func (uc *SentinelUseCase) VerifyIntegrityTx(ctx context.Context, tx Transaction, userID string) (bool, error) {
	intact, incident, err := uc.verify(ctx, tx, userID)
	return uc.conclude(ctx, userID, intact, incident, err)
}

// verify locks the wallet in tx and compares it with its ledger. incident is
// set only when this call moved the user into quarantine.
func (uc *SentinelUseCase) verify(ctx context.Context, tx Transaction, userID string) (bool, *domain.ForensicIncident, error) {
	wallet, err := uc.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return true, nil, nil
		}
		return false, nil, err
	}

	sum, err := uc.ledgerRepo.SumByWallet(ctx, tx, wallet.ID)
	if err != nil {
		return false, nil, err
	}

	drift := domain.Drift(wallet.Balance, sum)
	if !domain.ExceedsAllowedDrift(drift) {
		return true, nil, nil
	}

	recent, err := uc.ledgerRepo.ListByWallet(ctx, tx, wallet.ID, domain.ForensicRecentTransactions, 0)
	if err != nil {
		return false, nil, err
	}

	now := uc.now()
	incident := &domain.ForensicIncident{
		ID:                 uc.idGen.Generate(),
		UserID:             userID,
		WalletID:           wallet.ID,
		Drift:              drift,
		Balance:            wallet.Balance,
		ExpectedSum:        sum,
		ActionTaken:        domain.ActionQuarantined,
		DetectedAt:         now,
		RecentTransactions: recent,
	}

	changed, err := uc.userRepo.Ban(ctx, tx, userID, banReason(drift), now)
	if err != nil {
		return false, nil, err
	}
	if !changed {
		// Already quarantined by an earlier check.
		return false, nil, nil
	}

	if err := uc.recordQuarantine(ctx, tx, incident); err != nil {
		return false, nil, err
	}

	return false, incident, nil
}

func (uc *SentinelUseCase) conclude(ctx context.Context, userID string, intact bool, incident *domain.ForensicIncident, err error) (bool, error) {
	if err != nil {
		uc.countCheck("unverifiable")
		uc.logger.Error().Err(err).Str("user_id", userID).Msg("integrity check failed")
		return false, fmt.Errorf("%w: %w", domain.ErrIntegrityUnverifiable, err)
	}

	if intact {
		uc.countCheck("intact")
		return true, nil
	}

	uc.countCheck("drift")

	if incident != nil {
		uc.logger.Error().
			Str("user_id", incident.UserID).
			Str("wallet_id", incident.WalletID).
			Str("balance", incident.Balance.String()).
			Str("expected_sum", incident.ExpectedSum.String()).
			Str("drift", incident.Drift.String()).
			Msg("ledger drift detected, user quarantined")

		if uc.metrics != nil {
			uc.metrics.Quarantines.Inc()
			uc.metrics.LedgerDrift.Observe(incident.Drift.InexactFloat64())
		}

		uc.dispatch(ctx, incident)
	}

	return false, nil
}

// Guard refuses spending for quarantined users and wallets that fail or
// cannot complete verification. The check runs in its own transaction.
func (uc *SentinelUseCase) Guard(ctx context.Context, userID string) error {
	return uc.guard(ctx, nil, userID)
}

// GuardTx is Guard for an operation running inside tx. The wallet lock the
// check takes is the one the operation holds.
func (uc *SentinelUseCase) GuardTx(ctx context.Context, tx Transaction, userID string) error {
	return uc.guard(ctx, tx, userID)
}

func (uc *SentinelUseCase) guard(ctx context.Context, tx Transaction, userID string) error {
	user, err := uc.userRepo.GetByID(ctx, tx, userID)
	switch {
	case err == nil && user.IsBanned():
		return fmt.Errorf("%w: user is quarantined", domain.ErrWalletIntegrityViolation)
	case err != nil && !errors.Is(err, domain.ErrUserNotFound):
		return fmt.Errorf("%w: %w", domain.ErrIntegrityUnverifiable, err)
	}

	var ok bool
	if tx != nil {
		ok, err = uc.VerifyIntegrityTx(ctx, tx, userID)
	} else {
		ok, err = uc.VerifyIntegrity(ctx, userID)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: ledger drift detected", domain.ErrWalletIntegrityViolation)
	}

	return nil
}

// VerifyAll verifies every wallet page by page. pace, when set, is called
// before each check and aborts the sweep on error.
func (uc *SentinelUseCase) VerifyAll(ctx context.Context, pace func(context.Context) error) (*IntegrityReport, error) {
	report := &IntegrityReport{StartedAt: uc.now()}
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		if uc.metrics != nil {
			uc.metrics.SweepDuration.Observe(report.Duration.Seconds())
		}
	}()

	for offset := 0; ; offset += SweepPageSize {
		wallets, err := uc.walletRepo.List(ctx, SweepPageSize, offset)
		if err != nil {
			return report, fmt.Errorf("list wallets: %w", err)
		}

		for _, wallet := range wallets {
			if pace != nil {
				if err := pace(ctx); err != nil {
					return report, err
				}
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}

			report.Checked++
			ok, err := uc.VerifyIntegrity(ctx, wallet.UserID)
			switch {
			case err != nil:
				report.Failed++
			case ok:
				report.Intact++
			default:
				report.Quarantined++
			}
		}

		if len(wallets) < SweepPageSize {
			break
		}
	}

	uc.logger.Info().
		Int("checked", report.Checked).
		Int("intact", report.Intact).
		Int("quarantined", report.Quarantined).
		Int("failed", report.Failed).
		Msg("integrity sweep finished")

	return report, nil
}

// CheckLedgerConsistency verifies that the sum of all balances equals the
// sum of all ledger rows.
func (uc *SentinelUseCase) CheckLedgerConsistency(ctx context.Context) error {
	totalBalance, totalAmount, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return err
	}

	if !totalBalance.Equal(totalAmount) {
		return fmt.Errorf(
			"%w: balances=%s ledger=%s difference=%s",
			domain.ErrWalletIntegrityViolation,
			totalBalance.String(),
			totalAmount.String(),
			totalBalance.Sub(totalAmount).String(),
		)
	}

	return nil
}

// ListIncidents returns the quarantine audit rows of the user's wallet,
// newest first.
func (uc *SentinelUseCase) ListIncidents(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	if uc.auditRepo == nil {
		return nil, nil
	}

	wallet, err := uc.walletRepo.GetByUserID(ctx, nil, userID)
	if errors.Is(err, domain.ErrWalletNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	limit, _, _ = domain.ValidatePagination(limit, 0)
	return uc.auditRepo.List(ctx, domain.AuditFilter{
		Action:       string(domain.AuditActionWalletQuarantine),
		ResourceType: domain.AggregateTypeWallet,
		ResourceID:   wallet.ID,
		Limit:        limit,
	})
}

// Wait blocks until in-flight incident dispatches finish.
func (uc *SentinelUseCase) Wait() {
	uc.inflight.Wait()
}

func (uc *SentinelUseCase) recordQuarantine(ctx context.Context, tx Transaction, incident *domain.ForensicIncident) error {
	if uc.auditRepo != nil {
		auditLog := &domain.AuditLog{
			ID:           uc.idGen.Generate(),
			UserID:       domain.SystemActorSentinel,
			Action:       string(domain.AuditActionWalletQuarantine),
			ResourceType: domain.AggregateTypeWallet,
			ResourceID:   incident.WalletID,
			AfterState:   incident.AuditPayload(),
			Status:       string(domain.AuditStatusSuccess),
			CreatedAt:    incident.DetectedAt,
		}
		if err := uc.auditRepo.CreateTx(ctx, tx, auditLog); err != nil {
			return err
		}
	}

	if uc.outboxRepo != nil {
		event := &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   incident.UserID,
			AggregateType: domain.AggregateTypeUser,
			EventType:     domain.EventTypeUserRevoked,
			Payload: map[string]any{
				"user_id":     incident.UserID,
				"wallet_id":   incident.WalletID,
				"incident_id": incident.ID,
				"reason":      banReason(incident.Drift),
			},
			CreatedAt: incident.DetectedAt,
		}
		if err := uc.outboxRepo.Create(ctx, tx, event); err != nil {
			return err
		}
	}

	return nil
}

func (uc *SentinelUseCase) dispatch(ctx context.Context, incident *domain.ForensicIncident) {
	if uc.dispatcher == nil {
		return
	}

	// The request that triggered the check may finish before the alert does.
	dctx := context.WithoutCancel(ctx)

	uc.inflight.Add(1)
	go func() {
		defer uc.inflight.Done()

		dctx, cancel := context.WithTimeout(dctx, DefaultDispatchTimeout)
		defer cancel()

		uc.dispatcher.Dispatch(dctx, incident)
	}()
}

func (uc *SentinelUseCase) countCheck(result string) {
	if uc.metrics != nil {
		uc.metrics.IntegrityChecks.WithLabelValues(result).Inc()
	}
}

func banReason(drift decimal.Decimal) string {
	return "ledger drift " + drift.String()
}
