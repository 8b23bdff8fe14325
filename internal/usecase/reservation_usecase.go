package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/infrastructure/metrics"
)

// ReservationUseCase releases holds that were never committed or rolled
// back, e.g. after a crash between Reserve and Commit.
type ReservationUseCase struct {
	txManager       TransactionManager
	walletRepo      WalletRepository
	reservationRepo ReservationRepository
	outboxRepo      OutboxRepository
	auditRepo       AuditRepository
	idGen           IDGenerator
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// NewReservationUseCase creates a new ReservationUseCase.
func NewReservationUseCase(
	txManager TransactionManager,
	walletRepo WalletRepository,
	reservationRepo ReservationRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ReservationUseCase {
	return &ReservationUseCase{
		txManager:       txManager,
		walletRepo:      walletRepo,
		reservationRepo: reservationRepo,
		outboxRepo:      outboxRepo,
		auditRepo:       auditRepo,
		idGen:           idGen,
		metrics:         m,
		logger:          logger.With().Str("component", "reservations").Logger(),
	}
}

// ReapResult summarizes one reaper pass.
type ReapResult struct {
	Expired int
	Clamped int
}

// ReapExpired releases up to batch open reservations whose TTL elapsed
// before now. Each reservation is released in its own transaction.
func (uc *ReservationUseCase) ReapExpired(ctx context.Context, now time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = SweepPageSize
	}

	expired, err := uc.reservationRepo.ListExpired(ctx, now, batch)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}

	released := 0
	for _, candidate := range expired {
		if err := ctx.Err(); err != nil {
			return released, err
		}

		ok, err := uc.expire(ctx, candidate.ID, now)
		if err != nil {
			uc.logger.Error().Err(err).
				Str("reservation_id", candidate.ID).
				Str("wallet_id", candidate.WalletID).
				Msg("failed to expire reservation")
			continue
		}
		if ok {
			released++
		}
	}

	if released > 0 {
		uc.logger.Warn().Int("count", released).Msg("expired orphaned reservations")
	}

	return released, nil
}

func (uc *ReservationUseCase) expire(ctx context.Context, id string, now time.Time) (bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	reservation, err := uc.reservationRepo.GetByIDForUpdate(txCtx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return false, nil
		}
		return false, err
	}

	// Settled between listing and locking.
	if !reservation.IsExpired(now) {
		return false, nil
	}

	if _, err := uc.walletRepo.GetByIDForUpdate(txCtx, tx, reservation.WalletID); err != nil {
		return false, err
	}

	if _, err := uc.walletRepo.ReleaseReserved(txCtx, tx, reservation.WalletID, reservation.Amount, now); err != nil {
		return false, err
	}

	if err := uc.reservationRepo.UpdateStatus(txCtx, tx, reservation.ID, domain.ReservationStatusExpired, now); err != nil {
		return false, err
	}

	if uc.outboxRepo != nil {
		event := &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   reservation.ID,
			AggregateType: domain.AggregateTypeReservation,
			EventType:     domain.EventTypeReservationExpired,
			Payload: map[string]any{
				"reservation_id": reservation.ID,
				"wallet_id":      reservation.WalletID,
				"ref_id":         reservation.RefID,
				"amount":         reservation.Amount.String(),
			},
			CreatedAt: now,
		}
		if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
			return false, err
		}
	}

	if uc.auditRepo != nil {
		auditLog := &domain.AuditLog{
			ID:           uc.idGen.Generate(),
			UserID:       "system:reaper",
			Action:       string(domain.AuditActionReservationExpire),
			ResourceType: domain.AggregateTypeReservation,
			ResourceID:   reservation.ID,
			BeforeState:  domain.MarshalState(reservation),
			Status:       string(domain.AuditStatusSuccess),
			CreatedAt:    now,
		}
		if err := uc.auditRepo.CreateTx(txCtx, tx, auditLog); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return false, err
	}

	if uc.metrics != nil {
		uc.metrics.ReservationsExpired.Inc()
	}

	return true, nil
}

// ClampOrphaned lowers each wallet's reserved counter to the sum of its open
// reservation records. Reserved is never raised here.
func (uc *ReservationUseCase) ClampOrphaned(ctx context.Context) (int, error) {
	clamped := 0

	for offset := 0; ; offset += SweepPageSize {
		wallets, err := uc.walletRepo.List(ctx, SweepPageSize, offset)
		if err != nil {
			return clamped, fmt.Errorf("list wallets: %w", err)
		}

		for _, w := range wallets {
			if !w.Reserved.IsPositive() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return clamped, err
			}

			ok, err := uc.clamp(ctx, w.ID)
			if err != nil {
				uc.logger.Error().Err(err).Str("wallet_id", w.ID).Msg("failed to clamp reserved")
				continue
			}
			if ok {
				clamped++
			}
		}

		if len(wallets) < SweepPageSize {
			break
		}
	}

	return clamped, nil
}

func (uc *ReservationUseCase) clamp(ctx context.Context, walletID string) (bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	wallet, err := uc.walletRepo.GetByIDForUpdate(txCtx, tx, walletID)
	if err != nil {
		return false, err
	}

	open, err := uc.reservationRepo.SumOpenByWallet(txCtx, tx, walletID)
	if err != nil {
		return false, err
	}

	if !wallet.Reserved.GreaterThan(open) {
		return false, nil
	}

	now := time.Now().UTC()
	if err := uc.walletRepo.SetReserved(txCtx, tx, walletID, open, now); err != nil {
		return false, err
	}

	if uc.auditRepo != nil {
		auditLog := &domain.AuditLog{
			ID:           uc.idGen.Generate(),
			UserID:       "system:reaper",
			Action:       string(domain.AuditActionReservedClamp),
			ResourceType: domain.AggregateTypeWallet,
			ResourceID:   walletID,
			BeforeState:  domain.JSON{"reserved": wallet.Reserved.String()},
			AfterState:   domain.JSON{"reserved": open.String()},
			Status:       string(domain.AuditStatusSuccess),
			CreatedAt:    now,
		}
		if err := uc.auditRepo.CreateTx(txCtx, tx, auditLog); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return false, err
	}

	uc.logger.Warn().
		Str("wallet_id", walletID).
		Str("reserved", wallet.Reserved.String()).
		Str("open", open.String()).
		Msg("clamped reserved to open reservations")

	if uc.metrics != nil {
		uc.metrics.ReservedClamped.Inc()
	}

	return true, nil
}

// Reap runs an expiry pass followed by a clamp pass.
func (uc *ReservationUseCase) Reap(ctx context.Context, now time.Time) (*ReapResult, error) {
	expired, err := uc.ReapExpired(ctx, now, SweepPageSize)
	if err != nil {
		return &ReapResult{Expired: expired}, err
	}

	clamped, err := uc.ClampOrphaned(ctx)
	return &ReapResult{Expired: expired, Clamped: clamped}, err
}
