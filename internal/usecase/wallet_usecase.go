package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/infrastructure/metrics"
)

// WalletOptions holds optional WalletUseCase collaborators.
type WalletOptions struct {
	Retrier        Retrier
	Guard          IntegrityGuard
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
	ReservationTTL time.Duration
}

// WalletUseCase implements the two-phase wallet protocol and single-phase
// credit/debit movements. Every mutation runs in a single storage
// transaction, either its own or the caller's.
type WalletUseCase struct {
	txManager       TransactionManager
	walletRepo      WalletRepository
	ledgerRepo      LedgerRepository
	reservationRepo ReservationRepository
	idGen           IDGenerator
	retrier         Retrier
	guard           IntegrityGuard
	metrics         *metrics.Metrics
	logger          zerolog.Logger
	reservationTTL  time.Duration
	now             func() time.Time
}

// NewWalletUseCase creates a new WalletUseCase.
func NewWalletUseCase(
	txManager TransactionManager,
	walletRepo WalletRepository,
	ledgerRepo LedgerRepository,
	reservationRepo ReservationRepository,
	idGen IDGenerator,
	opts WalletOptions,
) *WalletUseCase {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = DefaultReservationTTL
	}

	return &WalletUseCase{
		txManager:       txManager,
		walletRepo:      walletRepo,
		ledgerRepo:      ledgerRepo,
		reservationRepo: reservationRepo,
		idGen:           idGen,
		retrier:         opts.Retrier,
		guard:           opts.Guard,
		metrics:         opts.Metrics,
		logger:          opts.Logger.With().Str("component", "wallet").Logger(),
		reservationTTL:  opts.ReservationTTL,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// ReserveInput represents input for placing a hold.
type ReserveInput struct {
	Tx             Transaction
	IdempotencyKey *string
	UserID         string
	RefID          string
	Description    string
	Amount         decimal.Decimal
}

// CommitInput represents input for converting a hold into a debit.
type CommitInput struct {
	Tx             Transaction
	IdempotencyKey *string
	Metadata       map[string]any
	UserID         string
	RefID          string
	Description    string
	Type           domain.TransactionType // defaults to purchase
	Amount         decimal.Decimal
}

// RollbackInput represents input for releasing a hold.
type RollbackInput struct {
	Tx          Transaction
	UserID      string
	RefID       string
	Description string
	Amount      decimal.Decimal
}

// MovementInput represents input for credit, debit and charge.
type MovementInput struct {
	Tx             Transaction
	IdempotencyKey *string
	Metadata       map[string]any
	UserID         string
	Type           domain.TransactionType
	Description    string
	Amount         decimal.Decimal
}

// RefundInput represents input for reversing a prior purchase.
type RefundInput struct {
	Tx             Transaction
	IdempotencyKey *string
	Metadata       map[string]any
	UserID         string
	RefID          string
	Type           domain.TransactionType // defaults to refund
	Description    string
	Amount         decimal.Decimal
}

// GetBalance returns available funds (balance - reserved). A missing wallet
// has zero available funds.
func (uc *WalletUseCase) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	wallet, err := uc.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	return wallet.Available(), nil
}

// GetWallet returns the wallet of a user.
func (uc *WalletUseCase) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return uc.walletRepo.GetByUserID(ctx, nil, userID)
}

// ListTransactions returns a page of the user's ledger, newest first.
func (uc *WalletUseCase) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
	wallet, err := uc.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	limit, offset, _ = domain.ValidatePagination(limit, offset)
	return uc.ledgerRepo.ListByWallet(ctx, nil, wallet.ID, limit, offset)
}

// Reserve holds amount against the user's liquid funds and returns the
// wallet ID. No ledger row is written.
func (uc *WalletUseCase) Reserve(ctx context.Context, input ReserveInput) (walletID string, err error) {
	start := time.Now()
	defer func() { uc.observe("reserve", start, input.Amount, err) }()

	if err := validateHold(input.UserID, input.RefID, input.Amount, input.IdempotencyKey); err != nil {
		return "", err
	}

	if err := uc.checkGuard(ctx, input.Tx, input.UserID); err != nil {
		return "", err
	}

	opened := false
	err = uc.inTx(ctx, input.Tx, func(ctx context.Context, tx Transaction) error {
		opened = false

		// Row lock serializes concurrent reservations on this wallet.
		wallet, err := uc.walletRepo.GetByUserIDForUpdate(ctx, tx, input.UserID)
		if err != nil {
			return err
		}

		if input.IdempotencyKey != nil {
			prior, err := uc.reservationRepo.GetByIdempotencyKey(ctx, tx, *input.IdempotencyKey)
			if err != nil && !errors.Is(err, domain.ErrReservationNotFound) {
				return err
			}
			if prior != nil {
				if prior.WalletID != wallet.ID {
					return domain.ErrIdempotencyKeyReused
				}
				walletID = wallet.ID
				return nil
			}
		}

		if err := wallet.ValidateReserve(input.Amount); err != nil {
			return err
		}

		now := uc.now()
		if err := uc.walletRepo.IncrementReserved(ctx, tx, wallet.ID, input.Amount, now); err != nil {
			return err
		}

		reservation := &domain.Reservation{
			ID:             uc.idGen.Generate(),
			WalletID:       wallet.ID,
			RefID:          input.RefID,
			Amount:         input.Amount,
			Status:         domain.ReservationStatusOpen,
			IdempotencyKey: input.IdempotencyKey,
			ExpiresAt:      now.Add(uc.reservationTTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := uc.reservationRepo.Create(ctx, tx, reservation); err != nil {
			return err
		}

		walletID = wallet.ID
		opened = true
		return nil
	})

	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) && input.Tx == nil {
		// Lost a race against a concurrent reserve with the same key.
		prior, lookupErr := uc.reservationRepo.GetByIdempotencyKey(ctx, nil, *input.IdempotencyKey)
		if lookupErr != nil {
			return "", lookupErr
		}
		uc.replayed("reserve")
		return prior.WalletID, nil
	}
	if err != nil {
		return "", err
	}

	if opened {
		if uc.metrics != nil {
			uc.metrics.ReservationsOpened.Inc()
		}
	} else {
		uc.replayed("reserve")
	}

	return walletID, nil
}

// Commit converts a hold into a permanent purchase debit. It is the only
// path that removes reserved money from a wallet.
func (uc *WalletUseCase) Commit(ctx context.Context, input CommitInput) (result *domain.Transaction, err error) {
	start := time.Now()
	defer func() { uc.observe("commit", start, input.Amount, err) }()

	if err := validateHold(input.UserID, input.RefID, input.Amount, input.IdempotencyKey); err != nil {
		return nil, err
	}
	if err := domain.ValidateMetadata(input.Metadata); err != nil {
		return nil, err
	}

	txType := input.Type
	if txType == "" {
		txType = domain.TxTypePurchase
	}
	if err := domain.ValidateDebitType(txType); err != nil {
		return nil, err
	}

	if err := uc.checkGuard(ctx, input.Tx, input.UserID); err != nil {
		return nil, err
	}

	replayed := false
	err = uc.inTx(ctx, input.Tx, func(ctx context.Context, tx Transaction) error {
		replayed = false

		wallet, err := uc.walletRepo.GetByUserID(ctx, tx, input.UserID)
		if err != nil {
			return err
		}

		prior, err := uc.replay(ctx, tx, wallet.ID, input.IdempotencyKey)
		if err != nil {
			return err
		}
		if prior != nil {
			result, replayed = prior, true
			return nil
		}

		if wallet.Reserved.LessThan(input.Amount) {
			// Tolerated: concurrent reservations can shrink reserved first.
			// The balance guard below is what protects the wallet.
			uc.logger.Warn().
				Str("user_id", input.UserID).
				Str("wallet_id", wallet.ID).
				Str("ref_id", input.RefID).
				Str("reserved", wallet.Reserved.String()).
				Str("amount", input.Amount.String()).
				Msg("commit exceeds reserved amount")
		}

		if wallet.Balance.LessThan(input.Amount) {
			return uc.commitViolation(wallet, input.Amount)
		}

		now := uc.now()
		if _, err := uc.walletRepo.Settle(ctx, tx, wallet.ID, input.Amount, now); err != nil {
			if errors.Is(err, domain.ErrInsufficientFunds) {
				return uc.commitViolation(wallet, input.Amount)
			}
			return err
		}

		result, err = uc.appendTransaction(ctx, tx, wallet.ID, input.Amount.Neg(), txType, input.Description, &input.RefID, input.IdempotencyKey, input.Metadata, now)
		if err != nil {
			return err
		}

		return uc.closeReservation(ctx, tx, wallet.ID, input.RefID, domain.ReservationStatusCommitted, now)
	})

	result, err = uc.recoverDuplicate(ctx, input.Tx, input.IdempotencyKey, result, err)
	if err != nil {
		return nil, err
	}

	if replayed {
		uc.replayed("commit")
	} else if uc.metrics != nil {
		uc.metrics.ReservationsCommitted.Inc()
	}

	return result, nil
}

// Rollback releases a hold. Balance is untouched and no ledger row is written.
func (uc *WalletUseCase) Rollback(ctx context.Context, input RollbackInput) (err error) {
	start := time.Now()
	defer func() { uc.observe("rollback", start, input.Amount, err) }()

	if err := validateHold(input.UserID, input.RefID, input.Amount, nil); err != nil {
		return err
	}

	err = uc.inTx(ctx, input.Tx, func(ctx context.Context, tx Transaction) error {
		wallet, err := uc.walletRepo.GetByUserID(ctx, tx, input.UserID)
		if err != nil {
			return err
		}

		now := uc.now()
		if wallet.Reserved.LessThan(input.Amount) {
			uc.logger.Warn().
				Str("user_id", input.UserID).
				Str("wallet_id", wallet.ID).
				Str("ref_id", input.RefID).
				Str("reserved", wallet.Reserved.String()).
				Str("amount", input.Amount.String()).
				Msg("rollback exceeds reserved amount, clamping at zero")
		}

		if _, err := uc.walletRepo.ReleaseReserved(ctx, tx, wallet.ID, input.Amount, now); err != nil {
			return err
		}

		return uc.closeReservation(ctx, tx, wallet.ID, input.RefID, domain.ReservationStatusReleased, now)
	})
	if err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.ReservationsReleased.Inc()
	}

	return nil
}

// Credit adds amount to the user's balance, creating the wallet on first use.
func (uc *WalletUseCase) Credit(ctx context.Context, input MovementInput) (result *domain.Transaction, err error) {
	start := time.Now()
	defer func() { uc.observe("credit", start, input.Amount, err) }()

	if err := validateMovement(input.UserID, input.Amount, input.IdempotencyKey, input.Metadata); err != nil {
		return nil, err
	}
	if err := domain.ValidateCreditType(input.Type); err != nil {
		return nil, err
	}

	return uc.creditLike(ctx, "credit", input.Tx, input.UserID, input.Amount, input.Type, input.Description, nil, input.IdempotencyKey, input.Metadata)
}

// Refund credits amount back for a reversed purchase. Reserved is untouched.
func (uc *WalletUseCase) Refund(ctx context.Context, input RefundInput) (result *domain.Transaction, err error) {
	start := time.Now()
	defer func() { uc.observe("refund", start, input.Amount, err) }()

	if err := validateMovement(input.UserID, input.Amount, input.IdempotencyKey, input.Metadata); err != nil {
		return nil, err
	}
	if err := domain.ValidateReference(input.RefID); err != nil {
		return nil, err
	}

	txType := input.Type
	if txType == "" {
		txType = domain.TxTypeRefund
	}
	if err := domain.ValidateCreditType(txType); err != nil {
		return nil, err
	}

	return uc.creditLike(ctx, "refund", input.Tx, input.UserID, input.Amount, txType, input.Description, &input.RefID, input.IdempotencyKey, input.Metadata)
}

// Debit removes amount from the settled balance.
func (uc *WalletUseCase) Debit(ctx context.Context, input MovementInput) (result *domain.Transaction, err error) {
	start := time.Now()
	defer func() { uc.observe("debit", start, input.Amount, err) }()

	if err := validateMovement(input.UserID, input.Amount, input.IdempotencyKey, input.Metadata); err != nil {
		return nil, err
	}
	if err := domain.ValidateDebitType(input.Type); err != nil {
		return nil, err
	}

	if err := uc.checkGuard(ctx, input.Tx, input.UserID); err != nil {
		return nil, err
	}

	return uc.debitLike(ctx, "debit", input, domain.ErrWalletNotFound)
}

// Charge is the legacy single-phase debit. The balance guard lives in the
// UPDATE itself so no row lock is taken.
func (uc *WalletUseCase) Charge(ctx context.Context, input MovementInput) (result *domain.Transaction, err error) {
	start := time.Now()
	defer func() { uc.observe("charge", start, input.Amount, err) }()

	if input.Type == "" {
		input.Type = domain.TxTypePurchase
	}

	if err := validateMovement(input.UserID, input.Amount, input.IdempotencyKey, input.Metadata); err != nil {
		return nil, err
	}
	if err := domain.ValidateDebitType(input.Type); err != nil {
		return nil, err
	}

	if err := uc.checkGuard(ctx, input.Tx, input.UserID); err != nil {
		return nil, err
	}

	// A missing wallet has nothing to charge.
	return uc.debitLike(ctx, "charge", input, domain.ErrInsufficientFunds)
}

func (uc *WalletUseCase) creditLike(
	ctx context.Context,
	op string,
	ext Transaction,
	userID string,
	amount decimal.Decimal,
	txType domain.TransactionType,
	description string,
	refID *string,
	key *string,
	metadata map[string]any,
) (*domain.Transaction, error) {
	var result *domain.Transaction
	replayed := false

	err := uc.inTx(ctx, ext, func(ctx context.Context, tx Transaction) error {
		replayed = false

		wallet, err := uc.ensureWallet(ctx, tx, userID)
		if err != nil {
			return err
		}

		prior, err := uc.replay(ctx, tx, wallet.ID, key)
		if err != nil {
			return err
		}
		if prior != nil {
			result, replayed = prior, true
			return nil
		}

		now := uc.now()
		if _, err := uc.walletRepo.Credit(ctx, tx, wallet.ID, amount, now); err != nil {
			return err
		}

		result, err = uc.appendTransaction(ctx, tx, wallet.ID, amount, txType, description, refID, key, metadata, now)
		return err
	})

	result, err = uc.recoverDuplicate(ctx, ext, key, result, err)
	if err != nil {
		return nil, err
	}
	if replayed {
		uc.replayed(op)
	}

	return result, nil
}

func (uc *WalletUseCase) debitLike(ctx context.Context, op string, input MovementInput, missingWallet error) (*domain.Transaction, error) {
	var result *domain.Transaction
	replayed := false

	err := uc.inTx(ctx, input.Tx, func(ctx context.Context, tx Transaction) error {
		replayed = false

		wallet, err := uc.walletRepo.GetByUserID(ctx, tx, input.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrWalletNotFound) {
				return missingWallet
			}
			return err
		}

		prior, err := uc.replay(ctx, tx, wallet.ID, input.IdempotencyKey)
		if err != nil {
			return err
		}
		if prior != nil {
			result, replayed = prior, true
			return nil
		}

		now := uc.now()
		if _, err := uc.walletRepo.DebitIfSufficient(ctx, tx, wallet.ID, input.Amount, now); err != nil {
			return err
		}

		result, err = uc.appendTransaction(ctx, tx, wallet.ID, input.Amount.Neg(), input.Type, input.Description, nil, input.IdempotencyKey, input.Metadata, now)
		return err
	})

	result, err = uc.recoverDuplicate(ctx, input.Tx, input.IdempotencyKey, result, err)
	if err != nil {
		return nil, err
	}
	if replayed {
		uc.replayed(op)
	}

	return result, nil
}

// inTx runs fn in the caller's transaction when ext is set, otherwise in a
// new transaction that is committed on success and retried on deadlocks.
func (uc *WalletUseCase) inTx(ctx context.Context, ext Transaction, fn func(ctx context.Context, tx Transaction) error) error {
	if ext != nil {
		return fn(ctx, ext)
	}

	run := func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	}

	if uc.retrier == nil {
		return run()
	}

	return uc.retrier.Retry(ctx, run)
}

func (uc *WalletUseCase) ensureWallet(ctx context.Context, tx Transaction, userID string) (*domain.Wallet, error) {
	now := uc.now()
	candidate := &domain.Wallet{
		ID:        uc.idGen.Generate(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Reserved:  decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	wallet, err := uc.walletRepo.Ensure(ctx, tx, candidate)
	if err != nil {
		return nil, err
	}

	if wallet.ID == candidate.ID && uc.metrics != nil {
		uc.metrics.WalletsCreated.Inc()
	}

	return wallet, nil
}

// replay returns the transaction previously recorded under key, if any.
func (uc *WalletUseCase) replay(ctx context.Context, tx Transaction, walletID string, key *string) (*domain.Transaction, error) {
	if key == nil {
		return nil, nil
	}

	prior, err := uc.ledgerRepo.GetByIdempotencyKey(ctx, tx, *key)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if prior.WalletID != walletID {
		return nil, domain.ErrIdempotencyKeyReused
	}

	return prior, nil
}

// recoverDuplicate turns a lost idempotency race into a replay of the
// winner's transaction. Only possible when the operation owned its
// transaction; a caller-supplied transaction is already aborted.
func (uc *WalletUseCase) recoverDuplicate(ctx context.Context, ext Transaction, key *string, result *domain.Transaction, err error) (*domain.Transaction, error) {
	if err == nil || key == nil || ext != nil || !errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		return result, err
	}

	prior, lookupErr := uc.ledgerRepo.GetByIdempotencyKey(ctx, nil, *key)
	if lookupErr != nil {
		return nil, fmt.Errorf("resolve duplicate idempotency key: %w", lookupErr)
	}

	return prior, nil
}

func (uc *WalletUseCase) appendTransaction(
	ctx context.Context,
	tx Transaction,
	walletID string,
	amount decimal.Decimal,
	txType domain.TransactionType,
	description string,
	refID *string,
	key *string,
	metadata map[string]any,
	now time.Time,
) (*domain.Transaction, error) {
	t := &domain.Transaction{
		ID:             uc.idGen.Generate(),
		WalletID:       walletID,
		Amount:         amount,
		Type:           txType,
		Description:    description,
		IdempotencyKey: key,
		RefID:          refID,
		Metadata:       metadata,
		CreatedAt:      now,
	}

	if err := uc.ledgerRepo.Create(ctx, tx, t); err != nil {
		return nil, err
	}

	return t, nil
}

func (uc *WalletUseCase) closeReservation(ctx context.Context, tx Transaction, walletID, refID string, status domain.ReservationStatus, now time.Time) error {
	reservation, err := uc.reservationRepo.GetOpenByRef(ctx, tx, walletID, refID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			uc.logger.Debug().
				Str("wallet_id", walletID).
				Str("ref_id", refID).
				Msg("no open reservation record for reference")
			return nil
		}
		return err
	}

	return uc.reservationRepo.UpdateStatus(ctx, tx, reservation.ID, status, now)
}

func (uc *WalletUseCase) commitViolation(wallet *domain.Wallet, amount decimal.Decimal) error {
	uc.logger.Error().
		Str("user_id", wallet.UserID).
		Str("wallet_id", wallet.ID).
		Str("balance", wallet.Balance.String()).
		Str("amount", amount.String()).
		Msg("commit amount exceeds balance")

	return fmt.Errorf("%w: balance below commit amount", domain.ErrWalletIntegrityViolation)
}

// checkGuard runs the guard in the operation's transaction when the caller
// supplied one, so it never waits on a row lock that transaction holds.
func (uc *WalletUseCase) checkGuard(ctx context.Context, tx Transaction, userID string) error {
	if uc.guard == nil {
		return nil
	}
	if tx != nil {
		return uc.guard.GuardTx(ctx, tx, userID)
	}
	return uc.guard.Guard(ctx, userID)
}

func (uc *WalletUseCase) replayed(op string) {
	if uc.metrics != nil {
		uc.metrics.IdempotentReplays.WithLabelValues(op).Inc()
	}
}

func (uc *WalletUseCase) observe(op string, start time.Time, amount decimal.Decimal, err error) {
	if uc.metrics == nil {
		return
	}

	uc.metrics.WalletOperations.WithLabelValues(op, ErrorKind(err)).Inc()
	uc.metrics.WalletDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		uc.metrics.WalletAmount.WithLabelValues(op).Observe(amount.InexactFloat64())
	}
}

// ErrorKind buckets an error for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, domain.ErrWalletIntegrityViolation):
		return "integrity_violation"
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return "idempotency_conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

func validateHold(userID, refID string, amount decimal.Decimal, key *string) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	if err := domain.ValidateReference(refID); err != nil {
		return err
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	return domain.ValidateIdempotencyKey(key)
}

func validateMovement(userID string, amount decimal.Decimal, key *string, metadata map[string]any) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	if err := domain.ValidateIdempotencyKey(key); err != nil {
		return err
	}
	return domain.ValidateMetadata(metadata)
}
