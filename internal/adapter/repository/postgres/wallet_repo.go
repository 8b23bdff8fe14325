package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

const walletColumns = `id, user_id, balance::text, reserved::text, created_at, updated_at`

// WalletRepository implements usecase.WalletRepository.
type WalletRepository struct {
	pool querier
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return newWalletRepository(pool)
}

func newWalletRepository(pool querier) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// Ensure returns the user's wallet, creating it from wallet when missing.
func (r *WalletRepository) Ensure(ctx context.Context, tx usecase.Transaction, wallet *domain.Wallet) (*domain.Wallet, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	row := conn(r.pool, tx).QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, balance, reserved, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+walletColumns,
		wallet.ID, wallet.UserID, wallet.CreatedAt,
	)

	return scanWallet(row)
}

// GetByUserID retrieves the wallet of a user.
func (r *WalletRepository) GetByUserID(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error) {
	row := conn(r.pool, tx).QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

// GetByUserIDForUpdate retrieves and row-locks the wallet of a user.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error) {
	row := conn(r.pool, tx).QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return scanWallet(row)
}

// GetByIDForUpdate retrieves and row-locks a wallet by ID.
func (r *WalletRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Wallet, error) {
	row := conn(r.pool, tx).QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
	return scanWallet(row)
}

// IncrementReserved adds amount to the reserved counter.
func (r *WalletRepository) IncrementReserved(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) error {
	tag, err := conn(r.pool, tx).Exec(ctx, `
		UPDATE wallets SET reserved = reserved + $2::numeric, updated_at = $3
		WHERE id = $1`,
		id, numeric(amount), updatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// ReleaseReserved lowers reserved by amount, never below zero.
func (r *WalletRepository) ReleaseReserved(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error) {
	row := conn(r.pool, tx).QueryRow(ctx, `
		UPDATE wallets SET reserved = GREATEST(reserved - $2::numeric, 0), updated_at = $3
		WHERE id = $1
		RETURNING `+walletColumns,
		id, numeric(amount), updatedAt,
	)
	return scanWallet(row)
}

// SetReserved overwrites the reserved counter.
func (r *WalletRepository) SetReserved(ctx context.Context, tx usecase.Transaction, id string, reserved decimal.Decimal, updatedAt time.Time) error {
	tag, err := conn(r.pool, tx).Exec(ctx, `
		UPDATE wallets SET reserved = $2::numeric, updated_at = $3
		WHERE id = $1`,
		id, numeric(reserved), updatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// Settle debits a held amount. The balance guard is part of the UPDATE.
func (r *WalletRepository) Settle(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error) {
	row := conn(r.pool, tx).QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance - $2::numeric,
		    reserved = GREATEST(reserved - $2::numeric, 0),
		    updated_at = $3
		WHERE id = $1 AND balance >= $2::numeric
		RETURNING `+walletColumns,
		id, numeric(amount), updatedAt,
	)
	return guarded(scanWallet(row))
}

// Credit adds amount to the balance.
func (r *WalletRepository) Credit(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error) {
	row := conn(r.pool, tx).QueryRow(ctx, `
		UPDATE wallets SET balance = balance + $2::numeric, updated_at = $3
		WHERE id = $1
		RETURNING `+walletColumns,
		id, numeric(amount), updatedAt,
	)
	return scanWallet(row)
}

// DebitIfSufficient subtracts amount from the balance when it is covered.
func (r *WalletRepository) DebitIfSufficient(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal, updatedAt time.Time) (*domain.Wallet, error) {
	row := conn(r.pool, tx).QueryRow(ctx, `
		UPDATE wallets SET balance = balance - $2::numeric, updated_at = $3
		WHERE id = $1 AND balance >= $2::numeric
		RETURNING `+walletColumns,
		id, numeric(amount), updatedAt,
	)
	return guarded(scanWallet(row))
}

// List returns wallets in creation order.
func (r *WalletRepository) List(ctx context.Context, limit, offset int) ([]*domain.Wallet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+walletColumns+` FROM wallets
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}

	return wallets, rows.Err()
}

// guarded maps a missed conditional update to ErrInsufficientFunds.
func guarded(w *domain.Wallet, err error) (*domain.Wallet, error) {
	if errors.Is(err, domain.ErrWalletNotFound) {
		return nil, domain.ErrInsufficientFunds
	}
	return w, err
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w                 domain.Wallet
		balance, reserved string
	)

	err := row.Scan(&w.ID, &w.UserID, &balance, &reserved, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}

	if w.Balance, err = parseNumeric(balance); err != nil {
		return nil, err
	}
	if w.Reserved, err = parseNumeric(reserved); err != nil {
		return nil, err
	}

	return &w, nil
}
