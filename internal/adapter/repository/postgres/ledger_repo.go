package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

const transactionColumns = `id, wallet_id, amount::text, type, description, idempotency_key, ref_id, metadata, created_at`

// LedgerRepository implements usecase.LedgerRepository over the
// append-only wallet_transactions table.
type LedgerRepository struct {
	pool querier
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return newLedgerRepository(pool)
}

func newLedgerRepository(pool querier) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Create appends a transaction row.
func (r *LedgerRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	var metadata []byte
	if len(t.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(t.Metadata); err != nil {
			return err
		}
	}

	_, err := conn(r.pool, tx).Exec(ctx, `
		INSERT INTO wallet_transactions (
			id, wallet_id, amount, type, description,
			idempotency_key, ref_id, metadata, created_at
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.WalletID, numeric(t.Amount), string(t.Type), t.Description,
		t.IdempotencyKey, t.RefID, metadata, t.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateIdempotencyKey
	}

	return err
}

// GetByIdempotencyKey retrieves the transaction recorded under key.
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, tx usecase.Transaction, key string) (*domain.Transaction, error) {
	row := conn(r.pool, tx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM wallet_transactions WHERE idempotency_key = $1`, key)
	return scanTransaction(row)
}

// SumByWallet returns the sum of all amounts of a wallet.
func (r *LedgerRepository) SumByWallet(ctx context.Context, tx usecase.Transaction, walletID string) (decimal.Decimal, error) {
	var sum string
	err := conn(r.pool, tx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM wallet_transactions WHERE wallet_id = $1`,
		walletID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}

	return parseNumeric(sum)
}

// ListByWallet returns a page of a wallet's transactions, newest first.
func (r *LedgerRepository) ListByWallet(ctx context.Context, tx usecase.Transaction, walletID string, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := conn(r.pool, tx).Query(ctx, `
		SELECT `+transactionColumns+` FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}

	return txs, rows.Err()
}

// CheckConsistency returns the sum of all balances and of all ledger rows.
func (r *LedgerRepository) CheckConsistency(ctx context.Context) (totalBalance decimal.Decimal, totalAmount decimal.Decimal, err error) {
	var balance, amount string
	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(balance), 0) FROM wallets)::text,
			(SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions)::text`,
	).Scan(&balance, &amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if totalBalance, err = parseNumeric(balance); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if totalAmount, err = parseNumeric(amount); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return totalBalance, totalAmount, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t        domain.Transaction
		amount   string
		txType   string
		metadata []byte
	)

	err := row.Scan(&t.ID, &t.WalletID, &amount, &txType, &t.Description,
		&t.IdempotencyKey, &t.RefID, &metadata, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	if t.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(txType)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of transaction %s: %w", t.ID, err)
		}
	}

	return &t, nil
}
