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

const reservationColumns = `id, wallet_id, ref_id, amount::text, status, idempotency_key, expires_at, created_at, updated_at`

// ReservationRepository implements usecase.ReservationRepository.
type ReservationRepository struct {
	pool querier
}

// NewReservationRepository creates a new ReservationRepository.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return newReservationRepository(pool)
}

func newReservationRepository(pool querier) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// Create inserts a reservation record.
func (r *ReservationRepository) Create(ctx context.Context, tx usecase.Transaction, res *domain.Reservation) error {
	_, err := conn(r.pool, tx).Exec(ctx, `
		INSERT INTO wallet_reservations (
			id, wallet_id, ref_id, amount, status,
			idempotency_key, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)`,
		res.ID, res.WalletID, res.RefID, numeric(res.Amount), string(res.Status),
		res.IdempotencyKey, res.ExpiresAt, res.CreatedAt, res.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateIdempotencyKey
	}

	return err
}

// GetByIdempotencyKey retrieves the reservation recorded under key.
func (r *ReservationRepository) GetByIdempotencyKey(ctx context.Context, tx usecase.Transaction, key string) (*domain.Reservation, error) {
	row := conn(r.pool, tx).QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM wallet_reservations WHERE idempotency_key = $1`, key)
	return scanReservation(row)
}

// GetByIDForUpdate retrieves and row-locks a reservation.
func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Reservation, error) {
	row := conn(r.pool, tx).QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM wallet_reservations WHERE id = $1 FOR UPDATE`, id)
	return scanReservation(row)
}

// GetOpenByRef retrieves and row-locks the oldest open reservation for refID.
func (r *ReservationRepository) GetOpenByRef(ctx context.Context, tx usecase.Transaction, walletID, refID string) (*domain.Reservation, error) {
	row := conn(r.pool, tx).QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM wallet_reservations
		WHERE wallet_id = $1 AND ref_id = $2 AND status = 'open'
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`,
		walletID, refID,
	)
	return scanReservation(row)
}

// UpdateStatus moves a reservation to status.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, id string, status domain.ReservationStatus, updatedAt time.Time) error {
	tag, err := conn(r.pool, tx).Exec(ctx,
		`UPDATE wallet_reservations SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), updatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

// ListExpired returns open reservations whose TTL elapsed before now,
// oldest first.
func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM wallet_reservations
		WHERE status = 'open' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}

	return out, rows.Err()
}

// SumOpenByWallet returns the total amount of a wallet's open reservations.
func (r *ReservationRepository) SumOpenByWallet(ctx context.Context, tx usecase.Transaction, walletID string) (decimal.Decimal, error) {
	var sum string
	err := conn(r.pool, tx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM wallet_reservations
		WHERE wallet_id = $1 AND status = 'open'`,
		walletID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}

	return parseNumeric(sum)
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		res    domain.Reservation
		amount string
		status string
	)

	err := row.Scan(&res.ID, &res.WalletID, &res.RefID, &amount, &status,
		&res.IdempotencyKey, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}

	if res.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	res.Status = domain.ReservationStatus(status)

	return &res, nil
}
