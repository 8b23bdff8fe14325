package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

// UserRepository implements usecase.UserRepository. Only the standing
// columns are touched; the rest of the users table belongs elsewhere.
type UserRepository struct {
	pool querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return newUserRepository(pool)
}

func newUserRepository(pool querier) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, tx usecase.Transaction, id string) (*domain.User, error) {
	var (
		user   domain.User
		status string
		reason *string
	)

	err := conn(r.pool, tx).QueryRow(ctx, `
		SELECT id, status, ban_reason, banned_at, updated_at
		FROM users
		WHERE id = $1`,
		id,
	).Scan(&user.ID, &status, &reason, &user.BannedAt, &user.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	user.Status = domain.UserStatus(status)
	if reason != nil {
		user.BanReason = *reason
	}

	return &user, nil
}

// Ban marks the user banned. The row is created when the user is not yet
// known here. Reports false when the user was already banned.
func (r *UserRepository) Ban(ctx context.Context, tx usecase.Transaction, id, reason string, at time.Time) (bool, error) {
	var bannedID string
	err := conn(r.pool, tx).QueryRow(ctx, `
		INSERT INTO users (id, status, ban_reason, banned_at, updated_at)
		VALUES ($1, 'banned', $2, $3, $3)
		ON CONFLICT (id) DO UPDATE
		SET status = 'banned',
		    ban_reason = EXCLUDED.ban_reason,
		    banned_at = EXCLUDED.banned_at,
		    updated_at = EXCLUDED.updated_at
		WHERE users.status <> 'banned'
		RETURNING id`,
		id, reason, at,
	).Scan(&bannedID)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
