package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/usecase"
)

const pgErrUniqueViolation = "23505"

// querier is the subset of pgxpool.Pool and pgx.Tx the repositories use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn returns the caller's transaction when there is one, otherwise the pool.
func conn(pool querier, tx usecase.Transaction) querier {
	if t, ok := tx.(*Tx); ok && t != nil {
		return t.PgxTx()
	}
	return pool
}

// Numerics travel as text so no driver-specific decimal codec is needed.
func numeric(d decimal.Decimal) string {
	return d.String()
}

func parseNumeric(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
