package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

// AuditRepository implements audit log persistence
type AuditRepository struct {
	pool querier
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return newAuditRepository(pool)
}

func newAuditRepository(pool querier) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// CreateTx inserts a new audit log entry, within tx when given.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	var beforeStateJSON, afterStateJSON []byte
	var err error

	if log.BeforeState != nil {
		beforeStateJSON, err = json.Marshal(log.BeforeState)
		if err != nil {
			return err
		}
	}

	if log.AfterState != nil {
		afterStateJSON, err = json.Marshal(log.AfterState)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id, request_id,
			before_state, after_state, status, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = conn(r.pool, tx).Exec(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		log.RequestID,
		beforeStateJSON,
		afterStateJSON,
		log.Status,
		log.ErrorMessage,
		log.CreatedAt,
	)

	return err
}

// List retrieves audit logs with filtering, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, user_id, action, resource_type, resource_id, request_id,
		       before_state, after_state, status, error_message, created_at
		FROM audit_logs
		WHERE 1=1
	`
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.UserID != "" {
		query += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.Action != "" {
		query += ` AND action = ` + arg(filter.Action)
	}
	if filter.ResourceType != "" {
		query += ` AND resource_type = ` + arg(filter.ResourceType)
	}
	if filter.ResourceID != "" {
		query += ` AND resource_id = ` + arg(filter.ResourceID)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.AuditLog
	for rows.Next() {
		var log domain.AuditLog
		var beforeStateJSON, afterStateJSON []byte

		err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.Action,
			&log.ResourceType,
			&log.ResourceID,
			&log.RequestID,
			&beforeStateJSON,
			&afterStateJSON,
			&log.Status,
			&log.ErrorMessage,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if beforeStateJSON != nil {
			if err := json.Unmarshal(beforeStateJSON, &log.BeforeState); err != nil {
				return nil, fmt.Errorf("decode before state of audit log %s: %w", log.ID, err)
			}
		}

		if afterStateJSON != nil {
			if err := json.Unmarshal(afterStateJSON, &log.AfterState); err != nil {
				return nil, fmt.Errorf("decode after state of audit log %s: %w", log.ID, err)
			}
		}

		logs = append(logs, &log)
	}

	return logs, rows.Err()
}
