package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Upsert writes the current state of an execution.
func (s *ExecutionStore) Upsert(ctx context.Context, exec domain.Execution) error {
	payload, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("postgres: marshal execution %s: %w", exec.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO hedge_executions (id, opportunity_id, status, error, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			error      = EXCLUDED.error,
			payload    = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		exec.ID, exec.OpportunityID, string(exec.Status), exec.Error, payload, exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert execution %s: %w", exec.ID, err)
	}
	return nil
}

// GetByID returns domain.ErrNotFound for unknown ids.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM hedge_executions WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, domain.ErrNotFound
		}
		return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	var exec domain.Execution
	if err := json.Unmarshal(payload, &exec); err != nil {
		return domain.Execution{}, fmt.Errorf("postgres: decode execution %s: %w", id, err)
	}
	return exec, nil
}

// ListRecent returns the most recent executions.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM hedge_executions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.Execution
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var exec domain.Execution
		if err := json.Unmarshal(payload, &exec); err != nil {
			return nil, fmt.Errorf("postgres: decode execution: %w", err)
		}
		list = append(list, exec)
	}
	return list, rows.Err()
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
