package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	Type   HedgeType
}

// OpportunityStore persists the history of found opportunities.
type OpportunityStore interface {
	InsertBatch(ctx context.Context, opps []HedgeOpportunity) error
	ListRecent(ctx context.Context, opts ListOpts) ([]HedgeOpportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]HedgeOpportunity, error)
}

// ExecutionStore persists hedge executions.
type ExecutionStore interface {
	Upsert(ctx context.Context, exec Execution) error
	GetByID(ctx context.Context, id string) (Execution, error)
	ListRecent(ctx context.Context, limit int) ([]Execution, error)
}
