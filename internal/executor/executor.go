// Package executor places the two legs of a hedge opportunity through a
// pluggable backend and tracks each attempt as an execution record.
package executor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Backend places a single leg. Implementations return an error when the leg
// could not be placed; the executor never retries a failed leg.
type Backend interface {
	Name() string
	PlaceLeg(ctx context.Context, order domain.LegOrder) (domain.LegFill, error)
}

// Config wires the executor's collaborators. Store and Locks are optional.
type Config struct {
	Backend   Backend
	Store     domain.ExecutionStore
	Locks     domain.LockManager
	LockTTL   time.Duration
	DedupTTL  time.Duration
	Retention time.Duration
}

// Executor runs hedge executions and keeps their records in memory,
// mirroring every transition to the store when one is configured.
type Executor struct {
	backend   Backend
	store     domain.ExecutionStore
	locks     domain.LockManager
	lockTTL   time.Duration
	retention time.Duration
	dedup     *Dedup
	logger    *slog.Logger
	now       func() time.Time

	cleanupInterval time.Duration

	mu      sync.RWMutex
	records map[string]domain.Execution
}

// New creates an Executor. A nil Backend falls back to the simulated one.
func New(cfg Config, logger *slog.Logger) *Executor {
	if cfg.Backend == nil {
		cfg.Backend = NewSimulatedBackend()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Executor{
		backend:         cfg.Backend,
		store:           cfg.Store,
		locks:           cfg.Locks,
		lockTTL:         cfg.LockTTL,
		retention:       cfg.Retention,
		dedup:           NewDedup(cfg.DedupTTL),
		logger:          logger.With(slog.String("component", "executor"), slog.String("backend", cfg.Backend.Name())),
		now:             time.Now,
		cleanupInterval: 30 * time.Second,
		records:         make(map[string]domain.Execution),
	}
}

// Backend returns the name of the configured backend.
func (e *Executor) Backend() string { return e.backend.Name() }

// ExecuteHedgeBet places the back leg, then the counter leg, and returns the
// final record. A second call for an opportunity that is still executing
// fails with domain.ErrAlreadyExists. Leg failures do not return an error;
// they are reflected in the record's status.
func (e *Executor) ExecuteHedgeBet(ctx context.Context, opp domain.HedgeOpportunity) (domain.Execution, error) {
	if !e.dedup.Claim(opp.ID) {
		return domain.Execution{}, fmt.Errorf("executor: opportunity %s: %w", opp.ID, domain.ErrAlreadyExists)
	}
	defer e.dedup.Release(opp.ID)

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "exec:"+opp.ID, e.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.Execution{}, fmt.Errorf("executor: opportunity %s: %w", opp.ID, domain.ErrAlreadyExists)
			}
			return domain.Execution{}, fmt.Errorf("executor: lock %s: %w", opp.ID, err)
		}
		defer unlock()
	}

	now := e.now().UTC()
	rec := domain.Execution{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Status:        domain.ExecPending,
		Opportunity:   opp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	log := e.logger.With(
		slog.String("execution_id", rec.ID),
		slog.String("opportunity_id", opp.ID),
	)
	e.save(ctx, rec)

	rec.Status = domain.ExecInProgress
	e.transition(ctx, &rec)

	backOrder, counterOrder := legOrders(opp)
	backFill, err := e.backend.PlaceLeg(ctx, backOrder)
	if err != nil {
		log.Warn("back leg failed", slog.String("error", err.Error()))
		rec.Error = "back leg: " + err.Error()
		rec.Status = terminalStatus(false, false)
		e.transition(ctx, &rec)
		return rec, nil
	}
	rec.BackLeg = &backFill

	counterFill, err := e.backend.PlaceLeg(ctx, counterOrder)
	if err != nil {
		log.Warn("counter leg failed", slog.String("error", err.Error()))
		rec.Error = string(counterOrder.Side) + " leg: " + err.Error()
	} else {
		rec.LayLeg = &counterFill
	}
	rec.Status = terminalStatus(true, err == nil)
	e.transition(ctx, &rec)

	log.Info("execution finished",
		slog.String("status", string(rec.Status)),
		slog.Float64("back_stake", backOrder.Stake),
		slog.Float64("counter_stake", counterOrder.Stake),
	)
	return rec, nil
}

// Get returns an execution by id, falling back to the store for records
// that are no longer held in memory.
func (e *Executor) Get(ctx context.Context, id string) (domain.Execution, error) {
	e.mu.RLock()
	rec, ok := e.records[id]
	e.mu.RUnlock()
	if ok {
		return rec, nil
	}
	if e.store == nil {
		return domain.Execution{}, fmt.Errorf("executor: execution %s: %w", id, domain.ErrNotFound)
	}
	rec, err := e.store.GetByID(ctx, id)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("executor: execution %s: %w", id, err)
	}
	return rec, nil
}

// List returns up to limit executions, newest first.
func (e *Executor) List(ctx context.Context, limit int) ([]domain.Execution, error) {
	if e.store != nil {
		recs, err := e.store.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("executor: list: %w", err)
		}
		return recs, nil
	}
	e.mu.RLock()
	out := make([]domain.Execution, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r)
	}
	e.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.Execution) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Run periodically drops expired dedup entries and finished records older
// than the retention window, until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.dedup.Cleanup()
			e.prune()
		}
	}
}

func (e *Executor) prune() {
	cutoff := e.now().Add(-e.retention)
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, r := range e.records {
		if r.Status.Terminal() && r.UpdatedAt.Before(cutoff) {
			delete(e.records, id)
		}
	}
}

func (e *Executor) transition(ctx context.Context, rec *domain.Execution) {
	rec.UpdatedAt = e.now().UTC()
	e.save(ctx, *rec)
}

func (e *Executor) save(ctx context.Context, rec domain.Execution) {
	e.mu.Lock()
	e.records[rec.ID] = rec
	e.mu.Unlock()

	if e.store == nil {
		return
	}
	if err := e.store.Upsert(ctx, rec); err != nil {
		e.logger.Warn("execution record failed",
			slog.String("execution_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}
