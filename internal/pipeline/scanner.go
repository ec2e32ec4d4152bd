package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/notify"
	"github.com/alanyoungcy/hedgebot/internal/strategy"
)

// ChannelOpportunities is the signal bus channel carrying every cycle's
// opportunities.
const ChannelOpportunities = "ch:opportunities"

// StreamOpportunities keeps the replayable history of the same events.
const StreamOpportunities = "stream:opportunities"

const scanLockKey = "scan"

// HedgeFinder runs one discovery pass.
type HedgeFinder interface {
	NewFindRequest() strategy.FindRequest
	FindOptimalHedgeOpportunities(ctx context.Context, req strategy.FindRequest) (domain.ScanResult, error)
}

// OpportunityPublisher forwards opportunities to an external stream.
type OpportunityPublisher interface {
	PublishOpportunities(ctx context.Context, opps []domain.HedgeOpportunity) error
}

// Alerter delivers operator notifications.
type Alerter interface {
	NotifyOpportunities(ctx context.Context, opps []domain.HedgeOpportunity, minPct float64) (int, error)
	Notify(ctx context.Context, event, title, message string) error
}

// OpportunityEvent is the payload published on ChannelOpportunities.
type OpportunityEvent struct {
	Type          string                    `json:"type"`
	Outcome       domain.ScanOutcome        `json:"outcome"`
	Reason        string                    `json:"reason,omitempty"`
	Opportunities []domain.HedgeOpportunity `json:"opportunities"`
	Timestamp     time.Time                 `json:"timestamp"`
}

// Cycle summarises one scanner run.
type Cycle struct {
	StartedAt     time.Time          `json:"started_at"`
	Duration      time.Duration      `json:"duration_ns"`
	Skipped       bool               `json:"skipped"`
	Outcome       domain.ScanOutcome `json:"outcome,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Opportunities int                `json:"opportunities"`
	Notified      int                `json:"notified"`
}

// ScannerConfig wires the scanner. Everything except Finder is optional.
type ScannerConfig struct {
	Finder          HedgeFinder
	Locks           domain.LockManager
	LockTTL         time.Duration
	Store           domain.OpportunityStore
	Bus             domain.SignalBus
	Stream          OpportunityPublisher
	Alerter         Alerter
	NotifyMinProfit float64
}

// Scanner runs the hedge manager periodically and distributes the results.
type Scanner struct {
	cfg    ScannerConfig
	logger *slog.Logger
	now    func() time.Time

	mu           sync.RWMutex
	last         Cycle
	lastOutcome  domain.ScanOutcome
	hasCompleted bool
}

// NewScanner creates a Scanner.
func NewScanner(cfg ScannerConfig, logger *slog.Logger) *Scanner {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Scanner{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scanner")),
		now:    time.Now,
	}
}

// LastCycle returns the most recent cycle and whether one has run.
func (s *Scanner) LastCycle() (Cycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, !s.last.StartedAt.IsZero()
}

// Run executes one cycle. A cycle is skipped when another replica holds the
// scan lock. Failures of the optional sinks are logged, not returned.
func (s *Scanner) Run(ctx context.Context) (Cycle, error) {
	cycle := Cycle{StartedAt: s.now().UTC()}

	if s.cfg.Locks != nil {
		unlock, err := s.cfg.Locks.Acquire(ctx, scanLockKey, s.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			cycle.Skipped = true
			s.logger.DebugContext(ctx, "scan lock held elsewhere, skipping cycle")
			s.record(cycle)
			return cycle, nil
		}
		if err != nil {
			return cycle, fmt.Errorf("pipeline: acquire scan lock: %w", err)
		}
		defer unlock()
	}

	res, err := s.cfg.Finder.FindOptimalHedgeOpportunities(ctx, s.cfg.Finder.NewFindRequest())
	if err != nil {
		return cycle, fmt.Errorf("pipeline: scan: %w", err)
	}
	cycle.Outcome = res.Outcome
	cycle.Reason = res.Reason
	cycle.Opportunities = len(res.Opportunities)

	s.persist(ctx, res.Opportunities)
	s.broadcast(ctx, res)
	cycle.Notified = s.alert(ctx, res)

	cycle.Duration = s.now().Sub(cycle.StartedAt)
	s.record(cycle)

	s.logger.InfoContext(ctx, "scan cycle complete",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("opportunities", cycle.Opportunities),
		slog.Int("matched_markets", res.MatchedMarkets),
		slog.Duration("duration", cycle.Duration),
	)
	return cycle, nil
}

func (s *Scanner) persist(ctx context.Context, opps []domain.HedgeOpportunity) {
	if s.cfg.Store == nil || len(opps) == 0 {
		return
	}
	if err := s.cfg.Store.InsertBatch(ctx, opps); err != nil {
		s.logger.ErrorContext(ctx, "opportunity history write failed", slog.String("error", err.Error()))
	}
}

func (s *Scanner) broadcast(ctx context.Context, res domain.ScanResult) {
	if s.cfg.Bus != nil {
		s.signal(ctx, res)
	}
	if s.cfg.Stream != nil && len(res.Opportunities) > 0 {
		if err := s.cfg.Stream.PublishOpportunities(ctx, res.Opportunities); err != nil {
			s.logger.WarnContext(ctx, "stream publish failed", slog.String("error", err.Error()))
		}
	}
}

// signal publishes the cycle event live and appends it to the replay stream.
func (s *Scanner) signal(ctx context.Context, res domain.ScanResult) {
	payload, err := json.Marshal(OpportunityEvent{
		Type:          "opportunities",
		Outcome:       res.Outcome,
		Reason:        res.Reason,
		Opportunities: res.Opportunities,
		Timestamp:     res.FinishedAt,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "opportunity event encode failed", slog.String("error", err.Error()))
		return
	}
	if err := s.cfg.Bus.Publish(ctx, ChannelOpportunities, payload); err != nil {
		s.logger.WarnContext(ctx, "signal bus publish failed", slog.String("error", err.Error()))
	}
	if err := s.cfg.Bus.StreamAppend(ctx, StreamOpportunities, payload); err != nil {
		s.logger.WarnContext(ctx, "signal stream append failed", slog.String("error", err.Error()))
	}
}

// alert notifies qualifying opportunities, and a degraded outcome only when
// the previous cycle was not already degraded.
func (s *Scanner) alert(ctx context.Context, res domain.ScanResult) int {
	s.mu.Lock()
	prev, seen := s.lastOutcome, s.hasCompleted
	s.lastOutcome, s.hasCompleted = res.Outcome, true
	s.mu.Unlock()

	if s.cfg.Alerter == nil {
		return 0
	}
	sent, err := s.cfg.Alerter.NotifyOpportunities(ctx, res.Opportunities, s.cfg.NotifyMinProfit)
	if err != nil {
		s.logger.WarnContext(ctx, "opportunity notification failed", slog.String("error", err.Error()))
	}
	if res.Outcome == domain.ScanDegraded && (!seen || prev != domain.ScanDegraded) {
		if err := s.cfg.Alerter.Notify(ctx, notify.EventDegraded, "Hedge scan degraded", res.Reason); err != nil {
			s.logger.WarnContext(ctx, "degraded notification failed", slog.String("error", err.Error()))
		}
	}
	return sent
}

func (s *Scanner) record(c Cycle) {
	s.mu.Lock()
	s.last = c
	s.mu.Unlock()
}

// RunLoop runs a cycle immediately and then every interval until ctx is
// cancelled.
func (s *Scanner) RunLoop(ctx context.Context, interval time.Duration) error {
	if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scan cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scan cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}
