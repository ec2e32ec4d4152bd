// Package pipeline runs hedge discovery on a schedule and distributes the
// results to history, live subscribers, the event stream and alerts.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator supervises the periodic scanner and, when cold storage is
// configured, the archiver.
type Orchestrator struct {
	scanner         *Scanner
	archiver        *Archiver
	scanInterval    time.Duration
	archiveInterval time.Duration
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(
	scanner *Scanner,
	archiver *Archiver,
	scanInterval time.Duration,
	archiveInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		scanner:         scanner,
		archiver:        archiver,
		scanInterval:    scanInterval,
		archiveInterval: archiveInterval,
		logger:          logger.With(slog.String("component", "orchestrator")),
	}
}

// Scanner returns the scanner, for status reporting.
func (o *Orchestrator) Scanner() *Scanner { return o.scanner }

// Run blocks until ctx is cancelled. Loops only stop on cancellation, so a
// clean shutdown returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("scan_interval", o.scanInterval),
		slog.Bool("archiver", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.scanner.RunLoop(ctx, o.scanInterval)
		return nil
	})
	if o.archiver != nil && o.archiveInterval > 0 {
		g.Go(func() error {
			o.archiver.RunEvery(ctx, o.archiveInterval)
			return nil
		})
	}

	err := g.Wait()
	o.logger.Info("pipeline orchestrator stopped")
	return err
}
