package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Archiver moves opportunity history older than the retention window to
// cold storage.
type Archiver struct {
	blobArchiver domain.Archiver
	retention    time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver: blobArchiver,
		retention:    retention,
		logger:       logger.With(slog.String("component", "archiver")),
		now:          time.Now,
	}
}

// Run archives everything found before now minus the retention window.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.now().UTC().Add(-a.retention)
	n, err := a.blobArchiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("archiving opportunities before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("archived", n),
	)
	return n, nil
}

// RunEvery runs the archiver every interval until ctx is cancelled. The
// first run happens after one interval.
func (a *Archiver) RunEvery(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started",
		slog.Duration("interval", interval),
		slog.Duration("retention", a.retention),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
