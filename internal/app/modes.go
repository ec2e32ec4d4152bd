package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/pipeline"
	"github.com/alanyoungcy/hedgebot/internal/server"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// ScanMode runs the periodic discovery pipeline only.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)
	orch := a.buildOrchestrator(deps)
	g.Go(func() error { return orch.Run(ctx) })
	return g.Wait()
}

// ServerMode runs the HTTP API only; scans happen on request.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runUntilCancelled(ctx, deps.Executor.Run) })
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs the periodic pipeline and the HTTP API together. The status
// endpoint then reports the scanner's last cycle.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	orch := a.buildOrchestrator(deps)
	if a.cfg.Scan.Enabled {
		g.Go(func() error { return orch.Run(ctx) })
	} else {
		a.logger.WarnContext(ctx, "scan.enabled is false, periodic scanning is off")
	}
	g.Go(func() error { return runUntilCancelled(ctx, deps.Executor.Run) })

	if a.cfg.Server.Enabled {
		var cycles handler.CycleReporter
		if a.cfg.Scan.Enabled {
			cycles = orch.Scanner()
		}
		a.startHTTPServer(ctx, g, deps, cycles)
	}
	return g.Wait()
}

func (a *App) buildOrchestrator(deps *Dependencies) *pipeline.Orchestrator {
	scanner := pipeline.NewScanner(pipeline.ScannerConfig{
		Finder:          deps.Manager,
		Locks:           deps.LockManager,
		LockTTL:         a.cfg.Scan.LockTTL.Duration,
		Store:           deps.OpportunityStore,
		Bus:             deps.SignalBus,
		Stream:          deps.Stream,
		Alerter:         deps.Notifier,
		NotifyMinProfit: a.cfg.Scan.NotifyMinProfit,
	}, a.logger)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.S3.Retention.Duration, a.logger)
	}
	return pipeline.NewOrchestrator(scanner, archiver, a.cfg.Scan.Interval.Duration, a.cfg.S3.ArchiveInterval.Duration, a.logger)
}

// startHTTPServer adds the WebSocket hub, the HTTP server and its shutdown
// watcher to g. cycles may be nil.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, cycles handler.CycleReporter) {
	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Mode:         a.cfg.Mode,
		StartedAt:    time.Now().UTC(),
		ReplayStream: pipeline.StreamOpportunities,
	}, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	hedgeHandler := handler.NewHedgeHandler(handler.HedgeDeps{
		Manager:  deps.Manager,
		Executor: deps.Executor,
		History:  deps.OpportunityStore,
		Bus:      deps.SignalBus,
		Cycles:   cycles,
		Mode:     a.cfg.Mode,
		Checks:   deps.Checks,
	}, a.logger)

	srv := server.NewServer(server.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimitPerMinute,
		RateWindow:  time.Minute,
	}, hedgeHandler, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runUntilCancelled treats cancellation as a clean stop.
func runUntilCancelled(ctx context.Context, run func(context.Context) error) error {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
