package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/hedgebot/internal/blob/s3"
	"github.com/alanyoungcy/hedgebot/internal/cache/memory"
	"github.com/alanyoungcy/hedgebot/internal/cache/redis"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/executor"
	"github.com/alanyoungcy/hedgebot/internal/hedge"
	"github.com/alanyoungcy/hedgebot/internal/matcher"
	"github.com/alanyoungcy/hedgebot/internal/notify"
	"github.com/alanyoungcy/hedgebot/internal/pipeline"
	"github.com/alanyoungcy/hedgebot/internal/platform/betfair"
	"github.com/alanyoungcy/hedgebot/internal/platform/oddsapi"
	"github.com/alanyoungcy/hedgebot/internal/platform/smarkets"
	"github.com/alanyoungcy/hedgebot/internal/store/postgres"
	"github.com/alanyoungcy/hedgebot/internal/strategy"
	"github.com/alanyoungcy/hedgebot/internal/stream/kafka"
)

// Dependencies bundles everything the modes need. Interface fields are nil
// when the backing service is disabled; SignalBus and OpportunityCache fall
// back to in-process implementations.
type Dependencies struct {
	Venues   *strategy.Registry
	Manager  *strategy.Manager
	Executor *executor.Executor

	// Stores
	OpportunityStore domain.OpportunityStore
	ExecutionStore   domain.ExecutionStore

	// Caches
	OpportunityCache domain.OpportunityCache
	RateLimiter      domain.RateLimiter
	LockManager      domain.LockManager
	SignalBus        domain.SignalBus

	// Cold storage and streaming
	Archiver domain.Archiver
	Stream   pipeline.OpportunityPublisher

	// Notifications
	Notifier *notify.Notifier

	// Checks test each connected backing service for the status endpoint.
	Checks map[string]func(context.Context) error
}

const kafkaSetupTimeout = 10 * time.Second

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: make(map[string]func(context.Context) error)}

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = c.Close() })

		deps.OpportunityCache = redis.NewOpportunityCache(c)
		deps.RateLimiter = redis.NewRateLimiter(c, cfg.Smarkets.RequestInterval.Duration)
		deps.LockManager = redis.NewLockManager(c)
		deps.SignalBus = redis.NewSignalBus(c)
		deps.Checks["redis"] = c.Ping
	} else {
		logger.InfoContext(ctx, "redis disabled, using in-process caches")
		deps.OpportunityCache = memory.NewOpportunityCache()
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- PostgreSQL (optional) ---
	var opportunityStore *postgres.OpportunityStore
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		}, logger)
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)
		deps.Checks["postgres"] = pg.Ping

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		opportunityStore = postgres.NewOpportunityStore(pg.Pool())
		deps.OpportunityStore = opportunityStore
		deps.ExecutionStore = postgres.NewExecutionStore(pg.Pool())
	}

	// --- S3 archive (optional, reads from postgres) ---
	if cfg.S3.Enabled && opportunityStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable yet", slog.String("error", err.Error()))
		}
		deps.Checks["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), opportunityStore, cfg.S3.Prune)
	}

	// --- Kafka (optional) ---
	if cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, logger)
		if err != nil {
			return fail("kafka", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Stream = pub

		setupCtx, cancel := context.WithTimeout(ctx, kafkaSetupTimeout)
		if err := kafka.EnsureTopic(setupCtx, cfg.Kafka.Brokers, cfg.Kafka.Topic, 3); err != nil {
			logger.WarnContext(ctx, "kafka topic setup failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	// --- Venues ---
	deps.Venues = buildVenues(ctx, cfg, deps.RateLimiter, logger)

	// --- Hedge manager ---
	matchStrategy, err := matcher.ParseStrategy(cfg.Matching.Strategy)
	if err != nil {
		return fail("matching", err)
	}
	collisions, err := matcher.ParseCollisionPolicy(cfg.Matching.OnSelectionCollision)
	if err != nil {
		return fail("matching", err)
	}
	m := matcher.New(matcher.Options{
		MarketThreshold:    cfg.Matching.MarketThreshold,
		SelectionThreshold: cfg.Matching.SelectionThreshold,
		StartTimeTolerance: cfg.Matching.StartTimeTolerance.Duration,
		Strategy:           matchStrategy,
		OnCollision:        collisions,
	}, logger)
	deps.Manager = strategy.NewManager(deps.Venues, m, deps.OpportunityCache, managerOptions(cfg), logger)

	// --- Execution ---
	backend, err := executor.NewBackend(executor.BackendConfig{
		Kind:            cfg.Execution.Backend,
		BrowserEndpoint: cfg.Execution.BrowserEndpoint,
		PriceTolerance:  cfg.Execution.PriceTolerance,
	}, deps.Venues)
	if err != nil {
		return fail("execution backend", err)
	}
	deps.Executor = executor.New(executor.Config{
		Backend:   backend,
		Store:     deps.ExecutionStore,
		Locks:     deps.LockManager,
		DedupTTL:  cfg.Execution.DedupTTL.Duration,
		Retention: cfg.Execution.Retention.Duration,
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildVenues registers every enabled venue. A venue that cannot be built
// (missing credentials, unreadable certificate) is left out with a warning.
func buildVenues(ctx context.Context, cfg *config.Config, limiter domain.RateLimiter, logger *slog.Logger) *strategy.Registry {
	reg := strategy.NewRegistry()
	skip := func(name string, err error) {
		logger.WarnContext(ctx, "venue disabled", slog.String("venue", name), slog.String("error", err.Error()))
	}

	if cfg.Betfair.Enabled {
		c, err := betfair.New(betfair.Config{
			Username:       cfg.Betfair.Username,
			Password:       cfg.Betfair.Password,
			AppKey:         cfg.Betfair.AppKey,
			CertPath:       cfg.Betfair.CertPath,
			KeyPath:        cfg.Betfair.KeyPath,
			LoginURL:       cfg.Betfair.LoginURL,
			ExchangeURL:    cfg.Betfair.ExchangeURL,
			Commission:     cfg.Betfair.Commission,
			EventTypeID:    cfg.Betfair.EventTypeID,
			CompetitionIDs: cfg.Betfair.CompetitionIDs,
			InPlay:         cfg.Betfair.InPlay,
			MaxResults:     cfg.Betfair.MaxResults,
		}, logger)
		if err != nil {
			skip("betfair", err)
		} else {
			reg.Register(c)
		}
	}

	if cfg.Smarkets.Enabled {
		scfg := smarkets.Config{
			Username:        cfg.Smarkets.Username,
			Password:        cfg.Smarkets.Password,
			AppKey:          cfg.Smarkets.AppKey,
			BaseURL:         cfg.Smarkets.BaseURL,
			Commission:      cfg.Smarkets.Commission,
			RequestInterval: cfg.Smarkets.RequestInterval.Duration,
			SessionTTL:      cfg.Smarkets.SessionTTL.Duration,
		}
		// With Redis the request budget is shared by every replica.
		if limiter != nil {
			scfg.Limiter = limiter
		}
		c, err := smarkets.New(scfg, logger)
		if err != nil {
			skip("smarkets", err)
		} else {
			reg.Register(c)
		}
	}

	if cfg.OddsAPI.Enabled {
		c, err := oddsapi.New(oddsapi.Config{
			APIKey:     cfg.OddsAPI.APIKey,
			BaseURL:    cfg.OddsAPI.BaseURL,
			Regions:    cfg.OddsAPI.Regions,
			Leagues:    cfg.OddsAPI.Leagues,
			Commission: cfg.OddsAPI.Commission,
		}, logger)
		if err != nil {
			skip("odds_api", err)
		} else {
			reg.Register(c)
		}
	}

	if reg.Len() == 0 {
		logger.WarnContext(ctx, "no venue available, scans will report degraded")
	}
	return reg
}

func managerOptions(cfg *config.Config) strategy.Options {
	h := cfg.Hedge
	return strategy.Options{
		FetchTimeout:        h.FetchTimeout.Duration,
		FetchConcurrency:    h.FetchConcurrency,
		OpportunityTTL:      cfg.Scan.OpportunityTTL.Duration,
		DefaultStake:        h.DefaultStake,
		DefaultMinProfitPct: h.MinProfitPct,
		DefaultMaxResults:   h.MaxResults,
		DefaultCompetitions: h.Competitions,
		DefaultInclude: hedge.Include{
			ExchangeInternal:   h.IncludeInternal,
			CrossExchange:      h.IncludeCross,
			BookmakerExchange:  h.IncludeBookmaker,
			BookmakerBookmaker: h.IncludeBMBM,
			MultiLeg:           h.IncludeMultiLeg,
		},
		ThreeWay: hedge.ThreeWayOptions{
			Commission:         h.ThreeWayCommission,
			OverroundTolerance: h.ThreeWayTolerance,
			MinProfit:          h.ThreeWayMinProfit,
			MinROI:             h.ThreeWayMinROI,
		},
	}
}
