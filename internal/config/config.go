// Package config defines the top-level configuration for the hedge bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGEBOT_* environment variables.
type Config struct {
	Betfair   BetfairConfig   `toml:"betfair"`
	Smarkets  SmarketsConfig  `toml:"smarkets"`
	OddsAPI   OddsAPIConfig   `toml:"odds_api"`
	Matching  MatchingConfig  `toml:"matching"`
	Hedge     HedgeConfig     `toml:"hedge"`
	Scan      ScanConfig      `toml:"scan"`
	Execution ExecutionConfig `toml:"execution"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// BetfairConfig holds Betfair exchange credentials and listing filters.
type BetfairConfig struct {
	Enabled        bool     `toml:"enabled"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	AppKey         string   `toml:"app_key"`
	CertPath       string   `toml:"cert_path"`
	KeyPath        string   `toml:"key_path"`
	LoginURL       string   `toml:"login_url"`
	ExchangeURL    string   `toml:"exchange_url"`
	Commission     float64  `toml:"commission"`
	EventTypeID    string   `toml:"event_type_id"`
	CompetitionIDs []string `toml:"competition_ids"`
	InPlay         bool     `toml:"in_play"`
	MaxResults     int      `toml:"max_results"`
}

// SmarketsConfig holds Smarkets exchange credentials and pacing.
type SmarketsConfig struct {
	Enabled         bool     `toml:"enabled"`
	Username        string   `toml:"username"`
	Password        string   `toml:"password"`
	AppKey          string   `toml:"app_key"`
	BaseURL         string   `toml:"base_url"`
	Commission      float64  `toml:"commission"`
	RequestInterval duration `toml:"request_interval"`
	SessionTTL      duration `toml:"session_ttl"`
}

// OddsAPIConfig holds the bookmaker odds aggregator settings. Leagues maps
// sport keys to competition names; empty means the built-in British leagues.
type OddsAPIConfig struct {
	Enabled    bool              `toml:"enabled"`
	APIKey     string            `toml:"api_key"`
	BaseURL    string            `toml:"base_url"`
	Regions    string            `toml:"regions"`
	Leagues    map[string]string `toml:"leagues"`
	Commission float64           `toml:"commission"`
}

// MatchingConfig tunes cross-venue market and selection matching.
type MatchingConfig struct {
	MarketThreshold      float64  `toml:"market_threshold"`
	SelectionThreshold   float64  `toml:"selection_threshold"`
	StartTimeTolerance   duration `toml:"start_time_tolerance"`
	Strategy             string   `toml:"strategy"`
	OnSelectionCollision string   `toml:"on_selection_collision"`
}

// HedgeConfig holds scan defaults and the three-way calculator settings.
type HedgeConfig struct {
	DefaultStake       float64  `toml:"default_stake"`
	MinProfitPct       float64  `toml:"min_profit_pct"`
	MaxResults         int      `toml:"max_results"`
	Competitions       []string `toml:"competitions"`
	FetchTimeout       duration `toml:"fetch_timeout"`
	FetchConcurrency   int      `toml:"fetch_concurrency"`
	IncludeInternal    bool     `toml:"include_exchange_internal"`
	IncludeCross       bool     `toml:"include_cross_exchange"`
	IncludeBookmaker   bool     `toml:"include_bookmaker_exchange"`
	IncludeBMBM        bool     `toml:"include_bookmaker_bookmaker"`
	IncludeMultiLeg    bool     `toml:"include_multi_leg"`
	ThreeWayTolerance  float64  `toml:"three_way_overround_tolerance"`
	ThreeWayCommission float64  `toml:"three_way_commission"`
	ThreeWayMinProfit  float64  `toml:"three_way_min_profit"`
	ThreeWayMinROI     float64  `toml:"three_way_min_roi"`
}

// ScanConfig controls the periodic scanner.
type ScanConfig struct {
	Enabled         bool     `toml:"enabled"`
	Interval        duration `toml:"interval"`
	LockTTL         duration `toml:"lock_ttl"`
	OpportunityTTL  duration `toml:"opportunity_ttl"`
	NotifyMinProfit float64  `toml:"notify_min_profit_pct"`
}

// ExecutionConfig selects how bets are placed.
type ExecutionConfig struct {
	Backend         string   `toml:"backend"`
	BrowserEndpoint string   `toml:"browser_endpoint"`
	PriceTolerance  float64  `toml:"price_tolerance"`
	DedupTTL        duration `toml:"dedup_ttl"`
	Retention       duration `toml:"retention"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// Redis; in-process caches are used instead.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
	Retention       duration `toml:"retention"`
	Prune           bool     `toml:"prune"`
}

// KafkaConfig holds the opportunity event stream settings.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled            bool     `toml:"enabled"`
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSOrigins        []string `toml:"cors_origins"`
	APIKey             string   `toml:"api_key"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Betfair: BetfairConfig{
			LoginURL:       "https://identitysso-cert.betfair.com/api/certlogin",
			ExchangeURL:    "https://api.betfair.com/exchange/betting/json-rpc/v1",
			Commission:     0.05,
			EventTypeID:    "1",
			CompetitionIDs: []string{"31", "33", "35", "37"},
			InPlay:         true,
			MaxResults:     100,
		},
		Smarkets: SmarketsConfig{
			BaseURL:         "https://api.smarkets.com/v3",
			Commission:      0.02,
			RequestInterval: duration{time.Second},
			SessionTTL:      duration{23 * time.Hour},
		},
		OddsAPI: OddsAPIConfig{
			BaseURL: "https://api.the-odds-api.com/v4",
			Regions: "uk",
		},
		Matching: MatchingConfig{
			MarketThreshold:      0.8,
			SelectionThreshold:   0.7,
			StartTimeTolerance:   duration{time.Hour},
			Strategy:             "greedy",
			OnSelectionCollision: "log",
		},
		Hedge: HedgeConfig{
			DefaultStake:       100,
			MinProfitPct:       0.5,
			MaxResults:         20,
			Competitions:       []string{"Premier League", "Championship", "League One", "League Two"},
			FetchTimeout:       duration{10 * time.Second},
			FetchConcurrency:   8,
			IncludeInternal:    true,
			IncludeCross:       true,
			IncludeBookmaker:   true,
			ThreeWayTolerance:  0.03,
			ThreeWayCommission: 0.05,
			ThreeWayMinProfit:  1.0,
			ThreeWayMinROI:     1.0,
		},
		Scan: ScanConfig{
			Enabled:         true,
			Interval:        duration{time.Minute},
			LockTTL:         duration{2 * time.Minute},
			OpportunityTTL:  duration{10 * time.Minute},
			NotifyMinProfit: 1.0,
		},
		Execution: ExecutionConfig{
			Backend:        "simulated",
			PriceTolerance: 0.02,
			DedupTTL:       duration{time.Minute},
			Retention:      duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hedgebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "hedgebot-archive",
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
			Retention:       duration{7 * 24 * time.Hour},
		},
		Kafka: KafkaConfig{
			Topic: "hedgebot.opportunities",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "degraded"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"scan":   true,
	"server": true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"simulated": true,
	"api":       true,
	"browser":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: scan, server, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Venues
	if !c.Betfair.Enabled && !c.Smarkets.Enabled && !c.OddsAPI.Enabled {
		add("no venue enabled: enable at least one of betfair, smarkets, odds_api")
	}
	if c.Betfair.Enabled {
		if c.Betfair.AppKey == "" || c.Betfair.Username == "" {
			add("betfair: username and app_key are required when enabled")
		}
		if c.Betfair.CertPath == "" || c.Betfair.KeyPath == "" {
			add("betfair: cert_path and key_path are required when enabled")
		}
	}
	if c.Smarkets.Enabled && (c.Smarkets.Username == "" || c.Smarkets.Password == "") {
		add("smarkets: username and password are required when enabled")
	}
	if c.OddsAPI.Enabled && c.OddsAPI.APIKey == "" {
		add("odds_api: api_key is required when enabled")
	}
	for _, v := range []struct {
		name       string
		commission float64
	}{
		{"betfair", c.Betfair.Commission},
		{"smarkets", c.Smarkets.Commission},
		{"odds_api", c.OddsAPI.Commission},
	} {
		if v.commission < 0 || v.commission >= 1 {
			add("%s: commission must be in [0, 1), got %g", v.name, v.commission)
		}
	}

	// Matching
	if c.Matching.MarketThreshold <= 0 || c.Matching.MarketThreshold > 1 {
		add("matching: market_threshold must be in (0, 1]")
	}
	if c.Matching.SelectionThreshold <= 0 || c.Matching.SelectionThreshold > 1 {
		add("matching: selection_threshold must be in (0, 1]")
	}
	if s := strings.ToLower(c.Matching.Strategy); s != "greedy" && s != "exclusive" {
		add("matching: unknown strategy %q (valid: greedy, exclusive)", c.Matching.Strategy)
	}
	if s := strings.ToLower(c.Matching.OnSelectionCollision); s != "log" && s != "reject" {
		add("matching: unknown on_selection_collision %q (valid: log, reject)", c.Matching.OnSelectionCollision)
	}

	// Hedge
	if c.Hedge.DefaultStake <= 0 {
		add("hedge: default_stake must be > 0")
	}
	if c.Hedge.MinProfitPct < 0 {
		add("hedge: min_profit_pct must be >= 0")
	}
	if c.Hedge.ThreeWayCommission < 0 || c.Hedge.ThreeWayCommission >= 1 {
		add("hedge: three_way_commission must be in [0, 1)")
	}

	// Scan
	if c.Scan.Enabled && c.Scan.Interval.Duration <= 0 {
		add("scan: interval must be > 0 when enabled")
	}

	// Execution
	if !validBackends[strings.ToLower(c.Execution.Backend)] {
		add("execution: unknown backend %q (valid: simulated, api, browser)", c.Execution.Backend)
	}
	if strings.EqualFold(c.Execution.Backend, "browser") && c.Execution.BrowserEndpoint == "" {
		add("execution: browser_endpoint is required for the browser backend")
	}
	if c.Execution.PriceTolerance < 0 || c.Execution.PriceTolerance >= 1 {
		add("execution: price_tolerance must be in [0, 1)")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		add("redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			add("s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			add("s3: the archive reads opportunity history and needs postgres enabled")
		}
	}

	// Kafka
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		add("kafka: brokers must not be empty when enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimitPerMinute < 0 {
			add("server: rate_limit_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
