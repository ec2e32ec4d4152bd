package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HEDGEBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// A missing .env is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose HEDGEBOT_* variable is set, so
// secrets can be injected at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Betfair ──
	setBool(&cfg.Betfair.Enabled, "HEDGEBOT_BETFAIR_ENABLED")
	setStr(&cfg.Betfair.Username, "HEDGEBOT_BETFAIR_USERNAME")
	setStr(&cfg.Betfair.Password, "HEDGEBOT_BETFAIR_PASSWORD")
	setStr(&cfg.Betfair.AppKey, "HEDGEBOT_BETFAIR_APP_KEY")
	setStr(&cfg.Betfair.CertPath, "HEDGEBOT_BETFAIR_CERT_PATH")
	setStr(&cfg.Betfair.KeyPath, "HEDGEBOT_BETFAIR_KEY_PATH")
	setFloat64(&cfg.Betfair.Commission, "HEDGEBOT_BETFAIR_COMMISSION")
	setStringSlice(&cfg.Betfair.CompetitionIDs, "HEDGEBOT_BETFAIR_COMPETITION_IDS")

	// ── Smarkets ──
	setBool(&cfg.Smarkets.Enabled, "HEDGEBOT_SMARKETS_ENABLED")
	setStr(&cfg.Smarkets.Username, "HEDGEBOT_SMARKETS_USERNAME")
	setStr(&cfg.Smarkets.Password, "HEDGEBOT_SMARKETS_PASSWORD")
	setStr(&cfg.Smarkets.AppKey, "HEDGEBOT_SMARKETS_APP_KEY")
	setStr(&cfg.Smarkets.BaseURL, "HEDGEBOT_SMARKETS_BASE_URL")
	setFloat64(&cfg.Smarkets.Commission, "HEDGEBOT_SMARKETS_COMMISSION")
	setDuration(&cfg.Smarkets.RequestInterval, "HEDGEBOT_SMARKETS_REQUEST_INTERVAL")

	// ── Odds API ──
	setBool(&cfg.OddsAPI.Enabled, "HEDGEBOT_ODDS_API_ENABLED")
	setStr(&cfg.OddsAPI.APIKey, "HEDGEBOT_ODDS_API_KEY")
	setStr(&cfg.OddsAPI.BaseURL, "HEDGEBOT_ODDS_API_BASE_URL")
	setStr(&cfg.OddsAPI.Regions, "HEDGEBOT_ODDS_API_REGIONS")

	// ── Matching ──
	setFloat64(&cfg.Matching.MarketThreshold, "HEDGEBOT_MATCHING_MARKET_THRESHOLD")
	setFloat64(&cfg.Matching.SelectionThreshold, "HEDGEBOT_MATCHING_SELECTION_THRESHOLD")
	setStr(&cfg.Matching.Strategy, "HEDGEBOT_MATCHING_STRATEGY")
	setStr(&cfg.Matching.OnSelectionCollision, "HEDGEBOT_MATCHING_ON_SELECTION_COLLISION")

	// ── Hedge ──
	setFloat64(&cfg.Hedge.DefaultStake, "HEDGEBOT_HEDGE_DEFAULT_STAKE")
	setFloat64(&cfg.Hedge.MinProfitPct, "HEDGEBOT_HEDGE_MIN_PROFIT_PCT")
	setInt(&cfg.Hedge.MaxResults, "HEDGEBOT_HEDGE_MAX_RESULTS")
	setStringSlice(&cfg.Hedge.Competitions, "HEDGEBOT_HEDGE_COMPETITIONS")
	setDuration(&cfg.Hedge.FetchTimeout, "HEDGEBOT_HEDGE_FETCH_TIMEOUT")

	// ── Scan ──
	setBool(&cfg.Scan.Enabled, "HEDGEBOT_SCAN_ENABLED")
	setDuration(&cfg.Scan.Interval, "HEDGEBOT_SCAN_INTERVAL")
	setDuration(&cfg.Scan.OpportunityTTL, "HEDGEBOT_SCAN_OPPORTUNITY_TTL")
	setFloat64(&cfg.Scan.NotifyMinProfit, "HEDGEBOT_SCAN_NOTIFY_MIN_PROFIT_PCT")

	// ── Execution ──
	setStr(&cfg.Execution.Backend, "HEDGEBOT_EXECUTION_BACKEND")
	setStr(&cfg.Execution.BrowserEndpoint, "HEDGEBOT_EXECUTION_BROWSER_ENDPOINT")
	setFloat64(&cfg.Execution.PriceTolerance, "HEDGEBOT_EXECUTION_PRICE_TOLERANCE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "HEDGEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "HEDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "HEDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HEDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGEBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "HEDGEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HEDGEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HEDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HEDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "HEDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HEDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HEDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "HEDGEBOT_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "HEDGEBOT_S3_ARCHIVE_INTERVAL")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "HEDGEBOT_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "HEDGEBOT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "HEDGEBOT_KAFKA_TOPIC")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HEDGEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HEDGEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HEDGEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "HEDGEBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "HEDGEBOT_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HEDGEBOT_MODE")
	setStr(&cfg.LogLevel, "HEDGEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
