package config

import "maps"

// RedactedConfig returns a copy of cfg with credentials replaced by "***",
// for logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Betfair.Password)
	redact(&out.Betfair.AppKey)
	redact(&out.Smarkets.Password)
	redact(&out.Smarkets.AppKey)
	redact(&out.OddsAPI.APIKey)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy reference types so the redacted copy cannot mutate the original.
	out.Betfair.CompetitionIDs = cloneStrings(cfg.Betfair.CompetitionIDs)
	out.Hedge.Competitions = cloneStrings(cfg.Hedge.Competitions)
	out.Kafka.Brokers = cloneStrings(cfg.Kafka.Brokers)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	if cfg.OddsAPI.Leagues != nil {
		out.OddsAPI.Leagues = maps.Clone(cfg.OddsAPI.Leagues)
	}

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
