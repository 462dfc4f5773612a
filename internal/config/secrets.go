package config

// RedactedConfig returns a shallow copy of cfg with credentials replaced by
// "***" so the active configuration can be logged at startup.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Chain.RPCURL)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)

	if cfg.Notify.Webhooks != nil {
		// Webhook URLs often embed tokens.
		out.Notify.Webhooks = make([]string, len(cfg.Notify.Webhooks))
		for i := range out.Notify.Webhooks {
			out.Notify.Webhooks[i] = redacted
		}
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
