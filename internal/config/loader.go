package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORDERIDX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORDERIDX_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ORDERIDX_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "ORDERIDX_CHAIN_ID")

	// ── Exchange ──
	setStr(&cfg.Exchange.V1, "ORDERIDX_EXCHANGE_V1")
	setStr(&cfg.Exchange.V2, "ORDERIDX_EXCHANGE_V2")
	setStr(&cfg.Exchange.OpenSeaV1, "ORDERIDX_EXCHANGE_OPEN_SEA_V1")
	setStr(&cfg.Exchange.CryptoPunks, "ORDERIDX_EXCHANGE_CRYPTO_PUNKS")

	// ── Transfer proxies ──
	setStr(&cfg.TransferProxy.NFT, "ORDERIDX_TRANSFER_PROXY_NFT")
	setStr(&cfg.TransferProxy.ERC20, "ORDERIDX_TRANSFER_PROXY_ERC20")
	setStr(&cfg.TransferProxy.LazyNFT, "ORDERIDX_TRANSFER_PROXY_LAZY_NFT")
	setStr(&cfg.TransferProxy.CryptoPunk, "ORDERIDX_TRANSFER_PROXY_CRYPTO_PUNKS")

	// ── Indexer ──
	setInt(&cfg.Indexer.Workers, "ORDERIDX_INDEXER_WORKERS")
	setInt(&cfg.Indexer.MaxAttempts, "ORDERIDX_INDEXER_MAX_ATTEMPTS")
	setStr(&cfg.Indexer.Stream, "ORDERIDX_INDEXER_STREAM")
	setStr(&cfg.Indexer.Consumer, "ORDERIDX_INDEXER_CONSUMER")
	setInt64(&cfg.Indexer.BatchSize, "ORDERIDX_INDEXER_BATCH_SIZE")
	setDuration(&cfg.Indexer.PollInterval, "ORDERIDX_INDEXER_POLL_INTERVAL")
	setDuration(&cfg.Indexer.DedupTTL, "ORDERIDX_INDEXER_DEDUP_TTL")
	setInt(&cfg.Indexer.ProtocolCommission, "ORDERIDX_INDEXER_PROTOCOL_COMMISSION")
	setStr(&cfg.Indexer.NotifyChannel, "ORDERIDX_INDEXER_NOTIFY_CHANNEL")
	setDuration(&cfg.Indexer.RateRefresh, "ORDERIDX_INDEXER_RATE_REFRESH")
	setBool(&cfg.Indexer.VerifySignatures, "ORDERIDX_INDEXER_VERIFY_SIGNATURES")
	setBool(&cfg.Indexer.CheckApprovals, "ORDERIDX_INDEXER_CHECK_APPROVALS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ORDERIDX_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ORDERIDX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORDERIDX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORDERIDX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORDERIDX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORDERIDX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORDERIDX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORDERIDX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORDERIDX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORDERIDX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORDERIDX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORDERIDX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORDERIDX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORDERIDX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORDERIDX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORDERIDX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ORDERIDX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ORDERIDX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORDERIDX_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORDERIDX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORDERIDX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORDERIDX_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ORDERIDX_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStringSlice(&cfg.Notify.Webhooks, "ORDERIDX_NOTIFY_WEBHOOKS")
	setStringSlice(&cfg.Notify.Statuses, "ORDERIDX_NOTIFY_STATUSES")

	// ── Server ──
	setInt(&cfg.Server.Port, "ORDERIDX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ORDERIDX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ORDERIDX_SERVER_API_KEY")
	setInt64(&cfg.Server.RateLimit, "ORDERIDX_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "ORDERIDX_SERVER_RATE_LIMIT_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "ORDERIDX_MODE")
	setStr(&cfg.LogLevel, "ORDERIDX_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
