// Package config defines the top-level configuration for the order indexer
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ORDERIDX_* environment variables.
type Config struct {
	Chain         ChainConfig         `toml:"chain"`
	Exchange      ExchangeConfig      `toml:"exchange"`
	TransferProxy TransferProxyConfig `toml:"transfer_proxy"`
	Indexer       IndexerConfig       `toml:"indexer"`
	Postgres      PostgresConfig      `toml:"postgres"`
	Redis         RedisConfig         `toml:"redis"`
	S3            S3Config            `toml:"s3"`
	Notify        NotifyConfig        `toml:"notify"`
	Server        ServerConfig        `toml:"server"`
	Mode          string              `toml:"mode"`
	LogLevel      string              `toml:"log_level"`
}

// ChainConfig holds the JSON-RPC endpoint used for balance reads.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
}

// ExchangeConfig holds exchange contract addresses and the EIP-712 domains
// used when verifying order signatures.
type ExchangeConfig struct {
	V1              string `toml:"v1"`
	V2              string `toml:"v2"`
	OpenSeaV1       string `toml:"open_sea_v1"`
	CryptoPunks     string `toml:"crypto_punks"`
	V2DomainName    string `toml:"v2_domain_name"`
	V2DomainVersion string `toml:"v2_domain_version"`
	OpenSeaName     string `toml:"open_sea_domain_name"`
	OpenSeaVersion  string `toml:"open_sea_domain_version"`
}

// TransferProxyConfig holds the approval targets returned with prepared
// transactions.
type TransferProxyConfig struct {
	NFT        string `toml:"nft"`
	ERC20      string `toml:"erc20"`
	LazyNFT    string `toml:"lazy_nft"`
	CryptoPunk string `toml:"crypto_punks"`
}

// IndexerConfig tunes the event consumer and the update workers.
type IndexerConfig struct {
	Workers            int      `toml:"workers"`
	MaxAttempts        int      `toml:"max_attempts"`
	Stream             string   `toml:"stream"`
	Consumer           string   `toml:"consumer"`
	BatchSize          int64    `toml:"batch_size"`
	PollInterval       duration `toml:"poll_interval"`
	DedupTTL           duration `toml:"dedup_ttl"`
	ProtocolCommission int      `toml:"protocol_commission"`
	NotifyChannel      string   `toml:"notify_channel"`
	RateRefresh        duration `toml:"rate_refresh"`
	VerifySignatures   bool     `toml:"verify_signatures"`
	CheckApprovals     bool     `toml:"check_approvals"`
	// CurrencyDecimals maps currency hash keys ("fungible:0x...") to token
	// precision. Unlisted currencies use 18.
	CurrencyDecimals map[string]int32 `toml:"currency_decimals"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. Archiving is
// skipped when Enabled is false.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig selects the extra change notification targets. Statuses
// filters webhook deliveries; empty means every change.
type NotifyConfig struct {
	Webhooks []string `toml:"webhooks"`
	Statuses []string `toml:"statuses"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int64    `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with mainnet contract addresses and
// local infrastructure endpoints.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1,
		},
		Exchange: ExchangeConfig{
			V1:              "0xcd4EC7b66fbc029C116BA9Ffb3e59351c20B5B06",
			V2:              "0x9757F2d2b135150BBeb65308D4a91804107cd8D6",
			OpenSeaV1:       "0x7f268357A8c2552623316e2562D90e642bB538E5",
			CryptoPunks:     "0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB",
			V2DomainName:    "Exchange",
			V2DomainVersion: "2",
			OpenSeaName:     "Wyvern Exchange Contract",
			OpenSeaVersion:  "2.3",
		},
		TransferProxy: TransferProxyConfig{
			NFT:        "0x4feE7B061C97C9c496b01DbcE9CDb10c02f0a0Be",
			ERC20:      "0xb8e4526e0da700e9ef1f879af713d691f81507d8",
			LazyNFT:    "0xbb7829BFdD4b557EB944349b2E2c965446052497",
			CryptoPunk: "0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB",
		},
		Indexer: IndexerConfig{
			Workers:            8,
			MaxAttempts:        5,
			Stream:             "exchange-history",
			Consumer:           "orderindexer",
			BatchSize:          100,
			PollInterval:       duration{2 * time.Second},
			DedupTTL:           duration{10 * time.Minute},
			ProtocolCommission: 0,
			NotifyChannel:      "orders",
			RateRefresh:        duration{5 * time.Minute},
			VerifySignatures:   true,
			CheckApprovals:     true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "orderindexer",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "order-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"indexer": true,
	"api":     true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStatuses enumerates the order statuses accepted by notify.statuses.
var validStatuses = map[string]bool{
	"NOT_STARTED": true,
	"ACTIVE":      true,
	"FILLED":      true,
	"CANCELLED":   true,
	"INACTIVE":    true,
	"ENDED":       true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: indexer, api, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Addresses
	for name, addr := range map[string]string{
		"exchange.v1":                 c.Exchange.V1,
		"exchange.v2":                 c.Exchange.V2,
		"exchange.open_sea_v1":        c.Exchange.OpenSeaV1,
		"exchange.crypto_punks":       c.Exchange.CryptoPunks,
		"transfer_proxy.nft":          c.TransferProxy.NFT,
		"transfer_proxy.erc20":        c.TransferProxy.ERC20,
		"transfer_proxy.lazy_nft":     c.TransferProxy.LazyNFT,
		"transfer_proxy.crypto_punks": c.TransferProxy.CryptoPunk,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("%s: %q is not a hex address", name, addr))
		}
	}

	// Indexer
	if c.Indexer.Workers < 1 {
		errs = append(errs, "indexer: workers must be >= 1")
	}
	if c.Indexer.MaxAttempts < 1 {
		errs = append(errs, "indexer: max_attempts must be >= 1")
	}
	if c.Indexer.Stream == "" {
		errs = append(errs, "indexer: stream must not be empty")
	}
	if c.Indexer.Consumer == "" {
		errs = append(errs, "indexer: consumer must not be empty")
	}
	for key, d := range c.Indexer.CurrencyDecimals {
		if d < 0 || d > 36 {
			errs = append(errs, fmt.Sprintf("indexer: currency_decimals[%q] must be 0-36, got %d", key, d))
		}
	}
	if c.Indexer.BatchSize < 1 {
		errs = append(errs, "indexer: batch_size must be >= 1")
	}
	if c.Indexer.ProtocolCommission < 0 || c.Indexer.ProtocolCommission > 10000 {
		errs = append(errs, fmt.Sprintf("indexer: protocol_commission must be 0-10000 bps, got %d", c.Indexer.ProtocolCommission))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Notify
	for _, u := range c.Notify.Webhooks {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Sprintf("notify: webhook %q must be an http(s) url", u))
		}
	}
	for _, st := range c.Notify.Statuses {
		if !validStatuses[strings.ToUpper(st)] {
			errs = append(errs, fmt.Sprintf("notify: unknown status %q", st))
		}
	}

	// Server
	if c.Mode != "indexer" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
