package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/orderindexer/internal/blob/s3"
	"github.com/alanyoungcy/orderindexer/internal/cache/redis"
	"github.com/alanyoungcy/orderindexer/internal/chain"
	"github.com/alanyoungcy/orderindexer/internal/config"
	"github.com/alanyoungcy/orderindexer/internal/crypto"
	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/identity"
	"github.com/alanyoungcy/orderindexer/internal/notify"
	"github.com/alanyoungcy/orderindexer/internal/server/handler"
	"github.com/alanyoungcy/orderindexer/internal/service"
	"github.com/alanyoungcy/orderindexer/internal/store/postgres"
)

// Dependencies bundles every component the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Orders  *postgres.OrderStore
	History domain.HistoryStore
	Nonces  domain.NonceStore

	// Caches and bus
	Rates       domain.RateCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	Cursor      *redis.StreamCursor

	// Blob storage; nil when s3.enabled is false.
	Archiver *s3blob.OrderArchiver

	// Services
	Updater  *service.OrderUpdater
	Reactor  *service.NonceReactor
	Prices   *service.PriceService
	Preparer *service.PrepareService
	Notifier *notify.Notifier

	// Health probes keyed by dependency name.
	Checks map[string]handler.Checker
}

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
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Checker)}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)
	deps.Checks["postgres"] = pgClient.Ping

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}

	pool := pgClient.Pool()
	deps.Orders = postgres.NewOrderStore(pool)
	deps.History = postgres.NewHistoryStore(pool)
	deps.Nonces = postgres.NewNonceStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Checks["redis"] = redisClient.Ping

	deps.Rates = redis.NewRateCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Cursor = redis.NewStreamCursor(redisClient, cfg.Indexer.Consumer)

	// --- Chain ---
	eth, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, eth.Close)
	deps.Checks["chain"] = func(ctx context.Context) error {
		_, err := eth.BlockNumber(ctx)
		return err
	}
	balances := chain.NewBalanceOracle(eth, logger)

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Checks["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewOrderArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), logger)
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(nil, logger)
	deps.Notifier.Add("bus", notify.NewPublisher(deps.SignalBus, cfg.Indexer.NotifyChannel))
	if len(cfg.Notify.Webhooks) > 0 {
		statuses := make([]domain.OrderStatus, 0, len(cfg.Notify.Statuses))
		for _, s := range cfg.Notify.Statuses {
			statuses = append(statuses, domain.OrderStatus(s))
		}
		hooks := notify.NewNotifier(statuses, logger)
		for i, url := range cfg.Notify.Webhooks {
			hooks.Add(fmt.Sprintf("webhook-%d", i), notify.NewWebhook(url))
		}
		deps.Notifier.Add("webhooks", hooks)
	}
	if deps.Archiver != nil {
		deps.Notifier.Add("archive", deps.Archiver)
	}

	// --- Services ---
	domains, err := signingDomains(cfg)
	if err != nil {
		return fail(err)
	}
	deps.Prices = service.NewPriceService(deps.Rates, deps.SignalBus, cfg.Indexer.CurrencyDecimals, cfg.Indexer.RateRefresh.Duration, logger)
	deps.Updater = service.NewOrderUpdater(
		deps.Orders, deps.History, deps.Nonces, balances, deps.Prices,
		service.UpdaterConfig{
			MaxAttempts:        cfg.Indexer.MaxAttempts,
			Workers:            cfg.Indexer.Workers,
			ProtocolCommission: cfg.Indexer.ProtocolCommission,
			VerifySignatures:   cfg.Indexer.VerifySignatures,
			Domains:            domains,
		},
		logger,
	)
	deps.Updater.AddListener(deps.Notifier)
	deps.Reactor = service.NewNonceReactor(deps.Orders, deps.Nonces, deps.Updater, deps.LockManager, cfg.Indexer.Workers, logger)
	deps.Updater.SetNonceHandler(deps.Reactor)
	proxies := service.TransferProxies{
		NFT:        common.HexToAddress(cfg.TransferProxy.NFT),
		ERC20:      common.HexToAddress(cfg.TransferProxy.ERC20),
		LazyNFT:    common.HexToAddress(cfg.TransferProxy.LazyNFT),
		CryptoPunk: common.HexToAddress(cfg.TransferProxy.CryptoPunk),
	}
	if cfg.Indexer.CheckApprovals {
		deps.Updater.SetApprovals(balances, proxies)
	}
	deps.Preparer = service.NewPrepareService(
		deps.Orders,
		service.Contracts{RaribleV2: common.HexToAddress(cfg.Exchange.V2)},
		proxies,
		cfg.Indexer.ProtocolCommission,
		logger,
	)

	return deps, cleanup, nil
}

// signingDomains builds the EIP-712 domain separators of the exchanges
// whose orders are signed as typed data.
func signingDomains(cfg *config.Config) (identity.Domains, error) {
	v2, err := crypto.DomainSeparator(crypto.Domain{
		Name:              cfg.Exchange.V2DomainName,
		Version:           cfg.Exchange.V2DomainVersion,
		ChainID:           cfg.Chain.ChainID,
		VerifyingContract: common.HexToAddress(cfg.Exchange.V2),
	})
	if err != nil {
		return identity.Domains{}, fmt.Errorf("wire: %w", err)
	}
	openSea, err := crypto.DomainSeparator(crypto.Domain{
		Name:              cfg.Exchange.OpenSeaName,
		Version:           cfg.Exchange.OpenSeaVersion,
		ChainID:           cfg.Chain.ChainID,
		VerifyingContract: common.HexToAddress(cfg.Exchange.OpenSeaV1),
	})
	if err != nil {
		return identity.Domains{}, fmt.Errorf("wire: %w", err)
	}
	return identity.Domains{RaribleV2: v2, OpenSea: openSea}, nil
}
