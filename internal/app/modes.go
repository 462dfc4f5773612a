package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/orderindexer/internal/pipeline"
	"github.com/alanyoungcy/orderindexer/internal/server"
	"github.com/alanyoungcy/orderindexer/internal/server/handler"
	"github.com/alanyoungcy/orderindexer/internal/server/ws"
)

// IndexerMode consumes exchange history from the stream and folds it into
// orders.
func (a *App) IndexerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting indexer mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startConsumer(ctx, g, deps)
	return g.Wait()
}

// APIMode serves the HTTP API and the WebSocket feed.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the consumer and the API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startConsumer(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startConsumer adds the exchange history consumer to g.
func (a *App) startConsumer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	consumer := pipeline.NewEventConsumer(
		deps.SignalBus,
		deps.Cursor,
		deps.Updater,
		pipeline.ConsumerConfig{
			Stream:       a.cfg.Indexer.Stream,
			BatchSize:    a.cfg.Indexer.BatchSize,
			PollInterval: a.cfg.Indexer.PollInterval.Duration,
			DedupTTL:     a.cfg.Indexer.DedupTTL.Duration,
		},
		a.logger,
	)
	g.Go(func() error {
		return consumer.Run(ctx)
	})
}

// startHTTPServer adds the WebSocket hub and the HTTP server to g. The server
// is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Channels: []string{a.cfg.Indexer.NotifyChannel, "rates"},
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// A nil interface keeps GetSnapshot answering "archive disabled".
	var archive handler.SnapshotReader
	if deps.Archiver != nil {
		archive = deps.Archiver
	}

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:     handler.NewHealthHandler(deps.Checks, a.logger),
			Orders:     handler.NewOrderHandler(deps.Updater, deps.Orders, deps.Preparer, archive, a.logger),
			Signatures: handler.NewSignatureHandler(a.logger),
			Rates:      handler.NewRateHandler(deps.Prices, a.logger),
		},
		deps.RateLimiter,
		hub,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Warn("http server shutdown", slog.String("error", err.Error()))
			return err
		}
		return nil
	})
}
