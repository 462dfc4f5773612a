// Package server exposes the order indexer over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/server/handler"
	"github.com/alanyoungcy/orderindexer/internal/server/middleware"
	"github.com/alanyoungcy/orderindexer/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimit       int64  // requests per window and client; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Rates may be nil.
type Handlers struct {
	Health     *handler.HealthHandler
	Orders     *handler.OrderHandler
	Signatures *handler.SignatureHandler
	Rates      *handler.RateHandler
}

// Server is the HTTP + WebSocket API server of the order indexer.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, limiter, wsHub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// NewHandler builds the routed and middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/orders", handlers.Orders.ListByMaker)
	mux.HandleFunc("GET /api/orders/bids", handlers.Orders.ListBids)
	mux.HandleFunc("GET /api/orders/{hash}", handlers.Orders.GetOrder)
	mux.HandleFunc("POST /api/orders", handlers.Orders.SaveOrder)
	mux.HandleFunc("POST /api/orders/{hash}/prepare", handlers.Orders.PrepareFill)
	mux.HandleFunc("POST /api/orders/{hash}/prepare-cancel", handlers.Orders.PrepareCancel)
	mux.HandleFunc("POST /api/orders/{hash}/cancel", handlers.Orders.CancelOrder)
	mux.HandleFunc("POST /api/orders/{hash}/reduce", handlers.Orders.Reduce)
	mux.HandleFunc("GET /api/orders/{hash}/archive/{status}", handlers.Orders.GetSnapshot)

	mux.HandleFunc("POST /api/signatures/recover", handlers.Signatures.Recover)

	if handlers.Rates != nil {
		mux.HandleFunc("GET /api/rates", handlers.Rates.GetRates)
		mux.HandleFunc("POST /api/rates", handlers.Rates.SetRate)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outermost first: CORS, logging, rate limit, auth.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins,
		handler.HeaderOrderHash, handler.HeaderOrderVersion, handler.HeaderOrderStatus, "Retry-After",
	)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
