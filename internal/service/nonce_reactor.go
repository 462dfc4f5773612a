package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

// Canceller is the cancel path of the order aggregate.
type Canceller interface {
	Cancel(ctx context.Context, hash common.Hash) (*domain.Order, error)
}

// NonceReactor cancels every order a maker invalidated by raising their
// nonce or counter on a protocol.
type NonceReactor struct {
	orders    domain.OrderStore
	nonces    domain.NonceStore
	canceller Canceller
	locks     domain.LockManager
	workers   int
	lockTTL   time.Duration
	logger    *slog.Logger
}

// NewNonceReactor creates a NonceReactor. locks may be nil for a single
// indexer instance.
func NewNonceReactor(
	orders domain.OrderStore,
	nonces domain.NonceStore,
	canceller Canceller,
	locks domain.LockManager,
	workers int,
	logger *slog.Logger,
) *NonceReactor {
	if workers <= 0 {
		workers = 8
	}
	return &NonceReactor{
		orders:    orders,
		nonces:    nonces,
		canceller: canceller,
		locks:     locks,
		workers:   workers,
		lockTTL:   30 * time.Second,
		logger:    logger.With(slog.String("component", "nonce_reactor")),
	}
}

// OnNonceChanged handles a NONCE_CHANGED event. Only confirmed events take
// effect. Orders whose embedded nonce is below the new value are cancelled
// independently; failures are joined and do not stop the remaining orders.
func (r *NonceReactor) OnNonceChanged(ctx context.Context, ev domain.HistoryEvent) error {
	nc := ev.NonceChanged
	if ev.Kind != domain.EventKindNonceChanged || nc == nil {
		return fmt.Errorf("nonce_reactor: %w: event %s is not a nonce change", domain.ErrInvalidOrder, ev.ID)
	}
	if nc.NewNonce == nil || nc.NewNonce.Sign() <= 0 {
		return fmt.Errorf("nonce_reactor: event %s: %w", ev.ID, domain.ErrInvalidNonce)
	}
	if ev.Status != domain.EventStatusConfirmed {
		return nil
	}

	if r.locks != nil {
		key := "nonce:" + string(nc.Protocol) + ":" + strings.ToLower(nc.Maker.Hex())
		unlock, err := r.locks.Acquire(ctx, key, r.lockTTL)
		if err != nil {
			return fmt.Errorf("nonce_reactor: lock %s: %w", key, err)
		}
		defer unlock()
	}

	if err := r.nonces.Raise(ctx, nc.Maker, nc.Protocol, nc.NewNonce, ev.Date); err != nil {
		return fmt.Errorf("nonce_reactor: raise nonce of %s: %w", nc.Maker.Hex(), err)
	}

	hashes, err := r.orders.FindByMakerBelowCounter(ctx, nc.Maker, nc.Protocol, nc.NewNonce)
	if err != nil {
		return fmt.Errorf("nonce_reactor: find orders of %s: %w", nc.Maker.Hex(), err)
	}
	if len(hashes) == 0 {
		return nil
	}
	r.logger.InfoContext(ctx, "cancelling orders below new nonce",
		slog.String("maker", nc.Maker.Hex()),
		slog.String("protocol", string(nc.Protocol)),
		slog.String("nonce", nc.NewNonce.String()),
		slog.Int("orders", len(hashes)),
	)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(r.workers)
	for _, h := range hashes {
		g.Go(func() error {
			if _, err := r.canceller.Cancel(ctx, h); err != nil {
				r.logger.WarnContext(ctx, "nonce cancel failed",
					slog.String("hash", h.Hex()),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("cancel %s: %w", h.Hex(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("nonce_reactor: %d of %d cancellations failed: %w", len(errs), len(hashes), errors.Join(errs...))
	}
	return nil
}
