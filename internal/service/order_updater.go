package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/orderindexer/internal/crypto"
	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/identity"
	"github.com/alanyoungcy/orderindexer/internal/reducer"
)

// UpdaterConfig tunes the OrderUpdater.
type UpdaterConfig struct {
	// MaxAttempts bounds the read-reduce-write cycles spent on one hash when
	// CompareAndSave keeps losing races.
	MaxAttempts int
	// Workers bounds the number of hashes reconciled in parallel by
	// OnLogEvents.
	Workers int
	// ProtocolCommission is the exchange fee in basis points charged on top
	// of origin fees.
	ProtocolCommission int
	// VerifySignatures rejects intents whose signature does not recover to
	// the maker. Protocols without an off-chain signing payload are exempt.
	VerifySignatures bool
	Domains          identity.Domains
}

// NonceHandler reacts to maker nonce and counter changes.
type NonceHandler interface {
	OnNonceChanged(ctx context.Context, ev domain.HistoryEvent) error
}

// OrderUpdater owns the order aggregate: it ingests intents, folds exchange
// history into persisted orders and notifies listeners of every change.
type OrderUpdater struct {
	orders    domain.OrderStore
	history   domain.HistoryStore
	nonces    domain.NonceStore
	balances  domain.BalanceOracle
	approvals domain.ApprovalOracle
	proxies   TransferProxies
	prices    *PriceService
	reactor   NonceHandler
	listeners []domain.OrderListener
	cfg       UpdaterConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewOrderUpdater creates an OrderUpdater. prices may be nil, in which case
// orders are stored without unit prices.
func NewOrderUpdater(
	orders domain.OrderStore,
	history domain.HistoryStore,
	nonces domain.NonceStore,
	balances domain.BalanceOracle,
	prices *PriceService,
	cfg UpdaterConfig,
	logger *slog.Logger,
) *OrderUpdater {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &OrderUpdater{
		orders:   orders,
		history:  history,
		nonces:   nonces,
		balances: balances,
		prices:   prices,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "order_updater")),
	}
}

// AddListener registers l for change notifications.
func (u *OrderUpdater) AddListener(l domain.OrderListener) {
	u.listeners = append(u.listeners, l)
}

// SetNonceHandler routes NONCE_CHANGED events seen by OnLogEvents to h.
func (u *OrderUpdater) SetNonceHandler(h NonceHandler) {
	u.reactor = h
}

// SetApprovals makes the updater check that makers of Rarible orders have
// approved the transfer proxy for their make asset. Unapproved orders get no
// make stock.
func (u *OrderUpdater) SetApprovals(oracle domain.ApprovalOracle, proxies TransferProxies) {
	u.approvals = oracle
	u.proxies = proxies
}

// SetClock replaces the wall clock, for tests.
func (u *OrderUpdater) SetClock(now func() time.Time) {
	u.now = now
}

// Save ingests a signed order intent. The hash is computed when the protocol
// allows it and must match a supplied one. A fresh intent for a stored hash
// replaces its mutable fields. When the maker's counter has already moved
// past the order, it is stored as cancelled.
func (u *OrderUpdater) Save(ctx context.Context, intent *domain.Order) (*domain.Order, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}
	intent = intent.Clone()
	if intent.Hash == (common.Hash{}) {
		h, err := identity.Compute(intent)
		if err != nil {
			return nil, fmt.Errorf("service: hash intent: %w", err)
		}
		intent.Hash = h
	}
	if err := identity.Verify(intent); err != nil {
		return nil, fmt.Errorf("service: verify intent: %w", err)
	}
	if err := u.verifySignature(intent); err != nil {
		return nil, err
	}

	stale, err := u.staleCounter(ctx, intent)
	if err != nil {
		return nil, err
	}
	if stale {
		u.logger.InfoContext(ctx, "intent counter is stale, storing as cancelled",
			slog.String("hash", intent.Hash.Hex()),
			slog.String("maker", intent.Maker.Hex()),
		)
		if err := u.history.Append(ctx, cancelEvent(intent, u.now())); err != nil {
			return nil, fmt.Errorf("service: record stale cancel: %w", err)
		}
	}

	saved, _, err := u.reconcile(ctx, intent.Hash, intent, false)
	return saved, err
}

// Update re-reduces the full history of hash and persists the result when
// fill, cancellation or pending events changed.
func (u *OrderUpdater) Update(ctx context.Context, hash common.Hash) (*domain.Order, error) {
	saved, _, err := u.reconcile(ctx, hash, nil, false)
	return saved, err
}

// Refresh is Update for a changed maker balance: stock and status are
// recomputed even when the history is unchanged.
func (u *OrderUpdater) Refresh(ctx context.Context, hash common.Hash) (*domain.Order, error) {
	saved, _, err := u.reconcile(ctx, hash, nil, true)
	return saved, err
}

// Cancel records a confirmed cancellation of hash and reconciles it. The
// event id is derived from the hash, so repeated cancels are idempotent.
func (u *OrderUpdater) Cancel(ctx context.Context, hash common.Hash) (*domain.Order, error) {
	current, err := u.orders.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("service: cancel %s: %w", hash.Hex(), err)
	}
	if err := u.history.Append(ctx, cancelEvent(current, u.now())); err != nil {
		return nil, fmt.Errorf("service: record cancel of %s: %w", hash.Hex(), err)
	}
	return u.Update(ctx, hash)
}

// OnLogEvents is the batch entry point of the chain scanner. Events are
// stored, grouped by order hash and reconciled in parallel; nonce changes
// go to the nonce handler. A failing hash does not stop the others and all
// failures are returned joined.
func (u *OrderUpdater) OnLogEvents(ctx context.Context, events []domain.HistoryEvent) error {
	valid := make([]domain.HistoryEvent, 0, len(events))
	var errs []error
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			u.logger.WarnContext(ctx, "dropping invalid history event",
				slog.String("id", ev.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		valid = append(valid, ev)
	}
	if len(valid) == 0 {
		return errors.Join(errs...)
	}
	if err := u.history.Append(ctx, valid...); err != nil {
		return fmt.Errorf("service: append %d history events: %w", len(valid), err)
	}

	groups, rest := reducer.Group(valid)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(u.cfg.Workers)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	for hash := range groups {
		g.Go(func() error {
			_, err := u.Update(ctx, hash)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrNotFound):
				u.logger.DebugContext(ctx, "history for unknown order",
					slog.String("hash", hash.Hex()),
				)
			default:
				record(err)
			}
			return nil
		})
	}
	for _, ev := range rest {
		if ev.Kind != domain.EventKindNonceChanged || u.reactor == nil {
			continue
		}
		g.Go(func() error {
			if err := u.reactor.OnNonceChanged(ctx, ev); err != nil {
				record(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("service: log events: %w", errors.Join(errs...))
	}
	return nil
}

// reconcile runs read, reduce and compare-and-save for hash until the write
// succeeds or MaxAttempts races were lost.
func (u *OrderUpdater) reconcile(ctx context.Context, hash common.Hash, intent *domain.Order, force bool) (*domain.Order, bool, error) {
	for attempt := 1; attempt <= u.cfg.MaxAttempts; attempt++ {
		current, err := u.orders.Get(ctx, hash)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			current = nil
		case err != nil:
			return nil, false, fmt.Errorf("service: load order %s: %w", hash.Hex(), err)
		}
		if current == nil && intent == nil {
			return nil, false, fmt.Errorf("service: order %s: %w", hash.Hex(), domain.ErrNotFound)
		}

		events, err := u.history.ListByHash(ctx, hash)
		if err != nil {
			return nil, false, fmt.Errorf("service: load history of %s: %w", hash.Hex(), err)
		}
		reducer.Sort(events)
		state := reducer.Reduce(events)

		if current != nil && intent == nil && !force && !reducer.Changed(current, state) {
			return current, false, nil
		}

		next, err := u.next(ctx, current, intent, state)
		if err != nil {
			return nil, false, err
		}
		if current != nil && intent == nil && force && sameProjection(current, next) {
			return current, false, nil
		}

		var expected int64
		if current != nil {
			expected = current.Version
		}
		saved, err := u.orders.CompareAndSave(ctx, next, expected)
		if errors.Is(err, domain.ErrConflict) {
			u.logger.DebugContext(ctx, "order write lost a race, retrying",
				slog.String("hash", hash.Hex()),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("service: save order %s: %w", hash.Hex(), err)
		}

		u.notify(ctx, saved)
		return saved, true, nil
	}
	return nil, false, fmt.Errorf("service: save order %s after %d attempts: %w", hash.Hex(), u.cfg.MaxAttempts, domain.ErrConflict)
}

// next builds the order to persist from the stored version, the optional
// intent and the reduced history.
func (u *OrderUpdater) next(ctx context.Context, current, intent *domain.Order, state domain.OrderState) (*domain.Order, error) {
	now := u.now().UTC()

	var next *domain.Order
	switch {
	case current == nil:
		next = intent.Clone()
		next.CreatedAt = now
		next.Version = 0
		next.PriceHistory = nil
	default:
		next = current.Clone()
		if intent != nil {
			next.Make.Value = intent.Make.Value
			next.Take.Value = intent.Take.Value
			next.Signature = intent.Signature
			next.Start = intent.Start
			next.End = intent.End
		}
	}
	if intent != nil {
		next.WithPriceHistory(now)
	}

	next.Fill = state.Fill
	next.Cancelled = state.Cancelled
	next.Pending = state.Pending

	if next.Cancelled {
		next.MakeStock = domain.ComputeMakeStock(next, nil, u.cfg.ProtocolCommission)
	} else {
		approved, err := u.approved(ctx, next)
		if err != nil {
			return nil, err
		}
		next.Approved = approved
		balance, err := u.balances.AvailableBalance(ctx, next.Maker, next.Make.Type)
		if err != nil {
			return nil, fmt.Errorf("service: balance of %s for %s: %w", next.Maker.Hex(), next.Hash.Hex(), err)
		}
		next.MakeStock = domain.ComputeMakeStock(next, balance, u.cfg.ProtocolCommission)
	}
	next.Status = domain.DeriveStatus(next, now)
	next.LastUpdateAt = now
	if state.ChangeDate.After(now) {
		next.LastUpdateAt = state.ChangeDate
	}

	if u.prices != nil {
		if err := u.prices.Apply(ctx, next); err != nil {
			u.logger.WarnContext(ctx, "price valuation failed",
				slog.String("hash", next.Hash.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	return next, nil
}

func (u *OrderUpdater) notify(ctx context.Context, o *domain.Order) {
	ev := domain.OrderChanged{
		ID:    uuid.NewString(),
		Hash:  o.Hash,
		Order: o,
		At:    o.LastUpdateAt,
	}
	for _, l := range u.listeners {
		if err := l.OnOrderChanged(ctx, ev); err != nil {
			u.logger.WarnContext(ctx, "order listener failed",
				slog.String("hash", o.Hash.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	u.logger.InfoContext(ctx, "order updated",
		slog.String("hash", o.Hash.Hex()),
		slog.String("status", string(o.Status)),
		slog.String("fill", o.Fill.String()),
		slog.String("make_stock", o.MakeStock.String()),
	)
}

// approved checks the maker's approval of the proxy that moves o's make
// asset. Protocols without a configured proxy are not checked.
func (u *OrderUpdater) approved(ctx context.Context, o *domain.Order) (*bool, error) {
	if u.approvals == nil {
		return nil, nil
	}
	switch o.Type {
	case domain.OrderTypeRaribleV1, domain.OrderTypeRaribleV2:
	default:
		return nil, nil
	}
	operator := u.proxies.For(o.Make.Type)
	if operator == nil || *operator == (common.Address{}) {
		return nil, nil
	}
	ok, err := u.approvals.IsApproved(ctx, o.Maker, *operator, o.Make.Type)
	if err != nil {
		return nil, fmt.Errorf("service: approval of %s for %s: %w", o.Maker.Hex(), o.Hash.Hex(), err)
	}
	return &ok, nil
}

func (u *OrderUpdater) verifySignature(o *domain.Order) error {
	if !u.cfg.VerifySignatures || len(o.Signature) == 0 {
		return nil
	}
	payload, scheme, err := identity.SigningPayload(o, u.cfg.Domains)
	if errors.Is(err, domain.ErrUnsupportedOperation) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("service: signing payload of %s: %w", o.Hash.Hex(), err)
	}
	signer, err := crypto.Recover(payload, o.Signature, scheme)
	if err != nil {
		return fmt.Errorf("service: recover signer of %s: %w", o.Hash.Hex(), err)
	}
	if signer != o.Maker {
		return fmt.Errorf("service: order %s signed by %s: %w", o.Hash.Hex(), signer.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

func (u *OrderUpdater) staleCounter(ctx context.Context, o *domain.Order) (bool, error) {
	if _, ok := domain.Counter(o.Data); !ok {
		return false, nil
	}
	current, err := u.nonces.Get(ctx, o.Maker, o.Type)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("service: load nonce of %s: %w", o.Maker.Hex(), err)
	}
	return !domain.CounterValid(o.Data, current), nil
}

func validateIntent(o *domain.Order) error {
	if o == nil {
		return fmt.Errorf("service: %w: empty intent", domain.ErrInvalidOrder)
	}
	if err := o.Make.Type.Validate(); err != nil {
		return fmt.Errorf("service: make asset: %w", err)
	}
	if err := o.Take.Type.Validate(); err != nil {
		return fmt.Errorf("service: take asset: %w", err)
	}
	if o.Make.Value == nil || o.Make.Value.Sign() <= 0 || o.Take.Value == nil || o.Take.Value.Sign() <= 0 {
		return fmt.Errorf("service: %w: make and take values must be positive", domain.ErrInvalidOrder)
	}
	if o.Maker == (common.Address{}) {
		return fmt.Errorf("service: %w: missing maker", domain.ErrInvalidOrder)
	}
	return nil
}

// CancelEventID is the id of the confirmed cancel recorded for hash by the
// API and nonce paths.
func CancelEventID(hash common.Hash) string {
	return "cancel:" + hash.Hex()
}

func cancelEvent(o *domain.Order, at time.Time) domain.HistoryEvent {
	return domain.HistoryEvent{
		ID:     CancelEventID(o.Hash),
		Kind:   domain.EventKindCancel,
		Status: domain.EventStatusConfirmed,
		Date:   at.UTC(),
		Source: "indexer",
		Cancel: &domain.CancelEvent{Hash: o.Hash, Maker: o.Maker},
	}
}

// sameProjection reports whether a balance refresh left every persisted
// derived field untouched.
func sameProjection(a, b *domain.Order) bool {
	if a.Status != b.Status || !sameFlag(a.Approved, b.Approved) {
		return false
	}
	if a.MakeStock == nil || b.MakeStock == nil {
		return a.MakeStock == b.MakeStock
	}
	return a.MakeStock.Cmp(b.MakeStock) == 0
}

func sameFlag(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
