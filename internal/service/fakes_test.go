package service

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/reducer"
)

var discard = slog.New(slog.DiscardHandler)

type memOrders struct {
	mu     sync.Mutex
	orders map[common.Hash]*domain.Order
	writes int
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[common.Hash]*domain.Order)}
}

func (m *memOrders) Get(_ context.Context, hash common.Hash) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (m *memOrders) CompareAndSave(_ context.Context, o *domain.Order, expected int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var version int64
	if cur, ok := m.orders[o.Hash]; ok {
		version = cur.Version
	}
	if version != expected {
		return nil, domain.ErrConflict
	}
	saved := o.Clone()
	saved.Version = expected + 1
	m.orders[o.Hash] = saved
	m.writes++
	return saved.Clone(), nil
}

func (m *memOrders) FindByMakerBelowCounter(_ context.Context, maker common.Address, protocol domain.OrderType, threshold *big.Int) ([]common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []common.Hash
	for h, o := range m.orders {
		if o.Maker != maker || o.Type != protocol || o.Cancelled {
			continue
		}
		if c, ok := domain.Counter(o.Data); ok && c.Cmp(threshold) < 0 {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Big().Cmp(out[j].Big()) < 0 })
	return out, nil
}

func (m *memOrders) put(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := o.Clone()
	if c.Version == 0 {
		c.Version = 1
	}
	m.orders[o.Hash] = c
}

// conflictingOrders loses the first n writes.
type conflictingOrders struct {
	*memOrders
	n     int
	calls int
}

func (c *conflictingOrders) CompareAndSave(ctx context.Context, o *domain.Order, expected int64) (*domain.Order, error) {
	c.calls++
	if c.calls <= c.n {
		return nil, domain.ErrConflict
	}
	return c.memOrders.CompareAndSave(ctx, o, expected)
}

type memHistory struct {
	mu     sync.Mutex
	events []domain.HistoryEvent
}

func (m *memHistory) Append(_ context.Context, events ...domain.HistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
next:
	for _, ev := range events {
		for i, have := range m.events {
			if have.ID == ev.ID {
				if reducer.Supersedes(have.Status, ev.Status) {
					m.events[i] = ev
				}
				continue next
			}
		}
		m.events = append(m.events, ev)
	}
	return nil
}

func (m *memHistory) ListByHash(_ context.Context, hash common.Hash) ([]domain.HistoryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.HistoryEvent
	for _, ev := range m.events {
		if h, ok := ev.OrderHash(); ok && h == hash {
			out = append(out, ev)
		}
	}
	return out, nil
}

type memNonces struct {
	mu     sync.Mutex
	nonces map[string]*big.Int
}

func newMemNonces() *memNonces { return &memNonces{nonces: make(map[string]*big.Int)} }

func nonceKey(maker common.Address, protocol domain.OrderType) string {
	return string(protocol) + ":" + maker.Hex()
}

func (m *memNonces) Get(_ context.Context, maker common.Address, protocol domain.OrderType) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nonces[nonceKey(maker, protocol)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return new(big.Int).Set(n), nil
}

func (m *memNonces) Raise(_ context.Context, maker common.Address, protocol domain.OrderType, nonce *big.Int, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := nonceKey(maker, protocol)
	if cur, ok := m.nonces[key]; ok && cur.Cmp(nonce) >= 0 {
		return nil
	}
	m.nonces[key] = new(big.Int).Set(nonce)
	return nil
}

// balances answers per owner; failing owners get err.
type balances struct {
	mu      sync.Mutex
	values  map[common.Address]*big.Int
	failing map[common.Address]error
	calls   int
}

func newBalances() *balances {
	return &balances{values: make(map[common.Address]*big.Int), failing: make(map[common.Address]error)}
}

func (b *balances) set(owner common.Address, v int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[owner] = big.NewInt(v)
}

func (b *balances) AvailableBalance(_ context.Context, owner common.Address, _ domain.AssetType) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if err := b.failing[owner]; err != nil {
		return nil, err
	}
	return b.values[owner], nil
}

// approvals grants per owner and records the operators asked about.
type approvals struct {
	mu        sync.Mutex
	granted   map[common.Address]bool
	operators []common.Address
}

func newApprovals() *approvals {
	return &approvals{granted: make(map[common.Address]bool)}
}

func (a *approvals) grant(owner common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.granted[owner] = true
}

func (a *approvals) IsApproved(_ context.Context, owner, operator common.Address, _ domain.AssetType) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.operators = append(a.operators, operator)
	return a.granted[owner], nil
}

type recorder struct {
	mu     sync.Mutex
	events []domain.OrderChanged
}

func (r *recorder) OnOrderChanged(_ context.Context, ev domain.OrderChanged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type memRates struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	reads int
}

func (m *memRates) SetRate(_ context.Context, currency string, usd decimal.Decimal, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rates == nil {
		m.rates = make(map[string]decimal.Decimal)
	}
	m.rates[currency] = usd
	return nil
}

func (m *memRates) GetRate(_ context.Context, currency string) (decimal.Decimal, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	r, ok := m.rates[currency]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return r, time.Time{}, nil
}

func (m *memRates) GetRates(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, c := range currencies {
		if r, _, err := m.GetRate(ctx, c); err == nil {
			out[c] = r
		}
	}
	return out, nil
}
