package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

// DefaultDecimals is assumed for currencies without a configured precision.
const DefaultDecimals int32 = 18

type cachedRate struct {
	usd     decimal.Decimal
	fetched time.Time
}

// PriceService values orders in their payment currency and in USD. Rates
// live in the shared RateCache; a local copy is refreshed at most once per
// refresh interval, so readers may see a slightly stale rate.
type PriceService struct {
	rates    domain.RateCache
	bus      domain.SignalBus
	decimals map[string]int32
	refresh  time.Duration

	mu    sync.RWMutex
	local map[string]cachedRate
	now   func() time.Time

	logger *slog.Logger
}

// NewPriceService creates a PriceService. decimals maps currency hash keys
// to token precision. bus may be nil.
func NewPriceService(
	rates domain.RateCache,
	bus domain.SignalBus,
	decimals map[string]int32,
	refresh time.Duration,
	logger *slog.Logger,
) *PriceService {
	if refresh <= 0 {
		refresh = time.Minute
	}
	return &PriceService{
		rates:    rates,
		bus:      bus,
		decimals: decimals,
		refresh:  refresh,
		local:    make(map[string]cachedRate),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "price_service")),
	}
}

// SetRate stores the USD rate of currency and announces it on the "rates"
// channel.
func (s *PriceService) SetRate(ctx context.Context, currency domain.AssetType, usd decimal.Decimal) error {
	if !currency.IsCurrency() {
		return fmt.Errorf("price_service: %w: %s is not a currency", domain.ErrInvalidOrder, currency)
	}
	key := currency.HashKey()
	now := s.now().UTC()
	if err := s.rates.SetRate(ctx, key, usd, now); err != nil {
		return fmt.Errorf("price_service: set rate for %q: %w", key, err)
	}
	s.mu.Lock()
	s.local[key] = cachedRate{usd: usd, fetched: now}
	s.mu.Unlock()

	if s.bus == nil {
		return nil
	}
	evt, _ := json.Marshal(map[string]any{
		"event":     "rate_update",
		"currency":  key,
		"usd":       usd.String(),
		"timestamp": now.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "rates", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish rate update failed",
			slog.String("currency", key),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// Rate returns the USD rate of currency, reading through the local copy.
// It returns domain.ErrNotFound when no rate is known.
func (s *PriceService) Rate(ctx context.Context, currency domain.AssetType) (decimal.Decimal, error) {
	key := currency.HashKey()
	now := s.now()

	s.mu.RLock()
	c, ok := s.local[key]
	s.mu.RUnlock()
	if ok && now.Sub(c.fetched) < s.refresh {
		return c.usd, nil
	}

	usd, _, err := s.rates.GetRate(ctx, key)
	if err != nil {
		if ok && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "rate refresh failed, serving cached value",
				slog.String("currency", key),
				slog.String("error", err.Error()),
			)
			return c.usd, nil
		}
		return decimal.Zero, fmt.Errorf("price_service: rate for %q: %w", key, err)
	}
	s.mu.Lock()
	s.local[key] = cachedRate{usd: usd, fetched: now}
	s.mu.Unlock()
	return usd, nil
}

// Rates returns the known USD rates for the given currency hash keys.
// Unknown keys are absent from the result.
func (s *PriceService) Rates(ctx context.Context, keys []string) (map[string]decimal.Decimal, error) {
	rates, err := s.rates.GetRates(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("price_service: rates: %w", err)
	}
	return rates, nil
}

// Apply sets the unit prices of o. Sell orders get MakePrice (currency per
// NFT unit), bids get TakePrice. USD values are left nil when no rate is
// known.
func (s *PriceService) Apply(ctx context.Context, o *domain.Order) error {
	o.MakePrice, o.TakePrice, o.MakePriceUSD, o.TakePriceUSD = nil, nil, nil, nil

	var (
		currency domain.Asset
		nft      domain.Asset
	)
	switch {
	case o.IsSell() && o.Take.Type.IsCurrency():
		currency, nft = o.Take, o.Make
	case o.IsBid() && o.Make.Type.IsCurrency():
		currency, nft = o.Make, o.Take
	default:
		return nil
	}
	price, ok := UnitPrice(currency.Value, nft.Value, s.decimalsOf(currency.Type))
	if !ok {
		return nil
	}
	if o.IsSell() {
		o.MakePrice = &price
	} else {
		o.TakePrice = &price
	}

	usd, err := s.Rate(ctx, currency.Type)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	value := price.Mul(usd)
	if o.IsSell() {
		o.MakePriceUSD = &value
	} else {
		o.TakePriceUSD = &value
	}
	return nil
}

func (s *PriceService) decimalsOf(t domain.AssetType) int32 {
	if d, ok := s.decimals[t.HashKey()]; ok {
		return d
	}
	return DefaultDecimals
}

// UnitPrice is amount/units in whole currency units, amount being in the
// currency's smallest denomination.
func UnitPrice(amount, units *big.Int, decimals int32) (decimal.Decimal, bool) {
	if amount == nil || units == nil || units.Sign() == 0 {
		return decimal.Zero, false
	}
	whole := decimal.NewFromBigInt(amount, -decimals)
	return whole.DivRound(decimal.NewFromBigInt(units, 0), decimals), true
}
