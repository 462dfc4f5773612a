package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var _ domain.RateCache = (*RateCache)(nil)

// RateCache implements domain.RateCache using Redis hashes. Each currency's
// USD rate lives at "rate:{currency}" with fields "usd" (a decimal string)
// and "ts" (Unix nanoseconds).
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

func rateKey(currency string) string {
	return "rate:" + currency
}

// SetRate stores the latest USD rate of currency.
func (rc *RateCache) SetRate(ctx context.Context, currency string, usd decimal.Decimal, ts time.Time) error {
	fields := map[string]any{
		"usd": usd.String(),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, rateKey(currency), fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", currency, err)
	}
	return nil
}

// GetRate returns the rate of currency and when it was set, or
// domain.ErrNotFound.
func (rc *RateCache) GetRate(ctx context.Context, currency string) (decimal.Decimal, time.Time, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey(currency)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get rate %s: %w", currency, err)
	}
	usd, ts, err := parseRate(vals)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get rate %s: %w", currency, err)
	}
	return usd, ts, nil
}

// GetRates fetches several rates in one pipeline. Currencies without a rate
// are omitted from the result.
func (rc *RateCache) GetRates(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	if len(currencies) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	pipe := rc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(currencies))
	for _, c := range currencies {
		cmds[c] = pipe.HGetAll(ctx, rateKey(c))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get rates pipeline: %w", err)
	}

	result := make(map[string]decimal.Decimal, len(currencies))
	for c, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if usd, _, err := parseRate(vals); err == nil {
			result[c] = usd
		}
	}
	return result, nil
}

func parseRate(vals map[string]string) (decimal.Decimal, time.Time, error) {
	raw, ok := vals["usd"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	usd, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse rate %q: %w", raw, err)
	}
	var ts time.Time
	if n, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		ts = time.Unix(0, n)
	}
	return usd, ts, nil
}
