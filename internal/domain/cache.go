package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateCache stores the latest USD rate per currency key.
type RateCache interface {
	SetRate(ctx context.Context, currency string, usd decimal.Decimal, ts time.Time) error
	GetRate(ctx context.Context, currency string) (decimal.Decimal, time.Time, error)
	GetRates(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int64) ([]StreamMessage, error)
}
