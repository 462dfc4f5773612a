// Package pipeline feeds exchange history from the Redis ingress stream into
// the order updater.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

// EventHandler applies a batch of history events.
type EventHandler interface {
	OnLogEvents(ctx context.Context, events []domain.HistoryEvent) error
}

// Cursor tracks the stream position and the deliveries already handled.
type Cursor interface {
	Offset(ctx context.Context, stream string) (string, error)
	Commit(ctx context.Context, stream, id string) error
	MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, id string) error
}

// ConsumerConfig tunes an EventConsumer.
type ConsumerConfig struct {
	Stream       string
	BatchSize    int64
	PollInterval time.Duration
	DedupTTL     time.Duration
}

// EventConsumer reads JSON history events from a stream. Each entry holds
// one event or an array of them. Delivery is at least once: a batch whose
// handling fails is read again on the next poll.
type EventConsumer struct {
	bus     domain.SignalBus
	cursor  Cursor
	handler EventHandler
	cfg     ConsumerConfig
	logger  *slog.Logger
}

// NewEventConsumer creates an EventConsumer.
func NewEventConsumer(bus domain.SignalBus, cursor Cursor, handler EventHandler, cfg ConsumerConfig, logger *slog.Logger) *EventConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &EventConsumer{
		bus:     bus,
		cursor:  cursor,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "event_consumer"), slog.String("stream", cfg.Stream)),
	}
}

// Run polls until ctx is cancelled. A full batch is followed by another
// read straight away so a backlog drains without waiting for the ticker.
func (c *EventConsumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "event consumer starting",
		slog.Int64("batch_size", c.cfg.BatchSize),
		slog.Duration("poll_interval", c.cfg.PollInterval),
	)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n, err := c.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "poll failed", slog.String("error", err.Error()))
		}
		if err == nil && int64(n) >= c.cfg.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "event consumer stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll handles one batch and returns how many stream entries it consumed.
func (c *EventConsumer) Poll(ctx context.Context) (int, error) {
	offset, err := c.cursor.Offset(ctx, c.cfg.Stream)
	if err != nil {
		return 0, fmt.Errorf("pipeline: %w", err)
	}
	msgs, err := c.bus.StreamRead(ctx, c.cfg.Stream, offset, c.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("pipeline: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	var (
		fresh  []domain.HistoryEvent
		marked []string
	)
	for _, msg := range msgs {
		events, err := decodeEvents(msg.Payload)
		if err != nil {
			// A payload that never decodes would block the stream forever.
			c.logger.WarnContext(ctx, "skipping undecodable entry",
				slog.String("entry", msg.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, ev := range events {
			key := dedupKey(ev)
			seen, err := c.cursor.MarkSeen(ctx, key, c.cfg.DedupTTL)
			if err != nil {
				c.forget(ctx, marked)
				return 0, fmt.Errorf("pipeline: %w", err)
			}
			if seen {
				continue
			}
			marked = append(marked, key)
			fresh = append(fresh, ev)
		}
	}

	if len(fresh) > 0 {
		if err := c.handler.OnLogEvents(ctx, fresh); err != nil {
			if retryable(err) {
				c.forget(ctx, marked)
				return 0, fmt.Errorf("pipeline: handle %d events: %w", len(fresh), err)
			}
			c.logger.WarnContext(ctx, "batch had rejected events",
				slog.String("error", err.Error()),
			)
		}
	}

	last := msgs[len(msgs)-1].ID
	if err := c.cursor.Commit(ctx, c.cfg.Stream, last); err != nil {
		return 0, fmt.Errorf("pipeline: %w", err)
	}

	c.logger.DebugContext(ctx, "batch consumed",
		slog.Int("entries", len(msgs)),
		slog.Int("events", len(fresh)),
		slog.String("offset", last),
	)
	return len(msgs), nil
}

// forget releases dedup markers so the retried batch is not skipped.
func (c *EventConsumer) forget(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := c.cursor.Forget(ctx, k); err != nil {
			c.logger.WarnContext(ctx, "forget dedup marker failed",
				slog.String("key", k),
				slog.String("error", err.Error()),
			)
		}
	}
}

// retryable reports whether err contains a failure other than a rejected
// event. Rejected events fail the same way on every delivery.
func retryable(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if multi, ok := e.(interface{ Unwrap() []error }); ok {
			for _, child := range multi.Unwrap() {
				if retryable(child) {
					return true
				}
			}
			return false
		}
	}
	return !errors.Is(err, domain.ErrInvalidOrder) && !errors.Is(err, domain.ErrInvalidNonce)
}

// dedupKey separates the PENDING and CONFIRMED deliveries of one log.
func dedupKey(ev domain.HistoryEvent) string {
	return ev.ID + ":" + string(ev.Status)
}

func decodeEvents(payload []byte) ([]domain.HistoryEvent, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	if payload[0] == '[' {
		var events []domain.HistoryEvent
		if err := json.Unmarshal(payload, &events); err != nil {
			return nil, err
		}
		return events, nil
	}
	var ev domain.HistoryEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return []domain.HistoryEvent{ev}, nil
}
