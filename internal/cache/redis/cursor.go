package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamCursor remembers how far a consumer has read a stream and which
// event deliveries it has already processed.
type StreamCursor struct {
	rdb      *redis.Client
	consumer string
}

// NewStreamCursor creates a cursor namespaced by consumer name.
func NewStreamCursor(c *Client, consumer string) *StreamCursor {
	return &StreamCursor{rdb: c.Underlying(), consumer: consumer}
}

func (sc *StreamCursor) offsetKey(stream string) string {
	return "cursor:" + sc.consumer + ":" + stream
}

func (sc *StreamCursor) seenKey(id string) string {
	return "seen:" + sc.consumer + ":" + id
}

// Offset returns the last acknowledged entry id of stream, or "0" when the
// consumer has not read it yet.
func (sc *StreamCursor) Offset(ctx context.Context, stream string) (string, error) {
	id, err := sc.rdb.Get(ctx, sc.offsetKey(stream)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "0", nil
		}
		return "", fmt.Errorf("redis: get offset of %s: %w", stream, err)
	}
	return id, nil
}

// Commit stores id as the last acknowledged entry of stream.
func (sc *StreamCursor) Commit(ctx context.Context, stream, id string) error {
	if err := sc.rdb.Set(ctx, sc.offsetKey(stream), id, 0).Err(); err != nil {
		return fmt.Errorf("redis: commit offset of %s: %w", stream, err)
	}
	return nil
}

// MarkSeen records id for ttl and reports whether it was already recorded.
func (sc *StreamCursor) MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	fresh, err := sc.rdb.SetNX(ctx, sc.seenKey(id), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark %s seen: %w", id, err)
	}
	return !fresh, nil
}

// Forget drops the seen marker of id so a later delivery is processed again.
func (sc *StreamCursor) Forget(ctx context.Context, id string) error {
	if err := sc.rdb.Del(ctx, sc.seenKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: forget %s: %w", id, err)
	}
	return nil
}
