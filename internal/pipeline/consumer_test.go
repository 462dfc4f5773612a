package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	goredis "github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/orderindexer/internal/cache/redis"
	"github.com/alanyoungcy/orderindexer/internal/domain"
)

const stream = "exchange-history"

type recordingHandler struct {
	batches [][]domain.HistoryEvent
	err     error
}

func (h *recordingHandler) OnLogEvents(_ context.Context, events []domain.HistoryEvent) error {
	h.batches = append(h.batches, events)
	return h.err
}

func (h *recordingHandler) total() int {
	n := 0
	for _, b := range h.batches {
		n += len(b)
	}
	return n
}

func match(id string, status domain.EventStatus) domain.HistoryEvent {
	return domain.HistoryEvent{
		ID:     id,
		Kind:   domain.EventKindMatch,
		Status: status,
		Match:  &domain.MatchEvent{Hash: common.HexToHash("0x1"), FillDelta: big.NewInt(1)},
	}
}

type harness struct {
	bus      *redis.SignalBus
	handler  *recordingHandler
	consumer *EventConsumer
}

func newHarness(t *testing.T, batch int64) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	h := &harness{bus: redis.NewSignalBus(c), handler: &recordingHandler{}}
	h.consumer = NewEventConsumer(h.bus, redis.NewStreamCursor(c, "test"), h.handler, ConsumerConfig{
		Stream:       stream,
		BatchSize:    batch,
		PollInterval: 10 * time.Millisecond,
		DedupTTL:     time.Minute,
	}, slog.New(slog.DiscardHandler))
	return h
}

func (h *harness) append(t *testing.T, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.bus.StreamAppend(context.Background(), stream, payload); err != nil {
		t.Fatal(err)
	}
}

func TestPollDeliversSingleAndBatchedEntries(t *testing.T) {
	h := newHarness(t, 10)
	h.append(t, match("a", domain.EventStatusConfirmed))
	h.append(t, []domain.HistoryEvent{match("b", domain.EventStatusPending), match("b", domain.EventStatusConfirmed)})

	n, err := h.consumer.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 2 || h.handler.total() != 3 {
		t.Errorf("got %d entries and %d events, want 2 and 3", n, h.handler.total())
	}
	if n, _ := h.consumer.Poll(context.Background()); n != 0 {
		t.Errorf("second poll consumed %d entries, want 0", n)
	}
}

func TestPollSkipsRedeliveries(t *testing.T) {
	h := newHarness(t, 10)
	h.append(t, match("a", domain.EventStatusConfirmed))
	if _, err := h.consumer.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.append(t, match("a", domain.EventStatusConfirmed))
	if _, err := h.consumer.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.handler.total(); got != 1 {
		t.Errorf("got %d handled events, want 1", got)
	}
}

func TestPollRetriesTransientFailure(t *testing.T) {
	h := newHarness(t, 10)
	h.append(t, match("a", domain.EventStatusConfirmed))
	h.handler.err = errors.New("store unavailable")

	if _, err := h.consumer.Poll(context.Background()); err == nil {
		t.Fatal("expected the failure to surface")
	}
	h.handler.err = nil
	n, err := h.consumer.Poll(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n != 1 || len(h.handler.batches) != 2 {
		t.Errorf("got %d entries over %d deliveries, want the entry redelivered", n, len(h.handler.batches))
	}
}

func TestPollCommitsRejectedEvents(t *testing.T) {
	h := newHarness(t, 10)
	h.append(t, match("a", domain.EventStatusConfirmed))
	h.handler.err = fmt.Errorf("service: log events: %w", errors.Join(
		fmt.Errorf("%w: match event a without fill", domain.ErrInvalidOrder),
	))

	if _, err := h.consumer.Poll(context.Background()); err != nil {
		t.Fatalf("rejected events should not block the stream: %v", err)
	}
	if n, _ := h.consumer.Poll(context.Background()); n != 0 {
		t.Errorf("rejected entry read again")
	}
}

func TestPollSkipsUndecodableEntries(t *testing.T) {
	h := newHarness(t, 10)
	if err := h.bus.StreamAppend(context.Background(), stream, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	h.append(t, match("a", domain.EventStatusConfirmed))

	n, err := h.consumer.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 2 || h.handler.total() != 1 {
		t.Errorf("got %d entries and %d events, want 2 and 1", n, h.handler.total())
	}
}

func TestRetryable(t *testing.T) {
	invalid := fmt.Errorf("%w: bad", domain.ErrInvalidOrder)
	transient := errors.New("timeout")
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain", transient, true},
		{"invalid", invalid, false},
		{"joined invalid", fmt.Errorf("wrap: %w", errors.Join(invalid, domain.ErrInvalidNonce)), false},
		{"mixed", fmt.Errorf("wrap: %w", errors.Join(invalid, transient)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunDrainsBacklogAndStops(t *testing.T) {
	h := newHarness(t, 2)
	for i := 0; i < 5; i++ {
		h.append(t, match(fmt.Sprintf("e%d", i), domain.EventStatusConfirmed))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := h.consumer.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want the context error", err)
	}
	if got := h.handler.total(); got != 5 {
		t.Errorf("got %d events, want 5", got)
	}
}
