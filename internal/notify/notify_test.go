package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	goredis "github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/orderindexer/internal/cache/redis"
	"github.com/alanyoungcy/orderindexer/internal/domain"
)

type countingListener struct {
	calls int
	err   error
}

func (c *countingListener) OnOrderChanged(context.Context, domain.OrderChanged) error {
	c.calls++
	return c.err
}

func change(status domain.OrderStatus) domain.OrderChanged {
	hash := common.HexToHash("0xbeef")
	return domain.OrderChanged{
		ID:   "ev-1",
		Hash: hash,
		Order: &domain.Order{
			Hash:      hash,
			Maker:     common.HexToAddress("0x1"),
			Make:      domain.Asset{Type: domain.ERC721(common.HexToAddress("0x2"), big.NewInt(5)), Value: big.NewInt(1)},
			Take:      domain.Asset{Type: domain.ETH(), Value: big.NewInt(7)},
			Type:      domain.OrderTypeCryptoPunks,
			Data:      domain.CryptoPunksData{},
			Salt:      big.NewInt(0),
			Fill:      new(big.Int),
			MakeStock: big.NewInt(1),
			Status:    status,
		},
		At: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestNotifierFansOut(t *testing.T) {
	n := NewNotifier(nil, slog.New(slog.DiscardHandler))
	ok := &countingListener{}
	bad := &countingListener{err: errors.New("down")}
	after := &countingListener{}
	n.Add("ok", ok)
	n.Add("bad", bad)
	n.Add("after", after)

	err := n.OnOrderChanged(context.Background(), change(domain.OrderStatusActive))
	if err == nil {
		t.Fatal("listener failure not reported")
	}
	if ok.calls != 1 || bad.calls != 1 || after.calls != 1 {
		t.Errorf("got calls %d/%d/%d, want 1/1/1", ok.calls, bad.calls, after.calls)
	}
}

func TestNotifierStatusFilter(t *testing.T) {
	n := NewNotifier([]domain.OrderStatus{domain.OrderStatusFilled, domain.OrderStatusInactive}, slog.New(slog.DiscardHandler))
	l := &countingListener{}
	n.Add("l", l)
	ctx := context.Background()

	tests := []struct {
		status domain.OrderStatus
		want   int
	}{
		{domain.OrderStatusActive, 0},
		{domain.OrderStatusFilled, 1},
		{domain.OrderStatusEnded, 2},
		{domain.OrderStatusNotStarted, 3},
		{domain.OrderStatusCancelled, 3},
	}
	for _, tt := range tests {
		if err := n.OnOrderChanged(ctx, change(tt.status)); err != nil {
			t.Fatalf("%s: %v", tt.status, err)
		}
		if l.calls != tt.want {
			t.Errorf("after %s: got %d calls, want %d", tt.status, l.calls, tt.want)
		}
	}
}

func TestPublisherWritesJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := redis.NewSignalBus(redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "orders")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := NewPublisher(bus, "orders").OnOrderChanged(ctx, change(domain.OrderStatusFilled)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-ch:
		var got domain.OrderChanged
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Hash != common.HexToHash("0xbeef") || got.Order.Status != domain.OrderStatusFilled {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
}

func TestWebhook(t *testing.T) {
	var gotID string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Event-Id")
		gotBody, _ = io.ReadAll(r.Body)
		if r.URL.Path == "/fail" {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	ctx := context.Background()

	if err := NewWebhook(srv.URL+"/hook").OnOrderChanged(ctx, change(domain.OrderStatusActive)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotID != "ev-1" || len(gotBody) == 0 {
		t.Errorf("got id %q and %d body bytes", gotID, len(gotBody))
	}
	if err := NewWebhook(srv.URL+"/fail").OnOrderChanged(ctx, change(domain.OrderStatusActive)); err == nil {
		t.Error("502 response accepted")
	}
}
