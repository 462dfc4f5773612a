package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

func openSeaAt(hash common.Hash, owner common.Address, nonce int64) *domain.Order {
	return &domain.Order{
		Hash:      hash,
		Maker:     owner,
		Make:      domain.Asset{Type: domain.ERC721(nft, big.NewInt(nonce)), Value: big.NewInt(1)},
		Take:      domain.Asset{Type: domain.ETH(), Value: big.NewInt(100)},
		Type:      domain.OrderTypeOpenSeaV1,
		Data:      domain.OpenSeaV1Data{Nonce: big.NewInt(nonce)},
		Salt:      big.NewInt(nonce),
		Fill:      new(big.Int),
		MakeStock: big.NewInt(1),
		Status:    domain.OrderStatusActive,
	}
}

func nonceEv(id string, owner common.Address, nonce int64, status domain.EventStatus) domain.HistoryEvent {
	return domain.HistoryEvent{
		ID:     id,
		Kind:   domain.EventKindNonceChanged,
		Status: status,
		Date:   t0,
		NonceChanged: &domain.NonceChangedEvent{
			Maker:    owner,
			Protocol: domain.OrderTypeOpenSeaV1,
			NewNonce: big.NewInt(nonce),
		},
	}
}

func TestNonceChangeCancelsBelowThreshold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	r := NewNonceReactor(h.orders, h.nonces, h.u, nil, 2, discard)
	h.u.SetNonceHandler(r)

	byNonce := map[int64]common.Hash{}
	for _, n := range []int64{3, 4, 5, 7} {
		hash := common.BigToHash(big.NewInt(0x100 + n))
		byNonce[n] = hash
		h.orders.put(openSeaAt(hash, maker, n))
	}
	other := common.HexToHash("0x999")
	h.orders.put(openSeaAt(other, maker2, 1))

	if err := h.u.OnLogEvents(ctx, []domain.HistoryEvent{nonceEv("n1", maker, 5, domain.EventStatusConfirmed)}); err != nil {
		t.Fatalf("nonce change: %v", err)
	}

	for n, hash := range byNonce {
		o := h.get(t, hash)
		want := n < 5
		if o.Cancelled != want {
			t.Errorf("nonce %d: got cancelled=%v, want %v", n, o.Cancelled, want)
		}
		if want && o.Status != domain.OrderStatusCancelled {
			t.Errorf("nonce %d: got status %s", n, o.Status)
		}
	}
	if h.get(t, other).Cancelled {
		t.Error("another maker's order was cancelled")
	}
	if got, err := h.nonces.Get(ctx, maker, domain.OrderTypeOpenSeaV1); err != nil || got.Int64() != 5 {
		t.Errorf("got stored nonce %v (%v), want 5", got, err)
	}
}

func TestNonceChangeRejectsZero(t *testing.T) {
	h := newHarness(t, nil)
	r := NewNonceReactor(h.orders, h.nonces, h.u, nil, 2, discard)
	err := r.OnNonceChanged(context.Background(), nonceEv("n0", maker, 0, domain.EventStatusConfirmed))
	if !errors.Is(err, domain.ErrInvalidNonce) {
		t.Errorf("got %v, want ErrInvalidNonce", err)
	}
}

func TestNonceChangeIgnoresPending(t *testing.T) {
	h := newHarness(t, nil)
	r := NewNonceReactor(h.orders, h.nonces, h.u, nil, 2, discard)
	hash := common.HexToHash("0x103")
	h.orders.put(openSeaAt(hash, maker, 3))

	if err := r.OnNonceChanged(context.Background(), nonceEv("n1", maker, 5, domain.EventStatusPending)); err != nil {
		t.Fatalf("pending nonce: %v", err)
	}
	if h.get(t, hash).Cancelled {
		t.Error("pending nonce change cancelled an order")
	}
}

type flakyCanceller struct {
	inner Canceller
	fail  map[common.Hash]bool
}

func (f *flakyCanceller) Cancel(ctx context.Context, hash common.Hash) (*domain.Order, error) {
	if f.fail[hash] {
		return nil, errors.New("store timeout")
	}
	return f.inner.Cancel(ctx, hash)
}

func TestNonceChangePartialFailure(t *testing.T) {
	h := newHarness(t, nil)
	bad := common.HexToHash("0x201")
	good := common.HexToHash("0x202")
	h.orders.put(openSeaAt(bad, maker, 1))
	h.orders.put(openSeaAt(good, maker, 2))
	c := &flakyCanceller{inner: h.u, fail: map[common.Hash]bool{bad: true}}
	r := NewNonceReactor(h.orders, h.nonces, c, nil, 2, discard)

	err := r.OnNonceChanged(context.Background(), nonceEv("n1", maker, 5, domain.EventStatusConfirmed))
	if err == nil {
		t.Fatal("expected the failed cancellation to be reported")
	}
	if !h.get(t, good).Cancelled {
		t.Error("healthy order was not cancelled")
	}
	if h.get(t, bad).Cancelled {
		t.Error("failing order reported as cancelled")
	}
}
