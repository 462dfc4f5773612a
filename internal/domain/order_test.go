package domain

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func ptr64(v int64) *int64 { return &v }

func boolPtr(b bool) *bool { return &b }

func sellOrder(typ OrderType, data OrderData) *Order {
	return &Order{
		Maker: common.HexToAddress("0x01"),
		Make:  Asset{Type: ERC1155(testToken, big.NewInt(1)), Value: big.NewInt(10)},
		Take:  Asset{Type: ERC20(testERC20), Value: big.NewInt(100)},
		Type:  typ,
		Data:  data,
		Salt:  big.NewInt(1),
		Fill:  new(big.Int),
	}
}

func TestDeriveStatus(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name   string
		mutate func(*Order)
		want   OrderStatus
	}{
		{"active", func(o *Order) {}, OrderStatusActive},
		{"cancelled wins over stock", func(o *Order) { o.Cancelled = true }, OrderStatusCancelled},
		{"filled when stock is zero", func(o *Order) { o.MakeStock = new(big.Int) }, OrderStatusFilled},
		{"not started", func(o *Order) { o.Start = ptr64(now.Unix() + 60) }, OrderStatusNotStarted},
		{"ended", func(o *Order) { o.End = ptr64(now.Unix() - 60) }, OrderStatusEnded},
		{"zero end means open", func(o *Order) { o.End = ptr64(0) }, OrderStatusActive},
		{"cancelled and ended", func(o *Order) {
			o.Cancelled = true
			o.End = ptr64(now.Unix() - 60)
		}, OrderStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := sellOrder(OrderTypeRaribleV2, RaribleV2DataV1{})
			o.MakeStock = big.NewInt(5)
			tt.mutate(o)
			if got := DeriveStatus(o, now); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeMakeStockScenarios(t *testing.T) {
	o := sellOrder(OrderTypeRaribleV2, RaribleV2DataV1{})

	o.Fill = big.NewInt(4)
	if got := ComputeMakeStock(o, big.NewInt(6), 0); got.Int64() != 6 {
		t.Errorf("after partial fill: got stock %s, want 6", got)
	}

	o.Fill = big.NewInt(10)
	if got := ComputeMakeStock(o, big.NewInt(0), 0); got.Sign() != 0 {
		t.Errorf("after full fill: got stock %s, want 0", got)
	}
}

func TestComputeMakeStockApproval(t *testing.T) {
	o := sellOrder(OrderTypeRaribleV2, RaribleV2DataV1{})
	for _, tt := range []struct {
		name     string
		approved *bool
		want     int64
	}{
		{"unchecked", nil, 6},
		{"approved", boolPtr(true), 6},
		{"not approved", boolPtr(false), 0},
	} {
		o.Approved = tt.approved
		if got := ComputeMakeStock(o, big.NewInt(6), 0); got.Int64() != tt.want {
			t.Errorf("%s: got stock %s, want %d", tt.name, got, tt.want)
		}
	}
}

func TestComputeMakeStockAllOrNothing(t *testing.T) {
	rarible := sellOrder(OrderTypeRaribleV2, RaribleV2DataV1{})
	if got := ComputeMakeStock(rarible, big.NewInt(6), 0); got.Int64() != 6 {
		t.Errorf("rarible partial balance: got %s, want 6", got)
	}
	opensea := sellOrder(OrderTypeOpenSeaV1, OpenSeaV1Data{})
	if got := ComputeMakeStock(opensea, big.NewInt(6), 0); got.Sign() != 0 {
		t.Errorf("opensea partial balance: got %s, want 0", got)
	}
	if got := ComputeMakeStock(opensea, big.NewInt(10), 0); got.Int64() != 10 {
		t.Errorf("opensea full balance: got %s, want 10", got)
	}
}

func TestComputeMakeStockMakeSideFees(t *testing.T) {
	fee := Part{Account: common.HexToAddress("0xfe"), Value: 250}
	bid := &Order{
		Maker: common.HexToAddress("0x02"),
		Make:  Asset{Type: ETH(), Value: big.NewInt(1000)},
		Take:  Asset{Type: ERC721(testToken, big.NewInt(9)), Value: big.NewInt(1)},
		Type:  OrderTypeRaribleV2,
		Data:  RaribleV2DataV1{OriginFees: []Part{fee}},
		Fill:  new(big.Int),
	}
	if got := ComputeMakeStock(bid, big.NewInt(1025), 0); got.Int64() != 1000 {
		t.Errorf("balance covering fee: got %s, want 1000", got)
	}
	if got := ComputeMakeStock(bid, big.NewInt(1000), 0); got.Sign() != 0 {
		t.Errorf("balance short of fee: got %s, want 0", got)
	}
	if got := ComputeMakeStock(bid, big.NewInt(1025), 100); got.Sign() != 0 {
		t.Errorf("protocol commission not applied: got %s", got)
	}
}

func TestRemainingMakeFill(t *testing.T) {
	o := sellOrder(OrderTypeRaribleV2, RaribleV2DataV2{IsMakeFill: true})
	o.Fill = big.NewInt(3)
	if got := Remaining(o); got.Int64() != 7 {
		t.Errorf("make-fill remaining: got %s, want 7", got)
	}
	o.Data = RaribleV2DataV2{}
	o.Fill = big.NewInt(30)
	if got := Remaining(o); got.Int64() != 7 {
		t.Errorf("take-fill remaining: got %s, want 7", got)
	}
	o.Cancelled = true
	if got := Remaining(o); got.Sign() != 0 {
		t.Errorf("cancelled remaining: got %s, want 0", got)
	}
}

func TestWithPriceHistoryBounded(t *testing.T) {
	o := sellOrder(OrderTypeRaribleV2, RaribleV2DataV1{})
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < MaxPriceHistory+5; i++ {
		o.Take.Value = big.NewInt(int64(100 + i))
		o.WithPriceHistory(start.Add(time.Duration(i) * time.Minute))
	}
	if len(o.PriceHistory) != MaxPriceHistory {
		t.Fatalf("got %d records, want %d", len(o.PriceHistory), MaxPriceHistory)
	}
	if last := o.PriceHistory[MaxPriceHistory-1]; last.TakeValue.Int64() != int64(100+MaxPriceHistory+4) {
		t.Errorf("got last take %s", last.TakeValue)
	}
	o.WithPriceHistory(start.Add(time.Hour))
	if len(o.PriceHistory) != MaxPriceHistory {
		t.Error("unchanged values appended a record")
	}
}

func TestCounterValid(t *testing.T) {
	tests := []struct {
		name    string
		data    OrderData
		current int64
		want    bool
	}{
		{"opensea equal", OpenSeaV1Data{Nonce: big.NewInt(3)}, 3, true},
		{"opensea stale", OpenSeaV1Data{Nonce: big.NewInt(2)}, 3, false},
		{"seaport ahead", SeaportData{Counter: big.NewInt(4)}, 3, false},
		{"looksrare ahead", LooksRareData{Counter: big.NewInt(4)}, 3, true},
		{"looksrare stale", LooksRareData{Counter: big.NewInt(2)}, 3, false},
		{"no counter", RaribleV2DataV1{}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CounterValid(tt.data, big.NewInt(tt.current)); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderJSONCarriesDataKind(t *testing.T) {
	o := sellOrder(OrderTypeRaribleV2, RaribleV2DataV2{IsMakeFill: true, OriginFees: []Part{{Account: testERC20, Value: 100}}})
	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Order
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, ok := back.Data.(RaribleV2DataV2)
	if !ok {
		t.Fatalf("got data %T, want RaribleV2DataV2", back.Data)
	}
	if !data.IsMakeFill || len(data.OriginFees) != 1 || data.OriginFees[0].Value != 100 {
		t.Errorf("got data %+v", data)
	}

	if _, err := UnmarshalOrderData([]byte(`{"kind":"NOPE","body":{}}`)); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("unknown kind: got %v, want ErrInvalidOrder", err)
	}
}
