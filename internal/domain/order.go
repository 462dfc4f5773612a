package domain

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// OrderType enumerates the supported exchange protocols.
type OrderType string

const (
	OrderTypeRaribleV1   OrderType = "RARIBLE_V1"
	OrderTypeRaribleV2   OrderType = "RARIBLE_V2"
	OrderTypeOpenSeaV1   OrderType = "OPEN_SEA_V1"
	OrderTypeSeaportV1   OrderType = "SEAPORT_V1"
	OrderTypeLooksRare   OrderType = "LOOKSRARE"
	OrderTypeCryptoPunks OrderType = "CRYPTO_PUNKS"
	OrderTypeX2Y2        OrderType = "X2Y2"
)

// AllOrNothing reports whether the protocol can only be filled in full, so
// a partial balance gives zero stock.
func (t OrderType) AllOrNothing() bool {
	switch t {
	case OrderTypeOpenSeaV1, OrderTypeSeaportV1, OrderTypeLooksRare, OrderTypeX2Y2:
		return true
	}
	return false
}

// OrderStatus is derived from the order's state and the clock.
type OrderStatus string

const (
	OrderStatusNotStarted OrderStatus = "NOT_STARTED"
	OrderStatusActive     OrderStatus = "ACTIVE"
	OrderStatusFilled     OrderStatus = "FILLED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusInactive   OrderStatus = "INACTIVE"
	OrderStatusEnded      OrderStatus = "ENDED"
)

// ExpandStatus maps the client-facing INACTIVE alias onto the stored
// statuses it stands for.
func ExpandStatus(s OrderStatus) []OrderStatus {
	if s == OrderStatusInactive {
		return []OrderStatus{OrderStatusEnded, OrderStatusNotStarted}
	}
	return []OrderStatus{s}
}

// MaxPriceHistory bounds Order.PriceHistory.
const MaxPriceHistory = 20

// PricePoint records the make/take values of one order version.
type PricePoint struct {
	Date      time.Time `json:"date"`
	MakeValue *big.Int  `json:"makeValue"`
	TakeValue *big.Int  `json:"takeValue"`
}

// Order is the canonical aggregate. Hash never changes after creation and
// Version is the optimistic-lock marker maintained by the store.
type Order struct {
	Hash         common.Hash      `json:"hash"`
	Maker        common.Address   `json:"maker"`
	Taker        *common.Address  `json:"taker,omitempty"`
	Make         Asset            `json:"make"`
	Take         Asset            `json:"take"`
	Type         OrderType        `json:"type"`
	Data         OrderData        `json:"-"`
	Salt         *big.Int         `json:"salt"`
	Start        *int64           `json:"start,omitempty"`
	End          *int64           `json:"end,omitempty"`
	Signature    hexutil.Bytes    `json:"signature,omitempty"`
	Fill         *big.Int         `json:"fill"`
	MakeStock    *big.Int         `json:"makeStock"`
	Approved     *bool            `json:"approved,omitempty"`
	Cancelled    bool             `json:"cancelled"`
	Pending      []HistoryEvent   `json:"pending"`
	Status       OrderStatus      `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastUpdateAt time.Time        `json:"lastUpdateAt"`
	PriceHistory []PricePoint     `json:"priceHistory"`
	MakePrice    *decimal.Decimal `json:"makePrice,omitempty"`
	TakePrice    *decimal.Decimal `json:"takePrice,omitempty"`
	MakePriceUSD *decimal.Decimal `json:"makePriceUsd,omitempty"`
	TakePriceUSD *decimal.Decimal `json:"takePriceUsd,omitempty"`
	Version      int64            `json:"version"`
}

// IsSell is true when the maker offers an NFT.
func (o *Order) IsSell() bool { return o.Make.Type.IsNFT() }

// IsBid is true when the maker asks for an NFT.
func (o *Order) IsBid() bool { return o.Take.Type.IsNFT() }

// IsMakeFill reports whether Fill counts make units.
func (o *Order) IsMakeFill() bool { return IsMakeFill(o.Data, o.IsSell()) }

// Clone returns a copy that shares no mutable big.Int or slice state.
func (o *Order) Clone() *Order {
	c := *o
	c.Make = cloneAsset(o.Make)
	c.Take = cloneAsset(o.Take)
	c.Salt = cloneInt(o.Salt)
	c.Fill = cloneInt(o.Fill)
	c.MakeStock = cloneInt(o.MakeStock)
	if o.Taker != nil {
		t := *o.Taker
		c.Taker = &t
	}
	c.Start = cloneInt64(o.Start)
	c.End = cloneInt64(o.End)
	c.Signature = append(hexutil.Bytes(nil), o.Signature...)
	c.Pending = append([]HistoryEvent(nil), o.Pending...)
	c.PriceHistory = append([]PricePoint(nil), o.PriceHistory...)
	return &c
}

// WithPriceHistory appends the current make/take values to the history when
// they differ from the last record, keeping the newest MaxPriceHistory.
func (o *Order) WithPriceHistory(at time.Time) {
	if n := len(o.PriceHistory); n > 0 {
		last := o.PriceHistory[n-1]
		if last.MakeValue.Cmp(o.Make.Value) == 0 && last.TakeValue.Cmp(o.Take.Value) == 0 {
			return
		}
	}
	o.PriceHistory = append(o.PriceHistory, PricePoint{
		Date:      at,
		MakeValue: cloneInt(o.Make.Value),
		TakeValue: cloneInt(o.Take.Value),
	})
	if n := len(o.PriceHistory); n > MaxPriceHistory {
		o.PriceHistory = o.PriceHistory[n-MaxPriceHistory:]
	}
}

type orderAlias Order

// MarshalJSON writes Data through its kind envelope.
func (o Order) MarshalJSON() ([]byte, error) {
	data, err := MarshalOrderData(o.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		orderAlias
		Data json.RawMessage `json:"data"`
	}{orderAlias(o), data})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (o *Order) UnmarshalJSON(b []byte) error {
	aux := struct {
		*orderAlias
		Data json.RawMessage `json:"data"`
	}{orderAlias: (*orderAlias)(o)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		o.Data = nil
		return nil
	}
	data, err := UnmarshalOrderData(aux.Data)
	if err != nil {
		return err
	}
	o.Data = data
	return nil
}

// DeriveStatus computes the status from the order's state at now.
func DeriveStatus(o *Order, now time.Time) OrderStatus {
	switch {
	case o.Cancelled:
		return OrderStatusCancelled
	case isZero(o.MakeStock) && o.Make.Value != nil && o.Make.Value.Sign() > 0:
		return OrderStatusFilled
	case o.Start != nil && now.Unix() < *o.Start:
		return OrderStatusNotStarted
	case o.End != nil && *o.End > 0 && now.Unix() > *o.End:
		return OrderStatusEnded
	default:
		return OrderStatusActive
	}
}

// Remaining returns the unfilled make amount.
func Remaining(o *Order) *big.Int {
	if o.Cancelled {
		return new(big.Int)
	}
	makeValue, takeValue := o.Make.Value, o.Take.Value
	if isZero(makeValue) || isZero(takeValue) {
		return new(big.Int)
	}
	fill := o.Fill
	if fill == nil {
		fill = new(big.Int)
	}
	if o.IsMakeFill() {
		return subFloor(makeValue, fill)
	}
	rest := subFloor(takeValue, fill)
	rest.Mul(rest, makeValue)
	return rest.Quo(rest, takeValue)
}

// ComputeMakeStock bounds the remaining make amount by the maker's balance.
// The balance is first reduced by make-side fees and rounded down to a whole
// take unit; all-or-nothing protocols get zero when the balance falls short.
// A maker known not to have approved the transfer proxy has no stock; an
// unchecked approval (nil) does not limit it.
func ComputeMakeStock(o *Order, balance *big.Int, protocolCommission int) *big.Int {
	makeValue, takeValue := o.Make.Value, o.Take.Value
	if isZero(makeValue) || isZero(takeValue) {
		return new(big.Int)
	}
	if o.Approved != nil && !*o.Approved {
		return new(big.Int)
	}
	if balance == nil {
		balance = new(big.Int)
	}
	remaining := Remaining(o)

	adjusted := new(big.Int).Set(balance)
	if FeeSideOf(o.Make.Type, o.Take.Type) == FeeSideMake {
		fee := feeBasisPoints(o, protocolCommission)
		adjusted.Mul(adjusted, big.NewInt(MaxBasisPoints))
		adjusted.Quo(adjusted, big.NewInt(int64(MaxBasisPoints+fee)))
	}

	rounded := new(big.Int).Mul(adjusted, takeValue)
	rounded.Quo(rounded, makeValue)
	rounded.Mul(rounded, makeValue)
	rounded.Quo(rounded, takeValue)

	if o.Type.AllOrNothing() && remaining.Cmp(rounded) > 0 {
		return new(big.Int)
	}
	if remaining.Cmp(rounded) < 0 {
		return remaining
	}
	return rounded
}

func feeBasisPoints(o *Order, protocolCommission int) int {
	switch o.Data.(type) {
	case RaribleV2DataV1, RaribleV2DataV2, RaribleV2DataV3Sell, RaribleV2DataV3Buy:
		return protocolCommission + TotalBasisPoints(OriginFees(o.Data))
	}
	return 0
}

func subFloor(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(a, b)
}

func isZero(v *big.Int) bool { return v == nil || v.Sign() == 0 }

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

func cloneAsset(a Asset) Asset {
	a.Value = cloneInt(a.Value)
	a.Type.TokenID = cloneInt(a.Type.TokenID)
	return a
}
