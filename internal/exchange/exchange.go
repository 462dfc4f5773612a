// Package exchange encodes the exchange contract calls a taker or maker
// submits to fill or cancel an indexed order.
package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/crypto"
	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/ethabi"
	"github.com/alanyoungcy/orderindexer/internal/identity"
)

var assetComponents = []abi.ArgumentMarshaling{
	{Name: "assetType", Type: "tuple", Components: []abi.ArgumentMarshaling{
		{Name: "assetClass", Type: "bytes4"},
		{Name: "data", Type: "bytes"},
	}},
	{Name: "value", Type: "uint256"},
}

// OrderTuple is the LibOrder.Order ABI type of the Rarible V2 exchange.
var OrderTuple = ethabi.MustType("tuple", []abi.ArgumentMarshaling{
	{Name: "maker", Type: "address"},
	{Name: "makeAsset", Type: "tuple", Components: assetComponents},
	{Name: "taker", Type: "address"},
	{Name: "takeAsset", Type: "tuple", Components: assetComponents},
	{Name: "salt", Type: "uint256"},
	{Name: "start", Type: "uint256"},
	{Name: "end", Type: "uint256"},
	{Name: "dataType", Type: "bytes4"},
	{Name: "data", Type: "bytes"},
})

var (
	matchOrders = ethabi.NewMethod("matchOrders("+OrderTuple.String()+",bytes,"+OrderTuple.String()+",bytes)",
		OrderTuple, ethabi.Bytes, OrderTuple, ethabi.Bytes)
	cancelOrder = ethabi.NewMethod("cancel("+OrderTuple.String()+")", OrderTuple)

	atomicMatch = ethabi.NewMethod("atomicMatch_(address[14],uint256[18],uint8[8],bytes,bytes,bytes,bytes,bytes,bytes,uint8[2],bytes32[5])",
		ethabi.MustType("address[14]", nil), ethabi.MustType("uint256[18]", nil), ethabi.MustType("uint8[8]", nil),
		ethabi.Bytes, ethabi.Bytes, ethabi.Bytes, ethabi.Bytes, ethabi.Bytes, ethabi.Bytes,
		ethabi.MustType("uint8[2]", nil), ethabi.MustType("bytes32[5]", nil))

	buyPunk             = ethabi.NewMethod("buyPunk(uint256)", ethabi.Uint256)
	acceptBidForPunk    = ethabi.NewMethod("acceptBidForPunk(uint256,uint256)", ethabi.Uint256, ethabi.Uint256)
	punkNoLongerForSale = ethabi.NewMethod("punkNoLongerForSale(uint256)", ethabi.Uint256)
	withdrawBidForPunk  = ethabi.NewMethod("withdrawBidForPunk(uint256)", ethabi.Uint256)
)

type abiAssetType struct {
	AssetClass [4]byte `abi:"assetClass"`
	Data       []byte  `abi:"data"`
}

type abiAsset struct {
	AssetType abiAssetType `abi:"assetType"`
	Value     *big.Int     `abi:"value"`
}

type abiOrder struct {
	Maker     common.Address `abi:"maker"`
	MakeAsset abiAsset       `abi:"makeAsset"`
	Taker     common.Address `abi:"taker"`
	TakeAsset abiAsset       `abi:"takeAsset"`
	Salt      *big.Int       `abi:"salt"`
	Start     *big.Int       `abi:"start"`
	End       *big.Int       `abi:"end"`
	DataType  [4]byte        `abi:"dataType"`
	Data      []byte         `abi:"data"`
}

func toABIAsset(a domain.Asset) (abiAsset, error) {
	data, err := identity.AssetData(a.Type)
	if err != nil {
		return abiAsset{}, err
	}
	return abiAsset{
		AssetType: abiAssetType{AssetClass: identity.ClassID(a.Type.Class), Data: data},
		Value:     orZero(a.Value),
	}, nil
}

func toABIOrder(o *domain.Order) (abiOrder, error) {
	makeAsset, err := toABIAsset(o.Make)
	if err != nil {
		return abiOrder{}, fmt.Errorf("exchange: make asset: %w", err)
	}
	takeAsset, err := toABIAsset(o.Take)
	if err != nil {
		return abiOrder{}, fmt.Errorf("exchange: take asset: %w", err)
	}
	dataType, err := identity.DataType(o.Data)
	if err != nil {
		return abiOrder{}, fmt.Errorf("exchange: data type: %w", err)
	}
	data, err := identity.EncodeData(o.Data)
	if err != nil {
		return abiOrder{}, fmt.Errorf("exchange: order data: %w", err)
	}
	var taker common.Address
	if o.Taker != nil {
		taker = *o.Taker
	}
	return abiOrder{
		Maker:     o.Maker,
		MakeAsset: makeAsset,
		Taker:     taker,
		TakeAsset: takeAsset,
		Salt:      orZero(o.Salt),
		Start:     unix(o.Start),
		End:       unix(o.End),
		DataType:  dataType,
		Data:      data,
	}, nil
}

// MatchOrders encodes matchOrders(left, leftSig, right, rightSig). The
// right order is the taker's counter-order and goes unsigned, msg.sender
// being its maker.
func MatchOrders(left *domain.Order, right *domain.Order) ([]byte, error) {
	l, err := toABIOrder(left)
	if err != nil {
		return nil, err
	}
	r, err := toABIOrder(right)
	if err != nil {
		return nil, err
	}
	sig := []byte(left.Signature)
	if sig == nil {
		sig = []byte{}
	}
	return matchOrders.Encode(l, sig, r, []byte{})
}

// CancelOrder encodes the maker's cancel(order) call.
func CancelOrder(o *domain.Order) ([]byte, error) {
	v, err := toABIOrder(o)
	if err != nil {
		return nil, err
	}
	return cancelOrder.Encode(v)
}

// AtomicMatch encodes the Wyvern atomicMatch_ call for a buy and a sell
// order. Unsigned orders (the caller's own) are passed with zero v, r, s.
func AtomicMatch(buy, sell *domain.Order) ([]byte, error) {
	b, err := wyvernOf(buy)
	if err != nil {
		return nil, fmt.Errorf("exchange: buy order: %w", err)
	}
	s, err := wyvernOf(sell)
	if err != nil {
		return nil, fmt.Errorf("exchange: sell order: %w", err)
	}
	addrs := [14]common.Address{
		b.data.Exchange, buy.Maker, takerOf(buy), b.data.FeeRecipient, b.target, b.data.StaticTarget, b.payment.Type.Contract,
		s.data.Exchange, sell.Maker, takerOf(sell), s.data.FeeRecipient, s.target, s.data.StaticTarget, s.payment.Type.Contract,
	}
	var uints [18]*big.Int
	copy(uints[:9], b.uints(buy))
	copy(uints[9:], s.uints(sell))
	kinds := [8]uint8{
		uint8(b.data.FeeMethod), uint8(b.data.Side), uint8(b.data.SaleKind), uint8(b.data.HowToCall),
		uint8(s.data.FeeMethod), uint8(s.data.Side), uint8(s.data.SaleKind), uint8(s.data.HowToCall),
	}
	vs := [2]uint8{b.v, s.v}
	rss := [5][32]byte{b.r, b.s, s.r, s.s, {}}
	return atomicMatch.Encode(addrs, uints, kinds,
		bytesOrEmpty(b.data.CallData), bytesOrEmpty(s.data.CallData),
		bytesOrEmpty(b.data.ReplacementPattern), bytesOrEmpty(s.data.ReplacementPattern),
		bytesOrEmpty(b.data.StaticExtraData), bytesOrEmpty(s.data.StaticExtraData),
		vs, rss)
}

type wyvernOrder struct {
	data    domain.OpenSeaV1Data
	target  common.Address
	payment domain.Asset
	v       uint8
	r, s    [32]byte
}

func wyvernOf(o *domain.Order) (wyvernOrder, error) {
	d, ok := o.Data.(domain.OpenSeaV1Data)
	if !ok {
		return wyvernOrder{}, fmt.Errorf("%w: %s order with %T data", domain.ErrInvalidOrder, o.Type, o.Data)
	}
	nft, payment, err := identity.NFTAndPayment(o)
	if err != nil {
		return wyvernOrder{}, err
	}
	w := wyvernOrder{data: d, target: nft.Contract, payment: payment}
	if d.Target != nil {
		w.target = *d.Target
	}
	if len(o.Signature) > 0 {
		sig, err := crypto.NormalizeSignature(o.Signature)
		if err != nil {
			return wyvernOrder{}, err
		}
		copy(w.r[:], sig[:32])
		copy(w.s[:], sig[32:64])
		w.v = sig[64]
	}
	return w, nil
}

func (w wyvernOrder) uints(o *domain.Order) []*big.Int {
	return []*big.Int{
		orZero(w.data.MakerRelayerFee), orZero(w.data.TakerRelayerFee),
		orZero(w.data.MakerProtocolFee), orZero(w.data.TakerProtocolFee),
		orZero(w.payment.Value), orZero(w.data.Extra),
		unix(o.Start), unix(o.End), orZero(o.Salt),
	}
}

// BuyPunk encodes buyPunk(punkIndex).
func BuyPunk(punk *big.Int) ([]byte, error) { return buyPunk.Encode(orZero(punk)) }

// AcceptBidForPunk encodes acceptBidForPunk(punkIndex, minPrice).
func AcceptBidForPunk(punk, minPrice *big.Int) ([]byte, error) {
	return acceptBidForPunk.Encode(orZero(punk), orZero(minPrice))
}

// PunkNoLongerForSale encodes punkNoLongerForSale(punkIndex).
func PunkNoLongerForSale(punk *big.Int) ([]byte, error) {
	return punkNoLongerForSale.Encode(orZero(punk))
}

// WithdrawBidForPunk encodes withdrawBidForPunk(punkIndex).
func WithdrawBidForPunk(punk *big.Int) ([]byte, error) {
	return withdrawBidForPunk.Encode(orZero(punk))
}

func takerOf(o *domain.Order) common.Address {
	if o.Taker == nil {
		return common.Address{}
	}
	return *o.Taker
}

func bytesOrEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func unix(v *int64) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return big.NewInt(*v)
}
