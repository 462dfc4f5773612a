// Package inverter builds the counter-order that fills an existing order
// from the taker's side.
package inverter

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/codec"
	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/identity"
)

// FeeConfig is the taker's payout and fee configuration for the counter
// order. MaxFeesBasePoint is only used when inverting a V3 bid.
type FeeConfig struct {
	Payouts          []domain.Part
	OriginFees       []domain.Part
	MaxFeesBasePoint uint16
}

// Request describes one inversion.
type Request struct {
	NewMaker common.Address
	Amount   *big.Int
	NewSalt  *big.Int
	Fees     FeeConfig
	Now      time.Time
}

type invertFunc func(o *domain.Order, req Request) (*domain.Order, error)

var strategies = map[domain.OrderType]invertFunc{
	domain.OrderTypeRaribleV2: invertRaribleV2,
	domain.OrderTypeOpenSeaV1: invertOpenSea,
}

// Invert returns the counter-order of o. Protocols without a strategy fail
// with domain.ErrUnsupportedOperation.
func Invert(o *domain.Order, req Request) (*domain.Order, error) {
	fn, ok := strategies[o.Type]
	if !ok {
		return nil, fmt.Errorf("inverter: %w: invert %s order", domain.ErrUnsupportedOperation, o.Type)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("inverter: %w: amount must be positive", domain.ErrInvalidOrder)
	}
	if o.Make.Value == nil || o.Make.Value.Sign() == 0 || o.Take.Value == nil || o.Take.Value.Sign() == 0 {
		return nil, fmt.Errorf("inverter: %w: order %s has a zero side", domain.ErrInvalidOrder, o.Hash)
	}
	if req.NewSalt == nil {
		req.NewSalt = new(big.Int)
	}
	return fn(o, req)
}

// Amounts returns the make and take values of the counter-order for a fill
// of amount NFT units.
func Amounts(makeValue, takeValue, amount *big.Int, bid bool) (*big.Int, *big.Int) {
	if bid {
		return new(big.Int).Set(amount), new(big.Int).Quo(new(big.Int).Mul(amount, makeValue), takeValue)
	}
	return new(big.Int).Quo(new(big.Int).Mul(amount, takeValue), makeValue), new(big.Int).Set(amount)
}

// base swaps the sides of o for req.NewMaker. Hash and data are filled in by
// the protocol strategy.
func base(o *domain.Order, req Request) *domain.Order {
	makeValue, takeValue := Amounts(o.Make.Value, o.Take.Value, req.Amount, o.IsBid())
	c := o.Clone()
	prevMaker := o.Maker
	c.Maker = req.NewMaker
	c.Taker = &prevMaker
	makeType, takeType := c.Take.Type, c.Make.Type
	c.Make = domain.Asset{Type: makeType, Value: makeValue}
	c.Take = domain.Asset{Type: takeType, Value: takeValue}
	c.Salt = new(big.Int).Set(req.NewSalt)
	c.Fill = new(big.Int)
	c.MakeStock = new(big.Int)
	c.Cancelled = false
	c.Pending = nil
	c.Signature = nil
	c.PriceHistory = nil
	c.Version = 0
	c.CreatedAt = req.Now
	c.LastUpdateAt = req.Now
	return c
}

func invertRaribleV2(o *domain.Order, req Request) (*domain.Order, error) {
	data, err := counterData(o.Data, req.Fees)
	if err != nil {
		return nil, err
	}
	c := base(o, req)
	c.Data = data
	h, err := identity.HashKey(c.Maker, c.Make.Type, c.Take.Type, c.Salt, c.Data)
	if err != nil {
		return nil, fmt.Errorf("inverter: hash counter order: %w", err)
	}
	c.Hash = h
	return c, nil
}

func counterData(data domain.OrderData, fees FeeConfig) (domain.OrderData, error) {
	switch d := data.(type) {
	case domain.RaribleV2DataV1:
		return domain.RaribleV2DataV1{Payouts: fees.Payouts, OriginFees: fees.OriginFees}, nil
	case domain.RaribleV2DataV2:
		return domain.RaribleV2DataV2{Payouts: fees.Payouts, OriginFees: fees.OriginFees}, nil
	case domain.RaribleV2DataV3Sell:
		payout, first, second, err := v3Parts(fees)
		if err != nil {
			return nil, err
		}
		return domain.RaribleV2DataV3Buy{Payout: payout, OriginFeeFirst: first, OriginFeeSecond: second, MarketplaceMarker: d.MarketplaceMarker}, nil
	case domain.RaribleV2DataV3Buy:
		payout, first, second, err := v3Parts(fees)
		if err != nil {
			return nil, err
		}
		if fees.MaxFeesBasePoint == 0 {
			return nil, fmt.Errorf("inverter: %w: v3 sell needs max fees base point", domain.ErrInvalidOrder)
		}
		return domain.RaribleV2DataV3Sell{
			Payout: payout, OriginFeeFirst: first, OriginFeeSecond: second,
			MaxFeesBasePoint: fees.MaxFeesBasePoint, MarketplaceMarker: d.MarketplaceMarker,
		}, nil
	}
	return nil, fmt.Errorf("inverter: %w: rarible v2 order with %T data", domain.ErrUnsupportedOperation, data)
}

func v3Parts(fees FeeConfig) (payout, first, second *domain.Part, err error) {
	if len(fees.Payouts) > 1 || len(fees.OriginFees) > 2 {
		return nil, nil, nil, fmt.Errorf("inverter: %w: v3 data holds one payout and two origin fees", domain.ErrInvalidOrder)
	}
	if len(fees.Payouts) == 1 {
		payout = &fees.Payouts[0]
	}
	if len(fees.OriginFees) > 0 {
		first = &fees.OriginFees[0]
	}
	if len(fees.OriginFees) > 1 {
		second = &fees.OriginFees[1]
	}
	return payout, first, second, nil
}

func invertOpenSea(o *domain.Order, req Request) (*domain.Order, error) {
	d, ok := o.Data.(domain.OpenSeaV1Data)
	if !ok {
		return nil, fmt.Errorf("inverter: %w: opensea order with %T data", domain.ErrInvalidOrder, o.Data)
	}
	transfer, err := codec.DecodeTransfer(d.CallData)
	if err != nil {
		return nil, fmt.Errorf("inverter: decode call data of %s: %w", o.Hash, err)
	}

	switch d.Side {
	case domain.SideSell:
		transfer.From, transfer.To = common.Address{}, req.NewMaker
	default:
		transfer.From, transfer.To = req.NewMaker, common.Address{}
	}
	if transfer.Kind == codec.TransferERC1155 || transfer.Kind == codec.TransferMerkleERC1155 {
		transfer.Value = new(big.Int).Set(req.Amount)
	}
	counter, err := codec.EncodeTransfer(transfer)
	if err != nil {
		return nil, fmt.Errorf("inverter: encode counter call data: %w", err)
	}
	original := codec.CallData{Data: d.CallData, Pattern: d.ReplacementPattern}
	if !codec.Compatible(original, counter) {
		return nil, fmt.Errorf("inverter: %w: order %s", domain.ErrCallDataMismatch, o.Hash)
	}

	nd := d
	nd.FeeRecipient = common.Address{}
	nd.Side = d.Side.Flip()
	nd.CallData = counter.Data
	nd.ReplacementPattern = counter.Pattern

	c := base(o, req)
	c.Data = nd
	start := req.Now.Unix() - 1
	c.Start = &start
	c.End = nil
	h, err := identity.OpenSeaHash(c)
	if err != nil {
		return nil, fmt.Errorf("inverter: hash counter order: %w", err)
	}
	c.Hash = h
	return c, nil
}
