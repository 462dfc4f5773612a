package domain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// OrderDataKind tags the OrderData variant.
type OrderDataKind string

const (
	DataLegacy          OrderDataKind = "LEGACY"
	DataRaribleV2V1     OrderDataKind = "RARIBLE_V2_DATA_V1"
	DataRaribleV2V2     OrderDataKind = "RARIBLE_V2_DATA_V2"
	DataRaribleV2V3Sell OrderDataKind = "RARIBLE_V2_DATA_V3_SELL"
	DataRaribleV2V3Buy  OrderDataKind = "RARIBLE_V2_DATA_V3_BUY"
	DataOpenSeaV1       OrderDataKind = "OPEN_SEA_V1_DATA_V1"
	DataSeaport         OrderDataKind = "BASIC_SEAPORT_DATA_V1"
	DataCryptoPunks     OrderDataKind = "CRYPTO_PUNKS_DATA"
	DataLooksRare       OrderDataKind = "LOOKSRARE_DATA_V1"
	DataX2Y2            OrderDataKind = "X2Y2_DATA_V1"
)

// OrderData is the protocol-specific part of an order. Implementations are
// the value types in this file.
type OrderData interface {
	Kind() OrderDataKind
}

// LegacyData belongs to Rarible V1 orders.
type LegacyData struct {
	Fee uint16 `json:"fee"`
}

// RaribleV2DataV1 carries payouts and origin fees.
type RaribleV2DataV1 struct {
	Payouts    []Part `json:"payouts"`
	OriginFees []Part `json:"originFees"`
}

// RaribleV2DataV2 adds the make-fill flag.
type RaribleV2DataV2 struct {
	Payouts    []Part `json:"payouts"`
	OriginFees []Part `json:"originFees"`
	IsMakeFill bool   `json:"isMakeFill"`
}

// RaribleV2DataV3Sell caps total fees and always fills by make.
type RaribleV2DataV3Sell struct {
	Payout            *Part        `json:"payout,omitempty"`
	OriginFeeFirst    *Part        `json:"originFeeFirst,omitempty"`
	OriginFeeSecond   *Part        `json:"originFeeSecond,omitempty"`
	MaxFeesBasePoint  uint16       `json:"maxFeesBasePoint"`
	MarketplaceMarker *common.Hash `json:"marketplaceMarker,omitempty"`
}

// RaribleV2DataV3Buy is the bid-side V3 data.
type RaribleV2DataV3Buy struct {
	Payout            *Part        `json:"payout,omitempty"`
	OriginFeeFirst    *Part        `json:"originFeeFirst,omitempty"`
	OriginFeeSecond   *Part        `json:"originFeeSecond,omitempty"`
	MarketplaceMarker *common.Hash `json:"marketplaceMarker,omitempty"`
}

// OpenSeaFeeMethod is the Wyvern fee method enumeration.
type OpenSeaFeeMethod uint8

const (
	FeeMethodProtocolFee OpenSeaFeeMethod = iota
	FeeMethodSplitFee
)

// OpenSeaSide is the Wyvern order side.
type OpenSeaSide uint8

const (
	SideBuy OpenSeaSide = iota
	SideSell
)

// Flip returns the opposite side.
func (s OpenSeaSide) Flip() OpenSeaSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OpenSeaSaleKind is the Wyvern sale kind.
type OpenSeaSaleKind uint8

const (
	SaleKindFixedPrice OpenSeaSaleKind = iota
	SaleKindDutchAuction
)

// OpenSeaHowToCall is the Wyvern proxy call mode.
type OpenSeaHowToCall uint8

const (
	HowToCallCall OpenSeaHowToCall = iota
	HowToCallDelegateCall
)

// OpenSeaV1Data is the Wyvern order payload. CallData and
// ReplacementPattern are kept verbatim from the source order.
type OpenSeaV1Data struct {
	Exchange           common.Address   `json:"exchange"`
	MakerRelayerFee    *big.Int         `json:"makerRelayerFee"`
	TakerRelayerFee    *big.Int         `json:"takerRelayerFee"`
	MakerProtocolFee   *big.Int         `json:"makerProtocolFee"`
	TakerProtocolFee   *big.Int         `json:"takerProtocolFee"`
	FeeRecipient       common.Address   `json:"feeRecipient"`
	FeeMethod          OpenSeaFeeMethod `json:"feeMethod"`
	Side               OpenSeaSide      `json:"side"`
	SaleKind           OpenSeaSaleKind  `json:"saleKind"`
	HowToCall          OpenSeaHowToCall `json:"howToCall"`
	CallData           hexutil.Bytes    `json:"callData"`
	ReplacementPattern hexutil.Bytes    `json:"replacementPattern"`
	StaticTarget       common.Address   `json:"staticTarget"`
	StaticExtraData    hexutil.Bytes    `json:"staticExtraData"`
	Extra              *big.Int         `json:"extra"`
	Target             *common.Address  `json:"target,omitempty"`
	Nonce              *big.Int         `json:"nonce,omitempty"`
}

// SeaportOffer is one offered item of a Seaport order.
type SeaportOffer struct {
	ItemType    uint8          `json:"itemType"`
	Token       common.Address `json:"token"`
	Identifier  *big.Int       `json:"identifierOrCriteria"`
	StartAmount *big.Int       `json:"startAmount"`
	EndAmount   *big.Int       `json:"endAmount"`
}

// SeaportConsideration is one consideration item of a Seaport order.
type SeaportConsideration struct {
	ItemType    uint8          `json:"itemType"`
	Token       common.Address `json:"token"`
	Identifier  *big.Int       `json:"identifierOrCriteria"`
	StartAmount *big.Int       `json:"startAmount"`
	EndAmount   *big.Int       `json:"endAmount"`
	Recipient   common.Address `json:"recipient"`
}

// SeaportData is the Seaport OrderComponents payload minus the fields that
// live on Order itself (offerer, salt, start, end).
type SeaportData struct {
	Protocol      common.Address         `json:"protocol"`
	OrderType     uint8                  `json:"orderType"`
	Offer         []SeaportOffer         `json:"offer"`
	Consideration []SeaportConsideration `json:"consideration"`
	Zone          common.Address         `json:"zone"`
	ZoneHash      common.Hash            `json:"zoneHash"`
	ConduitKey    common.Hash            `json:"conduitKey"`
	Counter       *big.Int               `json:"counter"`
}

// CryptoPunksData has no fields; punk orders are fully described by their
// assets.
type CryptoPunksData struct{}

// LooksRareData is the LooksRare V1 maker order payload.
type LooksRareData struct {
	Strategy           common.Address `json:"strategy"`
	Params             hexutil.Bytes  `json:"params"`
	MinPercentageToAsk uint16         `json:"minPercentageToAsk"`
	Counter            *big.Int       `json:"counter"`
}

// X2Y2Data is the X2Y2 order payload.
type X2Y2Data struct {
	ItemHash          common.Hash `json:"itemHash"`
	OrderID           *big.Int    `json:"orderId"`
	IsBundle          bool        `json:"isBundle"`
	IsCollectionOffer bool        `json:"isCollectionOffer"`
	Side              int         `json:"side"`
}

func (LegacyData) Kind() OrderDataKind          { return DataLegacy }
func (RaribleV2DataV1) Kind() OrderDataKind     { return DataRaribleV2V1 }
func (RaribleV2DataV2) Kind() OrderDataKind     { return DataRaribleV2V2 }
func (RaribleV2DataV3Sell) Kind() OrderDataKind { return DataRaribleV2V3Sell }
func (RaribleV2DataV3Buy) Kind() OrderDataKind  { return DataRaribleV2V3Buy }
func (OpenSeaV1Data) Kind() OrderDataKind       { return DataOpenSeaV1 }
func (SeaportData) Kind() OrderDataKind         { return DataSeaport }
func (CryptoPunksData) Kind() OrderDataKind     { return DataCryptoPunks }
func (LooksRareData) Kind() OrderDataKind       { return DataLooksRare }
func (X2Y2Data) Kind() OrderDataKind            { return DataX2Y2 }

// IsMakeFill reports whether fill is counted on the make side. sell is true
// when the order's make asset is an NFT.
func IsMakeFill(data OrderData, sell bool) bool {
	switch d := data.(type) {
	case RaribleV2DataV3Sell:
		return true
	case RaribleV2DataV2:
		return d.IsMakeFill
	case LooksRareData:
		return sell
	}
	return false
}

// OriginFees returns the origin fee parts of Rarible V2 data, nil otherwise.
func OriginFees(data OrderData) []Part {
	switch d := data.(type) {
	case RaribleV2DataV1:
		return d.OriginFees
	case RaribleV2DataV2:
		return d.OriginFees
	case RaribleV2DataV3Sell:
		return nonNilParts(d.OriginFeeFirst, d.OriginFeeSecond)
	case RaribleV2DataV3Buy:
		return nonNilParts(d.OriginFeeFirst, d.OriginFeeSecond)
	}
	return nil
}

// Counter returns the maker nonce or counter embedded in data, for the
// protocols that have one.
func Counter(data OrderData) (*big.Int, bool) {
	switch d := data.(type) {
	case OpenSeaV1Data:
		return d.Nonce, d.Nonce != nil
	case SeaportData:
		return d.Counter, d.Counter != nil
	case LooksRareData:
		return d.Counter, d.Counter != nil
	}
	return nil, false
}

// CounterValid checks an embedded counter against the maker's current
// on-chain value. OpenSea and Seaport require equality; LooksRare accepts
// anything at or above the current minimum. Data without a counter is
// always valid.
func CounterValid(data OrderData, current *big.Int) bool {
	counter, ok := Counter(data)
	if !ok || current == nil {
		return true
	}
	switch data.(type) {
	case LooksRareData:
		return counter.Cmp(current) >= 0
	default:
		return counter.Cmp(current) == 0
	}
}

func nonNilParts(parts ...*Part) []Part {
	var out []Part
	for _, p := range parts {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// JSON envelope. OrderData is stored and transported as {"kind":..,"body":..}.
// ---------------------------------------------------------------------------

type dataEnvelope struct {
	Kind OrderDataKind   `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// MarshalOrderData encodes data together with its kind tag.
func MarshalOrderData(data OrderData) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: missing order data", ErrInvalidOrder)
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", data.Kind(), err)
	}
	return json.Marshal(dataEnvelope{Kind: data.Kind(), Body: body})
}

// UnmarshalOrderData decodes an envelope produced by MarshalOrderData.
func UnmarshalOrderData(raw []byte) (OrderData, error) {
	var env dataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("order data envelope: %w", err)
	}
	var (
		out OrderData
		err error
	)
	switch env.Kind {
	case DataLegacy:
		out, err = decodeBody[LegacyData](env.Body)
	case DataRaribleV2V1:
		out, err = decodeBody[RaribleV2DataV1](env.Body)
	case DataRaribleV2V2:
		out, err = decodeBody[RaribleV2DataV2](env.Body)
	case DataRaribleV2V3Sell:
		out, err = decodeBody[RaribleV2DataV3Sell](env.Body)
	case DataRaribleV2V3Buy:
		out, err = decodeBody[RaribleV2DataV3Buy](env.Body)
	case DataOpenSeaV1:
		out, err = decodeBody[OpenSeaV1Data](env.Body)
	case DataSeaport:
		out, err = decodeBody[SeaportData](env.Body)
	case DataCryptoPunks:
		out = CryptoPunksData{}
	case DataLooksRare:
		out, err = decodeBody[LooksRareData](env.Body)
	case DataX2Y2:
		out, err = decodeBody[X2Y2Data](env.Body)
	default:
		return nil, fmt.Errorf("%w: unknown order data kind %q", ErrInvalidOrder, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("order data %s: %w", env.Kind, err)
	}
	return out, nil
}

func decodeBody[T OrderData](body json.RawMessage) (OrderData, error) {
	var v T
	if len(body) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
