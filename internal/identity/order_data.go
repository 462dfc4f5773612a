package identity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/ethabi"
)

// DefaultDataType marks Rarible V2 orders that carry no data.
var DefaultDataType = [4]byte{0xff, 0xff, 0xff, 0xff}

var (
	dataV1Args = ethabi.Args(ethabi.MustType("tuple", []abi.ArgumentMarshaling{
		{Name: "payouts", Type: "tuple[]", Components: ethabi.PartComponents},
		{Name: "originFees", Type: "tuple[]", Components: ethabi.PartComponents},
	}))
	dataV2Args = ethabi.Args(ethabi.MustType("tuple", []abi.ArgumentMarshaling{
		{Name: "payouts", Type: "tuple[]", Components: ethabi.PartComponents},
		{Name: "originFees", Type: "tuple[]", Components: ethabi.PartComponents},
		{Name: "isMakeFill", Type: "bool"},
	}))
	dataV3SellArgs = ethabi.Args(ethabi.Uint256, ethabi.Uint256, ethabi.Uint256, ethabi.Uint256, ethabi.Bytes32)
	dataV3BuyArgs  = ethabi.Args(ethabi.Uint256, ethabi.Uint256, ethabi.Uint256, ethabi.Bytes32)
	legacyArgs     = ethabi.Args(ethabi.Uint256)
)

type dataV1 struct {
	Payouts    []ethabi.Part `abi:"payouts"`
	OriginFees []ethabi.Part `abi:"originFees"`
}

type dataV2 struct {
	Payouts    []ethabi.Part `abi:"payouts"`
	OriginFees []ethabi.Part `abi:"originFees"`
	IsMakeFill bool          `abi:"isMakeFill"`
}

// DataType returns the bytes4 data type tag of data, bytes4(keccak256(tag)).
func DataType(data domain.OrderData) ([4]byte, error) {
	switch data.(type) {
	case domain.RaribleV2DataV1:
		return ethabi.Selector("V1"), nil
	case domain.RaribleV2DataV2:
		return ethabi.Selector("V2"), nil
	case domain.RaribleV2DataV3Sell:
		return ethabi.Selector("V3_SELL"), nil
	case domain.RaribleV2DataV3Buy:
		return ethabi.Selector("V3_BUY"), nil
	case domain.LegacyData:
		return DefaultDataType, nil
	}
	return [4]byte{}, fmt.Errorf("identity: %w: no data type for %T", domain.ErrUnsupportedOperation, data)
}

// EncodeData returns the ABI encoding of the Rarible data variants, the
// bytes carried in LibOrder.Order.data.
func EncodeData(data domain.OrderData) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch d := data.(type) {
	case domain.LegacyData:
		out, err = legacyArgs.Pack(big.NewInt(int64(d.Fee)))
	case domain.RaribleV2DataV1:
		out, err = dataV1Args.Pack(dataV1{Payouts: abiParts(d.Payouts), OriginFees: abiParts(d.OriginFees)})
	case domain.RaribleV2DataV2:
		out, err = dataV2Args.Pack(dataV2{Payouts: abiParts(d.Payouts), OriginFees: abiParts(d.OriginFees), IsMakeFill: d.IsMakeFill})
	case domain.RaribleV2DataV3Sell:
		out, err = dataV3SellArgs.Pack(PackPart(d.Payout), PackPart(d.OriginFeeFirst), PackPart(d.OriginFeeSecond),
			big.NewInt(int64(d.MaxFeesBasePoint)), marker(d.MarketplaceMarker))
	case domain.RaribleV2DataV3Buy:
		out, err = dataV3BuyArgs.Pack(PackPart(d.Payout), PackPart(d.OriginFeeFirst), PackPart(d.OriginFeeSecond),
			marker(d.MarketplaceMarker))
	default:
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: encode %s: %w", data.Kind(), err)
	}
	return out, nil
}

// PackPart packs a V3 part as uint256(value << 160 | account). A nil part
// packs as zero.
func PackPart(p *domain.Part) *big.Int {
	if p == nil {
		return new(big.Int)
	}
	v := new(big.Int).Lsh(big.NewInt(int64(p.Value)), 160)
	return v.Or(v, new(big.Int).SetBytes(p.Account.Bytes()))
}

// UnpackPart is the inverse of PackPart. Zero unpacks as nil.
func UnpackPart(v *big.Int) *domain.Part {
	if v == nil || v.Sign() == 0 {
		return nil
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
	account := new(big.Int).And(v, mask)
	value := new(big.Int).Rsh(v, 160)
	return &domain.Part{Account: common.BigToAddress(account), Value: uint16(value.Uint64())}
}

func marker(h *common.Hash) [32]byte {
	if h == nil {
		return [32]byte{}
	}
	return *h
}
