package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/orderindexer/internal/crypto"
	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/ethabi"
)

var (
	raribleOrderTypeHash = ethcrypto.Keccak256([]byte(
		"Order(address maker,Asset makeAsset,address taker,Asset takeAsset,uint256 salt,uint256 start,uint256 end,bytes4 dataType,bytes data)" +
			"Asset(AssetType assetType,uint256 value)AssetType(bytes4 assetClass,bytes data)"))

	openSeaOrderTypeHash = common.HexToHash("0xdba08a88a748f356e8faf8578488343eab21b1741728779c9dcfdc782bc800f8")
)

// Domains holds the EIP-712 domain separators of the exchanges whose
// orders are signed as typed data.
type Domains struct {
	RaribleV2 common.Hash
	OpenSea   common.Hash
}

// SigningPayload returns what the maker signed for o together with the
// scheme that turns it into a digest.
func SigningPayload(o *domain.Order, d Domains) ([]byte, crypto.Scheme, error) {
	switch o.Type {
	case domain.OrderTypeRaribleV2:
		h, err := RaribleV2StructHash(o)
		if err != nil {
			return nil, crypto.Scheme{}, err
		}
		return h.Bytes(), crypto.TypedData(d.RaribleV2), nil
	case domain.OrderTypeRaribleV1:
		msg, err := LegacyMessage(o)
		if err != nil {
			return nil, crypto.Scheme{}, err
		}
		return []byte(msg), crypto.PersonalMessage(), nil
	case domain.OrderTypeOpenSeaV1:
		h, err := OpenSeaStructHash(o)
		if err != nil {
			return nil, crypto.Scheme{}, err
		}
		return h.Bytes(), crypto.TypedData(d.OpenSea), nil
	}
	return nil, crypto.Scheme{}, fmt.Errorf("identity: %w: signing payload for %s", domain.ErrUnsupportedOperation, o.Type)
}

// RaribleV2StructHash is LibOrder.hash, the EIP-712 struct hash of a
// Rarible V2 order.
func RaribleV2StructHash(o *domain.Order) (common.Hash, error) {
	makeHash, err := AssetHash(o.Make)
	if err != nil {
		return common.Hash{}, err
	}
	takeHash, err := AssetHash(o.Take)
	if err != nil {
		return common.Hash{}, err
	}
	dataType, err := DataType(o.Data)
	if err != nil {
		return common.Hash{}, err
	}
	data, err := EncodeData(o.Data)
	if err != nil {
		return common.Hash{}, err
	}
	return ethcrypto.Keccak256Hash(
		raribleOrderTypeHash,
		ethabi.AddressWord(o.Maker),
		makeHash[:],
		ethabi.AddressWord(takerOrZero(o.Taker)),
		takeHash[:],
		ethabi.Uint(o.Salt),
		ethabi.Uint(unixOrZero(o.Start)),
		ethabi.Uint(unixOrZero(o.End)),
		ethabi.Bytes4Word(dataType),
		ethcrypto.Keccak256(data),
	), nil
}

// OpenSeaStructHash is the EIP-712 struct hash of a Wyvern 2.3 order,
// including the maker nonce.
func OpenSeaStructHash(o *domain.Order) (common.Hash, error) {
	d, err := openSeaData(o)
	if err != nil {
		return common.Hash{}, err
	}
	nft, payment, err := NFTAndPayment(o)
	if err != nil {
		return common.Hash{}, err
	}
	target := nft.Contract
	if d.Target != nil {
		target = *d.Target
	}
	return ethcrypto.Keccak256Hash(
		openSeaOrderTypeHash[:],
		ethabi.AddressWord(d.Exchange),
		ethabi.AddressWord(o.Maker),
		ethabi.AddressWord(takerOrZero(o.Taker)),
		ethabi.Uint(d.MakerRelayerFee),
		ethabi.Uint(d.TakerRelayerFee),
		ethabi.Uint(d.MakerProtocolFee),
		ethabi.Uint(d.TakerProtocolFee),
		ethabi.AddressWord(d.FeeRecipient),
		ethabi.Uint(big.NewInt(int64(d.FeeMethod))),
		ethabi.Uint(big.NewInt(int64(d.Side))),
		ethabi.Uint(big.NewInt(int64(d.SaleKind))),
		ethabi.AddressWord(target),
		ethabi.Uint(big.NewInt(int64(d.HowToCall))),
		ethcrypto.Keccak256(d.CallData),
		ethcrypto.Keccak256(d.ReplacementPattern),
		ethabi.AddressWord(d.StaticTarget),
		ethcrypto.Keccak256(d.StaticExtraData),
		ethabi.AddressWord(payment.Type.Contract),
		ethabi.Uint(payment.Value),
		ethabi.Uint(d.Extra),
		ethabi.Uint(unixOrZero(o.Start)),
		ethabi.Uint(unixOrZero(o.End)),
		ethabi.Uint(o.Salt),
		ethabi.Uint(d.Nonce),
	), nil
}

// LegacyHash is the Rarible V1 order hash:
// keccak256(abi.encode(((maker, salt, sellAsset, buyAsset), sellValue, buyValue, fee))).
func LegacyHash(o *domain.Order) (common.Hash, error) {
	sell, err := ToLegacy(o.Make.Type)
	if err != nil {
		return common.Hash{}, err
	}
	buy, err := ToLegacy(o.Take.Type)
	if err != nil {
		return common.Hash{}, err
	}
	d, ok := o.Data.(domain.LegacyData)
	if !ok {
		return common.Hash{}, fmt.Errorf("identity: %w: rarible v1 order with %T data", domain.ErrInvalidOrder, o.Data)
	}
	return ethcrypto.Keccak256Hash(
		ethabi.AddressWord(o.Maker),
		ethabi.Uint(o.Salt),
		ethabi.AddressWord(sell.Token),
		ethabi.Uint(sell.TokenID),
		ethabi.Uint(big.NewInt(int64(sell.Class))),
		ethabi.AddressWord(buy.Token),
		ethabi.Uint(buy.TokenID),
		ethabi.Uint(big.NewInt(int64(buy.Class))),
		ethabi.Uint(o.Make.Value),
		ethabi.Uint(o.Take.Value),
		ethabi.Uint(big.NewInt(int64(d.Fee))),
	), nil
}

// LegacyMessage is the text a Rarible V1 maker signs with eth_sign: the
// unprefixed hex of LegacyHash.
func LegacyMessage(o *domain.Order) (string, error) {
	h, err := LegacyHash(o)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}

func isNotComputable(err error) bool {
	return errors.Is(err, domain.ErrHashNotComputable)
}
