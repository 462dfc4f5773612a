// Package identity computes order hashes and signing digests for every
// supported exchange protocol.
package identity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/ethabi"
)

// HashFunc computes the identity hash of an order for one protocol.
type HashFunc func(o *domain.Order) (common.Hash, error)

var strategies = map[domain.OrderType]HashFunc{
	domain.OrderTypeRaribleV1:   keyHash,
	domain.OrderTypeRaribleV2:   keyHash,
	domain.OrderTypeCryptoPunks: keyHash,
	domain.OrderTypeOpenSeaV1:   OpenSeaHash,
	domain.OrderTypeSeaportV1:   SeaportHash,
}

var (
	keyArgs     = ethabi.Args(ethabi.Address, ethabi.Bytes32, ethabi.Bytes32, ethabi.Uint256)
	keyDataArgs = ethabi.Args(ethabi.Address, ethabi.Bytes32, ethabi.Bytes32, ethabi.Uint256, ethabi.Bytes)
)

// Compute dispatches on the order type. Protocols whose hash is assigned by
// the source marketplace fail with domain.ErrHashNotComputable.
func Compute(o *domain.Order) (common.Hash, error) {
	fn, ok := strategies[o.Type]
	if !ok {
		return common.Hash{}, fmt.Errorf("identity: %w: %s", domain.ErrHashNotComputable, o.Type)
	}
	return fn(o)
}

// Verify checks o.Hash against the computed hash. Source-assigned hashes
// are only checked for presence.
func Verify(o *domain.Order) error {
	want, err := Compute(o)
	switch {
	case err == nil:
		if want != o.Hash {
			return fmt.Errorf("identity: %w: got %s, computed %s", domain.ErrHashMismatch, o.Hash, want)
		}
		return nil
	case isNotComputable(err):
		if o.Hash == (common.Hash{}) {
			return fmt.Errorf("identity: %w: %s order without hash", domain.ErrInvalidOrder, o.Type)
		}
		return nil
	default:
		return err
	}
}

func keyHash(o *domain.Order) (common.Hash, error) {
	return HashKey(o.Maker, o.Make.Type, o.Take.Type, o.Salt, o.Data)
}

// HashKey is the order key of the Rarible exchanges:
// keccak256(abi.encode(maker, hash(makeType), hash(takeType), salt[, data])).
// The encoded data is appended for Rarible V2 DataV2 and DataV3 only.
func HashKey(maker common.Address, makeType, takeType domain.AssetType, salt *big.Int, data domain.OrderData) (common.Hash, error) {
	makeHash, err := AssetTypeHash(makeType)
	if err != nil {
		return common.Hash{}, err
	}
	takeHash, err := AssetTypeHash(takeType)
	if err != nil {
		return common.Hash{}, err
	}
	if salt == nil {
		salt = new(big.Int)
	}

	var packed []byte
	switch data.(type) {
	case domain.RaribleV2DataV2, domain.RaribleV2DataV3Sell, domain.RaribleV2DataV3Buy:
		encoded, encErr := EncodeData(data)
		if encErr != nil {
			return common.Hash{}, encErr
		}
		packed, err = keyDataArgs.Pack(maker, [32]byte(makeHash), [32]byte(takeHash), salt, encoded)
	default:
		packed, err = keyArgs.Pack(maker, [32]byte(makeHash), [32]byte(takeHash), salt)
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("identity: pack order key: %w", err)
	}
	return ethcrypto.Keccak256Hash(packed), nil
}

// NFTAndPayment splits an order into its NFT asset type and payment asset.
// Orders with two or no NFT sides fail with domain.ErrInvalidOrder.
func NFTAndPayment(o *domain.Order) (domain.AssetType, domain.Asset, error) {
	switch {
	case o.Make.Type.IsNFT() && !o.Take.Type.IsNFT():
		return o.Make.Type, o.Take, nil
	case o.Take.Type.IsNFT() && !o.Make.Type.IsNFT():
		return o.Take.Type, o.Make, nil
	}
	return domain.AssetType{}, domain.Asset{}, fmt.Errorf("identity: %w: order needs one nft and one payment asset", domain.ErrInvalidOrder)
}

func openSeaData(o *domain.Order) (domain.OpenSeaV1Data, error) {
	d, ok := o.Data.(domain.OpenSeaV1Data)
	if !ok {
		return domain.OpenSeaV1Data{}, fmt.Errorf("identity: %w: %s order with %T data", domain.ErrInvalidOrder, o.Type, o.Data)
	}
	return d, nil
}

// OpenSeaHash is the Wyvern 2.x order hash: keccak256 over the tightly
// packed order fields.
func OpenSeaHash(o *domain.Order) (common.Hash, error) {
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

	h := sha3.NewLegacyKeccak256()
	write := func(parts ...[]byte) {
		for _, p := range parts {
			h.Write(p)
		}
	}
	write(
		d.Exchange.Bytes(),
		o.Maker.Bytes(),
		takerOrZero(o.Taker).Bytes(),
		ethabi.Uint(d.MakerRelayerFee),
		ethabi.Uint(d.TakerRelayerFee),
		ethabi.Uint(d.MakerProtocolFee),
		ethabi.Uint(d.TakerProtocolFee),
		d.FeeRecipient.Bytes(),
		[]byte{byte(d.FeeMethod), byte(d.Side), byte(d.SaleKind)},
		target.Bytes(),
		[]byte{byte(d.HowToCall)},
		d.CallData,
		d.ReplacementPattern,
		d.StaticTarget.Bytes(),
		d.StaticExtraData,
		payment.Type.Contract.Bytes(),
		ethabi.Uint(payment.Value),
		ethabi.Uint(d.Extra),
		ethabi.Uint(unixOrZero(o.Start)),
		ethabi.Uint(unixOrZero(o.End)),
		ethabi.Uint(o.Salt),
	)
	var out common.Hash
	h.Sum(out[:0])
	return out, nil
}

var (
	seaportOfferTypeHash         = ethcrypto.Keccak256([]byte(seaportOfferType))
	seaportConsiderationTypeHash = ethcrypto.Keccak256([]byte(seaportConsiderationType))
	seaportOrderTypeHash         = ethcrypto.Keccak256([]byte(
		"OrderComponents(address offerer,address zone,OfferItem[] offer,ConsiderationItem[] consideration,uint8 orderType,uint256 startTime,uint256 endTime,bytes32 zoneHash,uint256 salt,bytes32 conduitKey,uint256 counter)" +
			seaportConsiderationType + seaportOfferType))
)

const (
	seaportOfferType         = "OfferItem(uint8 itemType,address token,uint256 identifierOrCriteria,uint256 startAmount,uint256 endAmount)"
	seaportConsiderationType = "ConsiderationItem(uint8 itemType,address token,uint256 identifierOrCriteria,uint256 startAmount,uint256 endAmount,address recipient)"
)

// SeaportHash is the EIP-712 struct hash of the order's OrderComponents.
func SeaportHash(o *domain.Order) (common.Hash, error) {
	d, ok := o.Data.(domain.SeaportData)
	if !ok {
		return common.Hash{}, fmt.Errorf("identity: %w: seaport order with %T data", domain.ErrInvalidOrder, o.Data)
	}

	offer := make([]byte, 0, 32*len(d.Offer))
	for _, item := range d.Offer {
		offer = append(offer, ethcrypto.Keccak256(
			seaportOfferTypeHash,
			ethabi.Uint(big.NewInt(int64(item.ItemType))),
			ethabi.AddressWord(item.Token),
			ethabi.Uint(item.Identifier),
			ethabi.Uint(item.StartAmount),
			ethabi.Uint(item.EndAmount),
		)...)
	}
	consideration := make([]byte, 0, 32*len(d.Consideration))
	for _, item := range d.Consideration {
		consideration = append(consideration, ethcrypto.Keccak256(
			seaportConsiderationTypeHash,
			ethabi.Uint(big.NewInt(int64(item.ItemType))),
			ethabi.AddressWord(item.Token),
			ethabi.Uint(item.Identifier),
			ethabi.Uint(item.StartAmount),
			ethabi.Uint(item.EndAmount),
			ethabi.AddressWord(item.Recipient),
		)...)
	}

	return ethcrypto.Keccak256Hash(
		seaportOrderTypeHash,
		ethabi.AddressWord(o.Maker),
		ethabi.AddressWord(d.Zone),
		ethcrypto.Keccak256(offer),
		ethcrypto.Keccak256(consideration),
		ethabi.Uint(big.NewInt(int64(d.OrderType))),
		ethabi.Uint(unixOrZero(o.Start)),
		ethabi.Uint(unixOrZero(o.End)),
		d.ZoneHash[:],
		ethabi.Uint(o.Salt),
		d.ConduitKey[:],
		ethabi.Uint(d.Counter),
	), nil
}

func takerOrZero(t *common.Address) common.Address {
	if t == nil {
		return common.Address{}
	}
	return *t
}

func unixOrZero(v *int64) *big.Int {
	if v == nil || *v < 0 {
		return new(big.Int)
	}
	return big.NewInt(*v)
}
