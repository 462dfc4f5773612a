package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AssetClass is the on-chain asset class name. Its keccak prefix is the
// bytes4 class id used by the exchange contracts.
type AssetClass string

const (
	AssetClassETH         AssetClass = "ETH"
	AssetClassERC20       AssetClass = "ERC20"
	AssetClassERC721      AssetClass = "ERC721"
	AssetClassERC721Lazy  AssetClass = "ERC721_LAZY"
	AssetClassERC1155     AssetClass = "ERC1155"
	AssetClassERC1155Lazy AssetClass = "ERC1155_LAZY"
	AssetClassCryptoPunks AssetClass = "CRYPTO_PUNKS"
	AssetClassGenArt      AssetClass = "GEN_ART"
	AssetClassCollection  AssetClass = "COLLECTION"
)

// AssetKind groups asset classes into the variants the engine reasons about.
type AssetKind int

const (
	AssetKindNative AssetKind = iota
	AssetKindFungible
	AssetKindNFT
	AssetKindCollection
	AssetKindCollectible
)

// LazyMint is the mint payload embedded in a lazy NFT asset type. It takes no
// part in the asset's hash key.
type LazyMint struct {
	URI        string          `json:"uri"`
	Supply     *big.Int        `json:"supply,omitempty"` // ERC1155_LAZY only
	Creators   []Part          `json:"creators"`
	Royalties  []Part          `json:"royalties"`
	Signatures []hexutil.Bytes `json:"signatures"`
}

// AssetType is a tagged union over the supported asset classes. Contract is
// zero for ETH; TokenID is nil for collection-wide and fungible assets.
type AssetType struct {
	Class    AssetClass     `json:"assetClass"`
	Contract common.Address `json:"contract"`
	TokenID  *big.Int       `json:"tokenId,omitempty"`
	Lazy     *LazyMint      `json:"lazy,omitempty"`
}

// Asset is an asset type paired with an amount (wei for currencies, a count
// for NFTs).
type Asset struct {
	Type  AssetType `json:"assetType"`
	Value *big.Int  `json:"value"`
}

// ETH returns the native currency asset type.
func ETH() AssetType { return AssetType{Class: AssetClassETH} }

// ERC20 returns a fungible token asset type.
func ERC20(token common.Address) AssetType {
	return AssetType{Class: AssetClassERC20, Contract: token}
}

// ERC721 returns a single-token NFT asset type.
func ERC721(token common.Address, tokenID *big.Int) AssetType {
	return AssetType{Class: AssetClassERC721, Contract: token, TokenID: tokenID}
}

// ERC1155 returns a multi-token NFT asset type.
func ERC1155(token common.Address, tokenID *big.Int) AssetType {
	return AssetType{Class: AssetClassERC1155, Contract: token, TokenID: tokenID}
}

// Collection returns a wildcard asset type matching every token of contract.
func Collection(token common.Address) AssetType {
	return AssetType{Class: AssetClassCollection, Contract: token}
}

// CryptoPunk returns the protocol-specific collectible asset type.
func CryptoPunk(market common.Address, punkID *big.Int) AssetType {
	return AssetType{Class: AssetClassCryptoPunks, Contract: market, TokenID: punkID}
}

// Kind reports the variant family of the asset type.
func (a AssetType) Kind() AssetKind {
	switch a.Class {
	case AssetClassETH:
		return AssetKindNative
	case AssetClassERC20:
		return AssetKindFungible
	case AssetClassERC721, AssetClassERC721Lazy, AssetClassERC1155, AssetClassERC1155Lazy:
		return AssetKindNFT
	case AssetClassCollection, AssetClassGenArt:
		return AssetKindCollection
	case AssetClassCryptoPunks:
		return AssetKindCollectible
	default:
		panic(fmt.Sprintf("domain: unknown asset class %q", a.Class))
	}
}

// IsNFT is true for every non-fungible variant, including collection
// wildcards and collectibles.
func (a AssetType) IsNFT() bool {
	switch a.Kind() {
	case AssetKindNFT, AssetKindCollection, AssetKindCollectible:
		return true
	}
	return false
}

// IsCurrency is true for ETH and ERC20.
func (a AssetType) IsCurrency() bool {
	k := a.Kind()
	return k == AssetKindNative || k == AssetKindFungible
}

// IsLazy reports whether the type carries a lazy-mint payload.
func (a AssetType) IsLazy() bool {
	return a.Class == AssetClassERC721Lazy || a.Class == AssetClassERC1155Lazy
}

// IsMultiToken is true for ERC1155-shaped transfers.
func (a AssetType) IsMultiToken() bool {
	return a.Class == AssetClassERC1155 || a.Class == AssetClassERC1155Lazy
}

// Validate checks that the fields required by the class are present.
func (a AssetType) Validate() error {
	switch a.Class {
	case AssetClassETH:
		return nil
	case AssetClassERC20, AssetClassCollection, AssetClassGenArt:
		if a.Contract == (common.Address{}) {
			return fmt.Errorf("%w: %s asset without contract", ErrInvalidOrder, a.Class)
		}
	case AssetClassERC721, AssetClassERC1155, AssetClassCryptoPunks:
		if a.TokenID == nil {
			return fmt.Errorf("%w: %s asset without token id", ErrInvalidOrder, a.Class)
		}
	case AssetClassERC721Lazy, AssetClassERC1155Lazy:
		if a.TokenID == nil || a.Lazy == nil {
			return fmt.Errorf("%w: %s asset without mint data", ErrInvalidOrder, a.Class)
		}
	default:
		return fmt.Errorf("%w: unknown asset class %q", ErrInvalidOrder, a.Class)
	}
	return nil
}

// HashKey projects the type onto its identity: the variant family, the
// contract and the token id when one is present. Lazy payloads are stripped,
// so a lazy NFT and its minted form share a key. A nil token id and a zero
// token id produce different keys.
func (a AssetType) HashKey() string {
	var family string
	switch a.Kind() {
	case AssetKindNative:
		return "native"
	case AssetKindFungible:
		family = "fungible"
	case AssetKindNFT:
		family = "nft"
	case AssetKindCollection:
		family = "collection"
	case AssetKindCollectible:
		family = "collectible"
	}
	key := family + ":" + strings.ToLower(a.Contract.Hex())
	if a.TokenID != nil {
		key += ":" + a.TokenID.String()
	}
	return key
}

// LookupKeys returns the hash keys under which bids for this asset may be
// stored: the exact key and, for concrete NFTs, the collection-wide key.
func (a AssetType) LookupKeys() []string {
	keys := []string{a.HashKey()}
	if a.Kind() == AssetKindNFT && a.TokenID != nil {
		keys = append(keys, Collection(a.Contract).HashKey())
	}
	return keys
}

// Covers reports whether an order asking for a can be filled with other.
// A collection wildcard covers any concrete NFT of the same contract.
func (a AssetType) Covers(other AssetType) bool {
	if a.Kind() == AssetKindCollection {
		return other.IsNFT() && other.Contract == a.Contract
	}
	return a.HashKey() == other.HashKey()
}

// String renders the type for logs.
func (a AssetType) String() string {
	if a.TokenID != nil {
		return fmt.Sprintf("%s(%s:%s)", a.Class, a.Contract.Hex(), a.TokenID)
	}
	if a.Class == AssetClassETH {
		return string(a.Class)
	}
	return fmt.Sprintf("%s(%s)", a.Class, a.Contract.Hex())
}

// FeeSide tells which side of the trade pays exchange fees.
type FeeSide int

const (
	FeeSideNone FeeSide = iota
	FeeSideMake
	FeeSideTake
)

// FeeSideOf resolves the fee side from the make and take asset types.
func FeeSideOf(makeType, takeType AssetType) FeeSide {
	for _, class := range []AssetClass{AssetClassETH, AssetClassERC20, AssetClassERC1155} {
		if makeType.Class == class {
			return FeeSideMake
		}
		if takeType.Class == class {
			return FeeSideTake
		}
	}
	return FeeSideNone
}
