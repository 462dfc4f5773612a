package identity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/ethabi"
)

var (
	assetTypeTypeHash = ethcrypto.Keccak256Hash([]byte("AssetType(bytes4 assetClass,bytes data)"))
	assetTypeHash     = ethcrypto.Keccak256Hash([]byte("Asset(AssetType assetType,uint256 value)AssetType(bytes4 assetClass,bytes data)"))

	addressArgs     = ethabi.Args(ethabi.Address)
	addressUintArgs = ethabi.Args(ethabi.Address, ethabi.Uint256)

	lazy721Args = ethabi.Args(ethabi.Address, ethabi.MustType("tuple", []abi.ArgumentMarshaling{
		{Name: "tokenId", Type: "uint256"},
		{Name: "uri", Type: "string"},
		{Name: "creators", Type: "tuple[]", Components: ethabi.PartComponents},
		{Name: "royalties", Type: "tuple[]", Components: ethabi.PartComponents},
		{Name: "signatures", Type: "bytes[]"},
	}))
	lazy1155Args = ethabi.Args(ethabi.Address, ethabi.MustType("tuple", []abi.ArgumentMarshaling{
		{Name: "tokenId", Type: "uint256"},
		{Name: "uri", Type: "string"},
		{Name: "supply", Type: "uint256"},
		{Name: "creators", Type: "tuple[]", Components: ethabi.PartComponents},
		{Name: "royalties", Type: "tuple[]", Components: ethabi.PartComponents},
		{Name: "signatures", Type: "bytes[]"},
	}))
)

type mint721 struct {
	TokenID    *big.Int      `abi:"tokenId"`
	URI        string        `abi:"uri"`
	Creators   []ethabi.Part `abi:"creators"`
	Royalties  []ethabi.Part `abi:"royalties"`
	Signatures [][]byte      `abi:"signatures"`
}

type mint1155 struct {
	TokenID    *big.Int      `abi:"tokenId"`
	URI        string        `abi:"uri"`
	Supply     *big.Int      `abi:"supply"`
	Creators   []ethabi.Part `abi:"creators"`
	Royalties  []ethabi.Part `abi:"royalties"`
	Signatures [][]byte      `abi:"signatures"`
}

// ClassID is the bytes4 id of an asset class: keccak256(name)[:4].
func ClassID(class domain.AssetClass) [4]byte {
	return ethabi.Selector(string(class))
}

// AssetData returns the ABI data the exchange contracts expect for t.
func AssetData(t domain.AssetType) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var (
		out []byte
		err error
	)
	switch t.Class {
	case domain.AssetClassETH:
		return []byte{}, nil
	case domain.AssetClassERC20, domain.AssetClassCollection, domain.AssetClassGenArt:
		out, err = addressArgs.Pack(t.Contract)
	case domain.AssetClassERC721, domain.AssetClassERC1155, domain.AssetClassCryptoPunks:
		out, err = addressUintArgs.Pack(t.Contract, t.TokenID)
	case domain.AssetClassERC721Lazy:
		out, err = lazy721Args.Pack(t.Contract, mint721{
			TokenID:    t.TokenID,
			URI:        t.Lazy.URI,
			Creators:   abiParts(t.Lazy.Creators),
			Royalties:  abiParts(t.Lazy.Royalties),
			Signatures: rawSignatures(t.Lazy),
		})
	case domain.AssetClassERC1155Lazy:
		supply := t.Lazy.Supply
		if supply == nil {
			supply = new(big.Int)
		}
		out, err = lazy1155Args.Pack(t.Contract, mint1155{
			TokenID:    t.TokenID,
			URI:        t.Lazy.URI,
			Supply:     supply,
			Creators:   abiParts(t.Lazy.Creators),
			Royalties:  abiParts(t.Lazy.Royalties),
			Signatures: rawSignatures(t.Lazy),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("identity: encode %s data: %w", t.Class, err)
	}
	return out, nil
}

// AssetTypeHash is LibAsset.hash(AssetType).
func AssetTypeHash(t domain.AssetType) (common.Hash, error) {
	data, err := AssetData(t)
	if err != nil {
		return common.Hash{}, err
	}
	id := ClassID(t.Class)
	return ethcrypto.Keccak256Hash(
		assetTypeTypeHash[:],
		ethabi.Bytes4Word(id),
		ethcrypto.Keccak256(data),
	), nil
}

// AssetHash is LibAsset.hash(Asset).
func AssetHash(a domain.Asset) (common.Hash, error) {
	typeHash, err := AssetTypeHash(a.Type)
	if err != nil {
		return common.Hash{}, err
	}
	return ethcrypto.Keccak256Hash(assetTypeHash[:], typeHash[:], ethabi.Uint(a.Value)), nil
}

// LegacyClass is the asset class enumeration of the Rarible V1 exchange.
type LegacyClass uint8

const (
	LegacyETH LegacyClass = iota
	LegacyERC20
	LegacyERC1155
	LegacyERC721
)

// LegacyAsset is the V1 projection of an asset type.
type LegacyAsset struct {
	Token   common.Address
	TokenID *big.Int
	Class   LegacyClass
}

// ToLegacy projects t onto the V1 asset model. Lazy, collection and
// collectible types have no V1 form.
func ToLegacy(t domain.AssetType) (LegacyAsset, error) {
	switch t.Class {
	case domain.AssetClassETH:
		return LegacyAsset{TokenID: new(big.Int), Class: LegacyETH}, nil
	case domain.AssetClassERC20:
		return LegacyAsset{Token: t.Contract, TokenID: new(big.Int), Class: LegacyERC20}, nil
	case domain.AssetClassERC1155:
		return LegacyAsset{Token: t.Contract, TokenID: t.TokenID, Class: LegacyERC1155}, nil
	case domain.AssetClassERC721:
		return LegacyAsset{Token: t.Contract, TokenID: t.TokenID, Class: LegacyERC721}, nil
	}
	return LegacyAsset{}, fmt.Errorf("identity: %w: %s has no legacy form", domain.ErrUnsupportedOperation, t.Class)
}

func abiParts(parts []domain.Part) []ethabi.Part {
	out := make([]ethabi.Part, len(parts))
	for i, p := range parts {
		out[i] = ethabi.Part{Account: p.Account, Value: big.NewInt(int64(p.Value))}
	}
	return out
}

func rawSignatures(m *domain.LazyMint) [][]byte {
	out := make([][]byte, len(m.Signatures))
	for i, s := range m.Signatures {
		out[i] = s
	}
	return out
}
