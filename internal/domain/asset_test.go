package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testERC20 = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestHashKeyDistinguishesAbsentAndZeroTokenID(t *testing.T) {
	collection := Collection(testToken)
	zero := ERC721(testToken, big.NewInt(0))
	if collection.HashKey() == zero.HashKey() {
		t.Fatalf("collection and token #0 share key %q", collection.HashKey())
	}
	noID := AssetType{Class: AssetClassERC721, Contract: testToken}
	if noID.HashKey() == zero.HashKey() {
		t.Fatalf("absent token id and zero token id share key %q", zero.HashKey())
	}
}

func TestHashKeyIgnoresLazyPayload(t *testing.T) {
	minted := ERC721(testToken, big.NewInt(7))
	lazy := AssetType{
		Class:    AssetClassERC721Lazy,
		Contract: testToken,
		TokenID:  big.NewInt(7),
		Lazy: &LazyMint{
			URI:      "ipfs://meta",
			Creators: []Part{{Account: testERC20, Value: 10000}},
		},
	}
	if minted.HashKey() != lazy.HashKey() {
		t.Errorf("got %q and %q, want equal keys", minted.HashKey(), lazy.HashKey())
	}
	other := lazy
	other.Lazy = &LazyMint{URI: "ipfs://other"}
	if other.HashKey() != lazy.HashKey() {
		t.Error("lazy metadata changed the hash key")
	}
}

func TestCoversAndLookupKeys(t *testing.T) {
	nft := ERC1155(testToken, big.NewInt(3))
	coll := Collection(testToken)

	if !coll.Covers(nft) {
		t.Error("collection should cover a token of the same contract")
	}
	if coll.Covers(ERC1155(testERC20, big.NewInt(3))) {
		t.Error("collection must not cover another contract")
	}
	if nft.Covers(ERC1155(testToken, big.NewInt(4))) {
		t.Error("concrete NFT must not cover a different token")
	}
	keys := nft.LookupKeys()
	if len(keys) != 2 || keys[0] != nft.HashKey() || keys[1] != coll.HashKey() {
		t.Errorf("got lookup keys %v", keys)
	}
	if got := ERC20(testERC20).LookupKeys(); len(got) != 1 {
		t.Errorf("fungible asset got %d lookup keys, want 1", len(got))
	}
}

func TestFeeSideOf(t *testing.T) {
	tests := []struct {
		name       string
		make, take AssetType
		want       FeeSide
	}{
		{"eth make", ETH(), ERC721(testToken, big.NewInt(1)), FeeSideMake},
		{"eth take", ERC721(testToken, big.NewInt(1)), ETH(), FeeSideTake},
		{"erc20 take", ERC1155(testToken, big.NewInt(1)), ERC20(testERC20), FeeSideTake},
		{"erc1155 make vs nft", ERC1155(testToken, big.NewInt(1)), ERC721(testToken, big.NewInt(2)), FeeSideMake},
		{"nft pair", ERC721(testToken, big.NewInt(1)), ERC721(testToken, big.NewInt(2)), FeeSideNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FeeSideOf(tt.make, tt.take); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssetTypeValidate(t *testing.T) {
	if err := ETH().Validate(); err != nil {
		t.Errorf("ETH: %v", err)
	}
	if err := (AssetType{Class: AssetClassERC721, Contract: testToken}).Validate(); err == nil {
		t.Error("ERC721 without token id should fail")
	}
	if err := (AssetType{Class: "ERC9999"}).Validate(); err == nil {
		t.Error("unknown class should fail")
	}
}
