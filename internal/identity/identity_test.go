package identity

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/orderindexer/internal/crypto"
	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var (
	maker = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func raribleSell(data domain.OrderData) *domain.Order {
	return &domain.Order{
		Maker: maker,
		Make:  domain.Asset{Type: domain.ERC721(token, big.NewInt(7)), Value: big.NewInt(1)},
		Take:  domain.Asset{Type: domain.ETH(), Value: big.NewInt(1_000_000)},
		Type:  domain.OrderTypeRaribleV2,
		Data:  data,
		Salt:  big.NewInt(42),
	}
}

func TestClassIDs(t *testing.T) {
	tests := []struct {
		class domain.AssetClass
		want  string
	}{
		{domain.AssetClassETH, "0xaaaebeba"},
		{domain.AssetClassERC20, "0x8ae85d84"},
		{domain.AssetClassERC721, "0x73ad2146"},
		{domain.AssetClassERC1155, "0x973bb640"},
	}
	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			id := ClassID(tt.class)
			if got := hexutil.Encode(id[:]); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDataTypes(t *testing.T) {
	v1, _ := DataType(domain.RaribleV2DataV1{})
	v2, _ := DataType(domain.RaribleV2DataV2{})
	if got := hexutil.Encode(v1[:]); got != "0x4c234266" {
		t.Errorf("V1: got %s", got)
	}
	if got := hexutil.Encode(v2[:]); got != "0x23d235ef" {
		t.Errorf("V2: got %s", got)
	}
	if _, err := DataType(domain.SeaportData{}); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("seaport data type: got %v", err)
	}
}

func TestAssetTypeHashETH(t *testing.T) {
	got, err := AssetTypeHash(domain.ETH())
	if err != nil {
		t.Fatal(err)
	}
	id := ClassID(domain.AssetClassETH)
	want := ethcrypto.Keccak256Hash(
		ethcrypto.Keccak256([]byte("AssetType(bytes4 assetClass,bytes data)")),
		common.RightPadBytes(id[:], 32),
		ethcrypto.Keccak256(nil),
	)
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestAssetTypeHashDistinguishesTypes(t *testing.T) {
	a, _ := AssetTypeHash(domain.ERC721(token, big.NewInt(1)))
	b, _ := AssetTypeHash(domain.ERC721(token, big.NewInt(2)))
	c, _ := AssetTypeHash(domain.ERC1155(token, big.NewInt(1)))
	if a == b || a == c {
		t.Error("distinct asset types share a hash")
	}
	lazy := domain.AssetType{
		Class: domain.AssetClassERC721Lazy, Contract: token, TokenID: big.NewInt(1),
		Lazy: &domain.LazyMint{URI: "ipfs://x", Creators: []domain.Part{{Account: maker, Value: 10000}}, Signatures: []hexutil.Bytes{{0x01}}},
	}
	if _, err := AssetTypeHash(lazy); err != nil {
		t.Fatalf("lazy asset: %v", err)
	}
	if _, err := AssetTypeHash(domain.AssetType{Class: domain.AssetClassERC721, Contract: token}); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("missing token id: got %v", err)
	}
}

func TestHashKeyDataV1MatchesManualEncoding(t *testing.T) {
	o := raribleSell(domain.RaribleV2DataV1{})
	got, err := Compute(o)
	if err != nil {
		t.Fatal(err)
	}
	makeHash, _ := AssetTypeHash(o.Make.Type)
	takeHash, _ := AssetTypeHash(o.Take.Type)
	want := ethcrypto.Keccak256Hash(
		common.LeftPadBytes(maker.Bytes(), 32),
		makeHash[:],
		takeHash[:],
		common.LeftPadBytes(big.NewInt(42).Bytes(), 32),
	)
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestHashKeyStableAndSensitive(t *testing.T) {
	base := raribleSell(domain.RaribleV2DataV2{IsMakeFill: true})
	h1, err := Compute(base)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := Compute(base.Clone())
	if h1 != h2 {
		t.Fatal("hash not stable across calls")
	}

	otherSalt := base.Clone()
	otherSalt.Salt = big.NewInt(43)
	otherData := base.Clone()
	otherData.Data = domain.RaribleV2DataV2{IsMakeFill: false}
	v1Data := base.Clone()
	v1Data.Data = domain.RaribleV2DataV1{}
	for name, o := range map[string]*domain.Order{"salt": otherSalt, "data": otherData, "data version": v1Data} {
		h, err := Compute(o)
		if err != nil {
			t.Fatal(err)
		}
		if h == h1 {
			t.Errorf("%s change did not change the hash", name)
		}
	}

	// start, end and values do not take part in the key.
	timed := base.Clone()
	timed.End = new(int64)
	*timed.End = 1_800_000_000
	timed.Take.Value = big.NewInt(5)
	if h, _ := Compute(timed); h != h1 {
		t.Error("key depends on end or values")
	}
}

func TestComputeSourceAssignedHashes(t *testing.T) {
	o := raribleSell(domain.LooksRareData{Counter: big.NewInt(1)})
	o.Type = domain.OrderTypeLooksRare
	if _, err := Compute(o); !errors.Is(err, domain.ErrHashNotComputable) {
		t.Fatalf("got %v, want ErrHashNotComputable", err)
	}
	if err := Verify(o); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("zero hash: got %v, want ErrInvalidOrder", err)
	}
	o.Hash = common.HexToHash("0x1234")
	if err := Verify(o); err != nil {
		t.Errorf("source hash rejected: %v", err)
	}
}

func TestVerifyMismatch(t *testing.T) {
	o := raribleSell(domain.RaribleV2DataV1{})
	o.Hash = common.HexToHash("0xdead")
	if err := Verify(o); !errors.Is(err, domain.ErrHashMismatch) {
		t.Fatalf("got %v, want ErrHashMismatch", err)
	}
	o.Hash, _ = Compute(o)
	if err := Verify(o); err != nil {
		t.Errorf("computed hash rejected: %v", err)
	}
}

func TestOpenSeaHashCoversCallData(t *testing.T) {
	exchange := common.HexToAddress("0x7be8076f4ea4a4ad08075c2508e481d6c946d12b")
	data := domain.OpenSeaV1Data{
		Exchange:           exchange,
		MakerRelayerFee:    big.NewInt(250),
		TakerRelayerFee:    new(big.Int),
		MakerProtocolFee:   new(big.Int),
		TakerProtocolFee:   new(big.Int),
		FeeRecipient:       common.HexToAddress("0x5b3256965e7c3cf26e11fcaf296dfc8807c01073"),
		Side:               domain.SideSell,
		CallData:           hexutil.Bytes{0x01, 0x02},
		ReplacementPattern: hexutil.Bytes{0x00, 0xff},
		Extra:              new(big.Int),
		Nonce:              big.NewInt(0),
	}
	o := raribleSell(data)
	o.Type = domain.OrderTypeOpenSeaV1
	h1, err := Compute(o)
	if err != nil {
		t.Fatal(err)
	}
	data.CallData = hexutil.Bytes{0x01, 0x03}
	o.Data = data
	h2, _ := Compute(o)
	if h1 == h2 {
		t.Error("call data does not affect the hash")
	}
	if _, err := OpenSeaStructHash(o); err != nil {
		t.Errorf("struct hash: %v", err)
	}
}

func TestSeaportHashIncludesCounter(t *testing.T) {
	data := domain.SeaportData{
		Offer: []domain.SeaportOffer{{ItemType: 2, Token: token, Identifier: big.NewInt(7), StartAmount: big.NewInt(1), EndAmount: big.NewInt(1)}},
		Consideration: []domain.SeaportConsideration{{
			Token: common.Address{}, Identifier: new(big.Int), StartAmount: big.NewInt(100), EndAmount: big.NewInt(100), Recipient: maker,
		}},
		Counter: big.NewInt(0),
	}
	o := raribleSell(data)
	o.Type = domain.OrderTypeSeaportV1
	h0, err := Compute(o)
	if err != nil {
		t.Fatal(err)
	}
	data.Counter = big.NewInt(1)
	o.Data = data
	h1, _ := Compute(o)
	if h0 == h1 {
		t.Error("counter does not affect the hash")
	}
}

func TestPackPartRoundTrip(t *testing.T) {
	p := &domain.Part{Account: maker, Value: 250}
	got := UnpackPart(PackPart(p))
	if got == nil || *got != *p {
		t.Errorf("got %+v, want %+v", got, p)
	}
	if UnpackPart(PackPart(nil)) != nil {
		t.Error("nil part did not round trip")
	}
}

func TestSigningPayloadRecoversMaker(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	o := raribleSell(domain.RaribleV2DataV1{})
	o.Maker = ethcrypto.PubkeyToAddress(key.PublicKey)

	sep, err := crypto.DomainSeparator(crypto.Domain{Name: "Exchange", Version: "2", ChainID: 1, VerifyingContract: token})
	if err != nil {
		t.Fatal(err)
	}
	payload, scheme, err := SigningPayload(o, Domains{RaribleV2: sep})
	if err != nil {
		t.Fatal(err)
	}
	digest, err := scheme.Digest(payload)
	if err != nil {
		t.Fatal(err)
	}
	sig, _ := ethcrypto.Sign(digest[:], key)
	got, err := crypto.Recover(payload, sig, scheme)
	if err != nil {
		t.Fatal(err)
	}
	if got != o.Maker {
		t.Errorf("got %s, want %s", got, o.Maker)
	}

	o.Type = domain.OrderTypeX2Y2
	if _, _, err := SigningPayload(o, Domains{}); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("x2y2: got %v", err)
	}
}

func TestLegacyHashRejectsCollections(t *testing.T) {
	o := raribleSell(domain.LegacyData{Fee: 300})
	o.Type = domain.OrderTypeRaribleV1
	if _, err := LegacyMessage(o); err != nil {
		t.Fatalf("erc721 legacy message: %v", err)
	}
	o.Make.Type = domain.Collection(token)
	if _, err := LegacyHash(o); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("got %v, want ErrUnsupportedOperation", err)
	}
}
