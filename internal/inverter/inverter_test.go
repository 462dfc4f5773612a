package inverter

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/orderindexer/internal/codec"
	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/identity"
)

var (
	seller = common.HexToAddress("0x1000000000000000000000000000000000000001")
	buyer  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	nft    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	erc20  = common.HexToAddress("0x4000000000000000000000000000000000000004")
	now    = time.Unix(1_700_000_000, 0)
)

func raribleSell() *domain.Order {
	o := &domain.Order{
		Maker: seller,
		Make:  domain.Asset{Type: domain.ERC1155(nft, big.NewInt(1)), Value: big.NewInt(10)},
		Take:  domain.Asset{Type: domain.ERC20(erc20), Value: big.NewInt(100)},
		Type:  domain.OrderTypeRaribleV2,
		Data:  domain.RaribleV2DataV1{OriginFees: []domain.Part{{Account: seller, Value: 100}}},
		Salt:  big.NewInt(9),
		Fill:  big.NewInt(2),
	}
	o.Hash, _ = identity.Compute(o)
	return o
}

func TestInvertRaribleSell(t *testing.T) {
	o := raribleSell()
	fee := domain.Part{Account: buyer, Value: 50}
	c, err := Invert(o, Request{NewMaker: buyer, Amount: big.NewInt(4), NewSalt: big.NewInt(77), Fees: FeeConfig{OriginFees: []domain.Part{fee}}, Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if c.Maker != buyer || c.Taker == nil || *c.Taker != seller {
		t.Errorf("got maker %s taker %v", c.Maker, c.Taker)
	}
	if c.Make.Type.Class != domain.AssetClassERC20 || c.Make.Value.Int64() != 40 {
		t.Errorf("got make %s %s, want 40 ERC20", c.Make.Type, c.Make.Value)
	}
	if c.Take.Type.Class != domain.AssetClassERC1155 || c.Take.Value.Int64() != 4 {
		t.Errorf("got take %s %s, want 4 ERC1155", c.Take.Type, c.Take.Value)
	}
	data, ok := c.Data.(domain.RaribleV2DataV1)
	if !ok || len(data.OriginFees) != 1 || data.OriginFees[0] != fee {
		t.Errorf("got data %+v", c.Data)
	}
	if c.Fill.Sign() != 0 || c.MakeStock.Sign() != 0 || c.Signature != nil {
		t.Error("counter order carries state of the original")
	}
	want, _ := identity.HashKey(buyer, c.Make.Type, c.Take.Type, big.NewInt(77), c.Data)
	if c.Hash != want {
		t.Errorf("got hash %s, want %s", c.Hash, want)
	}
	if o.Maker != seller || o.Make.Value.Int64() != 10 {
		t.Error("original order mutated")
	}
}

func TestInvertRaribleBid(t *testing.T) {
	o := &domain.Order{
		Maker: buyer,
		Make:  domain.Asset{Type: domain.ETH(), Value: big.NewInt(1000)},
		Take:  domain.Asset{Type: domain.ERC721(nft, big.NewInt(5)), Value: big.NewInt(1)},
		Type:  domain.OrderTypeRaribleV2,
		Data:  domain.RaribleV2DataV3Buy{},
		Salt:  big.NewInt(1),
	}
	c, err := Invert(o, Request{NewMaker: seller, Amount: big.NewInt(1), Fees: FeeConfig{MaxFeesBasePoint: 1000}, Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if c.Make.Type.Class != domain.AssetClassERC721 || c.Make.Value.Int64() != 1 {
		t.Errorf("got make %s %s", c.Make.Type, c.Make.Value)
	}
	if c.Take.Type.Class != domain.AssetClassETH || c.Take.Value.Int64() != 1000 {
		t.Errorf("got take %s %s", c.Take.Type, c.Take.Value)
	}
	if _, ok := c.Data.(domain.RaribleV2DataV3Sell); !ok {
		t.Errorf("got data %T, want RaribleV2DataV3Sell", c.Data)
	}

	if _, err := Invert(o, Request{NewMaker: seller, Amount: big.NewInt(1), Now: now}); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("v3 sell without fee cap: got %v", err)
	}
}

func TestInvertRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Order)
		amount *big.Int
		want   error
	}{
		{"rarible v1", func(o *domain.Order) { o.Type = domain.OrderTypeRaribleV1; o.Data = domain.LegacyData{} }, big.NewInt(1), domain.ErrUnsupportedOperation},
		{"crypto punks", func(o *domain.Order) { o.Type = domain.OrderTypeCryptoPunks }, big.NewInt(1), domain.ErrUnsupportedOperation},
		{"seaport", func(o *domain.Order) { o.Type = domain.OrderTypeSeaportV1 }, big.NewInt(1), domain.ErrUnsupportedOperation},
		{"zero amount", func(o *domain.Order) {}, big.NewInt(0), domain.ErrInvalidOrder},
		{"nil amount", func(o *domain.Order) {}, nil, domain.ErrInvalidOrder},
		{"zero take", func(o *domain.Order) { o.Take.Value = new(big.Int) }, big.NewInt(1), domain.ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := raribleSell()
			tt.mutate(o)
			_, err := Invert(o, Request{NewMaker: buyer, Amount: tt.amount, Now: now})
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func openSeaSell(t *testing.T, pattern func(codec.CallData) []byte) *domain.Order {
	t.Helper()
	cd, err := codec.EncodeTransfer(codec.Transfer{Kind: codec.TransferERC721, From: seller, TokenID: big.NewInt(7)})
	if err != nil {
		t.Fatal(err)
	}
	data := domain.OpenSeaV1Data{
		Exchange:           common.HexToAddress("0x7be8076f4ea4a4ad08075c2508e481d6c946d12b"),
		MakerRelayerFee:    big.NewInt(250),
		TakerRelayerFee:    new(big.Int),
		MakerProtocolFee:   new(big.Int),
		TakerProtocolFee:   new(big.Int),
		FeeRecipient:       common.HexToAddress("0x5b3256965e7c3cf26e11fcaf296dfc8807c01073"),
		Side:               domain.SideSell,
		CallData:           cd.Data,
		ReplacementPattern: pattern(cd),
		Extra:              new(big.Int),
		Nonce:              new(big.Int),
	}
	o := &domain.Order{
		Maker: seller,
		Make:  domain.Asset{Type: domain.ERC721(nft, big.NewInt(7)), Value: big.NewInt(1)},
		Take:  domain.Asset{Type: domain.ETH(), Value: big.NewInt(5000)},
		Type:  domain.OrderTypeOpenSeaV1,
		Data:  data,
		Salt:  big.NewInt(3),
	}
	o.Hash, _ = identity.Compute(o)
	return o
}

func TestInvertOpenSea(t *testing.T) {
	o := openSeaSell(t, func(cd codec.CallData) []byte { return cd.Pattern })
	c, err := Invert(o, Request{NewMaker: buyer, Amount: big.NewInt(1), NewSalt: big.NewInt(11), Now: now})
	if err != nil {
		t.Fatal(err)
	}
	d := c.Data.(domain.OpenSeaV1Data)
	if d.Side != domain.SideBuy {
		t.Errorf("got side %d, want buy", d.Side)
	}
	if d.FeeRecipient != (common.Address{}) {
		t.Errorf("got fee recipient %s, want zero", d.FeeRecipient)
	}
	tr, err := codec.DecodeTransfer(d.CallData)
	if err != nil {
		t.Fatal(err)
	}
	if tr.From != (common.Address{}) || tr.To != buyer || tr.TokenID.Int64() != 7 {
		t.Errorf("got counter transfer %+v", tr)
	}
	left, right := codec.ApplyReplacementPatterns(
		codec.CallData{Data: o.Data.(domain.OpenSeaV1Data).CallData, Pattern: o.Data.(domain.OpenSeaV1Data).ReplacementPattern},
		codec.CallData{Data: d.CallData, Pattern: d.ReplacementPattern},
	)
	if !bytes.Equal(left, right) {
		t.Error("merged call data differs")
	}
	if c.Start == nil || *c.Start != now.Unix()-1 || c.End != nil {
		t.Errorf("got start %v end %v", c.Start, c.End)
	}
	want, _ := identity.OpenSeaHash(c)
	if c.Hash != want {
		t.Errorf("got hash %s, want %s", c.Hash, want)
	}
}

func TestInvertOpenSeaCallDataMismatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern func(codec.CallData) []byte
	}{
		{"nothing wildcarded", func(cd codec.CallData) []byte { return make([]byte, len(cd.Data)) }},
		{"pattern length differs", func(cd codec.CallData) []byte { return cd.Pattern[:len(cd.Pattern)-1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := openSeaSell(t, tt.pattern)
			_, err := Invert(o, Request{NewMaker: buyer, Amount: big.NewInt(1), Now: now})
			if !errors.Is(err, domain.ErrCallDataMismatch) {
				t.Errorf("got %v, want ErrCallDataMismatch", err)
			}
		})
	}
}

func TestInvertOpenSeaUnknownCallData(t *testing.T) {
	o := openSeaSell(t, func(cd codec.CallData) []byte { return cd.Pattern })
	d := o.Data.(domain.OpenSeaV1Data)
	d.CallData = hexutil.Bytes{0xde, 0xad, 0xbe, 0xef}
	o.Data = d
	if _, err := Invert(o, Request{NewMaker: buyer, Amount: big.NewInt(1), Now: now}); !errors.Is(err, domain.ErrUnsupportedCallData) {
		t.Errorf("got %v, want ErrUnsupportedCallData", err)
	}
}
