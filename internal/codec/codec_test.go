package codec

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

var (
	seller = common.HexToAddress("0x1111111111111111111111111111111111111111")
	buyer  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	nft    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestTransferRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		tr   Transfer
	}{
		{"erc721", Transfer{Kind: TransferERC721, From: seller, To: buyer, TokenID: big.NewInt(42)}},
		{"erc721 safe", Transfer{Kind: TransferERC721, From: seller, TokenID: big.NewInt(0), Safe: true}},
		{"erc1155", Transfer{Kind: TransferERC1155, From: seller, To: buyer, TokenID: big.NewInt(7), Value: big.NewInt(5), Data: []byte{0xca, 0xfe}}},
		{"erc1155 empty data", Transfer{Kind: TransferERC1155, To: buyer, TokenID: big.NewInt(7), Value: big.NewInt(1)}},
		{"merkle erc721", Transfer{
			Kind: TransferMerkleERC721, From: seller, Token: nft, TokenID: big.NewInt(9),
			Root: common.HexToHash("0xab"), Proof: []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
		}},
		{"merkle erc1155", Transfer{
			Kind: TransferMerkleERC1155, To: buyer, Token: nft, TokenID: big.NewInt(9), Value: big.NewInt(3),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd, err := EncodeTransfer(tt.tr)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(cd.Pattern) != len(cd.Data) {
				t.Fatalf("pattern length %d, data length %d", len(cd.Pattern), len(cd.Data))
			}
			got, err := DecodeTransfer(cd.Data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.Equal(tt.tr) {
				t.Errorf("got %+v, want %+v", got, tt.tr)
			}
		})
	}
}

func TestReplacementPatternMasksZeroAddresses(t *testing.T) {
	cd, err := EncodeTransfer(Transfer{Kind: TransferERC721, From: seller, TokenID: big.NewInt(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(cd.Pattern[:36], make([]byte, 36)) {
		t.Error("selector or from word wildcarded")
	}
	if !bytes.Equal(cd.Pattern[36:68], bytes.Repeat([]byte{0xff}, 32)) {
		t.Error("zero to-address not wildcarded")
	}
	if !bytes.Equal(cd.Pattern[68:], make([]byte, len(cd.Pattern)-68)) {
		t.Error("token id wildcarded")
	}
}

func TestDecodeUnknownSelector(t *testing.T) {
	_, err := DecodeTransfer([]byte{0xde, 0xad, 0xbe, 0xef, 0, 0})
	if !errors.Is(err, domain.ErrUnsupportedCallData) {
		t.Fatalf("got %v, want ErrUnsupportedCallData", err)
	}
	if _, err := DecodeTransfer([]byte{0x01}); !errors.Is(err, domain.ErrUnsupportedCallData) {
		t.Fatalf("short input: got %v", err)
	}
}

func TestMergeUnderMask(t *testing.T) {
	a := []byte{0x11, 0x22, 0x33, 0x44}
	b := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	mask := []byte{0x00, 0xff, 0x0f, 0x00}
	got := MergeUnderMask(a, b, mask)
	want := []byte{0x11, 0xbb, 0x3c, 0x44}
	if !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got, want)
	}
	if !bytes.Equal(a, []byte{0x11, 0x22, 0x33, 0x44}) {
		t.Error("input mutated")
	}
}

func TestMergeUnderMaskLengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on length mismatch")
		}
	}()
	MergeUnderMask([]byte{1, 2}, []byte{1}, []byte{0, 0})
}

func TestCompatibleOppositeSides(t *testing.T) {
	sell, err := EncodeTransfer(Transfer{Kind: TransferERC1155, From: seller, TokenID: big.NewInt(4), Value: big.NewInt(2)})
	if err != nil {
		t.Fatal(err)
	}
	buy, err := EncodeTransfer(Transfer{Kind: TransferERC1155, To: buyer, TokenID: big.NewInt(4), Value: big.NewInt(2)})
	if err != nil {
		t.Fatal(err)
	}
	if !Compatible(sell, buy) {
		t.Fatal("opposite sides of the same transfer should be compatible")
	}
	l, r := ApplyReplacementPatterns(sell, buy)
	merged, err := DecodeTransfer(l)
	if err != nil {
		t.Fatal(err)
	}
	if merged.From != seller || merged.To != buyer {
		t.Errorf("merged transfer %s -> %s", merged.From, merged.To)
	}
	if !bytes.Equal(l, r) {
		t.Error("merged buffers differ")
	}

	otherAmount, _ := EncodeTransfer(Transfer{Kind: TransferERC1155, To: buyer, TokenID: big.NewInt(4), Value: big.NewInt(3)})
	if Compatible(sell, otherAmount) {
		t.Error("different amounts must not be compatible")
	}
	other721, _ := EncodeTransfer(Transfer{Kind: TransferERC721, To: buyer, TokenID: big.NewInt(4)})
	if Compatible(sell, other721) {
		t.Error("different lengths must not be compatible")
	}
}
