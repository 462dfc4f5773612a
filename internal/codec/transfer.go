// Package codec encodes and decodes NFT transfer call data and reconciles
// two call-data buffers under their replacement patterns.
package codec

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/orderindexer/internal/domain"
	"github.com/alanyoungcy/orderindexer/internal/ethabi"
)

// TransferKind selects the transfer method shape.
type TransferKind int

const (
	// TransferERC721 is transferFrom / safeTransferFrom(address,address,uint256).
	TransferERC721 TransferKind = iota
	// TransferERC1155 is safeTransferFrom with an amount and data.
	TransferERC1155
	// TransferMerkleERC721 goes through the OpenSea merkle validator.
	TransferMerkleERC721
	// TransferMerkleERC1155 goes through the OpenSea merkle validator.
	TransferMerkleERC1155
)

// Transfer is a decoded NFT transfer call. Token, Root and Proof are only
// used by the merkle validator kinds; Value and Data only by ERC1155 kinds.
type Transfer struct {
	Kind    TransferKind
	From    common.Address
	To      common.Address
	Token   common.Address
	TokenID *big.Int
	Value   *big.Int
	Data    []byte
	Root    common.Hash
	Proof   []common.Hash
	Safe    bool
}

// CallData is an encoded call with its replacement pattern. Pattern bytes of
// 0xff mark positions the counter-order may overwrite.
type CallData struct {
	Data    []byte
	Pattern []byte
}

var (
	erc721TransferFrom = ethabi.NewMethod("transferFrom(address,address,uint256)",
		ethabi.Address, ethabi.Address, ethabi.Uint256)
	erc721SafeTransferFrom = ethabi.NewMethod("safeTransferFrom(address,address,uint256)",
		ethabi.Address, ethabi.Address, ethabi.Uint256)
	erc1155SafeTransferFrom = ethabi.NewMethod("safeTransferFrom(address,address,uint256,uint256,bytes)",
		ethabi.Address, ethabi.Address, ethabi.Uint256, ethabi.Uint256, ethabi.Bytes)
	merkleERC721 = ethabi.NewMethod("matchERC721UsingCriteria(address,address,address,uint256,bytes32,bytes32[])",
		ethabi.Address, ethabi.Address, ethabi.Address, ethabi.Uint256, ethabi.Bytes32, ethabi.Bytes32Array)
	merkleERC721Safe = ethabi.NewMethod("matchERC721WithSafeTransferUsingCriteria(address,address,address,uint256,bytes32,bytes32[])",
		ethabi.Address, ethabi.Address, ethabi.Address, ethabi.Uint256, ethabi.Bytes32, ethabi.Bytes32Array)
	merkleERC1155 = ethabi.NewMethod("matchERC1155UsingCriteria(address,address,address,uint256,uint256,bytes32,bytes32[])",
		ethabi.Address, ethabi.Address, ethabi.Address, ethabi.Uint256, ethabi.Uint256, ethabi.Bytes32, ethabi.Bytes32Array)
)

// EncodeTransfer produces the call data for t and a same-length pattern in
// which a from/to word is wildcarded when that address is the zero address.
func EncodeTransfer(t Transfer) (CallData, error) {
	var (
		data []byte
		err  error
	)
	tokenID := orZero(t.TokenID)
	switch t.Kind {
	case TransferERC721:
		m := erc721TransferFrom
		if t.Safe {
			m = erc721SafeTransferFrom
		}
		data, err = m.Encode(t.From, t.To, tokenID)
	case TransferERC1155:
		payload := t.Data
		if payload == nil {
			payload = []byte{}
		}
		data, err = erc1155SafeTransferFrom.Encode(t.From, t.To, tokenID, orZero(t.Value), payload)
	case TransferMerkleERC721:
		m := merkleERC721
		if t.Safe {
			m = merkleERC721Safe
		}
		data, err = m.Encode(t.From, t.To, t.Token, tokenID, [32]byte(t.Root), proofWords(t.Proof))
	case TransferMerkleERC1155:
		data, err = merkleERC1155.Encode(t.From, t.To, t.Token, tokenID, orZero(t.Value), [32]byte(t.Root), proofWords(t.Proof))
	default:
		return CallData{}, fmt.Errorf("codec: %w: transfer kind %d", domain.ErrUnsupportedCallData, t.Kind)
	}
	if err != nil {
		return CallData{}, fmt.Errorf("codec: encode transfer: %w", err)
	}
	return CallData{Data: data, Pattern: replacementPattern(len(data), t.From, t.To)}, nil
}

// replacementPattern wildcards the from (word 0) and to (word 1) arguments
// when they are the zero address. The selector and every other byte stay
// fixed.
func replacementPattern(n int, from, to common.Address) []byte {
	pattern := make([]byte, n)
	for i, addr := range []common.Address{from, to} {
		if addr != (common.Address{}) {
			continue
		}
		start := 4 + 32*i
		for j := start; j < start+32 && j < n; j++ {
			pattern[j] = 0xff
		}
	}
	return pattern
}

// DecodeTransfer dispatches on the selector. Unknown selectors and malformed
// bodies fail with domain.ErrUnsupportedCallData.
func DecodeTransfer(callData []byte) (Transfer, error) {
	if len(callData) < 4 {
		return Transfer{}, fmt.Errorf("codec: %w: %d bytes", domain.ErrUnsupportedCallData, len(callData))
	}
	var id [4]byte
	copy(id[:], callData[:4])

	switch id {
	case erc721TransferFrom.ID, erc721SafeTransferFrom.ID:
		v, err := erc721TransferFrom.Decode(callData)
		if err != nil {
			return Transfer{}, malformed(err)
		}
		return Transfer{
			Kind:    TransferERC721,
			From:    v[0].(common.Address),
			To:      v[1].(common.Address),
			TokenID: v[2].(*big.Int),
			Safe:    id == erc721SafeTransferFrom.ID,
		}, nil
	case erc1155SafeTransferFrom.ID:
		v, err := erc1155SafeTransferFrom.Decode(callData)
		if err != nil {
			return Transfer{}, malformed(err)
		}
		return Transfer{
			Kind:    TransferERC1155,
			From:    v[0].(common.Address),
			To:      v[1].(common.Address),
			TokenID: v[2].(*big.Int),
			Value:   v[3].(*big.Int),
			Data:    v[4].([]byte),
		}, nil
	case merkleERC721.ID, merkleERC721Safe.ID:
		v, err := merkleERC721.Decode(callData)
		if err != nil {
			return Transfer{}, malformed(err)
		}
		return Transfer{
			Kind:    TransferMerkleERC721,
			From:    v[0].(common.Address),
			To:      v[1].(common.Address),
			Token:   v[2].(common.Address),
			TokenID: v[3].(*big.Int),
			Root:    common.Hash(v[4].([32]byte)),
			Proof:   proofHashes(v[5].([][32]byte)),
			Safe:    id == merkleERC721Safe.ID,
		}, nil
	case merkleERC1155.ID:
		v, err := merkleERC1155.Decode(callData)
		if err != nil {
			return Transfer{}, malformed(err)
		}
		return Transfer{
			Kind:    TransferMerkleERC1155,
			From:    v[0].(common.Address),
			To:      v[1].(common.Address),
			Token:   v[2].(common.Address),
			TokenID: v[3].(*big.Int),
			Value:   v[4].(*big.Int),
			Root:    common.Hash(v[5].([32]byte)),
			Proof:   proofHashes(v[6].([][32]byte)),
		}, nil
	}
	return Transfer{}, fmt.Errorf("codec: %w: selector %x", domain.ErrUnsupportedCallData, id)
}

// Equal compares two transfers field by field.
func (t Transfer) Equal(o Transfer) bool {
	if t.Kind != o.Kind || t.From != o.From || t.To != o.To || t.Token != o.Token ||
		t.Root != o.Root || t.Safe != o.Safe || len(t.Proof) != len(o.Proof) {
		return false
	}
	if orZero(t.TokenID).Cmp(orZero(o.TokenID)) != 0 || orZero(t.Value).Cmp(orZero(o.Value)) != 0 {
		return false
	}
	for i := range t.Proof {
		if t.Proof[i] != o.Proof[i] {
			return false
		}
	}
	return bytes.Equal(t.Data, o.Data)
}

func malformed(err error) error {
	return fmt.Errorf("codec: %w: %v", domain.ErrUnsupportedCallData, err)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func proofWords(proof []common.Hash) [][32]byte {
	out := make([][32]byte, len(proof))
	for i, h := range proof {
		out[i] = h
	}
	return out
}

func proofHashes(words [][32]byte) []common.Hash {
	out := make([]common.Hash, len(words))
	for i, w := range words {
		out[i] = w
	}
	return out
}
