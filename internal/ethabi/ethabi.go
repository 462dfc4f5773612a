// Package ethabi holds the ABI type table and selector helpers shared by the
// codec, identity and transaction-preparation packages.
package ethabi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	Address      = MustType("address", nil)
	Uint8        = MustType("uint8", nil)
	Uint256      = MustType("uint256", nil)
	Bool         = MustType("bool", nil)
	Bytes        = MustType("bytes", nil)
	Bytes4       = MustType("bytes4", nil)
	Bytes32      = MustType("bytes32", nil)
	Bytes32Array = MustType("bytes32[]", nil)
	BytesArray   = MustType("bytes[]", nil)
	PartArray    = MustType("tuple[]", PartComponents)
)

// PartComponents describes the (address account, uint96 value) tuple.
var PartComponents = []abi.ArgumentMarshaling{
	{Name: "account", Type: "address"},
	{Name: "value", Type: "uint96"},
}

// MustType builds an abi.Type and panics on a malformed type string. It is
// only called with literals at package init.
func MustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("ethabi: type %q: %v", t, err))
	}
	return typ
}

// Args wraps types as unnamed arguments.
func Args(types ...abi.Type) abi.Arguments {
	out := make(abi.Arguments, len(types))
	for i, t := range types {
		out[i] = abi.Argument{Type: t}
	}
	return out
}

// Selector returns the 4-byte method id of a canonical signature.
func Selector(signature string) [4]byte {
	var id [4]byte
	copy(id[:], crypto.Keccak256([]byte(signature))[:4])
	return id
}

// Method is a callable contract function: its selector and argument list.
type Method struct {
	Signature string
	ID        [4]byte
	Inputs    abi.Arguments
}

// NewMethod derives the selector from signature.
func NewMethod(signature string, inputs ...abi.Type) Method {
	return Method{Signature: signature, ID: Selector(signature), Inputs: Args(inputs...)}
}

// Encode packs args behind the selector.
func (m Method) Encode(args ...any) ([]byte, error) {
	body, err := m.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("ethabi: pack %s: %w", m.Signature, err)
	}
	return append(m.ID[:], body...), nil
}

// Decode unpacks call data whose selector has already been matched.
func (m Method) Decode(callData []byte) ([]any, error) {
	if len(callData) < 4 {
		return nil, fmt.Errorf("ethabi: call data too short for %s", m.Signature)
	}
	return m.Inputs.Unpack(callData[4:])
}

// Word left-pads b to a 32-byte ABI word.
func Word(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// Uint returns the uint256 word of n. Nil encodes as zero.
func Uint(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(n.Bytes(), 32)
}

// AddressWord left-pads an address to a word.
func AddressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// Bytes4Word right-pads a bytes4 value to a word, as abi.encode does for
// fixed-size byte arrays.
func Bytes4Word(b [4]byte) []byte {
	return common.RightPadBytes(b[:], 32)
}

// Part is the ABI shape of a (account, value) fee share.
type Part struct {
	Account common.Address `abi:"account"`
	Value   *big.Int       `abi:"value"`
}
