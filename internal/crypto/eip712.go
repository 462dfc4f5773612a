// Package crypto recovers order signers from raw, personal-message and
// EIP-712 signatures and builds the EIP-712 domain separators used by the
// supported exchanges.
package crypto

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var domainTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
}

// Domain identifies an exchange contract for EIP-712 signing.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// DomainSeparator returns hashStruct(EIP712Domain) for d.
func DomainSeparator(d Domain) (common.Hash, error) {
	domain := apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           ethmath.NewHexOrDecimal256(d.ChainID),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
	td := apitypes.TypedData{Types: domainTypes, PrimaryType: "EIP712Domain", Domain: domain}
	sep, err := td.HashStruct("EIP712Domain", domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("crypto: domain separator %s/%s: %w", d.Name, d.Version, err)
	}
	return common.BytesToHash(sep), nil
}

// TypedDataHash computes keccak256("\x19\x01" || domainSeparator || structHash).
func TypedDataHash(domainSeparator, structHash common.Hash) common.Hash {
	return ethcrypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator[:], structHash[:])
}
