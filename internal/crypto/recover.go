package crypto

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/orderindexer/internal/domain"
)

// SchemeKind selects how the signed payload is turned into a digest.
type SchemeKind int

const (
	// SchemeRawDigest signs the 32-byte payload as is.
	SchemeRawDigest SchemeKind = iota
	// SchemePersonalMessage prefixes "\x19Ethereum Signed Message:\n<len>".
	SchemePersonalMessage
	// SchemeTypedData treats the payload as an EIP-712 struct hash.
	SchemeTypedData
)

func (k SchemeKind) String() string {
	switch k {
	case SchemeRawDigest:
		return "raw"
	case SchemePersonalMessage:
		return "personal"
	case SchemeTypedData:
		return "typed"
	}
	return fmt.Sprintf("scheme(%d)", int(k))
}

// Scheme is a signing scheme. Domain is only read for SchemeTypedData.
type Scheme struct {
	Kind   SchemeKind
	Domain common.Hash
}

// RawDigest returns the raw-digest scheme.
func RawDigest() Scheme { return Scheme{Kind: SchemeRawDigest} }

// PersonalMessage returns the eth_sign scheme.
func PersonalMessage() Scheme { return Scheme{Kind: SchemePersonalMessage} }

// TypedData returns the EIP-712 scheme for a domain separator.
func TypedData(domainSeparator common.Hash) Scheme {
	return Scheme{Kind: SchemeTypedData, Domain: domainSeparator}
}

// Digest returns the hash the signer actually signed.
func (s Scheme) Digest(payload []byte) (common.Hash, error) {
	switch s.Kind {
	case SchemeRawDigest:
		if len(payload) != common.HashLength {
			return common.Hash{}, fmt.Errorf("crypto: %w: raw digest of %d bytes", domain.ErrMalformedSignature, len(payload))
		}
		return common.BytesToHash(payload), nil
	case SchemePersonalMessage:
		return common.BytesToHash(accounts.TextHash(payload)), nil
	case SchemeTypedData:
		if len(payload) != common.HashLength {
			return common.Hash{}, fmt.Errorf("crypto: %w: struct hash of %d bytes", domain.ErrMalformedSignature, len(payload))
		}
		return TypedDataHash(s.Domain, common.BytesToHash(payload)), nil
	}
	return common.Hash{}, fmt.Errorf("crypto: unknown scheme %s", s.Kind)
}

// Recover returns the address that produced sig over payload under scheme.
func Recover(payload, sig []byte, scheme Scheme) (common.Address, error) {
	digest, err := scheme.Digest(payload)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverDigest(digest, sig)
}

// RecoverDigest recovers the signer of a 32-byte digest. It accepts 65-byte
// signatures with v in {0,1} or {27,28} and 64-byte compact signatures.
func RecoverDigest(digest common.Hash, sig []byte) (common.Address, error) {
	norm, err := NormalizeSignature(sig)
	if err != nil {
		return common.Address{}, err
	}
	rsv := make([]byte, 65)
	copy(rsv, norm)
	rsv[64] -= 27
	pub, err := ethcrypto.SigToPub(digest[:], rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: %w: %v", domain.ErrMalformedSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// NormalizeSignature returns a fresh 65-byte r||s||v signature with v in
// {27,28}. A 64-byte compact signature carries the recovery id in the top
// bit of s, which is cleared.
func NormalizeSignature(sig []byte) ([]byte, error) {
	out := make([]byte, 65)
	switch len(sig) {
	case 65:
		copy(out, sig)
		v := sig[64]
		if v >= 27 {
			v -= 27
		}
		if v > 1 {
			return nil, fmt.Errorf("crypto: %w: recovery id %d", domain.ErrMalformedSignature, sig[64])
		}
		out[64] = v + 27
	case 64:
		copy(out, sig)
		out[64] = 27 + (sig[32] >> 7)
		out[32] &= 0x7f
	default:
		return nil, fmt.Errorf("crypto: %w: %d bytes", domain.ErrMalformedSignature, len(sig))
	}
	return out, nil
}
