package signing

import (
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// secp256k1Order is the order n of the secp256k1 curve.
var secp256k1Order = gethcrypto.S256().Params().N

// secp256k1HalfOrder is n/2, the canonicalisation threshold for K256 and for
// backends (AWS KMS, Azure Key Vault) that don't return a low-S signature.
var secp256k1HalfOrder = new(big.Int).Rsh(secp256k1Order, 1)

// CanonicalizeS flips (r, s) to (r, n-s) if s > n/2, so every signature this
// service emits satisfies s <= n/2. Required by the K256 Commit-Boost
// encoding and applied defensively to KMS/Vault-returned
// signatures before recovery-id search.
func CanonicalizeS(r, s *big.Int) (*big.Int, *big.Int) {
	if s.Cmp(secp256k1HalfOrder) > 0 {
		s = new(big.Int).Sub(secp256k1Order, s)
	}
	return r, s
}

// derSignature is the ASN.1 SEQUENCE { INTEGER r, INTEGER s } produced by
// AWS KMS and HashiCorp Vault's transit backend for ECDSA_SHA_256 signing.
type derSignature struct {
	R *big.Int
	S *big.Int
}

// ParseDERSignature decodes a DER-encoded ECDSA signature, as returned by AWS
// KMS and HashiCorp Vault's transit backend.
func ParseDERSignature(der []byte) (r, s *big.Int, err error) {
	var sig derSignature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, nil, fmt.Errorf("parse DER signature: %w", err)
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("trailing data after DER signature")
	}
	return sig.R, sig.S, nil
}

// ParseP1363Signature decodes a fixed-width r||s signature (IEEE P1363),
// as returned by Azure Key Vault's sign operation.
func ParseP1363Signature(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != 64 {
		return nil, nil, fmt.Errorf("p1363 signature must be 64 bytes, got %d", len(sig))
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:])
	return r, s, nil
}

// RecoverID determines the recovery id (0..3) for (r, s) over hash such that
// recovering the public key from (r, s, recId) yields expectedPubKey. Used
// when a backend (AWS KMS, Azure Key Vault) returns an ECDSA signature
// without a recovery id
func RecoverID(hash []byte, r, s *big.Int, expectedPubKey *ecdsa.PublicKey) (byte, error) {
	rBytes := make([]byte, 32)
	sBytes := make([]byte, 32)
	r.FillBytes(rBytes)
	s.FillBytes(sBytes)

	expected := gethcrypto.FromECDSAPub(expectedPubKey)

	for recID := byte(0); recID < 4; recID++ {
		candidate := make([]byte, 65)
		copy(candidate[:32], rBytes)
		copy(candidate[32:64], sBytes)
		candidate[64] = recID

		recovered, err := gethcrypto.Ecrecover(hash, candidate)
		if err != nil {
			continue
		}
		if bytesEqual(recovered, expected) {
			return recID, nil
		}
	}
	return 0, fmt.Errorf("no recovery id matches expected public key")
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EthSignHeaderByte computes the full V header byte for the eth_sign
// encoding: recId + 27, or recId + 27 + 2*chainID when chainID is non-nil
// (EIP-155)
func EthSignHeaderByte(recID byte, chainID *big.Int) byte {
	v := uint64(recID) + 27
	if chainID != nil && chainID.Sign() > 0 {
		v += 2 * chainID.Uint64()
	}
	return byte(v)
}

// EthSignPrehash computes the Keccak-256 digest of the standard Ethereum
// personal-message prefix concatenated with payload
func EthSignPrehash(payload []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(payload))
	return gethcrypto.Keccak256([]byte(prefix), payload)
}
