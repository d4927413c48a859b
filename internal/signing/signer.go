// Package signing defines the Signer capability and its concrete variants:
// BLS, local secp256k1, Azure Key Vault secp256k1, AWS KMS secp256k1, and
// K256 (Commit-Boost ECDSA proxy encoding). Signers are polymorphic over a
// single Sign method; the wire encoding differs per variant rather than per
// subclass ("carry the encoding in the artifact type, not the
// signer class").
package signing

import (
	"context"
	"encoding/hex"
	"strings"
)

// KeyType distinguishes the cryptographic scheme backing a Signer.
type KeyType string

const (
	KeyTypeBLS       KeyType = "BLS"
	KeyTypeSECP256K1 KeyType = "SECP256K1"
)

// Encoding identifies how an ArtifactSignature's bytes must be serialised.
type Encoding int

const (
	// EncodingBLSCompressed is a 96-byte compressed BLS signature.
	EncodingBLSCompressed Encoding = iota
	// EncodingEthSign is 65 bytes: R(32) || S(32) || V(1), V the full header byte.
	EncodingEthSign
	// EncodingK256Compact is 64 bytes: R(32) || S(32), no recovery byte, s <= n/2.
	EncodingK256Compact
)

// ArtifactSignature is the result of a Sign call, carrying enough
// information for the caller to hex-encode it correctly.
type ArtifactSignature struct {
	Bytes    []byte
	Encoding Encoding
}

// Hex renders the signature as a lowercase, 0x-prefixed hex string.
func (a ArtifactSignature) Hex() string {
	return "0x" + hex.EncodeToString(a.Bytes)
}

// Signer produces an ArtifactSignature for a message under a stable identifier.
type Signer interface {
	// Identifier returns the normalised, 0x-prefixed, lowercase hex public key
	// (for secp256k1 eth_sign signers, the Ethereum address).
	Identifier() string
	// KeyType reports the cryptographic scheme of this signer.
	KeyType() KeyType
	// Sign computes the signature over message. For consensus signers, message
	// is the signing root; for secp256k1 "eth_sign" signers, message is the
	// raw payload (the prehash is applied internally per the signer's config).
	Sign(ctx context.Context, message []byte) (ArtifactSignature, error)
}

// NormalizeIdentifier lowercases hex and ensures a single 0x prefix.
func NormalizeIdentifier(id string) string {
	id = strings.TrimPrefix(id, "0x")
	id = strings.TrimPrefix(id, "0X")
	return "0x" + strings.ToLower(id)
}
