package signing

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// K256Signer produces Commit-Boost proxy signatures: a raw secp256k1 digest
// signature encoded as R(32) || S(32), no recovery byte, with s canonicalised
// to s <= n/2. This is the same key scheme as SecpLocalSigner but a different
// wire encoding ("carry the encoding in the artifact type").
type K256Signer struct {
	identifier string
	privateKey *ecdsa.PrivateKey
}

// NewK256Signer wraps a freshly generated Commit-Boost proxy key.
func NewK256Signer(privateKey *ecdsa.PrivateKey) *K256Signer {
	pub := gethcrypto.CompressPubkey(&privateKey.PublicKey)
	return &K256Signer{
		identifier: NormalizeIdentifier(fmt.Sprintf("%x", pub)),
		privateKey: privateKey,
	}
}

func (s *K256Signer) Identifier() string { return s.identifier }

func (s *K256Signer) KeyType() KeyType { return KeyTypeSECP256K1 }

// Sign signs message (already a 32-byte digest, e.g. a Commit-Boost signing
// root), then canonicalises s and drops the recovery byte.
func (s *K256Signer) Sign(_ context.Context, message []byte) (ArtifactSignature, error) {
	if len(message) != 32 {
		return ArtifactSignature{}, fmt.Errorf("k256 sign: message must be a 32-byte digest, got %d bytes", len(message))
	}

	sig, err := gethcrypto.Sign(message, s.privateKey)
	if err != nil {
		return ArtifactSignature{}, fmt.Errorf("k256 sign: %w", err)
	}

	r := new(big.Int).SetBytes(sig[:32])
	sVal := new(big.Int).SetBytes(sig[32:64])
	r, sVal = CanonicalizeS(r, sVal)

	out := make([]byte, 64)
	r.FillBytes(out[:32])
	sVal.FillBytes(out[32:])

	return ArtifactSignature{Bytes: out, Encoding: EncodingK256Compact}, nil
}

// PublicKeyECDSA exposes the proxy's public key.
func (s *K256Signer) PublicKeyECDSA() *ecdsa.PublicKey {
	return &s.privateKey.PublicKey
}
