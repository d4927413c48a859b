package signing

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SecpLocalSigner signs "eth_sign" payloads with a secp256k1 private key held
// in memory, applying the Ethereum personal-message prehash before signing.
type SecpLocalSigner struct {
	identifier string
	privateKey *ecdsa.PrivateKey
	chainID    *big.Int
}

// NewSecpLocalSigner wraps a secp256k1 private key. chainID is nil for
// pre-EIP-155 style V headers (recId+27); non-nil applies recId+27+2*chainID.
func NewSecpLocalSigner(privateKey *ecdsa.PrivateKey, chainID *big.Int) *SecpLocalSigner {
	addr := gethcrypto.PubkeyToAddress(privateKey.PublicKey)
	return &SecpLocalSigner{
		identifier: NormalizeIdentifier(addr.Hex()),
		privateKey: privateKey,
		chainID:    chainID,
	}
}

func (s *SecpLocalSigner) Identifier() string { return s.identifier }

func (s *SecpLocalSigner) KeyType() KeyType { return KeyTypeSECP256K1 }

// Sign computes the eth_sign encoding: the payload is prefixed
// and Keccak-256 hashed, then signed, producing R(32) || S(32) || V(1).
func (s *SecpLocalSigner) Sign(_ context.Context, payload []byte) (ArtifactSignature, error) {
	hash := EthSignPrehash(payload)

	sig, err := gethcrypto.Sign(hash, s.privateKey)
	if err != nil {
		return ArtifactSignature{}, fmt.Errorf("secp256k1 sign: %w", err)
	}
	if len(sig) != 65 {
		return ArtifactSignature{}, fmt.Errorf("unexpected signature length %d", len(sig))
	}

	recID := sig[64]
	out := make([]byte, 65)
	copy(out, sig[:64])
	out[64] = EthSignHeaderByte(recID, s.chainID)

	return ArtifactSignature{Bytes: out, Encoding: EncodingEthSign}, nil
}
