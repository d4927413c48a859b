package signing

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
)

// DigestSigner is the capability contract for a remote key-management
// backend that can sign a digest by key identifier: AWS KMS or Azure Key
// Vault. Only this capability is modelled — the specific wire protocol of
// each backend lives in its own package and is out of scope here.
type DigestSigner interface {
	// SignDigest signs digest (or the raw payload, when the backend hashes
	// internally) and returns the raw signature bytes exactly as the backend
	// returned them (DER- or P1363-encoded).
	SignDigest(ctx context.Context, keyID string, digest []byte) (sigBytes []byte, err error)
}

// BackendEncoding identifies how a DigestSigner's raw bytes are structured.
type BackendEncoding int

const (
	BackendEncodingDER BackendEncoding = iota
	BackendEncodingP1363
)

// BackendSecpSigner wraps a remote DigestSigner (AWS KMS or Azure Key Vault)
// to produce eth_sign-encoded ArtifactSignatures, recovering the missing
// recovery id by trial recovery against the known public key.
type BackendSecpSigner struct {
	identifier  string
	keyID       string
	publicKey   *ecdsa.PublicKey
	backend     DigestSigner
	encoding    BackendEncoding
	hashLocally bool // "apply SHA-3 before signing" factory flag
	chainID     *big.Int
}

// NewBackendSecpSigner constructs a secp256k1 signer backed by a remote
// digest-signing capability (AWS KMS or Azure Key Vault).
//
// identifier is the 0x-prefixed Ethereum address this signer answers to.
// keyID is the backend-specific key handle (ARN, vault key name, ...).
// hashLocally controls whether the eth_sign prehash is computed here (true)
// or the raw payload is forwarded for the backend to hash (false).
func NewBackendSecpSigner(
	identifier string,
	keyID string,
	publicKey *ecdsa.PublicKey,
	backend DigestSigner,
	encoding BackendEncoding,
	hashLocally bool,
	chainID *big.Int,
) *BackendSecpSigner {
	return &BackendSecpSigner{
		identifier:  NormalizeIdentifier(identifier),
		keyID:       keyID,
		publicKey:   publicKey,
		backend:     backend,
		encoding:    encoding,
		hashLocally: hashLocally,
		chainID:     chainID,
	}
}

func (s *BackendSecpSigner) Identifier() string { return s.identifier }

func (s *BackendSecpSigner) KeyType() KeyType { return KeyTypeSECP256K1 }

func (s *BackendSecpSigner) Sign(ctx context.Context, payload []byte) (ArtifactSignature, error) {
	digest := payload
	if s.hashLocally {
		digest = EthSignPrehash(payload)
	}

	raw, err := s.backend.SignDigest(ctx, s.keyID, digest)
	if err != nil {
		return ArtifactSignature{}, fmt.Errorf("backend sign digest: %w", err)
	}

	r, sVal, err := parseBackendSignature(raw, s.encoding)
	if err != nil {
		return ArtifactSignature{}, fmt.Errorf("parse backend signature: %w", err)
	}
	r, sVal = CanonicalizeS(r, sVal)

	recID, err := RecoverID(digest, r, sVal, s.publicKey)
	if err != nil {
		return ArtifactSignature{}, fmt.Errorf("recover id: %w", err)
	}

	out := make([]byte, 65)
	r.FillBytes(out[:32])
	sVal.FillBytes(out[32:64])
	out[64] = EthSignHeaderByte(recID, s.chainID)

	return ArtifactSignature{Bytes: out, Encoding: EncodingEthSign}, nil
}

func parseBackendSignature(raw []byte, encoding BackendEncoding) (r, s *big.Int, err error) {
	switch encoding {
	case BackendEncodingDER:
		return ParseDERSignature(raw)
	case BackendEncodingP1363:
		return ParseP1363Signature(raw)
	default:
		return nil, nil, fmt.Errorf("unsupported backend encoding %d", encoding)
	}
}
