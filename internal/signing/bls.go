package signing

import (
	"context"
	"fmt"

	"github.com/herumi/bls-eth-go-binary/bls"
)

// BLSSigner signs consensus-layer messages (already reduced to a 32-byte
// signing root) with a BLS12-381 secret key held in memory.
type BLSSigner struct {
	identifier string
	secretKey  *bls.SecretKey
}

// NewBLSSigner wraps a BLS secret key. bls.Init(bls.BLS12_381) and
// bls.SetETHmode(bls.EthModeDraft07) must have been called once at process
// start.
func NewBLSSigner(secretKey *bls.SecretKey) *BLSSigner {
	pub := secretKey.GetPublicKey().Serialize()
	return &BLSSigner{
		identifier: NormalizeIdentifier(fmt.Sprintf("%x", pub)),
		secretKey:  secretKey,
	}
}

func (s *BLSSigner) Identifier() string { return s.identifier }

func (s *BLSSigner) KeyType() KeyType { return KeyTypeBLS }

func (s *BLSSigner) Sign(_ context.Context, message []byte) (ArtifactSignature, error) {
	sig := s.secretKey.SignByte(message)
	if sig == nil {
		return ArtifactSignature{}, fmt.Errorf("bls sign: nil signature")
	}
	return ArtifactSignature{Bytes: sig.Serialize(), Encoding: EncodingBLSCompressed}, nil
}
