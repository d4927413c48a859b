package proxykey

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/herumi/bls-eth-go-binary/bls"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/keystore"
	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

// Generated describes a freshly minted proxy key.
type Generated struct {
	Identifier string
	Scheme     Scheme
	Signer     signing.Signer
	Message    *Message
}

// ConsensusSigner is the subset of signing.Signer used to sign the
// ProxyKeyMessage delegating to a new proxy key.
type ConsensusSigner interface {
	Sign(ctx context.Context, message []byte) (signing.ArtifactSignature, error)
	Identifier() string
}

// Generate creates a fresh proxy key of the requested scheme, writes it as
// an encrypted keystore under <proxyRoot>/<consensus>/<scheme>/<pub>.json,
// registers it against consensusID in reg, and returns the delegation
// message ready to be signed by the consensus key. password protects the
// new keystore the same way an operator-supplied password would.
func Generate(ctx context.Context, reg *registry.Registry, proxyRoot, consensusID string, scheme Scheme, password string) (*Generated, error) {
	consensusID = signing.NormalizeIdentifier(consensusID)
	consensusRaw, err := hexDecode(consensusID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadRequest, "decode consensus identifier", err)
	}

	var s signing.Signer
	var proxyPubKey []byte
	var privateKeyBytes []byte

	switch scheme {
	case SchemeBLS:
		var sk bls.SecretKey
		sk.SetByCSPRNG()
		s = signing.NewBLSSigner(&sk)
		proxyPubKey = sk.GetPublicKey().Serialize()
		privateKeyBytes = sk.Serialize()
	case SchemeECDSA:
		sk, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "generate proxy ecdsa key", err)
		}
		s = signing.NewK256Signer(sk)
		proxyPubKey = gethcrypto.CompressPubkey(&sk.PublicKey)
		privateKeyBytes = gethcrypto.FromECDSA(sk)
	default:
		return nil, apperrors.New(apperrors.KindBadRequest, fmt.Sprintf("unsupported proxy key scheme %q", scheme))
	}

	pubHex := fmt.Sprintf("0x%x", proxyPubKey)
	keystoreJSON, err := keystore.Encrypt(privateKeyBytes, pubHex, password, "")
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(proxyRoot, consensusID, string(scheme))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "create proxy key directory", err)
	}
	metadataYAML := []byte(fmt.Sprintf("type: file-keystore\nconsensus: %s\nscheme: %s\n", consensusID, scheme))
	if _, err := keystore.WriteTriple(dir, pubHex, keystoreJSON, password, metadataYAML); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "write proxy keystore", err)
	}

	reg.AddProxy(ctx, s, consensusID)

	return &Generated{
		Identifier: s.Identifier(),
		Scheme:     scheme,
		Signer:     s,
		Message:    &Message{Delegator: consensusRaw, Proxy: proxyPubKey},
	}, nil
}

// Delegate computes the signing root for msg under domain and signs it
// with the consensus key, producing the delegation signature Commit-Boost
// clients verify before trusting the proxy key.
func Delegate(ctx context.Context, consensus ConsensusSigner, msg *Message, domain Domain) (signing.ArtifactSignature, error) {
	root, err := SigningRoot(msg, domain)
	if err != nil {
		return signing.ArtifactSignature{}, apperrors.Wrap(apperrors.KindInternal, "compute proxy delegation signing root", err)
	}
	return consensus.Sign(ctx, root[:])
}

func hexDecode(id string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(id, "0x"))
}
