package proxykey

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/herumi/bls-eth-go-binary/bls"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/keystore"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

// schemes lists every directory LoadDirectory scans under a consensus
// identifier, matching the layout Generate writes to.
var schemes = []Scheme{SchemeBLS, SchemeECDSA}

// LoadDirectory scans <proxyRoot>/<consensus>/<bls|ecdsa>/ for keystore
// files previously written by Generate and decrypts each with the shared
// proxy password, returning one signer per proxy key found. A missing
// scheme directory is not an error: a consensus identifier that has never
// generated a proxy key of that scheme has nothing to load. A keystore
// that fails to read or decrypt is logged and skipped rather than failing
// the whole scan, so one bad file doesn't lose every other proxy key.
func LoadDirectory(logger *zap.Logger, proxyRoot, consensus, password string) []signing.Signer {
	consensus = signing.NormalizeIdentifier(consensus)

	var out []signing.Signer
	for _, scheme := range schemes {
		dir := filepath.Join(proxyRoot, consensus, string(scheme))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("failed to read proxy keystore directory", zap.String("dir", dir), zap.Error(err))
			}
			continue
		}

		for _, de := range entries {
			if de.IsDir() || strings.ToLower(filepath.Ext(de.Name())) != ".json" {
				continue
			}
			path := filepath.Join(dir, de.Name())
			s, err := loadProxyKeystore(scheme, path, password)
			if err != nil {
				logger.Warn("failed to load proxy keystore", zap.String("file", path), zap.Error(err))
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

func loadProxyKeystore(scheme Scheme, path, password string) (signing.Signer, error) {
	keystoreJSON, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read proxy keystore: %w", err)
	}
	raw, err := keystore.Decrypt(keystoreJSON, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt proxy keystore: %w", err)
	}
	return signerFromScheme(scheme, raw)
}

func signerFromScheme(scheme Scheme, raw []byte) (signing.Signer, error) {
	switch scheme {
	case SchemeBLS:
		var sk bls.SecretKey
		if err := sk.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("deserialize proxy BLS key: %w", err)
		}
		return signing.NewBLSSigner(&sk), nil
	case SchemeECDSA:
		priv, err := gethcrypto.ToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy secp256k1 key: %w", err)
		}
		return signing.NewK256Signer(priv), nil
	default:
		return nil, fmt.Errorf("unsupported proxy key scheme %q", scheme)
	}
}
