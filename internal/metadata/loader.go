package metadata

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/herumi/bls-eth-go-binary/bls"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/PegaSysEng/Eth2Signer/internal/backends"
	"github.com/PegaSysEng/Eth2Signer/internal/keystore"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

// Defaults fills in credential fields a metadata entry left blank, sourced
// from the CLI's global --azure-vault-*/--aws-secrets-* flags
// so an operator managing many keys against one vault or account doesn't
// have to repeat credentials in every metadata file.
type Defaults struct {
	AzureClientID     string
	AzureClientSecret string
	AzureTenantID     string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

func (d Defaults) apply(e Entry) Entry {
	switch e.Type {
	case TypeAzureSecret, TypeAzureKey:
		if e.ClientID == "" {
			e.ClientID = d.AzureClientID
		}
		if e.ClientSecret == "" {
			e.ClientSecret = d.AzureClientSecret
		}
		if e.TenantID == "" {
			e.TenantID = d.AzureTenantID
		}
	case TypeAWSSecret, TypeAWSKMS:
		if e.Region == "" {
			e.Region = d.AWSRegion
		}
		if e.AccessKeyID == "" {
			e.AccessKeyID = d.AWSAccessKeyID
		}
		if e.SecretAccessKey == "" {
			e.SecretAccessKey = d.AWSSecretAccessKey
		}
	}
	return e
}

// ParseEntry unmarshals one metadata YAML file's contents.
func ParseEntry(data []byte) (Entry, error) {
	var e Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("parse metadata YAML: %w", err)
	}
	if e.Type == "" {
		return Entry{}, fmt.Errorf("metadata entry missing required 'type' field")
	}
	return e, nil
}

// BuildSigner constructs a signing.Signer from a parsed metadata Entry.
// baseDir resolves keystoreFile/keystorePasswordFile relative paths.
// chainID configures the eth_sign V-header for secp256k1 signers (nil for
// pre-EIP-155 headers).
func BuildSigner(ctx context.Context, baseDir string, e Entry, chainID *big.Int) (signing.Signer, error) {
	switch e.Type {
	case TypeFileRaw:
		return buildFileRawSigner(e, chainID)
	case TypeFileKeystore:
		return buildFileKeystoreSigner(baseDir, e, chainID)
	case TypeHashicorp:
		return buildHashicorpSigner(ctx, e, chainID)
	case TypeAzureSecret, TypeAzureKey:
		return buildAzureSigner(ctx, e, chainID)
	case TypeAWSSecret:
		return buildAWSSecretSigner(ctx, e, chainID)
	case TypeAWSKMS:
		return buildAWSKMSSigner(ctx, e, chainID)
	default:
		return nil, fmt.Errorf("unsupported metadata entry type %q", e.Type)
	}
}

func buildFileRawSigner(e Entry, chainID *big.Int) (signing.Signer, error) {
	key := strings.TrimPrefix(e.PrivateKey, "0x")

	if e.KeyType == KeyTypeBLS {
		raw, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("decode raw BLS private key: %w", err)
		}
		sk := &bls.SecretKey{}
		if err := sk.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("deserialize BLS private key: %w", err)
		}
		return signing.NewBLSSigner(sk), nil
	}

	priv, err := gethcrypto.HexToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("parse raw secp256k1 private key: %w", err)
	}
	return signing.NewSecpLocalSigner(priv, chainID), nil
}

func buildFileKeystoreSigner(baseDir string, e Entry, chainID *big.Int) (signing.Signer, error) {
	keystorePath := resolvePath(baseDir, e.KeystoreFile)
	passwordPath := resolvePath(baseDir, e.KeystorePasswordFile)

	keystoreJSON, err := os.ReadFile(filepath.Clean(keystorePath))
	if err != nil {
		return nil, fmt.Errorf("read keystore file %s: %w", keystorePath, err)
	}
	password, err := os.ReadFile(filepath.Clean(passwordPath))
	if err != nil {
		return nil, fmt.Errorf("read keystore password file %s: %w", passwordPath, err)
	}

	raw, err := keystore.Decrypt(keystoreJSON, strings.TrimSpace(string(password)))
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", keystorePath, err)
	}

	if e.KeyType == KeyTypeBLS {
		sk := &bls.SecretKey{}
		if err := sk.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("deserialize BLS keystore secret: %w", err)
		}
		return signing.NewBLSSigner(sk), nil
	}

	priv, err := gethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse secp256k1 keystore secret: %w", err)
	}
	return signing.NewSecpLocalSigner(priv, chainID), nil
}

func buildHashicorpSigner(ctx context.Context, e Entry, chainID *big.Int) (signing.Signer, error) {
	client := backends.NewHashicorpClient(backends.HashicorpConfig{
		ServerHost:         e.ServerHost,
		ServerPort:         e.ServerPort,
		Token:              e.Token,
		TLSEnabled:         e.TLSEnabled,
		TLSKnownServerFile: e.TLSKnownServerFile,
	})

	secret, err := client.FetchSecret(ctx, e.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("fetch hashicorp secret %s: %w", e.KeyPath, err)
	}
	return signerFromRawSecret(secret, e.KeyType, chainID)
}

func buildAzureSigner(ctx context.Context, e Entry, chainID *big.Int) (signing.Signer, error) {
	client := backends.NewAzureVaultClient(e.VaultName, backends.AzureCredentials{
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		TenantID:     e.TenantID,
	})

	if e.Type == TypeAzureKey {
		pub, err := client.GetPublicKey(ctx, e.KeyName)
		if err != nil {
			return nil, fmt.Errorf("fetch azure key public key %s: %w", e.KeyName, err)
		}
		identifier := gethcrypto.PubkeyToAddress(*pub).Hex()
		return signing.NewBackendSecpSigner(identifier, e.KeyName, pub, client, signing.BackendEncodingP1363, true, chainID), nil
	}

	secret, err := client.FetchSecret(ctx, e.SecretName)
	if err != nil {
		return nil, fmt.Errorf("fetch azure secret %s: %w", e.SecretName, err)
	}
	return signerFromRawSecret(secret, e.KeyType, chainID)
}

func buildAWSSecretSigner(ctx context.Context, e Entry, chainID *big.Int) (signing.Signer, error) {
	client, err := backends.NewAWSSecretsManagerClient(awsConfig(e))
	if err != nil {
		return nil, fmt.Errorf("build aws secrets manager client: %w", err)
	}

	secret, err := client.FetchSecret(ctx, e.SecretName)
	if err != nil {
		return nil, fmt.Errorf("fetch aws secret %s: %w", e.SecretName, err)
	}
	return signerFromRawSecret(secret, e.KeyType, chainID)
}

func buildAWSKMSSigner(ctx context.Context, e Entry, chainID *big.Int) (signing.Signer, error) {
	client, err := backends.NewAWSKMSClient(awsConfig(e))
	if err != nil {
		return nil, fmt.Errorf("build aws kms client: %w", err)
	}

	pub, err := client.GetPublicKey(ctx, e.KMSKeyID)
	if err != nil {
		return nil, fmt.Errorf("fetch aws kms public key %s: %w", e.KMSKeyID, err)
	}
	identifier := gethcrypto.PubkeyToAddress(*pub).Hex()
	return signing.NewBackendSecpSigner(identifier, e.KMSKeyID, pub, client, signing.BackendEncodingDER, true, chainID), nil
}

func signerFromRawSecret(secret string, keyType KeyType, chainID *big.Int) (signing.Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(secret, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode secret as hex: %w", err)
	}

	if keyType == KeyTypeBLS {
		sk := &bls.SecretKey{}
		if err := sk.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("deserialize BLS secret: %w", err)
		}
		return signing.NewBLSSigner(sk), nil
	}

	var priv *ecdsa.PrivateKey
	priv, err = gethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse secp256k1 secret: %w", err)
	}
	return signing.NewSecpLocalSigner(priv, chainID), nil
}

func awsConfig(e Entry) backends.AWSConfig {
	mode := backends.AWSAuthModeEnvironment
	if strings.EqualFold(e.AuthenticationMode, string(backends.AWSAuthModeSpecified)) {
		mode = backends.AWSAuthModeSpecified
	}
	return backends.AWSConfig{
		AuthMode:         mode,
		Region:           e.Region,
		AccessKeyID:      e.AccessKeyID,
		SecretAccessKey:  e.SecretAccessKey,
		EndpointOverride: e.EndpointOverride,
	}
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

type loadOutcome struct {
	signer signing.Signer
	err    error
	file   string
}

// LoadDirectory scans dir for metadata YAML files (case-insensitive .yaml/
// .yml extension), skipping hidden files, building a Signer per file with a
// bounded worker pool. Duplicate identifiers keep the first encountered and count the rest as
// errors; parser or build failures also count as errors.
func LoadDirectory(ctx context.Context, logger *zap.Logger, dir string, chainID *big.Int, concurrency int) MappedResults[signing.Signer] {
	return LoadDirectoryWithDefaults(ctx, logger, dir, chainID, concurrency, Defaults{})
}

// LoadDirectoryWithDefaults is LoadDirectory with defaults applied to any
// entry field its metadata file left blank.
func LoadDirectoryWithDefaults(ctx context.Context, logger *zap.Logger, dir string, chainID *big.Int, concurrency int, defaults Defaults) MappedResults[signing.Signer] {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("failed to read metadata directory", zap.String("dir", dir), zap.Error(err))
		return MappedResults[signing.Signer]{}
	}

	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	var results []loadOutcome
	p := pool.New().WithMaxGoroutines(concurrency)

	for _, de := range entries {
		de := de
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(de.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		p.Go(func() {
			path := filepath.Join(dir, de.Name())
			out := loadFile(ctx, dir, path, chainID, defaults)

			mu.Lock()
			results = append(results, out)
			mu.Unlock()
		})
	}
	p.Wait()

	return collectResults(logger, results)
}

func loadFile(ctx context.Context, baseDir, path string, chainID *big.Int, defaults Defaults) loadOutcome {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return loadOutcome{err: err, file: path}
	}
	entry, err := ParseEntry(data)
	if err != nil {
		return loadOutcome{err: err, file: path}
	}
	entry = defaults.apply(entry)
	signer, err := BuildSigner(ctx, baseDir, entry, chainID)
	return loadOutcome{signer: signer, err: err, file: path}
}

func collectResults(logger *zap.Logger, results []loadOutcome) MappedResults[signing.Signer] {
	out := MappedResults[signing.Signer]{}
	seen := make(map[string]bool)
	for _, r := range results {
		if r.err != nil {
			logger.Warn("failed to load metadata file", zap.String("file", r.file), zap.Error(r.err))
			out.ErrorCount++
			continue
		}
		id := r.signer.Identifier()
		if seen[id] {
			logger.Warn("duplicate identifier across metadata files, keeping first",
				zap.String("identifier", id), zap.String("file", r.file))
			out.ErrorCount++
			continue
		}
		seen[id] = true
		out.Values = append(out.Values, r.signer)
	}
	return out
}
