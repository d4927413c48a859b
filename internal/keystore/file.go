// Package keystore manages the on-disk lifecycle of keystore + password +
// metadata triples per validator, encrypting and decrypting EIP-2335
// keystores with keystorev4 and stamping them with a uuid.
package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	keystorev4 "github.com/wealdtech/go-eth2-wallet-encryptor-keystorev4"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
)

// File is an EIP-2335 keystore document.
type File struct {
	Crypto  map[string]interface{} `json:"crypto"`
	PubKey  string                 `json:"pubkey"`
	Version int                    `json:"version"`
	UUID    string                 `json:"uuid"`
	Path    string                 `json:"path"`
}

// Encrypt produces an EIP-2335 keystore JSON document for privateKey, whose
// public key is pubKeyHex (0x-prefixed hex, BLS or secp256k1), protected by
// password using scrypt via keystorev4.
func Encrypt(privateKey []byte, pubKeyHex, password, derivationPath string) ([]byte, error) {
	crypto, err := keystorev4.New().Encrypt(privateKey, password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindKeystoreDecryptError, "encrypt keystore", err)
	}

	doc := File{
		Crypto:  crypto,
		PubKey:  strings.TrimPrefix(pubKeyHex, "0x"),
		Version: 4,
		UUID:    uuid.New().String(),
		Path:    derivationPath,
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "marshal keystore", err)
	}
	return out, nil
}

// Decrypt recovers the raw private key bytes from an EIP-2335 keystore JSON
// document.
func Decrypt(keystoreJSON []byte, password string) ([]byte, error) {
	if strings.TrimSpace(password) == "" {
		return nil, apperrors.New(apperrors.KindKeystoreDecryptError, "password required for decrypting keystore")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(keystoreJSON, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.KindKeystoreDecryptError, "parse keystore JSON", err)
	}

	crypto, ok := raw["crypto"].(map[string]interface{})
	if !ok {
		return nil, apperrors.New(apperrors.KindKeystoreDecryptError, "keystore JSON missing crypto section")
	}

	privateKey, err := keystorev4.New().Decrypt(crypto, password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindKeystoreDecryptError, "decrypt keystore", err)
	}
	return privateKey, nil
}

// Triple names the three files backing one validator: keystore, password,
// and per-key metadata.
type Triple struct {
	KeystoreFile string
	PasswordFile string
	MetadataFile string
}

// PathsFor derives the triple of file paths a public key's keystore lives
// at under dir, without touching the filesystem. WriteTriple and the
// key-manager delete flow both derive paths this same way so a lookup
// never disagrees with what was originally written.
func PathsFor(dir, pubKeyHex string) Triple {
	base := strings.TrimPrefix(strings.ToLower(pubKeyHex), "0x")
	return Triple{
		KeystoreFile: filepath.Join(dir, base+".json"),
		PasswordFile: filepath.Join(dir, base+".txt"),
		MetadataFile: filepath.Join(dir, base+".yaml"),
	}
}

// WriteTriple writes the keystore JSON, password, and metadata YAML files
// for pubKeyHex under dir, fsyncing each before returning.
func WriteTriple(dir, pubKeyHex string, keystoreJSON []byte, password string, metadataYAML []byte) (Triple, error) {
	t := PathsFor(dir, pubKeyHex)

	if err := writeAndSync(t.KeystoreFile, keystoreJSON, 0o600); err != nil {
		return Triple{}, fmt.Errorf("write keystore file: %w", err)
	}
	if err := writeAndSync(t.PasswordFile, []byte(password), 0o600); err != nil {
		return Triple{}, fmt.Errorf("write password file: %w", err)
	}
	if err := writeAndSync(t.MetadataFile, metadataYAML, 0o600); err != nil {
		return Triple{}, fmt.Errorf("write metadata file: %w", err)
	}
	return t, nil
}

func writeAndSync(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// DeleteFiles removes the keystore, password, and metadata files for a
// public key, in that order. The removal is not atomic: it stops at the
// first file that fails to be removed, leaving the files removed before it
// deleted. Files already absent are skipped. A failure is surfaced as a
// KindStorageFailure apperrors.Error.
func DeleteFiles(t Triple) error {
	for _, path := range []string{t.KeystoreFile, t.PasswordFile, t.MetadataFile} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return apperrors.Wrap(apperrors.KindStorageFailure, "Error deleting keystore file", err)
		}
	}
	return nil
}
