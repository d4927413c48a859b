// Package tlsutil builds the server tls.Config for the signing HTTP API from
// a PKCS12 keystore plus an optional known-clients fingerprint file, mirroring
// Web3Signer's own --tls-keystore-file/--tls-known-clients-file surface
// (https://docs.web3signer.consensys.io/how-to/configure-tls).
package tlsutil

import (
	"bufio"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// MinVersion is the minimum TLS version the server will negotiate.
const MinVersion = tls.VersionTLS13

// Config names the files backing the server's TLS identity and its
// certificate-pinning allowlist for mutual TLS.
type Config struct {
	KeystoreFile         string
	KeystorePasswordFile string
	KnownClientsFile     string
}

// Validate reports whether the file combination makes sense before any file
// is actually read.
func (c Config) Validate() error {
	if c.KeystoreFile == "" {
		return nil
	}
	if c.KeystorePasswordFile == "" {
		return fmt.Errorf("tls keystore password file is required when a keystore file is set")
	}
	return nil
}

// Load builds a server tls.Config, or returns (nil, nil) when no keystore is
// configured, meaning the caller should serve plaintext.
func (c Config) Load() (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.KeystoreFile == "" {
		return nil, nil
	}

	password, err := loadFirstLine(c.KeystorePasswordFile)
	if err != nil {
		return nil, fmt.Errorf("read keystore password file: %w", err)
	}

	cert, err := loadKeystoreCertificate(c.KeystoreFile, password)
	if err != nil {
		return nil, fmt.Errorf("load server keystore: %w", err)
	}

	var fingerprints map[string]string
	if c.KnownClientsFile != "" {
		fingerprints, err = loadFingerprintsFile(c.KnownClientsFile)
		if err != nil {
			return nil, fmt.Errorf("load known clients file: %w", err)
		}
	}

	return buildServerConfig(cert, fingerprints), nil
}

func buildServerConfig(cert tls.Certificate, trustedFingerprints map[string]string) *tls.Config {
	cfg := &tls.Config{
		MinVersion:   MinVersion,
		Certificates: []tls.Certificate{cert},
	}

	if len(trustedFingerprints) == 0 {
		cfg.ClientAuth = tls.NoClientCert
		return cfg
	}

	cfg.ClientAuth = tls.RequireAnyClientCert
	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("no client certificate provided")
		}
		clientCert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("parse client certificate: %w", err)
		}
		name := clientCert.Subject.CommonName
		if name == "" {
			return fmt.Errorf("client certificate has no common name")
		}
		fingerprint := fingerprintOf(clientCert)
		expected, ok := trustedFingerprints[name]
		if !ok {
			return fmt.Errorf("client certificate common name not in known clients file: %s", name)
		}
		if parseFingerprint(expected) != fingerprint {
			return fmt.Errorf("client certificate fingerprint mismatch for %s", name)
		}
		return nil
	}
	return cfg
}

func fingerprintOf(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

func loadKeystoreCertificate(keystoreFile, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(keystoreFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read keystore file: %w", err)
	}
	privateKey, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode PKCS12 keystore: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  privateKey,
		Leaf:        cert,
	}, nil
}

// loadFingerprintsFile reads lines of "<common-name> <fingerprint>", matching
// Web3Signer's known-clients/known-servers file format.
func loadFingerprintsFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fingerprints file: %w", err)
	}
	defer f.Close()

	fingerprints := make(map[string]string)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid fingerprint entry at line %d: expected '<name> <fingerprint>'", line)
		}
		fingerprints[fields[0]] = parseFingerprint(fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read fingerprints file: %w", err)
	}
	return fingerprints, nil
}

func parseFingerprint(fingerprint string) string {
	return strings.ToLower(strings.ReplaceAll(fingerprint, ":", ""))
}

func loadFirstLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0]), nil
}
