package tlsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidateRequiresPasswordFileWithKeystore(t *testing.T) {
	cfg := Config{KeystoreFile: "server.p12"}
	require.ErrorContains(t, cfg.Validate(), "password file is required")
}

func TestConfigValidateAllowsEmptyConfig(t *testing.T) {
	require.NoError(t, Config{}.Validate())
}

func TestConfigLoadWithoutKeystoreReturnsNil(t *testing.T) {
	cfg, err := Config{}.Load()
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestConfigLoadMissingKeystoreFileFails(t *testing.T) {
	dir := t.TempDir()
	passwordFile := filepath.Join(dir, "password.txt")
	require.NoError(t, os.WriteFile(passwordFile, []byte("changeit\n"), 0o600))

	cfg := Config{
		KeystoreFile:         filepath.Join(dir, "missing.p12"),
		KeystorePasswordFile: passwordFile,
	}
	_, err := cfg.Load()
	require.ErrorContains(t, err, "load server keystore")
}

func TestLoadFingerprintsFileParsesEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known-clients.txt")
	content := "# comment\nvalidator-client AB:CD:EF:00\n\nother-client abcdef00\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	fingerprints, err := loadFingerprintsFile(path)
	require.NoError(t, err)
	require.Equal(t, "abcdef00", fingerprints["validator-client"])
	require.Equal(t, "abcdef00", fingerprints["other-client"])
}

func TestLoadFingerprintsFileRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known-clients.txt")
	require.NoError(t, os.WriteFile(path, []byte("only-one-field\n"), 0o600))

	_, err := loadFingerprintsFile(path)
	require.ErrorContains(t, err, "invalid fingerprint entry")
}

func TestParseFingerprintNormalizesCase(t *testing.T) {
	require.Equal(t, "abcdef", parseFingerprint("AB:CD:EF"))
	require.Equal(t, "abcdef", parseFingerprint("ABCDEF"))
}

func TestLoadFirstLineTrimsWhitespaceAndExtraLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "password.txt")
	require.NoError(t, os.WriteFile(path, []byte("  changeit  \nignored\n"), 0o600))

	password, err := loadFirstLine(path)
	require.NoError(t, err)
	require.Equal(t, "changeit", password)
}
