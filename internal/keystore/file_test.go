package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	privKey := []byte("a very secret private key......")

	data, err := Encrypt(privKey, "0xdeadbeef", "correct horse battery staple", "m/12381/3600/0/0/0")
	require.NoError(t, err)

	decrypted, err := Decrypt(data, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, privKey, decrypted)
}

func TestDecryptWrongPassword(t *testing.T) {
	privKey := []byte("a very secret private key......")

	data, err := Encrypt(privKey, "0xdeadbeef", "correct password", "")
	require.NoError(t, err)

	_, err = Decrypt(data, "wrong password")
	require.Error(t, err)
}

func TestDecryptEmptyPassword(t *testing.T) {
	_, err := Decrypt([]byte(`{"crypto":{}}`), "")
	require.Error(t, err)
}

func TestWriteAndDeleteTriple(t *testing.T) {
	dir := t.TempDir()

	keystoreJSON, err := Encrypt([]byte("secret"), "0xabc123", "password", "")
	require.NoError(t, err)

	triple, err := WriteTriple(dir, "0xabc123", keystoreJSON, "password", []byte("type: file-raw\n"))
	require.NoError(t, err)

	for _, f := range []string{triple.KeystoreFile, triple.PasswordFile, triple.MetadataFile} {
		_, err := os.Stat(f)
		require.NoError(t, err)
	}

	require.NoError(t, DeleteFiles(triple))

	for _, f := range []string{triple.KeystoreFile, triple.PasswordFile, triple.MetadataFile} {
		_, err := os.Stat(f)
		require.True(t, os.IsNotExist(err))
	}
}

func TestDeleteFilesMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	triple := Triple{
		KeystoreFile: filepath.Join(dir, "missing.json"),
	}
	require.NoError(t, DeleteFiles(triple))
}
