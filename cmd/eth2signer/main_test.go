package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var logger = zap.NewNop()

func TestDecodeHex4RoundTrip(t *testing.T) {
	out, err := decodeHex4("0xdeadbeef")
	require.NoError(t, err)
	require.Equal(t, [4]byte{0xde, 0xad, 0xbe, 0xef}, out)
}

func TestDecodeHex4RejectsWrongLength(t *testing.T) {
	_, err := decodeHex4("0xdead")
	require.ErrorContains(t, err, "expected 4 bytes")
}

func TestDecodeHex32RoundTrip(t *testing.T) {
	hexStr := "0x" + repeatHex("ab", 32)
	out, err := decodeHex32(hexStr)
	require.NoError(t, err)
	require.Equal(t, byte(0xab), out[0])
	require.Equal(t, byte(0xab), out[31])
}

func TestDecodeHex32RejectsMalformedInput(t *testing.T) {
	_, err := decodeHex32("0xnothex")
	require.Error(t, err)
}

func TestSharedConfigLoadDefaults(t *testing.T) {
	cfg := SharedConfig{
		AzureVaultClientID:     "client",
		AzureVaultClientSecret: "secret",
		AzureVaultTenantID:     "tenant",
		AWSSecretsRegion:       "us-east-1",
	}
	defaults := cfg.loadDefaults()
	require.Equal(t, "client", defaults.AzureClientID)
	require.Equal(t, "secret", defaults.AzureClientSecret)
	require.Equal(t, "tenant", defaults.AzureTenantID)
	require.Equal(t, "us-east-1", defaults.AWSRegion)
}

func TestSharedConfigTLSConfigWithoutCertsIsNil(t *testing.T) {
	cfg := SharedConfig{}
	tlsConfig, err := cfg.tlsConfig(logger)
	require.NoError(t, err)
	require.Nil(t, tlsConfig)
}

func TestSharedConfigTLSConfigRequiresPasswordFile(t *testing.T) {
	cfg := SharedConfig{TLSKeystoreFile: "server.p12"}
	_, err := cfg.tlsConfig(logger)
	require.ErrorContains(t, err, "password file is required")
}

func TestSharedConfigTLSConfigMissingKeystoreFileFails(t *testing.T) {
	dir := t.TempDir()
	passwordFile := filepath.Join(dir, "password.txt")
	require.NoError(t, os.WriteFile(passwordFile, []byte("changeit"), 0o600))

	cfg := SharedConfig{
		TLSKeystoreFile:         filepath.Join(dir, "missing.p12"),
		TLSKeystorePasswordFile: passwordFile,
	}
	_, err := cfg.tlsConfig(logger)
	require.Error(t, err)
}

func TestWatermarkRepairCmdFailsWithUnreachableDatabase(t *testing.T) {
	cmd := &WatermarkRepairCmd{SlashingProtectionDBURL: "postgres://localhost:1/does-not-exist"}
	err := cmd.Run(logger)
	require.Error(t, err)
}

func TestExportCmdFailsWithUnreachableDatabase(t *testing.T) {
	cmd := &ExportCmd{SlashingProtectionDBURL: "postgres://localhost:1/does-not-exist"}
	err := cmd.Run(logger)
	require.Error(t, err)
}

func TestImportCmdFailsWithUnreachableDatabase(t *testing.T) {
	cmd := &ImportCmd{SlashingProtectionDBURL: "postgres://localhost:1/does-not-exist"}
	err := cmd.Run(logger)
	require.Error(t, err)
}

func repeatHex(pair string, count int) string {
	out := make([]byte, 0, len(pair)*count)
	for i := 0; i < count; i++ {
		out = append(out, pair...)
	}
	return string(out)
}
