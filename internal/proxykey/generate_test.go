package proxykey

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/herumi/bls-eth-go-binary/bls"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

var testConsensusID = "0x" + strings.Repeat("aa", 48)

func TestGenerateBLSWritesKeystoreAndRegisters(t *testing.T) {
	require.NoError(t, bls.Init(bls.BLS12_381))

	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())
	dir := t.TempDir()

	gen, err := Generate(ctx, reg, dir, testConsensusID, SchemeBLS, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, SchemeBLS, gen.Scheme)
	require.Len(t, gen.Message.Proxy, 48)

	_, ok := reg.GetProxy(gen.Identifier)
	require.True(t, ok)

	keystoreDir := filepath.Join(dir, testConsensusID, "bls")
	entries, err := os.ReadDir(keystoreDir)
	require.NoError(t, err)
	var sawKeystore bool
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			sawKeystore = true
		}
	}
	require.True(t, sawKeystore)
}

func TestGenerateECDSAWritesKeystoreAndRegisters(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())
	dir := t.TempDir()

	gen, err := Generate(ctx, reg, dir, testConsensusID, SchemeECDSA, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, SchemeECDSA, gen.Scheme)
	require.Len(t, gen.Message.Proxy, 33)

	_, ok := reg.GetProxy(gen.Identifier)
	require.True(t, ok)
}

func TestLoadDirectoryFindsKeysWrittenByGenerate(t *testing.T) {
	require.NoError(t, bls.Init(bls.BLS12_381))

	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())
	dir := t.TempDir()

	blsGen, err := Generate(ctx, reg, dir, testConsensusID, SchemeBLS, "correct horse battery staple")
	require.NoError(t, err)
	ecdsaGen, err := Generate(ctx, reg, dir, testConsensusID, SchemeECDSA, "correct horse battery staple")
	require.NoError(t, err)

	loaded := LoadDirectory(zap.NewNop(), dir, testConsensusID, "correct horse battery staple")
	require.Len(t, loaded, 2)

	var identifiers []string
	for _, s := range loaded {
		identifiers = append(identifiers, s.Identifier())
	}
	require.ElementsMatch(t, []string{blsGen.Identifier, ecdsaGen.Identifier}, identifiers)
}

func TestLoadDirectoryIgnoresMissingSchemeDirectories(t *testing.T) {
	loaded := LoadDirectory(zap.NewNop(), t.TempDir(), testConsensusID, "irrelevant")
	require.Empty(t, loaded)
}

func TestLoadDirectorySkipsUndecryptableKeystoreWithoutFailingScan(t *testing.T) {
	require.NoError(t, bls.Init(bls.BLS12_381))

	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())
	dir := t.TempDir()

	gen, err := Generate(ctx, reg, dir, testConsensusID, SchemeBLS, "correct horse battery staple")
	require.NoError(t, err)
	_ = gen

	loaded := LoadDirectory(zap.NewNop(), dir, testConsensusID, "wrong password")
	require.Empty(t, loaded)
}

func TestGenerateRejectsUnknownScheme(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())
	_, err := Generate(ctx, reg, t.TempDir(), testConsensusID, Scheme("rsa"), "password")
	require.Error(t, err)
}

func TestDelegateSignsWithConsensusKey(t *testing.T) {
	require.NoError(t, bls.Init(bls.BLS12_381))

	var sk bls.SecretKey
	sk.SetByCSPRNG()
	consensus := signing.NewBLSSigner(&sk)

	msg := &Message{Delegator: sk.GetPublicKey().Serialize(), Proxy: make([]byte, 48)}
	var domain Domain

	sig, err := Delegate(context.Background(), consensus, msg, domain)
	require.NoError(t, err)
	require.NotEmpty(t, sig.Bytes)
}
