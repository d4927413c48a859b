package vmanager

import (
	"context"
	"testing"

	"github.com/herumi/bls-eth-go-binary/bls"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/keystore"
	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

func newTestKeystore(t *testing.T, password string) ([]byte, string) {
	t.Helper()
	require.NoError(t, bls.Init(bls.BLS12_381))

	var sk bls.SecretKey
	sk.SetByCSPRNG()
	pubHex := signing.NewBLSSigner(&sk).Identifier()

	doc, err := keystore.Encrypt(sk.Serialize(), pubHex, password, "")
	require.NoError(t, err)
	return doc, pubHex
}

// AddValidator's duplicate check runs before any slashing-store access, so
// it can be exercised with a nil store.
func TestAddValidatorDetectsDuplicateWithoutTouchingStore(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())
	doc, pubHex := newTestKeystore(t, "correct horse battery staple")

	reg.Add(ctx, signing.NewBLSSigner(mustDeserialize(t, doc, pubHex)))

	m := New(zap.NewNop(), reg, nil, t.TempDir())
	result, err := m.AddValidator(ctx, doc, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, StatusDuplicate, result.Status)
}

func TestAddValidatorRejectsWrongPasswordWithoutTouchingStore(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())
	doc, _ := newTestKeystore(t, "correct horse battery staple")

	m := New(zap.NewNop(), reg, nil, t.TempDir())
	result, err := m.AddValidator(ctx, doc, "wrong password")
	require.Error(t, err)
	require.Equal(t, StatusError, result.Status)
}

// mustDeserialize recovers the secret key backing doc's keystore so the
// test can pre-populate the registry with the exact signer AddValidator
// would otherwise construct.
func mustDeserialize(t *testing.T, doc []byte, pubHex string) *bls.SecretKey {
	t.Helper()
	raw, err := keystore.Decrypt(doc, "correct horse battery staple")
	require.NoError(t, err)
	var sk bls.SecretKey
	require.NoError(t, sk.Deserialize(raw))
	require.Equal(t, pubHex, signing.NewBLSSigner(&sk).Identifier())
	return &sk
}
