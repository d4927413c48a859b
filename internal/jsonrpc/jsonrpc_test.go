package jsonrpc

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

func newRegistryWithKey(t *testing.T) (*registry.Registry, *ecdsa.PrivateKey, string) {
	t.Helper()
	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())

	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := signing.NewSecpLocalSigner(key, nil)
	reg.Add(ctx, signer)
	return reg, key, signer.Identifier()
}

func rawParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestEthSignSucceedsForKnownAddress(t *testing.T) {
	reg, _, address := newRegistryWithKey(t)
	h := NewHandler(reg)

	resp := h.Dispatch(context.Background(), Request{
		JSONRPC: "2.0",
		Method:  "eth_sign",
		Params:  rawParams(t, []string{address, "0xdeadbeaf"}),
	})

	require.Nil(t, resp.Error)
	sigHex, ok := resp.Result.(string)
	require.True(t, ok)
	require.Len(t, sigHex, 2+130)
}

func TestEthSignRejectsUnknownAddress(t *testing.T) {
	reg, _, _ := newRegistryWithKey(t)
	h := NewHandler(reg)

	resp := h.Dispatch(context.Background(), Request{
		Method: "eth_sign",
		Params: rawParams(t, []string{"0x0000000000000000000000000000000000000000", "0xdeadbeaf"}),
	})

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
	require.Equal(t, "signing from is not an unlocked account", resp.Error.Message)
}

func TestEthSignRejectsMalformedParams(t *testing.T) {
	reg, _, _ := newRegistryWithKey(t)
	h := NewHandler(reg)

	cases := []json.RawMessage{
		nil,
		rawParams(t, []string{"only-one"}),
		rawParams(t, []interface{}{1, 2}),
	}
	for _, params := range cases {
		resp := h.Dispatch(context.Background(), Request{Method: "eth_sign", Params: params})
		require.NotNil(t, resp.Error)
		require.Equal(t, codeInvalidParams, resp.Error.Code)
	}
}

func TestEthAccountsReturnsSortedAddresses(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())

	key1, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	key2, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	s1 := signing.NewSecpLocalSigner(key1, nil)
	s2 := signing.NewSecpLocalSigner(key2, nil)
	reg.Add(ctx, s1)
	reg.Add(ctx, s2)

	h := NewHandler(reg)
	resp := h.Dispatch(ctx, Request{Method: "eth_accounts"})
	require.Nil(t, resp.Error)

	addresses, ok := resp.Result.([]string)
	require.True(t, ok)
	require.Len(t, addresses, 2)
	require.True(t, addresses[0] < addresses[1])
}

func TestEthAccountsRejectsNonEmptyParams(t *testing.T) {
	reg, _, _ := newRegistryWithKey(t)
	h := NewHandler(reg)

	resp := h.Dispatch(context.Background(), Request{Method: "eth_accounts", Params: rawParams(t, []int{1})})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestDispatchUnknownMethod(t *testing.T) {
	reg, _, _ := newRegistryWithKey(t)
	h := NewHandler(reg)

	resp := h.Dispatch(context.Background(), Request{Method: "eth_getBalance"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}
