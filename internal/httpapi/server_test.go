package httpapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/herumi/bls-eth-go-binary/bls"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/dispatch"
	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
	"github.com/PegaSysEng/Eth2Signer/internal/vmanager"
)

func newTestServer(t *testing.T) (*Server, *bls.SecretKey, string) {
	t.Helper()
	require.NoError(t, bls.Init(bls.BLS12_381))
	ctx := context.Background()

	reg := registry.New(ctx, zap.NewNop())
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	signer := signing.NewBLSSigner(&sk)
	reg.Add(ctx, signer)

	disp := dispatch.New(zap.NewNop(), reg, nil)
	vm := vmanager.New(zap.NewNop(), reg, nil, t.TempDir())

	s := NewServer(Config{
		Logger:     zap.NewNop(),
		Registry:   reg,
		Dispatcher: disp,
		VManager:   vm,
	})
	return s, &sk, signer.Identifier()
}

func newRequestCtx(method, body string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetBody([]byte(body))
	return ctx
}

func TestHandleUpcheck(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := newRequestCtx(fasthttp.MethodGet, "")
	s.handleUpcheck(ctx)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	require.Equal(t, "OK", string(ctx.Response.Body()))
}

func TestHandleSignEth2RandaoRevealSucceeds(t *testing.T) {
	s, _, identifier := newTestServer(t)

	body := `{"type":"RANDAO_REVEAL","fork_info":{"fork":{"previous_version":"0x00000000","current_version":"0x00000000","epoch":"0"},"genesis_validators_root":"0x` + zeros64 + `"},"randao_reveal":{"epoch":"12"}}`

	ctx := newRequestCtx(fasthttp.MethodPost, body)
	ctx.SetUserValue("identifier", identifier)
	s.handleSignEth2(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var resp signResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	require.Len(t, resp.Signature, 2+192)
}

func TestHandleSignEth2UnknownIdentifierIsNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := `{"type":"RANDAO_REVEAL","fork_info":{"fork":{"previous_version":"0x00000000","current_version":"0x00000000","epoch":"0"},"genesis_validators_root":"0x` + zeros64 + `"},"randao_reveal":{"epoch":"12"}}`
	ctx := newRequestCtx(fasthttp.MethodPost, body)
	ctx.SetUserValue("identifier", "0xdeadbeef")
	s.handleSignEth2(ctx)

	require.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestHandlePublicKeysEth2ListsRegisteredBLSKey(t *testing.T) {
	s, _, identifier := newTestServer(t)

	ctx := newRequestCtx(fasthttp.MethodGet, "")
	s.handlePublicKeysEth2(ctx)

	var ids []string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &ids))
	require.Contains(t, ids, identifier)
}

func TestHandlePublicKeysEth1ExcludesBLSKeys(t *testing.T) {
	s, _, _ := newTestServer(t)

	ctx := newRequestCtx(fasthttp.MethodGet, "")
	s.handlePublicKeysEth1(ctx)

	var ids []string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &ids))
	require.Empty(t, ids)
}

func TestHandleListKeystoresListsRegisteredKey(t *testing.T) {
	s, _, identifier := newTestServer(t)

	ctx := newRequestCtx(fasthttp.MethodGet, "")
	s.handleListKeystores(ctx)

	var resp struct {
		Data []keystoreEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, identifier, resp.Data[0].ValidatingPubkey)
}

func TestHandleJSONRPCEthAccounts(t *testing.T) {
	s, _, _ := newTestServer(t)

	ctx := newRequestCtx(fasthttp.MethodPost, `{"jsonrpc":"2.0","id":1,"method":"eth_accounts"}`)
	s.handleJSONRPC(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var resp struct {
		Result []string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	require.Empty(t, resp.Result) // only a BLS key is registered, no eth1 accounts
}

// handleDeleteKeystores' non-trivial branches (StatusDeleted, StatusNotActive)
// require a live slashing store (FindValidator/SetEnabled hit the DB
// directly, panicking on a nil store), which nothing in this module's test
// suite stands up; DeleteValidator's store-free paths are covered directly
// in internal/vmanager's own tests instead.

const zeros64 = "0000000000000000000000000000000000000000000000000000000000000000"
