package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

type fakeSigner struct {
	id      string
	keyType signing.KeyType
}

func (f *fakeSigner) Identifier() string     { return f.id }
func (f *fakeSigner) KeyType() signing.KeyType { return f.keyType }
func (f *fakeSigner) Sign(context.Context, []byte) (signing.ArtifactSignature, error) {
	return signing.ArtifactSignature{}, nil
}

func TestAddGetRemove(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, zap.NewNop())
	s := &fakeSigner{id: "0xAB", keyType: signing.KeyTypeBLS}

	r.Add(ctx, s)
	got, ok := r.Get("0xab")
	require.True(t, ok)
	require.Equal(t, s, got)

	r.Remove(ctx, "0XAB")
	_, ok = r.Get("0xab")
	require.False(t, ok)
}

func TestIdentifierNormalisationAcrossCase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, zap.NewNop())
	s := &fakeSigner{id: "0xdeadbeef", keyType: signing.KeyTypeBLS}
	r.Add(ctx, s)

	for _, variant := range []string{"0xDEADBEEF", "DEADBEEF", "0xdeadbeef", "0Xdeadbeef"} {
		got, ok := r.Get(variant)
		require.True(t, ok, variant)
		require.Equal(t, s, got)
	}
}

func TestProxyLifecycleDestroyedWithConsensusKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, zap.NewNop())
	consensus := &fakeSigner{id: "0xconsensus", keyType: signing.KeyTypeBLS}
	proxy := &fakeSigner{id: "0xproxy", keyType: signing.KeyTypeBLS}

	r.Add(ctx, consensus)
	r.AddProxy(ctx, proxy, consensus.Identifier())

	ids := r.ProxyIDs(consensus.Identifier())
	require.Contains(t, ids[signing.KeyTypeBLS], proxy.Identifier())

	got, ok := r.GetProxy(proxy.Identifier())
	require.True(t, ok)
	require.Equal(t, proxy, got)

	r.Remove(ctx, consensus.Identifier())
	require.Empty(t, r.ProxyIDs(consensus.Identifier()))
	_, ok = r.GetProxy(proxy.Identifier())
	require.False(t, ok)
}

func TestLoadReportsStaleKeysAndKeepsThemByDefault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, zap.NewNop())
	old := &fakeSigner{id: "0xold", keyType: signing.KeyTypeBLS}
	r.Add(ctx, old)

	next := &fakeSigner{id: "0xnew", keyType: signing.KeyTypeBLS}
	var gotLoaded int
	var gotStale map[string]struct{}

	r.Load(ctx, func(context.Context) []signing.Signer {
		return []signing.Signer{next}
	}, false, func(loaded int, stale map[string]struct{}) {
		gotLoaded = loaded
		gotStale = stale
	})

	require.Equal(t, 1, gotLoaded)
	require.Contains(t, gotStale, "0xold")

	_, ok := r.Get("0xnew")
	require.True(t, ok)
	_, ok = r.Get("0xold")
	require.True(t, ok, "stale signer should remain registered when evictStale is false")
}

func TestLoadEvictsStaleKeysAndTheirProxiesWhenConfigured(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, zap.NewNop())
	old := &fakeSigner{id: "0xold", keyType: signing.KeyTypeBLS}
	proxy := &fakeSigner{id: "0xproxy", keyType: signing.KeyTypeBLS}
	r.Add(ctx, old)
	r.AddProxy(ctx, proxy, old.Identifier())

	next := &fakeSigner{id: "0xnew", keyType: signing.KeyTypeBLS}
	r.Load(ctx, func(context.Context) []signing.Signer {
		return []signing.Signer{next}
	}, true, nil)

	_, ok := r.Get("0xold")
	require.False(t, ok)
	_, ok = r.GetProxy("0xproxy")
	require.False(t, ok)
	_, ok = r.Get("0xnew")
	require.True(t, ok)
}

func TestLoadPreservesUnaffectedProxiesWhenKeepingStale(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, zap.NewNop())
	consensus := &fakeSigner{id: "0xconsensus", keyType: signing.KeyTypeBLS}
	proxy := &fakeSigner{id: "0xproxy", keyType: signing.KeyTypeBLS}
	r.Add(ctx, consensus)
	r.AddProxy(ctx, proxy, consensus.Identifier())

	r.Load(ctx, func(context.Context) []signing.Signer {
		return []signing.Signer{consensus}
	}, false, nil)

	got, ok := r.GetProxy(proxy.Identifier())
	require.True(t, ok)
	require.Equal(t, proxy, got)
}

func TestLoadKeepsFirstOnDuplicateIdentifier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, zap.NewNop())
	first := &fakeSigner{id: "0xdup", keyType: signing.KeyTypeBLS}
	second := &fakeSigner{id: "0xdup", keyType: signing.KeyTypeSECP256K1}

	r.Load(ctx, func(context.Context) []signing.Signer {
		return []signing.Signer{first, second}
	}, false, nil)

	got, ok := r.Get("0xdup")
	require.True(t, ok)
	require.Equal(t, first, got)
}
