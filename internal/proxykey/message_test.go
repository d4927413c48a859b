package proxykey

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PegaSysEng/Eth2Signer/internal/ethdomain"
)

func TestComputeDomainIsDeterministic(t *testing.T) {
	forkVersion := [4]byte{1, 2, 3, 4}
	gvr := [32]byte{}
	for i := range gvr {
		gvr[i] = byte(i)
	}

	d1, err := CommitBoostDomain(forkVersion, gvr)
	require.NoError(t, err)
	d2, err := CommitBoostDomain(forkVersion, gvr)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
	require.Equal(t, ethdomain.DomainCommitBoostProxy[:], d1[:4])
}

func TestComputeDomainVariesWithGenesisValidatorsRoot(t *testing.T) {
	forkVersion := [4]byte{1, 2, 3, 4}
	var gvrA, gvrB [32]byte
	gvrB[0] = 0xff

	dA, err := CommitBoostDomain(forkVersion, gvrA)
	require.NoError(t, err)
	dB, err := CommitBoostDomain(forkVersion, gvrB)
	require.NoError(t, err)
	require.NotEqual(t, dA, dB)
}

func TestSigningRootChangesWithDomain(t *testing.T) {
	msg := &Message{Delegator: make([]byte, 48), Proxy: make([]byte, 48)}

	var d1, d2 Domain
	d2[0] = 0x01

	r1, err := SigningRoot(msg, d1)
	require.NoError(t, err)
	r2, err := SigningRoot(msg, d2)
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)
}

func TestSigningRootChangesWithProxyKey(t *testing.T) {
	delegator := make([]byte, 48)
	proxyA := make([]byte, 48)
	proxyB := make([]byte, 48)
	proxyB[0] = 0x01

	var domain Domain
	rA, err := SigningRoot(&Message{Delegator: delegator, Proxy: proxyA}, domain)
	require.NoError(t, err)
	rB, err := SigningRoot(&Message{Delegator: delegator, Proxy: proxyB}, domain)
	require.NoError(t, err)
	require.NotEqual(t, rA, rB)
}
