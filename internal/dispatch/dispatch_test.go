package dispatch

import (
	"context"
	"testing"

	"github.com/herumi/bls-eth-go-binary/bls"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *bls.SecretKey) {
	t.Helper()
	require.NoError(t, bls.Init(bls.BLS12_381))

	ctx := context.Background()
	reg := registry.New(ctx, zap.NewNop())

	var sk bls.SecretKey
	sk.SetByCSPRNG()
	s := signing.NewBLSSigner(&sk)
	reg.Add(ctx, s)

	return New(zap.NewNop(), reg, nil), &sk
}

func TestSignConsensusUnknownIdentifierIsNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.SignConsensus(context.Background(), "0xdeadbeef", Request{Type: TypeRandaoReveal})
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestSignConsensusRandaoRevealSucceedsWithoutSlashingStore(t *testing.T) {
	d, sk := newTestDispatcher(t)
	id := signing.NewBLSSigner(sk).Identifier()

	sig, err := d.SignConsensus(context.Background(), id, Request{
		Type:              TypeRandaoReveal,
		RandaoRevealEpoch: 12,
		Fork:              ForkInfo{Fork: Fork{CurrentVersion: [4]byte{1, 0, 0, 0}}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sig)
}

func TestSignConsensusBlockWithoutSlashingStoreIsInternal(t *testing.T) {
	d, sk := newTestDispatcher(t)
	id := signing.NewBLSSigner(sk).Identifier()

	_, err := d.SignConsensus(context.Background(), id, Request{
		Type:  TypeBlock,
		Block: &BlockHeader{Slot: 5},
	})
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindInternal))
}

func TestSignConsensusBlockMissingPayloadIsBadRequest(t *testing.T) {
	d, sk := newTestDispatcher(t)
	id := signing.NewBLSSigner(sk).Identifier()

	_, err := d.SignConsensus(context.Background(), id, Request{Type: TypeBlock})
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestSignRawSucceeds(t *testing.T) {
	d, sk := newTestDispatcher(t)
	id := signing.NewBLSSigner(sk).Identifier()

	sig, err := d.SignRaw(context.Background(), id, []byte("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, sig)
}

func TestSignRawUnknownIdentifierIsNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.SignRaw(context.Background(), "0xdeadbeef", []byte("hello"))
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestSigningRootDeterministicAndDomainSensitive(t *testing.T) {
	base := Request{Type: TypeRandaoReveal, RandaoRevealEpoch: 7, Fork: ForkInfo{Fork: Fork{CurrentVersion: [4]byte{1, 2, 3, 4}}}}
	r1, err := SigningRoot(base)
	require.NoError(t, err)
	r2, err := SigningRoot(base)
	require.NoError(t, err)
	require.Equal(t, r1, r2)

	variant := base
	variant.Fork.Fork.CurrentVersion = [4]byte{9, 9, 9, 9}
	r3, err := SigningRoot(variant)
	require.NoError(t, err)
	require.NotEqual(t, r1, r3)
}

func TestSigningRootAttestationSurfacesFullPayload(t *testing.T) {
	req := Request{
		Type: TypeAttestation,
		Attestation: &AttestationData{
			Slot:   1,
			Index:  0,
			Source: Checkpoint{Epoch: 1},
			Target: Checkpoint{Epoch: 2},
		},
	}
	r1, err := SigningRoot(req)
	require.NoError(t, err)

	req.Attestation.Target.Epoch = 3
	r2, err := SigningRoot(req)
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)
}
