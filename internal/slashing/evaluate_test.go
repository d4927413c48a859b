package slashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func root(b byte) []byte { return []byte{b, b, b, b} }

func TestEvaluateBlockAcceptsFirstSign(t *testing.T) {
	d := evaluateBlock(lowWatermark{}, nil, nil, 10, root(1))
	require.True(t, d.Accepted)
}

func TestEvaluateBlockIdempotentResign(t *testing.T) {
	existing := []existingBlock{{Slot: 10, SigningRoot: root(1)}}
	d := evaluateBlock(lowWatermark{}, nil, existing, 10, root(1))
	require.True(t, d.Accepted)
}

func TestEvaluateBlockRejectsDoubleSign(t *testing.T) {
	existing := []existingBlock{{Slot: 10, SigningRoot: root(1)}}
	d := evaluateBlock(lowWatermark{}, nil, existing, 10, root(2))
	require.False(t, d.Accepted)
}

func TestEvaluateBlockAcceptsNullRootThenAnyRoot(t *testing.T) {
	existing := []existingBlock{{Slot: 10, SigningRoot: nil}}
	d := evaluateBlock(lowWatermark{}, nil, existing, 10, root(2))
	require.True(t, d.Accepted)
}

func TestEvaluateBlockAcceptsNullIncomingRootAgainstExistingRoot(t *testing.T) {
	existing := []existingBlock{{Slot: 10, SigningRoot: root(1)}}
	d := evaluateBlock(lowWatermark{}, nil, existing, 10, nil)
	require.True(t, d.Accepted)
}

func TestEvaluateBlockRejectsAtOrBelowLowWatermark(t *testing.T) {
	lw := lowWatermark{minBlockSlot: 10}
	require.False(t, evaluateBlock(lw, nil, nil, 10, root(1)).Accepted)
	require.False(t, evaluateBlock(lw, nil, nil, 9, root(1)).Accepted)
	require.True(t, evaluateBlock(lw, nil, nil, 11, root(1)).Accepted)
}

func TestEvaluateBlockZeroWatermarkAllowsSlotZero(t *testing.T) {
	require.True(t, evaluateBlock(lowWatermark{}, nil, nil, 0, root(1)).Accepted)
}

func TestEvaluateBlockRejectsAtOrBelowHighWatermark(t *testing.T) {
	hw := uint64(10)
	require.False(t, evaluateBlock(lowWatermark{}, &hw, nil, 10, root(1)).Accepted)
	require.True(t, evaluateBlock(lowWatermark{}, &hw, nil, 11, root(1)).Accepted)
}

func TestEvaluateAttestationRejectsSourceNotLessThanTarget(t *testing.T) {
	require.False(t, evaluateAttestation(lowWatermark{}, nil, nil, 5, 5, root(1)).Accepted)
	require.False(t, evaluateAttestation(lowWatermark{}, nil, nil, 6, 5, root(1)).Accepted)
}

func TestEvaluateAttestationAcceptsFirstSign(t *testing.T) {
	require.True(t, evaluateAttestation(lowWatermark{}, nil, nil, 1, 2, root(1)).Accepted)
}

func TestEvaluateAttestationIdempotentResign(t *testing.T) {
	existing := []existingAttestation{{SourceEpoch: 1, TargetEpoch: 2, SigningRoot: root(1)}}
	d := evaluateAttestation(lowWatermark{}, nil, existing, 1, 2, root(1))
	require.True(t, d.Accepted)
}

func TestEvaluateAttestationRejectsDoubleVote(t *testing.T) {
	existing := []existingAttestation{{SourceEpoch: 1, TargetEpoch: 2, SigningRoot: root(1)}}
	d := evaluateAttestation(lowWatermark{}, nil, existing, 1, 2, root(2))
	require.False(t, d.Accepted)
}

func TestEvaluateAttestationRejectsExistingSurroundsRequested(t *testing.T) {
	// existing [1, 10] surrounds requested [2, 9]
	existing := []existingAttestation{{SourceEpoch: 1, TargetEpoch: 10, SigningRoot: root(1)}}
	d := evaluateAttestation(lowWatermark{}, nil, existing, 2, 9, root(2))
	require.False(t, d.Accepted)
}

func TestEvaluateAttestationRejectsRequestedSurroundsExisting(t *testing.T) {
	// requested [1, 10] surrounds existing [2, 9]
	existing := []existingAttestation{{SourceEpoch: 2, TargetEpoch: 9, SigningRoot: root(1)}}
	d := evaluateAttestation(lowWatermark{}, nil, existing, 1, 10, root(2))
	require.False(t, d.Accepted)
}

func TestEvaluateAttestationAdjacentNonSurroundingIsAccepted(t *testing.T) {
	// existing [1, 2] and requested [2, 3] share an epoch but neither surrounds the other.
	existing := []existingAttestation{{SourceEpoch: 1, TargetEpoch: 2, SigningRoot: root(1)}}
	d := evaluateAttestation(lowWatermark{}, nil, existing, 2, 3, root(2))
	require.True(t, d.Accepted)
}

func TestEvaluateAttestationAcceptsNullIncomingRootAgainstExistingRoot(t *testing.T) {
	existing := []existingAttestation{{SourceEpoch: 1, TargetEpoch: 2, SigningRoot: root(1)}}
	d := evaluateAttestation(lowWatermark{}, nil, existing, 1, 2, nil)
	require.True(t, d.Accepted)
}

func TestEvaluateAttestationRejectsAtOrBelowLowWatermark(t *testing.T) {
	lw := lowWatermark{minAttestationTarget: 5, minAttestationSource: 2}
	require.False(t, evaluateAttestation(lw, nil, nil, 3, 5, root(1)).Accepted)
	require.False(t, evaluateAttestation(lw, nil, nil, 1, 6, root(1)).Accepted)
	require.True(t, evaluateAttestation(lw, nil, nil, 3, 6, root(1)).Accepted)
}

func TestEvaluateAttestationRejectsAtOrBelowHighWatermark(t *testing.T) {
	hw := uint64(5)
	require.False(t, evaluateAttestation(lowWatermark{}, &hw, nil, 1, 5, root(1)).Accepted)
	require.True(t, evaluateAttestation(lowWatermark{}, &hw, nil, 1, 6, root(1)).Accepted)
}
