package slashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlocksAtSlotFiltersBySlot(t *testing.T) {
	existing := []existingBlock{{Slot: 1}, {Slot: 2}, {Slot: 2}}
	require.Len(t, blocksAtSlot(existing, 2), 2)
	require.Empty(t, blocksAtSlot(existing, 3))
}

func TestAttestationAtTargetReportsPresence(t *testing.T) {
	existing := []existingAttestation{{SourceEpoch: 1, TargetEpoch: 5}}
	require.True(t, attestationAtTarget(existing, 5))
	require.False(t, attestationAtTarget(existing, 6))
}

// TestImportBatchDetectsSurroundingPairWithinBatch documents the invariant
// the review caught: two attestations in the same import batch that would
// surround each other must be caught even though neither is on disk yet,
// by evaluating each one against every record already accepted earlier in
// the batch.
func TestImportBatchDetectsSurroundingPairWithinBatch(t *testing.T) {
	var existing []existingAttestation

	first := evaluateAttestation(lowWatermark{}, nil, existing, 1, 10, root(1))
	require.True(t, first.Accepted)
	existing = append(existing, existingAttestation{SourceEpoch: 1, TargetEpoch: 10, SigningRoot: root(1)})

	second := evaluateAttestation(lowWatermark{}, nil, existing, 2, 9, root(2))
	require.False(t, second.Accepted)
}
