package slashing

import "bytes"

// existingBlock is a signed_blocks row as seen by evaluateBlock.
type existingBlock struct {
	Slot        uint64
	SigningRoot []byte // nil means NULL
}

// evaluateBlock is the pure block rule, factored out of
// CheckAndRecordBlock so it can be exercised directly by tests without a
// database. existing holds every row already recorded for this validator
// at the given slot.
func evaluateBlock(
	lw lowWatermark,
	highWatermarkSlot *uint64,
	existing []existingBlock,
	slot uint64,
	signingRoot []byte,
) Decision {
	if lw.minBlockSlot > 0 && slot <= lw.minBlockSlot {
		return reject("slot at or below low watermark")
	}

	for _, b := range existing {
		if b.Slot != slot {
			continue
		}
		if b.SigningRoot != nil && signingRoot != nil && !bytes.Equal(b.SigningRoot, signingRoot) {
			return reject("conflicting signing root at slot")
		}
	}

	if highWatermarkSlot != nil && slot <= *highWatermarkSlot {
		return reject("slot at or below global high watermark")
	}

	return accept()
}

// existingAttestation is a signed_attestations row as seen by
// evaluateAttestation.
type existingAttestation struct {
	SourceEpoch uint64
	TargetEpoch uint64
	SigningRoot []byte
}

// evaluateAttestation is the pure attestation rule.
func evaluateAttestation(
	lw lowWatermark,
	highWatermarkEpoch *uint64,
	existing []existingAttestation,
	sourceEpoch, targetEpoch uint64,
	signingRoot []byte,
) Decision {
	if sourceEpoch >= targetEpoch {
		return reject("source epoch must be strictly less than target epoch")
	}
	if lw.minAttestationTarget > 0 && targetEpoch <= lw.minAttestationTarget {
		return reject("target epoch at or below low watermark")
	}
	if sourceEpoch < lw.minAttestationSource {
		return reject("source epoch below low watermark")
	}
	if highWatermarkEpoch != nil && targetEpoch <= *highWatermarkEpoch {
		return reject("target epoch at or below global high watermark")
	}

	for _, a := range existing {
		if a.TargetEpoch == targetEpoch && a.SigningRoot != nil && signingRoot != nil && !bytes.Equal(a.SigningRoot, signingRoot) {
			return reject("conflicting signing root at target epoch")
		}
		if a.SourceEpoch < sourceEpoch && targetEpoch < a.TargetEpoch {
			return reject("existing attestation surrounds the requested one")
		}
		if sourceEpoch < a.SourceEpoch && a.TargetEpoch < targetEpoch {
			return reject("requested attestation surrounds an existing one")
		}
	}

	return accept()
}
