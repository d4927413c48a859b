package interchange

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/slashing"
)

// Result totals ImportResult across every validator record in a document.
type Result struct {
	BlocksInserted       int
	BlocksSkipped        int
	BlocksRejected       int
	AttestationsInserted int
	AttestationsSkipped  int
	AttestationsRejected int
}

func (r *Result) add(v slashing.ImportResult) {
	r.BlocksInserted += v.BlocksInserted
	r.BlocksSkipped += v.BlocksSkipped
	r.BlocksRejected += v.BlocksRejected
	r.AttestationsInserted += v.AttestationsInserted
	r.AttestationsSkipped += v.AttestationsSkipped
	r.AttestationsRejected += v.AttestationsRejected
}

// Import reads an EIP-3076 compliant JSON document from r and loads its
// data into store, one validator at a time. Each block and attestation is
// run through the store's rule engine: a row already present at the same
// slot/target epoch is left untouched, and a row that genuinely conflicts
// with existing history (or with another record earlier in the same
// document) is rejected and counted rather than aborting the whole import.
func Import(ctx context.Context, store *slashing.Store, r io.Reader) (Result, error) {
	var total Result
	encoded, err := io.ReadAll(r)
	if err != nil {
		return total, apperrors.Wrap(apperrors.KindBadRequest, "read slashing protection document", err)
	}

	var doc Document
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return total, apperrors.Wrap(apperrors.KindBadRequest, "unmarshal slashing protection document", err)
	}

	if doc.Metadata.GenesisValidatorsRoot != "" {
		gvr, err := rootFromHex(doc.Metadata.GenesisValidatorsRoot)
		if err != nil {
			return total, apperrors.Wrap(apperrors.KindBadRequest, "invalid genesis validators root", err)
		}
		if err := store.SetGenesisValidatorsRoot(ctx, gvr[:]); err != nil {
			return total, err
		}
	}

	for _, record := range doc.Data {
		pubKey, err := pubKeyFromHex(record.Pubkey)
		if err != nil {
			return total, apperrors.Wrap(apperrors.KindBadRequest, fmt.Sprintf("invalid public key %s", record.Pubkey), err)
		}

		blocks, err := parseSignedBlocks(record.SignedBlocks)
		if err != nil {
			return total, apperrors.Wrap(apperrors.KindBadRequest, fmt.Sprintf("invalid signed blocks for %s", record.Pubkey), err)
		}
		attestations, err := parseSignedAttestations(record.SignedAttestations)
		if err != nil {
			return total, apperrors.Wrap(apperrors.KindBadRequest, fmt.Sprintf("invalid signed attestations for %s", record.Pubkey), err)
		}

		result, err := store.ImportValidatorHistory(ctx, pubKey[:], blocks, attestations)
		if err != nil {
			return total, err
		}
		total.add(result)
	}
	return total, nil
}

func parseSignedBlocks(in []SignedBlock) ([]slashing.ImportedBlock, error) {
	out := make([]slashing.ImportedBlock, 0, len(in))
	for _, b := range in {
		slot, err := uint64FromString(b.Slot)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid slot: %w", b.Slot, err)
		}
		ib := slashing.ImportedBlock{Slot: slot}
		if b.SigningRoot != "" {
			root, err := rootFromHex(b.SigningRoot)
			if err != nil {
				return nil, fmt.Errorf("%q is not a valid signing root: %w", b.SigningRoot, err)
			}
			ib.SigningRoot = root[:]
		}
		out = append(out, ib)
	}
	return out, nil
}

func parseSignedAttestations(in []SignedAttestation) ([]slashing.ImportedAttestation, error) {
	out := make([]slashing.ImportedAttestation, 0, len(in))
	for _, a := range in {
		source, err := uint64FromString(a.SourceEpoch)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid source epoch: %w", a.SourceEpoch, err)
		}
		target, err := uint64FromString(a.TargetEpoch)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid target epoch: %w", a.TargetEpoch, err)
		}
		ia := slashing.ImportedAttestation{SourceEpoch: source, TargetEpoch: target}
		if a.SigningRoot != "" {
			root, err := rootFromHex(a.SigningRoot)
			if err != nil {
				return nil, fmt.Errorf("%q is not a valid signing root: %w", a.SigningRoot, err)
			}
			ia.SigningRoot = root[:]
		}
		out = append(out, ia)
	}
	return out, nil
}

func uint64FromString(str string) (uint64, error) {
	return strconv.ParseUint(str, 10, 64)
}

func pubKeyFromHex(str string) ([48]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(str, "0x"))
	if err != nil {
		return [48]byte{}, err
	}
	if len(raw) != 48 {
		return [48]byte{}, fmt.Errorf("public key is not 48 bytes: %s", str)
	}
	var pk [48]byte
	copy(pk[:], raw)
	return pk, nil
}

func rootFromHex(str string) ([32]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(str, "0x"))
	if err != nil {
		return [32]byte{}, err
	}
	if len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("root is not 32 bytes: %s", str)
	}
	var root [32]byte
	copy(root[:], raw)
	return root, nil
}
