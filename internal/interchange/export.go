package interchange

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/slashing"
)

// Export builds a complete EIP-3076 document for every validator in
// store, sorted ascending by public key, then by slot/target epoch within
// each validator.
func Export(ctx context.Context, store *slashing.Store) (*Document, error) {
	meta, err := store.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Metadata: Metadata{
			InterchangeFormatVersion: FormatVersion,
			GenesisValidatorsRoot:    rootToHexString(meta.GenesisValidatorsRoot),
		},
	}

	validators, err := store.ValidatorPublicKeys(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(validators))
	for id := range validators {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return pubKeyToHexString(validators[ids[i]]) < pubKeyToHexString(validators[ids[j]])
	})

	for _, id := range ids {
		record, err := buildRecord(ctx, store, id, validators[id])
		if err != nil {
			return nil, err
		}
		doc.Data = append(doc.Data, record)
	}
	return doc, nil
}

// StreamExport writes the interchange document to w incrementally, one
// validator record at a time, so that exporting a large validator set
// does not require holding the entire document in memory at once
//.
func StreamExport(ctx context.Context, store *slashing.Store, w io.Writer) error {
	meta, err := store.GetMetadata(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	if _, err := io.WriteString(w, `{"metadata":`); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "write export header", err)
	}
	if err := enc.Encode(Metadata{
		InterchangeFormatVersion: FormatVersion,
		GenesisValidatorsRoot:    rootToHexString(meta.GenesisValidatorsRoot),
	}); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "encode export metadata", err)
	}
	if _, err := io.WriteString(w, `,"data":[`); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "write export data header", err)
	}

	validators, err := store.ValidatorPublicKeys(ctx)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(validators))
	for id := range validators {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return pubKeyToHexString(validators[ids[i]]) < pubKeyToHexString(validators[ids[j]])
	})

	for i, id := range ids {
		record, err := buildRecord(ctx, store, id, validators[id])
		if err != nil {
			return err
		}
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return apperrors.Wrap(apperrors.KindInternal, "write export separator", err)
			}
		}
		if err := enc.Encode(record); err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "encode export record", err)
		}
	}

	_, err = io.WriteString(w, "]}")
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "write export footer", err)
	}
	return nil
}

// StreamExportOne writes the interchange document for a single validator,
// the incremental export the key-manager DELETE endpoint runs per removed
// key instead of re-exporting the whole store.
func StreamExportOne(ctx context.Context, store *slashing.Store, validatorID int64, publicKey []byte, w io.Writer) error {
	meta, err := store.GetMetadata(ctx)
	if err != nil {
		return err
	}
	record, err := buildRecord(ctx, store, validatorID, publicKey)
	if err != nil {
		return err
	}
	doc := Document{
		Metadata: Metadata{
			InterchangeFormatVersion: FormatVersion,
			GenesisValidatorsRoot:    rootToHexString(meta.GenesisValidatorsRoot),
		},
		Data: []ValidatorRecord{record},
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "encode single-validator export", err)
	}
	return nil
}

func buildRecord(ctx context.Context, store *slashing.Store, id int64, publicKey []byte) (ValidatorRecord, error) {
	blocks, err := store.SignedBlocksForValidator(ctx, id)
	if err != nil {
		return ValidatorRecord{}, err
	}
	attestations, err := store.SignedAttestationsForValidator(ctx, id)
	if err != nil {
		return ValidatorRecord{}, err
	}

	record := ValidatorRecord{Pubkey: pubKeyToHexString(publicKey)}
	for _, b := range blocks {
		record.SignedBlocks = append(record.SignedBlocks, SignedBlock{
			Slot:        fmt.Sprintf("%d", b.Slot),
			SigningRoot: rootToHexString(b.SigningRoot),
		})
	}
	for _, a := range attestations {
		record.SignedAttestations = append(record.SignedAttestations, SignedAttestation{
			SourceEpoch: fmt.Sprintf("%d", a.SourceEpoch),
			TargetEpoch: fmt.Sprintf("%d", a.TargetEpoch),
			SigningRoot: rootToHexString(a.SigningRoot),
		})
	}
	return record, nil
}

func pubKeyToHexString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func rootToHexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(b)
}
