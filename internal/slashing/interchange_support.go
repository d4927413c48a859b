package slashing

import (
	"context"
	"database/sql"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
)

// ImportedBlock is one signed_blocks row as presented by an interchange
// document, prior to storage.
type ImportedBlock struct {
	Slot        uint64
	SigningRoot []byte // nil means no root recorded
}

// ImportedAttestation is one signed_attestations row as presented by an
// interchange document.
type ImportedAttestation struct {
	SourceEpoch uint64
	TargetEpoch uint64
	SigningRoot []byte
}

// ImportResult reports how an imported validator's blocks and attestations
// were classified: newly inserted, already present at the same slot/target
// epoch (a no-op re-import), or rejected because they conflict with
// existing history or with an earlier record in the same import batch.
type ImportResult struct {
	BlocksInserted       int
	BlocksSkipped        int
	BlocksRejected       int
	AttestationsInserted int
	AttestationsSkipped  int
	AttestationsRejected int
}

// ImportValidatorHistory upserts a validator by public key and inserts its
// imported blocks/attestations, running each one through the same rule
// engine used by CheckAndRecordBlock/CheckAndRecordAttestation. The low
// watermark starts at the validator's current stored value (empty on a
// fresh validator) and every accepted record is checked against both the
// rows already on disk and every record already accepted earlier in this
// same batch, so a surrounding pair split across two records of one import
// document is caught exactly as it would be across two separate requests.
func (s *Store) ImportValidatorHistory(ctx context.Context, publicKey []byte, blocks []ImportedBlock, attestations []ImportedAttestation) (ImportResult, error) {
	var result ImportResult
	err := s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		id, _, err := ensureValidatorTx(ctx, tx, publicKey)
		if err != nil {
			return err
		}

		m, err := getMetadata(ctx, tx)
		if err != nil {
			return err
		}
		lw, err := getLowWatermark(ctx, tx, id)
		if err != nil {
			return err
		}

		existingBlocks, err := loadExistingBlocksTx(ctx, tx, id)
		if err != nil {
			return err
		}
		var maxAcceptedSlot uint64
		for _, b := range blocks {
			decision := evaluateBlock(lw, m.HighWatermarkSlot, blocksAtSlot(existingBlocks, b.Slot), b.Slot, b.SigningRoot)
			if !decision.Accepted {
				result.BlocksRejected++
				continue
			}
			if b.Slot > maxAcceptedSlot {
				maxAcceptedSlot = b.Slot
			}
			if len(blocksAtSlot(existingBlocks, b.Slot)) > 0 {
				result.BlocksSkipped++
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO signed_blocks (validator_id, slot, signing_root) VALUES ($1, $2, $3)`,
				id, b.Slot, nullableBytes(b.SigningRoot),
			); err != nil {
				return apperrors.Wrap(apperrors.KindStorageFailure, "insert imported signed block", err)
			}
			existingBlocks = append(existingBlocks, existingBlock{Slot: b.Slot, SigningRoot: b.SigningRoot})
			result.BlocksInserted++
		}

		existingAttestations, err := loadExistingAttestationsTx(ctx, tx, id)
		if err != nil {
			return err
		}
		var haveMinSource bool
		var minAcceptedSource, maxAcceptedTarget uint64
		for _, a := range attestations {
			decision := evaluateAttestation(lw, m.HighWatermarkEpoch, existingAttestations, a.SourceEpoch, a.TargetEpoch, a.SigningRoot)
			if !decision.Accepted {
				result.AttestationsRejected++
				continue
			}
			if !haveMinSource || a.SourceEpoch < minAcceptedSource {
				minAcceptedSource = a.SourceEpoch
				haveMinSource = true
			}
			if a.TargetEpoch > maxAcceptedTarget {
				maxAcceptedTarget = a.TargetEpoch
			}
			if attestationAtTarget(existingAttestations, a.TargetEpoch) {
				result.AttestationsSkipped++
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO signed_attestations (validator_id, source_epoch, target_epoch, signing_root) VALUES ($1, $2, $3, $4)`,
				id, a.SourceEpoch, a.TargetEpoch, nullableBytes(a.SigningRoot),
			); err != nil {
				return apperrors.Wrap(apperrors.KindStorageFailure, "insert imported signed attestation", err)
			}
			existingAttestations = append(existingAttestations, existingAttestation{SourceEpoch: a.SourceEpoch, TargetEpoch: a.TargetEpoch, SigningRoot: a.SigningRoot})
			result.AttestationsInserted++
		}

		return bumpLowWatermark(ctx, tx, id, maxAcceptedSlot, minAcceptedSource, maxAcceptedTarget)
	})
	return result, err
}

func loadExistingBlocksTx(ctx context.Context, tx *sql.Tx, validatorID int64) ([]existingBlock, error) {
	rows, err := tx.QueryContext(ctx, `SELECT slot, signing_root FROM signed_blocks WHERE validator_id = $1`, validatorID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "query existing signed blocks", err)
	}
	defer rows.Close()

	var out []existingBlock
	for rows.Next() {
		var slot uint64
		var root sql.RawBytes
		if err := rows.Scan(&slot, &root); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorageFailure, "scan existing signed block", err)
		}
		eb := existingBlock{Slot: slot}
		if len(root) > 0 {
			eb.SigningRoot = append([]byte(nil), root...)
		}
		out = append(out, eb)
	}
	return out, rows.Err()
}

func loadExistingAttestationsTx(ctx context.Context, tx *sql.Tx, validatorID int64) ([]existingAttestation, error) {
	rows, err := tx.QueryContext(ctx, `SELECT source_epoch, target_epoch, signing_root FROM signed_attestations WHERE validator_id = $1`, validatorID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "query existing signed attestations", err)
	}
	defer rows.Close()

	var out []existingAttestation
	for rows.Next() {
		var source, target uint64
		var root sql.RawBytes
		if err := rows.Scan(&source, &target, &root); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorageFailure, "scan existing signed attestation", err)
		}
		ea := existingAttestation{SourceEpoch: source, TargetEpoch: target}
		if len(root) > 0 {
			ea.SigningRoot = append([]byte(nil), root...)
		}
		out = append(out, ea)
	}
	return out, rows.Err()
}

func blocksAtSlot(existing []existingBlock, slot uint64) []existingBlock {
	var out []existingBlock
	for _, b := range existing {
		if b.Slot == slot {
			out = append(out, b)
		}
	}
	return out
}

func attestationAtTarget(existing []existingAttestation, target uint64) bool {
	for _, a := range existing {
		if a.TargetEpoch == target {
			return true
		}
	}
	return false
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// ValidatorPublicKeys returns every validator's surrogate id and public
// key, used by the exporter to enumerate what to export.
func (s *Store) ValidatorPublicKeys(ctx context.Context) (map[int64][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, public_key FROM validators`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "list validator public keys", err)
	}
	defer rows.Close()

	out := make(map[int64][]byte)
	for rows.Next() {
		var id int64
		var pk []byte
		if err := rows.Scan(&id, &pk); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorageFailure, "scan validator public key", err)
		}
		out[id] = pk
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "iterate validator public keys", err)
	}
	return out, nil
}

// SignedBlocksForValidator returns every recorded block for a validator,
// ordered ascending by slot, for export.
func (s *Store) SignedBlocksForValidator(ctx context.Context, validatorID int64) ([]ImportedBlock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slot, signing_root FROM signed_blocks WHERE validator_id = $1 ORDER BY slot ASC`, validatorID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "query signed blocks for export", err)
	}
	defer rows.Close()

	var out []ImportedBlock
	for rows.Next() {
		var slot uint64
		var root sql.RawBytes
		if err := rows.Scan(&slot, &root); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorageFailure, "scan signed block for export", err)
		}
		b := ImportedBlock{Slot: slot}
		if len(root) > 0 {
			b.SigningRoot = append([]byte(nil), root...)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SignedAttestationsForValidator returns every recorded attestation for a
// validator, ordered ascending by target epoch, for export.
func (s *Store) SignedAttestationsForValidator(ctx context.Context, validatorID int64) ([]ImportedAttestation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_epoch, target_epoch, signing_root FROM signed_attestations WHERE validator_id = $1 ORDER BY target_epoch ASC`, validatorID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "query signed attestations for export", err)
	}
	defer rows.Close()

	var out []ImportedAttestation
	for rows.Next() {
		var source, target uint64
		var root sql.RawBytes
		if err := rows.Scan(&source, &target, &root); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorageFailure, "scan signed attestation for export", err)
		}
		a := ImportedAttestation{SourceEpoch: source, TargetEpoch: target}
		if len(root) > 0 {
			a.SigningRoot = append([]byte(nil), root...)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
