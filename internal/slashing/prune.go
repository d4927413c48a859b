package slashing

import (
	"context"
	"database/sql"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
)

// Prune removes per-validator rows whose slot/epoch fall below the
// pruning horizon derived from each validator's low watermark. It never
// removes the most recent row per validator.
func (s *Store) Prune(ctx context.Context, epochsToKeep, slotsPerEpoch uint64) error {
	return s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM signed_attestations sa
			USING low_watermarks lw
			WHERE sa.validator_id = lw.validator_id
			  AND lw.min_attestation_target_epoch > $1
			  AND sa.target_epoch < lw.min_attestation_target_epoch - $1
			  AND sa.target_epoch < (
			      SELECT MAX(sa2.target_epoch) FROM signed_attestations sa2 WHERE sa2.validator_id = sa.validator_id
			  )
		`, epochsToKeep); err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "prune signed attestations", err)
		}

		horizon := epochsToKeep * slotsPerEpoch
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM signed_blocks sb
			USING low_watermarks lw
			WHERE sb.validator_id = lw.validator_id
			  AND lw.min_block_slot > $1
			  AND sb.slot < lw.min_block_slot - $1
			  AND sb.slot < (
			      SELECT MAX(sb2.slot) FROM signed_blocks sb2 WHERE sb2.validator_id = sb.validator_id
			  )
		`, horizon); err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "prune signed blocks", err)
		}

		return nil
	})
}

// RepairWatermarks recomputes every validator's low watermark from its
// existing signed_blocks/signed_attestations rows, used by the
// watermark-repair CLI subcommand to fix a database where watermark
// tracking was disabled.
func (s *Store) RepairWatermarks(ctx context.Context) error {
	return s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO low_watermarks (validator_id, min_block_slot, min_attestation_source_epoch, min_attestation_target_epoch)
			SELECT v.id,
			       COALESCE((SELECT MAX(slot) FROM signed_blocks WHERE validator_id = v.id), 0),
			       COALESCE((SELECT MAX(source_epoch) FROM signed_attestations WHERE validator_id = v.id), 0),
			       COALESCE((SELECT MAX(target_epoch) FROM signed_attestations WHERE validator_id = v.id), 0)
			FROM validators v
			ON CONFLICT (validator_id) DO UPDATE SET
				min_block_slot = GREATEST(low_watermarks.min_block_slot, EXCLUDED.min_block_slot),
				min_attestation_source_epoch = GREATEST(low_watermarks.min_attestation_source_epoch, EXCLUDED.min_attestation_source_epoch),
				min_attestation_target_epoch = GREATEST(low_watermarks.min_attestation_target_epoch, EXCLUDED.min_attestation_target_epoch)
		`); err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "repair watermarks", err)
		}
		return nil
	})
}
