package slashing

import (
	"bytes"
	"context"
	"database/sql"
	"errors"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
)

// Metadata is the global singleton row.
type Metadata struct {
	GenesisValidatorsRoot []byte
	HighWatermarkSlot     *uint64
	HighWatermarkEpoch    *uint64
}

// EnsureValidator upserts a validator by public key, returning its
// surrogate id and current enabled flag.
func (s *Store) EnsureValidator(ctx context.Context, publicKey []byte) (id int64, enabled bool, err error) {
	err = s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		id, enabled, err = ensureValidatorTx(ctx, tx, publicKey)
		return err
	})
	return id, enabled, err
}

func ensureValidatorTx(ctx context.Context, tx *sql.Tx, publicKey []byte) (int64, bool, error) {
	var id int64
	var enabled bool
	err := tx.QueryRowContext(ctx,
		`SELECT id, enabled FROM validators WHERE public_key = $1`, publicKey,
	).Scan(&id, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO validators (public_key, enabled) VALUES ($1, TRUE) RETURNING id, enabled`, publicKey,
		).Scan(&id, &enabled)
	}
	if err != nil {
		return 0, false, apperrors.Wrap(apperrors.KindStorageFailure, "ensure validator", err)
	}
	return id, enabled, nil
}

// FindValidator looks up a validator by public key without creating one,
// used by the delete flow to distinguish "never seen" (NOT_FOUND) from
// "known but not currently loaded" (NOT_ACTIVE).
func (s *Store) FindValidator(ctx context.Context, publicKey []byte) (id int64, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT id FROM validators WHERE public_key = $1`, publicKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.Wrap(apperrors.KindStorageFailure, "find validator", err)
	}
	return id, true, nil
}

// SetEnabled flips a validator's enabled flag, returning its previous value
// so callers can restore it on a later failure.
func (s *Store) SetEnabled(ctx context.Context, validatorID int64, enabled bool) (previous bool, err error) {
	err = s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		e := tx.QueryRowContext(ctx, `SELECT enabled FROM validators WHERE id = $1 FOR UPDATE`, validatorID).Scan(&previous)
		if e != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "read validator enabled flag", e)
		}
		_, e = tx.ExecContext(ctx, `UPDATE validators SET enabled = $1 WHERE id = $2`, enabled, validatorID)
		if e != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "update validator enabled flag", e)
		}
		return nil
	})
	return previous, err
}

// IsEnabled reports the validator-disabled gate.
func (s *Store) IsEnabled(ctx context.Context, validatorID int64) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx, `SELECT enabled FROM validators WHERE id = $1`, validatorID).Scan(&enabled)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindStorageFailure, "read validator enabled flag", err)
	}
	return enabled, nil
}

// GetMetadata reads the global singleton metadata row.
func (s *Store) GetMetadata(ctx context.Context) (Metadata, error) {
	return getMetadata(ctx, s.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMetadata(ctx context.Context, q queryRower) (Metadata, error) {
	var m Metadata
	var gvr sql.RawBytes
	var hwSlot, hwEpoch sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT genesis_validators_root, high_watermark_slot, high_watermark_epoch FROM metadata WHERE id = 1`,
	).Scan(&gvr, &hwSlot, &hwEpoch)
	if err != nil {
		return Metadata{}, apperrors.Wrap(apperrors.KindStorageFailure, "read metadata", err)
	}
	if len(gvr) > 0 {
		m.GenesisValidatorsRoot = append([]byte(nil), gvr...)
	}
	if hwSlot.Valid {
		v := uint64(hwSlot.Int64)
		m.HighWatermarkSlot = &v
	}
	if hwEpoch.Valid {
		v := uint64(hwEpoch.Int64)
		m.HighWatermarkEpoch = &v
	}
	return m, nil
}

// SetGenesisValidatorsRoot writes the write-once genesis validators root.
// Attempting to write a different GVR than the one already stored fails
//.
func (s *Store) SetGenesisValidatorsRoot(ctx context.Context, gvr []byte) error {
	return s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		m, err := getMetadata(ctx, tx)
		if err != nil {
			return err
		}
		if m.GenesisValidatorsRoot != nil {
			if !bytes.Equal(m.GenesisValidatorsRoot, gvr) {
				return apperrors.New(apperrors.KindBadRequest, "genesis validators root is write-once and does not match stored value")
			}
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE metadata SET genesis_validators_root = $1 WHERE id = 1`, gvr)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "write genesis validators root", err)
		}
		return nil
	})
}

// SetHighWatermark is an administrative operation. It
// requires a genesis validators root to already be present; without one
// the update has no effect (reports zero rows affected via ok=false).
func (s *Store) SetHighWatermark(ctx context.Context, slot, epoch uint64) (ok bool, err error) {
	err = s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		m, e := getMetadata(ctx, tx)
		if e != nil {
			return e
		}
		if m.GenesisValidatorsRoot == nil {
			ok = false
			return nil
		}
		res, e := tx.ExecContext(ctx, `UPDATE metadata SET high_watermark_slot = $1, high_watermark_epoch = $2 WHERE id = 1`, slot, epoch)
		if e != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "set high watermark", e)
		}
		n, _ := res.RowsAffected()
		ok = n > 0
		return nil
	})
	return ok, err
}

// DeleteHighWatermark clears the global high-watermark.
func (s *Store) DeleteHighWatermark(ctx context.Context) error {
	return s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE metadata SET high_watermark_slot = NULL, high_watermark_epoch = NULL WHERE id = 1`)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "delete high watermark", err)
		}
		return nil
	})
}

type lowWatermark struct {
	minBlockSlot         uint64
	minAttestationSource uint64
	minAttestationTarget uint64
}

func getLowWatermark(ctx context.Context, tx *sql.Tx, validatorID int64) (lowWatermark, error) {
	var lw lowWatermark
	err := tx.QueryRowContext(ctx,
		`SELECT min_block_slot, min_attestation_source_epoch, min_attestation_target_epoch
		 FROM low_watermarks WHERE validator_id = $1`, validatorID,
	).Scan(&lw.minBlockSlot, &lw.minAttestationSource, &lw.minAttestationTarget)
	if errors.Is(err, sql.ErrNoRows) {
		return lowWatermark{}, nil
	}
	if err != nil {
		return lowWatermark{}, apperrors.Wrap(apperrors.KindStorageFailure, "read low watermark", err)
	}
	return lw, nil
}

// bumpLowWatermark raises (never lowers) the stored low watermark to at
// least the given values monotonicity invariant.
func bumpLowWatermark(ctx context.Context, tx *sql.Tx, validatorID int64, minSlot, minSource, minTarget uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO low_watermarks (validator_id, min_block_slot, min_attestation_source_epoch, min_attestation_target_epoch)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (validator_id) DO UPDATE SET
			min_block_slot = GREATEST(low_watermarks.min_block_slot, EXCLUDED.min_block_slot),
			min_attestation_source_epoch = GREATEST(low_watermarks.min_attestation_source_epoch, EXCLUDED.min_attestation_source_epoch),
			min_attestation_target_epoch = GREATEST(low_watermarks.min_attestation_target_epoch, EXCLUDED.min_attestation_target_epoch)
	`, validatorID, minSlot, minSource, minTarget)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageFailure, "bump low watermark", err)
	}
	return nil
}

// CheckAndRecordBlock runs the block rule inside one
// serialisable transaction and, on acceptance, records the signed block.
// GVR must equal the stored one; a mismatch is a rejection, not an error.
func (s *Store) CheckAndRecordBlock(ctx context.Context, validatorID int64, gvr []byte, slot uint64, signingRoot []byte) (Decision, error) {
	var decision Decision
	err := s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		m, err := getMetadata(ctx, tx)
		if err != nil {
			return err
		}
		if m.GenesisValidatorsRoot != nil && !bytes.Equal(m.GenesisValidatorsRoot, gvr) {
			decision = reject("genesis validators root mismatch")
			return nil
		}

		enabled, err := validatorEnabledTx(ctx, tx, validatorID)
		if err != nil {
			return err
		}
		if !enabled {
			decision = reject("validator is disabled")
			return nil
		}

		lw, err := getLowWatermark(ctx, tx, validatorID)
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT signing_root FROM signed_blocks WHERE validator_id = $1 AND slot = $2`, validatorID, slot)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "query signed blocks", err)
		}
		var existing []existingBlock
		for rows.Next() {
			var root sql.RawBytes
			if err := rows.Scan(&root); err != nil {
				rows.Close()
				return apperrors.Wrap(apperrors.KindStorageFailure, "scan signed block", err)
			}
			eb := existingBlock{Slot: slot}
			if len(root) > 0 {
				eb.SigningRoot = append([]byte(nil), root...)
			}
			existing = append(existing, eb)
		}
		rowsErr := rows.Err()
		rows.Close()
		if rowsErr != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "iterate signed blocks", rowsErr)
		}

		decision = evaluateBlock(lw, m.HighWatermarkSlot, existing, slot, signingRoot)
		if !decision.Accepted {
			return nil
		}
		if len(existing) > 0 {
			// Idempotent re-sign of an already-recorded slot: nothing to write.
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO signed_blocks (validator_id, slot, signing_root) VALUES ($1, $2, $3)`,
			validatorID, slot, signingRoot,
		); err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "insert signed block", err)
		}
		return bumpLowWatermark(ctx, tx, validatorID, slot, 0, 0)
	})
	return decision, err
}

// CheckAndRecordAttestation runs the attestation rule.
func (s *Store) CheckAndRecordAttestation(ctx context.Context, validatorID int64, gvr []byte, sourceEpoch, targetEpoch uint64, signingRoot []byte) (Decision, error) {
	var decision Decision
	err := s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		m, err := getMetadata(ctx, tx)
		if err != nil {
			return err
		}
		if m.GenesisValidatorsRoot != nil && !bytes.Equal(m.GenesisValidatorsRoot, gvr) {
			decision = reject("genesis validators root mismatch")
			return nil
		}

		enabled, err := validatorEnabledTx(ctx, tx, validatorID)
		if err != nil {
			return err
		}
		if !enabled {
			decision = reject("validator is disabled")
			return nil
		}

		if sourceEpoch >= targetEpoch {
			decision = reject("source epoch must be strictly less than target epoch")
			return nil
		}

		lw, err := getLowWatermark(ctx, tx, validatorID)
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT source_epoch, target_epoch, signing_root FROM signed_attestations WHERE validator_id = $1`, validatorID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "query signed attestations", err)
		}
		var existing []existingAttestation
		var matchAtTarget bool
		for rows.Next() {
			var s2, t2 uint64
			var root sql.RawBytes
			if err := rows.Scan(&s2, &t2, &root); err != nil {
				rows.Close()
				return apperrors.Wrap(apperrors.KindStorageFailure, "scan signed attestation", err)
			}
			ea := existingAttestation{SourceEpoch: s2, TargetEpoch: t2}
			if len(root) > 0 {
				ea.SigningRoot = append([]byte(nil), root...)
			}
			if t2 == targetEpoch {
				matchAtTarget = true
			}
			existing = append(existing, ea)
		}
		rowsErr := rows.Err()
		rows.Close()
		if rowsErr != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "iterate signed attestations", rowsErr)
		}

		decision = evaluateAttestation(lw, m.HighWatermarkEpoch, existing, sourceEpoch, targetEpoch, signingRoot)
		if !decision.Accepted {
			return nil
		}
		if matchAtTarget {
			// Idempotent re-sign of an already-recorded target epoch.
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO signed_attestations (validator_id, source_epoch, target_epoch, signing_root) VALUES ($1, $2, $3, $4)`,
			validatorID, sourceEpoch, targetEpoch, signingRoot,
		); err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "insert signed attestation", err)
		}
		return bumpLowWatermark(ctx, tx, validatorID, 0, sourceEpoch, targetEpoch)
	})
	return decision, err
}

func validatorEnabledTx(ctx context.Context, tx *sql.Tx, validatorID int64) (bool, error) {
	var enabled bool
	err := tx.QueryRowContext(ctx, `SELECT enabled FROM validators WHERE id = $1`, validatorID).Scan(&enabled)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindStorageFailure, "read validator enabled flag", err)
	}
	return enabled, nil
}
