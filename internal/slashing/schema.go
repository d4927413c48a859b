package slashing

// migrations mirrors the real Web3Signer schema evolution as an ordered
// list. Applied in order, idempotently, by Store.migrate.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS validators (
		id BIGSERIAL PRIMARY KEY,
		public_key BYTEA NOT NULL UNIQUE,
		enabled BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS signed_blocks (
		validator_id BIGINT NOT NULL REFERENCES validators(id),
		slot BIGINT NOT NULL,
		signing_root BYTEA
	)`,
	`CREATE TABLE IF NOT EXISTS signed_attestations (
		validator_id BIGINT NOT NULL REFERENCES validators(id),
		source_epoch BIGINT NOT NULL,
		target_epoch BIGINT NOT NULL,
		signing_root BYTEA
	)`,
	`CREATE TABLE IF NOT EXISTS low_watermarks (
		validator_id BIGINT PRIMARY KEY REFERENCES validators(id),
		min_block_slot BIGINT NOT NULL DEFAULT 0,
		min_attestation_source_epoch BIGINT NOT NULL DEFAULT 0,
		min_attestation_target_epoch BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS metadata (
		id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		genesis_validators_root BYTEA,
		high_watermark_slot BIGINT,
		high_watermark_epoch BIGINT
	)`,
	// V00008-equivalent: partial uniqueness, non-null roots only. Multiple
	// null-root rows are permitted; application logic deduplicates them.
	`CREATE UNIQUE INDEX IF NOT EXISTS signed_blocks_validator_slot_root_idx
		ON signed_blocks (validator_id, slot, signing_root) WHERE signing_root IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS signed_attestations_validator_target_root_idx
		ON signed_attestations (validator_id, target_epoch, signing_root) WHERE signing_root IS NOT NULL`,
	// V00011-equivalent: index the hot lookup columns.
	`CREATE INDEX IF NOT EXISTS signed_blocks_validator_slot_idx ON signed_blocks (validator_id, slot)`,
	`CREATE INDEX IF NOT EXISTS signed_attestations_validator_target_idx ON signed_attestations (validator_id, target_epoch)`,
	`CREATE INDEX IF NOT EXISTS signed_attestations_validator_source_idx ON signed_attestations (validator_id, source_epoch)`,
	`INSERT INTO metadata (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
}
