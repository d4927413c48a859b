// Package slashing implements the durable slashing-protection store
//: the block/attestation rule engine, running inside a
// single serialisable transaction per request, the low/high watermark, and
// pruning. Migrations are idempotent statements executed one by one on the
// connection pool, outside any transaction; database/sql + lib/pq provide
// the Postgres SERIALIZABLE transactions used by the rule engine.
package slashing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
)

// Decision is the outcome of a rule-engine check: Accept or Reject with a
// reason, never an exception.
type Decision struct {
	Accepted bool
	Reason   string
}

func accept() Decision           { return Decision{Accepted: true} }
func reject(reason string) Decision { return Decision{Accepted: false, Reason: reason} }

// Store is the DAO over the slashing-protection database.
type Store struct {
	db *sql.DB
}

// Open connects to the Postgres database at dsn and applies pending
// migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open slashing db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping slashing db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// FromDB wraps an already-open *sql.DB without pinging it or applying
// migrations.
func FromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// withSerializableTx runs fn inside a single SERIALIZABLE transaction,
// retrying exactly once on a Postgres serialization failure (SQLSTATE
// 40001) before surfacing it as Internal.
func (s *Store) withSerializableTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorageFailure, "begin transaction", err)
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return apperrors.Wrap(apperrors.KindStorageFailure, "commit transaction", err)
		}
		return nil
	}
	return apperrors.Wrap(apperrors.KindInternal, "serialization failure after retry", lastErr)
}

// isSerializationFailure reports whether err carries Postgres SQLSTATE
// 40001 (serialization_failure / write skew under SERIALIZABLE).
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001"
	}
	return false
}
