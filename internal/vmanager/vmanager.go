// Package vmanager implements the DB validator manager and the
// key-manager delete flow: the transactional add/remove of a consensus BLS
// validator across the signer registry, its on-disk keystore triple, and
// the slashing-protection store, with per-request logger scoping and
// ordered rollback of partial state on failure.
package vmanager

import (
	"context"
	"encoding/hex"
	"io"
	"strings"

	"github.com/herumi/bls-eth-go-binary/bls"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/interchange"
	"github.com/PegaSysEng/Eth2Signer/internal/keystore"
	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
	"github.com/PegaSysEng/Eth2Signer/internal/slashing"
)

// Status mirrors Web3Signer's key-manager response status vocabulary.
type Status string

const (
	StatusImported   Status = "imported"
	StatusDuplicate  Status = "duplicate"
	StatusDeleted    Status = "deleted"
	StatusNotActive  Status = "not_active"
	StatusNotFound   Status = "not_found"
	StatusError      Status = "error"
)

// Result is the per-key outcome of an add or delete operation.
type Result struct {
	Status  Status
	Message string
}

// Manager coordinates the registry, on-disk keystores, and the slashing
// store so that a validator's presence in all three never diverges for
// longer than a single failed operation can explain.
type Manager struct {
	logger      *zap.Logger
	registry    *registry.Registry
	store       *slashing.Store
	keystoreDir string
}

func New(logger *zap.Logger, reg *registry.Registry, store *slashing.Store, keystoreDir string) *Manager {
	return &Manager{logger: logger, registry: reg, store: store, keystoreDir: keystoreDir}
}

// AddValidator implements add_validator: decrypt the
// supplied EIP-2335 keystore, write the on-disk triple, register the
// signer, and mark the validator enabled.
func (m *Manager) AddValidator(ctx context.Context, keystoreJSON []byte, password string) (Result, error) {
	privKey, err := keystore.Decrypt(keystoreJSON, password)
	if err != nil {
		return Result{Status: StatusError, Message: err.Error()}, err
	}

	var sk bls.SecretKey
	if err := sk.Deserialize(privKey); err != nil {
		wrapped := apperrors.Wrap(apperrors.KindKeystoreDecryptError, "decode BLS private key", err)
		return Result{Status: StatusError, Message: wrapped.Error()}, wrapped
	}
	signer := signing.NewBLSSigner(&sk)
	pubKeyHex := signer.Identifier()

	if _, ok := m.registry.Get(pubKeyHex); ok {
		return Result{Status: StatusDuplicate}, nil
	}

	dir := m.keystoreDir
	metadataYAML := []byte("type: file-keystore\nkeyType: BLS\n")
	if _, err := keystore.WriteTriple(dir, pubKeyHex, keystoreJSON, password, metadataYAML); err != nil {
		return Result{Status: StatusError, Message: err.Error()}, err
	}

	pubKeyRaw := sk.GetPublicKey().Serialize()
	validatorID, enabled, err := m.store.EnsureValidator(ctx, pubKeyRaw)
	if err != nil {
		return Result{Status: StatusError, Message: err.Error()}, err
	}
	if !enabled {
		if _, err := m.store.SetEnabled(ctx, validatorID, true); err != nil {
			return Result{Status: StatusError, Message: err.Error()}, err
		}
	}

	m.registry.Add(ctx, signer)
	m.logger.Info("validator added", zap.String("identifier", pubKeyHex))
	return Result{Status: StatusImported}, nil
}

// DeleteValidator implements the key-manager DELETE flow:
// signer lookup, registry removal, disable, file deletion, ordered
// rollback of the enabled flag on any failure, and a single-key
// incremental slashing-protection export on success.
func (m *Manager) DeleteValidator(ctx context.Context, pubKeyHex string, exportTo io.Writer) Result {
	id := signing.NormalizeIdentifier(pubKeyHex)
	_, active := m.registry.Get(id)

	pubKeyRaw, err := hex.DecodeString(strings.TrimPrefix(id, "0x"))
	if err != nil {
		return Result{Status: StatusError, Message: err.Error()}
	}

	validatorID, known, err := m.store.FindValidator(ctx, pubKeyRaw)
	if err != nil {
		return Result{Status: StatusError, Message: err.Error()}
	}

	if !active {
		if known {
			return Result{Status: StatusNotActive}
		}
		return Result{Status: StatusNotFound}
	}

	if !known {
		// Active but never seen by the slashing store: loaded straight from
		// a metadata file and never signed or added through AddValidator.
		// Ensure a row exists so it can be disabled and deleted like any
		// other active key.
		validatorID, _, err = m.store.EnsureValidator(ctx, pubKeyRaw)
		if err != nil {
			return Result{Status: StatusError, Message: err.Error()}
		}
	}

	previousEnabled, err := m.store.SetEnabled(ctx, validatorID, false)
	if err != nil {
		return Result{Status: StatusError, Message: err.Error()}
	}

	m.registry.Remove(ctx, id)

	triple := keystore.PathsFor(m.keystoreDir, id)
	if err := keystore.DeleteFiles(triple); err != nil {
		if _, restoreErr := m.store.SetEnabled(ctx, validatorID, previousEnabled); restoreErr != nil {
			m.logger.Error("failed to restore enabled flag after delete failure", zap.Error(restoreErr))
		}
		return Result{Status: StatusError, Message: err.Error()}
	}

	if exportTo != nil {
		if err := interchange.StreamExportOne(ctx, m.store, validatorID, pubKeyRaw, exportTo); err != nil {
			// Export failure leaves the enabled flag at its pre-operation
			// (post-disable) value; it is not restored.
			m.logger.Warn("single-key interchange export failed", zap.String("identifier", id), zap.Error(err))
		}
	}

	m.logger.Info("validator deleted", zap.String("identifier", id))
	return Result{Status: StatusDeleted}
}
