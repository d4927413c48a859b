package dispatch

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
	"github.com/PegaSysEng/Eth2Signer/internal/slashing"
)

// Dispatcher implements the sign contract of this service: normalise,
// look up, slash-check (consensus block/attestation only), sign, encode.
type Dispatcher struct {
	logger   *zap.Logger
	registry *registry.Registry
	store    *slashing.Store // nil in eth1-only deployments; block and attestation requests then fail Internal
}

func New(logger *zap.Logger, reg *registry.Registry, store *slashing.Store) *Dispatcher {
	return &Dispatcher{logger: logger, registry: reg, store: store}
}

// SignConsensus dispatches an eth2 sign request. The whole operation,
// including the slashing check and the signer call, is timed as one unit
// (the dispatcher, not the transport layer, owns latency
// accounting for a sign).
func (d *Dispatcher) SignConsensus(ctx context.Context, identifier string, req Request) (string, error) {
	start := time.Now()
	sig, err := d.signConsensus(ctx, identifier, req)
	d.logger.Debug("consensus sign",
		zap.String("identifier", identifier),
		zap.String("type", string(req.Type)),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	return sig, err
}

func (d *Dispatcher) signConsensus(ctx context.Context, identifier string, req Request) (string, error) {
	id := signing.NormalizeIdentifier(identifier)
	signer, ok := d.registry.Get(id)
	if !ok {
		return "", apperrors.ErrNotFound
	}

	root, err := SigningRoot(req)
	if err != nil {
		return "", err
	}

	if req.Type == TypeBlock || req.Type == TypeBlockV2 || req.Type == TypeAttestation {
		if d.store == nil {
			return "", apperrors.New(apperrors.KindInternal, "slashing protection is not configured")
		}
		if err := d.checkSlashing(ctx, id, req, root); err != nil {
			return "", err
		}
	}

	sig, err := signer.Sign(ctx, root[:])
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindSignerUnavailable, "sign consensus artifact", err)
	}
	return sig.Hex(), nil
}

func (d *Dispatcher) checkSlashing(ctx context.Context, identifier string, req Request, root [32]byte) error {
	pubKey, err := hex.DecodeString(strings.TrimPrefix(identifier, "0x"))
	if err != nil {
		return apperrors.Wrap(apperrors.KindBadRequest, "decode identifier as public key", err)
	}
	validatorID, _, err := d.store.EnsureValidator(ctx, pubKey)
	if err != nil {
		return err
	}

	gvr := req.Fork.GenesisValidatorsRoot[:]
	var decision slashing.Decision
	switch req.Type {
	case TypeBlock, TypeBlockV2:
		decision, err = d.store.CheckAndRecordBlock(ctx, validatorID, gvr, req.Block.Slot, root[:])
	case TypeAttestation:
		decision, err = d.store.CheckAndRecordAttestation(ctx, validatorID, gvr, req.Attestation.Source.Epoch, req.Attestation.Target.Epoch, root[:])
	}
	if err != nil {
		return err
	}
	if !decision.Accepted {
		return apperrors.Wrap(apperrors.KindSlashingRejected, decision.Reason, apperrors.ErrSlashingRejected)
	}
	return nil
}

// SignRaw dispatches an eth1 sign request: the payload is handed to the
// signer untouched, since eth_sign's Keccak prehash lives on the signer
// itself (internal/signing), not the dispatcher.
func (d *Dispatcher) SignRaw(ctx context.Context, identifier string, payload []byte) (string, error) {
	start := time.Now()
	id := signing.NormalizeIdentifier(identifier)
	signer, ok := d.registry.Get(id)
	if !ok {
		return "", apperrors.ErrNotFound
	}
	sig, err := signer.Sign(ctx, payload)
	d.logger.Debug("raw sign", zap.String("identifier", identifier), zap.Duration("took", time.Since(start)), zap.Error(err))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindSignerUnavailable, "sign raw payload", err)
	}
	return sig.Hex(), nil
}
