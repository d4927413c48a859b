package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/dispatch"
)

// signRequestBody mirrors the Web3Signer eth2 sign request JSON shape:
// numeric fields are decimal strings, roots and versions are 0x-hex,
// exactly one type-specific object is populated per "type".
type signRequestBody struct {
	Type     string `json:"type"`
	ForkInfo struct {
		Fork struct {
			PreviousVersion string `json:"previous_version"`
			CurrentVersion  string `json:"current_version"`
			Epoch           string `json:"epoch"`
		} `json:"fork"`
		GenesisValidatorsRoot string `json:"genesis_validators_root"`
	} `json:"fork_info"`

	Block *struct {
		Slot          string `json:"slot"`
		ProposerIndex string `json:"proposer_index"`
		ParentRoot    string `json:"parent_root"`
		StateRoot     string `json:"state_root"`
		BodyRoot      string `json:"body_root"`
	} `json:"block"`

	Attestation *struct {
		Slot            string `json:"slot"`
		Index           string `json:"index"`
		BeaconBlockRoot string `json:"beacon_block_root"`
		Source          struct {
			Epoch string `json:"epoch"`
			Root  string `json:"root"`
		} `json:"source"`
		Target struct {
			Epoch string `json:"epoch"`
			Root  string `json:"root"`
		} `json:"target"`
	} `json:"attestation"`

	AggregationSlot *struct {
		Slot string `json:"slot"`
	} `json:"aggregation_slot"`

	RandaoReveal *struct {
		Epoch string `json:"epoch"`
	} `json:"randao_reveal"`

	VoluntaryExit *struct {
		Epoch          string `json:"epoch"`
		ValidatorIndex string `json:"validator_index"`
	} `json:"voluntary_exit"`

	SyncCommitteeMessage *struct {
		BeaconBlockRoot string `json:"beacon_block_root"`
		Slot            string `json:"slot"`
	} `json:"sync_committee_message"`

	SyncAggregatorSelectionData *struct {
		Slot string `json:"slot"`
	} `json:"sync_aggregator_selection_data"`

	// SigningRoot lets a caller supply an already hash-tree-rooted object for
	// the artifact types whose payload is variable-length and out of scope
	// to reimplement here (AGGREGATE_AND_PROOF, SYNC_COMMITTEE_CONTRIBUTION_
	// AND_PROOF, VALIDATOR_REGISTRATION), per the vmanager/dispatch design
	// note on pre-computed object roots.
	SigningRoot string `json:"signing_root"`
}

func parseSignRequest(body []byte) (dispatch.Request, error) {
	var b signRequestBody
	if err := json.Unmarshal(body, &b); err != nil {
		return dispatch.Request{}, apperrors.Wrap(apperrors.KindBadRequest, "parse sign request body", err)
	}

	req := dispatch.Request{Type: dispatch.ObjectType(b.Type)}

	currentVersion, err := parseHex4(b.ForkInfo.Fork.CurrentVersion)
	if err != nil {
		return dispatch.Request{}, err
	}
	gvr, err := parseHex32(b.ForkInfo.GenesisValidatorsRoot)
	if err != nil {
		return dispatch.Request{}, err
	}
	req.Fork = dispatch.ForkInfo{
		Fork:                  dispatch.Fork{CurrentVersion: currentVersion},
		GenesisValidatorsRoot: gvr,
	}

	switch req.Type {
	case dispatch.TypeBlock, dispatch.TypeBlockV2:
		if b.Block == nil {
			return dispatch.Request{}, badRequest("block header is required for %s", req.Type)
		}
		slot, err := parseUint64(b.Block.Slot)
		if err != nil {
			return dispatch.Request{}, err
		}
		proposerIndex, err := parseUint64(b.Block.ProposerIndex)
		if err != nil {
			return dispatch.Request{}, err
		}
		parentRoot, err := parseHex32(b.Block.ParentRoot)
		if err != nil {
			return dispatch.Request{}, err
		}
		stateRoot, err := parseHex32(b.Block.StateRoot)
		if err != nil {
			return dispatch.Request{}, err
		}
		bodyRoot, err := parseHex32(b.Block.BodyRoot)
		if err != nil {
			return dispatch.Request{}, err
		}
		req.Block = &dispatch.BlockHeader{
			Slot: slot, ProposerIndex: proposerIndex,
			ParentRoot: parentRoot, StateRoot: stateRoot, BodyRoot: bodyRoot,
		}

	case dispatch.TypeAttestation:
		if b.Attestation == nil {
			return dispatch.Request{}, badRequest("attestation data is required for ATTESTATION")
		}
		slot, err := parseUint64(b.Attestation.Slot)
		if err != nil {
			return dispatch.Request{}, err
		}
		index, err := parseUint64(b.Attestation.Index)
		if err != nil {
			return dispatch.Request{}, err
		}
		beaconRoot, err := parseHex32(b.Attestation.BeaconBlockRoot)
		if err != nil {
			return dispatch.Request{}, err
		}
		sourceEpoch, err := parseUint64(b.Attestation.Source.Epoch)
		if err != nil {
			return dispatch.Request{}, err
		}
		sourceRoot, err := parseHex32(b.Attestation.Source.Root)
		if err != nil {
			return dispatch.Request{}, err
		}
		targetEpoch, err := parseUint64(b.Attestation.Target.Epoch)
		if err != nil {
			return dispatch.Request{}, err
		}
		targetRoot, err := parseHex32(b.Attestation.Target.Root)
		if err != nil {
			return dispatch.Request{}, err
		}
		req.Attestation = &dispatch.AttestationData{
			Slot: slot, Index: index, BeaconBlockRoot: beaconRoot,
			Source: dispatch.Checkpoint{Epoch: sourceEpoch, Root: sourceRoot},
			Target: dispatch.Checkpoint{Epoch: targetEpoch, Root: targetRoot},
		}

	case dispatch.TypeAggregationSlot:
		if b.AggregationSlot == nil {
			return dispatch.Request{}, badRequest("aggregation_slot is required for AGGREGATION_SLOT")
		}
		req.AggregationSlot, err = parseUint64(b.AggregationSlot.Slot)
		if err != nil {
			return dispatch.Request{}, err
		}

	case dispatch.TypeRandaoReveal:
		if b.RandaoReveal == nil {
			return dispatch.Request{}, badRequest("randao_reveal is required for RANDAO_REVEAL")
		}
		req.RandaoRevealEpoch, err = parseUint64(b.RandaoReveal.Epoch)
		if err != nil {
			return dispatch.Request{}, err
		}

	case dispatch.TypeVoluntaryExit:
		if b.VoluntaryExit == nil {
			return dispatch.Request{}, badRequest("voluntary_exit is required for VOLUNTARY_EXIT")
		}
		req.VoluntaryExitEpoch, err = parseUint64(b.VoluntaryExit.Epoch)
		if err != nil {
			return dispatch.Request{}, err
		}
		req.VoluntaryExitValidatorIndex, err = parseUint64(b.VoluntaryExit.ValidatorIndex)
		if err != nil {
			return dispatch.Request{}, err
		}

	case dispatch.TypeSyncCommitteeMessage:
		if b.SyncCommitteeMessage == nil {
			return dispatch.Request{}, badRequest("sync_committee_message is required for SYNC_COMMITTEE_MESSAGE")
		}
		req.SyncCommitteeSlot, err = parseUint64(b.SyncCommitteeMessage.Slot)
		if err != nil {
			return dispatch.Request{}, err
		}
		req.SyncCommitteeBeaconBlockRoot, err = parseHex32(b.SyncCommitteeMessage.BeaconBlockRoot)
		if err != nil {
			return dispatch.Request{}, err
		}

	case dispatch.TypeSyncCommitteeSelectionProof:
		if b.SyncAggregatorSelectionData == nil {
			return dispatch.Request{}, badRequest("sync_aggregator_selection_data is required for SYNC_COMMITTEE_SELECTION_PROOF")
		}
		req.SelectionProofSlot, err = parseUint64(b.SyncAggregatorSelectionData.Slot)
		if err != nil {
			return dispatch.Request{}, err
		}

	case dispatch.TypeAggregateAndProof:
		req.AggregateAndProofRoot, err = parseHex32(b.SigningRoot)
		if err != nil {
			return dispatch.Request{}, err
		}

	case dispatch.TypeSyncCommitteeContributionAndProof:
		req.ContributionBeaconBlockRoot, err = parseHex32(b.SigningRoot)
		if err != nil {
			return dispatch.Request{}, err
		}

	case dispatch.TypeValidatorRegistration:
		req.ValidatorRegistrationRoot, err = parseHex32(b.SigningRoot)
		if err != nil {
			return dispatch.Request{}, err
		}

	default:
		return dispatch.Request{}, badRequest("unsupported artifact type %q", b.Type)
	}

	return req, nil
}

// signResponse is the { "signature": "0x..." } body of a successful eth2 sign.
type signResponse struct {
	Signature string `json:"signature"`
}

func (s *Server) handleSignEth2(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleSignEth2"))
	identifier, ok := ctx.UserValue("identifier").(string)
	if !ok {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("missing identifier path parameter"))
		return
	}
	logger = logger.With(zap.String("identifier", identifier))

	req, err := parseSignRequest(ctx.PostBody())
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}
	logger = logger.With(zap.String("type", string(req.Type)))

	sig, err := s.dispatcher.SignConsensus(ctx, identifier, req)
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}
	logger.Info("request finished successfully")
	writeJSON(ctx, logger, signResponse{Signature: sig})
}

type eth1SignRequestBody struct {
	Data string `json:"data"`
}

func (s *Server) handleSignEth1(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleSignEth1"))
	identifier, ok := ctx.UserValue("identifier").(string)
	if !ok {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("missing identifier path parameter"))
		return
	}
	logger = logger.With(zap.String("identifier", identifier))

	var body eth1SignRequestBody
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("parse eth1 sign request: %w", err))
		return
	}
	payload, err := parseHexBytes(body.Data)
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}

	sig, err := s.dispatcher.SignRaw(ctx, identifier, payload)
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}
	logger.Info("request finished successfully")
	// eth1 sign returns the raw hex signature as text/plain, not JSON
	//: validator-client callers treat this endpoint as a
	// drop-in for eth_sign, which returns a bare hex string.
	writeString(ctx, logger, sig)
}
