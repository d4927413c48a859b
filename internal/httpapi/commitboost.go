package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
	"github.com/PegaSysEng/Eth2Signer/internal/ethdomain"
	"github.com/PegaSysEng/Eth2Signer/internal/proxykey"
)

type generateProxyKeyRequest struct {
	ConsensusID string `json:"consensus_id"`
	Scheme      string `json:"scheme"`
}

type proxyKeyMessageBody struct {
	Delegator string `json:"delegator"`
	Proxy     string `json:"proxy"`
}

type generateProxyKeyResponse struct {
	Message   proxyKeyMessageBody `json:"message"`
	Signature string              `json:"signature"`
}

// handleGenerateProxyKey implements POST /signer/v1/generate_proxy_key
//: mint a fresh proxy key, register it, and sign the
// delegation message with the consensus key.
func (s *Server) handleGenerateProxyKey(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleGenerateProxyKey"))

	var req generateProxyKeyRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("parse generate_proxy_key request: %w", err))
		return
	}
	logger = logger.With(zap.String("consensus_id", req.ConsensusID), zap.String("scheme", req.Scheme))

	consensusSigner, ok := s.registry.Get(req.ConsensusID)
	if !ok {
		writeAppErr(ctx, logger, apperrors.ErrNotFound)
		return
	}

	gen, err := proxykey.Generate(ctx, s.registry, s.proxyRoot, req.ConsensusID, proxykey.Scheme(req.Scheme), s.proxyPassword)
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}

	gvr, err := s.genesisValidatorsRoot(ctx)
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}
	domain, err := proxykey.CommitBoostDomain(s.genesisForkVersion, gvr)
	if err != nil {
		writeAppErr(ctx, logger, apperrors.Wrap(apperrors.KindInternal, "compute commit-boost domain", err))
		return
	}

	sig, err := proxykey.Delegate(ctx, consensusSigner, gen.Message, domain)
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}

	logger.Info("request finished successfully", zap.String("proxy_identifier", gen.Identifier))
	writeJSON(ctx, logger, generateProxyKeyResponse{
		Message: proxyKeyMessageBody{
			Delegator: "0x" + hex.EncodeToString(gen.Message.Delegator),
			Proxy:     "0x" + hex.EncodeToString(gen.Message.Proxy),
		},
		Signature: sig.Hex(),
	})
}

type requestSignatureRequest struct {
	Pubkey     string `json:"pubkey"`
	ObjectRoot string `json:"object_root"`
	Domain     string `json:"domain"`
}

type requestSignatureResponse struct {
	Signature string `json:"signature"`
}

// handleRequestSignature implements POST /signer/v1/request_signature
//: sign an already-domain-known object root with a registered
// consensus or proxy identifier.
func (s *Server) handleRequestSignature(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleRequestSignature"))

	var req requestSignatureRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("parse request_signature body: %w", err))
		return
	}
	logger = logger.With(zap.String("pubkey", req.Pubkey))

	signer, ok := s.registry.Get(req.Pubkey)
	if !ok {
		signer, ok = s.registry.GetProxy(req.Pubkey)
	}
	if !ok {
		writeAppErr(ctx, logger, apperrors.ErrNotFound)
		return
	}

	objectRoot, err := parseHex32(req.ObjectRoot)
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}
	var domain ethdomain.Domain
	domainBytes, err := parseHexBytes(req.Domain)
	if err != nil {
		writeAppErr(ctx, logger, err)
		return
	}
	if len(domainBytes) != len(domain) {
		writeAppErr(ctx, logger, apperrors.New(apperrors.KindBadRequest, "domain must be 32 bytes"))
		return
	}
	copy(domain[:], domainBytes)

	root, err := ethdomain.SigningRoot(objectRoot, domain)
	if err != nil {
		writeAppErr(ctx, logger, apperrors.Wrap(apperrors.KindInternal, "compute signing root", err))
		return
	}
	sig, err := signer.Sign(ctx, root[:])
	if err != nil {
		writeAppErr(ctx, logger, apperrors.Wrap(apperrors.KindSignerUnavailable, "sign commit-boost request", err))
		return
	}

	logger.Info("request finished successfully")
	writeJSON(ctx, logger, requestSignatureResponse{Signature: sig.Hex()})
}
