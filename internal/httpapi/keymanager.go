package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/interchange"
	"github.com/PegaSysEng/Eth2Signer/internal/vmanager"
)

// keystoreEntry is one row of GET /eth/v1/keystores's "data" array, per the
// Ethereum key-manager API.
type keystoreEntry struct {
	ValidatingPubkey string `json:"validating_pubkey"`
	DerivationPath   string `json:"derivation_path"`
	Readonly         bool   `json:"readonly"`
}

func (s *Server) handleListKeystores(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleListKeystores"))
	ids := s.registry.Available()
	data := make([]keystoreEntry, 0, len(ids))
	for _, id := range ids {
		data = append(data, keystoreEntry{ValidatingPubkey: id})
	}
	logger.Debug("request finished successfully", zap.Int("count", len(data)))
	writeJSON(ctx, logger, struct {
		Data []keystoreEntry `json:"data"`
	}{Data: data})
}

type importKeystoresRequest struct {
	Keystores          []string `json:"keystores"`
	Passwords          []string `json:"passwords"`
	SlashingProtection string   `json:"slashing_protection"`
}

type keyManagerResultEntry struct {
	Status  vmanager.Status `json:"status"`
	Message string          `json:"message"`
}

func (s *Server) handleImportKeystores(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleImportKeystores"))

	var req importKeystoresRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("parse import request: %w", err))
		return
	}
	if len(req.Keystores) != len(req.Passwords) {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("keystores and passwords must have equal length"))
		return
	}

	if req.SlashingProtection != "" && s.store != nil {
		result, err := interchange.Import(ctx, s.store, bytes.NewReader([]byte(req.SlashingProtection)))
		if err != nil {
			logger.Warn("failed to import slashing protection data", zap.Error(err))
			writeAppErr(ctx, logger, err)
			return
		}
		if result.BlocksRejected > 0 || result.AttestationsRejected > 0 {
			logger.Warn("slashing protection import rejected conflicting rows",
				zap.Int("blocks_rejected", result.BlocksRejected),
				zap.Int("attestations_rejected", result.AttestationsRejected),
			)
		}
	}

	results := make([]keyManagerResultEntry, len(req.Keystores))
	for i, ks := range req.Keystores {
		result, err := s.vmanager.AddValidator(ctx, []byte(ks), req.Passwords[i])
		if err != nil {
			logger.Warn("failed to add validator", zap.Int("index", i), zap.Error(err))
		}
		results[i] = keyManagerResultEntry{Status: result.Status, Message: result.Message}
	}

	logger.Info("request finished successfully", zap.Int("count", len(results)))
	writeJSON(ctx, logger, struct {
		Data []keyManagerResultEntry `json:"data"`
	}{Data: results})
}

type deleteKeystoresRequest struct {
	Pubkeys []string `json:"pubkeys"`
}

func (s *Server) handleDeleteKeystores(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleDeleteKeystores"))

	var req deleteKeystoresRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("parse delete request: %w", err))
		return
	}

	results := make([]keyManagerResultEntry, len(req.Pubkeys))
	merged := interchange.Document{Metadata: interchange.Metadata{InterchangeFormatVersion: interchange.FormatVersion}}
	for i, pk := range req.Pubkeys {
		var buf bytes.Buffer
		result := s.vmanager.DeleteValidator(ctx, pk, &buf)
		results[i] = keyManagerResultEntry{Status: result.Status, Message: result.Message}

		if result.Status == vmanager.StatusDeleted && buf.Len() > 0 {
			var doc interchange.Document
			if err := json.Unmarshal(buf.Bytes(), &doc); err == nil {
				merged.Metadata = doc.Metadata
				merged.Data = append(merged.Data, doc.Data...)
			}
		}
	}

	slashingProtectionJSON, err := json.Marshal(merged)
	if err != nil {
		logger.Error("failed to marshal merged slashing protection export", zap.Error(err))
		slashingProtectionJSON = []byte("{}")
	}

	logger.Info("request finished successfully", zap.Int("count", len(results)))
	writeJSON(ctx, logger, struct {
		Data               []keyManagerResultEntry `json:"data"`
		SlashingProtection string                  `json:"slashing_protection"`
	}{Data: results, SlashingProtection: string(slashingProtectionJSON)})
}

// remoteKeyEntry is one row of the Ethereum remote-key-manager API. This
// signer holds keys locally rather than delegating to a remote URL, so the
// "url" field is always this server's own base URL — the simplification is
// documented alongside the handler wiring.
type remoteKeyEntry struct {
	Pubkey   string `json:"pubkey"`
	URL      string `json:"url"`
	Readonly bool   `json:"readonly"`
}

func (s *Server) handleListRemoteKeys(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleListRemoteKeys"))
	ids := s.registry.Available()
	data := make([]remoteKeyEntry, 0, len(ids))
	for _, id := range ids {
		data = append(data, remoteKeyEntry{Pubkey: id, URL: s.selfURL})
	}
	logger.Debug("request finished successfully", zap.Int("count", len(data)))
	writeJSON(ctx, logger, struct {
		Data []remoteKeyEntry `json:"data"`
	}{Data: data})
}

func (s *Server) handleDeleteRemoteKeys(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleDeleteRemoteKeys"))

	var req deleteKeystoresRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, fmt.Errorf("parse delete request: %w", err))
		return
	}

	results := make([]keyManagerResultEntry, len(req.Pubkeys))
	for i, pk := range req.Pubkeys {
		result := s.vmanager.DeleteValidator(ctx, pk, nil)
		results[i] = keyManagerResultEntry{Status: result.Status, Message: result.Message}
	}

	logger.Info("request finished successfully", zap.Int("count", len(results)))
	writeJSON(ctx, logger, struct {
		Data []keyManagerResultEntry `json:"data"`
	}{Data: results})
}
