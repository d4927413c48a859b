package httpapi

import (
	"encoding/json"
	"sort"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/jsonrpc"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

func (s *Server) handleUpcheck(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	writeString(ctx, s.logger, "OK")
}

func (s *Server) handleReload(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleReload"))
	results := s.reload(ctx)
	logger.Info("reload finished", zap.Int("error_count", results.ErrorCount))
	ctx.SetStatusCode(fasthttp.StatusOK)
}

// healthcheckStatus mirrors Web3Signer's healthcheck body: a top-level
// UP/DOWN status plus a tree of named checks, so an operator's monitoring
// can drill into which subsystem is unhealthy.
type healthcheckStatus struct {
	Status string            `json:"status"`
	Checks []healthcheckCheck `json:"checks"`
}

type healthcheckCheck struct {
	ID     string             `json:"id"`
	Status string             `json:"status"`
	Checks []healthcheckCheck `json:"checks,omitempty"`
	Data   map[string]any     `json:"data,omitempty"`
}

// handleHealthcheck implements GET /healthcheck: one check per bulk loader
// and one for slashing-DB connectivity, nested under "keys-check" and
// "slashing-db" per Web3Signer's HealthCheckModule/StatusCheck shape.
func (s *Server) handleHealthcheck(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleHealthcheck"))

	errCount := int(s.lastLoadErrors.Load())
	loaderStatus := "UP"
	if errCount > 0 {
		loaderStatus = "DOWN"
	}
	keysCheck := healthcheckCheck{
		ID:     "keys-check",
		Status: loaderStatus,
		Checks: []healthcheckCheck{{
			ID:     "azure-bulk-loading",
			Status: loaderStatus,
			Data:   map[string]any{"error-count": errCount},
		}},
	}

	overall := "UP"
	checks := []healthcheckCheck{keysCheck}
	if errCount > 0 {
		overall = "DOWN"
	}

	if s.store != nil {
		dbStatus := "UP"
		if _, err := s.store.GetMetadata(ctx); err != nil {
			dbStatus = "DOWN"
			overall = "DOWN"
			logger.Warn("slashing db healthcheck failed", zap.Error(err))
		}
		checks = append(checks, healthcheckCheck{ID: "slashing-db", Status: dbStatus})
	}

	statusCode := fasthttp.StatusOK
	if overall == "DOWN" {
		statusCode = fasthttp.StatusServiceUnavailable
	}
	ctx.SetStatusCode(statusCode)
	writeJSON(ctx, logger, healthcheckStatus{Status: overall, Checks: checks})
}

func (s *Server) handlePublicKeysEth2(ctx *fasthttp.RequestCtx) {
	s.writePublicKeys(ctx, signing.KeyTypeBLS)
}

func (s *Server) handlePublicKeysEth1(ctx *fasthttp.RequestCtx) {
	s.writePublicKeys(ctx, signing.KeyTypeSECP256K1)
}

func (s *Server) writePublicKeys(ctx *fasthttp.RequestCtx, keyType signing.KeyType) {
	logger := s.logger.With(zap.String("method", "publicKeys"), zap.String("key_type", string(keyType)))
	all := s.registry.Available()
	out := make([]string, 0, len(all))
	for _, id := range all {
		if isEthAddressLike(id) == (keyType == signing.KeyTypeSECP256K1) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	writeJSON(ctx, logger, out)
}

// isEthAddressLike reports the 20-byte-address shape distinguishing
// secp256k1 identifiers from 48-byte BLS ones.
func isEthAddressLike(identifier string) bool {
	return len(identifier) == 2+40
}

// handleJSONRPC serves the eth1 JSON-RPC surface at the root
// path, matching Web3Signer's convention of one POST endpoint dispatching
// on the "method" field.
func (s *Server) handleJSONRPC(ctx *fasthttp.RequestCtx) {
	logger := s.logger.With(zap.String("method", "handleJSONRPC"))

	var req jsonrpc.Request
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSONErr(ctx, logger, fasthttp.StatusBadRequest, err)
		return
	}

	resp := s.jsonrpc.Dispatch(ctx, req)
	writeJSON(ctx, logger, resp)
}
