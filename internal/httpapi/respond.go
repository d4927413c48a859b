// Package httpapi implements the HTTP surface: eth2/eth1 sign,
// the Ethereum key-manager API, the Commit-Boost signer API, the eth1
// JSON-RPC endpoint, and the health/reload/publicKeys endpoints, following
// a route-registration and per-handler logger-scoping style with shared
// writeJSON/writeJSONErr response helpers.
package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
)

// ErrorMessage is the JSON body of every non-2xx response.
type ErrorMessage struct {
	Message string `json:"message"`
}

func writeJSON(ctx *fasthttp.RequestCtx, logger *zap.Logger, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal JSON", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		b, _ = json.Marshal(ErrorMessage{Message: err.Error()})
	}
	ctx.SetContentType("application/json")
	if _, err := ctx.Write(b); err != nil {
		logger.Error("failed to write response", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}

// writeJSONErr calls writeJSON, so it shouldn't be called from writeJSON.
func writeJSONErr(ctx *fasthttp.RequestCtx, logger *zap.Logger, statusCode int, err error) {
	ctx.SetStatusCode(statusCode)
	writeJSON(ctx, logger, ErrorMessage{Message: err.Error()})
}

func writeString(ctx *fasthttp.RequestCtx, logger *zap.Logger, str string) {
	ctx.SetContentType("text/plain; charset=utf-8")
	if _, err := ctx.WriteString(str); err != nil {
		logger.Error("failed to write response", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}

// statusForKind maps an apperrors.Kind to its HTTP status: 400, 404, 412
// (slashing), 500.
func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindBadRequest, apperrors.KindMetadataParseError, apperrors.KindKeystoreDecryptError:
		return fasthttp.StatusBadRequest
	case apperrors.KindNotFound:
		return fasthttp.StatusNotFound
	case apperrors.KindSlashingRejected:
		return fasthttp.StatusPreconditionFailed
	default:
		return fasthttp.StatusInternalServerError
	}
}

// writeAppErr maps err's apperrors.Kind to a status code and writes it as a
// JSON error body, logging at a severity matching how expected the failure
// is (slashing rejections and not-founds are routine, not incidents).
func writeAppErr(ctx *fasthttp.RequestCtx, logger *zap.Logger, err error) {
	kind := apperrors.KindOf(err)
	status := statusForKind(kind)
	if status >= fasthttp.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err), zap.Int("status_code", status))
	} else {
		logger.Warn("request rejected", zap.Error(err), zap.Int("status_code", status))
	}
	writeJSONErr(ctx, logger, status, fmt.Errorf("%s", err.Error()))
}
