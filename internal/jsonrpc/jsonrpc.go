// Package jsonrpc implements the eth1 JSON-RPC result providers: eth_sign
// and eth_accounts. The envelope and error-code convention
// (code + message, matching go-ethereum's rpc.Error interface) is grounded
// on github.com/ethereum/go-ethereum/rpc, already a dependency for
// secp256k1 signing and hex helpers.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/PegaSysEng/Eth2Signer/internal/registry"
	"github.com/PegaSysEng/Eth2Signer/internal/signing"
)

const (
	codeInvalidParams = -32602
	codeMethodNotFound = -32601
)

// Error is a JSON-RPC error object. It satisfies go-ethereum/rpc's
// unexported Error interface shape (Error() string, ErrorCode() int) so a
// caller embedding this in an HTTP framework's own rpc stack can use it as
// one without adaptation.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string   { return e.Message }
func (e *Error) ErrorCode() int  { return e.Code }

func invalidParams(reason string) *Error {
	return &Error{Code: codeInvalidParams, Message: reason}
}

// errSigningFromNotUnlocked matches Web3Signer's literal wording for a
// missing eth1 account, since callers pattern-match on the message.
var errSigningFromNotUnlocked = &Error{Code: codeInvalidParams, Message: "signing from is not an unlocked account"}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope; exactly one of Result or
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func errorResponse(id json.RawMessage, err *Error) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: err}
}

func resultResponse(id json.RawMessage, result interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// Handler dispatches eth1 JSON-RPC requests against the signer registry.
type Handler struct {
	registry *registry.Registry
}

func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{registry: reg}
}

// Dispatch decodes req.Params (if any) and routes to the named method,
// always returning a well-formed Response — errors never propagate as Go
// errors, matching JSON-RPC's error-in-envelope convention.
func (h *Handler) Dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "eth_sign":
		return h.ethSign(ctx, req.ID, req.Params)
	case "eth_accounts":
		return h.ethAccounts(req.ID, req.Params)
	default:
		return errorResponse(req.ID, &Error{Code: codeMethodNotFound, Message: fmt.Sprintf("the method %s does not exist/is not available", req.Method)})
	}
}

func decodeParamList(raw json.RawMessage) ([]interface{}, bool) {
	if len(raw) == 0 {
		return nil, true
	}
	var params []interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, false
	}
	return params, true
}

// ethSign implements eth_sign: params [address, message].
func (h *Handler) ethSign(ctx context.Context, id json.RawMessage, raw json.RawMessage) Response {
	params, ok := decodeParamList(raw)
	if !ok || len(params) != 2 {
		return errorResponse(id, invalidParams("eth_sign requires exactly 2 params: [address, message]"))
	}
	address, ok1 := params[0].(string)
	message, ok2 := params[1].(string)
	if !ok1 || !ok2 {
		return errorResponse(id, invalidParams("eth_sign params must both be strings"))
	}

	payload, err := decodeMessage(message)
	if err != nil {
		return errorResponse(id, invalidParams(err.Error()))
	}

	signer, found := h.registry.Get(signing.NormalizeIdentifier(address))
	if !found {
		return errorResponse(id, errSigningFromNotUnlocked)
	}

	sig, err := signer.Sign(ctx, payload)
	if err != nil {
		return errorResponse(id, &Error{Code: codeInvalidParams, Message: err.Error()})
	}
	return resultResponse(id, sig.Hex())
}

// decodeMessage accepts a 0x-prefixed hex string or, failing that, treats
// the string as raw UTF-8 bytes.
func decodeMessage(message string) ([]byte, error) {
	if strings.HasPrefix(message, "0x") || strings.HasPrefix(message, "0X") {
		hexPart := message[2:]
		if len(hexPart)%2 != 0 {
			return nil, fmt.Errorf("invalid hex message length")
		}
		return decodeHexStrict(hexPart)
	}
	return []byte(message), nil
}

func decodeHexStrict(hexPart string) ([]byte, error) {
	out := make([]byte, len(hexPart)/2)
	for i := 0; i < len(out); i++ {
		hi, ok1 := hexNibble(hexPart[2*i])
		lo, ok2 := hexNibble(hexPart[2*i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("invalid hex message")
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// ethAccounts implements eth_accounts: params must be null
// or an empty array; returns every ethereum-address-form identifier
// (secp256k1 signers, 20-byte address identifiers) sorted ascending.
func (h *Handler) ethAccounts(id json.RawMessage, raw json.RawMessage) Response {
	params, ok := decodeParamList(raw)
	if !ok || len(params) != 0 {
		return errorResponse(id, invalidParams("eth_accounts takes no params"))
	}

	all := h.registry.Available()
	accounts := make([]string, 0, len(all))
	for _, identifier := range all {
		if isEthAddress(identifier) {
			accounts = append(accounts, identifier)
		}
	}
	sort.Strings(accounts)
	return resultResponse(id, accounts)
}

// isEthAddress reports whether identifier has the 0x + 40 hex char shape of
// an Ethereum address, as opposed to a 96-byte-hex BLS public key.
func isEthAddress(identifier string) bool {
	if !strings.HasPrefix(identifier, "0x") {
		return false
	}
	body := identifier[2:]
	if len(body) != 40 {
		return false
	}
	for i := 0; i < len(body); i++ {
		if _, ok := hexNibble(body[i]); !ok {
			return false
		}
	}
	return true
}
