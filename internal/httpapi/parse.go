package httpapi

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/PegaSysEng/Eth2Signer/internal/apperrors"
)

func badRequest(format string, args ...any) error {
	return apperrors.New(apperrors.KindBadRequest, fmt.Sprintf(format, args...))
}

func parseUint64(field string) (uint64, error) {
	v, err := strconv.ParseUint(field, 10, 64)
	if err != nil {
		return 0, badRequest("invalid decimal integer %q", field)
	}
	return v, nil
}

func parseHexBytes(field string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X"))
	if err != nil {
		return nil, badRequest("invalid hex string %q", field)
	}
	return b, nil
}

func parseHex32(field string) ([32]byte, error) {
	b, err := parseHexBytes(field)
	if err != nil {
		return [32]byte{}, err
	}
	if len(b) != 32 {
		return [32]byte{}, badRequest("expected 32-byte hex value, got %d bytes", len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return out, nil
}

func parseHex4(field string) ([4]byte, error) {
	b, err := parseHexBytes(field)
	if err != nil {
		return [4]byte{}, err
	}
	if len(b) != 4 {
		return [4]byte{}, badRequest("expected 4-byte hex value, got %d bytes", len(b))
	}
	var out [4]byte
	copy(out[:], b)
	return out, nil
}
