// Package fields provides small zap.Field helpers shared across handlers.
package fields

import (
	"encoding/hex"

	"go.uber.org/zap"
)

func PubKey(b []byte) zap.Field {
	return zap.String("pubkey", "0x"+hex.EncodeToString(b))
}

func Identifier(id string) zap.Field {
	return zap.String("identifier", id)
}

func Count(n int) zap.Field {
	return zap.Int("count", n)
}

func Slot(slot uint64) zap.Field {
	return zap.Uint64("slot", slot)
}

func Epoch(epoch uint64) zap.Field {
	return zap.Uint64("epoch", epoch)
}

func Duration(name string, nanos int64) zap.Field {
	return zap.Int64(name+"_ns", nanos)
}
