// Package snsctx carries per-call diagnostics switches through context.
package snsctx

import (
	"context"
	"encoding/hex"
	"log/slog"
)

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexDumpLimit
)

// defaultDumpLimit caps hex dumps of firmware-sized transfers.
const defaultDumpLimit = 64

func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// SetDumpLimit sets how many payload bytes Trace prints. Zero or less prints
// everything.
func SetDumpLimit(ctx context.Context, limit int) context.Context {
	return context.WithValue(ctx, ctxIndexDumpLimit, limit)
}

func dumpLimit(ctx context.Context) int {
	val, ok := ctx.Value(ctxIndexDumpLimit).(int)
	if !ok {
		return defaultDumpLimit
	}
	return val
}

// Trace logs a register transfer at debug level when the context is verbose.
func Trace(ctx context.Context, op string, address byte, register uint16, data []byte) {
	if !IsVerbose(ctx) {
		return
	}
	payload := data
	if limit := dumpLimit(ctx); limit > 0 && len(payload) > limit {
		payload = payload[:limit]
	}
	slog.DebugContext(ctx, "bus transfer",
		"op", op,
		"address", address,
		"register", register,
		"length", len(data),
		"dump", hex.EncodeToString(payload))
}
