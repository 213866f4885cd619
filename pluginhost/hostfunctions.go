package pluginhost

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/nacht-org/quelle-go/httpcap"
)

// newHostFunctions exports every capability operation into env, one
// function per HTTP-capability operation plus structured logging, each
// marshaling typed JSON across the linear-memory boundary (spec.md §4.5
// "narrow, typed boundary").
func newHostFunctions(env wazero.HostModuleBuilder, caps Capabilities) {
	env.NewFunctionBuilder().
		WithFunc(hostHTTPDo(caps.HTTP)).
		Export("host_http_do")
	env.NewFunctionBuilder().
		WithFunc(hostLog(caps.Logger)).
		Export("host_log")
}

// writeGuestBuffer allocates size bytes in the guest via its exported
// "alloc" and writes data into it, returning a packed (ptr<<32 | len).
func writeGuestBuffer(ctx context.Context, mod api.Module, data []byte) uint64 {
	alloc := mod.ExportedFunction("alloc")
	if alloc == nil {
		return 0
	}
	res, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil || len(res) == 0 {
		return 0
	}
	ptr := uint32(res[0])
	if !mod.Memory().Write(ptr, data) {
		return 0
	}
	return uint64(ptr)<<32 | uint64(len(data))
}

// hostHTTPDo reads a JSON-encoded httpcap.Request from guest memory,
// performs it through the injected capability, and writes back a
// JSON-encoded httpcap.Response (or error envelope) into freshly
// allocated guest memory.
func hostHTTPDo(cap httpcap.Capability) func(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	return func(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
		raw, ok := mod.Memory().Read(reqPtr, reqLen)
		if !ok {
			return writeGuestBuffer(ctx, mod, errorEnvelope("Internal", "bad request buffer"))
		}
		var req httpcap.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return writeGuestBuffer(ctx, mod, errorEnvelope("Parse", "malformed request"))
		}
		if cap == nil {
			return writeGuestBuffer(ctx, mod, errorEnvelope("Unsupported", "no http capability configured"))
		}

		resp, err := cap.Do(ctx, req)
		if err != nil {
			return writeGuestBuffer(ctx, mod, errorEnvelope("Network", err.Error()))
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return writeGuestBuffer(ctx, mod, errorEnvelope("Internal", "marshaling response"))
		}
		return writeGuestBuffer(ctx, mod, successEnvelope(out))
	}
}

// hostLog reads a JSON {"level":"...","message":"..."} record and emits
// it through the injected structured logger. Never returns an error
// envelope to the guest: logging failures stay host-side.
func hostLog(logger zerolog.Logger) func(ctx context.Context, mod api.Module, ptr, length uint32) {
	return func(ctx context.Context, mod api.Module, ptr, length uint32) {
		raw, ok := mod.Memory().Read(ptr, length)
		if !ok {
			return
		}
		var rec struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return
		}
		ev := logger.Info()
		if rec.Level == "warn" {
			ev = logger.Warn()
		} else if rec.Level == "error" {
			ev = logger.Error()
		}
		ev.Str("source", "plugin").Msg(rec.Message)
	}
}

func successEnvelope(data json.RawMessage) []byte {
	out, _ := json.Marshal(struct {
		Ok json.RawMessage `json:"ok"`
	}{Ok: data})
	return out
}

func errorEnvelope(kind, message string) []byte {
	out, _ := json.Marshal(struct {
		Err struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"err"`
	}{Err: struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}{Kind: kind, Message: message}})
	return out
}
