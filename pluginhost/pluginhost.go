// Package pluginhost implements the plugin host (C8): a wazero-backed
// WASM sandbox that instantiates a fresh module per call, injects
// capabilities across a narrow typed boundary, and translates any
// host-side fault into a PluginError rather than leaking it.
//
// Grounded on the goatkit-goatflow Plugin/HostAPI split (a single
// Call(ctx, fn, argsJSON) entry point backed by a capability-bearing
// host object) adapted from its gRPC/WASM-agnostic interface to a
// wazero-only guest boundary, in the spirit of the wazero-based hosts
// retrieved from reglet-dev-reglet and virgilhawkins00-ForgePlatform.
package pluginhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/nacht-org/quelle-go/httpcap"
)

// EntryPoint names one of the four guest functions a plugin exports
// (spec.md §4.5).
type EntryPoint string

const (
	EntryFetchNovelInfo EntryPoint = "fetch_novel_info"
	EntryFetchChapter   EntryPoint = "fetch_chapter"
	EntrySimpleSearch   EntryPoint = "simple_search"
	EntryComplexSearch  EntryPoint = "complex_search"
)

// ErrorKind is the tagged-union discriminant for PluginError (spec.md §4.5/§6).
type ErrorKind string

const (
	ErrNetwork        ErrorKind = "Network"
	ErrParse          ErrorKind = "Parse"
	ErrUnsupported    ErrorKind = "Unsupported"
	ErrRateLimited    ErrorKind = "RateLimited"
	ErrAuthentication ErrorKind = "Authentication"
	ErrInternal       ErrorKind = "Internal"
)

// PluginError is the error type every guest entry point can return.
type PluginError struct {
	Kind    ErrorKind
	Message string
}

func (e *PluginError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Internal builds a PluginError{Internal} carrying reason, used whenever
// a host-side fault (sandbox crash, OOM, deadline) must not leak
// unstructured detail to the caller.
func Internal(reason string) *PluginError {
	return &PluginError{Kind: ErrInternal, Message: reason}
}

// Capabilities are the host services injected into a plugin call. The
// plugin never selects the HTTP backend; the host picks it at
// construction time (spec.md §4.6).
type Capabilities struct {
	HTTP   httpcap.Capability
	Logger zerolog.Logger
}

// Host compiles and instantiates plugin WASM modules under wazero.
type Host struct {
	runtime    wazero.Runtime
	callDeadline time.Duration
}

// Config controls a Host's defaults.
type Config struct {
	CallDeadline time.Duration // default 30s
}

// New constructs a Host. ctx bounds runtime construction only, not calls.
func New(ctx context.Context, config Config) (*Host, error) {
	if config.CallDeadline == 0 {
		config.CallDeadline = 30 * time.Second
	}
	runtimeConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)
	return &Host{runtime: runtime, callDeadline: config.CallDeadline}, nil
}

// Close releases the runtime and every module it compiled.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// Invoke compiles binary fresh, instantiates one module with caps wired
// in as host functions under the "env" import module, calls entry with
// arg marshaled to JSON, and returns the guest's JSON result. The
// instance is torn down unconditionally after the call: no reentrancy,
// no reuse across calls (spec.md §4.5).
func (h *Host) Invoke(ctx context.Context, binary []byte, entry EntryPoint, arg any, caps Capabilities) (json.RawMessage, *PluginError) {
	callCtx, cancel := context.WithTimeout(ctx, h.callDeadline)
	defer cancel()

	argJSON, err := json.Marshal(arg)
	if err != nil {
		return nil, &PluginError{Kind: ErrParse, Message: "marshaling call argument"}
	}

	compiled, err := h.runtime.CompileModule(callCtx, binary)
	if err != nil {
		return nil, Internal("compile_failed")
	}
	defer compiled.Close(callCtx)

	env := h.runtime.NewHostModuleBuilder("env")
	newHostFunctions(env, caps)
	envMod, err := env.Instantiate(callCtx)
	if err != nil {
		return nil, Internal("host_module_instantiate_failed")
	}
	defer envMod.Close(callCtx)

	moduleConfig := wazero.NewModuleConfig().WithName("")
	mod, err := h.runtime.InstantiateModule(callCtx, compiled, moduleConfig)
	if err != nil {
		return nil, classifyInstantiateError(err)
	}
	defer mod.Close(callCtx)

	result, perr := callEntry(callCtx, mod, entry, argJSON)
	if perr != nil {
		return nil, perr
	}
	return result, nil
}

func classifyInstantiateError(err error) *PluginError {
	if errors.Is(err, context.DeadlineExceeded) {
		return Internal("deadline_exceeded")
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return Internal("sandbox_fault")
	}
	return Internal("instantiate_failed")
}

// callEntry writes arg into guest memory via its exported "alloc"
// function, calls entry(ptr, len), and reads the packed (ptr, len)
// result back out. The guest must export: alloc(size uint32) uint32,
// and entry(argPtr, argLen uint32) uint64 — the return value's high 32
// bits are the result pointer, the low 32 bits its length.
func callEntry(ctx context.Context, mod api.Module, entry EntryPoint, argJSON []byte) (json.RawMessage, *PluginError) {
	alloc := mod.ExportedFunction("alloc")
	fn := mod.ExportedFunction(string(entry))
	if alloc == nil || fn == nil {
		return nil, &PluginError{Kind: ErrUnsupported, Message: fmt.Sprintf("guest does not export %s", entry)}
	}

	argPtrResult, err := alloc.Call(ctx, uint64(len(argJSON)))
	if err != nil {
		return nil, classifyCallError(err)
	}
	argPtr := uint32(argPtrResult[0])
	if !mod.Memory().Write(argPtr, argJSON) {
		return nil, Internal("guest_memory_write_failed")
	}

	packed, err := fn.Call(ctx, uint64(argPtr), uint64(len(argJSON)))
	if err != nil {
		return nil, classifyCallError(err)
	}

	resultPtr := uint32(packed[0] >> 32)
	resultLen := uint32(packed[0])
	data, ok := mod.Memory().Read(resultPtr, resultLen)
	if !ok {
		return nil, Internal("guest_memory_read_failed")
	}

	// Guest result envelope: {"ok": <value>} | {"err": {"kind":..., "message":...}}
	var envelope struct {
		Ok  json.RawMessage `json:"ok"`
		Err *struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"err"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, Internal("guest_result_malformed")
	}
	if envelope.Err != nil {
		return nil, &PluginError{Kind: ErrorKind(envelope.Err.Kind), Message: envelope.Err.Message}
	}
	return envelope.Ok, nil
}

func classifyCallError(err error) *PluginError {
	if errors.Is(err, context.DeadlineExceeded) {
		return Internal("deadline_exceeded")
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return Internal("sandbox_fault")
	}
	return Internal("call_failed")
}
