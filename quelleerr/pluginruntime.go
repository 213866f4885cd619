package quelleerr

import (
	"errors"
	"fmt"
)

// PluginErrorKind enumerates the tagged union returned across the plugin
// ABI boundary (spec.md §4.5/§6).
type PluginErrorKind int

const (
	PluginErrNetwork PluginErrorKind = iota
	PluginErrParse
	PluginErrUnsupported
	PluginErrRateLimited
	PluginErrAuthentication
	PluginErrInternal
)

func (k PluginErrorKind) String() string {
	switch k {
	case PluginErrNetwork:
		return "Network"
	case PluginErrParse:
		return "Parse"
	case PluginErrUnsupported:
		return "Unsupported"
	case PluginErrRateLimited:
		return "RateLimited"
	case PluginErrAuthentication:
		return "Authentication"
	case PluginErrInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// ErrPluginRuntime is the family sentinel all PluginError values wrap.
var ErrPluginRuntime = errors.New("plugin runtime error")

func init() {
	registerKind(ErrPluginRuntime, KindPluginRuntime)
}

// PluginError is the error type exchanged across the plugin trust boundary.
// Host-side faults (sandbox crash, OOM, deadline exceeded) are always
// translated to PluginErrInternal with a fixed, non-leaking message.
type PluginError struct {
	PluginKind PluginErrorKind
	Message    string // only meaningful when PluginKind == PluginErrInternal
}

func (e *PluginError) Error() string {
	if e.PluginKind == PluginErrInternal && e.Message != "" {
		return fmt.Sprintf("plugin internal error: %s", e.Message)
	}
	return fmt.Sprintf("plugin error: %s", e.PluginKind)
}

func (e *PluginError) Unwrap() error { return ErrPluginRuntime }
func (e *PluginError) Kind() Kind    { return KindPluginRuntime }

// Internal builds a PluginError for a host-side fault, without leaking
// unstructured internal detail beyond the fixed reason string given.
func Internal(reason string) *PluginError {
	return &PluginError{PluginKind: PluginErrInternal, Message: reason}
}
