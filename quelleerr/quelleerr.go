// Package quelleerr defines the cross-cutting error taxonomy shared by
// every package in this module. Errors are never flattened into strings:
// each kind is a distinct sentinel (or a struct wrapping one) so callers
// can branch with errors.Is/errors.As instead of matching messages.
package quelleerr

import "errors"

// Kind identifies which taxonomy family an error belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindIntegrity
	KindSecurity
	KindPluginRuntime
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	case KindSecurity:
		return "security"
	case KindPluginRuntime:
		return "plugin_runtime"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// classified is implemented by errors that know their own taxonomy Kind.
type classified interface {
	Kind() Kind
}

// sentinelKinds maps package-level sentinel errors to their taxonomy Kind,
// populated by each family file's init().
var sentinelKinds = map[error]Kind{}

func registerKind(sentinel error, kind Kind) {
	sentinelKinds[sentinel] = kind
}

// ClassOf walks the err's Unwrap chain looking for a Kind. It first checks
// whether err (or anything it wraps) implements classified directly, then
// falls back to matching against the registered sentinels with errors.Is.
// Returns KindUnknown if nothing in the chain identifies itself.
func ClassOf(err error) Kind {
	var c classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
