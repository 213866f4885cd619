package quelleerr

import (
	"errors"
	"fmt"
)

// Sentinels for the Security family (spec.md §7). Never retried.
var (
	ErrInvalidPath      = errors.New("invalid path")
	ErrPermissionDenied = errors.New("permission denied")
)

func init() {
	registerKind(ErrInvalidPath, KindSecurity)
	registerKind(ErrPermissionDenied, KindSecurity)
}

// InvalidPathError carries the offending path for diagnostics without
// ever being retried (path traversal / null byte / symlink escape).
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

func (e *InvalidPathError) Unwrap() error { return ErrInvalidPath }
func (e *InvalidPathError) Kind() Kind    { return KindSecurity }
