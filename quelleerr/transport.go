package quelleerr

import (
	"errors"
	"fmt"
)

// Sentinels for the Transport family (spec.md §7). The store manager's
// Install and Update move on to the next store in priority order on these;
// only its Refresh bounds each store with a timeout. The library storage
// engine never retries them.
var (
	ErrIoOperation = errors.New("io operation failed")
	ErrTimeout     = errors.New("timeout")
)

func init() {
	registerKind(ErrIoOperation, KindTransport)
	registerKind(ErrTimeout, KindTransport)
}

// IoOperationError names the operation and path that failed, with the
// underlying source error preserved for --verbose chains.
type IoOperationError struct {
	Operation string // "read", "write", "list", "stat"
	Path      string
	Source    error
}

func (e *IoOperationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Operation, e.Path, e.Source)
}

func (e *IoOperationError) Unwrap() error { return ErrIoOperation }
func (e *IoOperationError) Kind() Kind    { return KindTransport }
