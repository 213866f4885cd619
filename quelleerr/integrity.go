package quelleerr

import (
	"errors"
	"fmt"
)

// Sentinels for the Integrity family (spec.md §7).
var (
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrManifestCorrupted = errors.New("manifest corrupted")
)

func init() {
	registerKind(ErrChecksumMismatch, KindIntegrity)
	registerKind(ErrManifestCorrupted, KindIntegrity)
}

// ChecksumMismatchError names which file kind and path failed verification.
// One of these is raised per spec.md §3's "any mismatch is a fatal
// integrity error for that artifact" invariant.
type ChecksumMismatchError struct {
	FileKind string // "manifest", "wasm", "asset"
	Path     string
	Want     string
	Got      string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s %q: want %s, got %s", e.FileKind, e.Path, e.Want, e.Got)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }
func (e *ChecksumMismatchError) Kind() Kind     { return KindIntegrity }
