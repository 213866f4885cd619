// Package fileref implements the content-addressed file reference (C1):
// a relative path paired with an algorithm-tagged digest and byte length,
// verifiable against arbitrary bytes.
package fileref

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	digest "github.com/opencontainers/go-digest"
	"lukechampine.com/blake3"
)

// Algorithm is the closed set of supported digest algorithms (spec.md §3).
type Algorithm string

const (
	AlgBlake3 Algorithm = "blake3"
	AlgSHA256 Algorithm = "sha256"
)

// ErrUnsupportedAlgorithm is returned when a digest string names an
// algorithm outside {blake3, sha256}.
type ErrUnsupportedAlgorithm struct {
	Algorithm string
}

func (e *ErrUnsupportedAlgorithm) Error() string {
	return fmt.Sprintf("unsupported digest algorithm %q", e.Algorithm)
}

// FileRef is a relative path within a package root, its content digest,
// and its byte length.
type FileRef struct {
	Path   string `json:"path" yaml:"path"`
	Digest string `json:"digest" yaml:"digest"`
	Length int64  `json:"length" yaml:"length"`
}

// Sum computes the digest string "<alg>:<hex>" for data under alg.
func Sum(alg Algorithm, data []byte) (string, error) {
	switch alg {
	case AlgSHA256:
		return digest.FromBytes(data).String(), nil
	case AlgBlake3:
		sum := blake3.Sum256(data)
		return string(AlgBlake3) + ":" + hex.EncodeToString(sum[:]), nil
	default:
		return "", &ErrUnsupportedAlgorithm{Algorithm: string(alg)}
	}
}

// parse splits a "<alg>:<hex>" digest string into its algorithm and hex
// components.
func parse(d string) (Algorithm, string, error) {
	idx := strings.Index(d, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed digest %q: missing algorithm prefix", d)
	}
	alg := Algorithm(d[:idx])
	switch alg {
	case AlgBlake3, AlgSHA256:
		return alg, d[idx+1:], nil
	default:
		return "", "", &ErrUnsupportedAlgorithm{Algorithm: string(alg)}
	}
}

// Verify recomputes the digest of data under the algorithm named by
// fr.Digest and compares it (and the byte length) against the recorded
// values. A mismatch is a fatal integrity error for the artifact per
// spec.md §3.
func (fr FileRef) Verify(data []byte) error {
	if fr.Length != 0 && int64(len(data)) != fr.Length {
		return fmt.Errorf("length mismatch for %s: want %d, got %d", fr.Path, fr.Length, len(data))
	}
	alg, _, err := parse(fr.Digest)
	if err != nil {
		return err
	}
	got, err := Sum(alg, data)
	if err != nil {
		return err
	}
	if got != fr.Digest {
		return fmt.Errorf("digest mismatch for %s: want %s, got %s", fr.Path, fr.Digest, got)
	}
	return nil
}

// New builds a FileRef for data at path, digesting with alg.
func New(path string, alg Algorithm, data []byte) (FileRef, error) {
	d, err := Sum(alg, data)
	if err != nil {
		return FileRef{}, err
	}
	return FileRef{Path: path, Digest: d, Length: int64(len(data))}, nil
}
