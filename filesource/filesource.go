// Package filesource implements the file-source abstraction (C4): three
// operations (read, exists, list) over a root, with path normalization
// that blocks traversal and symlink escape. Grounded on the original
// project's filesystem backend (crates/storage/src/backends/filesystem.rs)
// and its local-store file_operations trait.
package filesource

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nacht-org/quelle-go/quelleerr"
)

// Source is the narrow, three-operation abstraction the rest of the store
// engine consumes (spec.md §4.1). Implementations: LocalSource (this
// package) and filesource's OCI-backed sibling in package filesource's
// companion file ocisource.go.
type Source interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, path string) ([]string, error)
}

// LocalSource reads from a local filesystem root.
type LocalSource struct {
	Root string
}

// NewLocalSource constructs a LocalSource rooted at root. root is only
// cleaned here; symlink canonicalization happens per call in normalize.
func NewLocalSource(root string) *LocalSource {
	return &LocalSource{Root: filepath.Clean(root)}
}

// normalize resolves path relative to root, rejecting traversal, null
// bytes, and symlink escapes per spec.md §4.1. It returns the absolute,
// host-native path to use for the actual filesystem call.
func normalize(root, path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", &quelleerr.InvalidPathError{Path: path, Reason: "contains null byte"}
	}

	// Treat '/' and '\' as equivalent separators during normalization.
	unified := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(unified, "/") {
		if part == ".." {
			return "", &quelleerr.InvalidPathError{Path: path, Reason: "contains .. component"}
		}
	}

	var joined string
	if filepath.IsAbs(unified) || (len(unified) >= 2 && unified[1] == ':') {
		// Absolute input: permitted iff it canonicalizes to a descendant
		// of root.
		joined = filepath.Clean(unified)
	} else {
		joined = filepath.Clean(filepath.Join(root, unified))
	}

	cleanRoot := filepath.Clean(root)

	if !isDescendant(cleanRoot, joined) {
		return "", &quelleerr.InvalidPathError{Path: path, Reason: "escapes root"}
	}

	// If the host filesystem supports canonicalization (symlinks resolve),
	// require the resolved path to still be a descendant of the canonical
	// root. Missing paths (not-yet-created files) fall back to the
	// lexical check above; EvalSymlinks only applies to existing entries.
	canonRoot, err := filepath.EvalSymlinks(cleanRoot)
	if err == nil {
		canonTarget, err := filepath.EvalSymlinks(joined)
		if err == nil {
			if !isDescendant(canonRoot, canonTarget) {
				return "", &quelleerr.InvalidPathError{Path: path, Reason: "symlink escapes root"}
			}
			return canonTarget, nil
		}
		// Target doesn't exist yet (e.g. a write destination): resolve as
		// far as possible by canonicalizing the existing parent chain.
		resolvedParent, perr := resolveExistingParent(joined)
		if perr == nil && !isDescendant(canonRoot, resolvedParent) {
			return "", &quelleerr.InvalidPathError{Path: path, Reason: "symlink escapes root"}
		}
	}

	return joined, nil
}

// resolveExistingParent walks up from path until it finds an existing
// ancestor, canonicalizes that ancestor, and rejoins the remaining
// (nonexistent) suffix.
func resolveExistingParent(path string) (string, error) {
	dir := filepath.Dir(path)
	suffix := []string{filepath.Base(path)}
	for {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				real = filepath.Join(real, suffix[i])
			}
			return real, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no existing ancestor")
		}
		suffix = append(suffix, filepath.Base(dir))
		dir = parent
	}
}

// isDescendant reports whether target is root itself or lexically nested
// under root.
func isDescendant(root, target string) bool {
	if root == target {
		return true
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..") && rel != ".."
}

// Read reads path's bytes. Directories fail with InvalidPath.
func (s *LocalSource) Read(_ context.Context, path string) ([]byte, error) {
	resolved, err := normalize(s.Root, path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, quelleerr.Wrap(quelleerr.ErrFileNotFound, quelleerr.KindNotFound)
		}
		return nil, &quelleerr.IoOperationError{Operation: "stat", Path: path, Source: err}
	}
	if info.IsDir() {
		return nil, &quelleerr.InvalidPathError{Path: path, Reason: "is a directory"}
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, &quelleerr.IoOperationError{Operation: "read", Path: path, Source: err}
	}
	return data, nil
}

// Exists reports whether path exists (file or directory).
func (s *LocalSource) Exists(_ context.Context, path string) (bool, error) {
	resolved, err := normalize(s.Root, path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(resolved)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &quelleerr.IoOperationError{Operation: "stat", Path: path, Source: err}
}

// List returns directory entry names under path, excluding hidden
// (dot-prefixed) entries, sorted lexicographically. Listing a file fails
// with InvalidPath.
func (s *LocalSource) List(_ context.Context, path string) ([]string, error) {
	resolved, err := normalize(s.Root, path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, quelleerr.Wrap(quelleerr.ErrFileNotFound, quelleerr.KindNotFound)
		}
		return nil, &quelleerr.IoOperationError{Operation: "stat", Path: path, Source: err}
	}
	if !info.IsDir() {
		return nil, &quelleerr.InvalidPathError{Path: path, Reason: "is a file"}
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, &quelleerr.IoOperationError{Operation: "list", Path: path, Source: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
