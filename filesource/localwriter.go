package filesource

import (
	"context"
	"os"
	"path/filepath"

	"github.com/nacht-org/quelle-go/quelleerr"
)

// Write creates (or truncates) path with data, creating parent
// directories as needed. Satisfies store.Writer for writable local
// stores.
func (s *LocalSource) Write(_ context.Context, path string, data []byte) error {
	resolved, err := normalize(s.Root, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return &quelleerr.IoOperationError{Operation: "mkdir", Path: path, Source: err}
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return &quelleerr.IoOperationError{Operation: "write", Path: path, Source: err}
	}
	return nil
}

// Remove deletes the single file at path.
func (s *LocalSource) Remove(_ context.Context, path string) error {
	resolved, err := normalize(s.Root, path)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return &quelleerr.IoOperationError{Operation: "remove", Path: path, Source: err}
	}
	return nil
}

// RemoveAll recursively deletes path and everything under it.
func (s *LocalSource) RemoveAll(_ context.Context, path string) error {
	resolved, err := normalize(s.Root, path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(resolved); err != nil {
		return &quelleerr.IoOperationError{Operation: "removeAll", Path: path, Source: err}
	}
	return nil
}
