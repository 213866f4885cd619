package library

import (
	"io"
	"os"

	"github.com/nacht-org/quelle-go/quelleerr"
)

// StoreAsset streams r to assets/<asset.ID> under asset.NovelID's
// directory, returning the record with Size filled from the actual
// byte count written (spec.md §4.8).
func (s *Storage) StoreAsset(asset Asset, r io.Reader) (Asset, error) {
	s.locks.Lock(asset.NovelID)
	defer s.locks.Unlock(asset.NovelID)

	dir := s.assetsDir(asset.NovelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Asset{}, &quelleerr.IoOperationError{Operation: "mkdir", Path: dir, Source: err}
	}

	path := s.assetFile(asset.NovelID, asset.ID)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return Asset{}, &quelleerr.IoOperationError{Operation: "create", Path: tmp, Source: err}
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return Asset{}, &quelleerr.IoOperationError{Operation: "write", Path: tmp, Source: copyErr}
	}
	if closeErr != nil {
		os.Remove(tmp)
		return Asset{}, &quelleerr.IoOperationError{Operation: "close", Path: tmp, Source: closeErr}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Asset{}, &quelleerr.IoOperationError{Operation: "rename", Path: path, Source: err}
	}

	asset.Size = n
	return asset, nil
}

// AssetReader opens the stored body for (novelID, assetID) for reading.
// Callers must close it.
func (s *Storage) AssetReader(novelID, assetID string) (io.ReadCloser, error) {
	path := s.assetFile(novelID, assetID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, quelleerr.Wrap(quelleerr.ErrFileNotFound, quelleerr.KindNotFound)
		}
		return nil, &quelleerr.IoOperationError{Operation: "open", Path: path, Source: err}
	}
	return f, nil
}
