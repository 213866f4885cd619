package library

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nacht-org/quelle-go/quelleerr"
)

// storageIndex is the on-disk shape of metadata/index.json (spec.md §4.8).
type storageIndex struct {
	LastUpdated string            `json:"lastUpdated"`
	Novels      []NovelIndexEntry `json:"novels"`
}

func (s *Storage) readIndex() (*storageIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &storageIndex{}, nil
		}
		return nil, &quelleerr.IoOperationError{Operation: "read", Path: s.indexPath(), Source: err}
	}
	var idx storageIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, quelleerr.Wrap(quelleerr.ErrManifestCorrupted, quelleerr.KindIntegrity)
	}
	return &idx, nil
}

func (s *Storage) writeIndex(idx *storageIndex) error {
	dir := filepath.Join(s.Root, metadataDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &quelleerr.IoOperationError{Operation: "mkdir", Path: dir, Source: err}
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &quelleerr.IoOperationError{Operation: "write", Path: tmp, Source: err}
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		return &quelleerr.IoOperationError{Operation: "rename", Path: s.indexPath(), Source: err}
	}
	return nil
}

// upsertIndexEntry inserts or replaces the entry for id, counting total
// and stored chapters fresh from novel and disk.
func (s *Storage) upsertIndexEntry(idx *storageIndex, id string, novel Novel, createdAt string) {
	now := time.Now().UTC().Format(time.RFC3339)
	if createdAt == "" {
		createdAt = now
	}

	total := 0
	for _, v := range novel.Volumes {
		total += len(v.Chapters)
	}
	stored := s.countStoredChapters(id)

	entry := NovelIndexEntry{
		ID: id, Title: novel.Title, Authors: novel.Authors, Status: novel.Status,
		TotalChapters: total, StoredChapters: stored,
		CreatedAt: createdAt, UpdatedAt: now,
	}

	filtered := idx.Novels[:0]
	for _, n := range idx.Novels {
		if n.ID != id {
			filtered = append(filtered, n)
		}
	}
	idx.Novels = append(filtered, entry)
	idx.LastUpdated = now
}

func (s *Storage) removeIndexEntry(idx *storageIndex, id string) bool {
	filtered := idx.Novels[:0]
	removed := false
	for _, n := range idx.Novels {
		if n.ID == id {
			removed = true
			continue
		}
		filtered = append(filtered, n)
	}
	idx.Novels = filtered
	if removed {
		idx.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	}
	return removed
}

func (s *Storage) findIndexEntry(idx *storageIndex, id string) (NovelIndexEntry, bool) {
	for _, n := range idx.Novels {
		if n.ID == id {
			return n, true
		}
	}
	return NovelIndexEntry{}, false
}

// countStoredChapters walks chapters/<volume>/*.json under id's novel
// directory, counting extant content blobs (spec.md §3 invariant: the
// index's stored_chapters count equals the extant blob count at any
// quiescent point).
func (s *Storage) countStoredChapters(id string) int {
	chaptersRoot := filepath.Join(s.novelDir(id), chaptersDirName)
	volumes, err := os.ReadDir(chaptersRoot)
	if err != nil {
		return 0
	}
	count := 0
	for _, v := range volumes {
		if !v.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(chaptersRoot, v.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if !f.IsDir() && filepath.Ext(f.Name()) == ".json" {
				count++
			}
		}
	}
	return count
}
