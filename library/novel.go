package library

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nacht-org/quelle-go/quelleerr"
)

// storedNovel is the on-disk wrapper for novel.json (spec.md §4.8).
type storedNovel struct {
	Novel    Novel `json:"novel"`
	Metadata struct {
		SourceID string `json:"sourceId"`
		StoredAt string `json:"storedAt"`
	} `json:"metadata"`
}

// StoreNovel validates novel, derives its id, and writes it under a
// fresh directory. Fails with ErrNovelAlreadyExists if the id is already
// stored (spec.md §4.8).
func (s *Storage) StoreNovel(novel Novel) (string, error) {
	if err := validateNovel(novel); err != nil {
		return "", err
	}

	id := NovelID(novel.URL)
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	if _, err := os.Stat(s.novelFile(id)); err == nil {
		return "", quelleerr.Wrap(quelleerr.ErrNovelAlreadyExists, quelleerr.KindConflict)
	}

	if err := s.writeNovelFile(id, novel); err != nil {
		return "", err
	}

	idx, err := s.readIndex()
	if err != nil {
		return "", err
	}
	s.upsertIndexEntry(idx, id, novel, "")
	if err := s.writeIndex(idx); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Storage) writeNovelFile(id string, novel Novel) error {
	dir := s.novelDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &quelleerr.IoOperationError{Operation: "mkdir", Path: dir, Source: err}
	}

	sourceID, _ := splitNovelID(id)
	stored := storedNovel{Novel: novel}
	stored.Metadata.SourceID = sourceID
	stored.Metadata.StoredAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	path := s.novelFile(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &quelleerr.IoOperationError{Operation: "write", Path: tmp, Source: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &quelleerr.IoOperationError{Operation: "rename", Path: path, Source: err}
	}
	return nil
}

func (s *Storage) readNovelFile(id string) (*storedNovel, error) {
	data, err := os.ReadFile(s.novelFile(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, quelleerr.Wrap(quelleerr.ErrNovelNotFound, quelleerr.KindNotFound)
		}
		return nil, &quelleerr.IoOperationError{Operation: "read", Path: s.novelFile(id), Source: err}
	}
	var stored storedNovel
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, &quelleerr.IoOperationError{Operation: "unmarshal", Path: s.novelFile(id), Source: err}
	}
	return &stored, nil
}

// GetNovel returns the stored novel for id.
func (s *Storage) GetNovel(id string) (Novel, error) {
	stored, err := s.readNovelFile(id)
	if err != nil {
		return Novel{}, err
	}
	return stored.Novel, nil
}

// ExistsNovel reports whether id is stored.
func (s *Storage) ExistsNovel(id string) bool {
	_, err := os.Stat(s.novelFile(id))
	return err == nil
}

// UpdateNovel rewrites novel.json for id and refreshes its index entry's
// updated_at (spec.md §4.8).
func (s *Storage) UpdateNovel(id string, novel Novel) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	if !s.ExistsNovel(id) {
		return quelleerr.Wrap(quelleerr.ErrNovelNotFound, quelleerr.KindNotFound)
	}
	if err := validateNovel(novel); err != nil {
		return err
	}
	if err := s.writeNovelFile(id, novel); err != nil {
		return err
	}

	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	createdAt := ""
	if existing, ok := s.findIndexEntry(idx, id); ok {
		createdAt = existing.CreatedAt
	}
	s.upsertIndexEntry(idx, id, novel, createdAt)
	return s.writeIndex(idx)
}

// DeleteNovel removes id's entire directory and index entry. Reports
// whether anything was removed (spec.md §4.8).
func (s *Storage) DeleteNovel(id string) (bool, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	existed := s.ExistsNovel(id)
	if existed {
		if err := os.RemoveAll(s.novelDir(id)); err != nil {
			return false, &quelleerr.IoOperationError{Operation: "removeAll", Path: s.novelDir(id), Source: err}
		}
	}

	idx, err := s.readIndex()
	if err != nil {
		return false, err
	}
	removedFromIndex := s.removeIndexEntry(idx, id)
	if removedFromIndex {
		if err := s.writeIndex(idx); err != nil {
			return false, err
		}
	}
	return existed || removedFromIndex, nil
}

// FindNovelByURL linear-scans the index for a novel whose id derives
// from url (spec.md §4.8).
func (s *Storage) FindNovelByURL(novelURL string) (NovelIndexEntry, bool, error) {
	idx, err := s.readIndex()
	if err != nil {
		return NovelIndexEntry{}, false, err
	}
	id := NovelID(novelURL)
	entry, ok := s.findIndexEntry(idx, id)
	return entry, ok, nil
}

// ListNovels filters the index by source-id set, status set,
// title-contains (case-insensitive), and has-content, sorted by title
// (spec.md §4.8).
func (s *Storage) ListNovels(filter NovelFilter) ([]NovelIndexEntry, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	sourceSet := toSet(filter.SourceIDs)
	statusSet := make(map[NovelStatus]struct{}, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statusSet[st] = struct{}{}
	}
	titleContains := strings.ToLower(filter.TitleContains)

	out := make([]NovelIndexEntry, 0, len(idx.Novels))
	for _, n := range idx.Novels {
		if len(sourceSet) > 0 {
			sourceID, _ := splitNovelID(n.ID)
			if _, ok := sourceSet[sourceID]; !ok {
				continue
			}
		}
		if len(statusSet) > 0 {
			if _, ok := statusSet[n.Status]; !ok {
				continue
			}
		}
		if titleContains != "" && !strings.Contains(strings.ToLower(n.Title), titleContains) {
			continue
		}
		if filter.HasContent != nil {
			has := n.StoredChapters > 0
			if has != *filter.HasContent {
				continue
			}
		}
		out = append(out, n)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// SearchNovels is equivalent to ListNovels with only title_contains set
// (spec.md §4.8).
func (s *Storage) SearchNovels(text string) ([]NovelIndexEntry, error) {
	return s.ListNovels(NovelFilter{TitleContains: text})
}

func toSet(ss []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}
	return set
}

func validateNovel(novel Novel) error {
	if strings.TrimSpace(novel.URL) == "" {
		return quelleerr.Wrap(quelleerr.ErrInvalidNovelData, quelleerr.KindValidation)
	}
	if strings.TrimSpace(novel.Title) == "" {
		return quelleerr.Wrap(quelleerr.ErrInvalidNovelData, quelleerr.KindValidation)
	}
	return nil
}
