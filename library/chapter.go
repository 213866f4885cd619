package library

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nacht-org/quelle-go/quelleerr"
)

// storedChapter is the on-disk wrapper for a chapter content file
// (spec.md §4.8).
type storedChapter struct {
	Content  ChapterContent `json:"content"`
	Metadata struct {
		VolumeIndex int    `json:"volumeIndex"`
		ChapterURL  string `json:"chapterUrl"`
		StoredAt    string `json:"storedAt"`
	} `json:"metadata"`
}

// StoreChapterContent writes content for (novelID, volumeIndex,
// chapterURL), failing with ErrNovelNotFound if the parent novel is
// absent, then recomputes stored_chapters for the novel (spec.md §4.8).
func (s *Storage) StoreChapterContent(novelID string, volumeIndex int, chapterURL string, content ChapterContent) error {
	s.locks.Lock(novelID)
	defer s.locks.Unlock(novelID)

	if !s.ExistsNovel(novelID) {
		return quelleerr.Wrap(quelleerr.ErrNovelNotFound, quelleerr.KindNotFound)
	}
	if strings.TrimSpace(chapterURL) == "" {
		return quelleerr.Wrap(quelleerr.ErrInvalidChapterData, quelleerr.KindValidation)
	}
	if strings.TrimSpace(content.Data) == "" {
		return quelleerr.Wrap(quelleerr.ErrInvalidChapterData, quelleerr.KindValidation)
	}

	dir := s.chapterDir(novelID, volumeIndex)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &quelleerr.IoOperationError{Operation: "mkdir", Path: dir, Source: err}
	}

	stored := storedChapter{Content: content}
	stored.Metadata.VolumeIndex = volumeIndex
	stored.Metadata.ChapterURL = chapterURL
	stored.Metadata.StoredAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	path := s.chapterFile(novelID, volumeIndex, chapterURL)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &quelleerr.IoOperationError{Operation: "write", Path: tmp, Source: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &quelleerr.IoOperationError{Operation: "rename", Path: path, Source: err}
	}

	return s.refreshStoredChapterCount(novelID)
}

func (s *Storage) refreshStoredChapterCount(novelID string) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	for i := range idx.Novels {
		if idx.Novels[i].ID == novelID {
			idx.Novels[i].StoredChapters = s.countStoredChapters(novelID)
			idx.Novels[i].UpdatedAt = time.Now().UTC().Format(time.RFC3339)
			idx.LastUpdated = idx.Novels[i].UpdatedAt
			break
		}
	}
	return s.writeIndex(idx)
}

// GetChapterContent returns the stored content for the given tuple.
func (s *Storage) GetChapterContent(novelID string, volumeIndex int, chapterURL string) (ChapterContent, error) {
	path := s.chapterFile(novelID, volumeIndex, chapterURL)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ChapterContent{}, quelleerr.Wrap(quelleerr.ErrFileNotFound, quelleerr.KindNotFound)
		}
		return ChapterContent{}, &quelleerr.IoOperationError{Operation: "read", Path: path, Source: err}
	}
	var stored storedChapter
	if err := json.Unmarshal(data, &stored); err != nil {
		return ChapterContent{}, &quelleerr.IoOperationError{Operation: "unmarshal", Path: path, Source: err}
	}
	return stored.Content, nil
}

// ExistsChapterContent reports whether the tuple has a stored blob.
func (s *Storage) ExistsChapterContent(novelID string, volumeIndex int, chapterURL string) bool {
	_, err := os.Stat(s.chapterFile(novelID, volumeIndex, chapterURL))
	return err == nil
}

// DeleteChapterContent removes the stored blob for the tuple, if any,
// and refreshes stored_chapters. Reports whether anything was removed.
func (s *Storage) DeleteChapterContent(novelID string, volumeIndex int, chapterURL string) (bool, error) {
	s.locks.Lock(novelID)
	defer s.locks.Unlock(novelID)

	path := s.chapterFile(novelID, volumeIndex, chapterURL)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &quelleerr.IoOperationError{Operation: "stat", Path: path, Source: err}
	}
	if err := os.Remove(path); err != nil {
		return false, &quelleerr.IoOperationError{Operation: "remove", Path: path, Source: err}
	}
	if err := s.refreshStoredChapterCount(novelID); err != nil {
		return false, err
	}
	return true, nil
}

// ListChapters walks id's volume catalog, returning a flattened view
// sorted by (volume_index, chapter_index) with has_content populated
// from disk (spec.md §4.8).
func (s *Storage) ListChapters(novelID string) ([]ChapterInfo, error) {
	novel, err := s.GetNovel(novelID)
	if err != nil {
		return nil, err
	}

	out := make([]ChapterInfo, 0)
	for _, vol := range novel.Volumes {
		for _, ch := range vol.Chapters {
			out = append(out, ChapterInfo{
				VolumeIndex:  vol.Index,
				ChapterURL:   ch.URL,
				ChapterTitle: ch.Title,
				ChapterIndex: ch.Index,
				HasContent:   s.ExistsChapterContent(novelID, vol.Index, ch.URL),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].VolumeIndex != out[j].VolumeIndex {
			return out[i].VolumeIndex < out[j].VolumeIndex
		}
		return out[i].ChapterIndex < out[j].ChapterIndex
	})
	return out, nil
}

