package library

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Cleanup enumerates orphaned chapter files (no matching chapter in the
// novel's catalog), empty volume directories, and index entries whose
// directory is missing; removes them and reports what happened
// (spec.md §4.8).
//
// Asset files are not catalogued anywhere in this engine (spec.md §4.8
// keeps no asset index, only assets/<id> on disk), so "orphaned asset"
// detection has no ground truth to check against and is intentionally
// not attempted here.
func (s *Storage) Cleanup() (CleanupReport, error) {
	var report CleanupReport

	idx, err := s.readIndex()
	if err != nil {
		return report, err
	}

	remaining := idx.Novels[:0]
	for _, entry := range idx.Novels {
		dir := s.novelDir(entry.ID)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			report.NovelsFixed++
			continue
		}
		remaining = append(remaining, entry)

		fixed, err := s.cleanupNovelChapters(entry.ID)
		if err != nil {
			report.ErrorsEncountered++
			continue
		}
		report.OrphanedChaptersRemoved += fixed.chaptersRemoved
		if fixed.chaptersRemoved > 0 || fixed.volumesRemoved > 0 {
			report.NovelsFixed++
		}
	}
	idx.Novels = remaining

	if err := s.writeIndex(idx); err != nil {
		report.ErrorsEncountered++
	}

	for _, entry := range idx.Novels {
		_ = s.refreshStoredChapterCount(entry.ID)
	}

	return report, nil
}

type novelCleanupResult struct {
	chaptersRemoved int
	volumesRemoved  int
}

func (s *Storage) cleanupNovelChapters(novelID string) (novelCleanupResult, error) {
	var result novelCleanupResult

	novel, err := s.GetNovel(novelID)
	if err != nil {
		return result, err
	}

	validByVolume := map[int]map[string]struct{}{}
	for _, vol := range novel.Volumes {
		set := make(map[string]struct{}, len(vol.Chapters))
		for _, ch := range vol.Chapters {
			set[ch.URL] = struct{}{}
		}
		validByVolume[vol.Index] = set
	}

	chaptersRoot := filepath.Join(s.novelDir(novelID), chaptersDirName)
	volumeDirs, err := os.ReadDir(chaptersRoot)
	if err != nil {
		return result, nil
	}

	for _, volDir := range volumeDirs {
		if !volDir.IsDir() {
			continue
		}
		volPath := filepath.Join(chaptersRoot, volDir.Name())
		files, err := os.ReadDir(volPath)
		if err != nil {
			continue
		}

		volumeIndex, err := strconv.Atoi(volDir.Name())
		if err != nil {
			continue
		}
		valid := validByVolume[volumeIndex]

		remainingFiles := 0
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			filePath := filepath.Join(volPath, f.Name())
			chapterURL, ok := readChapterURL(filePath)
			if !ok {
				continue
			}
			if _, ok := valid[chapterURL]; !ok {
				if os.Remove(filePath) == nil {
					result.chaptersRemoved++
					continue
				}
			}
			remainingFiles++
		}

		if remainingFiles == 0 {
			if os.Remove(volPath) == nil {
				result.volumesRemoved++
			}
		}
	}

	return result, nil
}

func readChapterURL(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var stored storedChapter
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", false
	}
	return stored.Metadata.ChapterURL, true
}
