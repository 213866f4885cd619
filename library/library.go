// Package library implements the library storage engine (C11): a
// content-addressed repository of novels, chapters, and binary assets
// under a source-scoped directory layout, with an index for O(1)
// listing and cleanup/integrity semantics (spec.md §4.8).
//
// Grounded on original_source's storage/src/backends/filesystem.rs
// (FilesystemStorage): the same novels/<source_id>/<url_hash>/ layout,
// the same index.json sidecar, the same novel-id splitting and hashing
// strategy, translated file-for-file from its async/tokio::fs methods
// to synchronous os calls serialized per novel-id by keyedlock. Atomic
// write and IoOperationError wrapping follow registry's pattern
// (itself grounded on the teacher's cache.go/client.go).
package library

import (
	"net/url"
	"strings"

	"github.com/nacht-org/quelle-go/internal/keyedlock"
	"github.com/rs/zerolog"
)

// NovelStatus is the closed set of novel lifecycle states (spec.md §3).
type NovelStatus string

const (
	StatusOngoing   NovelStatus = "ongoing"
	StatusCompleted NovelStatus = "completed"
	StatusHiatus    NovelStatus = "hiatus"
	StatusStub      NovelStatus = "stub"
	StatusDropped   NovelStatus = "dropped"
)

// Chapter is one catalog entry within a Volume (spec.md §3).
type Chapter struct {
	Title     string  `json:"title"`
	Index     int     `json:"index"`
	URL       string  `json:"url"`
	UpdatedAt *string `json:"updatedAt,omitempty"`
}

// Volume groups an ordinal run of chapters under a name (spec.md §3).
type Volume struct {
	Name     string    `json:"name"`
	Index    int       `json:"index"`
	Chapters []Chapter `json:"chapters"`
}

// Novel is the catalog record for one web-fiction source (spec.md §3).
type Novel struct {
	URL         string            `json:"url"`
	Authors     []string          `json:"authors"`
	Title       string            `json:"title"`
	CoverURL    string            `json:"coverUrl,omitempty"`
	Description []string          `json:"description,omitempty"`
	Volumes     []Volume          `json:"volumes"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      NovelStatus       `json:"status"`
	Languages   []string          `json:"languages,omitempty"`
}

// ChapterContent is the rendered body for one (novelID, volumeIndex,
// chapterURL) tuple.
type ChapterContent struct {
	Data string `json:"data"`
}

// Asset is one stored binary asset's metadata; its body lives separately
// under assets/<id> keyed by Asset.ID.
type Asset struct {
	ID      string `json:"id"`
	NovelID string `json:"novelId"`
	URL     string `json:"url"`
	Mime    string `json:"mime"`
	Size    int64  `json:"size"`
}

// ChapterInfo is list_chapters' flattened, sorted view of a novel's
// catalog (spec.md §4.8).
type ChapterInfo struct {
	VolumeIndex  int
	ChapterURL   string
	ChapterTitle string
	ChapterIndex int
	HasContent   bool
}

// NovelIndexEntry is one record within metadata/index.json (spec.md §4.8).
type NovelIndexEntry struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Authors        []string    `json:"authors"`
	Status         NovelStatus `json:"status"`
	TotalChapters  int         `json:"totalChapters"`
	StoredChapters int         `json:"storedChapters"`
	CreatedAt      string      `json:"createdAt"`
	UpdatedAt      string      `json:"updatedAt"`
}

// NovelFilter narrows list_novels (spec.md §4.8).
type NovelFilter struct {
	SourceIDs     []string
	Statuses      []NovelStatus
	TitleContains string
	HasContent    *bool
}

// StorageStats summarizes storage_stats() (spec.md §4.8).
type StorageStats struct {
	TotalNovels   int
	TotalChapters int
	BySource      map[string]int
}

// CleanupReport summarizes cleanup() (spec.md §4.8).
type CleanupReport struct {
	OrphanedChaptersRemoved int
	NovelsFixed             int
	ErrorsEncountered       int
}

// Storage is the filesystem-backed library storage engine, rooted at
// Root. Writes to one novel's directory are serialized by locks while
// distinct novels proceed concurrently (spec.md §5).
type Storage struct {
	Root   string
	Logger zerolog.Logger
	locks  *keyedlock.Map
}

// New constructs a Storage rooted at root.
func New(root string, logger zerolog.Logger) *Storage {
	return &Storage{Root: root, Logger: logger, locks: keyedlock.New()}
}

// NovelID derives the ownership key "<source_id>::<url>" from a novel's
// canonical URL (spec.md §3 "Novel identity"). SourceID parses url via
// net/url first, falling back to a manual scheme-strip/slash-split for
// malformed input, mirroring the original's two-tier url::Url::parse /
// manual-split fallback.
func NovelID(rawURL string) string {
	return SourceID(rawURL) + "::" + rawURL
}

// SourceID extracts the lowercased host with any leading "www." stripped
// from rawURL.
func SourceID(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return cleanHost(u.Host)
	}

	if idx := strings.Index(rawURL, "://"); idx >= 0 {
		rest := rawURL[idx+3:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			return cleanHost(rest[:slash])
		}
		return cleanHost(rest)
	}

	return "unknown"
}

func cleanHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func splitNovelID(id string) (sourceID, novelURL string) {
	parts := strings.SplitN(id, "::", 2)
	if len(parts) != 2 {
		return "unknown", id
	}
	return parts[0], parts[1]
}
