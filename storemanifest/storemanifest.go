// Package storemanifest implements the store catalog (C3): the top-level
// store.json structure carrying URL routing and a per-plugin version
// index, plus the ordered URL-pattern matching rule from spec.md §3/§8.
package storemanifest

import (
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// VersionSummary is the per-(id,version) entry in a store's plugin index.
type VersionSummary struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Version      *semver.Version `json:"-"`
	VersionStr   string          `json:"version"`
	BaseURLs     []string        `json:"baseUrls"`
	Languages    []string        `json:"languages"`
	LastUpdated  time.Time       `json:"lastUpdated"`
	ManifestPath string          `json:"manifestPath"`
	// ManifestChecksum attests the plugin manifest file this summary
	// links to, in "<alg>:<hex>" form (spec.md §3).
	ManifestChecksum string `json:"manifestChecksum"`
}

// PluginIndexEntry carries the latest version plus all known versions for
// one plugin id within a store.
type PluginIndexEntry struct {
	Latest      string                    `json:"latest"`
	AllVersions map[string]VersionSummary `json:"allVersions"`
}

// URLPattern binds a URL prefix to a set of plugin ids with a priority
// (spec.md §3).
type URLPattern struct {
	Prefix    string   `json:"prefix"`
	PluginIDs []string `json:"pluginIds"`
	Priority  int      `json:"priority"`
}

// Manifest is the store's top-level catalog (store.json).
type Manifest struct {
	Name          string                      `json:"name"`
	StoreType     string                      `json:"storeType"`
	SchemaVersion int                          `json:"schemaVersion"`
	URL           string                      `json:"url,omitempty"`
	Description   string                      `json:"description,omitempty"`
	LastUpdated   time.Time                   `json:"lastUpdated"`
	URLPatterns   []URLPattern                `json:"urlPatterns"`
	Plugins       map[string]PluginIndexEntry `json:"plugins"`
}

// URLMatch is one (plugin id, name) pairing returned by FindForURL.
type URLMatch struct {
	PluginID string
	Name     string
	Priority int
	Pattern  string
}

// FindForURL returns all (id, name) pairs whose URL pattern prefixes url,
// ordered by pattern priority descending, then by pattern ascending, then
// by plugin id ascending (spec.md §3 invariant; §8 stability rule).
func (m *Manifest) FindForURL(url string) []URLMatch {
	type candidate struct {
		pattern  URLPattern
		pluginID string
	}
	var candidates []candidate
	for _, pat := range m.URLPatterns {
		if !strings.HasPrefix(url, pat.Prefix) {
			continue
		}
		for _, id := range pat.PluginIDs {
			candidates = append(candidates, candidate{pattern: pat, pluginID: id})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.pattern.Priority != b.pattern.Priority {
			return a.pattern.Priority > b.pattern.Priority
		}
		if a.pattern.Prefix != b.pattern.Prefix {
			return a.pattern.Prefix < b.pattern.Prefix
		}
		return a.pluginID < b.pluginID
	})

	matches := make([]URLMatch, 0, len(candidates))
	for _, c := range candidates {
		name := ""
		if entry, ok := m.Plugins[c.pluginID]; ok {
			if vs, ok := entry.AllVersions[entry.Latest]; ok {
				name = vs.Name
			}
		}
		matches = append(matches, URLMatch{
			PluginID: c.pluginID,
			Name:     name,
			Priority: c.pattern.Priority,
			Pattern:  c.pattern.Prefix,
		})
	}
	return matches
}

// LatestVersion returns the latest semver.Version recorded for pluginID,
// or nil if the plugin is unknown.
func (m *Manifest) LatestVersion(pluginID string) *semver.Version {
	entry, ok := m.Plugins[pluginID]
	if !ok {
		return nil
	}
	v, err := semver.NewVersion(entry.Latest)
	if err != nil {
		return nil
	}
	return v
}

// VersionSummaryFor returns the summary for a specific (id, version),
// resolving "" to the latest version.
func (m *Manifest) VersionSummaryFor(pluginID, version string) (VersionSummary, bool) {
	entry, ok := m.Plugins[pluginID]
	if !ok {
		return VersionSummary{}, false
	}
	if version == "" {
		version = entry.Latest
	}
	vs, ok := entry.AllVersions[version]
	return vs, ok
}

// ListPlugins returns the latest-version summary for each plugin id,
// ordered by name (spec.md §4.2).
func (m *Manifest) ListPlugins() []VersionSummary {
	out := make([]VersionSummary, 0, len(m.Plugins))
	for _, entry := range m.Plugins {
		if vs, ok := entry.AllVersions[entry.Latest]; ok {
			out = append(out, vs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
