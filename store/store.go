// Package store implements the store engine (C5): given a filesource.Source
// rooted at a store, serves plugin discovery and package retrieval with
// cryptographic integrity, and (for writable stores) publication.
//
// Grounded on the teacher's client.go/pull.go/push.go/cache.go (manifest
// caching, content verification before returning to callers) and the
// original project's crates/store/src/stores/file_operations.rs
// (FileOperations trait + FileBasedProcessor: a shared processor over an
// abstract file source, identical in spirit to this Engine over a
// filesource.Source).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/nacht-org/quelle-go/fileref"
	"github.com/nacht-org/quelle-go/filesource"
	"github.com/nacht-org/quelle-go/pluginmanifest"
	"github.com/nacht-org/quelle-go/quelleerr"
	"github.com/nacht-org/quelle-go/storemanifest"
)

// Config controls an Engine's behavior.
type Config struct {
	Name           string
	ReadOnly       bool
	MaxPackageSize int64 // 0 means no limit enforced by this engine
	Logger         zerolog.Logger
}

// Engine serves one store's catalog and packages. The parsed store
// manifest is cached behind a single-writer, multi-reader lock (spec.md
// §4.2, §9: "single-writer, multiple-reader: serialize writes behind an
// exclusive lock, publish a fresh immutable snapshot for readers").
type Engine struct {
	source filesource.Source
	config Config

	mu    sync.RWMutex
	cache *storemanifest.Manifest
}

// New constructs an Engine over source with the given configuration.
func New(source filesource.Source, config Config) *Engine {
	return &Engine{source: source, config: config}
}

// Name returns the store's configured name.
func (e *Engine) Name() string { return e.config.Name }

// StoreManifest reads store.json, caching the parsed result in memory.
// Readers see an immutable snapshot; concurrent cache fills are
// serialized.
func (e *Engine) StoreManifest(ctx context.Context) (*storemanifest.Manifest, error) {
	e.mu.RLock()
	if e.cache != nil {
		snapshot := *e.cache
		e.mu.RUnlock()
		return &snapshot, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache != nil {
		snapshot := *e.cache
		return &snapshot, nil
	}

	data, err := e.source.Read(ctx, "store.json")
	if err != nil {
		return nil, fmt.Errorf("store %s: reading store.json: %w", e.config.Name, err)
	}
	var manifest storemanifest.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, quelleerr.Wrap(quelleerr.ErrManifestCorrupted, quelleerr.KindIntegrity)
	}
	e.cache = &manifest
	e.config.Logger.Debug().Str("store", e.config.Name).Msg("store manifest cache filled")

	snapshot := manifest
	return &snapshot, nil
}

// ClearCache evicts the cached store manifest.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = nil
	e.config.Logger.Debug().Str("store", e.config.Name).Msg("store manifest cache evicted")
}

// ListPlugins returns the latest-version summary for each plugin id,
// ordered by name.
func (e *Engine) ListPlugins(ctx context.Context) ([]storemanifest.VersionSummary, error) {
	m, err := e.StoreManifest(ctx)
	if err != nil {
		return nil, err
	}
	return m.ListPlugins(), nil
}

// Query parameterizes Search.
type Query struct {
	Text     string
	Language string
	Limit    int
	Offset   int
}

// Search filters the manifest's plugin summaries by case-insensitive
// substring match on id/name, and by language, honoring limit/offset.
func (e *Engine) Search(ctx context.Context, q Query) ([]storemanifest.VersionSummary, error) {
	all, err := e.ListPlugins(ctx)
	if err != nil {
		return nil, err
	}

	text := strings.ToLower(q.Text)
	var filtered []storemanifest.VersionSummary
	for _, vs := range all {
		if text != "" {
			if !strings.Contains(strings.ToLower(vs.ID), text) && !strings.Contains(strings.ToLower(vs.Name), text) {
				continue
			}
		}
		if q.Language != "" && !containsFold(vs.Languages, q.Language) {
			continue
		}
		filtered = append(filtered, vs)
	}

	return paginate(filtered, q.Limit, q.Offset), nil
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func paginate(vs []storemanifest.VersionSummary, limit, offset int) []storemanifest.VersionSummary {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(vs) {
		return nil
	}
	vs = vs[offset:]
	if limit > 0 && limit < len(vs) {
		vs = vs[:limit]
	}
	return vs
}

// FindForURL returns all (id, name) whose pattern prefixes url, in
// priority/lexicographic order (delegates to storemanifest.Manifest).
func (e *Engine) FindForURL(ctx context.Context, url string) ([]storemanifest.URLMatch, error) {
	m, err := e.StoreManifest(ctx)
	if err != nil {
		return nil, err
	}
	return m.FindForURL(url), nil
}

// resolveVersion resolves an optional version string to the summary
// recorded for (id, version), defaulting to the latest version.
func (e *Engine) resolveVersion(m *storemanifest.Manifest, id, version string) (storemanifest.VersionSummary, error) {
	entry, ok := m.Plugins[id]
	if !ok {
		return storemanifest.VersionSummary{}, quelleerr.Wrap(quelleerr.ErrPluginNotFound, quelleerr.KindNotFound)
	}
	if version == "" {
		version = entry.Latest
	}
	vs, ok := entry.AllVersions[version]
	if !ok {
		return storemanifest.VersionSummary{}, quelleerr.Wrap(quelleerr.ErrVersionNotFound, quelleerr.KindNotFound)
	}
	return vs, nil
}

// PluginManifest resolves version (latest if empty), reads the linked
// manifest file, verifies it against the recorded checksum (fatal
// mismatch), and deserializes it.
func (e *Engine) PluginManifest(ctx context.Context, id, version string) (*pluginmanifest.Manifest, error) {
	m, err := e.StoreManifest(ctx)
	if err != nil {
		return nil, err
	}
	vs, err := e.resolveVersion(m, id, version)
	if err != nil {
		return nil, err
	}

	data, err := e.source.Read(ctx, vs.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("store %s: reading manifest for %s@%s: %w", e.config.Name, id, vs.VersionStr, err)
	}

	manifestRef := fileref.FileRef{Path: vs.ManifestPath, Digest: vs.ManifestChecksum, Length: int64(len(data))}
	if vs.ManifestChecksum != "" {
		if verr := manifestRef.Verify(data); verr != nil {
			return nil, &quelleerr.ChecksumMismatchError{
				FileKind: "manifest", Path: vs.ManifestPath,
				Want: vs.ManifestChecksum,
			}
		}
	}

	pm, err := pluginmanifest.ParseManifest(data, vs.ManifestPath)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.ErrManifestCorrupted, quelleerr.KindIntegrity)
	}
	_ = pm.ParseVersion()
	return &pm, nil
}

// PluginBinary reads and verifies the plugin's WASM binary.
func (e *Engine) PluginBinary(ctx context.Context, id, version string) ([]byte, error) {
	pm, err := e.PluginManifest(ctx, id, version)
	if err != nil {
		return nil, err
	}
	data, err := e.source.Read(ctx, pm.WasmFile.Path)
	if err != nil {
		return nil, fmt.Errorf("store %s: reading wasm for %s: %w", e.config.Name, id, err)
	}
	if err := pm.WasmFile.Verify(data); err != nil {
		return nil, &quelleerr.ChecksumMismatchError{FileKind: "wasm", Path: pm.WasmFile.Path, Want: pm.WasmFile.Digest}
	}
	return data, nil
}

// PluginPackage returns manifest + binary + assets. An asset failing
// verification is logged and skipped; the package is still returned. The
// binary failing verification is fatal.
func (e *Engine) PluginPackage(ctx context.Context, id, version string) (*pluginmanifest.Package, error) {
	pm, err := e.PluginManifest(ctx, id, version)
	if err != nil {
		return nil, err
	}
	binary, err := e.PluginBinary(ctx, id, version)
	if err != nil {
		return nil, err
	}

	assets := make(map[string][]byte, len(pm.Assets))
	for _, asset := range pm.Assets {
		data, err := e.source.Read(ctx, asset.File.Path)
		if err != nil {
			e.config.Logger.Warn().Err(err).Str("asset", asset.Name).Msg("skipping unreadable asset")
			continue
		}
		if verr := asset.File.Verify(data); verr != nil {
			e.config.Logger.Warn().Str("asset", asset.Name).Msg("skipping asset failing checksum verification")
			continue
		}
		assets[asset.Name] = data
	}

	return &pluginmanifest.Package{Manifest: *pm, Binary: binary, Assets: assets}, nil
}

// InstalledSnapshot is the minimal view of an installed plugin CheckUpdates
// needs, decoupling this package from the registry package.
type InstalledSnapshot struct {
	ID      string
	Version *semver.Version
}

// UpdateResultKind tags the outcome of a single CheckUpdates comparison.
type UpdateResultKind int

const (
	UpdateAvailable UpdateResultKind = iota
	NoUpdateNeeded
	CheckFailed
)

// UpdateResult is the tagged result for one installed plugin.
type UpdateResult struct {
	PluginID string
	Kind     UpdateResultKind
	Current  *semver.Version
	Latest   *semver.Version
	Reason   string
}

// CheckUpdates yields a tagged result for each installed plugin, using
// strict semver comparison.
func (e *Engine) CheckUpdates(ctx context.Context, installed []InstalledSnapshot) ([]UpdateResult, error) {
	m, err := e.StoreManifest(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]UpdateResult, 0, len(installed))
	for _, inst := range installed {
		latest := m.LatestVersion(inst.ID)
		if latest == nil {
			results = append(results, UpdateResult{
				PluginID: inst.ID, Kind: CheckFailed, Current: inst.Version,
				Reason: "plugin not found in store",
			})
			continue
		}
		if latest.GreaterThan(inst.Version) {
			results = append(results, UpdateResult{PluginID: inst.ID, Kind: UpdateAvailable, Current: inst.Version, Latest: latest})
		} else {
			results = append(results, UpdateResult{PluginID: inst.ID, Kind: NoUpdateNeeded, Current: inst.Version, Latest: latest})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].PluginID < results[j].PluginID })
	return results, nil
}
