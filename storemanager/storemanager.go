// Package storemanager implements the store manager (C7): federates
// multiple store engines plus one registry, providing cross-store
// discovery, URL routing, and install/update orchestration (spec.md
// §4.4).
//
// Grounded on the teacher's resolve_deps.go: bounded errgroup fan-out
// collecting per-item warnings instead of failing the whole batch,
// generalized here from "resolve toolchain+plugins" to "probe/search
// every enabled store".
package storemanager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nacht-org/quelle-go/quelleerr"
	"github.com/nacht-org/quelle-go/registry"
	"github.com/nacht-org/quelle-go/store"
	"github.com/nacht-org/quelle-go/storemanifest"
)

// StoreConfig is the per-store federation configuration (spec.md §4.4).
type StoreConfig struct {
	Name     string
	Priority int
	Enabled  bool
	Trusted  bool
}

type managedStore struct {
	store  *store.Engine
	config StoreConfig
}

// Manager federates multiple stores plus one registry.
type Manager struct {
	mu     sync.RWMutex
	stores []managedStore

	registry          *registry.Registry
	healthTimeout     time.Duration
	parallelDownloads int64
	downloads         *semaphore.Weighted // shared by every Install call
}

// Options configures a Manager's defaults.
type Options struct {
	HealthTimeout     time.Duration // default 30s (spec.md §4.4)
	ParallelDownloads int64         // default 4 (spec.md §4.4)
}

// New constructs a Manager over reg with the given options.
func New(reg *registry.Registry, opts Options) *Manager {
	if opts.HealthTimeout == 0 {
		opts.HealthTimeout = 30 * time.Second
	}
	if opts.ParallelDownloads == 0 {
		opts.ParallelDownloads = 4
	}
	return &Manager{registry: reg, healthTimeout: opts.HealthTimeout, parallelDownloads: opts.ParallelDownloads,
		downloads: semaphore.NewWeighted(opts.ParallelDownloads)}
}

// AddStore registers engine under config, re-sorting the priority order.
func (m *Manager) AddStore(engine *store.Engine, config StoreConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = append(m.stores, managedStore{store: engine, config: config})
	m.sortLocked()
}

// RemoveStore drops the store named name.
func (m *Manager) RemoveStore(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.stores[:0]
	for _, ms := range m.stores {
		if ms.config.Name != name {
			out = append(out, ms)
		}
	}
	m.stores = out
}

// ListStores returns the managed stores' configs in priority order.
func (m *Manager) ListStores() []StoreConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoreConfig, len(m.stores))
	for i, ms := range m.stores {
		out[i] = ms.config
	}
	return out
}

func (m *Manager) sortLocked() {
	sort.SliceStable(m.stores, func(i, j int) bool {
		a, b := m.stores[i].config, m.stores[j].config
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Name < b.Name
	})
}

func (m *Manager) snapshot() []managedStore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]managedStore, len(m.stores))
	copy(out, m.stores)
	return out
}

func (m *Manager) enabled() []managedStore {
	var out []managedStore
	for _, ms := range m.snapshot() {
		if ms.config.Enabled {
			out = append(out, ms)
		}
	}
	return out
}

// Refresh probes each enabled store's manifest in parallel, each bounded
// by the configured health timeout, returning the names that failed.
func (m *Manager) Refresh(ctx context.Context) []string {
	stores := m.enabled()
	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	for _, ms := range stores {
		ms := ms
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, m.healthTimeout)
			defer cancel()
			if _, err := ms.store.StoreManifest(probeCtx); err != nil {
				mu.Lock()
				failed = append(failed, ms.config.Name)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(failed)
	return failed
}

// SortBy enumerates the manager-level search sort fields (spec.md §4.4).
type SortBy string

const (
	SortByName        SortBy = "name"
	SortByVersion     SortBy = "version"
	SortByLastUpdated SortBy = "last-updated"
)

// Query parameterizes Search.
type Query struct {
	Text      string
	Language  string
	SortBy    SortBy
	Descending bool
	Limit     int
	Offset    int
}

// SearchResult pairs a VersionSummary with the store it came from, for
// dedup-by-(id,version) across stores.
type SearchResult struct {
	storemanifest.VersionSummary
	StoreName string
}

// Search fans out to every enabled store in parallel, merges results,
// deduplicates by (id, version), sorts per query.SortBy (falling back to
// name for unrecognized values), and applies limit/offset.
func (m *Manager) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	stores := m.enabled()
	results := make([][]SearchResult, len(stores))

	g, gctx := errgroup.WithContext(ctx)
	for i, ms := range stores {
		i, ms := i, ms
		g.Go(func() error {
			found, err := ms.store.Search(gctx, store.Query{Text: q.Text, Language: q.Language})
			if err != nil {
				return nil // a single unreachable store degrades search, it never fails it
			}
			entries := make([]SearchResult, len(found))
			for j, vs := range found {
				entries[j] = SearchResult{VersionSummary: vs, StoreName: ms.config.Name}
			}
			results[i] = entries
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var merged []SearchResult
	for _, entries := range results {
		for _, e := range entries {
			key := e.ID + "@" + e.VersionStr
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, e)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		var less bool
		switch q.SortBy {
		case SortByVersion:
			less = a.VersionStr < b.VersionStr
		case SortByLastUpdated:
			less = a.LastUpdated.Before(b.LastUpdated)
		default:
			less = a.Name < b.Name
		}
		if q.Descending {
			return !less && a.Name != b.Name
		}
		return less
	})

	return paginate(merged, q.Limit, q.Offset), nil
}

func paginate(entries []SearchResult, limit, offset int) []SearchResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

// FindForURL walks enabled stores in priority order, returning the first
// store whose manifest has a non-empty match.
func (m *Manager) FindForURL(ctx context.Context, url string) (pluginID, storeName string, err error) {
	for _, ms := range m.enabled() {
		matches, merr := ms.store.FindForURL(ctx, url)
		if merr != nil {
			continue
		}
		if len(matches) > 0 {
			return matches[0].PluginID, ms.config.Name, nil
		}
	}
	return "", "", quelleerr.Wrap(quelleerr.ErrPluginNotFound, quelleerr.KindNotFound)
}

func (m *Manager) findStore(name string) *managedStore {
	for _, ms := range m.snapshot() {
		if ms.config.Name == name {
			return &ms
		}
	}
	return nil
}

// Install consults the registry first; if an acceptable version is
// already installed and !opts.ForceReinstall, returns it. Otherwise walks
// enabled stores in priority order and installs from the first that has
// the plugin, bounded by a semaphore of m.parallelDownloads.
func (m *Manager) Install(ctx context.Context, id, version string, opts registry.InstallOptions) (*registry.InstalledPlugin, error) {
	if !opts.ForceReinstall {
		if existing, err := m.registry.Get(id); err == nil {
			if version == "" || existing.Manifest.VersionString == version {
				return existing, nil
			}
		}
	}

	if err := m.downloads.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.downloads.Release(1)

	for _, ms := range m.enabled() {
		pkg, err := ms.store.PluginPackage(ctx, id, version)
		if err != nil {
			if k := quelleerr.ClassOf(err); k == quelleerr.KindNotFound || k == quelleerr.KindTransport {
				continue
			}
			return nil, err
		}
		opts.SourceStore = ms.config.Name
		return m.registry.Install(ctx, pkg, opts)
	}
	return nil, quelleerr.Wrap(quelleerr.ErrPluginNotFound, quelleerr.KindNotFound)
}

// Request is one BatchInstall item.
type Request struct {
	ID      string
	Version string
	Options registry.InstallOptions
}

// Result pairs a Request with its outcome.
type Result struct {
	Request Request
	Plugin  *registry.InstalledPlugin
	Err     error
}

// BatchInstall installs requests strictly sequentially, to avoid
// contention on the registry index (spec.md §4.4).
func (m *Manager) BatchInstall(ctx context.Context, requests []Request) []Result {
	out := make([]Result, len(requests))
	for i, req := range requests {
		p, err := m.Install(ctx, req.ID, req.Version, req.Options)
		out[i] = Result{Request: req, Plugin: p, Err: err}
	}
	return out
}

// Update finds the source store that originally provided id, falling
// back to any enabled store if that one is unavailable, retrieves the
// latest version, and reinstalls via the registry.
func (m *Manager) Update(ctx context.Context, id string, opts registry.InstallOptions) (*registry.InstalledPlugin, error) {
	existing, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}

	candidates := m.enabled()
	if src := m.findStore(existing.SourceStore); src != nil {
		reordered := []managedStore{*src}
		for _, ms := range candidates {
			if ms.config.Name != src.config.Name {
				reordered = append(reordered, ms)
			}
		}
		candidates = reordered
	}

	for _, ms := range candidates {
		pkg, err := ms.store.PluginPackage(ctx, id, "")
		if err != nil {
			if k := quelleerr.ClassOf(err); k == quelleerr.KindNotFound || k == quelleerr.KindTransport {
				continue
			}
			return nil, err
		}
		opts.SourceStore = ms.config.Name
		opts.ForceReinstall = true
		return m.registry.Install(ctx, pkg, opts)
	}
	return nil, fmt.Errorf("update %s: no enabled store has this plugin: %w", id, quelleerr.ErrPluginNotFound)
}

// CheckUpdates fans out across enabled stores, deduplicating per plugin
// and preferring updates sourced from trusted stores over untrusted ones.
func (m *Manager) CheckUpdates(ctx context.Context) ([]store.UpdateResult, error) {
	installed, err := m.registry.List()
	if err != nil {
		return nil, err
	}
	snapshots := make([]store.InstalledSnapshot, 0, len(installed))
	for _, p := range installed {
		if err := p.Manifest.ParseVersion(); err != nil {
			continue
		}
		snapshots = append(snapshots, store.InstalledSnapshot{ID: p.Manifest.ID, Version: p.Manifest.Version})
	}

	type scored struct {
		result  store.UpdateResult
		trusted bool
	}
	best := make(map[string]scored)

	for _, ms := range m.enabled() {
		results, err := ms.store.CheckUpdates(ctx, snapshots)
		if err != nil {
			continue
		}
		for _, r := range results {
			prev, ok := best[r.PluginID]
			if !ok || (ms.config.Trusted && !prev.trusted) {
				best[r.PluginID] = scored{result: r, trusted: ms.config.Trusted}
			}
		}
	}

	out := make([]store.UpdateResult, 0, len(best))
	for _, s := range best {
		out = append(out, s.result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PluginID < out[j].PluginID })
	return out, nil
}
