// Package registry implements the registry (C6): the set of locally
// installed plugins and their unpacked files under <root>/, with an
// index.json sidecar as the single source of truth for "what is
// installed" (spec.md §4.3).
//
// Grounded on the teacher's cache.go (a single JSON sidecar per directory,
// rewritten wholesale on update) generalized from one cache entry per
// directory to one index of many records, plus client.go/pull.go's
// stage-then-rename pattern for atomic package materialization.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/nacht-org/quelle-go/fileref"
	"github.com/nacht-org/quelle-go/internal/filelock"
	"github.com/nacht-org/quelle-go/pluginmanifest"
	"github.com/nacht-org/quelle-go/quelleerr"
)

const indexFileName = "index.json"

// InstalledPlugin is a locally materialized plugin (spec.md §3: "plugin
// identity + manifest snapshot + install size + timestamps + source-store
// name + auto-update flag + optional integrity checksum").
type InstalledPlugin struct {
	Manifest      pluginmanifest.Manifest `json:"manifest"`
	SourceStore   string                  `json:"sourceStore"`
	InstallSize   int64                   `json:"installSize"`
	InstalledAt   time.Time               `json:"installedAt"`
	LastUpdated   time.Time               `json:"lastUpdated"`
	AutoUpdate    bool                    `json:"autoUpdate"`
	IntegrityHash string                  `json:"integrityHash,omitempty"`
}

func (p InstalledPlugin) key() pluginmanifest.Key { return p.Manifest.Key() }

// InstallOptions controls Install's behavior.
type InstallOptions struct {
	SourceStore     string
	ForceReinstall  bool
	AutoUpdate      bool
	DigestAlgorithm fileref.Algorithm
}

type index struct {
	Plugins map[string]InstalledPlugin `json:"plugins"` // keyed by id (latest installed version wins lookups by id)
}

// Registry owns installed plugins and their unpacked files under Root.
type Registry struct {
	Root   string
	Logger zerolog.Logger
}

// New constructs a Registry rooted at root.
func New(root string, logger zerolog.Logger) *Registry {
	return &Registry{Root: root, Logger: logger}
}

func (r *Registry) indexPath() string { return filepath.Join(r.Root, indexFileName) }

func (r *Registry) readIndex() (*index, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &index{Plugins: map[string]InstalledPlugin{}}, nil
		}
		return nil, &quelleerr.IoOperationError{Operation: "read", Path: r.indexPath(), Source: err}
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, quelleerr.Wrap(quelleerr.ErrManifestCorrupted, quelleerr.KindIntegrity)
	}
	if idx.Plugins == nil {
		idx.Plugins = map[string]InstalledPlugin{}
	}
	return &idx, nil
}

func (r *Registry) writeIndex(idx *index) error {
	if err := os.MkdirAll(r.Root, 0o755); err != nil {
		return &quelleerr.IoOperationError{Operation: "mkdir", Path: r.Root, Source: err}
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry index: %w", err)
	}
	tmp := r.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &quelleerr.IoOperationError{Operation: "write", Path: tmp, Source: err}
	}
	if err := os.Rename(tmp, r.indexPath()); err != nil {
		return &quelleerr.IoOperationError{Operation: "rename", Path: r.indexPath(), Source: err}
	}
	return nil
}

// Get returns the installed record for id, if any.
func (r *Registry) Get(id string) (*InstalledPlugin, error) {
	idx, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	p, ok := idx.Plugins[id]
	if !ok {
		return nil, quelleerr.Wrap(quelleerr.ErrPluginNotFound, quelleerr.KindNotFound)
	}
	return &p, nil
}

// List returns every installed plugin, sorted by id.
func (r *Registry) List() ([]InstalledPlugin, error) {
	idx, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]InstalledPlugin, 0, len(idx.Plugins))
	for _, p := range idx.Plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.ID < out[j].Manifest.ID })
	return out, nil
}

func (r *Registry) installDir(id, version string) string {
	return filepath.Join(r.Root, "plugins", id, version)
}

func nonce() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Install materializes pkg's files under the registry root and upserts
// its record into index.json, all under an exclusive lock over the
// registry root (spec.md §4.3).
func (r *Registry) Install(ctx context.Context, pkg *pluginmanifest.Package, opts InstallOptions) (*InstalledPlugin, error) {
	lock, err := filelock.Acquire(r.Root)
	if err != nil {
		return nil, fmt.Errorf("acquiring registry lock: %w", err)
	}
	defer lock.Release()

	if err := validatePackage(pkg); err != nil {
		return nil, err
	}

	id, version := pkg.Manifest.ID, pkg.Manifest.VersionString
	dest := r.installDir(id, version)

	idx, err := r.readIndex()
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(dest); statErr == nil && !opts.ForceReinstall {
		if existing, ok := idx.Plugins[id]; ok && existing.Manifest.VersionString == version {
			return &existing, nil
		}
	}

	alg := opts.DigestAlgorithm
	if alg == "" {
		alg = fileref.AlgSHA256
	}

	n, err := nonce()
	if err != nil {
		return nil, fmt.Errorf("generating staging nonce: %w", err)
	}
	staging := filepath.Join(r.Root, "plugins", id, ".tmp-"+n)

	if err := stagePackage(staging, pkg, alg); err != nil {
		os.RemoveAll(staging)
		return nil, err
	}
	if err := reverifyStaged(staging, pkg); err != nil {
		os.RemoveAll(staging)
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		os.RemoveAll(staging)
		return nil, &quelleerr.IoOperationError{Operation: "mkdir", Path: dest, Source: err}
	}
	os.RemoveAll(dest)
	if err := os.Rename(staging, dest); err != nil {
		os.RemoveAll(staging)
		return nil, &quelleerr.IoOperationError{Operation: "rename", Path: dest, Source: err}
	}

	var installSize int64
	installSize += int64(len(pkg.Binary))
	for _, data := range pkg.Assets {
		installSize += int64(len(data))
	}

	now := time.Now().UTC()
	record := InstalledPlugin{
		Manifest: pkg.Manifest, SourceStore: opts.SourceStore,
		InstallSize: installSize, AutoUpdate: opts.AutoUpdate,
	}
	if existing, ok := idx.Plugins[id]; ok {
		record.InstalledAt = existing.InstalledAt
	} else {
		record.InstalledAt = now
	}
	record.LastUpdated = now

	idx.Plugins[id] = record
	if err := r.writeIndex(idx); err != nil {
		return nil, err
	}
	r.Logger.Info().Str("plugin", id).Str("version", version).Msg("plugin installed")
	return &record, nil
}

// Uninstall removes the plugin directory and index entry. Idempotent:
// returns false, nil if id was not installed.
func (r *Registry) Uninstall(ctx context.Context, id string) (bool, error) {
	lock, err := filelock.Acquire(r.Root)
	if err != nil {
		return false, fmt.Errorf("acquiring registry lock: %w", err)
	}
	defer lock.Release()

	idx, err := r.readIndex()
	if err != nil {
		return false, err
	}
	existing, ok := idx.Plugins[id]
	if !ok {
		return false, nil
	}
	if err := os.RemoveAll(filepath.Join(r.Root, "plugins", id)); err != nil {
		return false, &quelleerr.IoOperationError{Operation: "removeAll", Path: id, Source: err}
	}
	delete(idx.Plugins, id)
	if err := r.writeIndex(idx); err != nil {
		return false, err
	}
	r.Logger.Info().Str("plugin", id).Str("version", existing.Manifest.VersionString).Msg("plugin uninstalled")
	return true, nil
}

// WasmBytes returns the installed binary for id, re-verifying it against
// the stored manifest's digest.
func (r *Registry) WasmBytes(ctx context.Context, id string) ([]byte, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	dest := r.installDir(id, p.Manifest.VersionString)
	wasmPath := filepath.Join(dest, filepath.Base(p.Manifest.WasmFile.Path))
	data, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, &quelleerr.IoOperationError{Operation: "read", Path: wasmPath, Source: err}
	}
	if err := p.Manifest.WasmFile.Verify(data); err != nil {
		return nil, &quelleerr.ChecksumMismatchError{FileKind: "wasm", Path: wasmPath, Want: p.Manifest.WasmFile.Digest}
	}
	return data, nil
}

func validatePackage(pkg *pluginmanifest.Package) error {
	if pkg.Manifest.ID == "" || pkg.Manifest.VersionString == "" {
		return quelleerr.NewValidationError("MissingMetadata", "package is missing id or version")
	}
	return nil
}

func stagePackage(staging string, pkg *pluginmanifest.Package, alg fileref.Algorithm) error {
	if err := os.MkdirAll(filepath.Join(staging, "assets"), 0o755); err != nil {
		return &quelleerr.IoOperationError{Operation: "mkdir", Path: staging, Source: err}
	}
	wasmName := filepath.Base(pkg.Manifest.WasmFile.Path)
	if wasmName == "" || wasmName == "." {
		wasmName = "plugin.wasm"
	}
	if err := os.WriteFile(filepath.Join(staging, wasmName), pkg.Binary, 0o644); err != nil {
		return &quelleerr.IoOperationError{Operation: "write", Path: wasmName, Source: err}
	}
	for _, asset := range pkg.Manifest.Assets {
		data, ok := pkg.Assets[asset.Name]
		if !ok {
			continue
		}
		dest := filepath.Join(staging, "assets", asset.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return &quelleerr.IoOperationError{Operation: "mkdir", Path: dest, Source: err}
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return &quelleerr.IoOperationError{Operation: "write", Path: dest, Source: err}
		}
	}
	manifestJSON, err := json.Marshal(pkg.Manifest)
	if err != nil {
		return fmt.Errorf("marshaling plugin manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(staging, "manifest.json"), manifestJSON, 0o644)
}

func reverifyStaged(staging string, pkg *pluginmanifest.Package) error {
	wasmName := filepath.Base(pkg.Manifest.WasmFile.Path)
	if wasmName == "" || wasmName == "." {
		wasmName = "plugin.wasm"
	}
	data, err := os.ReadFile(filepath.Join(staging, wasmName))
	if err != nil {
		return &quelleerr.IoOperationError{Operation: "read", Path: wasmName, Source: err}
	}
	if pkg.Manifest.WasmFile.Digest != "" {
		if err := pkg.Manifest.WasmFile.Verify(data); err != nil {
			return &quelleerr.ChecksumMismatchError{FileKind: "wasm", Path: wasmName, Want: pkg.Manifest.WasmFile.Digest}
		}
	}
	for _, asset := range pkg.Manifest.Assets {
		assetData, err := os.ReadFile(filepath.Join(staging, "assets", asset.Name))
		if err != nil {
			continue
		}
		if asset.File.Digest != "" {
			if verr := asset.File.Verify(assetData); verr != nil {
				return &quelleerr.ChecksumMismatchError{FileKind: "asset", Path: asset.Name, Want: asset.File.Digest}
			}
		}
	}
	return nil
}
