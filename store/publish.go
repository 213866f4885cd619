package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/nacht-org/quelle-go/fileref"
	"github.com/nacht-org/quelle-go/pluginmanifest"
	"github.com/nacht-org/quelle-go/quelleerr"
	"github.com/nacht-org/quelle-go/storemanifest"
)

// wasmMagic is the fixed WASM module header (spec.md §4.2).
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// forbiddenNamePatterns blocks filenames that could confuse extraction or
// shadow store metadata.
var forbiddenNamePatterns = []string{"..", "store.json", "manifest.json"}

// PublishOptions controls Publish's overwrite behavior.
type PublishOptions struct {
	OverwriteExisting bool
	DigestAlgorithm   fileref.Algorithm // defaults to AlgSHA256
}

// Writer is implemented by file sources capable of publication (the
// plain filesource.Source is read-only by construction; a writable store
// additionally needs Write/Remove, modeled here rather than widening the
// narrow read-side Source interface per §4.1's "rest of the store engine
// consumes only these three operations").
type Writer interface {
	Write(ctx context.Context, path string, data []byte) error
	Remove(ctx context.Context, path string) error
	RemoveAll(ctx context.Context, path string) error
}

// Publish validates and writes a plugin package into the store, then
// regenerates the store manifest. Refuses to overwrite an existing
// (id, version) unless options.OverwriteExisting is set. Readonly stores
// reject all writes.
func (e *Engine) Publish(ctx context.Context, pkg *pluginmanifest.Package, opts PublishOptions) error {
	if e.config.ReadOnly {
		return quelleerr.Wrap(quelleerr.ErrPermissionDenied, quelleerr.KindSecurity)
	}
	writer, ok := e.source.(Writer)
	if !ok {
		return fmt.Errorf("store %s: underlying source does not support writes", e.config.Name)
	}

	if err := validatePackage(pkg, e.config.MaxPackageSize); err != nil {
		return err
	}

	alg := opts.DigestAlgorithm
	if alg == "" {
		alg = fileref.AlgSHA256
	}

	m, err := e.StoreManifest(ctx)
	if err != nil {
		if quelleerr.ClassOf(err) != quelleerr.KindNotFound {
			return err
		}
		m = &storemanifest.Manifest{StoreType: "local", SchemaVersion: 1, Plugins: map[string]storemanifest.PluginIndexEntry{}}
	}
	if m.Plugins == nil {
		m.Plugins = map[string]storemanifest.PluginIndexEntry{}
	}

	id, version := pkg.Manifest.ID, pkg.Manifest.VersionString
	if entry, exists := m.Plugins[id]; exists {
		if _, exists := entry.AllVersions[version]; exists && !opts.OverwriteExisting {
			return quelleerr.Wrap(quelleerr.ErrPluginAlreadyPublished, quelleerr.KindConflict)
		}
	}

	base := fmt.Sprintf("extensions/%s/%s", id, version)

	// The published manifest is a copy; pkg is left as the caller built it.
	manifest := pkg.Manifest
	wasmPath := path.Join(base, path.Base(manifest.WasmFile.Path))
	wasmRef, err := fileref.New(wasmPath, alg, pkg.Binary)
	if err != nil {
		return err
	}
	if err := writer.Write(ctx, wasmPath, pkg.Binary); err != nil {
		return fmt.Errorf("writing wasm binary: %w", err)
	}
	manifest.WasmFile = wasmRef

	assetRefs := make([]pluginmanifest.NamedAsset, 0, len(pkg.Assets))
	for name, data := range pkg.Assets {
		if strings.Contains(name, "..") {
			return &quelleerr.InvalidPathError{Path: name, Reason: "asset name contains .."}
		}
		assetPath := path.Join(base, "assets", name)
		ref, err := fileref.New(assetPath, alg, data)
		if err != nil {
			return err
		}
		if err := writer.Write(ctx, assetPath, data); err != nil {
			return fmt.Errorf("writing asset %s: %w", name, err)
		}
		assetRefs = append(assetRefs, pluginmanifest.NamedAsset{Name: name, File: ref})
	}
	manifest.Assets = assetRefs

	manifestPath := path.Join(base, "manifest.json")
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshaling plugin manifest: %w", err)
	}
	if err := writer.Write(ctx, manifestPath, manifestJSON); err != nil {
		return fmt.Errorf("writing plugin manifest: %w", err)
	}
	manifestChecksum, err := fileref.Sum(alg, manifestJSON)
	if err != nil {
		return err
	}

	summary := storemanifest.VersionSummary{
		ID: id, Name: manifest.Name, VersionStr: version,
		BaseURLs: manifest.BaseURLs, Languages: manifest.Languages,
		LastUpdated: time.Now().UTC(), ManifestPath: manifestPath, ManifestChecksum: manifestChecksum,
	}

	entry := m.Plugins[id]
	if entry.AllVersions == nil {
		entry.AllVersions = map[string]storemanifest.VersionSummary{}
	}
	entry.AllVersions[version] = summary
	if entry.Latest == "" || isNewerVersion(version, entry.Latest) {
		entry.Latest = version
	}
	m.Plugins[id] = entry

	registerURLPatterns(m, id, manifest.BaseURLs)

	m.LastUpdated = time.Now().UTC()
	return e.writeManifest(ctx, writer, m)
}

// Unpublish removes either a single version directory (version != "") or
// the whole plugin directory, then re-emits the store manifest.
func (e *Engine) Unpublish(ctx context.Context, id, version string) error {
	if e.config.ReadOnly {
		return quelleerr.Wrap(quelleerr.ErrPermissionDenied, quelleerr.KindSecurity)
	}
	writer, ok := e.source.(Writer)
	if !ok {
		return fmt.Errorf("store %s: underlying source does not support writes", e.config.Name)
	}

	m, err := e.StoreManifest(ctx)
	if err != nil {
		return err
	}
	entry, exists := m.Plugins[id]
	if !exists {
		return quelleerr.Wrap(quelleerr.ErrPluginNotFound, quelleerr.KindNotFound)
	}

	if version == "" {
		if err := writer.RemoveAll(ctx, fmt.Sprintf("extensions/%s", id)); err != nil {
			return fmt.Errorf("removing plugin directory: %w", err)
		}
		delete(m.Plugins, id)
	} else {
		if _, exists := entry.AllVersions[version]; !exists {
			return quelleerr.Wrap(quelleerr.ErrVersionNotFound, quelleerr.KindNotFound)
		}
		if err := writer.RemoveAll(ctx, fmt.Sprintf("extensions/%s/%s", id, version)); err != nil {
			return fmt.Errorf("removing version directory: %w", err)
		}
		delete(entry.AllVersions, version)
		if entry.Latest == version {
			entry.Latest = latestOf(entry.AllVersions)
		}
		if len(entry.AllVersions) == 0 {
			delete(m.Plugins, id)
		} else {
			m.Plugins[id] = entry
		}
	}

	m.LastUpdated = time.Now().UTC()
	return e.writeManifest(ctx, writer, m)
}

func (e *Engine) writeManifest(ctx context.Context, writer Writer, m *storemanifest.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling store manifest: %w", err)
	}
	if err := writer.Write(ctx, "store.json", data); err != nil {
		return fmt.Errorf("writing store.json: %w", err)
	}
	e.ClearCache()
	return nil
}

func validatePackage(pkg *pluginmanifest.Package, maxSize int64) error {
	if pkg.Manifest.ID == "" || pkg.Manifest.Name == "" || pkg.Manifest.VersionString == "" {
		return quelleerr.NewValidationError("MissingMetadata", "id, name, and version are required")
	}
	for _, pattern := range forbiddenNamePatterns {
		for name := range pkg.Assets {
			if strings.Contains(name, pattern) {
				return &quelleerr.InvalidPathError{Path: name, Reason: "forbidden file name pattern"}
			}
		}
	}
	if !bytes.HasPrefix(pkg.Binary, wasmMagic) {
		return quelleerr.NewValidationError("InvalidWasmHeader", "binary is missing the WASM magic header")
	}
	if maxSize > 0 {
		total := int64(len(pkg.Binary))
		for _, data := range pkg.Assets {
			total += int64(len(data))
		}
		if total > maxSize {
			return quelleerr.NewValidationError("PackageTooLarge", fmt.Sprintf("package size %d exceeds max %d", total, maxSize))
		}
	}
	return nil
}

func registerURLPatterns(m *storemanifest.Manifest, pluginID string, baseURLs []string) {
	for _, url := range baseURLs {
		found := false
		for i := range m.URLPatterns {
			if m.URLPatterns[i].Prefix == url {
				found = true
				if !containsString(m.URLPatterns[i].PluginIDs, pluginID) {
					m.URLPatterns[i].PluginIDs = append(m.URLPatterns[i].PluginIDs, pluginID)
				}
				break
			}
		}
		if !found {
			m.URLPatterns = append(m.URLPatterns, storemanifest.URLPattern{
				Prefix: url, PluginIDs: []string{pluginID}, Priority: 0,
			})
		}
	}
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
