package filesource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	godigest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-go/fileref"
	"github.com/nacht-org/quelle-go/pluginmanifest"
	"github.com/nacht-org/quelle-go/store"
	"github.com/nacht-org/quelle-go/storemanifest"
)

// ociLayer is one path/content pair served as a manifest layer,
// annotated with the logical path OCISource indexes it under.
type ociLayer struct {
	path string
	data []byte
}

// newFakeOCIRegistry serves a single repository's "latest" tag: a config
// blob (the store.json content) plus the given layers, each readable by
// digest and discoverable via its "io.quelle.path" annotation. Grounded
// on the teacher's describe_test.go (newArtifactRegistry): a hand-rolled
// /v2/ distribution-API handler is the pack's own way of exercising
// oras-go's remote.Repository without a live registry.
func newFakeOCIRegistry(t *testing.T, repoName string, config []byte, layers []ociLayer) *httptest.Server {
	t.Helper()

	configDigest := godigest.FromBytes(config)
	configDesc := ocispec.Descriptor{
		MediaType: "application/json",
		Digest:    configDigest,
		Size:      int64(len(config)),
	}

	layerBlobs := map[string][]byte{configDigest.String(): config}
	manifestLayers := make([]ocispec.Descriptor, 0, len(layers))
	for _, l := range layers {
		digest := godigest.FromBytes(l.data)
		layerBlobs[digest.String()] = l.data
		manifestLayers = append(manifestLayers, ocispec.Descriptor{
			MediaType:   "application/octet-stream",
			Digest:      digest,
			Size:        int64(len(l.data)),
			Annotations: map[string]string{"io.quelle.path": l.path},
		})
	}

	manifest := ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    configDesc,
		Layers:    manifestLayers,
	}
	manifestJSON, err := json.Marshal(manifest)
	require.NoError(t, err)
	manifestDigest := godigest.FromBytes(manifestJSON)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/v2/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if !strings.HasPrefix(path, "/v2/"+repoName+"/") {
			http.NotFound(w, r)
			return
		}
		rest := strings.TrimPrefix(path, "/v2/"+repoName+"/")

		if idx := strings.LastIndex(rest, "manifests/"); idx == 0 {
			ref := strings.TrimPrefix(rest, "manifests/")
			if ref != "latest" && ref != manifestDigest.String() {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", ocispec.MediaTypeImageManifest)
			w.Header().Set("Docker-Content-Digest", manifestDigest.String())
			if r.Method == http.MethodHead {
				return
			}
			w.Write(manifestJSON)
			return
		}

		if idx := strings.LastIndex(rest, "blobs/"); idx == 0 {
			digest := strings.TrimPrefix(rest, "blobs/")
			blob, ok := layerBlobs[digest]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Docker-Content-Digest", digest)
			w.Write(blob)
			return
		}

		http.NotFound(w, r)
	}))
}

func registryHost(ts *httptest.Server) string {
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestOCISource_ReadExistsList(t *testing.T) {
	ts := newFakeOCIRegistry(t, "acme/store", []byte(`{"hello":true}`), []ociLayer{
		{path: "plugin.wasm", data: []byte("wasm-bytes")},
		{path: "icon.png", data: []byte("png-bytes")},
	})
	defer ts.Close()

	src, err := NewOCISource(registryHost(ts)+"/acme/store", NewDefaultAuthClient(""), true)
	require.NoError(t, err)
	ctx := context.Background()

	data, err := src.Read(ctx, "store.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":true}`, string(data))

	data, err = src.Read(ctx, "plugin.wasm")
	require.NoError(t, err)
	assert.Equal(t, "wasm-bytes", string(data))

	exists, err := src.Exists(ctx, "icon.png")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = src.Exists(ctx, "missing.bin")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = src.Read(ctx, "missing.bin")
	assert.Error(t, err)
}

func TestOpen_DispatchesByOCIPrefix(t *testing.T) {
	local, err := Open(t.TempDir(), nil, false)
	require.NoError(t, err)
	_, ok := local.(*LocalSource)
	assert.True(t, ok)

	remote, err := Open("oci://registry.example.com/acme/store", nil, false)
	require.NoError(t, err)
	_, ok = remote.(*OCISource)
	assert.True(t, ok)
}

// TestStoreEngine_OverOCISource exercises a real store.Engine end to end
// against an OCI-backed Source: store manifest lookup, plugin manifest
// resolution with checksum verification, and full package assembly
// (wasm binary + asset), all routed through OCISource instead of a local
// directory.
func TestStoreEngine_OverOCISource(t *testing.T) {
	wasm := []byte("wasm-bytes")
	icon := []byte("icon-bytes")
	wasmDigest, err := fileref.Sum(fileref.AlgSHA256, wasm)
	require.NoError(t, err)
	iconDigest, err := fileref.Sum(fileref.AlgSHA256, icon)
	require.NoError(t, err)

	manifestFile := pluginmanifest.Manifest{
		ID: "org.example.scraper", Name: "Example Scraper", VersionString: "1.0.0",
		BaseURLs: []string{"https://example.test/"}, Languages: []string{"en"},
		WasmFile: fileref.FileRef{Path: "plugin.wasm", Digest: wasmDigest, Length: int64(len(wasm))},
		Assets: []pluginmanifest.NamedAsset{
			{Name: "icon.png", File: fileref.FileRef{Path: "icon.png", Digest: iconDigest, Length: int64(len(icon))}},
		},
	}
	manifestJSON, err := json.Marshal(manifestFile)
	require.NoError(t, err)
	manifestChecksum, err := fileref.Sum(fileref.AlgSHA256, manifestJSON)
	require.NoError(t, err)

	storeManifest := storemanifest.Manifest{
		Name: "acme", StoreType: "oci", SchemaVersion: 1,
		LastUpdated: time.Now().UTC(),
		Plugins: map[string]storemanifest.PluginIndexEntry{
			"org.example.scraper": {
				Latest: "1.0.0",
				AllVersions: map[string]storemanifest.VersionSummary{
					"1.0.0": {
						ID: "org.example.scraper", Name: "Example Scraper", VersionStr: "1.0.0",
						ManifestPath:     "manifests/org.example.scraper/1.0.0.json",
						ManifestChecksum: manifestChecksum,
					},
				},
			},
		},
	}
	storeManifestJSON, err := json.Marshal(storeManifest)
	require.NoError(t, err)

	ts := newFakeOCIRegistry(t, "acme/store", storeManifestJSON, []ociLayer{
		{path: "manifests/org.example.scraper/1.0.0.json", data: manifestJSON},
		{path: "plugin.wasm", data: wasm},
		{path: "icon.png", data: icon},
	})
	defer ts.Close()

	src, err := Open("oci://"+registryHost(ts)+"/acme/store", NewDefaultAuthClient(""), true)
	require.NoError(t, err)

	eng := store.New(src, store.Config{Name: "acme"})
	ctx := context.Background()

	plugins, err := eng.ListPlugins(ctx)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "Example Scraper", plugins[0].Name)

	pkg, err := eng.PluginPackage(ctx, "org.example.scraper", "")
	require.NoError(t, err)
	assert.Equal(t, wasm, pkg.Binary)
	assert.Equal(t, icon, pkg.Assets["icon.png"])
}
