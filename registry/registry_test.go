package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-go/fileref"
	"github.com/nacht-org/quelle-go/pluginmanifest"
	"github.com/nacht-org/quelle-go/quelleerr"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func testPackage(t *testing.T) *pluginmanifest.Package {
	t.Helper()
	binary := []byte("fake-wasm-body")
	ref, err := fileref.New("plugin.wasm", fileref.AlgSHA256, binary)
	require.NoError(t, err)
	return &pluginmanifest.Package{
		Manifest: pluginmanifest.Manifest{
			ID: "org.example.scraper", Name: "Example Scraper", VersionString: "1.0.0",
			WasmFile: ref,
		},
		Binary: binary,
	}
}

func TestInstall_MaterializesAndUpserts(t *testing.T) {
	reg := New(t.TempDir(), testLogger())
	pkg := testPackage(t)

	rec, err := reg.Install(context.Background(), pkg, InstallOptions{SourceStore: "local"})
	require.NoError(t, err)
	assert.Equal(t, "org.example.scraper", rec.Manifest.ID)
	assert.False(t, rec.InstalledAt.IsZero())

	got, err := reg.Get("org.example.scraper")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Manifest.VersionString)

	data, err := reg.WasmBytes(context.Background(), "org.example.scraper")
	require.NoError(t, err)
	assert.Equal(t, pkg.Binary, data)
}

func TestInstall_ReturnsExistingWithoutForceReinstall(t *testing.T) {
	reg := New(t.TempDir(), testLogger())
	pkg := testPackage(t)
	ctx := context.Background()

	first, err := reg.Install(ctx, pkg, InstallOptions{})
	require.NoError(t, err)

	second, err := reg.Install(ctx, testPackage(t), InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.InstalledAt, second.InstalledAt)
}

func TestUninstall_IsIdempotent(t *testing.T) {
	reg := New(t.TempDir(), testLogger())
	ctx := context.Background()
	removed, err := reg.Uninstall(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, removed)

	pkg := testPackage(t)
	_, err = reg.Install(ctx, pkg, InstallOptions{})
	require.NoError(t, err)

	removed, err = reg.Uninstall(ctx, pkg.Manifest.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Uninstall(ctx, pkg.Manifest.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestInstallThenUninstallThenInstall_IsByteEquivalent(t *testing.T) {
	root := t.TempDir()
	reg := New(root, testLogger())
	ctx := context.Background()
	pkg := testPackage(t)

	_, err := reg.Install(ctx, pkg, InstallOptions{})
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(root, indexFileName))
	require.NoError(t, err)

	_, err = reg.Uninstall(ctx, pkg.Manifest.ID)
	require.NoError(t, err)
	_, err = reg.Install(ctx, testPackage(t), InstallOptions{})
	require.NoError(t, err)
	after, err := os.ReadFile(filepath.Join(root, indexFileName))
	require.NoError(t, err)

	// InstalledAt/LastUpdated record when each install ran, so they differ
	// between the two installs; every other field of the index must match.
	var beforeIdx, afterIdx index
	require.NoError(t, json.Unmarshal(before, &beforeIdx))
	require.NoError(t, json.Unmarshal(after, &afterIdx))
	for _, idx := range []*index{&beforeIdx, &afterIdx} {
		for id, p := range idx.Plugins {
			p.InstalledAt, p.LastUpdated = time.Time{}, time.Time{}
			idx.Plugins[id] = p
		}
	}
	assert.Equal(t, beforeIdx, afterIdx)
}

func TestWasmBytes_ChecksumMismatchRejected(t *testing.T) {
	root := t.TempDir()
	reg := New(root, testLogger())
	ctx := context.Background()
	pkg := testPackage(t)

	_, err := reg.Install(ctx, pkg, InstallOptions{})
	require.NoError(t, err)

	wasmPath := filepath.Join(root, "plugins", pkg.Manifest.ID, pkg.Manifest.VersionString, "plugin.wasm")
	require.NoError(t, os.WriteFile(wasmPath, []byte("corrupted!!"), 0o644))

	_, err = reg.WasmBytes(ctx, pkg.Manifest.ID)
	require.Error(t, err)
	assert.Equal(t, quelleerr.KindIntegrity, quelleerr.ClassOf(err))
}
