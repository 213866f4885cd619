package storemanager

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-go/filesource"
	"github.com/nacht-org/quelle-go/fileref"
	"github.com/nacht-org/quelle-go/pluginmanifest"
	"github.com/nacht-org/quelle-go/registry"
	"github.com/nacht-org/quelle-go/store"
)

func newPublishedStore(t *testing.T, name, baseURL string) *store.Engine {
	t.Helper()
	src := filesource.NewLocalSource(t.TempDir())
	eng := store.New(src, store.Config{Name: name})
	pkg := &pluginmanifest.Package{
		Manifest: pluginmanifest.Manifest{
			ID: "org.example." + name, Name: "Plugin " + name, VersionString: "1.0.0",
			BaseURLs: []string{baseURL}, Languages: []string{"en"},
			WasmFile: fileref.FileRef{Path: "plugin.wasm"},
		},
		Binary: append([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, []byte("body")...),
	}
	require.NoError(t, eng.Publish(context.Background(), pkg, store.PublishOptions{}))
	return eng
}

func TestListStores_PriorityThenNameOrder(t *testing.T) {
	m := New(registry.New(t.TempDir(), zerolog.Nop()), Options{})
	m.AddStore(newPublishedStore(t, "low", "https://low.test/"), StoreConfig{Name: "low", Priority: 1, Enabled: true})
	m.AddStore(newPublishedStore(t, "high", "https://high.test/"), StoreConfig{Name: "high", Priority: 10, Enabled: true})
	m.AddStore(newPublishedStore(t, "mid-b", "https://midb.test/"), StoreConfig{Name: "mid-b", Priority: 5, Enabled: true})
	m.AddStore(newPublishedStore(t, "mid-a", "https://mida.test/"), StoreConfig{Name: "mid-a", Priority: 5, Enabled: true})

	names := []string{}
	for _, c := range m.ListStores() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, names)
}

func TestFindForURL_SequentialPriorityWalk(t *testing.T) {
	m := New(registry.New(t.TempDir(), zerolog.Nop()), Options{})
	m.AddStore(newPublishedStore(t, "primary", "https://shared.test/"), StoreConfig{Name: "primary", Priority: 10, Enabled: true})
	m.AddStore(newPublishedStore(t, "backup", "https://shared.test/"), StoreConfig{Name: "backup", Priority: 1, Enabled: true})

	id, storeName, err := m.FindForURL(context.Background(), "https://shared.test/novel/1")
	require.NoError(t, err)
	assert.Equal(t, "org.example.primary", id)
	assert.Equal(t, "primary", storeName)
}

func TestSearch_DedupsAcrossStores(t *testing.T) {
	m := New(registry.New(t.TempDir(), zerolog.Nop()), Options{})
	m.AddStore(newPublishedStore(t, "a", "https://a.test/"), StoreConfig{Name: "a", Priority: 1, Enabled: true})
	m.AddStore(newPublishedStore(t, "b", "https://b.test/"), StoreConfig{Name: "b", Priority: 1, Enabled: true})
	m.AddStore(newPublishedStore(t, "a", "https://a.test/"), StoreConfig{Name: "a-mirror", Priority: 1, Enabled: true})

	results, err := m.Search(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestInstall_ConsultsRegistryFirst(t *testing.T) {
	reg := registry.New(t.TempDir(), zerolog.Nop())
	m := New(reg, Options{})
	eng := newPublishedStore(t, "only", "https://only.test/")
	m.AddStore(eng, StoreConfig{Name: "only", Priority: 1, Enabled: true})

	ctx := context.Background()
	first, err := m.Install(ctx, "org.example.only", "", registry.InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "only", first.SourceStore)

	second, err := m.Install(ctx, "org.example.only", "", registry.InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.InstalledAt, second.InstalledAt)
}

func TestBatchInstall_SequentialPerRequest(t *testing.T) {
	reg := registry.New(t.TempDir(), zerolog.Nop())
	m := New(reg, Options{})
	m.AddStore(newPublishedStore(t, "x", "https://x.test/"), StoreConfig{Name: "x", Priority: 1, Enabled: true})
	m.AddStore(newPublishedStore(t, "y", "https://y.test/"), StoreConfig{Name: "y", Priority: 1, Enabled: true})

	results := m.BatchInstall(context.Background(), []Request{
		{ID: "org.example.x"},
		{ID: "org.example.y"},
		{ID: "org.example.nonexistent"},
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)
}
