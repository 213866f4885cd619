package asset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-go/httpcap"
	"github.com/nacht-org/quelle-go/library"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func storedNovelID(t *testing.T, s *library.Storage) string {
	t.Helper()
	id, err := s.StoreNovel(library.Novel{
		URL: "https://example.com/novel/1", Title: "Example Novel", Status: library.StatusOngoing,
	})
	require.NoError(t, err)
	return id
}

func TestFetchAndStore_StoresBodyWithDerivedMime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake-png-bytes"))
	}))
	defer srv.Close()

	lib := library.New(t.TempDir(), testLogger())
	novelID := storedNovelID(t, lib)

	p := New(httpcap.NewDirectBackend(httpcap.DirectConfig{}), lib, testLogger())
	got, err := p.FetchAndStore(context.Background(), novelID, srv.URL+"/cover.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.Mime)
	assert.EqualValues(t, len("fake-png-bytes"), got.Size)
	assert.NotEmpty(t, got.ID)

	r, err := lib.AssetReader(novelID, got.ID)
	require.NoError(t, err)
	defer r.Close()
}

func TestFetchAndStore_FallsBackToOctetStreamWithoutContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Content-Type")
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	lib := library.New(t.TempDir(), testLogger())
	novelID := storedNovelID(t, lib)

	p := New(httpcap.NewDirectBackend(httpcap.DirectConfig{}), lib, testLogger())
	got, err := p.FetchAndStore(context.Background(), novelID, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", got.Mime)
}

func TestFetchAndStore_RejectsNon2xxAsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	lib := library.New(t.TempDir(), testLogger())
	novelID := storedNovelID(t, lib)

	p := New(httpcap.NewDirectBackend(httpcap.DirectConfig{}), lib, testLogger())
	_, err := p.FetchAndStore(context.Background(), novelID, srv.URL)
	require.Error(t, err)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, srv.URL, fetchErr.URL)
}

type erroringCapability struct{}

func (erroringCapability) Do(ctx context.Context, req httpcap.Request) (httpcap.Response, error) {
	return httpcap.Response{}, assertErr
}

var assertErr = &fetchTransportError{}

type fetchTransportError struct{}

func (*fetchTransportError) Error() string { return "simulated transport failure" }

func TestFetchAndStore_WrapsTransportFailure(t *testing.T) {
	lib := library.New(t.TempDir(), testLogger())
	novelID := storedNovelID(t, lib)

	p := New(erroringCapability{}, lib, testLogger())
	_, err := p.FetchAndStore(context.Background(), novelID, "https://example.com/cover.jpg")
	require.Error(t, err)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}
