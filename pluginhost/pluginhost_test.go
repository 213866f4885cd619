package pluginhost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndClose(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx, Config{})
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))
}

func TestInvoke_MissingEntryPointIsUnsupported(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx, Config{})
	require.NoError(t, err)
	defer h.Close(ctx)

	// A module with no exports at all: the empty WASM module.
	emptyModule := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	_, perr := h.Invoke(ctx, emptyModule, EntryFetchNovelInfo, map[string]string{"url": "https://example.test"}, Capabilities{})
	require.NotNil(t, perr)
	assert.Equal(t, ErrUnsupported, perr.Kind)
}

func TestInternal_BuildsInternalKind(t *testing.T) {
	perr := Internal("deadline_exceeded")
	assert.Equal(t, ErrInternal, perr.Kind)
	assert.Equal(t, "deadline_exceeded", perr.Message)
	assert.Contains(t, perr.Error(), "Internal")
}

func TestErrorEnvelopeRoundTrips(t *testing.T) {
	data := errorEnvelope("Network", "connection refused")
	assert.Contains(t, string(data), "Network")
	assert.Contains(t, string(data), "connection refused")
}
