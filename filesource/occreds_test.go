package filesource

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialFromJSON(t *testing.T) {
	cfg := dockerConfig{
		Auths: map[string]dockerAuthEntry{
			"registry.example.com": {Auth: base64.StdEncoding.EncodeToString([]byte("user:pass"))},
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	t.Run("exact match", func(t *testing.T) {
		cred, ok := credentialFromJSON(data, "registry.example.com")
		require.True(t, ok)
		assert.Equal(t, "user", cred.Username)
		assert.Equal(t, "pass", cred.Password)
	})

	t.Run("match without port", func(t *testing.T) {
		cred, ok := credentialFromJSON(data, "registry.example.com:443")
		require.True(t, ok)
		assert.Equal(t, "user", cred.Username)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := credentialFromJSON(data, "other.registry.io")
		assert.False(t, ok)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, ok := credentialFromJSON([]byte("not json"), "registry.example.com")
		assert.False(t, ok)
	})
}

func TestCredentialFromEnv_RejectsInvalidBase64(t *testing.T) {
	_, ok := credentialFromEnv("not-base64!!!", "registry.example.com")
	assert.False(t, ok)
}

func TestResolveCredential_FallsBackToAnonymous(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	cred, err := resolveCredential("", "unknown.registry.example")
	require.NoError(t, err)
	assert.Empty(t, cred.Username)
}

func TestNewDefaultAuthClient_ResolvesEnvCredential(t *testing.T) {
	cfg := dockerConfig{
		Auths: map[string]dockerAuthEntry{
			"registry.example.com": {Auth: base64.StdEncoding.EncodeToString([]byte("user:pass"))},
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	t.Setenv("QUELLE_REGISTRY_AUTH", base64.StdEncoding.EncodeToString(data))

	client := NewDefaultAuthClient("QUELLE_REGISTRY_AUTH")
	cred, err := client.Credential(nil, "registry.example.com")
	require.NoError(t, err)
	assert.Equal(t, "user", cred.Username)
}
