package filesource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"oras.land/oras-go/v2/registry/remote/auth"
)

// dockerConfig is the Docker/Podman credential config file format.
type dockerConfig struct {
	Auths map[string]dockerAuthEntry `json:"auths"`
}

// dockerAuthEntry holds a single registry credential.
type dockerAuthEntry struct {
	Auth string `json:"auth"` // base64(username:password)
}

// NewDefaultAuthClient builds an *auth.Client for NewOCISource that
// resolves registry credentials in priority order: the environment
// variable named by registryAuthEnv (if registryAuthEnv is non-empty; its
// value is a base64-encoded Docker config JSON), ~/.docker/config.json,
// $XDG_RUNTIME_DIR/containers/auth.json, then anonymous. This is the
// credential chain an OCISource is expected to be paired with (spec.md
// §4.1's file-source abstraction is agnostic to how a remote backend
// authenticates; this supplies one concrete, Docker/Podman-compatible
// answer for it).
func NewDefaultAuthClient(registryAuthEnv string) *auth.Client {
	return &auth.Client{
		Client: http.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			return resolveCredential(registryAuthEnv, hostport)
		},
	}
}

func resolveCredential(registryAuthEnv, hostport string) (auth.Credential, error) {
	if registryAuthEnv != "" {
		if envAuth := os.Getenv(registryAuthEnv); envAuth != "" {
			if cred, ok := credentialFromEnv(envAuth, hostport); ok {
				return cred, nil
			}
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		dockerCfg := filepath.Join(home, ".docker", "config.json")
		if cred, ok := credentialFromFile(dockerCfg, hostport); ok {
			return cred, nil
		}
	}

	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		podmanAuth := filepath.Join(runtimeDir, "containers", "auth.json")
		if cred, ok := credentialFromFile(podmanAuth, hostport); ok {
			return cred, nil
		}
	}

	return auth.EmptyCredential, nil
}

func credentialFromEnv(envValue, hostport string) (auth.Credential, bool) {
	data, err := base64.StdEncoding.DecodeString(envValue)
	if err != nil {
		return auth.EmptyCredential, false
	}
	return credentialFromJSON(data, hostport)
}

func credentialFromFile(path, hostport string) (auth.Credential, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return auth.EmptyCredential, false
	}
	return credentialFromJSON(data, hostport)
}

func credentialFromJSON(data []byte, hostport string) (auth.Credential, bool) {
	var cfg dockerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return auth.EmptyCredential, false
	}

	entry, ok := cfg.Auths[hostport]
	if !ok {
		host := hostport
		if idx := strings.LastIndex(host, ":"); idx > 0 {
			host = host[:idx]
		}
		entry, ok = cfg.Auths[host]
	}
	if !ok {
		return auth.EmptyCredential, false
	}

	decoded, err := base64.StdEncoding.DecodeString(entry.Auth)
	if err != nil {
		return auth.EmptyCredential, false
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return auth.EmptyCredential, false
	}

	return auth.Credential{Username: parts[0], Password: parts[1]}, true
}
