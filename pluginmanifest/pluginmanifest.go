// Package pluginmanifest implements the plugin identity and manifest
// structures (C2): a globally unique plugin identity, its binary and
// asset file references, and the local-on-disk variant created when a
// store unpacks a package.
package pluginmanifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/nacht-org/quelle-go/fileref"
)

// Direction is the reading-direction enum for a plugin's source material.
type Direction string

const (
	DirectionLTR Direction = "ltr"
	DirectionRTL Direction = "rtl"
)

// Signature is the optional cryptographic signature over a plugin package.
// Its shape is an expansion: spec.md names "optional signature" without
// defining a shape.
type Signature struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	KeyID     string `json:"keyId,omitempty" yaml:"keyId,omitempty"`
	Value     string `json:"value" yaml:"value"`
}

// NamedAsset is a named, typed asset reference owned by a plugin package.
type NamedAsset struct {
	Name string          `json:"name" yaml:"name"`
	File fileref.FileRef `json:"file" yaml:"file"`
}

// Key is the identity key (id, version) of a plugin manifest.
type Key struct {
	ID      string
	Version string
}

func (k Key) String() string { return k.ID + "@" + k.Version }

// Manifest is a plugin's identity plus its owned files (spec.md §3).
type Manifest struct {
	ID               string          `json:"id" yaml:"id"`
	Name             string          `json:"name" yaml:"name"`
	Version          *semver.Version `json:"-" yaml:"-"`
	VersionString    string          `json:"version" yaml:"version"`
	Author           string          `json:"author,omitempty" yaml:"author,omitempty"`
	BaseURLs         []string        `json:"baseUrls" yaml:"baseUrls"`
	Languages        []string        `json:"languages" yaml:"languages"`
	ReadingDirection Direction       `json:"readingDirection,omitempty" yaml:"readingDirection,omitempty"`
	Signature        *Signature      `json:"signature,omitempty" yaml:"signature,omitempty"`
	WasmFile         fileref.FileRef `json:"wasmFile" yaml:"wasmFile"`
	Assets           []NamedAsset    `json:"assets,omitempty" yaml:"assets,omitempty"`
}

// Key returns the manifest's identity key.
func (m *Manifest) Key() Key { return Key{ID: m.ID, Version: m.VersionString} }

// ParseVersion parses VersionString into Version, populating the semver
// field used for comparisons throughout store/registry/storemanager.
func (m *Manifest) ParseVersion() error {
	v, err := semver.NewVersion(m.VersionString)
	if err != nil {
		return fmt.Errorf("plugin %s: invalid version %q: %w", m.ID, m.VersionString, err)
	}
	m.Version = v
	return nil
}

// ExtendedMetadata is optional descriptive metadata carried alongside a
// manifest (spec.md §3 "optional extended metadata").
type ExtendedMetadata struct {
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage      string   `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	License       string   `json:"license,omitempty" yaml:"license,omitempty"`
	Compatibility []string `json:"compatibility,omitempty" yaml:"compatibility,omitempty"`
}

// Local is a Manifest materialized on disk by a store, with its absolute
// root path and optional extended metadata. Created on unpack, mutated
// only by re-publish, destroyed on unpublish (spec.md §3).
type Local struct {
	Manifest
	Root     string
	Extended *ExtendedMetadata
}

// Package is a plugin package in transit: manifest, binary bytes, a map
// of asset-name to bytes, and optional extended metadata. Immutable once
// created (spec.md §3).
type Package struct {
	Manifest Manifest
	Binary   []byte
	Assets   map[string][]byte
	Extended *ExtendedMetadata
}

// ParseManifest decodes a plugin manifest document, picking YAML or JSON
// by the sidecar's file extension. Stores may ship either form (the
// teacher's own personality.yaml sidecar is the YAML case); a store
// publishing manifest.yaml instead of manifest.json costs nothing extra
// on the reading side.
func ParseManifest(data []byte, path string) (Manifest, error) {
	var m Manifest
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		err = yaml.Unmarshal(data, &m)
	} else {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("parsing plugin manifest %s: %w", path, err)
	}
	return m, nil
}
