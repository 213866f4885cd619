// Package asset implements the asset fetch pipeline (C13): on novel
// ingest, each cover or in-body image URL is fetched over HTTP and
// handed to the library storage engine, with fetch failure logged and
// swallowed rather than aborting the ingest (spec.md §4.9).
//
// Grounded on the teacher's archive.go (size-capped download before
// trusting a byte stream) and httpcap's Capability contract for the
// actual transfer; the destination is library.Storage.StoreAsset.
package asset

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nacht-org/quelle-go/httpcap"
	"github.com/nacht-org/quelle-go/library"
)

const defaultMime = "application/octet-stream"

// FetchError distinguishes a non-fatal asset-fetch failure from a fatal
// ingest error (spec.md §4.9: "non-fatal to the novel ingest").
type FetchError struct {
	URL    string
	Reason string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching asset %q: %s", e.URL, e.Reason)
}

// Pipeline fetches and stores binary assets for one library.
type Pipeline struct {
	HTTP    httpcap.Capability
	Storage *library.Storage
	Logger  zerolog.Logger
}

// New constructs a Pipeline over the given capability and storage engine.
func New(http httpcap.Capability, storage *library.Storage, logger zerolog.Logger) *Pipeline {
	return &Pipeline{HTTP: http, Storage: storage, Logger: logger}
}

// FetchAndStore downloads assetURL, rejects non-2xx responses, derives a
// MIME type from Content-Type (falling back to application/octet-stream),
// mints a fresh asset id, and stores the body under novelID. On any
// failure it returns a *FetchError; callers are expected to log and
// continue the enclosing novel ingest rather than abort it (spec.md §4.9).
func (p *Pipeline) FetchAndStore(ctx context.Context, novelID, assetURL string) (*library.Asset, error) {
	resp, err := p.HTTP.Do(ctx, httpcap.Request{Method: "GET", URL: assetURL})
	if err != nil {
		p.Logger.Warn().Err(err).Str("url", assetURL).Msg("asset fetch failed")
		return nil, &FetchError{URL: assetURL, Reason: err.Error()}
	}
	if resp.Status < 200 || resp.Status >= 300 {
		p.Logger.Warn().Int("status", resp.Status).Str("url", assetURL).Msg("asset fetch returned non-2xx")
		return nil, &FetchError{URL: assetURL, Reason: fmt.Sprintf("unexpected status %d", resp.Status)}
	}

	id, err := newAssetID()
	if err != nil {
		p.Logger.Warn().Err(err).Str("url", assetURL).Msg("asset id generation failed")
		return nil, &FetchError{URL: assetURL, Reason: err.Error()}
	}

	asset := library.Asset{
		ID: id, NovelID: novelID, URL: assetURL,
		Mime: mimeFromContentType(resp.Headers.Get("Content-Type")),
	}

	stored, err := p.Storage.StoreAsset(asset, bytes.NewReader(resp.Body))
	if err != nil {
		p.Logger.Warn().Err(err).Str("url", assetURL).Msg("asset store failed")
		return nil, &FetchError{URL: assetURL, Reason: err.Error()}
	}
	return &stored, nil
}

func newAssetID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating asset id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func mimeFromContentType(contentType string) string {
	if contentType == "" {
		return defaultMime
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || strings.TrimSpace(mediaType) == "" {
		return defaultMime
	}
	return mediaType
}
