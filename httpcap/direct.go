package httpcap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// ErrResponseTooLarge is returned when a response body exceeds
// MaxResponseSize. Surfaced as a typed error the plugin host translates
// to PluginError{Network}, never a panic (spec.md §4.6).
var ErrResponseTooLarge = errors.New("response exceeds max response size")

// DirectBackend issues requests through a real net/http.Client.
type DirectBackend struct {
	client          *http.Client
	maxRedirects    int
	maxResponseSize int64
	timeout         time.Duration
	jarsMu          sync.Mutex
	jars            map[string]http.CookieJar
}

// DirectConfig controls a DirectBackend's limits.
type DirectConfig struct {
	MaxRedirects    int           // default 10
	MaxResponseSize int64         // default 25 MiB
	Timeout         time.Duration // default 30s
}

// NewDirectBackend constructs a DirectBackend with config's limits applied.
func NewDirectBackend(config DirectConfig) *DirectBackend {
	if config.MaxRedirects == 0 {
		config.MaxRedirects = 10
	}
	if config.MaxResponseSize == 0 {
		config.MaxResponseSize = 25 << 20
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	b := &DirectBackend{
		maxRedirects:    config.MaxRedirects,
		maxResponseSize: config.MaxResponseSize,
		timeout:         config.Timeout,
		jars:            make(map[string]http.CookieJar),
	}
	b.client = &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= b.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", b.maxRedirects)
			}
			return nil
		},
	}
	return b
}

// Do builds and sends req, capping redirects and response size. The
// request is sent through a per-invocation cookie jar: req.CookieJarID
// names a persistent jar reused across calls (spec.md §5's
// PersistentSession option), empty means a fresh jar scoped to this one
// call.
func (b *DirectBackend) Do(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	httpReq, err := buildRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}

	jar, err := b.JarFor(req.CookieJarID)
	if err != nil {
		return Response{}, err
	}
	if jar == nil {
		jar, err = cookiejar.New(nil)
		if err != nil {
			return Response{}, err
		}
	}
	client := &http.Client{Transport: b.client.Transport, CheckRedirect: b.client.CheckRedirect, Jar: jar}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, b.maxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return Response{}, err
	}
	if int64(len(body)) > b.maxResponseSize {
		return Response{}, ErrResponseTooLarge
	}

	return Response{
		Status:   resp.StatusCode,
		Headers:  resp.Header,
		Body:     body,
		FinalURL: resp.Request.URL.String(),
	}, nil
}

func buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	contentType := ""

	switch {
	case req.Multipart != nil:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		for _, field := range req.Multipart.Fields {
			if field.Filename != "" {
				fw, err := w.CreateFormFile(field.Name, field.Filename)
				if err != nil {
					return nil, err
				}
				if _, err := fw.Write(field.Data); err != nil {
					return nil, err
				}
			} else if err := w.WriteField(field.Name, field.Value); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		body = buf
		contentType = w.FormDataContentType()
	case len(req.JSON) > 0:
		body = bytes.NewReader(req.JSON)
		contentType = "application/json"
	case len(req.Form) > 0:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

// JarFor returns (creating if absent) the named persistent cookie jar.
// Used by the host to scope cookies per-invocation unless a
// PersistentSession option names a jar to reuse (spec.md §5).
func (b *DirectBackend) JarFor(id string) (http.CookieJar, error) {
	if id == "" {
		return nil, nil
	}
	b.jarsMu.Lock()
	defer b.jarsMu.Unlock()
	if jar, ok := b.jars[id]; ok {
		return jar, nil
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	b.jars[id] = jar
	return jar, nil
}
